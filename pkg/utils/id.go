package utils

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// GenerateSessionID generates a unique tuning-session identifier
func GenerateSessionID() string {
	return "tune-" + uuid.NewString()
}

// GenerateCaptureID generates a short capture identifier for sink rows.
// Eight hex characters match the capture ids the spreadsheet layout expects.
func GenerateCaptureID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// GenerateJobID derives the trial job identifier from the session and
// iteration, so proposal and trial records agree on it
func GenerateJobID(sessionID string, iteration int) string {
	return fmt.Sprintf("%s-it%03d", sessionID, iteration)
}
