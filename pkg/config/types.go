package config

// Config is the daemon configuration loaded from a yaml file
type Config struct {
	HTTPAddr string       `yaml:"http_addr"`
	LogLevel string       `yaml:"log_level"`
	Sink     *SinkConfig  `yaml:"sink,omitempty"`
	Trial    *TrialConfig `yaml:"trial,omitempty"`
}

// Supported sink types
const (
	SinkTypeXLSX = "xlsx"
	SinkTypeNone = "none"
)

// SinkConfig configures the append-only result sink
type SinkConfig struct {
	// Type selects the sink implementation: "xlsx" or "none"
	Type string `yaml:"type"`
	// Path is the workbook file for the xlsx sink
	Path string `yaml:"path"`
	// Sheet is the worksheet name rows are appended to
	Sheet string `yaml:"sheet"`
}

// TrialConfig configures the external trial collaborators
type TrialConfig struct {
	// MachineURL is the endpoint of the engraving machine controller
	MachineURL string `yaml:"machine_url"`
	// CameraURL is the endpoint of the microscope capture service
	CameraURL string `yaml:"camera_url"`
	// ExecuteTimeoutSeconds bounds a single engraving run
	ExecuteTimeoutSeconds int `yaml:"execute_timeout_seconds"`
	// CaptureTimeoutSeconds bounds a single microscope capture
	CaptureTimeoutSeconds int `yaml:"capture_timeout_seconds"`
	// RetryLimit is how many times a failed trial is retried before aborting
	RetryLimit int `yaml:"retry_limit"`
	// Backoff selects the retry backoff: constant, linear, or exponential
	Backoff string `yaml:"backoff"`
	// BackoffBaseMs is the base retry delay in milliseconds
	BackoffBaseMs int `yaml:"backoff_base_ms"`
	// BackoffMaxMs caps the retry delay in milliseconds
	BackoffMaxMs int `yaml:"backoff_max_ms"`
}

// DefaultConfig returns a config with usable defaults
func DefaultConfig() *Config {
	return &Config{
		HTTPAddr: ":8080",
		LogLevel: "info",
		Sink:     &SinkConfig{Type: SinkTypeNone},
		Trial: &TrialConfig{
			ExecuteTimeoutSeconds: 300,
			CaptureTimeoutSeconds: 10,
			RetryLimit:            1,
			Backoff:               "exponential",
			BackoffBaseMs:         500,
			BackoffMaxMs:          10000,
		},
	}
}
