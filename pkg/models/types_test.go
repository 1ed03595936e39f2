package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParameterSetClone(t *testing.T) {
	p := ParameterSet{"feedRate_mm_min": 1200, "maxPower_pct": 80}
	c := p.Clone()

	assert.True(t, p.Equal(c))

	c["maxPower_pct"] = 90
	assert.Equal(t, 80.0, p["maxPower_pct"])
	assert.False(t, p.Equal(c))
}

func TestParameterSetNamesSorted(t *testing.T) {
	p := ParameterSet{"whiteClip": 10, "brightness": 0, "feedRate_mm_min": 900}
	assert.Equal(t, []string{"brightness", "feedRate_mm_min", "whiteClip"}, p.Names())
}

func TestParameterSetEqual(t *testing.T) {
	a := ParameterSet{"quality": 3}
	b := ParameterSet{"quality": 3}
	c := ParameterSet{"quality": 4}
	d := ParameterSet{"quality": 3, "contrast": 0}

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(d))
}

func TestFocusRegionEmpty(t *testing.T) {
	assert.True(t, FocusRegion{}.Empty())
	assert.True(t, FocusRegion{X: 10, Y: 10, Width: 0, Height: 5}.Empty())
	assert.False(t, FocusRegion{X: 0, Y: 0, Width: 100, Height: 100}.Empty())
}
