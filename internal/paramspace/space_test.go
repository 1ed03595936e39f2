package paramspace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auto-tuner-laser/tuning-core/pkg/models"
	"github.com/auto-tuner-laser/tuning-core/pkg/utils"
)

func testSpace(t *testing.T) *Space {
	t.Helper()
	s, err := New(
		Spec{Name: "feedRate_mm_min", Kind: KindContinuous, Min: 500, Max: 3000},
		Spec{Name: "maxPower_pct", Kind: KindDiscrete, Min: 10, Max: 100, Step: 5},
		Spec{Name: "quality", Kind: KindDiscrete, Min: 1, Max: 5, Step: 1},
	)
	require.NoError(t, err)
	return s
}

func TestNewRejectsBadSpecs(t *testing.T) {
	_, err := New(Spec{Name: "", Kind: KindContinuous, Min: 0, Max: 1})
	assert.Error(t, err)

	_, err = New(
		Spec{Name: "p", Kind: KindContinuous, Min: 0, Max: 1},
		Spec{Name: "p", Kind: KindContinuous, Min: 0, Max: 1},
	)
	assert.Error(t, err, "duplicate name")

	_, err = New(Spec{Name: "p", Kind: KindContinuous, Min: 5, Max: 5})
	assert.Error(t, err, "empty range")

	_, err = New(Spec{Name: "p", Kind: KindDiscrete, Min: 0, Max: 10})
	assert.Error(t, err, "discrete without step")

	_, err = New(Spec{Name: "p", Kind: "categorical", Min: 0, Max: 1})
	assert.Error(t, err, "bad kind")
}

func TestValidate(t *testing.T) {
	s := testSpace(t)

	ok := models.ParameterSet{"feedRate_mm_min": 1200, "maxPower_pct": 80, "quality": 3}
	assert.NoError(t, s.Validate(ok))

	var oob *OutOfBoundsError
	err := s.Validate(models.ParameterSet{"feedRate_mm_min": 4000, "maxPower_pct": 80, "quality": 3})
	require.ErrorAs(t, err, &oob)
	assert.Equal(t, "feedRate_mm_min", oob.Name)

	var unk *UnknownParameterError
	err = s.Validate(models.ParameterSet{"feedRate_mm_min": 1200, "maxPower_pct": 80, "quality": 3, "dpi": 300})
	require.ErrorAs(t, err, &unk)
	assert.Equal(t, "dpi", unk.Name)

	var missing *MissingParameterError
	err = s.Validate(models.ParameterSet{"feedRate_mm_min": 1200, "maxPower_pct": 80})
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "quality", missing.Name)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	s := testSpace(t)

	p := models.ParameterSet{"feedRate_mm_min": 1750, "maxPower_pct": 65, "quality": 4}
	v, err := s.Encode(p)
	require.NoError(t, err)
	require.Len(t, v, 3)
	for _, x := range v {
		assert.GreaterOrEqual(t, x, 0.0)
		assert.LessOrEqual(t, x, 1.0)
	}

	back, err := s.Decode(v)
	require.NoError(t, err)

	// Discrete dimensions round-trip exactly
	assert.Equal(t, 65.0, back["maxPower_pct"])
	assert.Equal(t, 4.0, back["quality"])
	// Continuous dimensions round-trip within tolerance
	assert.InDelta(t, 1750.0, back["feedRate_mm_min"], 1e-9)
}

func TestEncodeDecodeRoundTripRandom(t *testing.T) {
	s := testSpace(t)
	r := utils.NewRandSource(99)

	for i := 0; i < 200; i++ {
		p := s.Sample(r)
		require.NoError(t, s.Validate(p))

		v, err := s.Encode(p)
		require.NoError(t, err)
		back, err := s.Decode(v)
		require.NoError(t, err)

		assert.Equal(t, p["maxPower_pct"], back["maxPower_pct"])
		assert.Equal(t, p["quality"], back["quality"])
		assert.InDelta(t, p["feedRate_mm_min"], back["feedRate_mm_min"], 1e-9)
	}
}

func TestDecodeClampsOutOfRangeVector(t *testing.T) {
	s := testSpace(t)

	p, err := s.Decode([]float64{-0.5, 1.5, 0.5})
	require.NoError(t, err)
	assert.Equal(t, 500.0, p["feedRate_mm_min"])
	assert.Equal(t, 100.0, p["maxPower_pct"])
	assert.NoError(t, s.Validate(p))
}

func TestDecodeDimensionMismatch(t *testing.T) {
	s := testSpace(t)
	_, err := s.Decode([]float64{0.5})
	assert.Error(t, err)
}

func TestDiscreteDecodeSnapsToGrid(t *testing.T) {
	s := testSpace(t)

	// 0.33 of the 10..100 range is 39.7, which must snap to 40
	p, err := s.Decode([]float64{0.5, 0.33, 0.5})
	require.NoError(t, err)
	assert.Equal(t, 40.0, p["maxPower_pct"])
}

func TestBoundsCopy(t *testing.T) {
	s := testSpace(t)
	b := s.Bounds()
	b[0].Min = -1
	assert.Equal(t, 500.0, s.Bounds()[0].Min)
	assert.Equal(t, 3, s.Dims())
}
