package quality

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"

	"github.com/auto-tuner-laser/tuning-core/pkg/models"
)

// ErrImageUnreadable indicates a capture file that could not be opened or
// decoded. Scoring failures are trial failures, never zero scores.
var ErrImageUnreadable = errors.New("image unreadable")

// RegionOutOfBoundsError indicates a focus region that does not fit inside
// the captured image
type RegionOutOfBoundsError struct {
	Region models.FocusRegion
	Width  int
	Height int
}

func (e *RegionOutOfBoundsError) Error() string {
	return fmt.Sprintf("focus region [%d,%d %dx%d] exceeds image bounds %dx%d",
		e.Region.X, e.Region.Y, e.Region.Width, e.Region.Height, e.Width, e.Height)
}

// Normalization constants for the deterministic sub-scores. Contrast
// divides the grayscale stddev by half the value range; sharpness divides
// the Laplacian variance by an empirical ceiling for well-focused
// microscope captures.
const (
	contrastScale  = 128.0
	sharpnessScale = 5000.0
)

// grayImage is a luminance plane in [0,255] used by all metric kernels
type grayImage struct {
	pix    []float64
	width  int
	height int
}

// loadGray decodes the image at path into a luminance plane
func loadGray(path string) (*grayImage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrImageUnreadable, path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrImageUnreadable, path, err)
	}
	return grayFromImage(img), nil
}

func grayFromImage(img image.Image) *grayImage {
	bounds := img.Bounds()
	g := &grayImage{
		pix:    make([]float64, bounds.Dx()*bounds.Dy()),
		width:  bounds.Dx(),
		height: bounds.Dy(),
	}
	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, gr, b, _ := img.At(x, y).RGBA()
			// ITU-R BT.601 luma on 16-bit channel values
			g.pix[i] = (0.299*float64(r) + 0.587*float64(gr) + 0.114*float64(b)) / 257.0
			i++
		}
	}
	return g
}

// crop returns the focus-region sub-plane. An empty region keeps the
// whole image.
func (g *grayImage) crop(region models.FocusRegion) (*grayImage, error) {
	if region.Empty() {
		return g, nil
	}
	if region.X < 0 || region.Y < 0 ||
		region.X+region.Width > g.width || region.Y+region.Height > g.height {
		return nil, &RegionOutOfBoundsError{Region: region, Width: g.width, Height: g.height}
	}

	out := &grayImage{
		pix:    make([]float64, region.Width*region.Height),
		width:  region.Width,
		height: region.Height,
	}
	for y := 0; y < region.Height; y++ {
		src := (region.Y+y)*g.width + region.X
		copy(out.pix[y*region.Width:(y+1)*region.Width], g.pix[src:src+region.Width])
	}
	return out, nil
}

func (g *grayImage) at(x, y int) float64 {
	return g.pix[y*g.width+x]
}

// contrast is the pixel stddev normalized by half the value range,
// capped at 1
func (g *grayImage) contrast() float64 {
	if len(g.pix) == 0 {
		return 0
	}
	mean := 0.0
	for _, v := range g.pix {
		mean += v
	}
	mean /= float64(len(g.pix))

	variance := 0.0
	for _, v := range g.pix {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(g.pix))

	return math.Min(math.Sqrt(variance)/contrastScale, 1.0)
}

// sharpness is the variance of the 4-neighbor Laplacian response over the
// interior pixels, normalized and capped at 1. Flat or defocused images
// score near zero.
func (g *grayImage) sharpness() float64 {
	if g.width < 3 || g.height < 3 {
		return 0
	}

	n := (g.width - 2) * (g.height - 2)
	responses := make([]float64, 0, n)
	mean := 0.0
	for y := 1; y < g.height-1; y++ {
		for x := 1; x < g.width-1; x++ {
			lap := g.at(x-1, y) + g.at(x+1, y) + g.at(x, y-1) + g.at(x, y+1) - 4*g.at(x, y)
			responses = append(responses, lap)
			mean += lap
		}
	}
	mean /= float64(n)

	variance := 0.0
	for _, v := range responses {
		d := v - mean
		variance += d * d
	}
	variance /= float64(n)

	return math.Min(variance/sharpnessScale, 1.0)
}

// histogram returns the 256-bin luminance histogram normalized to sum 1
func (g *grayImage) histogram() []float64 {
	hist := make([]float64, 256)
	if len(g.pix) == 0 {
		return hist
	}
	for _, v := range g.pix {
		bin := int(v)
		if bin < 0 {
			bin = 0
		} else if bin > 255 {
			bin = 255
		}
		hist[bin]++
	}
	total := float64(len(g.pix))
	for i := range hist {
		hist[i] /= total
	}
	return hist
}

// histogramSpread is the luminance range between the 2.5th and 97.5th
// percentile divided by the full range, so tails from sensor noise do not
// inflate the score
func (g *grayImage) histogramSpread() float64 {
	hist := g.histogram()
	lo := percentileBin(hist, 0.025)
	hi := percentileBin(hist, 0.975)
	if hi <= lo {
		return 0
	}
	return float64(hi-lo) / 255.0
}

// percentileBin returns the first bin where the cumulative mass reaches q
func percentileBin(hist []float64, q float64) int {
	cum := 0.0
	for i, v := range hist {
		cum += v
		if cum >= q {
			return i
		}
	}
	return len(hist) - 1
}

// histogramIntersection is the overlap of two normalized histograms,
// 1 for identical distributions and 0 for disjoint ones
func histogramIntersection(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		sum += math.Min(a[i], b[i])
	}
	return sum
}
