package ffmpeg

import (
	"math"

	"github.com/jmylchreest/proofreel/internal/models"
)

// Box is a bounding box in pixels.
type Box struct {
	Width  int
	Height int
}

// BoxFor returns the landscape bounding box for a preview resolution.
func BoxFor(r models.Resolution) Box {
	w, h := r.BoundingBox()
	return Box{Width: w, Height: h}
}

// FitInside scales a srcW x srcH frame to fit box. Aspect ratio is kept,
// frames are never upscaled, and both sides come out even because yuv420p
// needs it. Portrait sources are fitted to the transposed box, so a
// 1080x1920 phone clip in a 1280x720 box becomes 720x1280.
func FitInside(srcW, srcH int, box Box) (int, int) {
	if srcW <= 0 || srcH <= 0 {
		return 0, 0
	}
	if srcH > srcW && box.Width > box.Height {
		box.Width, box.Height = box.Height, box.Width
	}

	scale := math.Min(float64(box.Width)/float64(srcW), float64(box.Height)/float64(srcH))
	scale = math.Min(scale, 1)

	return even(float64(srcW) * scale), even(float64(srcH) * scale)
}

func even(v float64) int {
	n := int(math.Round(v))
	n -= n % 2
	return max(n, 2)
}
