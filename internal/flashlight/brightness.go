package flashlight

import "image"

const (
	sampleStep        = 8
	fallbackLuminance = 50
	minLuminance      = 10
	maxLuminance      = 245
)

// Brightness estimates scene luminance (0-255) from the centre third of img,
// sampling every eighth pixel on both axes. Outliers are clamped to
// [10, 245] so a single blown-out or black frame cannot dominate.
func Brightness(img image.Image) int {
	if img == nil {
		return fallbackLuminance
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	x0, x1 := b.Min.X+w/3, b.Min.X+w*2/3
	y0, y1 := b.Min.Y+h/3, b.Min.Y+h*2/3

	var (
		total int64
		n     int64
	)
	for x := x0; x < x1; x += sampleStep {
		for y := y0; y < y1; y += sampleStep {
			// RGBA returns 16-bit channels; weights are 0.299/0.587/0.114 in
			// thousandths so the result truncates like the float formula.
			r, g, bl, _ := img.At(x, y).RGBA()
			total += (299*int64(r>>8) + 587*int64(g>>8) + 114*int64(bl>>8)) / 1000
			n++
		}
	}

	if n == 0 {
		return fallbackLuminance
	}

	avg := int(total / n)
	if avg < minLuminance {
		return minLuminance
	}
	if avg > maxLuminance {
		return maxLuminance
	}
	return avg
}
