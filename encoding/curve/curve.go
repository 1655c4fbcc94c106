// Package curve renders recorded training histories as GIFs, one frame per
// curve: the pretraining cost of each layer, the fine-tuning cost and the
// validation error.
package curve

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"io"

	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/math/fixed"
)

var regular *truetype.Font

const (
	dpi      = 72.0
	fontsize = 10.0
	delay    = 150 // centiseconds per frame
)

func init() {
	var err error
	if regular, err = truetype.Parse(gomono.TTF); err != nil {
		panic(err)
	}
}

var globPalette = color.Palette{
	color.Gray{255},
	color.Gray{0},
	color.Gray{128},
}

// Encoder accumulates curve frames and writes them out as an animated GIF.
type Encoder struct {
	W, H int
	font.Drawer

	out  *gif.GIF
	pad  int
	face font.Face
}

// NewEncoder with frame width and height in pixels.
func NewEncoder(w, h int) *Encoder {
	enc := &Encoder{
		W:   w,
		H:   h,
		pad: 24,
		out: &gif.GIF{LoopCount: -1},
		face: truetype.NewFace(regular, &truetype.Options{
			Size:    fontsize,
			DPI:     dpi,
			Hinting: font.HintingFull,
		}),
	}
	enc.Drawer.Src = image.Black
	enc.Drawer.Face = enc.face
	return enc
}

// Append adds one frame plotting the series under the given title. Points
// are spread evenly along the x axis and scaled to the observed range on y.
func (enc *Encoder) Append(title string, series []float32) {
	im := image.NewPaletted(image.Rect(0, 0, enc.W, enc.H), globPalette)
	draw.Draw(im, im.Bounds(), image.White, image.ZP, draw.Src)

	lo, hi := bounds(series)
	x0, y0 := enc.pad, enc.H-enc.pad // plot origin, bottom left
	x1, y1 := enc.W-enc.pad, enc.pad

	// axes
	for x := x0; x <= x1; x++ {
		im.SetColorIndex(x, y0, 2)
	}
	for y := y1; y <= y0; y++ {
		im.SetColorIndex(x0, y, 2)
	}

	if len(series) > 0 {
		px, py := -1, -1
		for i, v := range series {
			x := x0
			if len(series) > 1 {
				x += i * (x1 - x0) / (len(series) - 1)
			}
			y := y0
			if hi > lo {
				y -= int(float32(y0-y1) * (v - lo) / (hi - lo))
			}
			if px >= 0 {
				line(im, px, py, x, y)
			}
			px, py = x, y
		}
	}

	enc.Dst = im
	enc.Dot = fixed.P(enc.pad, enc.pad-8)
	enc.DrawString(title)
	enc.Dot = fixed.P(enc.pad, enc.H-8)
	enc.DrawString(fmt.Sprintf("min %.4f max %.4f n=%d", lo, hi, len(series)))

	enc.out.Image = append(enc.out.Image, im)
	enc.out.Delay = append(enc.out.Delay, delay)
}

// Flush writes the gif into the writer.
func (enc *Encoder) Flush(w io.Writer) error {
	return gif.EncodeAll(w, enc.out)
}

// Frames returns the number of frames appended so far.
func (enc *Encoder) Frames() int { return len(enc.out.Image) }

func bounds(series []float32) (lo, hi float32) {
	if len(series) == 0 {
		return 0, 0
	}
	lo, hi = series[0], series[0]
	for _, v := range series[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

// line draws with the classic integer midpoint walk; curves are short so no
// fancier rasterizer is warranted.
func line(im *image.Paletted, x0, y0, x1, y1 int) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	err := dx + dy
	for {
		im.SetColorIndex(x0, y0, 1)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func abs(a int) int {
	if a < 0 {
		return -a
	}
	return a
}
