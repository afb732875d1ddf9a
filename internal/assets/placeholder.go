package assets

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	placeholderWidth  = 300
	placeholderHeight = 420
)

var (
	placeholderOnce sync.Once
	placeholderPNG  []byte
)

// Placeholder returns a gray "No Image" card-sized PNG.
func Placeholder() []byte {
	placeholderOnce.Do(func() {
		img := image.NewRGBA(image.Rect(0, 0, placeholderWidth, placeholderHeight))
		draw.Draw(img, img.Bounds(), image.NewUniform(color.Gray{Y: 0x80}), image.Point{}, draw.Src)

		d := &font.Drawer{
			Dst:  img,
			Src:  image.NewUniform(color.Black),
			Face: basicfont.Face7x13,
			Dot:  fixed.P(10, 190),
		}
		d.DrawString("No Image")

		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			// an in-memory RGBA always encodes
			panic(err)
		}
		placeholderPNG = buf.Bytes()
	})
	return placeholderPNG
}
