package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"net/http"

	"github.com/rwcarlsen/goexif/exif"
	"golang.org/x/image/draw"
)

// MaxDimension bounds the width and height of images sent to the model
const MaxDimension = 1600

// JPEGQuality is the compression quality for re-encoded images.
const JPEGQuality = 90

// MaxPixels caps the decoded size claimed by an image header
const MaxPixels = 50_000_000

// ErrTooLarge is returned for images whose header exceeds MaxPixels
var ErrTooLarge = errors.New("image dimensions too large")

// Result is an image ready to be sent to the model
type Result struct {
	Data     []byte
	MIME     string
	Width    int
	Height   int
	Modified bool
}

// Prepare sniffs the image format, applies the EXIF orientation and
// downscales it to MaxDimension. Images that need neither are returned
// unchanged; anything else is re-encoded as JPEG.
func Prepare(data []byte) (*Result, error) {
	detected := http.DetectContentType(data)

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("reading %s header: %w", detected, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, fmt.Errorf("%dx%d: %w", cfg.Width, cfg.Height, ErrTooLarge)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding %s image: %w", detected, err)
	}

	orientation := Orientation(data)
	img = Orient(img, orientation)

	bounds := img.Bounds()
	if orientation == 1 && bounds.Dx() <= MaxDimension && bounds.Dy() <= MaxDimension {
		return &Result{Data: data, MIME: detected, Width: bounds.Dx(), Height: bounds.Dy()}, nil
	}

	img = downscale(img, MaxDimension)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, fmt.Errorf("encoding JPEG: %w", err)
	}

	return &Result{
		Data:     buf.Bytes(),
		MIME:     "image/jpeg",
		Width:    img.Bounds().Dx(),
		Height:   img.Bounds().Dy(),
		Modified: true,
	}, nil
}

// Orientation reads the EXIF orientation tag, 1 when absent
func Orientation(data []byte) int {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	v, err := tag.Int(0)
	if err != nil || v < 1 || v > 8 {
		return 1
	}
	return v
}

// Orient returns img transformed so that EXIF orientation o displays upright
func Orient(img image.Image, o int) image.Image {
	if o < 2 || o > 8 {
		return img
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	dw, dh := w, h
	if o >= 5 {
		dw, dh = h, w
	}

	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var dx, dy int
			switch o {
			case 2: // flip horizontal
				dx, dy = w-1-x, y
			case 3: // rotate 180
				dx, dy = w-1-x, h-1-y
			case 4: // flip vertical
				dx, dy = x, h-1-y
			case 5: // transpose
				dx, dy = y, x
			case 6: // rotate 90 clockwise
				dx, dy = h-1-y, x
			case 7: // transverse
				dx, dy = h-1-y, w-1-x
			case 8: // rotate 90 counter-clockwise
				dx, dy = y, w-1-x
			}
			dst.Set(dx, dy, img.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return dst
}

// downscale keeps the aspect ratio; images within bounds are returned as is
func downscale(img image.Image, maxDim int) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= maxDim && h <= maxDim {
		return img
	}

	newW, newH := maxDim, maxDim
	if w > h {
		newH = int(float64(h) * float64(maxDim) / float64(w))
	} else {
		newW = int(float64(w) * float64(maxDim) / float64(h))
	}
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}
