package imaging

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

func TestPrepareDownscalesLargeImage(t *testing.T) {
	res, err := Prepare(encodePNG(t, 3200, 1000))
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if !res.Modified || res.MIME != "image/jpeg" {
		t.Errorf("Modified=%v MIME=%q", res.Modified, res.MIME)
	}
	if res.Width != 1600 || res.Height != 500 {
		t.Errorf("size = %dx%d, want 1600x500", res.Width, res.Height)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(res.Data))
	if err != nil || format != "jpeg" || cfg.Width != 1600 {
		t.Errorf("output: format=%q width=%d err=%v", format, cfg.Width, err)
	}
}

func TestPrepareKeepsSmallImage(t *testing.T) {
	data := encodePNG(t, 120, 80)

	res, err := Prepare(data)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if res.Modified || res.MIME != "image/png" || !bytes.Equal(res.Data, data) {
		t.Errorf("small image should pass through, got Modified=%v MIME=%q", res.Modified, res.MIME)
	}
}

func TestPrepareRejectsGarbage(t *testing.T) {
	if _, err := Prepare([]byte("definitely not an image")); err == nil {
		t.Error("expected error")
	}
}

// pngHeaderOnly builds a PNG whose IHDR claims w x h RGBA pixels but whose
// IDAT chunk is empty.
func pngHeaderOnly(w, h uint32) []byte {
	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")

	chunk := func(kind string, data []byte) {
		binary.Write(&buf, binary.BigEndian, uint32(len(data)))
		buf.WriteString(kind)
		buf.Write(data)
		crc := crc32.NewIEEE()
		crc.Write([]byte(kind))
		crc.Write(data)
		binary.Write(&buf, binary.BigEndian, crc.Sum32())
	}

	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], w)
	binary.BigEndian.PutUint32(ihdr[4:8], h)
	ihdr[8] = 8 // bit depth
	ihdr[9] = 6 // RGBA
	chunk("IHDR", ihdr)
	chunk("IDAT", nil)
	chunk("IEND", nil)
	return buf.Bytes()
}

func TestPrepareRejectsOversizedHeader(t *testing.T) {
	data := pngHeaderOnly(40000, 40000)

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil || cfg.Width != 40000 {
		t.Fatalf("crafted header not readable: %+v %v", cfg, err)
	}

	_, err = Prepare(data)
	if !errors.Is(err, ErrTooLarge) {
		t.Errorf("Prepare = %v, want ErrTooLarge", err)
	}
}

func TestOrient(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 3, 2))
	marker := color.RGBA{R: 255, A: 255}
	src.Set(0, 0, marker)

	tests := []struct {
		orientation int
		w, h        int
		x, y        int
	}{
		{1, 3, 2, 0, 0},
		{2, 3, 2, 2, 0},
		{3, 3, 2, 2, 1},
		{4, 3, 2, 0, 1},
		{5, 2, 3, 0, 0},
		{6, 2, 3, 1, 0},
		{7, 2, 3, 1, 2},
		{8, 2, 3, 0, 2},
	}

	for _, tt := range tests {
		out := Orient(src, tt.orientation)
		b := out.Bounds()
		if b.Dx() != tt.w || b.Dy() != tt.h {
			t.Errorf("orientation %d: size %dx%d, want %dx%d", tt.orientation, b.Dx(), b.Dy(), tt.w, tt.h)
			continue
		}
		r, _, _, _ := out.At(tt.x, tt.y).RGBA()
		if r>>8 != 255 {
			t.Errorf("orientation %d: marker not at (%d,%d)", tt.orientation, tt.x, tt.y)
		}
	}
}

func TestOrientationWithoutExif(t *testing.T) {
	if got := Orientation(encodePNG(t, 4, 4)); got != 1 {
		t.Errorf("Orientation = %d, want 1", got)
	}
}
