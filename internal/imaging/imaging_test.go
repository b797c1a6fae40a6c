package imaging

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func encodeJPEG(w, h int) []byte {
	var buf bytes.Buffer
	jpeg.Encode(&buf, solid(w, h, color.RGBA{200, 30, 30, 255}), &jpeg.Options{Quality: 90})
	return buf.Bytes()
}

func encodePNG(w, h int) []byte {
	var buf bytes.Buffer
	png.Encode(&buf, solid(w, h, color.RGBA{30, 30, 200, 255}))
	return buf.Bytes()
}

func TestPrepare(t *testing.T) {
	tests := []struct {
		name  string
		data  []byte
		wantW int
		wantH int
	}{
		{"small jpeg kept", encodeJPEG(50, 40), 50, 40},
		{"png converted", encodePNG(100, 100), 100, 100},
		{"wide scaled", encodeJPEG(1600, 800), MaxDimension, 400},
		{"tall scaled", encodePNG(400, 1600), 200, MaxDimension},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Prepare(tt.data)
			if err != nil {
				t.Fatalf("Prepare: %v", err)
			}
			if p.MIME != "image/jpeg" {
				t.Errorf("expected image/jpeg, got %s", p.MIME)
			}
			if p.Width != tt.wantW || p.Height != tt.wantH {
				t.Errorf("expected %dx%d, got %dx%d", tt.wantW, tt.wantH, p.Width, p.Height)
			}

			img, _, err := image.Decode(bytes.NewReader(p.Data))
			if err != nil {
				t.Fatalf("decoding result: %v", err)
			}
			if b := img.Bounds(); b.Dx() != tt.wantW || b.Dy() != tt.wantH {
				t.Errorf("encoded size %dx%d", b.Dx(), b.Dy())
			}
		})
	}
}

func TestPrepareRejects(t *testing.T) {
	for _, data := range [][]byte{[]byte("not a picture"), []byte("GIF89a......")} {
		if _, err := Prepare(data); !errors.Is(err, ErrUnsupported) {
			t.Errorf("expected ErrUnsupported for %q, got %v", data, err)
		}
	}
}
