package vulkan

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
)

// encodePNG builds a tiny synthetic image in memory so decodeToRGBA can
// be exercised without touching the filesystem or a GPU.
func encodePNG(t *testing.T, width, height int, fill color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, fill)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode test png: %v", err)
	}
	return buf.Bytes()
}

func TestDecodeToRGBAPreservesDimensionsAndPixels(t *testing.T) {
	want := color.RGBA{R: 10, G: 20, B: 30, A: 255}
	data := encodePNG(t, 4, 3, want)

	rgba, format, err := decodeToRGBA(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decodeToRGBA: %v", err)
	}
	if format != "png" {
		t.Errorf("format = %q, want %q", format, "png")
	}
	bounds := rgba.Bounds()
	if bounds.Dx() != 4 || bounds.Dy() != 3 {
		t.Fatalf("dimensions = %dx%d, want 4x3", bounds.Dx(), bounds.Dy())
	}
	got := rgba.RGBAAt(2, 1)
	if got != want {
		t.Errorf("pixel at (2,1) = %+v, want %+v", got, want)
	}
}

func TestDecodeToRGBARejectsGarbage(t *testing.T) {
	if _, _, err := decodeToRGBA(bytes.NewReader([]byte("not an image"))); err == nil {
		t.Fatal("expected an error decoding non-image data")
	}
}
