package capture

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gocv.io/x/gocv"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestIsImageFile(t *testing.T) {
	tests := map[string]bool{
		"a.png":        true,
		"b.JPG":        true,
		"c.jpeg":       true,
		"d.Jpeg":       true,
		"e.gif":        false,
		"notes.txt":    false,
		"no_extension": false,
	}

	for name, want := range tests {
		if got := IsImageFile(name); got != want {
			t.Errorf("IsImageFile(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestLoadImage_NotFound(t *testing.T) {
	_, err := LoadImage(filepath.Join(t.TempDir(), "missing.png"))
	if !errors.Is(err, ErrImageNotFound) {
		t.Errorf("LoadImage() error = %v, want ErrImageNotFound", err)
	}
}

func TestLoadImage_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.jpg")
	if err := os.WriteFile(path, []byte("not an image"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadImage(path); err == nil {
		t.Error("LoadImage() should fail on a corrupt file")
	}
}

func TestDecodeImage(t *testing.T) {
	t.Run("keeps small images", func(t *testing.T) {
		mat, err := DecodeImage(bytes.NewReader(pngBytes(t, 64, 48)), MaxUploadDim)
		if err != nil {
			t.Fatalf("DecodeImage() error = %v", err)
		}
		defer mat.Close()

		if mat.Cols() != 64 || mat.Rows() != 48 {
			t.Errorf("size = %dx%d, want 64x48", mat.Cols(), mat.Rows())
		}
		if mat.Type() != gocv.MatTypeCV8UC3 {
			t.Errorf("type = %v, want CV8UC3", mat.Type())
		}
	})

	t.Run("shrinks large images", func(t *testing.T) {
		mat, err := DecodeImage(bytes.NewReader(pngBytes(t, 400, 200)), 100)
		if err != nil {
			t.Fatalf("DecodeImage() error = %v", err)
		}
		defer mat.Close()

		if mat.Cols() != 100 || mat.Rows() != 50 {
			t.Errorf("size = %dx%d, want 100x50", mat.Cols(), mat.Rows())
		}
	})

	t.Run("rejects garbage", func(t *testing.T) {
		if _, err := DecodeImage(bytes.NewReader([]byte("garbage")), 0); err == nil {
			t.Error("DecodeImage() should fail on garbage input")
		}
	})
}

func TestSaveFrameAndLoad(t *testing.T) {
	frame := gocv.NewMatWithSize(48, 64, gocv.MatTypeCV8UC3)
	defer frame.Close()

	dir := t.TempDir()
	now := time.Unix(1700000000, 0)

	path, err := SaveFrame(dir, &frame, now)
	if err != nil {
		t.Fatalf("SaveFrame() error = %v", err)
	}
	if want := filepath.Join(dir, "captured_frame_1700000000.jpg"); path != want {
		t.Errorf("path = %q, want %q", path, want)
	}

	loaded, err := LoadImage(path)
	if err != nil {
		t.Fatalf("LoadImage() error = %v", err)
	}
	defer loaded.Close()

	if loaded.Cols() != 64 || loaded.Rows() != 48 {
		t.Errorf("size = %dx%d, want 64x48", loaded.Cols(), loaded.Rows())
	}
}

func TestEncodeJPEG(t *testing.T) {
	if _, err := EncodeJPEG(nil); !errors.Is(err, ErrNoFrame) {
		t.Errorf("EncodeJPEG(nil) error = %v, want ErrNoFrame", err)
	}

	frame := gocv.NewMatWithSize(48, 64, gocv.MatTypeCV8UC3)
	defer frame.Close()

	data, err := EncodeJPEG(&frame)
	if err != nil {
		t.Fatalf("EncodeJPEG() error = %v", err)
	}
	if len(data) < 2 || data[0] != 0xFF || data[1] != 0xD8 {
		t.Error("output should start with a JPEG SOI marker")
	}
}
