package capture

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nfnt/resize"
	"gocv.io/x/gocv"
)

// ErrImageNotFound is returned when an image path does not exist.
var ErrImageNotFound = errors.New("image file not found")

// MaxUploadDim bounds the longest side of decoded uploads.
const MaxUploadDim = 1280

var imageExts = map[string]bool{".png": true, ".jpg": true, ".jpeg": true}

// IsImageFile reports whether name has a supported image extension.
func IsImageFile(name string) bool {
	return imageExts[strings.ToLower(filepath.Ext(name))]
}

// LoadImage reads an image file as a BGR Mat. The caller closes it.
func LoadImage(path string) (*gocv.Mat, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrImageNotFound, path)
		}
		return nil, err
	}

	mat := gocv.IMRead(path, gocv.IMReadColor)
	if mat.Empty() {
		mat.Close()
		return nil, fmt.Errorf("decode image %s: unsupported or corrupt", path)
	}
	return &mat, nil
}

// DecodeImage decodes a PNG or JPEG stream into a BGR Mat, shrinking it so
// neither side exceeds maxDim. A maxDim of 0 keeps the original size.
func DecodeImage(r io.Reader, maxDim uint) (*gocv.Mat, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	b := img.Bounds()
	if maxDim > 0 && (uint(b.Dx()) > maxDim || uint(b.Dy()) > maxDim) {
		img = resize.Thumbnail(maxDim, maxDim, img, resize.Lanczos3)
	}

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("convert image: %w", err)
	}
	return &mat, nil
}

// EncodeJPEG encodes a frame as JPEG bytes.
func EncodeJPEG(frame *gocv.Mat) ([]byte, error) {
	if frame == nil || frame.Empty() {
		return nil, ErrNoFrame
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	return append([]byte(nil), buf.GetBytes()...), nil
}

// SaveFrame writes frame to dir as captured_frame_<unix>.jpg and returns the
// path.
func SaveFrame(dir string, frame *gocv.Mat, now time.Time) (string, error) {
	if frame == nil || frame.Empty() {
		return "", ErrNoFrame
	}

	path := filepath.Join(dir, fmt.Sprintf("captured_frame_%d.jpg", now.Unix()))
	if ok := gocv.IMWrite(path, *frame); !ok {
		return "", fmt.Errorf("write frame %s", path)
	}
	return path, nil
}
