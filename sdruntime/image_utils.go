package sdruntime

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
)

// pngSignature is the 8-byte magic prefix of every PNG stream.
var pngSignature = []byte("\x89PNG\r\n\x1a\n")

// minPNGLen is the smallest structurally complete PNG:
// 8-byte signature + 25-byte IHDR + 12-byte IEND.
const minPNGLen = 45

var (
	ErrImageEmpty       = errors.New("sdruntime: image data is empty")
	ErrImageTooSmall    = errors.New("sdruntime: image data shorter than a minimal PNG")
	ErrImageNotPNG      = errors.New("sdruntime: image data is not a PNG")
	ErrImageDecodeFail  = errors.New("sdruntime: image decode failed")
	ErrImageInvalidSize = errors.New("sdruntime: invalid image dimensions")
)

// IsPNG reports whether data begins with the PNG signature.
func IsPNG(data []byte) bool {
	return bytes.HasPrefix(data, pngSignature)
}

// ValidateImageData checks that data is a complete, decodable PNG. The
// decode pass catches truncated streams that still carry a valid header.
func ValidateImageData(data []byte) error {
	switch {
	case len(data) == 0:
		return ErrImageEmpty
	case len(data) < minPNGLen:
		return ErrImageTooSmall
	case !IsPNG(data):
		return ErrImageNotPNG
	}

	if _, err := png.Decode(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("%w: %v", ErrImageDecodeFail, err)
	}
	return nil
}

// EncodeToPNG encodes a raw RGBA frame (4 bytes per pixel, row-major) to
// PNG. Encoding is deterministic: identical pixels yield identical bytes,
// which the seed reproducibility guarantee depends on. The pixel slice is
// only read, never retained.
func EncodeToPNG(pixels []byte, width, height int) ([]byte, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrImageInvalidSize, width, height)
	}
	if want := ImageDataSize(width, height); len(pixels) != want {
		return nil, fmt.Errorf("%w: need %d bytes for %dx%d RGBA, have %d",
			ErrImageInvalidSize, want, width, height, len(pixels))
	}

	// Wrap the frame in place instead of copying it into a fresh image.
	img := &image.RGBA{
		Pix:    pixels,
		Stride: 4 * width,
		Rect:   image.Rect(0, 0, width, height),
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageDecodeFail, err)
	}
	return buf.Bytes(), nil
}

// ImageDataSize returns the byte length of an RGBA frame buffer.
func ImageDataSize(width, height int) int {
	return width * height * 4
}
