package tile

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"strings"

	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"
	"golang.org/x/image/webp"
)

// Format is an output encoding for composites.
type Format string

// Output formats
const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
	FormatTIFF Format = "tiff"
)

// DefaultJPEGQuality is used when EncodeOptions.Quality is zero.
const DefaultJPEGQuality = 90

// ParseFormat parses a user supplied format name.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "png":
		return FormatPNG, nil
	case "jpeg", "jpg":
		return FormatJPEG, nil
	case "tiff", "tif":
		return FormatTIFF, nil
	}
	return "", fmt.Errorf("unknown format: %s", s)
}

// ContentType returns the MIME type for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatJPEG:
		return "image/jpeg"
	case FormatTIFF:
		return "image/tiff"
	default:
		return "image/png"
	}
}

// EncodeOptions controls composite encoding.
type EncodeOptions struct {
	Format  Format
	Quality int // JPEG only, 1-100

	// MaxWidth downsizes wider images, keeping the aspect ratio. Zero disables.
	MaxWidth int
}

// Encode writes img to w in the requested format.
func Encode(w io.Writer, img image.Image, opts EncodeOptions) error {
	if opts.MaxWidth > 0 {
		img = Downscale(img, opts.MaxWidth)
	}

	switch opts.Format {
	case FormatPNG, "":
		return png.Encode(w, img)
	case FormatJPEG:
		quality := opts.Quality
		if quality <= 0 || quality > 100 {
			quality = DefaultJPEGQuality
		}
		return jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
	case FormatTIFF:
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
	}
	return fmt.Errorf("unknown format: %s", opts.Format)
}

// EncodeBytes encodes img into memory.
func EncodeBytes(img image.Image, opts EncodeOptions) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, img, opts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteFile encodes img to filename, or to stdout when filename is "" or "-".
func WriteFile(filename string, img image.Image, opts EncodeOptions) error {
	if filename == "" || filename == "-" {
		return Encode(os.Stdout, img, opts)
	}

	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := Encode(file, img, opts); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// DecodeImage detects the raster format by its magic bytes and decodes it.
func DecodeImage(data []byte) (image.Image, error) {
	switch {
	case len(data) >= 4 && bytes.Equal(data[:4], []byte{0x89, 0x50, 0x4E, 0x47}):
		return png.Decode(bytes.NewReader(data))
	case len(data) >= 2 && bytes.Equal(data[:2], []byte{0xFF, 0xD8}):
		return jpeg.Decode(bytes.NewReader(data))
	case len(data) >= 12 && string(data[:4]) == "RIFF" && string(data[8:12]) == "WEBP":
		return webp.Decode(bytes.NewReader(data))
	}
	return nil, fmt.Errorf("unrecognized image format")
}

// Crop copies the region r, relative to img's origin, into a new RGBA image
// anchored at (0,0).
func Crop(img image.Image, r image.Rectangle) (*image.RGBA, error) {
	b := img.Bounds()
	src := r.Add(b.Min)
	if r.Empty() || !src.In(b) {
		return nil, fmt.Errorf("crop %v outside %v: %w", r, b.Sub(b.Min), ErrInvalidDimensions)
	}

	out := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Copy(out, image.Point{}, img, src, draw.Src, nil)
	return out, nil
}

// Downscale resizes img so its width is at most maxWidth.
func Downscale(img image.Image, maxWidth int) image.Image {
	b := img.Bounds()
	if maxWidth <= 0 || b.Dx() <= maxWidth {
		return img
	}

	height := b.Dy() * maxWidth / b.Dx()
	if height < 1 {
		height = 1
	}
	out := image.NewRGBA(image.Rect(0, 0, maxWidth, height))
	draw.CatmullRom.Scale(out, out.Bounds(), img, b, draw.Src, nil)
	return out
}
