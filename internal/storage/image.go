package storage

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/noteduco342/courtside-chat/internal/config"
	"golang.org/x/image/draw"
	"golang.org/x/image/webp"
)

var (
	ErrTooLarge     = errors.New("file too large")
	ErrInvalidImage = errors.New("invalid image")
	ErrUnsupported  = errors.New("unsupported image type")
)

// ImageProcessOptions bounds an upload both as bytes on the wire and as
// decoded pixels.
type ImageProcessOptions struct {
	MaxBytes    int64
	MaxDim      int
	MaxPixels   int64
	JPEGQuality int
	// Transparent pixels are flattened onto this colour.
	Background color.RGBA
}

func DefaultChatImageOptions() ImageProcessOptions {
	return ImageProcessOptions{
		MaxBytes:    5 * 1024 * 1024,
		MaxDim:      2048,
		MaxPixels:   40_000_000,
		JPEGQuality: 82,
		Background:  color.RGBA{R: 255, G: 255, B: 255, A: 255},
	}
}

// ChatImageOptions applies configured limits over the defaults.
func ChatImageOptions(cfg config.MediaConfig) ImageProcessOptions {
	opts := DefaultChatImageOptions()
	if cfg.MaxImageSize > 0 {
		opts.MaxBytes = cfg.MaxImageSize
	}
	if cfg.MaxImageDim > 0 {
		opts.MaxDim = cfg.MaxImageDim
	}
	if cfg.MaxImagePixels > 0 {
		opts.MaxPixels = cfg.MaxImagePixels
	}
	return opts
}

type imageFormat struct {
	contentType  string
	decode       func(io.Reader) (image.Image, error)
	decodeConfig func(io.Reader) (image.Config, error)
}

var (
	formatJPEG = imageFormat{"image/jpeg", jpeg.Decode, jpeg.DecodeConfig}
	formatPNG  = imageFormat{"image/png", png.Decode, png.DecodeConfig}
	formatWebP = imageFormat{"image/webp", webp.Decode, webp.DecodeConfig}
)

var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n'}

// sniffFormat picks a decoder from the leading bytes. The declared content
// type of the upload is ignored.
func sniffFormat(data []byte) (imageFormat, error) {
	switch {
	case len(data) < 12:
		return imageFormat{}, ErrInvalidImage
	case data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF:
		return formatJPEG, nil
	case bytes.HasPrefix(data, pngSignature):
		return formatPNG, nil
	case string(data[0:4]) == "RIFF" && string(data[8:12]) == "WEBP":
		return formatWebP, nil
	}
	return imageFormat{}, ErrUnsupported
}

// fitWithin scales w x h down so neither side exceeds limit, keeping the
// aspect ratio. Smaller images are returned unchanged.
func fitWithin(w, h, limit int) (int, int) {
	if w <= limit && h <= limit {
		return w, h
	}
	var tw, th int
	if w >= h {
		tw, th = limit, h*limit/w
	} else {
		tw, th = w*limit/h, limit
	}
	if tw < 1 {
		tw = 1
	}
	if th < 1 {
		th = 1
	}
	return tw, th
}

// ProcessChatImage turns an uploaded chat image into a JPEG no larger than
// MaxDim on either side. The header is checked against MaxPixels before any
// pixel data is decoded. Re-encoding drops metadata such as EXIF location.
func ProcessChatImage(r io.Reader, opts ImageProcessOptions) ([]byte, string, int64, error) {
	def := DefaultChatImageOptions()
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = def.MaxBytes
	}
	if opts.MaxDim <= 0 {
		opts.MaxDim = def.MaxDim
	}
	if opts.MaxPixels <= 0 {
		opts.MaxPixels = def.MaxPixels
	}
	if opts.JPEGQuality <= 0 || opts.JPEGQuality > 100 {
		opts.JPEGQuality = def.JPEGQuality
	}

	data, err := io.ReadAll(io.LimitReader(r, opts.MaxBytes+1))
	if err != nil {
		return nil, "", 0, err
	}
	if int64(len(data)) > opts.MaxBytes {
		return nil, "", 0, fmt.Errorf("%w: limit is %s", ErrTooLarge, humanize.IBytes(uint64(opts.MaxBytes)))
	}

	format, err := sniffFormat(data)
	if err != nil {
		return nil, "", 0, err
	}
	hdr, err := format.decodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", 0, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if hdr.Width <= 0 || hdr.Height <= 0 {
		return nil, "", 0, ErrInvalidImage
	}
	if pixels := int64(hdr.Width) * int64(hdr.Height); pixels > opts.MaxPixels {
		return nil, "", 0, fmt.Errorf("%w: %dx%d exceeds %s pixels", ErrTooLarge,
			hdr.Width, hdr.Height, humanize.Comma(opts.MaxPixels))
	}

	src, err := format.decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", 0, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	tw, th := fitWithin(src.Bounds().Dx(), src.Bounds().Dy(), opts.MaxDim)
	dst := image.NewRGBA(image.Rect(0, 0, tw, th))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(opts.Background), image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	var out bytes.Buffer
	if err := jpeg.Encode(&out, dst, &jpeg.Options{Quality: opts.JPEGQuality}); err != nil {
		return nil, "", 0, fmt.Errorf("encode chat image: %w", err)
	}
	return out.Bytes(), formatJPEG.contentType, int64(out.Len()), nil
}
