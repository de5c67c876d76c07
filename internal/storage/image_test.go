package storage

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/noteduco342/courtside-chat/internal/config"
)

func TestProcessChatImage_PNG_ToJPEG(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 120, 60))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})

	var pngBuf bytes.Buffer
	if err := png.Encode(&pngBuf, img); err != nil {
		t.Fatalf("png encode: %v", err)
	}

	out, ct, size, err := ProcessChatImage(bytes.NewReader(pngBuf.Bytes()), DefaultChatImageOptions())
	if err != nil {
		t.Fatalf("ProcessChatImage: %v", err)
	}
	if ct != "image/jpeg" {
		t.Fatalf("content type = %q, want image/jpeg", ct)
	}
	if size != int64(len(out)) {
		t.Fatalf("size = %d, want %d", size, len(out))
	}

	decoded, err := jpeg.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("jpeg decode: %v", err)
	}
	if decoded.Bounds().Dx() != 120 || decoded.Bounds().Dy() != 60 {
		t.Fatalf("dims = %dx%d, want 120x60", decoded.Bounds().Dx(), decoded.Bounds().Dy())
	}
}

func TestProcessChatImage_DownscalesToFit(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 50, 200))

	var pngBuf bytes.Buffer
	if err := png.Encode(&pngBuf, img); err != nil {
		t.Fatalf("png encode: %v", err)
	}

	opts := ChatImageOptions(config.MediaConfig{MaxImageDim: 100})
	out, _, _, err := ProcessChatImage(bytes.NewReader(pngBuf.Bytes()), opts)
	if err != nil {
		t.Fatalf("ProcessChatImage: %v", err)
	}

	decoded, err := jpeg.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("jpeg decode: %v", err)
	}
	// 50x200 scaled to fit MaxDim=100 => 25x100
	if decoded.Bounds().Dx() != 25 || decoded.Bounds().Dy() != 100 {
		t.Fatalf("dims = %dx%d, want 25x100", decoded.Bounds().Dx(), decoded.Bounds().Dy())
	}
}

func TestProcessChatImage_TooLarge(t *testing.T) {
	opts := ChatImageOptions(config.MediaConfig{MaxImageSize: 10})
	payload := bytes.Repeat([]byte{0x00}, 11)
	_, _, _, err := ProcessChatImage(bytes.NewReader(payload), opts)
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("err = %v, want ErrTooLarge", err)
	}
	if !strings.Contains(err.Error(), "10 B") {
		t.Errorf("err = %q, want human-readable limit", err.Error())
	}
}

func TestProcessChatImage_UnsupportedMagic(t *testing.T) {
	payload := bytes.Repeat([]byte{0x01}, 128)
	_, _, _, err := ProcessChatImage(bytes.NewReader(payload), DefaultChatImageOptions())
	if err != ErrUnsupported {
		t.Fatalf("err = %v, want ErrUnsupported", err)
	}
}

func TestChatImageOptionsDefaults(t *testing.T) {
	opts := ChatImageOptions(config.MediaConfig{})
	def := DefaultChatImageOptions()
	if opts != def {
		t.Errorf("ChatImageOptions(zero) = %+v, want defaults %+v", opts, def)
	}

	opts = ChatImageOptions(config.MediaConfig{MaxImagePixels: 1_000})
	if opts.MaxPixels != 1_000 {
		t.Errorf("MaxPixels = %d, want 1000", opts.MaxPixels)
	}
}

// pngHeader builds a PNG signature and IHDR chunk declaring w x h with no
// pixel data behind it.
func pngHeader(w, h uint32) []byte {
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], w)
	binary.BigEndian.PutUint32(ihdr[4:8], h)
	ihdr[8] = 8 // bit depth
	ihdr[9] = 2 // truecolour

	var buf bytes.Buffer
	buf.Write([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n'})
	binary.Write(&buf, binary.BigEndian, uint32(len(ihdr)))
	chunk := append([]byte("IHDR"), ihdr...)
	buf.Write(chunk)
	binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

func TestProcessChatImage_PixelBudget(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		opts    ImageProcessOptions
	}{
		{"Huge declared dimensions", pngHeader(30000, 30000), DefaultChatImageOptions()},
		{"Configured budget", pngHeader(200, 200), ChatImageOptions(config.MediaConfig{MaxImagePixels: 10_000})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, _, err := ProcessChatImage(bytes.NewReader(tt.payload), tt.opts)
			if !errors.Is(err, ErrTooLarge) {
				t.Fatalf("err = %v, want ErrTooLarge", err)
			}
			if !strings.Contains(err.Error(), "pixels") {
				t.Errorf("err = %q, want pixel budget in message", err.Error())
			}
		})
	}
}

func TestProcessChatImage_TruncatedPNGIsInvalid(t *testing.T) {
	// Header within budget but no image data.
	_, _, _, err := ProcessChatImage(bytes.NewReader(pngHeader(10, 10)), DefaultChatImageOptions())
	if !errors.Is(err, ErrInvalidImage) {
		t.Fatalf("err = %v, want ErrInvalidImage", err)
	}
}

func TestFitWithin(t *testing.T) {
	tests := []struct {
		name         string
		w, h, limit  int
		wantW, wantH int
	}{
		{"Smaller untouched", 120, 60, 2048, 120, 60},
		{"Landscape", 4000, 1000, 2000, 2000, 500},
		{"Portrait", 50, 200, 100, 25, 100},
		{"Sliver keeps a pixel", 10000, 1, 100, 100, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := fitWithin(tt.w, tt.h, tt.limit)
			if w != tt.wantW || h != tt.wantH {
				t.Errorf("fitWithin(%d, %d, %d) = %dx%d, want %dx%d", tt.w, tt.h, tt.limit, w, h, tt.wantW, tt.wantH)
			}
		})
	}
}

func TestSafeJoinMediaPath(t *testing.T) {
	tests := []struct {
		name    string
		prefix  string
		key     string
		want    string
		wantErr bool
	}{
		{"Traversal", "", "../x", "", true},
		{"Backslash", "", "..\\x", "", true},
		{"Empty", "", "  ", "", true},
		{"Leading slash", "", "/chat/1/a.jpg", "chat/1/a.jpg", false},
		{"Prefix", "chat", "r/a.jpg", "chat/r/a.jpg", false},
		{"Collapses slashes", "/chat/", "r///a.jpg", "chat/r/a.jpg", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SafeJoinMediaPath(tt.prefix, tt.key)
			if (err != nil) != tt.wantErr {
				t.Fatalf("SafeJoinMediaPath() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("SafeJoinMediaPath() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestChatImageKey(t *testing.T) {
	room := uuid.MustParse("11111111-1111-4111-8111-111111111111")
	img := uuid.MustParse("22222222-2222-4222-8222-222222222222")
	want := "chat/11111111-1111-4111-8111-111111111111/22222222-2222-4222-8222-222222222222.jpg"
	if got := ChatImageKey(room, img); got != want {
		t.Errorf("ChatImageKey() = %q, want %q", got, want)
	}
}

func TestNewS3StorageRequiresConfig(t *testing.T) {
	if _, err := NewS3Storage(config.S3Config{Endpoint: "localhost:9000"}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("NewS3Storage(partial) error = %v, want ErrNotConfigured", err)
	}
}
