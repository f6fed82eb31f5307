// Package imaging validates uploaded label photos and normalizes them before
// they are sent to a vision model.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"log/slog"
	"net/http"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	// MaxDimension is the longest edge, in pixels, sent to the model.
	MaxDimension = 1600
	// MaxSourcePixels bounds the decoded size of an upload. Headers are
	// checked before any pixel buffer is allocated.
	MaxSourcePixels = 40_000_000
	jpegQuality     = 85
)

var (
	ErrEmpty             = errors.New("image is empty")
	ErrUnsupportedFormat = errors.New("unsupported image format")
	ErrCorrupt           = errors.New("image cannot be decoded")
	ErrTooLarge          = errors.New("image dimensions too large")
)

var supported = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// Prepared is an image ready to send to the model.
type Prepared struct {
	MIMEType string
	Data     []byte
	Width    int
	Height   int
	// Rewritten is true when Data was re-encoded as JPEG.
	Rewritten bool
}

// Prepare checks that data is a decodable image of a supported format, applies
// its EXIF orientation and downscales it to MaxDimension. Images that need
// neither step are returned byte for byte.
func Prepare(declaredType string, data []byte) (*Prepared, error) {
	if len(data) == 0 {
		return nil, ErrEmpty
	}
	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(declaredType)), "image/") {
		return nil, fmt.Errorf("%w: declared content type %q", ErrUnsupportedFormat, declaredType)
	}

	sniffed := http.DetectContentType(data)
	if !supported[sniffed] {
		return nil, fmt.Errorf("%w: content is %s", ErrUnsupportedFormat, sniffed)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrCorrupt, cfg.Width, cfg.Height)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxSourcePixels {
		return nil, fmt.Errorf("%w: %dx%d", ErrTooLarge, cfg.Width, cfg.Height)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	orientation := 1
	if sniffed == "image/jpeg" {
		orientation = Orientation(data)
	}
	if orientation != 1 {
		img = Orient(img, orientation)
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if orientation == 1 && w <= MaxDimension && h <= MaxDimension {
		return &Prepared{MIMEType: sniffed, Data: data, Width: w, Height: h}, nil
	}

	if w > MaxDimension || h > MaxDimension {
		img = resize(img, MaxDimension)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encoding normalized image: %w", err)
	}

	nb := img.Bounds()
	slog.Debug("normalized image",
		"from_bytes", len(data),
		"to_bytes", buf.Len(),
		"from", fmt.Sprintf("%dx%d", w, h),
		"to", fmt.Sprintf("%dx%d", nb.Dx(), nb.Dy()),
		"orientation", orientation,
	)

	return &Prepared{
		MIMEType:  "image/jpeg",
		Data:      buf.Bytes(),
		Width:     nb.Dx(),
		Height:    nb.Dy(),
		Rewritten: true,
	}, nil
}

// Orientation returns the EXIF orientation tag of a JPEG, or 1 when absent.
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

// Orient returns img transformed so that EXIF orientation o displays upright.
func Orient(img image.Image, o int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	// dst maps a source pixel (x, y), relative to the bounds origin, to its
	// destination coordinate.
	var dst func(x, y int) (int, int)
	swap := false
	switch o {
	case 2:
		dst = func(x, y int) (int, int) { return w - 1 - x, y }
	case 3:
		dst = func(x, y int) (int, int) { return w - 1 - x, h - 1 - y }
	case 4:
		dst = func(x, y int) (int, int) { return x, h - 1 - y }
	case 5:
		swap = true
		dst = func(x, y int) (int, int) { return y, x }
	case 6:
		swap = true
		dst = func(x, y int) (int, int) { return h - 1 - y, x }
	case 7:
		swap = true
		dst = func(x, y int) (int, int) { return h - 1 - y, w - 1 - x }
	case 8:
		swap = true
		dst = func(x, y int) (int, int) { return y, w - 1 - x }
	default:
		return img
	}

	out := image.NewRGBA(image.Rect(0, 0, w, h))
	if swap {
		out = image.NewRGBA(image.Rect(0, 0, h, w))
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dx, dy := dst(x, y)
			out.Set(dx, dy, img.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return out
}

// resize scales img so its longest edge is maxDim, preserving aspect ratio.
// Transparent areas are flattened onto white since the result is a JPEG.
func resize(img image.Image, maxDim int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	nw, nh := maxDim, maxDim
	if w >= h {
		nh = max(1, h*maxDim/w)
	} else {
		nw = max(1, w*maxDim/h)
	}

	out := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.Draw(out, out.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.CatmullRom.Scale(out, out.Bounds(), img, b, draw.Over, nil)
	return out
}
