package cover

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	_ "image/png"

	xdraw "golang.org/x/image/draw"

	"github.com/ayakin/bookposter/internal/books"
)

const (
	// maxCanvasSize bounds the longest edge of the rendered post.
	maxCanvasSize = 1080

	jpegQuality = 95
)

// Renderer produces the image artifact for a book post.
type Renderer interface {
	Render(ctx context.Context, book *books.Book) ([]byte, error)
}

// Downloader supplies the raw cover image for a book.
type Downloader interface {
	FetchCover(ctx context.Context, book *books.Book) ([]byte, error)
}

// SquareRenderer centers the cover on a white square canvas, the layout the
// feed expects.
type SquareRenderer struct {
	fetcher Downloader
}

// NewSquareRenderer creates a renderer backed by the given cover source.
func NewSquareRenderer(fetcher Downloader) *SquareRenderer {
	return &SquareRenderer{fetcher: fetcher}
}

// Render fetches the cover, scales it to fit, and encodes the square canvas
// as JPEG. Deterministic for the same book and cover bytes.
func (r *SquareRenderer) Render(ctx context.Context, book *books.Book) ([]byte, error) {
	data, err := r.fetcher.FetchCover(ctx, book)
	if err != nil {
		return nil, fmt.Errorf("fetch cover: %w", err)
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode cover: %w", err)
	}

	scaled := fitWithin(src, maxCanvasSize)
	canvas := squareCanvas(scaled)

	var out bytes.Buffer
	if err := jpeg.Encode(&out, canvas, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode post image: %w", err)
	}
	return out.Bytes(), nil
}

// fitWithin downscales src so neither edge exceeds max, preserving aspect
// ratio. Images already within bounds are returned unchanged.
func fitWithin(src image.Image, max int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= max && h <= max {
		return src
	}

	scale := float64(max) / float64(w)
	if h > w {
		scale = float64(max) / float64(h)
	}
	dw := int(float64(w) * scale)
	dh := int(float64(h) * scale)
	if dw < 1 {
		dw = 1
	}
	if dh < 1 {
		dh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, b, xdraw.Over, nil)
	return dst
}

// squareCanvas pastes img centered on a white square sized to its longest
// edge.
func squareCanvas(img image.Image) image.Image {
	b := img.Bounds()
	side := b.Dx()
	if b.Dy() > side {
		side = b.Dy()
	}

	canvas := image.NewRGBA(image.Rect(0, 0, side, side))
	xdraw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.White), image.Point{}, xdraw.Src)

	offset := image.Pt((side-b.Dx())/2, (side-b.Dy())/2)
	xdraw.Draw(canvas, b.Add(offset).Sub(b.Min), img, b.Min, xdraw.Over)
	return canvas
}
