// Package pdf renders PDF pages into compressed page images.
package pdf

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"sync"

	"github.com/gen2brain/go-fitz"
	"golang.org/x/sync/errgroup"

	"github.com/spherical/mcq-extractor/internal/domain"
	"github.com/spherical/mcq-extractor/internal/observability"
)

const (
	baseDPI          = 72.0
	defaultScale     = 1.5
	defaultQuality   = 80
	defaultBatchSize = 4
)

// pageSource is the subset of *fitz.Document the rasterizer needs
type pageSource interface {
	NumPage() int
	ImageDPI(pageNumber int, dpi float64) (*image.RGBA, error)
	Close() error
}

func openFitz(data []byte) (pageSource, error) {
	return fitz.NewFromMemory(data)
}

// Options controls rendering
type Options struct {
	Scale     float64 // zoom relative to 72 DPI
	Quality   int     // JPEG quality 1-100
	BatchSize int     // pages rendered concurrently
}

// Rasterizer implements PDF to image conversion using go-fitz
type Rasterizer struct {
	opts   Options
	open   func([]byte) (pageSource, error)
	logger *observability.Logger
}

// NewRasterizer creates a rasterizer, filling zero options with defaults
func NewRasterizer(opts Options, logger *observability.Logger) *Rasterizer {
	if opts.Scale <= 0 {
		opts.Scale = defaultScale
	}
	if opts.Quality < 1 || opts.Quality > 100 {
		opts.Quality = defaultQuality
	}
	if opts.BatchSize < 1 {
		opts.BatchSize = defaultBatchSize
	}
	if logger == nil {
		logger = observability.Nop()
	}

	return &Rasterizer{
		opts:   opts,
		open:   openFitz,
		logger: logger.WithOperation("rasterize"),
	}
}

// Rasterize renders every page of the PDF, in page order. Pages that fail to
// render are dropped; open or encode failures abort the whole document.
func (r *Rasterizer) Rasterize(ctx context.Context, data []byte) ([]domain.PageImage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	doc, err := r.open(data)
	if err != nil {
		return nil, domain.ConversionError("Failed to open PDF", err)
	}
	defer doc.Close()

	pageCount := doc.NumPage()
	if pageCount <= 0 {
		return []domain.PageImage{}, nil
	}

	dpi := baseDPI * r.opts.Scale
	rendered := make([]*domain.PageImage, pageCount)

	// fitz documents are not safe for concurrent rendering; encoding is.
	var renderMu sync.Mutex

	for start := 0; start < pageCount; start += r.opts.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := min(start+r.opts.BatchSize, pageCount)

		var g errgroup.Group
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				renderMu.Lock()
				img, err := doc.ImageDPI(i, dpi)
				renderMu.Unlock()
				if err != nil || img == nil {
					r.logger.Warn().Err(err).Int("page", i+1).Msg("Page render failed, skipping")
					return nil
				}

				page, err := r.encode(i+1, img)
				if err != nil {
					return err
				}
				rendered[i] = page
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	pages := make([]domain.PageImage, 0, pageCount)
	for _, p := range rendered {
		if p != nil {
			pages = append(pages, *p)
		}
	}

	r.logger.Debug().Int("pages", pageCount).Int("rendered", len(pages)).Msg("PDF rasterized")
	return pages, nil
}

// encode flattens the page onto white and compresses it
func (r *Rasterizer) encode(pageNumber int, img image.Image) (*domain.PageImage, error) {
	bounds := img.Bounds()
	canvas := image.NewRGBA(bounds)
	draw.Draw(canvas, bounds, image.White, image.Point{}, draw.Src)
	draw.Draw(canvas, bounds, img, bounds.Min, draw.Over)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: r.opts.Quality}); err != nil {
		return nil, domain.ConversionError(fmt.Sprintf("Failed to encode page %d as JPG", pageNumber), err)
	}

	return &domain.PageImage{
		PageNumber: pageNumber,
		Data:       buf.Bytes(),
		Width:      bounds.Dx(),
		Height:     bounds.Dy(),
	}, nil
}
