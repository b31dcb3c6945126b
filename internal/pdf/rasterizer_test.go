package pdf

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/mcq-extractor/internal/domain"
)

type fakeDoc struct {
	pages     int
	failPages map[int]bool
	dpis      []float64
	rendered  atomic.Int32
	closed    bool
}

func (d *fakeDoc) NumPage() int { return d.pages }

func (d *fakeDoc) ImageDPI(pageNumber int, dpi float64) (*image.RGBA, error) {
	d.rendered.Add(1)
	d.dpis = append(d.dpis, dpi)
	if d.failPages[pageNumber] {
		return nil, errors.New("cannot allocate pixmap")
	}
	// Transparent page with one dark pixel; the rasterizer must flatten onto white.
	img := image.NewRGBA(image.Rect(0, 0, 20, 30))
	img.Set(5, 5, color.RGBA{A: 255})
	return img, nil
}

func (d *fakeDoc) Close() error {
	d.closed = true
	return nil
}

func newTestRasterizer(doc *fakeDoc, openErr error) *Rasterizer {
	r := NewRasterizer(Options{}, nil)
	r.open = func([]byte) (pageSource, error) {
		if openErr != nil {
			return nil, openErr
		}
		return doc, nil
	}
	return r
}

func TestNewRasterizer_Defaults(t *testing.T) {
	r := NewRasterizer(Options{Quality: 500}, nil)
	assert.Equal(t, defaultScale, r.opts.Scale)
	assert.Equal(t, defaultQuality, r.opts.Quality)
	assert.Equal(t, defaultBatchSize, r.opts.BatchSize)
}

func TestRasterize_AllPages(t *testing.T) {
	doc := &fakeDoc{pages: 6}
	r := newTestRasterizer(doc, nil)

	pages, err := r.Rasterize(context.Background(), []byte("pdf"))
	require.NoError(t, err)
	require.Len(t, pages, 6)

	for i, p := range pages {
		assert.Equal(t, i+1, p.PageNumber)
		assert.Equal(t, 20, p.Width)
		assert.Equal(t, 30, p.Height)
		assert.NotEmpty(t, p.Data)
	}
	assert.True(t, doc.closed)
	assert.Equal(t, baseDPI*defaultScale, doc.dpis[0])
}

func TestRasterize_WhiteBackground(t *testing.T) {
	doc := &fakeDoc{pages: 1}
	r := newTestRasterizer(doc, nil)

	pages, err := r.Rasterize(context.Background(), []byte("pdf"))
	require.NoError(t, err)
	require.Len(t, pages, 1)

	img, err := jpeg.Decode(bytes.NewReader(pages[0].Data))
	require.NoError(t, err)

	red, green, blue, _ := img.At(15, 25).RGBA()
	assert.Greater(t, red>>8, uint32(240))
	assert.Greater(t, green>>8, uint32(240))
	assert.Greater(t, blue>>8, uint32(240))
}

func TestRasterize_DropsFailedPages(t *testing.T) {
	doc := &fakeDoc{pages: 5, failPages: map[int]bool{1: true, 3: true}}
	r := newTestRasterizer(doc, nil)

	pages, err := r.Rasterize(context.Background(), []byte("pdf"))
	require.NoError(t, err)
	require.Len(t, pages, 3)

	var numbers []int
	for _, p := range pages {
		numbers = append(numbers, p.PageNumber)
	}
	assert.Equal(t, []int{1, 3, 5}, numbers)
	assert.Equal(t, int32(5), doc.rendered.Load())
}

func TestRasterize_OpenFailure(t *testing.T) {
	r := newTestRasterizer(nil, errors.New("not a pdf"))

	_, err := r.Rasterize(context.Background(), []byte("garbage"))
	require.Error(t, err)
	typ, ok := domain.TypeOf(err)
	require.True(t, ok)
	assert.Equal(t, domain.ErrorTypeConversion, typ)
}

func TestRasterize_ZeroPages(t *testing.T) {
	r := newTestRasterizer(&fakeDoc{pages: 0}, nil)

	pages, err := r.Rasterize(context.Background(), []byte("pdf"))
	require.NoError(t, err)
	assert.Empty(t, pages)
}

func TestRasterize_CancelledContext(t *testing.T) {
	doc := &fakeDoc{pages: 3}
	r := newTestRasterizer(doc, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Rasterize(ctx, []byte("pdf"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), doc.rendered.Load())
}

func TestPageCount_Invalid(t *testing.T) {
	_, err := PageCount(nil)
	assert.True(t, domain.IsValidation(err))

	_, err = PageCount([]byte("definitely not a pdf"))
	assert.Error(t, err)
}
