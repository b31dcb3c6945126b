package domain

import "context"

// Rasterizer turns PDF bytes into ordered page images
type Rasterizer interface {
	Rasterize(ctx context.Context, data []byte) ([]PageImage, error)
}

// Converter turns word-processor bytes into ordered HTML chunks
type Converter interface {
	Convert(ctx context.Context, data []byte, maxChars int) ([]ContentChunk, error)
}

// Extractor sends a group of content units to the model and returns the records found.
// A unit with nothing extractable yields an empty slice, not an error.
type Extractor interface {
	Extract(ctx context.Context, units []ContentUnit, language string) ([]MCQRecord, error)
}

// RecordSink receives records as extraction groups settle
type RecordSink interface {
	Append(records ...MCQRecord)
	Reset()
}
