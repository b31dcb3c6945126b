package pdf

import (
	"bytes"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/spherical/mcq-extractor/internal/domain"
)

// PageCount reads the page count with pdfcpu in relaxed validation mode.
// Used to report progress before rendering starts.
func PageCount(data []byte) (int, error) {
	if len(data) == 0 {
		return 0, domain.ValidationError("PDF is empty", nil)
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	n, err := api.PageCount(bytes.NewReader(data), conf)
	if err != nil {
		return 0, domain.ConversionError("Failed to read PDF structure", err)
	}
	return n, nil
}
