package export

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

var (
	// ErrNoImages indicates an export request without pages.
	ErrNoImages = errors.New("export: no images to assemble")
	// ErrInvalidPageSize indicates a non-positive page dimension.
	ErrInvalidPageSize = errors.New("export: invalid page size")
)

// ImagesToPDF assembles one page per image, each stretched to the page size.
func ImagesToPDF(images [][]byte, page PageSize) ([]byte, error) {
	if len(images) == 0 {
		return nil, ErrNoImages
	}
	if !page.Valid() {
		return nil, fmt.Errorf("%w: %.2fx%.2f", ErrInvalidPageSize, page.Width, page.Height)
	}

	readers := make([]io.Reader, 0, len(images))
	for _, payload := range images {
		readers = append(readers, bytes.NewReader(payload))
	}

	imp := pdfcpu.DefaultImportConfig()
	imp.PageDim = &types.Dim{Width: page.Width, Height: page.Height}
	imp.UserDim = true
	imp.Pos = types.Full

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	var output bytes.Buffer
	if err := api.ImportImages(nil, &output, readers, imp, conf); err != nil {
		return nil, fmt.Errorf("assemble pdf: %w", err)
	}
	return output.Bytes(), nil
}
