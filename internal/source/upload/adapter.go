package upload

import (
	"bytes"
	"context"
	"fmt"

	"github.com/timmy/outreach/internal/source"
	"github.com/timmy/outreach/internal/workbook"
)

// Adapter implements the Source interface for an uploaded workbook. The
// loaded sheet doubles as the job's result sink.
type Adapter struct {
	fileName string
	data     []byte
	opts     workbook.Options
}

// NewAdapter creates a new upload adapter.
// Parameters:
//   - fileName: original upload name, used for display.
//   - data: workbook bytes.
//   - opts: column mapping, default Cc, timestamp zone and dry run flag.
// Returns:
//   - *Adapter: initialized upload adapter.
func NewAdapter(fileName string, data []byte, opts workbook.Options) *Adapter {
	return &Adapter{fileName: fileName, data: data, opts: opts}
}

func (a *Adapter) GetSourceID() string {
	return source.KindUpload
}

func (a *Adapter) GetDisplayName() string {
	if a.fileName == "" {
		return "Uploaded workbook"
	}
	return a.fileName
}

// Load parses the workbook. Callers own the returned sink and must close it
// when the job does not start.
func (a *Adapter) Load(ctx context.Context) (*source.Recipients, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(a.data) == 0 {
		return nil, fmt.Errorf("%s: %w", a.GetDisplayName(), workbook.ErrEmptyWorkbook)
	}
	sheet, units, err := workbook.Open(bytes.NewReader(a.data), a.opts)
	if err != nil {
		return nil, err
	}
	return &source.Recipients{Units: units, Sink: sheet}, nil
}
