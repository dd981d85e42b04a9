package review

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/spigell/jobnorm/internal/utils"
)

const exportSheet = "Pending"

var exportHeaders = []string{
	"Job ID",
	"Title",
	"URL",
	"Canonical ID",
	"Canonical Title",
	"Canonical URL",
	"Similarity",
	"Detected At",
}

// Export writes the pending candidates to an XLSX workbook.
func (s *Service) Export(ctx context.Context, limit int) ([]byte, error) {
	candidates, err := s.Pending(ctx, limit)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	// rename the default sheet instead of leaving an empty one behind
	if err := f.SetSheetName(f.GetSheetName(0), exportSheet); err != nil {
		return nil, fmt.Errorf("xlsx sheet: %w", err)
	}

	for i, h := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(exportSheet, cell, h)
	}

	for i, c := range candidates {
		row := i + 2
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(exportSheet, cell, v)
		}
		write(1, c.Job.ID)
		write(2, utils.TruncateForLog(c.Job.TitleRaw, 140))
		write(3, c.Job.URL)
		write(4, c.Canonical.ID)
		write(5, utils.TruncateForLog(c.Canonical.TitleRaw, 140))
		write(6, c.Canonical.URL)
		write(7, c.Map.Similarity)
		write(8, c.Map.CreatedAt.Format("2006-01-02 15:04:05"))
	}

	_ = f.SetColWidth(exportSheet, "A", "A", 10)
	_ = f.SetColWidth(exportSheet, "B", "B", 40)
	_ = f.SetColWidth(exportSheet, "C", "C", 50)
	_ = f.SetColWidth(exportSheet, "D", "D", 12)
	_ = f.SetColWidth(exportSheet, "E", "E", 40)
	_ = f.SetColWidth(exportSheet, "F", "F", 50)
	_ = f.SetColWidth(exportSheet, "G", "H", 20)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}
