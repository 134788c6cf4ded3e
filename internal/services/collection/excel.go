package collection

import (
	"bytes"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/regdesk/backend/internal/models"
)

const sheetName = "Reports"

var excelHeadings = []string{"Title", "Type", "Status", "Created", "Submitted", "Reviewed", "File Name"}

func renderWorkbook(reports []models.Report) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, err
	}

	for i, heading := range excelHeadings {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(sheetName, cell, heading); err != nil {
			return nil, err
		}
	}

	for i, r := range reports {
		row := i + 2
		values := []interface{}{
			r.Title,
			string(r.ReportType),
			string(r.Status),
			r.CreatedAt.Format("2006-01-02 15:04"),
			formatTime(r.SubmittedAt),
			formatTime(r.ReviewedAt),
			r.FileName,
		}
		for col, value := range values {
			cell := fmt.Sprintf("%c%d", 'A'+col, row)
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				return nil, err
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf, nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02 15:04")
}
