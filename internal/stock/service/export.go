package service

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
)

const movementSheet = "Movements"

var movementHeadings = []string{"Time", "Session", "Barcode", "Product", "Type", "Lot", "Quantity", "Group total"}

// ExportMovementLog renders the grouped movement log as an XLSX workbook, one row per lot detail
func (l *Ledger) ExportMovementLog(ctx context.Context, filter string) ([]byte, *MovementLog, error) {
	log, err := l.GetMovementLog(ctx, filter)
	if err != nil {
		return nil, nil, err
	}

	data, err := renderMovementWorkbook(log, l.opts.Location)
	if err != nil {
		return nil, nil, fmt.Errorf("render movement workbook: %w", err)
	}
	return data, log, nil
}

func renderMovementWorkbook(log *MovementLog, loc *time.Location) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", movementSheet); err != nil {
		return nil, err
	}

	for i, h := range movementHeadings {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(movementSheet, cell, h); err != nil {
			return nil, err
		}
	}

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	if err := f.SetRowStyle(movementSheet, 1, 1, headerStyle); err != nil {
		return nil, err
	}

	row := 2
	for _, g := range log.Groups {
		for _, d := range g.Details {
			values := []interface{}{
				g.CreatedAt.In(loc).Format("2006-01-02 15:04:05"),
				deref(g.SessionID),
				g.Barcode,
				g.ProductName,
				string(g.Type),
				deref(d.Lot),
				d.Quantity,
				g.Quantity,
			}
			cell, err := excelize.CoordinatesToCellName(1, row)
			if err != nil {
				return nil, err
			}
			if err := f.SetSheetRow(movementSheet, cell, &values); err != nil {
				return nil, err
			}
			row++
		}
	}

	if err := f.SetColWidth(movementSheet, "A", "B", 22); err != nil {
		return nil, err
	}
	if err := f.SetColWidth(movementSheet, "C", "D", 18); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
