package service

import (
	"context"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"busbar/pkg/telemetry"
	"busbar/services/rating-svc/internal/domain"
)

const (
	componentsSheet     = "Components"
	configurationsSheet = "Configurations"
)

var (
	componentHeaders     = []string{"Key", "NbPhase", "Angle", "ResMini", "Info", "A List", "Amini", "Force", "Rows", "Expected Rows", "Complete"}
	configurationHeaders = []string{"Component", "NbPhase", "Thickness", "Width", "Poles", "Shape"}
)

// ExportWorkbook writes every component and its configuration rows to w as
// an xlsx workbook.
func (s *CatalogService) ExportWorkbook(ctx context.Context, w io.Writer) error {
	ctx, span := telemetry.StartSpan(ctx, "CatalogService.ExportWorkbook")
	defer span.End()

	components, err := s.repo.ListComponents(ctx)
	if err != nil {
		telemetry.SetError(ctx, err)
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", componentsSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(configurationsSheet); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	if err := writeHeader(f, componentsSheet, componentHeaders, headerStyle); err != nil {
		return err
	}
	if err := writeHeader(f, configurationsSheet, configurationHeaders, headerStyle); err != nil {
		return err
	}

	configRow := 2
	for i, c := range components {
		rows, err := s.repo.ListCombinations(ctx, c.Key, c.NbPhase)
		if err != nil {
			telemetry.SetError(ctx, err)
			return err
		}
		set := domain.Summarize(c.Key, c.NbPhase, rows)

		err = writeRow(f, componentsSheet, i+2, []any{
			c.Key, c.NbPhase, c.Angle, c.ResMini, c.Info, c.AList,
			c.Amini(), c.Force(), set.Rows, set.ExpectedRows(), set.IsComplete,
		})
		if err != nil {
			return err
		}

		for _, r := range rows {
			err := writeRow(f, configurationsSheet, configRow, []any{
				c.Key, c.NbPhase, r.Thickness, r.Width, r.Poles, r.Shape,
			})
			if err != nil {
				return err
			}
			configRow++
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeHeader(f *excelize.File, sheet string, headers []string, style int) error {
	values := make([]any, len(headers))
	for i, h := range headers {
		values[i] = h
	}
	if err := writeRow(f, sheet, 1, values); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(headers), 1)
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, "A1", last, style)
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}
