package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/ginjaninja78/prf-budget-import/internal/types"
)

// Exportable is implemented by both report kinds.
type Exportable interface {
	// IssueLists returns every error and warning of the report.
	IssueLists() (errs, warnings []types.Issue)
	// SummaryRows returns label/value pairs for the summary sheet.
	SummaryRows() [][2]any
	// FailedList returns the failed aggregates, if the report has any.
	FailedList() []FailedAggregate
}

// IssueLists implements Exportable.
func (r *ImportReport) IssueLists() (errs, warnings []types.Issue) {
	return r.Errors, r.Warnings
}

// SummaryRows implements Exportable.
func (r *ImportReport) SummaryRows() [][2]any {
	rows := [][2]any{
		{"Batch ID", r.BatchID},
		{"State", r.State},
		{"Success", r.Success},
		{"Started", r.StartedAt.Format("2006-01-02 15:04:05")},
		{"Finished", r.FinishedAt.Format("2006-01-02 15:04:05")},
		{"Total rows", r.TotalRows},
		{"Total records", r.TotalRecords},
		{"Imported records", r.ImportedRecords},
		{"Skipped records", r.SkippedRecords},
		{"Invalid records", r.InvalidRecords},
		{"Successful aggregates", r.SuccessfulAggregates},
		{"Failed aggregates", r.FailedAggregates},
		{"Errors", len(r.Errors)},
		{"Warnings", len(r.Warnings)},
	}
	if r.Error != "" {
		rows = append(rows, [2]any{"Error", r.Error})
	}
	for _, code := range r.CreatedCostCodes {
		rows = append(rows, [2]any{"Created cost code", code})
	}
	if b := r.Budget; b != nil {
		rows = append(rows,
			[2]any{"Budget rows", b.TotalRows},
			[2]any{"Budget imported", b.Imported},
			[2]any{"Budget updated", b.Updated},
			[2]any{"Budget skipped", b.Skipped},
			[2]any{"Budget conflicts", b.Conflicts},
			[2]any{"Budget failed", b.Failed},
			[2]any{"Budget invalid", b.Invalid},
		)
	}
	return rows
}

// FailedList implements Exportable.
func (r *ImportReport) FailedList() []FailedAggregate { return r.AggregateDetails.Failed }

// IssueLists implements Exportable.
func (r *ValidationReport) IssueLists() (errs, warnings []types.Issue) {
	errs = append(errs, r.RequestValidation.Errors...)
	warnings = append(warnings, r.RequestValidation.Warnings...)
	if r.BudgetValidation != nil {
		errs = append(errs, r.BudgetValidation.Errors...)
		warnings = append(warnings, r.BudgetValidation.Warnings...)
	}
	return errs, warnings
}

// SummaryRows implements Exportable.
func (r *ValidationReport) SummaryRows() [][2]any {
	rows := [][2]any{
		{"Batch ID", r.BatchID},
		{"State", r.State},
		{"Success", r.Success},
		{"Total rows", r.TotalRows},
		{"Valid requests", r.RequestValidation.ValidCount},
		{"Invalid requests", r.RequestValidation.InvalidCount},
	}
	if r.Error != "" {
		rows = append(rows, [2]any{"Error", r.Error})
	}
	if b := r.BudgetValidation; b != nil {
		rows = append(rows,
			[2]any{"Valid budget rows", b.ValidCount},
			[2]any{"Invalid budget rows", b.InvalidCount},
		)
	}
	return rows
}

// FailedList implements Exportable. Validate-only reports have none.
func (r *ValidationReport) FailedList() []FailedAggregate { return nil }

// =============================================================================
// WRITERS
// =============================================================================

// WriteJSON writes the report as indented JSON.
func WriteJSON(w io.Writer, r any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}

// csvHeader is the column layout of the CSV issue export.
var csvHeader = []string{"type", "row", "field", "message", "requestNumber"}

// WriteCSV writes one line per issue, errors first.
func WriteCSV(w io.Writer, r Exportable) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	errs, warnings := r.IssueLists()
	for _, is := range append(append([]types.Issue(nil), errs...), warnings...) {
		record := []string{string(is.Severity), strconv.Itoa(is.Row), is.Field, is.Message, is.RequestNumber}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// WriteXLSX writes a workbook with Summary, Issues and Failed sheets.
func WriteXLSX(w io.Writer, r Exportable) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", "Summary"); err != nil {
		return fmt.Errorf("failed to name summary sheet: %w", err)
	}
	if err := setRow(f, "Summary", 1, []any{"Metric", "Value"}); err != nil {
		return err
	}
	for i, row := range r.SummaryRows() {
		if err := setRow(f, "Summary", i+2, []any{row[0], row[1]}); err != nil {
			return err
		}
	}

	if _, err := f.NewSheet("Issues"); err != nil {
		return fmt.Errorf("failed to create issues sheet: %w", err)
	}
	if err := setRow(f, "Issues", 1, []any{"Type", "Row", "Field", "Message", "Request Number"}); err != nil {
		return err
	}
	errs, warnings := r.IssueLists()
	for i, is := range append(append([]types.Issue(nil), errs...), warnings...) {
		if err := setRow(f, "Issues", i+2, []any{string(is.Severity), is.Row, is.Field, is.Message, is.RequestNumber}); err != nil {
			return err
		}
	}

	if _, err := f.NewSheet("Failed"); err != nil {
		return fmt.Errorf("failed to create failed sheet: %w", err)
	}
	if err := setRow(f, "Failed", 1, []any{"Request Number", "Reason", "Rows"}); err != nil {
		return err
	}
	for i, fa := range r.FailedList() {
		if err := setRow(f, "Failed", i+2, []any{fa.RequestNumber, fa.Reason, joinRows(fa.Rows)}); err != nil {
			return err
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write %s row %d: %w", sheet, row, err)
	}
	return nil
}

func joinRows(rows []int) string {
	s := ""
	for i, r := range rows {
		if i > 0 {
			s += ","
		}
		s += strconv.Itoa(r)
	}
	return s
}
