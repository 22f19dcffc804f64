package cmd

import (
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/ginjaninja78/prf-budget-import/internal/report"
	"github.com/ginjaninja78/prf-budget-import/pkg/utils"
)

// reportFormats is the --report-format flag shared by validate and import.
var reportFormats []string

// writeReports writes rep once per requested format and returns the paths.
//
// PARAMETERS:
//   - input: The workbook path; its name feeds {original}.
//   - batchID: Feeds {batch}.
//   - rep: An *ImportReport or *ValidationReport.
func writeReports(fm *utils.FileManager, input, batchID string, rep report.Exportable) ([]string, error) {
	formats := reportFormats
	if len(formats) == 0 {
		formats = appConfig.Output.ReportFormats
	}

	params := map[string]string{
		"original": utils.OriginalName(input),
		"batch":    batchID,
	}

	var paths []string
	for _, format := range formats {
		var write func(io.Writer) error
		switch strings.ToLower(format) {
		case "json":
			write = func(w io.Writer) error { return report.WriteJSON(w, rep) }
		case "csv":
			write = func(w io.Writer) error { return report.WriteCSV(w, rep) }
		case "xlsx":
			write = func(w io.Writer) error { return report.WriteXLSX(w, rep) }
		default:
			return paths, fmt.Errorf("unsupported report format %q", format)
		}

		name := utils.GenerateOutputFileName(appConfig.Output.ReportNameFormat, params, "."+strings.ToLower(format))
		path, err := fm.WriteReport(name, write)
		if err != nil {
			return paths, err
		}
		log.Debug("Report written", zap.String("path", path))
		paths = append(paths, path)
	}
	return paths, nil
}

// printIssues prints at most limit issues of one kind.
func printIssues(w io.Writer, label string, issues []issueLine, limit int) {
	if len(issues) == 0 {
		return
	}
	fmt.Fprintf(w, "%s (%d):\n", label, len(issues))
	for i, is := range issues {
		if i == limit {
			fmt.Fprintf(w, "  ... %d more\n", len(issues)-limit)
			return
		}
		fmt.Fprintf(w, "  row %-5d %s\n", is.row, is.message)
	}
}

type issueLine struct {
	row     int
	message string
}

func issueLines(rep report.Exportable) (errs, warnings []issueLine) {
	e, w := rep.IssueLists()
	for _, is := range e {
		errs = append(errs, issueLine{row: is.Row, message: is.Message})
	}
	for _, is := range w {
		warnings = append(warnings, issueLine{row: is.Row, message: is.Message})
	}
	return errs, warnings
}
