// =============================================================================
// PRF Budget Import - Validate Command
// =============================================================================
//
// COMMAND USAGE:
//   prfimport validate FILE [flags]
//
// FLAGS:
//   --request-sheet : Request sheet name (default: heuristic)
//   --budget-sheet  : Budget sheet name (default: heuristic)
//   --report-format : Report formats to write (json, csv, xlsx)
//
// Nothing is written to the record store. Cost codes are checked against
// the configured chart of accounts.
//
// =============================================================================

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/prf-budget-import/internal/pipeline"
	"github.com/ginjaninja78/prf-budget-import/pkg/utils"
)

// requestSheet and budgetSheet are shared by validate and import.
var (
	requestSheet string
	budgetSheet  string
)

var validateCmd = &cobra.Command{
	Use:   "validate FILE",
	Short: "Validate a workbook without importing it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runValidate(cmd, args[0])
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVar(&requestSheet, "request-sheet", "", "Name of the request sheet")
	validateCmd.Flags().StringVar(&budgetSheet, "budget-sheet", "", "Name of the budget sheet")
	validateCmd.Flags().StringSliceVar(&reportFormats, "report-format", nil, "Report formats to write: json, csv, xlsx")
}

func runValidate(cmd *cobra.Command, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	p, st, err := newPipeline(cmd.Context())
	if err != nil {
		return err
	}
	defer st.Close()

	fm := utils.NewFileManager(appConfig.Output)
	if err := fm.EnsureDirectories(); err != nil {
		return err
	}

	rep, verr := p.Validate(cmd.Context(), pipeline.Input{
		FileName:     path,
		Data:         data,
		RequestSheet: requestSheet,
		BudgetSheet:  budgetSheet,
	})
	if rep == nil {
		return verr
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "=== %s ===\n", path)
	if verr != nil {
		fmt.Fprintf(out, "Rejected:          %s\n", rep.Error)
	} else {
		fmt.Fprintf(out, "Valid requests:    %d\n", rep.RequestValidation.ValidCount)
		fmt.Fprintf(out, "Invalid requests:  %d\n", rep.RequestValidation.InvalidCount)
		if b := rep.BudgetValidation; b != nil {
			fmt.Fprintf(out, "Valid budget rows: %d\n", b.ValidCount)
			fmt.Fprintf(out, "Invalid budget:    %d\n", b.InvalidCount)
		}
		errs, warnings := issueLines(rep)
		printIssues(out, "Errors", errs, 20)
		printIssues(out, "Warnings", warnings, 20)
	}

	paths, err := writeReports(fm, path, rep.BatchID, rep)
	for _, rp := range paths {
		fmt.Fprintf(out, "Report: %s\n", rp)
	}
	if err != nil {
		return err
	}
	return verr
}
