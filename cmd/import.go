// =============================================================================
// PRF Budget Import - Import Command
// =============================================================================
//
// This file defines the 'import' command, which runs the full pipeline for
// one or more workbooks.
//
// COMMAND USAGE:
//   prfimport import [FILE...] [flags]
//
// FLAGS:
//   --skip-duplicates : Skip requests and allocations that already exist
//   --update-existing : Replace existing requests and allocations
//   --auto-create-coa : Create placeholder chart-of-account entries
//   --request-sheet   : Request sheet name (default: heuristic)
//   --budget-sheet    : Budget sheet name (default: heuristic)
//   --input-dir       : Import every workbook in a directory
//   --report-format   : Report formats to write (json, csv, xlsx)
//   --archive         : Move imported workbooks to output.archive_dir
//
// PROCESSING PIPELINE:
//   1. Load configuration and open the store
//   2. Collect input files (arguments and --input-dir)
//   3. For each file, in order:
//      a. Run the pipeline
//      b. Write the reports
//      c. Archive the workbook if requested and the batch was reported
//   4. Print a summary
//
// Files are imported one after another so that the same request number in
// two files is resolved in a predictable order.
//
// =============================================================================

package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ginjaninja78/prf-budget-import/internal/pipeline"
	"github.com/ginjaninja78/prf-budget-import/internal/report"
	"github.com/ginjaninja78/prf-budget-import/internal/types"
	"github.com/ginjaninja78/prf-budget-import/pkg/utils"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

// The option flags (skip-duplicates, update-existing, auto-create-coa) are
// read through importOptions so an unset flag keeps the configured value.
var (
	inputDir string
	archive  bool
)

// =============================================================================
// IMPORT COMMAND DEFINITION
// =============================================================================

var importCmd = &cobra.Command{
	Use:   "import [FILE...]",
	Short: "Import purchase requests and budget allocations from workbooks",
	Long: `The import command reads each workbook, groups and validates its rows and
writes every valid purchase request in its own transaction. Budget rows are
written the same way.

A request that fails never affects the others. The report for each file
lists what was imported, skipped and rejected, with sheet row numbers.

On success:
  - Reports are written to output.report_dir
  - With --archive the workbook is moved to output.archive_dir

On a rejected workbook (unreadable, missing sheet, no header):
  - A rejected report is written
  - The workbook stays where it is
  - Processing continues with the next file`,

	RunE: func(cmd *cobra.Command, args []string) error {
		return runImport(cmd, args)
	},
}

// =============================================================================
// INITIALIZATION
// =============================================================================

func init() {
	rootCmd.AddCommand(importCmd)

	f := importCmd.Flags()
	f.Bool("skip-duplicates", false, "Skip records that already exist")
	f.Bool("update-existing", false, "Update records that already exist")
	f.Bool("auto-create-coa", false, "Create placeholder chart-of-account entries for unknown cost codes")
	f.StringVar(&requestSheet, "request-sheet", "", "Name of the request sheet")
	f.StringVar(&budgetSheet, "budget-sheet", "", "Name of the budget sheet")
	f.StringVar(&inputDir, "input-dir", "", "Import every workbook in this directory")
	f.StringSliceVar(&reportFormats, "report-format", nil, "Report formats to write: json, csv, xlsx")
	f.BoolVar(&archive, "archive", false, "Move imported workbooks to the archive directory")
}

// importOptions applies the option flags set on the command line over the
// configured policy. A flag left unset keeps the configured value.
func importOptions(cmd *cobra.Command, opts types.ImportOptions) types.ImportOptions {
	flags := cmd.Flags()
	override := func(name string, dst *bool) {
		if flags.Changed(name) {
			*dst, _ = flags.GetBool(name)
		}
	}
	override("skip-duplicates", &opts.SkipDuplicates)
	override("update-existing", &opts.UpdateExisting)
	override("auto-create-coa", &opts.AutoCreateCOA)
	return opts
}

// =============================================================================
// MAIN PROCESSING FUNCTION
// =============================================================================

func runImport(cmd *cobra.Command, args []string) error {
	startTime := time.Now()
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	// =========================================================================
	// STEP 1: OPTIONS AND STORE
	// =========================================================================

	opts := importOptions(cmd, appConfig.ImportOptions())

	p, st, err := newPipeline(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	fm := utils.NewFileManager(appConfig.Output)
	if err := fm.EnsureDirectories(); err != nil {
		return err
	}

	// =========================================================================
	// STEP 2: COLLECT INPUT FILES
	// =========================================================================

	files := append([]string(nil), args...)
	if inputDir != "" {
		found, err := utils.DiscoverInputFiles(inputDir)
		if err != nil {
			return err
		}
		files = append(files, found...)
	}
	if len(files) == 0 {
		return errors.New("no input files: pass FILE arguments or --input-dir")
	}

	log.Info("Starting import",
		zap.Int("files", len(files)),
		zap.Bool("skip_duplicates", opts.SkipDuplicates),
		zap.Bool("update_existing", opts.UpdateExisting),
		zap.Bool("auto_create_coa", opts.AutoCreateCOA),
	)

	// =========================================================================
	// STEP 3: IMPORT EACH FILE
	// =========================================================================

	var (
		reported, rejected         int
		records, imported, skipped int
		invalid                    int
		firstErr                   error
	)

	for _, path := range files {
		if ctx.Err() != nil {
			fmt.Fprintf(out, "  - %s: not started (cancelled)\n", filepath.Base(path))
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			rejected++
			firstErr = keepFirst(firstErr, fmt.Errorf("failed to read %s: %w", path, err))
			fmt.Fprintf(out, "  ✗ %s: %v\n", filepath.Base(path), err)
			continue
		}

		rep, ierr := p.Import(ctx, pipeline.Input{
			FileName:     path,
			Data:         data,
			RequestSheet: requestSheet,
			BudgetSheet:  budgetSheet,
			Options:      &opts,
		})
		if rep == nil {
			// Infrastructure fault: the store is gone, later files would
			// fail the same way.
			return fmt.Errorf("%s: %w", path, ierr)
		}

		if _, err := writeReports(fm, path, rep.BatchID, rep); err != nil {
			return err
		}

		if ierr != nil {
			rejected++
			firstErr = keepFirst(firstErr, fmt.Errorf("%s: %w", path, ierr))
			fmt.Fprintf(out, "  ✗ %s: %s\n", filepath.Base(path), rep.Error)
			continue
		}

		reported++
		records += rep.TotalRecords
		imported += rep.ImportedRecords
		skipped += rep.SkippedRecords
		invalid += rep.InvalidRecords
		printFileResult(out, path, rep)

		if archive && rep.State == report.StateReported {
			dst, err := fm.ArchiveInputFile(path)
			if err != nil {
				log.Warn("Archival failed", zap.String("file", path), zap.Error(err))
				continue
			}
			log.Info("Archived input", zap.String("file", path), zap.String("archive", dst))
		}
	}

	// =========================================================================
	// STEP 4: PRINT SUMMARY
	// =========================================================================

	fmt.Fprintln(out, "\n=== Import Complete ===")
	fmt.Fprintf(out, "Files reported:   %d\n", reported)
	fmt.Fprintf(out, "Files rejected:   %d\n", rejected)
	fmt.Fprintf(out, "Requests:         %d\n", records)
	fmt.Fprintf(out, "Imported:         %d\n", imported)
	fmt.Fprintf(out, "Skipped:          %d\n", skipped)
	fmt.Fprintf(out, "Invalid:          %d\n", invalid)
	fmt.Fprintf(out, "Time elapsed:     %s\n", time.Since(startTime).Round(time.Millisecond))

	if ctx.Err() != nil {
		return ctx.Err()
	}
	return firstErr
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func printFileResult(out io.Writer, path string, rep *report.ImportReport) {
	fmt.Fprintf(out, "  ✓ %s: %d imported, %d skipped, %d invalid of %d\n",
		filepath.Base(path), rep.ImportedRecords, rep.SkippedRecords, rep.InvalidRecords, rep.TotalRecords)
	if b := rep.Budget; b != nil {
		fmt.Fprintf(out, "    budget: %d imported, %d updated, %d skipped, %d conflicts, %d invalid\n",
			b.Imported, b.Updated, b.Skipped, b.Conflicts, b.Invalid)
	}
	for _, code := range rep.CreatedCostCodes {
		fmt.Fprintf(out, "    created cost code %s\n", code)
	}
	errs, _ := issueLines(rep)
	printIssues(out, "    Errors", errs, 10)
}

func keepFirst(first, err error) error {
	if first != nil {
		return first
	}
	return err
}
