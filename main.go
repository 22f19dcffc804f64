// =============================================================================
// PRF Budget Import - Main Entry Point
// =============================================================================
//
// USAGE:
//   prfimport sheets FILE      - List the sheets of a workbook
//   prfimport validate FILE    - Validate a workbook without importing it
//   prfimport import FILE...   - Import purchase requests and budget rows
//   prfimport serve            - Serve the upload API over HTTP
//   prfimport version          - Display the application version
//
// ARCHITECTURE:
//   - cmd/       : CLI command definitions (Cobra)
//   - internal/  : pipeline stages, store, report, HTTP API
//   - pkg/       : file handling shared by the commands
//
// =============================================================================

package main

import (
	"github.com/ginjaninja78/prf-budget-import/cmd"
)

func main() {
	cmd.Execute()
}
