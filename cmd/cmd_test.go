package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/ginjaninja78/prf-budget-import/internal/types"
)

func TestImportCommand(t *testing.T) {
	dir := t.TempDir()

	input := filepath.Join(dir, "prf_march.csv")
	require.NoError(t, os.WriteFile(input, []byte(
		"PRF No,Date,Requested By,Purpose,Cost Code,Amount,Item,Qty,Unit Price\n"+
			"PRF-100,2024-03-01,A.Doe,Laptop,OPS-01,1500,LAPTOP-X,1,1500\n"), 0644))

	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(fmt.Sprintf(
		"logging:\n  level: error\noutput:\n  report_dir: %s\n  archive_dir: %s\n",
		filepath.Join(dir, "reports"), filepath.Join(dir, "archive"))), 0644))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{
		"import", input,
		"--config", cfgPath,
		"--auto-create-coa",
		"--report-format", "json,csv",
		"--archive",
	})
	require.NoError(t, rootCmd.ExecuteContext(context.Background()))

	assert.Contains(t, out.String(), "prf_march.csv: 1 imported, 0 skipped, 0 invalid of 1")
	assert.Contains(t, out.String(), "created cost code OPS-01")

	jsonReports, err := filepath.Glob(filepath.Join(dir, "reports", "prf_march_*.json"))
	require.NoError(t, err)
	assert.Len(t, jsonReports, 1)
	csvReports, err := filepath.Glob(filepath.Join(dir, "reports", "prf_march_*.csv"))
	require.NoError(t, err)
	assert.Len(t, csvReports, 1)

	assert.FileExists(t, filepath.Join(dir, "archive", "prf_march.csv"))
	assert.NoFileExists(t, input)
}

func TestImportOptions_FlagsOverrideConfig(t *testing.T) {
	parse := func(args ...string) *cobra.Command {
		c := &cobra.Command{Use: "import"}
		c.Flags().Bool("skip-duplicates", false, "")
		c.Flags().Bool("update-existing", false, "")
		c.Flags().Bool("auto-create-coa", false, "")
		require.NoError(t, c.Flags().Parse(args))
		return c
	}
	configured := types.ImportOptions{SkipDuplicates: true, AutoCreateCOA: true}

	tests := []struct {
		name string
		args []string
		want types.ImportOptions
	}{
		{"unset_keeps_config", nil, configured},
		{"turn_off", []string{"--skip-duplicates=false"}, types.ImportOptions{AutoCreateCOA: true}},
		{"turn_on", []string{"--update-existing"}, types.ImportOptions{SkipDuplicates: true, UpdateExisting: true, AutoCreateCOA: true}},
		{"both_ways", []string{"--auto-create-coa=false", "--update-existing=true"}, types.ImportOptions{SkipDuplicates: true, UpdateExisting: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, importOptions(parse(tt.args...), configured))
		})
	}
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "Version:    "+Version)
}
