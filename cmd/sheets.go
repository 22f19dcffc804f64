package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// sheetsCmd lists the sheets of a workbook so the caller can pick the
// request and budget sheets.
var sheetsCmd = &cobra.Command{
	Use:   "sheets FILE",
	Short: "List the sheets of a workbook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[0], err)
		}

		p, st, err := newPipeline(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		names, err := p.ListSheets(args[0], data)
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sheetsCmd)
}
