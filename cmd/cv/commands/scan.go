package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var scanCmd = &cobra.Command{
	Use:   "scan [dir]",
	Short: "Scan a directory and rebuild the file registry",
	Long: `Walk the input directory (honoring .cvignore rules), register every
regular file, and prune records whose file vanished. Unchanged files keep
their file_id, so existing cache areas re-attach automatically.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := CV.InputDir
		if len(args) == 1 {
			dir = args[0]
		}

		records, err := CV.Chunks.ScanInput(cmd.Context(), dir)
		if err != nil {
			return fmt.Errorf("scan failed: %w", err)
		}

		fmt.Printf("📂 Registered %d file(s) from %s\n", len(records), dir)
		for _, rec := range records {
			fmt.Printf("  %s  %10d  %s\n", rec.FileID[:12], rec.SizeBytes, rec.Filename)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
}
