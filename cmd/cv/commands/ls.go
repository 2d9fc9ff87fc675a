package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var lsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List registered files",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		records, err := CV.Registry.List(cmd.Context())
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("(registry is empty — run 'cv scan' first)")
			return nil
		}
		for _, rec := range records {
			fmt.Printf("%s  %10d  %s\n", rec.FileID[:12], rec.SizeBytes, rec.Filename)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(lsCmd)
}
