package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rmEncoding string

var rmCmd = &cobra.Command{
	Use:   "rm [file_id]",
	Short: "Remove a file record and its cache areas",
	Long: `Without flags, drop the registry record and every cache area of the file.
With --encoding, keep the record and only drop that encoding's cache areas
(all chunk-size variants); subsequent requests re-encode lazily.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if rmEncoding != "" {
			if err := CV.Chunks.ClearEncoding(cmd.Context(), args[0], rmEncoding); err != nil {
				return err
			}
			fmt.Printf("🗑️  Cleared %s cache areas of %s\n", rmEncoding, args[0])
			return nil
		}

		if err := CV.Chunks.RemoveFile(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("🗑️  Removed %s (registry record + cache areas)\n", args[0])
		return nil
	},
}

func init() {
	rmCmd.Flags().StringVarP(&rmEncoding, "encoding", "e", "", "only clear this encoding's cache")
	rootCmd.AddCommand(rmCmd)
}
