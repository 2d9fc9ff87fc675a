package commands

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	chunkEncoding  string
	chunkChunkSize int64
	chunkIndex     int64
)

var chunkCmd = &cobra.Command{
	Use:   "chunk [file_id]",
	Short: "Print one encoded chunk to stdout",
	Long: `Fetch (lazily encoding if needed) a single chunk and write the encoded
text to stdout. Useful for piping into files or diffing against other tools.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		chunk, err := CV.Chunks.GetChunk(cmd.Context(), args[0], chunkIndex, chunkEncoding, chunkChunkSize)
		if err != nil {
			return err
		}

		// 编码文本直接写 stdout，重定向即可落盘
		_, err = os.Stdout.Write(chunk.Data)
		return err
	},
}

func init() {
	chunkCmd.Flags().StringVarP(&chunkEncoding, "encoding", "e", "base64", "encoding name")
	chunkCmd.Flags().Int64VarP(&chunkChunkSize, "chunk-size", "s", 1<<20, "target encoded chunk size")
	chunkCmd.Flags().Int64VarP(&chunkIndex, "index", "i", 0, "chunk index (0-based)")
	rootCmd.AddCommand(chunkCmd)
}
