package cli

import (
	"github.com/spf13/cobra"

	"yutai-ranker/internal/app"
)

var (
	classifyCode   string
	classifyFormat string
)

var classifyCmd = &cobra.Command{
	Use:   "classify [text...]",
	Short: "Normalize benefit descriptions given as arguments or on stdin",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Classify(cmd.Context(), app.ClassifyOptions{
			Code:   classifyCode,
			Texts:  args,
			In:     cmd.InOrStdin(),
			Format: classifyFormat,
			Out:    cmd.OutOrStdout(),
		})
	},
}

func init() {
	classifyCmd.Flags().StringVar(&classifyCode, "code", "", "Code attached to the records")
	classifyCmd.Flags().StringVar(&classifyFormat, "format", "table", "Output format: table or json")
}
