package cli

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func Main() {
	_ = godotenv.Load() // best-effort: load .env if present

	root := &cobra.Command{
		Use:          "smartclip <input>",
		Short:        "Cut social-ready clips from a local video",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args[0])
		},
	}

	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)
	root.SilenceErrors = true

	// Visible flags
	root.Flags().String("out", "out", "Output directory")
	root.Flags().Int("clips", 5, "Maximum number of clips")
	root.Flags().String("aspect", "9:16", "Output aspect ratio (9:16, 1:1, 16:9)")
	root.Flags().String("style", "default", "Caption style preset")
	root.Flags().String("styles", "", "YAML file with custom caption style presets")
	root.Flags().Bool("no-captions", false, "Skip caption burn-in")
	root.Flags().String("language", "", "Caption language hint (e.g. en)")
	root.Flags().Int("min", 15, "Min clip duration seconds")
	root.Flags().Int("max", 90, "Max clip duration seconds")

	// Hidden tuning flags (internal)
	root.Flags().Float64("window", 0, "Analysis window seconds")
	root.Flags().Float64("overlap", 0, "Analysis window overlap seconds")
	_ = root.Flags().MarkHidden("window")
	_ = root.Flags().MarkHidden("overlap")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
