package main

import (
	"github.com/spf13/cobra"
)

var (
	summarizeList   bool
	summarizeOutput string
)

var summarizeCmd = &cobra.Command{
	Use:   "summarize [domain...]",
	Short: "Generate cached company summaries",
	Long:  "Writes a short profile of each company domain with Anthropic, reading the company's site through Jina when it is configured. With --list, prints every cached summary instead.",
	RunE: func(cmd *cobra.Command, args []string) error {
		mode := "summarize"
		if summarizeList {
			mode = "cache"
		} else if len(args) == 0 {
			return cmd.Usage()
		}

		env, err := initApp(cmd.Context(), cfg, mode)
		if err != nil {
			return err
		}
		defer env.Close()

		if summarizeList {
			return writeOutput(cmd.OutOrStdout(), summarizeOutput, env.Summaries.Cached(cmd.Context()))
		}

		for _, d := range args {
			s, err := env.Summaries.Summarize(cmd.Context(), d)
			if err != nil {
				return err
			}
			if err := writeOutput(cmd.OutOrStdout(), summarizeOutput, s); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	summarizeCmd.Flags().BoolVar(&summarizeList, "list", false, "list cached summaries")
	summarizeCmd.Flags().StringVarP(&summarizeOutput, "output", "o", "json", "output format: json or yaml")
	rootCmd.AddCommand(summarizeCmd)
}
