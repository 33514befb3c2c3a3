package main

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/company-search/internal/provider"
)

var (
	searchIndustries   []string
	searchRegions      []string
	searchMinEmployees int
	searchMaxEmployees int
	searchLimit        int
	searchFloor        float64
	outputFormat       string
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search every configured provider and print consolidated companies",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("floor") {
			cfg.Search.RelevanceFloor = searchFloor
		}

		env, err := initApp(cmd.Context(), cfg, "search")
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Search.Run(cmd.Context(), provider.Query{
			Text:    strings.Join(args, " "),
			Filters: filtersFromFlags(),
		})
		if err != nil {
			return err
		}
		return writeOutput(cmd.OutOrStdout(), outputFormat, res)
	},
}

var similarCmd = &cobra.Command{
	Use:   "similar <domain>",
	Short: "Find companies similar to the one at domain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initApp(cmd.Context(), cfg, "search")
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Search.Similar(cmd.Context(), args[0], filtersFromFlags())
		if err != nil {
			return err
		}
		return writeOutput(cmd.OutOrStdout(), outputFormat, res)
	},
}

func filtersFromFlags() provider.Filters {
	return provider.Filters{
		Industries:   searchIndustries,
		Regions:      searchRegions,
		MinEmployees: searchMinEmployees,
		MaxEmployees: searchMaxEmployees,
		Limit:        searchLimit,
	}
}

// writeOutput renders v as indented JSON or YAML.
func writeOutput(w io.Writer, format string, v any) error {
	switch format {
	case "", "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(v), "encode json")
	case "yaml":
		// Round-trip through JSON so yaml keys follow the json tags.
		raw, err := json.Marshal(v)
		if err != nil {
			return eris.Wrap(err, "encode json")
		}
		var generic any
		if err := yaml.Unmarshal(raw, &generic); err != nil {
			return eris.Wrap(err, "decode json as yaml")
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(generic); err != nil {
			return eris.Wrap(err, "encode yaml")
		}
		return eris.Wrap(enc.Close(), "flush yaml")
	default:
		return eris.Errorf("unknown output format %q (want json or yaml)", format)
	}
}

func addFilterFlags(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&searchIndustries, "industry", nil, "industry filter (repeatable)")
	cmd.Flags().StringSliceVar(&searchRegions, "region", nil, "region or state filter (repeatable)")
	cmd.Flags().IntVar(&searchMinEmployees, "min-employees", 0, "minimum employee count")
	cmd.Flags().IntVar(&searchMaxEmployees, "max-employees", 0, "maximum employee count")
	cmd.Flags().IntVar(&searchLimit, "limit", 0, "maximum results per provider (default from config)")
	cmd.Flags().StringVarP(&outputFormat, "output", "o", "json", "output format: json or yaml")
}

func init() {
	addFilterFlags(searchCmd)
	searchCmd.Flags().Float64Var(&searchFloor, "floor", 0, "relevance floor (default from config)")
	addFilterFlags(similarCmd)

	rootCmd.AddCommand(searchCmd, similarCmd)
}
