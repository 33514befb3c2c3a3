package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var (
	breakersAddr   string
	breakersOutput string
)

var breakersCmd = &cobra.Command{
	Use:   "breakers",
	Short: "Print circuit breaker states from a running server",
	Long:  "Circuit state lives in the serving process, so this queries GET /v1/breakers on a running `serve` instance.",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr := breakersAddr
		if addr == "" {
			addr = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		views, err := fetchBreakers(ctx, http.DefaultClient, addr)
		if err != nil {
			return err
		}
		if breakersOutput != "table" {
			return writeOutput(cmd.OutOrStdout(), breakersOutput, views)
		}
		return printBreakers(cmd.OutOrStdout(), views)
	},
}

func fetchBreakers(ctx context.Context, hc *http.Client, addr string) ([]breakerView, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr+"/v1/breakers", nil)
	if err != nil {
		return nil, eris.Wrap(err, "breakers: create request")
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "breakers: query %s", addr)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, eris.Errorf("breakers: %s returned %d: %s", addr, resp.StatusCode, body)
	}

	var out struct {
		Providers []breakerView `json:"providers"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, eris.Wrap(err, "breakers: decode response")
	}
	return out.Providers, nil
}

func printBreakers(w io.Writer, views []breakerView) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PROVIDER\tAVAILABLE\tSTATE\tFAILURES\tLAST FAILURE") //nolint:errcheck
	for _, v := range views {
		last := "-"
		if v.State.LastFailureAt != nil {
			last = v.State.LastFailureAt.Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%t\t%s\t%d\t%s\n", //nolint:errcheck
			v.Provider, v.Available, v.State.Status, v.State.ConsecutiveFailures, last)
	}
	return tw.Flush()
}

func init() {
	breakersCmd.Flags().StringVar(&breakersAddr, "addr", "", "server base URL (default http://localhost:<server.port>)")
	breakersCmd.Flags().StringVarP(&breakersOutput, "output", "o", "table", "output format: table, json or yaml")
	rootCmd.AddCommand(breakersCmd)
}
