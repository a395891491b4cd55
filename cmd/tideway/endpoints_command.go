package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"tideway/internal/api"
	"tideway/internal/apiclient"
	"tideway/internal/endpoints"
	"tideway/internal/logging"
	"tideway/internal/preflight"
)

func newEndpointsCommand(ctx *commandContext) *cobra.Command {
	var probe bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "endpoints",
		Short: "List mirror endpoints and learned preferences",
		Long: "List mirror endpoints in priority order with the operations each one is preferred for. " +
			"When the daemon is not running the endpoints file is read directly.",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, live, err := loadEndpoints(cmd, ctx)
			if err != nil {
				return err
			}

			var results []preflight.Result
			if probe {
				list := lo.Map(resp.Endpoints, func(v api.EndpointView, _ int) endpoints.Endpoint {
					return endpoints.Endpoint{Name: v.Name, URL: v.URL, Priority: v.Priority}
				})
				results = preflight.CheckMirrors(cmd.Context(), list)
			}

			if asJSON {
				if !probe {
					return writeJSON(cmd, resp)
				}
				return writeJSON(cmd, map[string]any{"endpoints": resp.Endpoints, "probes": probeViews(results)})
			}

			out := cmd.OutOrStdout()
			if !live {
				fmt.Fprintln(out, "Daemon not running; showing endpoints file")
			}
			printEndpoints(out, resp, results)
			return nil
		},
	}
	cmd.Flags().BoolVar(&probe, "probe", false, "Check that every mirror answers")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON output")
	return cmd
}

func loadEndpoints(cmd *cobra.Command, ctx *commandContext) (api.EndpointsResponse, bool, error) {
	client, err := ctx.newClient()
	if err == nil {
		resp, err := client.Endpoints(cmd.Context())
		if err == nil {
			return resp, true, nil
		}
		if !apiclient.IsUnavailable(err) {
			return api.EndpointsResponse{}, false, err
		}
	}
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return api.EndpointsResponse{}, false, err
	}
	list := endpoints.Load(cfg.Paths.EndpointsFile, logging.NewNop())
	return api.FromEndpoints(list, nil), false, nil
}

func printEndpoints(out io.Writer, resp api.EndpointsResponse, probes []preflight.Result) {
	if len(resp.Endpoints) == 0 {
		fmt.Fprintln(out, "No endpoints configured")
		return
	}
	headers := []string{"Name", "URL", "Priority", "Preferred For"}
	aligns := []columnAlignment{alignLeft, alignLeft, alignRight, alignLeft}
	if len(probes) > 0 {
		headers = append(headers, "Probe")
		aligns = append(aligns, alignLeft)
	}
	rows := make([][]string, 0, len(resp.Endpoints))
	for i, view := range resp.Endpoints {
		row := []string{view.Name, view.URL, strconv.Itoa(view.Priority), orDash(strings.Join(view.PreferredFor, ", "))}
		if i < len(probes) {
			status := "FAIL"
			if probes[i].Passed {
				status = "OK"
			}
			row = append(row, fmt.Sprintf("%s %s", status, probes[i].Detail))
		}
		rows = append(rows, row)
	}
	fmt.Fprint(out, renderTable(headers, rows, aligns))
}

type probeView struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

func probeViews(results []preflight.Result) []probeView {
	return lo.Map(results, func(r preflight.Result, _ int) probeView {
		return probeView{Name: r.Name, Passed: r.Passed, Detail: r.Detail}
	})
}
