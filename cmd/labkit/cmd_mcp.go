package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nvandessel/labkit/internal/mcp"
	"github.com/nvandessel/labkit/internal/pathutil"
	"github.com/spf13/cobra"
)

func newMCPServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp-server",
		Short: "Run labkit as an MCP server over stdio",
		Long: `Expose the workbench to AI tools as lab_* MCP tools over stdio.

Experiments left open when the client disconnects are saved. lab_import and
lab_export only touch files under <root>/exports and any --allow-dir; relative
paths resolve against <root>/exports. Tool calls are recorded in
<root>/audit.jsonl. When metrics.addr is set, Prometheus metrics are served
at http://<addr>/metrics while the server runs.

Example MCP client configuration:
  {"command": "labkit", "args": ["mcp-server"]}`,
		RunE: func(cmd *cobra.Command, args []string) error {
			allowDirs, _ := cmd.Flags().GetStringSlice("allow-dir")

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			server, err := mcp.NewServer(&mcp.Config{
				Name:        "labkit",
				Version:     version,
				Workbench:   a.wb,
				AuditDir:    a.root,
				Logger:      a.logger,
				ArchiveDirs: pathutil.ArchiveDirs(a.root, allowDirs...),
			})
			if err != nil {
				return fmt.Errorf("failed to create MCP server: %w", err)
			}

			if addr := a.cfg.Metrics.Addr; addr != "" {
				stop := a.serveMetrics(addr)
				defer stop()
			}

			return server.Run(cmd.Context())
		},
	}

	cmd.Flags().StringSlice("allow-dir", nil, "Extra directory lab_import and lab_export may use (repeatable)")

	return cmd
}

// serveMetrics serves /metrics on addr in the background and returns a
// function that shuts the listener down.
func (a *app) serveMetrics(addr string) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Warn("metrics listener stopped", "addr", addr, "error", err)
		}
	}()
	a.logger.Info("serving metrics", "addr", addr)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
