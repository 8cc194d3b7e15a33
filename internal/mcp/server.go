// Package mcp provides an MCP (Model Context Protocol) server for labkit.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/nvandessel/labkit/internal/experiment"
	"github.com/nvandessel/labkit/internal/logging"
	"github.com/nvandessel/labkit/internal/ratelimit"
)

// Server wraps the MCP SDK server and exposes a Workbench as lab_* tools.
type Server struct {
	server       *sdk.Server
	wb           *experiment.Workbench
	logger       *slog.Logger
	auditLogger  *AuditLogger
	archiveDirs  []string
	toolLimiters ratelimit.ToolLimiters
}

// Config holds server configuration.
type Config struct {
	Name      string // Server name (e.g., "labkit")
	Version   string // Server version
	Workbench *experiment.Workbench
	AuditDir  string // Directory for audit.jsonl; empty disables auditing
	Logger    *slog.Logger

	// ArchiveDirs confines lab_import and lab_export paths. Relative paths
	// resolve against the first entry. Empty allows any path.
	ArchiveDirs []string
}

// NewServer creates a new MCP server with labkit tools.
func NewServer(cfg *Config) (*Server, error) {
	if cfg.Workbench == nil {
		return nil, fmt.Errorf("mcp server requires a workbench")
	}

	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)

	s := &Server{
		server:       mcpServer,
		wb:           cfg.Workbench,
		logger:       logging.OrDiscard(cfg.Logger),
		archiveDirs:  cfg.ArchiveDirs,
		toolLimiters: ratelimit.NewToolLimiters(),
	}
	if cfg.AuditDir != "" {
		s.auditLogger = NewAuditLogger(cfg.AuditDir)
	}

	s.registerTools()
	s.registerResources()

	return s, nil
}

// Run starts the MCP server over stdio transport.
// This blocks until the client disconnects or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.serve(ctx, &sdk.StdioTransport{})
}

// serve runs the server on transport until it ends or one of
// shutdownSignals arrives. Open experiments are saved either way.
func (s *Server) serve(ctx context.Context, transport sdk.Transport) error {
	ctx, stop := signal.NotifyContext(ctx, shutdownSignals...)
	defer stop()

	err := s.server.Run(ctx, transport)
	if errors.Is(err, context.Canceled) {
		s.logger.Info("mcp server stopping", "open", len(s.wb.OpenNames()))
		err = nil
	}
	return errors.Join(err, s.Close())
}

// Close saves and closes every experiment still open, then closes the audit
// log. The workbench's library is left to its owner.
func (s *Server) Close() error {
	ctx := context.Background()
	var errs []error
	for _, name := range s.wb.OpenNames() {
		e, ok := s.wb.Active(name)
		if !ok {
			continue
		}
		if err := s.wb.Close(ctx, e, true); err != nil {
			s.logger.Warn("closing experiment on shutdown", "experiment", name, "error", err)
			errs = append(errs, fmt.Errorf("closing %s: %w", name, err))
		}
	}
	if err := s.auditLogger.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
