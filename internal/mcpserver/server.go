// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes cfgswap tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/cfgswap/internal/apperr"
	"github.com/starford/cfgswap/internal/engine"
	"github.com/starford/cfgswap/internal/models"
	"github.com/starford/cfgswap/internal/profileservice"
)

// Server wraps the MCP server with cfgswap tools.
type Server struct {
	mcp    *server.MCPServer
	svc    *profileservice.Service
	logger *slog.Logger
}

// New creates a new MCP server with all cfgswap tools registered.
func New(svc *profileservice.Service, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{svc: svc, logger: logger}

	s.mcp = server.NewMCPServer(
		"cfgswap",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_profiles",
		mcp.WithDescription("List stored settings profiles. Content is omitted; secrets are masked."),
		mcp.WithString("query", mcp.Description("Optional case-insensitive substring of name or content")),
	), s.listProfiles)

	s.mcp.AddTool(mcp.NewTool("get_status",
		mcp.WithDescription("Report the target settings file and which profile it currently matches."),
	), s.getStatus)

	s.mcp.AddTool(mcp.NewTool("apply_profile",
		mcp.WithDescription("Install a profile into the target settings file. "+
			"The current file is backed up first. Read the format via the "+
			"cfgswap://profile-format resource before creating profiles."),
		mcp.WithString("profile", mcp.Required(), mcp.Description("Profile id or name")),
		mcp.WithBoolean("dry_run", mcp.Description("Only report whether the target would change")),
	), s.applyProfile)

	s.mcp.AddTool(mcp.NewTool("list_backups",
		mcp.WithDescription("List backups of the target settings file, newest first."),
	), s.listBackups)

	s.mcp.AddResource(
		mcp.NewResource(ProfileFormatURI, "Profile Format",
			mcp.WithResourceDescription("What a settings profile must contain and how matching works."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readProfileFormat,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) listProfiles(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var (
		items []models.Profile
		err   error
	)
	if q := req.GetString("query", ""); q != "" {
		items, err = s.svc.Search(ctx, q)
	} else {
		items, err = s.svc.List(ctx)
	}
	if err != nil {
		return s.toolError("list_profiles", err), nil
	}
	if items == nil {
		items = []models.Profile{}
	}
	return jsonResult(items)
}

func (s *Server) getStatus(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := s.svc.Status(ctx)
	if err != nil {
		return s.toolError("get_status", err), nil
	}
	return jsonResult(st)
}

func (s *Server) applyProfile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, err := req.RequireString("profile")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.Apply(ctx, ref, engine.ApplyOptions{DryRun: req.GetBool("dry_run", false)})
	if err != nil {
		return s.toolError("apply_profile", err), nil
	}
	return jsonResult(res)
}

func (s *Server) listBackups(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	list, err := s.svc.Backups(ctx)
	if err != nil {
		return s.toolError("list_backups", err), nil
	}
	if list == nil {
		list = []models.BackupRecord{}
	}
	return jsonResult(list)
}

func (s *Server) readProfileFormat(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      ProfileFormatURI,
			MIMEType: "text/markdown",
			Text:     ProfileFormat,
		},
	}, nil
}

// toolError reports err to the caller as a tool failure. Client errors are
// returned verbatim; anything else is logged.
func (s *Server) toolError(tool string, err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return mcp.NewToolResultError(fmt.Sprintf("not found: %v", err))
	case errors.Is(err, apperr.ErrFileLocked):
		return mcp.NewToolResultError("target file is locked by another operation, retry later")
	case errors.Is(err, apperr.ErrInvalidInput), errors.Is(err, apperr.ErrInvalidName):
		return mcp.NewToolResultError(err.Error())
	}
	s.logger.Error("mcp tool failed", slog.String("tool", tool), slog.String("error", err.Error()))
	return mcp.NewToolResultError(err.Error())
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcpserver: encode result: %w", err)
	}
	return mcp.NewToolResultText(string(out)), nil
}
