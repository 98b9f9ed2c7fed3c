package mcp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog/log"

	"github.com/dshills/jobfeat/internal/batch"
	"github.com/dshills/jobfeat/internal/config"
	"github.com/dshills/jobfeat/internal/storage"
)

const (
	// ServerName is the MCP server name
	ServerName = "jobfeat"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp     *server.MCPServer
	config  *config.Configuration
	storage storage.Storage
	batch   *batch.Batch
}

// NewServer creates a new MCP server backed by the configuration's job
// database
func NewServer(cfg *config.Configuration) (*Server, error) {
	dbPath := cfg.DBPath()

	// Create directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	return newServer(cfg, store), nil
}

func newServer(cfg *config.Configuration, store storage.Storage) *Server {
	s := &Server{
		mcp:     server.NewMCPServer(ServerName, ServerVersion),
		config:  cfg,
		storage: store,
		batch:   batch.New(cfg, store),
	}
	s.registerTools()
	return s
}

// Serve starts the MCP server on stdio and blocks until shutdown
func (s *Server) Serve(ctx context.Context) error {
	defer func() { _ = s.storage.Close() }()
	log.Ctx(ctx).Info().Strs("jobs", s.config.JobNames()).Msg("serving MCP on stdio")
	return server.ServeStdio(s.mcp)
}

// Close releases the job database
func (s *Server) Close() error {
	return s.storage.Close()
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(parseCommandTool(), s.handleParseCommand)
	s.mcp.AddTool(explainCommandTool(), s.handleExplainCommand)
	s.mcp.AddTool(recordJobTool(), s.handleRecordJob)
	s.mcp.AddTool(recordBatchTool(), s.handleRecordBatch)
	s.mcp.AddTool(listJobsTool(), s.handleListJobs)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
}
