package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dshills/jobfeat/internal/config"
	"github.com/dshills/jobfeat/internal/logger"
	"github.com/dshills/jobfeat/internal/storage"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

// app holds state shared by every subcommand
type app struct {
	configPath string
	logLevel   string
	cfg        *config.Configuration
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:          "jobfeat",
		Short:        "Extract resource-model features from scheduler job commands",
		Version:      versionString(),
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()

			// stdout is reserved for results and the MCP protocol
			logger.Configure(cmd.ErrOrStderr())
			if a.logLevel != "" {
				zerolog.SetGlobalLevel(logger.ParseLevel(a.logLevel))
			}

			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			a.cfg = cfg
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "",
		fmt.Sprintf("configuration file (default $%s or %s)", config.EnvConfigPath, config.DefaultConfigFile))
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "",
		fmt.Sprintf("log level, overrides $%s", logger.EnvLevel))

	root.AddCommand(
		newParseCmd(a),
		newExplainCmd(a),
		newRecordCmd(a),
		newBatchCmd(a),
		newPrintCmd(a),
		newServeCmd(a),
	)
	return root
}

func versionString() string {
	return fmt.Sprintf("%s (built %s, sqlite %s/%s)", version, buildTime, storage.BuildMode, storage.DriverName)
}

// openStorage opens the job database, creating its directory when needed
func (a *app) openStorage() (*storage.SQLiteStorage, error) {
	dbPath := a.cfg.DBPath()
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("path", dbPath).Msg("opened job database")
	return store, nil
}

// writeJSON writes v as indented JSON followed by a newline
func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
