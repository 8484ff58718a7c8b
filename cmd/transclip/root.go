package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/adrg/xdg"
	charm "github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"transclip/internal/export"
	"transclip/internal/server"
	"transclip/internal/service"
	"transclip/internal/storage"
	"transclip/internal/storage/migrate"
	"transclip/internal/storage/sqlite"
)

var rootCmd = &cobra.Command{
	Use:   "transclip",
	Short: "Clipboard history daemon with a content-addressed store",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := viper.BindPFlags(cmd.Flags()); err != nil {
			return err
		}

		level := charm.InfoLevel - charm.Level(viper.GetInt("verbose")*4)
		handler := charm.NewWithOptions(os.Stderr, charm.Options{
			Level:           level,
			ReportTimestamp: true,
		})
		slog.SetDefault(slog.New(handler))
		return nil
	},
	RunE: runDaemon,
}

var exportCmd = &cobra.Command{
	Use:   "export <dir>",
	Short: "Export the clipping history as markdown notes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		exporter, err := export.NewExporter(store, args[0])
		if err != nil {
			return err
		}
		return exporter.Export(cmd.Context())
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a running transclip daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		pidFile, err := server.NewPIDFile(dataDir())
		if err != nil {
			return err
		}
		pid, err := pidFile.Read()
		if err != nil {
			return err
		}
		if pid == 0 || !server.IsRunning(pid) {
			slog.Info("no running daemon found")
			return pidFile.Remove()
		}
		if err := server.Terminate(pid); err != nil {
			return err
		}
		slog.Info("daemon stopped", "pid", pid)
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("db", "", "database path (default: <data-dir>/transclip.db)")
	pf.String("blobs", "", "blob directory (default: <data-dir>/blobs)")
	pf.String("addr", "localhost:7635", "HTTP listen address")
	pf.CountP("verbose", "v", "increase log verbosity")

	rootCmd.Flags().String("export-dir", "", "export markdown notes to this directory while running")
	rootCmd.Flags().Duration("export-interval", 5*time.Minute, "how often to re-export notes")

	viper.SetEnvPrefix("transclip")
	viper.AutomaticEnv()

	rootCmd.AddCommand(stopCmd, exportCmd)
}

func dataDir() string {
	return filepath.Join(xdg.DataHome, "transclip")
}

func openStore() (*sqlite.Store, error) {
	dir := dataDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := viper.GetString("db")
	if dbPath == "" {
		dbPath = filepath.Join(dir, "transclip.db")
	}
	blobDir := viper.GetString("blobs")
	if blobDir == "" {
		blobDir = filepath.Join(dir, "blobs")
	}

	// Migration failure is fatal: running against a half-migrated store
	// is worse than not starting.
	store, err := sqlite.Open(storage.Config{
		DBPath:  dbPath,
		BlobDir: blobDir,
	}, migrate.Plans()...)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return store, nil
}

func runDaemon(cmd *cobra.Command, args []string) error {
	pidFile, err := server.NewPIDFile(dataDir())
	if err != nil {
		return err
	}
	if pid, err := pidFile.Read(); err == nil && pid != 0 && server.IsRunning(pid) {
		return fmt.Errorf("daemon already running with pid %d", pid)
	}
	if err := pidFile.Write(); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	defer pidFile.Remove()

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	clipService := service.New(store)
	srv := server.New(clipService, server.Config{Addr: viper.GetString("addr")})
	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if exportDir := viper.GetString("export-dir"); exportDir != "" {
		exporter, err := export.NewExporter(store, exportDir)
		if err != nil {
			return err
		}
		exportSvc, err := export.NewService(exporter, viper.GetDuration("export-interval"))
		if err != nil {
			return err
		}
		exportSvc.Start(ctx)
		defer exportSvc.Stop()
	}

	slog.Info("transclip started", "addr", viper.GetString("addr"))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	slog.Info("shutting down")
	if err := srv.Stop(); err != nil {
		slog.Error("error stopping server", "error", err)
	}
	return nil
}
