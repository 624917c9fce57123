package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"shellscribe/internal/api"
	"shellscribe/internal/channel"
	"shellscribe/internal/config"
	"shellscribe/internal/ingest"
	"shellscribe/internal/logging"
	"shellscribe/internal/query"
	"shellscribe/internal/store"
)

const version = "0.1.0"

var (
	verbose    bool
	configPath string

	logger *zap.Logger
	cfg    *config.Config
)

// rootCmd represents the base command.
var rootCmd = &cobra.Command{
	Use:   "shellscribe",
	Short: "shellscribe - shell session recorder and analyzer",
	Long: `shellscribe ingests records of interactive shell activity from session
files and live terminal connections, persists them, and serves analytical
queries: timelines, pattern mining, risk/complexity scoring, search, export.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = logging.New(verbose)
		if err != nil {
			return err
		}
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// serveCmd runs the daemon: watcher + live channel + HTTP API.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ingestion daemon and query API",
	RunE:  runServe,
}

// ingestCmd performs a one-shot ingest of a directory and exits.
var ingestCmd = &cobra.Command{
	Use:   "ingest [dir]",
	Short: "Ingest all session records from a directory once",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runIngest,
}

// sessionsCmd lists or exports stored sessions.
var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List stored sessions",
	RunE:  runSessions,
}

var exportCmd = &cobra.Command{
	Use:   "export [session-id]",
	Short: "Export one session as a plain-text transcript",
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show store-wide statistics",
	RunE:  runStats,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("shellscribe v%s\n", version)
	},
}

func main() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "shellscribe.yaml", "Path to configuration file")
	sessionsCmd.Flags().Int("limit", 20, "Maximum sessions to list")

	rootCmd.AddCommand(serveCmd, ingestCmd, sessionsCmd, exportCmd, statsCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// openStore opens the authoritative store and attaches the mirror when one
// is configured. A mirror connection failure only disables mirroring.
func openStore() (*store.Store, error) {
	st, err := store.Open(cfg.Store.DatabasePath, logger.Named("store"))
	if err != nil {
		return nil, err
	}
	if cfg.Store.MirrorDSN != "" {
		mirror, err := store.OpenMirror(cfg.Store.MirrorDSN)
		if err != nil {
			logger.Warn("mirror unavailable, continuing without it", zap.Error(err))
		} else {
			st.AttachMirror(mirror)
			logger.Info("mirror store attached")
		}
	}
	return st, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	runCtx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	watcher, err := ingest.NewWatcher(cfg.Ingest.WatchDir, st, cfg.Ingest.DebounceDur.Std(), logger.Named("ingest"))
	if err != nil {
		return err
	}
	if err := watcher.Start(runCtx); err != nil {
		return err
	}
	defer watcher.Stop()

	hub := channel.NewHub(st, channel.NewResponder(cfg.Terminal.Backend),
		cfg.Terminal.DefaultCols, cfg.Terminal.DefaultRows, logger.Named("channel"))

	server := api.NewServer(query.NewService(st), hub, logger.Named("api"))
	httpSrv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      server.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout.Std(),
		WriteTimeout: cfg.Server.WriteTimeout.Std(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("shellscribe API listening", zap.String("addr", httpSrv.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-sigCh:
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return httpSrv.Shutdown(shutdownCtx)
}

func runIngest(cmd *cobra.Command, args []string) error {
	dir := cfg.Ingest.WatchDir
	if len(args) > 0 {
		dir = args[0]
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	watcher, err := ingest.NewWatcher(dir, st, cfg.Ingest.DebounceDur.Std(), logger.Named("ingest"))
	if err != nil {
		return err
	}
	if err := watcher.Start(cmd.Context()); err != nil {
		return err
	}
	watcher.Stop()

	stats := watcher.Stats()
	fmt.Printf("Ingested %d records (%d parse errors)\n", stats.FilesIngested, stats.ParseErrors)
	return nil
}

func runSessions(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	sessions, err := query.NewService(st).ListSessions(limit)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("No sessions recorded.")
		return nil
	}
	for _, s := range sessions {
		fmt.Printf("%-40s  %s  %-9s  %3d commands  %s\n",
			s.ID, s.StartTime.Format("2006-01-02 15:04"), s.Source, s.CommandCount, s.UserName)
	}
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	transcript, err := query.NewService(st).ExportTranscript(args[0])
	if err != nil {
		return err
	}
	fmt.Print(transcript)
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	stats, err := query.NewService(st).Statistics()
	if err != nil {
		return err
	}
	fmt.Printf("Sessions: %d\nCommands: %d\nAvg commands/session: %.1f\n",
		stats.TotalSessions, stats.TotalCommands, stats.AvgCommandsPerSess)
	if len(stats.TopCommands) > 0 {
		fmt.Println("Top commands:")
		for _, entry := range stats.TopCommands {
			fmt.Printf("  %-20s %d\n", entry.Command, entry.Count)
		}
	}
	return nil
}
