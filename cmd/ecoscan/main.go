package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/adrg/xdg"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/peterbourgon/ff/v4/ffyaml"
	"golang.org/x/sync/errgroup"

	"github.com/zombor/ecoscan/internal/acquire"
	"github.com/zombor/ecoscan/internal/history"
	"github.com/zombor/ecoscan/internal/upload"
	"github.com/zombor/ecoscan/internal/view"
	"github.com/zombor/ecoscan/internal/web"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("ecoscan")
	var (
		port           = fs.IntLong("port", 8080, "HTTP server port")
		username       = fs.StringLong("username", "", "Classification service username")
		password       = fs.StringLong("password", "", "Classification service password")
		endpoint       = fs.StringLong("endpoint-base-url", "", "Classification service base URL (uploads go to <url>/upload)")
		historyBackend = fs.StringLong("history-backend", "bolt", "History storage: 'bolt', 'sqlite' or 'file'")
		historyPath    = fs.StringLong("history-path", "", "History database file or directory (default under the XDG data dir)")
		historyCap     = fs.IntLong("history-cap", history.DefaultCap, "Maximum scans kept in history (0 keeps everything)")
		cameraCommand  = fs.StringLong("camera-command", "", "Command printing one JPEG or PNG frame to stdout; {facing} is replaced by user or environment")
		authUser       = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass       = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		logLevel       = fs.StringLong("log-level", "info", "Log level: debug, info, warn or error")
		logJSON        = fs.BoolLong("log-json", "Log as JSON")
		_              = fs.StringLong("config", "", "YAML config file (optional)")
		showVersion    = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("ECOSCAN"),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ffyaml.Parse),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := setupLogging(*logLevel, *logJSON); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *endpoint == "" {
		slog.Error("Classification service URL is required. Set --endpoint-base-url flag or ECOSCAN_ENDPOINT_BASE_URL environment variable")
		os.Exit(1)
	}

	path := *historyPath
	if path == "" {
		var err error
		path, err = defaultHistoryPath(*historyBackend)
		if err != nil {
			slog.Error("Failed to resolve history path", "error", err)
			os.Exit(1)
		}
	}

	// Initialize history
	slog.Info("Opening history...", "backend", *historyBackend, "path", path)
	storage, err := history.OpenStorage(*historyBackend, path)
	if err != nil {
		slog.Error("Failed to open history storage", "error", err)
		os.Exit(1)
	}
	defer storage.Close()

	store := history.Open(storage, history.Options{Cap: *historyCap})
	defer store.Close()
	slog.Info("History loaded", "scans", store.Len())

	// Initialize camera
	var device acquire.Device = acquire.NoDevice{}
	if *cameraCommand != "" {
		cmd, err := acquire.NewCommandDevice(*cameraCommand)
		if err != nil {
			slog.Error("Invalid camera command", "error", err)
			os.Exit(1)
		}
		slog.Info("Camera enabled", "command", cmd.Path)
		device = cmd
	}

	client := upload.NewClient(*endpoint, upload.Credentials{
		Username: *username,
		Password: *password,
	})
	session := view.NewSession(client, store, acquire.NewCamera(device), view.NewDecorator(nil))
	defer session.Close()

	// Initialize server
	basicAuth := web.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := web.NewServer(session, store, basicAuth)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := fmt.Sprintf(":%d", *port)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(ctx, addr)
	})

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "endpoint", *endpoint)
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	if err := g.Wait(); err != nil {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	slog.Info("Shutting down...")
}

// defaultHistoryPath places history under $XDG_DATA_HOME/ecoscan
func defaultHistoryPath(backend string) (string, error) {
	name := "history.db"
	switch backend {
	case "sqlite":
		name = "history.sqlite"
	case "file":
		name = "history"
	}
	path, err := xdg.DataFile(filepath.Join("ecoscan", name))
	if err != nil {
		return "", fmt.Errorf("resolving data file: %w", err)
	}
	return path, nil
}

func setupLogging(level string, asJSON bool) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("parsing log level: %w", err)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if asJSON {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}
