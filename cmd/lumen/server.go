package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/lumenhq/lumen/internal/api"
	"github.com/lumenhq/lumen/internal/assemble"
	"github.com/lumenhq/lumen/internal/audit"
	"github.com/lumenhq/lumen/internal/config"
	"github.com/lumenhq/lumen/internal/fanout"
	"github.com/lumenhq/lumen/internal/ingest"
	"github.com/lumenhq/lumen/internal/pipeline"
	"github.com/lumenhq/lumen/internal/provider"
	"github.com/lumenhq/lumen/internal/retrieval"
	"github.com/lumenhq/lumen/internal/selection"
	"github.com/lumenhq/lumen/internal/storage"
	"github.com/lumenhq/lumen/internal/vault"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the lumen server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running lumen server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show lumen system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "lumen.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "lumen version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// Refuse a second instance. The health endpoint is the authority;
	// the PID file only names the culprit.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	cipher := vault.New(cfg.Vault.Addr, cfg.Vault.Token, cfg.Vault.Mount)
	keyID := cfg.Vault.KeyID

	providers, err := provider.BuildRegistry(cfg.Providers)
	if err != nil {
		return fmt.Errorf("building provider registry: %w", err)
	}
	if len(providers) == 0 {
		slog.Warn("no AI providers configured, compare requests will fail")
	} else {
		ids := make([]string, len(providers))
		for i, p := range providers {
			ids[i] = p.ID()
		}
		slog.Info("providers configured", "providers", strings.Join(ids, ","))
	}

	embedder := retrieval.NewEmbedder(cfg.Retrieval.EmbedAPIKey, cfg.Retrieval.EmbedModel)
	vectorStore := retrieval.NewSQLiteStore(store.DB())
	gateway := retrieval.NewIndexGateway(embedder, vectorStore)

	assembler := assemble.New(gateway, assemble.Budgets{
		History:  cfg.Assembly.HistoryBudget,
		Document: cfg.Assembly.DocumentBudget,
		File:     cfg.Assembly.FileBudget,
	}, cfg.Retrieval.TopK, float32(cfg.Retrieval.MinScore))

	coordinator := fanout.New(60 * time.Second)
	writer := audit.NewWriter(store, cipher, keyID)
	comparer := pipeline.NewComparer(store, cipher, keyID, assembler, coordinator, providers, writer)
	applicator := selection.NewApplicator(store, cipher, keyID)
	ingestor := ingest.NewIngestor(store, cfg.Retrieval.DirectMaxChars)

	worker := ingest.NewWorker(store, embedder, vectorStore, cfg.Retrieval.ChunkSize, 500*time.Millisecond)
	go worker.Run(ctx)

	handler := api.NewHandler(api.Deps{
		Store:    store,
		Cipher:   cipher,
		KeyID:    keyID,
		Token:    cfg.API.Token,
		Comparer: comparer,
		Applier:  applicator,
		Ingestor: ingestor,
	})

	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Store:    store,
		Comparer: comparer,
		Applier:  applicator,
		Searcher: gateway,
		MinScore: float32(cfg.Retrieval.MinScore),
	})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "lumen listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("lumen is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop lumen (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to lumen (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	vaultResp, err := client.Get(cfg.Vault.Addr + "/v1/sys/health")
	if err != nil {
		printStatus("Vault", "not reachable at %s", cfg.Vault.Addr)
	} else {
		vaultResp.Body.Close()
		printStatus("Vault", "reachable at %s", cfg.Vault.Addr)
	}

	if len(cfg.Providers) == 0 {
		printStatus("Providers", "none configured")
	}
	for _, p := range cfg.Providers {
		printStatus("Provider", "%s (%s)", p.ID, p.Model)
	}

	printStatus("Embed model", "%s", cfg.Retrieval.EmbedModel)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
