// Package main provides the toolgate server entry point.
//
// toolgate is an MCP gateway for sandboxed containers: it exposes a native
// shell and file tool set over a streamable HTTP endpoint and federates
// the tools of configured child MCP servers under per-child namespaces.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"toolgate/internal/config"
	"toolgate/internal/dispatch"
	"toolgate/internal/logging"
	"toolgate/internal/mcp"
	"toolgate/internal/server"
	"toolgate/internal/tools"
	"toolgate/internal/tools/core"
	"toolgate/internal/tools/shell"
	"toolgate/internal/workspace"
)

// Version is set at build time via ldflags.
var Version = "dev"

var (
	// Flags
	flagPort              int
	flagToken             string
	flagWorkspace         string
	flagMCPConfig         string
	flagSettle            time.Duration
	flagDefaultInactivity int
	flagMaxTimeout        int
	verbose               bool

	// Logger
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "toolgate",
	Short: "toolgate - sandboxed shell/file MCP gateway",
	Long: `toolgate serves a fixed set of shell and file tools over a streamable
HTTP MCP endpoint, scoped per request to a workspace directory, and
re-exports the tools of configured child MCP servers under per-child
name prefixes.

Authentication is a single bearer token, generated at startup when not
supplied.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runServe,
}

func init() {
	rootCmd.Flags().IntVar(&flagPort, "port", 0, "HTTP listen port")
	rootCmd.Flags().StringVar(&flagToken, "token", "", "bearer token (generated when empty)")
	rootCmd.Flags().StringVar(&flagWorkspace, "workspace-root", "", "base workspace directory")
	rootCmd.Flags().StringVar(&flagMCPConfig, "mcp-config", "", "child-provider config file")
	rootCmd.Flags().DurationVar(&flagSettle, "settle", 0, "delay before child tools are published")
	rootCmd.Flags().IntVar(&flagDefaultInactivity, "default-inactivity", 0, "default execute_command inactivity budget in seconds")
	rootCmd.Flags().IntVar(&flagMaxTimeout, "max-timeout", 0, "absolute cap on synchronous waits in seconds")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// resolveConfig layers defaults, environment and flags.
func resolveConfig(cmd *cobra.Command) *config.Config {
	cfg := config.Default()
	cfg.ApplyEnv()

	if cmd.Flags().Changed("port") {
		cfg.Port = flagPort
	}
	if cmd.Flags().Changed("token") {
		cfg.Token = flagToken
	}
	if cmd.Flags().Changed("workspace-root") {
		cfg.WorkspaceRoot = flagWorkspace
	}
	if cmd.Flags().Changed("mcp-config") {
		cfg.MCPConfigPath = flagMCPConfig
	}
	if cmd.Flags().Changed("settle") {
		cfg.SettleInterval = flagSettle
	}
	if cmd.Flags().Changed("default-inactivity") {
		cfg.DefaultInactivitySec = flagDefaultInactivity
	}
	if cmd.Flags().Changed("max-timeout") {
		cfg.MaxTimeoutSec = flagMaxTimeout
	}
	if verbose {
		cfg.Debug = true
		cfg.LogLevel = "debug"
	}
	return cfg
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := resolveConfig(cmd)

	if cfg.EnsureToken() {
		logger.Info("Generated bearer token", zap.String("token", cfg.Token))
	}
	if err := logging.Initialize(cfg.LogDir, cfg.Debug, cfg.LogLevel); err != nil {
		logger.Warn("File logging disabled", zap.Error(err))
	}
	defer logging.Close()

	logging.Get(logging.CategoryBoot).Info("toolgate %s starting (port=%d, workspace=%s)", Version, cfg.Port, cfg.WorkspaceRoot)

	// Leaves first: workspace resolution, process registry, file suite.
	roots := workspace.NewResolver(cfg.WorkspaceRoot)
	procs := shell.NewProcessRegistry()
	executor := shell.NewExecutor(procs, roots, shell.Options{
		DefaultInactivity: time.Duration(cfg.DefaultInactivitySec) * time.Second,
		MaxTimeout:        time.Duration(cfg.MaxTimeoutSec) * time.Second,
	})
	files := core.NewSuite(roots, cfg.FileOpTimeout)

	// Child providers.
	specs, err := mcp.LoadConfig(cfg.MCPConfigPath)
	if err != nil {
		logger.Warn("Child-provider config unreadable; starting without children", zap.Error(err))
		specs = map[string]mcp.ChildConfig{}
	}
	agg := mcp.NewAggregator(specs)

	// Tool table and dispatcher.
	mcpSrv := mcpserver.NewMCPServer(
		"toolgate",
		Version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithRecovery(),
	)
	dispatcher := dispatch.New(mcpSrv, tools.NewRegistry(), agg, cfg.AllowedToolSet())
	if err := dispatcher.RegisterNative(executor, files); err != nil {
		return fmt.Errorf("native tool registration failed: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := agg.StartAll(ctx); err != nil {
		logger.Warn("Some child providers failed to start", zap.Error(err))
	}
	dispatcher.StartChildSync(ctx, cfg.SettleInterval)
	if err := mcp.WatchConfig(ctx, agg, cfg.MCPConfigPath); err != nil {
		logger.Warn("Child config watcher disabled", zap.Error(err))
	}

	srv := server.New(cfg, mcpSrv)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	logger.Info("toolgate listening",
		zap.Int("port", cfg.Port),
		zap.String("workspace", cfg.WorkspaceRoot),
		zap.Int("children", len(specs)),
	)

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	}

	// Drain HTTP first so in-flight calls finish, then tear down the
	// process registry and children.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", zap.Error(err))
	}
	procs.Shutdown(shutdownCtx)
	agg.Stop()
	logging.Get(logging.CategoryBoot).Info("toolgate stopped")
	return nil
}
