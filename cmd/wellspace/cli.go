package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/codefionn/wellspace/internal/config"
	"github.com/codefionn/wellspace/internal/entity"
	"github.com/codefionn/wellspace/internal/logger"
	"github.com/codefionn/wellspace/internal/tui"
)

var (
	configFile    string
	gatewayDriver string
	scopePath     string
	scopeName     string
	noRelay       bool
)

// rootCmd opens a workspace window in the terminal.
var rootCmd = &cobra.Command{
	Use:   "wellspace",
	Short: "Multi-window well data workspace",
	Long: "Open a workspace window: select wells, link or pin views to them and " +
		"save the arrangement per project. Windows of the same project share " +
		"their well selection through the relay started by `wellspace serve`.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if err := logger.Global().Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close logger: %v\n", err)
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTUI(cmd.Context())
	},
}

var cfg *config.Config

// Execute runs the root command.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Configuration file (JSON), defaults to "+config.GetConfigPath())
	rootCmd.PersistentFlags().StringVar(&gatewayDriver, "gateway", "", "Layout store: memory, sqlite, file, postgres, s3 or http")
	rootCmd.Flags().StringVar(&scopePath, "project", "", "Project path to open on start")
	rootCmd.Flags().StringVar(&scopeName, "project-name", "", "Display name of the project")
	rootCmd.Flags().BoolVar(&noRelay, "no-relay", false, "Do not share the selection with other windows")
}

// setup loads the configuration, applies environment overrides and starts
// the logger.
func setup() error {
	path := configFile
	if path == "" {
		path = config.GetConfigPath()
	}
	loaded, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if envLevel := strings.TrimSpace(os.Getenv("WELLSPACE_LOG_LEVEL")); envLevel != "" {
		loaded.LogLevel = envLevel
	}
	if envPath := strings.TrimSpace(os.Getenv("WELLSPACE_LOG_PATH")); envPath != "" {
		loaded.LogPath = envPath
	}
	if envDriver := strings.TrimSpace(os.Getenv("WELLSPACE_GATEWAY_DRIVER")); envDriver != "" {
		loaded.Gateway.Driver = envDriver
	}
	if gatewayDriver != "" {
		loaded.Gateway.Driver = gatewayDriver
	}
	if err := loaded.Validate(); err != nil {
		return err
	}

	if err := logger.Init(logger.ParseLevel(loaded.LogLevel), loaded.LogPath); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Info("wellspace starting")
	logger.Debug("Configuration loaded: log_level=%s, log_path=%s, gateway=%s", loaded.LogLevel, loaded.LogPath, loaded.Gateway.Driver)
	cfg = loaded
	return nil
}

func runTUI(ctx context.Context) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return errors.New("wellspace needs an interactive terminal; use `wellspace serve` for headless use")
	}

	scope := entity.Scope{Path: scopePath, Name: scopeName}
	win, err := openWindow(ctx, cfg, scope, !noRelay)
	if err != nil {
		return err
	}
	defer win.Close()

	if !scope.IsZero() {
		if err := win.ws.OpenScope(ctx, scope); err != nil {
			logger.Warn("failed to open project %s: %v", scope.Path, err)
		}
	}

	model := tui.New(ctx, win.ws)
	defer model.Close()

	logger.Info("Running in TUI mode")
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}
