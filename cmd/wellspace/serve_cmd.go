package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/codefionn/wellspace/internal/config"
	"github.com/codefionn/wellspace/internal/gateway"
	"github.com/codefionn/wellspace/internal/logger"
	"github.com/codefionn/wellspace/internal/metrics"
	"github.com/codefionn/wellspace/internal/relay"
)

var (
	serveAddr    string
	serveNoRelay bool
)

// serveCmd exposes the layout store over HTTP and hosts the selection relay.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the layout server and selection relay",
	Long: "Serve the configured layout store over HTTP for windows using the http " +
		"gateway, and relay well selections between windows at /ws.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Gateway.Driver == config.DriverHTTP {
			return errors.New("serve needs a local layout store, not the http gateway")
		}
		addr := serveAddr
		if addr == "" {
			addr = cfg.ServeAddr
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		gw, err := openGateway(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to open layout store: %w", err)
		}
		defer gw.Close()

		srv := gateway.NewServer(gw, addr)
		m := metrics.New(
			"/health",
			"/metrics",
			"/ws",
			"/api/workspace/layout",
			"/api/workspace/layouts/list",
			"/api/workspace/layouts/active",
		)
		srv.Mount("GET", "/metrics", m.Handler())
		if !serveNoRelay {
			hub := relay.NewHub()
			go hub.Run()
			defer hub.Stop()
			srv.Mount("GET", "/ws", hub)
			m.WatchRelay(hub.ClientCount)
		}
		srv.Use(m.Middleware)

		fmt.Println(color.CyanString("wellspace server"))
		fmt.Printf("  layouts: %s (%s)\n", color.GreenString("http://%s/api/workspace", addr), cfg.Gateway.Driver)
		if !serveNoRelay {
			fmt.Printf("  relay:   %s\n", color.GreenString("ws://%s/ws", addr))
		}
		fmt.Printf("  metrics: %s\n", color.GreenString("http://%s/metrics", addr))

		errCh := make(chan error, 1)
		go func() { errCh <- srv.Start() }()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
			logger.Info("shutting down layout server")
			if err := srv.Stop(); err != nil {
				return fmt.Errorf("failed to stop server: %w", err)
			}
			return <-errCh
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address, defaults to serve_addr from the config")
	serveCmd.Flags().BoolVar(&serveNoRelay, "no-relay", false, "Serve layouts only")
}
