package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/codefionn/wellspace/internal/activity"
	"github.com/codefionn/wellspace/internal/bus"
	"github.com/codefionn/wellspace/internal/config"
	"github.com/codefionn/wellspace/internal/dataservice"
	"github.com/codefionn/wellspace/internal/entity"
	"github.com/codefionn/wellspace/internal/gateway"
	"github.com/codefionn/wellspace/internal/logger"
	"github.com/codefionn/wellspace/internal/relay"
	"github.com/codefionn/wellspace/internal/workspace"
)

// openGateway builds the layout store selected by cfg.Gateway.Driver.
func openGateway(ctx context.Context, cfg *config.Config) (gateway.Gateway, error) {
	g := cfg.Gateway
	switch g.Driver {
	case config.DriverMemory:
		return gateway.NewMemory(), nil
	case config.DriverSQLite:
		return gateway.OpenSQLite(g.SQLitePath)
	case config.DriverFile:
		return gateway.OpenFile(g.FileDir)
	case config.DriverS3:
		return gateway.OpenS3(ctx, gateway.S3Config{
			Bucket:    g.S3.Bucket,
			Region:    g.S3.Region,
			Endpoint:  g.S3.Endpoint,
			PathStyle: g.S3.PathStyle,
			Prefix:    g.S3.Prefix,
		})
	case config.DriverPostgres:
		return gateway.OpenPostgres(ctx, g.PostgresDSN)
	case config.DriverHTTP:
		return gateway.NewClient(g.HTTPURL, &http.Client{Timeout: cfg.FetchTimeout()}), nil
	default:
		return nil, fmt.Errorf("unknown gateway driver %q", g.Driver)
	}
}

// relaySession groups the windows of one project on the relay.
func relaySession(scope entity.Scope) string {
	if scope.IsZero() {
		return "default"
	}
	return gateway.SessionID(scope.Path)
}

// window is one workspace window and what it owns.
type window struct {
	ws     *workspace.Workspace
	bus    *bus.Bus
	gw     gateway.Gateway
	cancel context.CancelFunc
}

func openWindow(ctx context.Context, cfg *config.Config, scope entity.Scope, useRelay bool) (*window, error) {
	gw, err := openGateway(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open layout store: %w", err)
	}
	audit := activity.New(cfg.ActivityCapacity)

	var opts []bus.Option
	var onScope func(context.Context, entity.Scope)
	if useRelay && cfg.Relay.Enabled {
		sw := relay.NewSwitch(cfg.Relay.Addr)
		if err := sw.Join(ctx, relaySession(scope)); err != nil {
			// other windows just won't see this one's selection
			logger.Warn("relay unavailable, selection stays in this window: %v", err)
		}
		opts = append(opts, bus.WithTransport(sw))
		onScope = func(ctx context.Context, s entity.Scope) {
			if err := sw.Join(ctx, relaySession(s)); err != nil {
				logger.Warn("relay unavailable for %s, selection stays in this window: %v", s.Path, err)
			}
		}
	}

	wctx, cancel := context.WithCancel(ctx)
	b := bus.New(opts...)
	if err := b.Start(wctx); err != nil {
		cancel()
		b.Close(ctx)
		gw.Close()
		return nil, err
	}

	ws := workspace.New(workspace.Options{
		Gateway:           gw,
		Data:              dataservice.NewClient(cfg.DataServiceURL, nil),
		Bus:               b,
		Activity:          audit,
		FetchTimeout:      cfg.FetchTimeout(),
		DefaultLayoutName: cfg.DefaultLayoutName,
		OnScopeChange:     onScope,
	})
	if err := ws.Start(wctx); err != nil {
		cancel()
		b.Close(ctx)
		gw.Close()
		return nil, err
	}

	if fg, ok := gw.(*gateway.File); ok {
		err := fg.Watch(wctx, func(ev gateway.ChangeEvent) {
			if ev.Session != relaySession(ws.Scope()) {
				return
			}
			if ev.Removed {
				audit.Warning("Layout %q was removed on disk", ev.LayoutName)
				return
			}
			audit.Info("Layout %q changed on disk", ev.LayoutName)
		})
		if err != nil {
			logger.Warn("layout watch disabled: %v", err)
		}
	}

	return &window{ws: ws, bus: b, gw: gw, cancel: cancel}, nil
}

func (w *window) Close() error {
	var errs []error
	errs = append(errs, w.ws.Close())
	errs = append(errs, w.bus.Close(context.Background()))
	w.cancel()
	errs = append(errs, w.gw.Close())
	return errors.Join(errs...)
}
