package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/pitabwire/opsdesk/internal/export"
	"github.com/pitabwire/opsdesk/internal/observability"
	"github.com/pitabwire/opsdesk/internal/portal"
	"github.com/pitabwire/opsdesk/internal/store"
	"github.com/pitabwire/opsdesk/model"
)

func runServe(ctx context.Context, a *app, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("serve", stderr)
	port := fs.Int("port", a.cfg.Portal.Port, "portal listen port")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", *port))
	if err != nil {
		a.logger.Error("portal listen failed", zap.Error(err))
		return 1
	}
	if err := serve(ctx, a, ln); err != nil {
		a.logger.Error("portal error", zap.Error(err))
		return 1
	}
	return 0
}

// serve runs the portal on ln until ctx is cancelled, then shuts it down
// gracefully.
func serve(ctx context.Context, a *app, ln net.Listener) error {
	logger := a.logger

	sink, err := export.Open(ctx, a.cfg.Export)
	if err != nil {
		logger.Warn("statement export disabled", zap.Error(err))
	}

	opts := a.storeOptions(model.Filter{})
	attributes := store.NewAttributeStore(a.api, opts...)
	brands := store.NewBrandStore(a.api, opts...)
	offers := store.NewOfferStore(a.api, opts...)
	panel := store.NewDeliveryPanel(a.api, opts...)
	closers := []func(){attributes.Close, brands.Close, offers.Close, panel.Close}

	ready := observability.ReadinessChecks{"backend": a.api}
	if hc, ok := a.tokens.(observability.HealthChecker); ok {
		ready["token_store"] = hc
	}

	deps := portal.Dependencies{
		Logger:         logger,
		Metrics:        a.metrics,
		Gatherer:       a.gatherer,
		HandlerTimeout: a.cfg.API.Timeout + 5*time.Second,
		Ready:          ready,
		Attributes:     attributes,
		Brands:         brands,
		Offers:         offers,
		Panel:          panel,
	}
	if sink != nil {
		deps.Sink = sink
	}

	srv := &http.Server{
		Handler:      portal.NewRouter(deps),
		ReadTimeout:  a.cfg.Portal.ReadTimeout,
		WriteTimeout: a.cfg.Portal.WriteTimeout,
	}

	// Start background tasks.
	bgCtx, bgCancel := context.WithCancel(ctx)
	defer bgCancel()
	if a.cfg.Portal.RefreshInterval > 0 {
		go runRefresher(bgCtx, a.cfg.Portal.RefreshInterval, logger, map[string]func(context.Context) model.Result{
			"attributes": attributes.Refresh,
			"brands":     brands.Refresh,
			"offers":     offers.Refresh,
			"delivery":   panel.Refresh,
		})
	}

	logger.Info("portal started",
		zap.String("addr", ln.Addr().String()),
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("backend", a.cfg.API.BaseURL),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-errCh:
		return err
	}

	shutdownTimeout := a.cfg.Portal.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 10 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	// Stop accepting new connections and drain in-flight requests.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("portal shutdown error", zap.Error(err))
	}

	bgCancel()
	for _, c := range closers {
		c()
	}

	logger.Info("shutdown complete")
	return nil
}

// runRefresher periodically refreshes every container until ctx ends.
func runRefresher(ctx context.Context, interval time.Duration, logger *zap.Logger, refresh map[string]func(context.Context) model.Result) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for name, fn := range refresh {
				if res := fn(ctx); !res.Success {
					logger.Warn("background refresh failed",
						zap.String("store", name),
						zap.String("message", res.Message),
					)
				}
			}
		}
	}
}
