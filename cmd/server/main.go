package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"contact-relay/internal/config"
	"contact-relay/internal/factory"
	"contact-relay/internal/handler"
	"contact-relay/internal/util"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		util.Fatal("Failed to load configuration", util.ErrorField(err))
	}

	f, err := factory.NewFactory(cfg)
	if err != nil {
		util.Fatal("Failed to initialize factory", util.ErrorField(err))
	}
	defer f.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if err := run(ctx, f); err != nil {
		util.Error("Server stopped with error", util.ErrorField(err))
		f.Close()
		util.Fatal("Exiting")
	}
}

// run serves until ctx is cancelled or a listener fails, then shuts every
// server down within the configured timeout.
func run(ctx context.Context, f *factory.Factory) error {
	cfg := f.Config()
	servers := buildServers(f)

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		g.Go(func() error {
			util.Info("Starting server",
				util.String("environment", cfg.Environment),
				util.String("address", srv.Addr),
				util.Bool("tls_enabled", srv.TLSConfig != nil),
			)

			var err error
			if srv.TLSConfig != nil {
				err = srv.ListenAndServeTLS("", "")
			} else {
				err = srv.ListenAndServe()
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server %s: %w", srv.Addr, err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		util.Info("Shutting down servers")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		var errs []error
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("shutdown %s: %w", srv.Addr, err))
			}
		}
		if err := errors.Join(errs...); err != nil {
			return err
		}
		util.Info("Server shutdown completed")
		return nil
	})

	return g.Wait()
}

// buildServers returns the API server and, with autocert, a plain HTTP server
// on port 80 for ACME challenges and HTTPS redirects.
func buildServers(f *factory.Factory) []*http.Server {
	cfg := f.Config()
	router := setupRouter(f, cfg)

	server := &http.Server{
		Addr:         cfg.GetServerAddress(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		ErrorLog:     zapErrorLog(),
	}

	if !cfg.Server.EnableTLS {
		util.Warn("TLS is disabled", util.String("environment", cfg.Environment))
		return []*http.Server{server}
	}

	tlsManager := f.TLSManager()
	server.TLSConfig = tlsManager.GetTLSConfig()
	servers := []*http.Server{server}

	if tlsManager.AutoCertEnabled() && cfg.Server.Port != 80 {
		servers = append(servers, &http.Server{
			Addr:              ":80",
			Handler:           tlsManager.HTTPHandler(nil),
			ReadHeaderTimeout: cfg.Server.ReadTimeout,
			ErrorLog:          zapErrorLog(),
		})
	}
	return servers
}

func setupRouter(f *factory.Factory, cfg *config.Config) http.Handler {
	contactService := f.ServiceFactory().ContactService()
	contactHandler := handler.NewContactHandler(contactService, cfg.Server.MaxBodyBytes, util.Get())
	return handler.NewRouter(contactHandler, handler.RouterOptions{
		StaticDir:      cfg.Server.StaticDir,
		TrustProxy:     cfg.Server.TrustProxy,
		AllowedOrigins: cfg.Server.CORSAllowedOrigins,
		MetricsEnabled: cfg.Metrics.Enabled,
	}, util.Get())
}

// zapErrorLog routes net/http's internal errors (TLS handshakes, bad
// requests) through the application logger.
func zapErrorLog() *log.Logger {
	logger, err := zap.NewStdLogAt(util.Get().Named("http"), zapcore.WarnLevel)
	if err != nil {
		return nil
	}
	return logger
}
