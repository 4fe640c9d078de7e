// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/opentrusty/provisioner/internal/invitation"
	"github.com/opentrusty/provisioner/internal/observability/logger"
	"github.com/opentrusty/provisioner/internal/observability/metrics"
	"github.com/opentrusty/provisioner/internal/observability/tracing"
	"github.com/opentrusty/provisioner/internal/session"
	transportHTTP "github.com/opentrusty/provisioner/internal/transport/http"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Starts the provisioning API. When BOOTSTRAP_ADMIN_EMAIL is set the initial
administrator is ensured before the server accepts requests.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

func serve(ctx context.Context) error {
	slog.InfoContext(ctx, "starting provisioner",
		logger.String("version", cfg.Observability.ServiceVersion),
		logger.String("db_driver", cfg.Database.Driver),
	)

	// Initialize tracer
	tracer, err := tracing.New(ctx, tracing.Config{
		Enabled:        cfg.Observability.OTELEnabled,
		Endpoint:       cfg.Observability.OTELEndpoint,
		Insecure:       cfg.Observability.OTELInsecure,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		SamplingRate:   1.0,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize tracer: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			slog.Error("failed to flush traces", logger.Error(err))
		}
	}()

	// Initialize meter
	meter, err := metrics.New(ctx, metrics.Config{
		Enabled: cfg.Observability.OTELEnabled,
	}, cfg.Observability.ServiceName)
	if err != nil {
		return fmt.Errorf("failed to initialize meter: %w", err)
	}
	instruments, err := meter.NewProvisioning()
	if err != nil {
		return fmt.Errorf("failed to create instruments: %w", err)
	}

	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	svc := newServices(cfg, st)

	if cfg.Bootstrap.Enabled() {
		if err := runBootstrap(ctx, cfg, svc); err != nil {
			return fmt.Errorf("bootstrap failed: %w", err)
		}
	}

	engine := invitation.NewEngine(
		st.invitations,
		svc.authorizer,
		svc.identities,
		svc.companies,
		newMailer(cfg),
		svc.auditLogger,
		invitation.WithTTL(cfg.Invitation.TTL),
		invitation.WithLinkBaseURL(cfg.Invitation.LinkBaseURL),
		invitation.WithLogger(slog.Default()),
		invitation.WithTracer(tracer.GetTracer()),
		invitation.WithInstruments(instruments),
	)

	issuer, err := session.NewIssuer(
		[]byte(cfg.Security.TokenSecret),
		cfg.Security.TokenIssuer,
		cfg.Security.TokenTTL,
	)
	if err != nil {
		return fmt.Errorf("failed to create token issuer: %w", err)
	}

	rateLimiter := transportHTTP.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	defer rateLimiter.Stop()

	handler := transportHTTP.NewHandler(engine, svc.identities, issuer)
	router := transportHTTP.NewRouter(handler, rateLimiter, cfg.Server.RequestTimeout)

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting http server",
			logger.Component("server"),
			logger.Operation("listen"),
			logger.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	slog.Info("server stopped")
	return nil
}
