// Package bridge boots the billing bridge: configuration, observability, the
// billing session with its backend client, and the HTTP/websocket transports.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	billinggoogleplay "github.com/enginebridge/playbilling/internal/domains/billing/adapters/googleplay"
	billingmemory "github.com/enginebridge/playbilling/internal/domains/billing/adapters/memory"
	billingobs "github.com/enginebridge/playbilling/internal/domains/billing/adapters/observability"
	billingapp "github.com/enginebridge/playbilling/internal/domains/billing/application"
	billingports "github.com/enginebridge/playbilling/internal/domains/billing/ports"
	platformobservability "github.com/enginebridge/playbilling/internal/platform/observability"
	"github.com/enginebridge/playbilling/internal/transport/httpapi"
	"github.com/enginebridge/playbilling/internal/transport/ws"
)

const serviceName = "billing-bridge"

// Run boots the billing bridge with observability, the configured billing
// backend, and transports wired.
func Run(ctx context.Context, configPath string) error {
	cfg, err := Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	instruments, shutdown, err := platformobservability.Init(ctx, platformobservability.Settings{
		ServiceName:  serviceName,
		Environment:  cfg.Telemetry.Environment,
		LogLevel:     cfg.Log.Level,
		LogFormat:    cfg.Log.Format,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure: cfg.Telemetry.OTLPInsecure,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize observability: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			instruments.Logger.Error("failed to shutdown observability", slog.String("error", err.Error()))
		}
	}()
	logger := instruments.Logger

	client, err := buildBillingClient(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer client.EndConnection()

	hub := ws.NewHub(logger)

	options := []billingapp.Option{billingapp.WithLogger(logger)}
	if cfg.Billing.ObfuscatedAccountID != "" || cfg.Billing.ObfuscatedProfileID != "" {
		options = append(options, billingapp.WithAccountIdentifiers(cfg.Billing.ObfuscatedAccountID, cfg.Billing.ObfuscatedProfileID))
	}
	session := billingapp.NewSession(client, hub, hub, options...)
	session.SetLogLevel(cfg.Billing.LogLevel)
	session.SetLogTag(cfg.Billing.LogTag)

	service := billingobs.New(
		session,
		billingobs.WithLogger(logger),
		billingobs.WithTracer(instruments.Tracer("internal.billing.application")),
		billingobs.WithMeter(instruments.Meter("internal.billing.application")),
	)

	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	handlers := httpapi.NewHandlers(service, hub, nil)
	router := httpapi.NewRouter(handlers, otelgin.Middleware(serviceName))

	addr := cfg.Addr()
	logger.Info("billing bridge listening",
		slog.String("addr", addr), slog.String("backend", cfg.Billing.Backend))
	if err := router.Run(addr); err != nil {
		logger.Error("billing bridge server exited", slog.String("addr", addr), slog.String("error", err.Error()))
		return err
	}
	return nil
}

func buildBillingClient(ctx context.Context, cfg *Config, logger *slog.Logger) (billingports.Client, error) {
	switch cfg.Billing.Backend {
	case BackendGooglePlay:
		client, err := billinggoogleplay.NewClient(ctx, billinggoogleplay.Config{
			PackageName:        cfg.Billing.PackageName,
			ServiceAccountFile: cfg.Billing.ServiceAccountFile,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to build google play billing client: %w", err)
		}
		logger.Info("billing client configured with google play", slog.String("package", cfg.Billing.PackageName))
		return client, nil
	default:
		if len(cfg.Billing.Catalog) == 0 {
			logger.Warn("billing catalog is empty, product queries will find nothing")
		}
		opts := []billingmemory.Option{billingmemory.WithCatalog(cfg.CatalogProducts())}
		if cfg.Billing.PackageName != "" {
			opts = append(opts, billingmemory.WithPackageName(cfg.Billing.PackageName))
		}
		logger.Info("billing client configured with in-memory simulation")
		return billingmemory.NewClient(opts...), nil
	}
}
