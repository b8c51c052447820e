package observability

import (
	"context"
	"io"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/enginebridge/playbilling/internal/domains/billing/domain"
	"github.com/enginebridge/playbilling/internal/domains/billing/ports"
)

const tracerName = "github.com/enginebridge/playbilling/internal/domains/billing/adapters/observability"

// Service decorates the billing command surface with tracing, logging, and
// metrics. Signal emission stays inside the wrapped session; this layer only
// observes commands.
type Service struct {
	inner   ports.Service
	tracer  trace.Tracer
	logger  *slog.Logger
	metrics serviceMetrics
}

type Option func(*Service)

// WithLogger injects a slog logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithTracer injects a tracer implementation.
func WithTracer(tr trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tr
	}
}

// WithMeter injects the meter used to create command counters.
func WithMeter(m metric.Meter) Option {
	return func(s *Service) {
		s.metrics = newServiceMetrics(m)
	}
}

// New wires a decorator around the core session.
func New(inner ports.Service, opts ...Option) ports.Service {
	s := &Service{
		inner:   inner,
		tracer:  nooptrace.NewTracerProvider().Tracer(tracerName),
		logger:  defaultLogger(),
		metrics: newServiceMetrics(nil),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.tracer == nil {
		s.tracer = nooptrace.NewTracerProvider().Tracer(tracerName)
	}
	if s.logger == nil {
		s.logger = defaultLogger()
	}
	return s
}

func (s *Service) StartConnection(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "Session.StartConnection")
	defer span.End()

	s.logInfo(ctx, "starting billing connection")
	if err := s.inner.StartConnection(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logError(ctx, "failed to start billing connection", err)
		return err
	}
	s.metrics.recordConnectionStarted(ctx)
	return nil
}

func (s *Service) EndConnection() {
	s.logInfo(context.Background(), "ending billing connection")
	s.inner.EndConnection()
}

func (s *Service) IsReady() bool {
	return s.inner.IsReady()
}

func (s *Service) ConnectionState() domain.ConnectionState {
	return s.inner.ConnectionState()
}

func (s *Service) QueryProductDetails(ctx context.Context, productIDs []string, productType domain.ProductType) {
	ctx, span := s.startSpan(ctx, "Session.QueryProductDetails",
		attribute.Int("billing.product.count", len(productIDs)),
		attribute.String("billing.product.type", string(productType)),
	)
	defer span.End()

	s.logInfo(ctx, "querying product details",
		slog.Int("count", len(productIDs)), slog.String("product_type", string(productType)))
	s.inner.QueryProductDetails(ctx, productIDs, productType)
	s.metrics.recordProductQuery(ctx, productType)
}

func (s *Service) Purchase(ctx context.Context, productID string, productType domain.ProductType) {
	ctx, span := s.startSpan(ctx, "Session.Purchase",
		attribute.String("billing.product.id", productID),
		attribute.String("billing.product.type", string(productType)),
	)
	defer span.End()

	s.logInfo(ctx, "launching purchase flow",
		slog.String("product_id", productID), slog.String("product_type", string(productType)))
	s.inner.Purchase(ctx, productID, productType)
	s.metrics.recordPurchaseLaunched(ctx, productType)
}

func (s *Service) AcknowledgePurchase(ctx context.Context, purchaseToken string) {
	ctx, span := s.startSpan(ctx, "Session.AcknowledgePurchase")
	defer span.End()

	s.logInfo(ctx, "acknowledging purchase")
	s.inner.AcknowledgePurchase(ctx, purchaseToken)
	s.metrics.recordAcknowledged(ctx)
}

func (s *Service) Consume(ctx context.Context, purchaseToken string) {
	ctx, span := s.startSpan(ctx, "Session.Consume")
	defer span.End()

	s.logInfo(ctx, "consuming purchase")
	s.inner.Consume(ctx, purchaseToken)
	s.metrics.recordConsumed(ctx)
}

func (s *Service) QueryPurchases(ctx context.Context, productType domain.ProductType) {
	ctx, span := s.startSpan(ctx, "Session.QueryPurchases",
		attribute.String("billing.product.type", string(productType)),
	)
	defer span.End()

	s.logInfo(ctx, "querying purchases", slog.String("product_type", string(productType)))
	s.inner.QueryPurchases(ctx, productType)
}

func (s *Service) VerifyPurchase(ctx context.Context, productID, purchaseToken string, productType domain.ProductType) (domain.Purchase, error) {
	ctx, span := s.startSpan(ctx, "Session.VerifyPurchase",
		attribute.String("billing.product.id", productID),
		attribute.String("billing.product.type", string(productType)),
	)
	defer span.End()

	s.logInfo(ctx, "verifying purchase",
		slog.String("product_id", productID), slog.String("product_type", string(productType)))
	purchase, err := s.inner.VerifyPurchase(ctx, productID, purchaseToken, productType)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logError(ctx, "failed to verify purchase", err, slog.String("product_id", productID))
		return domain.Purchase{}, err
	}
	s.metrics.recordVerified(ctx, productType)
	return purchase, nil
}

func (s *Service) SetLogLevel(level int) {
	s.inner.SetLogLevel(level)
}

func (s *Service) SetLogTag(tag string) {
	s.inner.SetLogTag(tag)
}

func (s *Service) NotifyResume() {
	s.inner.NotifyResume()
}

func (s *Service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := s.tracer
	if tracer == nil {
		tracer = nooptrace.NewTracerProvider().Tracer(tracerName)
	}
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func (s *Service) logInfo(ctx context.Context, msg string, attrs ...slog.Attr) {
	if s.logger == nil {
		return
	}
	s.logger.LogAttrs(ctx, slog.LevelInfo, msg, attrs...)
}

func (s *Service) logError(ctx context.Context, msg string, err error, attrs ...slog.Attr) {
	if s.logger == nil {
		return
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	s.logger.LogAttrs(ctx, slog.LevelError, msg, attrs...)
}

func defaultLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type serviceMetrics struct {
	connectionsStarted metric.Int64Counter
	productQueries     metric.Int64Counter
	purchasesLaunched  metric.Int64Counter
	verified           metric.Int64Counter
	acknowledged       metric.Int64Counter
	consumed           metric.Int64Counter
}

func newServiceMetrics(m metric.Meter) serviceMetrics {
	if m == nil {
		return serviceMetrics{}
	}
	connectionsStarted, _ := m.Int64Counter("billing.session.connections_started", metric.WithDescription("Number of billing connections started"))
	productQueries, _ := m.Int64Counter("billing.session.product_queries", metric.WithDescription("Number of product-details queries issued"))
	purchasesLaunched, _ := m.Int64Counter("billing.session.purchases_launched", metric.WithDescription("Number of purchase flows launched"))
	verified, _ := m.Int64Counter("billing.session.purchases_verified", metric.WithDescription("Number of purchase tokens verified"))
	acknowledged, _ := m.Int64Counter("billing.session.purchases_acknowledged", metric.WithDescription("Number of acknowledgment requests issued"))
	consumed, _ := m.Int64Counter("billing.session.purchases_consumed", metric.WithDescription("Number of consumption requests issued"))
	return serviceMetrics{
		connectionsStarted: connectionsStarted,
		productQueries:     productQueries,
		purchasesLaunched:  purchasesLaunched,
		verified:           verified,
		acknowledged:       acknowledged,
		consumed:           consumed,
	}
}

func (m serviceMetrics) recordConnectionStarted(ctx context.Context) {
	addCounter(ctx, m.connectionsStarted, 1)
}

func (m serviceMetrics) recordProductQuery(ctx context.Context, productType domain.ProductType) {
	addCounter(ctx, m.productQueries, 1, attribute.String("billing.product.type", string(productType)))
}

func (m serviceMetrics) recordPurchaseLaunched(ctx context.Context, productType domain.ProductType) {
	addCounter(ctx, m.purchasesLaunched, 1, attribute.String("billing.product.type", string(productType)))
}

func (m serviceMetrics) recordVerified(ctx context.Context, productType domain.ProductType) {
	addCounter(ctx, m.verified, 1, attribute.String("billing.product.type", string(productType)))
}

func (m serviceMetrics) recordAcknowledged(ctx context.Context) {
	addCounter(ctx, m.acknowledged, 1)
}

func (m serviceMetrics) recordConsumed(ctx context.Context) {
	addCounter(ctx, m.consumed, 1)
}

func addCounter(ctx context.Context, counter metric.Int64Counter, value int64, attrs ...attribute.KeyValue) {
	if counter == nil {
		return
	}
	counter.Add(ctx, value, metric.WithAttributes(attrs...))
}

var _ ports.Service = (*Service)(nil)
