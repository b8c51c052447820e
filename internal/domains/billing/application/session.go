// Package application holds the billing session: the command surface over
// the platform billing client, the product-details cache, and the mapping
// of every client callback onto exactly one outward signal.
package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/enginebridge/playbilling/internal/domains/billing/adapters/signal"
	"github.com/enginebridge/playbilling/internal/domains/billing/domain"
	"github.com/enginebridge/playbilling/internal/domains/billing/ports"
)

// ErrNoHost signals StartConnection was called with no host surface
// attached. This is a usage error, not a recoverable service condition.
var ErrNoHost = errors.New("no host surface attached")

// ErrVerificationUnsupported signals VerifyPurchase was called on a backend
// whose client reports purchases through its own callbacks instead of
// out-of-band token verification.
var ErrVerificationUnsupported = errors.New("billing backend does not verify purchase tokens")

// Session owns the billing connection lifecycle, the product-details cache,
// and the set of in-flight acknowledgment tokens. Commands are expected from
// a single caller goroutine; callbacks arrive on the billing client's
// dispatch goroutine, so shared state is mutex-guarded.
type Session struct {
	client ports.Client
	sink   ports.SignalSink
	hosts  ports.HostProvider
	logger *slog.Logger

	mu       sync.RWMutex
	products map[string]domain.ProductDetails

	ackMu       sync.Mutex
	pendingAcks map[string]struct{}

	cfgMu    sync.RWMutex
	logLevel int
	logTag   string

	obfuscatedAccountID string
	obfuscatedProfileID string
}

// Option customizes a Session at construction time.
type Option func(*Session)

// WithLogger injects the structured logger used for diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithAccountIdentifiers sets the obfuscated account/profile pair attached
// to every launched purchase flow.
func WithAccountIdentifiers(accountID, profileID string) Option {
	return func(s *Session) {
		s.obfuscatedAccountID = accountID
		s.obfuscatedProfileID = profileID
	}
}

// NewSession wires a session over the billing client, signal sink, and host
// provider. The session holds no connection until StartConnection.
func NewSession(client ports.Client, sink ports.SignalSink, hosts ports.HostProvider, opts ...Option) *Session {
	s := &Session{
		client:      client,
		sink:        sink,
		hosts:       hosts,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		products:    map[string]domain.ProductDetails{},
		pendingAcks: map[string]struct{}{},
		logTag:      "playbilling",
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// StartConnection begins asynchronous connection setup with pending
// one-time purchases enabled. The outcome arrives as a connected or
// connect_error signal; the returned error covers usage mistakes only.
func (s *Session) StartConnection(_ context.Context) error {
	if s.host() == nil {
		return fmt.Errorf("start connection: %w", ErrNoHost)
	}
	cfg := ports.ConnectionConfig{EnablePendingOneTimePurchases: true}
	callbacks := ports.ConnectionCallbacks{
		OnSetupFinished:       s.handleSetupFinished,
		OnServiceDisconnected: s.handleServiceDisconnected,
		OnPurchasesUpdated:    s.handlePurchasesUpdated,
	}
	if err := s.client.StartConnection(cfg, callbacks); err != nil {
		return fmt.Errorf("start connection: %w", err)
	}
	return nil
}

// EndConnection releases the billing client connection.
func (s *Session) EndConnection() {
	s.client.EndConnection()
}

// IsReady reports whether the billing client can accept commands.
func (s *Session) IsReady() bool {
	return s.client.IsReady()
}

// ConnectionState passes through the client's reported connection state.
func (s *Session) ConnectionState() domain.ConnectionState {
	return s.client.ConnectionState()
}

// QueryProductDetails issues an asynchronous product-details query. An empty
// id list is a no-op: no service call is made and no signal is emitted.
func (s *Session) QueryProductDetails(ctx context.Context, productIDs []string, productType domain.ProductType) {
	if len(productIDs) == 0 {
		return
	}
	entries := make([]ports.ProductQueryEntry, 0, len(productIDs))
	for _, id := range productIDs {
		entries = append(entries, ports.ProductQueryEntry{ProductID: id, Type: productType})
	}
	s.client.QueryProductDetails(ctx, entries, s.handleProductDetails)
}

// Purchase launches the platform purchase flow for a cached product. Local
// validation failures surface synchronously as purchase_error signals and
// never reach the billing service; a successful launch produces no
// immediate signal, its result arrives via purchases_updated.
func (s *Session) Purchase(ctx context.Context, productID string, productType domain.ProductType) {
	s.logf("launching purchase flow", slog.String("product_id", productID), slog.String("product_type", string(productType)))

	s.mu.RLock()
	details, ok := s.products[productID]
	s.mu.RUnlock()
	if !ok {
		s.emit(SignalPurchaseError, int(domain.CodeError),
			fmt.Sprintf("product %q has no cached details, call queryProductDetails first", productID))
		return
	}

	host := s.host()
	if host == nil {
		s.emit(SignalPurchaseError, int(domain.CodeServiceDisconnected),
			"not connected to billing services: no host surface attached")
		return
	}

	params := ports.PurchaseFlowParams{
		Product:             details,
		Host:                host,
		ObfuscatedAccountID: s.obfuscatedAccountID,
		ObfuscatedProfileID: s.obfuscatedProfileID,
	}
	if productType == domain.ProductTypeSubs {
		token := details.DefaultOfferToken()
		if token == "" {
			s.emit(SignalPurchaseError, int(domain.CodeItemUnavailable),
				fmt.Sprintf("subscription %q has no offers available", productID))
			return
		}
		params.OfferToken = token
	}

	if result := s.client.LaunchPurchaseFlow(ctx, params); !result.OK() {
		s.logf("purchase flow launch failed",
			slog.Int("response_code", int(result.Code)), slog.String("debug_message", result.Message))
		s.emit(SignalPurchaseError, int(result.Code), result.Message)
	}
}

// AcknowledgePurchase issues an asynchronous acknowledgment for the token.
// Each in-flight token is tracked independently, so concurrent
// acknowledgments correlate to their own completion signals.
func (s *Session) AcknowledgePurchase(ctx context.Context, purchaseToken string) {
	s.ackMu.Lock()
	s.pendingAcks[purchaseToken] = struct{}{}
	s.ackMu.Unlock()

	s.client.AcknowledgePurchase(ctx, purchaseToken, func(result domain.Result) {
		s.ackMu.Lock()
		delete(s.pendingAcks, purchaseToken)
		s.ackMu.Unlock()

		s.logf("purchase acknowledged",
			slog.Int("response_code", int(result.Code)), slog.String("purchase_token", purchaseToken))
		s.emit(SignalPurchaseAcknowledged, int(result.Code), result.Message, purchaseToken)
	})
}

// Consume issues an asynchronous consumption request for the token.
func (s *Session) Consume(ctx context.Context, purchaseToken string) {
	s.client.Consume(ctx, purchaseToken, func(result domain.Result, token string) {
		s.logf("purchase consumed",
			slog.Int("response_code", int(result.Code)), slog.String("purchase_token", token))
		s.emit(SignalPurchaseConsumed, int(result.Code), result.Message, token)
	})
}

// QueryPurchases issues an asynchronous query for all purchases of the
// given product type.
func (s *Session) QueryPurchases(ctx context.Context, productType domain.ProductType) {
	s.client.QueryPurchases(ctx, productType, func(result domain.Result, purchases []domain.Purchase) {
		s.logf("purchases query finished",
			slog.Int("response_code", int(result.Code)), slog.Int("count", len(purchases)))
		s.emit(SignalQueryPurchases, int(result.Code), result.Message, signal.FromPurchases(purchases))
	})
}

// VerifyPurchase registers a device-reported purchase token with the billing
// client, when it supports out-of-band verification. A verified purchase is
// also reported through purchases_updated, mirroring how a device purchase
// reaches the engine.
func (s *Session) VerifyPurchase(ctx context.Context, productID, purchaseToken string, productType domain.ProductType) (domain.Purchase, error) {
	verifier, ok := s.client.(ports.PurchaseVerifier)
	if !ok {
		return domain.Purchase{}, fmt.Errorf("verify purchase: %w", ErrVerificationUnsupported)
	}
	purchase, err := verifier.VerifyPurchase(ctx, productID, purchaseToken, productType)
	if err != nil {
		return domain.Purchase{}, fmt.Errorf("verify purchase: %w", err)
	}
	s.logf("purchase verified",
		slog.String("product_id", productID), slog.String("purchase_token", purchaseToken))
	s.emit(SignalPurchasesUpdated, int(domain.CodeOK), "", signal.FromPurchases([]domain.Purchase{purchase}))
	return purchase, nil
}

// SetLogLevel tunes diagnostic verbosity. Zero silences session diagnostics.
func (s *Session) SetLogLevel(level int) {
	s.cfgMu.Lock()
	s.logLevel = level
	s.cfgMu.Unlock()
}

// SetLogTag replaces the tag attached to session diagnostics.
func (s *Session) SetLogTag(tag string) {
	s.cfgMu.Lock()
	s.logTag = tag
	s.cfgMu.Unlock()
}

// NotifyResume forwards the host-environment resume event. Emission
// failures (for example, no listener attached yet) are logged and swallowed.
func (s *Session) NotifyResume() {
	s.emit(SignalResume)
}

// CachedProduct returns the last-seen descriptor for a product id.
func (s *Session) CachedProduct(productID string) (domain.ProductDetails, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	details, ok := s.products[productID]
	return details, ok
}

// PendingAcknowledgments returns the tokens of acknowledgment requests still
// awaiting their completion callback.
func (s *Session) PendingAcknowledgments() []string {
	s.ackMu.Lock()
	defer s.ackMu.Unlock()
	tokens := make([]string, 0, len(s.pendingAcks))
	for token := range s.pendingAcks {
		tokens = append(tokens, token)
	}
	return tokens
}

func (s *Session) handleSetupFinished(result domain.Result) {
	if result.OK() {
		s.logf("billing service connected")
		s.emit(SignalConnected)
		return
	}
	s.logf("billing service connection failed",
		slog.Int("response_code", int(result.Code)), slog.String("debug_message", result.Message))
	s.emit(SignalConnectError, int(result.Code), result.Message)
}

func (s *Session) handleServiceDisconnected() {
	s.logf("billing service disconnected")
	s.emit(SignalDisconnected)
}

func (s *Session) handlePurchasesUpdated(result domain.Result, purchases []domain.Purchase) {
	s.logf("purchases updated",
		slog.Int("response_code", int(result.Code)), slog.Int("count", len(purchases)))
	s.emit(SignalPurchasesUpdated, int(result.Code), result.Message, signal.FromPurchases(purchases))
}

func (s *Session) handleProductDetails(result domain.Result, products []domain.ProductDetails) {
	s.mu.Lock()
	for _, details := range products {
		s.products[details.ID] = details
	}
	s.mu.Unlock()

	s.logf("product details received",
		slog.Int("response_code", int(result.Code)), slog.Int("count", len(products)))
	s.emit(SignalQueryProductDetails, int(result.Code), result.Message, signal.FromProductDetailsList(products))
}

func (s *Session) host() ports.HostContext {
	if s.hosts == nil {
		return nil
	}
	return s.hosts.Host()
}

// emit delivers one signal on the sink. Sink failures are logged and never
// propagated back across the signal boundary.
func (s *Session) emit(name string, args ...any) {
	if err := s.sink.Emit(name, args...); err != nil {
		s.logger.Warn("signal emission failed",
			slog.String("signal", name), slog.String("error", err.Error()))
	}
}

func (s *Session) logf(msg string, attrs ...slog.Attr) {
	s.cfgMu.RLock()
	level, tag := s.logLevel, s.logTag
	s.cfgMu.RUnlock()
	if level <= 0 {
		return
	}
	attrs = append(attrs, slog.String("tag", tag))
	s.logger.LogAttrs(context.Background(), slog.LevelInfo, msg, attrs...)
}

var _ ports.Service = (*Session)(nil)
