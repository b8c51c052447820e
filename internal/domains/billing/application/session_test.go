package application

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/enginebridge/playbilling/internal/domains/billing/domain"
	"github.com/enginebridge/playbilling/internal/domains/billing/ports"
)

type fakeHost struct{ id string }

func (h fakeHost) HostID() string { return h.id }

type fakeClient struct {
	callbacks ports.ConnectionCallbacks
	started   bool
	ended     bool
	ready     bool
	state     domain.ConnectionState

	productQueries [][]ports.ProductQueryEntry
	launchParams   []ports.PurchaseFlowParams
	launchResult   domain.Result

	ackFns      map[string]func(domain.Result)
	consumeFns  map[string]func(domain.Result, string)
	productFn   func(domain.Result, []domain.ProductDetails)
	purchasesFn func(domain.Result, []domain.Purchase)
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		launchResult: domain.ResultOK,
		ackFns:       map[string]func(domain.Result){},
		consumeFns:   map[string]func(domain.Result, string){},
	}
}

func (c *fakeClient) StartConnection(_ ports.ConnectionConfig, callbacks ports.ConnectionCallbacks) error {
	c.started = true
	c.callbacks = callbacks
	c.state = domain.StateConnecting
	return nil
}

func (c *fakeClient) EndConnection() {
	c.ended = true
	c.state = domain.StateClosed
}

func (c *fakeClient) IsReady() bool { return c.ready }

func (c *fakeClient) ConnectionState() domain.ConnectionState { return c.state }

func (c *fakeClient) QueryProductDetails(_ context.Context, products []ports.ProductQueryEntry, fn func(domain.Result, []domain.ProductDetails)) {
	c.productQueries = append(c.productQueries, products)
	c.productFn = fn
}

func (c *fakeClient) LaunchPurchaseFlow(_ context.Context, params ports.PurchaseFlowParams) domain.Result {
	c.launchParams = append(c.launchParams, params)
	return c.launchResult
}

func (c *fakeClient) AcknowledgePurchase(_ context.Context, token string, fn func(domain.Result)) {
	c.ackFns[token] = fn
}

func (c *fakeClient) Consume(_ context.Context, token string, fn func(domain.Result, string)) {
	c.consumeFns[token] = fn
}

func (c *fakeClient) QueryPurchases(_ context.Context, _ domain.ProductType, fn func(domain.Result, []domain.Purchase)) {
	c.purchasesFn = fn
}

type emitted struct {
	name string
	args []any
}

type fakeSink struct {
	mu      sync.Mutex
	signals []emitted
	err     error
}

func (s *fakeSink) Emit(name string, args ...any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.signals = append(s.signals, emitted{name: name, args: args})
	return nil
}

func (s *fakeSink) all() []emitted {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]emitted{}, s.signals...)
}

func newTestSession(t *testing.T) (*Session, *fakeClient, *fakeSink) {
	t.Helper()
	client := newFakeClient()
	sink := &fakeSink{}
	session := NewSession(client, sink, ports.HostProviderFunc(func() ports.HostContext {
		return fakeHost{id: "host-1"}
	}))
	return session, client, sink
}

func coinPack() domain.ProductDetails {
	return domain.ProductDetails{
		ID:    "coin_pack_1",
		Type:  domain.ProductTypeInApp,
		Title: "Coin Pack",
		OneTimeOffer: &domain.OneTimeOffer{
			CurrencyCode:      "USD",
			FormattedPrice:    "$1.99",
			PriceAmountMicros: 1990000,
		},
	}
}

func TestStartConnection_RequiresHost(t *testing.T) {
	client := newFakeClient()
	session := NewSession(client, &fakeSink{}, ports.HostProviderFunc(func() ports.HostContext {
		return nil
	}))

	err := session.StartConnection(context.Background())
	require.ErrorIs(t, err, ErrNoHost)
	require.False(t, client.started)
}

func TestStartConnection_SignalsOutcome(t *testing.T) {
	session, client, sink := newTestSession(t)
	require.NoError(t, session.StartConnection(context.Background()))
	require.True(t, client.started)

	client.callbacks.OnSetupFinished(domain.ResultOK)
	signals := sink.all()
	require.Len(t, signals, 1)
	require.Equal(t, SignalConnected, signals[0].name)
	require.Empty(t, signals[0].args)

	client.callbacks.OnSetupFinished(domain.Result{Code: domain.CodeBillingUnavailable, Message: "store unavailable"})
	signals = sink.all()
	require.Len(t, signals, 2)
	require.Equal(t, SignalConnectError, signals[1].name)
	require.Equal(t, []any{int(domain.CodeBillingUnavailable), "store unavailable"}, signals[1].args)

	client.callbacks.OnServiceDisconnected()
	signals = sink.all()
	require.Equal(t, SignalDisconnected, signals[2].name)
}

func TestQueryProductDetails_EmptyIDsIsNoop(t *testing.T) {
	session, client, sink := newTestSession(t)
	session.QueryProductDetails(context.Background(), nil, domain.ProductTypeInApp)
	require.Empty(t, client.productQueries)
	require.Empty(t, sink.all())
}

func TestQueryProductDetails_CachesAndSignals(t *testing.T) {
	session, client, sink := newTestSession(t)
	session.QueryProductDetails(context.Background(), []string{"coin_pack_1", "coin_pack_2"}, domain.ProductTypeInApp)

	require.Len(t, client.productQueries, 1)
	require.Equal(t, []ports.ProductQueryEntry{
		{ProductID: "coin_pack_1", Type: domain.ProductTypeInApp},
		{ProductID: "coin_pack_2", Type: domain.ProductTypeInApp},
	}, client.productQueries[0])

	client.productFn(domain.ResultOK, []domain.ProductDetails{coinPack()})

	cached, ok := session.CachedProduct("coin_pack_1")
	require.True(t, ok)
	require.Equal(t, int64(1990000), cached.OneTimeOffer.PriceAmountMicros)
	require.Equal(t, "USD", cached.OneTimeOffer.CurrencyCode)

	signals := sink.all()
	require.Len(t, signals, 1)
	require.Equal(t, SignalQueryProductDetails, signals[0].name)
	require.Equal(t, int(domain.CodeOK), signals[0].args[0])
	list, ok := signals[0].args[2].([]any)
	require.True(t, ok)
	require.Len(t, list, 1)
}

func TestQueryProductDetails_RequeryReplaces(t *testing.T) {
	session, client, _ := newTestSession(t)
	session.QueryProductDetails(context.Background(), []string{"coin_pack_1"}, domain.ProductTypeInApp)
	client.productFn(domain.ResultOK, []domain.ProductDetails{coinPack()})

	updated := coinPack()
	updated.OneTimeOffer = &domain.OneTimeOffer{CurrencyCode: "EUR", FormattedPrice: "€1.79", PriceAmountMicros: 1790000}
	session.QueryProductDetails(context.Background(), []string{"coin_pack_1"}, domain.ProductTypeInApp)
	client.productFn(domain.ResultOK, []domain.ProductDetails{updated})

	cached, ok := session.CachedProduct("coin_pack_1")
	require.True(t, ok)
	require.Equal(t, "EUR", cached.OneTimeOffer.CurrencyCode)
}

func TestPurchase_UnknownProductEmitsErrorWithoutServiceCall(t *testing.T) {
	session, client, sink := newTestSession(t)
	session.Purchase(context.Background(), "unknown_id", domain.ProductTypeInApp)

	require.Empty(t, client.launchParams)
	signals := sink.all()
	require.Len(t, signals, 1)
	require.Equal(t, SignalPurchaseError, signals[0].name)
	require.Equal(t, int(domain.CodeError), signals[0].args[0])
	require.Contains(t, signals[0].args[1], "queryProductDetails")
}

func TestPurchase_NoHostEmitsServiceDisconnected(t *testing.T) {
	client := newFakeClient()
	sink := &fakeSink{}
	var host ports.HostContext = fakeHost{id: "host-1"}
	session := NewSession(client, sink, ports.HostProviderFunc(func() ports.HostContext {
		return host
	}))

	session.QueryProductDetails(context.Background(), []string{"coin_pack_1"}, domain.ProductTypeInApp)
	client.productFn(domain.ResultOK, []domain.ProductDetails{coinPack()})

	host = nil
	session.Purchase(context.Background(), "coin_pack_1", domain.ProductTypeInApp)

	require.Empty(t, client.launchParams)
	signals := sink.all()
	require.Equal(t, SignalPurchaseError, signals[len(signals)-1].name)
	require.Equal(t, int(domain.CodeServiceDisconnected), signals[len(signals)-1].args[0])
}

func TestPurchase_OneTimeBuildsFlowParams(t *testing.T) {
	session, client, sink := newTestSession(t)
	session.QueryProductDetails(context.Background(), []string{"coin_pack_1"}, domain.ProductTypeInApp)
	client.productFn(domain.ResultOK, []domain.ProductDetails{coinPack()})

	session.Purchase(context.Background(), "coin_pack_1", domain.ProductTypeInApp)

	require.Len(t, client.launchParams, 1)
	params := client.launchParams[0]
	require.Equal(t, "coin_pack_1", params.Product.ID)
	require.Empty(t, params.OfferToken)
	require.Equal(t, "host-1", params.Host.HostID())

	// Successful launches produce no immediate signal.
	signals := sink.all()
	require.Len(t, signals, 1)
	require.Equal(t, SignalQueryProductDetails, signals[0].name)
}

func TestPurchase_SubscriptionSelectsFirstOffer(t *testing.T) {
	session, client, _ := newTestSession(t)
	sub := domain.ProductDetails{
		ID:   "gold_monthly",
		Type: domain.ProductTypeSubs,
		SubscriptionOffers: []domain.SubscriptionOffer{
			{OfferID: "intro", OfferToken: "offer-token-1", BasePlanID: "monthly"},
			{OfferID: "standard", OfferToken: "offer-token-2", BasePlanID: "monthly"},
		},
	}
	session.QueryProductDetails(context.Background(), []string{"gold_monthly"}, domain.ProductTypeSubs)
	client.productFn(domain.ResultOK, []domain.ProductDetails{sub})

	session.Purchase(context.Background(), "gold_monthly", domain.ProductTypeSubs)

	require.Len(t, client.launchParams, 1)
	require.Equal(t, "offer-token-1", client.launchParams[0].OfferToken)
}

func TestPurchase_SubscriptionWithoutOffersEmitsError(t *testing.T) {
	session, client, sink := newTestSession(t)
	sub := domain.ProductDetails{ID: "gold_monthly", Type: domain.ProductTypeSubs}
	session.QueryProductDetails(context.Background(), []string{"gold_monthly"}, domain.ProductTypeSubs)
	client.productFn(domain.ResultOK, []domain.ProductDetails{sub})

	session.Purchase(context.Background(), "gold_monthly", domain.ProductTypeSubs)

	require.Empty(t, client.launchParams)
	signals := sink.all()
	last := signals[len(signals)-1]
	require.Equal(t, SignalPurchaseError, last.name)
	require.Equal(t, int(domain.CodeItemUnavailable), last.args[0])
}

func TestPurchase_FailedLaunchEmitsError(t *testing.T) {
	session, client, sink := newTestSession(t)
	session.QueryProductDetails(context.Background(), []string{"coin_pack_1"}, domain.ProductTypeInApp)
	client.productFn(domain.ResultOK, []domain.ProductDetails{coinPack()})

	client.launchResult = domain.Result{Code: domain.CodeItemAlreadyOwned, Message: "already owned"}
	session.Purchase(context.Background(), "coin_pack_1", domain.ProductTypeInApp)

	signals := sink.all()
	last := signals[len(signals)-1]
	require.Equal(t, SignalPurchaseError, last.name)
	require.Equal(t, []any{int(domain.CodeItemAlreadyOwned), "already owned"}, last.args)
}

func TestAcknowledgePurchase_RoundTrip(t *testing.T) {
	session, client, sink := newTestSession(t)

	session.AcknowledgePurchase(context.Background(), "token-a")
	require.Equal(t, []string{"token-a"}, session.PendingAcknowledgments())

	client.ackFns["token-a"](domain.ResultOK)

	signals := sink.all()
	require.Len(t, signals, 1)
	require.Equal(t, SignalPurchaseAcknowledged, signals[0].name)
	require.Equal(t, []any{int(domain.CodeOK), "", "token-a"}, signals[0].args)
	require.Empty(t, session.PendingAcknowledgments())
}

func TestAcknowledgePurchase_ConcurrentTokensCorrelate(t *testing.T) {
	session, client, sink := newTestSession(t)

	session.AcknowledgePurchase(context.Background(), "token-a")
	session.AcknowledgePurchase(context.Background(), "token-b")
	require.Len(t, session.PendingAcknowledgments(), 2)

	// Completions arrive out of order; each signal carries its own token.
	client.ackFns["token-b"](domain.ResultOK)
	client.ackFns["token-a"](domain.Result{Code: domain.CodeDeveloperError, Message: "invalid token"})

	signals := sink.all()
	require.Len(t, signals, 2)
	require.Equal(t, "token-b", signals[0].args[2])
	require.Equal(t, "token-a", signals[1].args[2])
	require.Equal(t, int(domain.CodeDeveloperError), signals[1].args[0])
	require.Empty(t, session.PendingAcknowledgments())
}

func TestConsume_SignalsToken(t *testing.T) {
	session, client, sink := newTestSession(t)
	session.Consume(context.Background(), "token-c")
	client.consumeFns["token-c"](domain.ResultOK, "token-c")

	signals := sink.all()
	require.Len(t, signals, 1)
	require.Equal(t, SignalPurchaseConsumed, signals[0].name)
	require.Equal(t, []any{int(domain.CodeOK), "", "token-c"}, signals[0].args)
}

func TestQueryPurchases_SignalsTranslatedList(t *testing.T) {
	session, client, sink := newTestSession(t)
	session.QueryPurchases(context.Background(), domain.ProductTypeInApp)

	client.purchasesFn(domain.ResultOK, []domain.Purchase{
		{Token: "token-1", Products: []string{"coin_pack_1"}, State: domain.PurchaseStatePurchased},
	})

	signals := sink.all()
	require.Len(t, signals, 1)
	require.Equal(t, SignalQueryPurchases, signals[0].name)
	list, ok := signals[0].args[2].([]any)
	require.True(t, ok)
	require.Len(t, list, 1)
	record, ok := list[0].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "token-1", record["token"])
}

type fakeVerifierClient struct {
	*fakeClient
	verified  domain.Purchase
	verifyErr error

	verifiedID    string
	verifiedToken string
	verifiedType  domain.ProductType
}

func (c *fakeVerifierClient) VerifyPurchase(_ context.Context, productID, purchaseToken string, productType domain.ProductType) (domain.Purchase, error) {
	c.verifiedID = productID
	c.verifiedToken = purchaseToken
	c.verifiedType = productType
	if c.verifyErr != nil {
		return domain.Purchase{}, c.verifyErr
	}
	return c.verified, nil
}

func TestVerifyPurchase_UnsupportedClient(t *testing.T) {
	session, _, sink := newTestSession(t)

	_, err := session.VerifyPurchase(context.Background(), "coin_pack_1", "token-v", domain.ProductTypeInApp)
	require.ErrorIs(t, err, ErrVerificationUnsupported)
	require.Empty(t, sink.all())
}

func TestVerifyPurchase_SignalsPurchasesUpdated(t *testing.T) {
	client := &fakeVerifierClient{
		fakeClient: newFakeClient(),
		verified: domain.Purchase{
			Token:    "token-v",
			Products: []string{"coin_pack_1"},
			State:    domain.PurchaseStatePurchased,
			Quantity: 1,
		},
	}
	sink := &fakeSink{}
	session := NewSession(client, sink, ports.HostProviderFunc(func() ports.HostContext {
		return fakeHost{id: "host-1"}
	}))

	purchase, err := session.VerifyPurchase(context.Background(), "coin_pack_1", "token-v", domain.ProductTypeInApp)
	require.NoError(t, err)
	require.Equal(t, "token-v", purchase.Token)
	require.Equal(t, "coin_pack_1", client.verifiedID)
	require.Equal(t, domain.ProductTypeInApp, client.verifiedType)

	signals := sink.all()
	require.Len(t, signals, 1)
	require.Equal(t, SignalPurchasesUpdated, signals[0].name)
	require.Equal(t, int(domain.CodeOK), signals[0].args[0])
	list, ok := signals[0].args[2].([]any)
	require.True(t, ok)
	require.Len(t, list, 1)
	record, ok := list[0].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "token-v", record["token"])
}

func TestVerifyPurchase_ClientErrorEmitsNoSignal(t *testing.T) {
	client := &fakeVerifierClient{
		fakeClient: newFakeClient(),
		verifyErr:  errors.New("purchase token was not found"),
	}
	sink := &fakeSink{}
	session := NewSession(client, sink, ports.HostProviderFunc(func() ports.HostContext {
		return fakeHost{id: "host-1"}
	}))

	_, err := session.VerifyPurchase(context.Background(), "coin_pack_1", "token-bad", domain.ProductTypeInApp)
	require.ErrorContains(t, err, "purchase token was not found")
	require.Empty(t, sink.all())
}

func TestPurchasesUpdated_EmptyListIsEmittedNotOmitted(t *testing.T) {
	session, client, sink := newTestSession(t)
	require.NoError(t, session.StartConnection(context.Background()))

	client.callbacks.OnPurchasesUpdated(domain.Result{Code: domain.CodeOK, Message: "ok"}, nil)

	signals := sink.all()
	require.Len(t, signals, 1)
	require.Equal(t, SignalPurchasesUpdated, signals[0].name)
	require.Len(t, signals[0].args, 3)
	list, ok := signals[0].args[2].([]any)
	require.True(t, ok)
	require.NotNil(t, list)
	require.Empty(t, list)
}

func TestNotifyResume_SinkFailureIsSwallowed(t *testing.T) {
	client := newFakeClient()
	sink := &fakeSink{err: errors.New("listener not ready")}
	session := NewSession(client, sink, ports.HostProviderFunc(func() ports.HostContext {
		return fakeHost{id: "host-1"}
	}))

	require.NotPanics(t, func() { session.NotifyResume() })
	require.Empty(t, sink.all())
}

func TestEndConnection_ReleasesClient(t *testing.T) {
	session, client, _ := newTestSession(t)
	require.NoError(t, session.StartConnection(context.Background()))
	session.EndConnection()
	require.True(t, client.ended)
	require.Equal(t, domain.StateClosed, session.ConnectionState())
}
