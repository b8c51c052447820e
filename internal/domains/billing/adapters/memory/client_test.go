package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/enginebridge/playbilling/internal/domains/billing/domain"
	"github.com/enginebridge/playbilling/internal/domains/billing/ports"
)

type testHost struct{}

func (testHost) HostID() string { return "test-host" }

func catalog() []domain.ProductDetails {
	return []domain.ProductDetails{
		{
			ID:   "coin_pack_1",
			Type: domain.ProductTypeInApp,
			OneTimeOffer: &domain.OneTimeOffer{
				CurrencyCode:      "USD",
				FormattedPrice:    "$1.99",
				PriceAmountMicros: 1990000,
			},
		},
		{
			ID:   "gold_monthly",
			Type: domain.ProductTypeSubs,
			SubscriptionOffers: []domain.SubscriptionOffer{
				{OfferID: "standard", BasePlanID: "monthly", OfferToken: "offer-token-1"},
			},
		},
	}
}

func connectedClient(t *testing.T) (*Client, *[]domain.Purchase) {
	t.Helper()
	client := NewClient(WithCatalog(catalog()), WithSynchronousDispatch())

	var setup domain.Result
	updates := &[]domain.Purchase{}
	err := client.StartConnection(ports.ConnectionConfig{EnablePendingOneTimePurchases: true}, ports.ConnectionCallbacks{
		OnSetupFinished: func(r domain.Result) { setup = r },
		OnPurchasesUpdated: func(_ domain.Result, purchases []domain.Purchase) {
			*updates = append(*updates, purchases...)
		},
	})
	require.NoError(t, err)
	require.True(t, setup.OK())
	require.True(t, client.IsReady())
	return client, updates
}

func TestStartConnection_ReportsConfiguredFailure(t *testing.T) {
	client := NewClient(WithSynchronousDispatch(),
		WithConnectResult(domain.Result{Code: domain.CodeBillingUnavailable, Message: "unavailable"}))

	var setup domain.Result
	err := client.StartConnection(ports.ConnectionConfig{}, ports.ConnectionCallbacks{
		OnSetupFinished: func(r domain.Result) { setup = r },
	})
	require.NoError(t, err)
	require.Equal(t, domain.CodeBillingUnavailable, setup.Code)
	require.False(t, client.IsReady())
	require.Equal(t, domain.StateDisconnected, client.ConnectionState())
}

func TestQueryProductDetails_FiltersByIDAndType(t *testing.T) {
	client, _ := connectedClient(t)

	var result domain.Result
	var found []domain.ProductDetails
	client.QueryProductDetails(context.Background(), []ports.ProductQueryEntry{
		{ProductID: "coin_pack_1", Type: domain.ProductTypeInApp},
		{ProductID: "missing", Type: domain.ProductTypeInApp},
		{ProductID: "gold_monthly", Type: domain.ProductTypeInApp}, // wrong type
	}, func(r domain.Result, list []domain.ProductDetails) {
		result, found = r, list
	})

	require.True(t, result.OK())
	require.Len(t, found, 1)
	require.Equal(t, "coin_pack_1", found[0].ID)
}

func TestLaunchPurchaseFlow_Lifecycle(t *testing.T) {
	client, updates := connectedClient(t)

	result := client.LaunchPurchaseFlow(context.Background(), ports.PurchaseFlowParams{
		Product: domain.ProductDetails{ID: "coin_pack_1"},
		Host:    testHost{},
	})
	require.True(t, result.OK())
	require.Len(t, *updates, 1)

	purchase := (*updates)[0]
	require.Equal(t, []string{"coin_pack_1"}, purchase.Products)
	require.Equal(t, domain.PurchaseStatePurchased, purchase.State)
	require.NotEmpty(t, purchase.Token)
	require.NotEmpty(t, purchase.OrderID)
	require.False(t, purchase.Acknowledged)

	// Acknowledge, then query finds the acknowledged record.
	var ackResult domain.Result
	client.AcknowledgePurchase(context.Background(), purchase.Token, func(r domain.Result) { ackResult = r })
	require.True(t, ackResult.OK())

	var queried []domain.Purchase
	client.QueryPurchases(context.Background(), domain.ProductTypeInApp, func(_ domain.Result, list []domain.Purchase) {
		queried = list
	})
	require.Len(t, queried, 1)
	require.True(t, queried[0].Acknowledged)

	// Consume removes it.
	var consumeResult domain.Result
	client.Consume(context.Background(), purchase.Token, func(r domain.Result, _ string) { consumeResult = r })
	require.True(t, consumeResult.OK())

	client.QueryPurchases(context.Background(), domain.ProductTypeInApp, func(_ domain.Result, list []domain.Purchase) {
		queried = list
	})
	require.Empty(t, queried)
}

func TestConsume_PreservesOrderOfRemainingPurchases(t *testing.T) {
	client, updates := connectedClient(t)

	for i := 0; i < 3; i++ {
		result := client.LaunchPurchaseFlow(context.Background(), ports.PurchaseFlowParams{
			Product: domain.ProductDetails{ID: "coin_pack_1"},
			Host:    testHost{},
		})
		require.True(t, result.OK())
	}
	require.Len(t, *updates, 3)
	first, middle, last := (*updates)[0].Token, (*updates)[1].Token, (*updates)[2].Token

	var consumeResult domain.Result
	client.Consume(context.Background(), middle, func(r domain.Result, _ string) { consumeResult = r })
	require.True(t, consumeResult.OK())

	var queried []domain.Purchase
	client.QueryPurchases(context.Background(), domain.ProductTypeInApp, func(_ domain.Result, list []domain.Purchase) {
		queried = list
	})
	require.Len(t, queried, 2)
	require.Equal(t, first, queried[0].Token)
	require.Equal(t, last, queried[1].Token)
}

func TestLaunchPurchaseFlow_Validation(t *testing.T) {
	client, _ := connectedClient(t)

	result := client.LaunchPurchaseFlow(context.Background(), ports.PurchaseFlowParams{
		Product: domain.ProductDetails{ID: "coin_pack_1"},
	})
	require.Equal(t, domain.CodeDeveloperError, result.Code)

	result = client.LaunchPurchaseFlow(context.Background(), ports.PurchaseFlowParams{
		Product: domain.ProductDetails{ID: "missing"},
		Host:    testHost{},
	})
	require.Equal(t, domain.CodeItemUnavailable, result.Code)

	result = client.LaunchPurchaseFlow(context.Background(), ports.PurchaseFlowParams{
		Product: domain.ProductDetails{ID: "gold_monthly"},
		Host:    testHost{},
	})
	require.Equal(t, domain.CodeDeveloperError, result.Code)

	client.EndConnection()
	result = client.LaunchPurchaseFlow(context.Background(), ports.PurchaseFlowParams{
		Product: domain.ProductDetails{ID: "coin_pack_1"},
		Host:    testHost{},
	})
	require.Equal(t, domain.CodeServiceDisconnected, result.Code)
}

func TestAcknowledge_UnknownToken(t *testing.T) {
	client, _ := connectedClient(t)

	var result domain.Result
	client.AcknowledgePurchase(context.Background(), "bogus", func(r domain.Result) { result = r })
	require.Equal(t, domain.CodeDeveloperError, result.Code)
}

func TestConsume_SubscriptionRejected(t *testing.T) {
	client, updates := connectedClient(t)

	result := client.LaunchPurchaseFlow(context.Background(), ports.PurchaseFlowParams{
		Product:    domain.ProductDetails{ID: "gold_monthly"},
		Host:       testHost{},
		OfferToken: "offer-token-1",
	})
	require.True(t, result.OK())
	require.Len(t, *updates, 1)

	var consumeResult domain.Result
	client.Consume(context.Background(), (*updates)[0].Token, func(r domain.Result, _ string) { consumeResult = r })
	require.Equal(t, domain.CodeDeveloperError, consumeResult.Code)
}
