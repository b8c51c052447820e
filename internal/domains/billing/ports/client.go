package ports

import (
	"context"

	"github.com/enginebridge/playbilling/internal/domains/billing/domain"
)

// ConnectionConfig carries the client construction options negotiated at
// connect time.
type ConnectionConfig struct {
	// EnablePendingOneTimePurchases opts in to deferred one-time-product
	// purchases, which the session always requests.
	EnablePendingOneTimePurchases bool
}

// ConnectionCallbacks bundles the hooks a billing client invokes on its own
// dispatch goroutine for connection lifecycle and purchase updates. All
// fields are optional; the client skips nil hooks.
type ConnectionCallbacks struct {
	// OnSetupFinished fires once connection setup completes, successfully
	// or not.
	OnSetupFinished func(domain.Result)
	// OnServiceDisconnected fires when an established connection is lost.
	OnServiceDisconnected func()
	// OnPurchasesUpdated fires whenever the user's purchases change, for
	// example after a purchase flow completes. A nil purchase list means no
	// purchases were reported.
	OnPurchasesUpdated func(domain.Result, []domain.Purchase)
}

// ProductQueryEntry names one product to resolve, tagged with its type.
type ProductQueryEntry struct {
	ProductID string
	Type      domain.ProductType
}

// PurchaseFlowParams is everything needed to launch a purchase flow for a
// product previously resolved through a product-details query.
type PurchaseFlowParams struct {
	Product domain.ProductDetails
	// OfferToken selects a subscription pricing offer; empty for one-time
	// products.
	OfferToken string
	// Host is the foreground host surface the payment UI attaches to.
	Host HostContext

	ObfuscatedAccountID string
	ObfuscatedProfileID string
}

// Client is the black-box platform billing service. Every asynchronous
// operation takes a per-call result closure which the client invokes exactly
// once on its own dispatch goroutine; LaunchPurchaseFlow reports its launch
// outcome synchronously and delivers later purchase results through
// ConnectionCallbacks.OnPurchasesUpdated.
type Client interface {
	StartConnection(cfg ConnectionConfig, callbacks ConnectionCallbacks) error
	EndConnection()
	IsReady() bool
	ConnectionState() domain.ConnectionState

	QueryProductDetails(ctx context.Context, products []ProductQueryEntry, fn func(domain.Result, []domain.ProductDetails))
	LaunchPurchaseFlow(ctx context.Context, params PurchaseFlowParams) domain.Result
	AcknowledgePurchase(ctx context.Context, purchaseToken string, fn func(domain.Result))
	Consume(ctx context.Context, purchaseToken string, fn func(domain.Result, string))
	QueryPurchases(ctx context.Context, productType domain.ProductType, fn func(domain.Result, []domain.Purchase))
}

// PurchaseVerifier is implemented by clients that learn about purchases out
// of band, by verifying a device-reported token against the billing service.
// On-device clients report purchases through ConnectionCallbacks instead and
// do not implement it. Acknowledge, consume, and purchase queries on such a
// client operate only on verified tokens.
type PurchaseVerifier interface {
	VerifyPurchase(ctx context.Context, productID, purchaseToken string, productType domain.ProductType) (domain.Purchase, error)
}
