package ports

import (
	"context"

	"github.com/enginebridge/playbilling/internal/domains/billing/domain"
)

// Service is the command surface the host/caller drives. Commands with an
// asynchronous outcome return immediately; results arrive as signals on the
// session's SignalSink.
type Service interface {
	// StartConnection begins asynchronous connection setup. It returns an
	// error only for usage mistakes (no host surface attached); service
	// outcomes arrive as connected/connect_error signals.
	StartConnection(ctx context.Context) error
	// EndConnection releases the billing client connection. Callers must
	// have started a connection first.
	EndConnection()

	IsReady() bool
	ConnectionState() domain.ConnectionState

	// QueryProductDetails resolves product metadata for the given ids. An
	// empty id list is a no-op: no service call, no signal.
	QueryProductDetails(ctx context.Context, productIDs []string, productType domain.ProductType)
	// Purchase launches the purchase flow for a product previously resolved
	// through QueryProductDetails. Local validation failures surface as a
	// purchase_error signal; the flow result arrives via purchases_updated.
	Purchase(ctx context.Context, productID string, productType domain.ProductType)
	// AcknowledgePurchase confirms entitlement for the purchase token.
	AcknowledgePurchase(ctx context.Context, purchaseToken string)
	// Consume marks a one-time purchase as used so it can be bought again.
	Consume(ctx context.Context, purchaseToken string)
	// QueryPurchases requests all purchases of the given product type.
	QueryPurchases(ctx context.Context, productType domain.ProductType)

	// VerifyPurchase registers a device-reported purchase token with the
	// billing backend and returns the fresh purchase record. Backends whose
	// client does not implement PurchaseVerifier reject the call.
	VerifyPurchase(ctx context.Context, productID, purchaseToken string, productType domain.ProductType) (domain.Purchase, error)

	// SetLogLevel and SetLogTag tune diagnostic output only; both may be
	// called before or after StartConnection.
	SetLogLevel(level int)
	SetLogTag(tag string)

	// NotifyResume forwards the host-environment resume event to the engine.
	NotifyResume()
}
