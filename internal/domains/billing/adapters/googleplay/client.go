// Package googleplay adapts the Google Play Developer API (androidpublisher)
// to the billing client port for server-side use: catalog queries, purchase
// verification, acknowledgment, and consumption. Purchase flows are a
// device-side feature and report FEATURE_NOT_SUPPORTED here.
package googleplay

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	androidpublisher "google.golang.org/api/androidpublisher/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/enginebridge/playbilling/internal/domains/billing/domain"
	"github.com/enginebridge/playbilling/internal/domains/billing/ports"
)

var (
	_ ports.Client           = (*Client)(nil)
	_ ports.PurchaseVerifier = (*Client)(nil)
)

// Config carries the publisher credentials and target application.
type Config struct {
	PackageName        string
	ServiceAccountFile string
}

type trackedToken struct {
	productID   string
	productType domain.ProductType
}

// Client is the androidpublisher-backed billing client. Because the server
// API addresses purchases by (product id, token) while the client port
// speaks tokens only, the client keeps a registry of tokens it has verified
// through VerifyPurchase; acknowledge, consume, and purchase queries operate
// on that registry.
type Client struct {
	cfg Config
	svc *androidpublisher.Service

	mu        sync.Mutex
	state     domain.ConnectionState
	callbacks ports.ConnectionCallbacks
	tokens    map[string]trackedToken
}

// NewClient builds the publisher service from a service-account credentials
// file scoped to the androidpublisher API.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.PackageName == "" {
		return nil, errors.New("googleplay: package name is required")
	}
	if cfg.ServiceAccountFile == "" {
		return nil, errors.New("googleplay: service account file is required")
	}
	svc, err := androidpublisher.NewService(ctx,
		option.WithCredentialsFile(cfg.ServiceAccountFile),
		option.WithScopes(androidpublisher.AndroidpublisherScope),
	)
	if err != nil {
		return nil, fmt.Errorf("googleplay: new service: %w", err)
	}
	return &Client{
		cfg:    cfg,
		svc:    svc,
		state:  domain.StateDisconnected,
		tokens: map[string]trackedToken{},
	}, nil
}

func (c *Client) StartConnection(_ ports.ConnectionConfig, callbacks ports.ConnectionCallbacks) error {
	c.mu.Lock()
	c.callbacks = callbacks
	c.state = domain.StateConnecting
	c.mu.Unlock()

	go func() {
		c.mu.Lock()
		c.state = domain.StateConnected
		fn := c.callbacks.OnSetupFinished
		c.mu.Unlock()
		if fn != nil {
			fn(domain.ResultOK)
		}
	}()
	return nil
}

func (c *Client) EndConnection() {
	c.mu.Lock()
	c.state = domain.StateClosed
	c.mu.Unlock()
}

func (c *Client) IsReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == domain.StateConnected
}

func (c *Client) ConnectionState() domain.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) QueryProductDetails(ctx context.Context, products []ports.ProductQueryEntry, fn func(domain.Result, []domain.ProductDetails)) {
	go func() {
		wantSubs := false
		wantInApp := false
		requested := map[string]domain.ProductType{}
		for _, entry := range products {
			requested[entry.ProductID] = entry.Type
			switch entry.Type {
			case domain.ProductTypeSubs:
				wantSubs = true
			default:
				wantInApp = true
			}
		}

		byID := map[string]domain.ProductDetails{}
		if wantInApp {
			resp, err := c.svc.Inappproducts.List(c.cfg.PackageName).Context(ctx).Do()
			if err != nil {
				fn(resultFromError(err, "list in-app products"), nil)
				return
			}
			for _, product := range resp.Inappproduct {
				byID[product.Sku] = fromInAppProduct(product)
			}
		}
		if wantSubs {
			resp, err := c.svc.Monetization.Subscriptions.List(c.cfg.PackageName).Context(ctx).Do()
			if err != nil {
				fn(resultFromError(err, "list subscriptions"), nil)
				return
			}
			for _, sub := range resp.Subscriptions {
				byID[sub.ProductId] = fromSubscription(sub)
			}
		}

		// Respond in request order, skipping ids the catalog does not know.
		found := make([]domain.ProductDetails, 0, len(products))
		for _, entry := range products {
			if details, ok := byID[entry.ProductID]; ok && details.Type == entry.Type {
				found = append(found, details)
			}
		}
		fn(domain.ResultOK, found)
	}()
}

// LaunchPurchaseFlow always fails: payment UI can only be presented by the
// on-device billing client.
func (c *Client) LaunchPurchaseFlow(_ context.Context, _ ports.PurchaseFlowParams) domain.Result {
	return domain.Result{
		Code:    domain.CodeFeatureNotSupported,
		Message: "purchase flows must be launched by the on-device billing client",
	}
}

// VerifyPurchase verifies a purchase token against the publisher API and
// registers it for later acknowledge/consume/query calls. It returns the
// fresh purchase record on success.
func (c *Client) VerifyPurchase(ctx context.Context, productID, purchaseToken string, productType domain.ProductType) (domain.Purchase, error) {
	purchase, err := c.fetchPurchase(ctx, productID, purchaseToken, productType)
	if err != nil {
		return domain.Purchase{}, err
	}
	c.mu.Lock()
	c.tokens[purchaseToken] = trackedToken{productID: productID, productType: productType}
	c.mu.Unlock()
	return purchase, nil
}

func (c *Client) AcknowledgePurchase(ctx context.Context, purchaseToken string, fn func(domain.Result)) {
	go func() {
		tracked, ok := c.lookup(purchaseToken)
		if !ok {
			fn(domain.Result{Code: domain.CodeDeveloperError, Message: "purchase token has not been verified"})
			return
		}
		var err error
		if tracked.productType == domain.ProductTypeSubs {
			req := &androidpublisher.SubscriptionPurchasesAcknowledgeRequest{}
			err = c.svc.Purchases.Subscriptions.Acknowledge(c.cfg.PackageName, tracked.productID, purchaseToken, req).Context(ctx).Do()
		} else {
			req := &androidpublisher.ProductPurchasesAcknowledgeRequest{}
			err = c.svc.Purchases.Products.Acknowledge(c.cfg.PackageName, tracked.productID, purchaseToken, req).Context(ctx).Do()
		}
		if err != nil {
			fn(resultFromError(err, "acknowledge purchase"))
			return
		}
		fn(domain.ResultOK)
	}()
}

func (c *Client) Consume(ctx context.Context, purchaseToken string, fn func(domain.Result, string)) {
	go func() {
		tracked, ok := c.lookup(purchaseToken)
		if !ok {
			fn(domain.Result{Code: domain.CodeDeveloperError, Message: "purchase token has not been verified"}, purchaseToken)
			return
		}
		if tracked.productType == domain.ProductTypeSubs {
			fn(domain.Result{Code: domain.CodeDeveloperError, Message: "subscriptions cannot be consumed"}, purchaseToken)
			return
		}
		if err := c.svc.Purchases.Products.Consume(c.cfg.PackageName, tracked.productID, purchaseToken).Context(ctx).Do(); err != nil {
			fn(resultFromError(err, "consume purchase"), purchaseToken)
			return
		}
		c.mu.Lock()
		delete(c.tokens, purchaseToken)
		c.mu.Unlock()
		fn(domain.ResultOK, purchaseToken)
	}()
}

func (c *Client) QueryPurchases(ctx context.Context, productType domain.ProductType, fn func(domain.Result, []domain.Purchase)) {
	go func() {
		c.mu.Lock()
		tracked := make(map[string]trackedToken, len(c.tokens))
		for token, t := range c.tokens {
			if t.productType == productType {
				tracked[token] = t
			}
		}
		c.mu.Unlock()

		list := make([]domain.Purchase, 0, len(tracked))
		for token, t := range tracked {
			purchase, err := c.fetchPurchase(ctx, t.productID, token, t.productType)
			if err != nil {
				fn(resultFromError(err, "query purchases"), nil)
				return
			}
			list = append(list, purchase)
		}
		fn(domain.ResultOK, list)
	}()
}

func (c *Client) lookup(purchaseToken string) (trackedToken, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tracked, ok := c.tokens[purchaseToken]
	return tracked, ok
}

func (c *Client) fetchPurchase(ctx context.Context, productID, purchaseToken string, productType domain.ProductType) (domain.Purchase, error) {
	if productType == domain.ProductTypeSubs {
		resp, err := c.svc.Purchases.Subscriptions.Get(c.cfg.PackageName, productID, purchaseToken).Context(ctx).Do()
		if err != nil {
			return domain.Purchase{}, fmt.Errorf("googleplay: subscriptions.get: %w", err)
		}
		return fromSubscriptionPurchase(productID, purchaseToken, c.cfg.PackageName, resp), nil
	}
	resp, err := c.svc.Purchases.Products.Get(c.cfg.PackageName, productID, purchaseToken).Context(ctx).Do()
	if err != nil {
		return domain.Purchase{}, fmt.Errorf("googleplay: products.get: %w", err)
	}
	return fromProductPurchase(productID, purchaseToken, c.cfg.PackageName, resp), nil
}

func fromInAppProduct(product *androidpublisher.InAppProduct) domain.ProductDetails {
	details := domain.ProductDetails{
		ID:   product.Sku,
		Type: domain.ProductTypeInApp,
	}
	if listing, ok := product.Listings[product.DefaultLanguage]; ok {
		details.Title = listing.Title
		details.Name = listing.Title
		details.Description = listing.Description
	}
	if product.DefaultPrice != nil {
		micros, _ := strconv.ParseInt(product.DefaultPrice.PriceMicros, 10, 64)
		details.OneTimeOffer = &domain.OneTimeOffer{
			CurrencyCode:      product.DefaultPrice.Currency,
			FormattedPrice:    formatPrice(product.DefaultPrice.Currency, micros),
			PriceAmountMicros: micros,
		}
	}
	return details
}

func fromSubscription(sub *androidpublisher.Subscription) domain.ProductDetails {
	details := domain.ProductDetails{
		ID:   sub.ProductId,
		Type: domain.ProductTypeSubs,
	}
	for _, listing := range sub.Listings {
		details.Title = listing.Title
		details.Name = listing.Title
		details.Description = listing.Description
		break
	}
	for _, plan := range sub.BasePlans {
		details.SubscriptionOffers = append(details.SubscriptionOffers, domain.SubscriptionOffer{
			BasePlanID: plan.BasePlanId,
			// The publisher API exposes no client offer tokens; synthesize a
			// stable identifier so cached descriptors stay addressable.
			OfferToken: sub.ProductId + ":" + plan.BasePlanId,
			Tags:       offerTags(plan.OfferTags),
		})
	}
	return details
}

func fromProductPurchase(productID, purchaseToken, packageName string, resp *androidpublisher.ProductPurchase) domain.Purchase {
	raw, _ := resp.MarshalJSON()
	purchase := domain.Purchase{
		Token:            purchaseToken,
		Products:         []string{productID},
		State:            productPurchaseState(resp.PurchaseState),
		Acknowledged:     resp.AcknowledgementState == 1,
		OrderID:          resp.OrderId,
		PackageName:      packageName,
		DeveloperPayload: resp.DeveloperPayload,
		Quantity:         int(resp.Quantity),
		OriginalJSON:     string(raw),
	}
	if purchase.Quantity == 0 {
		purchase.Quantity = 1
	}
	if resp.ObfuscatedExternalAccountId != "" || resp.ObfuscatedExternalProfileId != "" {
		purchase.AccountIdentifiers = &domain.AccountIdentifiers{
			ObfuscatedAccountID: resp.ObfuscatedExternalAccountId,
			ObfuscatedProfileID: resp.ObfuscatedExternalProfileId,
		}
	}
	return purchase
}

func fromSubscriptionPurchase(productID, purchaseToken, packageName string, resp *androidpublisher.SubscriptionPurchase) domain.Purchase {
	raw, _ := resp.MarshalJSON()
	purchase := domain.Purchase{
		Token:        purchaseToken,
		Products:     []string{productID},
		State:        domain.PurchaseStatePurchased,
		AutoRenewing: resp.AutoRenewing,
		Acknowledged: resp.AcknowledgementState == 1,
		OrderID:      resp.OrderId,
		PackageName:  packageName,
		Quantity:     1,
		OriginalJSON: string(raw),
	}
	// PaymentState 0 means payment is still pending.
	if resp.PaymentState != nil && *resp.PaymentState == 0 {
		purchase.State = domain.PurchaseStatePending
	}
	if resp.ObfuscatedExternalAccountId != "" || resp.ObfuscatedExternalProfileId != "" {
		purchase.AccountIdentifiers = &domain.AccountIdentifiers{
			ObfuscatedAccountID: resp.ObfuscatedExternalAccountId,
			ObfuscatedProfileID: resp.ObfuscatedExternalProfileId,
		}
	}
	return purchase
}

// productPurchaseState maps the publisher API purchase state (0 purchased,
// 1 canceled, 2 pending) onto the billing client enumeration.
func productPurchaseState(state int64) domain.PurchaseState {
	switch state {
	case 0:
		return domain.PurchaseStatePurchased
	case 2:
		return domain.PurchaseStatePending
	default:
		return domain.PurchaseStateUnspecified
	}
}

func offerTags(tags []*androidpublisher.OfferTag) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		if tag != nil {
			out = append(out, tag.Tag)
		}
	}
	return out
}

func formatPrice(currency string, micros int64) string {
	whole := micros / 1_000_000
	cents := (micros % 1_000_000) / 10_000
	return fmt.Sprintf("%s %d.%02d", currency, whole, cents)
}

func resultFromError(err error, op string) domain.Result {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return domain.Result{Code: codeFromStatus(gerr.Code), Message: fmt.Sprintf("%s: %s", op, gerr.Message)}
	}
	return domain.Result{Code: domain.CodeServiceUnavailable, Message: fmt.Sprintf("%s: %v", op, err)}
}

func codeFromStatus(status int) domain.ResponseCode {
	switch {
	case status == 404:
		return domain.CodeItemUnavailable
	case status == 401 || status == 403:
		return domain.CodeDeveloperError
	case status == 429:
		return domain.CodeServiceUnavailable
	case status >= 500:
		return domain.CodeServiceUnavailable
	default:
		return domain.CodeError
	}
}
