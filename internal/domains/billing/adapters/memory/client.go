// Package memory provides a self-contained billing client simulation used
// for local development and tests. It honors the asynchronous callback
// contract of the real platform client: every result closure fires exactly
// once, off the caller's goroutine unless synchronous dispatch is selected.
package memory

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/enginebridge/playbilling/internal/domains/billing/domain"
	"github.com/enginebridge/playbilling/internal/domains/billing/ports"
)

var _ ports.Client = (*Client)(nil)

type purchaseRecord struct {
	purchase    domain.Purchase
	productType domain.ProductType
}

// Client simulates the platform billing service against a fixed catalog.
type Client struct {
	mu          sync.Mutex
	state       domain.ConnectionState
	callbacks   ports.ConnectionCallbacks
	catalog     map[string]domain.ProductDetails
	purchases   map[string]*purchaseRecord
	order       []string
	packageName string

	connectResult domain.Result
	synchronous   bool
}

// Option customizes the simulated client.
type Option func(*Client)

// WithCatalog seeds the product catalog served by product-details queries.
func WithCatalog(products []domain.ProductDetails) Option {
	return func(c *Client) {
		for _, p := range products {
			c.catalog[p.ID] = p
		}
	}
}

// WithPackageName sets the package name stamped on simulated purchases.
func WithPackageName(name string) Option {
	return func(c *Client) { c.packageName = name }
}

// WithConnectResult overrides the connection setup outcome, for exercising
// connect_error paths.
func WithConnectResult(result domain.Result) Option {
	return func(c *Client) { c.connectResult = result }
}

// WithSynchronousDispatch delivers callbacks inline on the calling
// goroutine. Tests use this to avoid sleeping on goroutine scheduling.
func WithSynchronousDispatch() Option {
	return func(c *Client) { c.synchronous = true }
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		state:         domain.StateDisconnected,
		catalog:       map[string]domain.ProductDetails{},
		purchases:     map[string]*purchaseRecord{},
		packageName:   "com.enginebridge.playbilling.sim",
		connectResult: domain.ResultOK,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

func (c *Client) StartConnection(_ ports.ConnectionConfig, callbacks ports.ConnectionCallbacks) error {
	c.mu.Lock()
	c.callbacks = callbacks
	c.state = domain.StateConnecting
	result := c.connectResult
	c.mu.Unlock()

	c.dispatch(func() {
		c.mu.Lock()
		if result.OK() {
			c.state = domain.StateConnected
		} else {
			c.state = domain.StateDisconnected
		}
		fn := c.callbacks.OnSetupFinished
		c.mu.Unlock()
		if fn != nil {
			fn(result)
		}
	})
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

func (c *Client) QueryProductDetails(_ context.Context, products []ports.ProductQueryEntry, fn func(domain.Result, []domain.ProductDetails)) {
	c.dispatch(func() {
		if !c.IsReady() {
			fn(domain.Result{Code: domain.CodeServiceDisconnected, Message: "billing service is not connected"}, nil)
			return
		}
		c.mu.Lock()
		found := make([]domain.ProductDetails, 0, len(products))
		for _, entry := range products {
			if details, ok := c.catalog[entry.ProductID]; ok && details.Type == entry.Type {
				found = append(found, details)
			}
		}
		c.mu.Unlock()
		fn(domain.ResultOK, found)
	})
}

func (c *Client) LaunchPurchaseFlow(_ context.Context, params ports.PurchaseFlowParams) domain.Result {
	if !c.IsReady() {
		return domain.Result{Code: domain.CodeServiceDisconnected, Message: "billing service is not connected"}
	}
	if params.Host == nil {
		return domain.Result{Code: domain.CodeDeveloperError, Message: "purchase flow requires a host surface"}
	}

	c.mu.Lock()
	details, ok := c.catalog[params.Product.ID]
	c.mu.Unlock()
	if !ok {
		return domain.Result{Code: domain.CodeItemUnavailable, Message: "product is not available for purchase"}
	}
	if details.Type == domain.ProductTypeSubs && params.OfferToken == "" {
		return domain.Result{Code: domain.CodeDeveloperError, Message: "subscription purchase requires an offer token"}
	}

	purchase := c.recordPurchase(details, params)
	c.dispatch(func() {
		c.mu.Lock()
		fn := c.callbacks.OnPurchasesUpdated
		c.mu.Unlock()
		if fn != nil {
			fn(domain.ResultOK, []domain.Purchase{purchase})
		}
	})
	return domain.ResultOK
}

func (c *Client) AcknowledgePurchase(_ context.Context, purchaseToken string, fn func(domain.Result)) {
	c.dispatch(func() {
		c.mu.Lock()
		record, ok := c.purchases[purchaseToken]
		if ok {
			record.purchase.Acknowledged = true
		}
		c.mu.Unlock()
		if !ok {
			fn(domain.Result{Code: domain.CodeDeveloperError, Message: "unknown purchase token"})
			return
		}
		fn(domain.ResultOK)
	})
}

func (c *Client) Consume(_ context.Context, purchaseToken string, fn func(domain.Result, string)) {
	c.dispatch(func() {
		c.mu.Lock()
		record, ok := c.purchases[purchaseToken]
		if ok && record.productType == domain.ProductTypeInApp {
			delete(c.purchases, purchaseToken)
			c.order = removeToken(c.order, purchaseToken)
		}
		c.mu.Unlock()
		if !ok {
			fn(domain.Result{Code: domain.CodeItemNotOwned, Message: "no purchase with this token"}, purchaseToken)
			return
		}
		if record.productType != domain.ProductTypeInApp {
			fn(domain.Result{Code: domain.CodeDeveloperError, Message: "subscriptions cannot be consumed"}, purchaseToken)
			return
		}
		fn(domain.ResultOK, purchaseToken)
	})
}

func (c *Client) QueryPurchases(_ context.Context, productType domain.ProductType, fn func(domain.Result, []domain.Purchase)) {
	c.dispatch(func() {
		if !c.IsReady() {
			fn(domain.Result{Code: domain.CodeServiceDisconnected, Message: "billing service is not connected"}, nil)
			return
		}
		c.mu.Lock()
		var list []domain.Purchase
		for _, token := range c.order {
			if record, ok := c.purchases[token]; ok && record.productType == productType {
				list = append(list, record.purchase)
			}
		}
		c.mu.Unlock()
		fn(domain.ResultOK, list)
	})
}

func (c *Client) recordPurchase(details domain.ProductDetails, params ports.PurchaseFlowParams) domain.Purchase {
	token := uuid.NewString()
	orderID := "SIM." + strings.ToUpper(uuid.NewString()[:8])
	originalJSON, _ := json.Marshal(map[string]any{
		"orderId":       orderID,
		"productId":     details.ID,
		"purchaseToken": token,
		"packageName":   c.packageName,
	})

	purchase := domain.Purchase{
		Token:        token,
		Products:     []string{details.ID},
		State:        domain.PurchaseStatePurchased,
		AutoRenewing: details.Type == domain.ProductTypeSubs,
		OrderID:      orderID,
		PackageName:  c.packageName,
		Quantity:     1,
		OriginalJSON: string(originalJSON),
	}
	if params.ObfuscatedAccountID != "" || params.ObfuscatedProfileID != "" {
		purchase.AccountIdentifiers = &domain.AccountIdentifiers{
			ObfuscatedAccountID: params.ObfuscatedAccountID,
			ObfuscatedProfileID: params.ObfuscatedProfileID,
		}
	}

	c.mu.Lock()
	c.purchases[token] = &purchaseRecord{purchase: purchase, productType: details.Type}
	c.order = append(c.order, token)
	c.mu.Unlock()
	return purchase
}

func (c *Client) dispatch(fn func()) {
	if c.synchronous {
		fn()
		return
	}
	go fn()
}

func removeToken(tokens []string, token string) []string {
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if t != token {
			out = append(out, t)
		}
	}
	return out
}
