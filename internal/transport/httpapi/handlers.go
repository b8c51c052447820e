// Package httpapi exposes the billing session as a small command API. Command
// results arrive asynchronously on the websocket event stream, so mutating
// endpoints accept the command and return immediately.
package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/enginebridge/playbilling/internal/domains/billing/adapters/signal"
	"github.com/enginebridge/playbilling/internal/domains/billing/application"
	"github.com/enginebridge/playbilling/internal/domains/billing/domain"
	"github.com/enginebridge/playbilling/internal/domains/billing/ports"
	problems "github.com/enginebridge/playbilling/internal/shared/errors"
)

// EventStream is the websocket surface handlers hand connection upgrades to.
type EventStream interface {
	ServeWS(w http.ResponseWriter, r *http.Request)
	ClientCount() int
}

// Handlers bundles the billing command endpoints.
type Handlers struct {
	service   ports.Service
	events    EventStream
	responder *problems.Responder
}

// NewHandlers wires the command surface around a billing service.
func NewHandlers(service ports.Service, events EventStream, responder *problems.Responder) *Handlers {
	if responder == nil {
		responder = problems.DefaultResponder
	}
	return &Handlers{service: service, events: events, responder: responder}
}

type connectionStatus struct {
	State     int    `json:"state"`
	StateName string `json:"state_name"`
	Ready     bool   `json:"ready"`
	Clients   int    `json:"clients"`
}

type productQueryRequest struct {
	ProductIDs  []string `json:"product_ids"`
	ProductType string   `json:"product_type"`
}

type purchaseRequest struct {
	ProductID   string `json:"product_id"`
	ProductType string `json:"product_type"`
}

type tokenRequest struct {
	PurchaseToken string `json:"purchase_token"`
}

type purchasesQueryRequest struct {
	ProductType string `json:"product_type"`
}

type verifyRequest struct {
	ProductID     string `json:"product_id"`
	PurchaseToken string `json:"purchase_token"`
	ProductType   string `json:"product_type"`
}

type loggingRequest struct {
	Level *int    `json:"level"`
	Tag   *string `json:"tag"`
}

// StartConnection begins the billing service handshake. The outcome arrives
// as a connected or connect_error signal.
func (h *Handlers) StartConnection(c *gin.Context) {
	if err := h.service.StartConnection(c.Request.Context()); err != nil {
		if errors.Is(err, application.ErrNoHost) {
			h.responder.Respond(c, problems.ErrServiceUnavailable.WithDetail("no engine client attached to anchor the billing connection"))
			return
		}
		h.responder.RespondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "connecting"})
}

// EndConnection releases the billing service connection.
func (h *Handlers) EndConnection(c *gin.Context) {
	h.service.EndConnection()
	c.Status(http.StatusNoContent)
}

// GetConnection reports the current connection state.
func (h *Handlers) GetConnection(c *gin.Context) {
	state := h.service.ConnectionState()
	clients := 0
	if h.events != nil {
		clients = h.events.ClientCount()
	}
	c.JSON(http.StatusOK, connectionStatus{
		State:     int(state),
		StateName: state.String(),
		Ready:     h.service.IsReady(),
		Clients:   clients,
	})
}

// QueryProductDetails requests platform metadata for the given product ids.
// Results arrive as a query_product_details signal.
func (h *Handlers) QueryProductDetails(c *gin.Context) {
	var req productQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.responder.BadRequest(c, err.Error())
		return
	}
	productType, err := domain.ParseProductType(req.ProductType)
	if err != nil {
		h.responder.BadRequest(c, err.Error())
		return
	}
	if len(req.ProductIDs) == 0 {
		h.responder.BadRequest(c, "product_ids must not be empty")
		return
	}
	h.service.QueryProductDetails(c.Request.Context(), req.ProductIDs, productType)
	c.JSON(http.StatusAccepted, gin.H{"status": "querying"})
}

// Purchase launches a purchase flow for a previously queried product.
func (h *Handlers) Purchase(c *gin.Context) {
	var req purchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.responder.BadRequest(c, err.Error())
		return
	}
	productType, err := domain.ParseProductType(req.ProductType)
	if err != nil {
		h.responder.BadRequest(c, err.Error())
		return
	}
	if req.ProductID == "" {
		h.responder.BadRequest(c, "product_id must not be empty")
		return
	}
	h.service.Purchase(c.Request.Context(), req.ProductID, productType)
	c.JSON(http.StatusAccepted, gin.H{"status": "launching"})
}

// VerifyPurchase registers a device-reported purchase token with the billing
// backend. The verified purchase is returned and also broadcast as a
// purchases_updated signal.
func (h *Handlers) VerifyPurchase(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.responder.BadRequest(c, err.Error())
		return
	}
	productType, err := domain.ParseProductType(req.ProductType)
	if err != nil {
		h.responder.BadRequest(c, err.Error())
		return
	}
	if req.ProductID == "" {
		h.responder.BadRequest(c, "product_id must not be empty")
		return
	}
	if req.PurchaseToken == "" {
		h.responder.BadRequest(c, "purchase_token must not be empty")
		return
	}
	purchase, err := h.service.VerifyPurchase(c.Request.Context(), req.ProductID, req.PurchaseToken, productType)
	if err != nil {
		if errors.Is(err, application.ErrVerificationUnsupported) {
			h.responder.Respond(c, problems.ErrNotImplemented.WithDetail(application.ErrVerificationUnsupported.Error()))
			return
		}
		h.responder.BadRequest(c, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"purchase": signal.FromPurchase(purchase)})
}

// AcknowledgePurchase acknowledges a purchase token. The outcome arrives as a
// purchase_acknowledged signal carrying the same token.
func (h *Handlers) AcknowledgePurchase(c *gin.Context) {
	token, ok := h.bindToken(c)
	if !ok {
		return
	}
	h.service.AcknowledgePurchase(c.Request.Context(), token)
	c.JSON(http.StatusAccepted, gin.H{"status": "acknowledging"})
}

// ConsumePurchase consumes a one-time purchase token.
func (h *Handlers) ConsumePurchase(c *gin.Context) {
	token, ok := h.bindToken(c)
	if !ok {
		return
	}
	h.service.Consume(c.Request.Context(), token)
	c.JSON(http.StatusAccepted, gin.H{"status": "consuming"})
}

// QueryPurchases requests the active purchases of one product type.
func (h *Handlers) QueryPurchases(c *gin.Context) {
	var req purchasesQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.responder.BadRequest(c, err.Error())
		return
	}
	productType, err := domain.ParseProductType(req.ProductType)
	if err != nil {
		h.responder.BadRequest(c, err.Error())
		return
	}
	h.service.QueryPurchases(c.Request.Context(), productType)
	c.JSON(http.StatusAccepted, gin.H{"status": "querying"})
}

// UpdateLogging adjusts the session's log verbosity and tag.
func (h *Handlers) UpdateLogging(c *gin.Context) {
	var req loggingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.responder.BadRequest(c, err.Error())
		return
	}
	if req.Level == nil && req.Tag == nil {
		h.responder.BadRequest(c, "at least one of level or tag is required")
		return
	}
	if req.Level != nil {
		h.service.SetLogLevel(*req.Level)
	}
	if req.Tag != nil {
		if *req.Tag == "" {
			h.responder.BadRequest(c, "tag must not be empty")
			return
		}
		h.service.SetLogTag(*req.Tag)
	}
	c.Status(http.StatusNoContent)
}

// NotifyResume emits the host lifecycle resume signal.
func (h *Handlers) NotifyResume(c *gin.Context) {
	h.service.NotifyResume()
	c.Status(http.StatusNoContent)
}

// ListSignals documents the event stream's signal catalog.
func (h *Handlers) ListSignals(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"signals": application.Signals()})
}

// ServeEvents upgrades the request onto the websocket event stream.
func (h *Handlers) ServeEvents(c *gin.Context) {
	if h.events == nil {
		h.responder.Respond(c, problems.ErrServiceUnavailable.WithDetail("event stream not configured"))
		return
	}
	h.events.ServeWS(c.Writer, c.Request)
}

func (h *Handlers) bindToken(c *gin.Context) (string, bool) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.responder.BadRequest(c, err.Error())
		return "", false
	}
	if req.PurchaseToken == "" {
		h.responder.BadRequest(c, "purchase_token must not be empty")
		return "", false
	}
	return req.PurchaseToken, true
}
