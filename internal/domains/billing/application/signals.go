package application

// Signal names emitted on the session's SignalSink. Payload argument order
// is fixed per signal and never varies at runtime; list-valued arguments are
// emitted as empty lists rather than omitted.
const (
	SignalConnected    = "connected"
	SignalDisconnected = "disconnected"
	SignalResume       = "resume"
	SignalConnectError = "connect_error"

	SignalPurchasesUpdated = "purchases_updated"
	SignalPurchaseError    = "purchase_error"

	SignalQueryPurchases      = "query_purchases"
	SignalQueryProductDetails = "query_product_details"

	SignalPurchaseAcknowledged = "purchase_acknowledged"
	SignalPurchaseConsumed     = "purchase_consumed"
)

// SignalInfo describes one emitted signal and the names of its ordered
// arguments.
type SignalInfo struct {
	Name string   `json:"name"`
	Args []string `json:"args"`
}

// Signals lists every signal the session can emit, for transports that
// document or validate the event stream.
func Signals() []SignalInfo {
	return []SignalInfo{
		{Name: SignalConnected, Args: []string{}},
		{Name: SignalDisconnected, Args: []string{}},
		{Name: SignalResume, Args: []string{}},
		{Name: SignalConnectError, Args: []string{"response_code", "debug_message"}},
		{Name: SignalPurchasesUpdated, Args: []string{"response_code", "debug_message", "purchases"}},
		{Name: SignalPurchaseError, Args: []string{"response_code", "debug_message"}},
		{Name: SignalQueryPurchases, Args: []string{"response_code", "debug_message", "purchases"}},
		{Name: SignalQueryProductDetails, Args: []string{"response_code", "debug_message", "product_details"}},
		{Name: SignalPurchaseAcknowledged, Args: []string{"response_code", "debug_message", "purchase_token"}},
		{Name: SignalPurchaseConsumed, Args: []string{"response_code", "debug_message", "purchase_token"}},
	}
}
