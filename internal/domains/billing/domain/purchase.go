package domain

// PurchaseState is the lifecycle state the billing service reports for a
// purchase.
type PurchaseState int

const (
	PurchaseStateUnspecified PurchaseState = 0
	PurchaseStatePurchased   PurchaseState = 1
	PurchaseStatePending     PurchaseState = 2
)

// Purchase is a user's transaction record for one or more products. The
// bridge never persists these; each callback produces fresh records and the
// caller owns any retention.
type Purchase struct {
	Token            string
	Products         []string
	State            PurchaseState
	AutoRenewing     bool
	Acknowledged     bool
	OrderID          string
	PackageName      string
	DeveloperPayload string
	Quantity         int
	Signature        string
	OriginalJSON     string

	// AccountIdentifiers is present only when the purchase flow was launched
	// with obfuscated account identifiers.
	AccountIdentifiers *AccountIdentifiers
	// PendingUpdate is present while an upgrade or downgrade of this
	// purchase is in flight.
	PendingUpdate *PendingPurchaseUpdate
}

// AccountIdentifiers is the obfuscated account/profile id pair attached to a
// purchase at flow-launch time.
type AccountIdentifiers struct {
	ObfuscatedAccountID string
	ObfuscatedProfileID string
}

// PendingPurchaseUpdate describes an upgrade/downgrade in flight for an
// existing purchase.
type PendingPurchaseUpdate struct {
	Token    string
	Products []string
}
