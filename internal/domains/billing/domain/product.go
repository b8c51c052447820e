package domain

import "fmt"

// ProductType distinguishes one-time products from subscriptions. The
// string values are the ones the billing service expects on queries.
type ProductType string

const (
	ProductTypeInApp ProductType = "inapp"
	ProductTypeSubs  ProductType = "subs"
)

// ParseProductType validates a wire-level product type string.
func ParseProductType(s string) (ProductType, error) {
	switch t := ProductType(s); t {
	case ProductTypeInApp, ProductTypeSubs:
		return t, nil
	}
	return "", fmt.Errorf("unknown product type %q", s)
}

// ProductDetails is the platform metadata for one purchasable item.
// Instances are immutable once received and replaced wholesale on re-query.
type ProductDetails struct {
	ID          string
	Type        ProductType
	Title       string
	Name        string
	Description string

	// OneTimeOffer is present only for one-time products.
	OneTimeOffer *OneTimeOffer
	// SubscriptionOffers is present only for subscriptions; ordering is the
	// service's preference order and the first offer is the default.
	SubscriptionOffers []SubscriptionOffer
}

// DefaultOfferToken returns the offer token a purchase flow selects for a
// subscription, or empty when the product carries no subscription offers.
func (p ProductDetails) DefaultOfferToken() string {
	if len(p.SubscriptionOffers) == 0 {
		return ""
	}
	return p.SubscriptionOffers[0].OfferToken
}

// OneTimeOffer carries the pricing of a one-time product.
type OneTimeOffer struct {
	CurrencyCode      string
	FormattedPrice    string
	PriceAmountMicros int64
}

// SubscriptionOffer is one purchasable pricing offer of a subscription.
type SubscriptionOffer struct {
	OfferID       string
	BasePlanID    string
	OfferToken    string
	Tags          []string
	PricingPhases []PricingPhase

	// InstallmentPlan is present only for installment subscriptions.
	InstallmentPlan *InstallmentPlan
}

// PricingPhase is one step of a subscription offer's pricing schedule.
type PricingPhase struct {
	BillingPeriod     string
	CurrencyCode      string
	FormattedPrice    string
	PriceAmountMicros int64
	BillingCycleCount int
	RecurrenceMode    int
}

// InstallmentPlan describes the commitment-payment counts of an
// installment subscription offer.
type InstallmentPlan struct {
	CommitmentPaymentsCount           int
	SubsequentCommitmentPaymentsCount int
}
