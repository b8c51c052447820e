// Package signal converts platform billing records into the engine-neutral
// payload shapes carried by emitted signals: string-keyed dictionaries and
// ordered lists of primitives. Conversions are pure, preserve source
// ordering, and include optional sub-structures only when present.
package signal

import (
	"github.com/enginebridge/playbilling/internal/domains/billing/domain"
)

// Dictionary is the structured value shape the engine consumes.
type Dictionary = map[string]any

// FromPurchase converts one purchase record.
func FromPurchase(p domain.Purchase) Dictionary {
	data := Dictionary{
		"token":             p.Token,
		"products":          stringList(p.Products),
		"state":             int(p.State),
		"is_auto_renewing":  p.AutoRenewing,
		"is_acknowledged":   p.Acknowledged,
		"order_id":          p.OrderID,
		"package_name":      p.PackageName,
		"developer_payload": p.DeveloperPayload,
		"quantity":          p.Quantity,
		"signature":         p.Signature,
		"original_json":     p.OriginalJSON,
	}
	if p.AccountIdentifiers != nil {
		data["account_identifiers"] = Dictionary{
			"obfuscated_account_id": p.AccountIdentifiers.ObfuscatedAccountID,
			"obfuscated_profile_id": p.AccountIdentifiers.ObfuscatedProfileID,
		}
	}
	if p.PendingUpdate != nil {
		data["pending_purchase_update"] = Dictionary{
			"token":    p.PendingUpdate.Token,
			"products": stringList(p.PendingUpdate.Products),
		}
	}
	return data
}

// FromPurchases converts a purchase list one-to-one. A nil or empty input
// yields an empty, non-nil list so signal arity never varies.
func FromPurchases(purchases []domain.Purchase) []any {
	list := make([]any, 0, len(purchases))
	for _, p := range purchases {
		list = append(list, FromPurchase(p))
	}
	return list
}

// FromProductDetails converts one product descriptor.
func FromProductDetails(p domain.ProductDetails) Dictionary {
	data := Dictionary{
		"id":          p.ID,
		"type":        string(p.Type),
		"title":       p.Title,
		"name":        p.Name,
		"description": p.Description,
	}
	if p.OneTimeOffer != nil {
		data["one_time_purchase_offer_details"] = Dictionary{
			"currency_code":   p.OneTimeOffer.CurrencyCode,
			"formatted_price": p.OneTimeOffer.FormattedPrice,
			"price_amount":    p.OneTimeOffer.PriceAmountMicros,
		}
	}
	if p.SubscriptionOffers != nil {
		data["subscription_offer_details"] = fromSubscriptionOffers(p.SubscriptionOffers)
	}
	return data
}

// FromProductDetailsList converts a descriptor list one-to-one, preserving
// order. A nil input yields an empty, non-nil list.
func FromProductDetailsList(products []domain.ProductDetails) []any {
	list := make([]any, 0, len(products))
	for _, p := range products {
		list = append(list, FromProductDetails(p))
	}
	return list
}

func fromSubscriptionOffers(offers []domain.SubscriptionOffer) []any {
	list := make([]any, 0, len(offers))
	for _, offer := range offers {
		list = append(list, fromSubscriptionOffer(offer))
	}
	return list
}

func fromSubscriptionOffer(offer domain.SubscriptionOffer) Dictionary {
	data := Dictionary{
		"id":             offer.OfferID,
		"tags":           stringList(offer.Tags),
		"token":          offer.OfferToken,
		"base_plan_id":   offer.BasePlanID,
		"pricing_phases": fromPricingPhases(offer.PricingPhases),
	}
	if offer.InstallmentPlan != nil {
		data["installment_plan_commitment_payments_count"] = offer.InstallmentPlan.CommitmentPaymentsCount
		data["subsequent_installment_plan_commitment_payments_count"] = offer.InstallmentPlan.SubsequentCommitmentPaymentsCount
	}
	return data
}

func fromPricingPhases(phases []domain.PricingPhase) []any {
	list := make([]any, 0, len(phases))
	for _, phase := range phases {
		list = append(list, Dictionary{
			"billing_period":      phase.BillingPeriod,
			"currency_code":       phase.CurrencyCode,
			"formatted_price":     phase.FormattedPrice,
			"price_amount":        phase.PriceAmountMicros,
			"billing_cycle_count": phase.BillingCycleCount,
			"recurrence_mode":     phase.RecurrenceMode,
		})
	}
	return list
}

func stringList(values []string) []string {
	return append([]string{}, values...)
}
