package services

import (
	"fmt"
	"strconv"

	"authpay/models"
)

const (
	TierFree       = "Free"
	TierIndividual = "Individual"
	TierTeam       = "Team"
	TierEnterprise = "Enterprise"

	TokenProductName        = "Tokens"
	TokenProductDescription = "Credits for API usage"
	TokenPriceCents         = 1

	// MinChargeCents is the smallest amount Stripe will charge in USD.
	MinChargeCents = 50

	ProductTypeSubscription = "subscription"

	defaultCurrency = "usd"
)

var tierOrder = []string{TierFree, TierIndividual, TierTeam, TierEnterprise}

var tiers = map[string]models.SubscriptionTier{
	TierFree: {
		Name:     TierFree,
		Currency: defaultCurrency,
		Features: []string{"Basic access", "Limited API calls"},
		Credits:  5,
	},
	TierIndividual: {
		Name:       TierIndividual,
		PriceCents: 999,
		Currency:   defaultCurrency,
		Features:   []string{"Full access", "Priority support", "Unlimited API calls"},
		Credits:    100,
	},
	TierTeam: {
		Name:       TierTeam,
		PriceCents: 4999,
		Currency:   defaultCurrency,
		Features:   []string{"Full access", "Priority support", "Unlimited API calls", "Team management"},
		Credits:    500,
	},
	TierEnterprise: {
		Name:       TierEnterprise,
		PriceCents: 19999,
		Currency:   defaultCurrency,
		Features:   []string{"Full access", "Priority support", "Unlimited API calls", "Team management", "Custom integrations"},
		Credits:    2000,
	},
}

// Tiers returns the subscription tiers in ascending price order.
func Tiers() []models.SubscriptionTier {
	out := make([]models.SubscriptionTier, 0, len(tierOrder))
	for _, name := range tierOrder {
		t := tiers[name]
		t.Features = append([]string(nil), t.Features...)
		out = append(out, t)
	}
	return out
}

// GetTier looks a tier up by name. Unknown names report false.
func GetTier(name string) (models.SubscriptionTier, bool) {
	t, ok := tiers[name]
	return t, ok
}

func IsPaidTier(name string) bool {
	t, ok := tiers[name]
	return ok && t.PriceCents > 0
}

func SubscriptionProductName(tier string) string {
	return tier + " Subscription"
}

// MinTokenPurchase is the smallest token bundle whose total clears Stripe's minimum charge.
func MinTokenPurchase() int64 {
	n := int64(MinChargeCents/TokenPriceCents + 1)
	if n < 50 {
		n = 50
	}
	return n
}

func formatDollars(cents int64) string {
	return fmt.Sprintf("$%d.%02d", cents/100, cents%100)
}

func subscriptionMetadata(t models.SubscriptionTier) map[string]string {
	return map[string]string{
		models.MetaType:    ProductTypeSubscription,
		models.MetaTier:    t.Name,
		models.MetaCredits: strconv.FormatInt(t.Credits, 10),
	}
}
