package entitlements

import (
	"strings"

	"github.com/ManuelReschke/CoachFox/app/models"
)

type Tier string

const (
	TierStarter      Tier = "starter"
	TierProfessional Tier = "professional"
	TierStudio       Tier = "studio"
)

type Feature string

const (
	FeatureCustomBranding Feature = "custom_branding"
	FeatureNutritionPlans Feature = "nutrition_plans"
	FeatureTeamMembers    Feature = "team_members"
	FeatureAnalytics      Feature = "analytics"
)

// Profile is the entitlement set attached to a tier.
type Profile struct {
	Tier        Tier      `json:"tier"`
	ClientLimit int       `json:"client_limit"`
	Features    []Feature `json:"features"`
}

// NoAccess is the profile of a canceled organization.
var NoAccess = Profile{ClientLimit: 0, Features: []Feature{}}

func (p Profile) Unlimited() bool {
	return p.ClientLimit == models.UnlimitedClients
}

func (p Profile) Has(f Feature) bool {
	for _, have := range p.Features {
		if have == f {
			return true
		}
	}
	return false
}

// Catalog maps tiers to entitlement profiles and processor price references.
type Catalog interface {
	Profile(tier Tier) (Profile, bool)
	TierForPrice(priceID string) (Tier, bool)
	PriceForTier(tier Tier) (string, bool)
	DefaultTrialTier() Tier
	ParseTier(name string) (Tier, bool)
}

// DefaultProfiles returns the built-in tier table.
func DefaultProfiles() map[Tier]Profile {
	return map[Tier]Profile{
		TierStarter: {
			Tier:        TierStarter,
			ClientLimit: 10,
			Features:    []Feature{FeatureNutritionPlans},
		},
		TierProfessional: {
			Tier:        TierProfessional,
			ClientLimit: 50,
			Features:    []Feature{FeatureNutritionPlans, FeatureCustomBranding, FeatureAnalytics},
		},
		TierStudio: {
			Tier:        TierStudio,
			ClientLimit: models.UnlimitedClients,
			Features:    []Feature{FeatureNutritionPlans, FeatureCustomBranding, FeatureAnalytics, FeatureTeamMembers},
		},
	}
}

// StaticCatalog is a Catalog backed by fixed maps.
type StaticCatalog struct {
	profiles  map[Tier]Profile
	prices    map[Tier]string
	byPrice   map[string]Tier
	trialTier Tier
}

// NewStaticCatalog builds a catalog from the default profiles and the given
// tier -> price id table. Tiers without a price can be granted by trial but not bought.
func NewStaticCatalog(prices map[Tier]string) *StaticCatalog {
	return NewCustomCatalog(DefaultProfiles(), prices, TierStudio)
}

func NewCustomCatalog(profiles map[Tier]Profile, prices map[Tier]string, trialTier Tier) *StaticCatalog {
	c := &StaticCatalog{
		profiles:  make(map[Tier]Profile, len(profiles)),
		prices:    make(map[Tier]string, len(prices)),
		byPrice:   make(map[string]Tier, len(prices)),
		trialTier: trialTier,
	}
	for tier, p := range profiles {
		p.Tier = tier
		c.profiles[tier] = p
	}
	for tier, price := range prices {
		price = strings.TrimSpace(price)
		if price == "" {
			continue
		}
		c.prices[tier] = price
		c.byPrice[price] = tier
	}
	return c
}

func (c *StaticCatalog) Profile(tier Tier) (Profile, bool) {
	p, ok := c.profiles[tier]
	return p, ok
}

func (c *StaticCatalog) TierForPrice(priceID string) (Tier, bool) {
	t, ok := c.byPrice[strings.TrimSpace(priceID)]
	return t, ok
}

func (c *StaticCatalog) PriceForTier(tier Tier) (string, bool) {
	p, ok := c.prices[tier]
	return p, ok
}

func (c *StaticCatalog) DefaultTrialTier() Tier {
	return c.trialTier
}

func (c *StaticCatalog) ParseTier(name string) (Tier, bool) {
	t := Tier(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := c.profiles[t]; !ok {
		return "", false
	}
	return t, true
}

// ProfileFor resolves the effective profile of a billing record. A canceled
// record has no access whatever tier it still carries.
func ProfileFor(c Catalog, rec *models.OrganizationBilling) Profile {
	if rec == nil || rec.SubscriptionStatus == models.BillingStatusCanceled {
		return NoAccess
	}
	p, ok := c.Profile(Tier(rec.SubscriptionTier))
	if !ok {
		return NoAccess
	}
	p.ClientLimit = rec.ClientLimit
	return p
}
