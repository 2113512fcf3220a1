// Package plan holds the static catalog of plan tiers and their monthly allowances.
package plan

import (
	"fmt"
	"sort"

	"github.com/kailas-cloud/quotagate/internal/domain"
)

// Tier names a subscription plan.
type Tier string

// Allowances maps a resource type to its monthly allowance for one tier.
type Allowances map[domain.ResourceType]int64

// Catalog is an immutable tier -> allowance lookup.
type Catalog struct {
	tiers map[Tier]Allowances
}

// NewCatalog validates and copies the tier table.
// Allowances must be non-negative and resource types must be known.
func NewCatalog(tiers map[Tier]Allowances) (Catalog, error) {
	out := make(map[Tier]Allowances, len(tiers))
	for tier, allowances := range tiers {
		if tier == "" {
			return Catalog{}, fmt.Errorf("plan tier name is required")
		}
		copied := make(Allowances, len(allowances))
		for res, n := range allowances {
			if !res.IsValid() {
				return Catalog{}, fmt.Errorf("plan %q: unknown resource type %q", tier, res)
			}
			if n < 0 {
				return Catalog{}, fmt.Errorf("plan %q: allowance for %s must be non-negative, got %d", tier, res, n)
			}
			copied[res] = n
		}
		out[tier] = copied
	}
	return Catalog{tiers: out}, nil
}

// Allowance returns the monthly allowance of resource for tier.
// An absent tier is a configuration error and never defaults.
// A known tier that does not list the resource grants zero.
func (c Catalog) Allowance(tier Tier, resource domain.ResourceType) (int64, error) {
	allowances, ok := c.tiers[tier]
	if !ok {
		return 0, fmt.Errorf("%w: %q", domain.ErrUnknownPlan, tier)
	}
	return allowances[resource], nil
}

// Has reports whether the tier is configured.
func (c Catalog) Has(tier Tier) bool {
	_, ok := c.tiers[tier]
	return ok
}

// Tiers returns configured tier names sorted alphabetically.
func (c Catalog) Tiers() []Tier {
	out := make([]Tier, 0, len(c.tiers))
	for t := range c.tiers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Allowances returns a copy of the tier's allowance table.
func (c Catalog) Allowances(tier Tier) (Allowances, error) {
	allowances, ok := c.tiers[tier]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownPlan, tier)
	}
	out := make(Allowances, len(allowances))
	for k, v := range allowances {
		out[k] = v
	}
	return out, nil
}
