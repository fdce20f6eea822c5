package entity

import "time"

type Product struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	ImageURL       string `json:"image_url,omitempty"`
	BaseMinor      int64  `json:"base_minor"` // catalog base price, minor units
	Stock          int    `json:"stock"`
	StockThreshold int    `json:"stock_threshold"` // low-stock alert level, 0 disables
}

// PriceList scopes prices to buyer roles and organization tiers. A nil/empty
// role or tier set matches everyone.
type PriceList struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	IsDefault     bool       `json:"is_default"`
	IsActive      bool       `json:"is_active"`
	AllowedRoles  []string   `json:"allowed_roles,omitempty"`
	AllowedTiers  []int      `json:"allowed_tiers,omitempty"`
	EffectiveFrom time.Time  `json:"effective_from"`
	EffectiveTo   *time.Time `json:"effective_to,omitempty"`
}

// ProductPrice is one priced row for a product on a list. PriceListID empty
// means the default (list-less) price row.
type ProductPrice struct {
	ProductID   string     `json:"product_id"`
	PriceListID string     `json:"price_list_id,omitempty"`
	BaseMinor   int64      `json:"base_minor"`
	SaleMinor   int64      `json:"sale_minor"` // 0 = no sale price
	DiscountPct float64    `json:"discount_percentage"`
	IsActive    bool       `json:"is_active"`
	ValidFrom   *time.Time `json:"valid_from,omitempty"`
	ValidUntil  *time.Time `json:"valid_until,omitempty"`
}

// Covers reports whether the row's validity window contains now.
func (p ProductPrice) Covers(now time.Time) bool {
	if p.ValidFrom != nil && now.Before(*p.ValidFrom) {
		return false
	}
	if p.ValidUntil != nil && now.After(*p.ValidUntil) {
		return false
	}
	return true
}

// Buyer carries the role/tier context price lists match against.
type Buyer struct {
	UserID string `json:"user_id,omitempty"`
	Role   string `json:"role"`
	Tier   *int   `json:"tier,omitempty"`
}

// Matches reports whether the list applies to the buyer.
func (pl PriceList) Matches(b Buyer) bool {
	if len(pl.AllowedRoles) > 0 {
		ok := false
		for _, r := range pl.AllowedRoles {
			if r == b.Role {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if b.Tier != nil && len(pl.AllowedTiers) > 0 {
		ok := false
		for _, t := range pl.AllowedTiers {
			if t == *b.Tier {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// ActiveAt reports whether the list is active and its effectivity window
// contains now.
func (pl PriceList) ActiveAt(now time.Time) bool {
	if !pl.IsActive {
		return false
	}
	if now.Before(pl.EffectiveFrom) {
		return false
	}
	if pl.EffectiveTo != nil && now.After(*pl.EffectiveTo) {
		return false
	}
	return true
}
