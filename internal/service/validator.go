package service

import (
	"context"
	"math"
	"os"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"order-pipeline/internal/entity"
	"order-pipeline/internal/repository"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

// ValidatorService recomputes authoritative prices and checks live stock for a
// cart. Pure computation over catalog reads, no side effects.
type ValidatorService struct {
	catalog repository.CatalogRepo
	now     func() time.Time
}

func NewValidatorService(catalog repository.CatalogRepo) *ValidatorService {
	return &ValidatorService{catalog: catalog, now: time.Now}
}

// Validate re-prices every cart line from the price list applicable to the
// buyer and compares quantities against live stock. Price mismatches are
// reported but never block; stock shortfalls do, with the clamped quantity
// returned as a remediation suggestion.
func (s *ValidatorService) Validate(ctx context.Context, buyer entity.Buyer, lines []entity.CartLine) (*entity.ValidationResult, error) {
	now := s.now()

	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ProductID)
	}
	products, err := s.catalog.ProductsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	chosenList := s.chooseList(ctx, buyer, now)

	result := &entity.ValidationResult{
		Items:      []entity.ValidatedItem{},
		Mismatches: []entity.PriceMismatch{},
		Shortfalls: []entity.StockShortfall{},
	}
	for _, line := range lines {
		product, ok := products[line.ProductID]
		if !ok {
			continue
		}
		unit, listID, err := s.priceFor(ctx, product, chosenList, now)
		if err != nil {
			return nil, err
		}

		qty := line.Quantity
		if qty > product.Stock {
			result.Shortfalls = append(result.Shortfalls, entity.StockShortfall{
				ProductID: line.ProductID,
				Requested: qty,
				Available: product.Stock,
				Suggested: product.Stock,
			})
			qty = product.Stock
		}

		if line.UnitMinor > 0 && line.UnitMinor != unit {
			result.Mismatches = append(result.Mismatches, entity.PriceMismatch{
				ProductID:     line.ProductID,
				ClientMinor:   line.UnitMinor,
				ExpectedMinor: unit,
				PriceListID:   listID,
			})
		}

		result.Items = append(result.Items, entity.ValidatedItem{
			ProductID:   line.ProductID,
			Quantity:    qty,
			UnitMinor:   unit,
			PriceListID: listID,
		})
		result.SubtotalMinor += unit * int64(qty)
	}

	result.OK = len(result.Mismatches) == 0 && len(result.Shortfalls) == 0
	return result, nil
}

// chooseList picks the most specific active list matching the buyer; ties
// favor the most recently effective non-default list. Empty means only the
// default (list-less) price rows apply.
func (s *ValidatorService) chooseList(ctx context.Context, buyer entity.Buyer, now time.Time) string {
	lists, err := s.catalog.ActivePriceLists(ctx, now)
	if err != nil {
		logger.Error().Err(err).Msg("price list load failed, falling back to default prices")
		return ""
	}
	matching := lists[:0]
	for _, pl := range lists {
		if pl.ActiveAt(now) && pl.Matches(buyer) {
			matching = append(matching, pl)
		}
	}
	if len(matching) == 0 {
		return ""
	}
	sort.SliceStable(matching, func(i, j int) bool {
		if matching[i].IsDefault != matching[j].IsDefault {
			return !matching[i].IsDefault
		}
		return matching[i].EffectiveFrom.After(matching[j].EffectiveFrom)
	})
	return matching[0].ID
}

// priceFor resolves one unit price: sale price wins, then base reduced by the
// discount percentage, then plain base; rows outside their validity window are
// skipped. The chosen list is consulted before the default rows, and the
// catalog base price is the last resort.
func (s *ValidatorService) priceFor(ctx context.Context, product entity.Product, chosenList string, now time.Time) (int64, string, error) {
	listIDs := []string{""}
	if chosenList != "" {
		listIDs = []string{chosenList, ""}
	}
	for _, listID := range listIDs {
		rows, err := s.catalog.PricesFor(ctx, product.ID, listID)
		if err != nil {
			return 0, "", err
		}
		for _, row := range rows {
			if !row.Covers(now) {
				continue
			}
			if row.SaleMinor > 0 {
				return row.SaleMinor, listID, nil
			}
			if row.BaseMinor > 0 {
				if row.DiscountPct > 0 {
					reduced := int64(math.Round(float64(row.BaseMinor) * (1 - row.DiscountPct/100)))
					if reduced < 0 {
						reduced = 0
					}
					return reduced, listID, nil
				}
				return row.BaseMinor, listID, nil
			}
		}
	}
	return product.BaseMinor, chosenList, nil
}
