package deal

import (
	"slices"

	"github.com/shopspring/decimal"

	"github.com/WillNye/tbr-deal-finder/internal/book"
)

// Classification tells whether a qualifying deal is new this run.
type Classification string

const (
	New    Classification = "NEW"
	Active Classification = "ACTIVE"
)

// Criteria is the user's definition of a deal worth reporting.
type Criteria struct {
	MaxPrice decimal.Decimal
	// MinDiscount is a fraction: 0.35 means 35% off.
	MinDiscount decimal.Decimal
}

// CriteriaFromPercent builds Criteria from a price ceiling and a whole
// percentage discount.
func CriteriaFromPercent(maxPrice decimal.Decimal, minDiscountPct int) Criteria {
	return Criteria{
		MaxPrice:    maxPrice,
		MinDiscount: decimal.New(int64(minDiscountPct), -2),
	}
}

// Qualifies reports whether a valid record meets the criteria.
func (c Criteria) Qualifies(r Record) bool {
	if r.Deleted || !r.ListPrice.IsPositive() {
		return false
	}
	return r.Price.Amount.LessThanOrEqual(c.MaxPrice) &&
		r.Discount().GreaterThanOrEqual(c.MinDiscount)
}

// ResolvedDeal is a qualifying deal ready for presentation.
type ResolvedDeal struct {
	View           View            `json:"view" yaml:"view"`
	Key            Key             `json:"key" yaml:"key"`
	Identity       book.Identity   `json:"identity" yaml:"identity"`
	Discount       decimal.Decimal `json:"discount" yaml:"discount"`
	Classification Classification  `json:"classification" yaml:"classification"`
}

// Resolution is the output of Resolve.
type Resolution struct {
	Deals []ResolvedDeal
	// Warnings holds a *DataQualityError for every malformed current record.
	Warnings []error
}

// Resolve classifies every qualifying, non-deleted entry of current against
// the previous snapshot. A deal is NEW when its key is absent from previous,
// when the previous entry was deleted or did not qualify, or when its price
// strictly dropped. Otherwise it is ACTIVE. Output is ordered by title,
// authors, seller then format.
func Resolve(current, previous []View, criteria Criteria) Resolution {
	prior := make(map[Key]View, len(previous))
	for _, p := range previous {
		k := p.Key()
		if existing, ok := prior[k]; ok && !p.Newer(existing) {
			continue
		}
		prior[k] = p
	}

	var res Resolution
	for _, c := range current {
		if c.Deleted {
			continue
		}
		if err := c.Validate(); err != nil {
			res.Warnings = append(res.Warnings, err)
			continue
		}
		if !criteria.Qualifies(c.Record) {
			continue
		}

		key := c.Key()
		class := New
		if p, ok := prior[key]; ok && p.Validate() == nil && criteria.Qualifies(p.Record) &&
			!c.Price.Amount.LessThan(p.Price.Amount) {
			class = Active
		}

		res.Deals = append(res.Deals, ResolvedDeal{
			View:           c,
			Key:            key,
			Identity:       key.Identity(),
			Discount:       c.Discount(),
			Classification: class,
		})
	}

	slices.SortStableFunc(res.Deals, func(a, b ResolvedDeal) int {
		return CompareKeys(a.Key, b.Key)
	})
	return res
}
