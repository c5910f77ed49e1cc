package billing

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ComputeTotal returns base - discount + addition, clamped at zero.
func ComputeTotal(base, discount, addition decimal.Decimal) decimal.Decimal {
	total := base.Sub(discount).Add(addition)
	if total.IsNegative() {
		return decimal.Zero
	}
	return total
}

// DiscountFromPercent converts a percentage entry into the fixed amount that
// is stored: base * pct / 100, rounded to cents.
func DiscountFromPercent(base, pct decimal.Decimal) decimal.Decimal {
	return base.Mul(pct).Div(hundred).Round(2)
}

// resolvePrice picks the price-table override when present, otherwise the
// service's list price. Missing data resolves to zero, never negative.
func resolvePrice(svc *ClinicService, override *decimal.Decimal) decimal.Decimal {
	var p decimal.Decimal
	switch {
	case override != nil:
		p = *override
	case svc != nil:
		p = svc.Price
	}
	if p.IsNegative() {
		return decimal.Zero
	}
	return p
}

// Quote is the pricing part of a booking form.
//
// Selecting a service or price table (ApplyResolvedPrice) always replaces the
// base price, including a manual edit made before it. A manual price only
// sticks until the next selection. Percentage discounts are converted to a
// fixed amount when entered and are not recomputed when the base changes.
type Quote struct {
	base     decimal.Decimal
	discount decimal.Decimal
	addition decimal.Decimal
	manual   bool
}

func NewQuote(resolved decimal.Decimal) *Quote {
	q := &Quote{}
	q.ApplyResolvedPrice(resolved)
	return q
}

func (q *Quote) ApplyResolvedPrice(p decimal.Decimal) {
	if p.IsNegative() {
		p = decimal.Zero
	}
	q.base = p
	q.manual = false
}

func (q *Quote) SetManualPrice(p decimal.Decimal) error {
	if p.IsNegative() {
		return fmt.Errorf("%w: price must not be negative", ErrInvalidInput)
	}
	q.base = p
	q.manual = true
	return nil
}

func (q *Quote) SetDiscount(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("%w: discount must not be negative", ErrInvalidInput)
	}
	q.discount = amount
	return nil
}

func (q *Quote) SetDiscountPercent(pct decimal.Decimal) error {
	if pct.IsNegative() || pct.GreaterThan(hundred) {
		return fmt.Errorf("%w: discount percentage must be between 0 and 100", ErrInvalidInput)
	}
	q.discount = DiscountFromPercent(q.base, pct)
	return nil
}

func (q *Quote) SetAddition(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("%w: addition must not be negative", ErrInvalidInput)
	}
	q.addition = amount
	return nil
}

func (q *Quote) Base() decimal.Decimal     { return q.base }
func (q *Quote) Discount() decimal.Decimal { return q.discount }
func (q *Quote) Addition() decimal.Decimal { return q.addition }
func (q *Quote) Manual() bool              { return q.manual }

func (q *Quote) Total() decimal.Decimal {
	return ComputeTotal(q.base, q.discount, q.addition)
}

func (q *Quote) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Base     decimal.Decimal `json:"base"`
		Discount decimal.Decimal `json:"discount"`
		Addition decimal.Decimal `json:"addition"`
		Total    decimal.Decimal `json:"total"`
		Manual   bool            `json:"manual"`
	}{q.base, q.discount, q.addition, q.Total(), q.manual})
}

// Adjustments are the optional pricing inputs of a booking or quote request.
// Discount and DiscountPct are mutually exclusive.
type Adjustments struct {
	Price       *decimal.Decimal `json:"price,omitempty"`
	Discount    *decimal.Decimal `json:"discount,omitempty"`
	DiscountPct *decimal.Decimal `json:"discount_pct,omitempty"`
	Addition    *decimal.Decimal `json:"addition,omitempty"`
}

// Apply writes the adjustments onto q in form order: manual price, then
// discount, then addition.
func (a Adjustments) Apply(q *Quote) error {
	if a.Discount != nil && a.DiscountPct != nil {
		return fmt.Errorf("%w: discount and discount_pct are mutually exclusive", ErrInvalidInput)
	}
	if a.Price != nil {
		if err := q.SetManualPrice(*a.Price); err != nil {
			return err
		}
	}
	if a.Discount != nil {
		if err := q.SetDiscount(*a.Discount); err != nil {
			return err
		}
	}
	if a.DiscountPct != nil {
		if err := q.SetDiscountPercent(*a.DiscountPct); err != nil {
			return err
		}
	}
	if a.Addition != nil {
		if err := q.SetAddition(*a.Addition); err != nil {
			return err
		}
	}
	return nil
}
