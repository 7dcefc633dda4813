// Package billing computes prices for document analysis: tier unit prices, the volume
// discount schedule and customer-tier discounts.
//
// All arithmetic is exact decimal arithmetic. Rounding happens once per discount, to two
// decimal places, half away from zero (half-up for the non-negative amounts involved).
package billing

import (
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"medagent/config"
)

// DefaultCustomerTier is used when a quote names no customer tier.
const DefaultCustomerTier = "standard"

const moneyPlaces = 2

var hundred = decimal.NewFromInt(100)

// Tier is a named analysis level with a fixed unit price per document.
type Tier struct {
	Name        string
	UnitPrice   decimal.Decimal
	Description string
	Features    []string
}

// Bracket is one step of the volume discount schedule: orders of at least
// MinDocuments documents get Rate off the base total.
type Bracket struct {
	MinDocuments int
	Rate         decimal.Decimal
}

// CustomerTier is a per-customer discount level applied on top of volume discounts.
type CustomerTier struct {
	Name string
	Rate decimal.Decimal
}

// Result is the price of one billing request.
// FinalTotal == BaseTotal - DiscountAmount always holds.
type Result struct {
	Tier           string
	DocumentCount  int
	UnitPrice      decimal.Decimal
	BaseTotal      decimal.Decimal
	DiscountRate   decimal.Decimal
	DiscountAmount decimal.Decimal
	FinalTotal     decimal.Decimal
}

// Quote extends Result with the customer-tier discount and the amount to charge.
type Quote struct {
	Result
	CustomerTier           string
	CustomerDiscountRate   decimal.Decimal
	CustomerDiscountAmount decimal.Decimal
	AmountDue              decimal.Decimal
	// AmountCents is AmountDue in the currency's minor unit.
	AmountCents int64
	Currency    string
}

// Calculator prices billing requests against immutable pricing tables.
// It is safe for concurrent use.
type Calculator struct {
	currency      string
	tiers         map[string]Tier
	tierNames     []string
	brackets      []Bracket // descending by MinDocuments
	customerTiers map[string]CustomerTier
	customerNames []string
}

// NewCalculator builds a Calculator from billing configuration.
func NewCalculator(cfg config.BillingConfig) (*Calculator, error) {
	c := &Calculator{
		currency:      strings.ToLower(cfg.Currency),
		tiers:         make(map[string]Tier, len(cfg.Tiers)),
		customerTiers: make(map[string]CustomerTier, len(cfg.CustomerTiers)),
	}
	if c.currency == "" {
		c.currency = "usd"
	}

	for _, tc := range cfg.Tiers {
		price, err := decimal.NewFromString(tc.Price)
		if err != nil {
			return nil, fmt.Errorf("tier %q: invalid price %q: %w", tc.Name, tc.Price, err)
		}
		if price.IsNegative() {
			return nil, fmt.Errorf("tier %q: negative price %s", tc.Name, price)
		}
		if _, dup := c.tiers[tc.Name]; dup {
			return nil, fmt.Errorf("duplicate tier %q", tc.Name)
		}
		c.tiers[tc.Name] = Tier{
			Name:        tc.Name,
			UnitPrice:   price,
			Description: tc.Description,
			Features:    slices.Clone(tc.Features),
		}
		c.tierNames = append(c.tierNames, tc.Name)
	}
	if len(c.tiers) == 0 {
		return nil, fmt.Errorf("no billing tiers configured")
	}

	for _, vc := range cfg.VolumeDiscounts {
		rate, err := parseRate(vc.Rate)
		if err != nil {
			return nil, fmt.Errorf("volume discount at %d documents: %w", vc.MinDocuments, err)
		}
		if vc.MinDocuments < 1 {
			return nil, fmt.Errorf("volume discount threshold must be >= 1, got %d", vc.MinDocuments)
		}
		c.brackets = append(c.brackets, Bracket{MinDocuments: vc.MinDocuments, Rate: rate})
	}
	slices.SortFunc(c.brackets, func(a, b Bracket) int { return b.MinDocuments - a.MinDocuments })
	if err := checkMonotonic(c.brackets); err != nil {
		return nil, err
	}

	for _, cc := range cfg.CustomerTiers {
		rate, err := parseRate(cc.Rate)
		if err != nil {
			return nil, fmt.Errorf("customer tier %q: %w", cc.Name, err)
		}
		c.customerTiers[cc.Name] = CustomerTier{Name: cc.Name, Rate: rate}
		c.customerNames = append(c.customerNames, cc.Name)
	}
	if _, ok := c.customerTiers[DefaultCustomerTier]; !ok {
		c.customerTiers[DefaultCustomerTier] = CustomerTier{Name: DefaultCustomerTier, Rate: decimal.Zero}
		c.customerNames = append([]string{DefaultCustomerTier}, c.customerNames...)
	}

	return c, nil
}

// Compute prices documentCount documents at the given tier, applying the volume discount.
func (c *Calculator) Compute(tier string, documentCount int) (Result, error) {
	t, ok := c.tiers[tier]
	if !ok {
		return Result{}, &InvalidTierError{Tier: tier, Valid: c.TierNames()}
	}
	if documentCount < 1 {
		return Result{}, &InvalidCountError{Count: documentCount}
	}

	base := t.UnitPrice.Mul(decimal.NewFromInt(int64(documentCount)))
	rate := c.DiscountRate(documentCount)
	discount := discountOf(base, rate)

	return Result{
		Tier:           t.Name,
		DocumentCount:  documentCount,
		UnitPrice:      t.UnitPrice,
		BaseTotal:      base,
		DiscountRate:   rate,
		DiscountAmount: discount,
		FinalTotal:     base.Sub(discount),
	}, nil
}

// Quote adds the customer-tier rate to the volume rate and applies both to the base
// total, rounding the combined discount once. CustomerDiscountAmount is the part of
// that discount beyond the volume discount. An empty customerTier means
// DefaultCustomerTier.
func (c *Calculator) Quote(tier string, documentCount int, customerTier string) (Quote, error) {
	res, err := c.Compute(tier, documentCount)
	if err != nil {
		return Quote{}, err
	}

	if customerTier == "" {
		customerTier = DefaultCustomerTier
	}
	ct, ok := c.customerTiers[customerTier]
	if !ok {
		return Quote{}, &InvalidCustomerTierError{CustomerTier: customerTier, Valid: c.CustomerTierNames()}
	}

	total := discountOf(res.BaseTotal, res.DiscountRate.Add(ct.Rate))
	customerDiscount := decimal.Max(total.Sub(res.DiscountAmount), decimal.Zero)
	due := res.FinalTotal.Sub(customerDiscount)

	return Quote{
		Result:                 res,
		CustomerTier:           ct.Name,
		CustomerDiscountRate:   ct.Rate,
		CustomerDiscountAmount: customerDiscount,
		AmountDue:              due,
		AmountCents:            due.Mul(hundred).Round(0).IntPart(),
		Currency:               c.currency,
	}, nil
}

// DiscountRate returns the volume discount rate for documentCount documents.
func (c *Calculator) DiscountRate(documentCount int) decimal.Decimal {
	for _, b := range c.brackets {
		if documentCount >= b.MinDocuments {
			return b.Rate
		}
	}
	return decimal.Zero
}

// Tier returns the named tier.
func (c *Calculator) Tier(name string) (Tier, bool) {
	t, ok := c.tiers[name]
	return t, ok
}

// Tiers returns all tiers in configuration order.
func (c *Calculator) Tiers() []Tier {
	out := make([]Tier, 0, len(c.tierNames))
	for _, n := range c.tierNames {
		out = append(out, c.tiers[n])
	}
	return out
}

// TierNames returns the configured tier names in configuration order.
func (c *Calculator) TierNames() []string {
	return slices.Clone(c.tierNames)
}

// Brackets returns the volume discount schedule in ascending threshold order.
func (c *Calculator) Brackets() []Bracket {
	out := slices.Clone(c.brackets)
	slices.Reverse(out)
	return out
}

// CustomerTiers returns the customer tiers in configuration order.
func (c *Calculator) CustomerTiers() []CustomerTier {
	out := make([]CustomerTier, 0, len(c.customerNames))
	for _, n := range c.customerNames {
		out = append(out, c.customerTiers[n])
	}
	return out
}

// CustomerTierNames returns the customer tier names in configuration order.
func (c *Calculator) CustomerTierNames() []string {
	return slices.Clone(c.customerNames)
}

// Currency returns the lower-case ISO currency code used for quotes.
func (c *Calculator) Currency() string {
	return c.currency
}

// discountOf rounds amount*rate to cents. The result never exceeds amount, so the
// discounted total cannot go negative even for sub-cent unit prices.
func discountOf(amount, rate decimal.Decimal) decimal.Decimal {
	d := amount.Mul(rate).Round(moneyPlaces)
	if d.GreaterThan(amount) {
		return amount
	}
	return d
}

func parseRate(s string) (decimal.Decimal, error) {
	r, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid rate %q: %w", s, err)
	}
	if r.IsNegative() || r.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return decimal.Zero, fmt.Errorf("rate %s must be in [0, 1)", r)
	}
	return r, nil
}

// checkMonotonic requires rates to not decrease as thresholds grow.
// brackets must be sorted descending by MinDocuments.
func checkMonotonic(brackets []Bracket) error {
	for i := 1; i < len(brackets); i++ {
		hi, lo := brackets[i-1], brackets[i]
		if hi.MinDocuments == lo.MinDocuments {
			return fmt.Errorf("duplicate volume discount threshold %d", hi.MinDocuments)
		}
		if hi.Rate.LessThan(lo.Rate) {
			return fmt.Errorf("volume discount at %d documents (%s) is lower than at %d documents (%s)",
				hi.MinDocuments, hi.Rate, lo.MinDocuments, lo.Rate)
		}
	}
	return nil
}
