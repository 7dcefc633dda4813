package billing

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medagent/config"
)

func defaultBilling() config.BillingConfig {
	return config.BillingConfig{
		Currency: "USD",
		Tiers: []config.TierConfig{
			{Name: "basic", Price: "0.10", Description: "Basic SOAP analysis"},
			{Name: "comprehensive", Price: "0.50", Description: "Full medical record analysis"},
			{Name: "batch", Price: "0.05", Description: "Bulk processing per document"},
		},
		VolumeDiscounts: []config.VolumeDiscountConfig{
			{MinDocuments: 10, Rate: "0.05"},
			{MinDocuments: 50, Rate: "0.25"},
			{MinDocuments: 20, Rate: "0.15"},
		},
		CustomerTiers: []config.CustomerTierConfig{
			{Name: "standard", Rate: "0"},
			{Name: "premium", Rate: "0.05"},
			{Name: "enterprise", Rate: "0.15"},
		},
	}
}

func newTestCalculator(t *testing.T) *Calculator {
	t.Helper()
	c, err := NewCalculator(defaultBilling())
	require.NoError(t, err)
	return c
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertDecimal(t *testing.T, name string, want string, got decimal.Decimal) {
	t.Helper()
	if !got.Equal(dec(want)) {
		t.Errorf("%s = %s, want %s", name, got, want)
	}
}

func TestCompute_BasicTwentyFive(t *testing.T) {
	c := newTestCalculator(t)

	res, err := c.Compute("basic", 25)
	require.NoError(t, err)

	assertDecimal(t, "BaseTotal", "2.50", res.BaseTotal)
	assertDecimal(t, "DiscountRate", "0.15", res.DiscountRate)
	// 2.50 * 0.15 = 0.375 rounds half-up to 0.38
	assertDecimal(t, "DiscountAmount", "0.38", res.DiscountAmount)
	assertDecimal(t, "FinalTotal", "2.12", res.FinalTotal)
	assert.Equal(t, "basic", res.Tier)
	assert.Equal(t, 25, res.DocumentCount)
}

func TestCompute_Table(t *testing.T) {
	tests := []struct {
		tier     string
		count    int
		base     string
		rate     string
		discount string
		final    string
	}{
		{"basic", 1, "0.10", "0", "0", "0.10"},
		{"basic", 9, "0.90", "0", "0", "0.90"},
		{"basic", 10, "1.00", "0.05", "0.05", "0.95"},
		{"comprehensive", 19, "9.50", "0.05", "0.48", "9.02"},
		{"comprehensive", 20, "10.00", "0.15", "1.50", "8.50"},
		{"batch", 3, "0.15", "0", "0", "0.15"},
		{"batch", 50, "2.50", "0.25", "0.63", "1.87"},
		{"batch", 1000, "50.00", "0.25", "12.50", "37.50"},
	}

	c := newTestCalculator(t)
	for _, tt := range tests {
		t.Run(tt.tier, func(t *testing.T) {
			res, err := c.Compute(tt.tier, tt.count)
			require.NoError(t, err)
			assertDecimal(t, "BaseTotal", tt.base, res.BaseTotal)
			assertDecimal(t, "DiscountRate", tt.rate, res.DiscountRate)
			assertDecimal(t, "DiscountAmount", tt.discount, res.DiscountAmount)
			assertDecimal(t, "FinalTotal", tt.final, res.FinalTotal)
		})
	}
}

func TestCompute_InvalidInput(t *testing.T) {
	c := newTestCalculator(t)

	_, err := c.Compute("basic", 0)
	var countErr *InvalidCountError
	require.True(t, errors.As(err, &countErr))
	assert.Equal(t, 0, countErr.Count)

	_, err = c.Compute("basic", -3)
	require.True(t, errors.As(err, &countErr))

	_, err = c.Compute("unknown", 5)
	var tierErr *InvalidTierError
	require.True(t, errors.As(err, &tierErr))
	assert.Equal(t, "unknown", tierErr.Tier)
	assert.Equal(t, []string{"basic", "comprehensive", "batch"}, tierErr.Valid)

	// tier names are matched exactly, never defaulted
	_, err = c.Compute("Basic", 5)
	require.True(t, errors.As(err, &tierErr))
}

func TestCompute_Invariants(t *testing.T) {
	c := newTestCalculator(t)

	for _, tier := range c.TierNames() {
		for n := 1; n <= 200; n++ {
			res, err := c.Compute(tier, n)
			require.NoError(t, err)

			if res.FinalTotal.IsNegative() || res.FinalTotal.GreaterThan(res.BaseTotal) {
				t.Fatalf("%s x%d: final %s outside [0, %s]", tier, n, res.FinalTotal, res.BaseTotal)
			}
			if !res.FinalTotal.Equal(res.BaseTotal.Sub(res.DiscountAmount)) {
				t.Fatalf("%s x%d: final != base - discount", tier, n)
			}
			if !res.DiscountAmount.Equal(res.BaseTotal.Mul(res.DiscountRate).Round(2)) {
				t.Fatalf("%s x%d: discount %s != round(base*rate)", tier, n, res.DiscountAmount)
			}
		}
	}
}

func TestDiscountRate_BracketsAndMonotonic(t *testing.T) {
	c := newTestCalculator(t)

	brackets := []struct{ lo, hi int }{{1, 9}, {10, 19}, {20, 49}, {50, 500}}
	for _, b := range brackets {
		want := c.DiscountRate(b.lo)
		for n := b.lo; n <= b.hi; n++ {
			if !c.DiscountRate(n).Equal(want) {
				t.Fatalf("rate changed inside bracket [%d,%d] at %d", b.lo, b.hi, n)
			}
		}
	}

	prev := decimal.Zero
	for n := 1; n <= 500; n++ {
		r := c.DiscountRate(n)
		if r.LessThan(prev) {
			t.Fatalf("rate decreased at %d: %s < %s", n, r, prev)
		}
		prev = r
	}
}

func TestCompute_Deterministic(t *testing.T) {
	c := newTestCalculator(t)

	first, err := c.Compute("comprehensive", 37)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := c.Compute("comprehensive", 37)
		require.NoError(t, err)
		assert.Equal(t, first.FinalTotal.String(), again.FinalTotal.String())
		assert.Equal(t, first.DiscountAmount.String(), again.DiscountAmount.String())
	}
}

func TestCompute_SubCentPriceNeverNegative(t *testing.T) {
	cfg := config.BillingConfig{
		Tiers:           []config.TierConfig{{Name: "micro", Price: "0.006"}},
		VolumeDiscounts: []config.VolumeDiscountConfig{{MinDocuments: 1, Rate: "0.99"}},
	}
	c, err := NewCalculator(cfg)
	require.NoError(t, err)

	res, err := c.Compute("micro", 1)
	require.NoError(t, err)
	// 0.006 * 0.99 = 0.00594 would round to 0.01 > base
	assertDecimal(t, "DiscountAmount", "0.006", res.DiscountAmount)
	assert.True(t, res.FinalTotal.IsZero())
}

func TestQuote(t *testing.T) {
	tests := []struct {
		name         string
		tier         string
		count        int
		customerTier string
		wantTier     string
		custDiscount string
		due          string
		cents        int64
	}{
		{"default customer tier", "basic", 25, "", "standard", "0", "2.12", 212},
		{"premium", "basic", 25, "premium", "premium", "0.12", "2.00", 200},
		{"enterprise bulk", "batch", 100, "enterprise", "enterprise", "0.75", "3.00", 300},
		{"premium below volume brackets", "comprehensive", 3, "premium", "premium", "0.08", "1.42", 142},
		{"single comprehensive", "comprehensive", 1, "standard", "standard", "0", "0.50", 50},
	}

	c := newTestCalculator(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := c.Quote(tt.tier, tt.count, tt.customerTier)
			require.NoError(t, err)
			assert.Equal(t, tt.wantTier, q.CustomerTier)
			assertDecimal(t, "CustomerDiscountAmount", tt.custDiscount, q.CustomerDiscountAmount)
			assertDecimal(t, "AmountDue", tt.due, q.AmountDue)
			assert.Equal(t, tt.cents, q.AmountCents)
			assert.Equal(t, "usd", q.Currency)
		})
	}
}

func TestQuote_RatesAddOnBaseTotal(t *testing.T) {
	c := newTestCalculator(t)

	q, err := c.Quote("basic", 25, "premium")
	require.NoError(t, err)

	// (0.15 + 0.05) x 2.50 rounded once, not 0.05 applied to the discounted total
	assertDecimal(t, "total discount", "0.50", q.DiscountAmount.Add(q.CustomerDiscountAmount))
	assertDecimal(t, "AmountDue", "2.00", q.AmountDue)
	assert.True(t, q.AmountDue.Equal(q.BaseTotal.Sub(q.DiscountAmount).Sub(q.CustomerDiscountAmount)))
}

func TestQuote_Errors(t *testing.T) {
	c := newTestCalculator(t)

	_, err := c.Quote("basic", 5, "platinum")
	var custErr *InvalidCustomerTierError
	require.True(t, errors.As(err, &custErr))
	assert.Equal(t, "platinum", custErr.CustomerTier)

	// tier validation happens before customer tier validation
	_, err = c.Quote("nope", 5, "platinum")
	var tierErr *InvalidTierError
	require.True(t, errors.As(err, &tierErr))

	_, err = c.Quote("basic", 0, "standard")
	var countErr *InvalidCountError
	require.True(t, errors.As(err, &countErr))
}

func TestNewCalculator_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(cfg *config.BillingConfig)
	}{
		{"no tiers", func(cfg *config.BillingConfig) { cfg.Tiers = nil }},
		{"bad price", func(cfg *config.BillingConfig) { cfg.Tiers[0].Price = "abc" }},
		{"negative price", func(cfg *config.BillingConfig) { cfg.Tiers[0].Price = "-1" }},
		{"duplicate tier", func(cfg *config.BillingConfig) { cfg.Tiers[2].Name = "basic" }},
		{"rate too high", func(cfg *config.BillingConfig) { cfg.VolumeDiscounts[0].Rate = "1.5" }},
		{"zero threshold", func(cfg *config.BillingConfig) { cfg.VolumeDiscounts[0].MinDocuments = 0 }},
		{"duplicate threshold", func(cfg *config.BillingConfig) { cfg.VolumeDiscounts[0].MinDocuments = 20 }},
		{"decreasing schedule", func(cfg *config.BillingConfig) { cfg.VolumeDiscounts[1].Rate = "0.01" }},
		{"bad customer rate", func(cfg *config.BillingConfig) { cfg.CustomerTiers[1].Rate = "x" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultBilling()
			tt.mutate(&cfg)
			_, err := NewCalculator(cfg)
			require.Error(t, err)
		})
	}
}

func TestCalculator_Catalog(t *testing.T) {
	c := newTestCalculator(t)

	brackets := c.Brackets()
	require.Len(t, brackets, 3)
	assert.Equal(t, 10, brackets[0].MinDocuments)
	assert.Equal(t, 50, brackets[2].MinDocuments)

	tier, ok := c.Tier("comprehensive")
	require.True(t, ok)
	assertDecimal(t, "UnitPrice", "0.50", tier.UnitPrice)

	assert.Equal(t, []string{"standard", "premium", "enterprise"}, c.CustomerTierNames())
	assert.Len(t, c.Tiers(), 3)
}

func TestNewCalculator_AddsStandardCustomerTier(t *testing.T) {
	cfg := defaultBilling()
	cfg.CustomerTiers = []config.CustomerTierConfig{{Name: "vip", Rate: "0.2"}}

	c, err := NewCalculator(cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"standard", "vip"}, c.CustomerTierNames())

	q, err := c.Quote("basic", 1, "")
	require.NoError(t, err)
	assert.Equal(t, "standard", q.CustomerTier)
}
