package billing

import (
	"fmt"
	"strings"
)

// InvalidTierError is returned for an analysis tier that is not configured.
type InvalidTierError struct {
	Tier  string
	Valid []string
}

func (e *InvalidTierError) Error() string {
	return fmt.Sprintf("invalid analysis type %q: available types are %s", e.Tier, strings.Join(e.Valid, ", "))
}

// InvalidCountError is returned when fewer than one document is requested.
type InvalidCountError struct {
	Count int
}

func (e *InvalidCountError) Error() string {
	return fmt.Sprintf("invalid document count %d: must be at least 1", e.Count)
}

// InvalidCustomerTierError is returned for a customer tier that is not configured.
type InvalidCustomerTierError struct {
	CustomerTier string
	Valid        []string
}

func (e *InvalidCustomerTierError) Error() string {
	return fmt.Sprintf("invalid customer tier %q: available tiers are %s", e.CustomerTier, strings.Join(e.Valid, ", "))
}
