package dispensing

import "fmt"

// Names accepted by the stock_policy setting.
const (
	PolicyReject        = "reject"
	PolicyAllowNegative = "allow-negative"
)

// StockPolicy decides what happens when a dispense asks for more units
// than the catalog holds.
type StockPolicy int

const (
	// RejectNegative fails the whole dispense with InsufficientStockError.
	RejectNegative StockPolicy = iota

	// AllowNegative debits anyway, records negative stock and logs a
	// warning. Matches clinics that dispense before the delivery is booked.
	AllowNegative
)

func (p StockPolicy) String() string {
	switch p {
	case RejectNegative:
		return PolicyReject
	case AllowNegative:
		return PolicyAllowNegative
	}
	return fmt.Sprintf("StockPolicy(%d)", int(p))
}

// ParseStockPolicy maps the stock_policy config value.
func ParseStockPolicy(s string) (StockPolicy, error) {
	switch s {
	case "", PolicyReject:
		return RejectNegative, nil
	case PolicyAllowNegative:
		return AllowNegative, nil
	}
	return RejectNegative, fmt.Errorf("unknown stock policy %q", s)
}
