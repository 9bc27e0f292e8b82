package gateway

// Customer identifies the shopper to the gateway.
type Customer struct {
	ID    string
	Name  string
	Email string
	Phone string
}

// Order is the gateway's view of a created order. PaymentSessionID is the
// checkout handle the hosted checkout SDK is initialized with.
type Order struct {
	OrderID          string
	PaymentSessionID string
	OrderToken       string
	CFOrderID        string
}

// Verification is the authoritative settlement answer for one order.
// Settled is only true for a PAID order; everything else is pending from
// this flow's perspective: absence of confirmation is not proof of failure.
type Verification struct {
	Settled   bool
	RawStatus string
	CFOrderID string
	Amount    float64
}
