package services

// Totals is an order amount breakdown. All amounts are integer cents.
type Totals struct {
	SubtotalCents int `json:"subtotal_cents"`
	TaxCents      int `json:"tax_cents"`
	ShippingCents int `json:"shipping_cents"`
	TotalCents    int `json:"total_cents"`
}

// Pricer derives tax and shipping from a cart subtotal. Rates come from
// configuration so staging can run with a different tax regime.
type Pricer struct {
	taxRateBps                 int
	freeShippingThresholdCents int
	shippingFlatCents          int
}

func NewPricer(taxRateBps, freeShippingThresholdCents, shippingFlatCents int) *Pricer {
	return &Pricer{
		taxRateBps:                 taxRateBps,
		freeShippingThresholdCents: freeShippingThresholdCents,
		shippingFlatCents:          shippingFlatCents,
	}
}

// Quote computes the full breakdown for a subtotal. Tax is truncated toward
// zero. Shipping is waived only above the free-shipping threshold; a subtotal
// sitting exactly on the threshold still pays the flat rate.
func (p *Pricer) Quote(subtotalCents int) Totals {
	t := Totals{
		SubtotalCents: subtotalCents,
		TaxCents:      subtotalCents * p.taxRateBps / 10_000,
	}
	if subtotalCents <= p.freeShippingThresholdCents {
		t.ShippingCents = p.shippingFlatCents
	}
	t.TotalCents = t.SubtotalCents + t.TaxCents + t.ShippingCents
	return t
}
