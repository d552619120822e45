package services

import "testing"

func TestPricerQuote(t *testing.T) {
	t.Parallel()

	pricer := NewPricer(1600, 50000, 5000)

	tests := []struct {
		name          string
		subtotalCents int
		want          Totals
	}{
		{
			name:          "below free shipping threshold",
			subtotalCents: 30000,
			want:          Totals{SubtotalCents: 30000, TaxCents: 4800, ShippingCents: 5000, TotalCents: 39800},
		},
		{
			name:          "exactly at threshold still pays shipping",
			subtotalCents: 50000,
			want:          Totals{SubtotalCents: 50000, TaxCents: 8000, ShippingCents: 5000, TotalCents: 63000},
		},
		{
			name:          "above threshold ships free",
			subtotalCents: 50001,
			want:          Totals{SubtotalCents: 50001, TaxCents: 8000, ShippingCents: 0, TotalCents: 58001},
		},
		{
			name:          "tax truncates toward zero",
			subtotalCents: 999,
			want:          Totals{SubtotalCents: 999, TaxCents: 159, ShippingCents: 5000, TotalCents: 6158},
		},
		{
			name:          "empty subtotal",
			subtotalCents: 0,
			want:          Totals{SubtotalCents: 0, TaxCents: 0, ShippingCents: 5000, TotalCents: 5000},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := pricer.Quote(tc.subtotalCents)
			if got != tc.want {
				t.Fatalf("unexpected totals: got=%+v want=%+v", got, tc.want)
			}
		})
	}
}

func TestPricerQuote_ZeroRates(t *testing.T) {
	t.Parallel()

	pricer := NewPricer(0, 0, 0)
	got := pricer.Quote(12345)
	if got.TotalCents != 12345 || got.TaxCents != 0 || got.ShippingCents != 0 {
		t.Fatalf("unexpected totals: %+v", got)
	}
}
