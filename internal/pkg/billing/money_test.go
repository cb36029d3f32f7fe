package billing

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestMajorUnits(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{in: 150000, want: "1500.00"},
		{in: 1999, want: "19.99"},
		{in: 1, want: "0.01"},
		{in: 0, want: "0.00"},
		{in: -250, want: "-2.50"},
	}

	for _, tt := range tests {
		if got := MajorUnits(tt.in).StringFixed(2); got != tt.want {
			t.Fatalf("MajorUnits(%d) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestMinorUnitsRoundTrip(t *testing.T) {
	amounts := []int64{0, 1, 9, 10, 99, 100, 101, 1999, 150000, 123456789, -1, -150000, 9007199254740993}
	for a := int64(0); a < 2000; a += 7 {
		amounts = append(amounts, a)
	}

	for _, a := range amounts {
		if got := MinorUnits(MajorUnits(a)); got != a {
			t.Fatalf("round trip of %d returned %d", a, got)
		}
	}
}

func TestMinorUnitsFromString(t *testing.T) {
	if got := MinorUnits(decimal.RequireFromString("1500.00")); got != 150000 {
		t.Fatalf("expected 150000, got %d", got)
	}
	if got := MinorUnits(decimal.RequireFromString("0.1")); got != 10 {
		t.Fatalf("expected 10, got %d", got)
	}
}
