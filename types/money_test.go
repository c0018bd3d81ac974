package types

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

func TestMoneyConstructors(t *testing.T) {
	tests := []struct {
		name     string
		money    Money
		amount   int64
		currency string
		display  string
	}{
		{"New lowercases currency", New(2000000, "COP"), 2000000, "cop", "20000.00 COP"},
		{"Zero", Zero("cop"), 0, "cop", "0.00 COP"},
		{"Negative", New(-150, "cop"), -150, "cop", "-1.50 COP"},
		{"No currency", New(70000, ""), 70000, "", "700.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.money.Amount != tt.amount {
				t.Errorf("Amount: got %d, want %d", tt.money.Amount, tt.amount)
			}
			if tt.money.Currency != tt.currency {
				t.Errorf("Currency: got %s, want %s", tt.money.Currency, tt.currency)
			}
			if tt.money.String() != tt.display {
				t.Errorf("Display: got %s, want %s", tt.money.String(), tt.display)
			}
		})
	}
}

func TestMoneyArithmetic(t *testing.T) {
	tests := []struct {
		name     string
		op       func() Money
		expected Money
	}{
		{"Add", func() Money { return New(100, "cop").Add(New(200, "cop")) }, New(300, "cop")},
		{"Subtract", func() Money { return New(500, "cop").Subtract(New(200, "cop")) }, New(300, "cop")},
		{"Subtract below zero", func() Money { return New(100, "cop").Subtract(New(300, "cop")) }, New(-200, "cop")},
		{"Min", func() Money { return New(500, "cop").Min(New(200, "cop")) }, New(200, "cop")},
		{"Sum", func() Money { return Sum("cop", New(1, "cop"), New(2, "cop"), New(3, "cop")) }, New(6, "cop")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.op(); !got.Equal(tt.expected) {
				t.Errorf("got %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestMulRate(t *testing.T) {
	tests := []struct {
		name   string
		amount int64
		rate   string
		want   int64
	}{
		{"14 percent of 5000.00", 500000, "0.14", 70000},
		{"30 percent cap", 2000000, "0.30", 600000},
		{"zero rate", 500000, "0", 0},
		{"rounds half up", 5, "0.5", 3},      // 0.025 -> 0.03
		{"rounds half away from zero", -5, "0.5", -3},
		{"rounds down below half", 4, "0.1", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := New(tt.amount, "cop").MulRate(decimal.RequireFromString(tt.rate))
			if got.Amount != tt.want {
				t.Errorf("got %d, want %d", got.Amount, tt.want)
			}
		})
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"5000.00", 500000, false},
		{"700", 70000, false},
		{" 0.5 ", 50, false},
		{"1.230", 123, false},
		{"1.234", 0, true},
		{"abc", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in, "cop")
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Amount != tt.want {
				t.Errorf("got %d, want %d", got.Amount, tt.want)
			}
		})
	}
}

func TestDecimalRoundTrip(t *testing.T) {
	m := New(123456, "cop")
	if got := m.Decimal().String(); got != "1234.56" {
		t.Errorf("Decimal: got %s", got)
	}
	if back := FromDecimal(m.Decimal(), "cop"); !back.Equal(m) {
		t.Errorf("FromDecimal: got %v, want %v", back, m)
	}
	if got := FromDecimal(decimal.RequireFromString("700.005"), "cop"); got.Amount != 70001 {
		t.Errorf("FromDecimal rounding: got %d", got.Amount)
	}
	if got := m.FormatMajor(); got != "1234.56" {
		t.Errorf("FormatMajor: got %s", got)
	}
}

func TestMoneyComparison(t *testing.T) {
	a, b := New(100, "cop"), New(200, "cop")
	if !a.LessThan(b) || b.LessThan(a) {
		t.Error("LessThan mismatch")
	}
	if !b.GreaterThan(a) || a.GreaterThan(b) {
		t.Error("GreaterThan mismatch")
	}
	if !Zero("cop").IsZero() || !a.IsPositive() || !New(-1, "cop").IsNegative() {
		t.Error("sign predicates mismatch")
	}
	if a.SameCurrency(New(100, "usd")) {
		t.Error("SameCurrency should be false across currencies")
	}
}

func TestCurrencyMismatchPanics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic on currency mismatch")
		}
	}()
	New(100, "cop").Add(New(100, "usd"))
}

func TestMoneyJSON(t *testing.T) {
	data, err := json.Marshal(New(70000, "cop"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out["display"] != "700.00" || out["currency"] != "cop" || out["amount"] != float64(70000) {
		t.Errorf("unexpected JSON: %s", data)
	}
}
