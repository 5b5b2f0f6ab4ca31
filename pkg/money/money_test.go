package money

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestEqual_Epsilon(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"350.00", "350.00", true},
		{"350.00", "350.009", true},
		{"350.00", "349.995", true},
		{"350.00", "350.01", false},
		{"100", "350", false},
	}
	for _, tt := range tests {
		if got := Equal(dec(tt.a), dec(tt.b)); got != tt.want {
			t.Errorf("Equal(%s, %s) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestLessGreater(t *testing.T) {
	if !Less(dec("100"), dec("350")) {
		t.Error("expected 100 < 350")
	}
	if Less(dec("349.999"), dec("350")) {
		t.Error("sub-cent difference must not count as less")
	}
	if !Greater(dec("500"), dec("420")) {
		t.Error("expected 500 > 420")
	}
	if Greater(dec("420.004"), dec("420")) {
		t.Error("sub-cent difference must not count as greater")
	}
}

func TestPrice_Unset(t *testing.T) {
	var p Price
	if p.IsSet() {
		t.Fatal("zero Price should be unset")
	}
	if _, ok := p.Get(); ok {
		t.Error("Get on unset price should report false")
	}
	if p.String() != "unset" {
		t.Errorf("unexpected String(): %s", p.String())
	}
}

func TestSum(t *testing.T) {
	total, unset := Sum(MustParsePrice("150.00"), Unset(), MustParsePrice("200.00"))
	if !total.Equal(dec("350")) {
		t.Errorf("expected 350, got %s", total)
	}
	if unset != 1 {
		t.Errorf("expected 1 unset, got %d", unset)
	}

	total, unset = Sum()
	if !total.IsZero() || unset != 0 {
		t.Errorf("empty sum = %s/%d", total, unset)
	}
}

func TestPrice_JSON(t *testing.T) {
	type wrapper struct {
		Price Price `json:"price"`
	}

	b, err := json.Marshal(wrapper{Price: MustParsePrice("150")})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"price":"150.00"}` {
		t.Errorf("unexpected json: %s", b)
	}

	b, _ = json.Marshal(wrapper{})
	if string(b) != `{"price":null}` {
		t.Errorf("unexpected json for unset: %s", b)
	}

	var w wrapper
	if err := json.Unmarshal([]byte(`{"price":200.5}`), &w); err != nil {
		t.Fatalf("unmarshal number: %v", err)
	}
	if v, ok := w.Price.Get(); !ok || !v.Equal(dec("200.50")) {
		t.Errorf("unexpected price %v", w.Price)
	}

	if err := json.Unmarshal([]byte(`{"price":null}`), &w); err != nil {
		t.Fatalf("unmarshal null: %v", err)
	}
	if w.Price.IsSet() {
		t.Error("null should decode to unset")
	}
}

func TestPrice_ScanValue(t *testing.T) {
	var p Price
	if err := p.Scan(nil); err != nil || p.IsSet() {
		t.Fatalf("Scan(nil) = %v, set=%v", err, p.IsSet())
	}
	if err := p.Scan("99.90"); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	v, err := p.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	if v != "99.90" {
		t.Errorf("expected 99.90, got %v", v)
	}

	v, _ = Unset().Value()
	if v != nil {
		t.Errorf("unset price should store NULL, got %v", v)
	}
}

func TestParse(t *testing.T) {
	d, err := Parse("12.345")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if Format(d) != "12.35" {
		t.Errorf("expected 12.35, got %s", Format(d))
	}
	if _, err := Parse("abc"); err == nil {
		t.Error("expected error for non-numeric amount")
	}
}
