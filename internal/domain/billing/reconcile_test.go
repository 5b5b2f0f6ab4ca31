package billing

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/therapy/therapy/pkg/money"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func lines(prices ...string) []Line {
	out := make([]Line, len(prices))
	for i, p := range prices {
		out[i] = Line{AppointmentID: int64(i + 1)}
		if p != "" {
			out[i].Price = money.MustParsePrice(p)
		}
	}
	return out
}

func TestDeriveAmount(t *testing.T) {
	tests := []struct {
		name   string
		prices []string
		want   string
	}{
		{"empty", nil, "0"},
		{"single", []string{"150.00"}, "150"},
		{"pair", []string{"150.00", "200.00"}, "350"},
		{"unpriced adds zero", []string{"150.00", "", "49.99"}, "199.99"},
		{"all unpriced", []string{"", ""}, "0"},
		{"cents", []string{"0.10", "0.20"}, "0.30"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeriveAmount(lines(tt.prices...))
			if !got.Equal(dec(tt.want)) {
				t.Errorf("DeriveAmount = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDeriveAmount_Idempotent(t *testing.T) {
	sel := lines("10.10", "20.20", "", "30.30")
	first := DeriveAmount(sel)
	for i := 0; i < 5; i++ {
		if got := DeriveAmount(sel); !got.Equal(first) {
			t.Fatalf("derived amount drifted: %s then %s", first, got)
		}
	}
}

func TestDeriveAmount_ToggleRestores(t *testing.T) {
	all := lines("150.00", "200.00", "75.50")
	full := DeriveAmount(all)
	without := DeriveAmount(append([]Line{}, all[0], all[2]))
	if !full.Sub(without).Equal(dec("200")) {
		t.Errorf("deselecting should remove exactly its price: %s - %s", full, without)
	}
	again := DeriveAmount(append(append([]Line{}, all[0], all[2]), all[1]))
	if !again.Equal(full) {
		t.Errorf("reselecting should restore the sum: %s vs %s", again, full)
	}
}

func TestReconcile_OrderedChecks(t *testing.T) {
	tests := []struct {
		name string
		c    Candidate
		want error
	}{
		{"no patient wins over everything", Candidate{Amount: dec("-1")}, ErrNoPatientSelected},
		{"no appointments", Candidate{PatientID: 1, Amount: dec("100")}, ErrNoAppointmentsSelected},
		{"no appointments with zero amount", Candidate{PatientID: 1}, ErrNoAppointmentsSelected},
		{"zero amount", Candidate{PatientID: 1, Amount: decimal.Zero, Lines: lines("10")}, ErrInvalidAmount},
		{"negative amount", Candidate{PatientID: 1, Amount: dec("-5"), Lines: lines("10")}, ErrInvalidAmount},
		{"shortfall", Candidate{PatientID: 1, Amount: dec("9.98"), Lines: lines("10")}, ErrAmountBelowAppointmentsTotal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Reconcile(tt.c)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestReconcile_Thresholds(t *testing.T) {
	sel := lines("100.00")
	tests := []struct {
		amount  string
		blocked bool
		confirm bool
	}{
		{"50.00", true, false},
		{"99.98", true, false},
		{"99.995", false, false}, // within a cent of the total
		{"100.00", false, false},
		{"110.00", false, false},
		{"120.00", false, false},
		{"120.005", false, false},
		{"120.01", false, true},
		{"500.00", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			v, err := Reconcile(Candidate{PatientID: 1, Amount: dec(tt.amount), Lines: sel})
			if tt.blocked {
				if !errors.Is(err, ErrAmountBelowAppointmentsTotal) {
					t.Fatalf("expected shortfall, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if v.NeedsConfirmation != tt.confirm {
				t.Errorf("NeedsConfirmation = %v, want %v", v.NeedsConfirmation, tt.confirm)
			}
		})
	}
}

func TestReconcile_PropertySweep(t *testing.T) {
	total := dec("87.40")
	sel := lines("40.00", "47.40")
	limit := total.Mul(OverpaymentRatio)
	for cents := int64(1); cents <= 15000; cents += 7 {
		a := decimal.New(cents, -2)
		v, err := Reconcile(Candidate{PatientID: 3, Amount: a, Lines: sel})
		switch {
		case money.Less(a, total):
			if !errors.Is(err, ErrAmountBelowAppointmentsTotal) {
				t.Fatalf("amount %s: expected shortfall, got %v", a, err)
			}
		case money.Greater(a, limit):
			if err != nil || !v.NeedsConfirmation {
				t.Fatalf("amount %s: expected confirmation, got %+v %v", a, v, err)
			}
		default:
			if err != nil || v.NeedsConfirmation {
				t.Fatalf("amount %s: expected plain pass, got %+v %v", a, v, err)
			}
		}
	}
}

func TestReconcile_ReportsUnpriced(t *testing.T) {
	v, err := Reconcile(Candidate{PatientID: 1, Amount: dec("150"), Lines: lines("150", "")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Unpriced != 1 || !v.Total.Equal(dec("150")) {
		t.Errorf("unexpected verdict %+v", v)
	}
}

func TestReconcile_DerivedAmountPasses(t *testing.T) {
	sel := lines("150.00", "200.00")
	amount := DeriveAmount(sel)
	if !amount.Equal(dec("350.00")) {
		t.Fatalf("derived amount = %s", amount)
	}
	v, err := Reconcile(Candidate{PatientID: 1, Amount: amount, Lines: sel})
	if err != nil || v.NeedsConfirmation {
		t.Errorf("expected clean pass, got %+v %v", v, err)
	}
}

func TestReconcile_Shortfall(t *testing.T) {
	_, err := Reconcile(Candidate{PatientID: 1, Amount: dec("100.00"), Lines: lines("150.00", "200.00")})
	if !errors.Is(err, ErrAmountBelowAppointmentsTotal) {
		t.Errorf("expected shortfall, got %v", err)
	}
}

func TestReconcile_OverpaymentNeedsConfirmation(t *testing.T) {
	v, err := Reconcile(Candidate{PatientID: 1, Amount: dec("500.00"), Lines: lines("150.00", "200.00")})
	if err != nil {
		t.Fatalf("overpayment is not an error: %v", err)
	}
	if !v.NeedsConfirmation {
		t.Error("expected confirmation above 420.00")
	}
}

func TestQuickPay_RequiresPositivePrice(t *testing.T) {
	if _, err := QuickPay(money.Unset()); !errors.Is(err, ErrMissingPrice) {
		t.Errorf("expected ErrMissingPrice, got %v", err)
	}
	for _, price := range []string{"0", "0.00"} {
		if _, err := QuickPay(money.MustParsePrice(price)); !errors.Is(err, ErrMissingPrice) {
			t.Errorf("price %s: expected ErrMissingPrice, got %v", price, err)
		}
	}
	got, err := QuickPay(money.MustParsePrice("180.00"))
	if err != nil || !got.Equal(dec("180")) {
		t.Errorf("expected exactly the price, got %s %v", got, err)
	}
}

func TestRejectionReason(t *testing.T) {
	if got := RejectionReason(ErrAmountBelowAppointmentsTotal); got != "below_total" {
		t.Errorf("got %s", got)
	}
	if got := RejectionReason(errors.New("x")); got != "other" {
		t.Errorf("got %s", got)
	}
}
