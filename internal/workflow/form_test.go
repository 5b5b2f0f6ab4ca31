package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/therapy/therapy/internal/client"
	"github.com/therapy/therapy/internal/domain/billing"
	"github.com/therapy/therapy/internal/domain/scheduling"
	"github.com/therapy/therapy/pkg/money"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// recordingConfirmer answers every prompt with answer and counts the calls.
type recordingConfirmer struct {
	answer bool
	calls  int
	amount decimal.Decimal
	total  decimal.Decimal
}

func (r *recordingConfirmer) ConfirmOverpayment(amount, total decimal.Decimal) bool {
	r.calls++
	r.amount, r.total = amount, total
	return r.answer
}

// newTwoAppointmentForm loads patient 1 with unpaid appointments priced 150 and
// 200 and selects both.
func newTwoAppointmentForm(t *testing.T) (*Form, *fakeStore) {
	t.Helper()
	store := newFakeStore()
	f := NewForm(store, zerolog.Nop())
	require.NoError(t, f.Load(Selection{
		PatientID:    1,
		Appointments: []scheduling.Appointment{priced(1, 1, "150"), priced(2, 1, "200")},
	}))
	require.NoError(t, f.Toggle(1))
	require.NoError(t, f.Toggle(2))
	return f, store
}

func TestForm_ExactAmountSubmitsWithoutPrompt(t *testing.T) {
	f, store := newTwoAppointmentForm(t)
	assert.True(t, f.Amount().Equal(dec("350")))

	confirm := &recordingConfirmer{answer: true}
	p, err := f.Submit(context.Background(), confirm)
	require.NoError(t, err)
	require.NotNil(t, p)

	assert.Zero(t, confirm.calls, "no overpayment prompt")
	require.Len(t, store.created, 1)
	assert.Equal(t, []int64{1, 2}, store.created[0].AppointmentIDs)
	assert.True(t, store.created[0].Amount.Equal(dec("350")))
	assert.Equal(t, billing.MethodCash, store.created[0].PaymentMethod)
	assert.Equal(t, StateSuccess, f.State())
	assert.Equal(t, []State{StateValidating, StateSubmitting, StateSuccess}, f.Transitions())
}

func TestForm_ShortfallBlocksSubmit(t *testing.T) {
	f, store := newTwoAppointmentForm(t)
	f.SetAmount(dec("100"))

	p, err := f.Submit(context.Background(), nil)
	require.ErrorIs(t, err, billing.ErrAmountBelowAppointmentsTotal)
	assert.Nil(t, p)
	assert.Empty(t, store.created, "no request sent")
	assert.Equal(t, StateBlocked, f.State())
	assert.ErrorIs(t, f.Err(), billing.ErrAmountBelowAppointmentsTotal)

	_, err = f.Submit(context.Background(), nil)
	assert.ErrorIs(t, err, ErrAcknowledgeRequired)

	f.Acknowledge()
	assert.Equal(t, StateIdle, f.State())
	assert.NoError(t, f.Err())
	assert.True(t, f.Amount().Equal(dec("100")), "edited amount is kept")
}

func TestForm_OverpaymentAsksForConfirmation(t *testing.T) {
	f, store := newTwoAppointmentForm(t)
	f.SetAmount(dec("500"))

	decline := &recordingConfirmer{answer: false}
	p, err := f.Submit(context.Background(), decline)
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.Equal(t, 1, decline.calls)
	assert.True(t, decline.total.Equal(dec("350")))
	assert.Empty(t, store.created, "declining sends nothing")
	assert.Equal(t, StateIdle, f.State())
	assert.Equal(t, []State{StateValidating, StateConfirmingOverpayment, StateIdle}, f.Transitions())
	assert.True(t, f.Amount().Equal(dec("500")))
	assert.Equal(t, []int64{1, 2}, f.Selected())

	accept := &recordingConfirmer{answer: true}
	p, err = f.Submit(context.Background(), accept)
	require.NoError(t, err)
	require.NotNil(t, p)
	require.Len(t, store.created, 1)
	assert.True(t, store.created[0].Amount.Equal(dec("500")))
}

func TestForm_OverpaymentWithoutConfirmerDeclines(t *testing.T) {
	f, store := newTwoAppointmentForm(t)
	f.SetAmount(dec("420.01"))

	p, err := f.Submit(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.Empty(t, store.created)
}

func TestForm_UpperBoundNeedsNoConfirmation(t *testing.T) {
	f, _ := newTwoAppointmentForm(t)
	f.SetAmount(dec("420"))

	confirm := ConfirmFunc(func(_, _ decimal.Decimal) bool {
		t.Fatal("420 is exactly 1.2x and must not prompt")
		return false
	})
	_, err := f.Submit(context.Background(), confirm)
	require.NoError(t, err)
}

func TestForm_ToggleRederivesAmount(t *testing.T) {
	f, _ := newTwoAppointmentForm(t)
	f.SetAmount(dec("999"))

	require.NoError(t, f.Toggle(2))
	assert.True(t, f.Amount().Equal(dec("150")), "toggle overwrites a hand-edited amount")
	require.NoError(t, f.Toggle(2))
	assert.True(t, f.Amount().Equal(dec("350")))
	assert.True(t, f.Amount().Equal(dec("350")), "re-reading does not drift")

	require.NoError(t, f.Toggle(1))
	require.NoError(t, f.Toggle(2))
	assert.True(t, f.Amount().IsZero())
	assert.Empty(t, f.Selected())

	assert.ErrorIs(t, f.Toggle(42), ErrUnknownAppointment)
}

func TestForm_EmptySelectionAlwaysBlocks(t *testing.T) {
	store := newFakeStore()
	f := NewForm(store, zerolog.Nop())
	require.NoError(t, f.Load(Selection{PatientID: 1, Appointments: []scheduling.Appointment{priced(1, 1, "150")}}))

	for _, amount := range []string{"0", "150", "10000"} {
		f.SetAmount(dec(amount))
		_, err := f.Submit(context.Background(), nil)
		require.ErrorIs(t, err, billing.ErrNoAppointmentsSelected, amount)
		f.Acknowledge()
	}
	assert.Empty(t, store.created)
}

func TestForm_NoPatientBlocksFirst(t *testing.T) {
	f := NewForm(newFakeStore(), zerolog.Nop())
	_, err := f.Submit(context.Background(), nil)
	assert.ErrorIs(t, err, billing.ErrNoPatientSelected)
}

func TestForm_InvalidMethodBlocks(t *testing.T) {
	f, store := newTwoAppointmentForm(t)
	f.SetMethod(billing.Method("CARD"))
	_, err := f.Submit(context.Background(), nil)
	assert.ErrorIs(t, err, ErrInvalidPaymentMethod)
	assert.Empty(t, store.created)
}

func TestForm_StoreFailureKeepsFields(t *testing.T) {
	f, store := newTwoAppointmentForm(t)
	f.SetMethod(billing.MethodTransfer)
	f.SetDescription("March sessions")
	store.payErr = &client.APIError{Status: 409, Detail: "appointments already paid: 2"}

	_, err := f.Submit(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, client.IsStatus(err, 409))
	assert.Equal(t, []State{StateValidating, StateSubmitting, StateFailed, StateIdle}, f.Transitions())
	assert.Equal(t, StateIdle, f.State())
	assert.Equal(t, err, f.Err())
	assert.Equal(t, []int64{1, 2}, f.Selected())

	store.payErr = nil
	_, err = f.Submit(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, store.created, 1)
	assert.Equal(t, billing.MethodTransfer, store.created[0].PaymentMethod)
	require.NotNil(t, store.created[0].Description)
	assert.Equal(t, "March sessions", *store.created[0].Description)

	_, err = f.Submit(context.Background(), nil)
	assert.ErrorIs(t, err, ErrAlreadySubmitted)
}

func TestForm_SingleInFlightSubmit(t *testing.T) {
	f, store := newTwoAppointmentForm(t)
	store.gate = make(chan struct{})
	store.entered = make(chan struct{}, 1)

	done := make(chan error, 1)
	go func() {
		_, err := f.Submit(context.Background(), nil)
		done <- err
	}()

	select {
	case <-store.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first submit never reached the store")
	}
	assert.Equal(t, StateSubmitting, f.State())
	_, err := f.Submit(context.Background(), nil)
	assert.ErrorIs(t, err, ErrSubmitInFlight)
	assert.ErrorIs(t, f.Load(Selection{}), ErrSubmitInFlight)

	close(store.gate)
	require.NoError(t, <-done)
	assert.Len(t, store.created, 1)
}

func TestForm_EditSendsUpdate(t *testing.T) {
	store := newFakeStore()
	f := NewForm(store, zerolog.Nop())
	paid := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	require.NoError(t, f.Edit(&billing.Payment{
		ID:            7,
		PatientID:     1,
		Amount:        dec("150"),
		PaymentMethod: billing.MethodCash,
		PaymentDate:   paid,
		Appointments: []billing.AppointmentSummary{
			{ID: 1, PatientID: 1, Price: money.MustParsePrice("150")},
		},
	}))
	assert.ErrorIs(t, f.Toggle(1), ErrSelectionLocked)

	f.SetAmount(dec("100"))
	_, err := f.Submit(context.Background(), nil)
	require.ErrorIs(t, err, billing.ErrAmountBelowAppointmentsTotal)
	f.Acknowledge()

	f.SetAmount(dec("160"))
	f.SetMethod(billing.MethodTransfer)
	_, err = f.Submit(context.Background(), nil)
	require.NoError(t, err)

	assert.Empty(t, store.created)
	upd, ok := store.updated[7]
	require.True(t, ok)
	assert.True(t, upd.Amount.Value.Equal(dec("160")))
	assert.Equal(t, billing.MethodTransfer, upd.PaymentMethod.Value)
	assert.True(t, upd.PaymentDate.Set)
	assert.True(t, upd.PaymentDate.Value.Equal(paid))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "confirming_overpayment", StateConfirmingOverpayment.String())
	assert.Equal(t, "state(99)", State(99).String())
}
