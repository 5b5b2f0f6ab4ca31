package workflow

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/therapy/therapy/internal/domain/billing"
	"github.com/therapy/therapy/pkg/patch"
)

// State is a step of the payment submission flow.
type State int

const (
	StateIdle State = iota
	StateValidating
	StateBlocked
	StateConfirmingOverpayment
	StateSubmitting
	StateSuccess
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateValidating:
		return "validating"
	case StateBlocked:
		return "blocked"
	case StateConfirmingOverpayment:
		return "confirming_overpayment"
	case StateSubmitting:
		return "submitting"
	case StateSuccess:
		return "success"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var (
	ErrSubmitInFlight       = errors.New("a payment submission is already in progress")
	ErrAcknowledgeRequired  = errors.New("acknowledge the validation error before submitting again")
	ErrAlreadySubmitted     = errors.New("payment already submitted; reload the form")
	ErrUnknownAppointment   = errors.New("appointment is not in the unpaid selection")
	ErrSelectionLocked      = errors.New("the appointments of an existing payment cannot be changed")
	ErrInvalidPaymentMethod = errors.New("payment method must be CASH or TRANSFER")
)

type PaymentStore interface {
	CreatePayment(ctx context.Context, in billing.CreateInput) (*billing.Payment, error)
	UpdatePayment(ctx context.Context, id int64, in billing.PaymentPatch) (*billing.Payment, error)
}

// Confirmer answers the overpayment prompt. Returning false cancels the
// submission without an error.
type Confirmer interface {
	ConfirmOverpayment(amount, total decimal.Decimal) bool
}

type ConfirmFunc func(amount, total decimal.Decimal) bool

func (f ConfirmFunc) ConfirmOverpayment(amount, total decimal.Decimal) bool {
	return f(amount, total)
}

// Form is the payment form. It derives the amount from the selected
// appointments and allows one submission at a time. Failed submissions keep
// every field so the operator can retry.
type Form struct {
	store  PaymentStore
	logger zerolog.Logger

	mu          sync.Mutex
	state       State
	transitions []State
	lastErr     error
	result      *billing.Payment

	patientID   int64
	lines       []billing.Line
	selected    map[int64]bool
	amount      decimal.Decimal
	method      billing.Method
	paymentDate *time.Time
	description *string
	editID      int64
}

func NewForm(store PaymentStore, logger zerolog.Logger) *Form {
	return &Form{
		store:    store,
		logger:   logger,
		selected: map[int64]bool{},
		amount:   decimal.Zero,
		method:   billing.MethodCash,
	}
}

// Load resets the form for a new payment over sel.
func (f *Form) Load(sel Selection) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == StateSubmitting || f.state == StateConfirmingOverpayment {
		return ErrSubmitInFlight
	}
	f.reset()
	f.patientID = sel.PatientID
	f.lines = sel.Lines()
	return nil
}

// Edit loads an existing payment. Its appointments are fixed and all
// selected; submitting sends an update.
func (f *Form) Edit(p *billing.Payment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == StateSubmitting || f.state == StateConfirmingOverpayment {
		return ErrSubmitInFlight
	}
	f.reset()
	f.editID = p.ID
	f.patientID = p.PatientID
	for _, a := range p.Appointments {
		f.lines = append(f.lines, billing.Line{AppointmentID: a.ID, Price: a.Price})
		f.selected[a.ID] = true
	}
	f.amount = p.Amount
	f.method = p.PaymentMethod
	date := p.PaymentDate
	f.paymentDate = &date
	f.description = p.Description
	return nil
}

func (f *Form) reset() {
	f.state = StateIdle
	f.transitions = nil
	f.lastErr = nil
	f.result = nil
	f.patientID = 0
	f.lines = nil
	f.selected = map[int64]bool{}
	f.amount = decimal.Zero
	f.method = billing.MethodCash
	f.paymentDate = nil
	f.description = nil
	f.editID = 0
}

// Toggle flips the selection of an appointment and overwrites the amount
// with the derived total.
func (f *Form) Toggle(id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.editID != 0 {
		return ErrSelectionLocked
	}
	if !slices.ContainsFunc(f.lines, func(l billing.Line) bool { return l.AppointmentID == id }) {
		return fmt.Errorf("%w: %d", ErrUnknownAppointment, id)
	}
	if f.selected[id] {
		delete(f.selected, id)
	} else {
		f.selected[id] = true
	}
	f.amount = billing.DeriveAmount(f.selectedLines())
	return nil
}

func (f *Form) SetAmount(d decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.amount = d
}

func (f *Form) SetMethod(m billing.Method) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.method = m
}

func (f *Form) SetPaymentDate(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paymentDate = &t
}

func (f *Form) SetDescription(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s == "" {
		f.description = nil
		return
	}
	f.description = &s
}

func (f *Form) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Transitions lists the states entered by the latest submission.
func (f *Form) Transitions() []State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.transitions)
}

func (f *Form) Amount() decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.amount
}

// Selected returns the selected appointment ids in selection-list order.
func (f *Form) Selected() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	lines := f.selectedLines()
	ids := make([]int64, len(lines))
	for i, l := range lines {
		ids[i] = l.AppointmentID
	}
	return ids
}

// Err is the error reported by the latest submission, if any.
func (f *Form) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastErr
}

func (f *Form) Result() *billing.Payment {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.result
}

// Acknowledge dismisses a blocking validation error.
func (f *Form) Acknowledge() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == StateBlocked {
		f.enter(StateIdle)
		f.lastErr = nil
	}
}

func (f *Form) selectedLines() []billing.Line {
	var out []billing.Line
	for _, l := range f.lines {
		if f.selected[l.AppointmentID] {
			out = append(out, l)
		}
	}
	return out
}

func (f *Form) enter(s State) {
	f.state = s
	f.transitions = append(f.transitions, s)
}

// Submit validates the form and sends it. A hard validation failure leaves
// the form Blocked and returns the error without contacting the store. An
// overpayment is put to c; declining returns the form to Idle with a nil
// payment and nil error.
func (f *Form) Submit(ctx context.Context, c Confirmer) (*billing.Payment, error) {
	f.mu.Lock()
	switch f.state {
	case StateSubmitting, StateConfirmingOverpayment:
		f.mu.Unlock()
		return nil, ErrSubmitInFlight
	case StateBlocked:
		f.mu.Unlock()
		return nil, ErrAcknowledgeRequired
	case StateSuccess:
		f.mu.Unlock()
		return nil, ErrAlreadySubmitted
	}

	f.transitions = nil
	f.enter(StateValidating)
	lines := f.selectedLines()
	cand := billing.Candidate{PatientID: f.patientID, Amount: f.amount, Lines: lines}
	verdict, err := billing.Reconcile(cand)
	if err == nil && !f.method.Valid() {
		err = ErrInvalidPaymentMethod
	}
	if err != nil {
		f.enter(StateBlocked)
		f.lastErr = err
		f.mu.Unlock()
		return nil, err
	}

	if verdict.NeedsConfirmation {
		f.enter(StateConfirmingOverpayment)
		f.mu.Unlock()
		ok := c != nil && c.ConfirmOverpayment(cand.Amount, verdict.Total)
		f.mu.Lock()
		if !ok {
			f.enter(StateIdle)
			f.mu.Unlock()
			return nil, nil
		}
	}

	f.enter(StateSubmitting)
	editID := f.editID
	create := billing.CreateInput{
		PatientID:      cand.PatientID,
		Amount:         cand.Amount,
		PaymentMethod:  f.method,
		AppointmentIDs: make([]int64, len(lines)),
		PaymentDate:    f.paymentDate,
		Description:    f.description,
	}
	for i, l := range lines {
		create.AppointmentIDs[i] = l.AppointmentID
	}
	f.mu.Unlock()

	var p *billing.Payment
	if editID != 0 {
		upd := billing.PaymentPatch{
			Amount:        patch.Some(create.Amount),
			PaymentMethod: patch.Some(create.PaymentMethod),
			Description:   patch.Some(create.Description),
		}
		if create.PaymentDate != nil {
			upd.PaymentDate = patch.Some(*create.PaymentDate)
		}
		p, err = f.store.UpdatePayment(ctx, editID, upd)
	} else {
		p, err = f.store.CreatePayment(ctx, create)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err != nil {
		f.enter(StateFailed)
		f.enter(StateIdle)
		f.lastErr = err
		f.logger.Error().Err(err).Int64("patient_id", create.PatientID).Msg("payment submission failed")
		return nil, err
	}
	f.enter(StateSuccess)
	f.result = p
	f.lastErr = nil
	f.logger.Info().
		Int64("payment_id", p.ID).
		Int64("patient_id", create.PatientID).
		Str("amount", create.Amount.StringFixed(2)).
		Msg("payment submitted")
	return p, nil
}
