package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/therapy/therapy/internal/platform/db"
	"github.com/therapy/therapy/pkg/calendar"
)

type paymentRepoPG struct {
	pool db.Pool
}

func NewPaymentRepo(pool db.Pool) PaymentRepository {
	return &paymentRepoPG{pool: pool}
}

const paymentCols = `p.id, p.patient_id, p.amount, p.payment_date, p.payment_method::text, p.description,
	p.created_at, p.updated_at, pt.name, pt.email, pt.phone`

const summaryCols = `a.id, a.patient_id, a.date, a.start_time, a.end_time, a.price, a.is_paid`

func (r *paymentRepoPG) Create(ctx context.Context, p *Payment, appointmentIDs []int64) error {
	conn := db.Conn(ctx, r.pool)
	err := conn.QueryRow(ctx, `
		INSERT INTO payments (patient_id, amount, payment_date, payment_method, description)
		VALUES ($1, $2, COALESCE($3::timestamptz, NOW()), $4::payment_method, $5)
		RETURNING id, payment_date, created_at`,
		p.PatientID, p.Amount, nullableTime(p), string(p.PaymentMethod), p.Description,
	).Scan(&p.ID, &p.PaymentDate, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("create payment: %w", err)
	}

	if _, err := conn.Exec(ctx, `
		INSERT INTO payment_appointments (payment_id, appointment_id)
		SELECT $1, unnest($2::bigint[])`, p.ID, appointmentIDs); err != nil {
		return fmt.Errorf("link payment %d: %w", p.ID, err)
	}
	if _, err := conn.Exec(ctx, `UPDATE appointments SET is_paid = TRUE WHERE id = ANY($1)`, appointmentIDs); err != nil {
		return fmt.Errorf("mark appointments paid: %w", err)
	}
	return nil
}

func nullableTime(p *Payment) interface{} {
	if p.PaymentDate.IsZero() {
		return nil
	}
	return p.PaymentDate
}

func (r *paymentRepoPG) GetByID(ctx context.Context, id int64) (*Payment, error) {
	conn := db.Conn(ctx, r.pool)
	p, err := scanPayment(conn.QueryRow(ctx, `SELECT `+paymentCols+`
		FROM payments p JOIN patients pt ON pt.id = p.patient_id
		WHERE p.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get payment %d: %w", id, err)
	}
	if err := r.attachAppointments(ctx, []*Payment{p}); err != nil {
		return nil, err
	}
	return p, nil
}

// attachAppointments loads the covered appointments of every payment with
// one query.
func (r *paymentRepoPG) attachAppointments(ctx context.Context, payments []*Payment) error {
	if len(payments) == 0 {
		return nil
	}
	byID := make(map[int64]*Payment, len(payments))
	ids := make([]int64, len(payments))
	for i, p := range payments {
		p.Appointments = []AppointmentSummary{}
		byID[p.ID] = p
		ids[i] = p.ID
	}

	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT pa.payment_id, `+summaryCols+`
		FROM payment_appointments pa JOIN appointments a ON a.id = pa.appointment_id
		WHERE pa.payment_id = ANY($1)
		ORDER BY a.date, a.start_time`, ids)
	if err != nil {
		return fmt.Errorf("load payment appointments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			paymentID int64
			a         AppointmentSummary
		)
		if err := rows.Scan(&paymentID, &a.ID, &a.PatientID, &a.Date, &a.StartTime, &a.EndTime, &a.Price, &a.IsPaid); err != nil {
			return err
		}
		if p, ok := byID[paymentID]; ok {
			p.Appointments = append(p.Appointments, a)
		}
	}
	return rows.Err()
}

func (r *paymentRepoPG) Update(ctx context.Context, p *Payment) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE payments
		SET amount = $2, payment_date = $3, payment_method = $4::payment_method,
		    description = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.Amount, p.PaymentDate, string(p.PaymentMethod), p.Description,
	).Scan(&p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update payment %d: %w", p.ID, err)
	}
	return nil
}

func (r *paymentRepoPG) Delete(ctx context.Context, id int64) ([]int64, error) {
	conn := db.Conn(ctx, r.pool)
	rows, err := conn.Query(ctx, `
		UPDATE appointments SET is_paid = FALSE
		WHERE id IN (SELECT appointment_id FROM payment_appointments WHERE payment_id = $1)
		RETURNING id`, id)
	if err != nil {
		return nil, fmt.Errorf("revert appointments of payment %d: %w", id, err)
	}
	reverted, err := collectIDs(rows)
	if err != nil {
		return nil, err
	}

	tag, err := conn.Exec(ctx, `DELETE FROM payments WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("delete payment %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	return reverted, nil
}

func (r *paymentRepoPG) List(ctx context.Context, f ListFilter) ([]*Payment, int, error) {
	var (
		where []string
		args  []interface{}
	)
	add := func(cond string, v interface{}) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.PatientID > 0 {
		add("p.patient_id = $%d", f.PatientID)
	}
	if f.From != nil {
		add("p.payment_date >= $%d::date", f.From.String())
	}
	if f.To != nil {
		add("p.payment_date < $%d::date + 1", f.To.String())
	}
	if f.Method != "" {
		add("p.payment_method = $%d::payment_method", string(f.Method))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM payments p`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count payments: %w", err)
	}

	args = append(args, f.Skip, f.Limit)
	query := fmt.Sprintf(`SELECT %s
		FROM payments p JOIN patients pt ON pt.id = p.patient_id%s
		ORDER BY p.payment_date DESC, p.id DESC OFFSET $%d LIMIT $%d`,
		paymentCols, clause, len(args)-1, len(args))

	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list payments: %w", err)
	}
	payments := []*Payment{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			rows.Close()
			return nil, 0, err
		}
		payments = append(payments, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	if err := r.attachAppointments(ctx, payments); err != nil {
		return nil, 0, err
	}
	return payments, total, nil
}

func (r *paymentRepoPG) LockAppointments(ctx context.Context, ids []int64) ([]AppointmentSummary, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT `+summaryCols+` FROM appointments a
		WHERE a.id = ANY($1)
		ORDER BY a.id
		FOR UPDATE`, ids)
	if err != nil {
		return nil, fmt.Errorf("lock appointments: %w", err)
	}
	defer rows.Close()

	var out []AppointmentSummary
	for rows.Next() {
		var a AppointmentSummary
		if err := rows.Scan(&a.ID, &a.PatientID, &a.Date, &a.StartTime, &a.EndTime, &a.Price, &a.IsPaid); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *paymentRepoPG) UnpaidAppointmentIDs(ctx context.Context, patientID int64) ([]int64, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT id FROM appointments
		WHERE patient_id = $1 AND NOT is_paid
		ORDER BY date, start_time`, patientID)
	if err != nil {
		return nil, fmt.Errorf("list unpaid appointments: %w", err)
	}
	return collectIDs(rows)
}

func (r *paymentRepoPG) Statistics(ctx context.Context, from, to *calendar.Date) (*Statistics, error) {
	var (
		where []string
		args  []interface{}
	)
	if from != nil {
		args = append(args, from.String())
		where = append(where, fmt.Sprintf("payment_date >= $%d::date", len(args)))
	}
	if to != nil {
		args = append(args, to.String())
		where = append(where, fmt.Sprintf("payment_date < $%d::date + 1", len(args)))
	}
	query := `SELECT COUNT(*),
		COALESCE(SUM(amount), 0),
		COALESCE(SUM(amount) FILTER (WHERE payment_method = 'CASH'), 0),
		COALESCE(SUM(amount) FILTER (WHERE payment_method = 'TRANSFER'), 0),
		COUNT(*) FILTER (WHERE payment_method = 'CASH'),
		COUNT(*) FILTER (WHERE payment_method = 'TRANSFER')
		FROM payments`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	var s Statistics
	err := db.Conn(ctx, r.pool).QueryRow(ctx, query, args...).Scan(
		&s.TotalPayments, &s.TotalAmount, &s.CashAmount, &s.TransferAmount, &s.CashCount, &s.TransferCount)
	if err != nil {
		return nil, fmt.Errorf("payment statistics: %w", err)
	}
	return &s, nil
}

func scanPayment(row pgx.Row) (*Payment, error) {
	var (
		p      Payment
		method string
	)
	err := row.Scan(&p.ID, &p.PatientID, &p.Amount, &p.PaymentDate, &method, &p.Description,
		&p.CreatedAt, &p.UpdatedAt, &p.PatientName, &p.PatientEmail, &p.PatientPhone)
	if err != nil {
		return nil, err
	}
	p.PaymentMethod = Method(method)
	return &p, nil
}

func collectIDs(rows pgx.Rows) ([]int64, error) {
	defer rows.Close()
	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
