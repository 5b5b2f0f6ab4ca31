package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/therapy/therapy/internal/client"
	"github.com/therapy/therapy/internal/domain/billing"
	"github.com/therapy/therapy/internal/workflow"
	"github.com/therapy/therapy/pkg/money"
)

func (a *app) overpaymentPrompt(assumeYes bool) workflow.Confirmer {
	return workflow.ConfirmFunc(func(amount, total decimal.Decimal) bool {
		if assumeYes {
			return true
		}
		return a.confirm(fmt.Sprintf("Amount %s is more than 20%% above the appointments total %s. Record it anyway?",
			money.Format(amount), money.Format(total)))
	})
}

func (a *app) printPayment(p *billing.Payment) {
	fmt.Fprintf(a.out, "payment %d: patient %d", p.ID, p.PatientID)
	if p.PatientName != "" {
		fmt.Fprintf(a.out, " (%s)", p.PatientName)
	}
	fmt.Fprintf(a.out, ", %s %s on %s\n", money.Format(p.Amount), p.PaymentMethod, p.PaymentDate.Format("2006-01-02"))
	if p.Description != nil {
		fmt.Fprintf(a.out, "  %s\n", *p.Description)
	}
	for _, ap := range p.Appointments {
		fmt.Fprintf(a.out, "  appointment %d  %s %s-%s  %s\n", ap.ID, ap.Date, ap.StartTime, ap.EndTime, ap.Price)
	}
}

func (a *app) payCmd() *cobra.Command {
	var (
		patientID   int64
		ids         string
		amount      string
		method      string
		description string
		assumeYes   bool
	)
	cmd := &cobra.Command{
		Use:   "pay",
		Short: "Record a payment covering unpaid appointments",
		Long: "Record a payment covering unpaid appointments. Without --appointments every unpaid\n" +
			"appointment of the patient is selected. The amount defaults to the total of the selection.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			m, err := billing.ParseMethod(method)
			if err != nil {
				return err
			}
			chosen, err := parseIDs(ids)
			if err != nil {
				return err
			}
			override, err := optionalAmount(amount)
			if err != nil {
				return err
			}

			sel, err := workflow.NewSelector(a.api, a.api, a.logger).Unpaid(ctx, patientID)
			if err != nil {
				fmt.Fprintf(a.out, "warning: could not load unpaid appointments: %v\n", err)
			}
			if err == nil && sel.Unpriced > 0 {
				fmt.Fprintf(a.out, "note: %d unpaid appointment(s) have no price and count as 0\n", sel.Unpriced)
			}

			form := workflow.NewForm(a.api, a.logger)
			if err := form.Load(sel); err != nil {
				return err
			}
			if len(chosen) == 0 {
				for _, ap := range sel.Appointments {
					chosen = append(chosen, ap.ID)
				}
			}
			if patientID != 0 {
				for _, id := range chosen {
					if err := form.Toggle(id); err != nil {
						return err
					}
				}
			}
			if override != nil {
				form.SetAmount(*override)
			}
			form.SetMethod(m)
			form.SetDescription(strings.TrimSpace(description))

			p, err := form.Submit(ctx, a.overpaymentPrompt(assumeYes))
			if err != nil {
				return err
			}
			if p == nil {
				fmt.Fprintln(a.out, "cancelled, nothing recorded")
				return nil
			}
			a.printPayment(p)
			return nil
		},
	}
	cmd.Flags().Int64Var(&patientID, "patient", 0, "Patient id")
	cmd.Flags().StringVar(&ids, "appointments", "", "Comma-separated appointment ids")
	cmd.Flags().StringVar(&amount, "amount", "", "Amount received, defaults to the selection total")
	cmd.Flags().StringVar(&method, "method", string(billing.MethodCash), "CASH or TRANSFER")
	cmd.Flags().StringVar(&description, "description", "", "Free-text description")
	cmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Accept an overpayment without asking")
	return cmd
}

func (a *app) quickPayCmd() *cobra.Command {
	var (
		apptID int64
		method string
	)
	cmd := &cobra.Command{
		Use:   "quickpay",
		Short: "Mark one appointment paid at its price",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := billing.ParseMethod(method)
			if err != nil {
				return err
			}
			appt, err := a.api.GetAppointment(cmd.Context(), apptID)
			if err != nil {
				return err
			}
			p, err := workflow.QuickPay(cmd.Context(), a.api, *appt, m)
			if err != nil {
				return err
			}
			a.printPayment(p)
			return nil
		},
	}
	cmd.Flags().Int64Var(&apptID, "appointment", 0, "Appointment id")
	cmd.Flags().StringVar(&method, "method", string(billing.MethodCash), "CASH or TRANSFER")
	_ = cmd.MarkFlagRequired("appointment")
	return cmd
}

func (a *app) paymentsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "payments", Short: "Recorded payments"}

	var (
		q        client.PaymentQuery
		from, to string
		method   string
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List payments, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if q.From, err = optionalDate(from); err != nil {
				return err
			}
			if q.To, err = optionalDate(to); err != nil {
				return err
			}
			if method != "" {
				if q.Method, err = billing.ParseMethod(method); err != nil {
					return err
				}
			}
			res, err := a.api.ListPayments(cmd.Context(), q)
			if err != nil {
				return err
			}
			w := a.table()
			fmt.Fprintln(w, "ID\tDATE\tPATIENT\tAMOUNT\tMETHOD\tAPPOINTMENTS")
			for _, p := range res.Payments {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%v\n", p.ID, p.PaymentDate.Format("2006-01-02"),
					p.PatientName, money.Format(p.Amount), p.PaymentMethod, p.AppointmentIDs())
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%d of %d payment(s)\n", len(res.Payments), res.Total)
			return nil
		},
	}
	list.Flags().Int64Var(&q.PatientID, "patient", 0, "Only this patient")
	list.Flags().StringVar(&from, "from", "", "First day (YYYY-MM-DD)")
	list.Flags().StringVar(&to, "to", "", "Last day (YYYY-MM-DD)")
	list.Flags().StringVar(&method, "method", "", "CASH or TRANSFER")
	list.Flags().IntVar(&q.Skip, "skip", 0, "Records to skip")
	list.Flags().IntVar(&q.Limit, "limit", 100, "Maximum records (1-500)")
	cmd.AddCommand(list)

	cmd.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Show a payment and the appointments it covers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			p, err := a.api.GetPayment(cmd.Context(), id)
			if err != nil {
				return err
			}
			a.printPayment(p)
			return nil
		},
	})

	var force bool
	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a payment; its appointments become unpaid again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if !force && !a.confirm(fmt.Sprintf("Delete payment %d?", id)) {
				fmt.Fprintln(a.out, "cancelled")
				return nil
			}
			if err := a.api.DeletePayment(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "payment %d deleted\n", id)
			return nil
		},
	}
	del.Flags().BoolVarP(&force, "force", "f", false, "Do not ask for confirmation")
	cmd.AddCommand(del)

	var (
		editAmount, editMethod, editDescription string
		editYes                                 bool
	)
	edit := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change the amount, method or description of a payment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			p, err := a.api.GetPayment(cmd.Context(), id)
			if err != nil {
				return err
			}
			form := workflow.NewForm(a.api, a.logger)
			if err := form.Edit(p); err != nil {
				return err
			}
			amt, err := optionalAmount(editAmount)
			if err != nil {
				return err
			}
			if amt != nil {
				form.SetAmount(*amt)
			}
			if editMethod != "" {
				m, err := billing.ParseMethod(editMethod)
				if err != nil {
					return err
				}
				form.SetMethod(m)
			}
			if cmd.Flags().Changed("description") {
				form.SetDescription(strings.TrimSpace(editDescription))
			}
			updated, err := form.Submit(cmd.Context(), a.overpaymentPrompt(editYes))
			if err != nil {
				return err
			}
			if updated == nil {
				fmt.Fprintln(a.out, "cancelled, nothing changed")
				return nil
			}
			a.printPayment(updated)
			return nil
		},
	}
	edit.Flags().StringVar(&editAmount, "amount", "", "New amount")
	edit.Flags().StringVar(&editMethod, "method", "", "CASH or TRANSFER")
	edit.Flags().StringVar(&editDescription, "description", "", "New description; empty clears it")
	edit.Flags().BoolVarP(&editYes, "yes", "y", false, "Accept an overpayment without asking")
	cmd.AddCommand(edit)

	var unpaidPatient int64
	unpaid := &cobra.Command{
		Use:   "unpaid",
		Short: "List a patient's unpaid appointments",
		RunE: func(cmd *cobra.Command, args []string) error {
			sel, err := workflow.NewSelector(a.api, a.api, a.logger).Unpaid(cmd.Context(), unpaidPatient)
			if err != nil {
				return err
			}
			if err := a.printAppointments(sel.Appointments); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "total %s", money.Format(billing.DeriveAmount(sel.Lines())))
			if sel.Unpriced > 0 {
				fmt.Fprintf(a.out, " (%d without price)", sel.Unpriced)
			}
			fmt.Fprintln(a.out)
			return nil
		},
	}
	unpaid.Flags().Int64Var(&unpaidPatient, "patient", 0, "Patient id")
	_ = unpaid.MarkFlagRequired("patient")
	cmd.AddCommand(unpaid)

	return cmd
}

func (a *app) statsCmd() *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Payment totals by method",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := optionalDate(from)
			if err != nil {
				return err
			}
			t, err := optionalDate(to)
			if err != nil {
				return err
			}
			s, err := a.api.GetStatistics(cmd.Context(), f, t)
			if err != nil {
				return err
			}
			w := a.table()
			fmt.Fprintln(w, "METHOD\tCOUNT\tAMOUNT")
			fmt.Fprintf(w, "CASH\t%d\t%s\n", s.CashCount, money.Format(s.CashAmount))
			fmt.Fprintf(w, "TRANSFER\t%d\t%s\n", s.TransferCount, money.Format(s.TransferAmount))
			fmt.Fprintf(w, "TOTAL\t%d\t%s\n", s.TotalPayments, money.Format(s.TotalAmount))
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "First day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "Last day (YYYY-MM-DD)")
	return cmd
}

func parseID(s string) (int64, error) {
	ids, err := parseIDs(s)
	if err != nil {
		return 0, err
	}
	if len(ids) != 1 {
		return 0, errors.New("expected a single id")
	}
	return ids[0], nil
}
