package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/therapy/therapy/internal/client"
	"github.com/therapy/therapy/internal/domain/scheduling"
	"github.com/therapy/therapy/internal/workflow"
	"github.com/therapy/therapy/pkg/calendar"
	"github.com/therapy/therapy/pkg/money"
)

func (a *app) printAppointments(appts []scheduling.Appointment) error {
	w := a.table()
	fmt.Fprintln(w, "ID\tPATIENT\tDATE\tTIME\tPRICE\tPAID\tNOTE")
	for _, ap := range appts {
		note := "-"
		if ap.SessionNoteID != nil {
			note = fmt.Sprint(*ap.SessionNoteID)
		}
		fmt.Fprintf(w, "%d\t%d\t%s\t%s-%s\t%s\t%v\t%s\n",
			ap.ID, ap.PatientID, ap.Date, ap.StartTime, ap.EndTime, ap.Price, ap.IsPaid, note)
	}
	return w.Flush()
}

func (a *app) appointmentsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "appointments", Aliases: []string{"appts"}, Short: "Appointments"}

	var (
		patientID        int64
		from, to, anchor string
		view             string
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List appointments",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := client.AppointmentQuery{PatientID: patientID, View: calendar.View(view)}
			var err error
			if q.From, err = optionalDate(from); err != nil {
				return err
			}
			if q.To, err = optionalDate(to); err != nil {
				return err
			}
			if q.Date, err = optionalDate(anchor); err != nil {
				return err
			}
			appts, err := a.api.ListAppointments(cmd.Context(), q)
			if err != nil {
				return err
			}
			return a.printAppointments(appts)
		},
	}
	list.Flags().Int64Var(&patientID, "patient", 0, "Only this patient")
	list.Flags().StringVar(&from, "from", "", "First day (YYYY-MM-DD)")
	list.Flags().StringVar(&to, "to", "", "Last day (YYYY-MM-DD)")
	list.Flags().StringVar(&view, "view", "", "Calendar window: day, week or month")
	list.Flags().StringVar(&anchor, "date", "", "Day the calendar window is built around")
	cmd.AddCommand(list)

	var (
		in                          client.AppointmentInput
		date, start, end, price, nt string
	)
	create := &cobra.Command{
		Use:   "create",
		Short: "Book an appointment",
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if in.Date, err = calendar.ParseDate(date); err != nil {
				return err
			}
			if in.StartTime, err = calendar.ParseClock(start); err != nil {
				return err
			}
			if end == "" {
				slots, err := a.api.AppointmentSlots(cmd.Context(), start)
				if err != nil {
					return err
				}
				if slots.DefaultEnd == nil {
					return errors.New("no default end time for this start; pass --end")
				}
				in.EndTime = *slots.DefaultEnd
			} else if in.EndTime, err = calendar.ParseClock(end); err != nil {
				return err
			}
			if price != "" {
				d, err := money.Parse(price)
				if err != nil {
					return err
				}
				in.Price = money.Of(d)
			}
			if nt != "" {
				in.Notes = &nt
			}
			appt, err := a.api.CreateAppointment(cmd.Context(), in)
			if err != nil {
				return err
			}
			return a.printAppointments([]scheduling.Appointment{*appt})
		},
	}
	create.Flags().Int64Var(&in.PatientID, "patient", 0, "Patient id")
	create.Flags().StringVar(&date, "date", "", "Day (YYYY-MM-DD)")
	create.Flags().StringVar(&start, "start", "", "Start time (HH:MM)")
	create.Flags().StringVar(&end, "end", "", "End time (HH:MM), defaults to one hour after start")
	create.Flags().StringVar(&price, "price", "", "Session price")
	create.Flags().StringVar(&nt, "notes", "", "Scheduling notes")
	_ = create.MarkFlagRequired("patient")
	_ = create.MarkFlagRequired("date")
	_ = create.MarkFlagRequired("start")
	cmd.AddCommand(create)

	var slotStart string
	slots := &cobra.Command{
		Use:   "slots",
		Short: "Show bookable start and end times",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.api.AppointmentSlots(cmd.Context(), slotStart)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "start: %v\nend:   %v\n", s.StartOptions, s.EndOptions)
			if s.DefaultEnd != nil {
				fmt.Fprintf(a.out, "default end: %s\n", s.DefaultEnd)
			}
			return nil
		},
	}
	slots.Flags().StringVar(&slotStart, "start", "", "Chosen start time (HH:MM)")
	cmd.AddCommand(slots)

	var summaryDate string
	summary := &cobra.Command{
		Use:   "summary",
		Short: "Dashboard counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := optionalDate(summaryDate)
			if err != nil {
				return err
			}
			s, err := a.api.AppointmentSummary(cmd.Context(), d)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s: today %d, week %d, month %d\n", s.Date, s.Today, s.Week, s.Month)
			fmt.Fprintf(a.out, "paid %d, unpaid %d, unpriced %d, revenue %s\n", s.Paid, s.Unpaid, s.Unpriced, money.Format(s.Revenue))
			return nil
		},
	}
	summary.Flags().StringVar(&summaryDate, "date", "", "Reference day (YYYY-MM-DD)")
	cmd.AddCommand(summary)

	return cmd
}

func (a *app) noteCmd() *cobra.Command {
	var (
		apptID       int64
		content      string
		twoStep      bool
		deleteOrphan bool
	)
	cmd := &cobra.Command{
		Use:   "note",
		Short: "Write the session note of an appointment",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if !twoStep {
				note, err := a.api.RecordAppointmentNote(ctx, apptID, content)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "note %d saved for appointment %d\n", note.ID, apptID)
				return nil
			}

			appt, err := a.api.GetAppointment(ctx, apptID)
			if err != nil {
				return err
			}
			linker := workflow.NewNoteLinker(a.api, a.api, a.logger)
			note, err := linker.Record(ctx, *appt, content)
			var linkErr *workflow.LinkError
			if errors.As(err, &linkErr) {
				fmt.Fprintf(a.out, "warning: %v\n", linkErr)
				if deleteOrphan || a.confirm(fmt.Sprintf("Delete the unlinked note %d?", linkErr.NoteID)) {
					if cerr := linkErr.Compensate(ctx); cerr != nil {
						return cerr
					}
					fmt.Fprintf(a.out, "note %d deleted\n", linkErr.NoteID)
				}
				return err
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "note %d saved for appointment %d\n", note.ID, apptID)
			return nil
		},
	}
	cmd.Flags().Int64Var(&apptID, "appointment", 0, "Appointment id")
	cmd.Flags().StringVar(&content, "content", "", "Note text")
	cmd.Flags().BoolVar(&twoStep, "two-step", false, "Create the note and link it with separate calls")
	cmd.Flags().BoolVar(&deleteOrphan, "delete-orphan", false, "Delete the note without asking if linking fails")
	_ = cmd.MarkFlagRequired("appointment")
	_ = cmd.MarkFlagRequired("content")
	return cmd
}
