package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/therapy/therapy/internal/client"
	"github.com/therapy/therapy/internal/config"
	"github.com/therapy/therapy/internal/domain/identity"
	"github.com/therapy/therapy/pkg/calendar"
)

// app is the state shared by every therapyctl command.
type app struct {
	in     *bufio.Reader
	out    io.Writer
	logger zerolog.Logger
	api    *client.Client
}

func main() {
	if err := newRootCmd(os.Stdin, os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(in io.Reader, out io.Writer) *cobra.Command {
	a := &app{in: bufio.NewReader(in), out: out, logger: zerolog.Nop()}

	var verbose bool
	root := &cobra.Command{
		Use:           "therapyctl",
		Short:         "Command line client for the therapy practice API",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadClient()
			if err != nil {
				return err
			}
			if verbose {
				a.logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
			}
			a.api = client.New(cfg.APIURL,
				client.WithToken(cfg.Token),
				client.WithTimeout(cfg.Timeout),
				client.WithLogger(a.logger),
			)
			return nil
		},
	}
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(out)
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log every API call to stderr")

	root.AddCommand(a.loginCmd())
	root.AddCommand(a.patientsCmd())
	root.AddCommand(a.appointmentsCmd())
	root.AddCommand(a.noteCmd())
	root.AddCommand(a.payCmd())
	root.AddCommand(a.quickPayCmd())
	root.AddCommand(a.paymentsCmd())
	root.AddCommand(a.statsCmd())
	return root
}

func (a *app) table() *tabwriter.Writer {
	return tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
}

// confirm asks a yes/no question on the command input. Anything but y or
// yes is a no.
func (a *app) confirm(question string) bool {
	fmt.Fprintf(a.out, "%s [y/N]: ", question)
	line, err := a.in.ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

func (a *app) prompt(label string) (string, error) {
	fmt.Fprintf(a.out, "%s: ", label)
	line, err := a.in.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read %s: %w", label, err)
	}
	return strings.TrimSpace(line), nil
}

func parseIDs(s string) ([]int64, error) {
	var out []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid id %q", part)
		}
		out = append(out, id)
	}
	return out, nil
}

func optionalDate(s string) (*calendar.Date, error) {
	if s == "" {
		return nil, nil
	}
	d, err := calendar.ParseDate(s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func optionalAmount(s string) (*decimal.Decimal, error) {
	if s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return &d, nil
}

func stringOr(p *string, def string) string {
	if p == nil {
		return def
	}
	return *p
}

func (a *app) loginCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Exchange credentials for an access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if email == "" {
				if email, err = a.prompt("Email"); err != nil {
					return err
				}
			}
			if password == "" {
				if password, err = a.prompt("Password"); err != nil {
					return err
				}
			}
			tok, err := a.api.Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "export THERAPY_TOKEN=%s\n", tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&password, "password", "", "Account password (prompted when empty)")
	return cmd
}

func (a *app) patientsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "patients", Short: "Patient records"}

	var skip, limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List patients",
		RunE: func(cmd *cobra.Command, args []string) error {
			patients, err := a.api.ListPatients(cmd.Context(), skip, limit)
			if err != nil {
				return err
			}
			w := a.table()
			fmt.Fprintln(w, "ID\tNAME\tPHONE\tEMAIL")
			for _, p := range patients {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", p.ID, p.Name, stringOr(p.Phone, "-"), stringOr(p.Email, "-"))
			}
			return w.Flush()
		},
	}
	list.Flags().IntVar(&skip, "skip", 0, "Records to skip")
	list.Flags().IntVar(&limit, "limit", 100, "Maximum records")

	var name, phone, email string
	create := &cobra.Command{
		Use:   "create",
		Short: "Add a patient",
		RunE: func(cmd *cobra.Command, args []string) error {
			in := identity.Patient{Name: name}
			if phone != "" {
				in.Phone = &phone
			}
			if email != "" {
				in.Email = &email
			}
			p, err := a.api.CreatePatient(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "patient %d created\n", p.ID)
			return nil
		},
	}
	create.Flags().StringVar(&name, "name", "", "Full name")
	create.Flags().StringVar(&phone, "phone", "", "Phone number")
	create.Flags().StringVar(&email, "email", "", "Email address")
	_ = create.MarkFlagRequired("name")

	cmd.AddCommand(list, create)
	return cmd
}
