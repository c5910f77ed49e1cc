package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/clinic/clinic/internal/domain/scheduling"
)

// apiBooker drives the booking endpoints of a running server. It satisfies
// scheduling.Booker so the terminal walks the same workflow as the web form.
type apiBooker struct {
	baseURL string
	token   string
	clinic  string
	client  *http.Client
}

func newAPIBooker(baseURL, token, clinic string) *apiBooker {
	return &apiBooker{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		clinic:  clinic,
		client:  &http.Client{},
	}
}

// apiError is a non-2xx answer from the server.
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("server answered %d: %s", e.Status, e.Message)
}

func (b *apiBooker) post(ctx context.Context, path string, body any) (int, []byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if b.token != "" {
		req.Header.Set("Authorization", "Bearer "+b.token)
	}
	if b.clinic != "" {
		req.Header.Set("X-Clinic-ID", b.clinic)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	return resp.StatusCode, data, err
}

func decodeAPIError(status int, body []byte) error {
	var e struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(body, &e)
	msg := e.Error
	if msg == "" {
		msg = e.Message
	}
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	return &apiError{Status: status, Message: msg}
}

func (b *apiBooker) Check(ctx context.Context, req scheduling.BookingRequest) (*scheduling.CheckResult, error) {
	status, body, err := b.post(ctx, "/api/v1/appointments/check", req)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, decodeAPIError(status, body)
	}
	var res scheduling.CheckResult
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("decode check result: %w", err)
	}
	return &res, nil
}

func (b *apiBooker) Book(ctx context.Context, req scheduling.BookingRequest) (*scheduling.BookingResult, error) {
	status, body, err := b.post(ctx, "/api/v1/appointments", req)
	if err != nil {
		return nil, err
	}
	switch status {
	case http.StatusCreated, http.StatusOK:
	case http.StatusConflict:
		var w struct {
			Warning *scheduling.Warning `json:"warning"`
		}
		if json.Unmarshal(body, &w) == nil && w.Warning != nil {
			return nil, &scheduling.WarningError{Warning: w.Warning}
		}
		return nil, decodeAPIError(status, body)
	default:
		return nil, decodeAPIError(status, body)
	}

	if req.Recurrence != nil {
		var res scheduling.BookingResult
		if err := json.Unmarshal(body, &res); err != nil {
			return nil, fmt.Errorf("decode booking result: %w", err)
		}
		return &res, nil
	}
	var appt scheduling.Appointment
	if err := json.Unmarshal(body, &appt); err != nil {
		return nil, fmt.Errorf("decode appointment: %w", err)
	}
	return &scheduling.BookingResult{
		Forced:  req.Force,
		Created: 1,
		Occurrences: []scheduling.OccurrenceResult{{
			Date:        req.Date,
			StartTime:   appt.StartTime,
			Outcome:     scheduling.OutcomeCreated,
			Appointment: &appt,
		}},
	}, nil
}

var errBookingCancelled = errors.New("booking cancelled")

// runBooking validates req and submits it, asking on in whether to force a
// booking that falls outside the professional's hours. assumeYes answers
// every prompt with yes.
func runBooking(ctx context.Context, flow *scheduling.BookingFlow, req scheduling.BookingRequest,
	in io.Reader, out io.Writer, assumeYes bool) error {
	if err := flow.Validate(ctx, req); err != nil {
		return err
	}
	answers := bufio.NewScanner(in)
	forced := false

	for {
		var err error
		switch flow.State() {
		case scheduling.FlowSaved:
			printBookingResult(out, flow.Result())
			return nil
		case scheduling.FlowAccepted:
			err = flow.Submit(ctx)
		case scheduling.FlowWarned:
			if forced {
				return flow.LastError()
			}
			for _, w := range flow.Warnings() {
				fmt.Fprintf(out, "warning: %s (%s)\n", w.Message, w.Reason)
			}
			if !assumeYes && !confirm(answers, out, "force anyway? [y/N] ") {
				_ = flow.Cancel()
				return errBookingCancelled
			}
			forced = true
			err = flow.ForceSave(ctx)
		default:
			return fmt.Errorf("booking stopped in state %s", flow.State())
		}

		var we *scheduling.WarningError
		if err != nil && !errors.As(err, &we) {
			return err
		}
	}
}

func confirm(answers *bufio.Scanner, out io.Writer, prompt string) bool {
	fmt.Fprint(out, prompt)
	if !answers.Scan() {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(answers.Text())) {
	case "y", "yes":
		return true
	}
	return false
}

func printBookingResult(out io.Writer, res *scheduling.BookingResult) {
	for _, o := range res.Occurrences {
		switch {
		case o.Appointment != nil:
			fmt.Fprintf(out, "%s %s  %s  total %s\n", o.Date, o.Outcome, o.Appointment.ID, o.Appointment.Total.StringFixed(2))
		case o.Error != "":
			fmt.Fprintf(out, "%s %s  %s\n", o.Date, o.Outcome, o.Error)
		default:
			fmt.Fprintf(out, "%s %s\n", o.Date, o.Outcome)
		}
		if o.Holiday != nil {
			fmt.Fprintf(out, "  note: %s is a holiday (%s)\n", o.Date, o.Holiday.Name)
		}
	}
	if res.Forced {
		fmt.Fprintln(out, "saved with the availability check overridden")
	}
}

type bookOptions struct {
	server, token, clinic string
	patient, professional string
	service, date, time   string
	notes                 string
	discount, discountPct string
	addition              string
	weekdays              []int
	occurrences           int
	extra, yes            bool
	timeout               time.Duration
}

func bookCmd() *cobra.Command {
	var o bookOptions
	cmd := &cobra.Command{
		Use:   "book",
		Short: "Book an appointment through a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := o.request()
			if err != nil {
				return err
			}
			flow := scheduling.NewBookingFlow(newAPIBooker(o.server, o.token, o.clinic), o.timeout)
			err = runBooking(cmd.Context(), flow, req, cmd.InOrStdin(), cmd.OutOrStdout(), o.yes)
			if errors.Is(err, errBookingCancelled) {
				fmt.Fprintln(cmd.OutOrStdout(), "cancelled, nothing was saved")
				return nil
			}
			return err
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.server, "server", "http://localhost:8000", "API base URL")
	f.StringVar(&o.token, "token", "", "Bearer token")
	f.StringVar(&o.clinic, "clinic", "", "Clinic identifier")
	f.StringVar(&o.patient, "patient", "", "Patient id")
	f.StringVar(&o.professional, "professional", "", "Professional id")
	f.StringVar(&o.service, "service", "", "Service id")
	f.StringVar(&o.date, "date", "", "Date, YYYY-MM-DD")
	f.StringVar(&o.time, "time", "", "Start time, HH:MM")
	f.StringVar(&o.notes, "notes", "", "Notes")
	f.StringVar(&o.discount, "discount", "", "Fixed discount")
	f.StringVar(&o.discountPct, "discount-pct", "", "Discount as a percentage of the price")
	f.StringVar(&o.addition, "addition", "", "Addition to the price")
	f.IntSliceVar(&o.weekdays, "weekdays", nil, "Repeat on these weekdays (0=Sunday)")
	f.IntVar(&o.occurrences, "occurrences", 0, "Number of occurrences when repeating")
	f.BoolVar(&o.extra, "extra", false, "Extra appointment outside the regular schedule")
	f.BoolVarP(&o.yes, "yes", "y", false, "Force without asking when outside hours")
	f.DurationVar(&o.timeout, "timeout", 15*time.Second, "Timeout per request")
	return cmd
}

func (o bookOptions) request() (scheduling.BookingRequest, error) {
	var req scheduling.BookingRequest
	var err error
	if req.PatientID, err = uuid.Parse(o.patient); err != nil {
		return req, fmt.Errorf("--patient: %w", err)
	}
	if req.ProfessionalID, err = uuid.Parse(o.professional); err != nil {
		return req, fmt.Errorf("--professional: %w", err)
	}
	if o.service != "" {
		id, err := uuid.Parse(o.service)
		if err != nil {
			return req, fmt.Errorf("--service: %w", err)
		}
		req.ServiceID = &id
	}
	req.Date, req.Time, req.Notes, req.IsExtra = o.date, o.time, o.notes, o.extra

	amounts := []struct {
		flag, raw string
		dst       **decimal.Decimal
	}{
		{"--discount", o.discount, &req.Pricing.Discount},
		{"--discount-pct", o.discountPct, &req.Pricing.DiscountPct},
		{"--addition", o.addition, &req.Pricing.Addition},
	}
	for _, a := range amounts {
		if a.raw == "" {
			continue
		}
		d, err := decimal.NewFromString(a.raw)
		if err != nil {
			return req, fmt.Errorf("%s: %w", a.flag, err)
		}
		*a.dst = &d
	}

	if len(o.weekdays) > 0 || o.occurrences > 0 {
		req.Recurrence = &scheduling.RecurrenceRequest{Weekdays: o.weekdays, Occurrences: o.occurrences}
	}
	return req, nil
}
