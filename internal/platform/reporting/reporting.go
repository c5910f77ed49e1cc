// Package reporting computes financial reports over completed appointments.
package reporting

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/db"
)

var ErrInvalidInput = errors.New("invalid input")

const (
	dateLayout = "2006-01-02"
	maxRange   = 366 * 24 * time.Hour
)

type GroupBy string

const (
	ByProfessional  GroupBy = "professional"
	ByPaymentMethod GroupBy = "payment_method"
	ByDay           GroupBy = "day"
)

// grouping is the SQL that buckets appointments for one GroupBy.
type grouping struct {
	key   string
	label string
	join  string
}

var groupings = map[GroupBy]grouping{
	ByProfessional: {
		key:   `a.professional_id::text`,
		label: `COALESCE(MAX(u.email), a.professional_id::text)`,
		join:  `LEFT JOIN app_user u ON u.id = a.professional_id`,
	},
	ByPaymentMethod: {
		key:   `COALESCE(pm.id::text, 'none')`,
		label: `COALESCE(MAX(pm.name), 'unspecified')`,
		join:  `LEFT JOIN payment_method pm ON pm.id = a.payment_method_id`,
	},
	ByDay: {
		key:   `to_char((a.start_time AT TIME ZONE $3)::date, 'YYYY-MM-DD')`,
		label: `to_char((MIN(a.start_time) AT TIME ZONE $3)::date, 'DD/MM/YYYY')`,
	},
}

type RevenueQuery struct {
	From    string
	To      string
	GroupBy GroupBy
}

type RevenueRow struct {
	Key          string          `json:"key"`
	Label        string          `json:"label"`
	Appointments int             `json:"appointments"`
	Gross        decimal.Decimal `json:"gross"`
	Discounts    decimal.Decimal `json:"discounts"`
	Additions    decimal.Decimal `json:"additions"`
	Net          decimal.Decimal `json:"net"`
}

type RevenueReport struct {
	From        string       `json:"from"`
	To          string       `json:"to"`
	GroupBy     GroupBy      `json:"group_by"`
	GeneratedAt time.Time    `json:"generated_at"`
	Rows        []RevenueRow `json:"rows"`
	Totals      RevenueRow   `json:"totals"`
}

type Reporter struct {
	db  db.DBTX
	loc *time.Location
}

func NewReporter(conn db.DBTX, loc *time.Location) *Reporter {
	if loc == nil {
		loc = time.UTC
	}
	return &Reporter{db: conn, loc: loc}
}

// Revenue sums completed appointments whose start falls within [From, To]
// (inclusive calendar days in the clinic zone). Net never goes below zero
// per appointment.
func (r *Reporter) Revenue(ctx context.Context, q RevenueQuery) (*RevenueReport, error) {
	if q.GroupBy == "" {
		q.GroupBy = ByProfessional
	}
	g, ok := groupings[q.GroupBy]
	if !ok {
		return nil, fmt.Errorf("%w: group_by must be professional, payment_method or day", ErrInvalidInput)
	}
	from, to, err := r.bounds(q.From, q.To)
	if err != nil {
		return nil, err
	}

	sql := `
		SELECT ` + g.key + ` AS key, ` + g.label + ` AS label, COUNT(*),
			COALESCE(SUM(a.price), 0), COALESCE(SUM(a.discount), 0), COALESCE(SUM(a.addition), 0),
			COALESCE(SUM(GREATEST(a.price - a.discount + a.addition, 0)), 0)
		FROM appointment a ` + g.join + `
		WHERE a.status = 'completed' AND a.start_time >= $1 AND a.start_time < $2
		GROUP BY 1
		ORDER BY 1`
	args := []any{from, to}
	if q.GroupBy == ByDay {
		args = append(args, r.loc.String())
	}

	rows, err := db.Conn(ctx, r.db).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("reporting: revenue: %w", err)
	}
	defer rows.Close()

	report := &RevenueReport{
		From:        q.From,
		To:          q.To,
		GroupBy:     q.GroupBy,
		GeneratedAt: time.Now().UTC(),
		Rows:        []RevenueRow{},
		Totals:      RevenueRow{Key: "total", Label: "Total"},
	}
	for rows.Next() {
		var row RevenueRow
		if err := rows.Scan(&row.Key, &row.Label, &row.Appointments,
			&row.Gross, &row.Discounts, &row.Additions, &row.Net); err != nil {
			return nil, fmt.Errorf("reporting: scan revenue row: %w", err)
		}
		report.Rows = append(report.Rows, row)
		report.Totals.Appointments += row.Appointments
		report.Totals.Gross = report.Totals.Gross.Add(row.Gross)
		report.Totals.Discounts = report.Totals.Discounts.Add(row.Discounts)
		report.Totals.Additions = report.Totals.Additions.Add(row.Additions)
		report.Totals.Net = report.Totals.Net.Add(row.Net)
	}
	return report, rows.Err()
}

func (r *Reporter) bounds(fromStr, toStr string) (time.Time, time.Time, error) {
	from, err := time.ParseInLocation(dateLayout, fromStr, r.loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: from must be YYYY-MM-DD", ErrInvalidInput)
	}
	to, err := time.ParseInLocation(dateLayout, toStr, r.loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: to must be YYYY-MM-DD", ErrInvalidInput)
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: to is before from", ErrInvalidInput)
	}
	end := to.AddDate(0, 0, 1)
	if end.Sub(from) > maxRange {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: range is longer than a year", ErrInvalidInput)
	}
	return from, end, nil
}

// Handler serves the reports API.
type Handler struct {
	reporter *Reporter
}

func NewHandler(reporter *Reporter) *Handler {
	return &Handler{reporter: reporter}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	reports := api.Group("/reports", auth.RequireRole(auth.RoleFinancial))
	reports.GET("/revenue", h.Revenue)
}

// Revenue handles GET /reports/revenue. from/to default to the current month
// up to today.
func (h *Handler) Revenue(c echo.Context) error {
	now := time.Now().In(h.reporter.loc)
	q := RevenueQuery{
		From:    c.QueryParam("from"),
		To:      c.QueryParam("to"),
		GroupBy: GroupBy(c.QueryParam("group_by")),
	}
	if q.To == "" {
		q.To = now.Format(dateLayout)
	}
	if q.From == "" {
		q.From = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, h.reporter.loc).Format(dateLayout)
	}

	report, err := h.reporter.Revenue(c.Request().Context(), q)
	if errors.Is(err, ErrInvalidInput) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, report)
}
