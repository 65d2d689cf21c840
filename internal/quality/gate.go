package quality

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/starlift/starlift/pkg/config"
	"github.com/starlift/starlift/pkg/db"
	"github.com/starlift/starlift/pkg/enums"
	apperrors "github.com/starlift/starlift/pkg/errors"
	"github.com/starlift/starlift/pkg/metrics"
)

// Finding is one failed quality check with the number of offending rows.
type Finding struct {
	Check    string         `json:"check"`
	Severity enums.Severity `json:"severity"`
	Rows     int64          `json:"rows"`
	Detail   string         `json:"detail,omitempty"`
}

// Summary aggregates the outcome of a full gate pass.
type Summary struct {
	RowCounts map[string]int64 `json:"row_counts"`
	Findings  []Finding        `json:"findings"`
	Checks    int              `json:"checks"`
	Passed    int              `json:"passed"`
	Score     float64          `json:"score"`
}

// Worst returns the highest severity across the findings, or SeverityInfo
// when the gate is clean.
func (s Summary) Worst() enums.Severity {
	worst := enums.SeverityInfo
	for _, finding := range s.Findings {
		switch finding.Severity {
		case enums.SeverityError:
			return enums.SeverityError
		case enums.SeverityWarning:
			worst = enums.SeverityWarning
		}
	}
	return worst
}

// Gate runs post-load checks directly against the warehouse tables.
type Gate struct {
	conn    *gorm.DB
	cfg     config.QualityConfig
	metrics *metrics.PipelineMetrics
}

// NewGate builds a gate over the shared GORM connection.
func NewGate(conn *gorm.DB, cfg config.QualityConfig, m *metrics.PipelineMetrics) *Gate {
	return &Gate{conn: conn, cfg: cfg, metrics: m}
}

// Run executes every check and returns the aggregated summary. Only a
// storage failure produces an error; findings never do.
func (g *Gate) Run(ctx context.Context) (Summary, error) {
	summary := Summary{RowCounts: make(map[string]int64)}

	for _, table := range []string{"dim_customers", "dim_products", "dim_dates", "fact_sales"} {
		count, err := g.count(ctx, "SELECT COUNT(*) FROM "+table)
		if err != nil {
			return summary, err
		}
		summary.RowCounts[table] = count
	}

	// A populated dimension layer with an empty fact table means the load
	// silently dropped everything.
	summary.Checks++
	if summary.RowCounts["fact_sales"] == 0 &&
		summary.RowCounts["dim_customers"]+summary.RowCounts["dim_products"] > 0 {
		g.addFinding(&summary, Finding{
			Check:    "empty_fact_table",
			Severity: g.severity(g.cfg.RowCountSeverity),
			Rows:     0,
			Detail:   "dimensions populated but no fact rows loaded",
		})
	} else {
		summary.Passed++
	}

	if err := g.runCheck(ctx, &summary, "fact_null_keys", g.severity(g.cfg.NullCheckSeverity),
		`SELECT COUNT(*) FROM fact_sales
		 WHERE customer_key IS NULL OR product_key IS NULL
		    OR order_date_key IS NULL OR quantity IS NULL OR unit_price IS NULL`,
		"fact rows with null required columns"); err != nil {
		return summary, err
	}

	orphanSeverity := g.severity(g.cfg.OrphanSeverity)
	orphanChecks := []struct {
		name  string
		query string
	}{
		{"orphan_customer_keys", `SELECT COUNT(*) FROM fact_sales f
			LEFT JOIN dim_customers c ON f.customer_key = c.customer_key
			WHERE c.customer_key IS NULL`},
		{"orphan_product_keys", `SELECT COUNT(*) FROM fact_sales f
			LEFT JOIN dim_products p ON f.product_key = p.product_key
			WHERE p.product_key IS NULL`},
		{"orphan_order_dates", `SELECT COUNT(*) FROM fact_sales f
			LEFT JOIN dim_dates d ON f.order_date_key = d.date_key
			WHERE d.date_key IS NULL`},
		{"orphan_ship_dates", `SELECT COUNT(*) FROM fact_sales f
			LEFT JOIN dim_dates d ON f.ship_date_key = d.date_key
			WHERE d.date_key IS NULL`},
		{"orphan_delivery_dates", `SELECT COUNT(*) FROM fact_sales f
			LEFT JOIN dim_dates d ON f.delivery_date_key = d.date_key
			WHERE d.date_key IS NULL`},
		{"orphan_payment_dates", `SELECT COUNT(*) FROM fact_sales f
			LEFT JOIN dim_dates d ON f.payment_date_key = d.date_key
			WHERE f.payment_date_key IS NOT NULL AND d.date_key IS NULL`},
	}
	var orphanTotal int64
	for _, check := range orphanChecks {
		count, err := g.count(ctx, check.query)
		if err != nil {
			return summary, err
		}
		summary.Checks++
		if count == 0 {
			summary.Passed++
			continue
		}
		orphanTotal += count
		severity := enums.SeverityWarning
		if orphanTotal > int64(g.cfg.MaxReferentialFailures) {
			severity = orphanSeverity
		}
		g.addFinding(&summary, Finding{
			Check:    check.name,
			Severity: severity,
			Rows:     count,
			Detail:   "fact rows referencing missing dimension rows",
		})
	}

	rangeSeverity := g.severity(g.cfg.RangeSeverity)
	rangeChecks := []struct {
		name   string
		query  string
		detail string
	}{
		{"non_positive_quantity", `SELECT COUNT(*) FROM fact_sales WHERE quantity <= 0`, "quantity must be positive"},
		{"non_positive_unit_price", `SELECT COUNT(*) FROM fact_sales WHERE unit_price <= 0`, "unit price must be positive"},
		{"non_positive_total_price", `SELECT COUNT(*) FROM fact_sales WHERE total_price <= 0`, "total price must be positive"},
		{"ship_before_order", `SELECT COUNT(*) FROM fact_sales WHERE ship_date_key < order_date_key`, "shipment precedes order"},
		{"delivery_before_ship", `SELECT COUNT(*) FROM fact_sales WHERE delivery_date_key < ship_date_key`, "delivery precedes shipment"},
	}
	for _, check := range rangeChecks {
		if err := g.runCheck(ctx, &summary, check.name, rangeSeverity, check.query, check.detail); err != nil {
			return summary, err
		}
	}

	if err := g.paymentSuccessRate(ctx, &summary); err != nil {
		return summary, err
	}

	if summary.Checks > 0 {
		summary.Score = float64(summary.Passed) / float64(summary.Checks)
	} else {
		summary.Score = 1
	}
	return summary, nil
}

// paymentSuccessRate checks the share of completed payments against the
// configured band. Runs with no recorded payments pass trivially.
func (g *Gate) paymentSuccessRate(ctx context.Context, summary *Summary) error {
	total, err := g.count(ctx, `SELECT COUNT(*) FROM fact_sales WHERE payment_status IS NOT NULL`)
	if err != nil {
		return err
	}
	summary.Checks++
	if total == 0 {
		summary.Passed++
		return nil
	}
	completed, err := g.count(ctx,
		`SELECT COUNT(*) FROM fact_sales WHERE payment_status = 'completed'`)
	if err != nil {
		return err
	}
	rate := float64(completed) / float64(total)
	if rate < g.cfg.PaymentSuccessRateMin || rate > g.cfg.PaymentSuccessRateMax {
		g.addFinding(summary, Finding{
			Check:    "payment_success_rate",
			Severity: g.severity(g.cfg.DistributionSeverity),
			Rows:     total - completed,
			Detail: fmt.Sprintf("success rate %.3f outside [%.3f, %.3f]",
				rate, g.cfg.PaymentSuccessRateMin, g.cfg.PaymentSuccessRateMax),
		})
		return nil
	}
	summary.Passed++
	return nil
}

func (g *Gate) runCheck(ctx context.Context, summary *Summary, name string, severity enums.Severity, query, detail string) error {
	count, err := g.count(ctx, query)
	if err != nil {
		return err
	}
	summary.Checks++
	if count == 0 {
		summary.Passed++
		return nil
	}
	g.addFinding(summary, Finding{
		Check:    name,
		Severity: severity,
		Rows:     count,
		Detail:   detail,
	})
	return nil
}

func (g *Gate) addFinding(summary *Summary, finding Finding) {
	summary.Findings = append(summary.Findings, finding)
	g.metrics.IncFinding(finding.Severity.String())
}

func (g *Gate) count(ctx context.Context, query string) (int64, error) {
	var count int64
	if err := g.conn.WithContext(ctx).Raw(query).Scan(&count).Error; err != nil {
		if db.IsTransient(err) {
			return 0, apperrors.Wrap(apperrors.CodeTransient, err, "running quality check")
		}
		return 0, apperrors.Wrap(apperrors.CodePermanent, err, "running quality check")
	}
	return count, nil
}

func (g *Gate) severity(value string) enums.Severity {
	if parsed, err := enums.ParseSeverity(value); err == nil {
		return parsed
	}
	return enums.SeverityError
}
