package quality

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/starlift/starlift/pkg/config"
	"github.com/starlift/starlift/pkg/enums"
)

var testDDL = []string{
	`CREATE TABLE dim_customers (
		customer_key INTEGER PRIMARY KEY AUTOINCREMENT,
		customer_id TEXT NOT NULL UNIQUE,
		first_name TEXT, last_name TEXT, email TEXT,
		phone TEXT, city TEXT, state TEXT, zip_code TEXT,
		registration_date DATETIME, created_at DATETIME, updated_at DATETIME
	)`,
	`CREATE TABLE dim_products (
		product_key INTEGER PRIMARY KEY AUTOINCREMENT,
		product_id TEXT NOT NULL UNIQUE,
		product_name TEXT, category TEXT, subcategory TEXT, brand TEXT,
		unit_price NUMERIC, cost NUMERIC, weight_kg REAL,
		created_date DATETIME, created_at DATETIME, updated_at DATETIME
	)`,
	`CREATE TABLE dim_dates (
		date_key INTEGER PRIMARY KEY,
		date_value DATETIME UNIQUE,
		year INTEGER, quarter INTEGER, month INTEGER, month_name TEXT,
		day INTEGER, day_of_week INTEGER, day_name TEXT, week_of_year INTEGER,
		is_weekend BOOLEAN, is_holiday BOOLEAN
	)`,
	`CREATE TABLE fact_sales (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		order_id TEXT NOT NULL,
		product_id TEXT NOT NULL,
		customer_key INTEGER,
		product_key INTEGER,
		order_date_key INTEGER,
		ship_date_key INTEGER,
		delivery_date_key INTEGER,
		payment_date_key INTEGER,
		quantity INTEGER,
		unit_price NUMERIC,
		total_price NUMERIC,
		shipping_cost NUMERIC,
		tax_amount NUMERIC,
		payment_amount NUMERIC,
		transaction_fee NUMERIC,
		order_status TEXT,
		payment_method TEXT,
		payment_status TEXT,
		created_at DATETIME,
		CONSTRAINT ux_fact_sales_order_product UNIQUE (order_id, product_id)
	)`,
}

func defaultQualityConfig() config.QualityConfig {
	return config.QualityConfig{
		PaymentSuccessRateMin: 0.5,
		PaymentSuccessRateMax: 1.0,
		NullCheckSeverity:     "error",
		OrphanSeverity:        "error",
		RangeSeverity:         "error",
		RowCountSeverity:      "error",
		DistributionSeverity:  "warning",
	}
}

func newTestGate(t *testing.T) (*Gate, *gorm.DB) {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	for _, ddl := range testDDL {
		require.NoError(t, conn.Exec(ddl).Error)
	}
	return NewGate(conn, defaultQualityConfig(), nil), conn
}

func seedCleanWarehouse(t *testing.T, conn *gorm.DB) {
	t.Helper()
	statements := []string{
		`INSERT INTO dim_customers (customer_key, customer_id, first_name, last_name, email)
		 VALUES (1, 'CUST-001', 'John', 'Doe', 'john.doe@example.com')`,
		`INSERT INTO dim_products (product_key, product_id, product_name, unit_price)
		 VALUES (1, 'PROD-001', 'Widget', 19.99)`,
		`INSERT INTO dim_dates (date_key, date_value, year, quarter, month, month_name, day, day_of_week, day_name, week_of_year, is_weekend, is_holiday)
		 VALUES (20230501, '2023-05-01', 2023, 2, 5, 'May', 1, 1, 'Monday', 18, 0, 0),
		        (20230502, '2023-05-02', 2023, 2, 5, 'May', 2, 2, 'Tuesday', 18, 0, 0),
		        (20230505, '2023-05-05', 2023, 2, 5, 'May', 5, 5, 'Friday', 18, 0, 0)`,
		`INSERT INTO fact_sales (order_id, product_id, customer_key, product_key,
		 order_date_key, ship_date_key, delivery_date_key, payment_date_key,
		 quantity, unit_price, total_price, shipping_cost, tax_amount,
		 payment_amount, transaction_fee, order_status, payment_method, payment_status)
		 VALUES ('ORD-100', 'PROD-001', 1, 1, 20230501, 20230502, 20230505, 20230501,
		 2, 19.99, 39.98, 4.50, 3.20, 39.98, 1.20, 'delivered', 'credit_card', 'completed')`,
	}
	for _, stmt := range statements {
		require.NoError(t, conn.Exec(stmt).Error)
	}
}

func TestGatePassesOnCleanWarehouse(t *testing.T) {
	gate, conn := newTestGate(t)
	seedCleanWarehouse(t, conn)

	summary, err := gate.Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, summary.Findings)
	assert.Equal(t, summary.Checks, summary.Passed)
	assert.Equal(t, 1.0, summary.Score)
	assert.Equal(t, enums.SeverityInfo, summary.Worst())
	assert.Equal(t, int64(1), summary.RowCounts["fact_sales"])
	assert.Equal(t, int64(3), summary.RowCounts["dim_dates"])
}

func TestGateFlagsOrphanKeys(t *testing.T) {
	gate, conn := newTestGate(t)
	seedCleanWarehouse(t, conn)
	require.NoError(t, conn.Exec(
		`INSERT INTO fact_sales (order_id, product_id, customer_key, product_key,
		 order_date_key, ship_date_key, delivery_date_key, quantity, unit_price,
		 total_price, shipping_cost, tax_amount, order_status)
		 VALUES ('ORD-666', 'PROD-001', 99, 1, 20230501, 20230502, 20230505,
		 1, 19.99, 19.99, 0, 0, 'pending')`).Error)

	summary, err := gate.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, summary.Findings, 1)
	assert.Equal(t, "orphan_customer_keys", summary.Findings[0].Check)
	assert.Equal(t, enums.SeverityError, summary.Findings[0].Severity)
	assert.Equal(t, int64(1), summary.Findings[0].Rows)
	assert.Equal(t, enums.SeverityError, summary.Worst())
	assert.Less(t, summary.Score, 1.0)
}

func TestGateFlagsRangeViolations(t *testing.T) {
	gate, conn := newTestGate(t)
	seedCleanWarehouse(t, conn)
	require.NoError(t, conn.Exec(
		`INSERT INTO fact_sales (order_id, product_id, customer_key, product_key,
		 order_date_key, ship_date_key, delivery_date_key, quantity, unit_price,
		 total_price, shipping_cost, tax_amount, order_status)
		 VALUES ('ORD-777', 'PROD-001', 1, 1, 20230502, 20230501, 20230505,
		 -1, 19.99, 19.99, 0, 0, 'pending')`).Error)

	summary, err := gate.Run(context.Background())
	require.NoError(t, err)

	checks := make(map[string]Finding)
	for _, finding := range summary.Findings {
		checks[finding.Check] = finding
	}
	assert.Contains(t, checks, "non_positive_quantity")
	assert.Contains(t, checks, "ship_before_order")
}

func TestGateFlagsPaymentSuccessRate(t *testing.T) {
	gate, conn := newTestGate(t)
	seedCleanWarehouse(t, conn)
	for _, order := range []string{"ORD-201", "ORD-202", "ORD-203"} {
		require.NoError(t, conn.Exec(
			`INSERT INTO fact_sales (order_id, product_id, customer_key, product_key,
			 order_date_key, ship_date_key, delivery_date_key, quantity, unit_price,
			 total_price, shipping_cost, tax_amount, order_status, payment_method, payment_status)
			 VALUES (?, 'PROD-001', 1, 1, 20230501, 20230502, 20230505,
			 1, 19.99, 19.99, 0, 0, 'delivered', 'credit_card', 'failed')`, order).Error)
	}

	summary, err := gate.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, summary.Findings, 1)
	finding := summary.Findings[0]
	assert.Equal(t, "payment_success_rate", finding.Check)
	assert.Equal(t, enums.SeverityWarning, finding.Severity)
	assert.Equal(t, int64(3), finding.Rows)
	assert.Equal(t, enums.SeverityWarning, summary.Worst())
}

func TestGateEmptyWarehousePasses(t *testing.T) {
	gate, _ := newTestGate(t)

	summary, err := gate.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, summary.Findings)
	assert.Equal(t, 1.0, summary.Score)
}
