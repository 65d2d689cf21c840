package facts

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/starlift/starlift/internal/dimensions"
	"github.com/starlift/starlift/internal/keycache"
	"github.com/starlift/starlift/internal/source"
	"github.com/starlift/starlift/pkg/db/models"
	"github.com/starlift/starlift/pkg/enums"
	apperrors "github.com/starlift/starlift/pkg/errors"
)

var testDDL = []string{
	`CREATE TABLE dim_customers (
		customer_key INTEGER PRIMARY KEY AUTOINCREMENT,
		customer_id TEXT NOT NULL UNIQUE,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL,
		email TEXT NOT NULL,
		phone TEXT,
		city TEXT,
		state TEXT,
		zip_code TEXT,
		registration_date DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE dim_products (
		product_key INTEGER PRIMARY KEY AUTOINCREMENT,
		product_id TEXT NOT NULL UNIQUE,
		product_name TEXT NOT NULL,
		category TEXT,
		subcategory TEXT,
		brand TEXT,
		unit_price NUMERIC NOT NULL,
		cost NUMERIC,
		weight_kg REAL,
		created_date DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE dim_dates (
		date_key INTEGER PRIMARY KEY,
		date_value DATETIME NOT NULL UNIQUE,
		year INTEGER NOT NULL,
		quarter INTEGER NOT NULL,
		month INTEGER NOT NULL,
		month_name TEXT NOT NULL,
		day INTEGER NOT NULL,
		day_of_week INTEGER NOT NULL,
		day_name TEXT NOT NULL,
		week_of_year INTEGER NOT NULL,
		is_weekend BOOLEAN NOT NULL,
		is_holiday BOOLEAN NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE fact_sales (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		order_id TEXT NOT NULL,
		product_id TEXT NOT NULL,
		customer_key INTEGER NOT NULL,
		product_key INTEGER NOT NULL,
		order_date_key INTEGER NOT NULL,
		ship_date_key INTEGER NOT NULL,
		delivery_date_key INTEGER NOT NULL,
		payment_date_key INTEGER,
		quantity INTEGER NOT NULL,
		unit_price NUMERIC NOT NULL,
		total_price NUMERIC NOT NULL,
		shipping_cost NUMERIC NOT NULL,
		tax_amount NUMERIC NOT NULL,
		payment_amount NUMERIC,
		transaction_fee NUMERIC,
		order_status TEXT NOT NULL,
		payment_method TEXT,
		payment_status TEXT,
		created_at DATETIME,
		CONSTRAINT ux_fact_sales_order_product UNIQUE (order_id, product_id)
	)`,
}

type fixture struct {
	conn   *gorm.DB
	loader *Loader
	cache  *keycache.Cache
}

func newFixture(t *testing.T) *fixture {
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

	ctx := context.Background()
	cache := keycache.New("test-run", nil, time.Minute, nil)
	dims := dimensions.NewRepository(conn)
	dimLoader := dimensions.NewLoader(dims, cache)

	_, err = dimLoader.UpsertCustomer(ctx, source.Customer{
		CustomerID: "CUST-001", FirstName: "John", LastName: "Doe",
		Email: "john.doe@example.com",
	})
	require.NoError(t, err)
	_, err = dimLoader.UpsertProduct(ctx, source.Product{
		ProductID: "PROD-001", ProductName: "Widget",
		UnitPrice: decimal.RequireFromString("19.99"),
	})
	require.NoError(t, err)

	dates := dimensions.NewDateBuilder(conn)
	_, err = dates.EnsureRange(ctx,
		time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2023, 5, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	loader := NewLoader(NewRepository(conn), dims, dates, cache, decimal.RequireFromString("0.01"))
	return &fixture{conn: conn, loader: loader, cache: cache}
}

func testLine() source.OrderLine {
	return source.OrderLine{
		OrderID:      "ORD-100",
		CustomerID:   "CUST-001",
		ProductID:    "PROD-001",
		Quantity:     2,
		UnitPrice:    decimal.RequireFromString("19.99"),
		TotalPrice:   decimal.RequireFromString("39.98"),
		ShippingCost: decimal.RequireFromString("4.50"),
		TaxAmount:    decimal.RequireFromString("3.20"),
		OrderStatus:  enums.OrderStatusDelivered,
		OrderDate:    time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC),
		ShipDate:     time.Date(2023, 5, 2, 0, 0, 0, 0, time.UTC),
		DeliveryDate: time.Date(2023, 5, 5, 0, 0, 0, 0, time.UTC),
	}
}

func testPayment() source.Payment {
	return source.Payment{
		PaymentID:      "PAY-1",
		OrderID:        "ORD-100",
		PaymentMethod:  enums.PaymentMethodCreditCard,
		PaymentStatus:  enums.PaymentStatusCompleted,
		PaymentDate:    time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC),
		Amount:         decimal.RequireFromString("39.98"),
		TransactionFee: decimal.RequireFromString("1.20"),
	}
}

func TestLoadLineWithPayment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	line := testLine()
	require.NoError(t, f.loader.Prepare(ctx, []source.OrderLine{line}, []source.Payment{testPayment()}))

	outcome, err := f.loader.Load(ctx, line)
	require.NoError(t, err)
	assert.Equal(t, OutcomeLoaded, outcome)

	var row models.FactSale
	require.NoError(t, f.conn.Where("order_id = ?", "ORD-100").First(&row).Error)
	assert.Equal(t, 20230501, row.OrderDateKey)
	assert.Equal(t, 20230505, row.DeliveryDateKey)
	require.NotNil(t, row.PaymentDateKey)
	assert.Equal(t, 20230501, *row.PaymentDateKey)
	require.NotNil(t, row.PaymentStatus)
	assert.Equal(t, enums.PaymentStatusCompleted, *row.PaymentStatus)
	assert.True(t, row.TotalPrice.Equal(decimal.RequireFromString("39.98")))
}

func TestLoadLineWithoutPayment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	line := testLine()
	require.NoError(t, f.loader.Prepare(ctx, []source.OrderLine{line}, nil))

	outcome, err := f.loader.Load(ctx, line)
	require.NoError(t, err)
	assert.Equal(t, OutcomeLoaded, outcome)

	var row models.FactSale
	require.NoError(t, f.conn.Where("order_id = ?", "ORD-100").First(&row).Error)
	assert.Nil(t, row.PaymentDateKey)
	assert.Nil(t, row.PaymentAmount)
	assert.Nil(t, row.PaymentMethod)
}

func TestLoadReplayDeduplicates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	line := testLine()
	require.NoError(t, f.loader.Prepare(ctx, []source.OrderLine{line}, nil))

	outcome, err := f.loader.Load(ctx, line)
	require.NoError(t, err)
	assert.Equal(t, OutcomeLoaded, outcome)

	outcome, err = f.loader.Load(ctx, line)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDeduplicated, outcome)

	count, err := f.loader.repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestLoadUnknownCustomerIsReferentialFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	line := testLine()
	line.CustomerID = "CUST-404"
	require.NoError(t, f.loader.Prepare(ctx, []source.OrderLine{line}, nil))

	_, err := f.loader.Load(ctx, line)
	require.Error(t, err)
	typed := apperrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, apperrors.CodeReferential, typed.Code())
	assert.True(t, apperrors.IsRecordLevel(err))
}

func TestLoadPriceDriftIsValidationFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	line := testLine()
	line.TotalPrice = decimal.RequireFromString("50.00")
	require.NoError(t, f.loader.Prepare(ctx, []source.OrderLine{line}, nil))

	_, err := f.loader.Load(ctx, line)
	require.Error(t, err)
	typed := apperrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, apperrors.CodeValidation, typed.Code())
}

func TestPrepareFailsOnMissingCalendarDate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	line := testLine()
	line.DeliveryDate = time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)

	err := f.loader.Prepare(ctx, []source.OrderLine{line}, nil)
	require.Error(t, err)
	typed := apperrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, apperrors.CodePermanent, typed.Code())
	assert.True(t, apperrors.IsFatal(err))
}

func TestResolveKeyFallsBackToWarehouse(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	line := testLine()
	require.NoError(t, f.loader.Prepare(ctx, []source.OrderLine{line}, nil))

	// A fresh cache simulates a warm-started run with dimensions already
	// in the warehouse.
	fresh := keycache.New("other-run", nil, time.Minute, nil)
	loader := NewLoader(f.loader.repo, f.loader.dims, f.loader.dates, fresh, f.loader.tolerance)
	require.NoError(t, loader.Prepare(ctx, []source.OrderLine{line}, nil))

	outcome, err := loader.Load(ctx, line)
	require.NoError(t, err)
	assert.Equal(t, OutcomeLoaded, outcome)
}
