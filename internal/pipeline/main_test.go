package pipeline

import (
	"context"
	"io"
	"path"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/starlift/starlift/internal/source"
	"github.com/starlift/starlift/pkg/config"
	"github.com/starlift/starlift/pkg/enums"
	"github.com/starlift/starlift/pkg/logger"
)

var testDDL = []string{
	`CREATE TABLE dim_customers (
		customer_key INTEGER PRIMARY KEY AUTOINCREMENT,
		customer_id TEXT NOT NULL UNIQUE,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL,
		email TEXT NOT NULL,
		phone TEXT, city TEXT, state TEXT, zip_code TEXT,
		registration_date DATETIME, created_at DATETIME, updated_at DATETIME
	)`,
	`CREATE TABLE dim_products (
		product_key INTEGER PRIMARY KEY AUTOINCREMENT,
		product_id TEXT NOT NULL UNIQUE,
		product_name TEXT NOT NULL,
		category TEXT, subcategory TEXT, brand TEXT,
		unit_price NUMERIC NOT NULL, cost NUMERIC, weight_kg REAL,
		created_date DATETIME, created_at DATETIME, updated_at DATETIME
	)`,
	`CREATE TABLE dim_dates (
		date_key INTEGER PRIMARY KEY,
		date_value DATETIME NOT NULL UNIQUE,
		year INTEGER NOT NULL, quarter INTEGER NOT NULL, month INTEGER NOT NULL,
		month_name TEXT NOT NULL, day INTEGER NOT NULL, day_of_week INTEGER NOT NULL,
		day_name TEXT NOT NULL, week_of_year INTEGER NOT NULL,
		is_weekend BOOLEAN NOT NULL, is_holiday BOOLEAN NOT NULL DEFAULT 0
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

func testConfig() *config.Config {
	return &config.Config{
		Pipeline: config.PipelineConfig{
			Workers:           4,
			MaxRetryAttempts:  2,
			BackoffBase:       time.Millisecond,
			BackoffCap:        2 * time.Millisecond,
			PriceTolerance:    "0.01",
			FatalFailureRatio: 0.05,
			CacheTTL:          time.Minute,
			ReportTTL:         time.Hour,
			DateRangeStart:    "2023-04-01",
			DateRangeEnd:      "2023-06-30",
		},
		Quality: config.QualityConfig{
			PaymentSuccessRateMin: 0.5,
			PaymentSuccessRateMax: 1.0,
			RowCountSeverity:      "warning",
			NullCheckSeverity:     "error",
			OrphanSeverity:        "error",
			RangeSeverity:         "error",
			DistributionSeverity:  "warning",
		},
	}
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "starlift-test", Output: io.Discard})
}

func newTestConn(t *testing.T) *gorm.DB {
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
	return conn
}

func customerRecord(id string, overrides map[string]string) source.Record {
	attrs := map[string]string{
		"customer_id":       id,
		"first_name":        "John",
		"last_name":         "Doe",
		"email":             "john.doe@example.com",
		"city":              "Austin",
		"state":             "TX",
		"zip_code":          "78701",
		"registration_date": "2023-04-12",
	}
	for key, value := range overrides {
		attrs[key] = value
	}
	return source.Record{Entity: enums.EntityTypeCustomer, NaturalKey: id, Attributes: attrs}
}

func productRecord(id string) source.Record {
	return source.Record{
		Entity:     enums.EntityTypeProduct,
		NaturalKey: id,
		Attributes: map[string]string{
			"product_id":   id,
			"product_name": "Widget",
			"category":     "gadgets",
			"brand":        "Acme",
			"price":        "19.99",
			"cost":         "8.50",
		},
	}
}

func orderRecord(orderID, customerID, productID string) source.Record {
	return source.Record{
		Entity:     enums.EntityTypeOrder,
		NaturalKey: orderID,
		Attributes: map[string]string{
			"order_id":      orderID,
			"customer_id":   customerID,
			"product_id":    productID,
			"quantity":      "2",
			"unit_price":    "19.99",
			"total_price":   "39.98",
			"shipping_cost": "4.50",
			"tax_amount":    "3.20",
			"order_status":  "delivered",
			"order_date":    "2023-05-01",
			"ship_date":     "2023-05-02",
			"delivery_date": "2023-05-05",
		},
	}
}

func paymentRecord(paymentID, orderID string) source.Record {
	return source.Record{
		Entity:     enums.EntityTypePayment,
		NaturalKey: paymentID,
		Attributes: map[string]string{
			"payment_id":      paymentID,
			"order_id":        orderID,
			"payment_method":  "credit_card",
			"payment_status":  "completed",
			"payment_date":    "2023-05-01",
			"amount":          "39.98",
			"transaction_fee": "1.20",
		},
	}
}

// fakeStore is an in-memory stand-in for the Redis command surface.
type fakeStore struct {
	mu     sync.Mutex
	values map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{values: make(map[string]string)}
}

func (f *fakeStore) Ping(ctx context.Context) *goredis.StatusCmd {
	return goredis.NewStatusResult("PONG", nil)
}

func (f *fakeStore) Set(ctx context.Context, key string, value any, ttl time.Duration) *goredis.StatusCmd {
	f.mu.Lock()
	f.values[key] = toString(value)
	f.mu.Unlock()
	return goredis.NewStatusResult("OK", nil)
}

func (f *fakeStore) Get(ctx context.Context, key string) *goredis.StringCmd {
	f.mu.Lock()
	value, ok := f.values[key]
	f.mu.Unlock()
	if !ok {
		return goredis.NewStringResult("", goredis.Nil)
	}
	return goredis.NewStringResult(value, nil)
}

func (f *fakeStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) *goredis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.values[key]; ok {
		return goredis.NewBoolResult(false, nil)
	}
	f.values[key] = toString(value)
	return goredis.NewBoolResult(true, nil)
}

func (f *fakeStore) MSet(ctx context.Context, pairs ...any) *goredis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := 0; i+1 < len(pairs); i += 2 {
		f.values[toString(pairs[i])] = toString(pairs[i+1])
	}
	return goredis.NewStatusResult("OK", nil)
}

func (f *fakeStore) Keys(ctx context.Context, pattern string) *goredis.StringSliceCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var matched []string
	for key := range f.values {
		if ok, _ := path.Match(pattern, key); ok {
			matched = append(matched, key)
		}
	}
	return goredis.NewStringSliceResult(matched, nil)
}

func (f *fakeStore) Del(ctx context.Context, keys ...string) *goredis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var removed int64
	for _, key := range keys {
		if _, ok := f.values[key]; ok {
			delete(f.values, key)
			removed++
		}
	}
	return goredis.NewIntResult(removed, nil)
}

func (f *fakeStore) snapshot() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]string, len(f.values))
	for k, v := range f.values {
		out[k] = v
	}
	return out
}

func toString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	}
	return ""
}
