package dimensions

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/starlift/starlift/internal/keycache"
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
}

func newTestDB(t *testing.T) *gorm.DB {
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

func newTestLoader(t *testing.T, conn *gorm.DB) (*Loader, *keycache.Cache) {
	t.Helper()
	cache := keycache.New("test-run", nil, time.Minute, nil)
	return NewLoader(NewRepository(conn), cache), cache
}
