package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DimProduct is the product dimension, keyed by the warehouse-generated
// ProductKey with the source ProductID as unique natural key. Attribute
// changes overwrite in place; no history is retained.
type DimProduct struct {
	ProductKey  int64           `gorm:"column:product_key;primaryKey;autoIncrement"`
	ProductID   string          `gorm:"column:product_id;not null;uniqueIndex:ux_dim_products_product_id"`
	ProductName string          `gorm:"column:product_name;not null"`
	Category    string          `gorm:"column:category"`
	Subcategory string          `gorm:"column:subcategory"`
	Brand       string          `gorm:"column:brand"`
	UnitPrice   decimal.Decimal `gorm:"column:unit_price;type:numeric(12,2);not null"`
	Cost        decimal.Decimal `gorm:"column:cost;type:numeric(12,2)"`
	WeightKG    float64         `gorm:"column:weight_kg"`
	CreatedDate time.Time       `gorm:"column:created_date"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName pins the warehouse table name.
func (DimProduct) TableName() string {
	return "dim_products"
}
