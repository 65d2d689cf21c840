package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/starlift/starlift/pkg/enums"
)

// FactSale is one order line item resolved against the dimensions. The
// composite unique index on (order_id, product_id) makes replays of an
// already-loaded batch converge instead of accumulating duplicates.
// Payment columns are nullable: an order line may be loaded before its
// payment arrives.
type FactSale struct {
	ID              int64                `gorm:"column:id;primaryKey;autoIncrement"`
	OrderID         string               `gorm:"column:order_id;not null;uniqueIndex:ux_fact_sales_order_product"`
	ProductID       string               `gorm:"column:product_id;not null;uniqueIndex:ux_fact_sales_order_product"`
	CustomerKey     int64                `gorm:"column:customer_key;not null"`
	ProductKey      int64                `gorm:"column:product_key;not null"`
	OrderDateKey    int                  `gorm:"column:order_date_key;not null"`
	ShipDateKey     int                  `gorm:"column:ship_date_key;not null"`
	DeliveryDateKey int                  `gorm:"column:delivery_date_key;not null"`
	PaymentDateKey  *int                 `gorm:"column:payment_date_key"`
	Quantity        int                  `gorm:"column:quantity;not null"`
	UnitPrice       decimal.Decimal      `gorm:"column:unit_price;type:numeric(12,2);not null"`
	TotalPrice      decimal.Decimal      `gorm:"column:total_price;type:numeric(12,2);not null"`
	ShippingCost    decimal.Decimal      `gorm:"column:shipping_cost;type:numeric(12,2);not null"`
	TaxAmount       decimal.Decimal      `gorm:"column:tax_amount;type:numeric(12,2);not null"`
	PaymentAmount   *decimal.Decimal     `gorm:"column:payment_amount;type:numeric(12,2)"`
	TransactionFee  *decimal.Decimal     `gorm:"column:transaction_fee;type:numeric(12,2)"`
	OrderStatus     enums.OrderStatus    `gorm:"column:order_status;not null"`
	PaymentMethod   *enums.PaymentMethod `gorm:"column:payment_method"`
	PaymentStatus   *enums.PaymentStatus `gorm:"column:payment_status"`
	CreatedAt       time.Time            `gorm:"column:created_at;autoCreateTime"`
}

// TableName pins the warehouse table name.
func (FactSale) TableName() string {
	return "fact_sales"
}
