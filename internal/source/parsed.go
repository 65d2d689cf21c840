package source

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/starlift/starlift/pkg/enums"
)

// Customer is a validated customer record ready for dimension loading.
type Customer struct {
	CustomerID       string `validate:"required"`
	FirstName        string `validate:"required"`
	LastName         string `validate:"required"`
	Email            string `validate:"required,email"`
	Phone            string
	City             string
	State            string
	ZipCode          string
	RegistrationDate time.Time
}

// Product is a validated product record ready for dimension loading.
type Product struct {
	ProductID   string `validate:"required"`
	ProductName string `validate:"required"`
	Category    string
	Subcategory string
	Brand       string
	UnitPrice   decimal.Decimal
	Cost        decimal.Decimal
	WeightKG    float64
	CreatedDate time.Time
}

// OrderLine is a validated order line item, the grain of the fact table.
type OrderLine struct {
	OrderID      string `validate:"required"`
	CustomerID   string `validate:"required"`
	ProductID    string `validate:"required"`
	Quantity     int
	UnitPrice    decimal.Decimal
	TotalPrice   decimal.Decimal
	ShippingCost decimal.Decimal
	TaxAmount    decimal.Decimal
	OrderStatus  enums.OrderStatus
	OrderDate    time.Time
	ShipDate     time.Time
	DeliveryDate time.Time
}

// Payment is a validated payment record, joined to order lines by OrderID.
type Payment struct {
	PaymentID      string `validate:"required"`
	OrderID        string `validate:"required"`
	PaymentMethod  enums.PaymentMethod
	PaymentStatus  enums.PaymentStatus
	PaymentDate    time.Time
	Amount         decimal.Decimal
	TransactionFee decimal.Decimal
}
