package models

import (
	"time"
)

// DimCustomer is the customer dimension. The surrogate CustomerKey is
// warehouse-generated; CustomerID is the natural key from the source system
// and is unique so concurrent upserts for the same customer collapse into
// a single row.
type DimCustomer struct {
	CustomerKey      int64     `gorm:"column:customer_key;primaryKey;autoIncrement"`
	CustomerID       string    `gorm:"column:customer_id;not null;uniqueIndex:ux_dim_customers_customer_id"`
	FirstName        string    `gorm:"column:first_name;not null"`
	LastName         string    `gorm:"column:last_name;not null"`
	Email            string    `gorm:"column:email;not null"`
	Phone            string    `gorm:"column:phone"`
	City             string    `gorm:"column:city"`
	State            string    `gorm:"column:state"`
	ZipCode          string    `gorm:"column:zip_code"`
	RegistrationDate time.Time `gorm:"column:registration_date"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName pins the warehouse table name.
func (DimCustomer) TableName() string {
	return "dim_customers"
}
