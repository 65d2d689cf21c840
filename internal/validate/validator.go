package validate

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/starlift/starlift/internal/source"
	"github.com/starlift/starlift/pkg/enums"
)

const dateLayout = "2006-01-02"

// Rejection attributes one excluded record to one reason.
type Rejection struct {
	Entity     enums.EntityType   `json:"entity"`
	NaturalKey string             `json:"natural_key"`
	Reason     enums.RejectReason `json:"reason"`
	Detail     string             `json:"detail,omitempty"`
}

// Result carries the accepted typed records and every rejection of a batch.
// For each entity type, extracted == accepted + rejected.
type Result struct {
	Customers  []source.Customer
	Products   []source.Product
	Orders     []source.OrderLine
	Payments   []source.Payment
	Rejections []Rejection
}

// Accepted returns how many records of the entity type passed validation.
func (r Result) Accepted(entity enums.EntityType) int {
	switch entity {
	case enums.EntityTypeCustomer:
		return len(r.Customers)
	case enums.EntityTypeProduct:
		return len(r.Products)
	case enums.EntityTypeOrder:
		return len(r.Orders)
	case enums.EntityTypePayment:
		return len(r.Payments)
	}
	return 0
}

// Rejected returns how many records of the entity type were rejected.
func (r Result) Rejected(entity enums.EntityType) int {
	count := 0
	for _, rejection := range r.Rejections {
		if rejection.Entity == entity {
			count++
		}
	}
	return count
}

// Validator applies per-record business rules. It is pure: no I/O, no shared
// mutable state, deterministic output for a given batch.
type Validator struct {
	check          *validator.Validate
	priceTolerance decimal.Decimal
}

// New builds a Validator with the configured total-price tolerance.
func New(priceTolerance decimal.Decimal) *Validator {
	return &Validator{
		check:          validator.New(),
		priceTolerance: priceTolerance,
	}
}

// Batch validates every record of the batch and partitions it into accepted
// typed records and rejections.
func (v *Validator) Batch(batch *source.Batch) Result {
	var result Result

	seenCustomers := map[string]bool{}
	for _, record := range batch.Records[enums.EntityTypeCustomer] {
		customer, rejection := v.Customer(record)
		if rejection == nil && seenCustomers[customer.CustomerID] {
			rejection = &Rejection{
				Entity:     enums.EntityTypeCustomer,
				NaturalKey: customer.CustomerID,
				Reason:     enums.RejectReasonDuplicateNaturalKey,
			}
		}
		if rejection != nil {
			result.Rejections = append(result.Rejections, *rejection)
			continue
		}
		seenCustomers[customer.CustomerID] = true
		result.Customers = append(result.Customers, customer)
	}

	seenProducts := map[string]bool{}
	for _, record := range batch.Records[enums.EntityTypeProduct] {
		product, rejection := v.Product(record)
		if rejection == nil && seenProducts[product.ProductID] {
			rejection = &Rejection{
				Entity:     enums.EntityTypeProduct,
				NaturalKey: product.ProductID,
				Reason:     enums.RejectReasonDuplicateNaturalKey,
			}
		}
		if rejection != nil {
			result.Rejections = append(result.Rejections, *rejection)
			continue
		}
		seenProducts[product.ProductID] = true
		result.Products = append(result.Products, product)
	}

	seenLines := map[string]bool{}
	for _, record := range batch.Records[enums.EntityTypeOrder] {
		line, rejection := v.OrderLine(record)
		if rejection == nil {
			grain := line.OrderID + "/" + line.ProductID
			if seenLines[grain] {
				rejection = &Rejection{
					Entity:     enums.EntityTypeOrder,
					NaturalKey: line.OrderID,
					Reason:     enums.RejectReasonDuplicateNaturalKey,
					Detail:     fmt.Sprintf("duplicate line for product %s", line.ProductID),
				}
			} else {
				seenLines[grain] = true
			}
		}
		if rejection != nil {
			result.Rejections = append(result.Rejections, *rejection)
			continue
		}
		result.Orders = append(result.Orders, line)
	}

	for _, record := range batch.Records[enums.EntityTypePayment] {
		payment, rejection := v.Payment(record)
		if rejection != nil {
			result.Rejections = append(result.Rejections, *rejection)
			continue
		}
		result.Payments = append(result.Payments, payment)
	}

	return result
}

// Customer validates and cleans one customer record.
func (v *Validator) Customer(record source.Record) (source.Customer, *Rejection) {
	customer := source.Customer{
		CustomerID: record.Attr("customer_id"),
		FirstName:  titleCase(record.Attr("first_name")),
		LastName:   titleCase(record.Attr("last_name")),
		Email:      lowerCase(record.Attr("email")),
		Phone:      cleanPhone(record.Attr("phone")),
		City:       record.Attr("city"),
		State:      upperCase(record.Attr("state")),
		ZipCode:    record.Attr("zip_code"),
	}
	if customer.CustomerID == "" {
		customer.CustomerID = record.NaturalKey
	}

	if record.HasAttr("registration_date") {
		parsed, err := time.Parse(dateLayout, record.Attr("registration_date"))
		if err != nil {
			return customer, v.reject(record, enums.RejectReasonMalformedDate, "registration_date")
		}
		customer.RegistrationDate = parsed
	}

	if rejection := v.tagCheck(record, customer); rejection != nil {
		return customer, rejection
	}
	return customer, nil
}

// Product validates and cleans one product record.
func (v *Validator) Product(record source.Record) (source.Product, *Rejection) {
	product := source.Product{
		ProductID:   record.Attr("product_id"),
		ProductName: record.Attr("product_name"),
		Category:    titleCase(record.Attr("category")),
		Subcategory: titleCase(record.Attr("subcategory")),
		Brand:       record.Attr("brand"),
	}
	if product.ProductID == "" {
		product.ProductID = record.NaturalKey
	}

	price, rejection := v.requireDecimal(record, "price")
	if rejection != nil {
		return product, rejection
	}
	product.UnitPrice = price
	if !product.UnitPrice.IsPositive() {
		return product, v.reject(record, enums.RejectReasonNonPositiveAmount, "price")
	}

	if record.HasAttr("cost") {
		cost, rejection := v.requireDecimal(record, "cost")
		if rejection != nil {
			return product, rejection
		}
		product.Cost = cost
	}
	if record.HasAttr("weight_kg") {
		if _, err := fmt.Sscanf(record.Attr("weight_kg"), "%f", &product.WeightKG); err != nil {
			return product, v.reject(record, enums.RejectReasonMissingField, "weight_kg")
		}
	}
	if record.HasAttr("created_date") {
		parsed, err := time.Parse(dateLayout, record.Attr("created_date"))
		if err != nil {
			return product, v.reject(record, enums.RejectReasonMalformedDate, "created_date")
		}
		product.CreatedDate = parsed
	}

	if rejection := v.tagCheck(record, product); rejection != nil {
		return product, rejection
	}
	return product, nil
}

// OrderLine validates and cleans one order line record.
func (v *Validator) OrderLine(record source.Record) (source.OrderLine, *Rejection) {
	line := source.OrderLine{
		OrderID:    record.Attr("order_id"),
		CustomerID: record.Attr("customer_id"),
		ProductID:  record.Attr("product_id"),
	}
	if line.OrderID == "" {
		line.OrderID = record.NaturalKey
	}

	if _, err := fmt.Sscanf(record.Attr("quantity"), "%d", &line.Quantity); err != nil {
		return line, v.reject(record, enums.RejectReasonMissingField, "quantity")
	}
	if line.Quantity <= 0 {
		return line, v.reject(record, enums.RejectReasonNonPositiveQuantity, "quantity")
	}

	unitPrice, rejection := v.requireDecimal(record, "unit_price")
	if rejection != nil {
		return line, rejection
	}
	line.UnitPrice = unitPrice
	if !line.UnitPrice.IsPositive() {
		return line, v.reject(record, enums.RejectReasonNonPositiveAmount, "unit_price")
	}

	totalPrice, rejection := v.requireDecimal(record, "total_price")
	if rejection != nil {
		return line, rejection
	}
	line.TotalPrice = totalPrice

	if record.HasAttr("shipping_cost") {
		cost, rejection := v.requireDecimal(record, "shipping_cost")
		if rejection != nil {
			return line, rejection
		}
		line.ShippingCost = cost
	}
	if record.HasAttr("tax_amount") {
		tax, rejection := v.requireDecimal(record, "tax_amount")
		if rejection != nil {
			return line, rejection
		}
		line.TaxAmount = tax
	}

	status, err := enums.ParseOrderStatus(lowerCase(record.Attr("order_status")))
	if err != nil {
		return line, v.reject(record, enums.RejectReasonInvalidCategory, "order_status")
	}
	line.OrderStatus = status

	for _, field := range []struct {
		name   string
		target *time.Time
	}{
		{"order_date", &line.OrderDate},
		{"ship_date", &line.ShipDate},
		{"delivery_date", &line.DeliveryDate},
	} {
		parsed, err := time.Parse(dateLayout, record.Attr(field.name))
		if err != nil {
			return line, v.reject(record, enums.RejectReasonMalformedDate, field.name)
		}
		*field.target = parsed
	}

	if line.ShipDate.Before(line.OrderDate) {
		return line, v.reject(record, enums.RejectReasonDateOrderViolation, "ship_date precedes order_date")
	}
	if line.DeliveryDate.Before(line.ShipDate) {
		return line, v.reject(record, enums.RejectReasonDateOrderViolation, "delivery_date precedes ship_date")
	}

	// total_price is recomputed, never trusted from the source.
	expected := line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))
	if expected.Sub(line.TotalPrice).Abs().GreaterThan(v.priceTolerance) {
		return line, v.reject(record, enums.RejectReasonPriceMismatch,
			fmt.Sprintf("supplied %s, computed %s", line.TotalPrice, expected))
	}

	if rejection := v.tagCheck(record, line); rejection != nil {
		return line, rejection
	}
	return line, nil
}

// Payment validates and cleans one payment record.
func (v *Validator) Payment(record source.Record) (source.Payment, *Rejection) {
	payment := source.Payment{
		PaymentID: record.Attr("payment_id"),
		OrderID:   record.Attr("order_id"),
	}
	if payment.PaymentID == "" {
		payment.PaymentID = record.NaturalKey
	}

	method, err := enums.ParsePaymentMethod(lowerCase(record.Attr("payment_method")))
	if err != nil {
		return payment, v.reject(record, enums.RejectReasonInvalidCategory, "payment_method")
	}
	payment.PaymentMethod = method

	status, err := enums.ParsePaymentStatus(lowerCase(record.Attr("payment_status")))
	if err != nil {
		return payment, v.reject(record, enums.RejectReasonInvalidCategory, "payment_status")
	}
	payment.PaymentStatus = status

	parsed, err := time.Parse(dateLayout, record.Attr("payment_date"))
	if err != nil {
		return payment, v.reject(record, enums.RejectReasonMalformedDate, "payment_date")
	}
	payment.PaymentDate = parsed

	amount, rejection := v.requireDecimal(record, "amount")
	if rejection != nil {
		return payment, rejection
	}
	payment.Amount = amount
	if !payment.Amount.IsPositive() {
		return payment, v.reject(record, enums.RejectReasonNonPositiveAmount, "amount")
	}

	if record.HasAttr("transaction_fee") {
		fee, rejection := v.requireDecimal(record, "transaction_fee")
		if rejection != nil {
			return payment, rejection
		}
		payment.TransactionFee = fee
	}

	if rejection := v.tagCheck(record, payment); rejection != nil {
		return payment, rejection
	}
	return payment, nil
}

func (v *Validator) requireDecimal(record source.Record, name string) (decimal.Decimal, *Rejection) {
	raw := record.Attr(name)
	if raw == "" {
		return decimal.Zero, v.reject(record, enums.RejectReasonMissingField, name)
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, v.reject(record, enums.RejectReasonMissingField, name)
	}
	return value, nil
}

func (v *Validator) tagCheck(record source.Record, value any) *Rejection {
	err := v.check.Struct(value)
	if err == nil {
		return nil
	}
	var invalid validator.ValidationErrors
	if !errors.As(err, &invalid) || len(invalid) == 0 {
		return v.reject(record, enums.RejectReasonMissingField, err.Error())
	}
	first := invalid[0]
	reason := enums.RejectReasonMissingField
	if first.Tag() != "required" {
		reason = enums.RejectReasonInvalidCategory
	}
	return v.reject(record, reason, first.Field())
}

func (v *Validator) reject(record source.Record, reason enums.RejectReason, detail string) *Rejection {
	return &Rejection{
		Entity:     record.Entity,
		NaturalKey: record.NaturalKey,
		Reason:     reason,
		Detail:     detail,
	}
}
