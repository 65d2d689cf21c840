package facts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/starlift/starlift/internal/dimensions"
	"github.com/starlift/starlift/internal/keycache"
	"github.com/starlift/starlift/internal/source"
	"github.com/starlift/starlift/pkg/db"
	"github.com/starlift/starlift/pkg/db/models"
	"github.com/starlift/starlift/pkg/enums"
	apperrors "github.com/starlift/starlift/pkg/errors"
)

// Outcome states how one order line ended up in the fact table.
type Outcome string

const (
	OutcomeLoaded       Outcome = "loaded"
	OutcomeDeduplicated Outcome = "deduplicated"
)

// Loader resolves order lines against the dimensions and writes fact rows.
//
// Prepare must run once per batch before Load: it indexes payments by order
// and checks calendar coverage for every referenced date. A date missing
// from the calendar dimension is a hard failure, not a record-level skip;
// the calendar must be materialized before facts load.
type Loader struct {
	repo      *Repository
	dims      *dimensions.Repository
	dates     *dimensions.DateBuilder
	cache     *keycache.Cache
	tolerance decimal.Decimal

	payments     map[string]source.Payment
	dateCoverage map[int]bool
}

// NewLoader wires the fact loader to its collaborators.
func NewLoader(repo *Repository, dims *dimensions.Repository, dates *dimensions.DateBuilder, cache *keycache.Cache, tolerance decimal.Decimal) *Loader {
	return &Loader{
		repo:      repo,
		dims:      dims,
		dates:     dates,
		cache:     cache,
		tolerance: tolerance,
	}
}

// Prepare indexes the batch's payments and verifies calendar coverage for
// every date the lines and payments reference.
func (l *Loader) Prepare(ctx context.Context, lines []source.OrderLine, payments []source.Payment) error {
	l.payments = make(map[string]source.Payment, len(payments))
	for _, payment := range payments {
		l.payments[payment.OrderID] = payment
	}

	keySet := make(map[int]bool)
	for _, line := range lines {
		keySet[dimensions.DateKeyFor(line.OrderDate)] = true
		keySet[dimensions.DateKeyFor(line.ShipDate)] = true
		keySet[dimensions.DateKeyFor(line.DeliveryDate)] = true
	}
	for _, payment := range payments {
		keySet[dimensions.DateKeyFor(payment.PaymentDate)] = true
	}
	keys := make([]int, 0, len(keySet))
	for key := range keySet {
		keys = append(keys, key)
	}

	coverage, err := l.dates.ExistingKeys(ctx, keys)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if !coverage[key] {
			return apperrors.New(apperrors.CodePermanent,
				fmt.Sprintf("date %d missing from calendar dimension", key))
		}
	}
	l.dateCoverage = coverage
	return nil
}

// Load writes one order line as a fact row. Referential and validation
// failures are record-level; storage failures are classified for the retry
// controller.
func (l *Loader) Load(ctx context.Context, line source.OrderLine) (Outcome, error) {
	if l.dateCoverage == nil {
		return "", apperrors.New(apperrors.CodeInternal, "fact loader used before Prepare")
	}
	customerKey, err := l.resolveKey(ctx, enums.EntityTypeCustomer, line.CustomerID)
	if err != nil {
		return "", err
	}
	productKey, err := l.resolveKey(ctx, enums.EntityTypeProduct, line.ProductID)
	if err != nil {
		return "", err
	}

	orderDateKey, err := l.dateKey(line.OrderDate)
	if err != nil {
		return "", err
	}
	shipDateKey, err := l.dateKey(line.ShipDate)
	if err != nil {
		return "", err
	}
	deliveryDateKey, err := l.dateKey(line.DeliveryDate)
	if err != nil {
		return "", err
	}

	// The stored total is always recomputed from quantity and unit price.
	computed := line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))
	if computed.Sub(line.TotalPrice).Abs().GreaterThan(l.tolerance) {
		return "", apperrors.New(apperrors.CodeValidation,
			fmt.Sprintf("order %s total %s disagrees with computed %s", line.OrderID, line.TotalPrice, computed))
	}

	row := models.FactSale{
		OrderID:         line.OrderID,
		ProductID:       line.ProductID,
		CustomerKey:     customerKey,
		ProductKey:      productKey,
		OrderDateKey:    orderDateKey,
		ShipDateKey:     shipDateKey,
		DeliveryDateKey: deliveryDateKey,
		Quantity:        line.Quantity,
		UnitPrice:       line.UnitPrice,
		TotalPrice:      computed,
		ShippingCost:    line.ShippingCost,
		TaxAmount:       line.TaxAmount,
		OrderStatus:     line.OrderStatus,
	}

	if payment, ok := l.payments[line.OrderID]; ok {
		paymentDateKey, err := l.dateKey(payment.PaymentDate)
		if err != nil {
			return "", err
		}
		method := payment.PaymentMethod
		status := payment.PaymentStatus
		amount := payment.Amount
		fee := payment.TransactionFee
		row.PaymentDateKey = &paymentDateKey
		row.PaymentMethod = &method
		row.PaymentStatus = &status
		row.PaymentAmount = &amount
		row.TransactionFee = &fee
	}

	err = l.repo.Insert(ctx, &row)
	if err == nil {
		return OutcomeLoaded, nil
	}
	if db.IsUniqueViolation(err, "ux_fact_sales_order_product") {
		return OutcomeDeduplicated, nil
	}
	if db.IsTransient(err) {
		return "", apperrors.Wrap(apperrors.CodeTransient, err, "inserting fact row")
	}
	return "", apperrors.Wrap(apperrors.CodePermanent, err, "inserting fact row")
}

// resolveKey returns the surrogate key for the natural key, falling back to
// the warehouse on a cache miss. An unresolvable key is a record-level
// referential failure.
func (l *Loader) resolveKey(ctx context.Context, entity enums.EntityType, naturalKey string) (int64, error) {
	key, err := l.cache.GetOrLoad(ctx, entity, naturalKey, func(ctx context.Context) (int64, error) {
		switch entity {
		case enums.EntityTypeCustomer:
			row, err := l.dims.FindCustomer(ctx, naturalKey)
			if err != nil {
				return 0, err
			}
			return row.CustomerKey, nil
		case enums.EntityTypeProduct:
			row, err := l.dims.FindProduct(ctx, naturalKey)
			if err != nil {
				return 0, err
			}
			return row.ProductKey, nil
		}
		return 0, gorm.ErrRecordNotFound
	})
	if err == nil {
		return key, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, apperrors.New(apperrors.CodeReferential,
			fmt.Sprintf("%s %q has no dimension row", entity, naturalKey))
	}
	if db.IsTransient(err) {
		return 0, apperrors.Wrap(apperrors.CodeTransient, err, "resolving "+entity.String()+" key")
	}
	return 0, apperrors.Wrap(apperrors.CodePermanent, err, "resolving "+entity.String()+" key")
}

// dateKey maps a date to its calendar key, requiring the row to exist.
func (l *Loader) dateKey(value time.Time) (int, error) {
	key := dimensions.DateKeyFor(value)
	if !l.dateCoverage[key] {
		return 0, apperrors.New(apperrors.CodePermanent,
			fmt.Sprintf("date %d missing from calendar dimension", key))
	}
	return key, nil
}
