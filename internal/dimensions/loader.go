package dimensions

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/starlift/starlift/internal/keycache"
	"github.com/starlift/starlift/internal/source"
	"github.com/starlift/starlift/pkg/db"
	"github.com/starlift/starlift/pkg/db/models"
	"github.com/starlift/starlift/pkg/enums"
	apperrors "github.com/starlift/starlift/pkg/errors"
)

// Loader upserts dimension rows and resolves surrogate keys through the
// run-scoped key cache.
//
// Upserts are optimistic: read, then insert, and on a unique violation read
// again to pick up the concurrent winner's key. Existing rows get a Type-1
// overwrite of their descriptive attributes. Within one run a natural key is
// only written once; later touches resolve straight from the cache.
type Loader struct {
	repo  *Repository
	cache *keycache.Cache
}

// NewLoader wires the loader to its repository and key cache.
func NewLoader(repo *Repository, cache *keycache.Cache) *Loader {
	return &Loader{repo: repo, cache: cache}
}

// Warm preloads the cache with every mapping already in the warehouse.
func (l *Loader) Warm(ctx context.Context) error {
	customers, err := l.repo.CustomerKeys(ctx)
	if err != nil {
		return storageError(err, "loading customer keys")
	}
	l.cache.Warm(ctx, enums.EntityTypeCustomer, customers)

	products, err := l.repo.ProductKeys(ctx)
	if err != nil {
		return storageError(err, "loading product keys")
	}
	l.cache.Warm(ctx, enums.EntityTypeProduct, products)
	return nil
}

// UpsertCustomer resolves the surrogate key for the customer, writing the
// dimension row if needed.
func (l *Loader) UpsertCustomer(ctx context.Context, customer source.Customer) (int64, error) {
	return l.cache.GetOrLoad(ctx, enums.EntityTypeCustomer, customer.CustomerID,
		func(ctx context.Context) (int64, error) {
			return l.writeCustomer(ctx, customer)
		})
}

func (l *Loader) writeCustomer(ctx context.Context, customer source.Customer) (int64, error) {
	existing, err := l.repo.FindCustomer(ctx, customer.CustomerID)
	if err == nil {
		attrs := map[string]any{
			"first_name":        customer.FirstName,
			"last_name":         customer.LastName,
			"email":             customer.Email,
			"phone":             customer.Phone,
			"city":              customer.City,
			"state":             customer.State,
			"zip_code":          customer.ZipCode,
			"registration_date": customer.RegistrationDate,
		}
		if err := l.repo.UpdateCustomer(ctx, existing.CustomerKey, attrs); err != nil {
			return 0, storageError(err, "updating customer dimension")
		}
		return existing.CustomerKey, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, storageError(err, "reading customer dimension")
	}

	row := models.DimCustomer{
		CustomerID:       customer.CustomerID,
		FirstName:        customer.FirstName,
		LastName:         customer.LastName,
		Email:            customer.Email,
		Phone:            customer.Phone,
		City:             customer.City,
		State:            customer.State,
		ZipCode:          customer.ZipCode,
		RegistrationDate: customer.RegistrationDate,
	}
	err = l.repo.InsertCustomer(ctx, &row)
	if err == nil {
		return row.CustomerKey, nil
	}
	if db.IsUniqueViolation(err, "ux_dim_customers_customer_id") {
		// A concurrent writer created the row; their key wins.
		winner, readErr := l.repo.FindCustomer(ctx, customer.CustomerID)
		if readErr != nil {
			return 0, storageError(readErr, "re-reading customer after conflict")
		}
		return winner.CustomerKey, nil
	}
	return 0, storageError(err, "inserting customer dimension")
}

// UpsertProduct resolves the surrogate key for the product, writing the
// dimension row if needed.
func (l *Loader) UpsertProduct(ctx context.Context, product source.Product) (int64, error) {
	return l.cache.GetOrLoad(ctx, enums.EntityTypeProduct, product.ProductID,
		func(ctx context.Context) (int64, error) {
			return l.writeProduct(ctx, product)
		})
}

func (l *Loader) writeProduct(ctx context.Context, product source.Product) (int64, error) {
	existing, err := l.repo.FindProduct(ctx, product.ProductID)
	if err == nil {
		attrs := map[string]any{
			"product_name": product.ProductName,
			"category":     product.Category,
			"subcategory":  product.Subcategory,
			"brand":        product.Brand,
			"unit_price":   product.UnitPrice,
			"cost":         product.Cost,
			"weight_kg":    product.WeightKG,
			"created_date": product.CreatedDate,
		}
		if err := l.repo.UpdateProduct(ctx, existing.ProductKey, attrs); err != nil {
			return 0, storageError(err, "updating product dimension")
		}
		return existing.ProductKey, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, storageError(err, "reading product dimension")
	}

	row := models.DimProduct{
		ProductID:   product.ProductID,
		ProductName: product.ProductName,
		Category:    product.Category,
		Subcategory: product.Subcategory,
		Brand:       product.Brand,
		UnitPrice:   product.UnitPrice,
		Cost:        product.Cost,
		WeightKG:    product.WeightKG,
		CreatedDate: product.CreatedDate,
	}
	err = l.repo.InsertProduct(ctx, &row)
	if err == nil {
		return row.ProductKey, nil
	}
	if db.IsUniqueViolation(err, "ux_dim_products_product_id") {
		winner, readErr := l.repo.FindProduct(ctx, product.ProductID)
		if readErr != nil {
			return 0, storageError(readErr, "re-reading product after conflict")
		}
		return winner.ProductKey, nil
	}
	return 0, storageError(err, "inserting product dimension")
}

// storageError classifies a warehouse failure as retryable or fatal.
func storageError(err error, message string) error {
	if db.IsTransient(err) {
		return apperrors.Wrap(apperrors.CodeTransient, err, message)
	}
	return apperrors.Wrap(apperrors.CodePermanent, err, message)
}
