package dimensions

import (
	"context"

	"gorm.io/gorm"

	"github.com/starlift/starlift/pkg/db/models"
)

// Repository owns warehouse access for the customer and product dimensions.
type Repository struct {
	conn *gorm.DB
}

// NewRepository builds a repository over the shared GORM connection.
func NewRepository(conn *gorm.DB) *Repository {
	return &Repository{conn: conn}
}

// FindCustomer returns the dimension row for the natural key, or
// gorm.ErrRecordNotFound.
func (r *Repository) FindCustomer(ctx context.Context, customerID string) (models.DimCustomer, error) {
	var row models.DimCustomer
	err := r.conn.WithContext(ctx).
		Where("customer_id = ?", customerID).
		First(&row).Error
	return row, err
}

// InsertCustomer creates a new dimension row, populating the surrogate key.
func (r *Repository) InsertCustomer(ctx context.Context, row *models.DimCustomer) error {
	return r.conn.WithContext(ctx).Create(row).Error
}

// UpdateCustomer overwrites the descriptive attributes of an existing row.
func (r *Repository) UpdateCustomer(ctx context.Context, key int64, attrs map[string]any) error {
	return r.conn.WithContext(ctx).
		Model(&models.DimCustomer{}).
		Where("customer_key = ?", key).
		Updates(attrs).Error
}

// CustomerKeys returns every natural-key to surrogate-key mapping.
func (r *Repository) CustomerKeys(ctx context.Context) (map[string]int64, error) {
	var rows []models.DimCustomer
	err := r.conn.WithContext(ctx).
		Select("customer_key", "customer_id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	keys := make(map[string]int64, len(rows))
	for _, row := range rows {
		keys[row.CustomerID] = row.CustomerKey
	}
	return keys, nil
}

// FindProduct returns the dimension row for the natural key, or
// gorm.ErrRecordNotFound.
func (r *Repository) FindProduct(ctx context.Context, productID string) (models.DimProduct, error) {
	var row models.DimProduct
	err := r.conn.WithContext(ctx).
		Where("product_id = ?", productID).
		First(&row).Error
	return row, err
}

// InsertProduct creates a new dimension row, populating the surrogate key.
func (r *Repository) InsertProduct(ctx context.Context, row *models.DimProduct) error {
	return r.conn.WithContext(ctx).Create(row).Error
}

// UpdateProduct overwrites the descriptive attributes of an existing row.
func (r *Repository) UpdateProduct(ctx context.Context, key int64, attrs map[string]any) error {
	return r.conn.WithContext(ctx).
		Model(&models.DimProduct{}).
		Where("product_key = ?", key).
		Updates(attrs).Error
}

// ProductKeys returns every natural-key to surrogate-key mapping.
func (r *Repository) ProductKeys(ctx context.Context) (map[string]int64, error) {
	var rows []models.DimProduct
	err := r.conn.WithContext(ctx).
		Select("product_key", "product_id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	keys := make(map[string]int64, len(rows))
	for _, row := range rows {
		keys[row.ProductID] = row.ProductKey
	}
	return keys, nil
}
