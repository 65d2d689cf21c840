package facts

import (
	"context"

	"gorm.io/gorm"

	"github.com/starlift/starlift/pkg/db/models"
)

// Repository owns warehouse access for the sales fact table.
type Repository struct {
	conn *gorm.DB
}

// NewRepository builds a repository over the shared GORM connection.
func NewRepository(conn *gorm.DB) *Repository {
	return &Repository{conn: conn}
}

// Insert creates one fact row. Unique violations on the order/product grain
// surface as errors for the caller to classify.
func (r *Repository) Insert(ctx context.Context, row *models.FactSale) error {
	return r.conn.WithContext(ctx).Create(row).Error
}

// Count returns the number of fact rows.
func (r *Repository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.conn.WithContext(ctx).Model(&models.FactSale{}).Count(&count).Error
	return count, err
}
