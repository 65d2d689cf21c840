package enums

import "fmt"

// EntityType identifies the kind of source record flowing through the pipeline.
type EntityType string

const (
	EntityTypeCustomer EntityType = "customer"
	EntityTypeProduct  EntityType = "product"
	EntityTypeOrder    EntityType = "order"
	EntityTypePayment  EntityType = "payment"
)

var validEntityTypes = []EntityType{
	EntityTypeCustomer,
	EntityTypeProduct,
	EntityTypeOrder,
	EntityTypePayment,
}

// DimensionEntityTypes lists the entity types that materialize as dimensions.
func DimensionEntityTypes() []EntityType {
	return []EntityType{EntityTypeCustomer, EntityTypeProduct}
}

// String implements fmt.Stringer.
func (e EntityType) String() string {
	return string(e)
}

// IsValid reports whether the value is a known EntityType.
func (e EntityType) IsValid() bool {
	for _, candidate := range validEntityTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseEntityType converts raw input into an EntityType.
func ParseEntityType(value string) (EntityType, error) {
	for _, candidate := range validEntityTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid entity type %q", value)
}
