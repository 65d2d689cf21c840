package enums

import "fmt"

// RejectReason is the fixed taxonomy for record-level rejections.
type RejectReason string

const (
	RejectReasonMissingField        RejectReason = "missing_field"
	RejectReasonNonPositiveQuantity RejectReason = "non_positive_quantity"
	RejectReasonNonPositiveAmount   RejectReason = "non_positive_amount"
	RejectReasonMalformedDate       RejectReason = "malformed_date"
	RejectReasonInvalidCategory     RejectReason = "invalid_category_value"
	RejectReasonDateOrderViolation  RejectReason = "date_order_violation"
	RejectReasonPriceMismatch       RejectReason = "price_mismatch"
	RejectReasonDuplicateNaturalKey RejectReason = "duplicate_natural_key"
	RejectReasonUnresolvedReference RejectReason = "unresolved_reference"
)

var validRejectReasons = []RejectReason{
	RejectReasonMissingField,
	RejectReasonNonPositiveQuantity,
	RejectReasonNonPositiveAmount,
	RejectReasonMalformedDate,
	RejectReasonInvalidCategory,
	RejectReasonDateOrderViolation,
	RejectReasonPriceMismatch,
	RejectReasonDuplicateNaturalKey,
	RejectReasonUnresolvedReference,
}

// String implements fmt.Stringer.
func (r RejectReason) String() string {
	return string(r)
}

// IsValid reports whether the value is a known RejectReason.
func (r RejectReason) IsValid() bool {
	for _, candidate := range validRejectReasons {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseRejectReason converts raw input into a RejectReason.
func ParseRejectReason(value string) (RejectReason, error) {
	for _, candidate := range validRejectReasons {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid reject reason %q", value)
}
