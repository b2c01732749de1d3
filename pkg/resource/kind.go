// Package resource maps each extractable resource kind to its export query,
// its paginated query, and the rule used to group its exported records.
package resource

import (
	"errors"
	"fmt"
	"strings"
)

// Kind identifies an extractable resource.
type Kind string

const (
	// KindProducts exports catalog products with their variants as children.
	KindProducts Kind = "products"

	// KindOrders exports orders.
	KindOrders Kind = "orders"

	// KindCustomers exports customers.
	KindCustomers Kind = "customers"
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	return string(k)
}

// ErrUnsupportedKind indicates a kind outside the catalog.
var ErrUnsupportedKind = errors.New("unsupported resource kind")

// UnsupportedKindError carries the rejected kind.
type UnsupportedKindError struct {
	Kind string
}

// Error implements the error interface.
func (e *UnsupportedKindError) Error() string {
	return fmt.Sprintf("%s: %q", ErrUnsupportedKind, e.Kind)
}

// Unwrap returns ErrUnsupportedKind for errors.Is support.
func (e *UnsupportedKindError) Unwrap() error {
	return ErrUnsupportedKind
}

// IsUnsupportedKind returns true if the error indicates an unknown kind.
func IsUnsupportedKind(err error) bool {
	return errors.Is(err, ErrUnsupportedKind)
}

// Kinds returns every supported kind in catalog order.
func Kinds() []Kind {
	return []Kind{KindProducts, KindOrders, KindCustomers}
}

// ParseKind accepts plural or singular spellings in any case
// ("products", "PRODUCT", "Product").
func ParseKind(s string) (Kind, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	switch norm {
	case "products", "product":
		return KindProducts, nil
	case "orders", "order":
		return KindOrders, nil
	case "customers", "customer":
		return KindCustomers, nil
	}
	return "", &UnsupportedKindError{Kind: s}
}

// ParseKinds parses a comma-separated kind list, dropping blanks and duplicates.
func ParseKinds(csv string) ([]Kind, error) {
	var out []Kind
	seen := map[Kind]bool{}
	for _, part := range strings.Split(csv, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		k, err := ParseKind(part)
		if err != nil {
			return nil, err
		}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out, nil
}
