package resource

import (
	"fmt"
	"strings"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"

	"github.com/3leaps/gobulk/pkg/record"
)

// Grouping selects how exported records of a kind become entities.
type Grouping int

const (
	// GroupFlat treats every record as a complete entity.
	GroupFlat Grouping = iota

	// GroupParentChild groups child records under the parent named by
	// their back-reference.
	GroupParentChild
)

// String returns the grouping name.
func (g Grouping) String() string {
	switch g {
	case GroupFlat:
		return "flat"
	case GroupParentChild:
		return "parent_child"
	default:
		return fmt.Sprintf("grouping(%d)", int(g))
	}
}

// Strategy is the per-kind behavior table entry.
type Strategy struct {
	Kind Kind

	// RootField is the top-level query field (e.g. "products").
	RootField string

	// TypeName is the upstream type of the kind's top-level records.
	TypeName string

	Grouping Grouping

	// Query is the export query submitted as a bulk job.
	Query string

	// PageQuery is the cursor-paginated query, taking $first and $after.
	PageQuery string

	// Title derives an entity title from its own record.
	Title func(record.Raw) string
}

// IsParent reports whether r is a top-level record of this kind.
//
// A record is a parent when it has no back-reference and its type, if
// it can be determined at all, is the kind's own type. Records of a foreign
// type without a back-reference are neither parents nor children.
func (s Strategy) IsParent(r record.Raw) bool {
	if r.IsChild() {
		return false
	}
	t := r.TypeName()
	return t == "" || t == s.TypeName
}

// CreatedAt returns the creation timestamp field of a record.
func (s Strategy) CreatedAt(r record.Raw) string {
	v, _ := r.Text("createdAt")
	return v
}

const productsQuery = `{
  products {
    edges {
      node {
        __typename
        id
        title
        createdAt
        variants(first: 100) {
          edges {
            node {
              __typename
              id
              title
              price
            }
          }
        }
      }
    }
  }
}`

const productsPageQuery = `query ProductsPage($first: Int!, $after: String) {
  products(first: $first, after: $after) {
    edges {
      cursor
      node {
        __typename
        id
        title
        createdAt
        variants(first: 100) {
          edges {
            node {
              __typename
              id
              title
              price
            }
          }
        }
      }
    }
    pageInfo {
      hasNextPage
      endCursor
    }
  }
}`

const ordersQuery = `{
  orders {
    edges {
      node {
        __typename
        id
        name
        createdAt
        totalPriceSet {
          shopMoney {
            amount
          }
        }
      }
    }
  }
}`

const ordersPageQuery = `query OrdersPage($first: Int!, $after: String) {
  orders(first: $first, after: $after) {
    edges {
      cursor
      node {
        __typename
        id
        name
        createdAt
        totalPriceSet {
          shopMoney {
            amount
          }
        }
      }
    }
    pageInfo {
      hasNextPage
      endCursor
    }
  }
}`

const customersQuery = `{
  customers {
    edges {
      node {
        __typename
        id
        firstName
        lastName
        email
        createdAt
      }
    }
  }
}`

const customersPageQuery = `query CustomersPage($first: Int!, $after: String) {
  customers(first: $first, after: $after) {
    edges {
      cursor
      node {
        __typename
        id
        firstName
        lastName
        email
        createdAt
      }
    }
    pageInfo {
      hasNextPage
      endCursor
    }
  }
}`

var catalog = map[Kind]Strategy{
	KindProducts: {
		Kind:      KindProducts,
		RootField: "products",
		TypeName:  "Product",
		Grouping:  GroupParentChild,
		Query:     productsQuery,
		PageQuery: productsPageQuery,
		Title: func(r record.Raw) string {
			v, _ := r.Text("title")
			return v
		},
	},
	KindOrders: {
		Kind:      KindOrders,
		RootField: "orders",
		TypeName:  "Order",
		Grouping:  GroupFlat,
		Query:     ordersQuery,
		PageQuery: ordersPageQuery,
		Title: func(r record.Raw) string {
			v, _ := r.Text("name")
			return v
		},
	},
	KindCustomers: {
		Kind:      KindCustomers,
		RootField: "customers",
		TypeName:  "Customer",
		Grouping:  GroupFlat,
		Query:     customersQuery,
		PageQuery: customersPageQuery,
		Title: func(r record.Raw) string {
			return r.Display("firstName") + " " + r.Display("lastName")
		},
	},
}

// Lookup returns the strategy for kind.
func Lookup(kind Kind) (Strategy, error) {
	s, ok := catalog[kind]
	if !ok {
		return Strategy{}, &UnsupportedKindError{Kind: string(kind)}
	}
	return s, nil
}

// QueryFor returns the export query text for kind.
func QueryFor(kind Kind) (string, error) {
	s, err := Lookup(kind)
	if err != nil {
		return "", err
	}
	return s.Query, nil
}

// PageQuery returns the cursor-paginated query text for kind.
func PageQuery(kind Kind) (string, error) {
	s, err := Lookup(kind)
	if err != nil {
		return "", err
	}
	return s.PageQuery, nil
}

// BulkMutation wraps the export query for kind in a bulk-operation mutation.
func BulkMutation(kind Kind) (string, error) {
	q, err := QueryFor(kind)
	if err != nil {
		return "", err
	}
	return bulkMutation(q), nil
}

func bulkMutation(query string) string {
	var b strings.Builder
	b.WriteString("mutation {\n  bulkOperationRunQuery(\n    query: \"\"\"\n")
	b.WriteString(query)
	b.WriteString("\n    \"\"\"\n  ) {\n")
	b.WriteString("    bulkOperation {\n      id\n      status\n      errorCode\n    }\n")
	b.WriteString("    userErrors {\n      field\n      message\n    }\n")
	b.WriteString("  }\n}\n")
	return b.String()
}

// CurrentOperationQuery reads the status of the current bulk operation.
const CurrentOperationQuery = `{
  currentBulkOperation {
    id
    status
    errorCode
    url
    objectCount
  }
}`

// Validate parses every query in the catalog and checks that each one
// selects the strategy's root field.
func Validate() error {
	for _, kind := range Kinds() {
		s := catalog[kind]
		if err := checkRootField(string(kind)+".query", s.Query, s.RootField); err != nil {
			return err
		}
		if err := checkRootField(string(kind)+".page_query", s.PageQuery, s.RootField); err != nil {
			return err
		}
		if err := checkRootField(string(kind)+".mutation", bulkMutation(s.Query), "bulkOperationRunQuery"); err != nil {
			return err
		}
	}
	return checkRootField("current_operation", CurrentOperationQuery, "currentBulkOperation")
}

func checkRootField(name, query, root string) error {
	doc, err := parser.ParseQuery(&ast.Source{Name: name, Input: query})
	if err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	if len(doc.Operations) != 1 {
		return fmt.Errorf("%s: expected one operation, got %d", name, len(doc.Operations))
	}
	sel := doc.Operations[0].SelectionSet
	if len(sel) != 1 {
		return fmt.Errorf("%s: expected one root selection, got %d", name, len(sel))
	}
	field, ok := sel[0].(*ast.Field)
	if !ok || field.Name != root {
		return fmt.Errorf("%s: root selection is not %q", name, root)
	}
	return nil
}
