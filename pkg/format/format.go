// Package format renders reconciled entities as canonical records with a
// deterministic, human-readable embedding text.
package format

import (
	"strings"

	"github.com/3leaps/gobulk/pkg/record"
	"github.com/3leaps/gobulk/pkg/resource"
)

// template renders the embedding text of one entity.
type template func(e *record.Entity) string

var templates = map[resource.Kind]template{
	resource.KindProducts:  productText,
	resource.KindOrders:    orderText,
	resource.KindCustomers: customerText,
}

// Format converts an entity of kind into a canonical record.
//
// Output depends only on the entity's content; calling Format twice on the
// same entity yields byte-identical text.
func Format(e *record.Entity, kind resource.Kind) (record.Canonical, error) {
	tmpl, ok := templates[kind]
	if !ok {
		return record.Canonical{}, &resource.UnsupportedKindError{Kind: string(kind)}
	}
	return record.Canonical{
		ID:            e.ID,
		Kind:          kind.String(),
		Title:         title(e),
		CreatedAt:     e.CreatedAt,
		EmbeddingText: tmpl(e),
	}, nil
}

// FormatAll formats entities in order.
func FormatAll(entities []*record.Entity, kind resource.Kind) ([]record.Canonical, error) {
	out := make([]record.Canonical, 0, len(entities))
	for _, e := range entities {
		c, err := Format(e, kind)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// FormatRecord formats a single flat record as its own entity.
func FormatRecord(r record.Raw, kind resource.Kind) (record.Canonical, error) {
	st, err := resource.Lookup(kind)
	if err != nil {
		return record.Canonical{}, err
	}
	e := &record.Entity{
		ID:        r.ID,
		Title:     st.Title(r),
		CreatedAt: st.CreatedAt(r),
		Fields:    r.Fields,
	}
	return Format(e, kind)
}

func title(e *record.Entity) string {
	if e.Title == "" && !e.Placeholder {
		return record.Missing
	}
	return e.Title
}

// own renders a field of the entity's own record. Placeholders render the
// defaults they were created with.
func own(e *record.Entity, fallback string, path ...string) string {
	if e.Placeholder {
		return fallback
	}
	return e.Record().Display(path...)
}

// Product: {title}. Created at: {createdAt}. Variants: {id: X, title: Y, price: Z, ...}.
func productText(e *record.Entity) string {
	var b strings.Builder
	b.WriteString("Product: ")
	b.WriteString(own(e, e.Title, "title"))
	b.WriteString(". Created at: ")
	b.WriteString(own(e, e.CreatedAt, "createdAt"))
	b.WriteString(". Variants: ")
	for i, c := range e.Children {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("id: ")
		b.WriteString(c.ID)
		b.WriteString(", title: ")
		b.WriteString(c.Display("title"))
		b.WriteString(", price: ")
		b.WriteString(c.Display("price"))
	}
	b.WriteString(".")
	return b.String()
}

// Order: {name}. Created at: {createdAt}. Total Price: {amount}.
func orderText(e *record.Entity) string {
	amount := own(e, record.Missing, "totalPriceSet", "shopMoney", "amount")
	if amount == "" {
		amount = record.Missing
	}
	return "Order: " + own(e, e.Title, "name") +
		". Created at: " + own(e, e.CreatedAt, "createdAt") +
		". Total Price: " + amount + "."
}

// Customer: {firstName} {lastName}. Email: {email}. Created at: {createdAt}.
func customerText(e *record.Entity) string {
	return "Customer: " + own(e, record.Missing, "firstName") + " " + own(e, record.Missing, "lastName") +
		". Email: " + own(e, record.Missing, "email") +
		". Created at: " + own(e, e.CreatedAt, "createdAt") + "."
}
