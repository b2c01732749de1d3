package reconcile

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/gobulk/pkg/record"
	"github.com/3leaps/gobulk/pkg/resource"
)

func products(t *testing.T) resource.Strategy {
	t.Helper()
	st, err := resource.Lookup(resource.KindProducts)
	require.NoError(t, err)
	return st
}

func parent(id, title, created string) record.Raw {
	return record.Raw{ID: id, Fields: map[string]any{"title": title, "createdAt": created}}
}

func child(id, parentID, title, price string) record.Raw {
	return record.Raw{ID: id, ParentID: parentID, Fields: map[string]any{"title": title, "price": price}}
}

func TestReconcile_ShirtWithVariants(t *testing.T) {
	set := Reconcile([]record.Raw{
		parent("P1", "Shirt", "t0"),
		child("V1", "P1", "Small", "10"),
		child("V2", "P1", "Large", "12"),
	}, products(t))

	require.Equal(t, 1, set.Len())
	e, ok := set.Get("P1")
	require.True(t, ok)
	assert.Equal(t, "Shirt", e.Title)
	assert.Equal(t, "t0", e.CreatedAt)
	assert.False(t, e.Placeholder)
	require.Len(t, e.Children, 2)
	assert.Equal(t, "V1", e.Children[0].ID)
	assert.Equal(t, "V2", e.Children[1].ID)
}

func TestReconcile_ChildBeforeParent(t *testing.T) {
	set := Reconcile([]record.Raw{
		child("V1", "P2", "X", "5"),
		parent("P2", "Hat", "t1"),
	}, products(t))

	require.Equal(t, 1, set.Len())
	e, _ := set.Get("P2")
	assert.Equal(t, "Hat", e.Title)
	assert.Equal(t, "t1", e.CreatedAt)
	assert.False(t, e.Placeholder)
	assert.Len(t, e.Children, 1)
	assert.Zero(t, set.Placeholders())
}

func TestReconcile_OrphanChildKeepsPlaceholder(t *testing.T) {
	set := Reconcile([]record.Raw{child("V9", "P9", "X", "1")}, products(t))

	e, ok := set.Get("P9")
	require.True(t, ok)
	assert.True(t, e.Placeholder)
	assert.Equal(t, record.PlaceholderTitle, e.Title)
	assert.Empty(t, e.CreatedAt)
	assert.Equal(t, 1, set.Placeholders())
}

func TestReconcile_GlobalIDsAndForeignRecords(t *testing.T) {
	set := Reconcile([]record.Raw{
		{ID: "gid://shop/ProductVariant/5"},
		parent("gid://shop/Product/1", "Shirt", "t0"),
		child("gid://shop/ProductVariant/1", "gid://shop/Product/1", "S", "1"),
	}, products(t))

	assert.Equal(t, []string{"gid://shop/Product/1"}, set.IDs(), "variant without parent is ignored")
}

func TestReconcile_TypenameLines(t *testing.T) {
	lines := []string{
		`{"__typename":"ProductVariant","id":"gid://shop/ProductVariant/7"}`,
		`{"__typename":"ProductVariant","id":"gid://shop/ProductVariant/1","title":"S","price":"1","__parentId":"gid://shop/Product/1"}`,
		`{"__typename":"Product","id":"gid://shop/Product/1","title":"Shirt","createdAt":"t0"}`,
		`{"__typename":"Product","id":"legacy-9","title":"Hat","createdAt":"t1"}`,
		`{"__typename":"ProductVariant","id":"legacy-10","title":"M","price":"2","__parentId":"legacy-9"}`,
	}
	raws := make([]record.Raw, 0, len(lines))
	for _, l := range lines {
		r, err := record.Decode([]byte(l))
		require.NoError(t, err)
		raws = append(raws, r)
	}

	set := Reconcile(raws, products(t))

	assert.Equal(t, []string{"gid://shop/Product/1", "legacy-9"}, set.IDs())
	assert.Zero(t, set.Placeholders())

	e, _ := set.Get("gid://shop/Product/1")
	assert.Equal(t, "Shirt", e.Title)
	require.Len(t, e.Children, 1)
	assert.Equal(t, "gid://shop/ProductVariant/1", e.Children[0].ID)

	hat, _ := set.Get("legacy-9")
	assert.Equal(t, "Hat", hat.Title)
	require.Len(t, hat.Children, 1)
	assert.Equal(t, "legacy-10", hat.Children[0].ID)
}

func TestReconcile_TypenameOverridesGlobalID(t *testing.T) {
	set := Reconcile([]record.Raw{
		{ID: "gid://shop/Product/2", Fields: map[string]any{"__typename": "ProductVariant"}},
		{ID: "opaque-3", Fields: map[string]any{"__typename": "Product", "title": "Cap"}},
	}, products(t))

	assert.Equal(t, []string{"opaque-3"}, set.IDs())
}

func TestReconcile_FlatKinds(t *testing.T) {
	orders, err := resource.Lookup(resource.KindOrders)
	require.NoError(t, err)

	set := Reconcile([]record.Raw{
		{ID: "o1", Fields: map[string]any{"name": "#1001", "createdAt": "t0"}},
		{ID: "o2", Fields: map[string]any{"name": "#1002", "createdAt": "t1"}},
		{ID: "o1", Fields: map[string]any{"name": "#1001", "createdAt": "t0", "note": "dup"}},
	}, orders)

	assert.Equal(t, []string{"o1", "o2"}, set.IDs())
	e, _ := set.Get("o1")
	assert.Equal(t, "#1001", e.Title)
	assert.Equal(t, "dup", e.Fields["note"])
	assert.Empty(t, e.Children)
	assert.Zero(t, set.Children())
}

func TestReconcileKind_Unsupported(t *testing.T) {
	_, err := ReconcileKind(nil, resource.Kind("nope"))
	assert.True(t, resource.IsUnsupportedKind(err))
}

// randomStream builds parents and children over a small id space so that
// orphans, repeats and child-before-parent orderings all occur.
func randomStream(r *rand.Rand) []record.Raw {
	var out []record.Raw
	n := r.IntN(30)
	for i := 0; i < n; i++ {
		pid := fmt.Sprintf("P%d", r.IntN(8))
		if r.IntN(3) == 0 {
			out = append(out, parent(pid, "T"+pid, "c"+pid))
			continue
		}
		out = append(out, child(fmt.Sprintf("V%d", i), pid, "v", "1"))
	}
	return out
}

func distinctIDs(records []record.Raw) int {
	ids := map[string]bool{}
	for _, r := range records {
		if r.IsChild() {
			ids[r.ParentID] = true
		} else {
			ids[r.ID] = true
		}
	}
	return len(ids)
}

func TestReconcile_EntityCountEqualsDistinctIDs(t *testing.T) {
	st := products(t)
	r := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 200; i++ {
		records := randomStream(r)
		set := Reconcile(records, st)
		assert.Equal(t, distinctIDs(records), set.Len())

		attached := 0
		for _, rec := range records {
			if rec.IsChild() {
				attached++
			}
		}
		assert.Equal(t, attached, set.Children(), "every child attached exactly once")
	}
}

type summary struct {
	Title       string
	CreatedAt   string
	Placeholder bool
	Children    []string
}

func summarize(set *EntitySet) map[string]summary {
	out := map[string]summary{}
	for _, e := range set.Entities() {
		var kids []string
		for _, c := range e.Children {
			kids = append(kids, c.ID)
		}
		sort.Strings(kids)
		out[e.ID] = summary{Title: e.Title, CreatedAt: e.CreatedAt, Placeholder: e.Placeholder, Children: kids}
	}
	return out
}

func TestReconcile_OrderIndependent(t *testing.T) {
	st := products(t)
	r := rand.New(rand.NewPCG(3, 4))
	for i := 0; i < 200; i++ {
		records := randomStream(r)
		want := summarize(Reconcile(records, st))

		shuffled := append([]record.Raw(nil), records...)
		r.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		set := Reconcile(shuffled, st)
		assert.Equal(t, want, summarize(set))

		// Within one permutation, children keep arrival order.
		for _, e := range set.Entities() {
			var arrival []string
			for _, rec := range shuffled {
				if rec.ParentID == e.ID {
					arrival = append(arrival, rec.ID)
				}
			}
			var got []string
			for _, c := range e.Children {
				got = append(got, c.ID)
			}
			assert.Equal(t, arrival, got)
		}
	}
}
