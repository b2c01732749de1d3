package record

import (
	"fmt"
	"sort"
	"strings"
)

// PlaceholderTitle is the title given to an entity that has only been seen
// through a child's back-reference.
const PlaceholderTitle = "Unknown"

// Entity is a top-level record together with the children grouped under it.
type Entity struct {
	ID        string
	Title     string
	CreatedAt string

	// Fields are the entity's own fields (empty for a placeholder).
	Fields map[string]any

	// Children are attached in arrival order.
	Children []Raw

	// Placeholder is true until the parent record itself has been seen.
	Placeholder bool
}

// NewPlaceholder creates the stand-in entity for a parent referenced before it arrived.
func NewPlaceholder(id string) *Entity {
	return &Entity{
		ID:          id,
		Title:       PlaceholderTitle,
		CreatedAt:   "",
		Placeholder: true,
	}
}

// Record returns the entity's own fields as a Raw record.
func (e *Entity) Record() Raw {
	return Raw{ID: e.ID, Fields: e.Fields}
}

// Canonical is the flattened, embedding-ready representation of an entity.
type Canonical struct {
	ID            string `json:"id"`
	Kind          string `json:"kind"`
	Title         string `json:"title"`
	CreatedAt     string `json:"created_at"`
	EmbeddingText string `json:"embedding_text"`
}

// Page is one page of a cursor-paginated query.
type Page struct {
	// Cursor is the page's end cursor.
	Cursor string

	// Items are the top-level nodes of the page, in upstream order.
	Items []Raw

	// Children are nested connection nodes flattened out of Items,
	// each carrying its parent's id as ParentID.
	Children []Raw

	// HasNext reports whether upstream claims more pages exist.
	HasNext bool
}

// GlobalIDType extracts the type segment of a global id such as
// gid://shop/Product/123. It returns "" for ids of any other shape.
func GlobalIDType(id string) string {
	rest, ok := strings.CutPrefix(id, "gid://")
	if !ok {
		return ""
	}
	parts := strings.Split(rest, "/")
	if len(parts) < 3 || parts[1] == "" {
		return ""
	}
	return parts[1]
}

// FromNode converts a nested query node into the flat shape an export stream
// uses: the node itself plus one child record per node of every nested
// connection ({"edges":[{"node":{...}}]} or {"nodes":[...]}).
func FromNode(node map[string]any) (Raw, []Raw, error) {
	parent, err := FromMap(node)
	if err != nil {
		return Raw{}, nil, err
	}

	// Sorted for a stable child order when a node has several connections.
	keys := make([]string, 0, len(parent.Fields))
	for k := range parent.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var children []Raw
	for _, key := range keys {
		nodes, ok := connectionNodes(parent.Fields[key])
		if !ok {
			continue
		}
		delete(parent.Fields, key)
		for i, n := range nodes {
			child, err := FromMap(n)
			if err != nil {
				return Raw{}, nil, fmt.Errorf("%s[%d] of %s: %w", key, i, parent.ID, err)
			}
			child.ParentID = parent.ID
			children = append(children, child)
		}
	}

	return parent, children, nil
}

func connectionNodes(v any) ([]map[string]any, bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}

	if edges, ok := obj["edges"].([]any); ok {
		out := make([]map[string]any, 0, len(edges))
		for _, e := range edges {
			edge, ok := e.(map[string]any)
			if !ok {
				return nil, false
			}
			n, ok := edge["node"].(map[string]any)
			if !ok {
				return nil, false
			}
			out = append(out, n)
		}
		return out, true
	}

	if nodes, ok := obj["nodes"].([]any); ok {
		out := make([]map[string]any, 0, len(nodes))
		for _, n := range nodes {
			m, ok := n.(map[string]any)
			if !ok {
				return nil, false
			}
			out = append(out, m)
		}
		return out, true
	}

	return nil, false
}
