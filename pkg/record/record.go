// Package record defines the data model that flows through an extraction:
// raw records decoded from the upstream export, reconciled entities, and the
// canonical records handed to downstream indexing.
package record

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Reserved field names in upstream export lines.
const (
	// FieldID carries the record's own identifier.
	FieldID = "id"

	// FieldParentID is the back-reference a child line carries to its parent.
	FieldParentID = "__parentId"

	// FieldTypeName is the optional GraphQL type discriminator.
	FieldTypeName = "__typename"
)

// Missing is rendered wherever a field is absent from a record.
const Missing = "N/A"

// Decode errors.
var (
	// ErrNotObject indicates a line that is not a JSON object.
	ErrNotObject = errors.New("record is not a JSON object")

	// ErrMissingID indicates a record without a string id.
	ErrMissingID = errors.New("record has no string id")
)

// Raw is a single record decoded from the upstream export.
//
// Fields holds every field except the id and the parent back-reference.
// Ordering of Raw records in a stream says nothing about parent/child order.
type Raw struct {
	ID       string         `json:"id"`
	ParentID string         `json:"parent_id,omitempty"`
	Fields   map[string]any `json:"fields,omitempty"`
}

// Decode parses one export line into a Raw record.
//
// Numbers are kept as json.Number so that values such as prices render
// exactly as the upstream wrote them.
func Decode(line []byte) (Raw, error) {
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()

	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return Raw{}, fmt.Errorf("decode record: %w", err)
	}
	if fields == nil {
		return Raw{}, ErrNotObject
	}
	if dec.More() {
		return Raw{}, errors.New("decode record: trailing data after object")
	}
	return FromMap(fields)
}

// FromMap builds a Raw record from an already decoded object.
//
// The map is consumed: id and parent keys are removed from it.
func FromMap(fields map[string]any) (Raw, error) {
	id, ok := fields[FieldID].(string)
	if !ok || id == "" {
		return Raw{}, ErrMissingID
	}
	delete(fields, FieldID)

	var parentID string
	if v, present := fields[FieldParentID]; present {
		s, ok := v.(string)
		if !ok {
			return Raw{}, fmt.Errorf("record %s: %s is not a string", id, FieldParentID)
		}
		parentID = s
		delete(fields, FieldParentID)
	}

	return Raw{ID: id, ParentID: parentID, Fields: fields}, nil
}

// IsChild reports whether the record carries a parent back-reference.
func (r Raw) IsChild() bool {
	return r.ParentID != ""
}

// Lookup walks nested objects following path.
func (r Raw) Lookup(path ...string) (any, bool) {
	if len(path) == 0 {
		return nil, false
	}
	if len(path) == 1 && path[0] == FieldID {
		return r.ID, true
	}

	var cur any = r.Fields
	for _, key := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Text returns the scalar at path rendered as text.
//
// The boolean is false when the path is absent, null, or not a scalar.
func (r Raw) Text(path ...string) (string, bool) {
	v, ok := r.Lookup(path...)
	if !ok {
		return "", false
	}
	return scalarText(v)
}

// Display returns Text or Missing when the value is absent.
func (r Raw) Display(path ...string) string {
	if s, ok := r.Text(path...); ok {
		return s
	}
	return Missing
}

// TypeName returns the record's GraphQL type.
//
// An explicit __typename wins; otherwise the type segment of a global id
// (gid://<namespace>/<Type>/<id>) is used. Empty when neither is available.
func (r Raw) TypeName() string {
	if s, ok := r.Fields[FieldTypeName].(string); ok && s != "" {
		return s
	}
	return GlobalIDType(r.ID)
}

func scalarText(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case bool:
		return strconv.FormatBool(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	default:
		return "", false
	}
}
