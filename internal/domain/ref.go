package domain

import "strings"

const (
	CollectionProducts  = "products"
	CollectionOrders    = "orders"
	CollectionUsers     = "users"
	CollectionSuppliers = "suppliers"
)

// Ref points at an entity in a collection.
type Ref struct {
	Collection string
	ID         string
}

// ParseRef normalizes raw into a Ref in collection. It accepts a bare id,
// "collection/id" and "/collection/id". A path naming another collection
// yields an empty Ref.
func ParseRef(collection, raw string) Ref {
	raw = strings.Trim(strings.TrimSpace(raw), "/")
	if raw == "" {
		return Ref{Collection: collection}
	}
	if i := strings.LastIndex(raw, "/"); i >= 0 {
		prefix := raw[:i]
		if j := strings.LastIndex(prefix, "/"); j >= 0 {
			prefix = prefix[j+1:]
		}
		if prefix != collection {
			return Ref{Collection: collection}
		}
		raw = raw[i+1:]
	}
	return Ref{Collection: collection, ID: raw}
}

// NewRef builds a Ref without normalization.
func NewRef(collection, id string) Ref {
	return Ref{Collection: collection, ID: id}
}

// IsZero reports whether the reference has no id.
func (r Ref) IsZero() bool {
	return r.ID == ""
}

func (r Ref) String() string {
	return r.Collection + "/" + r.ID
}
