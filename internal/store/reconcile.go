package store

import (
	"reflect"

	"github.com/pitabwire/opsdesk/model"
)

// indexOf returns the position of the entity with id, or -1. Identifiers are
// canonical model.IDs, so "5" from a route and 5 from the server compare
// equal.
func indexOf[E model.Entity](items []E, id model.ID) int {
	id = model.ParseID(id)
	for i, it := range items {
		if it.EntityID() == id {
			return i
		}
	}
	return -1
}

// upsert replaces every entity with e's id by e, keeping the first position,
// or appends e when none matches. The result never holds duplicates of e's id.
func upsert[E model.Entity](items []E, e E) []E {
	id := e.EntityID()
	out := make([]E, 0, len(items)+1)
	placed := false
	for _, it := range items {
		if it.EntityID() != id {
			out = append(out, it)
			continue
		}
		if !placed {
			out = append(out, e)
			placed = true
		}
	}
	if !placed {
		out = append(out, e)
	}
	return out
}

// patch overlays e onto the entity with the same id. It reports false when
// no entity matches.
func patch[E model.Entity](items []E, e E) ([]E, bool) {
	i := indexOf(items, e.EntityID())
	if i < 0 {
		return items, false
	}
	out := make([]E, len(items))
	copy(out, items)
	out[i] = overlay(out[i], e)
	return out, true
}

// replaceID swaps the entity with e's id for e. It reports false when no
// entity matches.
func replaceID[E model.Entity](items []E, e E) ([]E, bool) {
	i := indexOf(items, e.EntityID())
	if i < 0 {
		return items, false
	}
	out := clone(items)
	out[i] = e
	return out, true
}

// removeID drops every entity with id.
func removeID[E model.Entity](items []E, id model.ID) []E {
	id = model.ParseID(id)
	out := make([]E, 0, len(items))
	for _, it := range items {
		if it.EntityID() != id {
			out = append(out, it)
		}
	}
	return out
}

// overlay is a shallow merge: every non-zero field of upd replaces the field
// of base. It is only used for acknowledgements that carry nothing but an id
// and the changed status, where a zero field means "not sent".
func overlay[E any](base, upd E) E {
	bv := reflect.ValueOf(&base).Elem()
	uv := reflect.ValueOf(upd)
	if bv.Kind() != reflect.Struct {
		return upd
	}
	for i := 0; i < uv.NumField(); i++ {
		f := uv.Field(i)
		if f.IsZero() || !bv.Field(i).CanSet() {
			continue
		}
		bv.Field(i).Set(f)
	}
	return base
}
