package store

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pitabwire/opsdesk/model"
)

func TestIndexOf_normalisesIDs(t *testing.T) {
	items := []model.Brand{{ID: "7"}, {ID: "8"}}
	assert.Equal(t, 0, indexOf(items, "007"))
	assert.Equal(t, 1, indexOf(items, model.ParseID(8.0)))
	assert.Equal(t, -1, indexOf(items, "9"))
}

func TestUpsert_collapsesDuplicates(t *testing.T) {
	items := []model.Brand{{ID: "1", Name: "a"}, {ID: "2"}, {ID: "1", Name: "dup"}}
	got := upsert(items, model.Brand{ID: "1", Name: "new"})
	assert.Equal(t, []model.Brand{{ID: "1", Name: "new"}, {ID: "2"}}, got)

	got = upsert(got, model.Brand{ID: "3"})
	assert.Len(t, got, 3)
	assert.Equal(t, model.ID("3"), got[2].ID)
}

func TestPatch_overlaysMatching(t *testing.T) {
	items := []model.Offer{{ID: "1", Title: "Flash", DiscountValue: 5, Status: "active"}}
	got, ok := patch(items, model.Offer{ID: "1", Status: "inactive"})
	assert.True(t, ok)
	assert.Equal(t, model.Offer{ID: "1", Title: "Flash", DiscountValue: 5, Status: "inactive"}, got[0])
	assert.Equal(t, "active", items[0].Status)

	_, ok = patch(items, model.Offer{ID: "2"})
	assert.False(t, ok)
}

func TestReplaceID(t *testing.T) {
	items := []model.Brand{{ID: "1", Name: "Acme", Description: "old"}, {ID: "2"}}
	got, ok := replaceID(items, model.Brand{ID: "1", Name: "Acme"})
	assert.True(t, ok)
	assert.Equal(t, []model.Brand{{ID: "1", Name: "Acme"}, {ID: "2"}}, got)
	assert.Equal(t, "old", items[0].Description)

	_, ok = replaceID(items, model.Brand{ID: "3"})
	assert.False(t, ok)
}

func TestRemoveID(t *testing.T) {
	items := []model.Brand{{ID: "1"}, {ID: "2"}}
	assert.Equal(t, []model.Brand{{ID: "2"}}, removeID(items, "1"))
	assert.Equal(t, items, removeID(items, "5"))
}

func TestOverlay_zeroFieldsKeepBase(t *testing.T) {
	base := model.Attribute{ID: "1", Name: "Color", Values: []string{"red"}}
	got := overlay(base, model.Attribute{Values: []string{"red", "blue"}})
	assert.Equal(t, model.Attribute{ID: "1", Name: "Color", Values: []string{"red", "blue"}}, got)

	assert.Equal(t, 5, overlay(3, 5))
}
