package endpoint

import (
	"context"
	"net/http"
	"net/url"

	"github.com/tidwall/gjson"

	"github.com/pitabwire/opsdesk/model"
)

// Resource is the CRUD wrapper set of one catalog collection (attributes,
// brands, offers). It satisfies store.Resource.
type Resource[E model.Entity, In any] struct {
	api      *API
	singular string
	plural   string
	path     string
	decode   func(gjson.Result) E
}

func newResource[E model.Entity, In any](api *API, singular, plural string, decode func(gjson.Result) E) *Resource[E, In] {
	return &Resource[E, In]{
		api:      api,
		singular: singular,
		plural:   plural,
		path:     "/" + plural,
		decode:   decode,
	}
}

// Name returns the collection name, e.g. "brands".
func (r *Resource[E, In]) Name() string { return r.plural }

func (r *Resource[E, In]) itemPath(id model.ID) string {
	return r.path + "/" + url.PathEscape(id.String())
}

// List fetches the collection. Failures carry an empty list.
func (r *Resource[E, In]) List(ctx context.Context, f model.Filter) model.Envelope[[]E] {
	return call(ctx, r.api, operation{
		name:    r.plural + ".list",
		method:  http.MethodGet,
		path:    r.path,
		query:   f.Values(),
		success: "Fetched " + r.plural,
		failure: "Failed to fetch " + r.plural,
	}, []E{}, decodeList(r.decode, r.plural))
}

// Get fetches one entity.
func (r *Resource[E, In]) Get(ctx context.Context, id model.ID) model.Envelope[E] {
	var zero E
	return call(ctx, r.api, operation{
		name:    r.plural + ".get",
		method:  http.MethodGet,
		id:      id,
		path:    r.itemPath(id),
		success: "Fetched " + r.singular,
		failure: "Failed to fetch " + r.singular,
	}, zero, r.decode)
}

// Create creates an entity and returns it as the server stored it.
func (r *Resource[E, In]) Create(ctx context.Context, in In) model.Envelope[E] {
	var zero E
	return call(ctx, r.api, operation{
		name:    r.plural + ".create",
		method:  http.MethodPost,
		path:    r.path,
		body:    in,
		success: "Created " + r.singular,
		failure: "Failed to create " + r.singular,
	}, zero, r.decode)
}

// Update sends a partial or full update. Data is the zero entity when the
// server does not echo the updated record.
func (r *Resource[E, In]) Update(ctx context.Context, id model.ID, in In) model.Envelope[E] {
	var zero E
	return call(ctx, r.api, operation{
		name:    r.plural + ".update",
		method:  http.MethodPut,
		id:      id,
		path:    r.itemPath(id),
		body:    in,
		success: "Updated " + r.singular,
		failure: "Failed to update " + r.singular,
	}, zero, r.decode)
}

// Delete removes an entity. On success Data echoes the deleted id.
func (r *Resource[E, In]) Delete(ctx context.Context, id model.ID) model.Envelope[model.ID] {
	return call(ctx, r.api, operation{
		name:    r.plural + ".delete",
		method:  http.MethodDelete,
		id:      id,
		path:    r.itemPath(id),
		success: "Deleted " + r.singular,
		failure: "Failed to delete " + r.singular,
	}, "", func(gjson.Result) model.ID { return id })
}
