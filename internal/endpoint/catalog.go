package endpoint

import (
	"context"
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/pitabwire/opsdesk/model"
)

// Attributes returns the attribute wrappers.
func (a *API) Attributes() *Resource[model.Attribute, model.AttributeInput] { return a.attributes }

// Brands returns the brand wrappers.
func (a *API) Brands() *Resource[model.Brand, model.BrandInput] { return a.brands }

// Offers returns the offer wrappers.
func (a *API) Offers() *Resource[model.Offer, model.OfferInput] { return a.offers }

// --- Attributes ---

func (a *API) ListAttributes(ctx context.Context, f model.Filter) model.Envelope[[]model.Attribute] {
	return a.attributes.List(ctx, f)
}

func (a *API) GetAttribute(ctx context.Context, id model.ID) model.Envelope[model.Attribute] {
	return a.attributes.Get(ctx, id)
}

func (a *API) CreateAttribute(ctx context.Context, in model.AttributeInput) model.Envelope[model.Attribute] {
	return a.attributes.Create(ctx, in)
}

func (a *API) UpdateAttribute(ctx context.Context, id model.ID, in model.AttributeInput) model.Envelope[model.Attribute] {
	return a.attributes.Update(ctx, id, in)
}

func (a *API) DeleteAttribute(ctx context.Context, id model.ID) model.Envelope[model.ID] {
	return a.attributes.Delete(ctx, id)
}

// --- Brands ---

func (a *API) ListBrands(ctx context.Context, f model.Filter) model.Envelope[[]model.Brand] {
	return a.brands.List(ctx, f)
}

func (a *API) GetBrand(ctx context.Context, id model.ID) model.Envelope[model.Brand] {
	return a.brands.Get(ctx, id)
}

func (a *API) CreateBrand(ctx context.Context, in model.BrandInput) model.Envelope[model.Brand] {
	return a.brands.Create(ctx, in)
}

func (a *API) UpdateBrand(ctx context.Context, id model.ID, in model.BrandInput) model.Envelope[model.Brand] {
	return a.brands.Update(ctx, id, in)
}

func (a *API) DeleteBrand(ctx context.Context, id model.ID) model.Envelope[model.ID] {
	return a.brands.Delete(ctx, id)
}

// --- Offers ---

func (a *API) ListOffers(ctx context.Context, f model.Filter) model.Envelope[[]model.Offer] {
	return a.offers.List(ctx, f)
}

func (a *API) GetOffer(ctx context.Context, id model.ID) model.Envelope[model.Offer] {
	return a.offers.Get(ctx, id)
}

func (a *API) CreateOffer(ctx context.Context, in model.OfferInput) model.Envelope[model.Offer] {
	return a.offers.Create(ctx, in)
}

func (a *API) UpdateOffer(ctx context.Context, id model.ID, in model.OfferInput) model.Envelope[model.Offer] {
	return a.offers.Update(ctx, id, in)
}

func (a *API) DeleteOffer(ctx context.Context, id model.ID) model.Envelope[model.ID] {
	return a.offers.Delete(ctx, id)
}

// ToggleOffer switches an offer on or off.
func (a *API) ToggleOffer(ctx context.Context, id model.ID, active bool) model.Envelope[model.Offer] {
	status := model.OfferStatusInactive
	if active {
		status = model.OfferStatusActive
	}
	return call(ctx, a, operation{
		name:    "offers.toggle",
		method:  http.MethodPatch,
		id:      id,
		path:    a.offers.itemPath(id) + "/status",
		body:    map[string]string{"status": status},
		success: "Offer " + status,
		failure: "Failed to update offer status",
	}, model.Offer{}, func(r gjson.Result) model.Offer {
		o := decodeOffer(r)
		if o.ID.IsZero() {
			o.ID = id
		}
		if o.Status == "" {
			o.Status = status
		}
		return o
	})
}
