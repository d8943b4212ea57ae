package store

import (
	"context"

	"github.com/pitabwire/opsdesk/internal/endpoint"
	"github.com/pitabwire/opsdesk/model"
)

// Catalog stores of the admin dashboard.
type (
	AttributeStore = Collection[model.Attribute, model.AttributeInput]
	BrandStore     = Collection[model.Brand, model.BrandInput]
)

// NewAttributeStore creates the attribute store. Creates reload the list,
// since the server assigns attribute values on create.
func NewAttributeStore(api *endpoint.API, opts ...Option) *AttributeStore {
	return NewCollection[model.Attribute, model.AttributeInput](api.Attributes(), append([]Option{WithCreatePolicy(Refetch)}, opts...)...)
}

// NewBrandStore creates the brand store.
func NewBrandStore(api *endpoint.API, opts ...Option) *BrandStore {
	return NewCollection[model.Brand, model.BrandInput](api.Brands(), append([]Option{WithCreatePolicy(Append)}, opts...)...)
}

// OfferToggler switches offers on and off. *endpoint.API implements it.
type OfferToggler interface {
	ToggleOffer(ctx context.Context, id model.ID, active bool) model.Envelope[model.Offer]
}

// OfferStore is the offer collection plus the status toggle.
type OfferStore struct {
	*Collection[model.Offer, model.OfferInput]
	toggler OfferToggler
}

// NewOfferStore creates the offer store.
func NewOfferStore(api *endpoint.API, opts ...Option) *OfferStore {
	return newOfferStore(api.Offers(), api, opts...)
}

func newOfferStore(res Resource[model.Offer, model.OfferInput], toggler OfferToggler, opts ...Option) *OfferStore {
	return &OfferStore{
		Collection: NewCollection[model.Offer, model.OfferInput](res, append([]Option{WithCreatePolicy(Append)}, opts...)...),
		toggler:    toggler,
	}
}

// Toggle switches an offer on or off. An echoed offer replaces the local
// copy; a bare acknowledgement only updates its status.
func (s *OfferStore) Toggle(ctx context.Context, id model.ID, active bool) model.Result {
	return s.run(ctx, "toggle", func(ctx context.Context) model.Result {
		env := s.toggler.ToggleOffer(ctx, id, active)
		if !env.Success {
			return env.Result()
		}
		ack := model.Offer{ID: env.Data.ID, Status: env.Data.Status}
		if !s.reconcile(env.Data, env.Data == ack) {
			return s.closedResult()
		}
		return env.Result()
	})
}
