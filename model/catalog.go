package model

// Attribute is a product attribute (colour, size, ...) managed from the
// admin dashboard.
type Attribute struct {
	ID     ID       `json:"attribute_id"`
	Name   string   `json:"attribute_name"`
	Type   string   `json:"attribute_type,omitempty"`
	Values []string `json:"values,omitempty"`
	Status string   `json:"status,omitempty"`
}

// EntityID implements Entity.
func (a Attribute) EntityID() ID { return a.ID }

// AttributeInput is the create/update payload for an attribute. Unset fields
// are omitted so that updates can be partial.
type AttributeInput struct {
	Name   *string  `json:"attribute_name,omitempty"`
	Type   *string  `json:"attribute_type,omitempty"`
	Values []string `json:"values,omitempty"`
	Status *string  `json:"status,omitempty"`
}

// Brand is a product brand.
type Brand struct {
	ID          ID     `json:"brand_id"`
	Name        string `json:"brand_name"`
	Description string `json:"description,omitempty"`
	LogoURL     string `json:"logo_url,omitempty"`
	Status      string `json:"status,omitempty"`
}

// EntityID implements Entity.
func (b Brand) EntityID() ID { return b.ID }

// BrandInput is the create/update payload for a brand.
type BrandInput struct {
	Name        *string `json:"brand_name,omitempty"`
	Description *string `json:"description,omitempty"`
	LogoURL     *string `json:"logo_url,omitempty"`
	Status      *string `json:"status,omitempty"`
}

// Offer is a promotional offer.
type Offer struct {
	ID            ID      `json:"offer_id"`
	Title         string  `json:"title"`
	Description   string  `json:"description,omitempty"`
	DiscountType  string  `json:"discount_type,omitempty"`
	DiscountValue float64 `json:"discount_value"`
	StartDate     string  `json:"start_date,omitempty"`
	EndDate       string  `json:"end_date,omitempty"`
	Status        string  `json:"status,omitempty"`
}

// EntityID implements Entity.
func (o Offer) EntityID() ID { return o.ID }

// Active reports whether the offer is currently switched on.
func (o Offer) Active() bool { return o.Status == OfferStatusActive }

// Offer statuses.
const (
	OfferStatusActive   = "active"
	OfferStatusInactive = "inactive"
)

// OfferInput is the create/update payload for an offer.
type OfferInput struct {
	Title         *string  `json:"title,omitempty"`
	Description   *string  `json:"description,omitempty"`
	DiscountType  *string  `json:"discount_type,omitempty"`
	DiscountValue *float64 `json:"discount_value,omitempty"`
	StartDate     *string  `json:"start_date,omitempty"`
	EndDate       *string  `json:"end_date,omitempty"`
	Status        *string  `json:"status,omitempty"`
}
