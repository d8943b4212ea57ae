package model

import "time"

// Delivery statuses as used by the delivery panel.
const (
	DeliveryAssigned  = "assigned"
	DeliveryAccepted  = "accepted"
	DeliveryPickedUp  = "picked_up"
	DeliveryInTransit = "in_transit"
	DeliveryDelivered = "delivered"
	DeliveryCancelled = "cancelled"
)

// DeliveryFinished reports whether a delivery in the given status has left
// the active list for good.
func DeliveryFinished(status string) bool {
	return status == DeliveryDelivered || status == DeliveryCancelled
}

// Delivery is an order assigned to a delivery partner.
type Delivery struct {
	ID           ID      `json:"delivery_id"`
	OrderNumber  string  `json:"order_number"`
	CustomerName string  `json:"customer_name,omitempty"`
	Phone        string  `json:"phone,omitempty"`
	Address      string  `json:"address,omitempty"`
	Status       string  `json:"status"`
	Amount       float64 `json:"amount"`
	AssignedAt   string  `json:"assigned_at,omitempty"`
	DeliveredAt  string  `json:"delivered_at,omitempty"`
}

// EntityID implements Entity.
func (d Delivery) EntityID() ID { return d.ID }

// Earning is a single payout line for a delivery partner.
type Earning struct {
	ID         ID      `json:"earning_id"`
	DeliveryID ID      `json:"delivery_id,omitempty"`
	Amount     float64 `json:"amount"`
	Status     string  `json:"status,omitempty"`
	EarnedAt   string  `json:"earned_at,omitempty"`
}

// EntityID implements Entity.
func (e Earning) EntityID() ID { return e.ID }

// EarningsSummary aggregates a partner's earnings over fixed windows.
type EarningsSummary struct {
	Today   float64 `json:"today"`
	Week    float64 `json:"week"`
	Month   float64 `json:"month"`
	Total   float64 `json:"total"`
	Pending float64 `json:"pending"`
}

// Pickup is a store pickup scheduled for a partner.
type Pickup struct {
	ID          ID     `json:"pickup_id"`
	OrderNumber string `json:"order_number,omitempty"`
	StoreName   string `json:"store_name,omitempty"`
	Address     string `json:"address,omitempty"`
	Status      string `json:"status"`
	ScheduledAt string `json:"scheduled_at,omitempty"`
}

// EntityID implements Entity.
func (p Pickup) EntityID() ID { return p.ID }

// Pickup statuses.
const (
	PickupPending   = "pending"
	PickupConfirmed = "confirmed"
)

// Profile is the delivery partner's own profile.
type Profile struct {
	ID            ID      `json:"partner_id"`
	Name          string  `json:"name"`
	Email         string  `json:"email,omitempty"`
	Phone         string  `json:"phone,omitempty"`
	VehicleType   string  `json:"vehicle_type,omitempty"`
	VehicleNumber string  `json:"vehicle_number,omitempty"`
	ImageURL      string  `json:"image_url,omitempty"`
	Rating        float64 `json:"rating"`
	Available     bool    `json:"available"`
}

// EntityID implements Entity.
func (p Profile) EntityID() ID { return p.ID }

// ProfileInput is the partial update payload for the partner profile.
type ProfileInput struct {
	Name          *string `json:"name,omitempty"`
	Phone         *string `json:"phone,omitempty"`
	VehicleType   *string `json:"vehicle_type,omitempty"`
	VehicleNumber *string `json:"vehicle_number,omitempty"`
	Available     *bool   `json:"available,omitempty"`
}

// DashboardStats are the headline numbers of the delivery panel.
type DashboardStats struct {
	ActiveDeliveries int     `json:"active_deliveries"`
	CompletedToday   int     `json:"completed_today"`
	EarningsToday    float64 `json:"earnings_today"`
	Rating           float64 `json:"rating"`
	PendingPickups   int     `json:"pending_pickups"`
}

// Statement is a downloaded earnings statement.
type Statement struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"-"`
}

// Bool returns a pointer to b, for building payloads inline.
func Bool(b bool) *bool { return &b }

// Float returns a pointer to f, for building payloads inline.
func Float(f float64) *float64 { return &f }

// StatementFilename names a statement download after its date range:
// statement_<from>_<to>.csv.
func StatementFilename(from, to time.Time) string {
	return "statement_" + from.Format(DateLayout) + "_" + to.Format(DateLayout) + ".csv"
}
