package endpoint

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/pitabwire/opsdesk/model"
)

// The backend is not consistent about field names. Each decoder below maps
// every known spelling of a field into one typed record, so nothing past this
// package needs to look at raw payloads.

// first returns the first of paths that exists in r.
func first(r gjson.Result, paths ...string) gjson.Result {
	for _, p := range paths {
		if v := r.Get(p); v.Exists() && v.Type != gjson.Null {
			return v
		}
	}
	return gjson.Result{}
}

// idOf reads an identifier, keeping integer precision.
func idOf(r gjson.Result, paths ...string) model.ID {
	v := first(r, paths...)
	switch v.Type {
	case gjson.Number:
		return model.ParseID(json.Number(v.Raw))
	case gjson.String:
		return model.ParseID(v.String())
	default:
		return ""
	}
}

// items returns the elements of a list payload. Lists arrive either bare or
// wrapped in an object under one of keys.
func items(r gjson.Result, keys ...string) []gjson.Result {
	if r.IsArray() {
		return r.Array()
	}
	if r.IsObject() {
		candidates := append([]string{}, keys...)
		for _, k := range append(candidates, "items", "results", "data") {
			if v := r.Get(k); v.IsArray() {
				return v.Array()
			}
		}
	}
	return nil
}

func decodeList[E any](decode func(gjson.Result) E, keys ...string) func(gjson.Result) []E {
	return func(r gjson.Result) []E {
		elems := items(r, keys...)
		out := make([]E, 0, len(elems))
		for _, e := range elems {
			out = append(out, decode(e))
		}
		return out
	}
}

// stringsOf reads a list of strings given either as an array or as a comma
// separated string.
func stringsOf(v gjson.Result) []string {
	if v.IsArray() {
		var out []string
		for _, e := range v.Array() {
			if s := strings.TrimSpace(e.String()); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	if v.Type == gjson.String {
		var out []string
		for _, s := range strings.Split(v.String(), ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// statusOf reads a status string, falling back to a boolean active flag.
func statusOf(r gjson.Result, active, inactive string) string {
	if s := first(r, "status").String(); s != "" {
		return strings.ToLower(s)
	}
	if flag := first(r, "is_active", "active"); flag.Exists() {
		if flag.Bool() {
			return active
		}
		return inactive
	}
	return ""
}

func decodeAttribute(r gjson.Result) model.Attribute {
	return model.Attribute{
		ID:     idOf(r, "attribute_id", "id"),
		Name:   first(r, "attribute_name", "name").String(),
		Type:   first(r, "attribute_type", "type").String(),
		Values: stringsOf(first(r, "values", "attribute_values", "options")),
		Status: statusOf(r, "active", "inactive"),
	}
}

func decodeBrand(r gjson.Result) model.Brand {
	return model.Brand{
		ID:          idOf(r, "brand_id", "id"),
		Name:        first(r, "brand_name", "name").String(),
		Description: first(r, "description", "brand_description").String(),
		LogoURL:     first(r, "logo_url", "logo", "image_url").String(),
		Status:      statusOf(r, "active", "inactive"),
	}
}

func decodeOffer(r gjson.Result) model.Offer {
	return model.Offer{
		ID:            idOf(r, "offer_id", "id"),
		Title:         first(r, "title", "offer_name", "name").String(),
		Description:   first(r, "description").String(),
		DiscountType:  first(r, "discount_type").String(),
		DiscountValue: first(r, "discount_value", "discount").Float(),
		StartDate:     first(r, "start_date", "valid_from").String(),
		EndDate:       first(r, "end_date", "valid_to", "valid_until").String(),
		Status:        statusOf(r, model.OfferStatusActive, model.OfferStatusInactive),
	}
}

func decodeDelivery(r gjson.Result) model.Delivery {
	return model.Delivery{
		ID:           idOf(r, "delivery_id", "id"),
		OrderNumber:  first(r, "order_number", "order_id", "delivery_id").String(),
		CustomerName: first(r, "customer_name", "customer.name").String(),
		Phone:        first(r, "customer_phone", "phone", "customer.phone").String(),
		Address:      first(r, "delivery_address", "address", "customer.address").String(),
		Status:       strings.ToLower(first(r, "status", "delivery_status").String()),
		Amount:       first(r, "amount", "order_amount", "total_amount").Float(),
		AssignedAt:   first(r, "assigned_at", "created_at").String(),
		DeliveredAt:  first(r, "delivered_at", "completed_at").String(),
	}
}

func decodeEarning(r gjson.Result) model.Earning {
	return model.Earning{
		ID:         idOf(r, "earning_id", "id"),
		DeliveryID: idOf(r, "delivery_id", "order_id"),
		Amount:     first(r, "amount", "earning_amount").Float(),
		Status:     strings.ToLower(first(r, "status", "payment_status").String()),
		EarnedAt:   first(r, "earned_at", "created_at", "date").String(),
	}
}

func decodeEarningsSummary(r gjson.Result) model.EarningsSummary {
	return model.EarningsSummary{
		Today:   first(r, "today", "today_earnings").Float(),
		Week:    first(r, "week", "weekly_earnings", "this_week").Float(),
		Month:   first(r, "month", "monthly_earnings", "this_month").Float(),
		Total:   first(r, "total", "total_earnings").Float(),
		Pending: first(r, "pending", "pending_amount", "pending_earnings").Float(),
	}
}

func decodePickup(r gjson.Result) model.Pickup {
	return model.Pickup{
		ID:          idOf(r, "pickup_id", "id"),
		OrderNumber: first(r, "order_number", "order_id").String(),
		StoreName:   first(r, "store_name", "vendor_name", "store.name").String(),
		Address:     first(r, "pickup_address", "address", "store.address").String(),
		Status:      strings.ToLower(first(r, "status", "pickup_status").String()),
		ScheduledAt: first(r, "scheduled_at", "pickup_time").String(),
	}
}

func decodeProfile(r gjson.Result) model.Profile {
	return model.Profile{
		ID:            idOf(r, "partner_id", "delivery_partner_id", "id"),
		Name:          first(r, "name", "full_name").String(),
		Email:         first(r, "email").String(),
		Phone:         first(r, "phone", "phone_number").String(),
		VehicleType:   first(r, "vehicle_type").String(),
		VehicleNumber: first(r, "vehicle_number").String(),
		ImageURL:      first(r, "image_url", "profile_image", "url").String(),
		Rating:        first(r, "rating", "average_rating").Float(),
		Available:     first(r, "available", "is_available").Bool(),
	}
}

func decodeDashboard(r gjson.Result) model.DashboardStats {
	return model.DashboardStats{
		ActiveDeliveries: int(first(r, "active_deliveries", "active_count").Int()),
		CompletedToday:   int(first(r, "completed_today", "today_completed").Int()),
		EarningsToday:    first(r, "earnings_today", "today_earnings").Float(),
		Rating:           first(r, "rating", "average_rating").Float(),
		PendingPickups:   int(first(r, "pending_pickups", "pickups_pending").Int()),
	}
}
