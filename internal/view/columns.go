package view

import (
	"strconv"
	"strings"

	"github.com/pitabwire/opsdesk/model"
)

func money(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }

// AttributeColumns is the default attribute table.
var AttributeColumns = []Column[model.Attribute]{
	{"ID", func(a model.Attribute) string { return a.ID.String() }},
	{"NAME", func(a model.Attribute) string { return a.Name }},
	{"TYPE", func(a model.Attribute) string { return a.Type }},
	{"VALUES", func(a model.Attribute) string { return strings.Join(a.Values, ", ") }},
	{"STATUS", func(a model.Attribute) string { return a.Status }},
}

// BrandColumns is the default brand table.
var BrandColumns = []Column[model.Brand]{
	{"ID", func(b model.Brand) string { return b.ID.String() }},
	{"NAME", func(b model.Brand) string { return b.Name }},
	{"STATUS", func(b model.Brand) string { return b.Status }},
	{"DESCRIPTION", func(b model.Brand) string { return b.Description }},
}

// OfferColumns is the default offer table.
var OfferColumns = []Column[model.Offer]{
	{"ID", func(o model.Offer) string { return o.ID.String() }},
	{"TITLE", func(o model.Offer) string { return o.Title }},
	{"DISCOUNT", func(o model.Offer) string {
		if o.DiscountType == "percentage" {
			return strconv.FormatFloat(o.DiscountValue, 'f', -1, 64) + "%"
		}
		return money(o.DiscountValue)
	}},
	{"VALID", func(o model.Offer) string {
		if o.StartDate == "" && o.EndDate == "" {
			return ""
		}
		return o.StartDate + " .. " + o.EndDate
	}},
	{"STATUS", func(o model.Offer) string { return o.Status }},
}

var deliveryColumns = []Column[model.Delivery]{
	{"ID", func(d model.Delivery) string { return d.ID.String() }},
	{"ORDER", func(d model.Delivery) string { return d.OrderNumber }},
	{"CUSTOMER", func(d model.Delivery) string { return d.CustomerName }},
	{"ADDRESS", func(d model.Delivery) string { return d.Address }},
	{"STATUS", func(d model.Delivery) string { return d.Status }},
	{"AMOUNT", func(d model.Delivery) string { return money(d.Amount) }},
}

var earningColumns = []Column[model.Earning]{
	{"ID", func(e model.Earning) string { return e.ID.String() }},
	{"DELIVERY", func(e model.Earning) string { return e.DeliveryID.String() }},
	{"AMOUNT", func(e model.Earning) string { return money(e.Amount) }},
	{"STATUS", func(e model.Earning) string { return e.Status }},
	{"DATE", func(e model.Earning) string { return e.EarnedAt }},
}

var pickupColumns = []Column[model.Pickup]{
	{"ID", func(p model.Pickup) string { return p.ID.String() }},
	{"ORDER", func(p model.Pickup) string { return p.OrderNumber }},
	{"STORE", func(p model.Pickup) string { return p.StoreName }},
	{"STATUS", func(p model.Pickup) string { return p.Status }},
	{"SCHEDULED", func(p model.Pickup) string { return p.ScheduledAt }},
}
