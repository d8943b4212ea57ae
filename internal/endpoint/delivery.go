package endpoint

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/tidwall/gjson"

	"github.com/pitabwire/opsdesk/internal/transport"
	"github.com/pitabwire/opsdesk/model"
)

const panelPrefix = "/delivery_panel"

func deliveryPath(id model.ID) string {
	return panelPrefix + "/deliveries/" + url.PathEscape(id.String())
}

// GetDashboard fetches the headline stats of the delivery panel.
func (a *API) GetDashboard(ctx context.Context) model.Envelope[model.DashboardStats] {
	return call(ctx, a, operation{
		name:    "delivery.dashboard",
		method:  http.MethodGet,
		path:    panelPrefix + "/dashboard",
		success: "Dashboard loaded",
		failure: "Failed to load dashboard",
	}, model.DashboardStats{}, decodeDashboard)
}

// ListActiveDeliveries fetches deliveries that are not finished yet.
func (a *API) ListActiveDeliveries(ctx context.Context) model.Envelope[[]model.Delivery] {
	return call(ctx, a, operation{
		name:    "delivery.active",
		method:  http.MethodGet,
		path:    panelPrefix + "/deliveries/active",
		success: "Active deliveries loaded",
		failure: "Failed to load active deliveries",
	}, []model.Delivery{}, decodeList(decodeDelivery, "deliveries"))
}

// ListDeliveryHistory fetches finished deliveries.
func (a *API) ListDeliveryHistory(ctx context.Context, f model.Filter) model.Envelope[[]model.Delivery] {
	return call(ctx, a, operation{
		name:    "delivery.history",
		method:  http.MethodGet,
		path:    panelPrefix + "/deliveries/history",
		query:   f.Values(),
		success: "Delivery history loaded",
		failure: "Failed to load delivery history",
	}, []model.Delivery{}, decodeList(decodeDelivery, "deliveries"))
}

// GetDelivery fetches one delivery.
func (a *API) GetDelivery(ctx context.Context, id model.ID) model.Envelope[model.Delivery] {
	return call(ctx, a, operation{
		name:    "delivery.get",
		method:  http.MethodGet,
		id:      id,
		path:    deliveryPath(id),
		success: "Delivery loaded",
		failure: "Failed to load delivery",
	}, model.Delivery{}, decodeDelivery)
}

// AcceptDelivery accepts an assigned delivery.
func (a *API) AcceptDelivery(ctx context.Context, id model.ID) model.Envelope[model.Delivery] {
	return call(ctx, a, operation{
		name:    "delivery.accept",
		method:  http.MethodPost,
		id:      id,
		path:    deliveryPath(id) + "/accept",
		success: "Delivery accepted",
		failure: "Failed to accept delivery",
	}, model.Delivery{}, withDeliveryDefaults(id, model.DeliveryAccepted))
}

// UpdateDeliveryStatus moves a delivery to status.
func (a *API) UpdateDeliveryStatus(ctx context.Context, id model.ID, status string) model.Envelope[model.Delivery] {
	return call(ctx, a, operation{
		name:    "delivery.update_status",
		method:  http.MethodPatch,
		id:      id,
		path:    deliveryPath(id) + "/status",
		body:    map[string]string{"status": status},
		success: "Delivery status updated",
		failure: "Failed to update delivery status",
	}, model.Delivery{}, withDeliveryDefaults(id, status))
}

// withDeliveryDefaults fills id and status when the server only acknowledges
// a transition without echoing the delivery.
func withDeliveryDefaults(id model.ID, status string) func(gjson.Result) model.Delivery {
	return func(r gjson.Result) model.Delivery {
		d := decodeDelivery(r)
		if d.ID.IsZero() {
			d.ID = id
		}
		if d.Status == "" {
			d.Status = status
		}
		return d
	}
}

// ListEarnings fetches earning lines.
func (a *API) ListEarnings(ctx context.Context, f model.Filter) model.Envelope[[]model.Earning] {
	return call(ctx, a, operation{
		name:    "delivery.earnings",
		method:  http.MethodGet,
		path:    panelPrefix + "/earnings",
		query:   f.Values(),
		success: "Earnings loaded",
		failure: "Failed to load earnings",
	}, []model.Earning{}, decodeList(decodeEarning, "earnings"))
}

// GetEarningsSummary fetches the aggregated earnings.
func (a *API) GetEarningsSummary(ctx context.Context) model.Envelope[model.EarningsSummary] {
	return call(ctx, a, operation{
		name:    "delivery.earnings_summary",
		method:  http.MethodGet,
		path:    panelPrefix + "/earnings/summary",
		success: "Earnings summary loaded",
		failure: "Failed to load earnings summary",
	}, model.EarningsSummary{}, decodeEarningsSummary)
}

// ListPickups fetches scheduled pickups.
func (a *API) ListPickups(ctx context.Context, f model.Filter) model.Envelope[[]model.Pickup] {
	return call(ctx, a, operation{
		name:    "delivery.pickups",
		method:  http.MethodGet,
		path:    panelPrefix + "/pickups",
		query:   f.Values(),
		success: "Pickups loaded",
		failure: "Failed to load pickups",
	}, []model.Pickup{}, decodeList(decodePickup, "pickups"))
}

// ConfirmPickup confirms a pickup at the store.
func (a *API) ConfirmPickup(ctx context.Context, id model.ID) model.Envelope[model.Pickup] {
	return call(ctx, a, operation{
		name:    "delivery.confirm_pickup",
		method:  http.MethodPost,
		id:      id,
		path:    panelPrefix + "/pickups/" + url.PathEscape(id.String()) + "/confirm",
		success: "Pickup confirmed",
		failure: "Failed to confirm pickup",
	}, model.Pickup{}, func(r gjson.Result) model.Pickup {
		p := decodePickup(r)
		if p.ID.IsZero() {
			p.ID = id
		}
		if p.Status == "" {
			p.Status = model.PickupConfirmed
		}
		return p
	})
}

// GetProfile fetches the partner profile.
func (a *API) GetProfile(ctx context.Context) model.Envelope[model.Profile] {
	return call(ctx, a, operation{
		name:    "delivery.profile",
		method:  http.MethodGet,
		path:    panelPrefix + "/profile",
		success: "Profile loaded",
		failure: "Failed to load profile",
	}, model.Profile{}, decodeProfile)
}

// UpdateProfile sends a partial profile update.
func (a *API) UpdateProfile(ctx context.Context, in model.ProfileInput) model.Envelope[model.Profile] {
	return call(ctx, a, operation{
		name:    "delivery.update_profile",
		method:  http.MethodPut,
		path:    panelPrefix + "/profile",
		body:    in,
		success: "Profile updated",
		failure: "Failed to update profile",
	}, model.Profile{}, decodeProfile)
}

// UploadProfileImage uploads a new profile picture as multipart/form-data.
// The returned profile may only carry ImageURL.
func (a *API) UploadProfileImage(ctx context.Context, filename string, content io.Reader) model.Envelope[model.Profile] {
	return call(ctx, a, operation{
		name:      "delivery.upload_image",
		method:    http.MethodPost,
		path:      panelPrefix + "/profile/image",
		multipart: &transport.FilePart{Field: "image", Filename: filename, Content: content},
		success:   "Profile image uploaded",
		failure:   "Failed to upload profile image",
	}, model.Profile{}, decodeProfile)
}

// DownloadStatement downloads the CSV earnings statement for [from, to].
func (a *API) DownloadStatement(ctx context.Context, from, to time.Time) model.Envelope[model.Statement] {
	op := operation{
		name:    "delivery.statement",
		method:  http.MethodGet,
		path:    panelPrefix + "/earnings/statement",
		query:   model.Filter{StartDate: &from, EndDate: &to}.Values(),
		accept:  "text/csv",
		success: "Statement downloaded",
		failure: "Failed to download statement",
	}
	return callRaw(ctx, a, op, func(resp *transport.Response) model.Statement {
		contentType := resp.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "text/csv"
		}
		return model.Statement{
			Filename:    model.StatementFilename(from, to),
			ContentType: contentType,
			Data:        resp.Body,
		}
	})
}
