package endpoint

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/pitabwire/opsdesk/internal/observability"
	"github.com/pitabwire/opsdesk/model"
)

func TestGetDashboard(t *testing.T) {
	api, b := newBackendAPI(t)
	b.On("delivery.dashboard").RespondData(map[string]any{"active_deliveries": 2, "earnings_today": 150.0}, "")

	env := api.GetDashboard(context.Background())
	require.True(t, env.Success)
	assert.Equal(t, 2, env.Data.ActiveDeliveries)
	assert.Equal(t, 150.0, env.Data.EarningsToday)
	assert.Equal(t, "Dashboard loaded", env.Message)
}

func TestListDeliveryHistory_dateRange(t *testing.T) {
	api, b := newBackendAPI(t)
	b.On("delivery.history").RespondData(map[string]any{"deliveries": []map[string]any{{"id": 1, "status": "delivered"}}}, "")

	from := time.Date(2026, 10, 1, 15, 0, 0, 0, time.UTC)
	to := time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC)
	env := api.ListDeliveryHistory(context.Background(), model.Filter{StartDate: &from, EndDate: &to})
	require.True(t, env.Success)
	require.Len(t, env.Data, 1)
	assert.Equal(t, model.DeliveryDelivered, env.Data[0].Status)

	req := b.LastRequest("delivery.history")
	assert.Equal(t, "2026-10-01", req.Query["start_date"])
	assert.Equal(t, "2026-10-14", req.Query["end_date"])
}

func TestListActiveDeliveries_failure(t *testing.T) {
	api, b := newBackendAPI(t)
	b.On("delivery.active").RespondDetail(http.StatusInternalServerError, "Internal error")

	env := api.ListActiveDeliveries(context.Background())
	assert.False(t, env.Success)
	assert.Equal(t, "Internal error", env.Message)
	assert.Equal(t, []model.Delivery{}, env.Data)
}

func TestGetDelivery(t *testing.T) {
	api, b := newBackendAPI(t)
	b.On("delivery.get").RespondData(map[string]any{"delivery_id": 10, "order_number": "ORD-10", "status": "picked_up"}, "")

	env := api.GetDelivery(context.Background(), "10")
	require.True(t, env.Success)
	assert.Equal(t, model.ID("10"), env.Data.ID)
	assert.Equal(t, "ORD-10", env.Data.OrderNumber)
	assert.Equal(t, "Delivery loaded", env.Message)
	assert.Equal(t, "10", b.LastRequest("delivery.get").PathID)
}

func TestByIDCalls_spanCarriesEntityID(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	api := New(&fakeDoer{resp: jsonResponse(200, `{"data":{"delivery_id":10}}`)}, nil)
	api.GetDelivery(context.Background(), "10")
	api.GetDashboard(context.Background())

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, "endpoint.delivery.get", spans[0].Name)
	assert.Contains(t, spans[0].Attributes, observability.AttrEntityID.String("10"))
	for _, a := range spans[1].Attributes {
		assert.NotEqual(t, observability.AttrEntityID, a.Key, "dashboard has no entity id")
	}
}

func TestAcceptDelivery_acknowledgementOnly(t *testing.T) {
	api, b := newBackendAPI(t)
	b.On("delivery.accept").RespondWith(http.StatusOK, map[string]any{"message": "Accepted"})

	env := api.AcceptDelivery(context.Background(), "31")
	require.True(t, env.Success)
	assert.Equal(t, model.ID("31"), env.Data.ID)
	assert.Equal(t, model.DeliveryAccepted, env.Data.Status)
	assert.Equal(t, http.MethodPost, b.LastRequest("delivery.accept").Method)
}

func TestUpdateDeliveryStatus(t *testing.T) {
	api, b := newBackendAPI(t)
	b.On("delivery.update_status").RespondData(map[string]any{"delivery_id": 31, "status": "picked_up", "order_number": "ORD-31"}, "")

	env := api.UpdateDeliveryStatus(context.Background(), "31", model.DeliveryPickedUp)
	require.True(t, env.Success)
	assert.Equal(t, "ORD-31", env.Data.OrderNumber)
	assert.Equal(t, model.DeliveryPickedUp, env.Data.Status)
	assert.Equal(t, map[string]any{"status": "picked_up"}, b.LastRequest("delivery.update_status").Body)
}

func TestEarnings(t *testing.T) {
	api, b := newBackendAPI(t)
	b.On("delivery.earnings").RespondData([]map[string]any{{"earning_id": 1, "amount": 40}, {"earning_id": 2, "amount": 60}}, "")
	b.On("delivery.earnings_summary").RespondData(map[string]any{"today": 100, "total": 900}, "")

	list := api.ListEarnings(context.Background(), model.Filter{PerPage: model.Int(50)})
	require.True(t, list.Success)
	assert.Len(t, list.Data, 2)
	assert.Equal(t, "50", b.LastRequest("delivery.earnings").Query["per_page"])

	sum := api.GetEarningsSummary(context.Background())
	require.True(t, sum.Success)
	assert.Equal(t, 100.0, sum.Data.Today)
	assert.Equal(t, 900.0, sum.Data.Total)
}

func TestConfirmPickup(t *testing.T) {
	api, b := newBackendAPI(t)
	b.On("delivery.pickups").RespondData([]map[string]any{{"pickup_id": 5, "status": "pending"}}, "")
	b.On("delivery.confirm_pickup").RespondWith(http.StatusOK, map[string]any{"success": true})

	list := api.ListPickups(context.Background(), model.Filter{})
	require.True(t, list.Success)
	require.Len(t, list.Data, 1)

	env := api.ConfirmPickup(context.Background(), "5")
	require.True(t, env.Success)
	assert.Equal(t, model.ID("5"), env.Data.ID)
	assert.Equal(t, model.PickupConfirmed, env.Data.Status)
	assert.Equal(t, "Pickup confirmed", env.Message)
}

func TestProfile(t *testing.T) {
	api, b := newBackendAPI(t)
	b.On("delivery.profile").RespondData(map[string]any{"partner_id": 2, "name": "Ravi", "available": true}, "")
	b.On("delivery.update_profile").RespondData(map[string]any{"partner_id": 2, "name": "Ravi K", "available": false}, "Profile saved")

	got := api.GetProfile(context.Background())
	require.True(t, got.Success)
	assert.Equal(t, "Ravi", got.Data.Name)

	upd := api.UpdateProfile(context.Background(), model.ProfileInput{Name: model.String("Ravi K"), Available: model.Bool(false)})
	require.True(t, upd.Success)
	assert.Equal(t, "Profile saved", upd.Message)
	assert.False(t, upd.Data.Available)
	assert.Equal(t, map[string]any{"name": "Ravi K", "available": false}, b.LastRequest("delivery.update_profile").Body)
}

func TestUploadProfileImage_multipart(t *testing.T) {
	api, b := newBackendAPI(t)
	b.On("delivery.upload_image").RespondData(map[string]any{"image_url": "https://cdn/p.png"}, "")

	env := api.UploadProfileImage(context.Background(), "me.png", strings.NewReader("PNGDATA"))
	require.True(t, env.Success)
	assert.Equal(t, "https://cdn/p.png", env.Data.ImageURL)

	req := b.LastRequest("delivery.upload_image")
	assert.True(t, strings.HasPrefix(req.Headers.Get("Content-Type"), "multipart/form-data"))
	assert.Contains(t, string(req.RawBody), `name="image"; filename="me.png"`)
	assert.Contains(t, string(req.RawBody), "PNGDATA")
}

func TestDownloadStatement(t *testing.T) {
	api, b := newBackendAPI(t)
	csv := []byte("date,amount\n2026-10-01,40\n")
	b.On("delivery.statement").RespondRaw(http.StatusOK, "text/csv; charset=utf-8", csv)

	from := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 10, 31, 0, 0, 0, 0, time.UTC)
	env := api.DownloadStatement(context.Background(), from, to)
	require.True(t, env.Success)
	assert.Equal(t, "statement_2026-10-01_2026-10-31.csv", env.Data.Filename)
	assert.Equal(t, "text/csv; charset=utf-8", env.Data.ContentType)
	assert.Equal(t, csv, env.Data.Data)

	req := b.LastRequest("delivery.statement")
	assert.Equal(t, "text/csv", req.Headers.Get("Accept"))
	assert.Equal(t, "2026-10-01", req.Query["start_date"])
	assert.Equal(t, "2026-10-31", req.Query["end_date"])
}

func TestDownloadStatement_failure(t *testing.T) {
	api, b := newBackendAPI(t)
	b.On("delivery.statement").RespondDetail(http.StatusBadRequest, "end_date before start_date")

	now := time.Now()
	env := api.DownloadStatement(context.Background(), now, now.AddDate(0, 0, -1))
	assert.False(t, env.Success)
	assert.Equal(t, "end_date before start_date", env.Message)
	assert.Nil(t, env.Data.Data)
}

// errReader fails while the multipart body is being built.
type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, io.ErrUnexpectedEOF }

func TestUploadProfileImage_unreadableContent(t *testing.T) {
	api, b := newBackendAPI(t)

	env := api.UploadProfileImage(context.Background(), "me.png", errReader{})
	assert.False(t, env.Success)
	assert.NotEmpty(t, env.Message)
	assert.Equal(t, 0, b.Calls("delivery.upload_image"))
}
