package portal

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pitabwire/opsdesk/internal/store"
	"github.com/pitabwire/opsdesk/model"
)

var errMethodNotAllowed = &model.ErrorEnvelope{
	Code:    "METHOD_NOT_ALLOWED",
	Message: "Method not allowed",
	Status:  http.StatusMethodNotAllowed,
}

// listResponse is the JSON view model of a collection.
type listResponse[E any] struct {
	State   store.Phase `json:"state"`
	Error   string      `json:"error,omitempty"`
	Items   []E         `json:"items"`
	Current *E          `json:"current,omitempty"`
}

func listView[E any](s store.State[E]) listResponse[E] {
	items := s.Items
	if items == nil {
		items = []E{}
	}
	return listResponse[E]{State: s.Phase(), Error: s.Err, Items: items, Current: s.Current}
}

// panelResponse is the JSON view model of the delivery panel.
type panelResponse struct {
	State store.Phase `json:"state"`
	store.PanelState
}

func panelView(s store.PanelState) panelResponse {
	return panelResponse{State: s.Phase(), PanelState: s}
}

// maxWait bounds the "wait" query parameter of GET views.
const maxWait = time.Minute

// awaitChange implements ?wait=<duration> on GET views: it blocks until the
// container settles after a change (a notification with no action left in
// flight), the wait elapses, or the request ends. It returns false after
// answering 422 for a malformed wait.
func awaitChange(w http.ResponseWriter, r *http.Request, subscribe func() (<-chan struct{}, func()), loading func() bool) bool {
	raw := r.URL.Query().Get("wait")
	if raw == "" {
		return true
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 || d > maxWait {
		WriteValidationError(w, []model.FieldError{{
			Field: "wait", Code: "INVALID", Message: "wait must be a positive duration up to 1m",
		}})
		return false
	}

	changes, cancel := subscribe()
	defer cancel()
	timer := time.NewTimer(d)
	defer timer.Stop()
	for {
		select {
		case _, open := <-changes:
			if !open || !loading() {
				return true
			}
		case <-timer.C:
			return true
		case <-r.Context().Done():
			return true
		}
	}
}

func mountCollection[E model.Entity, In any](r chi.Router, c *store.Collection[E, In]) {
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		if !awaitChange(w, r, c.Subscribe, func() bool { return c.State().Loading }) {
			return
		}
		WriteJSON(w, http.StatusOK, listView(c.State()))
	})

	r.Post("/refresh", func(w http.ResponseWriter, r *http.Request) {
		var res model.Result
		if len(r.URL.Query()) == 0 {
			res = c.Refresh(r.Context())
		} else {
			f, details := filterFrom(r)
			if len(details) > 0 {
				WriteValidationError(w, details)
				return
			}
			res = c.FetchAll(r.Context(), f)
		}
		WriteResult(w, res, listView(c.State()))
	})

	r.Get("/{id}", func(w http.ResponseWriter, r *http.Request) {
		res := c.FetchByID(r.Context(), model.ParseID(chi.URLParam(r, "id")))
		WriteResult(w, res, listView(c.State()))
	})

	r.Delete("/{id}", func(w http.ResponseWriter, r *http.Request) {
		res := c.Delete(r.Context(), model.ParseID(chi.URLParam(r, "id")))
		WriteResult(w, res, listView(c.State()))
	})
}

func toggleOffer(s *store.OfferStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		active, err := strconv.ParseBool(r.URL.Query().Get("active"))
		if err != nil {
			WriteValidationError(w, []model.FieldError{{
				Field: "active", Code: "INVALID", Message: "active must be true or false",
			}})
			return
		}
		res := s.Toggle(r.Context(), model.ParseID(chi.URLParam(r, "id")), active)
		WriteResult(w, res, listView(s.State()))
	}
}

func mountPanel(r chi.Router, p *store.DeliveryPanel, sink store.Sink) {
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		if !awaitChange(w, r, p.Subscribe, func() bool { return p.State().Loading }) {
			return
		}
		WriteJSON(w, http.StatusOK, panelView(p.State()))
	})

	r.Post("/refresh", func(w http.ResponseWriter, r *http.Request) {
		res := p.Refresh(r.Context())
		WriteResult(w, res, panelView(p.State()))
	})

	r.Get("/log", func(w http.ResponseWriter, _ *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]any{"entries": p.Log().Entries()})
	})

	r.Get("/{id}", func(w http.ResponseWriter, r *http.Request) {
		res := p.FetchDelivery(r.Context(), model.ParseID(chi.URLParam(r, "id")))
		WriteResult(w, res, panelView(p.State()))
	})

	r.Post("/{id}/accept", func(w http.ResponseWriter, r *http.Request) {
		res := p.AcceptDelivery(r.Context(), model.ParseID(chi.URLParam(r, "id")))
		WriteResult(w, res, panelView(p.State()))
	})

	r.Post("/{id}/status", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Status string `json:"status"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Status == "" {
			WriteValidationError(w, []model.FieldError{{
				Field: "status", Code: "REQUIRED", Message: "status is required",
			}})
			return
		}
		res := p.UpdateDeliveryStatus(r.Context(), model.ParseID(chi.URLParam(r, "id")), body.Status)
		WriteResult(w, res, panelView(p.State()))
	})

	r.Post("/pickups/{id}/confirm", func(w http.ResponseWriter, r *http.Request) {
		res := p.ConfirmPickup(r.Context(), model.ParseID(chi.URLParam(r, "id")))
		WriteResult(w, res, panelView(p.State()))
	})

	if sink == nil {
		return
	}
	r.Post("/statement", func(w http.ResponseWriter, r *http.Request) {
		f, details := filterFrom(r)
		if f.StartDate == nil {
			details = append(details, model.FieldError{Field: "start_date", Code: "REQUIRED", Message: "start_date is required"})
		}
		if f.EndDate == nil {
			details = append(details, model.FieldError{Field: "end_date", Code: "REQUIRED", Message: "end_date is required"})
		}
		if len(details) == 0 && f.EndDate.Before(*f.StartDate) {
			details = append(details, model.FieldError{Field: "end_date", Code: "RANGE", Message: "end_date is before start_date"})
		}
		if len(details) > 0 {
			WriteValidationError(w, details)
			return
		}
		res := p.ExportStatement(r.Context(), *f.StartDate, *f.EndDate, sink)
		WriteResult(w, res, panelView(p.State()))
	})
}

// filterFrom reads list filters from the query string. Malformed values are
// reported per field and leave the field unset.
func filterFrom(r *http.Request) (model.Filter, []model.FieldError) {
	q := r.URL.Query()
	var f model.Filter
	var details []model.FieldError

	for _, d := range []struct {
		key string
		dst **time.Time
	}{{"start_date", &f.StartDate}, {"end_date", &f.EndDate}} {
		t, err := model.ParseDate(q.Get(d.key))
		if err != nil {
			details = append(details, model.FieldError{Field: d.key, Code: "INVALID", Message: d.key + " must be YYYY-MM-DD"})
			continue
		}
		*d.dst = t
	}

	for _, n := range []struct {
		key string
		dst **int
	}{{"page", &f.Page}, {"per_page", &f.PerPage}} {
		s := q.Get(n.key)
		if s == "" {
			continue
		}
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 {
			details = append(details, model.FieldError{Field: n.key, Code: "INVALID", Message: n.key + " must be a positive integer"})
			continue
		}
		*n.dst = model.Int(v)
	}

	if s := q.Get("status"); s != "" {
		f.Status = model.String(s)
	}
	if s := q.Get("type"); s != "" {
		f.Type = model.String(s)
	}
	if s := q.Get("search"); s != "" {
		f.Search = model.String(s)
	}
	return f, details
}
