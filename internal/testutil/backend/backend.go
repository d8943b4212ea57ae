// Package backend is a scripted fake of the e-commerce REST backend for
// tests. Every route is registered under the same operation name the
// endpoint wrappers use (e.g. "brands.list"), responses are queued per
// operation, and every request is recorded for assertions.
package backend

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

// Route maps an operation name to its HTTP method and chi pattern.
type Route struct {
	Method  string
	Pattern string
}

// Routes lists every backend operation.
var Routes = map[string]Route{
	"health": {http.MethodGet, "/health"},

	"attributes.list":   {http.MethodGet, "/attributes"},
	"attributes.get":    {http.MethodGet, "/attributes/{id}"},
	"attributes.create": {http.MethodPost, "/attributes"},
	"attributes.update": {http.MethodPut, "/attributes/{id}"},
	"attributes.delete": {http.MethodDelete, "/attributes/{id}"},

	"brands.list":   {http.MethodGet, "/brands"},
	"brands.get":    {http.MethodGet, "/brands/{id}"},
	"brands.create": {http.MethodPost, "/brands"},
	"brands.update": {http.MethodPut, "/brands/{id}"},
	"brands.delete": {http.MethodDelete, "/brands/{id}"},

	"offers.list":   {http.MethodGet, "/offers"},
	"offers.get":    {http.MethodGet, "/offers/{id}"},
	"offers.create": {http.MethodPost, "/offers"},
	"offers.update": {http.MethodPut, "/offers/{id}"},
	"offers.delete": {http.MethodDelete, "/offers/{id}"},
	"offers.toggle": {http.MethodPatch, "/offers/{id}/status"},

	"delivery.dashboard":        {http.MethodGet, "/delivery_panel/dashboard"},
	"delivery.active":           {http.MethodGet, "/delivery_panel/deliveries/active"},
	"delivery.history":          {http.MethodGet, "/delivery_panel/deliveries/history"},
	"delivery.get":              {http.MethodGet, "/delivery_panel/deliveries/{id}"},
	"delivery.accept":           {http.MethodPost, "/delivery_panel/deliveries/{id}/accept"},
	"delivery.update_status":    {http.MethodPatch, "/delivery_panel/deliveries/{id}/status"},
	"delivery.earnings":         {http.MethodGet, "/delivery_panel/earnings"},
	"delivery.earnings_summary": {http.MethodGet, "/delivery_panel/earnings/summary"},
	"delivery.statement":        {http.MethodGet, "/delivery_panel/earnings/statement"},
	"delivery.pickups":          {http.MethodGet, "/delivery_panel/pickups"},
	"delivery.confirm_pickup":   {http.MethodPost, "/delivery_panel/pickups/{id}/confirm"},
	"delivery.profile":          {http.MethodGet, "/delivery_panel/profile"},
	"delivery.update_profile":   {http.MethodPut, "/delivery_panel/profile"},
	"delivery.upload_image":     {http.MethodPost, "/delivery_panel/profile/image"},
}

// RecordedRequest captures a request received by the fake.
type RecordedRequest struct {
	Method     string
	Path       string
	PathID     string
	Query      map[string]string
	Headers    http.Header
	Body       map[string]any
	RawBody    []byte
	ReceivedAt time.Time
}

type response struct {
	status      int
	body        any
	raw         []byte
	contentType string
	delay       time.Duration
	release     <-chan struct{}
	connError   bool
}

type queue struct {
	responses []*response
	current   int
}

// Backend is the fake server.
type Backend struct {
	server *httptest.Server

	mu       sync.Mutex
	queues   map[string]*queue
	received map[string][]*RecordedRequest
}

// New starts a fake backend that is closed when the test ends.
func New(t testing.TB) *Backend {
	t.Helper()

	b := &Backend{
		queues:   make(map[string]*queue),
		received: make(map[string][]*RecordedRequest),
	}

	r := chi.NewRouter()
	for op, route := range Routes {
		r.Method(route.Method, route.Pattern, b.handle(op))
	}
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{
			"detail": fmt.Sprintf("fake backend: no route for %s %s", r.Method, r.URL.Path),
		})
	})

	b.server = httptest.NewServer(r)
	t.Cleanup(b.server.Close)
	return b
}

// URL returns the base URL of the fake.
func (b *Backend) URL() string { return b.server.URL }

// Close stops the server; later calls fail with a connection error.
func (b *Backend) Close() { b.server.Close() }

// Operation configures responses for one operation.
type Operation struct {
	backend *Backend
	name    string
}

// On returns the builder for the named operation. It panics on unknown names
// so that typos fail loudly.
func (b *Backend) On(name string) *Operation {
	if _, ok := Routes[name]; !ok {
		panic("fake backend: unknown operation " + name)
	}
	return &Operation{backend: b, name: name}
}

// RespondWith queues a JSON response. Once the queue is exhausted the last
// response repeats.
func (o *Operation) RespondWith(status int, body any) *Operation {
	return o.add(&response{status: status, body: body})
}

// RespondData queues a 200 response of the usual {"data": ..., "message": ...} shape.
func (o *Operation) RespondData(data any, message string) *Operation {
	return o.RespondWith(http.StatusOK, map[string]any{"success": true, "data": data, "message": message})
}

// RespondDetail queues an error response with a "detail" message.
func (o *Operation) RespondDetail(status int, detail string) *Operation {
	return o.RespondWith(status, map[string]any{"detail": detail})
}

// RespondRaw queues a non-JSON response body.
func (o *Operation) RespondRaw(status int, contentType string, body []byte) *Operation {
	return o.add(&response{status: status, raw: body, contentType: contentType})
}

// RespondWithDelay queues a JSON response sent after delay.
func (o *Operation) RespondWithDelay(delay time.Duration, status int, body any) *Operation {
	return o.add(&response{status: status, body: body, delay: delay})
}

// RespondAfter queues a JSON response held until release is closed. It lets
// tests decide the order in which concurrent responses arrive.
func (o *Operation) RespondAfter(release <-chan struct{}, status int, body any) *Operation {
	return o.add(&response{status: status, body: body, release: release})
}

// RespondWithConnectionError closes the connection without responding.
func (o *Operation) RespondWithConnectionError() *Operation {
	return o.add(&response{connError: true})
}

func (o *Operation) add(r *response) *Operation {
	b := o.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[o.name]
	if !ok {
		q = &queue{}
		b.queues[o.name] = q
	}
	q.responses = append(q.responses, r)
	return o
}

func (b *Backend) next(name string) *response {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[name]
	if !ok || len(q.responses) == 0 {
		return nil
	}
	idx := q.current
	if idx >= len(q.responses) {
		idx = len(q.responses) - 1
	} else {
		q.current++
	}
	return q.responses[idx]
}

func (b *Backend) handle(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &RecordedRequest{
			Method:     r.Method,
			Path:       r.URL.Path,
			PathID:     chi.URLParam(r, "id"),
			Query:      make(map[string]string),
			Headers:    r.Header.Clone(),
			ReceivedAt: time.Now(),
		}
		for key, values := range r.URL.Query() {
			if len(values) > 0 {
				rec.Query[key] = values[0]
			}
		}
		if r.Body != nil {
			body, _ := io.ReadAll(r.Body)
			rec.RawBody = body
			var parsed map[string]any
			if len(body) > 0 && json.Unmarshal(body, &parsed) == nil {
				rec.Body = parsed
			}
		}
		b.mu.Lock()
		b.received[name] = append(b.received[name], rec)
		b.mu.Unlock()

		resp := b.next(name)
		if resp == nil {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]any{"success": true, "data": nil})
			return
		}

		if resp.connError {
			if hj, ok := w.(http.Hijacker); ok {
				if conn, _, _ := hj.Hijack(); conn != nil {
					conn.Close()
				}
			}
			return
		}

		if resp.release != nil {
			select {
			case <-resp.release:
			case <-r.Context().Done():
				return
			}
		}
		if resp.delay > 0 {
			select {
			case <-time.After(resp.delay):
			case <-r.Context().Done():
				return
			}
		}

		if resp.raw != nil {
			if resp.contentType != "" {
				w.Header().Set("Content-Type", resp.contentType)
			}
			w.WriteHeader(resp.status)
			w.Write(resp.raw)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(resp.status)
		if resp.body != nil {
			json.NewEncoder(w).Encode(resp.body)
		}
	}
}

// Calls returns how many times the operation was called.
func (b *Backend) Calls(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.received[name])
}

// LastRequest returns the last request recorded for the operation, or nil.
func (b *Backend) LastRequest(name string) *RecordedRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	reqs := b.received[name]
	if len(reqs) == 0 {
		return nil
	}
	return reqs[len(reqs)-1]
}

// Requests returns every request recorded for the operation.
func (b *Backend) Requests(name string) []*RecordedRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*RecordedRequest, len(b.received[name]))
	copy(out, b.received[name])
	return out
}

// Reset clears queued responses and recorded requests.
func (b *Backend) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queues = make(map[string]*queue)
	b.received = make(map[string][]*RecordedRequest)
}
