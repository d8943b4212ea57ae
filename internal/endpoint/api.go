// Package endpoint translates backend operations into model.Envelope values.
// Wrappers never return errors and never panic: every transport failure is
// converted into a failure envelope carrying a safe default and the best
// available diagnostic message.
package endpoint

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/pitabwire/opsdesk/internal/observability"
	"github.com/pitabwire/opsdesk/internal/transport"
	"github.com/pitabwire/opsdesk/model"
)

// Doer sends one request to the backend. *transport.Client implements it.
type Doer interface {
	Do(ctx context.Context, req transport.Request) (*transport.Response, error)
}

// API groups every endpoint wrapper of the backend.
type API struct {
	client  Doer
	logger  *zap.Logger
	metrics *observability.Metrics

	attributes *Resource[model.Attribute, model.AttributeInput]
	brands     *Resource[model.Brand, model.BrandInput]
	offers     *Resource[model.Offer, model.OfferInput]
}

// Option configures an API.
type Option func(*API)

// WithMetrics records one counter per call outcome.
func WithMetrics(m *observability.Metrics) Option {
	return func(a *API) { a.metrics = m }
}

// New creates the endpoint wrappers on top of client.
func New(client Doer, logger *zap.Logger, opts ...Option) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &API{client: client, logger: logger}
	for _, opt := range opts {
		opt(a)
	}

	a.attributes = newResource[model.Attribute, model.AttributeInput](a, "attribute", "attributes", decodeAttribute)
	a.brands = newResource[model.Brand, model.BrandInput](a, "brand", "brands", decodeBrand)
	a.offers = newResource[model.Offer, model.OfferInput](a, "offer", "offers", decodeOffer)
	return a
}

// operation describes one wrapper call.
type operation struct {
	name      string
	method    string
	path      string
	id        model.ID
	query     url.Values
	body      any
	multipart *transport.FilePart
	accept    string
	// success and failure are the default messages.
	success string
	failure string
}

// call runs op against a JSON endpoint. decode receives the payload's data
// field, or the whole body when there is none.
func call[T any](ctx context.Context, a *API, op operation, fallback T, decode func(gjson.Result) T) model.Envelope[T] {
	return exec(ctx, a, op, fallback, func(resp *transport.Response) model.Envelope[T] {
		payload := gjson.ParseBytes(resp.Body)
		if flag := payload.Get("success"); flag.Type == gjson.False {
			return model.Fail(fallback, model.ErrServerFailure, failureMessage(resp.Body, nil, fallbackMessage(op)))
		}

		data := payload
		if payload.IsObject() && payload.Get("data").Exists() {
			data = payload.Get("data")
		}
		message := op.success
		if m := payload.Get("message"); m.Type == gjson.String && m.String() != "" {
			message = m.String()
		}
		return model.OK(decode(data), message)
	})
}

// callRaw runs op against an endpoint with a non-JSON body, e.g. a file
// download.
func callRaw[T any](ctx context.Context, a *API, op operation, build func(*transport.Response) T) model.Envelope[T] {
	var zero T
	return exec(ctx, a, op, zero, func(resp *transport.Response) model.Envelope[T] {
		return model.OK(build(resp), op.success)
	})
}

// exec sends op and converts every outcome, including a panic while
// decoding, into an envelope.
func exec[T any](ctx context.Context, a *API, op operation, fallback T, onSuccess func(*transport.Response) model.Envelope[T]) (env model.Envelope[T]) {
	attrs := []attribute.KeyValue{observability.AttrOperation.String(op.name)}
	if !op.id.IsZero() {
		attrs = append(attrs, observability.AttrEntityID.String(op.id.String()))
	}
	ctx, span := observability.StartSpan(ctx, "endpoint."+op.name, attrs...)
	defer func() {
		if r := recover(); r != nil {
			env = model.Fail(fallback, model.ErrDecodeFailure, fallbackMessage(op))
			a.logger.Error("endpoint: panic while handling response",
				zap.String("operation", op.name),
				zap.Any("panic", r),
			)
		}
		a.finish(ctx, op, env.Result())
		span.SetAttributes(observability.AttrOutcome.String(observability.Outcome(env.Success)))
		var spanErr error
		if !env.Success {
			spanErr = errors.New(env.Message)
		}
		observability.EndSpanWithError(span, spanErr)
	}()

	resp, err := a.client.Do(ctx, transport.Request{
		Method:    op.method,
		Path:      op.path,
		Query:     op.query,
		Body:      op.body,
		Multipart: op.multipart,
		Accept:    op.accept,
	})
	if err != nil {
		var body []byte
		if resp != nil {
			body = resp.Body
		}
		return model.Fail(fallback, classify(err), failureMessage(body, err, fallbackMessage(op)))
	}
	return onSuccess(resp)
}

// finish emits the single log line and the outcome counter of a call.
func (a *API) finish(ctx context.Context, op operation, res model.Result) {
	a.metrics.RecordEndpointCall(op.name, res.Success)

	log := observability.ContextLogger(ctx, a.logger)
	fields := []zap.Field{
		zap.String("operation", op.name),
		zap.Bool("success", res.Success),
		zap.String("message", res.Message),
	}
	if res.Success {
		log.Info("endpoint call", fields...)
		return
	}
	log.Warn("endpoint call", append(fields, zap.String("code", res.Code))...)
}

func fallbackMessage(op operation) string {
	if op.failure != "" {
		return op.failure
	}
	return "Request failed"
}

// classify maps a transport error to a failure code.
func classify(err error) string {
	switch {
	case transport.IsTimeout(err):
		return model.ErrTimeout
	case transport.IsCanceled(err):
		return model.ErrCancelled
	case transport.StatusCode(err) != 0:
		return model.ErrServerFailure
	default:
		return model.ErrTransportFailure
	}
}

// failureMessage extracts the best diagnostic, in priority order: the
// response's detail (a string, or the first msg of a validation list), its
// message, the transport error text, and finally the fallback.
func failureMessage(body []byte, err error, fallback string) string {
	if len(body) > 0 && gjson.ValidBytes(body) {
		payload := gjson.ParseBytes(body)
		detail := payload.Get("detail")
		switch {
		case detail.Type == gjson.String && detail.String() != "":
			return detail.String()
		case detail.IsArray():
			if msg := detail.Get("0.msg"); msg.String() != "" {
				return msg.String()
			}
		case detail.IsObject():
			if msg := detail.Get("message"); msg.String() != "" {
				return msg.String()
			}
		}
		if msg := payload.Get("message"); msg.Type == gjson.String && msg.String() != "" {
			return msg.String()
		}
	}
	if err != nil && err.Error() != "" {
		return err.Error()
	}
	return fallback
}

// Health checks the backend. It is safe to retry.
func (a *API) Health(ctx context.Context) model.Envelope[string] {
	return call(ctx, a, operation{
		name:    "health",
		method:  http.MethodGet,
		path:    "/health",
		success: "Backend is healthy",
		failure: "Backend health check failed",
	}, "", func(r gjson.Result) string {
		if r.IsObject() {
			return first(r, "status", "state").String()
		}
		return r.String()
	})
}

// HealthCheck adapts Health for readiness probes.
func (a *API) HealthCheck(ctx context.Context) error {
	env := a.Health(ctx)
	if !env.Success {
		return fmt.Errorf("backend: %s", env.Message)
	}
	return nil
}
