package store

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pitabwire/opsdesk/internal/observability"
	"github.com/pitabwire/opsdesk/internal/oplog"
	"github.com/pitabwire/opsdesk/model"
)

// PanelAPI is the delivery-partner subset of the endpoint wrappers.
// *endpoint.API implements it.
type PanelAPI interface {
	GetDashboard(ctx context.Context) model.Envelope[model.DashboardStats]
	ListActiveDeliveries(ctx context.Context) model.Envelope[[]model.Delivery]
	ListDeliveryHistory(ctx context.Context, f model.Filter) model.Envelope[[]model.Delivery]
	GetDelivery(ctx context.Context, id model.ID) model.Envelope[model.Delivery]
	AcceptDelivery(ctx context.Context, id model.ID) model.Envelope[model.Delivery]
	UpdateDeliveryStatus(ctx context.Context, id model.ID, status string) model.Envelope[model.Delivery]
	ListEarnings(ctx context.Context, f model.Filter) model.Envelope[[]model.Earning]
	GetEarningsSummary(ctx context.Context) model.Envelope[model.EarningsSummary]
	ListPickups(ctx context.Context, f model.Filter) model.Envelope[[]model.Pickup]
	ConfirmPickup(ctx context.Context, id model.ID) model.Envelope[model.Pickup]
	GetProfile(ctx context.Context) model.Envelope[model.Profile]
	UpdateProfile(ctx context.Context, in model.ProfileInput) model.Envelope[model.Profile]
	UploadProfileImage(ctx context.Context, filename string, content io.Reader) model.Envelope[model.Profile]
	DownloadStatement(ctx context.Context, from, to time.Time) model.Envelope[model.Statement]
}

// Sink stores an exported file and returns where it ended up.
type Sink interface {
	Name() string
	Save(ctx context.Context, name string, data []byte) (string, error)
}

// PanelState is a snapshot of the delivery panel.
type PanelState struct {
	Loading   bool                  `json:"loading"`
	Err       string                `json:"error,omitempty"`
	Dashboard model.DashboardStats  `json:"dashboard"`
	Active    []model.Delivery      `json:"active"`
	History   []model.Delivery      `json:"history"`
	Earnings  []model.Earning       `json:"earnings"`
	Summary   model.EarningsSummary `json:"summary"`
	Pickups   []model.Pickup        `json:"pickups"`
	Profile   *model.Profile        `json:"profile,omitempty"`
	Current   *model.Delivery       `json:"current,omitempty"`
}

// Phase reports what a view should render.
func (s PanelState) Phase() Phase {
	switch {
	case s.Loading:
		return PhaseLoading
	case s.Err != "":
		return PhaseError
	case len(s.Active) == 0 && len(s.History) == 0 && len(s.Earnings) == 0 &&
		len(s.Pickups) == 0 && s.Profile == nil && s.Current == nil &&
		s.Dashboard == (model.DashboardStats{}):
		return PhaseEmpty
	default:
		return PhaseReady
	}
}

// DeliveryPanel is the state container of the delivery-partner panel. Every
// action is also written to its operation log.
type DeliveryPanel struct {
	core

	api    PanelAPI
	filter model.Filter
	oplog  *oplog.Log

	// guarded by core.mu
	dashboard model.DashboardStats
	active    []model.Delivery
	history   []model.Delivery
	earnings  []model.Earning
	summary   model.EarningsSummary
	pickups   []model.Pickup
	profile   *model.Profile
	current   *model.Delivery
}

// NewDeliveryPanel creates an empty panel. The filter set with WithFilter
// applies to the history, earnings and pickup lists.
func NewDeliveryPanel(api PanelAPI, opts ...Option) *DeliveryPanel {
	s := newSettings("delivery", opts)
	if s.oplog == nil {
		s.oplog = oplog.New(oplog.DefaultCapacity)
	}
	p := &DeliveryPanel{
		api:      api,
		filter:   s.filter,
		oplog:    s.oplog,
		active:   []model.Delivery{},
		history:  []model.Delivery{},
		earnings: []model.Earning{},
		pickups:  []model.Pickup{},
	}
	p.core.init(s)
	return p
}

// Log returns the operation log.
func (p *DeliveryPanel) Log() *oplog.Log { return p.oplog }

// State returns a copy of the current state.
func (p *DeliveryPanel) State() PanelState {
	p.mu.Lock()
	defer p.mu.Unlock()
	loading, err := p.status()
	st := PanelState{
		Loading:   loading,
		Err:       err,
		Dashboard: p.dashboard,
		Active:    clone(p.active),
		History:   clone(p.history),
		Earnings:  clone(p.earnings),
		Summary:   p.summary,
		Pickups:   clone(p.pickups),
	}
	if p.profile != nil {
		prof := *p.profile
		st.Profile = &prof
	}
	if p.current != nil {
		cur := *p.current
		st.Current = &cur
	}
	return st
}

func clone[E any](s []E) []E {
	out := make([]E, len(s))
	copy(out, s)
	return out
}

// action runs fn and writes its outcome to the operation log.
func (p *DeliveryPanel) action(ctx context.Context, name string, fn func(context.Context) model.Result) model.Result {
	res := p.run(ctx, name, fn)
	if res.Success {
		p.oplog.Add(res.Message, oplog.Success)
	} else {
		p.oplog.Add(res.Message, oplog.Error)
	}
	return res
}

// commit applies fn and converts a closed panel into a cancelled result.
func (p *DeliveryPanel) commit(res model.Result, fn func()) model.Result {
	if !p.apply(fn) {
		return p.closedResult()
	}
	return res
}

type batchPart struct {
	name  string
	fetch func(context.Context) model.Result
}

func (p *DeliveryPanel) batch() []batchPart {
	return []batchPart{
		{"dashboard", p.loadDashboard},
		{"active", p.loadActive},
		{"history", p.loadHistory},
		{"earnings", p.loadEarnings},
		{"pickups", p.loadPickups},
	}
}

// Refresh fetches every section concurrently. Each section is committed as
// soon as it arrives; the result succeeds only when all of them did, and
// otherwise carries every failure joined with "; ".
func (p *DeliveryPanel) Refresh(ctx context.Context) model.Result {
	return p.run(ctx, "refresh", func(ctx context.Context) model.Result {
		p.oplog.Add("Refreshing delivery panel", oplog.Info)

		parts := p.batch()
		observability.AnnotateSpan(ctx, observability.AttrBatchSize.Int(len(parts)))
		results := make([]model.Result, len(parts))
		var g errgroup.Group
		for i, part := range parts {
			g.Go(func() error {
				results[i] = part.fetch(ctx)
				return nil
			})
		}
		_ = g.Wait()

		var failures []string
		for i, res := range results {
			if res.Success {
				continue
			}
			p.metrics.RecordBatchPartFailure(p.name, parts[i].name)
			msg := parts[i].name + ": " + res.Message
			p.oplog.Add(msg, oplog.Warning)
			failures = append(failures, msg)
		}
		if len(failures) > 0 {
			p.oplog.Add(fmt.Sprintf("Delivery panel refresh failed for %d of %d sections", len(failures), len(parts)), oplog.Error)
			return model.Failed(model.ErrPartialBatchFailure, strings.Join(failures, "; "))
		}
		p.oplog.Add("Delivery panel refreshed", oplog.Success)
		return model.Succeeded("Delivery panel refreshed")
	})
}

func (p *DeliveryPanel) loadDashboard(ctx context.Context) model.Result {
	env := p.api.GetDashboard(ctx)
	if !env.Success {
		return env.Result()
	}
	return p.commit(env.Result(), func() { p.dashboard = env.Data })
}

func (p *DeliveryPanel) loadActive(ctx context.Context) model.Result {
	env := p.api.ListActiveDeliveries(ctx)
	if !env.Success {
		return env.Result()
	}
	return p.commit(env.Result(), func() { p.active = env.Data })
}

func (p *DeliveryPanel) loadHistory(ctx context.Context) model.Result {
	env := p.api.ListDeliveryHistory(ctx, p.filter)
	if !env.Success {
		return env.Result()
	}
	return p.commit(env.Result(), func() { p.history = env.Data })
}

// loadEarnings fetches the earning lines and the summary. Either one is
// committed on its own success.
func (p *DeliveryPanel) loadEarnings(ctx context.Context) model.Result {
	list := p.api.ListEarnings(ctx, p.filter)
	if list.Success {
		if res := p.commit(list.Result(), func() { p.earnings = list.Data }); !res.Success {
			return res
		}
	}
	sum := p.api.GetEarningsSummary(ctx)
	if sum.Success {
		if res := p.commit(sum.Result(), func() { p.summary = sum.Data }); !res.Success {
			return res
		}
	}
	if !list.Success {
		return list.Result()
	}
	return sum.Result()
}

func (p *DeliveryPanel) loadPickups(ctx context.Context) model.Result {
	env := p.api.ListPickups(ctx, p.filter)
	if !env.Success {
		return env.Result()
	}
	return p.commit(env.Result(), func() { p.pickups = env.Data })
}

// FetchDelivery loads one delivery into the Current slot. The lists are not
// touched.
func (p *DeliveryPanel) FetchDelivery(ctx context.Context, id model.ID) model.Result {
	return p.run(ctx, "fetch_delivery", func(ctx context.Context) model.Result {
		env := p.api.GetDelivery(ctx, id)
		if !env.Success {
			return env.Result()
		}
		return p.commit(env.Result(), func() {
			d := env.Data
			p.current = &d
		})
	})
}

// AcceptDelivery accepts a delivery and keeps it in the active list.
func (p *DeliveryPanel) AcceptDelivery(ctx context.Context, id model.ID) model.Result {
	return p.action(ctx, "accept_delivery", func(ctx context.Context) model.Result {
		env := p.api.AcceptDelivery(ctx, id)
		if !env.Success {
			return env.Result()
		}
		return p.commit(env.Result(), func() {
			d := env.Data
			if i := indexOf(p.active, d.ID); i >= 0 && deliveryAck(d) {
				d = overlay(p.active[i], d)
			}
			p.active = upsert(p.active, d)
		})
	})
}

// UpdateDeliveryStatus moves a delivery to status. Delivered and cancelled
// deliveries leave the active list and are put at the top of the history.
func (p *DeliveryPanel) UpdateDeliveryStatus(ctx context.Context, id model.ID, status string) model.Result {
	return p.action(ctx, "update_delivery_status", func(ctx context.Context) model.Result {
		env := p.api.UpdateDeliveryStatus(ctx, id, status)
		if !env.Success {
			return env.Result()
		}
		return p.commit(env.Result(), func() {
			d := env.Data
			if i := indexOf(p.active, d.ID); i >= 0 && deliveryAck(d) {
				d = overlay(p.active[i], d)
			}
			if p.current != nil && p.current.ID == d.ID {
				cur := d
				if deliveryAck(d) {
					cur = overlay(*p.current, d)
				}
				p.current = &cur
			}
			if model.DeliveryFinished(d.Status) {
				p.active = removeID(p.active, d.ID)
				p.history = append([]model.Delivery{d}, removeID(p.history, d.ID)...)
				return
			}
			p.active = upsert(p.active, d)
		})
	})
}

// deliveryAck reports whether d is a bare transition acknowledgement rather
// than an echoed delivery.
func deliveryAck(d model.Delivery) bool {
	return d == model.Delivery{ID: d.ID, Status: d.Status}
}

// ConfirmPickup confirms a pickup and updates it in place.
func (p *DeliveryPanel) ConfirmPickup(ctx context.Context, id model.ID) model.Result {
	return p.action(ctx, "confirm_pickup", func(ctx context.Context) model.Result {
		env := p.api.ConfirmPickup(ctx, id)
		if !env.Success {
			return env.Result()
		}
		return p.commit(env.Result(), func() {
			if next, ok := patch(p.pickups, env.Data); ok {
				p.pickups = next
				return
			}
			p.pickups = upsert(p.pickups, env.Data)
		})
	})
}

// LoadProfile fetches the partner profile.
func (p *DeliveryPanel) LoadProfile(ctx context.Context) model.Result {
	return p.action(ctx, "load_profile", func(ctx context.Context) model.Result {
		env := p.api.GetProfile(ctx)
		if !env.Success {
			return env.Result()
		}
		return p.commit(env.Result(), func() {
			prof := env.Data
			p.profile = &prof
		})
	})
}

// UpdateProfile sends a partial profile update. A full record from the
// server replaces the local profile; a partial one is merged into it.
func (p *DeliveryPanel) UpdateProfile(ctx context.Context, in model.ProfileInput) model.Result {
	return p.action(ctx, "update_profile", func(ctx context.Context) model.Result {
		env := p.api.UpdateProfile(ctx, in)
		if !env.Success {
			return env.Result()
		}
		return p.commit(env.Result(), func() { p.mergeProfile(env.Data, !env.Data.ID.IsZero()) })
	})
}

// UploadProfileImage uploads a profile picture and merges the new image URL.
func (p *DeliveryPanel) UploadProfileImage(ctx context.Context, filename string, content io.Reader) model.Result {
	return p.action(ctx, "upload_profile_image", func(ctx context.Context) model.Result {
		env := p.api.UploadProfileImage(ctx, filename, content)
		if !env.Success {
			return env.Result()
		}
		return p.commit(env.Result(), func() { p.mergeProfile(env.Data, false) })
	})
}

// mergeProfile is called with mu held.
func (p *DeliveryPanel) mergeProfile(upd model.Profile, replace bool) {
	if p.profile == nil || replace {
		p.profile = &upd
		return
	}
	merged := overlay(*p.profile, upd)
	p.profile = &merged
}

// ExportStatement downloads the earnings statement for [from, to] and saves
// it to sink.
func (p *DeliveryPanel) ExportStatement(ctx context.Context, from, to time.Time, sink Sink) model.Result {
	return p.action(ctx, "export_statement", func(ctx context.Context) model.Result {
		if sink == nil {
			return model.Failed(model.ErrExportFailure, "No export destination configured")
		}
		env := p.api.DownloadStatement(ctx, from, to)
		if !env.Success {
			return env.Result()
		}
		location, err := sink.Save(ctx, env.Data.Filename, env.Data.Data)
		p.metrics.RecordExport(sink.Name(), err == nil)
		if err != nil {
			return model.Failed(model.ErrExportFailure, fmt.Sprintf("Failed to save %s: %v", env.Data.Filename, err))
		}
		return model.Succeeded("Statement saved to " + location)
	})
}
