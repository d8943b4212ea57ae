package store

import (
	"context"

	"go.uber.org/zap"

	"github.com/pitabwire/opsdesk/model"
)

// Resource is the set of endpoint wrappers a Collection drives.
// *endpoint.Resource implements it.
type Resource[E model.Entity, In any] interface {
	Name() string
	List(ctx context.Context, f model.Filter) model.Envelope[[]E]
	Get(ctx context.Context, id model.ID) model.Envelope[E]
	Create(ctx context.Context, in In) model.Envelope[E]
	Update(ctx context.Context, id model.ID, in In) model.Envelope[E]
	Delete(ctx context.Context, id model.ID) model.Envelope[model.ID]
}

// State is a snapshot of a collection. Err is empty when there is no error.
type State[E any] struct {
	Loading bool   `json:"loading"`
	Err     string `json:"error,omitempty"`
	Items   []E    `json:"items"`
	Current *E     `json:"current,omitempty"`
}

// Phase reports what a view should render.
func (s State[E]) Phase() Phase {
	switch {
	case s.Loading:
		return PhaseLoading
	case s.Err != "":
		return PhaseError
	case len(s.Items) == 0:
		return PhaseEmpty
	default:
		return PhaseReady
	}
}

// Collection is the state container of one backend collection.
type Collection[E model.Entity, In any] struct {
	core

	resource   Resource[E, In]
	policy     CreatePolicy
	staleGuard bool
	base       model.Filter

	// guarded by core.mu
	items   []E
	current *E
	last    model.Filter
	issued  uint64
	applied uint64
}

// NewCollection creates an empty collection backed by resource.
func NewCollection[E model.Entity, In any](resource Resource[E, In], opts ...Option) *Collection[E, In] {
	s := newSettings(resource.Name(), opts)
	c := &Collection[E, In]{
		resource:   resource,
		policy:     s.policy,
		staleGuard: s.staleGuard,
		base:       s.filter,
		last:       s.filter,
		items:      []E{},
	}
	c.core.init(s)
	return c
}

// State returns a copy of the current state.
func (c *Collection[E, In]) State() State[E] {
	c.mu.Lock()
	defer c.mu.Unlock()
	loading, err := c.status()
	st := State[E]{Loading: loading, Err: err, Items: make([]E, len(c.items))}
	copy(st.Items, c.items)
	if c.current != nil {
		cur := *c.current
		st.Current = &cur
	}
	return st
}

// FetchAll replaces the local collection with the server's. f is applied on
// top of the collection's base filter.
func (c *Collection[E, In]) FetchAll(ctx context.Context, f model.Filter) model.Result {
	return c.run(ctx, "fetch_all", func(ctx context.Context) model.Result {
		return c.fetchAll(ctx, c.base.Merge(f))
	})
}

// Refresh repeats the last fetch with the same filter.
func (c *Collection[E, In]) Refresh(ctx context.Context) model.Result {
	return c.run(ctx, "fetch_all", func(ctx context.Context) model.Result {
		return c.fetchAll(ctx, c.lastFilter())
	})
}

func (c *Collection[E, In]) lastFilter() model.Filter {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

func (c *Collection[E, In]) fetchAll(ctx context.Context, f model.Filter) model.Result {
	c.mu.Lock()
	c.last = f
	c.issued++
	gen := c.issued
	c.mu.Unlock()

	env := c.resource.List(ctx, f)
	if !env.Success {
		return env.Result()
	}

	stale := false
	applied := c.apply(func() {
		if c.staleGuard && gen <= c.applied {
			stale = true
			return
		}
		c.applied = gen
		c.items = env.Data
		if c.items == nil {
			c.items = []E{}
		}
	})
	if !applied {
		return c.closedResult()
	}
	if stale {
		c.metrics.RecordStaleDiscarded(c.name)
		c.logger.Debug("store: discarded stale fetch response", zap.Uint64("generation", gen))
	}
	return env.Result()
}

// markFresh makes every fetch issued so far stale. Callers hold mu.
func (c *Collection[E, In]) markFresh() {
	if c.staleGuard {
		c.applied = c.issued
	}
}

// FetchByID loads one entity into the Current slot. The list is not touched.
func (c *Collection[E, In]) FetchByID(ctx context.Context, id model.ID) model.Result {
	return c.run(ctx, "fetch_by_id", func(ctx context.Context) model.Result {
		env := c.resource.Get(ctx, id)
		if !env.Success {
			return env.Result()
		}
		if !c.apply(func() {
			e := env.Data
			c.current = &e
		}) {
			return c.closedResult()
		}
		return env.Result()
	})
}

// Create creates an entity and reconciles it according to the create policy.
// On success the collection holds exactly one entity with the returned id.
func (c *Collection[E, In]) Create(ctx context.Context, in In) model.Result {
	return c.run(ctx, "create", func(ctx context.Context) model.Result {
		env := c.resource.Create(ctx, in)
		if !env.Success {
			return env.Result()
		}
		created := env.Data
		id := created.EntityID()

		if c.policy == Refetch || id.IsZero() {
			if res := c.fetchAll(ctx, c.lastFilter()); !res.Success {
				c.logger.Warn("store: refetch after create failed", zap.String("message", res.Message))
			}
		}
		if !id.IsZero() {
			if !c.apply(func() {
				if c.policy == Append || indexOf(c.items, id) < 0 {
					c.items = upsert(c.items, created)
				}
				c.markFresh()
			}) {
				return c.closedResult()
			}
		}
		return env.Result()
	})
}

// Update sends in and replaces the entity in the collection and the Current
// slot with the server's record. When the server does not echo the entity
// the collection is reloaded instead.
func (c *Collection[E, In]) Update(ctx context.Context, id model.ID, in In) model.Result {
	return c.run(ctx, "update", func(ctx context.Context) model.Result {
		env := c.resource.Update(ctx, id, in)
		if !env.Success {
			return env.Result()
		}
		if env.Data.EntityID().IsZero() {
			if res := c.fetchAll(ctx, c.lastFilter()); !res.Success {
				c.logger.Warn("store: refetch after update failed", zap.String("message", res.Message))
			}
			return env.Result()
		}
		if !c.reconcile(env.Data, false) {
			return c.closedResult()
		}
		return env.Result()
	})
}

// reconcile puts upd into the list and the Current slot. With merge set, upd
// is an acknowledgement and is overlaid onto the held entity; otherwise it is
// the server's full record and replaces it.
func (c *Collection[E, In]) reconcile(upd E, merge bool) bool {
	return c.apply(func() {
		if merge {
			c.items, _ = patch(c.items, upd)
		} else {
			c.items, _ = replaceID(c.items, upd)
		}
		if c.current != nil && (*c.current).EntityID() == upd.EntityID() {
			cur := upd
			if merge {
				cur = overlay(*c.current, upd)
			}
			c.current = &cur
		}
		c.markFresh()
	})
}

// Delete removes an entity. Deleting an id that is not held locally still
// succeeds when the server does.
func (c *Collection[E, In]) Delete(ctx context.Context, id model.ID) model.Result {
	return c.run(ctx, "delete", func(ctx context.Context) model.Result {
		env := c.resource.Delete(ctx, id)
		if !env.Success {
			return env.Result()
		}
		id := model.ParseID(id)
		if !c.apply(func() {
			c.items = removeID(c.items, id)
			if c.current != nil && (*c.current).EntityID() == id {
				c.current = nil
			}
			c.markFresh()
		}) {
			return c.closedResult()
		}
		return env.Result()
	})
}
