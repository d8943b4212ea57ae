package view

import (
	"context"
	"fmt"
	"io"

	"github.com/pitabwire/opsdesk/internal/oplog"
	"github.com/pitabwire/opsdesk/internal/store"
	"github.com/pitabwire/opsdesk/model"
)

// PanelSource is what PanelView reads. *store.DeliveryPanel implements it.
type PanelSource interface {
	State() store.PanelState
	Log() *oplog.Log
	Refresh(ctx context.Context) model.Result
}

// PanelView renders the delivery panel and its operation log.
type PanelView struct {
	source PanelSource
	// LogLines caps the operation log section; zero shows every entry.
	LogLines int
}

// NewPanelView creates a panel view.
func NewPanelView(source PanelSource) *PanelView {
	return &PanelView{source: source, LogLines: 10}
}

// Retry re-runs the panel refresh.
func (v *PanelView) Retry(ctx context.Context) model.Result {
	return v.source.Refresh(ctx)
}

// Render writes every section, then the operation log.
func (v *PanelView) Render(w io.Writer) error {
	st := v.source.State()
	fmt.Fprintln(w, "== Delivery panel ==")
	switch st.Phase() {
	case store.PhaseLoading:
		fmt.Fprintln(w, "Loading delivery panel...")
	case store.PhaseError:
		fmt.Fprintf(w, "Error: %s\nRetry to reload the delivery panel.\n", st.Err)
	case store.PhaseEmpty:
		fmt.Fprintln(w, "Nothing to show yet. Refresh to load your deliveries.")
	}
	if st.Phase() != store.PhaseEmpty && !st.Loading {
		if err := v.renderSections(w, st); err != nil {
			return err
		}
	}
	return v.renderLog(w)
}

func (v *PanelView) renderSections(w io.Writer, st store.PanelState) error {
	d := st.Dashboard
	fmt.Fprintf(w, "Active %d | Completed today %d | Earned today %s | Rating %.1f | Pending pickups %d\n",
		d.ActiveDeliveries, d.CompletedToday, money(d.EarningsToday), d.Rating, d.PendingPickups)

	if p := st.Profile; p != nil {
		availability := "offline"
		if p.Available {
			availability = "available"
		}
		fmt.Fprintf(w, "Partner %s (%s) %s %s\n", sanitize(p.Name), availability, sanitize(p.VehicleType), sanitize(p.VehicleNumber))
	}

	if err := section(w, "Active deliveries", "No active deliveries.", deliveryColumns, st.Active); err != nil {
		return err
	}
	if err := section(w, "Delivery history", "No past deliveries.", deliveryColumns, st.History); err != nil {
		return err
	}
	s := st.Summary
	fmt.Fprintf(w, "\nEarnings: today %s | week %s | month %s | total %s | pending %s\n",
		money(s.Today), money(s.Week), money(s.Month), money(s.Total), money(s.Pending))
	if err := section(w, "Earnings", "No earnings yet.", earningColumns, st.Earnings); err != nil {
		return err
	}
	return section(w, "Pickups", "No pickups scheduled.", pickupColumns, st.Pickups)
}

func section[E any](w io.Writer, title, empty string, columns []Column[E], items []E) error {
	fmt.Fprintf(w, "\n-- %s --\n", title)
	if len(items) == 0 {
		_, err := fmt.Fprintln(w, empty)
		return err
	}
	return writeTable(w, columns, items)
}

func (v *PanelView) renderLog(w io.Writer) error {
	entries := v.source.Log().Entries()
	if v.LogLines > 0 && len(entries) > v.LogLines {
		entries = entries[len(entries)-v.LogLines:]
	}
	fmt.Fprintln(w, "\n-- Operation log --")
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "No operations yet.")
		return err
	}
	for _, e := range entries {
		if _, err := fmt.Fprintf(w, "%s [%s] %s\n", e.Timestamp.Format("15:04:05"), e.Type, sanitize(e.Message)); err != nil {
			return err
		}
	}
	return nil
}
