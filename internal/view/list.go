// Package view renders store state as plain text for the command line.
// Views only read state; every change goes through store actions.
package view

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/pitabwire/opsdesk/internal/store"
	"github.com/pitabwire/opsdesk/model"
)

// Column renders one field of E.
type Column[E any] struct {
	Header string
	Value  func(E) string
}

// Source is a container a ListView reads and retries. *store.Collection
// implements it.
type Source[E any] interface {
	Name() string
	State() store.State[E]
	Refresh(ctx context.Context) model.Result
}

// ListView renders one collection.
type ListView[E any] struct {
	source  Source[E]
	title   string
	columns []Column[E]
	empty   string
}

// NewListView creates a view of source with the given columns.
func NewListView[E any](source Source[E], title string, columns ...Column[E]) *ListView[E] {
	return &ListView[E]{
		source:  source,
		title:   title,
		columns: columns,
		empty:   fmt.Sprintf("No %s found.", strings.ToLower(title)),
	}
}

// WithEmptyMessage overrides the empty-state line.
func (v *ListView[E]) WithEmptyMessage(msg string) *ListView[E] {
	v.empty = msg
	return v
}

// Render writes the current state.
func (v *ListView[E]) Render(w io.Writer) error {
	st := v.source.State()
	if _, err := fmt.Fprintf(w, "== %s ==\n", v.title); err != nil {
		return err
	}
	switch st.Phase() {
	case store.PhaseLoading:
		_, err := fmt.Fprintf(w, "Loading %s...\n", strings.ToLower(v.title))
		return err
	case store.PhaseError:
		_, err := fmt.Fprintf(w, "Error: %s\nRetry to reload %s.\n", st.Err, strings.ToLower(v.title))
		return err
	case store.PhaseEmpty:
		_, err := fmt.Fprintln(w, v.empty)
		return err
	}
	return writeTable(w, v.columns, st.Items)
}

// Retry re-runs the last fetch.
func (v *ListView[E]) Retry(ctx context.Context) model.Result {
	return v.source.Refresh(ctx)
}

func writeTable[E any](w io.Writer, columns []Column[E], items []E) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	headers := make([]string, len(columns))
	for i, c := range columns {
		headers[i] = c.Header
	}
	fmt.Fprintln(tw, strings.Join(headers, "\t"))
	for _, it := range items {
		cells := make([]string, len(columns))
		for i, c := range columns {
			cells[i] = sanitize(c.Value(it))
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	return tw.Flush()
}

// sanitize keeps a cell on one line and out of the tab layout.
func sanitize(s string) string {
	if s == "" {
		return "-"
	}
	return strings.NewReplacer("\t", " ", "\n", " ", "\r", " ").Replace(s)
}
