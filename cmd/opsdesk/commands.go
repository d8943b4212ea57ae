package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pitabwire/opsdesk/internal/export"
	"github.com/pitabwire/opsdesk/internal/store"
	"github.com/pitabwire/opsdesk/internal/tokenstore"
	"github.com/pitabwire/opsdesk/internal/view"
	"github.com/pitabwire/opsdesk/model"
)

type command func(ctx context.Context, a *app, args []string, stdout, stderr io.Writer) int

var commands = map[string]command{
	"serve":      runServe,
	"attributes": runAttributes,
	"brands":     runBrands,
	"offers":     runOffers,
	"delivery":   runDelivery,
	"statement":  runStatement,
	"token":      runToken,
}

// filterFlags registers the list filter flags on fs.
type filterFlags struct {
	status, typ, search string
	page, perPage       int
	from, to            string
}

func (ff *filterFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&ff.status, "status", "", "filter by status")
	fs.StringVar(&ff.typ, "type", "", "filter by type")
	fs.StringVar(&ff.search, "search", "", "free-text search")
	fs.IntVar(&ff.page, "page", 0, "page number")
	fs.IntVar(&ff.perPage, "per-page", 0, "page size")
	fs.StringVar(&ff.from, "from", "", "start date (YYYY-MM-DD)")
	fs.StringVar(&ff.to, "to", "", "end date (YYYY-MM-DD)")
}

func (ff *filterFlags) filter() (model.Filter, error) {
	var f model.Filter
	var err error
	if f.StartDate, err = model.ParseDate(ff.from); err != nil {
		return f, fmt.Errorf("-from: %w", err)
	}
	if f.EndDate, err = model.ParseDate(ff.to); err != nil {
		return f, fmt.Errorf("-to: %w", err)
	}
	if ff.page > 0 {
		f.Page = model.Int(ff.page)
	}
	if ff.perPage > 0 {
		f.PerPage = model.Int(ff.perPage)
	}
	if ff.status != "" {
		f.Status = model.String(ff.status)
	}
	if ff.typ != "" {
		f.Type = model.String(ff.typ)
	}
	if ff.search != "" {
		f.Search = model.String(ff.search)
	}
	return f, nil
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

// --- catalog ---

func runAttributes(ctx context.Context, a *app, args []string, stdout, stderr io.Writer) int {
	s := store.NewAttributeStore(a.api, a.storeOptions(model.Filter{})...)
	defer s.Close()
	return catalog(ctx, s, "Attributes", view.AttributeColumns, args, stdout, stderr)
}

func runBrands(ctx context.Context, a *app, args []string, stdout, stderr io.Writer) int {
	s := store.NewBrandStore(a.api, a.storeOptions(model.Filter{})...)
	defer s.Close()
	return catalog(ctx, s, "Brands", view.BrandColumns, args, stdout, stderr)
}

func runOffers(ctx context.Context, a *app, args []string, stdout, stderr io.Writer) int {
	s := store.NewOfferStore(a.api, a.storeOptions(model.Filter{})...)
	defer s.Close()

	if len(args) > 0 && args[0] == "toggle" {
		if len(args) != 3 {
			fmt.Fprintln(stderr, "usage: opsdesk offers toggle <id> on|off")
			return 2
		}
		var active bool
		switch args[2] {
		case "on", "true", "active":
			active = true
		case "off", "false", "inactive":
		default:
			fmt.Fprintf(stderr, "invalid state %q, want on or off\n", args[2])
			return 2
		}
		return report(stdout, stderr, s.Toggle(ctx, model.ParseID(args[1]), active))
	}
	return catalog(ctx, s.Collection, "Offers", view.OfferColumns, args, stdout, stderr)
}

// catalog dispatches the collection subcommands: list (default), get,
// create, update and delete. Create and update read the payload as JSON.
func catalog[E model.Entity, In any](ctx context.Context, c *store.Collection[E, In], title string, cols []view.Column[E], args []string, stdout, stderr io.Writer) int {
	sub := "list"
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		sub, args = args[0], args[1:]
	}
	lv := view.NewListView[E](c, title, cols...)

	switch sub {
	case "list":
		fs := newFlagSet(c.Name()+" list", stderr)
		var ff filterFlags
		ff.register(fs)
		if err := fs.Parse(args); err != nil {
			return 2
		}
		f, err := ff.filter()
		if err != nil {
			fmt.Fprintln(stderr, err)
			return 2
		}
		res := c.FetchAll(ctx, f)
		if err := lv.Render(stdout); err != nil {
			return 1
		}
		return exitCode(res)

	case "get", "delete":
		if len(args) != 1 {
			fmt.Fprintf(stderr, "usage: opsdesk %s %s <id>\n", c.Name(), sub)
			return 2
		}
		id := model.ParseID(args[0])
		if sub == "delete" {
			return report(stdout, stderr, c.Delete(ctx, id))
		}
		res := c.FetchByID(ctx, id)
		if !res.Success {
			return report(stdout, stderr, res)
		}
		return printJSON(stdout, c.State().Current)

	case "create", "update":
		fs := newFlagSet(c.Name()+" "+sub, stderr)
		payload := fs.String("json", "", "payload as a JSON object")
		if err := fs.Parse(args); err != nil {
			return 2
		}
		var in In
		if err := json.Unmarshal([]byte(*payload), &in); err != nil {
			fmt.Fprintf(stderr, "invalid -json payload: %v\n", err)
			return 2
		}
		var res model.Result
		if sub == "create" {
			if fs.NArg() != 0 {
				fmt.Fprintf(stderr, "usage: opsdesk %s create -json '{...}'\n", c.Name())
				return 2
			}
			res = c.Create(ctx, in)
		} else {
			if fs.NArg() != 1 {
				fmt.Fprintf(stderr, "usage: opsdesk %s update -json '{...}' <id>\n", c.Name())
				return 2
			}
			res = c.Update(ctx, model.ParseID(fs.Arg(0)), in)
		}
		return report(stdout, stderr, res)

	default:
		fmt.Fprintf(stderr, "unknown %s subcommand %q\n", c.Name(), sub)
		return 2
	}
}

// report prints an action result: the message on stdout for successes,
// on stderr for failures.
func report(stdout, stderr io.Writer, res model.Result) int {
	if res.Success {
		fmt.Fprintln(stdout, res.Message)
	} else {
		fmt.Fprintf(stderr, "error: %s\n", res.Message)
	}
	return exitCode(res)
}

// --- delivery ---

func runDelivery(ctx context.Context, a *app, args []string, stdout, stderr io.Writer) int {
	sub := "show"
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		sub, args = args[0], args[1:]
	}

	fs := newFlagSet("delivery "+sub, stderr)
	var ff filterFlags
	if sub == "show" {
		ff.register(fs)
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	f, err := ff.filter()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	p := store.NewDeliveryPanel(a.api, a.storeOptions(f)...)
	defer p.Close()

	need := map[string]int{"show": 0, "profile": 0, "get": 1, "accept": 1, "confirm-pickup": 1, "upload-image": 1, "status": 2}
	n, ok := need[sub]
	if !ok {
		fmt.Fprintf(stderr, "unknown delivery subcommand %q\n", sub)
		return 2
	}
	if fs.NArg() != n {
		fmt.Fprintf(stderr, "delivery %s takes %d argument(s)\n", sub, n)
		return 2
	}

	switch sub {
	case "get":
		res := p.FetchDelivery(ctx, model.ParseID(fs.Arg(0)))
		if !res.Success {
			return report(stdout, stderr, res)
		}
		return printJSON(stdout, p.State().Current)
	case "accept":
		return report(stdout, stderr, p.AcceptDelivery(ctx, model.ParseID(fs.Arg(0))))
	case "status":
		return report(stdout, stderr, p.UpdateDeliveryStatus(ctx, model.ParseID(fs.Arg(0)), fs.Arg(1)))
	case "confirm-pickup":
		return report(stdout, stderr, p.ConfirmPickup(ctx, model.ParseID(fs.Arg(0))))
	case "upload-image":
		file, err := os.Open(fs.Arg(0))
		if err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
			return 1
		}
		defer file.Close()
		return report(stdout, stderr, p.UploadProfileImage(ctx, filepath.Base(fs.Arg(0)), file))
	case "profile":
		res := p.LoadProfile(ctx)
		if !res.Success {
			return report(stdout, stderr, res)
		}
		return printJSON(stdout, p.State().Profile)
	}

	res := p.Refresh(ctx)
	if err := view.NewPanelView(p).Render(stdout); err != nil {
		return 1
	}
	return exitCode(res)
}

func printJSON(w io.Writer, v any) int {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return 1
	}
	return 0
}

func runStatement(ctx context.Context, a *app, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("statement", stderr)
	from := fs.String("from", "", "first day (YYYY-MM-DD)")
	to := fs.String("to", "", "last day (YYYY-MM-DD), defaults to today")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	start, err := model.ParseDate(*from)
	if err != nil || start == nil {
		fmt.Fprintln(stderr, "-from is required as YYYY-MM-DD")
		return 2
	}
	end, err := model.ParseDate(*to)
	if err != nil {
		fmt.Fprintln(stderr, "-to must be YYYY-MM-DD")
		return 2
	}
	if end == nil {
		end = model.Date(time.Now())
	}
	if end.Before(*start) {
		fmt.Fprintln(stderr, "-to is before -from")
		return 2
	}

	sink, err := export.Open(ctx, a.cfg.Export)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}

	p := store.NewDeliveryPanel(a.api, a.storeOptions(model.Filter{})...)
	defer p.Close()
	return report(stdout, stderr, p.ExportStatement(ctx, *start, *end, sink))
}

// --- token ---

func runToken(ctx context.Context, a *app, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, "usage: opsdesk token set <token>|clear|inspect")
		return 2
	}

	switch args[0] {
	case "set":
		if len(args) != 2 || args[1] == "" {
			fmt.Fprintln(stderr, "usage: opsdesk token set <token>")
			return 2
		}
		if err := a.tokens.SetToken(ctx, args[1]); err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
			return 1
		}
		fmt.Fprintln(stdout, "Token saved")
		return 0

	case "clear":
		if err := a.tokens.Clear(ctx); err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
			return 1
		}
		fmt.Fprintln(stdout, "Token cleared")
		return 0

	case "inspect":
		token, err := a.tokens.Token(ctx)
		if err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
			return 1
		}
		if token == "" {
			fmt.Fprintln(stdout, "No token stored")
			return 1
		}
		info, err := tokenstore.Inspect(token)
		if err != nil {
			fmt.Fprintln(stdout, "Token is opaque")
			return 0
		}
		subject := info.Subject
		if subject == "" {
			subject = "-"
		}
		fmt.Fprintf(stdout, "subject: %s\n", subject)
		switch {
		case info.ExpiresAt.IsZero():
			fmt.Fprintln(stdout, "expires: never")
		case info.Expired(time.Now()):
			fmt.Fprintf(stdout, "expired: %s\n", info.ExpiresAt.UTC().Format(time.RFC3339))
		default:
			fmt.Fprintf(stdout, "expires: %s\n", info.ExpiresAt.UTC().Format(time.RFC3339))
		}
		return 0

	default:
		fmt.Fprintf(stderr, "unknown token subcommand %q\n", args[0])
		return 2
	}
}
