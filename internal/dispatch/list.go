package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"gmab/internal/errdefs"
)

// Output formats for list
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

// ListOptions selects the provider and output format for list
type ListOptions struct {
	Provider string
	Format   string
}

type column struct {
	title string
	width int
	value func(Listing) string
}

var columns = []column{
	{"Provider", 10, func(l Listing) string { return l.Provider }},
	{"Instance ID", 22, func(l Listing) string { return l.ID }},
	{"Label", 20, func(l Listing) string { return l.Label }},
	{"IP Address", 18, func(l Listing) string { return orDefault(l.IP, "No IP") }},
	{"Status", 20, func(l Listing) string { return l.StatusLabel }},
	{"Region", 15, func(l Listing) string { return l.Region }},
	{"Image", 25, func(l Listing) string { return l.Image }},
	{"Time Left", 15, func(l Listing) string { return l.TimeLeft }},
}

// List prints gmab instances of one or every configured provider. Providers
// that fail are reported as warnings and make List return an error after the
// rest have been rendered.
func (d *Dispatcher) List(ctx context.Context, opts ListOptions) ([]Listing, error) {
	format := strings.ToLower(orDefault(opts.Format, FormatTable))
	if format != FormatTable && format != FormatJSON && format != FormatYAML {
		return nil, errdefs.Validation("unknown output format '%s' (want table, json or yaml)", opts.Format)
	}

	c, err := d.collect(ctx, opts.Provider)
	if err != nil {
		return nil, err
	}

	// providers are listed in name order already; keep API order within each
	sort.SliceStable(c.listings, func(i, j int) bool {
		return c.listings[i].Provider < c.listings[j].Provider
	})

	if err := render(d.out, format, c.listings); err != nil {
		return nil, err
	}

	if c.failed > 0 {
		return c.listings, fmt.Errorf("failed to list instances from %d provider(s)", c.failed)
	}
	return c.listings, nil
}

func render(w io.Writer, format string, listings []Listing) error {
	switch format {
	case FormatJSON:
		if listings == nil {
			listings = []Listing{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(listings); err != nil {
			return fmt.Errorf("failed to encode instances: %w", err)
		}
		return nil
	case FormatYAML:
		if listings == nil {
			listings = []Listing{}
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(listings); err != nil {
			return fmt.Errorf("failed to encode instances: %w", err)
		}
		return enc.Close()
	default:
		renderTable(w, listings)
		return nil
	}
}

func renderTable(w io.Writer, listings []Listing) {
	if len(listings) == 0 {
		fmt.Fprintln(w, "No active instances found.")
		return
	}

	cells := make([]string, len(columns))
	total := len(columns) - 1
	for i, col := range columns {
		cells[i] = fmt.Sprintf("%-*s", col.width, col.title)
		total += col.width
	}
	fmt.Fprintln(w, strings.TrimRight(strings.Join(cells, " "), " "))
	fmt.Fprintln(w, strings.Repeat("=", total))

	for _, l := range listings {
		for i, col := range columns {
			cells[i] = fmt.Sprintf("%-*s", col.width, col.value(l))
		}
		fmt.Fprintln(w, strings.TrimRight(strings.Join(cells, " "), " "))
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
