// Package report renders schedules and episode outcomes for the terminal.
package report

import (
	"fmt"
	"io"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"golang.org/x/term"

	"github.com/Iron-Ham/crossing/internal/episode"
	"github.com/Iron-Ham/crossing/internal/geometry"
	"github.com/Iron-Ham/crossing/internal/metrics"
	"github.com/Iron-Ham/crossing/internal/schedule"
	"github.com/Iron-Ham/crossing/internal/vehicle"
)

var (
	primaryColor   = lipgloss.Color("#A78BFA") // Purple
	secondaryColor = lipgloss.Color("#10B981") // Green
	warningColor   = lipgloss.Color("#F59E0B") // Amber
	mutedColor     = lipgloss.Color("#9CA3AF") // Gray
	borderColor    = lipgloss.Color("#6B7280") // Gray
)

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// Writer renders sections to an output stream. Unstyled output has no
// colours or borders and stays easy to grep.
type Writer struct {
	w      io.Writer
	styled bool

	title  lipgloss.Style
	header lipgloss.Style
	muted  lipgloss.Style
	ok     lipgloss.Style
	warn   lipgloss.Style
}

// New creates a Writer on w.
func New(w io.Writer, styled bool) *Writer {
	r := lipgloss.NewRenderer(w)
	return &Writer{
		w:      w,
		styled: styled,
		title:  r.NewStyle().Bold(true).Foreground(primaryColor),
		header: r.NewStyle().Bold(true).Foreground(primaryColor).Padding(0, 1),
		muted:  r.NewStyle().Foreground(mutedColor),
		ok:     r.NewStyle().Foreground(secondaryColor),
		warn:   r.NewStyle().Foreground(warningColor).Bold(true),
	}
}

func (w *Writer) heading(s string) {
	if w.styled {
		fmt.Fprintln(w.w, w.title.Render(s))
		return
	}
	fmt.Fprintln(w.w, strings.ToUpper(s))
	fmt.Fprintln(w.w, strings.Repeat("─", 50))
}

func (w *Writer) table(headers []string, rows [][]string) {
	if !w.styled {
		fmt.Fprintln(w.w, strings.Join(headers, "\t"))
		for _, row := range rows {
			fmt.Fprintln(w.w, strings.Join(row, "\t"))
		}
		fmt.Fprintln(w.w)
		return
	}

	cell := lipgloss.NewStyle().Padding(0, 1)
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(borderColor)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return w.header
			}
			return cell
		})
	fmt.Fprintln(w.w, t.String())
	fmt.Fprintln(w.w)
}

// Order renders a passing order.
func (w *Writer) Order(order []vehicle.ID) {
	w.heading("Passing order")
	parts := make([]string, len(order))
	for i, id := range order {
		parts[i] = id.String()
	}
	if len(parts) == 0 {
		fmt.Fprintln(w.w, w.muted.Render("(empty)"))
	} else {
		fmt.Fprintln(w.w, strings.Join(parts, " → "))
	}
	fmt.Fprintln(w.w)
}

// Assignment renders per-vehicle deadlines in passing order, with each
// vehicle's exit time and delay when its state is known.
func (w *Writer) Assignment(title string, p schedule.Proposal, states map[vehicle.ID]vehicle.State, layout geometry.Layout) {
	w.heading(title)

	headers := []string{"vehicle", "path", "zone 0", "zone 1", "zone 2", "zone 3", "exit", "delay"}
	var rows [][]string
	for _, id := range schedule.Order(p) {
		d := p[id]
		row := []string{id.String(), pathString(schedule.Path(d))}
		for _, t := range d {
			row = append(row, seconds(t))
		}
		exit, delay := "-", "-"
		if st, ok := states[id]; ok && st.Speed() > 0 {
			e := schedule.Exit(d, st.Speed(), layout)
			exit = seconds(e)
			if path, err := geometry.ConflictZonePath(id.Lane, st.DestLane); err == nil {
				delay = seconds(e - layout.MinArrivalTime(st.Location, st.Speed(), path))
			}
		}
		rows = append(rows, append(row, exit, delay))
	}
	w.table(headers, rows)
}

// Episode renders the outcome of a run.
func (w *Writer) Episode(res *episode.Result) {
	w.heading("Episode " + res.EpisodeID)

	fmt.Fprintf(w.w, "Agreed in round:  %d\n", res.AgreedRound)
	fmt.Fprintf(w.w, "Last finish:      round %d\n", res.Rounds)
	fmt.Fprintf(w.w, "Winning proposal: %s\n", res.Winner)
	if len(res.Conflicts) == 0 {
		fmt.Fprintf(w.w, "Zone conflicts:   %s\n", w.ok.Render("none"))
	} else {
		fmt.Fprintf(w.w, "Zone conflicts:   %s\n", w.warn.Render(strconv.Itoa(len(res.Conflicts))))
	}
	if res.Dropped > 0 {
		fmt.Fprintf(w.w, "Dropped messages: %d\n", res.Dropped)
	}
	fmt.Fprintln(w.w)

	if len(res.Totals) > 0 {
		keys := make([]vehicle.FleetKey, 0, len(res.Totals))
		for k := range res.Totals {
			keys = append(keys, k)
		}
		slices.SortFunc(keys, vehicle.CompareFleetKeys)
		var rows [][]string
		for _, k := range keys {
			mark := ""
			if k == res.Winner {
				mark = "✓"
			}
			rows = append(rows, []string{k.String(), strconv.FormatFloat(res.Totals[k], 'f', 3, 64), mark})
		}
		w.table([]string{"proposer", "total score", "selected"}, rows)
	}

	ids := make([]vehicle.ID, 0, len(res.Finished))
	for id := range res.Finished {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b vehicle.ID) int {
		if c := res.Finished[a] - res.Finished[b]; c != 0 {
			return c
		}
		return vehicle.Compare(a, b)
	})
	var rows [][]string
	for _, id := range ids {
		rows = append(rows, []string{id.String(), strconv.Itoa(res.Finished[id])})
	}
	w.table([]string{"vehicle", "finished in round"}, rows)

	for _, c := range res.Conflicts {
		fmt.Fprintln(w.w, w.warn.Render(fmt.Sprintf("zone %d: %s entered while %s was inside", c.Zone, c.Entrant, c.Occupant)))
	}
}

// Metrics renders flattened metric samples.
func (w *Writer) Metrics(samples []metrics.Sample) {
	if len(samples) == 0 {
		return
	}
	w.heading("Metrics")
	var rows [][]string
	for _, s := range samples {
		rows = append(rows, []string{s.Name, s.Labels, strconv.FormatFloat(s.Value, 'g', -1, 64)})
	}
	w.table([]string{"metric", "labels", "value"}, rows)
}

func seconds(t float64) string {
	if t == schedule.Unused || math.IsInf(t, 0) {
		return "-"
	}
	return strconv.FormatFloat(t, 'f', 3, 64)
}

func pathString(zones []int) string {
	parts := make([]string, len(zones))
	for i, z := range zones {
		parts[i] = strconv.Itoa(z)
	}
	return strings.Join(parts, "→")
}
