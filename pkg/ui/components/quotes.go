package components

import (
	"fmt"
	"strings"
)

// QuoteRow is one route's state inside a quote session.
type QuoteRow struct {
	Route     string
	AmountOut string
	GasUSD    string
	Impact    string
	Loading   bool
	Err       string
}

// SessionView is one quote session.
type SessionView struct {
	ID      string
	Pair    string
	Amount  string
	Best    string
	Loading bool
	Rows    []QuoteRow
}

// QuotesComponent renders open quote sessions with the best route marked.
type QuotesComponent struct {
	sessions map[string]SessionView
	order    []string
	maxShown int
}

// NewQuotesComponent creates a quotes panel showing at most maxShown
// sessions, newest first.
func NewQuotesComponent(maxShown int) *QuotesComponent {
	return &QuotesComponent{sessions: make(map[string]SessionView), maxShown: maxShown}
}

// Upsert replaces a session's view.
func (q *QuotesComponent) Upsert(s SessionView) {
	if _, ok := q.sessions[s.ID]; !ok {
		q.order = append([]string{s.ID}, q.order...)
	}
	q.sessions[s.ID] = s
}

// Remove drops a session.
func (q *QuotesComponent) Remove(id string) {
	delete(q.sessions, id)
	for i, o := range q.order {
		if o == id {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
}

// Clear drops every session.
func (q *QuotesComponent) Clear() {
	q.sessions = make(map[string]SessionView)
	q.order = nil
}

// Len returns the number of sessions shown.
func (q *QuotesComponent) Len() int {
	return len(q.order)
}

// View renders the panel.
func (q *QuotesComponent) View() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("QUOTE SESSIONS"))
	b.WriteString("\n\n")

	if len(q.order) == 0 {
		b.WriteString(dimStyle.Render("  No open sessions"))
		return b.String()
	}

	for i, id := range q.order {
		if q.maxShown > 0 && i >= q.maxShown {
			b.WriteString(dimStyle.Render(fmt.Sprintf("  ... %d more", len(q.order)-q.maxShown)) + "\n")
			break
		}
		s := q.sessions[id]
		title := fmt.Sprintf("  %s  %s", s.Pair, s.Amount)
		if s.Loading {
			title += warnStyle.Render("  refreshing")
		}
		b.WriteString(title + "\n")

		for _, r := range s.Rows {
			b.WriteString(renderQuoteRow(r, r.Route == s.Best))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func renderQuoteRow(r QuoteRow, best bool) string {
	marker := "  "
	if best {
		marker = bestStyle.Render("★ ")
	}
	switch {
	case r.Loading:
		return fmt.Sprintf("   %s%-10s %s\n", marker, r.Route, dimStyle.Render("loading..."))
	case r.Err != "":
		return fmt.Sprintf("   %s%-10s %s\n", marker, r.Route, negativeStyle.Render(r.Err))
	}
	line := fmt.Sprintf("%-10s %16s  gas $%-8s impact %s", r.Route, r.AmountOut, r.GasUSD, r.Impact)
	if best {
		line = bestStyle.Render(line)
	}
	return "   " + marker + line + "\n"
}
