package components

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// ConnectionStatus represents a connection's status.
type ConnectionStatus struct {
	Name      string
	Connected bool
	Latency   time.Duration
	Block     uint64
	LastSeen  time.Time
}

// StatusComponent renders one line per upstream connection.
type StatusComponent struct {
	connections []ConnectionStatus
}

// NewStatusComponent creates a new status component.
func NewStatusComponent() *StatusComponent {
	return &StatusComponent{
		connections: make([]ConnectionStatus, 0),
	}
}

// Update updates a connection's status. A disconnected update keeps the
// last time the connection was seen up.
func (s *StatusComponent) Update(status ConnectionStatus) {
	for i, conn := range s.connections {
		if conn.Name == status.Name {
			if !status.Connected {
				status.LastSeen = conn.LastSeen
				if conn.Block > status.Block {
					status.Block = conn.Block
				}
			}
			s.connections[i] = status
			return
		}
	}
	s.connections = append(s.connections, status)
}

// View renders the status component.
func (s *StatusComponent) View() string {
	if len(s.connections) == 0 {
		return dimStyle.Render("no connections")
	}

	parts := make([]string, 0, len(s.connections))
	for _, conn := range s.connections {
		status := "●"
		style := lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
		if !conn.Connected {
			status = "○"
			style = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
		}

		line := fmt.Sprintf("%s %s", style.Render(status), conn.Name)
		if conn.Block > 0 {
			line += fmt.Sprintf(" #%d", conn.Block)
		}
		if conn.Connected && conn.Latency > 0 {
			line += fmt.Sprintf(" (%s)", conn.Latency.Round(time.Millisecond))
		}
		if !conn.Connected && !conn.LastSeen.IsZero() {
			line += dimStyle.Render(fmt.Sprintf(" (down %s)", time.Since(conn.LastSeen).Round(time.Second)))
		}
		parts = append(parts, line)
	}
	return strings.Join(parts, "  │  ")
}
