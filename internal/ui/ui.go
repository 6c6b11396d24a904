// Package ui provides the terminal approval picker used before advisory
// results are persisted, and the lipgloss styles shared by CLI reports.
package ui

import (
	"context"
	"fmt"
	"io"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Item is one proposal the user can accept or reject.
type Item struct {
	ID       string
	Label    string
	Detail   string
	Selected bool
}

// Model holds the picker state.
type Model struct {
	title     string
	items     []Item
	cursor    int
	scroll    int
	width     int
	height    int
	confirmed bool
	quitting  bool

	styles *Styles
}

// Styles holds lipgloss styles for the picker and CLI reports.
type Styles struct {
	// Text styles
	Title     lipgloss.Style
	Subtitle  lipgloss.Style
	Label     lipgloss.Style
	Value     lipgloss.Style
	Highlight lipgloss.Style
	Muted     lipgloss.Style

	// Status indicators
	StatusOK    lipgloss.Style
	StatusWarn  lipgloss.Style
	StatusError lipgloss.Style

	// Item list
	ItemSelected lipgloss.Style
	ItemNormal   lipgloss.Style

	// Help bar
	HelpKey  lipgloss.Style
	HelpText lipgloss.Style
}

// DefaultStyles creates the default style set.
func DefaultStyles() *Styles {
	subtle := lipgloss.AdaptiveColor{Light: "#666", Dark: "#888"}
	highlight := lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	green := lipgloss.AdaptiveColor{Light: "#22863a", Dark: "#3fb950"}
	yellow := lipgloss.AdaptiveColor{Light: "#b08800", Dark: "#d29922"}
	red := lipgloss.AdaptiveColor{Light: "#cb2431", Dark: "#f85149"}

	return &Styles{
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(highlight).
			MarginBottom(1),

		Subtitle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#333", Dark: "#ccc"}),

		Label: lipgloss.NewStyle().
			Foreground(subtle),

		Value: lipgloss.NewStyle().
			Bold(true),

		Highlight: lipgloss.NewStyle().
			Foreground(highlight).
			Bold(true),

		Muted: lipgloss.NewStyle().
			Foreground(subtle),

		StatusOK: lipgloss.NewStyle().
			Foreground(green).
			Bold(true),

		StatusWarn: lipgloss.NewStyle().
			Foreground(yellow).
			Bold(true),

		StatusError: lipgloss.NewStyle().
			Foreground(red).
			Bold(true),

		ItemSelected: lipgloss.NewStyle().
			Background(highlight).
			Foreground(lipgloss.Color("#fff")).
			Bold(true),

		ItemNormal: lipgloss.NewStyle(),

		HelpKey: lipgloss.NewStyle().
			Foreground(highlight).
			Bold(true),

		HelpText: lipgloss.NewStyle().
			Foreground(subtle),
	}
}

// New creates a picker over items. Items keep their initial selection.
func New(title string, items []Item) *Model {
	return &Model{
		title:  title,
		items:  append([]Item(nil), items...),
		width:  80,
		height: 24,
		styles: DefaultStyles(),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	}

	return m, nil
}

// handleKey processes keyboard input.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "esc", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "enter":
		m.confirmed = true
		m.quitting = true
		return m, tea.Quit

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}

	case "down", "j":
		if m.cursor < len(m.items)-1 {
			m.cursor++
		}

	case "home", "g":
		m.cursor = 0

	case "end", "G":
		if len(m.items) > 0 {
			m.cursor = len(m.items) - 1
		}

	case " ", "space", "x":
		if len(m.items) > 0 {
			m.items = append([]Item(nil), m.items...)
			m.items[m.cursor].Selected = !m.items[m.cursor].Selected
		}

	case "a":
		m.setAll(true)

	case "n":
		m.setAll(false)
	}

	return m, nil
}

func (m *Model) setAll(selected bool) {
	items := make([]Item, len(m.items))
	for i, it := range m.items {
		it.Selected = selected
		items[i] = it
	}
	m.items = items
}

// Confirmed reports whether the user accepted with enter.
func (m Model) Confirmed() bool {
	return m.confirmed
}

// Selected returns the ids of accepted items in display order. It is empty
// unless the picker was confirmed.
func (m Model) Selected() []string {
	ids := []string{}
	if !m.confirmed {
		return ids
	}
	for _, it := range m.items {
		if it.Selected {
			ids = append(ids, it.ID)
		}
	}
	return ids
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.styles.Title.Render(m.title))
	b.WriteString("\n")

	if len(m.items) == 0 {
		b.WriteString(m.styles.Muted.Render("Nothing to approve"))
		b.WriteString("\n\n")
		b.WriteString(m.renderHelpBar())
		return b.String()
	}

	visible := m.height - 6
	if visible < 1 {
		visible = 1
	}
	if m.cursor < m.scroll {
		m.scroll = m.cursor
	} else if m.cursor >= m.scroll+visible {
		m.scroll = m.cursor - visible + 1
	}

	for i := m.scroll; i < len(m.items) && i < m.scroll+visible; i++ {
		it := m.items[i]
		box := "[ ]"
		if it.Selected {
			box = m.styles.StatusOK.Render("[x]")
		}
		line := fmt.Sprintf(" %s %s", box, it.Label)
		if i == m.cursor {
			line = m.styles.ItemSelected.Render(line)
		}
		b.WriteString(line)
		if it.Detail != "" {
			b.WriteString(m.styles.Muted.Render("  " + it.Detail))
		}
		b.WriteString("\n")
	}

	if len(m.items) > visible {
		b.WriteString(m.styles.Muted.Render(fmt.Sprintf(" [%d/%d]", m.cursor+1, len(m.items))))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.renderHelpBar())
	return b.String()
}

// renderHelpBar renders the help bar at the bottom.
func (m Model) renderHelpBar() string {
	keys := []struct {
		key  string
		desc string
	}{
		{"space", "toggle"},
		{"a/n", "all/none"},
		{"j/k", "move"},
		{"enter", "apply"},
		{"q", "cancel"},
	}

	var parts []string
	for _, k := range keys {
		parts = append(parts, m.styles.HelpKey.Render(k.key)+" "+m.styles.HelpText.Render(k.desc))
	}
	return strings.Join(parts, "  ")
}

// Run shows the picker on the given streams and returns the accepted ids.
// ok is false when the user cancelled.
func Run(ctx context.Context, title string, items []Item, in io.Reader, out io.Writer) ([]string, bool, error) {
	p := tea.NewProgram(*New(title, items), tea.WithContext(ctx), tea.WithInput(in), tea.WithOutput(out))
	final, err := p.Run()
	if err != nil {
		return nil, false, fmt.Errorf("run picker: %w", err)
	}
	m, ok := final.(Model)
	if !ok {
		return nil, false, fmt.Errorf("unexpected picker model %T", final)
	}
	return m.Selected(), m.Confirmed(), nil
}
