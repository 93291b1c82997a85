package audit

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/bensun/jobdigest/internal/model"
)

const (
	pickerPending = -1
	pickerQuit    = -2
)

var (
	menuHeading = lipgloss.NewStyle().Bold(true).Foreground(focusColor).MarginBottom(1)
	menuRow     = lipgloss.NewStyle().PaddingLeft(2)
	menuCurrent = menuRow.Foreground(focusColor).Bold(true)
	menuMeta    = lipgloss.NewStyle().Foreground(dimColor)
)

// pickerModel lists the enabled sources; chosen stays pickerPending until
// the user picks one or quits.
type pickerModel struct {
	sources []model.SourceDescriptor
	cursor  int
	chosen  int
}

func (m pickerModel) Init() tea.Cmd { return nil }

func (m pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	k, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	last := max(len(m.sources)-1, 0)
	switch k.String() {
	case "q", "esc", "ctrl+c":
		m.chosen = pickerQuit
		return m, tea.Quit
	case "enter":
		if len(m.sources) == 0 {
			return m, nil
		}
		m.chosen = m.cursor
		return m, tea.Quit
	case "up", "k":
		m.cursor--
	case "down", "j":
		m.cursor++
	case "home", "g":
		m.cursor = 0
	case "end", "G":
		m.cursor = last
	}
	m.cursor = clamp(m.cursor, 0, last)
	return m, nil
}

func (m pickerModel) View() string {
	nameWidth := 0
	for _, src := range m.sources {
		nameWidth = max(nameWidth, len(src.Name))
	}

	rows := []string{menuHeading.Render("Which source should be audited?")}
	for i, src := range m.sources {
		line := src.Name + strings.Repeat(" ", nameWidth-len(src.Name)+2) + menuMeta.Render(src.Kind+"  "+src.Endpoint)
		if i == m.cursor {
			rows = append(rows, menuCurrent.Render("> "+line))
			continue
		}
		rows = append(rows, menuRow.Render("  "+line))
	}
	rows = append(rows, "", menuMeta.Render("j/k move  enter fetch  q quit"))
	return lipgloss.JoinVertical(lipgloss.Left, rows...) + "\n"
}

// RunSourcePicker asks the user for a source and returns its index, or -1
// when they quit instead.
func RunSourcePicker(sources []model.SourceDescriptor) (int, error) {
	final, err := tea.NewProgram(pickerModel{sources: sources, chosen: pickerPending}).Run()
	if err != nil {
		return -1, err
	}
	return max(final.(pickerModel).chosen, -1), nil
}
