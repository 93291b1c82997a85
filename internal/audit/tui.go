// Package audit is an interactive terminal view of how the classifier treats
// one source's postings. It is read-only and never touches notified state.
package audit

import (
	"fmt"
	"os/exec"
	"runtime"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/bensun/jobdigest/internal/model"
)

// rowsPerItem is the height of one posting in a list pane: title, subtitle
// and a blank line.
const rowsPerItem = 3

type screen int

const (
	screenList screen = iota
	screenDetail
)

const (
	paneAll = iota
	paneMatched
)

var (
	focusColor = lipgloss.Color("69")
	dimColor   = lipgloss.Color("241")

	paneBorder = lipgloss.NewStyle().Border(lipgloss.NormalBorder())
	paneTitle  = lipgloss.NewStyle().Bold(true).PaddingLeft(1)

	footerStyle = lipgloss.NewStyle().
			PaddingLeft(1).
			Foreground(lipgloss.Color("250")).
			Background(lipgloss.Color("235"))

	itemTitleStyle = lipgloss.NewStyle().Bold(true)
	itemMetaStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	cursorStyle    = lipgloss.NewStyle().Background(lipgloss.Color("237"))

	tagStyles = map[model.Tag]lipgloss.Style{
		model.TagCompany: lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true),
		model.TagStartup: lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true),
		model.TagNone:    lipgloss.NewStyle().Foreground(dimColor),
	}

	fieldNameStyle = lipgloss.NewStyle().Foreground(focusColor).Width(10)
	sectionStyle   = lipgloss.NewStyle().Foreground(dimColor)
	mutedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Italic(true)
)

// Classifier tags a posting.
type Classifier interface {
	Classify(p model.Posting) model.Tag
}

// OutreachWriter renders the outreach message for a posting.
type OutreachWriter interface {
	Outreach(p model.Posting) string
}

// pane is one scrollable list with its own cursor.
type pane struct {
	title  string
	items  []model.Classified
	cursor int
	vp     viewport.Model
}

func (p *pane) move(delta int) {
	p.cursor = clamp(p.cursor+delta, 0, max(len(p.items)-1, 0))
}

// follow scrolls the viewport so the cursor row is on screen.
func (p *pane) follow() {
	first := p.cursor * rowsPerItem
	last := first + rowsPerItem - 1
	switch {
	case first < p.vp.YOffset:
		p.vp.SetYOffset(first)
	case last >= p.vp.YOffset+p.vp.Height:
		p.vp.SetYOffset(last - p.vp.Height + 1)
	}
}

type auditModel struct {
	panes  [2]pane
	focus  int
	width  int
	height int
	sized  bool

	screen       screen
	selected     model.Classified
	reader       viewport.Model
	showOutreach bool
	outreach     OutreachWriter

	quit bool
}

func newAuditModel(postings []model.Posting, classifier Classifier, outreach OutreachWriter) auditModel {
	all := make([]model.Classified, 0, len(postings))
	var matched []model.Classified
	for _, p := range postings {
		c := model.Classified{Posting: p, Tag: classifier.Classify(p)}
		all = append(all, c)
		if c.Tag != model.TagNone {
			matched = append(matched, c)
		}
	}
	sortByDate(all)
	sortByDate(matched)

	m := auditModel{outreach: outreach}
	m.panes[paneAll] = pane{title: "All Postings", items: all}
	m.panes[paneMatched] = pane{title: "Classified", items: matched}
	return m
}

func (m auditModel) Init() tea.Cmd { return nil }

func (m auditModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()
		return m, nil
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			m.quit = true
			return m, tea.Quit
		}
		if m.screen == screenDetail {
			return m.detailKey(msg)
		}
		return m.listKey(msg)
	}
	return m, nil
}

func (m auditModel) listKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	cur := &m.panes[m.focus]
	switch msg.String() {
	case "esc", "b":
		return m, tea.Quit
	case "tab", "left", "right", "h", "l":
		m.focus = 1 - m.focus
	case "up", "k":
		cur.move(-1)
		cur.follow()
	case "down", "j":
		cur.move(1)
		cur.follow()
	case "enter":
		if len(cur.items) == 0 {
			return m, nil
		}
		m.selected = cur.items[cur.cursor]
		m.showOutreach = m.selected.Tag != model.TagNone
		m.screen = screenDetail
		m.reader = viewport.New(max(m.width-4, 20), max(m.height-4, 5))
		m.reader.SetContent(m.renderDetail())
		return m, nil
	default:
		// Paging keys go to the focused viewport.
		var cmd tea.Cmd
		cur.vp, cmd = cur.vp.Update(msg)
		return m, cmd
	}
	m.refresh()
	return m, nil
}

func (m auditModel) detailKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "backspace":
		m.screen = screenList
		return m, nil
	case "o":
		openURL(m.selected.Posting.Link)
		return m, nil
	case "p":
		m.showOutreach = !m.showOutreach
		m.reader.SetContent(m.renderDetail())
		return m, nil
	}
	var cmd tea.Cmd
	m.reader, cmd = m.reader.Update(msg)
	return m, cmd
}

// resize lays the two panes side by side, leaving room for borders, the
// title row and the footer.
func (m *auditModel) resize() {
	w := max((m.width-5)/2, 20)
	h := max(m.height-4, 5)
	for i := range m.panes {
		if !m.sized {
			m.panes[i].vp = viewport.New(w, h)
		} else {
			m.panes[i].vp.Width, m.panes[i].vp.Height = w, h
		}
	}
	m.sized = true
	m.refresh()

	if m.screen == screenDetail {
		m.reader.Width, m.reader.Height = max(m.width-4, 20), max(m.height-4, 5)
		m.reader.SetContent(m.renderDetail())
	}
}

func (m *auditModel) refresh() {
	for i := range m.panes {
		p := &m.panes[i]
		p.vp.SetContent(renderItems(p.items, p.cursor, i == m.focus))
	}
}

func (m auditModel) View() string {
	if !m.sized {
		return "loading..."
	}
	if m.screen == screenDetail {
		return m.detailView()
	}
	return m.listView()
}

func (m auditModel) listView() string {
	titles := make([]string, 0, 3)
	boxes := make([]string, 0, 3)
	for i, p := range m.panes {
		color := dimColor
		if i == m.focus {
			color = focusColor
		}
		w := p.vp.Width
		if i > 0 {
			titles = append(titles, " ")
			boxes = append(boxes, " ")
		}
		titles = append(titles, lipgloss.NewStyle().Width(w+2).Render(
			paneTitle.Foreground(color).Render(fmt.Sprintf("%s (%d)", p.title, len(p.items)))))
		boxes = append(boxes, paneBorder.BorderForeground(color).Width(w).Render(p.vp.View()))
	}

	all, matched := m.panes[paneAll].items, m.panes[paneMatched].items
	footer := fmt.Sprintf("%d total, %d company, %d startup, %d dropped  |  tab pane  j/k move  enter open  esc sources  q quit",
		len(all), countTag(matched, model.TagCompany), countTag(matched, model.TagStartup), len(all)-len(matched))

	return lipgloss.JoinHorizontal(lipgloss.Top, titles...) + "\n" +
		lipgloss.JoinHorizontal(lipgloss.Top, boxes...) + "\n" +
		footerStyle.Width(m.width).Render(footer)
}

func (m auditModel) detailView() string {
	box := paneBorder.BorderForeground(focusColor).Width(max(m.width-2, 20)).Render(m.reader.View())
	footer := footerStyle.Width(m.width).Render("o open link  p outreach  esc back  j/k scroll  q quit")
	return itemTitleStyle.Render(m.selected.Posting.Title) + "\n" + box + "\n" + footer
}

func (m auditModel) renderDetail() string {
	p := m.selected.Posting
	width := max(m.width-8, 20)
	var b strings.Builder

	row := func(name, value string) {
		if value != "" {
			fmt.Fprintf(&b, "%s%s\n", fieldNameStyle.Render(name), value)
		}
	}
	heading := func(name string) {
		rule := strings.Repeat("-", max(width-len(name)-1, 3))
		fmt.Fprintf(&b, "\n%s\n\n", sectionStyle.Render(name+" "+rule))
	}

	row("Title", p.Title)
	row("Company", p.Company)
	row("Source", p.Source)
	row("Tag", renderTag(m.selected.Tag))
	if p.PostedAt != nil {
		row("Posted", p.PostedAt.Local().Format("2006-01-02 15:04 MST"))
	}
	row("Link", p.Link)
	row("Key", p.Key())

	heading("Summary")
	if p.Summary == "" {
		b.WriteString(mutedStyle.Render("(no summary)") + "\n")
	} else {
		b.WriteString(wordWrap(p.Summary, width) + "\n")
	}

	switch {
	case m.outreach == nil:
	case m.showOutreach:
		heading("Outreach")
		b.WriteString(m.outreach.Outreach(p))
	default:
		b.WriteString("\n" + mutedStyle.Render("p shows the outreach message") + "\n")
	}
	return b.String()
}

func renderTag(tag model.Tag) string {
	style, ok := tagStyles[tag]
	if !ok {
		style = tagStyles[model.TagNone]
	}
	return style.Render(string(tag))
}

func renderItems(items []model.Classified, cursor int, focused bool) string {
	if len(items) == 0 {
		return "  (no postings)"
	}

	var b strings.Builder
	for i, it := range items {
		marker := "  "
		title := itemTitleStyle.Render(it.Posting.Title)
		if focused && i == cursor {
			marker = "> "
			title = cursorStyle.Render(title)
		}

		who := it.Posting.Company
		if who == "" {
			who = it.Posting.Source
		}
		when := "undated"
		if it.Posting.PostedAt != nil {
			when = it.Posting.PostedAt.Format("Jan 02")
		}

		fmt.Fprintf(&b, "%s%s\n", marker, title)
		fmt.Fprintf(&b, "%s%s %s\n", marker, itemMetaStyle.Render(who+" / "+when), renderTag(it.Tag))
		if i < len(items)-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func countTag(items []model.Classified, tag model.Tag) int {
	n := 0
	for _, it := range items {
		if it.Tag == tag {
			n++
		}
	}
	return n
}

// sortByDate orders newest first; postings without a date go last in their
// original order.
func sortByDate(items []model.Classified) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i].Posting.PostedAt, items[j].Posting.PostedAt
		if a == nil || b == nil {
			return a != nil && b == nil
		}
		return a.After(*b)
	})
}

func wordWrap(text string, width int) string {
	var b strings.Builder
	n := 0
	for _, w := range strings.Fields(text) {
		switch {
		case n == 0:
		case n+1+len(w) > width:
			b.WriteByte('\n')
			n = 0
		default:
			b.WriteByte(' ')
			n++
		}
		b.WriteString(w)
		n += len(w)
	}
	return b.String()
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// openURL hands link to the platform's browser launcher without waiting.
func openURL(link string) {
	if link == "" {
		return
	}
	launchers := map[string][]string{
		"darwin":  {"open"},
		"linux":   {"xdg-open"},
		"windows": {"rundll32", "url.dll,FileProtocolHandler"},
	}
	argv, ok := launchers[runtime.GOOS]
	if !ok {
		return
	}
	_ = exec.Command(argv[0], append(argv[1:], link)...).Start()
}

// RunAuditTUI shows every posting next to the ones the classifier kept. The
// bool result is true when the user quit and false when they asked to go back
// to the source picker.
func RunAuditTUI(postings []model.Posting, classifier Classifier, outreach OutreachWriter) (bool, error) {
	p := tea.NewProgram(newAuditModel(postings, classifier, outreach), tea.WithAltScreen())
	result, err := p.Run()
	if err != nil {
		return false, err
	}
	return result.(auditModel).quit, nil
}
