package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/bensun/jobdigest/internal/model"
)

// ErrCancelled is returned by RunLoader when the user aborts the fetch.
var ErrCancelled = errors.New("cancelled")

// FetchFunc retrieves the normalized postings of one source.
type FetchFunc func(ctx context.Context) ([]model.Posting, error)

type fetchedMsg struct {
	postings []model.Posting
	err      error
}

// loaderModel spins while a single fetch runs. The fetch context is
// cancelled when the user presses ctrl+c.
type loaderModel struct {
	label   string
	started time.Time
	ctx     context.Context
	stop    context.CancelFunc
	fetch   FetchFunc
	spin    spinner.Model

	postings []model.Posting
	err      error
	finished bool
}

func (m loaderModel) Init() tea.Cmd {
	ctx, fetch := m.ctx, m.fetch
	run := func() tea.Msg {
		postings, err := fetch(ctx)
		return fetchedMsg{postings: postings, err: err}
	}
	return tea.Batch(run, m.spin.Tick)
}

func (m loaderModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case fetchedMsg:
		m.postings, m.err, m.finished = msg.postings, msg.err, true
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "esc" {
			m.stop()
			m.err, m.finished = ErrCancelled, true
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m loaderModel) View() string {
	if m.finished {
		return ""
	}
	elapsed := time.Since(m.started).Truncate(100 * time.Millisecond)
	return fmt.Sprintf("%s %s %s\n", m.spin.View(), m.label, menuMeta.Render(elapsed.String()))
}

// RunLoader runs fetch under timeout while showing a spinner.
func RunLoader(sourceName string, timeout time.Duration, fetch FetchFunc) ([]model.Posting, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	m := loaderModel{
		label:   "fetching " + sourceName,
		started: time.Now(),
		ctx:     ctx,
		stop:    cancel,
		fetch:   fetch,
		spin:    spinner.New(spinner.WithSpinner(spinner.MiniDot), spinner.WithStyle(menuMeta.Foreground(focusColor))),
	}
	final, err := tea.NewProgram(m).Run()
	if err != nil {
		return nil, err
	}
	done := final.(loaderModel)
	return done.postings, done.err
}
