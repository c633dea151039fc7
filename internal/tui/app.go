package tui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jask/dexnav/internal/journal"
	"github.com/jask/dexnav/internal/navigator"
	"github.com/jask/dexnav/internal/sequencer"
)

// Navigator is the part of *navigator.Controller the TUI drives.
type Navigator interface {
	Initialize() error
	Snapshot() navigator.State
	Subscribe() (<-chan navigator.State, func())
	Range() sequencer.Range
	GoNext() bool
	GoPrevious() bool
	Reload() bool
	ForceInvalid(id int) bool
	GoTo(id int) bool
}

// NameLookup resolves a typed name to an id. *journal.Journal implements it.
type NameLookup interface {
	Lookup(ctx context.Context, name string) (journal.Match, error)
}

// Options carries the optional parts of the App.
type Options struct {
	InvalidID int
	Names     NameLookup // nil disables goto-by-name
	BaseURL   string     // shown in the header
}

// App renders one entity at a time and turns key presses into navigator
// commands.
type App struct {
	ctx   context.Context
	nav   Navigator
	opts  Options
	keys  keyMap
	help  help.Model
	spin  spinner.Model
	input textinput.Model

	states      <-chan navigator.State
	unsubscribe func()

	state    navigator.State
	prompt   bool
	status   string
	width    int
	quitting bool
}

func New(ctx context.Context, nav Navigator, opts Options) *App {
	if opts.InvalidID == 0 {
		opts.InvalidID = 9990
	}
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	ti := textinput.New()
	ti.Prompt = "go to › "
	ti.PromptStyle = promptStyle
	ti.Placeholder = "id or name"
	ti.CharLimit = 40

	states, unsubscribe := nav.Subscribe()
	return &App{
		ctx:         ctx,
		nav:         nav,
		opts:        opts,
		keys:        defaultKeys(),
		help:        help.New(),
		spin:        sp,
		input:       ti,
		states:      states,
		unsubscribe: unsubscribe,
		state:       nav.Snapshot(),
	}
}

func (a *App) Init() tea.Cmd {
	return tea.Batch(a.waitForState(), a.spin.Tick, a.initializeCmd())
}

// State is the last snapshot the App rendered.
func (a *App) State() navigator.State { return a.state }

// Close drops the state subscription.
func (a *App) Close() { a.unsubscribe() }

func (a *App) initializeCmd() tea.Cmd {
	return func() tea.Msg {
		if err := a.nav.Initialize(); err != nil && !errors.Is(err, navigator.ErrAlreadyInitialized) {
			return errMsg{err}
		}
		return nil
	}
}

// waitForState blocks on the subscription and hands the next snapshot to
// Update, which re-arms it.
func (a *App) waitForState() tea.Cmd {
	ch := a.states
	return func() tea.Msg {
		st, ok := <-ch
		if !ok {
			return subscriptionClosedMsg{}
		}
		return stateMsg(st)
	}
}

func (a *App) lookupCmd(name string) tea.Cmd {
	names := a.opts.Names
	return func() tea.Msg {
		m, err := names.Lookup(a.ctx, name)
		return lookupMsg{query: name, match: m, err: err}
	}
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch m := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = m.Width
		a.help.Width = m.Width
	case tea.KeyMsg:
		if a.prompt {
			return a.handlePromptKey(m)
		}
		return a.handleKey(m)
	case stateMsg:
		a.state = navigator.State(m)
		if a.state.Phase == navigator.PhaseLoaded || a.state.Phase == navigator.PhaseFailed {
			a.status = ""
		}
		return a, a.waitForState()
	case subscriptionClosedMsg:
		a.quitting = true
		return a, tea.Quit
	case lookupMsg:
		return a.applyLookup(m)
	case errMsg:
		a.status = "error: " + m.Error()
	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spin, cmd = a.spin.Update(m)
		return a, cmd
	}
	return a, nil
}

func (a *App) handleKey(m tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(m, a.keys.Quit):
		a.quitting = true
		return a, tea.Quit
	case key.Matches(m, a.keys.Help):
		a.help.ShowAll = !a.help.ShowAll
		return a, nil
	}

	if !a.keys.navigation(m) {
		return a, nil
	}
	// One fetch at a time from the keyboard: presses while loading (or before
	// the first snapshot arrives) are dropped.
	if a.state.Phase == navigator.PhaseLoading || a.state.Phase == navigator.PhaseIdle {
		return a, nil
	}

	var accepted bool
	switch {
	case key.Matches(m, a.keys.Next):
		accepted = a.nav.GoNext()
	case key.Matches(m, a.keys.Previous):
		accepted = a.nav.GoPrevious()
	case key.Matches(m, a.keys.Reload):
		accepted = a.nav.Reload()
	case key.Matches(m, a.keys.Invalid):
		accepted = a.nav.ForceInvalid(a.opts.InvalidID)
	case key.Matches(m, a.keys.GoTo):
		a.prompt = true
		a.input.SetValue("")
		return a, a.input.Focus()
	}
	if accepted {
		a.state = a.nav.Snapshot()
	}
	return a, nil
}

func (a *App) handlePromptKey(m tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.Type {
	case tea.KeyEsc:
		a.closePrompt()
		return a, nil
	case tea.KeyEnter:
		query := strings.TrimSpace(a.input.Value())
		a.closePrompt()
		return a.submitGoTo(query)
	case tea.KeyCtrlC:
		a.quitting = true
		return a, tea.Quit
	}
	var cmd tea.Cmd
	a.input, cmd = a.input.Update(m)
	return a, cmd
}

func (a *App) closePrompt() {
	a.prompt = false
	a.input.Blur()
}

func (a *App) submitGoTo(query string) (tea.Model, tea.Cmd) {
	if query == "" {
		return a, nil
	}
	if a.state.Phase == navigator.PhaseLoading {
		a.status = "still loading, try again"
		return a, nil
	}
	if id, err := strconv.Atoi(query); err == nil {
		if a.nav.GoTo(id) {
			a.state = a.nav.Snapshot()
		}
		return a, nil
	}
	if a.opts.Names == nil {
		a.status = "name lookup needs the journal; enter an id"
		return a, nil
	}
	a.status = fmt.Sprintf("looking up %q...", query)
	return a, a.lookupCmd(query)
}

func (a *App) applyLookup(m lookupMsg) (tea.Model, tea.Cmd) {
	switch {
	case errors.Is(m.err, journal.ErrNoMatch):
		a.status = fmt.Sprintf("no visited entity resembles %q", m.query)
		return a, nil
	case m.err != nil:
		a.status = "error: " + m.err.Error()
		return a, nil
	}
	if a.state.Phase == navigator.PhaseLoading {
		a.status = "still loading, try again"
		return a, nil
	}
	if a.nav.GoTo(m.match.EntityID) {
		a.state = a.nav.Snapshot()
		a.status = fmt.Sprintf("%q → #%d %s", m.query, m.match.EntityID, m.match.Name)
	}
	return a, nil
}
