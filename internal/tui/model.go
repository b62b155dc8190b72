// Package tui is the terminal browser for project and global memory.
//
// Every screen reads through store.Backend, so it works the same on the
// SQLite and markdown backends. Loads run as tea.Cmds and come back as
// typed messages; j/k and the arrow keys move, esc goes back.
package tui

import (
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/wty0512/memory-mcp-server/internal/setup"
	"github.com/wty0512/memory-mcp-server/internal/store"
)

// ─── Screens ─────────────────────────────────────────────────────────────────

type Screen int

const (
	ScreenDashboard Screen = iota
	ScreenSearch
	ScreenSearchResults
	ScreenProjects
	ScreenProjectEntries
	ScreenEntryDetail
	ScreenSetup
)

// listLimit bounds how many rows a list screen loads.
const listLimit = 200

// ─── Custom Messages ─────────────────────────────────────────────────────────

type dashboardLoadedMsg struct {
	global   *store.ProjectSummary
	projects []store.ProjectSummary
	err      error
}

type searchResultsMsg struct {
	results []store.Entry
	query   string
	err     error
}

type projectsLoadedMsg struct {
	projects []store.ProjectSummary
	err      error
}

type entriesLoadedMsg struct {
	entries []store.Entry
	err     error
}

type entryDetailMsg struct {
	entry *store.Entry
	err   error
}

type setupInstallMsg struct {
	result *setup.Result
	err    error
}

// ─── Model ───────────────────────────────────────────────────────────────────

type Model struct {
	backend    store.Backend
	Version    string
	Screen     Screen
	PrevScreen Screen
	Width      int
	Height     int
	Cursor     int
	Scroll     int

	ErrorMsg string

	// Dashboard
	Global      *store.ProjectSummary
	ProjectList []store.ProjectSummary

	// Search
	SearchInput   textinput.Model
	SearchScope   store.Scope
	SearchQuery   string
	SearchResults []store.Entry

	// Projects and their entries. EntriesScope is global when browsing
	// the global memory.
	Projects        []store.ProjectSummary
	SelectedProject string
	EntriesScope    store.Scope
	Entries         []store.Entry
	EntriesCursor   int

	// Entry detail
	SelectedEntry *store.Entry
	DetailScroll  int

	// Setup
	SetupAgents         []setup.Agent
	SetupOptions        setup.Options
	SetupResult         *setup.Result
	SetupError          string
	SetupDone           bool
	SetupInstalling     bool
	SetupInstallingName string
	SetupSpinner        spinner.Model
}

// New creates a TUI model over the given backend.
func New(b store.Backend, version string) Model {
	ti := textinput.New()
	ti.Placeholder = "Search memories..."
	ti.CharLimit = 256
	ti.Width = 60

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = fg(colorAccent)

	return Model{
		backend:      b,
		Version:      version,
		Screen:       ScreenDashboard,
		SearchInput:  ti,
		SearchScope:  store.ScopeProject,
		EntriesScope: store.ScopeProject,
		SetupSpinner: sp,
	}
}

// WithSetupOptions sets the command line agents are configured to launch.
func (m Model) WithSetupOptions(opts setup.Options) Model {
	m.SetupOptions = opts
	return m
}

// Init loads the dashboard.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		loadDashboard(m.backend),
		tea.EnterAltScreen,
	)
}

// ─── Commands (data loading) ─────────────────────────────────────────────────

func loadDashboard(b store.Backend) tea.Cmd {
	return func() tea.Msg {
		global, err := b.Stats(store.ScopeGlobal, "")
		if err != nil {
			return dashboardLoadedMsg{err: err}
		}
		projects, err := b.ListProjects()
		return dashboardLoadedMsg{global: global, projects: projects, err: err}
	}
}

func searchMemories(b store.Backend, query string, scope store.Scope) tea.Cmd {
	return func() tea.Msg {
		results, err := b.Search(query, store.SearchOptions{Scope: scope, Limit: 50})
		return searchResultsMsg{results: results, query: query, err: err}
	}
}

func loadProjects(b store.Backend) tea.Cmd {
	return func() tea.Msg {
		projects, err := b.ListProjects()
		return projectsLoadedMsg{projects: projects, err: err}
	}
}

func loadEntries(b store.Backend, scope store.Scope, project string) tea.Cmd {
	return func() tea.Msg {
		entries, err := b.List(store.ListOptions{Scope: scope, Project: project, Limit: listLimit})
		return entriesLoadedMsg{entries: entries, err: err}
	}
}

func loadEntryDetail(b store.Backend, id int64) tea.Cmd {
	return func() tea.Msg {
		e, err := b.Get(id)
		return entryDetailMsg{entry: e, err: err}
	}
}

func installAgent(agentName string, opts setup.Options) tea.Cmd {
	return func() tea.Msg {
		result, err := installAgentFn(agentName, opts)
		return setupInstallMsg{result: result, err: err}
	}
}

var installAgentFn = setup.Install
