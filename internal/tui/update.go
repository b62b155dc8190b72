package tui

import (
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/wty0512/memory-mcp-server/internal/setup"
	"github.com/wty0512/memory-mcp-server/internal/store"
)

// ─── Update ──────────────────────────────────────────────────────────────────

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		if m.Screen == ScreenSearch && m.SearchInput.Focused() {
			return m.handleSearchInputKeys(msg)
		}
		return m.handleKeyPress(msg.String())

	// ─── Data loaded messages ────────────────────────────────────────────
	case dashboardLoadedMsg:
		if msg.err != nil {
			m.ErrorMsg = msg.err.Error()
			return m, nil
		}
		m.Global = msg.global
		m.ProjectList = msg.projects
		return m, nil

	case searchResultsMsg:
		if msg.err != nil {
			m.ErrorMsg = msg.err.Error()
			return m, nil
		}
		m.SearchResults = msg.results
		m.SearchQuery = msg.query
		m.Screen = ScreenSearchResults
		m.Cursor = 0
		m.Scroll = 0
		return m, nil

	case projectsLoadedMsg:
		if msg.err != nil {
			m.ErrorMsg = msg.err.Error()
			return m, nil
		}
		m.Projects = msg.projects
		if m.Cursor >= len(m.Projects) {
			m.Cursor = 0
		}
		return m, nil

	case entriesLoadedMsg:
		if msg.err != nil {
			m.ErrorMsg = msg.err.Error()
			return m, nil
		}
		m.Entries = msg.entries
		m.Screen = ScreenProjectEntries
		if m.EntriesCursor >= len(m.Entries) {
			m.EntriesCursor = 0
		}
		m.Cursor = m.EntriesCursor
		return m, nil

	case entryDetailMsg:
		if msg.err != nil {
			m.ErrorMsg = msg.err.Error()
			return m, nil
		}
		m.SelectedEntry = msg.entry
		m.Screen = ScreenEntryDetail
		m.DetailScroll = 0
		return m, nil

	case setupInstallMsg:
		m.SetupInstalling = false
		m.SetupDone = true
		if msg.err != nil {
			m.SetupError = msg.err.Error()
			return m, nil
		}
		m.SetupResult = msg.result
		m.SetupError = ""
		return m, nil

	case spinner.TickMsg:
		if m.SetupInstalling {
			var cmd tea.Cmd
			m.SetupSpinner, cmd = m.SetupSpinner.Update(msg)
			return m, cmd
		}
		return m, nil
	}

	return m, nil
}

// ─── Key Press Router ────────────────────────────────────────────────────────

func (m Model) handleKeyPress(key string) (tea.Model, tea.Cmd) {
	m.ErrorMsg = ""

	switch m.Screen {
	case ScreenDashboard:
		return m.handleDashboardKeys(key)
	case ScreenSearch:
		return m.handleSearchKeys(key)
	case ScreenSearchResults:
		return m.handleSearchResultsKeys(key)
	case ScreenProjects:
		return m.handleProjectsKeys(key)
	case ScreenProjectEntries:
		return m.handleEntriesKeys(key)
	case ScreenEntryDetail:
		return m.handleEntryDetailKeys(key)
	case ScreenSetup:
		return m.handleSetupKeys(key)
	}
	return m, nil
}

// ─── Dashboard ───────────────────────────────────────────────────────────────

var dashboardMenuItems = []string{
	"Search project memory",
	"Search global memory",
	"Browse projects",
	"Browse global memory",
	"Set up an agent",
	"Quit",
}

func (m Model) handleDashboardKeys(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "up", "k":
		if m.Cursor > 0 {
			m.Cursor--
		}
	case "down", "j":
		if m.Cursor < len(dashboardMenuItems)-1 {
			m.Cursor++
		}
	case "enter", " ":
		return m.handleDashboardSelection()
	case "s", "/":
		return m.openSearch(store.ScopeProject)
	case "g":
		return m.openSearch(store.ScopeGlobal)
	case "p":
		return m.openProjects()
	case "q":
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) handleDashboardSelection() (tea.Model, tea.Cmd) {
	switch m.Cursor {
	case 0:
		return m.openSearch(store.ScopeProject)
	case 1:
		return m.openSearch(store.ScopeGlobal)
	case 2:
		return m.openProjects()
	case 3:
		m.PrevScreen = ScreenDashboard
		m.SelectedProject = ""
		m.EntriesScope = store.ScopeGlobal
		m.EntriesCursor = 0
		m.Scroll = 0
		return m, loadEntries(m.backend, store.ScopeGlobal, "")
	case 4:
		m.PrevScreen = ScreenDashboard
		m.Screen = ScreenSetup
		m.Cursor = 0
		m.SetupAgents = setup.SupportedAgents()
		m.SetupResult = nil
		m.SetupError = ""
		m.SetupDone = false
		m.SetupInstalling = false
		m.SetupInstallingName = ""
		return m, nil
	case 5:
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) openSearch(scope store.Scope) (tea.Model, tea.Cmd) {
	m.PrevScreen = ScreenDashboard
	m.Screen = ScreenSearch
	m.SearchScope = scope
	m.Cursor = 0
	m.SearchInput.SetValue("")
	m.SearchInput.Focus()
	return m, nil
}

func (m Model) openProjects() (tea.Model, tea.Cmd) {
	m.PrevScreen = ScreenDashboard
	m.Screen = ScreenProjects
	m.Cursor = 0
	m.Scroll = 0
	return m, loadProjects(m.backend)
}

// ─── Search Input ────────────────────────────────────────────────────────────

func (m Model) handleSearchInputKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		query := m.SearchInput.Value()
		if query != "" {
			m.SearchInput.Blur()
			return m, searchMemories(m.backend, query, m.SearchScope)
		}
		return m, nil
	case "tab":
		m.SearchScope = otherScope(m.SearchScope)
		return m, nil
	case "esc":
		m.SearchInput.Blur()
		m.Screen = ScreenDashboard
		m.Cursor = 0
		return m, nil
	}

	var cmd tea.Cmd
	m.SearchInput, cmd = m.SearchInput.Update(msg)
	return m, cmd
}

func (m Model) handleSearchKeys(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "esc", "q":
		m.Screen = ScreenDashboard
		m.Cursor = 0
		return m, nil
	case "i", "/":
		m.SearchInput.Focus()
		return m, nil
	}
	return m, nil
}

// ─── Search Results ──────────────────────────────────────────────────────────

func (m Model) handleSearchResultsKeys(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "up", "k":
		m.moveUp()
	case "down", "j":
		m.moveDown(len(m.SearchResults), m.visibleEntryRows())
	case "enter":
		if m.Cursor < len(m.SearchResults) {
			m.PrevScreen = ScreenSearchResults
			return m, loadEntryDetail(m.backend, m.SearchResults[m.Cursor].ID)
		}
	case "/", "s":
		m.Screen = ScreenSearch
		m.SearchInput.Focus()
		return m, nil
	case "esc", "q":
		m.Screen = ScreenSearch
		m.Cursor = 0
		m.Scroll = 0
		m.SearchInput.Focus()
		return m, nil
	}
	return m, nil
}

// ─── Projects ────────────────────────────────────────────────────────────────

func (m Model) handleProjectsKeys(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "up", "k":
		m.moveUp()
	case "down", "j":
		m.moveDown(len(m.Projects), m.visibleRows(8, 1))
	case "enter":
		if m.Cursor < len(m.Projects) {
			m.PrevScreen = ScreenProjects
			m.SelectedProject = m.Projects[m.Cursor].Project
			m.EntriesScope = store.ScopeProject
			m.EntriesCursor = 0
			m.Scroll = 0
			return m, loadEntries(m.backend, store.ScopeProject, m.SelectedProject)
		}
	case "esc", "q":
		m.Screen = ScreenDashboard
		m.Cursor = 0
		m.Scroll = 0
		return m, loadDashboard(m.backend)
	}
	return m, nil
}

// ─── Project Entries ─────────────────────────────────────────────────────────

func (m Model) handleEntriesKeys(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "up", "k":
		m.moveUp()
	case "down", "j":
		m.moveDown(len(m.Entries), m.visibleEntryRows())
	case "enter":
		if m.Cursor < len(m.Entries) {
			m.EntriesCursor = m.Cursor
			return m, loadEntryDetail(m.backend, m.Entries[m.Cursor].ID)
		}
	case "esc", "q":
		m.Cursor = 0
		m.Scroll = 0
		if m.EntriesScope == store.ScopeGlobal {
			m.Screen = ScreenDashboard
			return m, loadDashboard(m.backend)
		}
		m.Screen = ScreenProjects
		return m, loadProjects(m.backend)
	}
	return m, nil
}

// ─── Entry Detail ────────────────────────────────────────────────────────────

func (m Model) handleEntryDetailKeys(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "up", "k":
		if m.DetailScroll > 0 {
			m.DetailScroll--
		}
	case "down", "j":
		m.DetailScroll++
	case "esc", "q":
		m.DetailScroll = 0
		if m.PrevScreen == ScreenSearchResults {
			m.Screen = ScreenSearchResults
			return m, nil
		}
		return m, loadEntries(m.backend, m.EntriesScope, m.SelectedProject)
	}
	return m, nil
}

// ─── Setup ───────────────────────────────────────────────────────────────────

func (m Model) handleSetupKeys(key string) (tea.Model, tea.Cmd) {
	if m.SetupInstalling {
		return m, nil
	}

	if m.SetupDone {
		switch key {
		case "esc", "q", "enter":
			m.Screen = ScreenDashboard
			m.Cursor = 0
			m.SetupDone = false
			m.SetupResult = nil
			m.SetupError = ""
			return m, loadDashboard(m.backend)
		}
		return m, nil
	}

	switch key {
	case "up", "k":
		if m.Cursor > 0 {
			m.Cursor--
		}
	case "down", "j":
		if m.Cursor < len(m.SetupAgents)-1 {
			m.Cursor++
		}
	case "enter":
		if m.Cursor < len(m.SetupAgents) {
			agent := m.SetupAgents[m.Cursor]
			m.SetupInstalling = true
			m.SetupInstallingName = agent.Name
			return m, tea.Batch(m.SetupSpinner.Tick, installAgent(agent.Name, m.SetupOptions))
		}
	case "esc", "q":
		m.Screen = ScreenDashboard
		m.Cursor = 0
		return m, loadDashboard(m.backend)
	}
	return m, nil
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func (m *Model) moveUp() {
	if m.Cursor > 0 {
		m.Cursor--
		if m.Cursor < m.Scroll {
			m.Scroll = m.Cursor
		}
	}
}

func (m *Model) moveDown(count, visible int) {
	if m.Cursor < count-1 {
		m.Cursor++
		if m.Cursor >= m.Scroll+visible {
			m.Scroll = m.Cursor - visible + 1
		}
	}
}

// visibleRows is how many list items fit given the chrome height and
// lines per item.
func (m Model) visibleRows(chrome, perItem int) int {
	n := (m.Height - chrome) / perItem
	if n < 3 {
		n = 3
	}
	return n
}

func (m Model) visibleEntryRows() int {
	return m.visibleRows(10, 2)
}

func otherScope(s store.Scope) store.Scope {
	if s == store.ScopeGlobal {
		return store.ScopeProject
	}
	return store.ScopeGlobal
}
