package tui

import (
	"fmt"
	"strings"

	"github.com/wty0512/memory-mcp-server/internal/store"
)

// ─── Banner ──────────────────────────────────────────────────────────────────

func renderBanner(version string) string {
	name := fg(colorAccent).Bold(true).Render("memory-mcp")
	ver := timestampStyle.Render(version)
	tagline := fg(colorMuted).Italic(true).Render("project and global memory for your agents")

	return bannerStyle.Render(name+"  "+ver+"\n"+tagline) + "\n\n"
}

// ─── View (main router) ─────────────────────────────────────────────────────

func (m Model) View() string {
	var content string

	switch m.Screen {
	case ScreenDashboard:
		content = m.viewDashboard()
	case ScreenSearch:
		content = m.viewSearch()
	case ScreenSearchResults:
		content = m.viewSearchResults()
	case ScreenProjects:
		content = m.viewProjects()
	case ScreenProjectEntries:
		content = m.viewEntries()
	case ScreenEntryDetail:
		content = m.viewEntryDetail()
	case ScreenSetup:
		content = m.viewSetup()
	default:
		content = "Unknown screen"
	}

	if m.ErrorMsg != "" {
		content += "\n" + errorStyle.Render("Error: "+m.ErrorMsg)
	}

	return appStyle.Render(content)
}

// ─── Dashboard ───────────────────────────────────────────────────────────────

func (m Model) viewDashboard() string {
	var b strings.Builder

	b.WriteString(renderBanner(m.Version))
	b.WriteString("\n")

	if m.Global != nil {
		projectEntries := 0
		for _, p := range m.ProjectList {
			projectEntries += p.Count
		}
		statsContent := fmt.Sprintf(
			"%s %s\n%s %s\n%s %s",
			statNumberStyle.Render(fmt.Sprintf("%d", len(m.ProjectList))),
			statLabelStyle.Render("projects"),
			statNumberStyle.Render(fmt.Sprintf("%d", projectEntries)),
			statLabelStyle.Render("project entries"),
			statNumberStyle.Render(fmt.Sprintf("%d", m.Global.Count)),
			statLabelStyle.Render("global entries"),
		)
		b.WriteString(statCardStyle.Render(statsContent))
		b.WriteString("\n")

		if len(m.ProjectList) > 0 {
			b.WriteString(titleStyle.Render("  Recently active"))
			b.WriteString("\n")

			limit := 5
			for i, p := range m.ProjectList {
				if i >= limit {
					break
				}
				b.WriteString(listItemStyle.Render(fmt.Sprintf("• %s  %s", projectStyle.Render(p.Project), timestampStyle.Render(p.LastActivity))))
				b.WriteString("\n")
			}
			if len(m.ProjectList) > limit {
				remaining := len(m.ProjectList) - limit
				b.WriteString(fmt.Sprintf("    %s\n", timestampStyle.Render(fmt.Sprintf("...and %d more projects", remaining))))
			}
			b.WriteString("\n")
		}
	} else {
		b.WriteString(statCardStyle.Render("Loading stats..."))
		b.WriteString("\n")
	}

	b.WriteString(titleStyle.Render("  Actions"))
	b.WriteString("\n")

	for i, item := range dashboardMenuItems {
		if i == m.Cursor {
			b.WriteString(menuSelectedStyle.Render("▸ " + item))
		} else {
			b.WriteString(menuItemStyle.Render("  " + item))
		}
		b.WriteString("\n")
	}

	b.WriteString(helpStyle.Render("\n  j/k navigate • enter select • s search • g global search • p projects • q quit"))

	return b.String()
}

// ─── Search ──────────────────────────────────────────────────────────────────

func (m Model) viewSearch() string {
	var b strings.Builder

	b.WriteString(headerStyle.Render("  Search Memories " + scopeBadgeStyle(m.SearchScope == store.ScopeGlobal).Render("["+string(m.SearchScope)+"]")))
	b.WriteString("\n\n")

	b.WriteString(searchInputStyle.Render(m.SearchInput.View()))
	b.WriteString("\n\n")

	b.WriteString(helpStyle.Render("  Type a query and press enter • tab switch project/global • esc back"))

	return b.String()
}

// ─── Search Results ──────────────────────────────────────────────────────────

func (m Model) viewSearchResults() string {
	var b strings.Builder

	count := len(m.SearchResults)
	header := fmt.Sprintf("  %s search: %q, %d result", m.SearchScope, m.SearchQuery, count)
	if count != 1 {
		header += "s"
	}
	b.WriteString(headerStyle.Render(header))
	b.WriteString("\n")

	if count == 0 {
		b.WriteString(noResultsStyle.Render("No memories found. Try a different query."))
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("  / new search • esc back"))
		return b.String()
	}

	b.WriteString(m.renderEntryList(m.SearchResults))
	b.WriteString(helpStyle.Render("\n  j/k navigate • enter detail • / search • esc back"))

	return b.String()
}

// ─── Projects ────────────────────────────────────────────────────────────────

func (m Model) viewProjects() string {
	var b strings.Builder

	count := len(m.Projects)
	b.WriteString(headerStyle.Render(fmt.Sprintf("  Projects (%d)", count)))
	b.WriteString("\n")

	if count == 0 {
		b.WriteString(noResultsStyle.Render("No projects yet."))
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("  esc back"))
		return b.String()
	}

	visible := m.visibleRows(8, 1)
	end := m.Scroll + visible
	if end > count {
		end = count
	}

	for i := m.Scroll; i < end; i++ {
		p := m.Projects[i]
		cursor := "  "
		style := listItemStyle
		if i == m.Cursor {
			cursor = "▸ "
			style = listSelectedStyle
		}
		b.WriteString(fmt.Sprintf("%s%s %s %s  %s\n",
			cursor,
			style.Render(fmt.Sprintf("%-24s", truncateStr(p.Project, 24))),
			statNumberStyle.Render(fmt.Sprintf("%d", p.Count)),
			timestampStyle.Render(plural(p.Count, "entry", "entries")),
			timestampStyle.Render(p.LastActivity)))
	}

	if count > visible {
		b.WriteString(fmt.Sprintf("\n  %s",
			timestampStyle.Render(fmt.Sprintf("showing %d-%d of %d", m.Scroll+1, end, count))))
	}

	b.WriteString(helpStyle.Render("\n  j/k navigate • enter view entries • esc back"))

	return b.String()
}

// ─── Project Entries ─────────────────────────────────────────────────────────

func (m Model) viewEntries() string {
	var b strings.Builder

	title := "Global memory"
	if m.EntriesScope == store.ScopeProject {
		title = "Project: " + m.SelectedProject
	}
	b.WriteString(headerStyle.Render(fmt.Sprintf("  %s (%d)", title, len(m.Entries))))
	b.WriteString("\n")

	if len(m.Entries) == 0 {
		b.WriteString(noResultsStyle.Render("No entries yet."))
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("  esc back"))
		return b.String()
	}

	b.WriteString(m.renderEntryList(m.Entries))
	b.WriteString(helpStyle.Render("\n  j/k navigate • enter detail • esc back"))

	return b.String()
}

// ─── Entry Detail ────────────────────────────────────────────────────────────

func (m Model) viewEntryDetail() string {
	var b strings.Builder

	e := m.SelectedEntry
	if e == nil {
		b.WriteString(headerStyle.Render("  Entry Detail"))
		b.WriteString("\n")
		b.WriteString(noResultsStyle.Render("Loading..."))
		return b.String()
	}

	b.WriteString(headerStyle.Render(fmt.Sprintf("  #%d %s", e.ID, displayTitle(*e))))
	b.WriteString("\n")

	row := func(label, value string) {
		b.WriteString(fmt.Sprintf("%s %s\n", detailLabelStyle.Render(label), value))
	}
	if e.Scope == store.ScopeGlobal {
		row("Scope:", detailValueStyle.Render("global"))
	} else {
		row("Project:", projectStyle.Render(e.ProjectName()))
	}
	if e.Category != "" {
		row("Category:", categoryBadgeStyle.Render(e.Category))
	}
	if e.EntryType != "" {
		row("Type:", detailValueStyle.Render(e.EntryType))
	}
	row("Created:", timestampStyle.Render(e.CreatedAt))
	if e.UpdatedAt != e.CreatedAt {
		row("Updated:", timestampStyle.Render(e.UpdatedAt))
	}
	if e.Summary != "" {
		row("Summary:", detailValueStyle.Render(e.Summary))
	}

	b.WriteString(sectionHeadingStyle.Render("  Content"))
	b.WriteString("\n")

	lines := strings.Split(e.Body, "\n")
	maxLines := m.Height - 16
	if maxLines < 5 {
		maxLines = 5
	}
	scroll := m.DetailScroll
	if scroll > len(lines)-1 {
		scroll = len(lines) - 1
	}
	if scroll < 0 {
		scroll = 0
	}
	end := scroll + maxLines
	if end > len(lines) {
		end = len(lines)
	}
	for i := scroll; i < end; i++ {
		b.WriteString(detailContentStyle.Render(lines[i]))
		b.WriteString("\n")
	}
	if len(lines) > maxLines {
		b.WriteString(fmt.Sprintf("\n  %s",
			timestampStyle.Render(fmt.Sprintf("line %d-%d of %d", scroll+1, end, len(lines)))))
	}

	b.WriteString(helpStyle.Render("\n  j/k scroll • esc back"))

	return b.String()
}

// ─── Setup ───────────────────────────────────────────────────────────────────

func (m Model) viewSetup() string {
	var b strings.Builder

	b.WriteString(headerStyle.Render("  Setup: register the memory server with an agent"))
	b.WriteString("\n")

	if m.SetupInstalling {
		b.WriteString(fmt.Sprintf("\n  %s Configuring %s...\n",
			m.SetupSpinner.View(),
			fg(colorAccent).Bold(true).Render(m.SetupInstallingName)))
		return b.String()
	}

	if m.SetupDone {
		if m.SetupError != "" {
			b.WriteString(errorStyle.Render("  ✗ Setup failed: " + m.SetupError))
			b.WriteString("\n\n")
		} else if m.SetupResult != nil {
			b.WriteString(fmt.Sprintf("  %s %s\n",
				successStyle.Render("✓"),
				successStyle.Render("Registered with "+m.SetupResult.Agent)))
			b.WriteString(fmt.Sprintf("  %s %s\n",
				detailLabelStyle.Render("Location:"),
				projectStyle.Render(m.SetupResult.Destination)))
			if m.SetupResult.Backup != "" {
				b.WriteString(fmt.Sprintf("  %s %s\n",
					detailLabelStyle.Render("Backup:"),
					timestampStyle.Render(m.SetupResult.Backup)))
			}
			b.WriteString("\n")
			b.WriteString(sectionHeadingStyle.Render("  Next Steps"))
			b.WriteString("\n")
			b.WriteString(detailContentStyle.Render("Restart " + m.SetupResult.Agent + " so it picks up the new server."))
			b.WriteString("\n")
		}

		b.WriteString(helpStyle.Render("\n  enter/esc back to dashboard"))
		return b.String()
	}

	b.WriteString("\n")
	b.WriteString(titleStyle.Render("  Select an agent"))
	b.WriteString("\n\n")

	for i, agent := range m.SetupAgents {
		if i == m.Cursor {
			b.WriteString(menuSelectedStyle.Render("▸ " + agent.Description))
		} else {
			b.WriteString(menuItemStyle.Render("  " + agent.Description))
		}
		b.WriteString("\n")
		b.WriteString(fmt.Sprintf("      %s %s\n\n",
			detailLabelStyle.Render("Config:"),
			timestampStyle.Render(agent.InstallDir)))
	}

	b.WriteString(helpStyle.Render("\n  j/k navigate • enter install • esc back"))

	return b.String()
}

// ─── Shared Renderers ────────────────────────────────────────────────────────

func (m Model) renderEntryList(entries []store.Entry) string {
	var b strings.Builder

	visible := m.visibleEntryRows()
	end := m.Scroll + visible
	if end > len(entries) {
		end = len(entries)
	}
	for i := m.Scroll; i < end; i++ {
		b.WriteString(m.renderEntryListItem(i, entries[i]))
	}
	if len(entries) > visible {
		b.WriteString(fmt.Sprintf("\n  %s",
			timestampStyle.Render(fmt.Sprintf("showing %d-%d of %d", m.Scroll+1, end, len(entries)))))
	}
	return b.String()
}

func (m Model) renderEntryListItem(index int, e store.Entry) string {
	cursor := "  "
	style := listItemStyle
	if index == m.Cursor {
		cursor = "▸ "
		style = listSelectedStyle
	}

	where := "global"
	if e.Scope == store.ScopeProject {
		where = e.ProjectName()
	}
	category := ""
	if e.Category != "" {
		category = " " + categoryBadgeStyle.Render("["+e.Category+"]")
	}

	line := fmt.Sprintf("%s%s%s %s  %s  %s\n",
		cursor,
		idStyle.Render(fmt.Sprintf("#%-5d", e.ID)),
		category,
		style.Render(truncateStr(displayTitle(e), 50)),
		projectStyle.Render(where),
		timestampStyle.Render(e.CreatedAt))

	if preview := truncateStr(e.Body, 80); preview != "" {
		line += contentPreviewStyle.Render(preview) + "\n"
	}
	return line
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func displayTitle(e store.Entry) string {
	if e.Title == "" {
		return "Untitled"
	}
	return e.Title
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func truncateStr(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
