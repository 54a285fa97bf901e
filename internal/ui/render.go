package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/selfpatch/sovdtui/internal/sovd"
	"github.com/selfpatch/sovdtui/internal/state"
)

var kindGlyphs = map[sovd.NodeKind]string{
	sovd.KindArea:       "▣",
	sovd.KindComponent:  "◉",
	sovd.KindApp:        "◈",
	sovd.KindFunction:   "ƒ",
	sovd.KindTopic:      "≋",
	sovd.KindParameter:  "⚙",
	sovd.KindOperation:  "▶",
	sovd.KindFaultGroup: "⚠",
}

func (m Model) renderBrowser() string {
	header := m.renderHeader()
	footer := m.renderFooter()

	treeWidth := m.width / 2
	bodyHeight := max(1, m.height-lipgloss.Height(header)-lipgloss.Height(footer)-2)

	tree := m.theme.paneStyle().
		Width(treeWidth - 2).
		Height(bodyHeight).
		Render(m.renderTree(bodyHeight))
	detail := m.theme.paneStyle().
		Width(m.width - treeWidth - 2).
		Height(bodyHeight).
		Render(m.detailViewport.View())

	body := lipgloss.JoinHorizontal(lipgloss.Top, tree, detail)
	return lipgloss.JoinVertical(lipgloss.Left, header, body, footer)
}

func (m Model) renderHeader() string {
	conn := m.snapshot.Conn
	title := m.theme.titleStyle().Render("sovdtui")

	var status string
	switch {
	case conn.Connecting:
		status = m.theme.mutedStyle().Render(m.spin.View() + " connecting to " + conn.ServerURL)
	case conn.Connected && m.snapshot.Rebuilding:
		status = m.theme.mutedStyle().Render(m.spin.View() + " rebuilding · " + conn.ServerURL)
	case conn.Connected:
		status = lipgloss.NewStyle().Foreground(m.theme.Success).Render("● " + conn.ServerURL)
	case conn.Error != "":
		status = lipgloss.NewStyle().Foreground(m.theme.Danger).Render("○ " + conn.Error)
	default:
		status = m.theme.mutedStyle().Render("○ disconnected")
	}

	gap := max(1, m.width-lipgloss.Width(title)-lipgloss.Width(status)-2)
	return " " + title + strings.Repeat(" ", gap) + status
}

func (m Model) renderFooter() string {
	if notice := m.snapshot.Notice; notice != nil {
		style := m.theme.mutedStyle()
		switch notice.Level {
		case state.NoticeError:
			style = lipgloss.NewStyle().Foreground(m.theme.Danger)
		case state.NoticeWarn:
			style = lipgloss.NewStyle().Foreground(m.theme.Warning)
		}
		return " " + style.Render(notice.Message)
	}
	hints := "enter expand/select · c configs · f faults · o ops · p publish · r refresh · ? help · q quit"
	return " " + m.theme.mutedStyle().Render(hints)
}

func (m Model) renderTree(height int) string {
	rows := m.snapshot.Rows
	if len(rows) == 0 {
		if m.snapshot.Conn.Connecting {
			return m.theme.mutedStyle().Render(m.spin.View() + " loading entities")
		}
		return m.theme.mutedStyle().Render("no entities (C to connect)")
	}

	// Keep the cursor inside the visible window.
	start := 0
	if m.cursor >= height {
		start = m.cursor - height + 1
	}
	end := min(len(rows), start+height)

	var b strings.Builder
	for i := start; i < end; i++ {
		row := rows[i]
		b.WriteString(m.renderTreeRow(row, i == m.cursor))
		if i < end-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func (m Model) renderTreeRow(row state.TreeRow, selected bool) string {
	indent := strings.Repeat("  ", row.Depth)

	marker := "  "
	switch {
	case row.Loading:
		marker = m.spin.View()
	case row.HasChildren && row.Expanded:
		marker = "▾ "
	case row.HasChildren:
		marker = "▸ "
	}

	glyph := kindGlyphs[row.Kind]
	line := fmt.Sprintf("%s%s%s %s", indent, marker, glyph, row.Name)

	if selected {
		return m.theme.selectedStyle().Render(line)
	}
	if row.Path == m.snapshot.SelectedPath {
		return m.theme.titleStyle().Render(line)
	}
	return m.theme.textStyle().Render(line)
}

func (m Model) renderConfigurations() string {
	var b strings.Builder
	b.WriteString(m.theme.titleStyle().Render("Configurations · " + m.configComponent))
	b.WriteString("\n\n")

	if m.snapshot.LoadingConfigurations && len(m.configParams) == 0 {
		b.WriteString(m.theme.mutedStyle().Render(m.spin.View() + " loading"))
	} else if len(m.configParams) == 0 {
		b.WriteString(m.theme.mutedStyle().Render("no parameters"))
	}

	for i, param := range m.configParams {
		value := sovd.FormatValue(param.Value)
		if m.editing && i == m.configCursor {
			value = m.editInput.View()
		}
		suffix := ""
		if param.Unit != "" {
			suffix = " " + param.Unit
		}
		if param.ReadOnly {
			suffix += m.theme.mutedStyle().Render(" (read-only)")
		}
		line := fmt.Sprintf("%-24s %s%s", param.Name, value, suffix)
		if i == m.configCursor && !m.editing {
			line = m.theme.selectedStyle().Render(line)
		} else {
			line = m.theme.textStyle().Render(line)
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}

	b.WriteString("\n")
	b.WriteString(m.theme.mutedStyle().Render("enter edit · r reset · A reset all · esc back"))
	return m.framePanel(b.String())
}

func (m Model) renderFaults() string {
	var b strings.Builder
	b.WriteString(m.theme.titleStyle().Render(fmt.Sprintf("Faults · %s/%s", m.faultEntityType, m.faultEntityID)))
	b.WriteString("\n\n")

	if m.snapshot.LoadingFaults && len(m.faultList) == 0 {
		b.WriteString(m.theme.mutedStyle().Render(m.spin.View() + " loading"))
	} else if len(m.faultList) == 0 {
		b.WriteString(lipgloss.NewStyle().Foreground(m.theme.Success).Render("no faults"))
	}

	for i, fault := range m.faultList {
		sev := m.theme.severityStyle(fault.Severity).Render(fmt.Sprintf("%-8s", fault.Severity))
		count := ""
		if fault.Count > 1 {
			count = fmt.Sprintf(" ×%d", fault.Count)
		}
		line := fmt.Sprintf("%s %s %-10s %s%s", sev, fault.Code, fault.Status, fault.Name, count)
		if i == m.faultCursor {
			line = m.theme.selectedStyle().Render(line)
		}
		b.WriteString(line)
		b.WriteByte('\n')
		if i == m.faultCursor && fault.Description != "" {
			b.WriteString(m.theme.mutedStyle().Render("         " + fault.Description))
			b.WriteByte('\n')
		}
	}

	b.WriteString("\n")
	b.WriteString(m.theme.mutedStyle().Render("x clear · r reload · esc back"))
	return m.framePanel(b.String())
}

func (m Model) renderOperations() string {
	var b strings.Builder
	b.WriteString(m.theme.titleStyle().Render("Operations · " + m.opComponent))
	b.WriteString("\n\n")

	if len(m.ops) == 0 {
		b.WriteString(m.theme.mutedStyle().Render("no operations (select the component first)"))
	}

	for i, op := range m.ops {
		line := fmt.Sprintf("%-20s %-8s %s", op.Name, op.Kind, op.Description)
		if i == m.opCursor {
			line = m.theme.selectedStyle().Render(line)
		} else {
			line = m.theme.textStyle().Render(line)
		}
		b.WriteString(line)
		b.WriteByte('\n')
		if status, ok := m.goalStatus[op.Name]; ok {
			goal := m.goals[op.Name]
			detail := status
			if goal != "" {
				detail = goal + ": " + status
			}
			b.WriteString(m.theme.mutedStyle().Render("  " + detail))
			b.WriteByte('\n')
		}
	}

	b.WriteString("\n")
	b.WriteString(m.theme.mutedStyle().Render("enter invoke · s status · v result · x cancel · esc back"))
	return m.framePanel(b.String())
}

func (m Model) renderPublish() string {
	var b strings.Builder
	b.WriteString(m.theme.titleStyle().Render(fmt.Sprintf("Publish · %s/%s", m.publishComponent, m.publishTopic)))
	b.WriteString("\n\n")
	b.WriteString(m.theme.textStyle().Render("Message (JSON):"))
	b.WriteString("\n")
	b.WriteString(m.publishInput.View())
	b.WriteString("\n\n")
	b.WriteString(m.theme.mutedStyle().Render("enter send · esc cancel"))
	return m.framePanel(b.String())
}

func (m Model) renderHelp() string {
	rows := [][2]string{
		{"j/k, arrows", "move cursor"},
		{"enter, space", "expand node and select entity"},
		{"r", "refresh selected entity"},
		{"R", "reload children of the current node"},
		{"ctrl+r", "gateway rediscovery"},
		{"c", "configurations panel"},
		{"f", "faults panel (live polling while visible)"},
		{"o", "operations panel"},
		{"p", "publish to topic"},
		{"b", "download bulk data"},
		{"C / D", "connect / disconnect"},
		{"T", "cycle theme"},
		{"esc", "back to browser"},
		{"q, ctrl+c", "quit"},
	}
	var b strings.Builder
	b.WriteString(m.theme.titleStyle().Render("Help"))
	b.WriteString("\n\n")
	for _, r := range rows {
		b.WriteString(fmt.Sprintf("  %s  %s\n",
			m.theme.textStyle().Width(14).Render(r[0]),
			m.theme.mutedStyle().Render(r[1])))
	}
	b.WriteString("\n")
	b.WriteString(m.theme.mutedStyle().Render("press any key to close"))
	return m.framePanel(b.String())
}

func (m Model) framePanel(content string) string {
	return m.theme.paneStyle().
		Width(max(20, m.width-4)).
		Height(max(1, m.height-4)).
		Render(content)
}
