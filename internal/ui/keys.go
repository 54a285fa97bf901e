package ui

import (
	"encoding/json"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/selfpatch/sovdtui/internal/prefs"
	"github.com/selfpatch/sovdtui/internal/sovd"
)

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showHelp {
		m.showHelp = false
		return m, nil
	}

	// Text entry modes grab keys before global bindings.
	if m.view == ViewConfigurations && m.editing {
		return m.handleEditKey(msg)
	}
	if m.view == ViewPublish {
		return m.handlePublishKey(msg)
	}

	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit

	case "?":
		m.showHelp = true
		return m, nil

	case "T":
		m.theme = GetTheme(NextTheme(m.theme.Name))
		if m.prefsPath != "" {
			p := prefs.Load(m.prefsPath)
			p.Theme = m.theme.Name
			_ = prefs.Save(m.prefsPath, p)
		}
		return m, nil

	case "esc":
		if m.view != ViewBrowser {
			m.view = ViewBrowser
			m.syncPollerVisibility()
			if m.poller != nil {
				m.poller.Unwatch()
			}
		}
		return m, nil
	}

	switch m.view {
	case ViewBrowser:
		return m.handleBrowserKey(msg)
	case ViewConfigurations:
		return m.handleConfigurationsKey(msg)
	case ViewFaults:
		return m.handleFaultsKey(msg)
	case ViewOperations:
		return m.handleOperationsKey(msg)
	}
	return m, nil
}

func (m Model) handleBrowserKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil

	case "down", "j":
		if m.cursor < len(m.snapshot.Rows)-1 {
			m.cursor++
		}
		return m, nil

	case "g":
		m.cursor = 0
		return m, nil

	case "G":
		m.cursor = max(0, len(m.snapshot.Rows)-1)
		return m, nil

	case "enter", " ":
		row, ok := m.currentRow()
		if !ok {
			return m, nil
		}
		cmds := []tea.Cmd{m.selectCmd(row.Path)}
		if row.HasChildren || row.Kind == sovd.KindComponent || row.Kind == sovd.KindApp || row.Kind == sovd.KindFunction {
			expanded := m.store.ToggleExpanded(row.Path)
			// Expansion is UI state; loading is triggered here, the
			// consuming view, and only when the node is not cached yet.
			if expanded && !row.Loaded {
				cmds = append(cmds, m.loadChildrenCmd(row.Path))
			}
		}
		return m, tea.Batch(cmds...)

	case "r":
		return m, m.refreshSelectedCmd()

	case "R":
		row, ok := m.currentRow()
		if !ok {
			return m, nil
		}
		return m, m.reloadChildrenCmd(row.Path)

	case "ctrl+r":
		return m, m.refreshGatewayCmd()

	case "c":
		row, ok := m.currentRow()
		if !ok {
			return m, nil
		}
		component, ok := m.componentFor(row)
		if !ok {
			return m, nil
		}
		m.view = ViewConfigurations
		m.configComponent = component
		m.configParams = nil
		m.configCursor = 0
		return m, m.configurationsCmd(component)

	case "f":
		row, ok := m.currentRow()
		if !ok {
			return m, nil
		}
		entityType, id, ok := m.faultTargetFor(row)
		if !ok {
			return m, nil
		}
		m.view = ViewFaults
		m.faultEntityType = entityType
		m.faultEntityID = id
		m.faultList = nil
		m.faultCursor = 0
		if m.poller != nil {
			m.poller.Watch(entityType, id)
		}
		m.syncPollerVisibility()
		return m, m.faultsCmd(entityType, id)

	case "o":
		row, ok := m.currentRow()
		if !ok {
			return m, nil
		}
		component, ok := m.componentFor(row)
		if !ok {
			return m, nil
		}
		m.view = ViewOperations
		m.opComponent = component
		m.ops = m.operationsFor(component)
		m.opCursor = 0
		return m, nil

	case "p":
		row, ok := m.currentRow()
		if !ok || row.Kind != sovd.KindTopic {
			return m, nil
		}
		node, ok := m.store.Node(row.Path)
		if !ok {
			return m, nil
		}
		m.view = ViewPublish
		m.publishComponent = node.Owner
		m.publishTopic = node.ID
		m.publishInput.SetValue("")
		m.publishInput.Focus()
		return m, nil

	case "b":
		row, ok := m.currentRow()
		if !ok {
			return m, nil
		}
		entityType, id, ok := m.faultTargetFor(row)
		if !ok {
			return m, nil
		}
		return m, m.downloadBulkCmd(entityType, id)

	case "C":
		if !m.snapshot.Conn.Connected && !m.snapshot.Conn.Connecting {
			return m, m.connectCmd(m.serverURL)
		}
		return m, nil

	case "D":
		m.store.Disconnect()
		return m, m.snapshotCmd()
	}
	return m, nil
}

func (m Model) handleConfigurationsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.configCursor > 0 {
			m.configCursor--
		}
	case "down", "j":
		if m.configCursor < len(m.configParams)-1 {
			m.configCursor++
		}
	case "enter":
		if m.configCursor < len(m.configParams) {
			param := m.configParams[m.configCursor]
			if param.ReadOnly {
				return m, nil
			}
			m.editing = true
			m.editInput.SetValue(sovd.FormatValue(param.Value))
			m.editInput.Focus()
		}
	case "r":
		if m.configCursor < len(m.configParams) {
			return m, m.resetParameterCmd(m.configComponent, m.configParams[m.configCursor].Name)
		}
	case "A":
		return m, m.resetAllCmd(m.configComponent)
	}
	return m, nil
}

func (m Model) handleEditKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		m.editing = false
		m.editInput.Blur()
		if m.configCursor >= len(m.configParams) {
			return m, nil
		}
		name := m.configParams[m.configCursor].Name
		return m, m.setParameterCmd(m.configComponent, name, parseValue(m.editInput.Value()))
	case "esc":
		m.editing = false
		m.editInput.Blur()
		return m, nil
	}
	var cmd tea.Cmd
	m.editInput, cmd = m.editInput.Update(msg)
	return m, cmd
}

func (m Model) handleFaultsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.faultCursor > 0 {
			m.faultCursor--
		}
	case "down", "j":
		if m.faultCursor < len(m.faultList)-1 {
			m.faultCursor++
		}
	case "x":
		if m.faultCursor < len(m.faultList) {
			code := m.faultList[m.faultCursor].Code
			return m, m.clearFaultCmd(m.faultEntityType, m.faultEntityID, code)
		}
	case "r":
		return m, m.faultsCmd(m.faultEntityType, m.faultEntityID)
	}
	return m, nil
}

func (m Model) handleOperationsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.opCursor > 0 {
			m.opCursor--
		}
	case "down", "j":
		if m.opCursor < len(m.ops)-1 {
			m.opCursor++
		}
	case "enter":
		if m.opCursor < len(m.ops) {
			return m, m.invokeCmd(m.opComponent, m.ops[m.opCursor].Name)
		}
	case "s":
		if op, goal, ok := m.currentGoal(); ok {
			return m, m.goalStatusCmd(m.opComponent, op, goal)
		}
	case "v":
		if op, goal, ok := m.currentGoal(); ok {
			return m, m.goalResultCmd(m.opComponent, op, goal)
		}
	case "x":
		if op, goal, ok := m.currentGoal(); ok {
			return m, m.cancelGoalCmd(m.opComponent, op, goal)
		}
	}
	return m, nil
}

func (m Model) handlePublishKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		raw := strings.TrimSpace(m.publishInput.Value())
		if raw == "" {
			return m, nil
		}
		m.view = ViewBrowser
		m.publishInput.Blur()
		return m, m.publishCmd(m.publishComponent, m.publishTopic, raw)
	case "esc":
		m.view = ViewBrowser
		m.publishInput.Blur()
		return m, nil
	case "ctrl+c":
		return m, tea.Quit
	}
	var cmd tea.Cmd
	m.publishInput, cmd = m.publishInput.Update(msg)
	return m, cmd
}

func (m Model) currentGoal() (operation, goalID string, ok bool) {
	if m.opCursor >= len(m.ops) {
		return "", "", false
	}
	operation = m.ops[m.opCursor].Name
	goalID, ok = m.goals[operation]
	return operation, goalID, ok
}

func (m Model) operationsFor(componentID string) []sovd.Operation {
	if m.snapshot.Selected != nil && m.snapshot.Selected.ID == componentID {
		return m.snapshot.Selected.Operations
	}
	return nil
}

// parseValue interprets the edited text as JSON when possible, so numbers
// and booleans round-trip typed; anything else is sent as a string.
func parseValue(raw string) any {
	trimmed := strings.TrimSpace(raw)
	var value any
	if err := json.Unmarshal([]byte(trimmed), &value); err == nil {
		return value
	}
	return trimmed
}
