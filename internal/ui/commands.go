package ui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/selfpatch/sovdtui/internal/sovd"
	"github.com/selfpatch/sovdtui/internal/state"
)

type tickMsg time.Time

// refreshMsg tells the model to pull a fresh snapshot after an action.
type refreshMsg struct{}

type snapshotMsg state.Snapshot

type configsMsg struct {
	componentID string
	params      []sovd.Parameter
	ok          bool
}

type faultsMsg struct {
	entityType sovd.EntityType
	id         string
	faults     []sovd.Fault
}

type invokeMsg struct {
	operation string
	result    *sovd.InvokeResult
	ok        bool
}

type goalStatusMsg struct {
	operation string
	status    *sovd.GoalStatus
	ok        bool
}

type goalResultMsg struct {
	operation string
	result    *sovd.GoalResult
	ok        bool
}

type bulkSavedMsg struct {
	path string
	ok   bool
}

func tickCmd(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) snapshotCmd() tea.Cmd {
	return func() tea.Msg {
		return snapshotMsg(m.store.Snapshot())
	}
}

func (m Model) connectCmd(serverURL string) tea.Cmd {
	return func() tea.Msg {
		m.store.Connect(m.ctx, serverURL)
		return refreshMsg{}
	}
}

func (m Model) loadChildrenCmd(path string) tea.Cmd {
	return func() tea.Msg {
		_ = m.store.LoadChildren(m.ctx, path)
		return refreshMsg{}
	}
}

func (m Model) reloadChildrenCmd(path string) tea.Cmd {
	return func() tea.Msg {
		_ = m.store.ReloadChildren(m.ctx, path)
		return refreshMsg{}
	}
}

func (m Model) selectCmd(path string) tea.Cmd {
	return func() tea.Msg {
		m.store.SelectEntity(m.ctx, path)
		return refreshMsg{}
	}
}

func (m Model) refreshSelectedCmd() tea.Cmd {
	return func() tea.Msg {
		m.store.RefreshSelected(m.ctx)
		return refreshMsg{}
	}
}

func (m Model) refreshGatewayCmd() tea.Cmd {
	return func() tea.Msg {
		m.store.RefreshGateway(m.ctx)
		return refreshMsg{}
	}
}

func (m Model) configurationsCmd(componentID string) tea.Cmd {
	return func() tea.Msg {
		params, ok := m.store.Configurations(m.ctx, componentID)
		return configsMsg{componentID: componentID, params: params, ok: ok}
	}
}

func (m Model) setParameterCmd(componentID, name string, value any) tea.Cmd {
	return func() tea.Msg {
		ok := m.store.SetParameter(m.ctx, componentID, name, value)
		if !ok {
			return refreshMsg{}
		}
		params, ok := m.store.Configurations(m.ctx, componentID)
		return configsMsg{componentID: componentID, params: params, ok: ok}
	}
}

func (m Model) resetParameterCmd(componentID, name string) tea.Cmd {
	return func() tea.Msg {
		m.store.ResetParameter(m.ctx, componentID, name)
		params, ok := m.store.Configurations(m.ctx, componentID)
		return configsMsg{componentID: componentID, params: params, ok: ok}
	}
}

func (m Model) resetAllCmd(componentID string) tea.Cmd {
	return func() tea.Msg {
		m.store.ResetAllConfigurations(m.ctx, componentID)
		params, ok := m.store.Configurations(m.ctx, componentID)
		return configsMsg{componentID: componentID, params: params, ok: ok}
	}
}

func (m Model) faultsCmd(entityType sovd.EntityType, id string) tea.Cmd {
	return func() tea.Msg {
		m.store.Faults(m.ctx, entityType, id)
		return faultsMsg{entityType: entityType, id: id, faults: m.store.CachedFaults(entityType, id)}
	}
}

func (m Model) clearFaultCmd(entityType sovd.EntityType, id, code string) tea.Cmd {
	return func() tea.Msg {
		m.store.ClearFault(m.ctx, entityType, id, code)
		return faultsMsg{entityType: entityType, id: id, faults: m.store.CachedFaults(entityType, id)}
	}
}

func (m Model) publishCmd(componentID, topic, rawJSON string) tea.Cmd {
	return func() tea.Msg {
		m.store.PublishTopic(m.ctx, componentID, topic, rawJSON)
		return refreshMsg{}
	}
}

func (m Model) invokeCmd(componentID, name string) tea.Cmd {
	return func() tea.Msg {
		result, ok := m.store.InvokeOperation(m.ctx, componentID, name, nil)
		return invokeMsg{operation: name, result: result, ok: ok}
	}
}

func (m Model) goalStatusCmd(componentID, name, goalID string) tea.Cmd {
	return func() tea.Msg {
		status, ok := m.store.OperationStatus(m.ctx, componentID, name, goalID)
		return goalStatusMsg{operation: name, status: status, ok: ok}
	}
}

func (m Model) goalResultCmd(componentID, name, goalID string) tea.Cmd {
	return func() tea.Msg {
		result, ok := m.store.OperationResult(m.ctx, componentID, name, goalID)
		return goalResultMsg{operation: name, result: result, ok: ok}
	}
}

func (m Model) cancelGoalCmd(componentID, name, goalID string) tea.Cmd {
	return func() tea.Msg {
		m.store.CancelOperation(m.ctx, componentID, name, goalID)
		return refreshMsg{}
	}
}

func (m Model) downloadBulkCmd(entityType sovd.EntityType, id string) tea.Cmd {
	return func() tea.Msg {
		bulk, ok := m.store.DownloadBulkData(m.ctx, entityType, id, "sessions", "latest")
		if !ok {
			return bulkSavedMsg{}
		}
		path, err := saveBulkData(id, bulk)
		if err != nil {
			m.store.Notify(state.NoticeError, "save download: %v", err)
			return bulkSavedMsg{}
		}
		m.store.Notify(state.NoticeInfo, "saved %s", path)
		return bulkSavedMsg{path: path, ok: true}
	}
}
