// Package ui renders the diagnostic browser: a lazily expanding entity
// tree, a detail pane for the selected entity, and panels for
// configurations, faults, operations and topic publishing. All data comes
// from store snapshots; all mutations go through store actions dispatched
// as Bubble Tea commands.
package ui

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/selfpatch/sovdtui/internal/sovd"
	"github.com/selfpatch/sovdtui/internal/state"
)

// View identifies the active screen.
type View int

// Screens of the application.
const (
	ViewBrowser View = iota
	ViewConfigurations
	ViewFaults
	ViewOperations
	ViewPublish
)

const uiTick = time.Second

// FaultPoller is the slice of the fault poller the UI drives: the watched
// entity follows the faults panel, and visibility follows focus.
type FaultPoller interface {
	SetVisible(visible bool)
	Watch(entityType sovd.EntityType, id string)
	Unwatch()
}

// Options configure the UI.
type Options struct {
	Context   context.Context
	Store     *state.Store
	Poller    FaultPoller
	ServerURL string
	ThemeName string
	PrefsPath string
}

// Model is the root Bubble Tea model.
type Model struct {
	ctx       context.Context
	store     *state.Store
	poller    FaultPoller
	prefsPath string
	serverURL string

	theme    Theme
	view     View
	width    int
	height   int
	ready    bool
	focused  bool
	showHelp bool

	snapshot state.Snapshot
	cursor   int

	detailViewport viewport.Model
	spin           spinner.Model

	configComponent string
	configParams    []sovd.Parameter
	configCursor    int
	editing         bool
	editInput       textinput.Model

	faultEntityType sovd.EntityType
	faultEntityID   string
	faultList       []sovd.Fault
	faultCursor     int

	opComponent string
	ops         []sovd.Operation
	opCursor    int
	goals       map[string]string // operation -> last goal ID
	goalStatus  map[string]string // operation -> last reported status

	publishComponent string
	publishTopic     string
	publishInput     textinput.Model
}

// New creates the root model.
func New(opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	spin := spinner.New()
	spin.Spinner = spinner.Dot

	edit := textinput.New()
	edit.CharLimit = 256

	publish := textinput.New()
	publish.CharLimit = 1024
	publish.Placeholder = `{"linear": {"x": 0.5}}`

	return Model{
		ctx:          ctx,
		store:        opts.Store,
		poller:       opts.Poller,
		prefsPath:    opts.PrefsPath,
		serverURL:    opts.ServerURL,
		theme:        GetTheme(opts.ThemeName),
		view:         ViewBrowser,
		focused:      true,
		spin:         spin,
		editInput:    edit,
		publishInput: publish,
		goals:        make(map[string]string),
		goalStatus:   make(map[string]string),
	}
}

// Run boots the UI and blocks until quit or context cancellation.
func Run(opts Options) error {
	program := tea.NewProgram(New(opts),
		tea.WithAltScreen(),
		tea.WithContext(opts.Context),
		tea.WithReportFocus(),
	)
	_, err := program.Run()
	if err != nil && (errors.Is(err, tea.ErrProgramKilled) || errors.Is(err, context.Canceled)) {
		return nil
	}
	return err
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spin.Tick,
		tickCmd(uiTick),
		m.connectCmd(m.serverURL),
		m.snapshotCmd(),
	)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if !m.ready {
			m.detailViewport = viewport.New(msg.Width/2, msg.Height-4)
		}
		m.ready = true
		m.layoutPanes()
		return m, nil

	case tea.FocusMsg:
		m.focused = true
		m.syncPollerVisibility()
		return m, nil

	case tea.BlurMsg:
		m.focused = false
		m.syncPollerVisibility()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case tickMsg:
		cmds := []tea.Cmd{tickCmd(uiTick), m.snapshotCmd()}
		if m.view == ViewFaults && m.faultEntityID != "" {
			m.faultList = m.store.CachedFaults(m.faultEntityType, m.faultEntityID)
			m.clampFaultCursor()
		}
		return m, tea.Batch(cmds...)

	case refreshMsg:
		return m, m.snapshotCmd()

	case snapshotMsg:
		m.snapshot = state.Snapshot(msg)
		m.clampCursor()
		m.updateDetailViewport()
		return m, nil

	case configsMsg:
		if msg.componentID == m.configComponent && msg.ok {
			m.configParams = msg.params
			if m.configCursor >= len(m.configParams) {
				m.configCursor = max(0, len(m.configParams)-1)
			}
		}
		return m, m.snapshotCmd()

	case faultsMsg:
		if msg.entityType == m.faultEntityType && msg.id == m.faultEntityID {
			m.faultList = msg.faults
			m.clampFaultCursor()
		}
		return m, m.snapshotCmd()

	case invokeMsg:
		if msg.ok && msg.result != nil && msg.result.GoalID != "" {
			m.goals[msg.operation] = msg.result.GoalID
			m.goalStatus[msg.operation] = msg.result.Status
		} else if msg.ok && msg.result != nil {
			m.goalStatus[msg.operation] = msg.result.Status
		}
		return m, m.snapshotCmd()

	case goalStatusMsg:
		if msg.ok && msg.status != nil {
			m.goalStatus[msg.operation] = msg.status.Status
		}
		return m, m.snapshotCmd()

	case goalResultMsg:
		if msg.ok && msg.result != nil {
			m.goalStatus[msg.operation] = msg.result.Status + " " + sovd.FormatValue(msg.result.Result)
		}
		return m, m.snapshotCmd()

	case bulkSavedMsg:
		return m, m.snapshotCmd()
	}

	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	if m.showHelp {
		return m.renderHelp()
	}
	switch m.view {
	case ViewConfigurations:
		return m.renderConfigurations()
	case ViewFaults:
		return m.renderFaults()
	case ViewOperations:
		return m.renderOperations()
	case ViewPublish:
		return m.renderPublish()
	}
	return m.renderBrowser()
}

func (m *Model) layoutPanes() {
	m.detailViewport.Width = m.width - m.width/2 - 4
	m.detailViewport.Height = max(1, m.height-6)
}

func (m *Model) syncPollerVisibility() {
	if m.poller == nil {
		return
	}
	m.poller.SetVisible(m.focused && m.view == ViewFaults)
}

func (m *Model) clampCursor() {
	if m.cursor >= len(m.snapshot.Rows) {
		m.cursor = max(0, len(m.snapshot.Rows)-1)
	}
}

func (m *Model) clampFaultCursor() {
	if m.faultCursor >= len(m.faultList) {
		m.faultCursor = max(0, len(m.faultList)-1)
	}
}

func (m Model) currentRow() (state.TreeRow, bool) {
	if m.cursor < 0 || m.cursor >= len(m.snapshot.Rows) {
		return state.TreeRow{}, false
	}
	return m.snapshot.Rows[m.cursor], true
}

// componentFor resolves the component a row's resources belong to: the
// row itself for components, the owning component for leaves.
func (m Model) componentFor(row state.TreeRow) (string, bool) {
	node, ok := m.store.Node(row.Path)
	if !ok {
		return "", false
	}
	switch node.Kind {
	case sovd.KindComponent:
		return node.ID, true
	case sovd.KindTopic, sovd.KindOperation, sovd.KindFaultGroup:
		if node.Owner != "" {
			return node.Owner, true
		}
	}
	return "", false
}

// faultTargetFor resolves the entity whose faults a row addresses.
func (m Model) faultTargetFor(row state.TreeRow) (sovd.EntityType, string, bool) {
	node, ok := m.store.Node(row.Path)
	if !ok {
		return "", "", false
	}
	if collection, ok := node.Kind.Collection(); ok {
		return collection, node.ID, true
	}
	// Leaves address their parent entity.
	parentPath := strings.TrimSuffix(node.Path, "/"+node.ID)
	parent, ok := m.store.Node(parentPath)
	if !ok {
		return "", "", false
	}
	if collection, ok := parent.Kind.Collection(); ok {
		return collection, parent.ID, true
	}
	return "", "", false
}
