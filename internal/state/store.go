package state

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/selfpatch/sovdtui/internal/sovd"
)

// NoticeLevel classifies user-visible notices.
type NoticeLevel int

// Notice levels, in increasing severity.
const (
	NoticeInfo NoticeLevel = iota
	NoticeWarn
	NoticeError
)

// Notice is a user-visible message surfaced by a store action. Seq lets the
// UI tell a fresh notice from one it already displayed.
type Notice struct {
	Level   NoticeLevel
	Message string
	Time    time.Time
	Seq     uint64
}

// Connection describes the gateway connection state.
type Connection struct {
	ServerURL  string
	Connected  bool
	Connecting bool
	Error      string
}

// DialFunc builds an API client for a server URL. Injected so the store
// stays testable and never reaches for globals.
type DialFunc func(serverURL string) (sovd.API, error)

// Options configure a Store.
type Options struct {
	Dial        DialFunc
	OnConnected func(serverURL string) // persistence hook for the last good URL
	Logger      *slog.Logger
	ConfigTTL   time.Duration // configurations cache lifetime; zero uses default
}

const defaultConfigTTL = 5 * time.Minute

// Store is the single source of truth for connection state, the lazily
// loaded entity tree, the current selection and the per-entity resource
// caches. UI components read snapshots and dispatch actions; they never
// mutate store state directly.
type Store struct {
	mu          sync.Mutex
	dial        DialFunc
	api         sovd.API
	logger      *slog.Logger
	onConnected func(string)

	conn         Connection
	nodes        map[string]*TreeNode
	roots        []string
	loadingPaths map[string]struct{}
	expanded     map[string]bool

	selectedPath   string
	selected       *sovd.EntityDetail
	selectionGen   uint64
	loadingDetails bool
	refreshing     bool
	rebuilding     bool

	configs        *ttlcache.Cache[string, []sovd.Parameter]
	loadingConfigs bool

	faults        map[string][]sovd.Fault
	faultGen      map[string]uint64
	loadingFaults bool

	lastNotice *Notice
	noticeSeq  uint64
}

// New builds a Store. The configurations cache evicts idle entries so a
// long session eventually refetches parameters it has not looked at.
func New(opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	ttl := opts.ConfigTTL
	if ttl <= 0 {
		ttl = defaultConfigTTL
	}
	cache := ttlcache.New[string, []sovd.Parameter](
		ttlcache.WithTTL[string, []sovd.Parameter](ttl),
	)
	go cache.Start()

	return &Store{
		dial:         opts.Dial,
		logger:       logger,
		onConnected:  opts.OnConnected,
		nodes:        make(map[string]*TreeNode),
		loadingPaths: make(map[string]struct{}),
		expanded:     make(map[string]bool),
		configs:      cache,
		faults:       make(map[string][]sovd.Fault),
		faultGen:     make(map[string]uint64),
	}
}

// Close stops the configurations cache janitor.
func (s *Store) Close() {
	s.configs.Stop()
}

// Snapshot is the read-only view the UI renders from.
type Snapshot struct {
	Conn                  Connection
	Rows                  []TreeRow
	SelectedPath          string
	Selected              *sovd.EntityDetail
	LoadingDetails        bool
	Refreshing            bool
	Rebuilding            bool
	LoadingConfigurations bool
	LoadingFaults         bool
	Notice                *Notice
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Conn:                  s.conn,
		Rows:                  s.flattenTree(),
		SelectedPath:          s.selectedPath,
		LoadingDetails:        s.loadingDetails,
		Refreshing:            s.refreshing,
		Rebuilding:            s.rebuilding,
		LoadingConfigurations: s.loadingConfigs,
		LoadingFaults:         s.loadingFaults,
	}
	if s.selected != nil {
		detail := *s.selected
		snap.Selected = &detail
	}
	if s.lastNotice != nil {
		notice := *s.lastNotice
		snap.Notice = &notice
	}
	return snap
}

// Node returns a copy of the tree node at path.
func (s *Store) Node(path string) (TreeNode, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	node, ok := s.nodes[path]
	if !ok {
		return TreeNode{}, false
	}
	return *node, true
}

// Connect dials the gateway, health-checks it and loads the root areas.
// At most one attempt runs at a time; a second call while one is pending
// is rejected without starting a request.
func (s *Store) Connect(ctx context.Context, serverURL string) bool {
	s.mu.Lock()
	if s.conn.Connecting {
		s.mu.Unlock()
		s.notify(NoticeWarn, "connection attempt already in progress")
		return false
	}
	s.conn = Connection{ServerURL: serverURL, Connecting: true}
	s.mu.Unlock()

	api, err := s.dial(serverURL)
	if err == nil {
		err = api.Health(ctx)
	}

	s.mu.Lock()
	s.conn.Connecting = false
	if err != nil {
		s.conn.Error = err.Error()
		s.mu.Unlock()
		s.notify(NoticeError, "connect to %s: %v", serverURL, err)
		return false
	}
	s.api = api
	s.conn.Connected = true
	s.conn.Error = ""
	s.mu.Unlock()

	if s.onConnected != nil {
		s.onConnected(serverURL)
	}
	_ = s.LoadRoots(ctx)
	return true
}

// Disconnect drops the connection and clears all cached data.
func (s *Store) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.api = nil
	s.conn = Connection{ServerURL: s.conn.ServerURL}
	s.nodes = make(map[string]*TreeNode)
	s.roots = nil
	s.loadingPaths = make(map[string]struct{})
	s.expanded = make(map[string]bool)
	s.selectedPath = ""
	s.selected = nil
	s.selectionGen++
	s.loadingDetails = false
	s.refreshing = false
	s.rebuilding = false
	s.configs.DeleteAll()
	s.faults = make(map[string][]sovd.Fault)
}

// LoadRoots fetches the area list and rebuilds the tree roots wholesale.
func (s *Store) LoadRoots(ctx context.Context) error {
	api, ok := s.apiOrNotice()
	if !ok {
		return fmt.Errorf("not connected")
	}
	areas, err := api.ListAreas(ctx)
	if err != nil {
		s.notify(NoticeError, "load areas: %v", err)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes = make(map[string]*TreeNode)
	s.roots = nil
	for _, a := range areas {
		node := nodeFromSummary("", a)
		s.nodes[node.Path] = node
		s.roots = append(s.roots, node.Path)
	}
	return nil
}

// LoadChildren fetches and caches the children of exactly one node. A call
// for a path whose request is already in flight is a no-op, so rapid UI
// interaction produces a single request per node. On failure the node stays
// unloaded and therefore retryable.
func (s *Store) LoadChildren(ctx context.Context, path string) error {
	s.mu.Lock()
	node, ok := s.nodes[path]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("unknown tree path %q", path)
	}
	if node.Loaded {
		s.mu.Unlock()
		return nil
	}
	if _, inflight := s.loadingPaths[path]; inflight {
		s.mu.Unlock()
		return nil
	}
	s.loadingPaths[path] = struct{}{}
	kind, id := node.Kind, node.ID
	s.mu.Unlock()

	children, err := s.fetchChildren(ctx, path, kind, id)

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.loadingPaths, path)
	if err != nil {
		s.notifyLocked(NoticeError, "load children of %s: %v", id, err)
		return err
	}
	// Re-resolve: a root reload may have replaced the node meanwhile.
	node, ok = s.nodes[path]
	if !ok {
		return nil
	}
	node.Children = nil
	for _, child := range children {
		s.nodes[child.Path] = child
		node.Children = append(node.Children, child.Path)
	}
	node.Loaded = true
	return nil
}

// fetchChildren builds the child nodes for one tree node. Runs without the
// store lock held.
func (s *Store) fetchChildren(ctx context.Context, path string, kind sovd.NodeKind, id string) ([]*TreeNode, error) {
	api, ok := s.apiQuiet()
	if !ok {
		return nil, fmt.Errorf("not connected")
	}
	switch kind {
	case sovd.KindArea:
		summaries, err := api.ListComponents(ctx, id)
		if err != nil {
			return nil, err
		}
		children := make([]*TreeNode, 0, len(summaries))
		for _, sum := range summaries {
			children = append(children, nodeFromSummary(path, sum))
		}
		return children, nil

	case sovd.KindComponent:
		topics, err := api.ListData(ctx, id)
		if err != nil {
			return nil, err
		}
		ops, err := api.ListOperations(ctx, id)
		if err != nil {
			return nil, err
		}
		var children []*TreeNode
		for _, t := range topics {
			msgType := t.MessageType
			if msgType == "" {
				msgType = sovd.GuessMessageType(t.Latest)
			}
			children = append(children, &TreeNode{
				ID: t.Name, Name: t.Name, Kind: sovd.KindTopic,
				Path: path + "/" + t.Name, Owner: id,
				Payload: sovd.TopicInfo{MessageType: msgType, Writable: t.Writable},
			})
		}
		for _, op := range ops {
			children = append(children, &TreeNode{
				ID: op.Name, Name: op.Name, Kind: sovd.KindOperation,
				Path: path + "/" + op.Name, Owner: id,
				Payload: sovd.OperationInfo{OperationKind: op.Kind, Description: op.Description},
			})
		}
		children = append(children, faultGroupNode(path, id))
		return children, nil

	case sovd.KindApp, sovd.KindFunction:
		return []*TreeNode{faultGroupNode(path, id)}, nil
	}
	return nil, nil
}

func faultGroupNode(parentPath, owner string) *TreeNode {
	return &TreeNode{
		ID: "faults", Name: "Faults", Kind: sovd.KindFaultGroup,
		Path: parentPath + "/faults", Owner: owner,
	}
}

// ReloadChildren drops a node's cached subtree and fetches it again. This
// is the explicit-refresh path; plain re-expansion reuses cached children.
func (s *Store) ReloadChildren(ctx context.Context, path string) error {
	s.mu.Lock()
	if _, ok := s.nodes[path]; ok {
		s.dropSubtree(path)
	}
	s.mu.Unlock()
	return s.LoadChildren(ctx, path)
}

// ToggleExpanded flips a node's expansion state and reports the new state.
// Pure UI state: triggering the child load is the consuming view's job.
func (s *Store) ToggleExpanded(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expanded[path] = !s.expanded[path]
	return s.expanded[path]
}

// SelectEntity marks a path selected and fetches its detail payload.
// Last write wins: if a newer selection starts before this fetch resolves,
// the stale response is discarded silently. Taking the slot resets both
// phase flags, so a superseded fetch returns early without touching them.
func (s *Store) SelectEntity(ctx context.Context, path string) {
	s.mu.Lock()
	node, ok := s.nodes[path]
	if !ok {
		s.mu.Unlock()
		return
	}
	s.selectedPath = path
	s.selected = nil
	s.loadingDetails = true
	s.refreshing = false
	s.selectionGen++
	gen := s.selectionGen
	snapshot := *node
	s.mu.Unlock()

	detail, err := s.fetchDetail(ctx, snapshot)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.selectionGen {
		return // a newer selection owns the slot
	}
	s.loadingDetails = false
	if err != nil {
		s.notifyLocked(NoticeError, "load details of %s: %v", snapshot.ID, err)
		return
	}
	s.selected = detail
}

// RefreshSelected re-fetches the current selection's details, flagging the
// run as a refresh so the UI keeps the panel up instead of flashing a
// first-load skeleton.
func (s *Store) RefreshSelected(ctx context.Context) {
	s.mu.Lock()
	path := s.selectedPath
	node, ok := s.nodes[path]
	if path == "" || !ok {
		s.mu.Unlock()
		return
	}
	s.refreshing = true
	s.loadingDetails = false
	s.selectionGen++
	gen := s.selectionGen
	snapshot := *node
	s.mu.Unlock()

	detail, err := s.fetchDetail(ctx, snapshot)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.selectionGen {
		return
	}
	s.refreshing = false
	if err != nil {
		s.notifyLocked(NoticeError, "refresh %s: %v", snapshot.ID, err)
		return
	}
	s.selected = detail
}

// fetchDetail resolves an entity's detail payload. Collection entities ask
// the gateway; topic leaves fetch their latest value; other leaves are
// synthesized locally from the cached node.
func (s *Store) fetchDetail(ctx context.Context, node TreeNode) (*sovd.EntityDetail, error) {
	if collection, ok := node.Kind.Collection(); ok {
		api, up := s.apiQuiet()
		if !up {
			return nil, fmt.Errorf("not connected")
		}
		return api.EntityDetail(ctx, collection, node.ID)
	}
	if node.Kind == sovd.KindTopic {
		api, up := s.apiQuiet()
		if !up {
			return nil, fmt.Errorf("not connected")
		}
		topic, err := api.GetData(ctx, node.Owner, node.ID)
		if err != nil {
			return nil, err
		}
		return &sovd.EntityDetail{
			ID: node.ID, Name: node.Name, Type: sovd.KindTopic,
			Topics: []sovd.Topic{*topic},
		}, nil
	}
	detail := &sovd.EntityDetail{ID: node.ID, Name: node.Name, Type: node.Kind}
	if info, ok := node.Payload.(sovd.OperationInfo); ok {
		detail.Description = info.Description
		detail.Operations = []sovd.Operation{{Name: node.ID, Kind: info.OperationKind, Description: info.Description}}
	}
	return detail, nil
}

// Configurations returns a component's parameters, fetching them only when
// the cache has no live entry.
func (s *Store) Configurations(ctx context.Context, componentID string) ([]sovd.Parameter, bool) {
	if item := s.configs.Get(componentID); item != nil {
		return cloneParams(item.Value()), true
	}
	return s.reloadConfigurations(ctx, componentID)
}

func (s *Store) reloadConfigurations(ctx context.Context, componentID string) ([]sovd.Parameter, bool) {
	api, ok := s.apiOrNotice()
	if !ok {
		return nil, false
	}
	s.setFlag(&s.loadingConfigs, true)
	params, err := api.ListConfigurations(ctx, componentID)
	s.setFlag(&s.loadingConfigs, false)
	if err != nil {
		s.notify(NoticeError, "load configurations of %s: %v", componentID, err)
		return nil, false
	}
	s.configs.Set(componentID, params, ttlcache.DefaultTTL)
	return cloneParams(params), true
}

// SetParameter writes a parameter value and refreshes the cached list so
// callers see the new value without triggering their own re-fetch.
func (s *Store) SetParameter(ctx context.Context, componentID, name string, value any) bool {
	api, ok := s.apiOrNotice()
	if !ok {
		return false
	}
	if err := api.SetConfiguration(ctx, componentID, name, value); err != nil {
		s.notify(NoticeError, "set %s: %v", name, err)
		return false
	}
	s.configs.Delete(componentID)
	s.reloadConfigurations(ctx, componentID)
	s.notify(NoticeInfo, "%s updated", name)
	return true
}

// ResetParameter restores one parameter to its default.
func (s *Store) ResetParameter(ctx context.Context, componentID, name string) bool {
	api, ok := s.apiOrNotice()
	if !ok {
		return false
	}
	if err := api.ResetConfiguration(ctx, componentID, name); err != nil {
		s.notify(NoticeError, "reset %s: %v", name, err)
		return false
	}
	s.configs.Delete(componentID)
	s.reloadConfigurations(ctx, componentID)
	s.notify(NoticeInfo, "%s reset to default", name)
	return true
}

// ResetAllConfigurations restores every parameter of a component. A 207
// partial outcome is surfaced as a warning, not a failure.
func (s *Store) ResetAllConfigurations(ctx context.Context, componentID string) bool {
	api, ok := s.apiOrNotice()
	if !ok {
		return false
	}
	result, err := api.ResetAllConfigurations(ctx, componentID)
	if err != nil {
		s.notify(NoticeError, "reset configurations of %s: %v", componentID, err)
		return false
	}
	s.configs.Delete(componentID)
	s.reloadConfigurations(ctx, componentID)
	if result.Partial() {
		s.notify(NoticeWarn, "%d parameters reset, %d refused", result.Succeeded, len(result.Failures))
	} else {
		s.notify(NoticeInfo, "all parameters reset")
	}
	return true
}

// Faults fetches an entity's faults and replaces the cache entry. Overlap
// from poll ticks is resolved by a per-entity generation counter: a tick
// that is stale by the time it resolves never touches the cache.
func (s *Store) Faults(ctx context.Context, entityType sovd.EntityType, id string) bool {
	api, ok := s.apiOrNotice()
	if !ok {
		return false
	}
	key := faultKey(entityType, id)

	s.mu.Lock()
	s.faultGen[key]++
	gen := s.faultGen[key]
	s.loadingFaults = true
	s.mu.Unlock()

	faults, err := api.ListFaults(ctx, entityType, id)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.faultGen[key] {
		return false // a newer fetch owns the slot
	}
	s.loadingFaults = false
	if err != nil {
		s.notifyLocked(NoticeError, "load faults of %s: %v", id, err)
		return false
	}
	s.faults[key] = faults
	return true
}

// CachedFaults returns the cached fault list for an entity.
func (s *Store) CachedFaults(entityType sovd.EntityType, id string) []sovd.Fault {
	s.mu.Lock()
	defer s.mu.Unlock()
	faults := s.faults[faultKey(entityType, id)]
	if len(faults) == 0 {
		return nil
	}
	dup := make([]sovd.Fault, len(faults))
	copy(dup, faults)
	return dup
}

// ClearFault deletes one fault then refreshes the entity's fault cache.
func (s *Store) ClearFault(ctx context.Context, entityType sovd.EntityType, id, code string) bool {
	api, ok := s.apiOrNotice()
	if !ok {
		return false
	}
	if err := api.ClearFault(ctx, entityType, id, code); err != nil {
		s.notify(NoticeError, "clear fault %s: %v", code, err)
		return false
	}
	s.Faults(ctx, entityType, id)
	s.notify(NoticeInfo, "fault %s cleared", code)
	return true
}

// PublishTopic validates the typed JSON locally, then publishes it. A
// malformed value never reaches the gateway.
func (s *Store) PublishTopic(ctx context.Context, componentID, topic, rawJSON string) bool {
	var value any
	if err := json.Unmarshal([]byte(rawJSON), &value); err != nil {
		s.notify(NoticeError, "invalid JSON: %v", err)
		return false
	}
	api, ok := s.apiOrNotice()
	if !ok {
		return false
	}
	if err := api.PublishData(ctx, componentID, topic, value); err != nil {
		s.notify(NoticeError, "publish %s: %v", topic, err)
		return false
	}
	s.notify(NoticeInfo, "published to %s", topic)
	return true
}

// InvokeOperation calls a service or starts an action.
func (s *Store) InvokeOperation(ctx context.Context, componentID, name string, args map[string]any) (*sovd.InvokeResult, bool) {
	api, ok := s.apiOrNotice()
	if !ok {
		return nil, false
	}
	result, err := api.InvokeOperation(ctx, componentID, name, args)
	if err != nil {
		s.notify(NoticeError, "invoke %s: %v", name, err)
		return nil, false
	}
	if result.GoalID != "" {
		s.notify(NoticeInfo, "%s started (goal %s)", name, result.GoalID)
	} else {
		s.notify(NoticeInfo, "%s %s", name, result.Status)
	}
	return result, true
}

// OperationStatus polls one action goal.
func (s *Store) OperationStatus(ctx context.Context, componentID, name, goalID string) (*sovd.GoalStatus, bool) {
	api, ok := s.apiOrNotice()
	if !ok {
		return nil, false
	}
	status, err := api.OperationStatus(ctx, componentID, name, goalID)
	if err != nil {
		s.notify(NoticeError, "status of %s: %v", name, err)
		return nil, false
	}
	return status, true
}

// OperationResult retrieves an action goal's terminal result.
func (s *Store) OperationResult(ctx context.Context, componentID, name, goalID string) (*sovd.GoalResult, bool) {
	api, ok := s.apiOrNotice()
	if !ok {
		return nil, false
	}
	result, err := api.OperationResult(ctx, componentID, name, goalID)
	if err != nil {
		s.notify(NoticeError, "result of %s: %v", name, err)
		return nil, false
	}
	return result, true
}

// CancelOperation cancels a running action goal.
func (s *Store) CancelOperation(ctx context.Context, componentID, name, goalID string) bool {
	api, ok := s.apiOrNotice()
	if !ok {
		return false
	}
	if err := api.CancelOperation(ctx, componentID, name, goalID); err != nil {
		s.notify(NoticeError, "cancel %s: %v", name, err)
		return false
	}
	s.notify(NoticeInfo, "%s canceled", name)
	return true
}

// DownloadBulkData fetches a binary artifact.
func (s *Store) DownloadBulkData(ctx context.Context, entityType sovd.EntityType, id, category, dataID string) (*sovd.BulkData, bool) {
	api, ok := s.apiOrNotice()
	if !ok {
		return nil, false
	}
	bulk, err := api.DownloadBulkData(ctx, entityType, id, category, dataID)
	if err != nil {
		s.notify(NoticeError, "download %s/%s: %v", category, dataID, err)
		return nil, false
	}
	return bulk, true
}

// RefreshGateway rebuilds the gateway-side cache, then reloads the tree
// roots so the UI reflects the rebuilt hierarchy.
func (s *Store) RefreshGateway(ctx context.Context) bool {
	api, ok := s.apiOrNotice()
	if !ok {
		return false
	}
	s.setFlag(&s.rebuilding, true)
	result, err := api.RefreshGateway(ctx)
	s.setFlag(&s.rebuilding, false)
	if err != nil {
		s.notify(NoticeError, "gateway refresh: %v", err)
		return false
	}
	if err := s.LoadRoots(ctx); err != nil {
		return false
	}
	s.notify(NoticeInfo, "gateway refreshed: %d areas, %d components in %dms",
		result.Areas, result.Components, result.DurationMS)
	return true
}

// Notify surfaces a user-visible message through the store's notice slot.
// For UI-side outcomes (like a finished download) that should share the
// same toast channel as store actions.
func (s *Store) Notify(level NoticeLevel, format string, args ...any) {
	s.notify(level, format, args...)
}

func (s *Store) apiQuiet() (sovd.API, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.api == nil {
		return nil, false
	}
	return s.api, true
}

func (s *Store) apiOrNotice() (sovd.API, bool) {
	api, ok := s.apiQuiet()
	if !ok {
		s.notify(NoticeWarn, "not connected to a gateway")
	}
	return api, ok
}

func (s *Store) setFlag(flag *bool, value bool) {
	s.mu.Lock()
	*flag = value
	s.mu.Unlock()
}

func (s *Store) notify(level NoticeLevel, format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifyLocked(level, format, args...)
}

func (s *Store) notifyLocked(level NoticeLevel, format string, args ...any) {
	s.noticeSeq++
	msg := fmt.Sprintf(format, args...)
	s.lastNotice = &Notice{Level: level, Message: msg, Time: time.Now(), Seq: s.noticeSeq}
	if level == NoticeError {
		s.logger.Error(msg)
	} else {
		s.logger.Debug(msg)
	}
}

func faultKey(entityType sovd.EntityType, id string) string {
	return string(entityType) + "/" + id
}

func cloneParams(params []sovd.Parameter) []sovd.Parameter {
	if len(params) == 0 {
		return nil
	}
	dup := make([]sovd.Parameter, len(params))
	copy(dup, params)
	return dup
}
