package state

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/selfpatch/sovdtui/internal/sovd"
)

// fakeAPI scripts gateway behavior per method. Unset hooks answer empty.
type fakeAPI struct {
	healthFn          func(ctx context.Context) error
	listAreasFn       func(ctx context.Context) ([]sovd.EntitySummary, error)
	listComponentsFn  func(ctx context.Context, areaID string) ([]sovd.EntitySummary, error)
	entityDetailFn    func(ctx context.Context, entityType sovd.EntityType, id string) (*sovd.EntityDetail, error)
	listDataFn        func(ctx context.Context, componentID string) ([]sovd.Topic, error)
	publishDataFn     func(ctx context.Context, componentID, topic string, value any) error
	listConfigsFn     func(ctx context.Context, componentID string) ([]sovd.Parameter, error)
	listOperationsFn  func(ctx context.Context, componentID string) ([]sovd.Operation, error)
	listFaultsFn      func(ctx context.Context, entityType sovd.EntityType, id string) ([]sovd.Fault, error)
	clearFaultFn      func(ctx context.Context, entityType sovd.EntityType, id, code string) error
	refreshGatewayFn  func(ctx context.Context) (*sovd.RefreshResult, error)
	invokeOperationFn func(ctx context.Context, componentID, name string, args map[string]any) (*sovd.InvokeResult, error)

	listComponentsCalls atomic.Int64
	listConfigsCalls    atomic.Int64
	publishCalls        atomic.Int64
}

func (f *fakeAPI) Health(ctx context.Context) error {
	if f.healthFn != nil {
		return f.healthFn(ctx)
	}
	return nil
}

func (f *fakeAPI) ListAreas(ctx context.Context) ([]sovd.EntitySummary, error) {
	if f.listAreasFn != nil {
		return f.listAreasFn(ctx)
	}
	return nil, nil
}

func (f *fakeAPI) ListComponents(ctx context.Context, areaID string) ([]sovd.EntitySummary, error) {
	f.listComponentsCalls.Add(1)
	if f.listComponentsFn != nil {
		return f.listComponentsFn(ctx, areaID)
	}
	return nil, nil
}

func (f *fakeAPI) EntityDetail(ctx context.Context, entityType sovd.EntityType, id string) (*sovd.EntityDetail, error) {
	if f.entityDetailFn != nil {
		return f.entityDetailFn(ctx, entityType, id)
	}
	return &sovd.EntityDetail{ID: id}, nil
}

func (f *fakeAPI) ListData(ctx context.Context, componentID string) ([]sovd.Topic, error) {
	if f.listDataFn != nil {
		return f.listDataFn(ctx, componentID)
	}
	return nil, nil
}

func (f *fakeAPI) GetData(ctx context.Context, componentID, topic string) (*sovd.Topic, error) {
	return &sovd.Topic{Name: topic}, nil
}

func (f *fakeAPI) PublishData(ctx context.Context, componentID, topic string, value any) error {
	f.publishCalls.Add(1)
	if f.publishDataFn != nil {
		return f.publishDataFn(ctx, componentID, topic, value)
	}
	return nil
}

func (f *fakeAPI) ListConfigurations(ctx context.Context, componentID string) ([]sovd.Parameter, error) {
	f.listConfigsCalls.Add(1)
	if f.listConfigsFn != nil {
		return f.listConfigsFn(ctx, componentID)
	}
	return nil, nil
}

func (f *fakeAPI) SetConfiguration(ctx context.Context, componentID, name string, value any) error {
	return nil
}

func (f *fakeAPI) ResetConfiguration(ctx context.Context, componentID, name string) error {
	return nil
}

func (f *fakeAPI) ResetAllConfigurations(ctx context.Context, componentID string) (sovd.PartialResult, error) {
	return sovd.PartialResult{}, nil
}

func (f *fakeAPI) ListOperations(ctx context.Context, componentID string) ([]sovd.Operation, error) {
	if f.listOperationsFn != nil {
		return f.listOperationsFn(ctx, componentID)
	}
	return nil, nil
}

func (f *fakeAPI) InvokeOperation(ctx context.Context, componentID, name string, args map[string]any) (*sovd.InvokeResult, error) {
	if f.invokeOperationFn != nil {
		return f.invokeOperationFn(ctx, componentID, name, args)
	}
	return &sovd.InvokeResult{Status: "succeeded"}, nil
}

func (f *fakeAPI) OperationStatus(ctx context.Context, componentID, name, goalID string) (*sovd.GoalStatus, error) {
	return &sovd.GoalStatus{GoalID: goalID, Status: "executing"}, nil
}

func (f *fakeAPI) AllOperationStatus(ctx context.Context, componentID, name string) ([]sovd.GoalStatus, error) {
	return nil, nil
}

func (f *fakeAPI) OperationResult(ctx context.Context, componentID, name, goalID string) (*sovd.GoalResult, error) {
	return &sovd.GoalResult{GoalID: goalID, Status: "succeeded"}, nil
}

func (f *fakeAPI) CancelOperation(ctx context.Context, componentID, name, goalID string) error {
	return nil
}

func (f *fakeAPI) ListFaults(ctx context.Context, entityType sovd.EntityType, id string) ([]sovd.Fault, error) {
	if f.listFaultsFn != nil {
		return f.listFaultsFn(ctx, entityType, id)
	}
	return nil, nil
}

func (f *fakeAPI) ClearFault(ctx context.Context, entityType sovd.EntityType, id, code string) error {
	if f.clearFaultFn != nil {
		return f.clearFaultFn(ctx, entityType, id, code)
	}
	return nil
}

func (f *fakeAPI) DownloadBulkData(ctx context.Context, entityType sovd.EntityType, id, category, dataID string) (*sovd.BulkData, error) {
	return &sovd.BulkData{Data: []byte("x")}, nil
}

func (f *fakeAPI) RefreshGateway(ctx context.Context) (*sovd.RefreshResult, error) {
	if f.refreshGatewayFn != nil {
		return f.refreshGatewayFn(ctx)
	}
	return &sovd.RefreshResult{}, nil
}

var _ sovd.API = (*fakeAPI)(nil)

func areaSummaries() []sovd.EntitySummary {
	return []sovd.EntitySummary{
		{ID: "powertrain", Name: "Powertrain", Type: sovd.KindArea, HasChildren: true},
		{ID: "body", Name: "Body", Type: sovd.KindArea, HasChildren: true},
	}
}

// newConnectedStore builds a store wired to the fake and connects it.
func newConnectedStore(t *testing.T, api *fakeAPI) *Store {
	t.Helper()
	if api.listAreasFn == nil {
		api.listAreasFn = func(ctx context.Context) ([]sovd.EntitySummary, error) {
			return areaSummaries(), nil
		}
	}
	store := New(Options{
		Dial: func(serverURL string) (sovd.API, error) { return api, nil },
	})
	t.Cleanup(store.Close)
	if !store.Connect(context.Background(), "localhost:8080") {
		t.Fatal("Connect failed")
	}
	return store
}

func TestConnectLoadsRoots(t *testing.T) {
	t.Parallel()

	var remembered string
	api := &fakeAPI{}
	api.listAreasFn = func(ctx context.Context) ([]sovd.EntitySummary, error) {
		return areaSummaries(), nil
	}
	store := New(Options{
		Dial:        func(serverURL string) (sovd.API, error) { return api, nil },
		OnConnected: func(serverURL string) { remembered = serverURL },
	})
	t.Cleanup(store.Close)

	if !store.Connect(context.Background(), "localhost:8080") {
		t.Fatal("Connect failed")
	}
	snap := store.Snapshot()
	if !snap.Conn.Connected || snap.Conn.Connecting {
		t.Errorf("conn = %+v", snap.Conn)
	}
	if remembered != "localhost:8080" {
		t.Errorf("OnConnected got %q", remembered)
	}
	if len(snap.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(snap.Rows))
	}
	if snap.Rows[0].Path != "/powertrain" || snap.Rows[1].Path != "/body" {
		t.Errorf("root paths = %q, %q", snap.Rows[0].Path, snap.Rows[1].Path)
	}
}

func TestConnectFailureRecordsError(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{
		healthFn: func(ctx context.Context) error { return fmt.Errorf("connection refused") },
	}
	store := New(Options{
		Dial: func(serverURL string) (sovd.API, error) { return api, nil },
	})
	t.Cleanup(store.Close)

	if store.Connect(context.Background(), "localhost:9") {
		t.Fatal("Connect succeeded against failing health check")
	}
	snap := store.Snapshot()
	if snap.Conn.Connected || snap.Conn.Connecting {
		t.Errorf("conn = %+v", snap.Conn)
	}
	if snap.Conn.Error == "" {
		t.Error("connection error not recorded")
	}
	if snap.Notice == nil || snap.Notice.Level != NoticeError {
		t.Errorf("notice = %+v", snap.Notice)
	}
}

func TestConnectRejectsConcurrentAttempt(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	release := make(chan struct{})
	api := &fakeAPI{
		healthFn: func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		},
	}
	api.listAreasFn = func(ctx context.Context) ([]sovd.EntitySummary, error) { return nil, nil }
	store := New(Options{
		Dial: func(serverURL string) (sovd.API, error) { return api, nil },
	})
	t.Cleanup(store.Close)

	done := make(chan bool)
	go func() { done <- store.Connect(context.Background(), "localhost:8080") }()
	<-started

	// The pending attempt owns the connection slot.
	if store.Connect(context.Background(), "localhost:8081") {
		t.Error("second Connect succeeded while first was pending")
	}
	close(release)
	if !<-done {
		t.Error("first Connect failed")
	}
}

func TestLoadChildrenDeduplicatesInflight(t *testing.T) {
	t.Parallel()

	entered := make(chan struct{})
	release := make(chan struct{})
	api := &fakeAPI{
		listComponentsFn: func(ctx context.Context, areaID string) ([]sovd.EntitySummary, error) {
			close(entered)
			<-release
			return []sovd.EntitySummary{
				{ID: "drive_controller", Name: "Drive Controller", Type: sovd.KindComponent, HasChildren: true},
			}, nil
		},
	}
	store := newConnectedStore(t, api)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = store.LoadChildren(context.Background(), "/powertrain")
	}()
	<-entered

	// Second call sees the in-flight request and returns without fetching.
	if err := store.LoadChildren(context.Background(), "/powertrain"); err != nil {
		t.Fatalf("duplicate LoadChildren: %v", err)
	}
	close(release)
	wg.Wait()

	if calls := api.listComponentsCalls.Load(); calls != 1 {
		t.Errorf("ListComponents called %d times, want 1", calls)
	}

	// Loaded node short-circuits entirely.
	if err := store.LoadChildren(context.Background(), "/powertrain"); err != nil {
		t.Fatalf("LoadChildren on loaded node: %v", err)
	}
	if calls := api.listComponentsCalls.Load(); calls != 1 {
		t.Errorf("ListComponents called %d times after reload, want 1", calls)
	}

	node, ok := store.Node("/powertrain/drive_controller")
	if !ok {
		t.Fatal("child node missing")
	}
	if node.Owner != "" && node.Kind != sovd.KindComponent {
		t.Errorf("child node = %+v", node)
	}
}

func TestLoadChildrenFailureStaysRetryable(t *testing.T) {
	t.Parallel()

	fail := true
	api := &fakeAPI{
		listComponentsFn: func(ctx context.Context, areaID string) ([]sovd.EntitySummary, error) {
			if fail {
				return nil, fmt.Errorf("gateway unavailable")
			}
			return []sovd.EntitySummary{{ID: "c1", Name: "C1", Type: sovd.KindComponent}}, nil
		},
	}
	store := newConnectedStore(t, api)

	if err := store.LoadChildren(context.Background(), "/powertrain"); err == nil {
		t.Fatal("LoadChildren succeeded, want error")
	}
	node, _ := store.Node("/powertrain")
	if node.Loaded {
		t.Error("failed node marked loaded")
	}

	fail = false
	if err := store.LoadChildren(context.Background(), "/powertrain"); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	node, _ = store.Node("/powertrain")
	if !node.Loaded || len(node.Children) != 1 {
		t.Errorf("node after retry = %+v", node)
	}
	if calls := api.listComponentsCalls.Load(); calls != 2 {
		t.Errorf("ListComponents called %d times, want 2", calls)
	}
}

func TestComponentChildrenIncludeFaultGroup(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{
		listComponentsFn: func(ctx context.Context, areaID string) ([]sovd.EntitySummary, error) {
			return []sovd.EntitySummary{
				{ID: "drive_controller", Name: "Drive Controller", Type: sovd.KindComponent, HasChildren: true},
			}, nil
		},
		listDataFn: func(ctx context.Context, componentID string) ([]sovd.Topic, error) {
			return []sovd.Topic{
				{Name: "odom", MessageType: "nav_msgs/Odometry"},
				{Name: "pose", Latest: map[string]any{"x": 1.0, "y": 2.0, "z": 0.0}},
			}, nil
		},
		listOperationsFn: func(ctx context.Context, componentID string) ([]sovd.Operation, error) {
			return []sovd.Operation{{Name: "self_test", Kind: "service"}}, nil
		},
	}
	store := newConnectedStore(t, api)

	ctx := context.Background()
	if err := store.LoadChildren(ctx, "/powertrain"); err != nil {
		t.Fatalf("load area: %v", err)
	}
	if err := store.LoadChildren(ctx, "/powertrain/drive_controller"); err != nil {
		t.Fatalf("load component: %v", err)
	}

	node, _ := store.Node("/powertrain/drive_controller")
	if len(node.Children) != 4 { // 2 topics + 1 operation + faults
		t.Fatalf("children = %v", node.Children)
	}

	// Missing message type falls back to the key-signature guess.
	pose, ok := store.Node("/powertrain/drive_controller/pose")
	if !ok {
		t.Fatal("pose node missing")
	}
	info, ok := pose.Payload.(sovd.TopicInfo)
	if !ok || info.MessageType != "geometry_msgs/Vector3" {
		t.Errorf("pose payload = %+v", pose.Payload)
	}

	faults, ok := store.Node("/powertrain/drive_controller/faults")
	if !ok || faults.Kind != sovd.KindFaultGroup || faults.Owner != "drive_controller" {
		t.Errorf("fault group node = %+v", faults)
	}
}

func TestSelectionLastWriteWins(t *testing.T) {
	t.Parallel()

	slowEntered := make(chan struct{})
	slowRelease := make(chan struct{})
	api := &fakeAPI{
		entityDetailFn: func(ctx context.Context, entityType sovd.EntityType, id string) (*sovd.EntityDetail, error) {
			if id == "powertrain" {
				close(slowEntered)
				<-slowRelease
			}
			return &sovd.EntityDetail{ID: id, Name: id}, nil
		},
	}
	store := newConnectedStore(t, api)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		store.SelectEntity(context.Background(), "/powertrain")
	}()
	<-slowEntered

	// The second selection supersedes the still-pending first one.
	store.SelectEntity(context.Background(), "/body")
	close(slowRelease)
	wg.Wait()

	snap := store.Snapshot()
	if snap.SelectedPath != "/body" {
		t.Errorf("SelectedPath = %q", snap.SelectedPath)
	}
	if snap.Selected == nil || snap.Selected.ID != "body" {
		t.Errorf("Selected = %+v; stale response overwrote the newer selection", snap.Selected)
	}
	if snap.LoadingDetails {
		t.Error("LoadingDetails still set")
	}
}

func TestStaleSelectionErrorIsSilent(t *testing.T) {
	t.Parallel()

	slowEntered := make(chan struct{})
	slowRelease := make(chan struct{})
	api := &fakeAPI{
		entityDetailFn: func(ctx context.Context, entityType sovd.EntityType, id string) (*sovd.EntityDetail, error) {
			if id == "powertrain" {
				close(slowEntered)
				<-slowRelease
				return nil, fmt.Errorf("timed out")
			}
			return &sovd.EntityDetail{ID: id, Name: id}, nil
		},
	}
	store := newConnectedStore(t, api)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		store.SelectEntity(context.Background(), "/powertrain")
	}()
	<-slowEntered
	store.SelectEntity(context.Background(), "/body")
	before := store.Snapshot().Notice

	close(slowRelease)
	wg.Wait()

	// The stale failure must not surface a notice or clear the selection.
	snap := store.Snapshot()
	if snap.Selected == nil || snap.Selected.ID != "body" {
		t.Errorf("Selected = %+v", snap.Selected)
	}
	var beforeSeq, afterSeq uint64
	if before != nil {
		beforeSeq = before.Seq
	}
	if snap.Notice != nil {
		afterSeq = snap.Notice.Seq
	}
	if afterSeq != beforeSeq {
		t.Errorf("stale failure raised notice %+v", snap.Notice)
	}
}

func TestRefreshSupersedingSelectionClearsLoadingFlag(t *testing.T) {
	t.Parallel()

	firstEntered := make(chan struct{})
	firstRelease := make(chan struct{})
	var calls atomic.Int64
	api := &fakeAPI{
		entityDetailFn: func(ctx context.Context, entityType sovd.EntityType, id string) (*sovd.EntityDetail, error) {
			if calls.Add(1) == 1 {
				close(firstEntered)
				<-firstRelease
			}
			return &sovd.EntityDetail{ID: id, Name: id}, nil
		},
	}
	store := newConnectedStore(t, api)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		store.SelectEntity(context.Background(), "/powertrain")
	}()
	<-firstEntered

	// The refresh takes over the selection slot while the initial detail
	// fetch is still pending.
	store.RefreshSelected(context.Background())
	close(firstRelease)
	wg.Wait()

	snap := store.Snapshot()
	if snap.LoadingDetails {
		t.Error("LoadingDetails stuck true after all fetches resolved")
	}
	if snap.Refreshing {
		t.Error("Refreshing stuck true after all fetches resolved")
	}
	if snap.Selected == nil || snap.Selected.ID != "powertrain" {
		t.Errorf("Selected = %+v", snap.Selected)
	}
}

func TestSelectionSupersedingRefreshClearsRefreshingFlag(t *testing.T) {
	t.Parallel()

	refreshEntered := make(chan struct{})
	refreshRelease := make(chan struct{})
	var calls atomic.Int64
	api := &fakeAPI{
		entityDetailFn: func(ctx context.Context, entityType sovd.EntityType, id string) (*sovd.EntityDetail, error) {
			if calls.Add(1) == 2 { // the RefreshSelected fetch
				close(refreshEntered)
				<-refreshRelease
			}
			return &sovd.EntityDetail{ID: id, Name: id}, nil
		},
	}
	store := newConnectedStore(t, api)

	store.SelectEntity(context.Background(), "/powertrain")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		store.RefreshSelected(context.Background())
	}()
	<-refreshEntered

	store.SelectEntity(context.Background(), "/body")
	close(refreshRelease)
	wg.Wait()

	snap := store.Snapshot()
	if snap.Refreshing {
		t.Error("Refreshing stuck true after all fetches resolved")
	}
	if snap.LoadingDetails {
		t.Error("LoadingDetails stuck true after all fetches resolved")
	}
	if snap.Selected == nil || snap.Selected.ID != "body" {
		t.Errorf("Selected = %+v", snap.Selected)
	}
}

func TestGatewayRefreshKeepsDetailRefreshFlag(t *testing.T) {
	t.Parallel()

	detailEntered := make(chan struct{})
	detailRelease := make(chan struct{})
	var calls atomic.Int64
	api := &fakeAPI{
		entityDetailFn: func(ctx context.Context, entityType sovd.EntityType, id string) (*sovd.EntityDetail, error) {
			if calls.Add(1) == 2 { // the RefreshSelected fetch
				close(detailEntered)
				<-detailRelease
			}
			return &sovd.EntityDetail{ID: id, Name: id}, nil
		},
	}
	store := newConnectedStore(t, api)

	store.SelectEntity(context.Background(), "/powertrain")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		store.RefreshSelected(context.Background())
	}()
	<-detailEntered

	// A gateway rebuild completing mid-refresh owns its own flag and must
	// not clear the detail refresh spinner.
	if !store.RefreshGateway(context.Background()) {
		t.Fatal("RefreshGateway failed")
	}
	snap := store.Snapshot()
	if !snap.Refreshing {
		t.Error("gateway rebuild cleared the detail Refreshing flag")
	}
	if snap.Rebuilding {
		t.Error("Rebuilding still set after RefreshGateway returned")
	}

	close(detailRelease)
	wg.Wait()
	if store.Snapshot().Refreshing {
		t.Error("Refreshing stuck true after the detail fetch resolved")
	}
}

func TestFaultsStaleTickIsInert(t *testing.T) {
	t.Parallel()

	firstEntered := make(chan struct{})
	firstRelease := make(chan struct{})
	var calls atomic.Int64
	api := &fakeAPI{
		listFaultsFn: func(ctx context.Context, entityType sovd.EntityType, id string) ([]sovd.Fault, error) {
			if calls.Add(1) == 1 {
				close(firstEntered)
				<-firstRelease
				return []sovd.Fault{{Code: "STALE", Status: "active"}}, nil
			}
			return []sovd.Fault{{Code: "FRESH", Status: "active"}}, nil
		},
	}
	store := newConnectedStore(t, api)

	var wg sync.WaitGroup
	wg.Add(1)
	var firstOK bool
	go func() {
		defer wg.Done()
		firstOK = store.Faults(context.Background(), sovd.EntityComponents, "drive_controller")
	}()
	<-firstEntered

	if !store.Faults(context.Background(), sovd.EntityComponents, "drive_controller") {
		t.Fatal("second Faults failed")
	}
	close(firstRelease)
	wg.Wait()

	if firstOK {
		t.Error("stale tick reported success")
	}
	faults := store.CachedFaults(sovd.EntityComponents, "drive_controller")
	if len(faults) != 1 || faults[0].Code != "FRESH" {
		t.Errorf("cached faults = %+v; stale tick overwrote the cache", faults)
	}
}

func TestClearFaultRefreshesCache(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	faults := []sovd.Fault{
		{Code: "P0562", Status: "active"},
		{Code: "C1000", Status: "pending"},
	}
	api := &fakeAPI{
		listFaultsFn: func(ctx context.Context, entityType sovd.EntityType, id string) ([]sovd.Fault, error) {
			mu.Lock()
			defer mu.Unlock()
			dup := make([]sovd.Fault, len(faults))
			copy(dup, faults)
			return dup, nil
		},
		clearFaultFn: func(ctx context.Context, entityType sovd.EntityType, id, code string) error {
			mu.Lock()
			defer mu.Unlock()
			for i, f := range faults {
				if f.Code == code {
					faults = append(faults[:i:i], faults[i+1:]...)
					return nil
				}
			}
			return fmt.Errorf("fault %s not found", code)
		},
	}
	store := newConnectedStore(t, api)

	ctx := context.Background()
	store.Faults(ctx, sovd.EntityComponents, "drive_controller")
	if got := store.CachedFaults(sovd.EntityComponents, "drive_controller"); len(got) != 2 {
		t.Fatalf("cached = %d faults", len(got))
	}

	if !store.ClearFault(ctx, sovd.EntityComponents, "drive_controller", "P0562") {
		t.Fatal("ClearFault failed")
	}
	got := store.CachedFaults(sovd.EntityComponents, "drive_controller")
	if len(got) != 1 || got[0].Code != "C1000" {
		t.Errorf("cached after clear = %+v", got)
	}
}

func TestConfigurationsServedFromCache(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{
		listConfigsFn: func(ctx context.Context, componentID string) ([]sovd.Parameter, error) {
			return []sovd.Parameter{{Name: "max_speed", Value: 2.5}}, nil
		},
	}
	store := newConnectedStore(t, api)

	ctx := context.Background()
	params, ok := store.Configurations(ctx, "drive_controller")
	if !ok || len(params) != 1 {
		t.Fatalf("Configurations = %v, %v", params, ok)
	}
	if _, ok := store.Configurations(ctx, "drive_controller"); !ok {
		t.Fatal("cached Configurations failed")
	}
	if calls := api.listConfigsCalls.Load(); calls != 1 {
		t.Errorf("ListConfigurations called %d times, want 1", calls)
	}

	// A write invalidates and refetches.
	if !store.SetParameter(ctx, "drive_controller", "max_speed", 3.0) {
		t.Fatal("SetParameter failed")
	}
	if calls := api.listConfigsCalls.Load(); calls != 2 {
		t.Errorf("ListConfigurations called %d times after write, want 2", calls)
	}
}

func TestConfigurationsCacheExpires(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{
		listConfigsFn: func(ctx context.Context, componentID string) ([]sovd.Parameter, error) {
			return []sovd.Parameter{{Name: "max_speed", Value: 2.5}}, nil
		},
	}
	api.listAreasFn = func(ctx context.Context) ([]sovd.EntitySummary, error) {
		return areaSummaries(), nil
	}
	store := New(Options{
		Dial:      func(serverURL string) (sovd.API, error) { return api, nil },
		ConfigTTL: 20 * time.Millisecond,
	})
	t.Cleanup(store.Close)
	if !store.Connect(context.Background(), "localhost:8080") {
		t.Fatal("Connect failed")
	}

	ctx := context.Background()
	store.Configurations(ctx, "drive_controller")
	time.Sleep(60 * time.Millisecond)
	store.Configurations(ctx, "drive_controller")
	if calls := api.listConfigsCalls.Load(); calls != 2 {
		t.Errorf("ListConfigurations called %d times, want 2 after TTL expiry", calls)
	}
}

func TestPublishTopicValidatesLocally(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{}
	store := newConnectedStore(t, api)

	if store.PublishTopic(context.Background(), "drive_controller", "cmd_vel", `{"linear": `) {
		t.Error("malformed JSON accepted")
	}
	if calls := api.publishCalls.Load(); calls != 0 {
		t.Errorf("malformed publish reached the gateway (%d calls)", calls)
	}
	snap := store.Snapshot()
	if snap.Notice == nil || snap.Notice.Level != NoticeError {
		t.Errorf("notice = %+v", snap.Notice)
	}

	if !store.PublishTopic(context.Background(), "drive_controller", "cmd_vel", `{"linear": {"x": 0.5}}`) {
		t.Error("valid publish failed")
	}
	if calls := api.publishCalls.Load(); calls != 1 {
		t.Errorf("publish calls = %d, want 1", calls)
	}
}

func TestDisconnectClearsState(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{
		listFaultsFn: func(ctx context.Context, entityType sovd.EntityType, id string) ([]sovd.Fault, error) {
			return []sovd.Fault{{Code: "P0562", Status: "active"}}, nil
		},
	}
	store := newConnectedStore(t, api)
	ctx := context.Background()
	store.SelectEntity(ctx, "/powertrain")
	store.Faults(ctx, sovd.EntityComponents, "drive_controller")

	store.Disconnect()

	snap := store.Snapshot()
	if snap.Conn.Connected {
		t.Error("still connected")
	}
	if len(snap.Rows) != 0 || snap.SelectedPath != "" || snap.Selected != nil {
		t.Errorf("state not cleared: %+v", snap)
	}
	if faults := store.CachedFaults(sovd.EntityComponents, "drive_controller"); faults != nil {
		t.Errorf("fault cache survived disconnect: %+v", faults)
	}
	// Actions against a disconnected store fail softly with a notice.
	if store.Faults(ctx, sovd.EntityComponents, "drive_controller") {
		t.Error("Faults succeeded while disconnected")
	}
}

func TestReloadChildrenDropsSubtree(t *testing.T) {
	t.Parallel()

	generation := 0
	api := &fakeAPI{
		listComponentsFn: func(ctx context.Context, areaID string) ([]sovd.EntitySummary, error) {
			generation++
			return []sovd.EntitySummary{
				{ID: fmt.Sprintf("c%d", generation), Name: "C", Type: sovd.KindComponent},
			}, nil
		},
	}
	store := newConnectedStore(t, api)

	ctx := context.Background()
	if err := store.LoadChildren(ctx, "/powertrain"); err != nil {
		t.Fatal(err)
	}
	if _, ok := store.Node("/powertrain/c1"); !ok {
		t.Fatal("c1 missing")
	}

	if err := store.ReloadChildren(ctx, "/powertrain"); err != nil {
		t.Fatal(err)
	}
	if _, ok := store.Node("/powertrain/c1"); ok {
		t.Error("stale child survived reload")
	}
	if _, ok := store.Node("/powertrain/c2"); !ok {
		t.Error("fresh child missing after reload")
	}
}

func TestToggleExpandedFlattensTree(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{
		listComponentsFn: func(ctx context.Context, areaID string) ([]sovd.EntitySummary, error) {
			return []sovd.EntitySummary{
				{ID: "drive_controller", Name: "Drive Controller", Type: sovd.KindComponent, HasChildren: true},
			}, nil
		},
	}
	store := newConnectedStore(t, api)

	ctx := context.Background()
	if !store.ToggleExpanded("/powertrain") {
		t.Fatal("expand returned false")
	}
	if err := store.LoadChildren(ctx, "/powertrain"); err != nil {
		t.Fatal(err)
	}

	snap := store.Snapshot()
	if len(snap.Rows) != 3 { // two roots + one expanded child
		t.Fatalf("rows = %+v", snap.Rows)
	}
	if snap.Rows[1].Path != "/powertrain/drive_controller" || snap.Rows[1].Depth != 1 {
		t.Errorf("child row = %+v", snap.Rows[1])
	}

	if store.ToggleExpanded("/powertrain") {
		t.Fatal("collapse returned true")
	}
	if rows := store.Snapshot().Rows; len(rows) != 2 {
		t.Errorf("rows after collapse = %+v", rows)
	}
}
