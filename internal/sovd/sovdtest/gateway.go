// Package sovdtest provides an in-process fake SOVD gateway backed by
// in-memory fixtures. Tests point a real Client at Gateway.Handler() via
// httptest and exercise the full REST surface without a vehicle.
package sovdtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/selfpatch/sovdtui/internal/sovd"
)

// Gateway is a fake SOVD gateway with mutable in-memory state.
type Gateway struct {
	mu sync.Mutex

	areas      []sovd.EntitySummary
	components map[string][]sovd.EntitySummary // areaID -> children
	details    map[string]sovd.EntityDetail    // entityID -> detail
	topics     map[string][]sovd.Topic         // componentID -> topics
	params     map[string][]sovd.Parameter     // componentID -> parameters
	defaults   map[string]map[string]any       // componentID -> name -> default
	faults     map[string][]sovd.Fault         // entityType/entityID -> faults
	goals      map[string]*goal                // goalID -> action state
	stuck      map[string]bool                 // componentID/param -> refuse reset

	refreshCount int
}

type goal struct {
	operation string
	status    string
	result    map[string]any
}

// New builds a gateway seeded with a small vehicle fixture: two areas,
// a drive component with topics/configurations/operations/faults, and a
// diagnostics app.
func New() *Gateway {
	g := &Gateway{
		components: make(map[string][]sovd.EntitySummary),
		details:    make(map[string]sovd.EntityDetail),
		topics:     make(map[string][]sovd.Topic),
		params:     make(map[string][]sovd.Parameter),
		defaults:   make(map[string]map[string]any),
		faults:     make(map[string][]sovd.Fault),
		goals:      make(map[string]*goal),
		stuck:      make(map[string]bool),
	}
	g.seed()
	return g
}

func (g *Gateway) seed() {
	g.areas = []sovd.EntitySummary{
		{ID: "powertrain", Name: "Powertrain", Type: sovd.KindArea, HasChildren: true,
			Data: map[string]any{"description": "Drive and motion", "component_count": 2}},
		{ID: "body", Name: "Body", Type: sovd.KindArea, HasChildren: true,
			Data: map[string]any{"description": "Body electronics", "component_count": 1}},
	}
	g.components["powertrain"] = []sovd.EntitySummary{
		{ID: "drive_controller", Name: "Drive Controller", Type: sovd.KindComponent, HasChildren: true,
			Data: map[string]any{"status": "running", "version": "2.4.1"}},
		{ID: "diag_recorder", Name: "Diagnostic Recorder", Type: sovd.KindApp, HasChildren: true,
			Data: map[string]any{"status": "running"}},
	}
	g.components["body"] = []sovd.EntitySummary{
		{ID: "door_module", Name: "Door Module", Type: sovd.KindComponent, HasChildren: false,
			Data: map[string]any{"status": "idle"}},
	}
	g.topics["drive_controller"] = []sovd.Topic{
		{Name: "cmd_vel", MessageType: "geometry_msgs/Twist", Writable: true,
			Latest: map[string]any{"linear": map[string]any{"x": 0.0}, "angular": map[string]any{"z": 0.0}}},
		{Name: "odom", MessageType: "nav_msgs/Odometry"},
	}
	g.params["drive_controller"] = []sovd.Parameter{
		{Name: "max_speed", Value: 2.5, Default: 2.5, Type: "double", Unit: "m/s"},
		{Name: "use_brakes", Value: true, Default: true, Type: "bool"},
		{Name: "wheel_base", Value: 0.45, Default: 0.45, Type: "double", Unit: "m", ReadOnly: true},
	}
	g.defaults["drive_controller"] = map[string]any{"max_speed": 2.5, "use_brakes": true, "wheel_base": 0.45}
	g.details["drive_controller"] = sovd.EntityDetail{
		ID: "drive_controller", Name: "Drive Controller", Type: sovd.KindComponent,
		Description: "Differential drive base controller", Status: "running", Version: "2.4.1",
		Topics: g.topics["drive_controller"],
		Operations: []sovd.Operation{
			{Name: "self_test", Kind: "service", Description: "Run actuator self test"},
			{Name: "calibrate", Kind: "action", Description: "Calibrate wheel odometry"},
		},
	}
	g.details["diag_recorder"] = sovd.EntityDetail{
		ID: "diag_recorder", Name: "Diagnostic Recorder", Type: sovd.KindApp, Status: "running",
	}
	g.details["door_module"] = sovd.EntityDetail{
		ID: "door_module", Name: "Door Module", Type: sovd.KindComponent, Status: "idle",
	}
	g.faults["components/drive_controller"] = []sovd.Fault{
		{Code: "P0562", Name: "System voltage low", Severity: "warning", Status: "active",
			Timestamp: time.Now().UTC(), Count: 3},
		{Code: "C1000", Name: "Wheel slip detected", Severity: "info", Status: "pending",
			Timestamp: time.Now().UTC(), Count: 1},
	}
}

// MarkResetStuck makes reset attempts for the named parameter fail, so a
// collection reset answers 207.
func (g *Gateway) MarkResetStuck(componentID, name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stuck[componentID+"/"+name] = true
}

// FaultCount reports how many faults an entity currently has.
func (g *Gateway) FaultCount(entityType, id string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.faults[entityType+"/"+id])
}

// RefreshCount reports how many POST /refresh calls were served.
func (g *Gateway) RefreshCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.refreshCount
}

// Handler returns the gateway's HTTP handler rooted at the given base path.
func (g *Gateway) Handler(basePath string) http.Handler {
	r := mux.NewRouter()
	api := r.PathPrefix(basePath).Subrouter()

	api.HandleFunc("/health", g.health).Methods("GET")
	api.HandleFunc("/areas", g.listAreas).Methods("GET")
	api.HandleFunc("/areas/{id}/components", g.listComponents).Methods("GET")
	api.HandleFunc("/components/{id}/data", g.listData).Methods("GET")
	api.HandleFunc("/components/{id}/data/{topic}", g.getData).Methods("GET")
	api.HandleFunc("/components/{id}/data/{topic}", g.publishData).Methods("PUT")
	api.HandleFunc("/components/{id}/configurations", g.listConfigurations).Methods("GET")
	api.HandleFunc("/components/{id}/configurations", g.resetAllConfigurations).Methods("DELETE")
	api.HandleFunc("/components/{id}/configurations/{name}", g.setConfiguration).Methods("PUT")
	api.HandleFunc("/components/{id}/configurations/{name}", g.resetConfiguration).Methods("DELETE")
	api.HandleFunc("/components/{id}/operations", g.listOperations).Methods("GET")
	api.HandleFunc("/components/{id}/operations/{name}/status", g.operationStatus).Methods("GET")
	api.HandleFunc("/components/{id}/operations/{name}/result", g.operationResult).Methods("GET")
	api.HandleFunc("/components/{id}/operations/{name}", g.invokeOperation).Methods("POST")
	api.HandleFunc("/components/{id}/operations/{name}", g.cancelOperation).Methods("DELETE")
	api.HandleFunc("/{entityType}/{id}/faults", g.listFaults).Methods("GET")
	api.HandleFunc("/{entityType}/{id}/faults/{code}", g.clearFault).Methods("DELETE")
	api.HandleFunc("/{entityType}/{id}/bulk-data/{category}/{dataId}", g.bulkData).Methods("GET")
	api.HandleFunc("/refresh", g.refresh).Methods("POST")
	api.HandleFunc("/{entityType}/{id}", g.entityDetail).Methods("GET")

	return r
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (g *Gateway) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (g *Gateway) listAreas(w http.ResponseWriter, _ *http.Request) {
	g.mu.Lock()
	defer g.mu.Unlock()
	writeJSON(w, http.StatusOK, sovd.AreaListResponse{Areas: g.areas})
}

func (g *Gateway) listComponents(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := mux.Vars(r)["id"]
	children, ok := g.components[id]
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("area %s not found", id))
		return
	}
	writeJSON(w, http.StatusOK, sovd.ComponentListResponse{Components: children})
}

func (g *Gateway) entityDetail(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	defer g.mu.Unlock()
	vars := mux.Vars(r)
	if detail, ok := g.details[vars["id"]]; ok {
		writeJSON(w, http.StatusOK, detail)
		return
	}
	for _, a := range g.areas {
		if a.ID == vars["id"] && vars["entityType"] == "areas" {
			writeJSON(w, http.StatusOK, sovd.EntityDetail{ID: a.ID, Name: a.Name, Type: sovd.KindArea})
			return
		}
	}
	writeError(w, http.StatusNotFound, fmt.Sprintf("entity %s not found", vars["id"]))
}

func (g *Gateway) listData(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := mux.Vars(r)["id"]
	writeJSON(w, http.StatusOK, sovd.TopicListResponse{Topics: g.topics[id]})
}

func (g *Gateway) getData(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	defer g.mu.Unlock()
	vars := mux.Vars(r)
	for _, t := range g.topics[vars["id"]] {
		if t.Name == vars["topic"] {
			writeJSON(w, http.StatusOK, t)
			return
		}
	}
	writeError(w, http.StatusNotFound, fmt.Sprintf("topic %s not found", vars["topic"]))
}

func (g *Gateway) publishData(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	defer g.mu.Unlock()
	vars := mux.Vars(r)
	var body struct {
		Value map[string]any `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	topics := g.topics[vars["id"]]
	for i, t := range topics {
		if t.Name != vars["topic"] {
			continue
		}
		if !t.Writable {
			writeError(w, http.StatusForbidden, fmt.Sprintf("topic %s is read-only", t.Name))
			return
		}
		topics[i].Latest = body.Value
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeError(w, http.StatusNotFound, fmt.Sprintf("topic %s not found", vars["topic"]))
}

func (g *Gateway) listConfigurations(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := mux.Vars(r)["id"]
	writeJSON(w, http.StatusOK, sovd.ParameterListResponse{Parameters: g.params[id]})
}

func (g *Gateway) setConfiguration(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	defer g.mu.Unlock()
	vars := mux.Vars(r)
	var body struct {
		Value any `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	params := g.params[vars["id"]]
	for i, p := range params {
		if p.Name != vars["name"] {
			continue
		}
		if p.ReadOnly {
			writeError(w, http.StatusForbidden, fmt.Sprintf("parameter %s is read-only", p.Name))
			return
		}
		params[i].Value = body.Value
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeError(w, http.StatusNotFound, fmt.Sprintf("parameter %s not found", vars["name"]))
}

func (g *Gateway) resetConfiguration(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	defer g.mu.Unlock()
	vars := mux.Vars(r)
	if g.stuck[vars["id"]+"/"+vars["name"]] {
		writeError(w, http.StatusConflict, fmt.Sprintf("parameter %s refused reset", vars["name"]))
		return
	}
	params := g.params[vars["id"]]
	for i, p := range params {
		if p.Name == vars["name"] {
			params[i].Value = g.defaults[vars["id"]][p.Name]
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	writeError(w, http.StatusNotFound, fmt.Sprintf("parameter %s not found", vars["name"]))
}

func (g *Gateway) resetAllConfigurations(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := mux.Vars(r)["id"]
	params := g.params[id]
	var failures []sovd.ResetFailure
	succeeded := 0
	for i, p := range params {
		if g.stuck[id+"/"+p.Name] {
			failures = append(failures, sovd.ResetFailure{Name: p.Name, Error: "refused reset"})
			continue
		}
		params[i].Value = g.defaults[id][p.Name]
		succeeded++
	}
	status := http.StatusOK
	if len(failures) > 0 {
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, map[string]any{"succeeded": succeeded, "failures": failures})
}

func (g *Gateway) listOperations(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := mux.Vars(r)["id"]
	detail, ok := g.details[id]
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("component %s not found", id))
		return
	}
	writeJSON(w, http.StatusOK, sovd.OperationListResponse{Operations: detail.Operations})
}

func (g *Gateway) invokeOperation(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	defer g.mu.Unlock()
	vars := mux.Vars(r)
	detail, ok := g.details[vars["id"]]
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("component %s not found", vars["id"]))
		return
	}
	for _, op := range detail.Operations {
		if op.Name != vars["name"] {
			continue
		}
		if op.Kind == "service" {
			writeJSON(w, http.StatusOK, sovd.InvokeResult{
				Status: "succeeded",
				Output: map[string]any{"passed": true},
			})
			return
		}
		id := uuid.NewString()
		g.goals[id] = &goal{operation: op.Name, status: "executing",
			result: map[string]any{"offset": 0.02}}
		writeJSON(w, http.StatusAccepted, sovd.InvokeResult{GoalID: id, Status: "accepted"})
		return
	}
	writeError(w, http.StatusNotFound, fmt.Sprintf("operation %s not found", vars["name"]))
}

func (g *Gateway) operationStatus(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	defer g.mu.Unlock()
	name := mux.Vars(r)["name"]
	if r.URL.Query().Get("all") == "true" {
		var goals []sovd.GoalStatus
		for id, gl := range g.goals {
			if gl.operation == name {
				goals = append(goals, sovd.GoalStatus{GoalID: id, Status: gl.status})
			}
		}
		writeJSON(w, http.StatusOK, sovd.GoalStatusResponse{Goals: goals})
		return
	}
	goalID := r.URL.Query().Get("goal_id")
	gl, ok := g.goals[goalID]
	if !ok || gl.operation != name {
		writeJSON(w, http.StatusOK, sovd.GoalStatusResponse{})
		return
	}
	// One status poll completes the goal; keeps action tests deterministic.
	status := gl.status
	if gl.status == "executing" {
		gl.status = "succeeded"
	}
	writeJSON(w, http.StatusOK, sovd.GoalStatusResponse{
		Goals: []sovd.GoalStatus{{GoalID: goalID, Status: status}},
	})
}

func (g *Gateway) operationResult(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	defer g.mu.Unlock()
	goalID := r.URL.Query().Get("goal_id")
	gl, ok := g.goals[goalID]
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("goal %s not found", goalID))
		return
	}
	if gl.status != "succeeded" && gl.status != "canceled" {
		writeError(w, http.StatusConflict, "goal still executing")
		return
	}
	writeJSON(w, http.StatusOK, sovd.GoalResult{GoalID: goalID, Status: gl.status, Result: gl.result})
}

func (g *Gateway) cancelOperation(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	defer g.mu.Unlock()
	goalID := r.URL.Query().Get("goal_id")
	gl, ok := g.goals[goalID]
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("goal %s not found", goalID))
		return
	}
	gl.status = "canceled"
	w.WriteHeader(http.StatusNoContent)
}

func (g *Gateway) listFaults(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	defer g.mu.Unlock()
	vars := mux.Vars(r)
	key := vars["entityType"] + "/" + vars["id"]
	writeJSON(w, http.StatusOK, sovd.FaultListResponse{Faults: g.faults[key]})
}

func (g *Gateway) clearFault(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	defer g.mu.Unlock()
	vars := mux.Vars(r)
	key := vars["entityType"] + "/" + vars["id"]
	faults := g.faults[key]
	for i, f := range faults {
		if f.Code == vars["code"] {
			g.faults[key] = append(faults[:i:i], faults[i+1:]...)
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	writeError(w, http.StatusNotFound, fmt.Sprintf("fault %s not found", vars["code"]))
}

func (g *Gateway) bulkData(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="%s-%s.bin"`, vars["category"], vars["dataId"]))
	_, _ = w.Write([]byte("bulk:" + vars["category"] + ":" + vars["dataId"]))
}

func (g *Gateway) refresh(w http.ResponseWriter, _ *http.Request) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refreshCount++
	components := 0
	for _, c := range g.components {
		components += len(c)
	}
	writeJSON(w, http.StatusOK, sovd.RefreshResult{
		DurationMS: 12,
		Areas:      len(g.areas),
		Components: components,
	})
}
