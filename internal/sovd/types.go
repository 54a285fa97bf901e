package sovd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-viper/mapstructure/v2"
)

// EntityType is the collection segment used in gateway URLs for entities
// that expose sub-resources (faults, bulk data).
type EntityType string

// Entity collections understood by the gateway.
const (
	EntityAreas      EntityType = "areas"
	EntityComponents EntityType = "components"
	EntityApps       EntityType = "apps"
	EntityFunctions  EntityType = "functions"
)

// NodeKind discriminates the payload carried by a tree entity.
type NodeKind string

// Closed set of entity kinds surfaced in the discovery tree.
const (
	KindArea       NodeKind = "area"
	KindComponent  NodeKind = "component"
	KindApp        NodeKind = "app"
	KindFunction   NodeKind = "function"
	KindTopic      NodeKind = "topic"
	KindParameter  NodeKind = "parameter"
	KindOperation  NodeKind = "operation"
	KindFaultGroup NodeKind = "fault-group"
)

// Collection maps a node kind to the URL collection it lives under.
// Only area/component/app/function kinds address gateway collections.
func (k NodeKind) Collection() (EntityType, bool) {
	switch k {
	case KindArea:
		return EntityAreas, true
	case KindComponent:
		return EntityComponents, true
	case KindApp:
		return EntityApps, true
	case KindFunction:
		return EntityFunctions, true
	}
	return "", false
}

// EntitySummary is one entry of a discovery listing (/areas,
// /areas/{id}/components). Data carries the kind-specific payload.
type EntitySummary struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Type        NodeKind       `json:"type"`
	HasChildren bool           `json:"has_children"`
	Data        map[string]any `json:"data,omitempty"`
}

// AreaListResponse mirrors GET /areas.
type AreaListResponse struct {
	Areas []EntitySummary `json:"areas"`
}

// ComponentListResponse mirrors GET /areas/{id}/components.
type ComponentListResponse struct {
	Components []EntitySummary `json:"components"`
}

// EntityDetail is the full payload for a selected entity.
type EntityDetail struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Type        NodeKind    `json:"type"`
	Description string      `json:"description,omitempty"`
	Status      string      `json:"status,omitempty"`
	Version     string      `json:"version,omitempty"`
	Topics      []Topic     `json:"topics,omitempty"`
	Operations  []Operation `json:"operations,omitempty"`
}

// Topic describes a published data topic of a component.
type Topic struct {
	Name        string         `json:"name"`
	MessageType string         `json:"message_type,omitempty"`
	Latest      map[string]any `json:"latest,omitempty"`
	Writable    bool           `json:"writable,omitempty"`
}

// TopicListResponse mirrors GET /components/{id}/data.
type TopicListResponse struct {
	Topics []Topic `json:"topics"`
}

// Parameter describes one configuration entry of a component.
type Parameter struct {
	Name     string `json:"name"`
	Value    any    `json:"value"`
	Default  any    `json:"default,omitempty"`
	Type     string `json:"type,omitempty"`
	Unit     string `json:"unit,omitempty"`
	ReadOnly bool   `json:"read_only,omitempty"`
}

// ParameterListResponse mirrors GET /components/{id}/configurations.
type ParameterListResponse struct {
	Parameters []Parameter `json:"parameters"`
}

// PartialResult reports the outcome of a reset-all that the gateway answered
// with HTTP 207: some parameters were reset, some were not.
type PartialResult struct {
	Succeeded int
	Failures  []ResetFailure
}

// ResetFailure names one parameter that could not be reset.
type ResetFailure struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

// Partial reports whether any parameter failed to reset.
func (r PartialResult) Partial() bool { return len(r.Failures) > 0 }

// Operation describes a callable service or long-running action.
type Operation struct {
	Name        string `json:"name"`
	Kind        string `json:"kind"` // "service" or "action"
	Description string `json:"description,omitempty"`
}

// OperationListResponse mirrors GET /components/{id}/operations.
type OperationListResponse struct {
	Operations []Operation `json:"operations"`
}

// InvokeResult is the gateway's answer to POST .../operations/{name}.
// Services answer with Output; actions answer with a goal ID to poll.
type InvokeResult struct {
	GoalID string         `json:"goal_id,omitempty"`
	Status string         `json:"status,omitempty"`
	Output map[string]any `json:"output,omitempty"`
}

// GoalStatus is one entry of an action's status listing.
type GoalStatus struct {
	GoalID   string         `json:"goal_id"`
	Status   string         `json:"status"`
	Feedback map[string]any `json:"feedback,omitempty"`
}

// GoalStatusResponse mirrors GET .../operations/{name}/status.
type GoalStatusResponse struct {
	Goals []GoalStatus `json:"goals"`
}

// GoalResult mirrors GET .../operations/{name}/result.
type GoalResult struct {
	GoalID string         `json:"goal_id"`
	Status string         `json:"status"`
	Result map[string]any `json:"result,omitempty"`
}

// Fault is one diagnostic trouble entry of an entity.
type Fault struct {
	Code        string    `json:"code"`
	Name        string    `json:"name,omitempty"`
	Severity    string    `json:"severity,omitempty"`
	Status      string    `json:"status"` // active, pending or cleared
	Description string    `json:"description,omitempty"`
	Timestamp   time.Time `json:"timestamp,omitempty"`
	Count       int       `json:"count,omitempty"`
}

// FaultListResponse mirrors GET /{entityType}/{id}/faults.
type FaultListResponse struct {
	Faults []Fault `json:"faults"`
}

// BulkData is a downloaded binary artifact.
type BulkData struct {
	ContentType string
	Filename    string
	Data        []byte
}

// RefreshResult mirrors POST /refresh.
type RefreshResult struct {
	DurationMS int64 `json:"duration_ms"`
	Areas      int   `json:"areas"`
	Components int   `json:"components"`
}

// Payload is the decoded kind-specific data of a tree entity. Consumers
// switch on the concrete variant rather than probing map keys.
type Payload interface {
	Kind() NodeKind
}

// AreaInfo is the payload of an area node.
type AreaInfo struct {
	Description    string `mapstructure:"description"`
	ComponentCount int    `mapstructure:"component_count"`
}

// ComponentInfo is the payload of a component, app or function node.
type ComponentInfo struct {
	kind        NodeKind
	Description string `mapstructure:"description"`
	Status      string `mapstructure:"status"`
	Version     string `mapstructure:"version"`
}

// TopicInfo is the payload of a topic node.
type TopicInfo struct {
	MessageType string  `mapstructure:"message_type"`
	RateHz      float64 `mapstructure:"rate_hz"`
	Writable    bool    `mapstructure:"writable"`
}

// OperationInfo is the payload of an operation node.
type OperationInfo struct {
	OperationKind string `mapstructure:"kind"`
	Description   string `mapstructure:"description"`
}

// FaultGroupInfo is the payload of a fault-group node.
type FaultGroupInfo struct {
	ActiveCount  int `mapstructure:"active_count"`
	PendingCount int `mapstructure:"pending_count"`
}

func (AreaInfo) Kind() NodeKind { return KindArea }

func (c ComponentInfo) Kind() NodeKind {
	if c.kind != "" {
		return c.kind
	}
	return KindComponent
}

func (TopicInfo) Kind() NodeKind      { return KindTopic }
func (OperationInfo) Kind() NodeKind  { return KindOperation }
func (FaultGroupInfo) Kind() NodeKind { return KindFaultGroup }

// DecodePayload turns the opaque data map of an entity into its typed
// variant. Unknown kinds and nil maps yield a nil payload without error so
// sparse gateway responses stay usable.
func DecodePayload(kind NodeKind, data map[string]any) (Payload, error) {
	if data == nil {
		return nil, nil
	}
	switch kind {
	case KindArea:
		var info AreaInfo
		if err := mapstructure.Decode(data, &info); err != nil {
			return nil, fmt.Errorf("decode area payload: %w", err)
		}
		return info, nil
	case KindComponent, KindApp, KindFunction:
		var info ComponentInfo
		if err := mapstructure.Decode(data, &info); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", kind, err)
		}
		info.kind = kind
		return info, nil
	case KindTopic:
		var info TopicInfo
		if err := mapstructure.Decode(data, &info); err != nil {
			return nil, fmt.Errorf("decode topic payload: %w", err)
		}
		return info, nil
	case KindOperation:
		var info OperationInfo
		if err := mapstructure.Decode(data, &info); err != nil {
			return nil, fmt.Errorf("decode operation payload: %w", err)
		}
		return info, nil
	case KindFaultGroup:
		var info FaultGroupInfo
		if err := mapstructure.Decode(data, &info); err != nil {
			return nil, fmt.Errorf("decode fault-group payload: %w", err)
		}
		return info, nil
	}
	return nil, nil
}

// GuessMessageType infers a message type from a payload's key signature.
// Best-effort fallback for gateways that omit the explicit type; returns ""
// when no signature matches.
func GuessMessageType(value map[string]any) string {
	if value == nil {
		return ""
	}
	has := func(keys ...string) bool {
		for _, k := range keys {
			if _, ok := value[k]; !ok {
				return false
			}
		}
		return true
	}
	switch {
	case has("linear", "angular"):
		return "geometry_msgs/Twist"
	case has("x", "y", "z", "w"):
		return "geometry_msgs/Quaternion"
	case has("x", "y", "z"):
		return "geometry_msgs/Vector3"
	case has("latitude", "longitude"):
		return "sensor_msgs/NavSatFix"
	case has("data") && len(value) == 1:
		return "std_msgs/Data"
	}
	return ""
}

// FormatValue renders an arbitrary JSON value for display.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	case bool:
		if val {
			return "true"
		}
		return "false"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
