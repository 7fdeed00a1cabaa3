package harness

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/deckd/internal/device"
	"github.com/roach88/deckd/internal/engine"
	"github.com/roach88/deckd/internal/profile"
	"github.com/roach88/deckd/internal/store"
)

// Scenario defines a dispatch scenario: a device with a profile, a flow of
// device input and plugin messages, and assertions on what the engine sent
// and what it persisted.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Device overrides the default ProntoKey pk-01.
	Device *DeviceSpec `yaml:"device,omitempty"`

	// Profile is the id of the selected profile. Defaults to "Default".
	Profile string `yaml:"profile,omitempty"`

	// Plugins receive deviceDidConnect and deviceDidDisconnect.
	Plugins []string `yaml:"plugins,omitempty"`

	// Fail lists plugin UUIDs or inspector contexts whose sends fail.
	Fail []string `yaml:"fail,omitempty"`

	// Bindings populate the profile before the flow runs.
	Bindings []Binding `yaml:"bindings,omitempty"`

	// Flow is enqueued in order and drained by a single Run.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate the trace and the final store contents.
	Assertions []Assertion `yaml:"assertions"`
}

// DeviceSpec describes the device a scenario runs against.
type DeviceSpec struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name"`
	Type    int    `yaml:"type"`
	Rows    int    `yaml:"rows"`
	Columns int    `yaml:"columns"`
	Dials   int    `yaml:"dials"`
}

// Binding places an instance in a slot.
type Binding struct {
	// Controller is Keypad or Encoder. Defaults to Keypad.
	Controller string `yaml:"controller,omitempty"`
	Position   int    `yaml:"position"`

	InstanceSpec `yaml:",inline"`
}

// InstanceSpec describes an action instance. The plugin defaults to the
// action UUID without its last segment.
type InstanceSpec struct {
	Action                 string         `yaml:"action"`
	Plugin                 string         `yaml:"plugin,omitempty"`
	States                 int            `yaml:"states,omitempty"`
	DisableAutomaticStates bool           `yaml:"disable_automatic_states,omitempty"`
	CurrentState           int            `yaml:"current_state,omitempty"`
	Settings               map[string]any `yaml:"settings,omitempty"`
	Children               []InstanceSpec `yaml:"children,omitempty"`
}

// FlowStep is one event. Exactly one field must be set.
type FlowStep struct {
	Input      *InputStep   `yaml:"input,omitempty"`
	Inbound    *InboundStep `yaml:"inbound,omitempty"`
	Connect    bool         `yaml:"connect,omitempty"`
	Disconnect bool         `yaml:"disconnect,omitempty"`
}

// InputStep is key or dial input on the scenario's device.
type InputStep struct {
	Kind  string `yaml:"kind"`
	Index int    `yaml:"index"`
	Ticks int    `yaml:"ticks,omitempty"`
}

// InboundStep is a message from a plugin, or from a property inspector when
// Inspector is set.
type InboundStep struct {
	Inspector bool           `yaml:"inspector,omitempty"`
	Source    string         `yaml:"source,omitempty"`
	Message   map[string]any `yaml:"message"`
}

// TraceMatch selects sent messages. Empty fields match anything; Payload is
// a subset match.
type TraceMatch struct {
	Event   string         `yaml:"event,omitempty"`
	Target  string         `yaml:"target,omitempty"`
	To      string         `yaml:"to,omitempty"`
	Action  string         `yaml:"action,omitempty"`
	Context string         `yaml:"context,omitempty"`
	Payload map[string]any `yaml:"payload,omitempty"`
}

// Assertion validates the trace or the final store contents.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": a message matching the inline fields was sent
	// - "trace_order": messages matching Order were sent in that order
	// - "trace_count": exactly Count messages match the inline fields
	// - "final_state": the persisted instance at a slot matches Expect
	// - "global_settings": a plugin's persisted global settings match Settings
	// - "elapsed": the fake clock advanced by ElapsedMS
	// - "opened_url": URL was passed to the opener
	Type string `yaml:"type"`

	TraceMatch `yaml:",inline"`

	Count *int         `yaml:"count,omitempty"`
	Order []TraceMatch `yaml:"order,omitempty"`

	Controller string         `yaml:"controller,omitempty"`
	Position   int            `yaml:"position,omitempty"`
	Path       []int          `yaml:"path,omitempty"`
	Expect     map[string]any `yaml:"expect,omitempty"`

	Plugin   string         `yaml:"plugin,omitempty"`
	Settings map[string]any `yaml:"settings,omitempty"`

	ElapsedMS *int64 `yaml:"elapsed_ms,omitempty"`
	URL       string `yaml:"url,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains  = "trace_contains"
	AssertTraceOrder     = "trace_order"
	AssertTraceCount     = "trace_count"
	AssertFinalState     = "final_state"
	AssertGlobalSettings = "global_settings"
	AssertElapsed        = "elapsed"
	AssertOpenedURL      = "opened_url"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// DeviceInfo returns the device the scenario runs against.
func (s *Scenario) DeviceInfo() device.Info {
	if s.Device == nil {
		return device.ProntoKeyInfo("01")
	}
	return device.Info{
		ID:   s.Device.ID,
		Name: s.Device.Name,
		Type: s.Device.Type,
		Layout: device.Layout{
			Rows:    s.Device.Rows,
			Columns: s.Device.Columns,
			Dials:   s.Device.Dials,
		},
	}
}

// ProfileID returns the id of the selected profile.
func (s *Scenario) ProfileID() string {
	if s.Profile == "" {
		return store.DefaultProfileID
	}
	return s.Profile
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Device != nil && s.Device.ID == "" {
		return fmt.Errorf("device: id is required")
	}

	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, b := range s.Bindings {
		if _, err := b.controller(); err != nil {
			return fmt.Errorf("bindings[%d]: %w", i, err)
		}
		if err := b.InstanceSpec.validate(); err != nil {
			return fmt.Errorf("bindings[%d]: %w", i, err)
		}
	}

	for i, step := range s.Flow {
		if err := step.validate(); err != nil {
			return fmt.Errorf("flow[%d]: %w", i, err)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

func (spec InstanceSpec) validate() error {
	if spec.Action == "" {
		return fmt.Errorf("action is required")
	}
	if spec.States < 0 {
		return fmt.Errorf("%s: states must be non-negative", spec.Action)
	}
	for i, child := range spec.Children {
		if err := child.validate(); err != nil {
			return fmt.Errorf("children[%d]: %w", i, err)
		}
	}
	return nil
}

func (step FlowStep) validate() error {
	set := 0
	if step.Input != nil {
		set++
		if !device.InputKind(step.Input.Kind).Valid() {
			return fmt.Errorf("unknown input kind %q", step.Input.Kind)
		}
	}
	if step.Inbound != nil {
		set++
		if step.Inbound.Message == nil {
			return fmt.Errorf("inbound: message is required")
		}
		if step.Inbound.Inspector && step.Inbound.Source == "" {
			return fmt.Errorf("inbound: source is required for inspector messages")
		}
	}
	if step.Connect {
		set++
	}
	if step.Disconnect {
		set++
	}
	if set != 1 {
		return fmt.Errorf("exactly one of input, inbound, connect or disconnect is required")
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Order) == 0 {
			return fmt.Errorf("assertions[%d]: order list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for trace_count", index)
		}
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
		if _, err := profile.ParseController(controllerOrDefault(a.Controller)); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
	case AssertGlobalSettings:
		if a.Plugin == "" {
			return fmt.Errorf("assertions[%d]: plugin is required for global_settings", index)
		}
	case AssertElapsed:
		if a.ElapsedMS == nil {
			return fmt.Errorf("assertions[%d]: elapsed_ms is required for elapsed", index)
		}
	case AssertOpenedURL:
		if a.URL == "" {
			return fmt.Errorf("assertions[%d]: url is required for opened_url", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}

func controllerOrDefault(c string) string {
	if c == "" {
		return string(profile.Keypad)
	}
	return c
}

func (b Binding) controller() (profile.Controller, error) {
	return profile.ParseController(controllerOrDefault(b.Controller))
}

// Instance builds the action instance described by spec. Contexts are left
// zero; Profile.Bind assigns them.
func (spec InstanceSpec) Instance(ctrl profile.Controller) (*profile.ActionInstance, error) {
	plugin := spec.Plugin
	if plugin == "" {
		plugin = spec.Action
		if i := strings.LastIndex(spec.Action, "."); i > 0 {
			plugin = spec.Action[:i]
		}
	}

	states := spec.States
	if states == 0 {
		states = 1
		if spec.Action == profile.MultiActionSwitchUUID && len(spec.Children) > 0 {
			states = len(spec.Children)
		}
	}

	action := profile.Action{
		Name:                   spec.Action[strings.LastIndex(spec.Action, ".")+1:],
		UUID:                   spec.Action,
		Plugin:                 plugin,
		DisableAutomaticStates: spec.DisableAutomaticStates,
		Controllers:            []profile.Controller{ctrl},
		States:                 make([]profile.ActionState, states),
	}
	for i := range action.States {
		action.States[i].Name = fmt.Sprintf("State %d", i+1)
	}

	inst := profile.NewInstance(action, profile.ActionContext{})
	inst.CurrentState = spec.CurrentState
	if spec.Settings != nil {
		settings, err := toObject(spec.Settings)
		if err != nil {
			return nil, fmt.Errorf("%s settings: %w", spec.Action, err)
		}
		inst.Settings = settings
	}

	for _, childSpec := range spec.Children {
		child, err := childSpec.Instance(ctrl)
		if err != nil {
			return nil, err
		}
		inst.Children = append(inst.Children, child)
	}
	return inst, nil
}

// toObject converts YAML-decoded settings into a settings object.
func toObject(m map[string]any) (profile.Object, error) {
	v, err := profile.FromAny(m)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(profile.Object)
	if !ok {
		return nil, fmt.Errorf("expected object, got %T", v)
	}
	return obj, nil
}

// event converts the step into an engine event for the given device.
func (step FlowStep) event(info device.Info) (engine.Event, error) {
	switch {
	case step.Input != nil:
		return engine.InputEvent(device.Input{
			Device: info.ID,
			Kind:   device.InputKind(step.Input.Kind),
			Index:  step.Input.Index,
			Ticks:  step.Input.Ticks,
		}), nil

	case step.Inbound != nil:
		data, err := json.Marshal(step.Inbound.Message)
		if err != nil {
			return engine.Event{}, fmt.Errorf("encode inbound message: %w", err)
		}
		return engine.InboundEvent(engine.Inbound{
			FromInspector: step.Inbound.Inspector,
			Source:        step.Inbound.Source,
			Data:          data,
		}), nil

	case step.Connect:
		return engine.DeviceConnectedEvent(info), nil

	default:
		return engine.DeviceDisconnectedEvent(info), nil
	}
}
