package machine

import (
	"fmt"

	"github.com/dyluth/warren/pkg/schema"
)

// Definition is the compiled form of a declarative state machine document: a
// classic state chart with named states, one initial state, per-state
// entry/exit action lists and a transition table keyed by event type.
//
// Definitions are immutable at runtime and shared by every actor instance
// that references them.
type Definition struct {
	Name    string
	Initial string
	States  map[string]*State
}

// State holds one named state's actions and transitions.
type State struct {
	Entry []*Action
	Exit  []*Action
	On    map[string]*Transition
}

// Transition moves the machine to a target state, optionally gated by a
// guard and carrying its own action list.
type Transition struct {
	Target  string
	Guard   *Guard
	Actions []*Action
}

// Action is a closed set of variants: a batched context update or a tool
// invocation. Exactly one of the two forms is populated.
type Action struct {
	// Set holds the fields a context-update action writes. Values may be
	// {"$ctx": field} placeholders, evaluated against the existing context
	// at commit time.
	Set map[string]any

	// Tool names a registered tool; Payload is its invocation payload,
	// resolved against the current context before the call.
	Tool    string
	Payload map[string]any
}

// IsTool reports whether the action is a tool invocation.
func (a *Action) IsTool() bool {
	return a.Tool != ""
}

// Guard is a schema-shaped predicate over the actor's current context. A
// transition with a failing guard consumes its event without effect.
type Guard struct {
	def *schema.Definition
}

// Allows reports whether the context satisfies the guard's constraints.
func (g *Guard) Allows(context map[string]any) bool {
	return g.def.Validate(context) == nil
}

// Compile turns a state machine document into its runtime Definition. It
// fails fast on a missing or unknown initial state, transitions targeting
// undeclared states, and action objects that are neither an update nor a
// tool invocation.
func Compile(doc map[string]any) (*Definition, error) {
	name, _ := doc["$id"].(string)

	initial, ok := doc["initial"].(string)
	if !ok || initial == "" {
		return nil, fmt.Errorf("machine %q: missing initial state", name)
	}

	rawStates, ok := doc["states"].(map[string]any)
	if !ok || len(rawStates) == 0 {
		return nil, fmt.Errorf("machine %q: missing states", name)
	}

	def := &Definition{
		Name:    name,
		Initial: initial,
		States:  make(map[string]*State, len(rawStates)),
	}

	for stateName, rawState := range rawStates {
		stateDoc, ok := rawState.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("machine %q: state %q must be an object", name, stateName)
		}
		st, err := compileState(name, stateName, stateDoc)
		if err != nil {
			return nil, err
		}
		def.States[stateName] = st
	}

	if _, ok := def.States[initial]; !ok {
		return nil, fmt.Errorf("machine %q: initial state %q is not declared", name, initial)
	}
	for stateName, st := range def.States {
		for eventType, tr := range st.On {
			if _, ok := def.States[tr.Target]; !ok {
				return nil, fmt.Errorf("machine %q: state %q event %q targets undeclared state %q", name, stateName, eventType, tr.Target)
			}
		}
	}
	return def, nil
}

func compileState(machineName, stateName string, doc map[string]any) (*State, error) {
	st := &State{On: make(map[string]*Transition)}

	var err error
	if st.Entry, err = compileActions(machineName, stateName, "entry", doc["entry"]); err != nil {
		return nil, err
	}
	if st.Exit, err = compileActions(machineName, stateName, "exit", doc["exit"]); err != nil {
		return nil, err
	}

	rawOn, present := doc["on"]
	if !present {
		return st, nil
	}
	onDoc, ok := rawOn.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("machine %q: state %q: on must be an object", machineName, stateName)
	}

	for eventType, rawTransition := range onDoc {
		if eventType == "" {
			return nil, fmt.Errorf("machine %q: state %q: empty event type", machineName, stateName)
		}
		tr, err := compileTransition(machineName, stateName, eventType, rawTransition)
		if err != nil {
			return nil, err
		}
		st.On[eventType] = tr
	}
	return st, nil
}

func compileTransition(machineName, stateName, eventType string, raw any) (*Transition, error) {
	doc, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("machine %q: state %q event %q: transition must be an object", machineName, stateName, eventType)
	}

	target, ok := doc["target"].(string)
	if !ok || target == "" {
		return nil, fmt.Errorf("machine %q: state %q event %q: missing target", machineName, stateName, eventType)
	}

	tr := &Transition{Target: target}

	if rawGuard, present := doc["guard"]; present {
		guardDoc, ok := rawGuard.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("machine %q: state %q event %q: guard must be an object", machineName, stateName, eventType)
		}
		guard, err := compileGuard(guardDoc)
		if err != nil {
			return nil, fmt.Errorf("machine %q: state %q event %q: %w", machineName, stateName, eventType, err)
		}
		tr.Guard = guard
	}

	actions, err := compileActions(machineName, stateName, "event "+eventType, doc["actions"])
	if err != nil {
		return nil, err
	}
	tr.Actions = actions
	return tr, nil
}

// compileGuard compiles a guard document - a map-shaped constraint over
// context fields - into a reusable predicate. Guards omit the container
// kind; they always constrain the map-kind context.
func compileGuard(doc map[string]any) (*Guard, error) {
	guardDoc := make(map[string]any, len(doc)+1)
	for k, v := range doc {
		guardDoc[k] = v
	}
	if _, present := guardDoc["type"]; !present {
		guardDoc["type"] = "co-map"
	}

	def, err := schema.Compile(guardDoc)
	if err != nil {
		return nil, fmt.Errorf("invalid guard: %w", err)
	}
	return &Guard{def: def}, nil
}

func compileActions(machineName, stateName, where string, raw any) ([]*Action, error) {
	if raw == nil {
		return nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("machine %q: state %q %s: actions must be a list", machineName, stateName, where)
	}

	actions := make([]*Action, 0, len(list))
	for i, rawAction := range list {
		doc, ok := rawAction.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("machine %q: state %q %s action %d: must be an object", machineName, stateName, where, i)
		}

		_, hasUpdate := doc["update"]
		_, hasTool := doc["tool"]
		switch {
		case hasUpdate && !hasTool:
			set, ok := doc["update"].(map[string]any)
			if !ok {
				return nil, fmt.Errorf("machine %q: state %q %s action %d: update must be an object", machineName, stateName, where, i)
			}
			actions = append(actions, &Action{Set: set})

		case hasTool && !hasUpdate:
			tool, ok := doc["tool"].(string)
			if !ok || tool == "" {
				return nil, fmt.Errorf("machine %q: state %q %s action %d: tool must be a non-empty string", machineName, stateName, where, i)
			}
			payload, _ := doc["payload"].(map[string]any)
			actions = append(actions, &Action{Tool: tool, Payload: payload})

		default:
			return nil, fmt.Errorf("machine %q: state %q %s action %d: exactly one of update or tool is required", machineName, stateName, where, i)
		}
	}
	return actions, nil
}
