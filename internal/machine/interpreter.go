package machine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/dyluth/warren/pkg/costore"
	"github.com/dyluth/warren/pkg/runtime"
)

const (
	// StateField is the context field holding the machine's current state.
	// The $ prefix keeps it out of the application's property namespace.
	StateField = "$state"

	// EventSuccess and EventError are the synthetic event types routed back
	// into an actor's inbox when a tool invocation completes.
	EventSuccess = "SUCCESS"
	EventError   = "ERROR"

	// DefaultToolTimeout bounds a tool invocation. Expiry yields an ERROR
	// event like any other tool failure.
	DefaultToolTimeout = 30 * time.Second
)

// Subject identifies the actor an event is interpreted for: its id, the
// map-kind CoValue backing its context, and the stream-kind CoValue
// receiving its synthetic events.
type Subject struct {
	ActorID   string
	ContextID string
	InboxID   string
}

// Interpreter executes state machine definitions over actor contexts.
//
// One interpreter serves many actors; per-actor sequencing is the actor
// runtime's job. The interpreter itself holds no mutable per-actor state -
// the current state lives in the context CoValue, so a restarted runtime
// resumes exactly where the durable state says.
type Interpreter struct {
	router      *runtime.Router
	tools       *ToolRegistry
	toolTimeout time.Duration
}

// NewInterpreter creates an interpreter over a router and a tool registry.
// A non-positive timeout selects DefaultToolTimeout.
func NewInterpreter(router *runtime.Router, tools *ToolRegistry, toolTimeout time.Duration) *Interpreter {
	if toolTimeout <= 0 {
		toolTimeout = DefaultToolTimeout
	}
	return &Interpreter{
		router:      router,
		tools:       tools,
		toolTimeout: toolTimeout,
	}
}

// Step processes one event for one actor: it looks up the current state's
// transition for the event type, evaluates the guard against the hydrated
// context, and on a passing guard runs exit actions, the transition's own
// actions and the target state's entry actions.
//
// All context updates in the batch commit as a single write together with
// the state change. Tool invocations run asynchronously; each outcome
// round-trips through the actor's own inbox as a synthetic SUCCESS or ERROR
// event rather than resolving in place.
//
// An event the current state has no handler for, or whose guard denies the
// transition, is a successfully processed no-op.
func (i *Interpreter) Step(ctx context.Context, def *Definition, subject Subject, event *costore.Message) error {
	v, err := i.router.Store().Read(ctx, subject.ContextID)
	if err != nil {
		return fmt.Errorf("failed to read context for actor %s: %w", subject.ActorID, err)
	}
	raw, _ := v.Content.(map[string]any)
	if raw == nil {
		raw = map[string]any{}
	}

	current, _ := raw[StateField].(string)
	if current == "" {
		current = def.Initial
	}
	state, ok := def.States[current]
	if !ok {
		return fmt.Errorf("actor %s is in undeclared state %q of machine %q", subject.ActorID, current, def.Name)
	}

	transition, ok := state.On[event.Type]
	if !ok {
		i.logEvent("event_unhandled", map[string]interface{}{
			"actor": subject.ActorID,
			"state": current,
			"type":  event.Type,
		})
		return nil
	}

	hydrated, err := i.router.HydrateContext(ctx, raw)
	if err != nil {
		return fmt.Errorf("failed to hydrate context for actor %s: %w", subject.ActorID, err)
	}

	if transition.Guard != nil && !transition.Guard.Allows(hydrated) {
		i.logEvent("guard_denied", map[string]interface{}{
			"actor": subject.ActorID,
			"state": current,
			"type":  event.Type,
		})
		return nil
	}

	target := def.States[transition.Target]

	// Exit, then the transition's own actions, then entry of the new state.
	batch := make(map[string]any)
	var toolCalls []*Action
	for _, action := range gatherActions(state.Exit, transition.Actions, target.Entry) {
		if action.IsTool() {
			toolCalls = append(toolCalls, action)
			continue
		}
		for field, value := range action.Set {
			batch[field] = value
		}
	}
	batch[StateField] = transition.Target

	// The whole batch, state change included, is one atomic commit.
	if _, err := i.router.Execute(ctx, runtime.Operation{
		Op:   runtime.OpUpdate,
		Key:  subject.ContextID,
		Data: batch,
	}); err != nil {
		return fmt.Errorf("failed to commit transition %s -> %s for actor %s: %w", current, transition.Target, subject.ActorID, err)
	}

	i.logEvent("transition", map[string]interface{}{
		"actor": subject.ActorID,
		"from":  current,
		"to":    transition.Target,
		"type":  event.Type,
		"tools": len(toolCalls),
	})

	for _, call := range toolCalls {
		i.invokeTool(subject, call, hydrated)
	}
	return nil
}

// invokeTool runs one tool invocation asynchronously and appends the
// synthetic outcome event to the invoking actor's own inbox.
func (i *Interpreter) invokeTool(subject Subject, call *Action, scope map[string]any) {
	payload := call.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	resolved, err := runtime.ResolveExpressions(payload, scope)
	if err != nil {
		i.emit(subject, EventError, map[string]any{
			"tool":  call.Tool,
			"error": err.Error(),
		})
		return
	}

	tool, ok := i.tools.Lookup(call.Tool)
	if !ok {
		i.emit(subject, EventError, map[string]any{
			"tool":  call.Tool,
			"error": fmt.Sprintf("unknown tool %q", call.Tool),
		})
		return
	}

	go func() {
		callCtx, cancel := context.WithTimeout(context.Background(), i.toolTimeout)
		defer cancel()

		result, err := tool.Invoke(callCtx, resolved)
		if err != nil {
			i.emit(subject, EventError, map[string]any{
				"tool":  call.Tool,
				"error": err.Error(),
			})
			return
		}
		if result == nil {
			result = map[string]any{}
		}
		i.emit(subject, EventSuccess, result)
	}()
}

// emit appends a synthetic event to the subject's inbox. Emission failures
// are logged, not propagated - by the time a tool resolves there is no
// caller left to receive an error.
func (i *Interpreter) emit(subject Subject, eventType string, payload map[string]any) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	msg := &costore.Message{
		Type:    eventType,
		Payload: payload,
		Source:  subject.ActorID,
		Target:  subject.ActorID,
	}
	if _, err := i.router.Store().AppendMessage(ctx, subject.InboxID, msg); err != nil {
		log.Printf("[Machine] Failed to append %s event for actor %s: %v", eventType, subject.ActorID, err)
	}
}

func gatherActions(lists ...[]*Action) []*Action {
	var out []*Action
	for _, list := range lists {
		out = append(out, list...)
	}
	return out
}

// logEvent logs a structured event in JSON format.
func (i *Interpreter) logEvent(eventType string, data map[string]interface{}) {
	data["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	data["level"] = "info"
	data["component"] = "machine"
	data["event_type"] = eventType

	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Printf("[Machine] Failed to marshal log event: %v", err)
		return
	}

	log.Println(string(jsonData))
}
