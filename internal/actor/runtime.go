// Package actor owns the mapping from actor id to live actor instance and
// the inbox-based message passing between them.
//
// Actors never invoke each other directly: every cross-actor effect is a
// message appended to the target's durable inbox, drained strictly in
// arrival order with at most one concurrent processing pass per actor. The
// arena holds plain ids resolved through the store - no actor owns a
// pointer to another.
package actor

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dyluth/warren/internal/machine"
	"github.com/dyluth/warren/pkg/costore"
	"github.com/dyluth/warren/pkg/runtime"
)

// Actor is one live instance in the arena: the ids of its backing CoValues,
// its compiled machine and its accepted message types. The busy flag is the
// per-actor processing guard.
type Actor struct {
	ID        string
	ContextID string
	InboxID   string
	Machine   *machine.Definition

	// accepts is the declared accepted-type set; nil accepts everything.
	accepts map[string]struct{}

	// busy is the per-actor processing guard; rerun records a drain trigger
	// that arrived while a pass held the guard, so the running pass re-checks
	// the inbox before releasing instead of losing the wakeup.
	mu    sync.Mutex
	busy  bool
	rerun bool
}

// Accepts reports whether the actor's declared type set admits a message
// type. Synthetic tool outcome events are always admitted - a machine that
// invokes tools must see their results.
func (a *Actor) Accepts(msgType string) bool {
	if msgType == machine.EventSuccess || msgType == machine.EventError {
		return true
	}
	if a.accepts == nil {
		return true
	}
	_, ok := a.accepts[msgType]
	return ok
}

// Runtime creates, runs and destroys actors.
type Runtime struct {
	router *runtime.Router
	interp *machine.Interpreter

	// session scopes drain watermarks so a restarted runtime re-checks the
	// durable processed set instead of trusting a stale position.
	session string

	mu    sync.Mutex
	arena map[string]*Actor
}

// NewRuntime creates an actor runtime and attaches it behind the router's
// process-inbox operation.
func NewRuntime(router *runtime.Router, interp *machine.Interpreter) *Runtime {
	rt := &Runtime{
		router:  router,
		interp:  interp,
		session: uuid.New().String(),
		arena:   make(map[string]*Actor),
	}
	router.AttachDrainer(rt)
	return rt
}

// Session returns the runtime's session id.
func (rt *Runtime) Session() string {
	return rt.session
}

// Actor returns the live instance for an actor id, instantiating it on
// first reference from its seeded definition document: the machine is
// compiled, and the context and inbox CoValues are created idempotently.
func (rt *Runtime) Actor(ctx context.Context, actorID string) (*Actor, error) {
	rt.mu.Lock()
	if a, ok := rt.arena[actorID]; ok {
		rt.mu.Unlock()
		return a, nil
	}
	rt.mu.Unlock()

	a, err := rt.instantiate(ctx, actorID)
	if err != nil {
		return nil, err
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()
	if existing, ok := rt.arena[actorID]; ok {
		// Lost the instantiation race; the CoValue creates were idempotent.
		return existing, nil
	}
	rt.arena[actorID] = a

	rt.logEvent("actor_instantiated", map[string]interface{}{
		"actor":   actorID,
		"context": a.ContextID,
		"inbox":   a.InboxID,
	})
	return a, nil
}

func (rt *Runtime) instantiate(ctx context.Context, actorID string) (*Actor, error) {
	store := rt.router.Store()

	defID, err := store.ResolveHumanReadableKey(ctx, actorID)
	if err != nil {
		if costore.IsNotFound(err) {
			return nil, fmt.Errorf("actor %q has no seeded definition", actorID)
		}
		return nil, err
	}
	defValue, err := store.Read(ctx, defID)
	if err != nil {
		return nil, fmt.Errorf("failed to read actor definition %s: %w", defID, err)
	}
	doc, ok := defValue.Content.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("actor definition %s is not a document", defID)
	}

	machineID, ok := doc["machine"].(string)
	if !ok || machineID == "" {
		return nil, fmt.Errorf("actor %q declares no machine", actorID)
	}
	machineValue, err := store.Read(ctx, machineID)
	if err != nil {
		return nil, fmt.Errorf("failed to read machine %s for actor %q: %w", machineID, actorID, err)
	}
	machineDoc, ok := machineValue.Content.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("machine %s is not a document", machineID)
	}
	def, err := machine.Compile(machineDoc)
	if err != nil {
		return nil, fmt.Errorf("actor %q: %w", actorID, err)
	}

	initialContext, _ := doc["context"].(map[string]any)
	if initialContext == nil {
		initialContext = map[string]any{}
	}
	contextValue, err := store.Create(ctx, costore.KindMap, "", initialContext, "context:"+actorID)
	if err != nil {
		return nil, fmt.Errorf("failed to create context for actor %q: %w", actorID, err)
	}
	inboxValue, err := store.CreateInbox(ctx, "", actorID)
	if err != nil {
		return nil, fmt.Errorf("failed to create inbox for actor %q: %w", actorID, err)
	}

	a := &Actor{
		ID:        actorID,
		ContextID: contextValue.ID,
		InboxID:   inboxValue.ID,
		Machine:   def,
	}
	if rawAccepts, present := doc["accepts"]; present {
		list, ok := rawAccepts.([]any)
		if !ok {
			return nil, fmt.Errorf("actor %q: accepts must be a list", actorID)
		}
		a.accepts = make(map[string]struct{}, len(list))
		for _, raw := range list {
			msgType, ok := raw.(string)
			if !ok || msgType == "" {
				return nil, fmt.Errorf("actor %q: accepts entries must be non-empty strings", actorID)
			}
			a.accepts[msgType] = struct{}{}
		}
	}
	return a, nil
}

// Send delivers a message to an actor by appending it to the target's inbox
// and triggering a drain. The payload must be fully resolved: the inbox is
// a durable, replicated log whose entries must be meaningful to any later
// reader, so a payload still carrying expression placeholders is rejected.
func (rt *Runtime) Send(ctx context.Context, target, msgType string, payload map[string]any, source string) error {
	if runtime.HasPendingExpressions(payload) {
		return fmt.Errorf("message payload for actor %q contains unresolved expressions", target)
	}

	a, err := rt.Actor(ctx, target)
	if err != nil {
		return err
	}

	msg := &costore.Message{
		Type:    msgType,
		Payload: payload,
		Source:  source,
		Target:  target,
	}
	entryID, err := rt.router.Store().AppendMessage(ctx, a.InboxID, msg)
	if err != nil {
		return fmt.Errorf("failed to deliver %s to actor %q: %w", msgType, target, err)
	}

	rt.logEvent("message_delivered", map[string]interface{}{
		"actor": target,
		"type":  msgType,
		"entry": entryID,
	})

	go func() {
		drainCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := rt.Drain(drainCtx, target); err != nil {
			log.Printf("[Actor] Drain after delivery to %q failed: %v", target, err)
		}
	}()
	return nil
}

// Drain processes the unprocessed messages of one actor's inbox, strictly
// in arrival order, one at a time. A second concurrent drain of the same
// actor returns immediately with zero processed, flagging the running pass
// to re-check the inbox before it releases the guard - a trigger that hits
// the guard is replayed, never dropped. Implements the router's
// process-inbox operation.
func (rt *Runtime) Drain(ctx context.Context, actorID string) (int, error) {
	a, err := rt.Actor(ctx, actorID)
	if err != nil {
		return 0, err
	}

	a.mu.Lock()
	if a.busy {
		a.rerun = true
		a.mu.Unlock()
		return 0, nil
	}
	a.busy = true
	a.rerun = false
	a.mu.Unlock()

	release := func() {
		a.mu.Lock()
		a.busy = false
		a.mu.Unlock()
	}

	store := rt.router.Store()
	processed := 0

	for {
		watermark, err := store.GetWatermark(ctx, rt.session, a.InboxID)
		if err != nil {
			release()
			return processed, err
		}
		messages, err := store.ReadMessagesAfter(ctx, a.InboxID, watermark)
		if err != nil {
			release()
			return processed, err
		}
		if len(messages) == 0 {
			// Rerun check and guard release are one critical section: a
			// concurrent drain either set rerun before this point (this pass
			// re-reads) or finds the guard already clear (it drains itself).
			a.mu.Lock()
			if a.rerun {
				a.rerun = false
				a.mu.Unlock()
				continue
			}
			a.busy = false
			a.mu.Unlock()
			return processed, nil
		}

		for _, msg := range messages {
			if err := rt.processMessage(ctx, a, msg); err != nil {
				release()
				return processed, err
			}
			if !msg.Processed {
				processed++
			}
			if err := store.SetWatermark(ctx, rt.session, a.InboxID, msg.ID); err != nil {
				release()
				return processed, err
			}
		}
	}
}

// processMessage handles one inbox entry. Messages already processed under
// the durable set (by an earlier session) are skipped; messages outside the
// actor's accepted-type set are marked processed and skipped silently - an
// unrecognized type is a normal no-op, not an error.
func (rt *Runtime) processMessage(ctx context.Context, a *Actor, msg *costore.Message) error {
	store := rt.router.Store()

	if msg.Processed {
		return nil
	}

	if !a.Accepts(msg.Type) {
		rt.logEvent("message_skipped", map[string]interface{}{
			"actor": a.ID,
			"type":  msg.Type,
			"entry": msg.ID,
		})
		return store.MarkProcessed(ctx, a.InboxID, msg.ID)
	}

	subject := machine.Subject{
		ActorID:   a.ID,
		ContextID: a.ContextID,
		InboxID:   a.InboxID,
	}
	if err := rt.interp.Step(ctx, a.Machine, subject, msg); err != nil {
		return fmt.Errorf("actor %q failed on message %s: %w", a.ID, msg.ID, err)
	}
	return store.MarkProcessed(ctx, a.InboxID, msg.ID)
}

// Destroy tears an actor down: it is removed from the arena and its context
// and inbox CoValues are tombstoned. Teardown is explicit - the runtime
// does not reference-count actors.
func (rt *Runtime) Destroy(ctx context.Context, actorID string) error {
	rt.mu.Lock()
	a, ok := rt.arena[actorID]
	if ok {
		delete(rt.arena, actorID)
	}
	rt.mu.Unlock()
	if !ok {
		return fmt.Errorf("actor %q is not live", actorID)
	}

	store := rt.router.Store()
	if err := store.Delete(ctx, a.ContextID); err != nil {
		return fmt.Errorf("failed to destroy context of actor %q: %w", actorID, err)
	}
	if err := store.Delete(ctx, a.InboxID); err != nil {
		return fmt.Errorf("failed to destroy inbox of actor %q: %w", actorID, err)
	}

	rt.logEvent("actor_destroyed", map[string]interface{}{"actor": actorID})
	return nil
}

// Run watches the store's change feed and drains an actor's inbox whenever
// a message lands in it - this is what makes asynchronous tool outcomes
// flow without an external caller. Blocks until the context is cancelled.
func (rt *Runtime) Run(ctx context.Context) error {
	sub, err := rt.router.Store().SubscribeChanges(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to change events: %w", err)
	}
	defer sub.Close()

	log.Printf("[Actor] Runtime running (session %s)", rt.session)

	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return nil
			}
			if ev.Op != "message" {
				continue
			}
			if actorID, ok := rt.actorByInbox(ev.ID); ok {
				go func() {
					drainCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
					defer cancel()
					if _, err := rt.Drain(drainCtx, actorID); err != nil {
						log.Printf("[Actor] Drain of %q failed: %v", actorID, err)
					}
				}()
			}
		case err, ok := <-sub.Errors():
			if !ok {
				return nil
			}
			log.Printf("[Actor] Change feed error: %v", err)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (rt *Runtime) actorByInbox(inboxID string) (string, bool) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	for id, a := range rt.arena {
		if a.InboxID == inboxID {
			return id, true
		}
	}
	return "", false
}

// logEvent logs a structured event in JSON format.
func (rt *Runtime) logEvent(eventType string, data map[string]interface{}) {
	data["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	data["level"] = "info"
	data["component"] = "actor"
	data["event_type"] = eventType
	data["session"] = rt.session

	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Printf("[Actor] Failed to marshal log event: %v", err)
		return
	}

	log.Println(string(jsonData))
}
