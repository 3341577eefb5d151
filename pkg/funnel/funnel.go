// Package funnel runs the three-question qualification dialog (what, spec,
// budget) used when a customer's message can't be routed to a concrete action.
package funnel

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/looplab/fsm"

	"salesbot/pkg/bus"
	"salesbot/pkg/store"
)

// Slot names, in the order they are asked.
const (
	SlotWhat   = "what"
	SlotSpec   = "spec"
	SlotBudget = "budget"
)

const (
	stateDone   = "done"
	eventAnswer = "answer"
)

var steps = []string{SlotWhat, SlotSpec, SlotBudget}

// transitions only move forward; there is no way back to an earlier slot.
var transitions = fsm.Events{
	{Name: eventAnswer, Src: []string{SlotWhat}, Dst: SlotSpec},
	{Name: eventAnswer, Src: []string{SlotSpec}, Dst: SlotBudget},
	{Name: eventAnswer, Src: []string{SlotBudget}, Dst: stateDone},
}

// Session is the state of one open funnel. State is the fsm state name: the
// slot being asked while open, stateDone once the last answer is in.
type Session struct {
	State     string            `json:"state"`
	Lang      string            `json:"lang"`
	Slots     map[string]string `json:"slots"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Step is the 1-based position of the slot being asked, or 0 when the
// session is not asking anything.
func (s Session) Step() int {
	for i, slot := range steps {
		if slot == s.State {
			return i + 1
		}
	}

	return 0
}

// CompleteFunc is called after the last answer, once the session is gone.
type CompleteFunc func(key string, s Session)

type Machine struct {
	sessions store.Store[Session]
	now      func() time.Time
	log      *slog.Logger

	mu         sync.RWMutex
	onComplete CompleteFunc
}

func New(sessions store.Store[Session]) *Machine {
	if sessions == nil {
		sessions = store.NewMemory[Session](0)
	}

	return &Machine{
		sessions: sessions,
		now:      time.Now,
		log:      slog.Default().With("component", "funnel.machine"),
	}
}

// OnComplete registers the completion hook. Hook panics are logged and
// swallowed.
func (m *Machine) OnComplete(fn CompleteFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onComplete = fn
}

// Start opens a session at step 1, replacing any session already open for key,
// and returns the first question.
func (m *Machine) Start(key string, lang string) string {
	lang = bus.ParseLang(lang)
	m.sessions.Set(key, Session{
		State:     steps[0],
		Lang:      lang,
		Slots:     map[string]string{},
		UpdatedAt: m.now().UTC(),
	})

	return textsFor(lang).prompts[0]
}

func (m *Machine) Has(key string) bool {
	_, ok := m.sessions.Get(key)
	return ok
}

// Step returns the current step, or 0 when no session is open.
func (m *Machine) Step(key string) int {
	s, ok := m.sessions.Get(key)
	if !ok {
		return 0
	}

	return s.Step()
}

// Cancel closes the session for key. Cancelling a missing session is a no-op.
func (m *Machine) Cancel(key string) {
	m.sessions.Delete(key)
}

// Next stores answer in the current slot and returns the following question,
// or the summary after the third answer. It returns "" when no session is
// open for key.
func (m *Machine) Next(key string, answer string) string {
	s, ok := m.sessions.Get(key)
	if !ok {
		return ""
	}

	next := Session{
		State: s.State,
		Lang:  s.Lang,
		Slots: make(map[string]string, len(steps)),
	}
	for name, value := range s.Slots {
		next.Slots[name] = value
	}

	machine := fsm.NewFSM(s.State, transitions, fsm.Callbacks{
		"before_" + eventAnswer: func(_ context.Context, e *fsm.Event) {
			text, _ := e.Args[0].(string)
			next.Slots[e.Src] = strings.TrimSpace(text)
		},
		"enter_state": func(_ context.Context, e *fsm.Event) {
			next.State = e.Dst
		},
	})
	if err := machine.Event(context.Background(), eventAnswer, answer); err != nil {
		m.log.Warn("Funnel transition rejected, dropping session", "key", key, "state", s.State, "error", err)
		m.sessions.Delete(key)
		return ""
	}
	next.UpdatedAt = m.now().UTC()

	texts := textsFor(next.Lang)
	if next.State == stateDone {
		m.sessions.Delete(key)
		m.complete(key, next)
		return texts.summary(next.Slots)
	}

	m.sessions.Set(key, next)
	return texts.prompts[next.Step()-1]
}

func (m *Machine) complete(key string, s Session) {
	m.mu.RLock()
	hook := m.onComplete
	m.mu.RUnlock()
	if hook == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			m.log.Error("Funnel completion hook panicked", "key", key, "error", r)
		}
	}()

	hook(key, s)
}
