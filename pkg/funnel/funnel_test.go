package funnel

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salesbot/pkg/store"
)

func TestFunnelRoundTrip(t *testing.T) {
	m := New(store.NewMemory[Session](0))
	const key = "t1:telegram:42"

	require.Equal(t, Prompt("ru", 1), m.Start(key, "ru"))
	require.True(t, m.Has(key))
	require.Equal(t, 1, m.Step(key))

	require.Equal(t, Prompt("ru", 2), m.Next(key, "цемент"))
	require.Equal(t, 2, m.Step(key))

	require.Equal(t, Prompt("ru", 3), m.Next(key, "М500, 40 мешков"))
	require.Equal(t, 3, m.Step(key))

	summary := m.Next(key, "до 100 000")
	assert.Contains(t, summary, "цемент")
	assert.Contains(t, summary, "М500, 40 мешков")
	assert.Contains(t, summary, "до 100 000")
	assert.False(t, m.Has(key))
	assert.Equal(t, 0, m.Step(key))
}

func TestFunnelStoresFSMState(t *testing.T) {
	sessions := store.NewMemory[Session](0)
	m := New(sessions)
	const key = "k"

	m.Start(key, "ru")
	s, ok := sessions.Get(key)
	require.True(t, ok)
	assert.Equal(t, SlotWhat, s.State)

	m.Next(key, " цемент ")
	s, _ = sessions.Get(key)
	assert.Equal(t, SlotSpec, s.State)
	assert.Equal(t, 2, s.Step())
	assert.Equal(t, map[string]string{SlotWhat: "цемент"}, s.Slots)
}

func TestFunnelDropsSessionInUnknownState(t *testing.T) {
	sessions := store.NewMemory[Session](0)
	m := New(sessions)

	sessions.Set("done", Session{State: stateDone, Lang: "ru", Slots: map[string]string{}})
	sessions.Set("junk", Session{State: "confirm", Lang: "ru"})

	for _, key := range []string{"done", "junk"} {
		assert.Equal(t, 0, m.Step(key), key)
		assert.Equal(t, "", m.Next(key, "цемент"), key)
		assert.False(t, m.Has(key), key)
	}
}

func TestFunnelSummaryUsesPlaceholderForEmptyAnswers(t *testing.T) {
	m := New(nil)
	const key = "k"

	m.Start(key, "kk")
	m.Next(key, "")
	m.Next(key, "  ")
	summary := m.Next(key, "50000")

	assert.Equal(t, 2, strings.Count(summary, emptySlot))
	assert.Contains(t, summary, "50000")
	assert.Contains(t, summary, "Рахмет")
}

func TestFunnelNextWithoutSessionIsEmpty(t *testing.T) {
	m := New(nil)
	assert.Equal(t, "", m.Next("missing", "anything"))
	assert.False(t, m.Has("missing"))
}

func TestFunnelCancelIsIdempotent(t *testing.T) {
	m := New(nil)
	const key = "k"

	m.Cancel(key)
	m.Start(key, "ru")
	m.Cancel(key)
	m.Cancel(key)

	assert.False(t, m.Has(key))
	assert.Equal(t, "", m.Next(key, "цемент"))
}

func TestFunnelStartRestartsOpenSession(t *testing.T) {
	m := New(nil)
	const key = "k"

	m.Start(key, "ru")
	m.Next(key, "цемент")
	require.Equal(t, 2, m.Step(key))

	assert.Equal(t, Prompt("kk", 1), m.Start(key, "kk"))
	assert.Equal(t, 1, m.Step(key))
	assert.Equal(t, Prompt("kk", 2), m.Next(key, "кірпіш"))
}

func TestFunnelSessionsAreIsolatedPerKey(t *testing.T) {
	m := New(nil)

	m.Start("a", "ru")
	m.Start("b", "ru")
	m.Next("a", "цемент")

	assert.Equal(t, 2, m.Step("a"))
	assert.Equal(t, 1, m.Step("b"))
}

func TestFunnelCompletionHook(t *testing.T) {
	m := New(nil)

	var (
		mu     sync.Mutex
		gotKey string
		got    Session
	)
	m.OnComplete(func(key string, s Session) {
		mu.Lock()
		defer mu.Unlock()
		gotKey, got = key, s
	})

	m.Start("k", "ru")
	m.Next("k", "плитка")
	m.Next("k", "30x30")
	m.Next("k", "20000")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "k", gotKey)
	assert.Equal(t, "ru", got.Lang)
	assert.Equal(t, stateDone, got.State)
	assert.Equal(t, map[string]string{SlotWhat: "плитка", SlotSpec: "30x30", SlotBudget: "20000"}, got.Slots)
}

func TestFunnelHookPanicDoesNotBreakSummary(t *testing.T) {
	m := New(nil)
	m.OnComplete(func(string, Session) { panic("lead store down") })

	m.Start("k", "ru")
	m.Next("k", "a")
	m.Next("k", "b")

	assert.NotEmpty(t, m.Next("k", "c"))
	assert.False(t, m.Has("k"))
}

func TestFunnelSessionExpiresWithStoreTTL(t *testing.T) {
	sessions := store.NewMemory[Session](time.Nanosecond)
	m := New(sessions)

	m.Start("k", "ru")
	time.Sleep(5 * time.Millisecond)

	assert.False(t, m.Has("k"))
	assert.Equal(t, "", m.Next("k", "цемент"))
}

func TestPromptOutOfRange(t *testing.T) {
	assert.Equal(t, "", Prompt("ru", 0))
	assert.Equal(t, "", Prompt("ru", 4))
	assert.Equal(t, Prompt("ru", 1), Prompt("xx", 1))
}
