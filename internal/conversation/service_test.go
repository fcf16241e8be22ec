package conversation

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/longregen/archetype/internal/adapters/id"
	"github.com/longregen/archetype/internal/adapters/sqlite"
	"github.com/longregen/archetype/internal/domain"
	"github.com/longregen/archetype/internal/domain/models"
	"github.com/longregen/archetype/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingGateway struct {
	mu          sync.Mutex
	messages    []models.Message
	model       string
	temperature float64
}

func (g *recordingGateway) Respond(_ context.Context, messages []models.Message, schema ports.Schema, model string, temperature float64) (map[string]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.messages, g.model, g.temperature = messages, model, temperature
	out := make(map[string]string, len(schema))
	for k := range schema {
		out[k] = "A"
	}
	return out, nil
}

func newTestService(t *testing.T) (*Service, *sqlite.Store, *recordingGateway) {
	t.Helper()
	store, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "conv.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	gw := &recordingGateway{}
	return NewService(store, id.New(), gw), store, gw
}

// steppingClock advances one second per call.
func steppingClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	next := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := next
		next = next.Add(time.Second)
		return t
	}
}

func namedAgent(t *testing.T, store *sqlite.Store, agentID, name string) *models.Agent {
	t.Helper()
	a := models.NewAgent(agentID, name, "gpt-4o", 0.5)
	require.NoError(t, store.CreateAgent(context.Background(), a))
	return a
}

func TestChatHistory_Ordering(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)
	svc.now = steppingClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))

	alice := namedAgent(t, store, "ag_alice", "alice")
	bob := namedAgent(t, store, "ag_bob", "bob")
	system := namedAgent(t, store, "ag_system", "system")

	m, err := svc.CreateMeeting(ctx, "m", "")
	require.NoError(t, err)

	for _, step := range []struct {
		agent   *models.Agent
		content string
	}{
		{system, "s1"}, {alice, "a1"}, {bob, "b1"}, {alice, "a2"},
	} {
		_, err := svc.AppendChat(ctx, step.agent, m.ID, step.content)
		require.NoError(t, err)
	}

	history, err := svc.ChatHistory(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, []models.Message{
		{Role: models.MessageRoleSystem, Content: "System: s1"},
		{Role: models.MessageRoleAssistant, Content: "You: a1"},
		{Role: models.MessageRoleUser, Content: "bob: b1"},
		{Role: models.MessageRoleAssistant, Content: "You: a2"},
	}, history)

	again, err := svc.ChatHistory(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, history, again)
}

func TestAppendChat_MonotonicUnderFrozenClock(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)
	frozen := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return frozen }

	a := namedAgent(t, store, "ag_a", "a")
	m, err := svc.CreateMeeting(ctx, "m", "")
	require.NoError(t, err)

	const n = 20
	for i := 0; i < n; i++ {
		_, err := svc.AppendChat(ctx, a, m.ID, fmt.Sprintf("msg %d", i))
		require.NoError(t, err)
	}

	history, err := svc.ChatHistory(ctx, a)
	require.NoError(t, err)
	require.Len(t, history, n)
	for i, msg := range history {
		assert.Equal(t, fmt.Sprintf("You: msg %d", i), msg.Content)
	}
}

func TestAppendChat_ConcurrentAppendsAreSerialized(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)
	frozen := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return frozen }

	a := namedAgent(t, store, "ag_a", "a")
	m, err := svc.CreateMeeting(ctx, "m", "")
	require.NoError(t, err)

	const n = 16
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.AppendChat(ctx, a, m.ID, fmt.Sprintf("msg %d", i))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	chats, err := store.ListChats(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, chats, n)
	for i := 1; i < n; i++ {
		assert.True(t, chats[i].Timestamp.After(chats[i-1].Timestamp))
	}
}

func TestAppendChat_ResumesAfterStoredTimestamp(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)
	late := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return late }

	a := namedAgent(t, store, "ag_a", "a")
	m, err := svc.CreateMeeting(ctx, "m", "")
	require.NoError(t, err)
	first, err := svc.AppendChat(ctx, a, m.ID, "first")
	require.NoError(t, err)

	// A fresh service with a clock behind the stored chat.
	other := NewService(store, id.New(), &recordingGateway{})
	other.now = func() time.Time { return late.Add(-time.Hour) }
	second, err := other.AppendChat(ctx, a, m.ID, "second")
	require.NoError(t, err)
	assert.True(t, second.Timestamp.After(first.Timestamp))
}

func TestChatHistory_MeetingMembership(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)
	svc.now = steppingClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))

	speaker := namedAgent(t, store, "ag_s", "speaker")
	listener := namedAgent(t, store, "ag_l", "listener")
	outsider := namedAgent(t, store, "ag_o", "outsider")

	m, err := svc.CreateMeeting(ctx, "shared", "fw_1")
	require.NoError(t, err)
	other, err := svc.CreateMeeting(ctx, "private", "fw_1")
	require.NoError(t, err)

	require.NoError(t, svc.Join(ctx, m.ID, listener))
	_, err = svc.AppendChat(ctx, speaker, m.ID, "hello")
	require.NoError(t, err)
	_, err = svc.AppendChat(ctx, outsider, other.ID, "elsewhere")
	require.NoError(t, err)

	history, err := svc.ChatHistory(ctx, listener)
	require.NoError(t, err)
	assert.Equal(t, []models.Message{{Role: models.MessageRoleUser, Content: "speaker: hello"}}, history)

	history, err = svc.ChatHistory(ctx, outsider)
	require.NoError(t, err)
	assert.Equal(t, []models.Message{{Role: models.MessageRoleAssistant, Content: "You: elsewhere"}}, history)

	participants, err := store.ListParticipants(ctx, m.ID)
	require.NoError(t, err)
	assert.Len(t, participants, 2)
}

func TestCreateAgent(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	a, err := svc.CreateAgent(ctx, "Debate Agent", "gpt-4o", 0.8)
	require.NoError(t, err)
	assert.Regexp(t, `^Debate Agent-[a-z0-9]{4}$`, a.Name)
	assert.Equal(t, 0.8, a.Temperature)

	sys, err := svc.CreateAgent(ctx, "system", "gpt-4o", 0)
	require.NoError(t, err)
	assert.Equal(t, "system", sys.Name)
	assert.True(t, sys.IsSystem())

	_, err = svc.CreateAgent(ctx, "hot", "gpt-4o", 2.5)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = svc.CreateAgent(ctx, "", "gpt-4o", 1)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRespond_UsesHistoryAndAgentSettings(t *testing.T) {
	ctx := context.Background()
	svc, _, gw := newTestService(t)

	sys, err := svc.CreateAgent(ctx, "system", "sys-model", 0)
	require.NoError(t, err)
	agent, err := svc.CreateAgent(ctx, "Solver", "solver-model", 1.2)
	require.NoError(t, err)
	m, err := svc.CreateMeeting(ctx, "task", "")
	require.NoError(t, err)
	require.NoError(t, svc.Join(ctx, m.ID, agent))
	_, err = svc.AppendChat(ctx, sys, m.ID, "Answer the question.")
	require.NoError(t, err)

	out, err := svc.Respond(ctx, agent, ports.Schema{"answer": "letter"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"answer": "A"}, out)
	assert.Equal(t, "solver-model", gw.model)
	assert.Equal(t, 1.2, gw.temperature)
	assert.Equal(t, []models.Message{{Role: models.MessageRoleSystem, Content: "System: Answer the question."}}, gw.messages)

	svc.Release(m.ID)
	assert.Empty(t, svc.clocks)
}
