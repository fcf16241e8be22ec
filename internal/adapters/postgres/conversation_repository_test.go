package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/longregen/archetype/internal/adapters/retry"
	"github.com/longregen/archetype/internal/domain"
	"github.com/longregen/archetype/internal/domain/models"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newConversationRepo() *ConversationRepository {
	return &ConversationRepository{
		BaseRepository: BaseRepository{pool: nil},
	}
}

func TestConversationRepository_CreateAgent(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	agent := models.NewAgent("ag_1", "Critic ab12", "gpt-4o-mini", 0.7)

	mock.ExpectExec("INSERT INTO agent").
		WithArgs(agent.ID, agent.Name, agent.Model, agent.Temperature, agent.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = newConversationRepo().CreateAgent(setupMockContext(mock), agent)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConversationRepository_GetAgent(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now().UTC()
	rows := pgxmock.NewRows([]string{"id", "name", "model", "temperature", "created_at"}).
		AddRow("ag_1", "system", "gpt-4o-mini", 0.0, now)

	mock.ExpectQuery("SELECT (.+) FROM agent WHERE id").
		WithArgs("ag_1").
		WillReturnRows(rows)

	agent, err := newConversationRepo().GetAgent(setupMockContext(mock), "ag_1")
	require.NoError(t, err)
	assert.Equal(t, "system", agent.Name)
	assert.True(t, agent.IsSystem())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConversationRepository_GetAgent_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT (.+) FROM agent WHERE id").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err = newConversationRepo().GetAgent(setupMockContext(mock), "missing")
	assert.ErrorIs(t, err, domain.ErrAgentNotFound)
}

func TestConversationRepository_CreateMeeting_NullFramework(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	meeting := models.NewMeeting("mt_1", "debate", "")

	mock.ExpectExec("INSERT INTO meeting").
		WithArgs(meeting.ID, meeting.Name, sql.NullString{}, meeting.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, newConversationRepo().CreateMeeting(setupMockContext(mock), meeting))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConversationRepository_GetMeeting(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now().UTC()
	rows := pgxmock.NewRows([]string{"id", "name", "framework_id", "created_at"}).
		AddRow("mt_1", "debate", sql.NullString{String: "fw_1", Valid: true}, now)

	mock.ExpectQuery("SELECT (.+) FROM meeting WHERE id").
		WithArgs("mt_1").
		WillReturnRows(rows)

	meeting, err := newConversationRepo().GetMeeting(setupMockContext(mock), "mt_1")
	require.NoError(t, err)
	assert.Equal(t, "fw_1", meeting.FrameworkID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConversationRepository_AddParticipant_Idempotent(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	link := &models.AgentMeeting{AgentID: "ag_1", MeetingID: "mt_1", CreatedAt: time.Now().UTC()}

	mock.ExpectExec("INSERT INTO agents_by_meeting (.+) ON CONFLICT").
		WithArgs(link.AgentID, link.MeetingID, link.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO agents_by_meeting (.+) ON CONFLICT").
		WithArgs(link.AgentID, link.MeetingID, link.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	repo := newConversationRepo()
	ctx := setupMockContext(mock)
	require.NoError(t, repo.AddParticipant(ctx, link))
	require.NoError(t, repo.AddParticipant(ctx, link))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConversationRepository_AppendChat(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	chat := &models.Chat{ID: "ch_1", AgentID: "ag_1", MeetingID: "mt_1", Content: "hello", Timestamp: time.Now().UTC()}

	mock.ExpectExec("WITH participant AS (.+) INSERT INTO chat").
		WithArgs(chat.ID, chat.AgentID, chat.MeetingID, chat.Content, chat.Timestamp).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, newConversationRepo().AppendChat(setupMockContext(mock), chat))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConversationRepository_AppendChat_Conflict(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		conflict bool
	}{
		{"unique violation", &pgconn.PgError{Code: "23505", Message: "duplicate key"}, true},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, true},
		{"foreign key violation", &pgconn.PgError{Code: "23503"}, false},
		{"connection error", errors.New("connection reset"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			chat := &models.Chat{ID: "ch_1", AgentID: "ag_1", MeetingID: "mt_1", Content: "x", Timestamp: time.Now().UTC()}
			mock.ExpectExec("INSERT INTO chat").
				WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
				WillReturnError(tt.err)

			err = newConversationRepo().AppendChat(setupMockContext(mock), chat)
			require.Error(t, err)
			assert.Equal(t, tt.conflict, errors.Is(err, domain.ErrPersistenceConflict))
		})
	}
}

// poolRepo runs outside a transaction so single writes retry on their own.
func poolRepo(mock pgxmock.PgxPoolIface, retries int) BaseRepository {
	return BaseRepository{
		db: mock,
		backoff: retry.BackoffConfig{
			InitialInterval: time.Millisecond,
			MaxInterval:     time.Millisecond,
			MaxRetries:      retries,
			Multiplier:      1,
		},
	}
}

func TestConversationRepository_CreateAgent_RetriesConflict(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	agent := models.NewAgent("ag_1", "Critic-ab12", "gpt-4o-mini", 0.7)
	mock.ExpectExec("INSERT INTO agent").
		WithArgs(agent.ID, agent.Name, agent.Model, agent.Temperature, agent.CreatedAt).
		WillReturnError(&pgconn.PgError{Code: "40001"})
	mock.ExpectExec("INSERT INTO agent").
		WithArgs(agent.ID, agent.Name, agent.Model, agent.Temperature, agent.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	repo := &ConversationRepository{BaseRepository: poolRepo(mock, 2)}
	require.NoError(t, repo.CreateAgent(context.Background(), agent))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConversationRepository_AppendChat_ConflictExhausted(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	chat := &models.Chat{ID: "ch_1", AgentID: "ag_1", MeetingID: "mt_1", Content: "x", Timestamp: time.Now().UTC()}
	for i := 0; i < 2; i++ {
		mock.ExpectExec("INSERT INTO chat").
			WithArgs(chat.ID, chat.AgentID, chat.MeetingID, chat.Content, chat.Timestamp).
			WillReturnError(&pgconn.PgError{Code: "40P01"})
	}

	repo := &ConversationRepository{BaseRepository: poolRepo(mock, 1)}
	err = repo.AppendChat(context.Background(), chat)
	assert.ErrorIs(t, err, domain.ErrPersistenceConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConversationRepository_CreateMeeting_OtherErrorsAreNotRetried(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	meeting := models.NewMeeting("mt_1", "design", "fw_missing")
	mock.ExpectExec("INSERT INTO meeting").
		WithArgs(meeting.ID, meeting.Name, pgxmock.AnyArg(), meeting.CreatedAt).
		WillReturnError(&pgconn.PgError{Code: "23503"})

	repo := &ConversationRepository{BaseRepository: poolRepo(mock, 3)}
	err = repo.CreateMeeting(context.Background(), meeting)
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrPersistenceConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConversationRepository_LatestChatTimestamp(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT MAX(timestamp) FROM chat")).
		WithArgs("mt_1").
		WillReturnRows(pgxmock.NewRows([]string{"max"}).AddRow(sql.NullTime{Time: ts, Valid: true}))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT MAX(timestamp) FROM chat")).
		WithArgs("mt_2").
		WillReturnRows(pgxmock.NewRows([]string{"max"}).AddRow(sql.NullTime{}))

	repo := newConversationRepo()
	ctx := setupMockContext(mock)

	got, err := repo.LatestChatTimestamp(ctx, "mt_1")
	require.NoError(t, err)
	assert.True(t, got.Equal(ts))

	got, err = repo.LatestChatTimestamp(ctx, "mt_2")
	require.NoError(t, err)
	assert.True(t, got.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConversationRepository_AgentHistory(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := pgxmock.NewRows([]string{"id", "agent_id", "meeting_id", "content", "timestamp", "name"}).
		AddRow("ch_1", "ag_sys", "mt_1", "s1", base.Add(1*time.Microsecond), "system").
		AddRow("ch_2", "ag_alice", "mt_1", "a1", base.Add(2*time.Microsecond), "alice").
		AddRow("ch_3", "ag_bob", "mt_1", "b1", base.Add(3*time.Microsecond), "bob")

	mock.ExpectQuery("SELECT (.+) FROM chat c JOIN agent a (.+) agents_by_meeting (.+) ORDER BY c.timestamp, c.id").
		WithArgs("ag_alice").
		WillReturnRows(rows)

	chats, err := newConversationRepo().AgentHistory(setupMockContext(mock), "ag_alice")
	require.NoError(t, err)
	require.Len(t, chats, 3)
	assert.Equal(t, "system", chats[0].AgentName)
	assert.Equal(t, "a1", chats[1].Content)
	assert.Equal(t, "bob", chats[2].AgentName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConversationRepository_ListParticipants(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now().UTC()
	rows := pgxmock.NewRows([]string{"id", "name", "model", "temperature", "created_at"}).
		AddRow("ag_1", "alice", "m", 0.5, now).
		AddRow("ag_2", "bob", "m", 0.9, now)

	mock.ExpectQuery("SELECT (.+) FROM agents_by_meeting am JOIN agent a").
		WithArgs("mt_1").
		WillReturnRows(rows)

	agents, err := newConversationRepo().ListParticipants(setupMockContext(mock), "mt_1")
	require.NoError(t, err)
	require.Len(t, agents, 2)
	assert.Equal(t, "bob", agents[1].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}
