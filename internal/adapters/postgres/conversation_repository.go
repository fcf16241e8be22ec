package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/longregen/archetype/internal/domain"
	"github.com/longregen/archetype/internal/domain/models"
)

type ConversationRepository struct {
	BaseRepository
}

func NewConversationRepository(pool *pgxpool.Pool) *ConversationRepository {
	return &ConversationRepository{
		BaseRepository: NewBaseRepository(pool),
	}
}

func (r *ConversationRepository) CreateAgent(ctx context.Context, agent *models.Agent) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO agent (id, name, model, temperature, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.exec(ctx, "create agent", query,
		agent.ID, agent.Name, agent.Model, agent.Temperature, agent.CreatedAt)
	return err
}

func (r *ConversationRepository) GetAgent(ctx context.Context, id string) (*models.Agent, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `SELECT id, name, model, temperature, created_at FROM agent WHERE id = $1`

	var a models.Agent
	err := r.conn(ctx).QueryRow(ctx, query, id).Scan(&a.ID, &a.Name, &a.Model, &a.Temperature, &a.CreatedAt)
	if err != nil {
		if checkNoRows(err) {
			return nil, fmt.Errorf("%w: %s", domain.ErrAgentNotFound, id)
		}
		return nil, fmt.Errorf("get agent: %w", err)
	}
	a.CreatedAt = a.CreatedAt.UTC()
	return &a, nil
}

func (r *ConversationRepository) CreateMeeting(ctx context.Context, meeting *models.Meeting) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO meeting (id, name, framework_id, created_at)
		VALUES ($1, $2, $3, $4)`

	_, err := r.exec(ctx, "create meeting", query,
		meeting.ID, meeting.Name, nullString(meeting.FrameworkID), meeting.CreatedAt)
	return err
}

func (r *ConversationRepository) GetMeeting(ctx context.Context, id string) (*models.Meeting, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `SELECT id, name, framework_id, created_at FROM meeting WHERE id = $1`

	m, err := scanMeeting(r.conn(ctx).QueryRow(ctx, query, id))
	if err != nil {
		if checkNoRows(err) {
			return nil, fmt.Errorf("%w: %s", domain.ErrMeetingNotFound, id)
		}
		return nil, fmt.Errorf("get meeting: %w", err)
	}
	return m, nil
}

func (r *ConversationRepository) ListMeetingsByFramework(ctx context.Context, frameworkID string) ([]*models.Meeting, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		SELECT id, name, framework_id, created_at FROM meeting
		WHERE framework_id = $1
		ORDER BY created_at, id`

	rows, err := r.conn(ctx).Query(ctx, query, frameworkID)
	if err != nil {
		return nil, fmt.Errorf("list meetings: %w", err)
	}
	defer rows.Close()

	var meetings []*models.Meeting
	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			return nil, fmt.Errorf("scan meeting: %w", err)
		}
		meetings = append(meetings, m)
	}
	return meetings, rows.Err()
}

func scanMeeting(row pgx.Row) (*models.Meeting, error) {
	var m models.Meeting
	var frameworkID sql.NullString
	if err := row.Scan(&m.ID, &m.Name, &frameworkID, &m.CreatedAt); err != nil {
		return nil, err
	}
	m.FrameworkID = getString(frameworkID)
	m.CreatedAt = m.CreatedAt.UTC()
	return &m, nil
}

func (r *ConversationRepository) AddParticipant(ctx context.Context, link *models.AgentMeeting) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO agents_by_meeting (agent_id, meeting_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (agent_id, meeting_id) DO NOTHING`

	_, err := r.exec(ctx, "add participant", query, link.AgentID, link.MeetingID, link.CreatedAt)
	return err
}

func (r *ConversationRepository) ListParticipants(ctx context.Context, meetingID string) ([]*models.Agent, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		SELECT a.id, a.name, a.model, a.temperature, a.created_at
		FROM agents_by_meeting am
		JOIN agent a ON a.id = am.agent_id
		WHERE am.meeting_id = $1
		ORDER BY am.created_at, a.id`

	rows, err := r.conn(ctx).Query(ctx, query, meetingID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	var agents []*models.Agent
	for rows.Next() {
		var a models.Agent
		if err := rows.Scan(&a.ID, &a.Name, &a.Model, &a.Temperature, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		a.CreatedAt = a.CreatedAt.UTC()
		agents = append(agents, &a)
	}
	return agents, rows.Err()
}

// AppendChat writes the chat and, in the same statement, the speaker's
// participation row.
func (r *ConversationRepository) AppendChat(ctx context.Context, chat *models.Chat) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		WITH participant AS (
			INSERT INTO agents_by_meeting (agent_id, meeting_id, created_at)
			VALUES ($2, $3, $5)
			ON CONFLICT (agent_id, meeting_id) DO NOTHING
		)
		INSERT INTO chat (id, agent_id, meeting_id, content, timestamp)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.exec(ctx, "append chat", query,
		chat.ID, chat.AgentID, chat.MeetingID, chat.Content, chat.Timestamp)
	return err
}

func (r *ConversationRepository) LatestChatTimestamp(ctx context.Context, meetingID string) (time.Time, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var latest sql.NullTime
	err := r.conn(ctx).QueryRow(ctx, `SELECT MAX(timestamp) FROM chat WHERE meeting_id = $1`, meetingID).Scan(&latest)
	if err != nil {
		return time.Time{}, fmt.Errorf("latest chat timestamp: %w", err)
	}
	if !latest.Valid {
		return time.Time{}, nil
	}
	return latest.Time.UTC(), nil
}

const historyColumns = `c.id, c.agent_id, c.meeting_id, c.content, c.timestamp, a.name`

func (r *ConversationRepository) ListChats(ctx context.Context, meetingID string) ([]*models.HistoryChat, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		SELECT ` + historyColumns + `
		FROM chat c
		JOIN agent a ON a.id = c.agent_id
		WHERE c.meeting_id = $1
		ORDER BY c.timestamp, c.id`

	rows, err := r.conn(ctx).Query(ctx, query, meetingID)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	return collectHistory(rows)
}

func (r *ConversationRepository) AgentHistory(ctx context.Context, agentID string) ([]*models.HistoryChat, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		SELECT ` + historyColumns + `
		FROM chat c
		JOIN agent a ON a.id = c.agent_id
		WHERE c.meeting_id IN (
			SELECT meeting_id FROM agents_by_meeting WHERE agent_id = $1
		)
		ORDER BY c.timestamp, c.id`

	rows, err := r.conn(ctx).Query(ctx, query, agentID)
	if err != nil {
		return nil, fmt.Errorf("agent history: %w", err)
	}
	return collectHistory(rows)
}

func collectHistory(rows pgx.Rows) ([]*models.HistoryChat, error) {
	defer rows.Close()

	var chats []*models.HistoryChat
	for rows.Next() {
		var c models.HistoryChat
		if err := rows.Scan(&c.ID, &c.AgentID, &c.MeetingID, &c.Content, &c.Timestamp, &c.AgentName); err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		c.Timestamp = c.Timestamp.UTC()
		chats = append(chats, &c)
	}
	return chats, rows.Err()
}
