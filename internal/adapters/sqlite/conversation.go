package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/longregen/archetype/internal/domain"
	"github.com/longregen/archetype/internal/domain/models"
)

func (s *Store) CreateAgent(ctx context.Context, agent *models.Agent) error {
	_, err := s.exec(ctx, "create agent",
		`INSERT INTO agent (id, name, model, temperature, created_at) VALUES (?, ?, ?, ?, ?)`,
		agent.ID, agent.Name, agent.Model, agent.Temperature, toMicros(agent.CreatedAt))
	return err
}

func (s *Store) GetAgent(ctx context.Context, id string) (*models.Agent, error) {
	var a models.Agent
	var created int64
	err := s.conn(ctx).QueryRowContext(ctx,
		`SELECT id, name, model, temperature, created_at FROM agent WHERE id = ?`, id).
		Scan(&a.ID, &a.Name, &a.Model, &a.Temperature, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrAgentNotFound, id)
		}
		return nil, fmt.Errorf("get agent: %w", err)
	}
	a.CreatedAt = fromMicros(created)
	return &a, nil
}

func (s *Store) CreateMeeting(ctx context.Context, meeting *models.Meeting) error {
	_, err := s.exec(ctx, "create meeting",
		`INSERT INTO meeting (id, name, framework_id, created_at) VALUES (?, ?, ?, ?)`,
		meeting.ID, meeting.Name, nullString(meeting.FrameworkID), toMicros(meeting.CreatedAt))
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMeeting(row rowScanner) (*models.Meeting, error) {
	var m models.Meeting
	var frameworkID sql.NullString
	var created int64
	if err := row.Scan(&m.ID, &m.Name, &frameworkID, &created); err != nil {
		return nil, err
	}
	m.FrameworkID = frameworkID.String
	m.CreatedAt = fromMicros(created)
	return &m, nil
}

func (s *Store) GetMeeting(ctx context.Context, id string) (*models.Meeting, error) {
	m, err := scanMeeting(s.conn(ctx).QueryRowContext(ctx,
		`SELECT id, name, framework_id, created_at FROM meeting WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrMeetingNotFound, id)
		}
		return nil, fmt.Errorf("get meeting: %w", err)
	}
	return m, nil
}

func (s *Store) ListMeetingsByFramework(ctx context.Context, frameworkID string) ([]*models.Meeting, error) {
	rows, err := s.conn(ctx).QueryContext(ctx,
		`SELECT id, name, framework_id, created_at FROM meeting WHERE framework_id = ? ORDER BY created_at, id`,
		frameworkID)
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

func (s *Store) AddParticipant(ctx context.Context, link *models.AgentMeeting) error {
	_, err := s.exec(ctx, "add participant",
		`INSERT INTO agents_by_meeting (agent_id, meeting_id, created_at) VALUES (?, ?, ?)
		ON CONFLICT (agent_id, meeting_id) DO NOTHING`,
		link.AgentID, link.MeetingID, toMicros(link.CreatedAt))
	return err
}

func (s *Store) ListParticipants(ctx context.Context, meetingID string) ([]*models.Agent, error) {
	rows, err := s.conn(ctx).QueryContext(ctx,
		`SELECT a.id, a.name, a.model, a.temperature, a.created_at
		FROM agents_by_meeting am
		JOIN agent a ON a.id = am.agent_id
		WHERE am.meeting_id = ?
		ORDER BY am.created_at, a.id`, meetingID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	var agents []*models.Agent
	for rows.Next() {
		var a models.Agent
		var created int64
		if err := rows.Scan(&a.ID, &a.Name, &a.Model, &a.Temperature, &created); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		a.CreatedAt = fromMicros(created)
		agents = append(agents, &a)
	}
	return agents, rows.Err()
}

func (s *Store) AppendChat(ctx context.Context, chat *models.Chat) error {
	ts := toMicros(chat.Timestamp)
	return s.WithTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.exec(ctx, "add participant",
			`INSERT INTO agents_by_meeting (agent_id, meeting_id, created_at) VALUES (?, ?, ?)
			ON CONFLICT (agent_id, meeting_id) DO NOTHING`,
			chat.AgentID, chat.MeetingID, ts); err != nil {
			return err
		}
		_, err := s.exec(ctx, "append chat",
			`INSERT INTO chat (id, agent_id, meeting_id, content, timestamp) VALUES (?, ?, ?, ?, ?)`,
			chat.ID, chat.AgentID, chat.MeetingID, chat.Content, ts)
		return err
	})
}

func (s *Store) LatestChatTimestamp(ctx context.Context, meetingID string) (time.Time, error) {
	var latest sql.NullInt64
	err := s.conn(ctx).QueryRowContext(ctx,
		`SELECT MAX(timestamp) FROM chat WHERE meeting_id = ?`, meetingID).Scan(&latest)
	if err != nil {
		return time.Time{}, fmt.Errorf("latest chat timestamp: %w", err)
	}
	if !latest.Valid {
		return time.Time{}, nil
	}
	return fromMicros(latest.Int64), nil
}

const historyColumns = `c.id, c.agent_id, c.meeting_id, c.content, c.timestamp, a.name`

func (s *Store) ListChats(ctx context.Context, meetingID string) ([]*models.HistoryChat, error) {
	rows, err := s.conn(ctx).QueryContext(ctx,
		`SELECT `+historyColumns+`
		FROM chat c
		JOIN agent a ON a.id = c.agent_id
		WHERE c.meeting_id = ?
		ORDER BY c.timestamp, c.id`, meetingID)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	return collectHistory(rows)
}

func (s *Store) AgentHistory(ctx context.Context, agentID string) ([]*models.HistoryChat, error) {
	rows, err := s.conn(ctx).QueryContext(ctx,
		`SELECT `+historyColumns+`
		FROM chat c
		JOIN agent a ON a.id = c.agent_id
		WHERE c.meeting_id IN (SELECT meeting_id FROM agents_by_meeting WHERE agent_id = ?)
		ORDER BY c.timestamp, c.id`, agentID)
	if err != nil {
		return nil, fmt.Errorf("agent history: %w", err)
	}
	return collectHistory(rows)
}

func collectHistory(rows *sql.Rows) ([]*models.HistoryChat, error) {
	defer rows.Close()

	var chats []*models.HistoryChat
	for rows.Next() {
		var c models.HistoryChat
		var ts int64
		if err := rows.Scan(&c.ID, &c.AgentID, &c.MeetingID, &c.Content, &ts, &c.AgentName); err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		c.Timestamp = fromMicros(ts)
		chats = append(chats, &c)
	}
	return chats, rows.Err()
}
