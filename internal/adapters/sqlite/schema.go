package sqlite

import "context"

const schema = `
CREATE TABLE IF NOT EXISTS agent (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	model TEXT NOT NULL,
	temperature REAL NOT NULL CHECK (temperature >= 0 AND temperature <= 2),
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS meeting (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	framework_id TEXT,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_meeting_framework ON meeting(framework_id);

CREATE TABLE IF NOT EXISTS agents_by_meeting (
	agent_id TEXT NOT NULL REFERENCES agent(id),
	meeting_id TEXT NOT NULL REFERENCES meeting(id),
	created_at INTEGER NOT NULL,
	PRIMARY KEY (agent_id, meeting_id)
);
CREATE INDEX IF NOT EXISTS idx_abm_meeting ON agents_by_meeting(meeting_id);

CREATE TABLE IF NOT EXISTS chat (
	id TEXT PRIMARY KEY,
	agent_id TEXT NOT NULL REFERENCES agent(id),
	meeting_id TEXT NOT NULL REFERENCES meeting(id),
	content TEXT NOT NULL,
	timestamp INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chat_meeting_ts ON chat(meeting_id, timestamp, id);

CREATE TABLE IF NOT EXISTS population (
	id TEXT PRIMARY KEY,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS generation (
	id TEXT PRIMARY KEY,
	population_id TEXT NOT NULL REFERENCES population(id),
	idx INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	UNIQUE (population_id, idx)
);

CREATE TABLE IF NOT EXISTS cluster (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT NOT NULL,
	generation_id TEXT NOT NULL REFERENCES generation(id),
	population_id TEXT NOT NULL REFERENCES population(id),
	centroid TEXT
);
CREATE INDEX IF NOT EXISTS idx_cluster_population ON cluster(population_id);

CREATE TABLE IF NOT EXISTS framework (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	code TEXT NOT NULL,
	thought_process TEXT NOT NULL,
	population_id TEXT NOT NULL REFERENCES population(id),
	cluster_id TEXT REFERENCES cluster(id),
	parent_id TEXT,
	directive TEXT,
	generation_index INTEGER NOT NULL DEFAULT 0,
	debug_attempts INTEGER NOT NULL DEFAULT 0,
	fitness REAL NOT NULL DEFAULT 0,
	descriptor TEXT,
	ci_lower REAL,
	ci_upper REAL,
	ci_median REAL,
	ci_sample_size INTEGER,
	ci_confidence_level REAL,
	test_ci_lower REAL,
	test_ci_upper REAL,
	test_ci_median REAL,
	test_ci_sample_size INTEGER,
	test_ci_confidence_level REAL,
	created_at INTEGER NOT NULL,
	CHECK (ci_median IS NULL OR (ci_lower <= ci_median AND ci_median <= ci_upper))
);
CREATE INDEX IF NOT EXISTS idx_framework_population ON framework(population_id, created_at);

CREATE TABLE IF NOT EXISTS cluster_member (
	cluster_id TEXT NOT NULL REFERENCES cluster(id),
	framework_id TEXT NOT NULL REFERENCES framework(id),
	PRIMARY KEY (cluster_id, framework_id)
);
`

func (s *Store) initSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}
