package repo

import (
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

func Open(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return db, nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS knowledge_bases (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		embedding_model TEXT NOT NULL,
		vector_size BIGINT NOT NULL,
		ctime BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS files (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		mime_type TEXT NOT NULL DEFAULT '',
		store_key TEXT NOT NULL,
		knowledge_base_id TEXT NOT NULL REFERENCES knowledge_bases(id) ON DELETE CASCADE,
		status TEXT NOT NULL,
		ctime BIGINT NOT NULL,
		mtime BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_files_kb ON files(knowledge_base_id)`,
	`CREATE INDEX IF NOT EXISTS idx_files_status ON files(status)`,
	`CREATE TABLE IF NOT EXISTS assistants (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		model TEXT NOT NULL,
		system_prompt TEXT NOT NULL DEFAULT '',
		temperature DOUBLE PRECISION NOT NULL DEFAULT 0.7,
		max_tokens BIGINT NOT NULL DEFAULT 2048,
		ctime BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS assistant_knowledge_bases (
		assistant_id TEXT NOT NULL REFERENCES assistants(id) ON DELETE CASCADE,
		knowledge_base_id TEXT NOT NULL REFERENCES knowledge_bases(id) ON DELETE CASCADE,
		PRIMARY KEY (assistant_id, knowledge_base_id)
	)`,
	`CREATE TABLE IF NOT EXISTS chat_sessions (
		id TEXT PRIMARY KEY,
		assistant_id TEXT NOT NULL REFERENCES assistants(id) ON DELETE CASCADE,
		title TEXT NOT NULL DEFAULT '',
		ctime BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS chat_messages (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES chat_sessions(id) ON DELETE CASCADE,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		ctime BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_messages_session ON chat_messages(session_id, ctime)`,
}

func ApplyMigrations(db *sqlx.DB) error {
	for _, stmt := range migrations {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
