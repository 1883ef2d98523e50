package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS folders (
			folder_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			color TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS conversations (
			conversation_id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			archived INTEGER NOT NULL DEFAULT 0,
			pinned INTEGER NOT NULL DEFAULT 0,
			folder_id TEXT,
			agent_roles TEXT,
			active_participants TEXT,
			turn_policy TEXT NOT NULL DEFAULT 'cyclic',
			loop_state TEXT NOT NULL DEFAULT 'IDLE',
			last_activity DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (folder_id) REFERENCES folders(folder_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_activity ON conversations(pinned, last_activity)`,
		`CREATE TABLE IF NOT EXISTS messages (
			message_id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			participant_id TEXT,
			response_time_ms INTEGER NOT NULL DEFAULT 0,
			thought_process TEXT,
			tool_calls TEXT,
			tool_name TEXT,
			parent_message_id TEXT,
			prompt_group_id TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (conversation_id) REFERENCES conversations(conversation_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS chat_files (
			file_id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			message_id TEXT,
			file_name TEXT NOT NULL,
			file_url TEXT NOT NULL,
			file_type TEXT,
			file_size INTEGER NOT NULL DEFAULT 0,
			folder_path TEXT,
			file_category TEXT,
			extracted_content TEXT,
			analysis_summary TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (conversation_id) REFERENCES conversations(conversation_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_files_conversation ON chat_files(conversation_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS memories (
			memory_id TEXT PRIMARY KEY,
			participant_id TEXT NOT NULL,
			memory_type TEXT NOT NULL,
			key TEXT NOT NULL,
			content TEXT NOT NULL,
			context TEXT,
			importance_score REAL NOT NULL DEFAULT 5,
			access_count INTEGER NOT NULL DEFAULT 0,
			last_accessed DATETIME,
			embedding TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_memories_participant ON memories(participant_id, importance_score)`,
		`CREATE TABLE IF NOT EXISTS conversation_summaries (
			summary_id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			participant_id TEXT NOT NULL,
			summary TEXT,
			key_insights TEXT,
			learned_facts TEXT,
			user_preferences TEXT,
			follow_up_topics TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (conversation_id) REFERENCES conversations(conversation_id)
		)`,
		`CREATE TABLE IF NOT EXISTS code_canvases (
			canvas_id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL UNIQUE,
			language TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT,
			content TEXT NOT NULL,
			version INTEGER NOT NULL DEFAULT 1,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (conversation_id) REFERENCES conversations(conversation_id)
		)`,
		`CREATE TABLE IF NOT EXISTS tool_configs (
			tool_config_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT,
			base_url TEXT NOT NULL,
			common_headers TEXT,
			auth_type TEXT NOT NULL DEFAULT 'none',
			auth_token TEXT,
			auth_header_name TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS tool_schemas (
			tool_schema_id TEXT PRIMARY KEY,
			tool_name TEXT NOT NULL,
			participant_id TEXT NOT NULL,
			tool_config_id TEXT NOT NULL,
			description TEXT,
			endpoint_path TEXT NOT NULL,
			http_method TEXT NOT NULL,
			parameters_schema TEXT,
			response_schema TEXT,
			enabled INTEGER NOT NULL DEFAULT 1,
			FOREIGN KEY (tool_config_id) REFERENCES tool_configs(tool_config_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tool_schemas_participant ON tool_schemas(participant_id, tool_name)`,
		`CREATE TABLE IF NOT EXISTS role_proposals (
			proposal_id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			proposer_id TEXT,
			participant_id TEXT NOT NULL,
			new_role TEXT NOT NULL,
			justification TEXT,
			status TEXT NOT NULL DEFAULT 'PENDING',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			decided_at DATETIME,
			FOREIGN KEY (conversation_id) REFERENCES conversations(conversation_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_role_proposals_status ON role_proposals(status, created_at)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}

	// Columns added after the first schema (SQLite has limited ALTER TABLE support).
	if err := s.ensureColumn("conversations", "turn_policy", "ALTER TABLE conversations ADD COLUMN turn_policy TEXT NOT NULL DEFAULT 'cyclic'"); err != nil {
		return err
	}
	if err := s.ensureColumn("chat_files", "folder_path", "ALTER TABLE chat_files ADD COLUMN folder_path TEXT"); err != nil {
		return err
	}
	return nil
}

func (s *SQLiteStore) ensureColumn(tableName, columnName, ddl string) error {
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull int
		var dfltValue sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return err
		}
		if name == columnName {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	_, err = s.db.Exec(ddl)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullStringBytes(b []byte) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// encodeJSON marshals v into a nullable TEXT column.
func encodeJSON(v interface{}) (sql.NullString, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	if string(data) == "null" {
		return sql.NullString{}, nil
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// decodeJSON unmarshals a nullable TEXT column into v, leaving v untouched when NULL.
func decodeJSON(col sql.NullString, v interface{}) error {
	if !col.Valid || col.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(col.String), v)
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
