package repository

import "context"

// migrate creates the repository tables
func (s *PGStore) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS petasos_tasks (
		id TEXT PRIMARY KEY,
		business_id TEXT,
		performer TEXT,
		status TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		body JSONB NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_petasos_tasks_performer ON petasos_tasks(performer, status);
	CREATE INDEX IF NOT EXISTS idx_petasos_tasks_created_at ON petasos_tasks(created_at);

	CREATE TABLE IF NOT EXISTS petasos_registrations (
		name TEXT PRIMARY KEY,
		plant TEXT,
		kind TEXT NOT NULL,
		status TEXT NOT NULL,
		registered_at TIMESTAMPTZ NOT NULL,
		body JSONB NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_petasos_registrations_plant ON petasos_registrations(plant);
	`

	_, err := s.pool.Exec(ctx, schema)
	return err
}
