package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/dd0wney/cluso-petasos/pkg/participant"
	"github.com/dd0wney/cluso-petasos/pkg/task"
)

// SaveTask inserts or replaces a task
func (s *PGStore) SaveTask(ctx context.Context, t *task.ActionableTask) error {
	if t == nil || t.ID.IsZero() {
		return task.ErrMissingTaskID
	}
	body, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	query := `
		INSERT INTO petasos_tasks (id, business_id, performer, status, created_at, updated_at, body)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			performer = EXCLUDED.performer,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at,
			body = EXCLUDED.body
	`

	_, err = s.pool.Exec(ctx, query,
		t.ID.ID,
		t.ID.BusinessID,
		t.Performer,
		string(t.Status),
		t.CreationInstant,
		t.UpdateInstant,
		body,
	)
	if err != nil {
		return fmt.Errorf("failed to save task %s: %w", t.ID.ID, err)
	}
	return nil
}

// DeleteTask removes a task; deleting a missing task is not an error
func (s *PGStore) DeleteTask(ctx context.Context, id task.TaskID) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM petasos_tasks WHERE id = $1`, id.ID); err != nil {
		return fmt.Errorf("failed to delete task %s: %w", id.ID, err)
	}
	return nil
}

// ListTasks returns all tasks, oldest first
func (s *PGStore) ListTasks(ctx context.Context) ([]*task.ActionableTask, error) {
	rows, err := s.pool.Query(ctx, `SELECT body FROM petasos_tasks ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*task.ActionableTask
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		t := &task.ActionableTask{}
		if err := json.Unmarshal(body, t); err != nil {
			return nil, fmt.Errorf("failed to unmarshal task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	return tasks, nil
}

// SaveRegistration inserts or replaces a participant registration
func (s *PGStore) SaveRegistration(ctx context.Context, reg participant.Registration) error {
	body, err := json.Marshal(reg)
	if err != nil {
		return fmt.Errorf("failed to marshal registration: %w", err)
	}

	query := `
		INSERT INTO petasos_registrations (name, plant, kind, status, registered_at, body)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (name) DO UPDATE SET
			plant = EXCLUDED.plant,
			kind = EXCLUDED.kind,
			status = EXCLUDED.status,
			body = EXCLUDED.body
	`

	_, err = s.pool.Exec(ctx, query,
		reg.Name(),
		reg.Participant.ProcessingPlant,
		string(reg.Participant.Kind),
		string(reg.Status),
		reg.RegistrationInstant,
		body,
	)
	if err != nil {
		return fmt.Errorf("failed to save registration %s: %w", reg.Name(), err)
	}
	return nil
}

func (s *PGStore) DeleteRegistration(ctx context.Context, name string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM petasos_registrations WHERE name = $1`, name); err != nil {
		return fmt.Errorf("failed to delete registration %s: %w", name, err)
	}
	return nil
}

// ListRegistrations returns all registrations in registration order
func (s *PGStore) ListRegistrations(ctx context.Context) ([]participant.Registration, error) {
	rows, err := s.pool.Query(ctx, `SELECT body FROM petasos_registrations ORDER BY registered_at, name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list registrations: %w", err)
	}

	regs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (participant.Registration, error) {
		var body []byte
		var reg participant.Registration
		if err := row.Scan(&body); err != nil {
			return reg, err
		}
		err := json.Unmarshal(body, &reg)
		return reg, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read registrations: %w", err)
	}
	return regs, nil
}
