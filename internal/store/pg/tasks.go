package pg

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"taskdeck.io/internal/task"
)

// TaskStore implements task.Store with sqlx struct scanning.
type TaskStore struct {
	db *sqlx.DB
}

var _ task.Store = (*TaskStore)(nil)

const taskColumns = `id, owner_id, title, description, status, priority, due_date, created_at, updated_at`

func (s *TaskStore) Create(ctx context.Context, t *task.Task) error {
	_, err := s.db.NamedExecContext(ctx, `
		insert into tasks (`+taskColumns+`)
		values (:id, :owner_id, :title, :description, :status, :priority, :due_date, :created_at, :updated_at)
	`, t)
	return err
}

func (s *TaskStore) Get(ctx context.Context, ownerID, id uuid.UUID) (task.Task, error) {
	var t task.Task
	err := s.db.GetContext(ctx, &t,
		`select `+taskColumns+` from tasks where id = $1 and owner_id = $2`, id, ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return task.Task{}, task.ErrNotFound
	}
	return t, err
}

func (s *TaskStore) List(ctx context.Context, q task.Query) ([]task.Task, int64, error) {
	var total int64
	if err := s.db.GetContext(ctx, &total, `
		select count(*) from tasks
		where owner_id = $1 and ($2 = '' or status = $2)
	`, q.OwnerID, string(q.Status)); err != nil {
		return nil, 0, err
	}
	out := []task.Task{}
	err := s.db.SelectContext(ctx, &out, `
		select `+taskColumns+` from tasks
		where owner_id = $1 and ($2 = '' or status = $2)
		order by created_at desc, id desc
		limit $3 offset $4
	`, q.OwnerID, string(q.Status), q.Limit, q.Offset)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (s *TaskStore) Update(ctx context.Context, ownerID, id uuid.UUID, fn func(*task.Task) error) (task.Task, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return task.Task{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var t task.Task
	err = tx.GetContext(ctx, &t,
		`select `+taskColumns+` from tasks where id = $1 and owner_id = $2 for update`, id, ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return task.Task{}, task.ErrNotFound
	}
	if err != nil {
		return task.Task{}, err
	}
	if err := fn(&t); err != nil {
		return task.Task{}, err
	}
	if _, err := tx.NamedExecContext(ctx, `
		update tasks
		set title = :title, description = :description, status = :status,
		    priority = :priority, due_date = :due_date, updated_at = :updated_at
		where id = :id and owner_id = :owner_id
	`, &t); err != nil {
		return task.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return task.Task{}, err
	}
	return t, nil
}

func (s *TaskStore) Delete(ctx context.Context, ownerID, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `delete from tasks where id = $1 and owner_id = $2`, id, ownerID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return task.ErrNotFound
	}
	return nil
}
