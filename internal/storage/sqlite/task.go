package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/slok/cartpool/internal/model"
)

const taskColumns = `
	id, site_name, url, product_code, size, style_index,
	shipping_address_id, billing_address_id, shipping_speed_index,
	auto_solve_captchas, notification_email_address, created_at
`

// CreateTask creates a new checkout task.
func (r *Repository) CreateTask(ctx context.Context, t model.Task) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("invalid task: %w", err)
	}

	query := `INSERT INTO tasks (` + taskColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(
		ctx,
		query,
		t.ID,
		t.SiteName,
		t.URL,
		t.ProductCode,
		t.Size,
		t.StyleIndex,
		t.ShippingAddressID,
		t.BillingAddressID,
		t.ShippingSpeedIndex,
		boolToInt(t.AutoSolveCaptchas),
		t.NotificationEmailAddress,
		t.CreatedAt.Unix(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("task %s: %w", t.ID, model.ErrAlreadyExists)
		}
		return fmt.Errorf("could not insert task: %w", err)
	}

	r.logger.Debugf("Created task in repository: %s", t.ID)
	return nil
}

// GetTask retrieves a task by ID.
func (r *Repository) GetTask(ctx context.Context, id string) (*model.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = ?`

	t, err := r.scanTask(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("task %s: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not query task: %w", err)
	}

	return &t, nil
}

// ListTasks returns all tasks, newest first.
func (r *Repository) ListTasks(ctx context.Context) ([]model.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks ORDER BY created_at DESC, id ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("could not query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		t, err := r.scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("could not scan row: %w", err)
		}
		tasks = append(tasks, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return tasks, nil
}

func (r *Repository) scanTask(s scanner) (model.Task, error) {
	var t model.Task
	var autoSolve int
	var createdAt int64

	err := s.Scan(
		&t.ID,
		&t.SiteName,
		&t.URL,
		&t.ProductCode,
		&t.Size,
		&t.StyleIndex,
		&t.ShippingAddressID,
		&t.BillingAddressID,
		&t.ShippingSpeedIndex,
		&autoSolve,
		&t.NotificationEmailAddress,
		&createdAt,
	)
	if err != nil {
		return model.Task{}, err
	}

	t.AutoSolveCaptchas = autoSolve != 0
	t.CreatedAt = timeFromUnix(createdAt)

	return t, nil
}
