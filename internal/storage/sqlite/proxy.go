package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/slok/cartpool/internal/model"
)

// CreateProxy creates a new proxy.
func (r *Repository) CreateProxy(ctx context.Context, p model.Proxy) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid proxy: %w", err)
	}

	scheme := p.Scheme
	if scheme == "" {
		scheme = model.ProxySchemeHTTP
	}

	query := `
		INSERT INTO proxies (id, scheme, host, port, username, password, has_been_used, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		p.ID,
		scheme,
		p.Host,
		p.Port,
		p.Username,
		p.Password,
		boolToInt(p.HasBeenUsed),
		p.CreatedAt.Unix(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("proxy %s: %w", p.ID, model.ErrAlreadyExists)
		}
		return fmt.Errorf("could not insert proxy: %w", err)
	}

	r.logger.Debugf("Created proxy in repository: %s", p.ID)
	return nil
}

// ListProxies returns the proxies matching the filter, oldest first so
// candidates are always tried in a stable order.
func (r *Repository) ListProxies(ctx context.Context, filter model.ProxyFilter) ([]model.Proxy, error) {
	var (
		where []string
		args  []any
	)
	if filter.HasBeenUsed != nil {
		where = append(where, "has_been_used = ?")
		args = append(args, boolToInt(*filter.HasBeenUsed))
	}

	query := `SELECT id, scheme, host, port, username, password, has_been_used, created_at FROM proxies`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at ASC, id ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("could not query proxies: %w", err)
	}
	defer rows.Close()

	var proxies []model.Proxy
	for rows.Next() {
		var p model.Proxy
		var used int
		var createdAt int64
		err := rows.Scan(&p.ID, &p.Scheme, &p.Host, &p.Port, &p.Username, &p.Password, &used, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("could not scan row: %w", err)
		}
		p.HasBeenUsed = used != 0
		p.CreatedAt = timeFromUnix(createdAt)
		proxies = append(proxies, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return proxies, nil
}

// MarkProxyUsed marks a proxy as used.
func (r *Repository) MarkProxyUsed(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE proxies SET has_been_used = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("could not update proxy: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("proxy %s: %w", id, model.ErrNotFound)
	}

	r.logger.Debugf("Marked proxy as used: %s", id)
	return nil
}
