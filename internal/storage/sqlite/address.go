package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/slok/cartpool/internal/model"
)

// CreateAddress creates a new address.
func (r *Repository) CreateAddress(ctx context.Context, a model.Address) error {
	if err := a.Validate(); err != nil {
		return fmt.Errorf("invalid address: %w", err)
	}

	query := `
		INSERT INTO addresses (
			id, first_name, last_name, email, phone,
			address1, address2, city, state, postal_code, country
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		a.ID, a.FirstName, a.LastName, a.Email, a.Phone,
		a.Address1, a.Address2, a.City, a.State, a.PostalCode, a.Country,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("address %s: %w", a.ID, model.ErrAlreadyExists)
		}
		return fmt.Errorf("could not insert address: %w", err)
	}

	r.logger.Debugf("Created address in repository: %s", a.ID)
	return nil
}

// GetAddress retrieves an address by ID.
func (r *Repository) GetAddress(ctx context.Context, id string) (*model.Address, error) {
	query := `
		SELECT
			id, first_name, last_name, email, phone,
			address1, address2, city, state, postal_code, country
		FROM addresses
		WHERE id = ?
	`

	var a model.Address
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&a.ID,
		&a.FirstName,
		&a.LastName,
		&a.Email,
		&a.Phone,
		&a.Address1,
		&a.Address2,
		&a.City,
		&a.State,
		&a.PostalCode,
		&a.Country,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("address %s: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not query address: %w", err)
	}

	return &a, nil
}
