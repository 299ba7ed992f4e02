package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type Fraction struct {
	ID          int64
	Name        string
	Abbrev      string
	Description string
	Color       int
	Money       int64
	Warns       int
	RoleID      string
	ChannelID   string
	CreatedAt   time.Time
}

func (s *Store) CreateFraction(ctx context.Context, fraction Fraction) (int64, error) {
	if fraction.CreatedAt.IsZero() {
		fraction.CreatedAt = time.Now()
	}
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO fractions (name, abbrev, description, color, money, warns, role_id, channel_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, fraction.Name, fraction.Abbrev, fraction.Description, fraction.Color,
		fraction.Money, fraction.Warns, fraction.RoleID, fraction.ChannelID, fraction.CreatedAt.Unix())
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrDuplicate
		}
		return 0, err
	}
	return result.LastInsertId()
}

func (s *Store) GetFractionByID(ctx context.Context, id int64) (Fraction, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, abbrev, description, color, money, warns, role_id, channel_id, created_at
		FROM fractions WHERE id = ?`, id)
	return scanFraction(row)
}

func (s *Store) GetFractionByName(ctx context.Context, name string) (Fraction, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, abbrev, description, color, money, warns, role_id, channel_id, created_at
		FROM fractions WHERE name = ?`, name)
	return scanFraction(row)
}

func (s *Store) GetFractionByRole(ctx context.Context, roleID string) (Fraction, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, abbrev, description, color, money, warns, role_id, channel_id, created_at
		FROM fractions WHERE role_id = ?`, roleID)
	return scanFraction(row)
}

func (s *Store) ListFractions(ctx context.Context) ([]Fraction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, abbrev, description, color, money, warns, role_id, channel_id, created_at
		FROM fractions ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fractions []Fraction
	for rows.Next() {
		var fraction Fraction
		var created int64
		if err := rows.Scan(&fraction.ID, &fraction.Name, &fraction.Abbrev, &fraction.Description,
			&fraction.Color, &fraction.Money, &fraction.Warns, &fraction.RoleID, &fraction.ChannelID, &created); err != nil {
			return nil, err
		}
		fraction.CreatedAt = time.Unix(created, 0)
		fractions = append(fractions, fraction)
	}
	return fractions, rows.Err()
}

// DeleteFraction removes the fraction, its items, and declines any still
// pending trade it is party to, all in one transaction.
func (s *Store) DeleteFraction(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	result, err := tx.ExecContext(ctx, `DELETE FROM fractions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		err = ErrNotFound
		return err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM fraction_items WHERE fraction_id = ?`, id); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `
		UPDATE trades SET status = ?, resolved_at = ?, resolved_by = 'system'
		WHERE (seller_id = ? OR buyer_id = ?) AND status = ?`,
		TradeDeclined, time.Now().Unix(), id, id, TradePending); err != nil {
		return err
	}
	return tx.Commit()
}

// UpdateFractionMoney credits or debits a treasury and returns the new
// balance. Debits that would drive the balance negative are rejected
// without changing state.
func (s *Store) UpdateFractionMoney(ctx context.Context, id int64, amount int64, credit bool) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var result sql.Result
	if credit {
		result, err = tx.ExecContext(ctx, `UPDATE fractions SET money = money + ? WHERE id = ?`, amount, id)
	} else {
		result, err = tx.ExecContext(ctx, `UPDATE fractions SET money = money - ? WHERE id = ? AND money >= ?`, amount, id, amount)
	}
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	if affected == 0 {
		var exists int
		scanErr := tx.QueryRowContext(ctx, `SELECT 1 FROM fractions WHERE id = ?`, id).Scan(&exists)
		if errors.Is(scanErr, sql.ErrNoRows) {
			err = ErrNotFound
		} else if scanErr != nil {
			err = scanErr
		} else {
			err = ErrInsufficientFunds
		}
		return 0, err
	}

	var balance int64
	if err = tx.QueryRowContext(ctx, `SELECT money FROM fractions WHERE id = ?`, id).Scan(&balance); err != nil {
		return 0, err
	}
	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return balance, nil
}

// SetFractionWarns sets the warning count, bounded to [0, limit].
func (s *Store) SetFractionWarns(ctx context.Context, id int64, warns, limit int) error {
	if warns < 0 || warns > limit {
		return ErrWarnLimit
	}
	result, err := s.db.ExecContext(ctx, `UPDATE fractions SET warns = ? WHERE id = ?`, warns, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func scanFraction(row *sql.Row) (Fraction, error) {
	var fraction Fraction
	var created int64
	err := row.Scan(&fraction.ID, &fraction.Name, &fraction.Abbrev, &fraction.Description,
		&fraction.Color, &fraction.Money, &fraction.Warns, &fraction.RoleID, &fraction.ChannelID, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Fraction{}, ErrNotFound
		}
		return Fraction{}, err
	}
	fraction.CreatedAt = time.Unix(created, 0)
	return fraction, nil
}
