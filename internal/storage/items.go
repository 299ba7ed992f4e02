package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type Item struct {
	ID         int64
	FractionID int64
	Section    string
	Name       string
	Quantity   int64
	Unique     bool
	Mods       string
	AcquiredAt time.Time
}

func (s *Store) AddFractionItem(ctx context.Context, item Item) (int64, error) {
	if item.Quantity <= 0 {
		return 0, ErrInvalidAmount
	}
	if item.AcquiredAt.IsZero() {
		item.AcquiredAt = time.Now()
	}
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO fraction_items (fraction_id, section, name, quantity, is_unique, mods, acquired_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, item.FractionID, item.Section, item.Name, item.Quantity, boolToInt(item.Unique), item.Mods, item.AcquiredAt.Unix())
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (s *Store) GetFractionItem(ctx context.Context, id int64) (Item, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, fraction_id, section, name, quantity, is_unique, mods, acquired_at
		FROM fraction_items WHERE id = ?`, id)
	return scanItem(row)
}

func (s *Store) ListFractionItems(ctx context.Context, fractionID int64) ([]Item, error) {
	return s.queryItems(ctx, `
		SELECT id, fraction_id, section, name, quantity, is_unique, mods, acquired_at
		FROM fraction_items WHERE fraction_id = ? ORDER BY section, name`, fractionID)
}

func (s *Store) ListSectionItems(ctx context.Context, fractionID int64, section string) ([]Item, error) {
	return s.queryItems(ctx, `
		SELECT id, fraction_id, section, name, quantity, is_unique, mods, acquired_at
		FROM fraction_items WHERE fraction_id = ? AND section = ? ORDER BY name`, fractionID, section)
}

func (s *Store) ListFractionSections(ctx context.Context, fractionID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT section FROM fraction_items WHERE fraction_id = ? ORDER BY section`, fractionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sections []string
	for rows.Next() {
		var section string
		if err := rows.Scan(&section); err != nil {
			return nil, err
		}
		sections = append(sections, section)
	}
	return sections, rows.Err()
}

func (s *Store) DeleteFractionItem(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM fraction_items WHERE id = ?`, id)
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

func (s *Store) queryItems(ctx context.Context, query string, args ...any) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var item Item
		var unique int
		var acquired int64
		if err := rows.Scan(&item.ID, &item.FractionID, &item.Section, &item.Name,
			&item.Quantity, &unique, &item.Mods, &acquired); err != nil {
			return nil, err
		}
		item.Unique = unique == 1
		item.AcquiredAt = time.Unix(acquired, 0)
		items = append(items, item)
	}
	return items, rows.Err()
}

func scanItem(row *sql.Row) (Item, error) {
	var item Item
	var unique int
	var acquired int64
	err := row.Scan(&item.ID, &item.FractionID, &item.Section, &item.Name,
		&item.Quantity, &unique, &item.Mods, &acquired)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Item{}, ErrNotFound
		}
		return Item{}, err
	}
	item.Unique = unique == 1
	item.AcquiredAt = time.Unix(acquired, 0)
	return item, nil
}
