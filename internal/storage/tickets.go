package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type Ticket struct {
	ChannelID  string
	OwnerID    string
	OwnerName  string
	CategoryID string
	Archived   bool
	CreatedAt  time.Time
}

func (s *Store) CreateTicket(ctx context.Context, ticket Ticket) error {
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tickets (channel_id, owner_id, owner_name, category_id, archived, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, ticket.ChannelID, ticket.OwnerID, ticket.OwnerName, ticket.CategoryID, boolToInt(ticket.Archived), ticket.CreatedAt.Unix())
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (s *Store) GetTicket(ctx context.Context, channelID string) (Ticket, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT channel_id, owner_id, owner_name, category_id, archived, created_at
		FROM tickets WHERE channel_id = ?`, channelID)

	var ticket Ticket
	var archived int
	var created int64
	err := row.Scan(&ticket.ChannelID, &ticket.OwnerID, &ticket.OwnerName, &ticket.CategoryID, &archived, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Ticket{}, ErrNotFound
		}
		return Ticket{}, err
	}
	ticket.Archived = archived == 1
	ticket.CreatedAt = time.Unix(created, 0)
	return ticket, nil
}

func (s *Store) SetTicketArchived(ctx context.Context, channelID string, archived bool) error {
	result, err := s.db.ExecContext(ctx, `UPDATE tickets SET archived = ? WHERE channel_id = ?`, boolToInt(archived), channelID)
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

// DeleteTicket removes the ticket row and its per-channel response and
// claim tracking.
func (s *Store) DeleteTicket(ctx context.Context, channelID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM tickets WHERE channel_id = ?`, channelID); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM ticket_uses WHERE channel_id = ?`, channelID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM ticket_claims WHERE channel_id = ?`, channelID)
	return err
}

func (s *Store) MarkResponseUsed(ctx context.Context, channelID, responseID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO ticket_uses (channel_id, response_id) VALUES (?, ?)`, channelID, responseID)
	return err
}

func (s *Store) ListUsedResponses(ctx context.Context, channelID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT response_id FROM ticket_uses WHERE channel_id = ? ORDER BY response_id`, channelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var responses []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		responses = append(responses, id)
	}
	return responses, rows.Err()
}

// ClaimReward records a one-time reward claim and credits the fraction in
// the same transaction, returning the new balance. The (channel, response)
// primary key makes a second claim fail with ErrAlreadyClaimed no matter
// how many clicks race; a failed credit rolls the claim row back so the
// reward stays claimable.
func (s *Store) ClaimReward(ctx context.Context, channelID, responseID, claimedBy string, fractionID, amount int64) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO ticket_claims (channel_id, response_id, claimed_by, amount, claimed_at)
		VALUES (?, ?, ?, ?, ?)
	`, channelID, responseID, claimedBy, amount, time.Now().Unix())
	if isUniqueViolation(err) {
		err = ErrAlreadyClaimed
		return 0, err
	}
	if err != nil {
		return 0, err
	}

	result, err := tx.ExecContext(ctx, `UPDATE fractions SET money = money + ? WHERE id = ?`, amount, fractionID)
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	if affected == 0 {
		err = ErrNotFound
		return 0, err
	}

	var balance int64
	if err = tx.QueryRowContext(ctx, `SELECT money FROM fractions WHERE id = ?`, fractionID).Scan(&balance); err != nil {
		return 0, err
	}
	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return balance, nil
}

func (s *Store) IsRewardClaimed(ctx context.Context, channelID, responseID string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM ticket_claims WHERE channel_id = ? AND response_id = ?`, channelID, responseID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
