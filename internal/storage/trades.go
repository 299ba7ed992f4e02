package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const (
	TradePending  = "pending"
	TradeAccepted = "accepted"
	TradeDeclined = "declined"
)

type Trade struct {
	ID         int64
	SellerID   int64
	BuyerID    int64
	ItemID     int64
	Quantity   int64
	Price      int64
	Status     string
	CreatedAt  time.Time
	ResolvedAt *time.Time
	ResolvedBy string
}

// Settlement reports the balances and item movement of an accepted trade.
type Settlement struct {
	Trade         Trade
	BuyerBalance  int64
	SellerBalance int64
	ItemName      string
}

func (s *Store) CreateTrade(ctx context.Context, trade Trade) (int64, error) {
	if trade.Quantity <= 0 || trade.Price <= 0 {
		return 0, ErrInvalidAmount
	}
	if trade.CreatedAt.IsZero() {
		trade.CreatedAt = time.Now()
	}
	item, err := s.GetFractionItem(ctx, trade.ItemID)
	if err != nil {
		return 0, err
	}
	if item.FractionID != trade.SellerID {
		return 0, fmt.Errorf("item %d does not belong to fraction %d", trade.ItemID, trade.SellerID)
	}
	if item.Quantity < trade.Quantity {
		return 0, fmt.Errorf("offered quantity %d exceeds stack of %d", trade.Quantity, item.Quantity)
	}
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO trades (seller_id, buyer_id, item_id, quantity, price, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, trade.SellerID, trade.BuyerID, trade.ItemID, trade.Quantity, trade.Price, TradePending, trade.CreatedAt.Unix())
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (s *Store) GetTradeByID(ctx context.Context, id int64) (Trade, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, seller_id, buyer_id, item_id, quantity, price, status, created_at, resolved_at, COALESCE(resolved_by, '')
		FROM trades WHERE id = ?`, id)
	return scanTrade(row)
}

// DeclineTrade marks a pending trade declined. A trade that was already
// resolved is rejected without change.
func (s *Store) DeclineTrade(ctx context.Context, id int64, actorID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = resolveTrade(ctx, tx, id, TradeDeclined, actorID); err != nil {
		return err
	}
	if err = addAuditLogTx(ctx, tx, AuditLog{
		ActorID:    actorID,
		Action:     "trade_declined",
		TargetKind: "trade",
		TargetID:   fmt.Sprintf("%d", id),
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// SettleTrade applies an accepted trade atomically: the status guard, the
// buyer balance re-check, the debit, the credit, the item transfer and the
// audit entry either all happen or none do.
func (s *Store) SettleTrade(ctx context.Context, id int64, actorID string) (Settlement, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Settlement{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	trade, err := scanTrade(tx.QueryRowContext(ctx, `
		SELECT id, seller_id, buyer_id, item_id, quantity, price, status, created_at, resolved_at, COALESCE(resolved_by, '')
		FROM trades WHERE id = ?`, id))
	if err != nil {
		return Settlement{}, err
	}
	if trade.Status != TradePending {
		err = ErrAlreadyResolved
		return Settlement{}, err
	}

	// Balances may have changed since the offer; re-check before debiting.
	result, execErr := tx.ExecContext(ctx, `
		UPDATE fractions SET money = money - ? WHERE id = ? AND money >= ?`,
		trade.Price, trade.BuyerID, trade.Price)
	if execErr != nil {
		err = execErr
		return Settlement{}, err
	}
	affected, execErr := result.RowsAffected()
	if execErr != nil {
		err = execErr
		return Settlement{}, err
	}
	if affected == 0 {
		err = ErrInsufficientFunds
		return Settlement{}, err
	}
	if _, err = tx.ExecContext(ctx, `UPDATE fractions SET money = money + ? WHERE id = ?`, trade.Price, trade.SellerID); err != nil {
		return Settlement{}, err
	}

	itemName, err := transferItem(ctx, tx, trade)
	if err != nil {
		return Settlement{}, err
	}

	if err = resolveTrade(ctx, tx, id, TradeAccepted, actorID); err != nil {
		return Settlement{}, err
	}
	if err = addAuditLogTx(ctx, tx, AuditLog{
		ActorID:    actorID,
		Action:     "trade_accepted",
		TargetKind: "trade",
		TargetID:   fmt.Sprintf("%d", id),
		Details:    fmt.Sprintf(`{"item":%q,"quantity":%d,"price":%d}`, itemName, trade.Quantity, trade.Price),
	}); err != nil {
		return Settlement{}, err
	}

	settlement := Settlement{Trade: trade, ItemName: itemName}
	settlement.Trade.Status = TradeAccepted
	if err = tx.QueryRowContext(ctx, `SELECT money FROM fractions WHERE id = ?`, trade.BuyerID).Scan(&settlement.BuyerBalance); err != nil {
		return Settlement{}, err
	}
	if err = tx.QueryRowContext(ctx, `SELECT money FROM fractions WHERE id = ?`, trade.SellerID).Scan(&settlement.SellerBalance); err != nil {
		return Settlement{}, err
	}
	if err = tx.Commit(); err != nil {
		return Settlement{}, err
	}
	return settlement, nil
}

// transferItem moves the traded quantity from the seller's stack to the
// buyer. A unique item or a full stack changes owner; a partial quantity
// splits the stack and merges into an existing buyer stack when one
// matches by section, name and mods.
func transferItem(ctx context.Context, tx *sql.Tx, trade Trade) (string, error) {
	var item Item
	var unique int
	var acquired int64
	err := tx.QueryRowContext(ctx, `
		SELECT id, fraction_id, section, name, quantity, is_unique, mods, acquired_at
		FROM fraction_items WHERE id = ?`, trade.ItemID).Scan(
		&item.ID, &item.FractionID, &item.Section, &item.Name, &item.Quantity, &unique, &item.Mods, &acquired)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	item.Unique = unique == 1

	if item.FractionID != trade.SellerID {
		return "", fmt.Errorf("item %d no longer belongs to the seller", trade.ItemID)
	}
	if item.Quantity < trade.Quantity {
		return "", fmt.Errorf("stack of %d cannot cover traded quantity %d", item.Quantity, trade.Quantity)
	}

	if item.Unique || item.Quantity == trade.Quantity {
		_, err = tx.ExecContext(ctx, `UPDATE fraction_items SET fraction_id = ? WHERE id = ?`, trade.BuyerID, item.ID)
		return item.Name, err
	}

	if _, err = tx.ExecContext(ctx, `UPDATE fraction_items SET quantity = quantity - ? WHERE id = ?`, trade.Quantity, item.ID); err != nil {
		return "", err
	}

	var existingID int64
	scanErr := tx.QueryRowContext(ctx, `
		SELECT id FROM fraction_items
		WHERE fraction_id = ? AND section = ? AND name = ? AND mods = ? AND is_unique = 0`,
		trade.BuyerID, item.Section, item.Name, item.Mods).Scan(&existingID)
	if scanErr == nil {
		_, err = tx.ExecContext(ctx, `UPDATE fraction_items SET quantity = quantity + ? WHERE id = ?`, trade.Quantity, existingID)
		return item.Name, err
	}
	if !errors.Is(scanErr, sql.ErrNoRows) {
		return "", scanErr
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO fraction_items (fraction_id, section, name, quantity, is_unique, mods, acquired_at)
		VALUES (?, ?, ?, ?, 0, ?, ?)`,
		trade.BuyerID, item.Section, item.Name, trade.Quantity, item.Mods, time.Now().Unix())
	return item.Name, err
}

func resolveTrade(ctx context.Context, tx *sql.Tx, id int64, status, actorID string) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE trades SET status = ?, resolved_at = ?, resolved_by = ?
		WHERE id = ? AND status = ?`, status, time.Now().Unix(), actorID, id, TradePending)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var exists int
		scanErr := tx.QueryRowContext(ctx, `SELECT 1 FROM trades WHERE id = ?`, id).Scan(&exists)
		if errors.Is(scanErr, sql.ErrNoRows) {
			return ErrNotFound
		}
		if scanErr != nil {
			return scanErr
		}
		return ErrAlreadyResolved
	}
	return nil
}

func addAuditLogTx(ctx context.Context, tx *sql.Tx, log AuditLog) error {
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now()
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO audit_logs (actor_id, action, target_kind, target_id, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, log.ActorID, log.Action, log.TargetKind, log.TargetID, log.Details, log.CreatedAt.Unix())
	return err
}

func scanTrade(row *sql.Row) (Trade, error) {
	var trade Trade
	var created int64
	var resolved sql.NullInt64
	err := row.Scan(&trade.ID, &trade.SellerID, &trade.BuyerID, &trade.ItemID,
		&trade.Quantity, &trade.Price, &trade.Status, &created, &resolved, &trade.ResolvedBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Trade{}, ErrNotFound
		}
		return Trade{}, err
	}
	trade.CreatedAt = time.Unix(created, 0)
	if resolved.Valid {
		value := time.Unix(resolved.Int64, 0)
		trade.ResolvedAt = &value
	}
	return trade, nil
}
