package inventory

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgerrors "github.com/angelmondragon/packfinderz-settlement/pkg/errors"
)

const reasonInsufficientStock = "item inactive or insufficient stock"

// ReservationRequest asks for qty units of a stock-bearing item.
type ReservationRequest struct {
	ItemID uuid.UUID
	Qty    int
}

// ReservationResult reports the outcome of a single reservation attempt.
type ReservationResult struct {
	ItemID   uuid.UUID
	Qty      int
	Reserved bool
	Reason   string
}

// Service performs conditional stock decrements/increments against inventory_items.
type Service struct {
	db *gorm.DB
}

// NewService builds the inventory reservation service.
func NewService(db *gorm.DB) (*Service, error) {
	if db == nil {
		return nil, errors.New("db required")
	}
	return &Service{db: db}, nil
}

// Reserve takes qty units of stock in its own statement.
func (s *Service) Reserve(ctx context.Context, itemID uuid.UUID, qty int) (bool, error) {
	return s.ReserveTx(ctx, s.db, itemID, qty)
}

// ReserveTx decrements available stock only when enough is left and the item is active.
// It returns true when exactly one row matched.
func (s *Service) ReserveTx(ctx context.Context, tx *gorm.DB, itemID uuid.UUID, qty int) (bool, error) {
	if qty <= 0 {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "reservation quantity must be positive")
	}
	if tx == nil {
		return false, pkgerrors.New(pkgerrors.CodeDependency, "transaction required for inventory reservation")
	}

	res := tx.WithContext(ctx).Exec(`
		UPDATE inventory_items
		SET available_qty = available_qty - ?,
			reserved_qty = reserved_qty + ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND active = ? AND available_qty >= ?
	`, qty, qty, itemID, true, qty)
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "reserve inventory")
	}
	return res.RowsAffected == 1, nil
}

// ReserveAll attempts every request inside tx and reports each outcome.
// Callers decide whether a partial result aborts the surrounding transaction.
func (s *Service) ReserveAll(ctx context.Context, tx *gorm.DB, requests []ReservationRequest) ([]ReservationResult, error) {
	results := make([]ReservationResult, len(requests))
	for i, req := range requests {
		if req.ItemID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "item id is required")
		}
		ok, err := s.ReserveTx(ctx, tx, req.ItemID, req.Qty)
		if err != nil {
			return nil, err
		}
		results[i] = ReservationResult{ItemID: req.ItemID, Qty: req.Qty, Reserved: ok}
		if !ok {
			results[i].Reason = reasonInsufficientStock
		}
	}
	return results, nil
}

// Release puts qty units back in its own statement.
func (s *Service) Release(ctx context.Context, itemID uuid.UUID, qty int) error {
	return s.ReleaseTx(ctx, s.db, itemID, qty)
}

// ReleaseTx unconditionally returns qty units to available stock.
func (s *Service) ReleaseTx(ctx context.Context, tx *gorm.DB, itemID uuid.UUID, qty int) error {
	if qty <= 0 {
		return nil
	}
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for inventory release")
	}

	res := tx.WithContext(ctx).Exec(`
		UPDATE inventory_items
		SET available_qty = available_qty + ?,
			reserved_qty = CASE WHEN reserved_qty >= ? THEN reserved_qty - ? ELSE 0 END,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, qty, qty, qty, itemID)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "release inventory")
	}
	return nil
}
