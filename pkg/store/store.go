package store

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/catalogfi/swapper/pkg/order"
	"github.com/catalogfi/swapper/pkg/swap"
)

// Order is the persisted snapshot of an order, one row per order. Only the
// derived status and the hashes of our own submissions are stored, the leg
// observations always come fresh from the indexers.
type Order struct {
	gorm.Model

	OrderID    string `gorm:"uniqueIndex"`
	SecretHash string
	Maker      string
	Taker      string
	Status     order.Status
	Error      string

	InitiateTxHash string
	RedeemTxHash   string
	RefundTxHash   string
}

type Store interface {
	// Merge arbitrates a fresh observation against the stored snapshot and
	// persists whichever status is more advanced. Implements the engine's
	// Snapshots collaborator.
	Merge(ord order.Order) (order.Order, error)

	// UpdateTxHash records the hash of a submitted action.
	UpdateTxHash(orderID string, action swap.Action, txHash string) error

	// UpdateError records why an order's last submission failed.
	UpdateError(orderID string, submitErr error) error

	OrderByID(orderID string) (Order, error)

	// PendingOrderIDs lists orders which may still need an action, for the
	// poll loop to refresh.
	PendingOrderIDs() ([]string, error)
}

type store struct {
	db *gorm.DB
}

func NewStore(dialector gorm.Dialector, opts ...gorm.Option) (Store, error) {
	db, err := gorm.Open(dialector, opts...)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&Order{}); err != nil {
		return nil, err
	}

	sqlDb, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDb.SetMaxIdleConns(5)
	sqlDb.SetMaxOpenConns(5)
	sqlDb.SetConnMaxIdleTime(10 * time.Minute)
	return &store{db: db}, nil
}

func (s *store) Merge(ord order.Order) (order.Order, error) {
	var row Order
	err := s.db.Where("order_id = ?", ord.ID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		row = Order{
			OrderID:    ord.ID,
			SecretHash: ord.SecretHash,
			Maker:      ord.Maker,
			Taker:      ord.Taker,
			Status:     ord.Status,
		}
		if err := s.db.Create(&row).Error; err != nil {
			return order.Order{}, err
		}
		return ord, nil
	}
	if err != nil {
		return order.Order{}, err
	}

	merged := order.Merge(ord, order.Order{ID: ord.ID, Status: row.Status})
	if merged.Status != row.Status {
		if err := s.db.Table("orders").Where("order_id = ?", ord.ID).Update("status", merged.Status).Error; err != nil {
			return order.Order{}, err
		}
	}
	ord.Status = merged.Status
	return ord, nil
}

func (s *store) UpdateTxHash(orderID string, action swap.Action, txHash string) error {
	tx := s.db.Table("orders").Where("order_id = ?", orderID)
	switch action {
	case swap.ActionInitiate:
		return tx.Update("initiate_tx_hash", txHash).Error
	case swap.ActionRedeem:
		return tx.Update("redeem_tx_hash", txHash).Error
	case swap.ActionRefund:
		return tx.Update("refund_tx_hash", txHash).Error
	default:
		return fmt.Errorf("unknown action = %v", action)
	}
}

func (s *store) UpdateError(orderID string, submitErr error) error {
	return s.db.Table("orders").Where("order_id = ?", orderID).Update("error", submitErr.Error()).Error
}

func (s *store) OrderByID(orderID string) (Order, error) {
	var row Order
	err := s.db.Where("order_id = ?", orderID).First(&row).Error
	return row, err
}

func (s *store) PendingOrderIDs() ([]string, error) {
	var ids []string
	err := s.db.Table("orders").
		Where("status NOT IN ?", []order.Status{order.Redeemed, order.Refunded, order.CounterPartyRefunded, order.Cancelled}).
		Pluck("order_id", &ids).Error
	return ids, err
}
