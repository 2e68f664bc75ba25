// Package archive flushes session state to the reporting database. The
// engine itself never reads it back; reports and history queries live in the
// API service.
package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/cefalpha/almengine/internal/orders"
	"github.com/cefalpha/almengine/internal/pricestore"
)

// Flusher persists order and price snapshots for reporting.
type Flusher interface {
	Flush(ctx context.Context) error
}

// OrderRow is the persisted shape of a working order snapshot.
type OrderRow struct {
	ID           uint   `gorm:"primaryKey"`
	OrderID      string `gorm:"index"`
	Symbol       string
	Side         string
	Status       string
	Active       bool
	Price        decimal.Decimal `gorm:"type:decimal(20,8)"`
	Quantity     decimal.Decimal `gorm:"type:decimal(20,8)"`
	Traded       decimal.Decimal `gorm:"type:decimal(20,8)"`
	AvgFillPrice decimal.Decimal `gorm:"type:decimal(20,8)"`
	SnappedAt    time.Time       `gorm:"index"`
}

// PriceRow is the persisted shape of a quote snapshot.
type PriceRow struct {
	ID        uint   `gorm:"primaryKey"`
	Ticker    string `gorm:"index"`
	Last      decimal.Decimal `gorm:"type:decimal(20,8)"`
	Bid       decimal.Decimal `gorm:"type:decimal(20,8)"`
	Ask       decimal.Decimal `gorm:"type:decimal(20,8)"`
	Volume    decimal.Decimal `gorm:"type:decimal(20,8)"`
	Source    string
	SnappedAt time.Time `gorm:"index"`
}

func (OrderRow) TableName() string { return "order_snapshots" }
func (PriceRow) TableName() string { return "price_snapshots" }

// GormFlusher writes snapshots through gorm.
type GormFlusher struct {
	db      *gorm.DB
	orders  *orders.Store
	prices  *pricestore.Store
	tickers []string
	logger  *zap.Logger
}

// NewGormFlusher opens the reporting database and migrates the snapshot
// tables.
func NewGormFlusher(dsn string, ordersStore *orders.Store, prices *pricestore.Store, tickers []string, logger *zap.Logger) (*GormFlusher, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open reporting db: %w", err)
	}
	if err := db.AutoMigrate(&OrderRow{}, &PriceRow{}); err != nil {
		return nil, fmt.Errorf("migrate reporting db: %w", err)
	}
	return &GormFlusher{db: db, orders: ordersStore, prices: prices, tickers: tickers, logger: logger}, nil
}

// Flush writes the current order snapshot and the quotes for the configured
// tickers in one transaction.
func (f *GormFlusher) Flush(ctx context.Context) error {
	now := time.Now().UTC()

	var orderRows []OrderRow
	for _, o := range f.orders.Snapshot() {
		orderRows = append(orderRows, OrderRow{
			OrderID:      o.ID,
			Symbol:       o.Symbol,
			Side:         o.Side,
			Status:       o.Status,
			Active:       o.Active,
			Price:        o.Price,
			Quantity:     o.Quantity,
			Traded:       o.Traded,
			AvgFillPrice: o.AvgFillPrice,
			SnappedAt:    now,
		})
	}

	var priceRows []PriceRow
	for _, t := range f.tickers {
		p, ok := f.prices.Lookup(t)
		if !ok {
			continue
		}
		priceRows = append(priceRows, PriceRow{
			Ticker:    p.Ticker,
			Last:      p.Last,
			Bid:       p.Bid,
			Ask:       p.Ask,
			Volume:    p.Volume,
			Source:    p.Source,
			SnappedAt: now,
		})
	}

	return f.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(orderRows) > 0 {
			if err := tx.Create(&orderRows).Error; err != nil {
				return err
			}
		}
		if len(priceRows) > 0 {
			if err := tx.Create(&priceRows).Error; err != nil {
				return err
			}
		}
		f.logger.Debug("session snapshot flushed",
			zap.Int("orders", len(orderRows)),
			zap.Int("prices", len(priceRows)))
		return nil
	})
}

// NopFlusher discards snapshots, for the simulation environment.
type NopFlusher struct{}

// Flush does nothing.
func (NopFlusher) Flush(context.Context) error { return nil }

var _ Flusher = (*GormFlusher)(nil)
var _ Flusher = NopFlusher{}
