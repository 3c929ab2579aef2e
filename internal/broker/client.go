// Package broker defines the brokerage and quote collaborator the engine trades through.
package broker

import (
	"context"
	"time"
	"warrant_bot/internal/models"

	"github.com/pkg/errors"
)

var (
	// ErrTransient marks failures worth retrying: network errors, timeouts, 5xx and throttling.
	ErrTransient = errors.New("transient broker error")
	// ErrNotFound is returned when the broker has no such quote, order or instrument.
	ErrNotFound = errors.New("not found")
)

// Client is everything the engine needs from the broker.
type Client interface {
	GetLatestQuote(ctx context.Context, symbol string) (*models.Quote, error)
	GetCandlesticks(ctx context.Context, symbol, period string, count int) ([]models.Candle, error)
	GetAccountSnapshot(ctx context.Context) (*models.AccountSnapshot, error)
	GetStockPositions(ctx context.Context) ([]models.Position, error)
	GetTodayFilledOrders(ctx context.Context, symbol string) ([]models.Order, error)
	GetOrder(ctx context.Context, orderID string) (*models.Order, error)
	SubmitOrder(ctx context.Context, req models.OrderRequest) (string, error)
	CancelOrder(ctx context.Context, orderID string) (bool, error)
	IsTradingDay(ctx context.Context, date time.Time) (models.TradingDay, error)
	ListWarrants(ctx context.Context, underlying string, dir models.Direction) ([]models.WarrantCandidate, error)
}

type transientError struct{ err error }

func (e transientError) Error() string { return e.err.Error() }
func (e transientError) Unwrap() error { return e.err }
func (e transientError) Is(target error) bool {
	return target == ErrTransient
}

// Transient marks err as retryable while keeping it matchable with errors.Is.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return transientError{err: err}
}

func IsTransient(err error) bool { return errors.Is(err, ErrTransient) }
