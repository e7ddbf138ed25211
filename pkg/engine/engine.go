package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/catalogfi/swapper/pkg/order"
	"github.com/catalogfi/swapper/pkg/swap"
)

// ErrActionNotPermitted distinguishes "you asked for something impossible"
// from "nothing to do". Returned by Retry when the requested action is not
// the one the state machine selects.
var ErrActionNotPermitted = errors.New("action not permitted in current state")

// Submitter performs the chain specific signing and broadcast for an action.
// The engine only calls it after winning the idempotency claim.
type Submitter interface {
	Submit(ctx context.Context, action swap.Action, ord order.Order) (string, error)
}

// Indexer reports the current confirmed block height of a chain.
type Indexer interface {
	CurrentHeight(ctx context.Context, chain swap.Chain) (uint64, error)
}

// Snapshots keeps the authoritative per-order view. Merge arbitrates a fresh
// observation against the stored one and returns whichever is more advanced.
type Snapshots interface {
	Merge(ord order.Order) (order.Order, error)
	UpdateTxHash(orderID string, action swap.Action, txHash string) error
	UpdateError(orderID string, submitErr error) error
}

// Config for an Engine. Storage, Submitter and Indexer are required,
// Snapshots is optional (no persistence, every observation taken at face
// value).
type Config struct {
	// Signer is the party's address, matched against the order's maker and
	// taker to decide the role.
	Signer string

	Resolver  order.Resolver
	Storage   Store
	Submitter Submitter
	Indexer   Indexer
	Snapshots Snapshots

	// ClaimTTL defaults to DefaultClaimTTL.
	ClaimTTL time.Duration
}

// Engine drives one party's side of the swap lifecycle. It is fed order
// observations from any number of sources (websocket push, periodic poll) and
// guarantees each on-chain action is submitted at most once per claim TTL,
// however often the same observation arrives.
type Engine struct {
	config Config
	logger *zap.Logger

	ordersChan chan order.Order
	quit       chan struct{}
	wg         *sync.WaitGroup
}

func New(config Config, logger *zap.Logger) (*Engine, error) {
	if config.Signer == "" {
		return nil, fmt.Errorf("engine requires a signer address")
	}
	if config.Storage == nil || config.Submitter == nil || config.Indexer == nil {
		return nil, fmt.Errorf("engine requires storage, submitter and indexer")
	}
	if config.ClaimTTL == 0 {
		config.ClaimTTL = DefaultClaimTTL
	}
	return &Engine{
		config:     config,
		logger:     logger,
		ordersChan: make(chan order.Order, 64),
		quit:       make(chan struct{}),
		wg:         new(sync.WaitGroup),
	}, nil
}

// Start spawns the background loop draining queued orders. Not blocking.
func (engine *Engine) Start() {
	engine.wg.Add(1)
	go func() {
		defer engine.wg.Done()

		for {
			select {
			case ord := <-engine.ordersChan:
				ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
				if err := engine.Execute(ctx, ord); err != nil {
					engine.logger.Error("execution failed", zap.String("order", ord.ID), zap.Error(err))
				}
				cancel()
			case <-engine.quit:
				return
			}
		}
	}()
}

// Stop waits for the inner goroutine to finish.
func (engine *Engine) Stop() {
	if engine.quit != nil {
		close(engine.quit)
		engine.wg.Wait()
		engine.quit = nil
	}
}

// Process queues an order observation for execution.
func (engine *Engine) Process(ord order.Order) {
	engine.ordersChan <- ord
}

// Execute runs one full decision cycle for the order: resolve the status,
// merge it against the stored snapshot, pick the role's next action and
// submit it if nobody has claimed it yet. Safe to call repeatedly with the
// same observation, the claim store absorbs duplicate decisions.
func (engine *Engine) Execute(ctx context.Context, ord order.Order) error {
	logger := engine.logger.With(zap.String("order", ord.ID))

	role, ok := engine.role(ord)
	if !ok {
		logger.Debug("order does not involve us", zap.String("maker", ord.Maker), zap.String("taker", ord.Taker))
		return nil
	}

	merged, err := engine.status(ctx, ord)
	if err != nil {
		return err
	}

	action, ok := role.Next(merged.Status)
	if !ok {
		logger.Debug("nothing to do", zap.String("status", merged.Status.String()), zap.String("role", role.String()))
		return nil
	}
	if alreadyOnChain(merged, action) {
		return nil
	}

	claimed, err := engine.config.Storage.TryClaim(ord.ID, action, engine.config.ClaimTTL)
	if err != nil {
		// fail closed, never submit when the ledger cannot be consulted
		return fmt.Errorf("claim %v for order %v: %w", action, ord.ID, err)
	}
	if !claimed {
		logger.Debug("action already claimed", zap.String("action", string(action)))
		return nil
	}

	return engine.submit(ctx, logger, merged, action)
}

// Retry forces a fresh submission of the given action, releasing any standing
// claim first. Used by the manual retry path when a submission is known to be
// lost. The action must still be the one the state machine selects, otherwise
// ErrActionNotPermitted.
func (engine *Engine) Retry(ctx context.Context, ord order.Order, action swap.Action) error {
	logger := engine.logger.With(zap.String("order", ord.ID))

	role, ok := engine.role(ord)
	if !ok {
		return fmt.Errorf("order %v does not involve signer %v", ord.ID, engine.config.Signer)
	}

	merged, err := engine.status(ctx, ord)
	if err != nil {
		return err
	}

	selected, ok := role.Next(merged.Status)
	if !ok || selected != action {
		return fmt.Errorf("%w: %v for order %v with status %v", ErrActionNotPermitted, action, ord.ID, merged.Status)
	}

	if err := engine.config.Storage.Release(ord.ID, action); err != nil {
		return fmt.Errorf("release %v for order %v: %w", action, ord.ID, err)
	}
	claimed, err := engine.config.Storage.TryClaim(ord.ID, action, engine.config.ClaimTTL)
	if err != nil {
		return fmt.Errorf("claim %v for order %v: %w", action, ord.ID, err)
	}
	if !claimed {
		// someone re-claimed between the release and the claim, let them run
		return nil
	}

	return engine.submit(ctx, logger, merged, action)
}

// status resolves the order against the current chain heights and arbitrates
// it against the stored snapshot.
func (engine *Engine) status(ctx context.Context, ord order.Order) (order.Order, error) {
	var sourceHeight, destHeight uint64
	if ord.SourceSwap != nil && ord.DestinationSwap != nil {
		var err error
		sourceHeight, err = engine.config.Indexer.CurrentHeight(ctx, ord.SourceSwap.Chain)
		if err != nil {
			return order.Order{}, fmt.Errorf("height of %v for order %v: %w", ord.SourceSwap.Chain, ord.ID, err)
		}
		destHeight, err = engine.config.Indexer.CurrentHeight(ctx, ord.DestinationSwap.Chain)
		if err != nil {
			return order.Order{}, fmt.Errorf("height of %v for order %v: %w", ord.DestinationSwap.Chain, ord.ID, err)
		}
	}

	status, err := engine.config.Resolver.Resolve(ord, sourceHeight, destHeight)
	if err != nil {
		return order.Order{}, err
	}
	ord.Status = status

	if engine.config.Snapshots == nil {
		return ord, nil
	}
	merged, err := engine.config.Snapshots.Merge(ord)
	if err != nil {
		return order.Order{}, fmt.Errorf("merge order %v: %w", ord.ID, err)
	}
	return merged, nil
}

func (engine *Engine) submit(ctx context.Context, logger *zap.Logger, ord order.Order, action swap.Action) error {
	txHash, err := engine.config.Submitter.Submit(ctx, action, ord)
	if err != nil {
		// the submission never reached the network, free the claim so the
		// next cycle can retry without waiting out the TTL
		if releaseErr := engine.config.Storage.Release(ord.ID, action); releaseErr != nil {
			logger.Error("failed to release claim", zap.String("action", string(action)), zap.Error(releaseErr))
		}
		if engine.config.Snapshots != nil {
			if storeErr := engine.config.Snapshots.UpdateError(ord.ID, err); storeErr != nil {
				logger.Error("failed to store submit error", zap.Error(storeErr))
			}
		}
		return fmt.Errorf("submit %v for order %v: %w", action, ord.ID, err)
	}

	if err := engine.config.Storage.RecordResult(ord.ID, action, txHash); err != nil {
		logger.Error("failed to record tx hash", zap.String("action", string(action)), zap.Error(err))
	}
	if engine.config.Snapshots != nil {
		if err := engine.config.Snapshots.UpdateTxHash(ord.ID, action, txHash); err != nil {
			logger.Error("failed to store tx hash", zap.String("action", string(action)), zap.Error(err))
		}
	}
	logger.Info("submitted action", zap.String("action", string(action)), zap.String("tx hash", txHash))
	return nil
}

// role decides which transition table applies for this order, the maker locks
// first.
func (engine *Engine) role(ord order.Order) (Role, bool) {
	switch {
	case strings.EqualFold(ord.Maker, engine.config.Signer):
		return RoleInitiator, true
	case strings.EqualFold(ord.Taker, engine.config.Signer):
		return RoleRedeemer, true
	default:
		return RoleInitiator, false
	}
}

// alreadyOnChain suppresses actions whose transaction the indexer has already
// seen. The order status alone cannot always tell, the redeemer keeps seeing
// CounterPartyInitiated while its own initiate confirms.
func alreadyOnChain(ord order.Order, action swap.Action) bool {
	switch action {
	case swap.ActionInitiate:
		return ord.SourceSwap != nil && ord.SourceSwap.InitiateTxHash != ""
	case swap.ActionRedeem:
		return ord.DestinationSwap != nil && ord.DestinationSwap.RedeemTxHash != ""
	case swap.ActionRefund:
		return ord.SourceSwap != nil && ord.SourceSwap.RefundTxHash != ""
	default:
		return false
	}
}
