package order

import (
	"fmt"
	"time"

	"github.com/catalogfi/swapper/pkg/swap"
)

type Status uint

// dont change the sequence of the statuses, Merge ranks the happy path by the
// raw values and persisted snapshots compare against them
const (
	Unknown Status = iota
	Created
	Matched
	InitiateDetected
	Initiated
	CounterPartyInitiateDetected
	CounterPartyInitiated
	RedeemDetected
	Redeemed
	CounterPartyRedeemDetected
	CounterPartyRedeemed
	CounterPartySwapExpired
	Expired
	RefundDetected
	Refunded
	CounterPartyRefundDetected
	CounterPartyRefunded
	Cancelled
)

func (status Status) String() string {
	switch status {
	case Created:
		return "created"
	case Matched:
		return "matched"
	case InitiateDetected:
		return "initiate detected"
	case Initiated:
		return "initiated"
	case CounterPartyInitiateDetected:
		return "counterparty initiate detected"
	case CounterPartyInitiated:
		return "counterparty initiated"
	case RedeemDetected:
		return "redeem detected"
	case Redeemed:
		return "redeemed"
	case CounterPartyRedeemDetected:
		return "counterparty redeem detected"
	case CounterPartyRedeemed:
		return "counterparty redeemed"
	case CounterPartySwapExpired:
		return "counterparty swap expired"
	case Expired:
		return "expired"
	case RefundDetected:
		return "refund detected"
	case Refunded:
		return "refunded"
	case CounterPartyRefundDetected:
		return "counterparty refund detected"
	case CounterPartyRefunded:
		return "counterparty refunded"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Done reports whether the order needs no further attention from its owner.
// CounterPartyRedeemed is not done, it is the redeemer's cue to redeem.
func (status Status) Done() bool {
	switch status {
	case Redeemed, Refunded, CounterPartyRefunded, Cancelled:
		return true
	default:
		return false
	}
}

// Order pairs the off-chain create record with the two swap legs. SourceSwap
// is the owner's outbound leg, DestinationSwap is the counterparty's leg where
// the owner redeems. The engine treats orders as immutable snapshots and only
// derives from them.
type Order struct {
	ID         string `json:"id"`
	SecretHash string `json:"secretHash"`
	Secret     string `json:"secret"`
	Maker      string `json:"maker"`
	Taker      string `json:"taker"`

	// Status carries the off-chain lifecycle fed by the matching service
	// (Created, Matched, Cancelled). Everything beyond Matched is derived
	// from the legs by the Resolver, never trusted from the feed.
	Status Status `json:"status"`

	SourceSwap      *swap.AtomicSwap `json:"sourceSwap"`
	DestinationSwap *swap.AtomicSwap `json:"destinationSwap"`

	CreatedAt time.Time `json:"createdAt"`
	Deadline  time.Time `json:"deadline"`
}

// Policy tunes how a chain's leg observations are interpreted.
type Policy struct {
	// RedeemWithoutConfirmation treats an unconfirmed redeem on this chain as
	// final. Used for low-latency chains where waiting for a confirmation
	// stalls the happy path more than a reorg ever would.
	RedeemWithoutConfirmation bool `yaml:"redeemWithoutConfirmation"`
}

// Resolver derives the single externally visible order status from the two
// legs. It is pure, resolving the same order and heights twice always yields
// the same status.
type Resolver struct {
	policies map[swap.Chain]Policy
}

func NewResolver(policies map[swap.Chain]Policy) Resolver {
	if policies == nil {
		policies = map[swap.Chain]Policy{}
	}
	return Resolver{policies: policies}
}

// Resolve maps the order to its status given the current heights of the two
// chains. The precedence is fixed:
//
//  1. own redeem (destination leg) wins over everything, it is the terminal
//     happy path and is not overwritten by a later replacement tx,
//  2. counterparty redeem (source leg),
//  3. own refund, then counterparty refund,
//  4. counterparty expiry before own expiry, the protocol requires the
//     destination timelock to be strictly shorter so it always fires first,
//  5. initiation progress, then Matched.
//
// The protocol timelock asymmetry is assumed, not enforced here; it must be
// validated when the order is created.
func (resolver Resolver) Resolve(ord Order, sourceHeight, destHeight uint64) (Status, error) {
	if ord.Status == Cancelled {
		return Cancelled, nil
	}
	if ord.Status <= Created {
		return ord.Status, nil
	}
	if ord.SourceSwap == nil || ord.DestinationSwap == nil {
		return Unknown, fmt.Errorf("order %v is matched but missing a swap leg", ord.ID)
	}
	if err := ord.SourceSwap.Validate(); err != nil {
		return Unknown, fmt.Errorf("order %v source leg: %w", ord.ID, err)
	}
	if err := ord.DestinationSwap.Validate(); err != nil {
		return Unknown, fmt.Errorf("order %v destination leg: %w", ord.ID, err)
	}

	source := resolver.legStatus(*ord.SourceSwap, sourceHeight)
	dest := resolver.legStatus(*ord.DestinationSwap, destHeight)

	switch {
	case dest == swap.Redeemed:
		return Redeemed, nil
	case dest == swap.RedeemDetected:
		return RedeemDetected, nil
	case source == swap.Redeemed:
		return CounterPartyRedeemed, nil
	case source == swap.RedeemDetected:
		return CounterPartyRedeemDetected, nil
	case source == swap.Refunded:
		return Refunded, nil
	case source == swap.RefundDetected:
		return RefundDetected, nil
	case dest == swap.Refunded:
		return CounterPartyRefunded, nil
	case dest == swap.RefundDetected:
		return CounterPartyRefundDetected, nil
	case dest == swap.Expired:
		return CounterPartySwapExpired, nil
	case source == swap.Expired:
		return Expired, nil
	case dest == swap.Initiated:
		return CounterPartyInitiated, nil
	case dest == swap.InitiateDetected && source == swap.Initiated:
		return CounterPartyInitiateDetected, nil
	case source == swap.Initiated:
		return Initiated, nil
	case source == swap.InitiateDetected:
		return InitiateDetected, nil
	case dest == swap.InitiateDetected:
		return CounterPartyInitiateDetected, nil
	default:
		return Matched, nil
	}
}

// legStatus resolves a leg and applies the chain's redeem-finality policy.
func (resolver Resolver) legStatus(atomicSwap swap.AtomicSwap, height uint64) swap.Status {
	status := atomicSwap.Status(height)
	if status == swap.RedeemDetected && resolver.policies[atomicSwap.Chain].RedeemWithoutConfirmation {
		return swap.Redeemed
	}
	return status
}

// rank places a status on the happy path chain used by Merge. Refund, expiry
// and cancel branches are not ranked.
func rank(status Status) (uint, bool) {
	switch status {
	case Matched,
		InitiateDetected,
		Initiated,
		CounterPartyInitiateDetected,
		CounterPartyInitiated,
		RedeemDetected,
		Redeemed,
		CounterPartyRedeemDetected,
		CounterPartyRedeemed:
		return uint(status), true
	default:
		return 0, false
	}
}

// Merge arbitrates between two observations of the same order arriving from
// different sources (poll vs push) and keeps the more advanced one, so a
// stale poll response can never rewind the visible status. If either status
// is off the ranked chain the newer observation wins unconditionally.
func Merge(newOrder, oldOrder Order) Order {
	newRank, newOk := rank(newOrder.Status)
	oldRank, oldOk := rank(oldOrder.Status)
	if !newOk || !oldOk {
		return newOrder
	}
	if oldRank > newRank {
		return oldOrder
	}
	return newOrder
}
