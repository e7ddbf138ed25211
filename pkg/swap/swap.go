package swap

import (
	"fmt"
)

type Action string

var (
	ActionInitiate Action = "initiate"
	ActionRedeem   Action = "redeem"
	ActionRefund   Action = "refund"
	ActionNone     Action = "none"
)

// Chain identifies the blockchain hosting one leg of a swap. The engine never
// talks to the chain itself, it only needs a stable identifier to look up
// per-chain policies and heights.
type Chain string

type Status uint8

const (
	Idle Status = iota
	InitiateDetected
	Initiated
	RedeemDetected
	Redeemed
	RefundDetected
	Refunded
	Expired
)

func (status Status) String() string {
	switch status {
	case Idle:
		return "idle"
	case InitiateDetected:
		return "initiate detected"
	case Initiated:
		return "initiated"
	case RedeemDetected:
		return "redeem detected"
	case Redeemed:
		return "redeemed"
	case RefundDetected:
		return "refund detected"
	case Refunded:
		return "refunded"
	case Expired:
		return "expired"
	default:
		return "unknown"
	}
}

// AtomicSwap is the normalised on-chain view of one leg of an atomic swap, as
// reported by a chain indexer. A tx hash without its block number means the
// transaction has been seen but not confirmed yet.
type AtomicSwap struct {
	Chain Chain `json:"chain"`

	Amount    string `json:"amount"`
	Initiator string `json:"initiator"`
	Redeemer  string `json:"redeemer"`

	// Timelock is the number of blocks after the initiate confirmation after
	// which the leg becomes refundable.
	Timelock uint64 `json:"timelock"`

	InitiateTxHash      string `json:"initiateTxHash"`
	InitiateBlockNumber uint64 `json:"initiateBlockNumber"`
	RedeemTxHash        string `json:"redeemTxHash"`
	RedeemBlockNumber   uint64 `json:"redeemBlockNumber"`
	RefundTxHash        string `json:"refundTxHash"`
	RefundBlockNumber   uint64 `json:"refundBlockNumber"`
}

// Status resolves the leg against the chain's current block height. Redeem and
// refund are terminal and shadow the expiry check, a leg redeemed after its
// nominal expiry is still redeemed. Expiry is checked before the initiated
// branch so an unredeemed leg ages out once the timelock passes.
func (atomicSwap AtomicSwap) Status(currentBlock uint64) Status {
	switch {
	case atomicSwap.RedeemTxHash != "":
		if atomicSwap.RedeemBlockNumber != 0 {
			return Redeemed
		}
		return RedeemDetected
	case atomicSwap.RefundTxHash != "":
		if atomicSwap.RefundBlockNumber != 0 {
			return Refunded
		}
		return RefundDetected
	case atomicSwap.InitiateTxHash != "":
		if atomicSwap.InitiateBlockNumber == 0 {
			return InitiateDetected
		}
		if currentBlock > atomicSwap.InitiateBlockNumber+atomicSwap.Timelock {
			return Expired
		}
		return Initiated
	default:
		return Idle
	}
}

// Expired reports whether the refund path has opened up for the leg.
func (atomicSwap AtomicSwap) Expired(currentBlock uint64) bool {
	return atomicSwap.Status(currentBlock) == Expired
}

// Validate rejects observations which cannot come from a consistent indexer.
// Malformed data is never defaulted to idle, that could mask a real on-chain
// event.
func (atomicSwap AtomicSwap) Validate() error {
	if atomicSwap.Chain == "" {
		return fmt.Errorf("atomic swap missing chain")
	}
	if atomicSwap.RedeemTxHash != "" && atomicSwap.RefundTxHash != "" {
		return fmt.Errorf("atomic swap has both redeem (%v) and refund (%v) txs", atomicSwap.RedeemTxHash, atomicSwap.RefundTxHash)
	}
	if atomicSwap.InitiateTxHash == "" && (atomicSwap.RedeemTxHash != "" || atomicSwap.RefundTxHash != "") {
		return fmt.Errorf("atomic swap redeemed or refunded without an initiate tx")
	}
	if atomicSwap.InitiateBlockNumber != 0 && atomicSwap.InitiateTxHash == "" {
		return fmt.Errorf("atomic swap has initiate block %v without a tx hash", atomicSwap.InitiateBlockNumber)
	}
	if atomicSwap.RedeemBlockNumber != 0 && atomicSwap.RedeemTxHash == "" {
		return fmt.Errorf("atomic swap has redeem block %v without a tx hash", atomicSwap.RedeemBlockNumber)
	}
	if atomicSwap.RefundBlockNumber != 0 && atomicSwap.RefundTxHash == "" {
		return fmt.Errorf("atomic swap has refund block %v without a tx hash", atomicSwap.RefundBlockNumber)
	}
	if atomicSwap.InitiateTxHash != "" && atomicSwap.Amount == "" {
		return fmt.Errorf("atomic swap initiated without an amount")
	}
	return nil
}
