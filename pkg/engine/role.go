package engine

import (
	"github.com/catalogfi/swapper/pkg/order"
	"github.com/catalogfi/swapper/pkg/swap"
)

// Role is the party's position in the swap protocol. The two roles are not
// symmetric, the initiator locks first and reveals the secret, the redeemer
// locks second and learns the secret from the initiator's redeem. Each role
// carries its own transition table, trying to unify them with shared
// conditionals is how the subtle bugs creep in.
type Role uint8

const (
	RoleInitiator Role = iota
	RoleRedeemer
)

func (role Role) String() string {
	if role == RoleInitiator {
		return "initiator"
	}
	return "redeemer"
}

// initiatorActions: the initiator locks at match time, redeems the
// counterparty's lock once both legs are initiated, and refunds its own lock
// after expiry.
var initiatorActions = map[order.Status]swap.Action{
	order.Matched:               swap.ActionInitiate,
	order.CounterPartyInitiated: swap.ActionRedeem,
	order.Expired:               swap.ActionRefund,
}

// redeemerActions: the redeemer only locks after the initiator's lock is
// confirmed, redeems once the initiator's redeem reveals the secret, and
// refunds its own lock after expiry.
var redeemerActions = map[order.Status]swap.Action{
	order.CounterPartyInitiated: swap.ActionInitiate,
	order.CounterPartyRedeemed:  swap.ActionRedeem,
	order.Expired:               swap.ActionRefund,
}

// Next returns the action the role must take at the given order status and
// whether acting is currently legal. Statuses outside the table, including
// anything a lagging chain might surface that the protocol does not expect,
// default to no action.
func (role Role) Next(status order.Status) (swap.Action, bool) {
	var table map[order.Status]swap.Action
	switch role {
	case RoleInitiator:
		table = initiatorActions
	case RoleRedeemer:
		table = redeemerActions
	default:
		return swap.ActionNone, false
	}
	action, ok := table[status]
	if !ok {
		return swap.ActionNone, false
	}
	return action, true
}
