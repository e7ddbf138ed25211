package order_test

import (
	"github.com/catalogfi/swapper/pkg/order"
	"github.com/catalogfi/swapper/pkg/swap"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// legWith builds a leg observation in the given state at height 1000 with a
// comfortable timelock.
func legWith(chain swap.Chain, status swap.Status) *swap.AtomicSwap {
	atomicSwap := &swap.AtomicSwap{
		Chain:    chain,
		Amount:   "100000",
		Timelock: 1000,
	}
	switch status {
	case swap.Idle:
	case swap.InitiateDetected:
		atomicSwap.InitiateTxHash = "0xinit"
	case swap.Initiated:
		atomicSwap.InitiateTxHash = "0xinit"
		atomicSwap.InitiateBlockNumber = 900
	case swap.RedeemDetected:
		atomicSwap.InitiateTxHash = "0xinit"
		atomicSwap.InitiateBlockNumber = 900
		atomicSwap.RedeemTxHash = "0xredeem"
	case swap.Redeemed:
		atomicSwap.InitiateTxHash = "0xinit"
		atomicSwap.InitiateBlockNumber = 900
		atomicSwap.RedeemTxHash = "0xredeem"
		atomicSwap.RedeemBlockNumber = 950
	case swap.RefundDetected:
		atomicSwap.InitiateTxHash = "0xinit"
		atomicSwap.InitiateBlockNumber = 900
		atomicSwap.RefundTxHash = "0xrefund"
	case swap.Refunded:
		atomicSwap.InitiateTxHash = "0xinit"
		atomicSwap.InitiateBlockNumber = 900
		atomicSwap.RefundTxHash = "0xrefund"
		atomicSwap.RefundBlockNumber = 950
	case swap.Expired:
		atomicSwap.InitiateTxHash = "0xinit"
		atomicSwap.InitiateBlockNumber = 900
		atomicSwap.Timelock = 50
	}
	return atomicSwap
}

func orderWith(source, dest swap.Status) order.Order {
	return order.Order{
		ID:              "order-1",
		SecretHash:      "c0ffee",
		Maker:           "0xmaker",
		Taker:           "0xtaker",
		Status:          order.Matched,
		SourceSwap:      legWith("ethereum", source),
		DestinationSwap: legWith("bitcoin", dest),
	}
}

var _ = Describe("Order status resolver", func() {
	resolver := order.NewResolver(nil)

	resolve := func(ord order.Order) order.Status {
		status, err := resolver.Resolve(ord, 1000, 1000)
		Expect(err).To(BeNil())
		return status
	}

	Context("precedence between the two legs", func() {
		It("should prefer the own redeem over everything else", func() {
			Expect(resolve(orderWith(swap.Refunded, swap.Redeemed))).To(Equal(order.Redeemed))
			Expect(resolve(orderWith(swap.Expired, swap.Redeemed))).To(Equal(order.Redeemed))
			Expect(resolve(orderWith(swap.Redeemed, swap.Redeemed))).To(Equal(order.Redeemed))
			Expect(resolve(orderWith(swap.Idle, swap.RedeemDetected))).To(Equal(order.RedeemDetected))
		})

		It("should report the counterparty redeem next", func() {
			Expect(resolve(orderWith(swap.Redeemed, swap.Initiated))).To(Equal(order.CounterPartyRedeemed))
			Expect(resolve(orderWith(swap.RedeemDetected, swap.Initiated))).To(Equal(order.CounterPartyRedeemDetected))
			Expect(resolve(orderWith(swap.Redeemed, swap.Refunded))).To(Equal(order.CounterPartyRedeemed))
		})

		It("should prefer the own refund over the counterparty refund", func() {
			Expect(resolve(orderWith(swap.Refunded, swap.Refunded))).To(Equal(order.Refunded))
			Expect(resolve(orderWith(swap.RefundDetected, swap.Initiated))).To(Equal(order.RefundDetected))
			Expect(resolve(orderWith(swap.Initiated, swap.Refunded))).To(Equal(order.CounterPartyRefunded))
			Expect(resolve(orderWith(swap.Initiated, swap.RefundDetected))).To(Equal(order.CounterPartyRefundDetected))
		})

		It("should check the counterparty expiry before the own expiry", func() {
			Expect(resolve(orderWith(swap.Expired, swap.Expired))).To(Equal(order.CounterPartySwapExpired))
			Expect(resolve(orderWith(swap.Expired, swap.Initiated))).To(Equal(order.Expired))
			Expect(resolve(orderWith(swap.Initiated, swap.Expired))).To(Equal(order.CounterPartySwapExpired))
		})

		It("should track initiation progress", func() {
			Expect(resolve(orderWith(swap.InitiateDetected, swap.Idle))).To(Equal(order.InitiateDetected))
			Expect(resolve(orderWith(swap.Initiated, swap.Idle))).To(Equal(order.Initiated))
			Expect(resolve(orderWith(swap.Idle, swap.InitiateDetected))).To(Equal(order.CounterPartyInitiateDetected))
			Expect(resolve(orderWith(swap.Idle, swap.Initiated))).To(Equal(order.CounterPartyInitiated))
			// both legs initiated is the more advanced state, the next actor
			// is the order owner
			Expect(resolve(orderWith(swap.Initiated, swap.Initiated))).To(Equal(order.CounterPartyInitiated))
			Expect(resolve(orderWith(swap.Initiated, swap.InitiateDetected))).To(Equal(order.CounterPartyInitiateDetected))
		})

		It("should fall back to matched", func() {
			Expect(resolve(orderWith(swap.Idle, swap.Idle))).To(Equal(order.Matched))
		})
	})

	Context("off-chain lifecycle pass-through", func() {
		It("should not derive cancellation from the legs", func() {
			ord := orderWith(swap.Initiated, swap.Initiated)
			ord.Status = order.Cancelled
			Expect(resolve(ord)).To(Equal(order.Cancelled))
		})

		It("should leave an unmatched order untouched", func() {
			ord := order.Order{ID: "order-2", Status: order.Created}
			Expect(resolve(ord)).To(Equal(order.Created))
		})
	})

	Context("malformed orders", func() {
		It("should reject a matched order with a missing leg", func() {
			ord := orderWith(swap.Initiated, swap.Initiated)
			ord.DestinationSwap = nil
			_, err := resolver.Resolve(ord, 1000, 1000)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring(ord.ID))
		})

		It("should reject inconsistent leg observations", func() {
			ord := orderWith(swap.Initiated, swap.Initiated)
			ord.SourceSwap.RefundTxHash = "0xrefund"
			ord.SourceSwap.RedeemTxHash = "0xredeem"
			_, err := resolver.Resolve(ord, 1000, 1000)
			Expect(err).To(HaveOccurred())
		})
	})

	Context("idempotence", func() {
		It("should resolve the same snapshot to the same status", func() {
			ord := orderWith(swap.Initiated, swap.RedeemDetected)
			first, err := resolver.Resolve(ord, 1000, 1000)
			Expect(err).To(BeNil())
			second, err := resolver.Resolve(ord, 1000, 1000)
			Expect(err).To(BeNil())
			Expect(first).To(Equal(second))
		})
	})

	Context("redeem finality policy", func() {
		It("should treat an unconfirmed redeem as final on a configured chain", func() {
			lenient := order.NewResolver(map[swap.Chain]order.Policy{
				"bitcoin": {RedeemWithoutConfirmation: true},
			})
			ord := orderWith(swap.Initiated, swap.RedeemDetected)
			status, err := lenient.Resolve(ord, 1000, 1000)
			Expect(err).To(BeNil())
			Expect(status).To(Equal(order.Redeemed))

			// the strict default keeps waiting for the confirmation
			status, err = resolver.Resolve(ord, 1000, 1000)
			Expect(err).To(BeNil())
			Expect(status).To(Equal(order.RedeemDetected))
		})
	})
})

var _ = Describe("Order status merge", func() {
	withStatus := func(status order.Status) order.Order {
		ord := orderWith(swap.Idle, swap.Idle)
		ord.Status = status
		return ord
	}

	It("should keep the more advanced status on the ranked chain", func() {
		older := withStatus(order.Initiated)
		newer := withStatus(order.Matched)

		// a stale poll response must not rewind the visible status
		Expect(order.Merge(newer, older).Status).To(Equal(order.Initiated))
		Expect(order.Merge(older, newer).Status).To(Equal(order.Initiated))
	})

	It("should never move backwards on the ranked chain", func() {
		ranked := []order.Status{
			order.Matched,
			order.InitiateDetected,
			order.Initiated,
			order.CounterPartyInitiateDetected,
			order.CounterPartyInitiated,
			order.RedeemDetected,
			order.Redeemed,
			order.CounterPartyRedeemDetected,
			order.CounterPartyRedeemed,
		}
		for i, a := range ranked {
			for j, b := range ranked {
				merged := order.Merge(withStatus(a), withStatus(b))
				expected := a
				if j > i {
					expected = b
				}
				Expect(merged.Status).To(Equal(expected))
			}
		}
	})

	It("should let the newer observation win when either status is unranked", func() {
		Expect(order.Merge(withStatus(order.Refunded), withStatus(order.Redeemed)).Status).To(Equal(order.Refunded))
		Expect(order.Merge(withStatus(order.Matched), withStatus(order.Expired)).Status).To(Equal(order.Matched))
		Expect(order.Merge(withStatus(order.Cancelled), withStatus(order.CounterPartyRedeemed)).Status).To(Equal(order.Cancelled))
	})
})
