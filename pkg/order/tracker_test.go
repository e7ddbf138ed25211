package order_test

import (
	"github.com/catalogfi/swapper/pkg/order"
	"github.com/catalogfi/swapper/pkg/swap"
	"github.com/google/uuid"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Tracker", func() {
	Context("when the same order arrives from multiple sources", func() {
		It("should keep the most advanced view", func() {
			tracker := order.NewTracker()
			id := uuid.NewString()

			tracker.Update(order.Order{ID: id, Status: order.Redeemed})
			merged := tracker.Update(order.Order{ID: id, Status: order.Matched})
			Expect(merged.Status).Should(Equal(order.Redeemed))

			tracked, err := tracker.OrderByID(id)
			Expect(err).Should(BeNil())
			Expect(tracked.Status).Should(Equal(order.Redeemed))
		})

		It("should carry the latest observation's legs forward", func() {
			tracker := order.NewTracker()
			id := uuid.NewString()

			tracker.Update(order.Order{ID: id, Status: order.Matched})
			merged := tracker.Update(order.Order{
				ID:         id,
				Status:     order.Initiated,
				SourceSwap: legWith("ethereum", swap.Initiated),
			})
			Expect(merged.Status).Should(Equal(order.Initiated))
			Expect(merged.SourceSwap).ShouldNot(BeNil())
		})
	})

	Context("when an order is unknown", func() {
		It("should report it as not found", func() {
			tracker := order.NewTracker()
			_, err := tracker.OrderByID(uuid.NewString())
			Expect(err).ShouldNot(BeNil())
		})
	})

	Context("when listing pending orders", func() {
		It("should only return the ones needing attention", func() {
			tracker := order.NewTracker()

			pendingID := uuid.NewString()
			tracker.Update(order.Order{ID: pendingID, Status: order.CounterPartyInitiated})
			tracker.Update(order.Order{ID: uuid.NewString(), Status: order.Redeemed})
			tracker.Update(order.Order{ID: uuid.NewString(), Status: order.Cancelled})

			pending := tracker.PendingOrders()
			Expect(pending).Should(HaveLen(1))
			Expect(pending[0].ID).Should(Equal(pendingID))
		})
	})
})
