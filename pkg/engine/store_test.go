package engine_test

import (
	"sync"
	"time"

	"github.com/catalogfi/swapper/pkg/engine"
	"github.com/catalogfi/swapper/pkg/swap"
	"github.com/google/uuid"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Claim store", func() {
	Context("when many workers race for the same action", func() {
		It("should grant the claim to exactly one of them", func() {
			store, err := engine.NewInMemStore(64)
			Expect(err).Should(BeNil())

			orderID := uuid.NewString()
			wins := int32(0)
			var mu sync.Mutex
			var wg sync.WaitGroup
			for i := 0; i < 64; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					claimed, err := store.TryClaim(orderID, swap.ActionInitiate, time.Minute)
					Expect(err).Should(BeNil())
					if claimed {
						mu.Lock()
						wins++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()
			Expect(wins).Should(Equal(int32(1)))
		})
	})

	Context("when a claim expires", func() {
		It("should grant a fresh claim for the same action", func() {
			store, err := engine.NewInMemStore(64)
			Expect(err).Should(BeNil())

			orderID := uuid.NewString()
			claimed, err := store.TryClaim(orderID, swap.ActionRedeem, 50*time.Millisecond)
			Expect(err).Should(BeNil())
			Expect(claimed).Should(BeTrue())

			claimed, err = store.TryClaim(orderID, swap.ActionRedeem, 50*time.Millisecond)
			Expect(err).Should(BeNil())
			Expect(claimed).Should(BeFalse())

			time.Sleep(100 * time.Millisecond)

			claimed, err = store.TryClaim(orderID, swap.ActionRedeem, time.Minute)
			Expect(err).Should(BeNil())
			Expect(claimed).Should(BeTrue())
		})

		It("should stop reporting the claim once it is past its TTL", func() {
			store, err := engine.NewInMemStore(64)
			Expect(err).Should(BeNil())

			orderID := uuid.NewString()
			claimed, err := store.TryClaim(orderID, swap.ActionInitiate, 50*time.Millisecond)
			Expect(err).Should(BeNil())
			Expect(claimed).Should(BeTrue())

			time.Sleep(100 * time.Millisecond)

			_, ok, err := store.Claim(orderID, swap.ActionInitiate)
			Expect(err).Should(BeNil())
			Expect(ok).Should(BeFalse())

			remaining, err := store.RemainingTTL(orderID, swap.ActionInitiate)
			Expect(err).Should(BeNil())
			Expect(remaining).Should(BeZero())
		})
	})

	Context("when a claim is released", func() {
		It("should grant the next claim immediately", func() {
			store, err := engine.NewInMemStore(64)
			Expect(err).Should(BeNil())

			orderID := uuid.NewString()
			claimed, err := store.TryClaim(orderID, swap.ActionInitiate, time.Hour)
			Expect(err).Should(BeNil())
			Expect(claimed).Should(BeTrue())

			Expect(store.Release(orderID, swap.ActionInitiate)).Should(Succeed())

			claimed, err = store.TryClaim(orderID, swap.ActionInitiate, time.Hour)
			Expect(err).Should(BeNil())
			Expect(claimed).Should(BeTrue())
		})
	})

	Context("when recording the submission result", func() {
		It("should attach the tx hash to the standing claim", func() {
			store, err := engine.NewInMemStore(64)
			Expect(err).Should(BeNil())

			orderID := uuid.NewString()
			claimed, err := store.TryClaim(orderID, swap.ActionRedeem, time.Hour)
			Expect(err).Should(BeNil())
			Expect(claimed).Should(BeTrue())

			Expect(store.RecordResult(orderID, swap.ActionRedeem, "0xabc")).Should(Succeed())

			claim, ok, err := store.Claim(orderID, swap.ActionRedeem)
			Expect(err).Should(BeNil())
			Expect(ok).Should(BeTrue())
			Expect(claim.TxHash).Should(Equal("0xabc"))
		})

		It("should keep the remaining TTL within the claimed window", func() {
			store, err := engine.NewInMemStore(64)
			Expect(err).Should(BeNil())

			orderID := uuid.NewString()
			claimed, err := store.TryClaim(orderID, swap.ActionInitiate, time.Minute)
			Expect(err).Should(BeNil())
			Expect(claimed).Should(BeTrue())

			remaining, err := store.RemainingTTL(orderID, swap.ActionInitiate)
			Expect(err).Should(BeNil())
			Expect(remaining).Should(BeNumerically(">", 50*time.Second))
			Expect(remaining).Should(BeNumerically("<=", time.Minute))
		})
	})

	Context("when the store is at capacity", func() {
		It("should evict the least recently used claim first", func() {
			store, err := engine.NewInMemStore(2)
			Expect(err).Should(BeNil())

			first, second, third := uuid.NewString(), uuid.NewString(), uuid.NewString()
			for _, orderID := range []string{first, second, third} {
				claimed, err := store.TryClaim(orderID, swap.ActionInitiate, time.Hour)
				Expect(err).Should(BeNil())
				Expect(claimed).Should(BeTrue())
			}

			// the first claim is evicted, so it can be won again
			claimed, err := store.TryClaim(first, swap.ActionInitiate, time.Hour)
			Expect(err).Should(BeNil())
			Expect(claimed).Should(BeTrue())

			_, ok, err := store.Claim(third, swap.ActionInitiate)
			Expect(err).Should(BeNil())
			Expect(ok).Should(BeTrue())
		})

		It("should not refresh recency when peeking at a claim", func() {
			store, err := engine.NewInMemStore(2)
			Expect(err).Should(BeNil())

			first, second, third := uuid.NewString(), uuid.NewString(), uuid.NewString()
			for _, orderID := range []string{first, second} {
				claimed, err := store.TryClaim(orderID, swap.ActionInitiate, time.Hour)
				Expect(err).Should(BeNil())
				Expect(claimed).Should(BeTrue())
			}

			// peeking at the first claim must not save it from eviction
			_, ok, err := store.Claim(first, swap.ActionInitiate)
			Expect(err).Should(BeNil())
			Expect(ok).Should(BeTrue())

			claimed, err := store.TryClaim(third, swap.ActionInitiate, time.Hour)
			Expect(err).Should(BeNil())
			Expect(claimed).Should(BeTrue())

			_, ok, err = store.Claim(first, swap.ActionInitiate)
			Expect(err).Should(BeNil())
			Expect(ok).Should(BeFalse())
		})
	})

	Context("when the same order needs different actions", func() {
		It("should track the claims independently", func() {
			store, err := engine.NewInMemStore(64)
			Expect(err).Should(BeNil())

			orderID := uuid.NewString()
			for _, action := range []swap.Action{swap.ActionInitiate, swap.ActionRedeem, swap.ActionRefund} {
				claimed, err := store.TryClaim(orderID, action, time.Hour)
				Expect(err).Should(BeNil())
				Expect(claimed).Should(BeTrue(), string(action))
			}
		})
	})
})
