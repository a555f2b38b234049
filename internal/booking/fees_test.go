package booking_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/stayswap/stayswap/internal/booking"
)

var _ = Describe("CalculateFees", func() {
	day := func(n int) time.Time {
		return time.Date(2026, 3, 1+n, 15, 0, 0, 0, time.UTC)
	}

	It("should multiply the per-night rate by the night count", func() {
		fees := booking.CalculateFees(day(0), day(2), 5000, 20000, 10000)

		Expect(fees.Nights).To(Equal(int64(2)))
		Expect(fees.ServiceFeeTotal).To(Equal(int64(10000)))
		Expect(fees.TotalFee).To(Equal(int64(40000)))
	})

	It("should round partial days up to a full night", func() {
		start := time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC)
		end := time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC)

		fees := booking.CalculateFees(start, end, 5000, 0, 0)

		Expect(fees.Nights).To(Equal(int64(1)))
		Expect(fees.TotalFee).To(Equal(int64(5000)))
	})

	It("should clamp an inverted range to zero nights", func() {
		fees := booking.CalculateFees(day(3), day(1), 5000, 20000, 10000)

		Expect(fees.Nights).To(Equal(int64(0)))
		Expect(fees.ServiceFeeTotal).To(Equal(int64(0)))
		Expect(fees.TotalFee).To(Equal(int64(30000)))
	})

	It("should include fixed fees even for a zero night stay", func() {
		fees := booking.CalculateFees(day(1), day(1), 5000, 20000, 10000)

		Expect(fees.Nights).To(Equal(int64(0)))
		Expect(fees.TotalFee).To(Equal(int64(30000)))
	})

	It("should keep the per-night rate on the snapshot", func() {
		fees := booking.CalculateFees(day(0), day(5), 7500, 0, 0)

		Expect(fees.ServiceFeePerNight).To(Equal(int64(7500)))
		Expect(fees.ServiceFeeTotal).To(Equal(int64(37500)))
	})
})
