package booking_test

import (
	"errors"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ddevcap/seatgrid/booking"
)

var _ = Describe("TimeOfDay", func() {
	DescribeTable("ParseTimeOfDay",
		func(in string, want booking.TimeOfDay) {
			got, err := booking.ParseTimeOfDay(in)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(want))
		},
		Entry("colon form", "09:30", booking.TimeOfDay{Hour: 9, Minute: 30}),
		Entry("compact form", "2145", booking.TimeOfDay{Hour: 21, Minute: 45}),
		Entry("midnight", "00:00", booking.TimeOfDay{}),
	)

	It("rejects garbage", func() {
		_, err := booking.ParseTimeOfDay("9.30am")
		Expect(err).To(MatchError(ContainSubstring("invalid time of day")))
	})

	It("places itself on a date in the given zone", func() {
		sgt := time.FixedZone("SGT", 8*60*60)
		// 20:00 UTC on the 16th is already the 17th in Singapore.
		date := time.Date(2026, 10, 16, 20, 0, 0, 0, time.UTC)
		got := booking.TimeOfDay{Hour: 9}.On(date, sgt)
		Expect(got).To(Equal(time.Date(2026, 10, 17, 9, 0, 0, 0, sgt)))
	})

	It("round-trips through text", func() {
		b, err := booking.TimeOfDay{Hour: 7, Minute: 5}.MarshalText()
		Expect(err).NotTo(HaveOccurred())
		Expect(string(b)).To(Equal("07:05"))

		var t booking.TimeOfDay
		Expect(t.UnmarshalText(b)).To(Succeed())
		Expect(t).To(Equal(booking.TimeOfDay{Hour: 7, Minute: 5}))
	})
})

var _ = Describe("errors", func() {
	It("treats an unknown library as a contract violation", func() {
		err := fmt.Errorf("library 99: %w", booking.ErrNotFound)
		Expect(errors.Is(err, booking.ErrNotFound)).To(BeTrue())
		Expect(errors.Is(err, booking.ErrContractViolation)).To(BeTrue())
		Expect(errors.Is(booking.ErrContractViolation, booking.ErrNotFound)).To(BeFalse())
	})

	It("looks libraries up in the catalogue", func() {
		info := booking.LibraryInfo{7: {Name: "Central"}}
		d, err := info.Library(7)
		Expect(err).NotTo(HaveOccurred())
		Expect(d.Name).To(Equal("Central"))

		_, err = info.Library(8)
		Expect(err).To(MatchError(booking.ErrNotFound))
	})
})
