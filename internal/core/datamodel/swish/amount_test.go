package swish_test

import (
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	swishtypes "github.com/frahmantamala/swish-payments/internal/core/datamodel/swish"
)

var _ = Describe("Amount", func() {
	decode := func(body string) (swishtypes.PaymentResponse, error) {
		var payment swishtypes.PaymentResponse
		err := json.Unmarshal([]byte(body), &payment)
		return payment, err
	}

	It("re-encodes the amount the gateway sent", func() {
		payment, err := decode(`{"id":"AB23","amount":"100.00","status":"PAID"}`)
		Expect(err).ToNot(HaveOccurred())
		Expect(payment.Amount.String()).To(Equal("100.00"))
		Expect(payment.Amount.Decimal().Equal(decimal.NewFromInt(100))).To(BeTrue())

		out, err := json.Marshal(payment)
		Expect(err).ToNot(HaveOccurred())
		Expect(string(out)).To(ContainSubstring(`"amount":"100.00"`))
	})

	It("keeps numeric amounts numeric", func() {
		payment, err := decode(`{"amount":9.5}`)
		Expect(err).ToNot(HaveOccurred())
		Expect(payment.Amount.String()).To(Equal("9.5"))
		Expect(payment.Amount.StringFixed(2)).To(Equal("9.50"))

		out, err := json.Marshal(payment)
		Expect(err).ToNot(HaveOccurred())
		Expect(string(out)).To(ContainSubstring(`"amount":9.5`))
	})

	It("accepts an empty amount", func() {
		payment, err := decode(`{"id":"AB23","amount":"","status":"ERROR"}`)
		Expect(err).ToNot(HaveOccurred())
		Expect(payment.Amount.Decimal().IsZero()).To(BeTrue())

		out, err := json.Marshal(payment)
		Expect(err).ToNot(HaveOccurred())
		Expect(string(out)).To(ContainSubstring(`"amount":""`))
	})

	It("rejects text that is not a number", func() {
		_, err := decode(`{"amount":"ten"}`)
		Expect(err).To(MatchError(ContainSubstring("invalid amount")))
	})

	It("formats locally built amounts with two decimals", func() {
		out, err := json.Marshal(swishtypes.NewAmount(decimal.RequireFromString("12.5")))
		Expect(err).ToNot(HaveOccurred())
		Expect(string(out)).To(Equal(`"12.50"`))
	})
})
