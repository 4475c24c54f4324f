package internal_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/swish-payments/internal"
)

var _ = Describe("AppError", func() {
	It("matches sentinels after a cause is attached", func() {
		cause := fmt.Errorf("no such file")
		err := internal.ErrInvalidCertificate.WithCause(cause)

		Expect(errors.Is(err, internal.ErrInvalidCertificate)).To(BeTrue())
		Expect(errors.Is(err, cause)).To(BeTrue())
		Expect(errors.Is(err, internal.ErrInvalidServerIP)).To(BeFalse())
		Expect(internal.ErrInvalidCertificate.Cause).To(BeNil())
		Expect(err.Error()).To(Equal("invalid client certificate: no such file"))
	})

	It("reports the first field message for validation errors", func() {
		err := internal.NewValidationFieldError("amount", "amount must be positive", internal.ErrCodeInvalidAmount)

		Expect(err.Error()).To(Equal("amount must be positive"))
		Expect(err.GetDetailedMessage()).To(Equal("amount must be positive"))
	})

	It("renders an HTTP response with its status", func() {
		status, body := internal.ErrUntrustedCaller.ToHTTPResponse()
		Expect(status).To(Equal(http.StatusUnauthorized))

		raw, err := json.Marshal(body)
		Expect(err).ToNot(HaveOccurred())
		Expect(raw).To(MatchJSON(`{"error":{"type":"UNAUTHORIZED","code":"UNTRUSTED_CALLER","message":"not authorized"}}`))
	})

	It("finds app errors only when they are the error itself", func() {
		_, ok := internal.IsAppError(internal.ErrMissingLocation)
		Expect(ok).To(BeTrue())

		_, ok = internal.IsAppError(errors.New("plain"))
		Expect(ok).To(BeFalse())
	})
})
