package swish_test

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"encoding/pem"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/swish-payments/internal"
	swishtypes "github.com/frahmantamala/swish-payments/internal/core/datamodel/swish"
	"github.com/frahmantamala/swish-payments/internal/swish"
	"github.com/frahmantamala/swish-payments/pkg/logger"
)

func validPaymentRequest() swishtypes.PaymentRequest {
	return swishtypes.PaymentRequest{
		PayeePaymentReference: "0123456789",
		CallbackURL:           "https://shop.example.com/swish/callback",
		PayerAlias:            "4671234768",
		PayeeAlias:            "1231181189",
		Amount:                "100.00",
		Currency:              "EUR",
		Message:               "Kingston USB Flash Drive 8 GB",
	}
}

var _ = Describe("Client", func() {
	var (
		server   *httptest.Server
		handler  http.HandlerFunc
		client   *swish.Client
		lastBody []byte
		lastReq  *http.Request
		ctx      context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		lastBody = nil
		lastReq = nil
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			lastReq = r
			lastBody, _ = io.ReadAll(r.Body)
			handler(w, r)
		}))

		var err error
		client, err = swish.NewClientWithHTTPClient(swish.Config{
			Endpoint: server.URL + "/swish-cpcapi/api/v1/",
			ServerIP: "127.0.0.1",
		}, server.Client(), logger.Discard())
		Expect(err).ToNot(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
	})

	Describe("GetPayment", func() {
		It("returns the payment exactly as decoded", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = io.WriteString(w, `{
					"id": "AB23D7406ECE4542A80152D909EF9F6B",
					"payeePaymentReference": "0123456789",
					"paymentReference": "6D6CD7406ECE4542A80152D909EF9F6B",
					"callbackUrl": "https://shop.example.com/swish/callback",
					"payerAlias": "4671234768",
					"payeeAlias": "1231181189",
					"amount": 100.00,
					"currency": "SEK",
					"message": "Kingston USB Flash Drive 8 GB",
					"status": "PAID",
					"dateCreated": "2019-01-02T14:29:51.092Z",
					"datePaid": "2019-01-02T14:29:55.093Z",
					"errorCode": null,
					"errorMessage": ""
				}`)
			}

			payment, err := client.GetPayment(ctx, "AB23D7406ECE4542A80152D909EF9F6B")
			Expect(err).ToNot(HaveOccurred())

			Expect(lastReq.Method).To(Equal(http.MethodGet))
			Expect(lastReq.URL.Path).To(Equal("/swish-cpcapi/api/v1/paymentrequests/AB23D7406ECE4542A80152D909EF9F6B"))
			Expect(payment.ID).To(Equal("AB23D7406ECE4542A80152D909EF9F6B"))
			Expect(payment.PaymentReference).To(Equal("6D6CD7406ECE4542A80152D909EF9F6B"))
			Expect(payment.Amount.StringFixed(2)).To(Equal("100.00"))
			Expect(payment.Status).To(Equal(swishtypes.PaymentStatusPaid))
			Expect(payment.Status.Final()).To(BeTrue())
			Expect(payment.DateCreated).To(Equal("2019-01-02T14:29:51.092Z"))
			Expect(payment.DatePaid).To(Equal("2019-01-02T14:29:55.093Z"))
			Expect(payment.ErrorCode).To(BeEmpty())
		})

		It("keeps the amount text and accepts an empty amount", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				if strings.HasSuffix(r.URL.Path, "/empty") {
					_, _ = io.WriteString(w, `{"id":"E1","amount":"","status":"ERROR"}`)
					return
				}
				_, _ = io.WriteString(w, `{"id":"P1","amount":"100.00","status":"PAID"}`)
			}

			payment, err := client.GetPayment(ctx, "paid")
			Expect(err).ToNot(HaveOccurred())
			encoded, err := json.Marshal(payment)
			Expect(err).ToNot(HaveOccurred())
			Expect(string(encoded)).To(ContainSubstring(`"amount":"100.00"`))

			payment, err = client.GetPayment(ctx, "empty")
			Expect(err).ToNot(HaveOccurred())
			Expect(payment.Status).To(Equal(swishtypes.PaymentStatusError))
			Expect(payment.Amount.Decimal().IsZero()).To(BeTrue())
		})

		It("escapes the token in the path", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, `{"id":"x"}`)
			}
			_, err := client.GetPayment(ctx, "a/b")
			Expect(err).ToNot(HaveOccurred())
			Expect(lastReq.URL.EscapedPath()).To(Equal("/swish-cpcapi/api/v1/paymentrequests/a%2Fb"))
		})

		It("returns the decoding error for a malformed body", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, `{"id":`)
			}
			_, err := client.GetPayment(ctx, "token")
			Expect(err).To(HaveOccurred())
			Expect(errors.Is(err, io.ErrUnexpectedEOF)).To(BeTrue())
		})

		It("returns gateway errors as a rejection", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
				_, _ = io.WriteString(w, `[{"errorCode":"RP04","errorMessage":"No payment request found"}]`)
			}
			payment, err := client.GetPayment(ctx, "missing")
			Expect(payment).To(BeNil())

			var rejection *swishtypes.Rejection
			Expect(errors.As(err, &rejection)).To(BeTrue())
			Expect(rejection.StatusCode).To(Equal(http.StatusNotFound))
			Expect(rejection.Code()).To(Equal("RP04"))
		})
	})

	Describe("CreatePaymentRequest", func() {
		It("forces the currency to SEK", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Location", server.URL+"/swish-cpcapi/api/v1/paymentrequests/ABC123")
				w.WriteHeader(http.StatusCreated)
			}

			req := validPaymentRequest()
			_, err := client.CreatePaymentRequest(ctx, req)
			Expect(err).ToNot(HaveOccurred())

			var sent map[string]any
			Expect(json.Unmarshal(lastBody, &sent)).To(Succeed())
			Expect(sent["currency"]).To(Equal("SEK"))
			Expect(sent["amount"]).To(Equal("100.00"))
			Expect(sent["payeeAlias"]).To(Equal("1231181189"))
			Expect(lastReq.Method).To(Equal(http.MethodPost))
			Expect(lastReq.URL.Path).To(Equal("/swish-cpcapi/api/v1/paymentrequests"))
			Expect(lastReq.Header.Get("Content-Type")).To(Equal("application/json"))
			Expect(req.Currency).To(Equal("EUR"), "the caller's value is not mutated")
		})

		It("extracts the swish id and the launch token", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Location", "https://mss.cpc.getswish.net/swish-cpcapi/api/v1/paymentrequests/ABC123")
				w.Header().Set("PaymentRequestToken", "XYZ")
				w.WriteHeader(http.StatusCreated)
			}

			result, err := client.CreatePaymentRequest(ctx, validPaymentRequest())
			Expect(err).ToNot(HaveOccurred())
			Expect(result.OK()).To(BeTrue())
			Expect(result.Rejected).To(BeNil())
			Expect(*result.Created).To(Equal(swishtypes.PaymentRequestCreated{
				SwishID:             "ABC123",
				PaymentRequestToken: "XYZ",
				Location:            "https://mss.cpc.getswish.net/swish-cpcapi/api/v1/paymentrequests/ABC123",
			}))

			encoded, err := json.Marshal(result.Created)
			Expect(err).ToNot(HaveOccurred())
			Expect(encoded).To(MatchJSON(`{"swishId":"ABC123","paymentRequestToken":"XYZ"}`))
		})

		It("returns the gateway error body as a rejection", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnprocessableEntity)
				_, _ = io.WriteString(w, `{"errorCode":"RF01","errorMessage":"bad"}`)
			}

			result, err := client.CreatePaymentRequest(ctx, validPaymentRequest())
			Expect(err).ToNot(HaveOccurred())
			Expect(result.OK()).To(BeFalse())
			Expect(result.Created).To(BeNil())
			Expect(result.Rejected.StatusCode).To(Equal(http.StatusUnprocessableEntity))
			Expect(result.Rejected.Errors).To(Equal([]swishtypes.GatewayError{
				{ErrorCode: "RF01", ErrorMessage: "bad"},
			}))
			Expect([]byte(result.Rejected.Body)).To(MatchJSON(`{"errorCode":"RF01","errorMessage":"bad"}`))
		})

		It("decodes an array of gateway errors", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnprocessableEntity)
				_, _ = io.WriteString(w, `[{"errorCode":"FF08","errorMessage":"PaymentReference is invalid","additionalInformation":null},{"errorCode":"BE18","errorMessage":"Payer alias is invalid"}]`)
			}

			result, err := client.CreatePaymentRequest(ctx, validPaymentRequest())
			Expect(err).ToNot(HaveOccurred())
			Expect(result.Rejected.Errors).To(HaveLen(2))
			Expect(result.Rejected.Code()).To(Equal("FF08"))
			Expect(result.Rejected.Error()).To(ContainSubstring("BE18"))
		})

		It("rejects with no gateway errors when the error body is empty", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusForbidden)
			}

			result, err := client.CreatePaymentRequest(ctx, validPaymentRequest())
			Expect(err).ToNot(HaveOccurred())
			Expect(result.Rejected.StatusCode).To(Equal(http.StatusForbidden))
			Expect(result.Rejected.Errors).To(BeEmpty())
			Expect(result.Rejected.Body).To(BeEmpty())
			Expect(result.Rejected.Code()).To(BeEmpty())
		})

		It("returns the parse error when the error body is not json", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = io.WriteString(w, "<html>oops</html>")
			}

			result, err := client.CreatePaymentRequest(ctx, validPaymentRequest())
			Expect(result).To(BeNil())
			var syntaxErr *json.SyntaxError
			Expect(errors.As(err, &syntaxErr)).To(BeTrue())
		})

		It("fails when the location header is missing", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusCreated)
			}

			_, err := client.CreatePaymentRequest(ctx, validPaymentRequest())
			Expect(errors.Is(err, internal.ErrMissingLocation)).To(BeTrue())
		})

		It("validates before calling the gateway", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				Fail("gateway must not be called")
			}
			req := validPaymentRequest()
			req.Amount = "ten"

			_, err := client.CreatePaymentRequest(ctx, req)
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(internal.ErrorTypeValidation))
			Expect(lastReq).To(BeNil())
		})
	})

	Describe("CreateRefundRequest", func() {
		It("returns the raw response without checking the status", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnprocessableEntity)
				_, _ = io.WriteString(w, `[{"errorCode":"RF02","errorMessage":"Original Payment not found"}]`)
			}

			resp, err := client.CreateRefundRequest(ctx, swishtypes.RefundRequest{
				OriginalPaymentReference: "6D6CD7406ECE4542A80152D909EF9F6B",
				CallbackURL:              "https://shop.example.com/swish/refund",
				PayerAlias:               "1231181189",
			})
			Expect(err).ToNot(HaveOccurred())
			defer resp.Body.Close()

			Expect(resp.StatusCode).To(Equal(http.StatusUnprocessableEntity))
			body, err := io.ReadAll(resp.Body)
			Expect(err).ToNot(HaveOccurred())
			Expect(body).To(MatchJSON(`[{"errorCode":"RF02","errorMessage":"Original Payment not found"}]`))

			Expect(lastReq.Method).To(Equal(http.MethodPost))
			Expect(lastReq.URL.Path).To(Equal("/swish-cpcapi/api/v1/paymentrequests"))
			Expect(lastBody).To(MatchJSON(`{
				"originalPaymentReference": "6D6CD7406ECE4542A80152D909EF9F6B",
				"callbackUrl": "https://shop.example.com/swish/refund",
				"payerAlias": "1231181189"
			}`))
		})
	})

	Describe("transport failures", func() {
		var failing *swish.Client

		BeforeEach(func() {
			var err error
			failing, err = swish.NewClientWithHTTPClient(swish.Config{
				Endpoint: "https://mss.cpc.getswish.net/swish-cpcapi/api/v1",
				ServerIP: "10.0.0.5",
			}, failingHTTPClient(), logger.Discard())
			Expect(err).ToNot(HaveOccurred())
		})

		It("propagates the error from GetPayment", func() {
			_, err := failing.GetPayment(ctx, "token")
			Expect(err).To(MatchError(errConnectionReset))
		})

		It("propagates the error from CreatePaymentRequest", func() {
			result, err := failing.CreatePaymentRequest(ctx, validPaymentRequest())
			Expect(result).To(BeNil())
			Expect(err).To(MatchError(errConnectionReset))
		})

		It("propagates the error from CreateRefundRequest", func() {
			resp, err := failing.CreateRefundRequest(ctx, swishtypes.RefundRequest{OriginalPaymentReference: "x"})
			Expect(resp).To(BeNil())
			Expect(err).To(MatchError(errConnectionReset))
		})
	})

	Describe("SwishIDFromLocation", func() {
		DescribeTable("extracts the trailing id",
			func(location, id string) {
				Expect(swish.SwishIDFromLocation(location)).To(Equal(id))
			},
			Entry("absolute url", "https://mss.cpc.getswish.net/swish-cpcapi/api/v1/paymentrequests/ABC123", "ABC123"),
			Entry("relative path", "/paymentrequests/ABC123", "ABC123"),
			Entry("trailing slash", "/paymentrequests/ABC123/", "ABC123"),
			Entry("query string", "/paymentrequests/ABC123?x=1", "ABC123"),
			Entry("no marker", "https://example.com/refunds/ABC123", ""),
			Entry("empty", "", ""),
		)
	})
})

var _ = Describe("NewClient", func() {
	It("refuses a malformed trusted server ip", func() {
		_, err := swish.NewClient(swish.Config{Endpoint: "https://example.com", ServerIP: "10.0.0"}, logger.Discard())
		Expect(errors.Is(err, internal.ErrInvalidServerIP)).To(BeTrue())
	})

	It("refuses a missing certificate file", func() {
		_, err := swish.NewClient(swish.Config{
			Endpoint:    "https://example.com",
			Certificate: swish.CertificateConfig{CertFile: "/nonexistent.pem", KeyFile: "/nonexistent.key"},
		}, logger.Discard())
		Expect(errors.Is(err, internal.ErrInvalidCertificate)).To(BeTrue())
	})

	It("presents the client certificate over mutual TLS", func() {
		dir := GinkgoT().TempDir()
		notAfter := time.Now().Add(48 * time.Hour).UTC().Truncate(time.Second)
		certFile, keyFile := writeClientCertificate(dir, notAfter)

		var peerCerts int
		server := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			peerCerts = len(r.TLS.PeerCertificates)
			_, _ = io.WriteString(w, `{"id":"AB23","status":"CREATED","amount":"1.00"}`)
		}))
		server.TLS = &tls.Config{ClientAuth: tls.RequireAnyClientCert}
		server.StartTLS()
		defer server.Close()

		caFile := filepath.Join(dir, "ca.pem")
		Expect(os.WriteFile(caFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: server.Certificate().Raw}), 0o600)).To(Succeed())

		client, err := swish.NewClient(swish.Config{
			Endpoint: server.URL,
			ServerIP: "213.132.115.0/24",
			Certificate: swish.CertificateConfig{
				CertFile: certFile,
				KeyFile:  keyFile,
				CAFile:   caFile,
			},
			Timeout: 5 * time.Second,
		}, logger.Discard())
		Expect(err).ToNot(HaveOccurred())

		expiresAt, ok := client.CertificateExpiresAt()
		Expect(ok).To(BeTrue())
		Expect(expiresAt.Equal(notAfter)).To(BeTrue())

		payment, err := client.GetPayment(context.Background(), "AB23")
		Expect(err).ToNot(HaveOccurred())
		Expect(payment.Status).To(Equal(swishtypes.PaymentStatusCreated))
		Expect(peerCerts).To(Equal(1))
	})
})
