package cmd

import (
	"context"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/swish-payments/internal"
	swishtypes "github.com/frahmantamala/swish-payments/internal/core/datamodel/swish"
)

const configYAML = `
env: development
http_server:
  port: 9000
  callback_path: /swish/callback
swish:
  endpoint: https://mss.cpc.getswish.net/swish-cpcapi/api/v1
  server_ip: 213.132.115.94
  payee_alias: "1231181189"
  timeout: 10s
  certificate:
    p12_file: /etc/swish/client.p12
    passphrase: swish
observability:
  logging:
    level: warn
    format: json
`

var _ = Describe("loadConfig", func() {
	var dir string

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		GinkgoT().Setenv("APP_ENV", "")
		GinkgoT().Setenv("DOCKER_ENV", "")
	})

	It("reads config.yml on top of the defaults", func() {
		Expect(os.WriteFile(filepath.Join(dir, "config.yml"), []byte(configYAML), 0o600)).To(Succeed())

		cfg, err := loadConfig(dir)
		Expect(err).ToNot(HaveOccurred())
		Expect(cfg.Server.Port).To(Equal(9000))
		Expect(cfg.Server.ShutdownTimeout).To(Equal(30 * time.Second))
		Expect(cfg.Swish.ServerIP).To(Equal("213.132.115.94"))
		Expect(cfg.Swish.PayeeAlias).To(Equal("1231181189"))
		Expect(cfg.Swish.Timeout).To(Equal(10 * time.Second))
		Expect(cfg.Swish.Certificate.P12File).To(Equal("/etc/swish/client.p12"))
		Expect(cfg.Observability.Logging.Format).To(Equal("json"))
		Expect(cfg.Observability.Metrics.Path).To(Equal("/metrics"))
	})

	It("falls back to the environment without a config file", func() {
		GinkgoT().Setenv("SWISH_SERVER_IP", "10.0.0.0/24")

		cfg, err := loadConfig(dir)
		Expect(err).ToNot(HaveOccurred())
		Expect(cfg.Swish.ServerIP).To(Equal("10.0.0.0/24"))
	})

	It("refuses an invalid file", func() {
		Expect(os.WriteFile(filepath.Join(dir, "config.yml"), []byte("swish:\n  endpoint: \"\"\n"), 0o600)).To(Succeed())

		_, err := loadConfig(dir)
		Expect(err).To(MatchError(ContainSubstring("endpoint is required")))
	})
})

var _ = Describe("swishConfig", func() {
	It("copies every field of the swish section", func() {
		sc := swishConfig(internal.SwishConfig{
			Endpoint: "https://swish.test/api/v1",
			ServerIP: "10.0.0.5",
			Timeout:  time.Second,
			Certificate: internal.CertificateConfig{
				CertFile: "client.pem",
				KeyFile:  "client.key",
				CAFile:   "ca.pem",
			},
		})

		Expect(sc.Endpoint).To(Equal("https://swish.test/api/v1"))
		Expect(sc.ServerIP).To(Equal("10.0.0.5"))
		Expect(sc.Timeout).To(Equal(time.Second))
		Expect(sc.Certificate.CertFile).To(Equal("client.pem"))
		Expect(sc.Certificate.KeyFile).To(Equal("client.key"))
		Expect(sc.Certificate.CAFile).To(Equal("ca.pem"))
	})
})

var _ = Describe("newPaymentReference", func() {
	It("fits the gateway reference limit", func() {
		ref := newPaymentReference()
		Expect(len(ref)).To(BeNumerically("<=", swishtypes.MaxReferenceLength))
		Expect(ref).To(MatchRegexp(`^[0-9A-F]{32}$`))
		Expect(newPaymentReference()).ToNot(Equal(ref))
	})
})

var _ = Describe("replayCallback", func() {
	It("dispatches a stored refund callback", func() {
		path := filepath.Join(GinkgoT().TempDir(), "refund.json")
		Expect(os.WriteFile(path, []byte(`{
			"id": "ABC2D7406ECE4542A80152D909EF9F6B",
			"originalPaymentReference": "6D6CD7406ECE4542A80152D909EF9F6B",
			"amount": "100.00",
			"currency": "SEK",
			"status": "PAID"
		}`), 0o600)).To(Succeed())

		Expect(replayCallback(context.Background(), path)).To(Succeed())
	})

	It("reports a body that is not JSON", func() {
		path := filepath.Join(GinkgoT().TempDir(), "broken.json")
		Expect(os.WriteFile(path, []byte("{"), 0o600)).To(Succeed())

		Expect(replayCallback(context.Background(), path)).To(MatchError(ContainSubstring("failed to decode callback")))
	})
})
