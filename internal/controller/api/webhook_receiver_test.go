package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/tenantflow/channel-connector/internal/domain"
	"github.com/tenantflow/channel-connector/internal/instances"
	"github.com/tenantflow/channel-connector/internal/realtime"

	"github.com/gorilla/mux"
)

const (
	WEBHOOK_ENDPOINT = "/webhook/support-channel"
)

var _ = Describe("WebhookReceiver", func() {

	var (
		router   *mux.Router
		store    *fakeInstanceStore
		registry *realtime.LocalConnectionRegistry
	)

	BeforeEach(func() {
		cfg := buildTestConfig()

		store = newFakeInstanceStore(&domain.Instance{
			ID:          "instance-1",
			TenantID:    "tenant-1",
			Name:        "support-channel",
			ApiEndpoint: "https://x/",
			ApiKey:      "k",
			Status:      domain.StatusQRCodeNeeded,
			QRCode:      "qr-data",
		})

		registry = realtime.NewLocalConnectionRegistry()
		broadcaster := realtime.NewBroadcaster(registry, registry, nil)
		lifecycle := instances.NewLifecycle(store, &fakeConnector{}, broadcaster)
		processor := instances.NewWebhookProcessor(store, lifecycle, broadcaster)

		router = mux.NewRouter()
		receiver := NewWebhookReceiver(processor, router, cfg)
		receiver.Routes()
	})

	Describe("Posting a connection update", func() {
		Context("For a known instance", func() {
			It("Should acknowledge, transition the instance and clear the QR", func() {

				postBody := strings.NewReader(`{"event":"connection.update","data":{"state":"open"}}`)

				req, err := http.NewRequest("POST", WEBHOOK_ENDPOINT, postBody)
				Expect(err).NotTo(HaveOccurred())

				rr := httptest.NewRecorder()
				router.ServeHTTP(rr, req)

				Expect(rr.Code).To(Equal(http.StatusOK))

				instance, err := store.GetInstance(context.TODO(), "instance-1")
				Expect(err).NotTo(HaveOccurred())
				Expect(instance.Status).To(Equal("open"))
				Expect(instance.QRCode).To(BeEmpty())
				Expect(instance.LastWebhookReceived).NotTo(BeNil())
			})
		})

		Context("For an unknown instance", func() {
			It("Should acknowledge without mutating any state", func() {

				postBody := strings.NewReader(`{"event":"connection.update","data":{"state":"open"}}`)

				req, err := http.NewRequest("POST", "/webhook/not-gonna-find-me", postBody)
				Expect(err).NotTo(HaveOccurred())

				rr := httptest.NewRecorder()
				router.ServeHTTP(rr, req)

				Expect(rr.Code).To(Equal(http.StatusOK))

				instance, err := store.GetInstance(context.TODO(), "instance-1")
				Expect(err).NotTo(HaveOccurred())
				Expect(instance.Status).To(Equal(domain.StatusQRCodeNeeded))
				Expect(instance.LastWebhookReceived).To(BeNil())
			})
		})

		Context("With an unparseable body", func() {
			It("Should still acknowledge with a 200", func() {

				req, err := http.NewRequest("POST", WEBHOOK_ENDPOINT, strings.NewReader("this is not json"))
				Expect(err).NotTo(HaveOccurred())

				rr := httptest.NewRecorder()
				router.ServeHTTP(rr, req)

				Expect(rr.Code).To(Equal(http.StatusOK))
			})
		})
	})

	Describe("Posting a message batch", func() {
		Context("With connected realtime sessions", func() {
			It("Should fan the messages out to the owning tenant only", func() {

				tenantSession := &fakeSession{}
				otherSession := &fakeSession{}
				registry.Register(context.TODO(), "tenant-1", "user-a", tenantSession)
				registry.Register(context.TODO(), "tenant-2", "user-a", otherSession)

				postBody := strings.NewReader(`{"event":"messages.upsert","data":[{"key":{"remoteJid":"5551@s.net"},"message":{"conversation":"hello"}}]}`)

				req, err := http.NewRequest("POST", WEBHOOK_ENDPOINT, postBody)
				Expect(err).NotTo(HaveOccurred())

				rr := httptest.NewRecorder()
				router.ServeHTTP(rr, req)

				Expect(rr.Code).To(Equal(http.StatusOK))
				Expect(tenantSession.Payloads()).To(HaveLen(1))
				Expect(string(tenantSession.Payloads()[0])).To(ContainSubstring(`"type":"new_message"`))
				Expect(otherSession.Payloads()).To(BeEmpty())
			})
		})
	})
})
