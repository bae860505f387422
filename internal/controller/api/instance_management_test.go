package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/tenantflow/channel-connector/internal/domain"
	"github.com/tenantflow/channel-connector/internal/instances"
	"github.com/tenantflow/channel-connector/internal/provider"
	"github.com/tenantflow/channel-connector/internal/realtime"

	"github.com/gorilla/mux"
)

const (
	INSTANCES_ENDPOINT = "/instances"
)

var _ = Describe("InstanceManagement", func() {

	var (
		router    *mux.Router
		store     *fakeInstanceStore
		connector *fakeConnector
	)

	sendAuthenticatedRequest := func(method string, path string, token string, body string) *httptest.ResponseRecorder {
		var reader *strings.Reader
		if body != "" {
			reader = strings.NewReader(body)
		} else {
			reader = strings.NewReader("")
		}

		req, err := http.NewRequest(method, path, reader)
		Expect(err).NotTo(HaveOccurred())

		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr
	}

	BeforeEach(func() {
		cfg := buildTestConfig()

		store = newFakeInstanceStore(&domain.Instance{
			ID:          "instance-1",
			TenantID:    "tenant-1",
			Name:        "support-channel",
			ApiEndpoint: "https://x/",
			ApiKey:      "k",
			Status:      domain.StatusDisconnected,
			Active:      true,
		})

		connector = &fakeConnector{}

		registry := realtime.NewLocalConnectionRegistry()
		broadcaster := realtime.NewBroadcaster(registry, registry, nil)
		lifecycle := instances.NewLifecycle(store, connector, broadcaster)

		router = mux.NewRouter()
		server := NewInstanceManagementServer(store, lifecycle, router, cfg)
		server.Routes()
	})

	Describe("Listing instances", func() {
		Context("Without a token", func() {
			It("Should be rejected with a 401", func() {
				rr := sendAuthenticatedRequest("GET", INSTANCES_ENDPOINT, "", "")
				Expect(rr.Code).To(Equal(http.StatusUnauthorized))
			})
		})

		Context("With a token for the owning tenant", func() {
			It("Should return the tenant's instances", func() {
				rr := sendAuthenticatedRequest("GET", INSTANCES_ENDPOINT, buildTestToken("tenant-1", "user-1", ""), "")
				Expect(rr.Code).To(Equal(http.StatusOK))

				var response paginatedResponse
				Expect(json.Unmarshal(rr.Body.Bytes(), &response)).To(Succeed())
				Expect(response.Meta.Count).To(Equal(1))
			})
		})

		Context("With a token for another tenant", func() {
			It("Should return an empty listing", func() {
				rr := sendAuthenticatedRequest("GET", INSTANCES_ENDPOINT, buildTestToken("tenant-2", "user-1", ""), "")
				Expect(rr.Code).To(Equal(http.StatusOK))

				var response paginatedResponse
				Expect(json.Unmarshal(rr.Body.Bytes(), &response)).To(Succeed())
				Expect(response.Meta.Count).To(Equal(0))
			})
		})

		Context("With a superuser token", func() {
			It("Should return every tenant's instances", func() {
				store.CreateInstance(context.TODO(), &domain.Instance{
					TenantID: "tenant-2",
					Name:     "other-channel",
				})

				rr := sendAuthenticatedRequest("GET", INSTANCES_ENDPOINT, buildTestToken("tenant-9", "admin", "superuser"), "")
				Expect(rr.Code).To(Equal(http.StatusOK))

				var response paginatedResponse
				Expect(json.Unmarshal(rr.Body.Bytes(), &response)).To(Succeed())
				Expect(response.Meta.Count).To(Equal(2))
			})
		})
	})

	Describe("Creating an instance", func() {
		Context("With a valid request", func() {
			It("Should create the instance under the caller's tenant", func() {
				rr := sendAuthenticatedRequest("POST", INSTANCES_ENDPOINT, buildTestToken("tenant-1", "user-1", "supervisor"),
					`{"name": "sales-channel", "api_endpoint": "https://y/", "api_key": "k2"}`)
				Expect(rr.Code).To(Equal(http.StatusCreated))

				var response instanceResponse
				Expect(json.Unmarshal(rr.Body.Bytes(), &response)).To(Succeed())
				Expect(response.TenantID).To(Equal("tenant-1"))
				Expect(response.Status).To(Equal(domain.StatusDisconnected))
			})
		})

		Context("Without the supervisor role", func() {
			It("Should be rejected with a 403", func() {
				rr := sendAuthenticatedRequest("POST", INSTANCES_ENDPOINT, buildTestToken("tenant-1", "user-1", ""),
					`{"name": "sales-channel"}`)
				Expect(rr.Code).To(Equal(http.StatusForbidden))
			})
		})

		Context("With a duplicate name", func() {
			It("Should be rejected with a 400", func() {
				rr := sendAuthenticatedRequest("POST", INSTANCES_ENDPOINT, buildTestToken("tenant-1", "user-1", "supervisor"),
					`{"name": "support-channel"}`)
				Expect(rr.Code).To(Equal(http.StatusBadRequest))
			})
		})

		Context("With a missing name", func() {
			It("Should be rejected with a 400", func() {
				rr := sendAuthenticatedRequest("POST", INSTANCES_ENDPOINT, buildTestToken("tenant-1", "user-1", "supervisor"),
					`{"api_endpoint": "https://y/"}`)
				Expect(rr.Code).To(Equal(http.StatusBadRequest))
			})
		})
	})

	Describe("Reading an instance", func() {
		Context("Owned by another tenant", func() {
			It("Should be rejected with a 403", func() {
				rr := sendAuthenticatedRequest("GET", INSTANCES_ENDPOINT+"/instance-1", buildTestToken("tenant-2", "user-1", ""), "")
				Expect(rr.Code).To(Equal(http.StatusForbidden))
			})
		})

		Context("That does not exist", func() {
			It("Should be rejected with a 404", func() {
				rr := sendAuthenticatedRequest("GET", INSTANCES_ENDPOINT+"/not-gonna-find-me", buildTestToken("tenant-1", "user-1", ""), "")
				Expect(rr.Code).To(Equal(http.StatusNotFound))
			})
		})

		Context("With a superuser token from another tenant", func() {
			It("Should be allowed", func() {
				rr := sendAuthenticatedRequest("GET", INSTANCES_ENDPOINT+"/instance-1", buildTestToken("tenant-9", "admin", "superuser"), "")
				Expect(rr.Code).To(Equal(http.StatusOK))
			})
		})
	})

	Describe("Connecting an instance", func() {
		Context("When the provider returns a QR payload", func() {
			It("Should report qr_code_needed with the QR", func() {
				connector.connectResult = &provider.ConnectResult{QRBase64: "<data>"}

				rr := sendAuthenticatedRequest("POST", INSTANCES_ENDPOINT+"/instance-1/connect", buildTestToken("tenant-1", "user-1", ""), "")
				Expect(rr.Code).To(Equal(http.StatusOK))

				var response instanceResponse
				Expect(json.Unmarshal(rr.Body.Bytes(), &response)).To(Succeed())
				Expect(response.Status).To(Equal(domain.StatusQRCodeNeeded))
				Expect(response.QRCode).To(Equal("<data>"))
			})
		})

		Context("When the instance has no credentials", func() {
			It("Should be rejected with a 400", func() {
				unconfigured, _ := store.GetInstance(context.TODO(), "instance-1")
				unconfigured.ApiKey = ""
				store.UpdateInstance(context.TODO(), unconfigured)

				rr := sendAuthenticatedRequest("POST", INSTANCES_ENDPOINT+"/instance-1/connect", buildTestToken("tenant-1", "user-1", ""), "")
				Expect(rr.Code).To(Equal(http.StatusBadRequest))
			})
		})

		Context("When the provider is unreachable", func() {
			It("Should report a 503 and record connection_error", func() {
				connector.connectError = provider.ErrProviderUnavailable

				rr := sendAuthenticatedRequest("POST", INSTANCES_ENDPOINT+"/instance-1/connect", buildTestToken("tenant-1", "user-1", ""), "")
				Expect(rr.Code).To(Equal(http.StatusServiceUnavailable))

				instance, _ := store.GetInstance(context.TODO(), "instance-1")
				Expect(instance.Status).To(Equal(domain.StatusConnectionError))
			})
		})
	})

	Describe("Sending a message", func() {
		Context("When the instance is not connected", func() {
			It("Should be rejected with a 400", func() {
				rr := sendAuthenticatedRequest("POST", INSTANCES_ENDPOINT+"/instance-1/send", buildTestToken("tenant-1", "user-1", ""),
					`{"number": "5551", "text": "hello"}`)
				Expect(rr.Code).To(Equal(http.StatusBadRequest))
			})
		})

		Context("When the instance is connected", func() {
			It("Should forward the message to the provider", func() {
				store.UpdateInstanceStatus(context.TODO(), "instance-1", domain.StatusConnected)

				rr := sendAuthenticatedRequest("POST", INSTANCES_ENDPOINT+"/instance-1/send", buildTestToken("tenant-1", "user-1", ""),
					`{"number": "5551", "text": "hello"}`)
				Expect(rr.Code).To(Equal(http.StatusOK))
			})
		})
	})

	Describe("Deleting an instance", func() {
		Context("Owned by the caller's tenant", func() {
			It("Should remove the instance", func() {
				rr := sendAuthenticatedRequest("DELETE", INSTANCES_ENDPOINT+"/instance-1", buildTestToken("tenant-1", "user-1", "supervisor"), "")
				Expect(rr.Code).To(Equal(http.StatusOK))

				_, err := store.GetInstance(context.TODO(), "instance-1")
				Expect(err).To(MatchError(instances.ErrInstanceNotFound))
			})
		})

		Context("When the gateway logout fails", func() {
			It("Should still remove the instance", func() {
				connector.logoutError = provider.ErrProviderUnavailable

				rr := sendAuthenticatedRequest("DELETE", INSTANCES_ENDPOINT+"/instance-1", buildTestToken("tenant-1", "user-1", "supervisor"), "")
				Expect(rr.Code).To(Equal(http.StatusOK))

				_, err := store.GetInstance(context.TODO(), "instance-1")
				Expect(err).To(MatchError(instances.ErrInstanceNotFound))
			})
		})

		Context("Without the supervisor role", func() {
			It("Should be rejected with a 403", func() {
				rr := sendAuthenticatedRequest("DELETE", INSTANCES_ENDPOINT+"/instance-1", buildTestToken("tenant-1", "user-1", ""), "")
				Expect(rr.Code).To(Equal(http.StatusForbidden))
			})
		})
	})
})
