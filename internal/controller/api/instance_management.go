package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/tenantflow/channel-connector/internal/config"
	"github.com/tenantflow/channel-connector/internal/domain"
	"github.com/tenantflow/channel-connector/internal/instances"
	"github.com/tenantflow/channel-connector/internal/middlewares"
	"github.com/tenantflow/channel-connector/internal/platform/logger"
	"github.com/tenantflow/channel-connector/internal/provider"
	"github.com/redhatinsights/platform-go-middlewares/request_id"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// InstanceManagementServer exposes the tenant-scoped instance CRUD and the
// connect/send actions.  Ordinary principals only see their own tenant's
// instances; superusers see everything.
type InstanceManagementServer struct {
	store     instances.InstanceStore
	lifecycle *instances.Lifecycle
	router    *mux.Router
	config    *config.Config
}

func NewInstanceManagementServer(store instances.InstanceStore, lifecycle *instances.Lifecycle, r *mux.Router, cfg *config.Config) *InstanceManagementServer {
	return &InstanceManagementServer{
		store:     store,
		lifecycle: lifecycle,
		router:    r,
		config:    cfg,
	}
}

func (s *InstanceManagementServer) Routes() {
	mmw := &middlewares.MetricsMiddleware{}
	amw := &middlewares.AuthMiddleware{SigningKey: s.config.JwtSigningKey}

	securedSubRouter := s.router.PathPrefix("/instances").Subrouter()
	securedSubRouter.Use(logger.AccessLoggerMiddleware,
		mmw.RecordHTTPMetrics,
		amw.Authenticate)

	securedSubRouter.HandleFunc("", s.handleInstanceListing()).Methods(http.MethodGet)
	securedSubRouter.HandleFunc("", s.handleInstanceCreation()).Methods(http.MethodPost)
	securedSubRouter.HandleFunc("/{id}", s.handleInstanceRead()).Methods(http.MethodGet)
	securedSubRouter.HandleFunc("/{id}", s.handleInstanceUpdate()).Methods(http.MethodPut)
	securedSubRouter.HandleFunc("/{id}", s.handleInstanceDeletion()).Methods(http.MethodDelete)
	securedSubRouter.HandleFunc("/{id}/connect", s.handleInstanceConnect()).Methods(http.MethodPost)
	securedSubRouter.HandleFunc("/{id}/send", s.handleInstanceSend()).Methods(http.MethodPost)
}

type instanceRequest struct {
	Name        string `json:"name" validate:"required"`
	ApiEndpoint string `json:"api_endpoint"`
	ApiKey      string `json:"api_key"`
	Active      *bool  `json:"active"`
}

type instanceResponse struct {
	ID                  string     `json:"id"`
	TenantID            string     `json:"tenant_id"`
	Name                string     `json:"name"`
	ApiEndpoint         string     `json:"api_endpoint"`
	Status              string     `json:"status"`
	QRCode              string     `json:"qr_code,omitempty"`
	LastWebhookReceived *time.Time `json:"last_webhook_received,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
	Active              bool       `json:"active"`
}

type sendMessageRequest struct {
	Number string `json:"number" validate:"required"`
	Text   string `json:"text" validate:"required"`
}

func buildInstanceResponse(instance *domain.Instance) instanceResponse {
	return instanceResponse{
		ID:                  instance.ID.String(),
		TenantID:            instance.TenantID.String(),
		Name:                instance.Name,
		ApiEndpoint:         instance.ApiEndpoint,
		Status:              instance.Status,
		QRCode:              instance.QRCode,
		LastWebhookReceived: instance.LastWebhookReceived,
		CreatedAt:           instance.CreatedAt,
		UpdatedAt:           instance.UpdatedAt,
		Active:              instance.Active,
	}
}

func requestLogger(req *http.Request, principal middlewares.Principal) *logrus.Entry {
	return logger.Log.WithFields(logrus.Fields{
		"tenant":     principal.GetTenant(),
		"user":       principal.GetUser(),
		"request_id": request_id.GetReqID(req.Context())})
}

func (s *InstanceManagementServer) handleInstanceListing() http.HandlerFunc {

	return func(w http.ResponseWriter, req *http.Request) {

		principal, _ := middlewares.GetPrincipal(req.Context())

		offset, limit := getPaginationParams(req.URL, s.config.DefaultPaginationLimit, s.config.MaxPaginationLimit)

		var results []domain.Instance
		var total int
		var err error

		if middlewares.IsSuperuser(principal) {
			results, total, err = s.store.GetAllInstances(req.Context(), offset, limit)
		} else {
			results, total, err = s.store.GetInstancesByTenant(req.Context(), domain.TenantID(principal.GetTenant()), offset, limit)
		}

		if err != nil {
			requestLogger(req, principal).WithFields(logrus.Fields{"error": err}).Error("Unable to list instances")
			writeJSONResponse(w, http.StatusInternalServerError, errorResponse{Title: "Unable to list instances", Status: http.StatusInternalServerError, Detail: err.Error()})
			return
		}

		data := make([]instanceResponse, 0, len(results))
		for i := range results {
			data = append(data, buildInstanceResponse(&results[i]))
		}

		writeJSONResponse(w, http.StatusOK, buildPaginatedResponse(req.URL, offset, limit, total, data))
	}
}

func (s *InstanceManagementServer) handleInstanceCreation() http.HandlerFunc {

	return func(w http.ResponseWriter, req *http.Request) {

		principal, _ := middlewares.GetPrincipal(req.Context())
		reqLogger := requestLogger(req, principal)

		if !middlewares.IsSupervisor(principal) {
			writeJSONResponse(w, http.StatusForbidden, errorResponse{Title: "Access denied", Status: http.StatusForbidden, Detail: "Managing instances requires the supervisor role"})
			return
		}

		body := http.MaxBytesReader(w, req.Body, 1048576)

		var instanceReq instanceRequest
		if err := decodeJSON(body, &instanceReq); err != nil {
			writeJSONResponse(w, http.StatusBadRequest, errorResponse{Title: "Unable to process json input", Status: http.StatusBadRequest, Detail: err.Error()})
			return
		}

		instance := domain.Instance{
			TenantID:    domain.TenantID(principal.GetTenant()),
			Name:        instanceReq.Name,
			ApiEndpoint: instanceReq.ApiEndpoint,
			ApiKey:      instanceReq.ApiKey,
		}

		if err := s.store.CreateInstance(req.Context(), &instance); err != nil {
			if errors.Is(err, instances.ErrDuplicateInstanceName) {
				writeJSONResponse(w, http.StatusBadRequest, errorResponse{Title: "Instance name already in use", Status: http.StatusBadRequest, Detail: err.Error()})
				return
			}
			reqLogger.WithFields(logrus.Fields{"error": err}).Error("Unable to create instance")
			writeJSONResponse(w, http.StatusInternalServerError, errorResponse{Title: "Unable to create instance", Status: http.StatusInternalServerError, Detail: err.Error()})
			return
		}

		reqLogger.WithFields(logrus.Fields{"instance_id": instance.ID}).Info("Created an instance")

		writeJSONResponse(w, http.StatusCreated, buildInstanceResponse(&instance))
	}
}

func (s *InstanceManagementServer) handleInstanceRead() http.HandlerFunc {

	return func(w http.ResponseWriter, req *http.Request) {

		principal, _ := middlewares.GetPrincipal(req.Context())

		instance, ok := s.loadAuthorizedInstance(w, req, principal)
		if !ok {
			return
		}

		writeJSONResponse(w, http.StatusOK, buildInstanceResponse(instance))
	}
}

func (s *InstanceManagementServer) handleInstanceUpdate() http.HandlerFunc {

	return func(w http.ResponseWriter, req *http.Request) {

		principal, _ := middlewares.GetPrincipal(req.Context())
		reqLogger := requestLogger(req, principal)

		if !middlewares.IsSupervisor(principal) {
			writeJSONResponse(w, http.StatusForbidden, errorResponse{Title: "Access denied", Status: http.StatusForbidden, Detail: "Managing instances requires the supervisor role"})
			return
		}

		instance, ok := s.loadAuthorizedInstance(w, req, principal)
		if !ok {
			return
		}

		body := http.MaxBytesReader(w, req.Body, 1048576)

		var instanceReq instanceRequest
		if err := decodeJSON(body, &instanceReq); err != nil {
			writeJSONResponse(w, http.StatusBadRequest, errorResponse{Title: "Unable to process json input", Status: http.StatusBadRequest, Detail: err.Error()})
			return
		}

		instance.Name = instanceReq.Name
		instance.ApiEndpoint = instanceReq.ApiEndpoint
		instance.ApiKey = instanceReq.ApiKey
		if instanceReq.Active != nil {
			instance.Active = *instanceReq.Active
		}

		if err := s.store.UpdateInstance(req.Context(), instance); err != nil {
			if errors.Is(err, instances.ErrDuplicateInstanceName) {
				writeJSONResponse(w, http.StatusBadRequest, errorResponse{Title: "Instance name already in use", Status: http.StatusBadRequest, Detail: err.Error()})
				return
			}
			reqLogger.WithFields(logrus.Fields{"error": err}).Error("Unable to update instance")
			writeJSONResponse(w, http.StatusInternalServerError, errorResponse{Title: "Unable to update instance", Status: http.StatusInternalServerError, Detail: err.Error()})
			return
		}

		writeJSONResponse(w, http.StatusOK, buildInstanceResponse(instance))
	}
}

func (s *InstanceManagementServer) handleInstanceDeletion() http.HandlerFunc {

	return func(w http.ResponseWriter, req *http.Request) {

		principal, _ := middlewares.GetPrincipal(req.Context())
		reqLogger := requestLogger(req, principal)

		if !middlewares.IsSupervisor(principal) {
			writeJSONResponse(w, http.StatusForbidden, errorResponse{Title: "Access denied", Status: http.StatusForbidden, Detail: "Managing instances requires the supervisor role"})
			return
		}

		instance, ok := s.loadAuthorizedInstance(w, req, principal)
		if !ok {
			return
		}

		// Best effort - the gateway side session should not outlive the row
		if err := s.lifecycle.Logout(req.Context(), instance.ID); err != nil {
			reqLogger.WithFields(logrus.Fields{"error": err, "instance_id": instance.ID}).Info("Gateway teardown before deletion failed")
		}

		if err := s.store.DeleteInstance(req.Context(), instance.ID); err != nil {
			reqLogger.WithFields(logrus.Fields{"error": err}).Error("Unable to delete instance")
			writeJSONResponse(w, http.StatusInternalServerError, errorResponse{Title: "Unable to delete instance", Status: http.StatusInternalServerError, Detail: err.Error()})
			return
		}

		reqLogger.WithFields(logrus.Fields{"instance_id": instance.ID}).Info("Deleted an instance")

		writeJSONResponse(w, http.StatusOK, struct{}{})
	}
}

func (s *InstanceManagementServer) handleInstanceConnect() http.HandlerFunc {

	return func(w http.ResponseWriter, req *http.Request) {

		principal, _ := middlewares.GetPrincipal(req.Context())
		reqLogger := requestLogger(req, principal)

		instance, ok := s.loadAuthorizedInstance(w, req, principal)
		if !ok {
			return
		}

		reqLogger.WithFields(logrus.Fields{"instance_id": instance.ID}).Info("Starting a provider connect attempt")

		instance, err := s.lifecycle.Connect(req.Context(), instance.ID)

		switch {
		case err == nil:
			writeJSONResponse(w, http.StatusOK, buildInstanceResponse(instance))
		case errors.Is(err, instances.ErrInstanceNotConfigured):
			writeJSONResponse(w, http.StatusBadRequest, errorResponse{Title: "Instance is not configured", Status: http.StatusBadRequest, Detail: err.Error()})
		case errors.Is(err, provider.ErrProviderUnavailable):
			writeJSONResponse(w, http.StatusServiceUnavailable, errorResponse{Title: "Messaging provider unavailable", Status: http.StatusServiceUnavailable, Detail: err.Error()})
		default:
			reqLogger.WithFields(logrus.Fields{"error": err}).Error("Connect attempt failed")
			writeJSONResponse(w, http.StatusInternalServerError, errorResponse{Title: "Connect attempt failed", Status: http.StatusInternalServerError, Detail: err.Error()})
		}
	}
}

func (s *InstanceManagementServer) handleInstanceSend() http.HandlerFunc {

	return func(w http.ResponseWriter, req *http.Request) {

		principal, _ := middlewares.GetPrincipal(req.Context())
		reqLogger := requestLogger(req, principal)

		instance, ok := s.loadAuthorizedInstance(w, req, principal)
		if !ok {
			return
		}

		body := http.MaxBytesReader(w, req.Body, 1048576)

		var sendReq sendMessageRequest
		if err := decodeJSON(body, &sendReq); err != nil {
			writeJSONResponse(w, http.StatusBadRequest, errorResponse{Title: "Unable to process json input", Status: http.StatusBadRequest, Detail: err.Error()})
			return
		}

		err := s.lifecycle.SendText(req.Context(), instance.ID, provider.SendTextRequest{Number: sendReq.Number, Text: sendReq.Text})

		switch {
		case err == nil:
			writeJSONResponse(w, http.StatusOK, struct{}{})
		case errors.Is(err, instances.ErrInstanceNotReady):
			writeJSONResponse(w, http.StatusBadRequest, errorResponse{Title: "Instance is not connected", Status: http.StatusBadRequest, Detail: err.Error()})
		case errors.Is(err, provider.ErrProviderUnavailable):
			writeJSONResponse(w, http.StatusServiceUnavailable, errorResponse{Title: "Messaging provider unavailable", Status: http.StatusServiceUnavailable, Detail: err.Error()})
		default:
			reqLogger.WithFields(logrus.Fields{"error": err}).Error("Send attempt failed")
			writeJSONResponse(w, http.StatusInternalServerError, errorResponse{Title: "Send attempt failed", Status: http.StatusInternalServerError, Detail: err.Error()})
		}
	}
}

// loadAuthorizedInstance resolves the {id} path variable and enforces the
// tenant boundary.  It writes the error response itself when the lookup or
// the authorization fails.
func (s *InstanceManagementServer) loadAuthorizedInstance(w http.ResponseWriter, req *http.Request, principal middlewares.Principal) (*domain.Instance, bool) {

	instanceID := domain.InstanceID(mux.Vars(req)["id"])

	instance, err := s.store.GetInstance(req.Context(), instanceID)
	if errors.Is(err, instances.ErrInstanceNotFound) {
		writeJSONResponse(w, http.StatusNotFound, errorResponse{Title: "Instance not found", Status: http.StatusNotFound, Detail: err.Error()})
		return nil, false
	}
	if err != nil {
		requestLogger(req, principal).WithFields(logrus.Fields{"error": err}).Error("Unable to look up instance")
		writeJSONResponse(w, http.StatusInternalServerError, errorResponse{Title: "Unable to look up instance", Status: http.StatusInternalServerError, Detail: err.Error()})
		return nil, false
	}

	if instance.TenantID.String() != principal.GetTenant() && !middlewares.IsSuperuser(principal) {
		writeJSONResponse(w, http.StatusForbidden, errorResponse{Title: "Access denied", Status: http.StatusForbidden, Detail: "Instance belongs to another tenant"})
		return nil, false
	}

	return instance, true
}
