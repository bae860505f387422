package api

import (
	"net/http"

	"github.com/tenantflow/channel-connector/internal/config"
	"github.com/tenantflow/channel-connector/internal/domain"
	"github.com/tenantflow/channel-connector/internal/middlewares"
	"github.com/tenantflow/channel-connector/internal/platform/logger"
	"github.com/tenantflow/channel-connector/internal/realtime"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// SocketReceiver upgrades authenticated clients to websocket sessions and
// registers them for fan-out.  The path carries the tenant and user the
// client claims to be; the bearer token has to agree unless the caller is a
// superuser.
type SocketReceiver struct {
	registrar  realtime.ConnectionRegistrar
	dispatcher *realtime.CommandDispatcher
	router     *mux.Router
	config     *config.Config
	upgrader   *websocket.Upgrader
}

func NewSocketReceiver(registrar realtime.ConnectionRegistrar, dispatcher *realtime.CommandDispatcher, r *mux.Router, cfg *config.Config) *SocketReceiver {
	return &SocketReceiver{
		registrar:  registrar,
		dispatcher: dispatcher,
		router:     r,
		config:     cfg,
		upgrader: &websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

func (sr *SocketReceiver) Routes() {
	mmw := &middlewares.MetricsMiddleware{}
	amw := &middlewares.AuthMiddleware{SigningKey: sr.config.JwtSigningKey}

	securedSubRouter := sr.router.PathPrefix("/ws").Subrouter()
	securedSubRouter.Use(logger.AccessLoggerMiddleware,
		mmw.RecordHTTPMetrics,
		amw.Authenticate)

	securedSubRouter.HandleFunc("/{tenantId}/{userId}", sr.handleSocket()).Methods(http.MethodGet)
}

func (sr *SocketReceiver) handleSocket() http.HandlerFunc {

	return func(w http.ResponseWriter, req *http.Request) {

		principal, _ := middlewares.GetPrincipal(req.Context())

		tenant := domain.TenantID(mux.Vars(req)["tenantId"])
		user := domain.UserID(mux.Vars(req)["userId"])

		if (principal.GetTenant() != tenant.String() || principal.GetUser() != user.String()) && !middlewares.IsSuperuser(principal) {
			writeJSONResponse(w, http.StatusForbidden, errorResponse{Title: "Access denied", Status: http.StatusForbidden, Detail: "Token does not match the requested connection"})
			return
		}

		conn, err := sr.upgrader.Upgrade(w, req, nil)
		if err != nil {
			// Upgrade has already written the error response
			logger.Log.WithFields(logrus.Fields{"error": err, "tenant": tenant, "user": user}).Debug("Websocket upgrade failed")
			return
		}

		session := realtime.NewWebSocketSession(conn, tenant, user, realtime.SocketConfig{
			WriteTimeout:   sr.config.SocketWriteTimeout,
			PingInterval:   sr.config.SocketPingInterval,
			SendBufferSize: sr.config.SocketSendBufferSize,
		})

		sr.registrar.Register(req.Context(), tenant, user, session)

		go session.WritePump()

		session.ReadLoop(req.Context(), sr.dispatcher)

		// Identity-guarded removal - a successor connection for the same
		// user must not be torn down by this one's exit.
		sr.registrar.UnregisterSession(req.Context(), tenant, user, session)
	}
}
