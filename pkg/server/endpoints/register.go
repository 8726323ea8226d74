package endpoints

import (
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/server"
)

// RegisterAll registers all API endpoints on the server
func RegisterAll(srv *server.Server) {
	// Public
	RegisterStatusEndpoints(srv)
	RegisterAuthenticateEndpoint(srv)
	srv.Router.Handle("/metrics", promhttp.HandlerFor(srv.Metrics, promhttp.HandlerOpts{})).Methods("GET")

	api := protectedAPI(srv)
	RegisterResourceEndpoints(srv, api)
	RegisterProjectEndpoints(srv, api)
	RegisterProjectGroupEndpoints(srv, api)
	RegisterAnnotationEndpoints(srv, api)
	RegisterModelEndpoints(srv, api)
	RegisterDatasetEndpoints(srv, api)
	RegisterConceptEndpoints(srv, api)
	RegisterTransferEndpoints(srv, api)
	RegisterMetricsEndpoints(srv, api)
}

// protectedAPI returns the /api subrouter guarded by token authentication.
// Public /api routes must be registered on srv.Router before it is created.
func protectedAPI(srv *server.Server) *mux.Router {
	api := srv.Router.PathPrefix("/api").Subrouter()
	api.Use(srv.JWTMiddleware.Middleware)
	return api
}
