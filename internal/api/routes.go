package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stacklok/view-exporter/internal/api/common"
	"github.com/stacklok/view-exporter/internal/resource"
	"github.com/stacklok/view-exporter/internal/versions"
)

// routes holds the handlers that read export state
type routes struct {
	provider StatusProvider
}

func newRoutes(provider StatusProvider) *routes {
	return &routes{provider: provider}
}

// healthHandler handles health check requests
func healthHandler(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, HealthResponse{Status: "healthy"}, http.StatusOK)
}

// readiness reports ready once bootstrap has completed
func (rr *routes) readiness(w http.ResponseWriter, _ *http.Request) {
	if !rr.provider.Ready() {
		common.WriteErrorResponse(w, "bootstrap in progress", http.StatusServiceUnavailable)
		return
	}
	common.WriteJSONResponse(w, ReadinessResponse{Status: "ready"}, http.StatusOK)
}

// versionHandler handles version information requests
func versionHandler(w http.ResponseWriter, _ *http.Request) {
	info := versions.GetVersionInfo()

	common.WriteJSONResponse(w, VersionResponse{
		Version:   info.Version,
		Commit:    info.Commit,
		BuildDate: info.BuildDate,
		GoVersion: info.GoVersion,
		Platform:  info.Platform,
	}, http.StatusOK)
}

// listResources handles GET /v0/resources
func (rr *routes) listResources(w http.ResponseWriter, _ *http.Request) {
	resources := rr.provider.List()
	common.WriteJSONResponse(w, ResourceListResponse{
		Ready:     rr.provider.Ready(),
		Resources: resources,
		Total:     len(resources),
	}, http.StatusOK)
}

// getResource handles GET /v0/resources/{name}
func (rr *routes) getResource(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" {
		common.WriteErrorResponse(w, "resource name is required", http.StatusBadRequest)
		return
	}

	st, ok := rr.provider.Get(resource.Name(name))
	if !ok {
		common.WriteErrorResponse(w, "resource not found: "+name, http.StatusNotFound)
		return
	}
	common.WriteJSONResponse(w, st, http.StatusOK)
}
