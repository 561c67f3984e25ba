package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes регистрирует маршруты API, /healthz и /metrics.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
	)
	route := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, chain(fn))
	}

	mux.HandleFunc("GET /healthz", Health)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Типы и вершины
	route("GET /api/v1/node-types", h.ListNodeTypes)
	route("GET /api/v1/nodes/{id}", h.GetNode)
	route("PUT /api/v1/nodes/{id}", h.UpsertNode)
	route("DELETE /api/v1/nodes/{id}", h.DeleteNode)
	route("GET /api/v1/versions/{version}/graph", h.GetGraph)
	route("POST /api/v1/workflows/import", h.ImportWorkflow)

	// Рёбра
	route("POST /api/v1/edges", h.CreateEdge)
	route("DELETE /api/v1/edges", h.DeleteEdge)

	// Context
	route("GET /api/v1/contexts/{id}", h.GetContext)
	route("PUT /api/v1/contexts/{id}", h.SetContext)

	// Выполнения
	route("POST /api/v1/versions/{version}/executions", h.StartExecution)
	route("GET /api/v1/executions", h.ListExecutions)
	route("GET /api/v1/executions/{id}", h.GetExecution)
	route("GET /api/v1/executions/{id}/nodes", h.ListExecutionNodes)
	route("POST /api/v1/executions/{id}/steps", h.TriggerStep)
}

// Health отвечает 200, пока процесс жив.
func Health(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
