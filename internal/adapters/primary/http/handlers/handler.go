package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"fraud-classifier-service/internal/core/services"
)

// Route is one entry of the inference route table built at startup.
type Route struct {
	Method string
	Path   string
	Output string
	Handle gin.HandlerFunc
}

type Handler struct {
	inferenceSvc *services.InferenceService
	registrySvc  *services.RegistryService
	deploySvc    *services.DeployService
	route        string
}

// New builds the handler set. route is the inference path without the
// leading slash, e.g. "fraud-classifier".
func New(inferenceSvc *services.InferenceService, registrySvc *services.RegistryService, route string) *Handler {
	return &Handler{
		inferenceSvc: inferenceSvc,
		registrySvc:  registrySvc,
		route:        "/" + strings.Trim(route, "/"),
	}
}

func (h *Handler) Routes() []Route {
	return []Route{
		{
			Method: http.MethodPost,
			Path:   h.route,
			Output: "JSON array of 0/1 labels, one per input record, in input order",
			Handle: h.Predict,
		},
	}
}

// RegisterRoutes mounts every inference route plus its GET <path>/schema
// companion.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	for _, rt := range h.Routes() {
		r.Handle(rt.Method, rt.Path, rt.Handle)
		r.GET(rt.Path+"/schema", h.schemaHandler(rt))
	}
}

func (h *Handler) RegisterRegistryRoutes(r *gin.RouterGroup) {
	// Artifacts (read-only)
	r.GET("/artifacts", h.ListArtifacts)
	r.GET("/artifacts/:name", h.ListArtifactVersions)
	r.GET("/artifacts/:name/:tag", h.GetArtifact)
}

func (h *Handler) RegisterHealthRoutes(r gin.IRouter) {
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)
}

// RegisterDeploymentRoutes mounts the deployment API backed by svc.
func (h *Handler) RegisterDeploymentRoutes(r *gin.RouterGroup, svc *services.DeployService) {
	h.deploySvc = svc

	// Deployments
	r.POST("/deployments/render", h.RenderDeployment)
	r.POST("/deployments", h.ApplyDeployment)
	r.GET("/deployments/:namespace/:name", h.GetDeploymentStatus)
	r.DELETE("/deployments/:namespace/:name", h.TeardownDeployment)
}
