package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taskmesh/syncserver/internal/service"
)

// Deps collects everything the router needs.
type Deps struct {
	Labels   service.LabelService
	Projects service.ProjectService
	Tasks    service.TaskService
	SignKey  []byte
	Log      *zap.Logger
}

// NewRouter builds the gin engine with the replication endpoints. All
// sync routes require an authenticated caller.
func NewRouter(deps Deps) *gin.Engine {
	r := gin.New()
	r.Use(Recover(deps.Log))
	r.Use(Logging(deps.Log))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	s := &Server{
		labels:   deps.Labels,
		projects: deps.Projects,
		tasks:    deps.Tasks,
		log:      deps.Log,
	}

	sync := r.Group("/")
	sync.Use(RequireAuth(deps.SignKey))
	sync.POST("/labels/pull", s.labelsPull)
	sync.POST("/labels/push", s.labelsPush)
	sync.POST("/projects/pull", s.projectsPull)
	sync.POST("/projects/push", s.projectsPush)
	sync.POST("/tasks/pull", s.tasksPull)
	sync.POST("/tasks/push", s.tasksPush)

	return r
}
