// Package httptransport wires the HTTP surface of spec §6's external
// interfaces onto gin, grounded on the teacher's internal/transport/http
// router.go generalized from two route groups to the full endpoint set this
// spec adds.
package httptransport

import (
	"github.com/ErlanBelekov/dist-job-scheduler/internal/identity"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/transport/http/handler"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/transport/http/middleware"
	"github.com/gin-gonic/gin"
)

// Handlers bundles every route handler the router wires up; cmd/backend
// constructs one from its fully-assembled service graph.
type Handlers struct {
	Auth        *handler.AuthHandler
	Collections *handler.CollectionHandler
	Records     *handler.RecordHandler
	Functions   *handler.FunctionHandler
	Calls       *handler.CallHandler
	Schedules   *handler.ScheduleHandler
	Settings    *handler.SettingHandler
	AppTokens   *handler.AppTokenHandler
	Files       *handler.FileHandler // nil when file storage is disabled
	Audit       *handler.AuditHandler
}

// NewRouter assembles the full route table. identitySvc/appTokens back the
// Auth/OptionalAuth middleware; corsOrigins is the static CORS_ORIGINS
// config value split on comma.
func NewRouter(h Handlers, identitySvc *identity.Service, appTokens *identity.AppTokenService, corsOrigins []string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestID(), middleware.Metrics(), middleware.CORS(corsOrigins))

	auth := middleware.Auth(identitySvc, appTokens)
	optionalAuth := middleware.OptionalAuth(identitySvc, appTokens)
	admin := middleware.RequireAdmin()

	r.POST("/auth/register", h.Auth.Register)
	r.POST("/auth/login", h.Auth.Login)
	r.POST("/auth/magic-link", h.Auth.RequestMagicLink)
	r.GET("/auth/verify", h.Auth.VerifyMagicLink)
	r.POST("/auth/refresh", h.Auth.Refresh)
	r.GET("/auth/setup-status", h.Auth.SetupStatus)
	r.POST("/auth/logout", auth, h.Auth.Logout)

	api := r.Group("/api")

	collections := api.Group("/collections", auth)
	collections.POST("", h.Collections.Create)
	collections.GET("", h.Collections.List)
	collections.GET("/:name", h.Collections.Get)
	collections.POST("/:name/records", h.Records.Create)
	collections.GET("/:name/records", h.Records.List)
	collections.GET("/:name/records/:id", h.Records.Get)
	collections.PATCH("/:name/records/:id", h.Records.Update)
	collections.DELETE("/:name/records/:id", h.Records.Delete)

	functions := api.Group("/functions")
	functions.GET("", auth, h.Functions.List)
	functions.POST("/:name", optionalAuth, h.Functions.Invoke)

	if h.Files != nil {
		files := api.Group("/files", auth)
		files.GET("/status", h.Files.Status)
		files.POST("/upload", h.Files.Upload)
		files.GET("/download/:key", h.Files.Download)
		files.DELETE("/:key", h.Files.Delete)
	}

	adminGroup := api.Group("/admin", auth, admin)
	adminGroup.GET("/collections/status", h.Collections.Status)
	adminGroup.DELETE("/collections/:name", h.Collections.Delete)
	adminGroup.POST("/collections/:name/fields", h.Collections.AddField)
	adminGroup.DELETE("/collections/:name/fields/:field", h.Collections.RemoveField)
	adminGroup.PATCH("/collections/:name/fields/:field/unique", h.Collections.SetFieldUnique)

	adminGroup.POST("/functions", h.Functions.Upload)
	adminGroup.GET("/functions/:name/schema", h.Functions.Schema)
	adminGroup.GET("/functions/:name/versions", h.Functions.ListVersions)

	adminGroup.GET("/function-calls", h.Calls.List)
	adminGroup.GET("/function-calls/:id", h.Calls.Get)
	adminGroup.POST("/function-calls/:id/cancel", h.Calls.Cancel)

	adminGroup.GET("/schedules", h.Schedules.List)
	adminGroup.POST("/schedules", h.Schedules.Create)
	adminGroup.GET("/schedules/:id", h.Schedules.Get)
	adminGroup.PATCH("/schedules/:id", h.Schedules.Patch)
	adminGroup.DELETE("/schedules/:id", h.Schedules.Delete)

	adminGroup.GET("/settings", h.Settings.List)
	adminGroup.GET("/settings/:key", h.Settings.Get)
	adminGroup.PATCH("/settings/:key", h.Settings.Patch)

	adminGroup.GET("/application-tokens", h.AppTokens.List)
	adminGroup.POST("/application-tokens", h.AppTokens.Create)
	adminGroup.PATCH("/application-tokens/:id", h.AppTokens.Patch)
	adminGroup.DELETE("/application-tokens/:id", h.AppTokens.Delete)

	adminGroup.GET("/audit-events", h.Audit.List)

	return r
}
