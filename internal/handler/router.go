package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/internal/middleware"
)

// Handlers bundles every API handler mounted under the API prefix.
type Handlers struct {
	Auth      *AuthHandler
	Conflicts *ConflictHandler
	Matrix    *ConflictMatrixHandler
	Master    *MasterScheduleHandler
	Block     *BlockScheduleHandler
	Health    *ScheduleHealthHandler
	Generator *ScheduleGeneratorHandler
	Reports   *ReportHandler
}

// RegisterRoutes mounts the scheduling API. authn must populate middleware.ContextUserKey.
func RegisterRoutes(api *gin.RouterGroup, h Handlers, authn gin.HandlerFunc) {
	api.POST("/auth/token", h.Auth.Token)
	// Download tokens are signed, so the link itself is the credential.
	api.GET("/reports/:token", h.Reports.Download)

	secured := api.Group("")
	secured.Use(authn)
	writers := middleware.SchedulingWriters()

	secured.GET("/schedules/:id/conflicts", h.Conflicts.ScheduleConflicts)
	secured.GET("/schedules/:id/conflicts/report", h.Conflicts.ConflictReport)
	secured.GET("/slots/:id/conflicts", h.Conflicts.SlotConflicts)
	secured.POST("/slots/:id/move-check", h.Conflicts.MoveCheck)
	secured.PUT("/slots/:id/time", writers, h.Conflicts.MoveSlot)

	matrix := secured.Group("/conflict-matrix/:year")
	matrix.POST("/generate", writers, h.Matrix.Generate)
	matrix.DELETE("", writers, h.Matrix.Clear)
	matrix.POST("/pairs", writers, h.Matrix.UpdatePair)
	matrix.GET("/heatmap", h.Matrix.Heatmap)
	matrix.GET("/singletons", h.Matrix.Singletons)
	matrix.GET("/high", h.Matrix.High)
	matrix.GET("/check", h.Matrix.Check)
	matrix.GET("/courses/:courseId", h.Matrix.CourseConflicts)
	matrix.POST("/requests/import", writers, h.Matrix.ImportRequests)
	matrix.POST("/reports/heatmap", h.Reports.HeatmapReport)

	master := secured.Group("/master/:year")
	master.POST("/singletons/identify", writers, h.Master.IdentifySingletons)
	master.POST("/singletons/schedule", writers, h.Master.ScheduleSingletons)
	master.GET("/singletons/conflict-free", h.Master.SingletonsConflictFree)
	master.GET("/balance/verify", h.Master.VerifyBalance)

	secured.POST("/courses/:id/balance", writers, h.Master.BalanceSections)
	secured.GET("/courses/:id/balance", h.Master.BalanceReport)
	secured.POST("/courses/:id/waitlist", writers, h.Master.AddToWaitlist)
	secured.POST("/sections/:id/waitlist/enroll", writers, h.Master.EnrollFromWaitlist)
	secured.POST("/sections/:id/waitlist/process", writers, h.Master.ProcessWaitlist)
	secured.GET("/sections/:id/eligibility/:studentId", h.Master.Eligibility)
	secured.POST("/departments/:department/planning-period", writers, h.Master.AssignPlanningPeriod)
	secured.POST("/schedules/:id/planning/recommendations", h.Master.RecommendPlanning)
	secured.POST("/schedules/:id/planning/ensure", writers, h.Master.EnsurePlanning)

	secured.GET("/block/day-type", h.Block.DayType)
	secured.POST("/block/schedules", writers, h.Block.Generate)
	secured.PUT("/schedules/:id/students/:studentId/block-days", writers, h.Block.AssignDays)
	secured.GET("/students/:id/block-courses", h.Block.StudentCourses)
	secured.GET("/schedules/:id/block-slots", h.Block.ScheduleSlots)

	secured.GET("/schedules/:id/health", h.Health.Metrics)
	secured.GET("/schedules/:id/health/score", h.Health.Score)
	secured.GET("/schedules/:id/health/acceptable", h.Health.Acceptable)
	secured.GET("/schedules/:id/health/summary", h.Health.Summary)
	secured.POST("/schedules/:id/reports/health", h.Reports.HealthReport)

	secured.POST("/schedules/generate", writers, h.Generator.Generate)
	secured.POST("/schedules/generate/async", writers, h.Generator.GenerateAsync)
	secured.GET("/schedules/jobs/:id", h.Generator.Job)
	secured.GET("/schedules/:id", h.Generator.Get)
}

// RegisterOps mounts liveness, readiness and metrics on the root router.
func RegisterOps(r gin.IRoutes, h *MetricsHandler) {
	r.GET("/health", h.Health)
	r.GET("/ready", h.Ready)
	r.GET("/metrics", h.Prometheus)
}
