package api

import (
	"alcyxob/group-coach/internal/domain"
	"alcyxob/group-coach/internal/service"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Services bundles the dependencies the HTTP layer routes to.
type Services struct {
	Auth        service.AuthService
	Groups      service.GroupService
	Batches     service.BatchService
	Assignments service.AssignmentService
	Ledger      service.LedgerService
	Generation  service.GenerationService
}

func SetupRoutes(router *gin.Engine, jwtSecret string, svc Services, logger *slog.Logger) {
	RegisterValidators()

	authHandler := NewAuthHandler(svc.Auth)
	groupHandler := NewGroupHandler(svc.Groups, svc.Batches, svc.Generation)
	assignmentHandler := NewAssignmentHandler(svc.Assignments)
	creditHandler := NewCreditHandler(svc.Ledger)
	aiHandler := NewAIHandler(svc.Generation)

	router.Use(RequestLogger(logger))

	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	apiV1 := router.Group("/api/v1")
	{
		authGroup := apiV1.Group("/auth")
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", authHandler.Login)
		}
	}

	protected := apiV1.Group("")
	protected.Use(AuthMiddleware(jwtSecret))
	{
		protected.GET("/me", authHandler.Me)

		groups := protected.Group("/groups")
		{
			groups.POST("", RoleMiddleware(domain.RoleCoach), groupHandler.CreateGroup)
			groups.GET("", groupHandler.ListMyGroups)
			groups.GET("/:groupId", groupHandler.GetGroup)
			groups.GET("/:groupId/members", groupHandler.ListMembers)
			groups.POST("/:groupId/athletes", groupHandler.AddAthlete)
			groups.POST("/:groupId/admins", groupHandler.AddAdmin)
			groups.GET("/:groupId/assignments", assignmentHandler.ListByGroup)
			groups.POST("/:groupId/batches", groupHandler.CreateBatch)
			groups.GET("/:groupId/batches/:batchKey", groupHandler.GetBatch)
			groups.POST("/:groupId/batches/generate", groupHandler.GenerateGroupWorkout)
		}

		assignments := protected.Group("/assignments")
		{
			assignments.GET("", assignmentHandler.ListMine)
			assignments.GET("/pending-review", assignmentHandler.ListPendingReviews)
			assignments.GET("/:assignmentId", assignmentHandler.Get)
			assignments.PUT("/:assignmentId/progress", assignmentHandler.SaveProgress)
			assignments.POST("/:assignmentId/complete", assignmentHandler.Complete)
			assignments.POST("/:assignmentId/approve", assignmentHandler.Approve)
			assignments.POST("/:assignmentId/edit", assignmentHandler.EditAndResubmit)
			assignments.POST("/:assignmentId/incomplete", assignmentHandler.MarkIncomplete)
		}

		credits := protected.Group("/credits")
		{
			credits.GET("", creditHandler.Balance)
			credits.GET("/entries", creditHandler.Entries)
		}

		ai := protected.Group("/ai")
		{
			ai.POST("/chat", aiHandler.Chat)
			ai.POST("/workout", aiHandler.GenerateWorkout)
			ai.POST("/program", aiHandler.GenerateProgram)
			ai.POST("/form-check/upload-url", aiHandler.RequestFormCheckUploadURL)
			ai.POST("/form-check/uploads", aiHandler.ConfirmFormCheckUpload)
			ai.POST("/form-check/analyze", aiHandler.AnalyzeFormCheck)
		}
	}
}
