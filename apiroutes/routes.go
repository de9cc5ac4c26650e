package apiroutes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tipline/go-tipline-server/api"
	restinterceptors "github.com/tipline/go-tipline-server/api/interceptors"
	"github.com/tipline/go-tipline-server/global"
	"github.com/tipline/go-tipline-server/metrics"
	"github.com/tipline/go-tipline-server/repository"
	"github.com/tipline/go-tipline-server/services"
	"github.com/tipline/go-tipline-server/types"
)

// REST API routes
func ConfigRoutes(router *gin.Engine, dbSelector repository.DBSelector, env *types.Environment) *gin.Engine {
	// init metrics
	if global.Conf.Prometheus.Enabled {

		metrics.InitMetrics()

		authorized := router.Group("/metrics", gin.BasicAuth(gin.Accounts{
			global.Conf.Prometheus.Username: global.Conf.Prometheus.Password,
		}))

		authorized.GET("", gin.WrapH(promhttp.Handler()))
	}

	// SERVICE definitions
	recipientService := services.NewRecipientService(dbSelector)
	settingsService := services.NewSettingsService(dbSelector)
	s3Service := services.NewS3Service(env)
	submissionService := services.NewSubmissionService(dbSelector, recipientService, settingsService, s3Service, env)
	accessService := services.NewAccessService(dbSelector, recipientService, env)
	auditService := services.NewAuditService(dbSelector)

	// API definitions
	healthApi := api.NewHealthCheckAPI()
	intakeApi := api.NewIntakeApi(submissionService)
	accessApi := api.NewAccessApi(accessService)
	tipApi := api.NewTipApi(submissionService, accessService, recipientService, s3Service)
	adminApi := api.NewAdminApi(recipientService, submissionService, settingsService, auditService)

	// PUBLIC ROOT API
	rootPublicApi := router.Group("/")
	{
		rootPublicApi.GET("/api/v1/healthcheck", healthApi.HealthCheck)
	}

	// ANONYMOUS INTAKE API (global rate limit only, no per-client keying)
	intakePublicApi := router.Group("/api", metrics.MetricsMiddleware(), restinterceptors.IntakeRateLimitMiddleware())
	{
		intakePublicApi.POST("/v1/submission", intakeApi.Submit)
		intakePublicApi.POST("/v1/receipt", intakeApi.CheckReceipt)
		intakePublicApi.POST("/v1/receipt/message", intakeApi.SubmitterMessage)
	}

	// PUBLIC ACCESS API (challenge/response login for recipients)
	publicApi := router.Group("/api", metrics.MetricsMiddleware(), restinterceptors.RateLimitMiddleware())
	{
		publicApi.POST("/v1/access/challenge", accessApi.Challenge)
		publicApi.POST("/v1/access/token", accessApi.Token)
	}

	// AUTHENTICATED RECIPIENT API
	rootApi := router.Group("/api", metrics.MetricsMiddleware(), restinterceptors.RateLimitMiddleware(), restinterceptors.JWSMiddleware(global.PublicKey))
	{
		rootApi.GET("/v1/tip", tipApi.ListTips)
		rootApi.GET("/v1/tip/:id", tipApi.GetTip)
		rootApi.PUT("/v1/tip/:id", tipApi.TipOp)
		rootApi.DELETE("/v1/tip/:id", tipApi.PurgeTip)
		rootApi.POST("/v1/tip/:id/comment", tipApi.AddComment)
		rootApi.POST("/v1/tip/:id/message", tipApi.AddMessage)
		rootApi.GET("/v1/tip/:id/attachment/:index", tipApi.GetAttachment)
	}

	// ADMIN API
	adminRootApi := router.Group("/api", metrics.MetricsMiddleware(), restinterceptors.RateLimitMiddleware(), restinterceptors.JWSMiddleware(global.PublicKey), restinterceptors.AdminMiddleware())
	{
		adminRootApi.POST("/v1/admin/recipient", adminApi.RegisterRecipient)
		adminRootApi.GET("/v1/admin/recipient", adminApi.ListRecipients)
		adminRootApi.DELETE("/v1/admin/recipient/:id", adminApi.RevokeRecipient)
		adminRootApi.GET("/v1/admin/retention", adminApi.GetRetention)
		adminRootApi.PUT("/v1/admin/retention", adminApi.SetRetention)
		adminRootApi.DELETE("/v1/admin/submission/:id", adminApi.PurgeSubmission)
		adminRootApi.POST("/v1/admin/submission/:id/archive", adminApi.ArchiveSubmission)
		adminRootApi.GET("/v1/admin/submission/:id/audit", adminApi.ListSubmissionAudit)
	}

	return router
}
