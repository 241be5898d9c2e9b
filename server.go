package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"bitbucket.org/mmdatafocus/budget_backend/config"
	"bitbucket.org/mmdatafocus/budget_backend/middlewares"
	"bitbucket.org/mmdatafocus/budget_backend/models"
	"bitbucket.org/mmdatafocus/budget_backend/workflow"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func runDeviationScanHandler(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		now := time.Now()
		year := now.Year()
		if v := queryInt(c, "year"); v != nil {
			year = *v
		}
		month := 0
		if v := queryInt(c, "month"); v != nil {
			month = *v
		}
		result, err := workflow.RunDeviationScan(c.Request.Context(), logger, year, month, now)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// startDeviationScheduler runs the deviation scan on a cron schedule. The
// daily scan covers the current month only; the weekly scan sweeps the whole
// fiscal year to catch months that slipped past unrealized.
func startDeviationScheduler(logger *logrus.Logger) *cron.Cron {
	c := cron.New(cron.WithSeconds())

	dailySpec := os.Getenv("DEVIATION_SCAN_DAILY_CRON")
	if dailySpec == "" {
		dailySpec = "0 0 7 * * *"
	}
	weeklySpec := os.Getenv("DEVIATION_SCAN_WEEKLY_CRON")
	if weeklySpec == "" {
		weeklySpec = "0 0 8 * * 1"
	}

	_, err := c.AddFunc(dailySpec, func() {
		now := time.Now()
		if _, err := workflow.RunDeviationScan(context.Background(), logger, now.Year(), int(now.Month()), now); err != nil {
			config.LogError(logger, "server.go", "startDeviationScheduler", "daily scan", nil, err)
		}
	})
	if err != nil {
		config.LogError(logger, "server.go", "startDeviationScheduler", "daily cron spec", dailySpec, err)
	}

	_, err = c.AddFunc(weeklySpec, func() {
		now := time.Now()
		if _, err := workflow.RunDeviationScan(context.Background(), logger, now.Year(), 0, now); err != nil {
			config.LogError(logger, "server.go", "startDeviationScheduler", "weekly scan", nil, err)
		}
	})
	if err != nil {
		config.LogError(logger, "server.go", "startDeviationScheduler", "weekly cron spec", weeklySpec, err)
	}

	c.Start()
	return c
}

func registerRoutes(r *gin.Engine, logger *logrus.Logger) {
	r.POST("/api/login", loginHandler)

	api := r.Group("/api", middlewares.RequireAuth())

	admin := api.Group("", middlewares.RequireRole())
	admin.POST("/users", createUserHandler)
	admin.GET("/users/:id", getUserHandler)

	planning := api.Group("", middlewares.RequireRole(models.UserRolePlanning))
	planning.POST("/programs", createProgramHandler)
	planning.PUT("/programs/:id", updateProgramHandler)
	planning.DELETE("/programs/:id", deleteProgramHandler)
	planning.POST("/activities", createActivityHandler)
	planning.PUT("/activities/:id", updateActivityHandler)
	planning.DELETE("/activities/:id", deleteActivityHandler)
	planning.POST("/sub-activities", createSubActivityHandler)
	planning.PUT("/sub-activities/:id", updateSubActivityHandler)
	planning.DELETE("/sub-activities/:id", deleteSubActivityHandler)
	planning.POST("/budget-items", createBudgetItemHandler)
	planning.PUT("/budget-items/:id", updateBudgetItemHandler)
	planning.DELETE("/budget-items/:id", deleteBudgetItemHandler)
	planning.POST("/monthly-plans", createMonthlyPlanHandler)
	planning.PUT("/monthly-plans/:id", updateMonthlyPlanHandler)
	planning.DELETE("/monthly-plans/:id", deleteMonthlyPlanHandler)
	planning.POST("/monthly-plans/generate/equal", generateEqualPlansHandler)
	planning.POST("/monthly-plans/generate/custom", generateCustomPlansHandler)
	planning.POST("/monthly-plans/generate/copy-previous-year", generateFromPreviousYearHandler)
	planning.POST("/monthly-plans/import", importPlansHandler)

	api.GET("/programs", listProgramsHandler)
	api.GET("/programs/:id", getProgramHandler)
	api.GET("/activities", listActivitiesHandler)
	api.GET("/sub-activities", listSubActivitiesHandler)
	api.GET("/budget-items", listBudgetItemsHandler)
	api.GET("/budget-items/:id", getBudgetItemHandler)
	api.GET("/monthly-plans", listMonthlyPlansHandler)
	api.GET("/monthly-plans/validate", validatePlansHandler)

	execution := api.Group("", middlewares.RequireRole(models.UserRoleExecution))
	execution.POST("/realizations", createRealizationHandler)
	execution.PUT("/realizations/:id", updateRealizationHandler)
	execution.DELETE("/realizations/:id", deleteRealizationHandler)
	execution.POST("/realizations/:id/submit", submitRealizationHandler())
	execution.POST("/realizations/:id/documents", createDocumentHandler)
	execution.DELETE("/documents/:id", deleteDocumentHandler)

	api.GET("/realizations", listRealizationsHandler)
	api.GET("/realizations/:id", getRealizationHandler)
	api.GET("/realizations/:id/histories", listApprovalHistoriesHandler)
	api.GET("/documents/:id/url", documentURLHandler)

	finance := api.Group("", middlewares.RequireRole(models.UserRoleFinance))
	finance.POST("/realizations/:id/verify", verifyRealizationHandler())
	finance.POST("/realizations/batch-verify", batchVerifyHandler)

	reviewers := api.Group("", middlewares.RequireRole(models.UserRoleFinance, models.UserRoleHead))
	reviewers.POST("/realizations/:id/reject", rejectRealizationHandler())

	head := api.Group("", middlewares.RequireRole(models.UserRoleHead))
	head.POST("/realizations/:id/approve", approveRealizationHandler())
	head.POST("/realizations/:id/lock", lockRealizationHandler())
	head.POST("/realizations/batch-approve", batchApproveHandler)

	admin.POST("/realizations/:id/unlock", unlockRealizationHandler())
	admin.DELETE("/alerts/:id", deleteAlertHandler)

	api.GET("/alerts", listAlertsHandler)
	api.POST("/alerts/:id/acknowledge", acknowledgeAlertHandler())
	api.POST("/alerts/:id/resolve", resolveAlertHandler())
	api.POST("/alerts/:id/dismiss", dismissAlertHandler())

	finance.POST("/scans/deviation", runDeviationScanHandler(logger))
}

func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		// Cloud Run standard env var.
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start the HTTP server ASAP so Cloud Run considers the revision healthy.
	// Until the DB is ready, app endpoints return 503.
	r := gin.New()
	r.Use(middlewares.CorrelationMiddleware())
	r.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if config.GetDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	// In production require an explicit allowlist; otherwise allow all for
	// developer convenience.
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization", "X-Correlation-Id")
	corsConfig.AddExposeHeaders("Content-Length")
	corsConfig.AllowCredentials = true
	r.Use(cors.New(corsConfig))

	r.Use(middlewares.AuthMiddleware())
	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	registerRoutes(r, logger)

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		// ListenAndServe returns http.ErrServerClosed on graceful shutdown.
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// AutoMigrate can run DDL that blocks tables; allow disabling it on
	// startup and running migrations as a separate job instead.
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	// Start the outbox dispatcher (publishes AFTER commit).
	dispatcherCtx, cancelDispatcher := context.WithCancel(context.Background())
	defer cancelDispatcher()
	go workflow.NewNotificationDispatcher(db, logger).Run(dispatcherCtx)

	var scheduler *cron.Cron
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("DISABLE_SCHEDULER")), "true") {
		scheduler = startDeviationScheduler(logger)
	}

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("listening on port " + port)
	log.Println("Server started successfully")

	// Block until shutdown or server error.
	select {
	case <-sigCtx.Done():
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Stop background workers first so they don't start new work mid-drain.
	cancelDispatcher()
	if scheduler != nil {
		schedulerCtx := scheduler.Stop()
		select {
		case <-schedulerCtx.Done():
		case <-time.After(30 * time.Second):
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}
