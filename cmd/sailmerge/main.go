// sailmerge runs the three-way merge analyzer as an HTTP service: trigger an
// analysis against three Appian package paths, then read back the session
// summary, ordered change list, and per-change review state.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/sailmerge/sailmerge/pkg/config"
	"github.com/sailmerge/sailmerge/pkg/core"
	"github.com/sailmerge/sailmerge/pkg/metrics"
	"github.com/sailmerge/sailmerge/pkg/objectmodel"
	"github.com/sailmerge/sailmerge/pkg/orchestrator"
	"github.com/sailmerge/sailmerge/pkg/store"
	"github.com/sailmerge/sailmerge/pkg/textdiff"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("Warning: Could not load %s file: %v", envPath, err)
		log.Printf("Continuing with existing environment variables...")
	} else {
		log.Printf("Loaded environment from %s", envPath)
	}

	ctx := context.Background()

	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		log.Fatalf("Failed to initialize configuration: %v", err)
	}

	gin.SetMode(cfg.HTTP.GinMode)

	log.Printf("Starting sailmerge")
	log.Printf("HTTP Port: %s", cfg.HTTP.Port)
	log.Printf("Config Directory: %s", *configDir)

	st, err := store.New(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer st.Close()
	log.Println("Connected to PostgreSQL database")

	registry := objectmodel.NewRegistry()
	collectors := metrics.New(prometheus.DefaultRegisterer)
	orch := orchestrator.New(st, registry, orchestrator.Config{
		MaxPackageSizeBytes: cfg.Analysis.MaxPackageSizeBytes,
		StepTimeout:         time.Duration(cfg.Analysis.StepTimeoutSeconds) * time.Second,
	}, collectors, slog.Default())

	router := gin.Default()
	router.GET("/health", healthHandler(st))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/sessions")
	api.POST("", runAnalysisHandler(orch))
	api.GET("/:id", getSessionHandler(st))
	api.GET("/:id/changes", listChangesHandler(st))
	api.GET("/:id/changes/:changeId", getChangeHandler(st))
	api.POST("/:id/changes/:changeId/review", updateReviewHandler(st))
	api.POST("/:id/complete", completeSessionHandler(st))
	api.POST("/:id/changes/:changeId/diff", diffHandler(cfg.Analysis.DiffContextLines))

	log.Printf("HTTP server listening on :%s", cfg.HTTP.Port)
	if err := router.Run(":" + cfg.HTTP.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

func healthHandler(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		reqCtx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		dbHealth, err := st.Health(reqCtx)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"database": dbHealth,
				"error":    err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":   "healthy",
			"database": dbHealth,
		})
	}
}

type runAnalysisRequest struct {
	BasePath       string `json:"base_path" binding:"required"`
	CustomizedPath string `json:"customized_path" binding:"required"`
	NewVendorPath  string `json:"new_vendor_path" binding:"required"`
}

func runAnalysisHandler(orch *orchestrator.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req runAnalysisRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		sess, err := orch.Run(c.Request.Context(), orchestrator.Inputs{
			BasePath:       req.BasePath,
			CustomizedPath: req.CustomizedPath,
			NewVendorPath:  req.NewVendorPath,
		})
		if err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusCreated, sessionSummary(sess))
	}
}

func getSessionHandler(st store.Interface) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c, "id")
		if !ok {
			return
		}
		sess, err := st.GetSessionByID(c.Request.Context(), id)
		if err != nil {
			writeStoreError(c, err)
			return
		}
		c.JSON(http.StatusOK, sessionSummary(sess))
	}
}

func listChangesHandler(st store.Interface) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c, "id")
		if !ok {
			return
		}
		changes, err := st.ListChanges(c.Request.Context(), id, store.ChangeFilter{
			Classification: core.Classification(c.Query("classification")),
			ReviewStatus:   core.ReviewStatus(c.Query("review_status")),
		})
		if err != nil {
			writeStoreError(c, err)
			return
		}
		out := make([]gin.H, 0, len(changes))
		for _, ch := range changes {
			out = append(out, changeSummary(ch))
		}
		c.JSON(http.StatusOK, gin.H{"changes": out})
	}
}

func getChangeHandler(st store.Interface) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID, ok := parseID(c, "id")
		if !ok {
			return
		}
		changeID, ok := parseID(c, "changeId")
		if !ok {
			return
		}
		ch, err := st.GetChange(c.Request.Context(), sessionID, changeID)
		if err != nil {
			writeStoreError(c, err)
			return
		}
		c.JSON(http.StatusOK, changeSummary(ch))
	}
}

type diffRequest struct {
	OldCode string `json:"old_code"`
	NewCode string `json:"new_code"`
}

// diffHandler renders a unified diff between two SAIL code (or structured
// view) strings the caller supplies, per spec.md §4.10 — the core does not
// store pre-rendered hunks, only the post-formatter code each view needs.
func diffHandler(diffContextLines int) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req diffRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		unified, err := textdiff.UnifiedString(req.OldCode, req.NewCode, "old", "new", diffContextLines)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"diff": unified})
	}
}

type updateReviewRequest struct {
	Status core.ReviewStatus `json:"status" binding:"required"`
	Notes  string            `json:"notes"`
}

// updateReviewHandler records a reviewer decision. It begins the review (the
// ready→in_progress transition, spec.md §3: "transitions to in_progress on
// first review action") before updating the change, then recomputes
// reviewed_count/skipped_count by query rather than incrementing them, so
// every review action leaves the session's progress counts and status
// consistent with the changes table (spec.md §4.11). BeginReview is a no-op
// once the session has left status ready, so calling it on every action is
// safe.
func updateReviewHandler(st store.Interface) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID, ok := parseID(c, "id")
		if !ok {
			return
		}
		changeID, ok := parseID(c, "changeId")
		if !ok {
			return
		}
		var req updateReviewRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := st.BeginReview(c.Request.Context(), sessionID); err != nil {
			writeStoreError(c, err)
			return
		}
		if err := st.UpdateReviewStatus(c.Request.Context(), sessionID, changeID, req.Status, req.Notes); err != nil {
			writeStoreError(c, err)
			return
		}
		if _, _, err := st.RecomputeProgress(c.Request.Context(), sessionID); err != nil {
			writeStoreError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func completeSessionHandler(st store.Interface) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID, ok := parseID(c, "id")
		if !ok {
			return
		}
		if err := st.CompleteSession(c.Request.Context(), sessionID); err != nil {
			writeStoreError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func parseID(c *gin.Context, param string) (int64, bool) {
	var id int64
	if _, err := fmt.Sscan(c.Param(param), &id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": param + " must be an integer"})
		return 0, false
	}
	return id, true
}

func sessionSummary(sess *store.Session) gin.H {
	return gin.H{
		"reference_id":   sess.ReferenceID,
		"status":         sess.Status,
		"reviewed_count": sess.ReviewedCount,
		"skipped_count":  sess.SkippedCount,
		"last_error":     sess.LastError,
		"created_at":     sess.CreatedAt,
		"updated_at":     sess.UpdatedAt,
	}
}

func changeSummary(ch *store.ChangeRow) gin.H {
	return gin.H{
		"object_uuid":             ch.ObjectUUID,
		"object_name":             ch.ObjectName,
		"object_type":             ch.ObjectType,
		"classification":          ch.Classification,
		"vendor_kind":             ch.VendorKind,
		"customer_kind":           ch.CustomerKind,
		"review_status":           ch.ReviewStatus,
		"order_index":             ch.OrderIndex,
		"ai_summary_status":       ch.AISummaryStatus,
		"ai_summary_text":         ch.AISummaryText,
		"ai_summary_generated_at": ch.AISummaryGeneratedAt,
	}
}

func writeStoreError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, core.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, core.ErrPendingChanges):
		status = http.StatusConflict
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
