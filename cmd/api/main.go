package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"trainhub/internal/auth"
	"trainhub/internal/config"
	"trainhub/internal/httpmiddleware"
	"trainhub/internal/metrics"
	"trainhub/internal/queue"
	"trainhub/internal/report"
	"trainhub/internal/store"
	"trainhub/internal/training"
)

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	redisClient := store.NewRedis(cfg.RedisAddr)

	var trainingStore training.Store
	var db *store.DB
	if cfg.StoreBackend == "postgres" {
		var err error
		db, err = store.NewDB(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		trainingStore = training.NewPostgresStore(db.Client)
		log.Println("using postgres store")
	} else {
		trainingStore = training.NewMemoryStore()
		log.Println("using in-memory store")
	}

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "trainhub:signatures")
	}

	svc := training.NewService(trainingStore, cfg.SignatureTTL)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		storeHealthy := cfg.StoreBackend != "postgres" || db != nil
		status := http.StatusOK
		if !redisHealthy || !storeHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "store": storeHealthy})
	})

	// Demo token exchange. Real credential verification is an external
	// collaborator's job; this endpoint only issues role-scoped tokens.
	r.POST("/v1/auth/token", func(c *gin.Context) {
		var req struct {
			Subject string `json:"subject" binding:"required"`
			Role    string `json:"role" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if _, err := training.ParseRole(req.Role); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown role"})
			return
		}
		tokens, err := auth.Issue(req.Subject, req.Role, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{
			"access_token":  tokens.AccessToken,
			"refresh_token": tokens.RefreshToken,
			"expires_at":    tokens.AccessExp.Unix(),
		})
	})

	authGroup := r.Group("/v1", auth.UserAuth(cfg.JWTSigningKey, cfg.JWTIssuer))
	staff := auth.RequireRole(training.RoleAdministrator, training.RoleManager, training.RoleInstructor)

	authGroup.POST("/sessions", staff, func(c *gin.Context) {
		draft, err := bindSessionDraft(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		session, err := svc.Create(c.Request.Context(), draft)
		if err != nil {
			respondErr(c, err)
			return
		}
		metrics.SessionsCreated.Inc()
		c.JSON(http.StatusCreated, session)
	})

	authGroup.GET("/sessions", func(c *gin.Context) {
		sessions, err := svc.List(c.Request.Context(), auth.IdentityFrom(c))
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"sessions": sessions})
	})

	authGroup.GET("/sessions/:id", func(c *gin.Context) {
		session, err := svc.Get(c.Request.Context(), auth.IdentityFrom(c), c.Param("id"))
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, session)
	})

	transition := func(name string, op func(context.Context, string) (training.Session, error)) gin.HandlerFunc {
		return func(c *gin.Context) {
			session, err := op(c.Request.Context(), c.Param("id"))
			if err != nil {
				respondErr(c, err)
				return
			}
			metrics.Transitions.WithLabelValues(name).Inc()
			c.JSON(http.StatusOK, session)
		}
	}
	authGroup.POST("/sessions/:id/start", staff, transition("in-progress", svc.Start))
	authGroup.POST("/sessions/:id/complete", staff, transition("completed", svc.Complete))
	authGroup.POST("/sessions/:id/cancel", staff, transition("cancelled", svc.Cancel))

	authGroup.POST("/sessions/:id/participants", staff, func(c *gin.Context) {
		var req struct {
			ParticipantID string `json:"participant_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		session, err := svc.Enroll(c.Request.Context(), c.Param("id"), req.ParticipantID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, session)
	})

	authGroup.DELETE("/sessions/:id/participants/:participantID", staff, func(c *gin.Context) {
		session, err := svc.Withdraw(c.Request.Context(), c.Param("id"), c.Param("participantID"))
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, session)
	})

	authGroup.PUT("/sessions/:id/attendance", staff, func(c *gin.Context) {
		var req struct {
			ParticipantID string `json:"participant_id" binding:"required"`
			Period        string `json:"period" binding:"required"`
			Status        string `json:"status" binding:"required"`
			LateMinutes   *int   `json:"late_minutes"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		period, err := training.ParsePeriod(req.Period)
		if err != nil {
			respondErr(c, err)
			return
		}
		status, err := training.ParseAttendanceStatus(req.Status)
		if err != nil {
			respondErr(c, err)
			return
		}
		rec, err := svc.RecordAttendance(c.Request.Context(), c.Param("id"), req.ParticipantID, period, status, req.LateMinutes)
		if err != nil {
			respondErr(c, err)
			return
		}
		metrics.AttendanceRecorded.WithLabelValues(string(status)).Inc()
		c.JSON(http.StatusOK, rec)
	})

	authGroup.GET("/sessions/:id/attendance", func(c *gin.Context) {
		stats, err := svc.Stats(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, stats)
	})

	authGroup.POST("/sessions/:id/signatures", staff, func(c *gin.Context) {
		var req struct {
			Period string `json:"period" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		period, err := training.ParsePeriod(req.Period)
		if err != nil {
			respondErr(c, err)
			return
		}
		sigReq, evt, err := svc.RequestSignature(c.Request.Context(), c.Param("id"), period)
		if err != nil {
			respondErr(c, err)
			return
		}
		metrics.SignatureRequests.Inc()

		body, merr := json.Marshal(evt)
		if merr != nil {
			log.Printf("marshal signature event failed: %v", merr)
		} else if err := q.Publish(c.Request.Context(), queue.Message{Type: training.EventSignatureRequested, Body: body}); err != nil {
			log.Printf("queue publish failed: %v", err)
		}

		c.JSON(http.StatusCreated, sigReq)
	})

	authGroup.PUT("/sessions/:id/signatures", func(c *gin.Context) {
		var req struct {
			Period        string `json:"period" binding:"required"`
			ParticipantID string `json:"participant_id"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		period, err := training.ParsePeriod(req.Period)
		if err != nil {
			respondErr(c, err)
			return
		}
		identity := auth.IdentityFrom(c)
		participantID := req.ParticipantID
		if identity.Role == training.RoleParticipant {
			// Participants sign for themselves only.
			if participantID != "" && participantID != identity.ID {
				c.JSON(http.StatusForbidden, gin.H{"error": "cannot sign for another participant"})
				return
			}
			participantID = identity.ID
		}
		if participantID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "participant_id required"})
			return
		}
		sigReq, err := svc.RecordSignature(c.Request.Context(), c.Param("id"), period, participantID)
		if err != nil {
			respondErr(c, err)
			return
		}
		metrics.SignaturesRecorded.Inc()
		c.JSON(http.StatusOK, sigReq)
	})

	authGroup.GET("/sessions/:id/signatures", func(c *gin.Context) {
		period, err := training.ParsePeriod(c.Query("period"))
		if err != nil {
			respondErr(c, err)
			return
		}
		requested, err := svc.IsRequested(c.Request.Context(), c.Param("id"), period)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"requested": requested})
	})

	authGroup.PUT("/sessions/:id/presence", func(c *gin.Context) {
		var req struct {
			ParticipantID string `json:"participant_id"`
			Decision      string `json:"decision" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		decision, err := training.ParsePresenceDecision(req.Decision)
		if err != nil {
			respondErr(c, err)
			return
		}
		identity := auth.IdentityFrom(c)
		participantID := req.ParticipantID
		if identity.Role == training.RoleParticipant {
			participantID = identity.ID
		}
		if participantID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "participant_id required"})
			return
		}
		notice, err := svc.RecordPresence(c.Request.Context(), c.Param("id"), participantID, decision)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, notice)
	})

	authGroup.GET("/reports/hours", func(c *gin.Context) {
		identity := auth.IdentityFrom(c)
		var dateRange report.DateRange
		if v := c.Query("from"); v != "" {
			t, err := time.Parse("2006-01-02", v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "from must be YYYY-MM-DD"})
				return
			}
			dateRange.From = t
		}
		if v := c.Query("to"); v != "" {
			t, err := time.Parse("2006-01-02", v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "to must be YYYY-MM-DD"})
				return
			}
			dateRange.To = t
		}
		var rate *float64
		if v := c.Query("rate"); v != "" {
			parsed, err := strconv.ParseFloat(v, 64)
			if err != nil || parsed < 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "rate must be a non-negative number"})
				return
			}
			rate = &parsed
		} else if cfg.DefaultHourlyRate > 0 {
			r := cfg.DefaultHourlyRate
			rate = &r
		}

		sessions, err := trainingStore.ListSessions(c.Request.Context())
		if err != nil {
			respondErr(c, err)
			return
		}
		summary := report.Aggregate(sessions, identity, dateRange, rate, time.Now().UTC())
		resp := gin.H{"summary": summary}
		if summary.TotalEarnings != nil {
			resp["invoice"] = report.Invoice(*summary.TotalEarnings)
		}
		c.JSON(http.StatusOK, resp)
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

// bindSessionDraft maps the wire shape onto a domain draft. Field-level
// validation stays in the service so the error lists every problem at once.
func bindSessionDraft(c *gin.Context) (training.SessionDraft, error) {
	var req struct {
		Title            string   `json:"title"`
		Description      string   `json:"description"`
		InstructorID     string   `json:"instructor_id"`
		Location         string   `json:"location"`
		Capacity         int      `json:"capacity"`
		Date             string   `json:"date"`
		RecurringWeekday string   `json:"recurring_weekday"`
		RangeFrom        string   `json:"range_from"`
		RangeTo          string   `json:"range_to"`
		StartTime        string   `json:"start_time"`
		EndTime          string   `json:"end_time"`
		Periods          []string `json:"periods"`
		Participants     []string `json:"participants"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		return training.SessionDraft{}, err
	}

	draft := training.SessionDraft{
		Title:        req.Title,
		Description:  req.Description,
		InstructorID: req.InstructorID,
		Location:     req.Location,
		Capacity:     req.Capacity,
		Participants: req.Participants,
	}
	if req.Date != "" {
		t, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			return training.SessionDraft{}, errors.New("date must be YYYY-MM-DD")
		}
		draft.Date = t
	}
	if req.RecurringWeekday != "" {
		day, ok := weekdays[req.RecurringWeekday]
		if !ok {
			return training.SessionDraft{}, errors.New("unknown recurring_weekday")
		}
		draft.RecurringWeekday = &day
	}
	if req.RangeFrom != "" {
		t, err := time.Parse("2006-01-02", req.RangeFrom)
		if err != nil {
			return training.SessionDraft{}, errors.New("range_from must be YYYY-MM-DD")
		}
		draft.RangeFrom = t
	}
	if req.RangeTo != "" {
		t, err := time.Parse("2006-01-02", req.RangeTo)
		if err != nil {
			return training.SessionDraft{}, errors.New("range_to must be YYYY-MM-DD")
		}
		draft.RangeTo = t
	}
	if req.StartTime != "" {
		t, err := training.ParseTimeOfDay(req.StartTime)
		if err != nil {
			return training.SessionDraft{}, err
		}
		draft.StartTime = t
	}
	if req.EndTime != "" {
		t, err := training.ParseTimeOfDay(req.EndTime)
		if err != nil {
			return training.SessionDraft{}, err
		}
		draft.EndTime = t
	}
	for _, p := range req.Periods {
		period, err := training.ParsePeriod(p)
		if err != nil {
			return training.SessionDraft{}, err
		}
		draft.Periods = append(draft.Periods, period)
	}
	return draft, nil
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

func respondErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, training.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, training.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, training.ErrInvalidTransition),
		errors.Is(err, training.ErrDuplicateRequest),
		errors.Is(err, training.ErrFrozenSession):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// CORS middleware for browser requests
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
