package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/provafacil/simulado-backend/internal/config"
	"github.com/provafacil/simulado-backend/internal/handler"
	"github.com/provafacil/simulado-backend/internal/middleware"
	"github.com/provafacil/simulado-backend/internal/response"
	"github.com/provafacil/simulado-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth        *handler.AuthHandler
	Exam        *handler.ExamHandler
	Participant *handler.ParticipantHandler
	WS          *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// Rate limiter for auth routes (30 requests per minute per IP).
	authLimiter := middleware.NewRateLimiter(30, time.Minute)

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	auth := router.Group("/api/v1/auth")
	auth.Use(authLimiter.Middleware())
	{
		auth.POST("/login", handlers.Auth.Login)
		auth.GET("/me", middleware.RequireJWT(authService), handlers.Auth.Me)
	}

	// ─── 2. Participant Group (JWT) ────────────────────────────────────
	participantAPI := router.Group("/api/v1/participant")
	participantAPI.Use(middleware.RequireParticipantJWT(authService))
	{
		participantAPI.GET("/lobby", handlers.Participant.GetLobby)
		participantAPI.POST("/exams/:exam_id/start", handlers.Participant.StartAttempt)
		participantAPI.GET("/exams/:exam_id/paper", handlers.Participant.GetPaper)
		participantAPI.GET("/exams/:exam_id/state", handlers.Participant.GetState)
		participantAPI.POST("/exams/:exam_id/answers", handlers.Participant.RecordAnswer)
		participantAPI.POST("/exams/:exam_id/submit", handlers.Participant.Submit)
		participantAPI.GET("/exams/:exam_id/result", handlers.Participant.GetResult)
	}

	// ─── 3. WebSocket Group (Participant WS Auth) ──────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireParticipantWSAuth(authService))
	{
		ws.GET("/participant/exams/:exam_id/stream", handlers.WS.AttemptStream)
	}

	// ─── 4. Teacher Group (JWT) ────────────────────────────────────────
	teacherAPI := router.Group("/api/v1/teacher")
	teacherAPI.Use(middleware.RequireTeacherJWT(authService))
	{
		teacherAPI.GET("/exams", handlers.Exam.ListExams)
		teacherAPI.POST("/exams", handlers.Exam.CreateExam)
		teacherAPI.GET("/exams/:exam_id", handlers.Exam.GetExam)
		teacherAPI.PATCH("/exams/:exam_id", handlers.Exam.UpdateExam)
		teacherAPI.DELETE("/exams/:exam_id", handlers.Exam.DeleteExam)
		teacherAPI.POST("/exams/:exam_id/publish", handlers.Exam.Publish)

		teacherAPI.GET("/exams/:exam_id/questions", handlers.Exam.ListQuestions)
		teacherAPI.POST("/exams/:exam_id/questions", handlers.Exam.AddQuestion)
		teacherAPI.PUT("/exams/:exam_id/questions", handlers.Exam.ReplaceQuestions)
		teacherAPI.DELETE("/exams/:exam_id/questions/:question_id", handlers.Exam.DeleteQuestion)
	}

	return router
}
