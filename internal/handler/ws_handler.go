package handler

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/provafacil/simulado-backend/internal/config"
	"github.com/provafacil/simulado-backend/internal/middleware"
	"github.com/provafacil/simulado-backend/internal/model"
	"github.com/provafacil/simulado-backend/internal/service"
	"github.com/provafacil/simulado-backend/internal/session"
	ws "github.com/provafacil/simulado-backend/internal/websocket"
	"github.com/rs/zerolog"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams live attempt sessions. Each connection owns one session
// controller: countdown ticks, navigation, answer selection, the finish
// confirmation gate and auto-submit all run server-side, with every state
// change pushed as a snapshot frame.
type WSHandler struct {
	cfg            *config.Config
	store          *session.Store
	examService    *service.ExamService
	attemptService *service.AttemptService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(
	cfg *config.Config,
	store *session.Store,
	examService *service.ExamService,
	attemptService *service.AttemptService,
	log zerolog.Logger,
) *WSHandler {
	return &WSHandler{
		cfg:            cfg,
		store:          store,
		examService:    examService,
		attemptService: attemptService,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(cfg.AllowedOrigins),
	}
}

// AttemptStream godoc
// WS /ws/v1/participant/exams/:exam_id/stream
// Upgrades to WebSocket and drives one attempt session until disconnect.
func (h *WSHandler) AttemptStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid exam ID"})
		return
	}

	participantID := claims.UserID

	exam, err := h.examService.GetExam(c.Request.Context(), examID)
	if err != nil || exam.Status != model.ExamStatusPublished {
		c.JSON(http.StatusNotFound, gin.H{"error": "exam not available"})
		return
	}

	questions, err := h.examService.ListQuestions(c.Request.Context(), examID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load exam"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Int("participant_id", participantID).
		Str("exam_id", examID.String()).
		Logger()

	clock := session.SystemClock()
	countdown := session.NewCountdown(clock, h.cfg.ExamDuration, h.cfg.WarningThreshold)
	ctrl := session.NewController(h.store, countdown, clock, wsLog, examID, participantID, questions)
	defer ctrl.Close()

	// Single writer goroutine: gorilla connections allow one concurrent
	// writer, and snapshots arrive from the countdown goroutine as well as
	// from action handling. A dropped frame is fine — the next tick
	// supersedes it.
	out := make(chan interface{}, 64)
	done := make(chan struct{})

	var writerWg sync.WaitGroup
	writerWg.Add(1)
	defer writerWg.Wait()
	defer close(done)

	send := func(v interface{}) {
		select {
		case out <- v:
		default:
		}
	}

	go func() {
		defer writerWg.Done()
		for {
			select {
			case v := <-out:
				if err := ws.WriteTyped(conn, v); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	// Queue cache cleanup exactly once when the attempt reaches its terminal
	// state through this connection.
	var cleanupOnce sync.Once
	unsubscribe := ctrl.Subscribe(func(snap session.Snapshot) {
		if snap.Status == session.StatusFinished {
			cleanupOnce.Do(func() {
				h.attemptService.QueueCleanup(context.Background(), examID, participantID)
			})
		}
		send(ws.StateResponse{Event: ws.EventState, State: snap})
	})
	defer unsubscribe()

	if err := ctrl.Start(c.Request.Context()); err != nil {
		wsLog.Warn().Err(err).Msg("Attempt load failed")
		// The FAILED snapshot already went out; the client may send retry.
	}

	wsLog.Info().Msg("Participant connected")

	for {
		var raw map[string]interface{}
		if err := ws.ReadJSON(conn, &raw); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		action, _ := raw["action"].(string)
		switch ws.Action(action) {
		case ws.ActionSelectAnswer:
			h.handleSelectAnswer(ctrl, send, raw)
		case ws.ActionNavigate:
			index, _ := raw["index"].(float64)
			ctrl.Navigate(int(index))
		case ws.ActionRequestFinish:
			ctrl.RequestFinish()
		case ws.ActionCancelFinish:
			ctrl.CancelFinish()
		case ws.ActionConfirmFinish:
			if err := ctrl.ConfirmFinish(context.Background()); err != nil {
				send(ws.ErrorResponse{Event: ws.EventError, Error: err.Error()})
			}
		case ws.ActionRetry:
			if err := ctrl.Retry(context.Background()); err != nil {
				send(ws.ErrorResponse{Event: ws.EventError, Error: err.Error()})
			}
		case ws.ActionPing:
			send(ws.PongResponse{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", action).Msg("Unknown action")
			send(ws.ErrorResponse{Event: ws.EventError, Error: "unknown action: " + action})
		}
	}
}

func (h *WSHandler) handleSelectAnswer(ctrl *session.Controller, send func(interface{}), raw map[string]interface{}) {
	qid, _ := raw["q_id"].(string)
	label, _ := raw["ans"].(string)

	if qid == "" || label == "" {
		send(ws.ErrorResponse{Event: ws.EventError, Error: "q_id and ans are required"})
		return
	}
	questionID, err := uuid.Parse(qid)
	if err != nil {
		send(ws.ErrorResponse{Event: ws.EventError, Error: "invalid q_id format"})
		return
	}

	if err := ctrl.SelectAnswer(context.Background(), questionID, label); err != nil {
		send(ws.ErrorResponse{Event: ws.EventError, Error: err.Error()})
	}
}
