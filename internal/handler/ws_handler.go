package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/prepstack/prepstack-backend/internal/config"
	"github.com/prepstack/prepstack-backend/internal/middleware"
	"github.com/prepstack/prepstack-backend/internal/model"
	"github.com/prepstack/prepstack-backend/internal/scoring"
	"github.com/prepstack/prepstack-backend/internal/service"
	"github.com/prepstack/prepstack-backend/internal/session"
	ws "github.com/prepstack/prepstack-backend/internal/websocket"
	"github.com/prepstack/prepstack-backend/internal/worker"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowlist permits all origins (development mode).
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

// WSHandler streams a live test-taking session over WebSocket. Each attempt
// gets one session engine; the engine survives a dropped connection so a
// reconnecting client resumes where it left off, timer still running.
type WSHandler struct {
	rdb      *redis.Client
	tests    *service.MockTestService
	attempts *service.AttemptService
	registry *session.Registry
	log      zerolog.Logger
	upgrader websocket.Upgrader

	// conns maps attempt id to the live connection, so the engine's timeout
	// callback reaches whichever connection is current when it fires.
	conns sync.Map
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(
	rdb *redis.Client,
	tests *service.MockTestService,
	attempts *service.AttemptService,
	registry *session.Registry,
	log zerolog.Logger,
	allowedOrigins []string,
) *WSHandler {
	return &WSHandler{
		rdb:      rdb,
		tests:    tests,
		attempts: attempts,
		registry: registry,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// AttemptStream godoc
// WS /ws/v1/attempts/:attempt_id/stream?token=...
// Upgrades to WebSocket for the live session: navigation, answer commits,
// the countdown, and final grading all flow over this stream.
func (h *WSHandler) AttemptStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid attempt ID"})
		return
	}

	rawConn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.Wrap(rawConn)
	defer conn.Close()

	attempt, err := h.attempts.VerifyActive(c.Request.Context(), attemptID, claims.UserID)
	if err != nil {
		conn.WriteError("no active attempt")
		return
	}

	wsLog := h.log.With().
		Int("user_id", claims.UserID).
		Str("attempt_id", attemptID.String()).
		Logger()

	h.conns.Store(attemptID.String(), conn)
	defer func() {
		// Only remove our own entry; a reconnect may have replaced it.
		if cur, ok := h.conns.Load(attemptID.String()); ok && cur == conn {
			h.conns.Delete(attemptID.String())
		}
	}()

	engine, err := h.registry.GetOrCreate(attemptID.String(), func() (*session.Engine, error) {
		return h.buildEngine(c.Request.Context(), attempt)
	})
	if err != nil {
		wsLog.Error().Err(err).Msg("failed to build session engine")
		conn.WriteError("unable to start session")
		return
	}

	wsLog.Info().Msg("session stream opened")
	h.sendState(conn, engine)

	answersKey := config.CacheKey.AttemptAnswersKey(attempt.TestID.String(), claims.UserID)
	h.readLoop(conn, engine, answersKey, wsLog)
	wsLog.Info().Msg("session stream closed")
}

// readLoop dispatches client actions until the socket drops or the session
// ends. Every action is answered with a fresh state snapshot; warnings and
// the submit confirmation ride alongside as separate events.
func (h *WSHandler) readLoop(conn *ws.Conn, engine *session.Engine, answersKey string, wsLog zerolog.Logger) {
	ctx := context.Background()

	for {
		var req ws.Request
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("unexpected WebSocket close")
			}
			return
		}

		switch req.Action {
		case ws.ActionPing:
			conn.WriteTyped(ws.PongResponse{Event: ws.EventPong})
			continue

		case ws.ActionSelect:
			if err := engine.SelectOption(req.Option); err != nil {
				conn.WriteError(err.Error())
				continue
			}

		case ws.ActionSaveNext:
			snap := engine.Snapshot()
			allAnswered, err := engine.SaveAndNext()
			if err != nil {
				if errors.Is(err, session.ErrNoSelection) {
					conn.WriteTyped(ws.WarningResponse{Event: ws.EventWarning, Message: "select an option before saving"})
					continue
				}
				conn.WriteError(err.Error())
				continue
			}
			h.mirrorAnswer(ctx, answersKey, snap.CurrentIndex, snap.Pending, wsLog)
			if allAnswered {
				conn.WriteTyped(ws.ConfirmResponse{Event: ws.EventConfirm})
			}

		case ws.ActionClear:
			snap := engine.Snapshot()
			if err := engine.ClearResponse(); err != nil {
				conn.WriteError(err.Error())
				continue
			}
			if err := h.rdb.HDel(ctx, answersKey, strconv.Itoa(snap.CurrentIndex)).Err(); err != nil {
				wsLog.Warn().Err(err).Msg("failed to clear autosaved answer")
			}

		case ws.ActionMarkNext:
			snap := engine.Snapshot()
			warned, err := engine.MarkForReviewAndNext()
			if err != nil {
				conn.WriteError(err.Error())
				continue
			}
			if warned {
				conn.WriteTyped(ws.WarningResponse{Event: ws.EventWarning, Message: "marked for review without an answer"})
			} else {
				h.mirrorAnswer(ctx, answersKey, snap.CurrentIndex, snap.Pending, wsLog)
			}

		case ws.ActionSkip:
			if err := engine.Skip(); err != nil {
				conn.WriteError(err.Error())
				continue
			}

		case ws.ActionGoto:
			if req.Index == nil {
				conn.WriteError("goto requires an index")
				continue
			}
			if err := engine.GoToQuestion(*req.Index); err != nil {
				conn.WriteError(err.Error())
				continue
			}

		case ws.ActionSubmit:
			// OnSubmit delivers the graded event before Submit returns.
			engine.Submit(session.SubmitManual)
			return

		case ws.ActionExit:
			engine.Exit()
			return

		default:
			conn.WriteError("unknown action")
			continue
		}

		h.sendState(conn, engine)
	}
}

// buildEngine constructs the session engine for an attempt, wiring the
// submit path to grading, the persistence queue, and the graded event, and
// the exit path to abandonment.
func (h *WSHandler) buildEngine(ctx context.Context, attempt *model.Attempt) (*session.Engine, error) {
	test, err := h.tests.GetByID(ctx, attempt.TestID)
	if err != nil {
		return nil, err
	}
	questions, err := h.tests.GetQuestionSet(ctx, attempt.TestID)
	if err != nil {
		return nil, err
	}

	// The attempt clock anchors to started_at, and committed answers come
	// back from the autosave mirror, so a late first connection or a
	// post-restart rebuild resumes instead of restarting.
	elapsed, saved, err := h.attempts.ResumeSeed(ctx, attempt)
	if err != nil {
		return nil, err
	}

	attemptKey := attempt.ID.String()
	scheme := test.Scheme()

	return session.New(session.Config{
		Questions:       questions,
		DurationMinutes: test.DurationMinutes,
		Scheme:          scheme,
		ElapsedSeconds:  elapsed,
		SavedAnswers:    saved,
		OnSubmit: func(answers scoring.AnswerMap, elapsedSeconds int) {
			h.handleSubmission(attempt, questions, scheme, answers, elapsedSeconds)
		},
		OnExit: func() {
			bg := context.Background()
			if err := h.attempts.Abandon(bg, attempt); err != nil {
				h.log.Error().Err(err).Str("attempt_id", attemptKey).Msg("failed to abandon attempt")
			}
			h.registry.Remove(attemptKey)
		},
	})
}

// handleSubmission grades the frozen answer map, queues the result for the
// persistence worker, and pushes the graded event to the live connection.
// Runs on whichever goroutine triggered submission, user or timer.
func (h *WSHandler) handleSubmission(
	attempt *model.Attempt,
	questions []scoring.Question,
	scheme scoring.MarkingScheme,
	answers scoring.AnswerMap,
	elapsedSeconds int,
) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	attemptKey := attempt.ID.String()
	summary := scoring.Grade(questions, answers, scheme)

	engine, _ := h.registry.Get(attemptKey)
	reason := session.SubmitManual
	if engine != nil {
		reason = engine.EndReason()
	}

	payload := worker.ResultPayload{
		AttemptID:      attempt.ID,
		TestID:         attempt.TestID,
		UserID:         attempt.UserID,
		Score:          summary.Score,
		Correct:        summary.Correct,
		Incorrect:      summary.Incorrect,
		Skipped:        summary.Skipped,
		Percentage:     summary.Percentage,
		Accuracy:       summary.Accuracy,
		ElapsedSeconds: elapsedSeconds,
		TopicBreakdown: summary.TopicBreakdown,
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		h.log.Error().Err(err).Str("attempt_id", attemptKey).Msg("failed to encode result payload")
	} else if err := h.rdb.RPush(ctx, config.WorkerKey.PersistResultsQueue, encoded).Err(); err != nil {
		h.log.Error().Err(err).Str("attempt_id", attemptKey).Msg("failed to queue result for persistence")
	}

	if cur, ok := h.conns.Load(attemptKey); ok {
		if conn, ok := cur.(*ws.Conn); ok {
			conn.WriteTyped(ws.GradedResponse{
				Event:          ws.EventGraded,
				Reason:         string(reason),
				ElapsedSeconds: elapsedSeconds,
				Summary:        summary,
			})
		}
	}

	h.registry.Remove(attemptKey)
	h.log.Info().
		Str("attempt_id", attemptKey).
		Str("reason", string(reason)).
		Float64("score", summary.Score).
		Msg("attempt submitted and graded")
}

func (h *WSHandler) sendState(conn *ws.Conn, engine *session.Engine) {
	conn.WriteTyped(ws.StateResponse{Event: ws.EventState, State: engine.Snapshot()})
}

func (h *WSHandler) mirrorAnswer(ctx context.Context, answersKey string, index int, answer string, wsLog zerolog.Logger) {
	if answer == "" {
		return
	}
	if err := h.rdb.HSet(ctx, answersKey, strconv.Itoa(index), answer).Err(); err != nil {
		wsLog.Warn().Err(err).Msg("failed to autosave answer")
	}
}
