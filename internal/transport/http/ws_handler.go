package http

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"math-race-service/internal/domain"
)

type WSHandler struct {
	engine   RaceEngine
	logger   *log.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(engine RaceEngine, logger *log.Logger) *WSHandler {
	return &WSHandler{
		engine: engine,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// racePayload covers every inbound message; each type reads the fields it needs.
type racePayload struct {
	GameID  string             `json:"gameId"`
	LevelID int64              `json:"levelId"`
	Value   *int               `json:"value"`
	Type    domain.PowerUpType `json:"type"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

// ServeWS upgrades HTTP requests to websockets and drives one player's races over them.
//
// Inbound: start, status, answer, powerUp, abandon, subscribe.
// Outbound: started, status, answerResult, powerUpResult, abandoned, update, error.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	uid := r.URL.Query().Get("uid")
	if uid == "" {
		http.Error(w, "missing uid", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()
	ctx := r.Context()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})

	// single writer: gorilla connections do not support concurrent writes
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	push := func(typ string, payload any) {
		select {
		case send <- outboundMessage[any]{Type: typ, Payload: payload}:
		case <-writerDone:
		}
	}
	fail := func(err error) {
		push("error", newErrorPayload(err))
	}

	var stopUpdates func()
	subscribe := func(gameID string) error {
		updates, cancel, err := h.engine.Subscribe(ctx, gameID, uid)
		if err != nil {
			return err
		}
		if stopUpdates != nil {
			stopUpdates()
		}
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				select {
				case game, ok := <-updates:
					if !ok {
						return
					}
					select {
					case send <- outboundMessage[any]{Type: "update", Payload: newRaceView(game)}:
					case <-closeSignals:
						return
					case <-writerDone:
						return
					}
				case <-closeSignals:
					return
				}
			}
		}()
		stopUpdates = func() {
			cancel()
			<-done
		}
		return nil
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		var payload racePayload
		if len(inbound.Payload) > 0 {
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				push("error", errorPayload{Type: "bad_request", Message: "invalid payload"})
				continue
			}
		}

		switch inbound.Type {
		case "start":
			game, err := h.engine.Start(ctx, uid, payload.LevelID)
			if err != nil {
				fail(err)
				continue
			}
			push("started", newRaceView(game))
		case "status":
			res, err := h.engine.Status(ctx, payload.GameID, uid)
			if err != nil {
				fail(err)
				continue
			}
			push("status", newStatusView(res))
		case "answer":
			if payload.Value == nil {
				push("error", errorPayload{Type: "bad_request", Message: "missing answer value"})
				continue
			}
			res, err := h.engine.SubmitAnswer(ctx, payload.GameID, uid, *payload.Value)
			if err != nil {
				fail(err)
				continue
			}
			push("answerResult", newAnswerView(res))
		case "powerUp":
			res, err := h.engine.ActivatePowerUp(ctx, payload.GameID, uid, payload.Type)
			if err != nil {
				fail(err)
				continue
			}
			push("powerUpResult", newPowerUpView(res))
		case "abandon":
			game, err := h.engine.Abandon(ctx, payload.GameID, uid)
			if err != nil {
				fail(err)
				continue
			}
			push("abandoned", newRaceView(game))
		case "subscribe":
			if err := subscribe(payload.GameID); err != nil {
				fail(err)
			}
		default:
			push("error", errorPayload{Type: "bad_request", Message: "unsupported message type"})
		}
	}

	close(closeSignals)
	if stopUpdates != nil {
		stopUpdates()
	}
	close(send)
	<-writerDone
}
