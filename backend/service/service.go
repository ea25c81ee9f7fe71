package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/screenbeam/relay/backend/model"
)

const (
	defaultLeaveTimeout = 2 * time.Second
)

type (
	SessionRegistry interface {
		Create(sessionID string)
		Lookup(sessionID string) ([]model.Participant, bool)
		AddParticipant(sessionID string, p model.Participant)
		RemoveParticipant(sessionID, clientID string)
	}

	Router interface {
		Relay(ctx context.Context, sessionID string, msg model.Message)
		BroadcastExcept(ctx context.Context, sessionID string, msg model.Message, excludeID string)
	}

	Service struct {
		registry SessionRegistry
		router   Router
		logger   zerolog.Logger
	}

	Config struct {
		Registry SessionRegistry
		Router   Router
		Logger   *zerolog.Logger
	}
)

func NewService(cfg Config) *Service {
	return &Service{
		registry: cfg.Registry,
		router:   cfg.Router,
		logger:   cfg.Logger.With().Str("component", "signaling").Logger(),
	}
}

// CreateSession mints a fresh session id and makes it visible to
// status probes.
func (svc *Service) CreateSession() string {
	id := uuid.NewString()
	svc.registry.Create(id)
	svc.logger.Debug().Str("sessionID", id).Msg("session allocated")
	return id
}

// SessionStatus reports the participant count, or false for an id the
// allocator never issued and nobody joined.
func (svc *Service) SessionStatus(sessionID string) (int, bool) {
	participants, ok := svc.registry.Lookup(sessionID)
	if !ok {
		return 0, false
	}
	return len(participants), true
}

// HandleConnection runs one connection's lifetime: welcome, first-join
// binding, opaque relay, then leave on teardown. It returns when ctx is
// canceled, which the websocket server ties to the socket closing.
func (svc *Service) HandleConnection(ctx context.Context, clientID string, wire model.Wire) {
	logger := svc.logger.With().Str("clientID", clientID).Logger()

	select {
	case wire.TX <- model.NewWelcome(clientID):
	case <-ctx.Done():
		return
	}
	logger.Debug().Msg("welcome sent")

	var sessionID string // empty until the first valid join

recvLoop:
	for {
		select {
		case <-ctx.Done():
			break recvLoop
		case msg := <-wire.RX:
			if e := logger.Trace(); e.Enabled() {
				e.Msg(spew.Sdump(msg))
			}

			if msg.Type == model.MessageTypeJoin {
				if sessionID != "" {
					// First join wins, the connection stays bound.
					logger.Debug().Str("sessionID", sessionID).Msg("duplicate join ignored")
					continue
				}
				sessionID = svc.join(ctx, clientID, wire, msg, &logger)
				continue
			}

			if sessionID == "" {
				logger.Debug().Str("type", msg.Type).Msg("frame before join dropped")
				continue
			}
			svc.router.Relay(ctx, sessionID, model.Message{
				Type:     msg.Type,
				Payload:  msg.Payload,
				SenderID: clientID,
				TargetID: msg.TargetID,
			})
		}
	}

	if sessionID == "" {
		return
	}
	svc.registry.RemoveParticipant(sessionID, clientID)

	// Connection context is done at this point, announce the departure
	// on a bounded one of its own.
	leaveCtx, cancel := context.WithTimeout(context.Background(), defaultLeaveTimeout)
	defer cancel()
	svc.router.BroadcastExcept(leaveCtx, sessionID, model.Message{
		Type:     model.MessageTypeLeave,
		SenderID: clientID,
	}, clientID)
	logger.Debug().Str("sessionID", sessionID).Msg("participant left")
}

func (svc *Service) join(ctx context.Context, clientID string, wire model.Wire, msg model.Message, logger *zerolog.Logger) string {
	var payload model.JoinPayload
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			logger.Error().Err(err).Msg("failed to unmarshal join payload")
			return ""
		}
	}
	if payload.SessionID == "" {
		// Client must retry with a session id, connection stays unbound.
		logger.Debug().Msg("join without session id dropped")
		return ""
	}

	svc.registry.AddParticipant(payload.SessionID, model.Participant{
		ID:   clientID,
		Wire: wire,
	})
	logger.Debug().
		Str("sessionID", payload.SessionID).
		Str("role", payload.Role).
		Msg("participant joined")

	svc.router.BroadcastExcept(ctx, payload.SessionID, model.Message{
		Type:     model.MessageTypeJoin,
		SenderID: clientID,
		Payload:  msg.Payload,
	}, clientID)
	return payload.SessionID
}
