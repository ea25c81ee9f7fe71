package router

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/screenbeam/relay/backend/model"
)

const (
	defaultFwdTimeout = time.Second
)

type ParticipantSource interface {
	Lookup(sessionID string) ([]model.Participant, bool)
}

// Router fans signaling frames out to a session's participants. It
// holds no forwarding table of its own, each call works on a registry
// snapshot taken at call time.
type Router struct {
	logger     zerolog.Logger
	reg        ParticipantSource
	fwdTimeout time.Duration
}

type Config struct {
	Logger       *zerolog.Logger
	Participants ParticipantSource
	FwdTimeout   time.Duration
}

func New(cfg Config) *Router {
	timeout := cfg.FwdTimeout
	if timeout <= 0 {
		timeout = defaultFwdTimeout
	}
	return &Router{
		logger:     cfg.Logger.With().Str("component", "router").Logger(),
		reg:        cfg.Participants,
		fwdTimeout: timeout,
	}
}

// Relay delivers a participant's frame. A frame carrying a target goes
// only to that participant; everything else fans out to the whole
// session except the sender.
func (rt *Router) Relay(ctx context.Context, sessionID string, msg model.Message) {
	if msg.TargetID != "" {
		rt.sendTo(ctx, sessionID, msg, msg.TargetID)
		return
	}
	rt.BroadcastExcept(ctx, sessionID, msg, msg.SenderID)
}

// BroadcastExcept pushes msg to every participant except excludeID. A
// dead or slow endpoint never aborts delivery to the rest.
func (rt *Router) BroadcastExcept(ctx context.Context, sessionID string, msg model.Message, excludeID string) {
	logger := rt.logger.With().
		Str("sessionID", sessionID).
		Str("type", msg.Type).
		Str("src", msg.SenderID).Logger()

	participants, ok := rt.reg.Lookup(sessionID)
	if !ok {
		logger.Debug().Msg("cannot broadcast, session not found")
		return
	}

	var sent bool
	for _, p := range participants {
		if p.ID == excludeID {
			continue
		}
		ok, canceled := rt.send(ctx, msg, p, &logger)
		if canceled {
			return
		}
		if ok {
			sent = true
		}
	}
	if !sent {
		logger.Debug().Msg("broadcast did not reach anyone")
	}
}

func (rt *Router) sendTo(ctx context.Context, sessionID string, msg model.Message, targetID string) {
	logger := rt.logger.With().
		Str("sessionID", sessionID).
		Str("type", msg.Type).
		Str("src", msg.SenderID).Logger()

	participants, ok := rt.reg.Lookup(sessionID)
	if !ok {
		logger.Debug().Msg("cannot forward, session not found")
		return
	}
	for _, p := range participants {
		if p.ID == targetID {
			rt.send(ctx, msg, p, &logger)
			return
		}
	}
	// Stale target, the recipient left between send and delivery.
	logger.Debug().Str("dst", targetID).Msg("cannot forward, dst not found")
}

func (rt *Router) send(ctx context.Context, msg model.Message, p model.Participant, logger *zerolog.Logger) (bool, bool) {
	var sent, canceled bool
	tCh := time.NewTimer(rt.fwdTimeout)
	select {
	case <-ctx.Done():
		canceled = true
	case <-tCh.C:
		logger.Error().Str("dst", p.ID).Msg("dead endpoint")
	case p.Wire.TX <- msg:
		logger.Trace().Str("dst", p.ID).Msg("frame forwarded")
		sent = true
	}
	tCh.Stop()
	return sent, canceled
}
