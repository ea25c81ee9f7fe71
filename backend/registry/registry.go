package registry

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/screenbeam/relay/backend/model"
)

const (
	defaultSweepInterval = time.Minute
	defaultIdleTTL       = 30 * time.Minute
)

// session keeps participants in join order. emptySince is non-zero
// while the session has no participants and feeds the sweeper.
type session struct {
	participants []model.Participant
	emptySince   time.Time
}

// Registry is the shared session-to-participants map. A single mutex
// guards it; operations are short in-memory list manipulations so
// contention across sessions is not a concern at this scale.
type Registry struct {
	logger   zerolog.Logger
	mx       *sync.Mutex
	sessions map[string]*session
	idleTTL  time.Duration
}

type Config struct {
	Logger  *zerolog.Logger
	IdleTTL time.Duration
}

func New(cfg Config) *Registry {
	ttl := cfg.IdleTTL
	if ttl <= 0 {
		ttl = defaultIdleTTL
	}
	return &Registry{
		logger:   cfg.Logger.With().Str("component", "registry").Logger(),
		mx:       &sync.Mutex{},
		sessions: make(map[string]*session),
		idleTTL:  ttl,
	}
}

// Create inserts an empty session if the id is unseen. Used by the
// allocator endpoint; joining an unknown id creates the session too,
// so this only makes the id visible to status probes right away.
func (r *Registry) Create(sessionID string) {
	r.mx.Lock()
	defer r.mx.Unlock()
	r.getOrCreateLocked(sessionID)
}

// GetOrCreate returns a snapshot of the session's participants in join
// order, creating an empty session first if the id is unseen.
func (r *Registry) GetOrCreate(sessionID string) []model.Participant {
	r.mx.Lock()
	defer r.mx.Unlock()
	return snapshot(r.getOrCreateLocked(sessionID))
}

// Lookup is a read-only probe, it never creates.
func (r *Registry) Lookup(sessionID string) ([]model.Participant, bool) {
	r.mx.Lock()
	defer r.mx.Unlock()
	sess, ok := r.sessions[sessionID]
	if !ok {
		return nil, false
	}
	return snapshot(sess), true
}

// AddParticipant appends to the (possibly newly created) session.
// Duplicate ids are not rejected here, the connection handler's
// first-join-wins guard is what prevents them.
func (r *Registry) AddParticipant(sessionID string, p model.Participant) {
	r.mx.Lock()
	defer r.mx.Unlock()
	sess := r.getOrCreateLocked(sessionID)
	sess.participants = append(sess.participants, p)
	sess.emptySince = time.Time{}
}

// RemoveParticipant drops every entry matching the client id. No-op if
// absent. The session entry stays even when it becomes empty.
func (r *Registry) RemoveParticipant(sessionID, clientID string) {
	r.mx.Lock()
	defer r.mx.Unlock()
	sess, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	kept := sess.participants[:0]
	for _, p := range sess.participants {
		if p.ID != clientID {
			kept = append(kept, p)
		}
	}
	sess.participants = kept
	if len(kept) == 0 {
		sess.emptySince = time.Now()
	}
}

func (r *Registry) getOrCreateLocked(sessionID string) *session {
	sess, ok := r.sessions[sessionID]
	if !ok {
		sess = &session{emptySince: time.Now()}
		r.sessions[sessionID] = sess
		r.logger.Debug().Str("sessionID", sessionID).Msg("session created")
	}
	return sess
}

func snapshot(sess *session) []model.Participant {
	out := make([]model.Participant, len(sess.participants))
	copy(out, sess.participants)
	return out
}

// Run sweeps sessions that stayed empty past the idle TTL. Sessions
// with participants are never touched.
func (r *Registry) Run(ctx context.Context, wg *sync.WaitGroup) {
	defer func() {
		r.logger.Debug().Msg("sweeper stopped")
		wg.Done()
	}()

	ticker := time.NewTicker(defaultSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep(time.Now())
		}
	}
}

func (r *Registry) sweep(now time.Time) {
	r.mx.Lock()
	defer r.mx.Unlock()
	for id, sess := range r.sessions {
		if len(sess.participants) == 0 && !sess.emptySince.IsZero() &&
			now.Sub(sess.emptySince) > r.idleTTL {
			delete(r.sessions, id)
			r.logger.Debug().Str("sessionID", id).Msg("idle session swept")
		}
	}
}
