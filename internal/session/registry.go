package session

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/WhackerLink/WhackerLinkRdioScanner/internal/audio"
)

// CallIdentity uniquely identifies one logical call
type CallIdentity struct {
	SourceID      string
	DestinationID string
}

// String returns the identity as "src-dst"
func (id CallIdentity) String() string {
	return id.SourceID + "-" + id.DestinationID
}

// CallSession is the audio accumulated for one call in progress.
// While registered it is only mutated under the registry lock; after Finalize
// the caller owns it exclusively.
type CallSession struct {
	Identity     CallIdentity
	ChannelLabel string
	StartTime    time.Time
	LastActivity time.Time

	buffer *audio.Buffer
}

// PCM returns the buffered samples in arrival order
func (s *CallSession) PCM() []byte {
	return s.buffer.Bytes()
}

// Frames returns the number of voice frames appended to the session
func (s *CallSession) Frames() int {
	return s.buffer.Frames()
}

// Duration returns the playback length of the buffered audio
func (s *CallSession) Duration() time.Duration {
	return s.buffer.Duration()
}

// SessionInfo is a read-only view of an active session for monitoring
type SessionInfo struct {
	SourceID      string        `json:"source_id"`
	DestinationID string        `json:"destination_id"`
	ChannelLabel  string        `json:"channel_label"`
	StartTime     time.Time     `json:"start_time"`
	LastActivity  time.Time     `json:"last_activity"`
	Frames        int           `json:"frames"`
	Bytes         int           `json:"bytes"`
	AudioDuration time.Duration `json:"audio_duration"`
}

// Observer receives registry lifecycle notifications, used for metrics
type Observer interface {
	SessionCreated()
	SessionFinalized(lifetime time.Duration)
}

// Registry owns all in-progress call sessions
type Registry struct {
	sessions map[CallIdentity]*CallSession
	mu       sync.Mutex
	logger   *slog.Logger
	observer Observer

	now func() time.Time
}

// NewRegistry creates an empty registry. observer may be nil.
func NewRegistry(logger *slog.Logger, observer Observer) *Registry {
	return &Registry{
		sessions: make(map[CallIdentity]*CallSession),
		logger:   logger,
		observer: observer,
		now:      time.Now,
	}
}

// Append adds payload to the session for id, creating the session if none is active.
// An append that arrives after the session was finalized starts a new session.
func (r *Registry) Append(id CallIdentity, payload []byte, channelLabel string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()

	session, exists := r.sessions[id]
	if !exists {
		session = &CallSession{
			Identity:  id,
			StartTime: now,
			buffer:    audio.NewBuffer(),
		}
		r.sessions[id] = session

		r.logger.Info("Call started",
			slog.String("src_id", id.SourceID),
			slog.String("dst_id", id.DestinationID),
			slog.String("channel", channelLabel),
		)

		if r.observer != nil {
			r.observer.SessionCreated()
		}
	}

	session.buffer.Append(payload)
	session.ChannelLabel = channelLabel
	session.LastActivity = now
}

// Finalize removes and returns the session for id. The second return value is
// false when no session is active, so duplicate releases find nothing.
func (r *Registry) Finalize(id CallIdentity) (*CallSession, bool) {
	r.mu.Lock()
	session, exists := r.sessions[id]
	if exists {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	if !exists {
		return nil, false
	}

	if r.observer != nil {
		r.observer.SessionFinalized(r.now().Sub(session.StartTime))
	}

	return session, true
}

// Drain removes and returns every active session, oldest first
func (r *Registry) Drain() []*CallSession {
	r.mu.Lock()
	drained := make([]*CallSession, 0, len(r.sessions))
	for id, session := range r.sessions {
		drained = append(drained, session)
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	sort.Slice(drained, func(i, j int) bool {
		return drained[i].StartTime.Before(drained[j].StartTime)
	})

	if r.observer != nil {
		now := r.now()
		for _, session := range drained {
			r.observer.SessionFinalized(now.Sub(session.StartTime))
		}
	}

	return drained
}

// Len returns the number of active sessions
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Snapshot returns information about all active sessions, oldest first
func (r *Registry) Snapshot() []SessionInfo {
	r.mu.Lock()
	infos := make([]SessionInfo, 0, len(r.sessions))
	for _, session := range r.sessions {
		infos = append(infos, SessionInfo{
			SourceID:      session.Identity.SourceID,
			DestinationID: session.Identity.DestinationID,
			ChannelLabel:  session.ChannelLabel,
			StartTime:     session.StartTime,
			LastActivity:  session.LastActivity,
			Frames:        session.buffer.Frames(),
			Bytes:         session.buffer.Len(),
			AudioDuration: session.buffer.Duration(),
		})
	}
	r.mu.Unlock()

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].StartTime.Before(infos[j].StartTime)
	})

	return infos
}
