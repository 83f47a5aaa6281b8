// Package dispatch routes master events into the session registry and hands
// finalized calls to the export pipeline.
package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/WhackerLink/WhackerLinkRdioScanner/internal/metrics"
	"github.com/WhackerLink/WhackerLinkRdioScanner/internal/peer"
	"github.com/WhackerLink/WhackerLinkRdioScanner/internal/protocol"
	"github.com/WhackerLink/WhackerLinkRdioScanner/internal/session"
)

// Submitter accepts finalized sessions for export. Submit is called from the
// peer read loop and must not block.
type Submitter interface {
	Submit(s *session.CallSession) error
}

// Sender writes a raw frame to the master
type Sender interface {
	Send(ctx context.Context, data []byte) error
}

// Config contains dispatcher configuration
type Config struct {
	RadioID    string
	Talkgroups []string
}

// Dispatcher binds peer events to the registry and exporter
type Dispatcher struct {
	config   Config
	registry *session.Registry
	exporter Submitter
	sender   Sender
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewDispatcher creates a dispatcher. m may be nil.
func NewDispatcher(config Config, registry *session.Registry, exporter Submitter, logger *slog.Logger, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		config:   config,
		registry: registry,
		exporter: exporter,
		logger:   logger,
		metrics:  m,
	}
}

// SetSender sets where affiliation requests are written
func (d *Dispatcher) SetSender(sender Sender) {
	d.sender = sender
}

// Handlers returns the peer callbacks that drive this dispatcher
func (d *Dispatcher) Handlers() peer.Handlers {
	return peer.Handlers{
		OnOpen:         d.HandleOpen,
		OnClose:        d.HandleClose,
		OnReconnecting: d.HandleReconnecting,
		OnAudio:        d.HandleAudio,
		OnRelease:      d.HandleRelease,
	}
}

// HandleAudio appends a voice frame to its call
func (d *Dispatcher) HandleAudio(packet *protocol.AudioPacket) {
	if d.metrics != nil {
		d.metrics.RecordFrame()
	}

	id := session.CallIdentity{
		SourceID:      packet.VoiceChannel.SrcID,
		DestinationID: packet.VoiceChannel.DstID,
	}
	d.registry.Append(id, packet.Data, packet.VoiceChannel.Frequency)
}

// HandleRelease finalizes the released call and queues it for export.
// A release for a call that is not active is logged and dropped.
func (d *Dispatcher) HandleRelease(release *protocol.ChannelRelease) {
	id := session.CallIdentity{SourceID: release.SrcID, DestinationID: release.DstID}

	s, ok := d.registry.Finalize(id)
	if d.metrics != nil {
		d.metrics.RecordRelease(ok)
	}

	if !ok {
		d.logger.Warn("Received call end for unknown call",
			slog.String("src_id", release.SrcID),
			slog.String("dst_id", release.DstID),
			slog.String("channel", release.Channel),
		)
		return
	}

	d.submit(s)
}

// Shutdown finalizes every active call and queues it for export
func (d *Dispatcher) Shutdown() int {
	sessions := d.registry.Drain()
	for _, s := range sessions {
		d.logger.Info("Exporting partial call at shutdown",
			slog.String("src_id", s.Identity.SourceID),
			slog.String("dst_id", s.Identity.DestinationID),
			slog.Int("frames", s.Frames()),
		)
		d.submit(s)
	}
	return len(sessions)
}

func (d *Dispatcher) submit(s *session.CallSession) {
	if err := d.exporter.Submit(s); err != nil {
		d.logger.Error("Dropping recording",
			slog.String("src_id", s.Identity.SourceID),
			slog.String("dst_id", s.Identity.DestinationID),
			slog.Duration("audio_duration", s.Duration()),
			slog.String("error", err.Error()),
		)
	}
}

// HandleOpen affiliates the configured radio with every talkgroup
func (d *Dispatcher) HandleOpen() {
	d.logger.Info("Master connection opened",
		slog.Int("talkgroups", len(d.config.Talkgroups)),
		slog.Int("active_sessions", d.registry.Len()),
	)

	if d.sender == nil {
		return
	}

	for _, tg := range d.config.Talkgroups {
		frame, err := protocol.EncodeAffiliation(protocol.AffiliationRequest{
			SrcID: d.config.RadioID,
			DstID: tg,
		})
		if err != nil {
			d.logger.Error("Failed to encode affiliation", slog.String("talkgroup", tg), slog.String("error", err.Error()))
			continue
		}

		if err := d.sender.Send(context.Background(), frame); err != nil {
			d.logger.Error("Failed to affiliate",
				slog.String("talkgroup", tg),
				slog.String("error", err.Error()),
			)
			continue
		}

		d.logger.Debug("Affiliated", slog.String("radio_id", d.config.RadioID), slog.String("talkgroup", tg))
	}
}

// HandleClose logs the connection loss. Active sessions are left in place.
func (d *Dispatcher) HandleClose(err error) {
	attrs := []any{slog.Int("active_sessions", d.registry.Len())}
	if err != nil {
		attrs = append(attrs, slog.String("reason", err.Error()))
	}
	d.logger.Warn("Master connection closed", attrs...)
}

// HandleReconnecting logs a pending reconnect attempt
func (d *Dispatcher) HandleReconnecting(attempt int, delay time.Duration) {
	d.logger.Debug("Reconnecting to master",
		slog.Int("attempt", attempt),
		slog.Duration("delay", delay),
	)
}
