package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Message types exchanged with the master
const (
	TypeAudioData               = "AUDIO_DATA"
	TypeVoiceChannelRelease     = "GRP_VCH_RLS"
	TypeGroupAffiliationRequest = "GRP_AFF_REQ"
	TypeAuth                    = "AUTH"
)

// ErrUnknownType is returned by ParseMessage for envelope types the bridge does not consume
var ErrUnknownType = errors.New("unknown message type")

// Envelope is the outer frame of every message
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// VoiceChannel identifies the call an audio packet belongs to
type VoiceChannel struct {
	SrcID     string `json:"srcId"`
	DstID     string `json:"dstId"`
	Frequency string `json:"frequency"`
}

// AudioPacket carries one chunk of 8 kHz 16-bit LE PCM. Data is base64 on the wire.
type AudioPacket struct {
	Data         []byte       `json:"data"`
	VoiceChannel VoiceChannel `json:"voiceChannel"`
}

// ChannelRelease (GRP_VCH_RLS) signals that a call's voice channel was torn down
type ChannelRelease struct {
	SrcID   string `json:"srcId"`
	DstID   string `json:"dstId"`
	Channel string `json:"channel"`
}

// AffiliationRequest (GRP_AFF_REQ) affiliates SrcID with talkgroup DstID
type AffiliationRequest struct {
	SrcID string `json:"srcId"`
	DstID string `json:"dstId"`
}

// AuthRequest is sent right after the connection opens when an auth key is configured
type AuthRequest struct {
	AuthKey string `json:"authKey"`
}

// Message is a parsed inbound message; exactly one payload is set
type Message struct {
	Type    string
	Audio   *AudioPacket    // Only set for AUDIO_DATA
	Release *ChannelRelease // Only set for GRP_VCH_RLS
}

// ParseMessage parses a single inbound frame
func ParseMessage(data []byte) (*Message, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty message")
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to parse envelope: %w", err)
	}

	if env.Type == "" {
		return nil, fmt.Errorf("envelope missing type")
	}

	msg := &Message{Type: env.Type}

	switch env.Type {
	case TypeAudioData:
		var audio AudioPacket
		if err := decodePayload(env.Data, &audio); err != nil {
			return nil, fmt.Errorf("failed to parse %s payload: %w", env.Type, err)
		}
		if err := ValidateAudioPacket(&audio); err != nil {
			return nil, fmt.Errorf("invalid %s payload: %w", env.Type, err)
		}
		msg.Audio = &audio

	case TypeVoiceChannelRelease:
		var release ChannelRelease
		if err := decodePayload(env.Data, &release); err != nil {
			return nil, fmt.Errorf("failed to parse %s payload: %w", env.Type, err)
		}
		if err := ValidateChannelRelease(&release); err != nil {
			return nil, fmt.Errorf("invalid %s payload: %w", env.Type, err)
		}
		msg.Release = &release

	default:
		return msg, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}

	return msg, nil
}

func decodePayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return fmt.Errorf("missing data")
	}
	return json.Unmarshal(raw, v)
}

// ValidateAudioPacket checks that the packet names a call
func ValidateAudioPacket(p *AudioPacket) error {
	if p.VoiceChannel.SrcID == "" {
		return fmt.Errorf("voiceChannel.srcId cannot be empty")
	}
	if p.VoiceChannel.DstID == "" {
		return fmt.Errorf("voiceChannel.dstId cannot be empty")
	}
	return nil
}

// ValidateChannelRelease checks that the release names a call
func ValidateChannelRelease(r *ChannelRelease) error {
	if r.SrcID == "" {
		return fmt.Errorf("srcId cannot be empty")
	}
	if r.DstID == "" {
		return fmt.Errorf("dstId cannot be empty")
	}
	return nil
}

// Encode wraps payload in an envelope of the given type
func Encode(msgType string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", msgType, err)
	}

	out, err := json.Marshal(Envelope{Type: msgType, Data: data})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s envelope: %w", msgType, err)
	}
	return out, nil
}

// EncodeAffiliation encodes a GRP_AFF_REQ
func EncodeAffiliation(req AffiliationRequest) ([]byte, error) {
	return Encode(TypeGroupAffiliationRequest, req)
}

// EncodeAuth encodes an AUTH request
func EncodeAuth(req AuthRequest) ([]byte, error) {
	return Encode(TypeAuth, req)
}

// String returns a human-readable representation of the audio packet
func (a *AudioPacket) String() string {
	return fmt.Sprintf("AudioPacket{SrcID:%q, DstID:%q, Frequency:%q, DataLen:%d}",
		a.VoiceChannel.SrcID, a.VoiceChannel.DstID, a.VoiceChannel.Frequency, len(a.Data))
}

// String returns a human-readable representation of the release
func (r *ChannelRelease) String() string {
	return fmt.Sprintf("ChannelRelease{SrcID:%q, DstID:%q, Channel:%q}", r.SrcID, r.DstID, r.Channel)
}
