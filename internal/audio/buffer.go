package audio

import "time"

// Buffer is an append-only store of raw PCM bytes for a single call.
// It performs no reordering, deduplication or gap filling: bytes are kept
// exactly in the order they were appended.
//
// A Buffer is not safe for concurrent use; the owner serializes access.
type Buffer struct {
	data   []byte
	frames int
}

// NewBuffer creates an empty buffer with room for roughly two seconds of audio
func NewBuffer() *Buffer {
	return &Buffer{
		data: make([]byte, 0, SampleRate*BytesPerSample*2),
	}
}

// Append copies payload onto the tail of the buffer
func (b *Buffer) Append(payload []byte) {
	b.data = append(b.data, payload...)
	b.frames++
}

// Bytes returns the buffered PCM. The slice aliases the buffer's storage.
func (b *Buffer) Bytes() []byte {
	return b.data
}

// Len returns the number of buffered bytes
func (b *Buffer) Len() int {
	return len(b.data)
}

// Frames returns how many payloads were appended
func (b *Buffer) Frames() int {
	return b.frames
}

// Duration returns the playback length of the buffered samples
func (b *Buffer) Duration() time.Duration {
	samples := len(b.data) / (BytesPerSample * NumChannels)
	return time.Duration(samples) * time.Second / SampleRate
}
