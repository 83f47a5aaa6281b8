package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Fixed recording format for LMR voice traffic
const (
	SampleRate     = 8000
	NumChannels    = 1
	BitsPerSample  = 16
	BytesPerSample = BitsPerSample / 8

	// HeaderSize is the size of the canonical PCM WAV header
	HeaderSize = 44

	// MIMEType is the content type used when uploading encoded recordings
	MIMEType = "audio/x-wav"
)

// WAVHeader represents the header structure of a WAV file
type WAVHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // File size - 8 bytes
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16  // Number of channels
	SampleRate    uint32  // Sample rate
	ByteRate      uint32  // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16  // NumChannels * BitsPerSample / 8
	BitsPerSample uint16  // Bits per sample
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // Number of bytes in the data
}

// newHeader builds the header for dataSize bytes of recording-format PCM
func newHeader(dataSize uint32) WAVHeader {
	return WAVHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1, // PCM
		NumChannels:   NumChannels,
		SampleRate:    SampleRate,
		ByteRate:      SampleRate * NumChannels * BytesPerSample,
		BlockAlign:    NumChannels * BytesPerSample,
		BitsPerSample: BitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}
}

// EncodeWAV wraps raw PCM bytes in a WAV container.
//
// The data chunk size is the exact input length. Odd lengths are not padded
// or rejected, and an empty input produces a valid header-only file.
func EncodeWAV(pcm []byte) []byte {
	header := newHeader(uint32(len(pcm)))

	out := make([]byte, HeaderSize+len(pcm))
	copy(out[0:4], header.ChunkID[:])
	binary.LittleEndian.PutUint32(out[4:8], header.ChunkSize)
	copy(out[8:12], header.Format[:])
	copy(out[12:16], header.Subchunk1ID[:])
	binary.LittleEndian.PutUint32(out[16:20], header.Subchunk1Size)
	binary.LittleEndian.PutUint16(out[20:22], header.AudioFormat)
	binary.LittleEndian.PutUint16(out[22:24], header.NumChannels)
	binary.LittleEndian.PutUint32(out[24:28], header.SampleRate)
	binary.LittleEndian.PutUint32(out[28:32], header.ByteRate)
	binary.LittleEndian.PutUint16(out[32:34], header.BlockAlign)
	binary.LittleEndian.PutUint16(out[34:36], header.BitsPerSample)
	copy(out[36:40], header.Subchunk2ID[:])
	binary.LittleEndian.PutUint32(out[40:44], header.Subchunk2Size)
	copy(out[HeaderSize:], pcm)

	return out
}

// DecodeWAV reads a canonical PCM WAV file and returns the raw data chunk
// bytes together with the parsed header
func DecodeWAV(data []byte) ([]byte, *WAVHeader, error) {
	if len(data) < HeaderSize {
		return nil, nil, fmt.Errorf("WAV data too short: need at least %d bytes, got %d", HeaderSize, len(data))
	}

	var header WAVHeader
	if err := binary.Read(bytes.NewReader(data[:HeaderSize]), binary.LittleEndian, &header); err != nil {
		return nil, nil, fmt.Errorf("failed to read WAV header: %w", err)
	}

	if err := ValidateWAV(data); err != nil {
		return nil, nil, err
	}

	if header.AudioFormat != 1 {
		return nil, nil, fmt.Errorf("unsupported audio format: %d (only PCM is supported)", header.AudioFormat)
	}

	end := HeaderSize + int(header.Subchunk2Size)
	if end > len(data) {
		return nil, nil, fmt.Errorf("data chunk truncated: header declares %d bytes, have %d",
			header.Subchunk2Size, len(data)-HeaderSize)
	}

	pcm := make([]byte, header.Subchunk2Size)
	copy(pcm, data[HeaderSize:end])

	return pcm, &header, nil
}

// ValidateWAV validates a WAV file format without decoding the entire audio data
func ValidateWAV(data []byte) error {
	if len(data) < HeaderSize {
		return fmt.Errorf("WAV data too short: need at least %d bytes, got %d", HeaderSize, len(data))
	}

	if string(data[0:4]) != "RIFF" {
		return fmt.Errorf("invalid WAV file: missing RIFF header")
	}

	if string(data[8:12]) != "WAVE" {
		return fmt.Errorf("invalid WAV file: missing WAVE format")
	}

	if string(data[12:16]) != "fmt " {
		return fmt.Errorf("invalid WAV file: missing fmt chunk")
	}

	if string(data[36:40]) != "data" {
		return fmt.Errorf("invalid WAV file: missing data chunk")
	}

	return nil
}

// WAVInfo holds basic information about a WAV file
type WAVInfo struct {
	SampleRate    uint32  `json:"sample_rate"`
	Channels      uint16  `json:"channels"`
	BitsPerSample uint16  `json:"bits_per_sample"`
	Duration      float64 `json:"duration_seconds"`
	DataSize      uint32  `json:"data_size_bytes"`
	NumSamples    uint32  `json:"num_samples"`
}

// GetWAVInfo extracts metadata from a WAV file
func GetWAVInfo(data []byte) (*WAVInfo, error) {
	if err := ValidateWAV(data); err != nil {
		return nil, err
	}

	sampleRate := binary.LittleEndian.Uint32(data[24:28])
	if sampleRate == 0 {
		return nil, fmt.Errorf("invalid sample rate: 0")
	}

	channels := binary.LittleEndian.Uint16(data[22:24])
	bits := binary.LittleEndian.Uint16(data[34:36])
	if channels == 0 || bits < 8 {
		return nil, fmt.Errorf("invalid sample layout: channels=%d bits=%d", channels, bits)
	}
	dataSize := binary.LittleEndian.Uint32(data[40:44])

	numSamples := dataSize / (uint32(bits) / 8) / uint32(channels)

	return &WAVInfo{
		SampleRate:    sampleRate,
		Channels:      channels,
		BitsPerSample: bits,
		Duration:      float64(numSamples) / float64(sampleRate),
		DataSize:      dataSize,
		NumSamples:    numSamples,
	}, nil
}
