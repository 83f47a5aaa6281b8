package audio

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"
)

func TestEncodeWAV(t *testing.T) {
	// Generate test audio (440Hz sine wave for 0.1 seconds at 8kHz)
	duration := 0.1
	frequency := 440.0

	numSamples := int(float64(SampleRate) * duration)
	pcm := make([]byte, numSamples*2)

	for i := 0; i < numSamples; i++ {
		t := float64(i) / float64(SampleRate)
		sample := int16(16383.0 * math.Sin(2*math.Pi*frequency*t))
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(sample))
	}

	wavData := EncodeWAV(pcm)

	expectedSize := HeaderSize + len(pcm)
	if len(wavData) != expectedSize {
		t.Errorf("Expected WAV size %d, got %d", expectedSize, len(wavData))
	}

	if err := ValidateWAV(wavData); err != nil {
		t.Errorf("Generated WAV is invalid: %v", err)
	}

	info, err := GetWAVInfo(wavData)
	if err != nil {
		t.Fatalf("Failed to get WAV info: %v", err)
	}

	if info.SampleRate != SampleRate {
		t.Errorf("Expected sample rate %d, got %d", SampleRate, info.SampleRate)
	}

	if info.Channels != 1 {
		t.Errorf("Expected 1 channel, got %d", info.Channels)
	}

	if info.BitsPerSample != 16 {
		t.Errorf("Expected 16 bits per sample, got %d", info.BitsPerSample)
	}

	expectedDuration := float64(numSamples) / float64(SampleRate)
	if math.Abs(info.Duration-expectedDuration) > 0.001 {
		t.Errorf("Expected duration %.3f, got %.3f", expectedDuration, info.Duration)
	}
}

func TestEncodeWAVHeaderFields(t *testing.T) {
	pcm := []byte{0x00, 0x01, 0x02, 0x03}
	wavData := EncodeWAV(pcm)

	tests := []struct {
		name     string
		offset   int
		size     int
		expected uint32
	}{
		{"riff size", 4, 4, 40},
		{"fmt chunk size", 16, 4, 16},
		{"audio format", 20, 2, 1},
		{"channels", 22, 2, 1},
		{"sample rate", 24, 4, 8000},
		{"byte rate", 28, 4, 16000},
		{"block align", 32, 2, 2},
		{"bits per sample", 34, 2, 16},
		{"data size", 40, 4, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got uint32
			if tt.size == 2 {
				got = uint32(binary.LittleEndian.Uint16(wavData[tt.offset:]))
			} else {
				got = binary.LittleEndian.Uint32(wavData[tt.offset:])
			}
			if got != tt.expected {
				t.Errorf("Expected %s %d, got %d", tt.name, tt.expected, got)
			}
		})
	}

	if string(wavData[0:4]) != "RIFF" || string(wavData[8:12]) != "WAVE" {
		t.Errorf("Unexpected group header %q", wavData[0:12])
	}

	if !bytes.Equal(wavData[HeaderSize:], pcm) {
		t.Errorf("Expected data %v, got %v", pcm, wavData[HeaderSize:])
	}
}

func TestEncodeWAVSizes(t *testing.T) {
	for _, n := range []int{0, 1, 2, 3, 160, 321, 8000} {
		pcm := make([]byte, n)
		for i := range pcm {
			pcm[i] = byte(i * 7)
		}

		wavData := EncodeWAV(pcm)

		if len(wavData) != HeaderSize+n {
			t.Errorf("n=%d: expected length %d, got %d", n, HeaderSize+n, len(wavData))
		}
		if got := binary.LittleEndian.Uint32(wavData[4:8]); got != uint32(n+36) {
			t.Errorf("n=%d: expected RIFF size %d, got %d", n, n+36, got)
		}
		if got := binary.LittleEndian.Uint32(wavData[40:44]); got != uint32(n) {
			t.Errorf("n=%d: expected data size %d, got %d", n, n, got)
		}
	}
}

func TestDecodeWAVRoundTrip(t *testing.T) {
	for _, n := range []int{0, 1, 5, 320} {
		original := make([]byte, n)
		for i := range original {
			original[i] = byte(255 - i%256)
		}

		decoded, header, err := DecodeWAV(EncodeWAV(original))
		if err != nil {
			t.Fatalf("n=%d: DecodeWAV failed: %v", n, err)
		}

		if header.SampleRate != SampleRate {
			t.Errorf("n=%d: expected sample rate %d, got %d", n, SampleRate, header.SampleRate)
		}

		if !bytes.Equal(decoded, original) {
			t.Errorf("n=%d: round trip mismatch", n)
		}
	}
}

func TestDecodeWAVTruncated(t *testing.T) {
	wavData := EncodeWAV(make([]byte, 100))

	if _, _, err := DecodeWAV(wavData[:HeaderSize+10]); err == nil {
		t.Error("Expected error for truncated data chunk")
	}
}

func TestValidateWAV(t *testing.T) {
	if err := ValidateWAV([]byte{1, 2, 3}); err == nil {
		t.Error("Expected error for too short WAV data")
	}

	invalidWAV := make([]byte, 50)
	copy(invalidWAV[0:4], []byte("FAKE"))
	if err := ValidateWAV(invalidWAV); err == nil {
		t.Error("Expected error for invalid RIFF header")
	}
}

func TestGetWAVInfoDuration(t *testing.T) {
	// 1 second of audio at 8kHz
	info, err := GetWAVInfo(EncodeWAV(make([]byte, SampleRate*BytesPerSample)))
	if err != nil {
		t.Fatalf("GetWAVInfo failed: %v", err)
	}

	if math.Abs(info.Duration-1.0) > 0.001 {
		t.Errorf("Expected duration 1.000, got %.3f", info.Duration)
	}
}
