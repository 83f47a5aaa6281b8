// Package audio handles PCM accumulation and WAV container encoding for call recordings.
// Recorded audio is fixed at 8 kHz, mono, 16-bit signed little-endian samples; the
// encoder wraps the raw bytes in a RIFF/WAVE container without touching them.
package audio
