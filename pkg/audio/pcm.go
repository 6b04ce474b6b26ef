// Package audio decodes inbound voice payloads into 16-bit PCM and packs
// PCM into WAV containers for transcription services.
package audio

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"strings"
	"time"

	"github.com/harunnryd/clinirelay/pkg/errorsx"
)

// PCM is mono signed 16-bit little-endian audio.
type PCM struct {
	Samples    []int16
	SampleRate int
}

func (p PCM) Duration() time.Duration {
	if p.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(p.Samples)) * time.Second / time.Duration(p.SampleRate)
}

// Bytes returns the raw little-endian sample bytes.
func (p PCM) Bytes() []byte {
	out := make([]byte, len(p.Samples)*2)
	for i, s := range p.Samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// DecodeBase64 decodes base64 sample bytes, repairing missing padding.
// Failures carry the decode reason code.
func DecodeBase64(encoded string, sampleRate int) (PCM, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return PCM{}, errorsx.Wrap(errors.New("audio data is empty"), errorsx.ReasonDecode)
	}
	if sampleRate <= 0 {
		return PCM{}, errorsx.New(errorsx.ReasonDecode, "invalid sample rate %d", sampleRate)
	}
	if rem := len(encoded) % 4; rem != 0 {
		encoded += strings.Repeat("=", 4-rem)
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return PCM{}, errorsx.New(errorsx.ReasonDecode, "decode base64 audio: %w", err)
	}
	return FromBytes(raw, sampleRate)
}

// FromBytes interprets raw as little-endian int16 samples.
func FromBytes(raw []byte, sampleRate int) (PCM, error) {
	if len(raw)%2 != 0 {
		return PCM{}, errorsx.New(errorsx.ReasonDecode, "odd byte count %d for 16-bit samples", len(raw))
	}
	samples := make([]int16, len(raw)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
	}
	return PCM{Samples: samples, SampleRate: sampleRate}, nil
}
