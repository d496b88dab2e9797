package builtin

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aura-studio/aura/internal/models"
	"github.com/aura-studio/aura/internal/providers"
)

const (
	wavSampleRate = 22050
	wavChannels   = 1
	wavBitDepth   = 16
)

// NullTTS produces silent narration. It backs the degraded-narration path
// and lets fully offline jobs complete without a speech engine.
type NullTTS struct{}

// NewNullTTS returns the silent narration provider.
func NewNullTTS() *NullTTS { return &NullTTS{} }

// Manifest implements providers.Provider.
func (p *NullTTS) Manifest() providers.Manifest {
	return providers.Manifest{
		Name:                 "Null",
		Tier:                 providers.TierFree,
		OnlineRequired:       false,
		SupportsCancellation: true,
	}
}

// Synthesize implements providers.TTSProvider. It writes a PCM WAV of
// silence spanning the full narration window.
func (p *NullTTS) Synthesize(ctx context.Context, lines []models.ScriptLine, _ models.VoiceSpec, outDir string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var total time.Duration
	for _, line := range lines {
		if end := line.Start + line.Duration; end > total {
			total = end
		}
	}
	if total <= 0 {
		total = time.Second
	}

	path := filepath.Join(outDir, "narration.wav")
	if err := WriteSilentWAV(path, total); err != nil {
		return "", fmt.Errorf("writing silent narration: %w", err)
	}
	return path, nil
}

// WriteSilentWAV writes a canonical 44-byte RIFF/WAVE header followed by
// zeroed 16-bit mono PCM samples covering d.
func WriteSilentWAV(path string, d time.Duration) error {
	samples := int(d.Seconds() * wavSampleRate)
	if samples < 1 {
		samples = 1
	}
	dataLen := samples * wavChannels * wavBitDepth / 8

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	header := make([]byte, 44)
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], uint32(36+dataLen))
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(header[22:24], wavChannels)
	binary.LittleEndian.PutUint32(header[24:28], wavSampleRate)
	binary.LittleEndian.PutUint32(header[28:32], wavSampleRate*wavChannels*wavBitDepth/8)
	binary.LittleEndian.PutUint16(header[32:34], wavChannels*wavBitDepth/8)
	binary.LittleEndian.PutUint16(header[34:36], wavBitDepth)
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], uint32(dataLen))

	if _, err := f.Write(header); err != nil {
		return err
	}

	zeros := make([]byte, 32*1024)
	for remaining := dataLen; remaining > 0; {
		n := len(zeros)
		if remaining < n {
			n = remaining
		}
		if _, err := f.Write(zeros[:n]); err != nil {
			return err
		}
		remaining -= n
	}
	return f.Sync()
}
