package outputs

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-studio/aura/internal/models"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestValidateScript(t *testing.T) {
	assert.NoError(t, ValidateScript("# Title\n\n## Scene 1: Intro\nHello.\n"))

	err := ValidateScript("   ")
	require.Error(t, err)
	assert.Equal(t, models.CodeEmptyOutput, models.CodeOf(err))

	err = ValidateScript("no scene headings here")
	require.Error(t, err)
	assert.Equal(t, models.CodeInvalidOutput, models.CodeOf(err))

	err = ValidateScript("## Scene 1\ntext with \x00 control byte")
	assert.Error(t, err)
}

func TestValidateAudioWAV(t *testing.T) {
	data := append([]byte("RIFF\x00\x00\x00\x00WAVE"), bytes.Repeat([]byte{0}, 256)...)
	path := writeFile(t, "ok.wav", data)
	assert.NoError(t, ValidateAudio(path))
}

func TestValidateAudioMP3(t *testing.T) {
	data := append([]byte("ID3"), bytes.Repeat([]byte{0}, 256)...)
	assert.NoError(t, ValidateAudio(writeFile(t, "ok.mp3", data)))

	frame := append([]byte{0xff, 0xfb}, bytes.Repeat([]byte{0}, 256)...)
	assert.NoError(t, ValidateAudio(writeFile(t, "raw.mp3", frame)))
}

func TestValidateAudioRejectsGarbage(t *testing.T) {
	tiny := writeFile(t, "tiny.wav", []byte("RIFF"))
	assert.Error(t, ValidateAudio(tiny))

	garbage := writeFile(t, "bad.wav", bytes.Repeat([]byte("x"), 512))
	err := ValidateAudio(garbage)
	require.Error(t, err)
	assert.Equal(t, models.CodeInvalidOutput, models.CodeOf(err))

	assert.Error(t, ValidateAudio(filepath.Join(t.TempDir(), "missing.wav")))
}

func TestValidateImageSignatures(t *testing.T) {
	pad := bytes.Repeat([]byte{0}, 128)

	png := append([]byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}, pad...)
	assert.NoError(t, ValidateImage(writeFile(t, "ok.png", png)))

	jpeg := append([]byte{0xff, 0xd8, 0xff, 0xe0}, pad...)
	assert.NoError(t, ValidateImage(writeFile(t, "ok.jpg", jpeg)))

	webp := append([]byte("RIFF\x00\x00\x00\x00WEBP"), pad...)
	assert.NoError(t, ValidateImage(writeFile(t, "ok.webp", webp)))

	assert.Error(t, ValidateImage(writeFile(t, "bad.png", bytes.Repeat([]byte("x"), 128))))
}

func TestValidateVideoMP4(t *testing.T) {
	header := []byte{0, 0, 0, 0x20, 'f', 't', 'y', 'p', 'i', 's', 'o', 'm'}
	data := append(header, bytes.Repeat([]byte{0}, 4096)...)
	path := writeFile(t, "ok.mp4", data)

	assert.NoError(t, ValidateVideo(path, models.ContainerMP4, time.Second, 100))

	// Same file is far too small for a long high-bitrate render.
	err := ValidateVideo(path, models.ContainerMP4, 2*time.Minute, 4000)
	require.Error(t, err)
	assert.Equal(t, models.CodeInvalidOutput, models.CodeOf(err))
}

func TestValidateVideoMatroska(t *testing.T) {
	data := append([]byte{0x1a, 0x45, 0xdf, 0xa3}, bytes.Repeat([]byte{0}, 4096)...)
	path := writeFile(t, "ok.mkv", data)
	assert.NoError(t, ValidateVideo(path, models.ContainerMKV, time.Second, 100))
	assert.NoError(t, ValidateVideo(path, models.ContainerWebM, time.Second, 100))

	mp4 := writeFile(t, "wrong.webm", bytes.Repeat([]byte{0}, 4096))
	assert.Error(t, ValidateVideo(mp4, models.ContainerWebM, time.Second, 100))
}

func TestInvalidOutputsAreRetryable(t *testing.T) {
	err := ValidateScript("no markers")
	assert.True(t, models.CodeOf(err).Retryable())
}
