package transcode

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"call-evaluator-go/internal/types"
)

// FFmpeg converts recordings to mono 64 kbit/s mp3.
type FFmpeg struct {
	cmd string
}

func NewFFmpeg(cmd string) FFmpeg {
	if cmd == "" {
		cmd = "ffmpeg"
	}
	return FFmpeg{cmd: cmd}
}

// Normalize writes an mp3 rendition of input to output and returns its format.
func (ff FFmpeg) Normalize(ctx context.Context, input, output string) (string, error) {
	cmdPath, err := exec.LookPath(ff.cmd)
	if err != nil {
		return "", fmt.Errorf("%w: %w", types.ErrTranscode, err)
	}
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, cmdPath, ff.args(input, output)...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > 300 {
			msg = msg[len(msg)-300:]
		}
		return "", fmt.Errorf("%w: %w: %s", types.ErrTranscode, err, msg)
	}
	return "mp3", nil
}

func (FFmpeg) args(input, output string) []string {
	return []string{
		"-y",
		"-i", input,
		"-ac", "1",
		"-b:a", "64k",
		output,
	}
}

// FormatHint maps a file name to the audio format sent when the file is
// passed through without conversion.
func FormatHint(name string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	switch ext {
	case "ogg", "oga":
		return "ogg"
	case "mp3", "wav", "flac":
		return ext
	default:
		return "mp3"
	}
}
