package usecase

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/xilidan/voicelog/pkg/logger"
)

// saveAudio writes audio to the recordings directory. A partially written file
// is removed.
func (u *usecase) saveAudio(filename string, audio io.Reader) (string, error) {
	path := filepath.Join(u.recordingsDir, filename)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", filename, err)
	}

	if _, err := io.Copy(f, audio); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("failed to write %s: %w", filename, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to close %s: %w", filename, err)
	}

	return path, nil
}

func (u *usecase) transcribeFile(ctx context.Context, filename, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", filename, err)
	}
	defer f.Close()

	return u.transcriber.Transcribe(ctx, filename, f)
}

func (u *usecase) archive(ctx context.Context, filename, path string) {
	if u.archiver == nil {
		return
	}
	if err := u.archiver.Archive(ctx, filename, path); err != nil {
		logger.FromContext(ctx).Warn("failed to archive audio", "filename", filename, "error", err)
	}
}
