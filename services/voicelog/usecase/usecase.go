package usecase

import (
	"context"
	"io"
	"time"

	"github.com/xilidan/voicelog/pkg/gen"
	"github.com/xilidan/voicelog/services/voicelog/entity"
	"github.com/xilidan/voicelog/services/voicelog/storage"
)

// Mode selects what the generation step does with a transcript.
type Mode string

const (
	// ModeCorrect asks for a typo-corrected transcript and replies with it.
	ModeCorrect Mode = "correct"
	// ModeReply asks for the corrected transcript plus a reply to the sender.
	ModeReply Mode = "reply"
)

const (
	defaultUploadUserID      = "web"
	defaultUploadDisplayName = "Web Upload"
	audioExt                 = ".m4a"
)

type Transcriber interface {
	Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error)
}

type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Messenger is the messaging platform the audio events come from.
type Messenger interface {
	Content(ctx context.Context, messageID string) (io.ReadCloser, error)
	Reply(ctx context.Context, replyToken, text string) error
	Profile(ctx context.Context, lineUserID string) (string, error)
}

// Archiver mirrors stored audio somewhere outside the recordings directory.
type Archiver interface {
	Archive(ctx context.Context, filename, path string) error
}

type Usecase interface {
	HandleAudio(ctx context.Context, event *entity.AudioEvent) (*entity.AudioEventResult, error)
	Upload(ctx context.Context, req *entity.UploadRequest, audio io.Reader) (*entity.Reply, error)

	ListRecordings(ctx context.Context, filter entity.ListFilter) ([]*entity.RecordingView, error)
	ListUsers(ctx context.Context) ([]*entity.User, error)
	FacingSheet(ctx context.Context, recordingID int) (*entity.FacingSheet, error)
	SupportLog(ctx context.Context, recordingID int, req *entity.SupportLogRequest) (*entity.SupportLog, error)
	SupportLogBatch(ctx context.Context, recordingIDs []int, req *entity.SupportLogRequest) (*entity.SupportLog, error)
}

type Options struct {
	Storage     storage.Storage
	Transcriber Transcriber
	Generator   Generator
	Messenger   Messenger
	// Archiver is optional.
	Archiver      Archiver
	RecordingsDir string
	Mode          Mode
	IDs           gen.UUIDGenerator
	Now           func() time.Time
}

type usecase struct {
	storage       storage.Storage
	transcriber   Transcriber
	generator     Generator
	messenger     Messenger
	archiver      Archiver
	recordingsDir string
	mode          Mode
	ids           gen.UUIDGenerator
	now           func() time.Time
}

func New(opts Options) Usecase {
	u := &usecase{
		storage:       opts.Storage,
		transcriber:   opts.Transcriber,
		generator:     opts.Generator,
		messenger:     opts.Messenger,
		archiver:      opts.Archiver,
		recordingsDir: opts.RecordingsDir,
		mode:          opts.Mode,
		ids:           opts.IDs,
		now:           opts.Now,
	}
	if u.mode == "" {
		u.mode = ModeCorrect
	}
	if u.ids == nil {
		u.ids = gen.UUID()
	}
	if u.now == nil {
		u.now = time.Now
	}

	return u
}
