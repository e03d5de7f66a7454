package usecase

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xilidan/voicelog/pkg/gen"
	"github.com/xilidan/voicelog/services/voicelog/entity"
	"github.com/xilidan/voicelog/services/voicelog/storage"
)

type sentReply struct {
	token string
	text  string
}

type fakeMessenger struct {
	audio      string
	contentErr error
	profiles   map[string]string
	profileErr error
	replyErr   error
	replies    []sentReply
}

func (m *fakeMessenger) Content(_ context.Context, _ string) (io.ReadCloser, error) {
	if m.contentErr != nil {
		return nil, m.contentErr
	}
	return io.NopCloser(strings.NewReader(m.audio)), nil
}

func (m *fakeMessenger) Reply(_ context.Context, replyToken, text string) error {
	m.replies = append(m.replies, sentReply{token: replyToken, text: text})
	return m.replyErr
}

func (m *fakeMessenger) Profile(_ context.Context, lineUserID string) (string, error) {
	if m.profileErr != nil {
		return "", m.profileErr
	}
	return m.profiles[lineUserID], nil
}

type fakeTranscriber struct {
	text  string
	err   error
	audio []string
}

func (f *fakeTranscriber) Transcribe(_ context.Context, _ string, audio io.Reader) (string, error) {
	b, err := io.ReadAll(audio)
	if err != nil {
		return "", err
	}
	f.audio = append(f.audio, string(b))
	return f.text, f.err
}

type fakeGenerator struct {
	out     string
	err     error
	prompts []string
}

func (f *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.out, f.err
}

type fakeArchiver struct {
	err   error
	names []string
}

func (f *fakeArchiver) Archive(_ context.Context, filename, _ string) error {
	f.names = append(f.names, filename)
	return f.err
}

type fixture struct {
	uc          Usecase
	stg         storage.Storage
	dir         string
	messenger   *fakeMessenger
	transcriber *fakeTranscriber
	generator   *fakeGenerator
	archiver    *fakeArchiver
}

func newFixture(t *testing.T, mode Mode) *fixture {
	t.Helper()

	dsn := "file:" + filepath.Join(t.TempDir(), "test.db") + "?_fk=1"
	stg, err := storage.Open(context.Background(), "sqlite3", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = stg.Close() })

	f := &fixture{
		stg:         stg,
		dir:         t.TempDir(),
		messenger:   &fakeMessenger{audio: "AUDIO", profiles: map[string]string{"U1": "Alice"}},
		transcriber: &fakeTranscriber{text: "こんにちわ"},
		generator:   &fakeGenerator{out: "こんにちは"},
		archiver:    &fakeArchiver{},
	}
	f.uc = New(Options{
		Storage:       stg,
		Transcriber:   f.transcriber,
		Generator:     f.generator,
		Messenger:     f.messenger,
		Archiver:      f.archiver,
		RecordingsDir: f.dir,
		Mode:          mode,
	})

	return f
}

func (f *fixture) recordings(t *testing.T) []*entity.RecordingView {
	t.Helper()
	recs, err := f.stg.ListRecordings(context.Background(), entity.ListFilter{})
	require.NoError(t, err)
	return recs
}

func audioEvent(messageID string) *entity.AudioEvent {
	return &entity.AudioEvent{
		MessageID:  messageID,
		LineUserID: "U1",
		ReplyToken: "token-" + messageID,
		Timestamp:  time.UnixMilli(1712000000123).UTC(),
	}
}

func TestHandleAudio_FirstEventCreatesUserAndRecording(t *testing.T) {
	f := newFixture(t, ModeCorrect)
	ctx := context.Background()

	res, err := f.uc.HandleAudio(ctx, audioEvent("m1"))
	require.NoError(t, err)
	require.NotNil(t, res.Recording)
	assert.False(t, res.Skipped)
	assert.Equal(t, "こんにちは", res.ReplyText)

	user, err := f.stg.GetUserByLineID(ctx, "U1")
	require.NoError(t, err)
	assert.Equal(t, "Alice", user.DisplayName)

	recs := f.recordings(t)
	require.Len(t, recs, 1)
	assert.Equal(t, "m1.m4a", recs[0].Filename)
	assert.Equal(t, "こんにちは", recs[0].Transcription)
	assert.Equal(t, user.ID, recs[0].UserID)
	assert.True(t, recs[0].RecordedAt.Equal(time.UnixMilli(1712000000123)))

	data, err := os.ReadFile(filepath.Join(f.dir, "m1.m4a"))
	require.NoError(t, err)
	assert.Equal(t, "AUDIO", string(data))
	assert.Equal(t, []string{"AUDIO"}, f.transcriber.audio)

	require.Len(t, f.generator.prompts, 1)
	assert.Equal(t, "以下のテキストの誤字脱字を修正してください：'こんにちわ'", f.generator.prompts[0])

	assert.Equal(t, []sentReply{{token: "token-m1", text: "こんにちは"}}, f.messenger.replies)
	assert.Equal(t, []string{"m1.m4a"}, f.archiver.names)
}

func TestHandleAudio_RepeatSenderUpdatesDisplayName(t *testing.T) {
	f := newFixture(t, ModeCorrect)
	ctx := context.Background()

	_, err := f.uc.HandleAudio(ctx, audioEvent("m1"))
	require.NoError(t, err)

	f.messenger.profiles["U1"] = "Alice (renamed)"
	_, err = f.uc.HandleAudio(ctx, audioEvent("m2"))
	require.NoError(t, err)

	users, err := f.stg.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "Alice (renamed)", users[0].DisplayName)
	assert.Len(t, f.recordings(t), 2)
}

func TestHandleAudio_ProfileFailureKeepsStoredName(t *testing.T) {
	f := newFixture(t, ModeCorrect)
	ctx := context.Background()

	_, err := f.uc.HandleAudio(ctx, audioEvent("m1"))
	require.NoError(t, err)

	f.messenger.profileErr = errors.New("profile unavailable")
	_, err = f.uc.HandleAudio(ctx, audioEvent("m2"))
	require.NoError(t, err)

	user, err := f.stg.GetUserByLineID(ctx, "U1")
	require.NoError(t, err)
	assert.Equal(t, "Alice", user.DisplayName)
}

func TestHandleAudio_RedeliveryIsSkipped(t *testing.T) {
	f := newFixture(t, ModeCorrect)
	ctx := context.Background()

	_, err := f.uc.HandleAudio(ctx, audioEvent("m1"))
	require.NoError(t, err)

	res, err := f.uc.HandleAudio(ctx, audioEvent("m1"))
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Nil(t, res.Recording)

	assert.Len(t, f.recordings(t), 1)
	assert.Len(t, f.generator.prompts, 1)
	assert.Len(t, f.messenger.replies, 1)
}

func TestHandleAudio_RedeliveryRefreshesDisplayName(t *testing.T) {
	f := newFixture(t, ModeCorrect)
	ctx := context.Background()

	_, err := f.uc.HandleAudio(ctx, audioEvent("m1"))
	require.NoError(t, err)

	f.messenger.profiles["U1"] = "Alice (renamed)"
	res, err := f.uc.HandleAudio(ctx, audioEvent("m1"))
	require.NoError(t, err)
	assert.True(t, res.Skipped)

	user, err := f.stg.GetUserByLineID(ctx, "U1")
	require.NoError(t, err)
	assert.Equal(t, "Alice (renamed)", user.DisplayName)
	assert.Len(t, f.recordings(t), 1)
	assert.Len(t, f.messenger.replies, 1)
}

func TestHandleAudio_TranscriptionFailure(t *testing.T) {
	f := newFixture(t, ModeCorrect)
	f.transcriber.err = errors.New("status 500")

	_, err := f.uc.HandleAudio(context.Background(), audioEvent("m1"))
	require.ErrorIs(t, err, entity.ErrTranscriptionFailed)

	assert.Empty(t, f.recordings(t))
	assert.Empty(t, f.generator.prompts)
	assert.Equal(t, []sentReply{{token: "token-m1", text: entity.MessageTranscriptionFailed}}, f.messenger.replies)

	// the sender is committed before the external calls
	_, err = f.stg.GetUserByLineID(context.Background(), "U1")
	require.NoError(t, err)
}

func TestHandleAudio_EmptyTranscriptIsAFailure(t *testing.T) {
	f := newFixture(t, ModeCorrect)
	f.transcriber.text = "  "

	_, err := f.uc.HandleAudio(context.Background(), audioEvent("m1"))
	require.ErrorIs(t, err, entity.ErrTranscriptionFailed)
	assert.Empty(t, f.recordings(t))
}

func TestHandleAudio_GenerationFailure(t *testing.T) {
	f := newFixture(t, ModeCorrect)
	f.generator.err = errors.New("status 429")

	_, err := f.uc.HandleAudio(context.Background(), audioEvent("m1"))
	require.ErrorIs(t, err, entity.ErrGenerationFailed)

	assert.Empty(t, f.recordings(t))
	assert.Equal(t, []sentReply{{token: "token-m1", text: entity.MessageGenerationFailed}}, f.messenger.replies)
}

func TestHandleAudio_AudioFetchFailure(t *testing.T) {
	f := newFixture(t, ModeCorrect)
	f.messenger.contentErr = errors.New("connection reset")

	_, err := f.uc.HandleAudio(context.Background(), audioEvent("m1"))
	require.ErrorIs(t, err, entity.ErrAudioFetchFailed)

	assert.Empty(t, f.recordings(t))
	assert.Empty(t, f.transcriber.audio)
	assert.NoFileExists(t, filepath.Join(f.dir, "m1.m4a"))
	assert.Equal(t, []sentReply{{token: "token-m1", text: entity.MessageAudioFetchFailed}}, f.messenger.replies)
}

func TestHandleAudio_ArchiveFailureIsNotFatal(t *testing.T) {
	f := newFixture(t, ModeCorrect)
	f.archiver.err = errors.New("bucket missing")

	res, err := f.uc.HandleAudio(context.Background(), audioEvent("m1"))
	require.NoError(t, err)
	assert.NotNil(t, res.Recording)
}

func TestHandleAudio_ReplyFailureStillStores(t *testing.T) {
	f := newFixture(t, ModeCorrect)
	f.messenger.replyErr = errors.New("invalid reply token")

	res, err := f.uc.HandleAudio(context.Background(), audioEvent("m1"))
	require.Error(t, err)
	require.NotNil(t, res)
	assert.NotNil(t, res.Recording)
	assert.Len(t, f.recordings(t), 1)
}

func TestHandleAudio_RejectsIncompleteEvent(t *testing.T) {
	f := newFixture(t, ModeCorrect)

	_, err := f.uc.HandleAudio(context.Background(), &entity.AudioEvent{LineUserID: "U1"})
	require.ErrorIs(t, err, entity.ErrInvalidInput)
}

func TestHandleAudio_ReplyMode(t *testing.T) {
	f := newFixture(t, ModeReply)
	f.generator.out = "```json\n{\"user_text\": \"こんにちは\", \"reply\": \"お話しいただきありがとうございます。\"}\n```"

	res, err := f.uc.HandleAudio(context.Background(), audioEvent("m1"))
	require.NoError(t, err)
	assert.Equal(t, "お話しいただきありがとうございます。", res.ReplyText)
	assert.Equal(t, "こんにちは", res.Recording.Transcription)
	assert.Contains(t, f.generator.prompts[0], "user_text")
}

func TestHandleAudio_ReplyModeFallsBackToRawOutput(t *testing.T) {
	f := newFixture(t, ModeReply)
	f.generator.out = "大変でしたね。"

	res, err := f.uc.HandleAudio(context.Background(), audioEvent("m1"))
	require.NoError(t, err)
	assert.Equal(t, "大変でしたね。", res.ReplyText)
	assert.Equal(t, "こんにちわ", res.Recording.Transcription)
}

func TestUpload(t *testing.T) {
	f := newFixture(t, ModeCorrect)
	fixed := uuid.MustParse("11111111-2222-3333-4444-555555555555")
	uc := New(Options{
		Storage:       f.stg,
		Transcriber:   f.transcriber,
		Generator:     &fakeGenerator{out: `{"user_text": "こんにちは", "reply": "ようこそ"}`},
		Messenger:     f.messenger,
		RecordingsDir: f.dir,
		IDs:           gen.UUIDGenerator(func() uuid.UUID { return fixed }),
		Now:           func() time.Time { return time.Unix(1700000000, 0) },
	})

	reply, err := uc.Upload(context.Background(), &entity.UploadRequest{Filename: "memo.m4a"}, strings.NewReader("UPLOADED"))
	require.NoError(t, err)
	assert.Equal(t, &entity.Reply{UserText: "こんにちは", Reply: "ようこそ"}, reply)

	user, err := f.stg.GetUserByLineID(context.Background(), "web")
	require.NoError(t, err)
	assert.Equal(t, "Web Upload", user.DisplayName)

	recs := f.recordings(t)
	require.Len(t, recs, 1)
	assert.Equal(t, "1700000000000000000_11111111-2222-3333-4444-555555555555_memo.m4a", recs[0].Filename)
	assert.FileExists(t, filepath.Join(f.dir, recs[0].Filename))
	assert.Empty(t, f.messenger.replies)
}

func TestUpload_Failures(t *testing.T) {
	f := newFixture(t, ModeCorrect)
	f.transcriber.err = errors.New("status 400")

	_, err := f.uc.Upload(context.Background(), &entity.UploadRequest{Filename: "a.m4a", LineUserID: "U9"}, strings.NewReader("x"))
	require.ErrorIs(t, err, entity.ErrTranscriptionFailed)

	f.transcriber.err = nil
	f.generator.err = errors.New("status 500")
	_, err = f.uc.Upload(context.Background(), &entity.UploadRequest{Filename: "a.m4a", LineUserID: "U9"}, strings.NewReader("x"))
	require.ErrorIs(t, err, entity.ErrGenerationFailed)

	assert.Empty(t, f.recordings(t))
}
