package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"jobassist/internal/database"
	"jobassist/internal/documents"
	"jobassist/internal/errcode"
	"jobassist/internal/generator"
	"jobassist/internal/tasks"
)

type fakeDocs struct {
	letter *database.CoverLetter
	err    error
}

func (f *fakeDocs) GenerateCoverLetter(_ context.Context, _, _ uint) (*database.CoverLetter, error) {
	return f.letter, f.err
}

func newSubscriber(t *testing.T, userID uint) (*redis.Client, *redis.PubSub) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	sub := client.Subscribe(context.Background(), NotifyChannel(userID))
	if _, err := sub.Receive(context.Background()); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	t.Cleanup(func() { _ = sub.Close() })
	return client, sub
}

func receive(t *testing.T, sub *redis.PubSub) (CoverLetterNotifyMessage, bool) {
	t.Helper()
	select {
	case msg := <-sub.Channel():
		var out CoverLetterNotifyMessage
		if err := json.Unmarshal([]byte(msg.Payload), &out); err != nil {
			t.Fatalf("decode notify: %v", err)
		}
		return out, true
	case <-time.After(300 * time.Millisecond):
		return CoverLetterNotifyMessage{}, false
	}
}

func newTask(t *testing.T) *asynq.Task {
	t.Helper()
	task, err := tasks.NewCoverLetterGenerateTask(7, 3, "corr-1", 2)
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	return task
}

func TestCoverLetterTaskPublishesCompletion(t *testing.T) {
	client, sub := newSubscriber(t, 7)
	docs := &fakeDocs{letter: &database.CoverLetter{ID: 11, FileName: "acme_cover_letter.tex"}}
	h := NewCoverLetterTaskHandler(docs, client, nil)

	if err := h.ProcessTask(context.Background(), newTask(t)); err != nil {
		t.Fatalf("process: %v", err)
	}

	msg, ok := receive(t, sub)
	if !ok {
		t.Fatalf("no notification received")
	}
	if msg.Status != "completed" || msg.CoverLetterID != 11 || msg.JobID != 3 || msg.CorrelationID != "corr-1" {
		t.Fatalf("notify = %+v", msg)
	}
}

func TestCoverLetterTaskSkipsRetryWithoutAPIKey(t *testing.T) {
	client, sub := newSubscriber(t, 7)
	h := NewCoverLetterTaskHandler(&fakeDocs{err: documents.ErrNoAPIKey}, client, nil)

	err := h.ProcessTask(context.Background(), newTask(t))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}

	msg, ok := receive(t, sub)
	if !ok {
		t.Fatalf("no notification received")
	}
	if msg.Status != "error" || msg.ErrorCode != errcode.NoAPIKey {
		t.Fatalf("notify = %+v", msg)
	}
}

func TestCoverLetterTaskRetriesScriptFailureQuietly(t *testing.T) {
	client, sub := newSubscriber(t, 7)
	scriptErr := &generator.ScriptError{Script: generator.ScriptCoverLetter, ExitCode: 1, Stderr: "rate limited"}
	h := NewCoverLetterTaskHandler(&fakeDocs{err: scriptErr}, client, nil)

	err := h.ProcessTask(context.Background(), newTask(t))
	if err == nil || errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected retryable error, got %v", err)
	}
	if _, ok := receive(t, sub); ok {
		t.Fatalf("non-final attempt should not notify")
	}
}

func TestCoverLetterTaskRejectsBadPayload(t *testing.T) {
	client, _ := newSubscriber(t, 7)
	h := NewCoverLetterTaskHandler(&fakeDocs{}, client, nil)

	err := h.ProcessTask(context.Background(), asynq.NewTask(tasks.TypeCoverLetterGenerate, []byte("{")))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}
}
