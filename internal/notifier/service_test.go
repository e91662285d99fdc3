package notifier

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

type fakeAdapter struct {
	failFirst int32 // fail this many sends before succeeding
	sent      chan string
}

func newFakeAdapter(buf int) *fakeAdapter {
	return &fakeAdapter{sent: make(chan string, buf)}
}

func (f *fakeAdapter) Start(ctx context.Context, out chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(ctx context.Context) error                         { return nil }

func (f *fakeAdapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if atomic.AddInt32(&f.failFirst, -1) >= 0 {
		return kit.MessageRef{}, errors.New("flaky")
	}
	f.sent <- text
	return kit.MessageRef{ChatID: to.ChatID, MessageID: 1}, nil
}

func (f *fakeAdapter) EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	return nil
}
func (f *fakeAdapter) AnswerCallback(ctx context.Context, callbackID, text string) error { return nil }

func waitSent(t *testing.T, f *fakeAdapter) string {
	t.Helper()
	select {
	case s := <-f.sent:
		return s
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for send")
		return ""
	}
}

func TestNotifyDisabled(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: false}, newFakeAdapter(1), logx.Nop(), nil)
	if err := s.Notify(context.Background(), kit.Notification{Channel: "telegram", Text: "hi"}); !errors.Is(err, ErrDisabled) {
		t.Fatalf("err = %v, want ErrDisabled", err)
	}
}

func TestNotifyBeforeStart(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: true}, newFakeAdapter(1), logx.Nop(), nil)
	if err := s.Notify(context.Background(), kit.Notification{Channel: "telegram", Text: "hi"}); !errors.Is(err, ErrStopped) {
		t.Fatalf("err = %v, want ErrStopped", err)
	}
}

func TestNotifyDelivers(t *testing.T) {
	t.Parallel()
	f := newFakeAdapter(4)
	s := New(Config{Enabled: true, Workers: 1, RatePerSec: 100}, f, logx.Nop(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop(context.Background())

	n := kit.Notification{Channel: "telegram", Target: kit.ChatTarget{ChatID: 7}, Text: "What time should I remind you?"}
	if err := s.Notify(ctx, n); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if got := waitSent(t, f); got != n.Text {
		t.Fatalf("sent %q", got)
	}
}

func TestNotifyRetriesTransientFailure(t *testing.T) {
	t.Parallel()
	f := newFakeAdapter(4)
	f.failFirst = 2
	s := New(Config{
		Enabled: true, Workers: 1, RatePerSec: 100,
		RetryMax: 3, RetryBase: time.Millisecond, RetryMaxDelay: 5 * time.Millisecond,
	}, f, logx.Nop(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop(context.Background())

	if err := s.Notify(ctx, kit.Notification{Channel: "telegram", Text: "retry me"}); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if got := waitSent(t, f); got != "retry me" {
		t.Fatalf("sent %q", got)
	}
}

func TestNotifyDedupSuppresses(t *testing.T) {
	t.Parallel()
	f := newFakeAdapter(4)
	s := New(Config{
		Enabled: true, Workers: 1, RatePerSec: 100,
		DedupWindow: time.Minute,
	}, f, logx.Nop(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	n := kit.Notification{Channel: "telegram", Target: kit.ChatTarget{ChatID: 1}, Text: "same prompt"}
	if err := s.Notify(ctx, n); err != nil {
		t.Fatalf("first notify: %v", err)
	}
	if err := s.Notify(ctx, n); err != nil {
		t.Fatalf("duplicate notify: %v", err)
	}
	if got := waitSent(t, f); got != "same prompt" {
		t.Fatalf("sent %q", got)
	}

	// Drain to ensure the duplicate never reached the adapter.
	s.Stop(context.Background())
	select {
	case extra := <-f.sent:
		t.Fatalf("duplicate was sent: %q", extra)
	default:
	}
}
