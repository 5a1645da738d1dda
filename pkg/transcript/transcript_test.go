package transcript

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/haivivi/voicegate/pkg/kv"
)

func TestLog(t *testing.T) {
	ctx := context.Background()
	l := NewLog(kv.NewMemory(), 0)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	l.now = func() time.Time { return now }

	w, err := l.Begin(ctx, "s1", "127.0.0.1:5000")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	steps := []struct {
		kind         Kind
		text, detail string
	}{
		{KindSession, "", "started"},
		{KindPartial, "открой", ""},
		{KindFinal, "открой журнал", ""},
		{KindFinal, "9 В класса", ""},
		{KindSession, "", "stopped"},
	}
	for i, s := range steps {
		seq, err := w.Append(ctx, s.kind, s.text, s.detail)
		if err != nil || seq != i+1 {
			t.Fatalf("Append %d = %d, %v", i, seq, err)
		}
	}
	now = now.Add(time.Minute)
	if err := w.End(ctx, "sessions/s1.wav", 3200); err != nil {
		t.Fatalf("End: %v", err)
	}

	recs, err := l.Records(ctx, "s1")
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	if len(recs) != len(steps) {
		t.Fatalf("len(Records) = %d", len(recs))
	}
	if recs[4].Detail != "stopped" || recs[4].Session != "s1" || !recs[1].At.Equal(now.Add(-time.Minute)) {
		t.Fatalf("record = %+v", recs[4])
	}
	if got := Text(recs); got != "открой журнал 9 В класса" {
		t.Fatalf("Text = %q", got)
	}

	sum, err := l.Session(ctx, "s1")
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	if sum.Finals != 2 || sum.Audio != "sessions/s1.wav" || sum.Bytes != 3200 || !sum.EndedAt.Equal(now) {
		t.Fatalf("summary = %+v", sum)
	}

	all, err := l.Sessions(ctx)
	if err != nil || len(all) != 1 || all[0].Remote != "127.0.0.1:5000" {
		t.Fatalf("Sessions = %+v, %v", all, err)
	}
}

func TestSessionNotFound(t *testing.T) {
	l := NewLog(kv.NewMemory(), 0)
	if _, err := l.Session(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Session = %v", err)
	}
}

func TestRecordsDoNotLeakAcrossSessions(t *testing.T) {
	ctx := context.Background()
	l := NewLog(kv.NewMemory(), 0)
	a, _ := l.Begin(ctx, "a", "")
	b, _ := l.Begin(ctx, "ab", "")
	a.Append(ctx, KindFinal, "one", "")
	b.Append(ctx, KindFinal, "two", "")
	recs, _ := l.Records(ctx, "a")
	if len(recs) != 1 || recs[0].Text != "one" {
		t.Fatalf("Records(a) = %+v", recs)
	}
}
