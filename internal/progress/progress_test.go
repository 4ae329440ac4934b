package progress

import (
	"bytes"
	"strings"
	"sync"
	"testing"
)

func TestCallbackReporter_Sequence(t *testing.T) {
	var updates []Update
	r := NewCallbackReporter(func(u Update) { updates = append(updates, u) })

	r.Begin(PhaseGenerate, 3)
	r.Step(0)
	r.Step(1)
	r.Step(2)
	r.Done()

	if len(updates) != 5 {
		t.Fatalf("expected 5 updates, got %d", len(updates))
	}
	if updates[0].Type != UpdateBegin || updates[0].Total != 3 {
		t.Errorf("unexpected begin update: %+v", updates[0])
	}
	if updates[2].Type != UpdateStep || updates[2].Index != 1 || updates[2].Phase != PhaseGenerate {
		t.Errorf("unexpected step update: %+v", updates[2])
	}
	if last := updates[4]; last.Type != UpdateDone || last.Index != 2 {
		t.Errorf("unexpected done update: %+v", last)
	}
}

func TestCallbackReporter_NilCallback(t *testing.T) {
	r := NewCallbackReporter(nil)
	r.Begin(PhaseVerify, 1)
	r.Step(0)
	r.Done()
}

func TestCallbackReporter_CallbackMayReenter(t *testing.T) {
	var r *CallbackReporter
	calls := 0
	r = NewCallbackReporter(func(u Update) {
		calls++
		if u.Type == UpdateBegin {
			// would deadlock if the callback ran under the lock
			r.Step(0)
		}
	})
	r.Begin(PhaseVerify, 2)

	if calls != 2 {
		t.Errorf("expected 2 callbacks, got %d", calls)
	}
}

func TestCallbackReporter_Concurrent(t *testing.T) {
	var mu sync.Mutex
	count := 0
	r := NewCallbackReporter(func(Update) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	r.Begin(PhaseGenerate, 100)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.Step(i)
		}(i)
	}
	wg.Wait()

	if count != 101 {
		t.Errorf("expected 101 callbacks, got %d", count)
	}
}

func TestBarReporter(t *testing.T) {
	var buf bytes.Buffer
	r := NewBarReporter(&buf, 10)

	r.Begin(PhaseGenerate, 4)
	r.Step(0)
	r.Step(2)
	r.Done()

	want := "\r[          ] 0\r[#####     ] 2\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestFormatProgress(t *testing.T) {
	tests := []struct {
		current, total, width int
		want                  string
	}{
		{0, 10, 10, "[          ] 0"},
		{5, 10, 10, "[#####     ] 5"},
		{10, 10, 10, "[##########] 10"},
		{20, 10, 4, "[####] 20"},
		{3, 0, 4, "[    ] 3"},
	}
	for _, tt := range tests {
		if got := FormatProgress(tt.current, tt.total, tt.width); got != tt.want {
			t.Errorf("FormatProgress(%d, %d, %d) = %q, want %q", tt.current, tt.total, tt.width, got, tt.want)
		}
	}

	if got := FormatProgress(40, 100, DefaultWidth); strings.Count(got, "#") != 32 {
		t.Errorf("expected 32 filled cells, got %q", got)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.0 KiB"},
		{100_000_000, "95 MiB"},
		{-1, "-1 B"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.in); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNullReporter(t *testing.T) {
	var r Reporter = NullReporter{}
	r.Begin(PhaseVerify, 10)
	r.Step(3)
	r.Done()
}
