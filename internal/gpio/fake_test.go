package gpio

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestFakeReaderRead(t *testing.T) {
	f := NewFakeReader()
	f.Script(17, 1, 0, 1)

	want := []int{1, 0, 1, 1}
	for i, w := range want {
		v, err := f.Read(17, BiasNone)
		if err != nil {
			t.Fatalf("sample %d: unexpected error: %v", i, err)
		}
		if v != w {
			t.Errorf("sample %d: expected %d, got %d", i, w, v)
		}
	}
	if f.ReadCount(17) != 4 {
		t.Errorf("expected 4 reads, got %d", f.ReadCount(17))
	}
}

func TestFakeReaderScriptAfterExhaustion(t *testing.T) {
	f := NewFakeReader()
	f.Script(4, 0)
	f.Read(4, BiasNone)
	f.Read(4, BiasNone)

	f.Script(4, 1, 1)
	if f.Remaining(4) != 2 {
		t.Fatalf("expected 2 remaining, got %d", f.Remaining(4))
	}
	v, _ := f.Read(4, BiasNone)
	if v != 1 {
		t.Errorf("expected newly scripted value 1, got %d", v)
	}
}

func TestFakeReaderNoSamples(t *testing.T) {
	f := NewFakeReader()

	_, err := f.Read(5, BiasNone)
	if err == nil {
		t.Error("expected error with no samples")
	}
}

func TestFakeReaderScriptedFailure(t *testing.T) {
	f := NewFakeReader()
	f.Script(5, Fail, 1)

	_, err := f.Read(5, BiasNone)
	if !errors.Is(err, ErrFakeRead) {
		t.Errorf("expected ErrFakeRead, got %v", err)
	}
	v, err := f.Read(5, BiasNone)
	if err != nil || v != 1 {
		t.Errorf("expected (1, nil) after failure, got (%d, %v)", v, err)
	}
}

func TestFakeReaderError(t *testing.T) {
	f := NewFakeReader()
	f.Set(5, 1)
	f.ReadError = errors.New("simulated error")

	_, err := f.Read(5, BiasNone)
	if err == nil || err.Error() != "simulated error" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestFakeReaderRecordsBias(t *testing.T) {
	f := NewFakeReader()
	f.Set(6, 0)
	f.Read(6, BiasUp)
	if f.LastBias(6) != BiasUp {
		t.Errorf("expected bias up, got %q", f.LastBias(6))
	}
}

func TestFakeReaderClose(t *testing.T) {
	f := NewFakeReader()
	if f.Closed {
		t.Error("should not be closed initially")
	}
	if err := f.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !f.Closed {
		t.Error("should be closed after Close()")
	}
}

func TestParseBias(t *testing.T) {
	tests := []struct {
		in      string
		want    Bias
		wantErr bool
	}{
		{"up", BiasUp, false},
		{"DOWN", BiasDown, false},
		{"none", BiasNone, false},
		{"sideways", BiasNone, true},
		{"", BiasNone, true},
	}
	for _, tt := range tests {
		got, err := ParseBias(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseBias(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseBias(%q) = %q, want %q", tt.in, got, tt.want)
		}
		if tt.wantErr && !errors.Is(err, ErrInvalidBias) {
			t.Errorf("ParseBias(%q) error should wrap ErrInvalidBias", tt.in)
		}
	}
}

func TestDiscoverUsesLister(t *testing.T) {
	f := NewFakeReader()
	f.Available = []int{27, 4, 17}

	inv, err := Discover(f)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(inv.Available) != 3 || inv.Available[0] != 4 || inv.Available[2] != 27 {
		t.Errorf("expected sorted [4 17 27], got %v", inv.Available)
	}
	if !inv.IsAvailable(17) || inv.IsAvailable(5) {
		t.Error("IsAvailable mismatch")
	}
	if inv.Reserved[14] == "" {
		t.Error("expected reserved table to be populated")
	}
}

func TestDiscoverFallback(t *testing.T) {
	f := NewFakeReader()

	inv, err := Discover(f)
	if err == nil {
		t.Error("expected discovery error to be reported")
	}
	if len(inv.Available) != len(DefaultLines) {
		t.Errorf("expected fallback lines, got %v", inv.Available)
	}
	if inv.IsAvailable(1) || !inv.IsAvailable(2) || !inv.IsAvailable(27) {
		t.Error("fallback should cover 2..27")
	}
}

type slowReader struct{ delay time.Duration }

func (s slowReader) Read(line int, bias Bias) (int, error) {
	time.Sleep(s.delay)
	return High, nil
}

func (s slowReader) Close() error { return nil }

func TestTimeoutReader(t *testing.T) {
	r := WithTimeout(slowReader{delay: 200 * time.Millisecond}, 20*time.Millisecond)
	_, err := r.Read(3, BiasNone)
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("expected ErrTimeout, got %v", err)
	}

	fast := WithTimeout(slowReader{}, 100*time.Millisecond)
	v, err := fast.Read(3, BiasNone)
	if err != nil || v != High {
		t.Errorf("expected (1, nil), got (%d, %v)", v, err)
	}
}

// hungReader blocks every Read until release is closed.
type hungReader struct {
	calls   atomic.Int32
	release chan struct{}
}

func (h *hungReader) Read(line int, bias Bias) (int, error) {
	h.calls.Add(1)
	<-h.release
	return High, nil
}

func (h *hungReader) Close() error { return nil }

func TestTimeoutReaderSingleReadPerLine(t *testing.T) {
	h := &hungReader{release: make(chan struct{})}
	r := WithTimeout(h, 20*time.Millisecond)

	for i := 0; i < 3; i++ {
		if _, err := r.Read(5, BiasNone); !errors.Is(err, ErrTimeout) {
			t.Fatalf("read %d: expected ErrTimeout, got %v", i, err)
		}
	}
	if n := h.calls.Load(); n != 1 {
		t.Errorf("expected 1 outstanding read, got %d", n)
	}

	// Another line is not held up by the hung one.
	if _, err := r.Read(6, BiasNone); !errors.Is(err, ErrTimeout) {
		t.Fatalf("line 6: expected ErrTimeout, got %v", err)
	}
	if n := h.calls.Load(); n != 2 {
		t.Errorf("expected 2 outstanding reads, got %d", n)
	}

	close(h.release)
	v, err := r.Read(5, BiasNone)
	if err != nil || v != High {
		t.Errorf("after release: got (%d, %v), want (1, nil)", v, err)
	}
}

func TestTimeoutReaderDelegates(t *testing.T) {
	f := NewFakeReader()
	f.Available = []int{2, 3}
	r := WithTimeout(f, 0)

	lines, err := r.Lines()
	if err != nil || len(lines) != 2 {
		t.Errorf("Lines: got %v, %v", lines, err)
	}
	r.Release(3)
	if len(f.Released) != 1 || f.Released[0] != 3 {
		t.Errorf("expected release of 3, got %v", f.Released)
	}
	r.Close()
	if !f.Closed {
		t.Error("expected inner reader closed")
	}
}
