package logic

// Debouncer converts raw samples into confirmed transitions, keeping one
// pending window per line. Not safe for concurrent use; the caller
// serializes access.
type Debouncer struct {
	pending map[int]*Pending
}

// NewDebouncer creates a Debouncer with no pending windows.
func NewDebouncer() *Debouncer {
	return &Debouncer{pending: make(map[int]*Pending)}
}

// Observe feeds one raw sample of a line whose confirmed state is current.
// It returns the transition when one is confirmed.
//
// Without a threshold for the sample's value the first disagreeing sample
// confirms immediately. With one, the first disagreeing sample opens a
// window targeting that value; every following sample is appended, and once
// the window holds Window samples the transition is confirmed if at least
// th.For(To) of them equal To. The window is discarded either way.
func (d *Debouncer) Observe(line, current, raw int, th Thresholds) (Transition, bool) {
	p, ok := d.pending[line]
	if ok && (p.From != current || th.For(p.To) == 0) {
		// Stale window: the state or the thresholds changed underneath it.
		delete(d.pending, line)
		ok = false
	}

	if !ok {
		if raw == current {
			return Transition{}, false
		}
		threshold := th.For(raw)
		if threshold == 0 {
			return Transition{From: current, To: raw}, true
		}
		if threshold <= MinThreshold {
			// A single sample already satisfies the threshold.
			return Transition{From: current, To: raw, Confidence: 1}, true
		}
		d.pending[line] = &Pending{
			Samples: append(make([]int, 0, Window), raw),
			From:    current,
			To:      raw,
		}
		return Transition{}, false
	}

	p.Samples = append(p.Samples, raw)
	if len(p.Samples) < Window {
		return Transition{}, false
	}

	delete(d.pending, line)
	confidence := 0
	for _, s := range p.Samples {
		if s == p.To {
			confidence++
		}
	}
	if confidence >= th.For(p.To) {
		return Transition{From: p.From, To: p.To, Confidence: confidence}, true
	}
	return Transition{}, false
}

// Pending returns a copy of the line's open window.
func (d *Debouncer) Pending(line int) (Pending, bool) {
	p, ok := d.pending[line]
	if !ok {
		return Pending{}, false
	}
	return Pending{
		Samples: append([]int(nil), p.Samples...),
		From:    p.From,
		To:      p.To,
	}, true
}

// Discard drops the line's open window, if any.
func (d *Debouncer) Discard(line int) {
	delete(d.pending, line)
}

// Len returns the number of open windows.
func (d *Debouncer) Len() int {
	return len(d.pending)
}

// Majority returns the most common value among samples; ties resolve to 0.
func Majority(samples []int) int {
	ones := 0
	for _, s := range samples {
		if s == 1 {
			ones++
		}
	}
	if ones > len(samples)-ones {
		return 1
	}
	return 0
}
