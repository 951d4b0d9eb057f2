package exporter

import "sync"

// progressHub fans live job progress out to websocket subscribers. Feeds
// are in-memory only; a subscriber arriving after the job finished gets
// the terminal snapshot from the ledger instead.
type progressHub struct {
	mu    sync.Mutex
	feeds map[string]*progressFeed
}

type progressFeed struct {
	last   int
	closed bool
	subs   map[chan int]struct{}
}

func newProgressHub() *progressHub {
	return &progressHub{feeds: make(map[string]*progressFeed)}
}

// Open registers a feed for a job about to run.
func (h *progressHub) Open(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.feeds[id] = &progressFeed{subs: make(map[chan int]struct{})}
}

// Publish pushes a percentage to all subscribers. Slow subscribers drop
// intermediate values rather than stalling the export.
func (h *progressHub) Publish(id string, pct int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	f, ok := h.feeds[id]
	if !ok || f.closed {
		return
	}
	f.last = pct
	for ch := range f.subs {
		select {
		case ch <- pct:
		default:
		}
	}
}

// Close ends the feed. Subscriber channels are closed so readers see the
// stream end.
func (h *progressHub) Close(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	f, ok := h.feeds[id]
	if !ok {
		return
	}
	f.closed = true
	for ch := range f.subs {
		close(ch)
	}
	f.subs = nil
	delete(h.feeds, id)
}

// Subscribe attaches to a live feed. ok is false when no feed exists (job
// unknown or already finished). The returned cancel is idempotent with
// Close.
func (h *progressHub) Subscribe(id string) (ch chan int, last int, cancel func(), ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	f, exists := h.feeds[id]
	if !exists || f.closed {
		return nil, 0, nil, false
	}
	ch = make(chan int, 8)
	f.subs[ch] = struct{}{}
	cancel = func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if f.subs != nil {
			if _, still := f.subs[ch]; still {
				delete(f.subs, ch)
				close(ch)
			}
		}
	}
	return ch, f.last, cancel, true
}
