// Package playback tracks where the scrolling live view currently is in
// each record. One goroutine owns all cursors and applies advances over a
// request channel, so "one poll = one advance" holds no matter how many
// HTTP requests race for the same kind. Pausing is a caller concern; the
// cursor itself only ever plays forward.
package playback

import "physio-replay/pkg/record"

// DefaultWindowLen and DefaultStep mirror the polling contract: clients
// poll roughly once per second, and the half-second step keeps consecutive
// windows overlapping so the view scrolls instead of jumping.
const (
	DefaultWindowLen = 10.0
	DefaultStep      = 0.5
)

// Position is the cursor state handed back by Advance: the window the
// caller should extract next. Offset is the pre-advance value, read
// immediately before the window extractor runs.
type Position struct {
	Offset    float64
	WindowLen float64
}

type cursorState struct {
	offset    float64
	windowLen float64
	step      float64
	duration  float64
}

type advanceRequest struct {
	kind  record.Kind
	reply chan Position
}

type resetRequest struct {
	kind     record.Kind
	duration float64
	reply    chan struct{}
}

// Deck owns one independent cursor per record kind. Kinds never interact,
// but a single goroutine can serve all of them because an advance is a few
// float operations.
type Deck struct {
	advance chan advanceRequest
	reset   chan resetRequest
}

// NewDeck starts the cursor owner goroutine for the process lifetime.
func NewDeck() *Deck {
	d := &Deck{
		advance: make(chan advanceRequest),
		reset:   make(chan resetRequest),
	}
	go d.run()
	return d
}

// Reset rewinds the kind's cursor to zero and records the new duration.
// Called when an upload replaces the record, so playback restarts from the
// beginning of the fresh dataset.
func (d *Deck) Reset(kind record.Kind, duration float64) {
	reply := make(chan struct{}, 1)
	d.reset <- resetRequest{kind: kind, duration: duration, reply: reply}
	<-reply
}

// Advance returns the current position and steps the cursor forward.
// When the stepped offset would push the window past the record end, the
// cursor wraps to zero: polling never terminates, so replaying from the
// start is the defined policy rather than sticking at the tail.
func (d *Deck) Advance(kind record.Kind) Position {
	reply := make(chan Position, 1)
	d.advance <- advanceRequest{kind: kind, reply: reply}
	return <-reply
}

func (d *Deck) run() {
	cursors := make(map[record.Kind]*cursorState, 3)

	state := func(kind record.Kind) *cursorState {
		c := cursors[kind]
		if c == nil {
			c = &cursorState{windowLen: DefaultWindowLen, step: DefaultStep}
			cursors[kind] = c
		}
		return c
	}

	for {
		select {
		case req := <-d.reset:
			c := state(req.kind)
			c.offset = 0
			c.duration = req.duration
			req.reply <- struct{}{}

		case req := <-d.advance:
			c := state(req.kind)
			// Wrap before handing the offset out, so the overrun left
			// behind by the previous step is never served as a window.
			if c.offset+c.windowLen > c.duration {
				c.offset = 0
			}
			pos := Position{Offset: c.offset, WindowLen: c.windowLen}
			c.offset += c.step
			req.reply <- pos
		}
	}
}
