// Package transcript accumulates incremental recognizer output into
// timestamped sentence-level segments.
//
// Recognized text arrives as arbitrary fragments — half sentences, single
// words, sometimes several sentences at once. The [Buffer] joins fragments
// into a working remainder and finalizes a [Segment] whenever it sees
// sentence-terminal punctuation followed by whitespace or the end of the
// working text. Finalized segments carry a timestamp relative to session
// start, which is what the orchestrator's silence-trigger logic and the
// recency-windowed context retrieval run on.
package transcript

import (
	"strings"
	"sync"
	"time"
)

// Segment is one finalized sentence of recognized speech.
type Segment struct {
	// Offset is the elapsed time since session start when the segment was
	// finalized.
	Offset time.Duration

	// Text is the trimmed sentence text.
	Text string

	// Speaker optionally tags who spoke. Empty when diarization is not
	// available.
	Speaker string

	// Confidence is the recognizer's confidence in the segment, 0 when the
	// recognizer does not report one.
	Confidence float64
}

// Buffer turns incremental text fragments into ordered sentence segments.
// Safe for concurrent use.
type Buffer struct {
	mu sync.Mutex

	segments []Segment
	pending  string

	sessionStart time.Time
	lastSpeech   time.Time

	now func() time.Time
}

// NewBuffer returns an empty Buffer with its session clock started.
func NewBuffer() *Buffer {
	b := &Buffer{now: time.Now}
	b.StartSession()
	return b
}

// StartSession resets the elapsed-time origin and clears all accumulated
// text.
func (b *Buffer) StartSession() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.segments = nil
	b.pending = ""
	b.sessionStart = b.now()
	b.lastSpeech = time.Time{}
}

// Append adds a text fragment and finalizes any complete sentences it closes.
// It returns the segments finalized by this call, in order.
func (b *Buffer) Append(text string) []Segment {
	if text == "" {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if strings.TrimSpace(text) != "" {
		b.lastSpeech = b.now()
	}
	b.pending += text

	var finalized []Segment
	for {
		end := sentenceEnd(b.pending)
		if end < 0 {
			break
		}
		sentence := strings.TrimSpace(b.pending[:end])
		b.pending = b.pending[end:]
		if sentence == "" {
			continue
		}
		seg := Segment{Offset: b.now().Sub(b.sessionStart), Text: sentence}
		b.segments = append(b.segments, seg)
		finalized = append(finalized, seg)
	}
	return finalized
}

// sentenceEnd returns the index one past the first sentence-terminal
// punctuation mark that is followed by whitespace or ends the text, or -1
// when the text holds no complete sentence.
func sentenceEnd(s string) int {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '.', '!', '?':
			if i+1 == len(s) || s[i+1] == ' ' || s[i+1] == '\t' || s[i+1] == '\n' || s[i+1] == '\r' {
				return i + 1
			}
		}
	}
	return -1
}

// Flush forces any non-empty remainder into a finalized segment, verbatim
// apart from surrounding whitespace.
func (b *Buffer) Flush() *Segment {
	b.mu.Lock()
	defer b.mu.Unlock()

	text := strings.TrimSpace(b.pending)
	b.pending = ""
	if text == "" {
		return nil
	}
	seg := Segment{Offset: b.now().Sub(b.sessionStart), Text: text}
	b.segments = append(b.segments, seg)
	return &seg
}

// Recent returns the text of all segments finalized within the trailing
// window, plus any pending unflushed text, joined in order.
func (b *Buffer) Recent(window time.Duration) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	cutoff := b.now().Sub(b.sessionStart) - window
	var parts []string
	for _, seg := range b.segments {
		if seg.Offset >= cutoff {
			parts = append(parts, seg.Text)
		}
	}
	if p := strings.TrimSpace(b.pending); p != "" {
		parts = append(parts, p)
	}
	return strings.Join(parts, " ")
}

// All returns the full finalized-plus-pending text.
func (b *Buffer) All() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	parts := make([]string, 0, len(b.segments)+1)
	for _, seg := range b.segments {
		parts = append(parts, seg.Text)
	}
	if p := strings.TrimSpace(b.pending); p != "" {
		parts = append(parts, p)
	}
	return strings.Join(parts, " ")
}

// Segments returns a copy of all finalized segments in order.
func (b *Buffer) Segments() []Segment {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Segment, len(b.segments))
	copy(out, b.segments)
	return out
}

// LastSpeech reports when the buffer last received non-whitespace text.
// The zero time means no speech has arrived this session.
func (b *Buffer) LastSpeech() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastSpeech
}

// Len reports the number of finalized segments.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.segments)
}
