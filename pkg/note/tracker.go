package note

// Tracker follows the currently sounding note of a monophonic stream and
// reports the note-off / note-on pair needed when the quantized note changes.
// The zero value is ready to use with nothing sounding.
type Tracker struct {
	current int
}

// Next feeds the next quantized note n. When n differs from the sounding note
// it returns the note to release (or [Silence]) and the note to start (or
// [Silence]) with changed set. The release always precedes the start.
func (t *Tracker) Next(n int) (off, on int, changed bool) {
	if n == t.current {
		return Silence, Silence, false
	}
	off, on = t.current, n
	t.current = n
	return off, on, true
}

// Finish releases the sounding note, if any, and returns it.
func (t *Tracker) Finish() int {
	off := t.current
	t.current = Silence
	return off
}

// Current returns the sounding note or [Silence].
func (t *Tracker) Current() int { return t.current }
