package protocol

// LineBuffer assembles complete lines from a serial byte stream. A line
// longer than the buffer capacity is dropped up to its terminator.
type LineBuffer struct {
	partial    []byte
	lines      []string
	size       int
	discarding bool
	dropped    int
}

// NewLineBuffer creates a LineBuffer holding at most capacity bytes of a
// partial line
func NewLineBuffer(capacity int) *LineBuffer {
	return &LineBuffer{
		partial: make([]byte, 0, capacity),
		size:    capacity,
	}
}

// Write appends stream data. It always accepts all of data.
func (l *LineBuffer) Write(data []byte) (int, error) {
	for _, b := range data {
		l.writeByte(b)
	}
	return len(data), nil
}

func (l *LineBuffer) writeByte(b byte) {
	if l.discarding {
		if b == LineTerminator {
			l.discarding = false
		}
		return
	}

	switch b {
	case LineTerminator:
		l.lines = append(l.lines, string(l.partial))
		l.partial = l.partial[:0]
	case '\r':
		// CRLF senders
	default:
		if len(l.partial) >= l.size {
			// Line too long - drop it up to the next terminator
			l.partial = l.partial[:0]
			l.discarding = true
			l.dropped++
			return
		}
		l.partial = append(l.partial, b)
	}
}

// Next pops the oldest complete line
func (l *LineBuffer) Next() (string, bool) {
	if len(l.lines) == 0 {
		return "", false
	}
	line := l.lines[0]
	l.lines[0] = ""
	l.lines = l.lines[1:]
	return line, true
}

// Available returns the number of complete lines waiting
func (l *LineBuffer) Available() int {
	return len(l.lines)
}

// Pending returns the number of bytes of the unterminated line
func (l *LineBuffer) Pending() int {
	return len(l.partial)
}

// Dropped returns the number of over-long lines discarded
func (l *LineBuffer) Dropped() int {
	return l.dropped
}

// Reset discards all buffered data
func (l *LineBuffer) Reset() {
	l.partial = l.partial[:0]
	l.lines = nil
	l.discarding = false
}
