package protocol

import (
	"errors"
	"io"
)

// CommandHandler handles one decoded request. Replies go to the writer.
type CommandHandler func(req Request, reply io.Writer) error

// ErrorHandler is told about lines that could not be parsed or handled
type ErrorHandler func(line string, err error)

// Transport turns received bytes into requests for a handler and carries
// the handler's replies back to the output
type Transport struct {
	input        *LineBuffer
	output       io.Writer
	handler      CommandHandler
	errorHandler ErrorHandler
	received     uint32
	failed       uint32
}

// NewTransport creates a Transport writing replies to output
func NewTransport(output io.Writer, handler CommandHandler) *Transport {
	return &Transport{
		input:        NewLineBuffer(LineMax),
		output:       output,
		handler:      handler,
		errorHandler: func(string, error) {},
	}
}

// SetErrorHandler installs the handler for rejected lines
func (t *Transport) SetErrorHandler(h ErrorHandler) {
	if h == nil {
		h = func(string, error) {}
	}
	t.errorHandler = h
}

// Receive processes incoming data. Each complete line is parsed and
// handled before Receive returns; a partial line waits for more data.
func (t *Transport) Receive(data []byte) {
	t.input.Write(data)

	for {
		line, ok := t.input.Next()
		if !ok {
			return
		}
		t.HandleLine(line)
	}
}

// HandleLine parses and dispatches a single line
func (t *Transport) HandleLine(line string) {
	req, err := ParseLine(line)
	if errors.Is(err, ErrEmptyLine) {
		return
	}
	if err != nil {
		t.failed++
		t.errorHandler(line, err)
		return
	}

	t.received++
	if err := t.handler(req, t.output); err != nil {
		t.failed++
		t.errorHandler(line, err)
	}
}

// Received returns the number of lines dispatched to the handler
func (t *Transport) Received() uint32 {
	return t.received
}

// Failed returns the number of lines that failed to parse or dispatch
func (t *Transport) Failed() uint32 {
	return t.failed
}

// Reset drops any buffered partial input
func (t *Transport) Reset() {
	t.input.Reset()
}
