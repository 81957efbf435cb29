// Package protocol implements the line-oriented serial command protocol
package protocol

import (
	"errors"
	"strconv"
	"strings"

	"github.com/google/shlex"
)

// Version represents the firmware protocol version
const Version = "0.1.0"

// Protocol constants
const (
	LineMax        = 128  // Maximum command line length in bytes
	LineTerminator = '\n' // Ends every command and every reply
)

var (
	ErrEmptyLine   = errors.New("empty command line")
	ErrLineTooLong = errors.New("command line too long")
	ErrMissingArg  = errors.New("missing argument")
	ErrBadArg      = errors.New("bad argument")
)

// Request is one decoded command line: a command name or numeric id
// followed by positional arguments
type Request struct {
	Command string
	Args    []string
}

// ParseLine decodes a command line. Tokens may be separated by whitespace
// or commas and the whole line may be wrapped in brackets, so
// "startPwm 2 1000 300 0" and "[startPwm,2,1000,300,0]" are equivalent.
func ParseLine(line string) (Request, error) {
	if len(line) > LineMax {
		return Request{}, ErrLineTooLong
	}

	s := strings.TrimSpace(line)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	s = strings.ReplaceAll(s, ",", " ")

	tokens, err := shlex.Split(s)
	if err != nil {
		return Request{}, err
	}
	if len(tokens) == 0 {
		return Request{}, ErrEmptyLine
	}

	return Request{Command: tokens[0], Args: tokens[1:]}, nil
}

// CommandID returns the command as a numeric id when it was sent as one
func (r Request) CommandID() (uint16, bool) {
	id, err := strconv.ParseUint(r.Command, 10, 16)
	if err != nil {
		return 0, false
	}
	return uint16(id), true
}

// NumArgs returns the number of positional arguments
func (r Request) NumArgs() int {
	return len(r.Args)
}

func (r Request) arg(i int) (string, error) {
	if i < 0 || i >= len(r.Args) {
		return "", argError(ErrMissingArg, i, "")
	}
	return r.Args[i], nil
}

// Int decodes argument i as a signed integer
func (r Request) Int(i int) (int, error) {
	s, err := r.arg(i)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, argError(ErrBadArg, i, s)
	}
	return int(v), nil
}

// Uint32 decodes argument i as an unsigned 32-bit integer
func (r Request) Uint32(i int) (uint32, error) {
	s, err := r.arg(i)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, argError(ErrBadArg, i, s)
	}
	return uint32(v), nil
}

// Uint8 decodes argument i as an unsigned 8-bit integer
func (r Request) Uint8(i int) (uint8, error) {
	s, err := r.arg(i)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, argError(ErrBadArg, i, s)
	}
	return uint8(v), nil
}

// ArgError reports which positional argument failed to decode
type ArgError struct {
	Err   error
	Index int
	Value string
}

func (e *ArgError) Error() string {
	msg := e.Err.Error() + " " + strconv.Itoa(e.Index)
	if e.Value != "" {
		msg += " " + strconv.Quote(e.Value)
	}
	return msg
}

func (e *ArgError) Unwrap() error {
	return e.Err
}

func argError(err error, i int, value string) error {
	return &ArgError{Err: err, Index: i, Value: value}
}

// AppendArray appends values as a bracketed, comma-separated list
func AppendArray(dst []byte, values []int) []byte {
	dst = append(dst, '[')
	for i, v := range values {
		if i > 0 {
			dst = append(dst, ',')
		}
		dst = strconv.AppendInt(dst, int64(v), 10)
	}
	return append(dst, ']')
}

// FormatArray formats values as a status report line, e.g. "[0,1,0]\n"
func FormatArray(values []int) string {
	buf := make([]byte, 0, 2+2*len(values)+1)
	buf = AppendArray(buf, values)
	return string(append(buf, LineTerminator))
}

// ParseArray decodes a status report line produced by FormatArray
func ParseArray(line string) ([]int, error) {
	s := strings.TrimSpace(line)
	if !strings.HasPrefix(s, "[") || !strings.HasSuffix(s, "]") {
		return nil, argError(ErrBadArg, 0, s)
	}
	s = strings.TrimSpace(s[1 : len(s)-1])
	if s == "" {
		return []int{}, nil
	}

	parts := strings.Split(s, ",")
	values := make([]int, len(parts))
	for i, part := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, argError(ErrBadArg, i, part)
		}
		values[i] = v
	}
	return values, nil
}
