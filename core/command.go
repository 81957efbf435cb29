package core

import (
	"errors"
	"io"
	"strconv"
	"strings"
	"sync"

	"ssrpwm/protocol"
)

// ErrUnknownCommand is returned when a request names no registered command
var ErrUnknownCommand = errors.New("unknown command")

// UnknownCommandError names the command that could not be resolved
type UnknownCommandError struct {
	Command string
}

func (e *UnknownCommandError) Error() string {
	return ErrUnknownCommand.Error() + ": " + e.Command
}

func (e *UnknownCommandError) Unwrap() error {
	return ErrUnknownCommand
}

// CommandHandler handles one request. Argument decoding is left to the
// handler; replies are written to w.
type CommandHandler func(req protocol.Request, w io.Writer) error

// Command represents a registered command
type Command struct {
	ID      uint16
	Name    string
	Format  string // Argument names for the dictionary (e.g., "relay period onDuration delay")
	Handler CommandHandler
}

// CommandRegistry holds all registered commands
type CommandRegistry struct {
	mu         sync.RWMutex
	commands   map[uint16]*Command
	nameToID   map[string]uint16
	nextID     uint16
	dictionary string // Serialized dictionary for the host
}

// NewCommandRegistry creates a new command registry
func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{
		commands: make(map[uint16]*Command),
		nameToID: make(map[string]uint16),
	}
}

// Register adds a command to the registry. Registering a name twice returns
// the existing id.
func (r *CommandRegistry) Register(name string, format string, handler CommandHandler) uint16 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, exists := r.nameToID[name]; exists {
		return id
	}

	id := r.nextID
	r.nextID++

	r.commands[id] = &Command{
		ID:      id,
		Name:    name,
		Format:  format,
		Handler: handler,
	}
	r.nameToID[name] = id

	r.rebuildDictionary()

	return id
}

// GetCommand retrieves a command by ID
func (r *CommandRegistry) GetCommand(id uint16) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.commands[id]
	return cmd, ok
}

// GetCommandByName retrieves a command by name
func (r *CommandRegistry) GetCommandByName(name string) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.nameToID[name]
	if !ok {
		return nil, false
	}
	return r.commands[id], true
}

// Count returns the number of registered commands
func (r *CommandRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.commands)
}

// Dispatch calls the handler registered under cmdID
func (r *CommandRegistry) Dispatch(cmdID uint16, req protocol.Request, w io.Writer) error {
	cmd, ok := r.GetCommand(cmdID)
	if !ok || cmd.Handler == nil {
		return &UnknownCommandError{Command: strconv.Itoa(int(cmdID))}
	}

	return cmd.Handler(req, w)
}

// DispatchRequest resolves the request's command by name or numeric id and
// calls its handler. It has the signature of protocol.CommandHandler.
func (r *CommandRegistry) DispatchRequest(req protocol.Request, w io.Writer) error {
	if cmd, ok := r.GetCommandByName(req.Command); ok && cmd.Handler != nil {
		return cmd.Handler(req, w)
	}
	if id, ok := req.CommandID(); ok {
		return r.Dispatch(id, req, w)
	}
	return &UnknownCommandError{Command: req.Command}
}

// GetDictionary returns the command dictionary, one "id name format" line
// per command
func (r *CommandRegistry) GetDictionary() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dictionary
}

// rebuildDictionary rebuilds the dictionary string
// Must be called with lock held
func (r *CommandRegistry) rebuildDictionary() {
	var dict strings.Builder
	for i := uint16(0); i < r.nextID; i++ {
		cmd, ok := r.commands[i]
		if !ok {
			continue
		}
		dict.WriteString(strconv.Itoa(int(cmd.ID)))
		dict.WriteByte(' ')
		dict.WriteString(cmd.Name)
		if cmd.Format != "" {
			dict.WriteByte(' ')
			dict.WriteString(cmd.Format)
		}
		dict.WriteByte('\n')
	}
	r.dictionary = dict.String()
}
