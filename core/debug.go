package core

// DebugWriter receives one debug line
type DebugWriter func(string)

// Debug output is off until a platform installs a writer and enables it.
// The host bridges it into its logger, firmware builds leave it off.
var debug struct {
	write   DebugWriter
	enabled bool
}

// SetDebugWriter installs writer as the debug sink. nil discards output.
func SetDebugWriter(writer DebugWriter) {
	debug.write = writer
}

func SetDebugEnabled(enabled bool) {
	debug.enabled = enabled
}

func IsDebugEnabled() bool {
	return debug.enabled
}

// DebugPrintln writes msg when debug output is enabled
func DebugPrintln(msg string) {
	if debug.enabled && debug.write != nil {
		debug.write(msg)
	}
}
