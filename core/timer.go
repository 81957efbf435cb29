package core

// Scheduler tick frequency. One tick is one millisecond, which is also the
// unit used by every duration on the command surface.
const (
	TimerFreq = 1000

	// MaxInterval is the longest delay or period in ticks. Wake times
	// further out compare as already past.
	MaxInterval = 1<<31 - 1
)

var (
	systemTicks uint32
	bootTime    uint32 // Tick count at TimerInit for uptime calculation
)

// GetTime returns the current system time in timer ticks
func GetTime() uint32 {
	return getSystemTicks()
}

// SetTime sets the current system time (for testing/hardware integration)
func SetTime(ticks uint32) {
	setSystemTicks(ticks)
}

// GetUptime returns ticks elapsed since TimerInit
func GetUptime() uint32 {
	return GetTime() - bootTime
}

// TimerFromMS converts milliseconds to timer ticks
func TimerFromMS(ms uint32) uint32 {
	return uint32(uint64(ms) * TimerFreq / 1000)
}

// TimerToMS converts timer ticks to milliseconds
func TimerToMS(ticks uint32) uint32 {
	return uint32(uint64(ticks) * 1000 / TimerFreq)
}

// TimerFromUS converts microseconds to timer ticks
func TimerFromUS(us uint64) uint32 {
	return uint32(us * TimerFreq / 1000000)
}

// TimerInit initializes the system timer
func TimerInit() {
	bootTime = GetTime()
}

// timerBefore reports whether tick a is strictly earlier than tick b.
// Valid across counter wrap as long as the two are less than 2^31 ticks apart.
func timerBefore(a, b uint32) bool {
	return int32(a-b) < 0
}
