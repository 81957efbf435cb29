package core

import (
	"errors"
	"io"
	"strconv"

	"ssrpwm/protocol"
)

// InitPwmCommands registers the relay PWM command set on reg. Durations on
// the wire are milliseconds. Commands rejected by the sequencer reply
// nothing and return nil; undecodable arguments return an error.
func InitPwmCommands(reg *CommandRegistry, seq *Sequencer) {
	reg.Register("startPwm", "relay period onDuration delay", func(req protocol.Request, w io.Writer) error {
		return handleStartPwm(seq, req)
	})
	reg.Register("startPwmPattern", "relay pwmPeriod pwmOnDuration patternPeriod patternOnDuration delay",
		func(req protocol.Request, w io.Writer) error {
			return handleStartPattern(seq, req, false)
		})
	reg.Register("startPwmPatternPower", "relay pwmPeriod pwmOnDuration patternPeriod patternOnDuration delay power",
		func(req protocol.Request, w io.Writer) error {
			return handleStartPattern(seq, req, true)
		})
	reg.Register("stopAllPwm", "", func(req protocol.Request, w io.Writer) error {
		seq.StopAllPwm()
		return nil
	})
	reg.Register("stopPwm", "relay", func(req protocol.Request, w io.Writer) error {
		relay, err := req.Int(0)
		if err != nil {
			return err
		}
		return silent(seq.StopPwm(relay))
	})
	reg.Register("getRelaysStatus", "", func(req protocol.Request, w io.Writer) error {
		status := seq.RelaysStatus()
		values := make([]int, len(status))
		for i, s := range status {
			values[i] = int(s)
		}
		_, err := io.WriteString(w, protocol.FormatArray(values))
		return err
	})
	reg.Register("getPwmStatus", "", func(req protocol.Request, w io.Writer) error {
		status := seq.PwmStatus()
		values := make([]int, len(status))
		for i, s := range status {
			values[i] = int(s)
		}
		_, err := io.WriteString(w, protocol.FormatArray(values))
		return err
	})
	reg.Register("getPatternsStatus", "", func(req protocol.Request, w io.Writer) error {
		_, err := w.Write(AppendPatternsStatus(nil, seq.PatternsStatus()))
		return err
	})
	reg.Register("getCommands", "", func(req protocol.Request, w io.Writer) error {
		_, err := io.WriteString(w, reg.GetDictionary())
		return err
	})
}

func handleStartPwm(seq *Sequencer, req protocol.Request) error {
	var args [4]uint32
	relay, err := req.Int(0)
	if err != nil {
		return err
	}
	for i := 1; i < len(args); i++ {
		if args[i], err = durationArg(req, i); err != nil {
			return err
		}
	}

	return silent(seq.StartPwm(PwmParams{
		Relay:      relay,
		Period:     args[1],
		OnDuration: args[2],
		Delay:      args[3],
	}))
}

func handleStartPattern(seq *Sequencer, req protocol.Request, power bool) error {
	var args [6]uint32
	relay, err := req.Int(0)
	if err != nil {
		return err
	}
	for i := 1; i < len(args); i++ {
		if args[i], err = durationArg(req, i); err != nil {
			return err
		}
	}

	p := PatternParams{
		Relay:             relay,
		PwmPeriod:         args[1],
		PwmOnDuration:     args[2],
		PatternPeriod:     args[3],
		PatternOnDuration: args[4],
		Delay:             args[5],
	}

	if !power {
		_, err = seq.StartPwmPattern(p)
		return silent(err)
	}

	if p.Power, err = req.Uint8(6); err != nil {
		return err
	}
	_, err = seq.StartPwmPatternPower(p)
	return silent(err)
}

// durationArg decodes argument i as milliseconds and returns scheduler
// ticks, rejecting durations beyond MaxInterval
func durationArg(req protocol.Request, i int) (uint32, error) {
	ms, err := req.Uint32(i)
	if err != nil {
		return 0, err
	}
	ticks := TimerFromMS(ms)
	if ticks > MaxInterval {
		return 0, &protocol.ArgError{Err: protocol.ErrBadArg, Index: i, Value: strconv.FormatUint(uint64(ms), 10)}
	}
	return ticks, nil
}

// silent drops sequencer rejections, which have already been reported to
// the observer. Anything else is passed through.
func silent(err error) error {
	if errors.Is(err, ErrCapacityExceeded) || errors.Is(err, ErrUnsupportedRelay) || errors.Is(err, ErrInvalidRelay) {
		return nil
	}
	return err
}

// AppendPatternsStatus appends a status report of stored patterns as
// "[[slot,relay,envelope,burst],...]\n"
func AppendPatternsStatus(dst []byte, status []PatternStatus) []byte {
	dst = append(dst, '[')
	for i, p := range status {
		if i > 0 {
			dst = append(dst, ',')
		}
		dst = protocol.AppendArray(dst, []int{p.Slot, p.Relay, int(p.Envelope), int(p.Burst)})
	}
	return append(dst, ']', protocol.LineTerminator)
}
