package catalog

import (
	"strconv"
	"strings"

	"github.com/nvandessel/labkit/internal/element"
	"github.com/nvandessel/labkit/internal/fault"
)

// Simple Instrument parameter names and property keys.
const (
	ParamInstrument = "instrument"
	ParamPitch      = "pitch"
	ParamBPM        = "bpm"
	ParamVolume     = "volume"

	propInstrument = "乐器"
	propPitch      = "音高"
	propBPM        = "节拍"
	propVolume     = "音量"
)

// noteBase is the MIDI number of each note in octave zero, minus twelve.
var noteBase = map[byte]int{'A': 22, 'B': 23, 'C': 24, 'D': 25, 'E': 26, 'F': 27, 'G': 28}

func configureInstrument(e *element.Element, p Params) error {
	for key, raw := range p {
		switch key {
		case ParamInstrument:
			v, err := intInRange(key, raw, 0, 128)
			if err != nil {
				return err
			}
			e.Properties[propInstrument] = float64(v)
		case ParamBPM:
			v, err := intInRange(key, raw, 20, 240)
			if err != nil {
				return err
			}
			e.Properties[propBPM] = float64(v)
		case ParamVolume:
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil || v < 0 || v > 1 {
				return fault.New(fault.KindInvalidArgument, "volume %q must be a number in [0, 1]", raw)
			}
			e.Properties[propVolume] = v
		case ParamPitch:
			v, err := ParsePitch(raw)
			if err != nil {
				return err
			}
			e.Properties[propPitch] = float64(v)
		default:
			return fault.New(fault.KindInvalidArgument, "unknown Simple Instrument parameter %q", key)
		}
	}
	return nil
}

func intInRange(name, raw string, lo, hi int) (int, error) {
	v, err := strconv.Atoi(raw)
	if err != nil || v < lo || v > hi {
		return 0, fault.New(fault.KindInvalidArgument, "%s %q must be an integer in [%d, %d]", name, raw, lo, hi)
	}
	return v, nil
}

// ParsePitch accepts a MIDI note number in [20, 128] or a note name such as
// "C4", optionally sharpened or flattened by a trailing or infix '#' or 'b'
// ("C#4", "C4#", "Db4").
func ParsePitch(s string) (int, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		if n < 20 || n > 128 {
			return 0, fault.New(fault.KindInvalidArgument, "pitch %d must be in [20, 128]", n)
		}
		return n, nil
	}

	bad := fault.New(fault.KindInvalidArgument, "pitch %q: want a MIDI number or a note like C4, C#4 or Db4", s)
	if len(s) < 2 || len(s) > 3 {
		return 0, bad
	}
	base, ok := noteBase[strings.ToUpper(s[:1])[0]]
	if !ok {
		return 0, bad
	}

	rest := s[1:]
	accidental := 0
	switch {
	case len(rest) == 2 && (rest[0] == '#' || rest[0] == 'b'):
		accidental, rest = shift(rest[0]), rest[1:]
	case len(rest) == 2 && (rest[1] == '#' || rest[1] == 'b'):
		accidental, rest = shift(rest[1]), rest[:1]
	case len(rest) != 1:
		return 0, bad
	}
	if rest[0] < '0' || rest[0] > '8' {
		return 0, bad
	}
	return base + 12*int(rest[0]-'0') + accidental, nil
}

func shift(c byte) int {
	if c == '#' {
		return 1
	}
	return -1
}
