package probe

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultPushConfiguration pushes with the first push focus at six lateral
// positions.
const DefaultPushConfiguration = "1,40,48;1,48,56;1,56,64;1,64,72;1,72,80;1,80,88"

// maxPushes bounds the number of pushes in one ARFI sequence.
const maxPushes = 256

// PushTriple is one ARFI push: which push focal depth to use (1-5 in the
// ARFI focal depth table), the line to push on and the line to track.
type PushTriple struct {
	FocusIndex int
	PushLine   int
	TrackLine  int
}

// ParsePushConfiguration parses "focus,push,track;focus,push,track;...".
// Whitespace and empty segments are ignored so multi-line strings work.
func ParsePushConfiguration(s string) ([]PushTriple, error) {
	var out []PushTriple
	for i, seg := range strings.Split(s, ";") {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		parts := strings.Split(seg, ",")
		if len(parts) != 3 {
			return nil, fmt.Errorf("%w: push %d %q: want focus,push,track", ErrValidation, i, seg)
		}
		var vals [3]int
		for j, p := range parts {
			v, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil {
				return nil, fmt.Errorf("%w: push %d %q: %v", ErrValidation, i, seg, err)
			}
			vals[j] = v
		}
		out = append(out, PushTriple{FocusIndex: vals[0], PushLine: vals[1], TrackLine: vals[2]})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: empty push configuration", ErrValidation)
	}
	return out, nil
}

// FormatPushConfiguration is the inverse of ParsePushConfiguration.
func FormatPushConfiguration(pushes []PushTriple) string {
	var b strings.Builder
	for i, p := range pushes {
		if i > 0 {
			b.WriteByte(';')
		}
		fmt.Fprintf(&b, "%d,%d,%d", p.FocusIndex, p.PushLine, p.TrackLine)
	}
	return b.String()
}

func validatePushes(pushes []PushTriple, lineCount int) error {
	if len(pushes) == 0 || len(pushes) > maxPushes {
		return fmt.Errorf("%w: push count %d outside [1, %d]", ErrValidation, len(pushes), maxPushes)
	}
	for i, p := range pushes {
		if p.FocusIndex < 1 || p.FocusIndex >= ARFIFocalZones {
			return fmt.Errorf("%w: push %d focus index %d outside [1, %d]", ErrValidation, i, p.FocusIndex, ARFIFocalZones-1)
		}
		if p.PushLine < 0 || p.PushLine >= lineCount {
			return fmt.Errorf("%w: push %d push line %d outside [0, %d]", ErrValidation, i, p.PushLine, lineCount-1)
		}
		if p.TrackLine < 0 || p.TrackLine >= lineCount {
			return fmt.Errorf("%w: push %d track line %d outside [0, %d]", ErrValidation, i, p.TrackLine, lineCount-1)
		}
	}
	return nil
}
