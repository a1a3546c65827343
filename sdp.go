package videoroom

import (
	"regexp"
	"strings"
)

func removeLine(lines []string, index int) []string {
	return append(lines[:index], lines[index+1:]...)
}

// SDPFilter rewrites a session description text before it is stored and
// transmitted. Filtering applies to the exact bytes sent to the gateway.
type SDPFilter interface {
	Filter(sdp string) string
}

var directCandidateRegex = regexp.MustCompile(`^a=candidate:\S+ \d+ \S+ \d+ \S+ \d+ typ host`)

// DirectCandidateFilter strips host (direct) ICE candidate lines from an
// SDP blob, leaving reflexive and relay candidates untouched.
type DirectCandidateFilter struct{}

func (DirectCandidateFilter) Filter(sdp string) string {
	lines := strings.Split(sdp, "\r\n")
	for i := 0; i < len(lines); i++ {
		if directCandidateRegex.MatchString(lines[i]) {
			lines = removeLine(lines, i)
			i--
		}
	}
	return strings.Join(lines, "\r\n")
}
