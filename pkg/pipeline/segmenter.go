package pipeline

import "strings"

const (
	DefaultMinSegmentRunes = 4
	DefaultMaxSegmentRunes = 60
)

// Segmenter accumulates streamed tokens and cuts sentence-sized pieces for
// synthesis. Sentence enders always cut. Pause marks cut only once the piece
// is long enough to speak naturally. A hard cap bounds first-audio latency
// when the model writes long unpunctuated runs.
type Segmenter struct {
	buf      []rune
	minRunes int
	maxRunes int
}

func NewSegmenter(minRunes, maxRunes int) *Segmenter {
	if minRunes <= 0 {
		minRunes = DefaultMinSegmentRunes
	}
	if maxRunes < minRunes {
		maxRunes = DefaultMaxSegmentRunes
	}
	return &Segmenter{minRunes: minRunes, maxRunes: maxRunes}
}

func isSentenceEnd(r rune) bool {
	switch r {
	case '。', '！', '？', '!', '?', '.':
		return true
	}
	return false
}

func isPauseMark(r rune) bool {
	switch r {
	case '，', ',', '：', '、':
		return true
	}
	return false
}

// Push appends a token and returns the segments it completed, in order.
func (s *Segmenter) Push(token string) []string {
	var segments []string
	for _, r := range token {
		s.buf = append(s.buf, r)
		switch {
		case isSentenceEnd(r):
		case isPauseMark(r) && len(s.buf) >= s.minRunes:
		case len(s.buf) >= s.maxRunes:
		default:
			continue
		}
		if segment := s.cut(); segment != "" {
			segments = append(segments, segment)
		}
	}
	return segments
}

// Flush returns whatever remains buffered, or "" when nothing does.
func (s *Segmenter) Flush() string {
	return s.cut()
}

// Reset drops any buffered text.
func (s *Segmenter) Reset() {
	s.buf = s.buf[:0]
}

func (s *Segmenter) cut() string {
	segment := strings.TrimSpace(string(s.buf))
	s.buf = s.buf[:0]
	return segment
}
