package text

import (
	"strings"
	"unicode"
)

// DefaultMaxRunes caps a segment when no sentence boundary shows up
const DefaultMaxRunes = 256

// Splitter turns a stream of text chunks into speakable sentences.
// It is not safe for concurrent use.
type Splitter struct {
	maxRunes int
	buf      []rune
}

// NewSplitter returns a Splitter capping segments at maxRunes; zero or less means DefaultMaxRunes
func NewSplitter(maxRunes int) *Splitter {
	if maxRunes <= 0 {
		maxRunes = DefaultMaxRunes
	}
	return &Splitter{maxRunes: maxRunes}
}

// Write appends chunk and returns every sentence it completed
func (s *Splitter) Write(chunk string) []string {
	s.buf = append(s.buf, []rune(chunk)...)

	var out []string
	for {
		idx := boundaryIndex(s.buf)
		if idx == 0 || idx > s.maxRunes {
			if len(s.buf) < s.maxRunes {
				return out
			}
			idx = s.capIndex()
		}
		out = s.emit(out, idx)
	}
}

// Flush returns whatever is left, split only by the rune cap, and resets the Splitter
func (s *Splitter) Flush() []string {
	var out []string
	for len(s.buf) > s.maxRunes {
		out = s.emit(out, s.capIndex())
	}
	out = s.emit(out, len(s.buf))
	s.buf = nil
	return out
}

func (s *Splitter) emit(out []string, idx int) []string {
	seg := strings.TrimSpace(string(s.buf[:idx]))
	s.buf = s.buf[idx:]
	if seg == "" {
		return out
	}
	return append(out, seg)
}

// capIndex prefers to break after the last space inside the cap
func (s *Splitter) capIndex() int {
	for i := s.maxRunes - 1; i > 0; i-- {
		if unicode.IsSpace(s.buf[i]) {
			return i + 1
		}
	}
	return s.maxRunes
}

// boundaryIndex returns the end of the first complete sentence in rs, or 0.
// A terminator only counts once the following whitespace has arrived, so
// "3.14" and a trailing "." at the end of a chunk never split.
func boundaryIndex(rs []rune) int {
	for i := 0; i < len(rs); i++ {
		r := rs[i]
		switch {
		case isTerminator(r):
			j := i + 1
			for j < len(rs) && (isTerminator(rs[j]) || isCloser(rs[j])) {
				j++
			}
			if j == len(rs) {
				return 0
			}
			if unicode.IsSpace(rs[j]) {
				return j
			}
			i = j - 1
		case r == '\n':
			if i+1 == len(rs) {
				return 0
			}
			if unicode.IsSpace(rs[i+1]) {
				return i + 1
			}
		}
	}
	return 0
}

func isTerminator(r rune) bool {
	switch r {
	case '.', '!', '?', '…', ';', '。', '！', '？', '；':
		return true
	}
	return false
}

func isCloser(r rune) bool {
	switch r {
	case '"', '\'', ')', ']', '”', '’', '»':
		return true
	}
	return false
}
