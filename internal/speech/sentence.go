package speech

import "strings"

const sentenceTerminators = "。！？；!?;"

// SentenceBuffer groups streamed text deltas into sentence-sized chunks for synthesis.
// A delta containing any terminator flushes everything buffered so far, that delta included.
type SentenceBuffer struct {
	b strings.Builder
}

func (s *SentenceBuffer) Push(delta string) (string, bool) {
	s.b.WriteString(delta)
	if !strings.ContainsAny(delta, sentenceTerminators) {
		return "", false
	}
	return s.Flush()
}

// Flush returns the buffered text and clears it; whitespace-only content is dropped.
func (s *SentenceBuffer) Flush() (string, bool) {
	text := strings.TrimSpace(s.b.String())
	s.b.Reset()
	return text, text != ""
}
