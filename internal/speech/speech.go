// Package speech turns assistant text into audio.
package speech

import (
	"context"
	"errors"
)

var ErrEmptyText = errors.New("speech: empty text")

// Synthesizer converts one utterance into encoded audio (mp3 for the NLS backend).
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}
