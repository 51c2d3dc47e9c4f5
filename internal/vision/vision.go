// Package vision decodes webcam frames and asks a classifier which hand gestures they show.
package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

var ErrInvalidFrame = errors.New("vision: invalid frame")

// Classifier returns the gesture labels visible in one encoded frame, e.g. "Number 3".
type Classifier interface {
	Classify(ctx context.Context, frame []byte) ([]string, error)
}

// DecodeFrame accepts raw base64 or a data URI and returns the image bytes after
// checking they decode as JPEG or PNG.
func DecodeFrame(data string) ([]byte, error) {
	data = strings.TrimSpace(data)
	if i := strings.Index(data, ";base64,"); strings.HasPrefix(data, "data:") && i >= 0 {
		data = data[i+len(";base64,"):]
	}
	if data == "" {
		return nil, ErrInvalidFrame
	}

	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}
	return raw, nil
}

// HTTPClassifier posts frames to a gesture recognition service that answers
// {"gestures": ["Number 2"]}.
type HTTPClassifier struct {
	url    string
	client *resty.Client
}

func NewHTTPClassifier(url string) *HTTPClassifier {
	client := resty.New()
	client.SetTimeout(5 * time.Second)
	return &HTTPClassifier{url: url, client: client}
}

type classifyReq struct {
	Image string `json:"image"`
}

type classifyResp struct {
	Gestures []string `json:"gestures"`
	Error    string   `json:"error,omitempty"`
}

func (c *HTTPClassifier) Classify(ctx context.Context, frame []byte) ([]string, error) {
	var out classifyResp
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(classifyReq{Image: base64.StdEncoding.EncodeToString(frame)}).
		SetResult(&out).
		Post(c.url)
	if err != nil {
		return nil, fmt.Errorf("classify request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("classifier error %d: %s", resp.StatusCode(), resp.String())
	}
	if out.Error != "" {
		return nil, fmt.Errorf("classifier error: %s", out.Error)
	}

	labels := out.Gestures[:0]
	for _, g := range out.Gestures {
		if g = strings.TrimSpace(g); g != "" {
			labels = append(labels, g)
		}
	}
	return labels, nil
}
