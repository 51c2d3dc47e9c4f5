package chat

import (
	"encoding/base64"
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/suPer8Hu/sealchat/internal/ai"
)

// historyContext maps stored rows onto provider messages. System rows are dropped and the
// row written for the current turn is excluded: by id when the write succeeded, otherwise
// by matching the newest row's role and content against the current text.
func historyContext(rows []Message, currentID uint64, current string, window int) []ai.Message {
	kept := make([]Message, 0, len(rows))
	for _, m := range rows {
		if m.Role == ai.RoleSystem {
			continue
		}
		if currentID != 0 && m.ID == currentID {
			continue
		}
		kept = append(kept, m)
	}

	if currentID == 0 && len(kept) > 0 {
		last := kept[len(kept)-1]
		if last.Role == ai.RoleUser && last.Content == current {
			kept = kept[:len(kept)-1]
		}
	}

	if window > 0 && len(kept) > window {
		kept = kept[len(kept)-window:]
	}

	out := make([]ai.Message, 0, len(kept))
	for _, m := range kept {
		out = append(out, ai.Message{Role: m.Role, Content: m.Content})
	}
	return out
}

// loadImagePart reads an uploaded file by the basename of its URL and returns it as a
// base64 image part. Only files under dir are reachable.
func loadImagePart(dir, rawURL string) (ai.ContentPart, error) {
	name := path.Base(strings.TrimSpace(rawURL))
	if name == "" || name == "." || name == "/" || name == ".." {
		return ai.ContentPart{}, fmt.Errorf("invalid attachment url %q", rawURL)
	}

	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return ai.ContentPart{}, fmt.Errorf("read attachment %s: %w", name, err)
	}

	mt := mimetype.Detect(data).String()
	if !strings.HasPrefix(mt, "image/") {
		if byExt := mime.TypeByExtension(filepath.Ext(name)); strings.HasPrefix(byExt, "image/") {
			mt = byExt
		} else {
			return ai.ContentPart{}, fmt.Errorf("attachment %s is not an image (%s)", name, mt)
		}
	}
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = mt[:i]
	}

	return ai.ContentPart{
		Type:     ai.PartImage,
		MIMEType: mt,
		Data:     base64.StdEncoding.EncodeToString(data),
	}, nil
}

// titleFrom returns the first n characters of a message.
func titleFrom(message string, n int) string {
	message = strings.TrimSpace(message)
	if message == "" {
		return "新对话"
	}
	r := []rune(message)
	if len(r) > n {
		r = r[:n]
	}
	return string(r)
}
