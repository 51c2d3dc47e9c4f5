// Package gesture holds the per-connection gesture memory and the fixed reply tables
// used to answer hand signs without a model round trip.
package gesture

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	// DebounceWindow suppresses repeating the same reply for a gesture held in view.
	DebounceWindow = 3 * time.Second
	// MemoryWindow is how long a seen gesture stays usable for follow-up questions.
	MemoryWindow = 5 * time.Second
)

// Memory is owned by a single connection and is not safe for concurrent use.
type Memory struct {
	label    string
	seenAt   time.Time
	actedAt  time.Time
	hasActed bool
}

// Observe records the labels of one frame. It returns the combined label and whether
// the caller should act on it; a label already acted on within DebounceWindow is
// remembered but not acted on again.
func (m *Memory) Observe(labels []string, now time.Time) (string, bool) {
	if len(labels) == 0 {
		return "", false
	}
	label := strings.Join(labels, ", ")

	repeat := label == m.label && m.hasActed && now.Sub(m.actedAt) < DebounceWindow
	m.label = label
	m.seenAt = now
	if repeat {
		return label, false
	}
	m.actedAt = now
	m.hasActed = true
	return label, true
}

// Recent returns the last label if it was seen within MemoryWindow.
func (m *Memory) Recent(now time.Time) (string, bool) {
	if m.label == "" || now.Sub(m.seenAt) >= MemoryWindow {
		return "", false
	}
	return m.label, true
}

// RecentNumber returns N when the recent label is a single "Number N" sign.
func (m *Memory) RecentNumber(now time.Time) (int, bool) {
	label, ok := m.Recent(now)
	if !ok {
		return 0, false
	}
	return ParseNumber(label)
}

// VisualNote is the one-line context appended to the realtime persona, or "".
func (m *Memory) VisualNote(now time.Time) string {
	label, ok := m.Recent(now)
	if !ok {
		return ""
	}
	return fmt.Sprintf("（视觉信息：用户刚刚对着摄像头做了手势「%s」，如果用户问起可以直接提到。）", label)
}

func ParseNumber(label string) (int, bool) {
	rest, ok := strings.CutPrefix(label, "Number ")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 1 || n > 5 {
		return 0, false
	}
	return n, true
}

var cannedReplies = map[string]string{
	"Number 1":     "一！老伙计，你这是想当第一名吗？",
	"Number 2":     "二！比个耶，今天的 Bug 也会被你拿下的！",
	"Number 3":     "三！三个 Bug 一起修，效率拉满。",
	"Number 4":     "四！四平八稳，代码跑起来稳稳的。",
	"Number 5":     "五！来，击个掌！",
	"Finger Heart": "收到你的比心啦，汐宝也给你比一个！",
	"Heart Shape":  "哇，好大一个爱心，汐宝要被感动到翻肚皮了！",
}

// CannedReply returns the fixed reply for a catalogued gesture label.
func CannedReply(label string) (string, bool) {
	r, ok := cannedReplies[label]
	return r, ok
}

// NumberAnswer answers a "which number" question from memory.
func NumberAnswer(n int) string {
	return fmt.Sprintf("你刚才比的是数字 %d 呀，汐宝看得清清楚楚！", n)
}

const Farewell = "好嘞，那汐宝先去冰块上晒太阳啦，拜拜！"

// Utterances that mean goodbye on their own, compared after trimming trailing punctuation.
var hangupUtterances = map[string]bool{
	"再见": true, "拜拜": true, "拜": true, "挂了": true, "挂断": true, "挂电话": true,
	"bye": true, "goodbye": true, "bye bye": true, "bye-bye": true, "byebye": true,
}

// Phrases that mean goodbye anywhere in a longer utterance.
var hangupPhrases = []string{"拜拜", "挂了吧", "先挂了", "挂电话", "挂断"}

var byeWord = regexp.MustCompile(`\b(good)?bye\b`)

// "再见到你" and "再见面" mean "see again", not goodbye.
var seeAgainSuffixes = []string{"到", "面"}

var numberQueryKeywords = []string{
	"比的是几", "比了几", "这是几", "是数字几", "数字几", "几根手指", "什么数字", "多少根手指",
	"看到了什么", "看到什么",
	"what number", "which number", "what did you see", "how many fingers",
}

// IsHangup reports whether text is a farewell.
func IsHangup(text string) bool {
	text = strings.ToLower(strings.TrimSpace(text))
	if hangupUtterances[strings.TrimRight(text, "。！？!?.,，~～ ")] {
		return true
	}
	if containsAny(text, hangupPhrases) || byeWord.MatchString(text) {
		return true
	}
	return hasGoodbyeZaijian(text)
}

func hasGoodbyeZaijian(text string) bool {
	for rest := text; ; {
		i := strings.Index(rest, "再见")
		if i < 0 {
			return false
		}
		rest = rest[i+len("再见"):]
		if !hasAnyPrefix(rest, seeAgainSuffixes) {
			return true
		}
	}
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// IsNumberQuery matches "which number did I show" style questions only.
func IsNumberQuery(text string) bool {
	return containsAny(text, numberQueryKeywords)
}

func containsAny(text string, keywords []string) bool {
	text = strings.ToLower(text)
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}
