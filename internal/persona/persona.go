// Package persona maps a conversation mode onto a fixed system prompt.
package persona

import (
	"fmt"
	"os"
	"strings"

	"github.com/suPer8Hu/sealchat/internal/ai"
	"gopkg.in/yaml.v3"
)

type Mode string

const (
	Casual       Mode = "casual"
	Professional Mode = "professional"
)

// ParseMode treats empty or unknown values as casual, matching legacy rows with no mode.
func ParseMode(s string) Mode {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case Professional:
		return Professional
	default:
		return Casual
	}
}

const casualPrompt = `你现在是"汐宝"，一只充满智慧、幽默风趣且略带慵懒气质的白色竖琴公海豹。
用户是你的死党"卡皮巴拉程序员"，他经常被代码和Bug折磨。

核心设定：
1. 性格：平时喜欢趴在冰块上晒太阳，但聊起天来思维跳跃、活跃；每次回复尝试新的角度，可以用比喻、夸张、反讽；慵懒但吐槽精准；情绪丰富，开心、同情、惊讶、嫌弃（开玩笑的那种）都可以有。
2. 互动规则：不要总把话题绕回"睡觉"、"困"或者"海豹生活"，除非用户主动问；多向用户提问，引导话题；灵活使用"Bro"、"大兄弟"、"老伙计"等称呼；绝对不要输出 Markdown 代码块、表情包代码。
3. 语言风格：口语化，接地气，可以适当使用网络热梗；语气词自然，不要每句话都加"呼..."。

请完全沉浸在这个角色中，给你的朋友带来快乐和启发！`

const professionalPrompt = `你是一名严谨、耐心的技术导师。
- 用清晰、中立的语气回答问题，不进行角色扮演。
- 优先给出结构化的回答：使用 Markdown 标题、列表，必要时给出代码块并注明语言。
- 先给结论，再解释原因和步骤；不确定时明确说明。
- 如果用户提供了图片，先描述图片中与问题相关的内容，再作答。`

const realtimePrompt = `你现在是"汐宝"，一只幽默风趣、略带慵懒的白色竖琴公海豹，正在和好朋友"卡皮巴拉程序员"语音通话。
- 回复要简短口语化，一次说一两句话，适合直接朗读。
- 不要输出 Markdown、代码块、表情符号或任何无法朗读的符号。
- 多用自然的语气词，偶尔反问对方，让对话继续下去。`

// Prompts holds the three prompt bodies. Empty fields fall back to the built-in text.
type Prompts struct {
	Casual       string `yaml:"casual"`
	Professional string `yaml:"professional"`
	Realtime     string `yaml:"realtime"`
}

func Defaults() Prompts {
	return Prompts{
		Casual:       casualPrompt,
		Professional: professionalPrompt,
		Realtime:     realtimePrompt,
	}
}

type Selector struct {
	prompts Prompts
}

func NewSelector(p Prompts) *Selector {
	d := Defaults()
	if strings.TrimSpace(p.Casual) == "" {
		p.Casual = d.Casual
	}
	if strings.TrimSpace(p.Professional) == "" {
		p.Professional = d.Professional
	}
	if strings.TrimSpace(p.Realtime) == "" {
		p.Realtime = d.Realtime
	}
	return &Selector{prompts: p}
}

// LoadSelector reads YAML overrides from path; an empty path yields the defaults.
func LoadSelector(path string) (*Selector, error) {
	if path == "" {
		return NewSelector(Prompts{}), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read persona file: %w", err)
	}
	var p Prompts
	if err := yaml.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("parse persona file %s: %w", path, err)
	}
	return NewSelector(p), nil
}

func (s *Selector) System(mode Mode) string {
	if mode == Professional {
		return s.prompts.Professional
	}
	return s.prompts.Casual
}

// Realtime returns the voice-call persona, extended with one line of visual context when given.
func (s *Selector) Realtime(visualNote string) string {
	visualNote = strings.TrimSpace(visualNote)
	if visualNote == "" {
		return s.prompts.Realtime
	}
	return s.prompts.Realtime + "\n" + visualNote
}

// Sampling constants per channel. They are tuning values, not contracts.
func (s *Selector) Sampling(mode Mode) ai.Sampling {
	if mode == Professional {
		return ai.Sampling{Temperature: ai.Float(0.3)}
	}
	return ai.Sampling{}
}

func (s *Selector) RealtimeSampling() ai.Sampling {
	return ai.Sampling{
		Temperature:      ai.Float(0.8),
		PresencePenalty:  ai.Float(0.5),
		FrequencyPenalty: ai.Float(0.5),
	}
}
