package ai

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	einoopenai "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// EinoProvider drives an OpenAI-compatible endpoint through the eino ChatModel
// component instead of the hand-rolled client.
type EinoProvider struct {
	cfg einoopenai.ChatModelConfig

	mu     sync.Mutex
	// eino-ext takes penalties only at construction, so one ChatModel is kept per combination.
	models map[penalties]*einoopenai.ChatModel
}

type penalties struct {
	presence, frequency float32
	hasPresence         bool
	hasFrequency        bool
}

func penaltiesOf(s Sampling) penalties {
	var p penalties
	if s.PresencePenalty != nil {
		p.presence, p.hasPresence = float32(*s.PresencePenalty), true
	}
	if s.FrequencyPenalty != nil {
		p.frequency, p.hasFrequency = float32(*s.FrequencyPenalty), true
	}
	return p
}

func NewEinoProvider(ctx context.Context, baseURL, apiKey, modelName string) (*EinoProvider, error) {
	p := &EinoProvider{
		cfg: einoopenai.ChatModelConfig{
			BaseURL: baseURL,
			APIKey:  apiKey,
			Model:   modelName,
			Timeout: 90 * time.Second,
		},
		models: make(map[penalties]*einoopenai.ChatModel),
	}
	if _, err := p.model(ctx, penalties{}); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *EinoProvider) model(ctx context.Context, key penalties) (*einoopenai.ChatModel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cm, ok := p.models[key]; ok {
		return cm, nil
	}
	cfg := p.cfg
	if key.hasPresence {
		v := key.presence
		cfg.PresencePenalty = &v
	}
	if key.hasFrequency {
		v := key.frequency
		cfg.FrequencyPenalty = &v
	}
	cm, err := einoopenai.NewChatModel(ctx, &cfg)
	if err != nil {
		return nil, err
	}
	p.models[key] = cm
	return cm, nil
}

func toEinoMessages(messages []Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(messages))
	for _, m := range messages {
		em := &schema.Message{Role: schema.RoleType(m.Role), Content: m.Content}
		for _, p := range m.Parts {
			switch p.Type {
			case PartImage:
				em.MultiContent = append(em.MultiContent, schema.ChatMessagePart{
					Type: schema.ChatMessagePartTypeImageURL,
					ImageURL: &schema.ChatMessageImageURL{
						URL:      "data:" + p.MIMEType + ";base64," + p.Data,
						MIMEType: p.MIMEType,
					},
				})
			default:
				em.MultiContent = append(em.MultiContent, schema.ChatMessagePart{
					Type: schema.ChatMessagePartTypeText,
					Text: p.Text,
				})
			}
		}
		if len(em.MultiContent) > 0 {
			em.Content = ""
		}
		out = append(out, em)
	}
	return out
}

func (p *EinoProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	cm, err := p.model(ctx, penalties{})
	if err != nil {
		return "", err
	}
	msg, err := cm.Generate(ctx, toEinoMessages(messages))
	if err != nil {
		return "", err
	}
	return msg.Content, nil
}

// StreamChat maps the eino stream reader onto the channel pair used by every provider.
func (p *EinoProvider) StreamChat(ctx context.Context, messages []Message, sampling Sampling) (<-chan string, <-chan error) {
	chunks := make(chan string, 16)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)

		var opts []model.Option
		if sampling.Temperature != nil {
			opts = append(opts, model.WithTemperature(float32(*sampling.Temperature)))
		}

		cm, err := p.model(ctx, penaltiesOf(sampling))
		if err != nil {
			errs <- err
			return
		}
		sr, err := cm.Stream(ctx, toEinoMessages(messages), opts...)
		if err != nil {
			errs <- err
			return
		}
		defer sr.Close()

		for {
			msg, err := sr.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				errs <- err
				return
			}
			if msg == nil || msg.Content == "" {
				continue
			}
			select {
			case chunks <- msg.Content:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
	}()

	return chunks, errs
}
