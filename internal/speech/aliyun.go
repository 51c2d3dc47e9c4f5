package speech

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

const (
	defaultTokenURL = "https://nls-meta.cn-shanghai.aliyuncs.com/"
	defaultTTSURL   = "https://nls-gateway-cn-shanghai.aliyuncs.com/stream/v1/tts"

	// a cached token is refreshed this long before it expires
	tokenRefreshMargin = 10 * time.Minute
)

type NLSConfig struct {
	AppKey          string
	AccessKeyID     string
	AccessKeySecret string
	// StaticToken skips CreateToken entirely when set.
	StaticToken string
	Voice       string

	TokenURL string
	TTSURL   string
}

// AliyunNLS calls the Aliyun Intelligent Speech RESTful TTS API.
type AliyunNLS struct {
	cfg    NLSConfig
	client *resty.Client
	now    func() time.Time

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func NewAliyunNLS(cfg NLSConfig) *AliyunNLS {
	if cfg.TokenURL == "" {
		cfg.TokenURL = defaultTokenURL
	}
	if cfg.TTSURL == "" {
		cfg.TTSURL = defaultTTSURL
	}
	if cfg.Voice == "" {
		cfg.Voice = "jielidou"
	}

	client := resty.New()
	client.SetTimeout(10 * time.Second)

	return &AliyunNLS{cfg: cfg, client: client, now: time.Now}
}

// Enabled reports whether the client has enough credentials to synthesize anything.
func (a *AliyunNLS) Enabled() bool {
	if a.cfg.AppKey == "" {
		return false
	}
	return a.cfg.StaticToken != "" || (a.cfg.AccessKeyID != "" && a.cfg.AccessKeySecret != "")
}

type ttsReq struct {
	AppKey     string `json:"appkey"`
	Token      string `json:"token"`
	Text       string `json:"text"`
	Format     string `json:"format"`
	SampleRate int    `json:"sample_rate"`
	Voice      string `json:"voice"`
	Volume     int    `json:"volume"`
	SpeechRate int    `json:"speech_rate"`
	PitchRate  int    `json:"pitch_rate"`
}

func (a *AliyunNLS) Synthesize(ctx context.Context, text string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}
	if !a.Enabled() {
		return nil, errors.New("speech: aliyun nls is not configured")
	}

	token, err := a.Token(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(ttsReq{
			AppKey:     a.cfg.AppKey,
			Token:      token,
			Text:       text,
			Format:     "mp3",
			SampleRate: 16000,
			Voice:      a.cfg.Voice,
			Volume:     50,
			SpeechRate: 0,
			PitchRate:  0,
		}).
		Post(a.cfg.TTSURL)
	if err != nil {
		return nil, fmt.Errorf("tts request: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("tts error %d: %s", resp.StatusCode(), resp.String())
	}
	if !strings.Contains(resp.Header().Get("Content-Type"), "audio") {
		return nil, fmt.Errorf("tts returned non-audio: %s", resp.String())
	}
	return resp.Body(), nil
}

type createTokenResp struct {
	Token *struct {
		ID         string `json:"Id"`
		ExpireTime int64  `json:"ExpireTime"`
	} `json:"Token"`
	Message string `json:"Message"`
}

// Token returns a cached NLS access token, fetching a new one via CreateToken when the
// cached one is missing or close to expiry.
func (a *AliyunNLS) Token(ctx context.Context) (string, error) {
	if a.cfg.StaticToken != "" {
		return a.cfg.StaticToken, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.token != "" && a.now().Before(a.tokenExpiry.Add(-tokenRefreshMargin)) {
		return a.token, nil
	}

	params := map[string]string{
		"AccessKeyId":      a.cfg.AccessKeyID,
		"Action":           "CreateToken",
		"Format":           "JSON",
		"RegionId":         "cn-shanghai",
		"SignatureMethod":  "HMAC-SHA1",
		"SignatureNonce":   uuid.NewString(),
		"SignatureVersion": "1.0",
		"Timestamp":        a.now().UTC().Format("2006-01-02T15:04:05Z"),
		"Version":          "2019-02-28",
	}
	params["Signature"] = signPOP("GET", params, a.cfg.AccessKeySecret)

	resp, err := a.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get(a.cfg.TokenURL)
	if err != nil {
		return "", fmt.Errorf("create nls token: %w", err)
	}

	var out createTokenResp
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return "", fmt.Errorf("parse nls token response: %w", err)
	}
	if resp.StatusCode() != 200 || out.Token == nil || out.Token.ID == "" {
		return "", fmt.Errorf("create nls token failed (%d): %s", resp.StatusCode(), out.Message)
	}

	a.token = out.Token.ID
	a.tokenExpiry = time.Unix(out.Token.ExpireTime, 0)
	return a.token, nil
}

// signPOP computes the Aliyun RPC-style signature over the sorted query parameters.
func signPOP(method string, params map[string]string, secret string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, popEscape(k)+"="+popEscape(params[k]))
	}
	canonical := strings.Join(pairs, "&")
	toSign := method + "&" + popEscape("/") + "&" + popEscape(canonical)

	mac := hmac.New(sha1.New, []byte(secret+"&"))
	mac.Write([]byte(toSign))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func popEscape(s string) string {
	s = url.QueryEscape(s)
	s = strings.ReplaceAll(s, "+", "%20")
	s = strings.ReplaceAll(s, "*", "%2A")
	return strings.ReplaceAll(s, "%7E", "~")
}
