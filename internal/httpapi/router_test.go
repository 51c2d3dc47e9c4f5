package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	gormsqlite "github.com/glebarez/sqlite"
	"github.com/suPer8Hu/sealchat/internal/ai"
	"github.com/suPer8Hu/sealchat/internal/auth"
	"github.com/suPer8Hu/sealchat/internal/chat"
	"github.com/suPer8Hu/sealchat/internal/config"
	"github.com/suPer8Hu/sealchat/internal/db"
	"github.com/suPer8Hu/sealchat/internal/learning"
	"github.com/suPer8Hu/sealchat/internal/realtime"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func init() { gin.SetMode(gin.TestMode) }

const testSecret = "test-secret"

type scriptedLLM struct {
	chunks []string
}

func (s scriptedLLM) StreamChat(ctx context.Context, messages []ai.Message, sampling ai.Sampling) (<-chan string, <-chan error) {
	chunks := make(chan string)
	errs := make(chan error, 1)
	go func() {
		defer close(chunks)
		defer close(errs)
		for _, c := range s.chunks {
			select {
			case chunks <- c:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
	}()
	return chunks, errs
}

type testEnv struct {
	db     *gorm.DB
	router *gin.Engine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	gdb, err := gorm.Open(gormsqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cfg := config.Config{
		JWTSecret:      testSecret,
		AccessTokenTTL: time.Hour,
		UploadDir:      t.TempDir(),
	}
	learnRepo := learning.NewRepo(gdb)
	svc := chat.NewService(chat.Deps{
		Repo:      chat.NewRepo(gdb),
		LLM:       scriptedLLM{chunks: []string{"Hel", "lo"}},
		Events:    learning.NewDBRecorder(learnRepo),
		UploadDir: cfg.UploadDir,
	})

	return &testEnv{
		db: gdb,
		router: NewRouter(Deps{
			DB:       gdb,
			Cfg:      cfg,
			Chat:     svc,
			Learning: learning.NewService(learnRepo, nil),
		}),
	}
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode %s %s: %v (%s)", method, path, err, w.Body.String())
		}
	}
	return w, env
}

func (e *testEnv) registerAndLogin(t *testing.T, username string) string {
	t.Helper()
	w, _ := e.do(t, http.MethodPost, "/auth/register", "", gin.H{
		"username": username, "email": username + "@example.com", "password": "pw123456",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("register: %d %s", w.Code, w.Body.String())
	}
	w, env := e.do(t, http.MethodPost, "/auth/login", "", gin.H{"username": username, "password": "pw123456"})
	if w.Code != http.StatusOK {
		t.Fatalf("login: %d %s", w.Code, w.Body.String())
	}
	var tok struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	if err := json.Unmarshal(env.Data, &tok); err != nil || tok.AccessToken == "" || tok.TokenType != "bearer" {
		t.Fatalf("unexpected login payload: %s", env.Data)
	}
	return tok.AccessToken
}

func sseEvents(t *testing.T, body string) []map[string]string {
	t.Helper()
	var out []map[string]string
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev map[string]string
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			t.Fatalf("bad sse line %q: %v", line, err)
		}
		out = append(out, ev)
	}
	return out
}

func TestAuthFlow(t *testing.T) {
	e := newTestEnv(t)
	token := e.registerAndLogin(t, "capy")

	w, env := e.do(t, http.MethodPost, "/auth/register", "", gin.H{
		"username": "capy", "email": "other@example.com", "password": "x",
	})
	if w.Code != http.StatusBadRequest || env.Code != 10003 {
		t.Fatalf("duplicate register: %d %+v", w.Code, env)
	}

	w, env = e.do(t, http.MethodPost, "/auth/login", "", gin.H{"username": "capy", "password": "wrong"})
	if w.Code != http.StatusUnauthorized || env.Code != 40103 {
		t.Fatalf("bad password: %d %+v", w.Code, env)
	}

	w, env = e.do(t, http.MethodGet, "/auth/me", token, nil)
	if w.Code != http.StatusOK || !strings.Contains(string(env.Data), `"username":"capy"`) {
		t.Fatalf("me: %d %s", w.Code, w.Body.String())
	}

	var logins int64
	e.db.Model(&learning.Record{}).Where("event_type = ?", learning.EventLogin).Count(&logins)
	if logins != 1 {
		t.Fatalf("expected one login record, got %d", logins)
	}
}

func TestChatStream(t *testing.T) {
	e := newTestEnv(t)
	token := e.registerAndLogin(t, "seal")

	w, _ := e.do(t, http.MethodPost, "/api/chat", token, gin.H{"message": "你好"})
	if w.Code != http.StatusOK {
		t.Fatalf("chat: %d %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	events := sseEvents(t, w.Body.String())
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %v", events)
	}
	first, last := events[0], events[len(events)-1]
	if first["event"] != "session_update" || first["session_id"] == "" {
		t.Fatalf("first event = %v", first)
	}
	if events[1]["answer"]+events[2]["answer"] != "Hello" {
		t.Fatalf("answer deltas = %v", events[1:3])
	}
	if last["event"] != "done" || last["session_id"] != first["session_id"] {
		t.Fatalf("last event = %v", last)
	}

	sid := first["session_id"]
	w, env := e.do(t, http.MethodGet, "/api/messages/"+sid, token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("messages: %d %s", w.Code, w.Body.String())
	}
	var page struct {
		Messages []chat.Message `json:"messages"`
	}
	if err := json.Unmarshal(env.Data, &page); err != nil {
		t.Fatalf("decode messages: %v", err)
	}
	if len(page.Messages) != 2 || page.Messages[0].Role != ai.RoleUser || page.Messages[1].Content != "Hello" {
		t.Fatalf("stored history = %+v", page.Messages)
	}

	w, _ = e.do(t, http.MethodGet, "/api/sessions?mode=casual", token, nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), sid) {
		t.Fatalf("sessions: %d %s", w.Code, w.Body.String())
	}
}

func TestChatErrors(t *testing.T) {
	e := newTestEnv(t)
	owner := e.registerAndLogin(t, "owner")
	intruder := e.registerAndLogin(t, "intruder")

	w, env := e.do(t, http.MethodPost, "/api/chat", owner, gin.H{"message": "  "})
	if w.Code != http.StatusBadRequest || env.Code != 10002 {
		t.Fatalf("empty message: %d %+v", w.Code, env)
	}

	w, _ = e.do(t, http.MethodPost, "/api/chat", owner, gin.H{"message": "hi", "session_id": "s-owned"})
	if w.Code != http.StatusOK {
		t.Fatalf("owner chat: %d", w.Code)
	}

	w, env = e.do(t, http.MethodPost, "/api/chat", intruder, gin.H{"message": "hi", "session_id": "s-owned"})
	if w.Code != http.StatusNotFound || env.Code != 40004 {
		t.Fatalf("foreign session: %d %+v", w.Code, env)
	}

	w, _ = e.do(t, http.MethodGet, "/api/messages/s-owned", intruder, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("foreign history: %d", w.Code)
	}

	w, _ = e.do(t, http.MethodDelete, "/api/sessions/s-owned", owner, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete: %d %s", w.Code, w.Body.String())
	}
	w, _ = e.do(t, http.MethodGet, "/api/messages/s-owned", owner, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("deleted session still readable: %d", w.Code)
	}

	w, _ = e.do(t, http.MethodPost, "/api/chat", "", gin.H{"message": "hi"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous chat: %d", w.Code)
	}
}

func TestUploadAndTTSUnavailable(t *testing.T) {
	e := newTestEnv(t)
	token := e.registerAndLogin(t, "uploader")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "cat pic.png")
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	_, _ = fw.Write([]byte("\x89PNG\r\n\x1a\n"))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("upload: %d %s", w.Code, w.Body.String())
	}
	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	var up struct {
		URL string `json:"url"`
	}
	_ = json.Unmarshal(env.Data, &up)
	if !strings.HasPrefix(up.URL, "/uploads/") || !strings.HasSuffix(up.URL, "_cat_pic.png") {
		t.Fatalf("upload url = %q", up.URL)
	}

	w = httptest.NewRecorder()
	e.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, up.URL, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("static upload: %d", w.Code)
	}

	w, _ = e.do(t, http.MethodPost, "/api/tts", token, gin.H{"text": "hi"})
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("tts without backend: %d", w.Code)
	}
}

func TestRealtimeWebSocket(t *testing.T) {
	e := newTestEnv(t)
	srv := httptest.NewServer(e.router)
	defer srv.Close()

	token, err := auth.SignJWT(7, testSecret, time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws/chat/rt-1?token=" + token
	ws, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.CloseNow()

	var status realtime.Frame
	if err := wsjson.Read(ctx, ws, &status); err != nil {
		t.Fatalf("read status: %v", err)
	}
	if status.Type != realtime.FrameSystemStatus || status.Vision != "disabled" {
		t.Fatalf("status frame = %+v", status)
	}

	if err := ws.Write(ctx, websocket.MessageText, []byte("讲个笑话")); err != nil {
		t.Fatalf("write: %v", err)
	}

	var text strings.Builder
	for {
		var f realtime.Frame
		if err := wsjson.Read(ctx, ws, &f); err != nil {
			t.Fatalf("read: %v", err)
		}
		if f.Type == realtime.FrameDone {
			break
		}
		if f.Type == realtime.FrameText {
			text.WriteString(f.Content)
		}
	}
	if text.String() != "Hello" {
		t.Fatalf("realtime text = %q", text.String())
	}
	_ = ws.Close(websocket.StatusNormalClosure, "")

	var stored int64
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		e.db.Model(&chat.Message{}).Where("session_id = ?", "rt-1").Count(&stored)
		if stored == 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if stored != 2 {
		t.Fatalf("expected question and answer stored, got %d", stored)
	}
}

func TestRealtimeRejectsBadToken(t *testing.T) {
	e := newTestEnv(t)
	srv := httptest.NewServer(e.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ws, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/api/ws/chat/x?token=nope", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.CloseNow()

	_, _, err = ws.Read(ctx)
	if websocket.CloseStatus(err) != websocket.StatusPolicyViolation {
		t.Fatalf("expected policy violation, got %v", err)
	}
}
