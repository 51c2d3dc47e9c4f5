package learning

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/suPer8Hu/sealchat/internal/ai"
)

var ErrEmptyEventType = errors.New("event_type is required")

const noAnalysis = "暂无分析数据，请点击生成。"

type Service struct {
	repo *Repo
	llm  ai.Provider
}

func NewService(repo *Repo, llm ai.Provider) *Service {
	return &Service{repo: repo, llm: llm}
}

func (s *Service) Track(ctx context.Context, userID uint64, eventType, content string, score *int) (*Record, error) {
	eventType = strings.TrimSpace(eventType)
	if eventType == "" {
		return nil, ErrEmptyEventType
	}
	rec := &Record{UserID: userID, EventType: eventType, Content: content, Score: score}
	if err := s.repo.Insert(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

type Activity struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	Score   *int   `json:"score"`
	Date    string `json:"date"`
}

type Dashboard struct {
	TotalLogins    int64      `json:"total_logins"`
	QuestionsAsked int64      `json:"questions_asked"`
	QuizAverage    float64    `json:"quiz_average"`
	RecentActivity []Activity `json:"recent_activity"`
	AIAnalysis     string     `json:"ai_analysis"`
}

func (s *Service) Dashboard(ctx context.Context, userID uint64) (*Dashboard, error) {
	logins, err := s.repo.CountByType(ctx, userID, EventLogin)
	if err != nil {
		return nil, fmt.Errorf("count logins: %w", err)
	}
	questions, err := s.repo.CountQuestions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("count questions: %w", err)
	}
	quizzes, err := s.repo.ListByType(ctx, userID, EventQuizResult)
	if err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}
	recent, err := s.repo.Recent(ctx, userID, 10)
	if err != nil {
		return nil, fmt.Errorf("recent activity: %w", err)
	}
	latest, err := s.repo.Latest(ctx, userID, EventAIAnalysis)
	if err != nil {
		return nil, fmt.Errorf("latest analysis: %w", err)
	}

	d := &Dashboard{
		TotalLogins:    logins,
		QuestionsAsked: questions,
		QuizAverage:    quizAverage(quizzes),
		RecentActivity: make([]Activity, 0, len(recent)),
		AIAnalysis:     noAnalysis,
	}
	for _, r := range recent {
		d.RecentActivity = append(d.RecentActivity, Activity{
			Type:    r.EventType,
			Content: r.Content,
			Score:   r.Score,
			Date:    r.CreatedAt.Format("2006-01-02 15:04"),
		})
	}
	if latest != nil {
		d.AIAnalysis = latest.Content
	}
	return d, nil
}

// quizAverage ignores records without a score and rounds to one decimal.
func quizAverage(quizzes []Record) float64 {
	var sum, n int
	for _, q := range quizzes {
		if q.Score != nil {
			sum += *q.Score
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return math.Round(float64(sum)/float64(n)*10) / 10
}

// Analyze asks the model for a short report over recent questions and quiz results,
// and stores the answer as an ai_analysis record.
func (s *Service) Analyze(ctx context.Context, userID uint64) (string, error) {
	if s.llm == nil {
		return "", errors.New("analysis model is not configured")
	}

	questions, err := s.repo.RecentQuestions(ctx, userID, 20)
	if err != nil {
		return "", fmt.Errorf("recent questions: %w", err)
	}
	quizzes, err := s.repo.ListByType(ctx, userID, EventQuizResult)
	if err != nil {
		return "", fmt.Errorf("list quizzes: %w", err)
	}

	cctx, cancel := context.WithTimeout(ctx, 90*time.Second)
	defer cancel()

	analysis, err := s.llm.Chat(cctx, []ai.Message{{Role: ai.RoleUser, Content: analysisPrompt(questions, quizzes)}})
	if err != nil {
		return "", err
	}
	if err := s.repo.Insert(ctx, &Record{UserID: userID, EventType: EventAIAnalysis, Content: analysis}); err != nil {
		return "", fmt.Errorf("save analysis: %w", err)
	}
	return analysis, nil
}

func analysisPrompt(questions []string, quizzes []Record) string {
	questionText := "暂无提问记录"
	if len(questions) > 0 {
		questionText = strings.Join(questions, "\n")
	}

	quizText := "暂无测验记录"
	if len(quizzes) > 0 {
		lines := make([]string, 0, len(quizzes))
		for _, q := range quizzes {
			score := "-"
			if q.Score != nil {
				score = fmt.Sprint(*q.Score)
			}
			lines = append(lines, fmt.Sprintf("分数: %s (详情: %s)", score, q.Content))
		}
		quizText = strings.Join(lines, "\n")
	}

	return fmt.Sprintf(`请根据以下学员数据生成一份简短的学习分析报告（Markdown格式）。

[最近提问]
%s

[测验成绩]
%s

请包含：
1. 学习兴趣点（基于提问）
2. 薄弱环节（基于低分测验或重复提问）
3. 学习建议`, questionText, quizText)
}
