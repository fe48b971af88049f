package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/inkwise/inkwise/internal/config"
	generationdomain "github.com/inkwise/inkwise/internal/generation/domain"
	ledgerdomain "github.com/inkwise/inkwise/internal/ledger/domain"
	"github.com/inkwise/inkwise/internal/llm"
	"github.com/inkwise/inkwise/internal/observability/metrics"
	"github.com/inkwise/inkwise/internal/ratelimit"
	transcriptdomain "github.com/inkwise/inkwise/internal/transcript/domain"
	userdomain "github.com/inkwise/inkwise/internal/user/domain"
	"github.com/inkwise/inkwise/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Cfg         config.Config
	Log         *zap.Logger
	Scopes      *db.ScopeFactory
	Users       userdomain.Service
	Ledger      ledgerdomain.Service
	Transcripts transcriptdomain.Service
	Upstream    llm.Client
	Limiter     *ratelimit.GenerationLimiter
	Metrics     *metrics.GenerationMetrics
}

type Service struct {
	cfg         config.Config
	log         *zap.Logger
	scopes      *db.ScopeFactory
	users       userdomain.Service
	ledger      ledgerdomain.Service
	transcripts transcriptdomain.Service
	upstream    llm.Client
	limiter     *ratelimit.GenerationLimiter
	metrics     *metrics.GenerationMetrics
}

func NewService(p Params) generationdomain.Service {
	return &Service{
		cfg:         p.Cfg,
		log:         p.Log.Named("generation.service"),
		scopes:      p.Scopes,
		users:       p.Users,
		ledger:      p.Ledger,
		transcripts: p.Transcripts,
		upstream:    p.Upstream,
		limiter:     p.Limiter,
		metrics:     p.Metrics,
	}
}

// GenerateStream holds the user's generation lock for the whole flow, so a
// second request from the same user waits until this one has settled. The
// credit balance it gated on therefore reflects every prior generation.
func (s *Service) GenerateStream(ctx context.Context, req generationdomain.Request, yield func(string) error) (*generationdomain.Result, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, generationdomain.ErrEmptyPrompt
	}

	release, err := s.limiter.LockUser(ctx, req.UserID.String())
	if err != nil {
		return nil, err
	}
	defer release()

	if err := s.gate(ctx, req.UserID); err != nil {
		return nil, err
	}

	transcript, history, err := s.resolveTranscript(ctx, req, prompt)
	if err != nil {
		return nil, err
	}

	msgs := s.buildMessages(history, prompt)
	s.metrics.RecordStarted("stream")

	content, genErr := s.upstream.GenerateStream(ctx, msgs, s.params(), yield)
	if genErr != nil {
		s.log.Warn("stream ended on upstream error",
			zap.Int64("user_id", int64(req.UserID)),
			zap.Int("accumulated_len", len(content)),
			zap.Error(genErr),
		)
	}

	if content == "" && genErr != nil {
		// Nothing was produced; the user keeps the credit.
		return nil, genErr
	}

	s.finalize(req.UserID, transcript.ID, prompt, content)

	return &generationdomain.Result{TranscriptID: transcript.ID, Content: content}, genErr
}

// GenerateOnce is the non-streaming path: full completion, no transcript.
func (s *Service) GenerateOnce(ctx context.Context, req generationdomain.Request) (*generationdomain.Result, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, generationdomain.ErrEmptyPrompt
	}

	release, err := s.limiter.LockUser(ctx, req.UserID.String())
	if err != nil {
		return nil, err
	}
	defer release()

	if err := s.gate(ctx, req.UserID); err != nil {
		return nil, err
	}

	s.metrics.RecordStarted("once")

	content, err := s.upstream.GenerateOnce(ctx, prompt, s.params())
	if err != nil {
		return nil, err
	}

	s.settle(req.UserID)

	return &generationdomain.Result{Content: content}, nil
}

func (s *Service) gate(ctx context.Context, userID snowflake.ID) error {
	ok, err := s.limiter.Allow(ctx, userID.String())
	if err != nil {
		return err
	}
	if !ok {
		return generationdomain.ErrRateLimited
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if !s.ledger.CanConsume(user) {
		s.metrics.RecordCreditRejection()
		return ledgerdomain.ErrInsufficientCredit
	}
	return nil
}

func (s *Service) resolveTranscript(ctx context.Context, req generationdomain.Request, prompt string) (*transcriptdomain.Transcript, []transcriptdomain.Message, error) {
	if req.TranscriptID != nil {
		return s.transcripts.Get(ctx, *req.TranscriptID, req.UserID)
	}

	transcript, err := s.transcripts.Create(ctx, req.UserID, transcriptdomain.TitleFromPrompt(prompt))
	if err != nil {
		return nil, nil, err
	}
	return transcript, nil, nil
}

func (s *Service) buildMessages(history []transcriptdomain.Message, prompt string) []llm.Message {
	msgs := make([]llm.Message, 0, len(history)+2)
	if system := strings.TrimSpace(s.cfg.LLM.SystemPrompt); system != "" {
		msgs = append(msgs, llm.Message{Role: string(transcriptdomain.RoleSystem), Content: system})
	}
	for _, m := range history {
		msgs = append(msgs, llm.Message{Role: string(m.Role), Content: m.Content})
	}
	return append(msgs, llm.Message{Role: string(transcriptdomain.RoleUser), Content: prompt})
}

func (s *Service) params() llm.Params {
	return llm.Params{
		Model:       s.cfg.LLM.Model,
		MaxTokens:   s.cfg.LLM.MaxTokens,
		Temperature: s.cfg.LLM.Temperature,
	}
}

// finalize persists the exchange and settles the ledger on storage scopes
// detached from the request: the user already received the content, so the
// originating context may be gone. Failures here are logged and swallowed;
// they must never claw back text that was delivered.
func (s *Service) finalize(userID, transcriptID snowflake.ID, prompt, content string) {
	ctx := context.Background()

	scope, err := s.scopes.Begin(ctx)
	if err != nil {
		s.metrics.RecordSettlementFailure()
		s.log.Error("finalize: open scope", zap.Error(err))
		return
	}
	defer scope.Close()

	err = s.transcripts.Append(ctx, scope.DB(), transcriptID, userID,
		transcriptdomain.Turn{Role: transcriptdomain.RoleUser, Content: prompt},
		transcriptdomain.Turn{Role: transcriptdomain.RoleAssistant, Content: content},
	)
	if err == nil {
		err = scope.Commit()
	}
	if err != nil {
		s.metrics.RecordSettlementFailure()
		s.log.Error("finalize: persist transcript",
			zap.Int64("transcript_id", int64(transcriptID)),
			zap.Error(err),
		)
		return
	}

	s.settle(userID)
}

func (s *Service) settle(userID snowflake.ID) {
	ctx := context.Background()

	settlement, err := s.ledger.Settle(ctx, s.scopes.Session(ctx), userID)
	if err != nil {
		s.metrics.RecordSettlementFailure()
		s.log.Error("finalize: settle ledger",
			zap.Int64("user_id", int64(userID)),
			zap.Error(err),
		)
		return
	}

	s.metrics.RecordSettled(string(settlement.Tier))
	s.log.Info("generation settled",
		zap.Int64("user_id", int64(userID)),
		zap.String("tier", string(settlement.Tier)),
		zap.Int64("credits", settlement.Credits),
		zap.Int64("usage_count", settlement.UsageCount),
	)
}
