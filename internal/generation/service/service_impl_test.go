package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/inkwise/inkwise/internal/config"
	generationdomain "github.com/inkwise/inkwise/internal/generation/domain"
	ledgerdomain "github.com/inkwise/inkwise/internal/ledger/domain"
	ledgerservice "github.com/inkwise/inkwise/internal/ledger/service"
	"github.com/inkwise/inkwise/internal/llm"
	"github.com/inkwise/inkwise/internal/ratelimit"
	transcriptdomain "github.com/inkwise/inkwise/internal/transcript/domain"
	transcriptrepo "github.com/inkwise/inkwise/internal/transcript/repository"
	transcriptservice "github.com/inkwise/inkwise/internal/transcript/service"
	userdomain "github.com/inkwise/inkwise/internal/user/domain"
	userrepo "github.com/inkwise/inkwise/internal/user/repository"
	"github.com/inkwise/inkwise/pkg/db"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// stubUpstream scripts the upstream client: yield the fragments in order,
// then either finish cleanly or fail the way the real client does.
type stubUpstream struct {
	fragments   []string
	upstreamErr error
	onceText    string
	onceErr     error

	calls   int
	gotMsgs []llm.Message
	gotOnce string
}

func (s *stubUpstream) GenerateOnce(ctx context.Context, prompt string, p llm.Params) (string, error) {
	s.calls++
	s.gotOnce = prompt
	return s.onceText, s.onceErr
}

func (s *stubUpstream) GenerateStream(ctx context.Context, msgs []llm.Message, p llm.Params, yield func(string) error) (string, error) {
	s.calls++
	s.gotMsgs = msgs

	var accumulated string
	for _, fragment := range s.fragments {
		if err := yield(fragment); err != nil {
			return accumulated, nil
		}
		accumulated += fragment
	}
	if s.upstreamErr != nil {
		if accumulated != "" {
			_ = yield(llm.ErrorFragment())
		}
		return accumulated, s.upstreamErr
	}
	return accumulated, nil
}

// stubUsers serves GetByID straight from the table; the orchestrator uses
// nothing else from the user service.
type stubUsers struct {
	db   *gorm.DB
	repo userdomain.Repository
}

func (s *stubUsers) Register(context.Context, string, string) (*userdomain.User, error) {
	return nil, errors.New("not implemented")
}

func (s *stubUsers) Authenticate(context.Context, string, string) (*userdomain.User, error) {
	return nil, errors.New("not implemented")
}

func (s *stubUsers) UpdateProfile(context.Context, snowflake.ID, string, string) (*userdomain.User, error) {
	return nil, errors.New("not implemented")
}

func (s *stubUsers) GetByID(ctx context.Context, id snowflake.ID) (*userdomain.User, error) {
	user, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, userdomain.ErrNotFound
	}
	return user, nil
}

type fixture struct {
	svc      generationdomain.Service
	upstream *stubUpstream
	db       *gorm.DB
	node     *snowflake.Node
}

func setupGeneration(t *testing.T, upstream *stubUpstream) *fixture {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := gdb.AutoMigrate(&userdomain.User{}, &transcriptdomain.Transcript{}, &transcriptdomain.Message{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}

	limiter, err := ratelimit.NewGenerationLimiter(config.Config{})
	if err != nil {
		t.Fatalf("limiter: %v", err)
	}

	cfg := config.Config{}
	cfg.LLM.Model = "test-model"
	cfg.LLM.SystemPrompt = "You are a writing assistant."

	transcripts := transcriptservice.NewService(transcriptservice.Params{
		DB:    gdb,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  transcriptrepo.Provide(),
	})

	svc := NewService(Params{
		Cfg:         cfg,
		Log:         zap.NewNop(),
		Scopes:      db.NewScopeFactory(gdb),
		Users:       &stubUsers{db: gdb, repo: userrepo.Provide()},
		Ledger:      ledgerservice.NewService(ledgerservice.Params{Log: zap.NewNop()}),
		Transcripts: transcripts,
		Upstream:    upstream,
		Limiter:     limiter,
	})

	return &fixture{svc: svc, upstream: upstream, db: gdb, node: node}
}

func (f *fixture) seedUser(t *testing.T, tier userdomain.PlanTier, credits int64) snowflake.ID {
	t.Helper()
	now := time.Now().UTC()
	user := &userdomain.User{
		ID:           f.node.Generate(),
		Email:        fmt.Sprintf("%s@example.com", f.node.Generate()),
		PasswordHash: "x",
		PlanTier:     tier,
		Credits:      credits,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := f.db.Create(user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user.ID
}

func (f *fixture) loadUser(t *testing.T, id snowflake.ID) *userdomain.User {
	t.Helper()
	var user userdomain.User
	if err := f.db.First(&user, "id = ?", id).Error; err != nil {
		t.Fatalf("load user: %v", err)
	}
	return &user
}

func (f *fixture) loadMessages(t *testing.T, transcriptID snowflake.ID) []transcriptdomain.Message {
	t.Helper()
	var msgs []transcriptdomain.Message
	if err := f.db.Where("transcript_id = ?", transcriptID).Order("position asc").Find(&msgs).Error; err != nil {
		t.Fatalf("load messages: %v", err)
	}
	return msgs
}

func TestStreamPersistsAndSettles(t *testing.T) {
	f := setupGeneration(t, &stubUpstream{fragments: []string{"Once ", "upon ", "a time."}})
	userID := f.seedUser(t, userdomain.TierFree, 2)

	var streamed string
	result, err := f.svc.GenerateStream(context.Background(), generationdomain.Request{
		UserID: userID,
		Prompt: "Tell me a story",
	}, func(fragment string) error {
		streamed += fragment
		return nil
	})
	if err != nil {
		t.Fatalf("GenerateStream: %v", err)
	}

	if streamed != "Once upon a time." {
		t.Fatalf("streamed %q", streamed)
	}
	if result.Content != streamed {
		t.Fatalf("result content %q, streamed %q", result.Content, streamed)
	}

	msgs := f.loadMessages(t, result.TranscriptID)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != transcriptdomain.RoleUser || msgs[0].Content != "Tell me a story" {
		t.Fatalf("first message %+v", msgs[0])
	}
	if msgs[1].Role != transcriptdomain.RoleAssistant || msgs[1].Content != "Once upon a time." {
		t.Fatalf("second message %+v", msgs[1])
	}

	if credits := f.loadUser(t, userID).Credits; credits != 1 {
		t.Fatalf("expected 1 credit after settlement, got %d", credits)
	}
}

func TestStreamTitlesNewTranscriptFromPrompt(t *testing.T) {
	f := setupGeneration(t, &stubUpstream{fragments: []string{"ok"}})
	userID := f.seedUser(t, userdomain.TierFree, 1)

	prompt := "Write a long essay about the history of movable type printing"
	result, err := f.svc.GenerateStream(context.Background(), generationdomain.Request{UserID: userID, Prompt: prompt}, func(string) error { return nil })
	if err != nil {
		t.Fatalf("GenerateStream: %v", err)
	}

	var transcript transcriptdomain.Transcript
	if err := f.db.First(&transcript, "id = ?", result.TranscriptID).Error; err != nil {
		t.Fatalf("load transcript: %v", err)
	}
	if transcript.Title != transcriptdomain.TitleFromPrompt(prompt) {
		t.Fatalf("title %q", transcript.Title)
	}
}

func TestStreamContinuesExistingTranscript(t *testing.T) {
	upstream := &stubUpstream{fragments: []string{"Chapter two."}}
	f := setupGeneration(t, upstream)
	userID := f.seedUser(t, userdomain.TierFree, 5)

	first, err := f.svc.GenerateStream(context.Background(), generationdomain.Request{UserID: userID, Prompt: "Chapter one please"}, func(string) error { return nil })
	if err != nil {
		t.Fatalf("first generation: %v", err)
	}

	upstream.fragments = []string{"And then..."}
	second, err := f.svc.GenerateStream(context.Background(), generationdomain.Request{
		UserID:       userID,
		Prompt:       "Continue",
		TranscriptID: &first.TranscriptID,
	}, func(string) error { return nil })
	if err != nil {
		t.Fatalf("second generation: %v", err)
	}
	if second.TranscriptID != first.TranscriptID {
		t.Fatalf("expected same transcript, got %v and %v", first.TranscriptID, second.TranscriptID)
	}

	// The upstream saw system prompt, both prior turns and the new prompt.
	if len(upstream.gotMsgs) != 4 {
		t.Fatalf("expected 4 upstream messages, got %d: %+v", len(upstream.gotMsgs), upstream.gotMsgs)
	}
	if upstream.gotMsgs[0].Role != "system" {
		t.Fatalf("first upstream message %+v", upstream.gotMsgs[0])
	}
	if upstream.gotMsgs[3].Content != "Continue" {
		t.Fatalf("last upstream message %+v", upstream.gotMsgs[3])
	}

	msgs := f.loadMessages(t, first.TranscriptID)
	if len(msgs) != 4 {
		t.Fatalf("expected 4 stored messages, got %d", len(msgs))
	}
	for i, m := range msgs {
		if m.Position != i {
			t.Fatalf("message %d has position %d", i, m.Position)
		}
	}
}

func TestGateRejectsExhaustedBalance(t *testing.T) {
	upstream := &stubUpstream{fragments: []string{"x"}}
	f := setupGeneration(t, upstream)
	userID := f.seedUser(t, userdomain.TierFree, 1)

	if _, err := f.svc.GenerateStream(context.Background(), generationdomain.Request{UserID: userID, Prompt: "first"}, func(string) error { return nil }); err != nil {
		t.Fatalf("first generation: %v", err)
	}

	_, err := f.svc.GenerateStream(context.Background(), generationdomain.Request{UserID: userID, Prompt: "second"}, func(string) error { return nil })
	if !errors.Is(err, ledgerdomain.ErrInsufficientCredit) {
		t.Fatalf("expected ErrInsufficientCredit, got %v", err)
	}
	if upstream.calls != 1 {
		t.Fatalf("rejected request must not reach upstream, saw %d calls", upstream.calls)
	}
}

func TestFlexibleTierCountsUsage(t *testing.T) {
	f := setupGeneration(t, &stubUpstream{fragments: []string{"x"}})
	userID := f.seedUser(t, userdomain.TierFlexible, 0)

	for i := 0; i < 3; i++ {
		if _, err := f.svc.GenerateStream(context.Background(), generationdomain.Request{UserID: userID, Prompt: "go"}, func(string) error { return nil }); err != nil {
			t.Fatalf("generation %d: %v", i, err)
		}
	}

	user := f.loadUser(t, userID)
	if user.UsageCount != 3 {
		t.Fatalf("expected usage count 3, got %d", user.UsageCount)
	}
	if user.Credits != 0 {
		t.Fatalf("flexible tier must not touch credits, got %d", user.Credits)
	}
}

func TestUpstreamFailureStillBillsDeliveredText(t *testing.T) {
	upstream := &stubUpstream{
		fragments:   []string{"Partial "},
		upstreamErr: fmt.Errorf("%w: connection reset", llm.ErrUpstream),
	}
	f := setupGeneration(t, upstream)
	userID := f.seedUser(t, userdomain.TierFree, 2)

	var fragments []string
	result, err := f.svc.GenerateStream(context.Background(), generationdomain.Request{UserID: userID, Prompt: "write"}, func(fragment string) error {
		fragments = append(fragments, fragment)
		return nil
	})
	if !errors.Is(err, llm.ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}

	// The client saw the delivered text plus the in-band error notice.
	if len(fragments) != 2 || fragments[1] != llm.ErrorFragment() {
		t.Fatalf("fragments %q", fragments)
	}

	// Stored text excludes the notice; the delivered part is billed.
	msgs := f.loadMessages(t, result.TranscriptID)
	if len(msgs) != 2 || msgs[1].Content != "Partial " {
		t.Fatalf("stored messages %+v", msgs)
	}
	if credits := f.loadUser(t, userID).Credits; credits != 1 {
		t.Fatalf("expected 1 credit, got %d", credits)
	}
}

func TestUpstreamFailureBeforeContentKeepsCredit(t *testing.T) {
	f := setupGeneration(t, &stubUpstream{
		upstreamErr: fmt.Errorf("%w: 502", llm.ErrUpstream),
	})
	userID := f.seedUser(t, userdomain.TierFree, 2)

	var fragments []string
	_, err := f.svc.GenerateStream(context.Background(), generationdomain.Request{UserID: userID, Prompt: "write"}, func(fragment string) error {
		fragments = append(fragments, fragment)
		return nil
	})
	if !errors.Is(err, llm.ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
	if len(fragments) != 0 {
		t.Fatalf("nothing must reach the client before the failure, got %v", fragments)
	}
	if credits := f.loadUser(t, userID).Credits; credits != 2 {
		t.Fatalf("credit must be kept when nothing was produced, got %d", credits)
	}
}

func TestConsumerGoneStillPersistsAndSettles(t *testing.T) {
	f := setupGeneration(t, &stubUpstream{fragments: []string{"one", "two", "three"}})
	userID := f.seedUser(t, userdomain.TierFree, 2)

	delivered := 0
	result, err := f.svc.GenerateStream(context.Background(), generationdomain.Request{UserID: userID, Prompt: "go"}, func(string) error {
		delivered++
		if delivered == 2 {
			return errors.New("client went away")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("GenerateStream: %v", err)
	}

	msgs := f.loadMessages(t, result.TranscriptID)
	if len(msgs) != 2 || msgs[1].Content != "one" {
		t.Fatalf("stored messages %+v", msgs)
	}
	if credits := f.loadUser(t, userID).Credits; credits != 1 {
		t.Fatalf("expected 1 credit, got %d", credits)
	}
}

func TestGenerateOnceSettlesWithoutTranscript(t *testing.T) {
	f := setupGeneration(t, &stubUpstream{onceText: "done"})
	userID := f.seedUser(t, userdomain.TierFree, 3)

	result, err := f.svc.GenerateOnce(context.Background(), generationdomain.Request{UserID: userID, Prompt: "quick"})
	if err != nil {
		t.Fatalf("GenerateOnce: %v", err)
	}
	if result.Content != "done" {
		t.Fatalf("content %q", result.Content)
	}
	if credits := f.loadUser(t, userID).Credits; credits != 2 {
		t.Fatalf("expected 2 credits, got %d", credits)
	}

	var count int64
	if err := f.db.Model(&transcriptdomain.Transcript{}).Count(&count).Error; err != nil {
		t.Fatalf("count transcripts: %v", err)
	}
	if count != 0 {
		t.Fatalf("GenerateOnce must not create transcripts, found %d", count)
	}
}

func TestEmptyPromptRejected(t *testing.T) {
	f := setupGeneration(t, &stubUpstream{})
	userID := f.seedUser(t, userdomain.TierFree, 1)

	_, err := f.svc.GenerateStream(context.Background(), generationdomain.Request{UserID: userID, Prompt: "   "}, func(string) error { return nil })
	if !errors.Is(err, generationdomain.ErrEmptyPrompt) {
		t.Fatalf("expected ErrEmptyPrompt, got %v", err)
	}
}
