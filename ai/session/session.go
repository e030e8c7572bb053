// Package session runs the design loop: draft generation, feedback-driven
// refinement and finalization, with a state machine guarding which
// operations are legal at each point.
package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"

	"github.com/KrolinaTF/IA4Edu/ai/core/llm"
	"github.com/KrolinaTF/IA4Edu/ai/draft"
	"github.com/KrolinaTF/IA4Edu/ai/feedback"
	"github.com/KrolinaTF/IA4Edu/ai/grouping"
	"github.com/KrolinaTF/IA4Edu/ai/metrics"
	"github.com/KrolinaTF/IA4Edu/ai/observability/logging"
	"github.com/KrolinaTF/IA4Edu/ai/retrieval"
	"github.com/KrolinaTF/IA4Edu/store"
)

// State is the position of a session in the design loop.
type State string

const (
	StateDraft            State = "draft"
	StateAwaitingFeedback State = "awaiting_feedback"
	StateRefining         State = "refining"
	StateValidating       State = "validating"
	StateFinalized        State = "finalized"
)

var (
	// ErrInvalidTransition reports an operation illegal in the current state.
	ErrInvalidTransition = errors.New("invalid session state transition")
	// ErrRoundLimit reports that the refinement round cap was reached;
	// the session can still be finalized with its current draft.
	ErrRoundLimit = errors.New("refinement round limit reached")
)

// FeedbackRecord is one teacher feedback entry with its classification
// outcome. Records are append-only.
type FeedbackRecord struct {
	ID         string            `json:"id"`
	ReceivedAt time.Time         `json:"recibido_en"`
	Text       string            `json:"texto"`
	Intents    []feedback.Intent `json:"intenciones"`
	// Applied is false when the refinement failed and the previous draft
	// was kept; Warning then explains why.
	Applied bool   `json:"aplicado"`
	Warning string `json:"aviso,omitempty"`
}

// Session is one design loop for one teacher request.
type Session struct {
	ID        string
	Request   string
	State     State
	CreatedAt time.Time

	Mode       store.GroupingMode
	Subject    string
	Assignment *grouping.Assignment
	References []retrieval.ScoredRecord

	Draft   *draft.ActivityDraft
	Round   int
	History []FeedbackRecord

	// FromFallback marks a draft built from the template fallback rather
	// than generated, so the teacher is told no model produced it.
	FromFallback bool
}

// Config tunes the design loop.
type Config struct {
	TopK         int
	GroupSize    int
	MaxRounds    int
	RetryBackoff time.Duration
}

// DefaultConfig returns the standard loop settings.
func DefaultConfig() Config {
	return Config{
		TopK:         3,
		GroupSize:    4,
		MaxRounds:    5,
		RetryBackoff: 2 * time.Second,
	}
}

// Manager drives sessions against the generation service, the retrieval
// engine and the classroom store.
type Manager struct {
	cfg        Config
	llm        llm.Service
	engine     *retrieval.Engine
	optimizer  *grouping.Optimizer
	classifier *feedback.Classifier
	parser     *draft.Parser
	validator  *validator
	store      *store.Store
	metrics    *metrics.Exporter
	logger     *logging.Logger
}

// NewManager creates a session manager.
func NewManager(cfg Config, svc llm.Service, engine *retrieval.Engine, st *store.Store, m *metrics.Exporter) *Manager {
	if cfg.TopK < 1 {
		cfg.TopK = DefaultConfig().TopK
	}
	if cfg.GroupSize < 2 {
		cfg.GroupSize = DefaultConfig().GroupSize
	}
	if cfg.MaxRounds < 1 {
		cfg.MaxRounds = DefaultConfig().MaxRounds
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = DefaultConfig().RetryBackoff
	}
	return &Manager{
		cfg:        cfg,
		llm:        svc,
		engine:     engine,
		optimizer:  grouping.NewOptimizer(),
		classifier: feedback.NewClassifier(),
		parser:     draft.NewParser(),
		validator:  newValidator(m),
		store:      st,
		metrics:    m,
		logger:     logging.Default().WithComponent("session"),
	}
}

// Start creates a session from a free-text request and produces its first
// draft. The session ends in StateAwaitingFeedback; a draft always exists,
// falling back to a library template when generation fails twice.
func (m *Manager) Start(ctx context.Context, request string) (*Session, error) {
	roster := m.store.Roster()
	if roster == nil || len(roster.Learners) == 0 {
		return nil, errors.New("no roster loaded")
	}

	sess := &Session{
		ID:        shortuuid.New(),
		Request:   request,
		State:     StateDraft,
		CreatedAt: time.Now(),
	}

	refs, err := m.engine.FindTopK(ctx, request, m.cfg.TopK)
	if err != nil {
		return nil, errors.Wrap(err, "reference retrieval")
	}
	if len(refs) == 0 {
		// Semantic search degraded; keyword match still beats nothing.
		refs = m.engine.SearchKeywords(request, m.cfg.TopK)
	}
	sess.References = refs

	sess.Mode, sess.Subject = m.resolveModeAndSubject(request, refs)
	assignment, err := m.optimizer.Assign(roster, grouping.PhaseExecution, sess.Mode, m.cfg.GroupSize, sess.Subject)
	if err != nil {
		return nil, errors.Wrap(err, "grouping")
	}
	sess.Assignment = assignment

	prompt := buildGenerationPrompt(request, roster, assignment, refs)
	d, fromFallback := m.generateDraft(ctx, sess, prompt)

	sess.State = StateValidating
	if _, err := m.validator.check(d, assignment, roster); err != nil {
		m.logger.Warn("initial draft rejected, using template fallback", "session", sess.ID, "error", err.Error())
		d = m.fallbackDraft(sess)
		fromFallback = true
	}

	sess.Draft = d
	sess.FromFallback = fromFallback
	sess.State = StateAwaitingFeedback
	m.logger.Info("session started", "session", sess.ID, "mode", string(sess.Mode),
		"references", len(refs), "fallback", fromFallback)
	return sess, nil
}

// Refine applies one round of teacher feedback. On any failure the previous
// valid draft is kept and the feedback record carries a warning; the session
// always returns to StateAwaitingFeedback.
func (m *Manager) Refine(ctx context.Context, sess *Session, feedbackText string) (*FeedbackRecord, error) {
	if sess.State != StateAwaitingFeedback {
		return nil, errors.Wrapf(ErrInvalidTransition, "refine from %s", sess.State)
	}
	if sess.Round >= m.cfg.MaxRounds {
		return nil, errors.Wrapf(ErrRoundLimit, "%d rounds", sess.Round)
	}

	sess.State = StateRefining
	sess.Round++
	m.metrics.RecordRefinementRound()

	record := FeedbackRecord{
		ID:         uuid.NewString(),
		ReceivedAt: time.Now(),
		Text:       feedbackText,
		Intents:    m.classifier.Classify(feedbackText),
	}

	m.maybeRegroup(sess, record.Intents, feedbackText)

	instructions := feedback.Instructions(record.Intents, feedbackText)
	prompt := buildRefinementPrompt(sess.Draft, instructions, sess.Assignment, m.store.Roster())

	newDraft, err := m.generateAndParse(ctx, prompt)
	if err != nil {
		record.Warning = "no se pudo generar una nueva versión, se mantiene la anterior"
		m.logger.Warn("refinement generation failed", "session", sess.ID, "error", err.Error())
		return m.closeRound(sess, record), nil
	}

	sess.State = StateValidating
	if _, err := m.validator.check(newDraft, sess.Assignment, m.store.Roster()); err != nil {
		record.Warning = "la nueva versión era inconsistente, se mantiene la anterior"
		m.logger.Warn("refined draft rejected", "session", sess.ID, "error", err.Error())
		return m.closeRound(sess, record), nil
	}

	sess.Draft = newDraft
	sess.FromFallback = false
	record.Applied = true
	return m.closeRound(sess, record), nil
}

// Finalize accepts the current draft, persists it and closes the session.
// It returns the path of the saved activity.
func (m *Manager) Finalize(sess *Session) (string, error) {
	if sess.State != StateAwaitingFeedback {
		return "", errors.Wrapf(ErrInvalidTransition, "finalize from %s", sess.State)
	}
	path, err := m.store.SaveFinalActivity(sess.Draft.Title, sess.Draft.Markdown(), sess.Draft)
	if err != nil {
		return "", errors.Wrap(err, "saving final activity")
	}
	sess.State = StateFinalized
	m.logger.Info("session finalized", "session", sess.ID, "rounds", sess.Round, "path", path)
	return path, nil
}

func (m *Manager) closeRound(sess *Session, record FeedbackRecord) *FeedbackRecord {
	sess.History = append(sess.History, record)
	sess.State = StateAwaitingFeedback
	return &sess.History[len(sess.History)-1]
}

// maybeRegroup rebuilds the assignment when grouping feedback names a
// different mode. Feedback about composition within the same mode keeps the
// assignment and lets the refinement instructions handle it.
func (m *Manager) maybeRegroup(sess *Session, intents []feedback.Intent, text string) {
	if !hasIntent(intents, feedback.IntentGrouping) {
		return
	}
	mode, ok := retrieval.DetectRequestMode(text)
	if !ok || mode == sess.Mode {
		return
	}
	assignment, err := m.optimizer.Assign(m.store.Roster(), grouping.PhaseExecution, mode, m.cfg.GroupSize, sess.Subject)
	if err != nil {
		m.logger.Warn("regrouping failed, keeping current groups", "session", sess.ID, "error", err.Error())
		return
	}
	sess.Mode = mode
	sess.Assignment = assignment
	m.logger.Info("groups rebuilt from feedback", "session", sess.ID, "mode", string(mode))
}

// generateDraft produces the first draft: one generation attempt with a
// provider retry, one reformat re-prompt on malformed output, then the
// template fallback.
func (m *Manager) generateDraft(ctx context.Context, sess *Session, prompt string) (*draft.ActivityDraft, bool) {
	d, err := m.generateAndParse(ctx, prompt)
	if err != nil {
		m.logger.Warn("generation failed, using template fallback", "session", sess.ID, "error", err.Error())
		return m.fallbackDraft(sess), true
	}
	return d, false
}

// generateAndParse calls the model and parses the output, re-prompting once
// with the format contract when the output is malformed.
func (m *Manager) generateAndParse(ctx context.Context, prompt string) (*draft.ActivityDraft, error) {
	raw, err := m.chatWithRetry(ctx, prompt)
	if err != nil {
		return nil, err
	}
	d, err := m.parser.Parse(raw)
	if err == nil {
		return d, nil
	}
	if !errors.Is(err, draft.ErrMalformedResponse) {
		return nil, err
	}

	m.logger.Warn("malformed generation output, re-prompting once")
	raw, err = m.chatWithRetry(ctx, buildReformatPrompt(raw))
	if err != nil {
		return nil, err
	}
	return m.parser.Parse(raw)
}

// chatWithRetry performs one generation call, retrying once after a backoff
// when the provider is unavailable.
func (m *Manager) chatWithRetry(ctx context.Context, prompt string) (string, error) {
	messages := []llm.Message{llm.SystemPrompt(systemPrompt), llm.UserMessage(prompt)}

	raw, stats, err := m.llm.Chat(ctx, messages)
	if err == nil {
		m.recordCall(stats)
		return raw, nil
	}
	if !errors.Is(err, llm.ErrProviderUnavailable) {
		m.metrics.RecordProviderFailure("chat")
		return "", err
	}

	m.metrics.RecordProviderFailure("chat")
	select {
	case <-time.After(m.cfg.RetryBackoff):
	case <-ctx.Done():
		return "", ctx.Err()
	}

	raw, stats, err = m.llm.Chat(ctx, messages)
	if err != nil {
		m.metrics.RecordProviderFailure("chat")
		return "", err
	}
	m.recordCall(stats)
	return raw, nil
}

func (m *Manager) recordCall(stats *llm.CallStats) {
	if stats == nil {
		return
	}
	m.metrics.RecordProviderCall("chat", float64(stats.TotalDurationMs)/1000)
}

// fallbackDraft builds the template draft from the best reference.
func (m *Manager) fallbackDraft(sess *Session) *draft.ActivityDraft {
	var best *store.ActivityRecord
	if len(sess.References) > 0 {
		best = sess.References[0].Record
	}
	d := draft.Fallback(sess.Request, best, m.store.Roster())
	d.Mode = sess.Mode
	return d
}

// resolveModeAndSubject picks the grouping mode, preferring what the
// request asks for and falling back to the best reference's modality. The
// subject steering partner choice likewise comes from the best reference.
func (m *Manager) resolveModeAndSubject(request string, refs []retrieval.ScoredRecord) (store.GroupingMode, string) {
	mode, ok := retrieval.DetectRequestMode(request)
	subject := ""
	if len(refs) > 0 {
		best := refs[0].Record
		if !ok {
			mode = best.Mode()
			ok = true
		}
		if len(best.Subjects) > 0 {
			subject = best.Subjects[0]
		}
	}
	if !ok {
		mode = store.ModeIndividual
	}
	return mode, subject
}

func hasIntent(intents []feedback.Intent, want feedback.Intent) bool {
	for _, i := range intents {
		if i == want {
			return true
		}
	}
	return false
}
