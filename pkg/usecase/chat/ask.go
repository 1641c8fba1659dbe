package chat

import (
	"context"
	"errors"
	"iter"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"

	"github.com/asadullah48/physical-ai-textbook-speckit/pkg/model"
	"github.com/asadullah48/physical-ai-textbook-speckit/pkg/utils/logging"
)

// Transcript markers for turns that end without a committed answer. The
// learner-visible failure notice is generic on purpose; the real error
// goes to the caller and the log.
const (
	cancelledNotice = "(answer cancelled before completion)"
	failedNotice    = "I ran into a problem while answering. Please try asking again."
)

const generationRetryDelay = 500 * time.Millisecond

// turn carries the state of one Ask invocation.
type turn struct {
	session  *model.Session
	seq      int // sequence number reserved for the assistant answer
	started  time.Time
	evidence []*model.Evidence
	prompt   *prompt
}

// Ask runs one tutoring turn. The returned sequence yields a sources
// frame, then answer text chunks, then a done frame. A non-nil error is
// terminal. Breaking out of the loop cancels the turn; the transcript
// gets a cancellation marker instead of a partial answer.
func (u *UseCase) Ask(ctx context.Context, input *model.AskInput) iter.Seq2[*model.Frame, error] {
	return func(yield func(*model.Frame, error) bool) {
		u.ask(ctx, input, yield)
	}
}

func (u *UseCase) ask(ctx context.Context, input *model.AskInput, yield func(*model.Frame, error) bool) {
	if err := input.Validate(); err != nil {
		yield(nil, err)
		return
	}

	id := input.SessionID
	if id == "" {
		id = model.NewSessionID()
	}

	// One turn per session at a time. Concurrent turns would interleave
	// sequence numbers in the transcript.
	release := u.gate.acquire(id)
	defer release()

	session, err := u.ensureSession(ctx, id, input)
	if err != nil {
		yield(nil, err)
		return
	}

	t := &turn{
		session: session,
		seq:     session.MessageCount + 1,
		started: time.Now(),
	}

	// The question is committed before anything can fail, so every turn
	// is visible in the transcript.
	history := session.Messages
	if err := u.repo.AppendMessages(ctx, session.ID, &model.Message{
		SequenceNumber: session.MessageCount,
		Role:           model.RoleUser,
		Text:           input.Question,
		CreatedAt:      time.Now(),
	}); err != nil {
		yield(nil, goerr.Wrap(err, "failed to record question"))
		return
	}

	evidence, err := u.retrieve(ctx, input)
	if err != nil {
		u.concludeFailed(ctx, t)
		yield(nil, err)
		return
	}
	t.evidence = evidence

	// Nothing relevant in the corpus and no passage to explain: answer
	// with the canned fallback instead of letting the model guess.
	if len(evidence) == 0 && input.Selection() == nil {
		u.concludeNotCovered(ctx, t, yield)
		return
	}

	p, err := u.assemble(input, history, evidence)
	if err != nil {
		u.concludeFailed(ctx, t)
		yield(nil, err)
		return
	}
	t.prompt = p

	if !yield(model.NewSourcesFrame(p.sources), nil) {
		u.concludeCancelled(ctx, t)
		return
	}

	answer, stopped, genErr := u.streamAnswer(ctx, p, yield)
	if stopped || ctx.Err() != nil {
		u.concludeCancelled(ctx, t)
		return
	}
	if genErr != nil {
		u.concludeFailed(ctx, t)
		yield(nil, genErr)
		return
	}

	citations := make([]model.ChunkID, 0, len(p.sources))
	for _, src := range p.sources {
		citations = append(citations, src.ChunkID)
	}

	if err := u.repo.AppendMessages(ctx, session.ID, &model.Message{
		SequenceNumber: t.seq,
		Role:           model.RoleAssistant,
		Text:           answer,
		CitedChunkIDs:  citations,
		CreatedAt:      time.Now(),
	}); err != nil {
		yield(nil, goerr.Wrap(err, "failed to record answer"))
		return
	}

	u.recordUsage(ctx, t, model.UsageAnswered)
	yield(model.NewDoneFrame(session.ID, citations), nil)
}

// AskSync runs Ask to completion and returns the collapsed answer.
func (u *UseCase) AskSync(ctx context.Context, input *model.AskInput) (*model.Answer, error) {
	answer := &model.Answer{}
	var text strings.Builder
	for frame, err := range u.Ask(ctx, input) {
		if err != nil {
			return nil, err
		}
		switch frame.Type {
		case model.FrameSources:
			answer.Sources = frame.Sources
		case model.FrameChunk:
			text.WriteString(frame.Text)
		case model.FrameDone:
			answer.SessionID = frame.SessionID
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	answer.Answer = text.String()
	return answer, nil
}

// streamAnswer yields answer chunks as they arrive and reports the full
// text, whether the consumer stopped the stream, and any generation
// error. One silent retry covers transient failures, but only before any
// text has reached the learner.
func (u *UseCase) streamAnswer(ctx context.Context, p *prompt, yield func(*model.Frame, error) bool) (string, bool, error) {
	genCtx, cancel := context.WithTimeout(ctx, u.generationTimeout)
	defer cancel()

	config := u.generationConfig(p.system)

	var text strings.Builder
	emitted := false

	attempt := func() (bool, error) {
		for resp, err := range u.gemini.GenerateStream(genCtx, p.contents, config) {
			if err != nil {
				return false, err
			}
			part := responseText(resp)
			if part == "" {
				continue
			}
			emitted = true
			text.WriteString(part)
			if !yield(model.NewChunkFrame(part), nil) {
				return true, nil
			}
		}
		return false, nil
	}

	stopped, err := attempt()
	if err != nil && !emitted && genCtx.Err() == nil {
		logging.From(ctx).Warn("retrying generation", "error", err)
		select {
		case <-genCtx.Done():
		case <-time.After(generationRetryDelay):
			stopped, err = attempt()
		}
	}
	if err != nil {
		return text.String(), stopped, u.mapGenerationError(genCtx, err)
	}
	return text.String(), stopped, nil
}

// mapGenerationError classifies a generation failure for the caller.
func (u *UseCase) mapGenerationError(genCtx context.Context, err error) error {
	if errors.Is(genCtx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return goerr.Wrap(model.ErrGeneratorTimeout, "generation timed out",
			goerr.V("timeout", u.generationTimeout), goerr.V("cause", err))
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return goerr.Wrap(model.ErrGeneratorUnavailable, "generator rejected the request",
			goerr.V("code", apiErr.Code), goerr.V("cause", err))
	}
	return goerr.Wrap(model.ErrGeneratorUnavailable, "generation failed", goerr.V("cause", err))
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}

// concludeNotCovered streams the canned out-of-scope answer and commits
// it like a normal turn.
func (u *UseCase) concludeNotCovered(ctx context.Context, t *turn, yield func(*model.Frame, error) bool) {
	if !yield(model.NewSourcesFrame(nil), nil) || !yield(model.NewChunkFrame(notCoveredAnswer), nil) {
		u.concludeCancelled(ctx, t)
		return
	}
	if err := u.repo.AppendMessages(ctx, t.session.ID, &model.Message{
		SequenceNumber: t.seq,
		Role:           model.RoleAssistant,
		Text:           notCoveredAnswer,
		CreatedAt:      time.Now(),
	}); err != nil {
		yield(nil, goerr.Wrap(err, "failed to record answer"))
		return
	}
	u.recordUsage(ctx, t, model.UsageAnswered)
	yield(model.NewDoneFrame(t.session.ID, nil), nil)
}

// concludeCancelled marks an interrupted turn. Partial answer text is
// discarded: a half answer in the transcript reads like a whole one.
func (u *UseCase) concludeCancelled(ctx context.Context, t *turn) {
	wctx := context.WithoutCancel(ctx)
	if err := u.repo.AppendMessages(wctx, t.session.ID, &model.Message{
		SequenceNumber: t.seq,
		Role:           model.RoleAssistant,
		Text:           cancelledNotice,
		CreatedAt:      time.Now(),
	}); err != nil {
		logging.From(ctx).Warn("failed to record cancellation marker", "error", err)
	}
	u.recordUsage(wctx, t, model.UsageCancelled)
}

// concludeFailed closes the transcript pair for a failed turn.
func (u *UseCase) concludeFailed(ctx context.Context, t *turn) {
	wctx := context.WithoutCancel(ctx)
	if err := u.repo.AppendMessages(wctx, t.session.ID, &model.Message{
		SequenceNumber: t.seq,
		Role:           model.RoleAssistant,
		Text:           failedNotice,
		CreatedAt:      time.Now(),
	}); err != nil {
		logging.From(ctx).Warn("failed to record failure notice", "error", err)
	}
	u.recordUsage(wctx, t, model.UsageFailed)
}

func (u *UseCase) recordUsage(ctx context.Context, t *turn, kind string) {
	event := &model.UsageEvent{
		Kind:          kind,
		SessionID:     t.session.ID,
		UserID:        t.session.UserID,
		LatencyMillis: time.Since(t.started).Milliseconds(),
		ChunkCount:    len(t.evidence),
		CreatedAt:     time.Now(),
	}
	if t.prompt != nil {
		event.PromptTokens = t.prompt.tokens
		event.CitationCount = len(t.prompt.sources)
	}
	if err := u.analytics.Insert(ctx, event); err != nil {
		logging.From(ctx).Warn("failed to record usage event", "error", err)
	}
}
