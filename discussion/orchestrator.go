// Package discussion drives turn-taking for a voice-mediated group
// discussion: one human facilitator, several AI personas, and a
// reaction-chain model that decides who speaks next and when the human
// gets the floor back.
package discussion

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hitolab/gdflow/audio"
	"github.com/hitolab/gdflow/config"
	"github.com/hitolab/gdflow/internal/metrics"
	"github.com/hitolab/gdflow/llm"
	"github.com/hitolab/gdflow/session"
	"github.com/hitolab/gdflow/speech"
	"github.com/hitolab/gdflow/synth"
	"github.com/hitolab/gdflow/types"
)

// State is the orchestrator lifecycle.
type State string

const (
	StateAwaitingFirstUtterance State = "awaiting_first_utterance"
	StateActiveDiscussion       State = "active_discussion"
	StateEnded                  State = "ended"
)

// transcriptWindow is how many recent utterances a persona sees before
// token budgeting trims further.
const transcriptWindow = 12

// VoiceInput feeds facilitator speech into the orchestrator. The
// audio.Capture gate satisfies it.
type VoiceInput interface {
	SpeechStarted() <-chan struct{}
	Segments() <-chan audio.Segment
	DrainStartSignal()
}

// Speaker voices persona turns. The synth.Synthesizer satisfies it.
type Speaker interface {
	Speak(ctx context.Context, req *synth.Request) (string, error)
	Say(ctx context.Context, text string, voice types.VoiceProfile) error
}

// Scorer produces the final assessment delivered with the
// session-ended event. The score.Scorer satisfies it.
type Scorer interface {
	Score(ctx context.Context, sess *session.Session) types.FacilitationScore
}

// Deps are the orchestrator's collaborators. Scorer may be nil; the
// session-ended event then carries no score.
type Deps struct {
	Session  *session.Session
	Provider llm.Provider
	Speaker  Speaker
	STT      speech.STTProvider
	Voice    VoiceInput
	Mentions MentionClassifier
	Scorer   Scorer
	Metrics  *metrics.Collector
	Logger   *zap.Logger
}

// Orchestrator runs one discussion session. Run and ProcessUtterance
// execute on a single goroutine; only State is safe to read from
// outside.
type Orchestrator struct {
	cfg          config.DiscussionConfig
	sess         *session.Session
	provider     llm.Provider
	speaker      Speaker
	stt          speech.STTProvider
	voice        VoiceInput
	mentions     MentionClassifier
	scorer       Scorer
	selector     *Selector
	timing       *TimingModel
	estimator    *llm.TokenEstimator
	windowTokens int
	metrics      *metrics.Collector
	logger       *zap.Logger

	mu    sync.Mutex
	state State
}

// New creates an orchestrator. The seed fixes selection and timing
// randomness for reproducible sessions.
func New(cfg config.DiscussionConfig, deps Deps, seed int64) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		cfg:          cfg,
		sess:         deps.Session,
		provider:     deps.Provider,
		speaker:      deps.Speaker,
		stt:          deps.STT,
		voice:        deps.Voice,
		mentions:     deps.Mentions,
		scorer:       deps.Scorer,
		selector:     NewSelector(cfg, seed),
		timing:       NewTimingModel(cfg.Timing, seed+1),
		estimator:    llm.NewTokenEstimator(),
		windowTokens: 6000,
		metrics:      deps.Metrics,
		logger:       logger.With(zap.String("component", "orchestrator")),
		state:        StateAwaitingFirstUtterance,
	}
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// Run waits for the facilitator to open the session and loops until
// the session clock expires or the context ends. The facilitator's
// first utterance triggers the introduction round and kickoff; the
// clock arms only once that bootstrap has finished, so setup time is
// free.
func (o *Orchestrator) Run(ctx context.Context) error {
	human := o.sess.Roster.Human()
	for {
		if o.State() == StateEnded {
			return nil
		}
		clock := o.sess.Clock
		if clock.Started() && clock.Expired() {
			o.end(session.EndReasonTimeExpired)
			return nil
		}

		// before the first utterance there is no timeout at all
		var timer *time.Timer
		var timeoutC <-chan time.Time
		if o.State() == StateActiveDiscussion {
			wait := o.cfg.SilenceTimeout
			if r := clock.Remaining(); r < wait {
				wait = r
			}
			timer = time.NewTimer(wait)
			timeoutC = timer.C
		}

		select {
		case <-ctx.Done():
			stopTimer(timer)
			o.end(session.EndReasonStopped)
			return ctx.Err()
		case seg, ok := <-o.voice.Segments():
			stopTimer(timer)
			if !ok {
				o.end(session.EndReasonStopped)
				return nil
			}
			text := o.transcribe(ctx, seg)
			if text == "" {
				continue
			}
			o.sess.SetSpeaker(human.ID)
			o.ProcessUtterance(ctx, human.ID, text, types.NewChain(human.ID, o.cfg.MaxChainDepth))
			if o.sess.Clock.Started() && o.State() != StateEnded {
				o.sess.AnnounceRemaining()
			}
		case <-timeoutC:
			if clock.Expired() {
				o.end(session.EndReasonTimeExpired)
				return nil
			}
			o.selfInitiate(ctx)
		}
	}
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}

// bootstrap runs once, on the facilitator's opening utterance: every
// persona introduces itself, the kickoff announcement hands the floor
// back, and the session clock arms. The opening utterance itself draws
// no reactions.
func (o *Orchestrator) bootstrap(ctx context.Context) {
	if err := o.introRound(ctx); err != nil {
		return
	}
	if err := o.speaker.Say(ctx, KickoffText, types.VoiceProfile{}); err != nil {
		if ctx.Err() != nil {
			return
		}
		o.logger.Warn("kickoff playback failed", zap.Error(err))
	}
	if o.State() == StateEnded {
		return
	}
	o.sess.StartClock()
	o.setState(StateActiveDiscussion)
}

// introRound has each persona introduce itself. Generation runs in
// parallel; playback stays in roster order.
func (o *Orchestrator) introRound(ctx context.Context) error {
	ais := o.sess.Roster.AIs()
	texts := make([]string, len(ais))

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range ais {
		i, p := i, p
		g.Go(func() error {
			resp, err := o.provider.Generate(gctx, &llm.GenerateRequest{
				System:   personaSystem(p, o.sess.Theme),
				Messages: []llm.Message{{Role: llm.RoleUser, Content: introInstruction}},
			})
			if err != nil {
				o.logger.Warn("introduction generation failed",
					zap.String("persona", p.ID), zap.Error(err))
				return nil
			}
			texts[i] = resp.Text
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, p := range ais {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		text := strings.Join(synth.SplitSentences(synth.CleanupMarkdown(texts[i])), "")
		if text == "" {
			text = fmt.Sprintf("%sです。よろしくお願いします。", p.ID)
		}
		o.sess.SetSpeaker(p.ID)
		if err := o.speaker.Say(ctx, text, p.Persona.Voice); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			o.logger.Warn("introduction playback failed",
				zap.String("persona", p.ID), zap.Error(err))
		}
		o.sess.Record(p.ID, text)
	}
	return nil
}

// ProcessUtterance records one utterance and drives the reactions it
// provokes, recursing for each reply until the chain exhausts, the
// facilitator takes the floor back, or the clock runs out.
func (o *Orchestrator) ProcessUtterance(ctx context.Context, speakerID, text string, chain types.ReactionChainContext) {
	if o.State() == StateEnded {
		return
	}
	if o.sess.Clock.Started() && o.sess.Clock.Expired() {
		o.end(session.EndReasonTimeExpired)
		return
	}
	sp, ok := o.sess.Roster.ByID(speakerID)
	if !ok {
		o.logger.Warn("utterance from unknown speaker dropped", zap.String("speaker", speakerID))
		return
	}

	o.sess.Record(speakerID, text)
	o.metrics.ObserveTurn(string(sp.Kind))
	o.logger.Debug("utterance processed",
		zap.String("speaker", speakerID),
		zap.Int("depth", chain.Depth))

	if o.State() == StateAwaitingFirstUtterance {
		if sp.IsHuman() {
			o.bootstrap(ctx)
		}
		return
	}

	if !sp.IsHuman() {
		if role, claimed := DetectRoleClaim(text); claimed {
			o.sess.ClaimRole(role, speakerID)
		}
	}
	if chain.Exhausted() {
		o.metrics.ObserveChainDepth(chain.Depth)
		return
	}

	respondents, direct := o.chooseRespondents(ctx, sp, text, chain)
	o.metrics.ObserveRespondents(len(respondents))
	if len(respondents) == 0 {
		o.metrics.ObserveChainDepth(chain.Depth)
		return
	}

	// offer the floor back to the facilitator before personas pile in;
	// a declined offer restarts from the silence branch instead of the
	// queued reactions
	if !direct && o.selector.HumanReentry(chain) {
		if htext, spoke := o.listen(ctx, o.cfg.ListenWindow); spoke {
			o.humanInterjects(ctx, htext, chain)
		} else {
			o.selfInitiate(ctx)
		}
		return
	}

	for _, r := range respondents {
		if o.State() == StateEnded || ctx.Err() != nil {
			return
		}
		if o.sess.Clock.Started() && o.sess.Clock.Expired() {
			o.end(session.EndReasonTimeExpired)
			return
		}

		wait := o.timing.Delay(r.Persona.ActivityLevel)
		if wait < o.cfg.ListenWindow {
			wait = o.cfg.ListenWindow
		}
		if htext, spoke := o.listen(ctx, wait); spoke {
			// human speech trumps every pending sibling
			o.metrics.ObserveInterruption()
			o.humanInterjects(ctx, htext, chain)
			return
		}

		spoken, err := o.speakAs(ctx, r, reactionInstruction)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			o.logger.Warn("persona turn failed", zap.String("persona", r.ID), zap.Error(err))
			continue
		}
		if spoken == "" {
			continue
		}
		o.ProcessUtterance(ctx, r.ID, spoken, chain.Child(r.ID))
	}
}

func (o *Orchestrator) humanInterjects(ctx context.Context, text string, chain types.ReactionChainContext) {
	human := o.sess.Roster.Human()
	o.sess.SetSpeaker(human.ID)
	o.ProcessUtterance(ctx, human.ID, text, chain.Child(human.ID))
}

// chooseRespondents resolves who reacts. A direct question to named
// participants short-circuits probabilistic selection: exactly the
// addressed personas answer.
func (o *Orchestrator) chooseRespondents(ctx context.Context, sp *types.Participant, text string, chain types.ReactionChainContext) ([]*types.Participant, bool) {
	candidates := lo.Filter(o.sess.Roster.AIs(), func(p *types.Participant, _ int) bool {
		return p.ID != sp.ID
	})
	if len(candidates) == 0 {
		return nil, false
	}

	m, err := o.mentions.Classify(ctx, text, o.sess.Roster.Names())
	if err != nil {
		m = Mention{}
	}
	if m.IsDirectQuestion {
		addressed := lo.Filter(candidates, func(p *types.Participant, _ int) bool {
			return lo.Contains(m.Mentioned, p.ID)
		})
		if len(addressed) > 0 {
			sortByActivity(addressed)
			return addressed, true
		}
	}
	return o.selector.SelectRespondents(candidates, m.Mentioned, chain), false
}

// listen waits up to window for the facilitator to start speaking and,
// if they do, waits the utterance out and transcribes it.
func (o *Orchestrator) listen(ctx context.Context, window time.Duration) (string, bool) {
	o.voice.DrainStartSignal()
	timer := time.NewTimer(window)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return "", false
	case <-timer.C:
		return "", false
	case <-o.voice.SpeechStarted():
	}

	select {
	case <-ctx.Done():
		return "", false
	case seg, ok := <-o.voice.Segments():
		if !ok {
			return "", false
		}
		text := o.transcribe(ctx, seg)
		return text, text != ""
	}
}

func (o *Orchestrator) transcribe(ctx context.Context, seg audio.Segment) string {
	start := time.Now()
	resp, err := o.stt.Transcribe(ctx, &speech.STTRequest{Audio: seg.PCM})
	o.metrics.ObserveProviderCall(o.stt.Name(), "transcribe", time.Since(start), err)
	if err != nil {
		o.logger.Warn("transcription failed", zap.Error(err))
		return ""
	}
	return strings.TrimSpace(resp.Text)
}

func (o *Orchestrator) speakAs(ctx context.Context, p *types.Participant, instruction string) (string, error) {
	o.sess.SetSpeaker(p.ID)
	req := &synth.Request{
		System:   personaSystem(p, o.sess.Theme),
		Messages: o.estimator.TrimToBudget(conversationMessages(o.sess.Transcript.Window(transcriptWindow), p.ID, instruction), o.windowTokens),
		Voice:    p.Persona.Voice,
	}
	if o.sess.Clock.Started() {
		req.Deadline = time.Now().Add(o.sess.Clock.Remaining())
	}
	return o.speaker.Speak(ctx, req)
}

// selfInitiate lets a persona break a silence and open a fresh chain.
func (o *Orchestrator) selfInitiate(ctx context.Context) {
	if o.State() != StateActiveDiscussion {
		return
	}
	p := o.selector.SelectInitiator(o.sess.Roster.AIs())
	if p == nil {
		return
	}
	o.logger.Info("silence broken, persona takes initiative", zap.String("persona", p.ID))
	spoken, err := o.speakAs(ctx, p, selfInitiateInstruction)
	if err != nil || spoken == "" {
		return
	}
	o.ProcessUtterance(ctx, p.ID, spoken, types.NewChain(p.ID, o.cfg.MaxChainDepth))
}

func (o *Orchestrator) end(reason session.EndReason) {
	o.mu.Lock()
	if o.state == StateEnded {
		o.mu.Unlock()
		return
	}
	o.state = StateEnded
	o.mu.Unlock()

	// scoring runs on its own context so a cancelled run still gets
	// its assessment delivered with the event
	var final *types.FacilitationScore
	if o.scorer != nil {
		sc := o.scorer.Score(context.Background(), o.sess)
		final = &sc
	}
	o.sess.End(reason, final)
}
