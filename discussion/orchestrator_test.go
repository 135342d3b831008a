package discussion

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hitolab/gdflow/audio"
	"github.com/hitolab/gdflow/config"
	"github.com/hitolab/gdflow/session"
	"github.com/hitolab/gdflow/synth"
	"github.com/hitolab/gdflow/testutil/mocks"
	"github.com/hitolab/gdflow/types"
)

// fakeSpeaker answers every turn through SpeakFunc and records what
// was said.
type fakeSpeaker struct {
	mu        sync.Mutex
	SpeakFunc func(req *synth.Request) (string, error)
	spoke     []string
	said      []string
}

func (f *fakeSpeaker) Speak(ctx context.Context, req *synth.Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	text := "なるほどです。"
	var err error
	if f.SpeakFunc != nil {
		text, err = f.SpeakFunc(req)
	}
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	f.spoke = append(f.spoke, text)
	f.mu.Unlock()
	return text, nil
}

func (f *fakeSpeaker) Say(ctx context.Context, text string, voice types.VoiceProfile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	f.said = append(f.said, text)
	f.mu.Unlock()
	return nil
}

func (f *fakeSpeaker) spokeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.spoke)
}

func (f *fakeSpeaker) saidTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.said...)
}

// fakeVoice lets tests stage facilitator speech ahead of time. Drain
// is a no-op so a staged signal survives until the listen window opens.
type fakeVoice struct {
	start chan struct{}
	segs  chan audio.Segment
}

func newFakeVoice() *fakeVoice {
	return &fakeVoice{start: make(chan struct{}, 1), segs: make(chan audio.Segment, 4)}
}

func (v *fakeVoice) SpeechStarted() <-chan struct{} { return v.start }

func (v *fakeVoice) Segments() <-chan audio.Segment { return v.segs }

func (v *fakeVoice) DrainStartSignal() {}

func (v *fakeVoice) stageUtterance() {
	v.start <- struct{}{}
	v.segs <- audio.Segment{PCM: []byte{1, 2}, Duration: time.Second}
}

// fakeMentions pops scripted verdicts, defaulting to none.
type fakeMentions struct {
	mu    sync.Mutex
	queue []Mention
}

func (f *fakeMentions) Classify(ctx context.Context, text string, names []string) (Mention, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue) == 0 {
		return Mention{}, nil
	}
	m := f.queue[0]
	f.queue = f.queue[1:]
	return m, nil
}

type endRecorder struct {
	session.NopListener
	mu      sync.Mutex
	reasons []session.EndReason
	scores  []*types.FacilitationScore
}

func (r *endRecorder) OnSessionEnded(reason session.EndReason, score *types.FacilitationScore) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reasons = append(r.reasons, reason)
	r.scores = append(r.scores, score)
}

func (r *endRecorder) ended() []session.EndReason {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]session.EndReason, len(r.reasons))
	copy(out, r.reasons)
	return out
}

func (r *endRecorder) lastScore() *types.FacilitationScore {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.scores) == 0 {
		return nil
	}
	return r.scores[len(r.scores)-1]
}

// fakeScorer hands back a fixed single-point score.
type fakeScorer struct{}

func (fakeScorer) Score(ctx context.Context, sess *session.Session) types.FacilitationScore {
	sc := types.NewFacilitationScore(types.ScoreMethodKeyword)
	sc.Set(types.RubricGoalSetting, types.ItemVerdict{Achieved: true})
	return sc
}

func fastCfg() config.DiscussionConfig {
	return config.DiscussionConfig{
		MaxChainDepth:      3,
		DepthDecayTop:      0.7,
		DepthDecayDeep:     0.5,
		HumanReentryFactor: 0,
		ListenWindow:       5 * time.Millisecond,
		SilenceTimeout:     time.Hour,
		Timing: config.TimingConfig{
			BaseDelay:      time.Millisecond,
			ActivityWeight: 0,
			MinDelay:       time.Millisecond,
			JitterMax:      0,
		},
	}
}

type fixture struct {
	orch    *Orchestrator
	sess    *session.Session
	speaker *fakeSpeaker
	voice   *fakeVoice
	ends    *endRecorder
}

func newFixture(t *testing.T, cfg config.DiscussionConfig, mentions MentionClassifier, stt []string, activities map[string]float64) *fixture {
	t.Helper()
	var ais []*types.Participant
	for _, name := range []string{"田中", "鈴木", "佐藤"} {
		if a, ok := activities[name]; ok {
			ais = append(ais, types.NewPersona(name, types.PersonaProfile{ActivityLevel: a}))
		}
	}
	ends := &endRecorder{}
	sess := session.New("リモートワーク導入の是非", session.NewRoster(types.NewHuman("facilitator"), ais...),
		10*time.Minute, session.WithListener(ends), session.WithLogger(zap.NewNop()))
	speaker := &fakeSpeaker{}
	voice := newFakeVoice()
	if mentions == nil {
		mentions = &fakeMentions{}
	}
	orch := New(cfg, Deps{
		Session:  sess,
		Provider: mocks.NewLLMProvider(),
		Speaker:  speaker,
		STT:      mocks.NewSTTProvider(stt...),
		Voice:    voice,
		Mentions: mentions,
	}, 7)
	return &fixture{orch: orch, sess: sess, speaker: speaker, voice: voice, ends: ends}
}

func speakerNamed(name string) func(req *synth.Request) (string, error) {
	return func(req *synth.Request) (string, error) {
		return "そうですね、" + name + "はそう思います。", nil
	}
}

func TestProcessUtterance_DirectQuestionRoutesToAddressedOnly(t *testing.T) {
	cfg := fastCfg()
	cfg.MaxChainDepth = 1
	mentions := &fakeMentions{queue: []Mention{
		{Mentioned: []string{"鈴木"}, IsDirectQuestion: true},
	}}
	f := newFixture(t, cfg, mentions, nil, map[string]float64{"田中": 0.8, "鈴木": 0.2})
	f.orch.setState(StateActiveDiscussion)

	f.speaker.SpeakFunc = func(req *synth.Request) (string, error) {
		require.Contains(t, req.System, "鈴木", "only the addressed persona may speak")
		return "賛成です。", nil
	}

	f.orch.ProcessUtterance(context.Background(), "facilitator",
		"鈴木さん、どう思いますか？", types.NewChain("facilitator", cfg.MaxChainDepth))

	all := f.sess.Transcript.All()
	require.Len(t, all, 2)
	assert.Equal(t, "facilitator", all[0].SpeakerID)
	assert.Equal(t, "鈴木", all[1].SpeakerID)
	assert.Equal(t, "賛成です。", all[1].Text)
}

func TestProcessUtterance_MentionedPersonaAlwaysResponds(t *testing.T) {
	cfg := fastCfg()
	cfg.MaxChainDepth = 1
	// a passing mention, not a direct question
	mentions := &fakeMentions{queue: []Mention{
		{Mentioned: []string{"鈴木"}, IsDirectQuestion: false},
	}}
	f := newFixture(t, cfg, mentions, nil, map[string]float64{"田中": 0.8, "鈴木": 0})
	f.orch.setState(StateActiveDiscussion)

	f.orch.ProcessUtterance(context.Background(), "facilitator",
		"鈴木さんの先ほどの話にもつながりますね", types.NewChain("facilitator", cfg.MaxChainDepth))

	assert.NotEmpty(t, f.sess.Transcript.BySpeaker("鈴木"),
		"a mentioned persona responds even at zero activity")
	assert.Empty(t, f.sess.Transcript.BySpeaker("田中"),
		"the mention takes the only slot under the cap")
}

func TestProcessUtterance_DeclinedReentryStartsSilenceBranch(t *testing.T) {
	cfg := fastCfg()
	cfg.MaxChainDepth = 2
	cfg.HumanReentryFactor = 1.0
	cfg.DepthDecayTop = 1.0
	f := newFixture(t, cfg, nil, nil, map[string]float64{"田中": 1.0})
	f.orch.setState(StateActiveDiscussion)

	var instructions []string
	f.speaker.SpeakFunc = func(req *synth.Request) (string, error) {
		instructions = append(instructions, req.Messages[len(req.Messages)-1].Content)
		return "では私から続けます。", nil
	}

	f.orch.ProcessUtterance(context.Background(), "facilitator",
		"皆さんどうぞ", types.NewChain("facilitator", cfg.MaxChainDepth))

	require.Equal(t, []string{selfInitiateInstruction}, instructions,
		"the declined floor offer restarts from silence, not the queued reaction")
	assert.Len(t, f.sess.Transcript.BySpeaker("田中"), 1)
}

func TestProcessUtterance_HumanSpeechAbandonsSiblings(t *testing.T) {
	cfg := fastCfg()
	cfg.MaxChainDepth = 2
	cfg.DepthDecayTop = 1.0
	cfg.DepthDecayDeep = 1.0
	f := newFixture(t, cfg, nil, []string{"ちょっと待ってください"}, map[string]float64{"田中": 1.0, "鈴木": 1.0})
	f.orch.setState(StateActiveDiscussion)

	// the facilitator starts talking before any persona gets a word in
	f.voice.stageUtterance()

	f.orch.ProcessUtterance(context.Background(), "facilitator",
		"皆さんの意見を聞かせてください", types.NewChain("facilitator", cfg.MaxChainDepth))

	all := f.sess.Transcript.All()
	require.GreaterOrEqual(t, len(all), 2)
	assert.Equal(t, "facilitator", all[1].SpeakerID, "interjection preempts every AI sibling")
	assert.Equal(t, "ちょっと待ってください", all[1].Text)
	// the chain continues below the interjection, one level deeper
	if len(all) > 2 {
		assert.NotEqual(t, "facilitator", all[2].SpeakerID)
	}
}

func TestProcessUtterance_ExpiredClockFreezesEverything(t *testing.T) {
	f := newFixture(t, fastCfg(), nil, nil, map[string]float64{"田中": 1.0})
	f.sess.Clock = types.NewSessionClockAt(time.Nanosecond, func() time.Time { return time.Now() })
	f.sess.Clock.Start()
	time.Sleep(time.Millisecond)

	f.orch.ProcessUtterance(context.Background(), "facilitator",
		"これは間に合わなかった発言です", types.NewChain("facilitator", 3))

	assert.Equal(t, StateEnded, f.orch.State())
	assert.Zero(t, f.sess.Transcript.Len(), "nothing is recorded after expiry")
	assert.Zero(t, f.speaker.spokeCount())
	assert.Equal(t, []session.EndReason{session.EndReasonTimeExpired}, f.ends.ended())
}

func TestEnd_DeliversFinalScoreWithEvent(t *testing.T) {
	f := newFixture(t, fastCfg(), nil, nil, map[string]float64{"田中": 1.0})
	f.orch.scorer = fakeScorer{}
	f.sess.Clock = types.NewSessionClockAt(time.Nanosecond, time.Now)
	f.sess.Clock.Start()
	time.Sleep(time.Millisecond)

	f.orch.ProcessUtterance(context.Background(), "facilitator",
		"間に合わなかった発言", types.NewChain("facilitator", 3))

	require.Equal(t, []session.EndReason{session.EndReasonTimeExpired}, f.ends.ended())
	final := f.ends.lastScore()
	require.NotNil(t, final, "the ended event carries the assessment")
	assert.Equal(t, 1, final.Total)
}

func TestProcessUtterance_ChainTerminates(t *testing.T) {
	cfg := fastCfg()
	cfg.DepthDecayTop = 1.0
	cfg.DepthDecayDeep = 1.0
	f := newFixture(t, cfg, nil, nil, map[string]float64{"田中": 1.0, "鈴木": 1.0, "佐藤": 1.0})
	f.orch.setState(StateActiveDiscussion)

	done := make(chan struct{})
	go func() {
		f.orch.ProcessUtterance(context.Background(), "facilitator",
			"自由に議論してください", types.NewChain("facilitator", cfg.MaxChainDepth))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("reaction chain did not terminate")
	}
	assert.NotEqual(t, StateEnded, f.orch.State())
	assert.Greater(t, f.sess.Transcript.Len(), 1)
}

func TestRun_FirstUtteranceTriggersBootstrapAndArmsClock(t *testing.T) {
	cfg := fastCfg()
	// even maximally eager personas draw no reactions on the opening turn
	f := newFixture(t, cfg, nil, []string{"本日は新しい勤務制度について話します"}, map[string]float64{"田中": 1.0, "鈴木": 1.0})

	f.voice.stageUtterance()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- f.orch.Run(ctx) }()

	require.Eventually(t, func() bool {
		return f.orch.State() == StateActiveDiscussion
	}, 5*time.Second, 5*time.Millisecond)

	assert.True(t, f.sess.Clock.Started(), "clock arms once the bootstrap finishes")

	all := f.sess.Transcript.All()
	require.Len(t, all, 3, "the opening utterance plus two introductions, no reactions")
	assert.Equal(t, "facilitator", all[0].SpeakerID, "the facilitator opens, introductions follow")
	assert.Equal(t, "田中", all[1].SpeakerID)
	assert.Equal(t, "鈴木", all[2].SpeakerID)

	// kickoff announcement was spoken after the introductions
	assert.Contains(t, f.speaker.saidTexts(), KickoffText)

	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)
	assert.Equal(t, StateEnded, f.orch.State())
	assert.Equal(t, []session.EndReason{session.EndReasonStopped}, f.ends.ended())
}

func TestRun_NothingPlaysBeforeFacilitatorOpens(t *testing.T) {
	f := newFixture(t, fastCfg(), nil, nil, map[string]float64{"田中": 1.0, "鈴木": 1.0})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- f.orch.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, f.sess.Transcript.Len(), "no introductions until the facilitator speaks")
	assert.Empty(t, f.speaker.saidTexts())
	assert.Zero(t, f.speaker.spokeCount())

	cancel()
	<-errCh
}

func TestRun_SilenceBeforeFirstUtteranceKeepsWaiting(t *testing.T) {
	cfg := fastCfg()
	cfg.SilenceTimeout = 10 * time.Millisecond
	f := newFixture(t, cfg, nil, nil, map[string]float64{"田中": 0.5})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- f.orch.Run(ctx) }()

	// well past the silence timeout, nothing self-initiates and the
	// clock stays idle because the facilitator has not opened yet
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, StateAwaitingFirstUtterance, f.orch.State())
	assert.False(t, f.sess.Clock.Started())
	assert.Zero(t, f.speaker.spokeCount())

	cancel()
	<-errCh
}

func TestRun_SilenceTimeoutTriggersSelfInitiation(t *testing.T) {
	cfg := fastCfg()
	cfg.MaxChainDepth = 1
	cfg.SilenceTimeout = 20 * time.Millisecond
	f := newFixture(t, cfg, nil, []string{"始めましょう"}, map[string]float64{"田中": 0.9, "鈴木": 0.1})

	f.voice.stageUtterance()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- f.orch.Run(ctx) }()

	// after the opening utterance the room goes quiet; the most
	// active persona should break the silence
	require.Eventually(t, func() bool {
		return len(f.sess.Transcript.BySpeaker("田中")) >= 2 // intro + self-initiated remark
	}, 5*time.Second, 5*time.Millisecond)

	cancel()
	<-errCh
}
