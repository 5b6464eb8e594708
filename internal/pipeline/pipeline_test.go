package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/proposal/internal/ai"
	"github.com/xxxsen/proposal/internal/model"
	appErr "github.com/xxxsen/proposal/internal/pkg/errors"
)

const (
	extractionReply = `{"coreProblem":"manual lead entry","projectGoal":"automate leads","tools":["Zapier"],
"keyRequirements":["CRM sync"],"tone":"Casual","personalizationHooks":["uses GoHighLevel"],"priorities":["speed"]}`
	analysisReply = `{"feasibility":"doable now","potentialRisks":"api limits","solutionPlan":"webhook into CRM"}`
	outlineReply  = "```json\n" + `{"hook":"Your leads sit in a sheet","restatedProblem":"manual entry","valueProposition":"I automate CRMs",
"experiencePoints":["built 20 zaps"],"planPresentation":"webhook","callToAction":"Which CRM plan?","rationale":"fits"}` + "\n```"
	composeReply = "  Your leads sit in a sheet today.\n\nBest, Ann  "
	scoreReply   = `{"score":82,"strengths":["zapier"]}`
)

type recordingGenerator struct {
	mu       sync.Mutex
	requests []*ai.ChatRequest
	replies  map[string]string
	err      error
}

func newRecordingGenerator() *recordingGenerator {
	return &recordingGenerator{replies: map[string]string{
		extractionSystemPrompt:  extractionReply,
		analysisSystemPrompt:    analysisReply,
		outlineSystemPrompt:     outlineReply,
		compositionSystemPrompt: composeReply,
		scoreSystemPrompt:       scoreReply,
	}}
}

func (g *recordingGenerator) Chat(ctx context.Context, req *ai.ChatRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.err != nil {
		return "", g.err
	}
	return g.replies[req.Messages[0].Content], nil
}

func (g *recordingGenerator) ModelName() string { return "stub" }

func (g *recordingGenerator) userPrompt(system string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, req := range g.requests {
		if req.Messages[0].Content == system {
			return req.Messages[1].Content
		}
	}
	return ""
}

func (g *recordingGenerator) requestFor(system string) *ai.ChatRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, req := range g.requests {
		if req.Messages[0].Content == system {
			return req
		}
	}
	return nil
}

func newTestPipeline(gen ai.IGenerator) *Pipeline {
	return New(gen, Config{CreativeTemperature: 0.7, ExperienceChars: 500})
}

func TestRunFreshProposal(t *testing.T) {
	gen := newRecordingGenerator()
	res, err := newTestPipeline(gen).Run(context.Background(), &Request{
		JobDescription: "Need a Zapier expert to sync leads",
		CVText:         "Ann, automation engineer with 5 years of Zapier work",
	})
	require.NoError(t, err)
	assert.Equal(t, "Your leads sit in a sheet today.\n\nBest, Ann", res.Proposal)
	assert.Equal(t, OutlineFresh, res.Variant)
	assert.Equal(t, model.ToneCasual, res.Extraction.Tone)
	assert.Equal(t, "webhook into CRM", res.Analysis.SolutionPlan)
	assert.Equal(t, []string{"built 20 zaps"}, res.Outline.ExperiencePoints)
	require.Len(t, gen.requests, 4)

	assert.Contains(t, gen.userPrompt(outlineSystemPrompt), "Create a strategic outline")
	assert.NotContains(t, gen.userPrompt(outlineSystemPrompt), "Revise the proposal strategy")
	assert.True(t, gen.requestFor(extractionSystemPrompt).JSONMode)
	assert.Nil(t, gen.requestFor(extractionSystemPrompt).Temperature)
	assert.False(t, gen.requestFor(compositionSystemPrompt).JSONMode)
	require.NotNil(t, gen.requestFor(outlineSystemPrompt).Temperature)
	assert.Equal(t, 0.7, *gen.requestFor(outlineSystemPrompt).Temperature)
	assert.Equal(t, 0.7, *gen.requestFor(compositionSystemPrompt).Temperature)
}

func TestRunReviseWhenPreviousProposalSet(t *testing.T) {
	gen := newRecordingGenerator()
	res, err := newTestPipeline(gen).Run(context.Background(), &Request{
		JobDescription:   "Need a Zapier expert to sync leads",
		CVText:           "Ann, automation engineer",
		UserFeedback:     "shorter please",
		PreviousProposal: "old proposal text",
	})
	require.NoError(t, err)
	assert.Equal(t, OutlineRevise, res.Variant)
	prompt := gen.userPrompt(outlineSystemPrompt)
	assert.Contains(t, prompt, "Revise the proposal strategy")
	assert.Contains(t, prompt, "shorter please")
	assert.Contains(t, prompt, "old proposal text")
}

func TestOutlineReviseWithoutFeedback(t *testing.T) {
	gen := newRecordingGenerator()
	_, variant, err := newTestPipeline(gen).Outline(context.Background(), &OutlineInput{
		JobDescription:   "job",
		Extraction:       &model.JobExtraction{Tone: model.ToneFormal},
		Analysis:         &model.TechnicalAnalysis{},
		PreviousProposal: "prev",
	})
	require.NoError(t, err)
	assert.Equal(t, OutlineRevise, variant)
}

func TestExtractRejectsUnknownTone(t *testing.T) {
	gen := newRecordingGenerator()
	gen.replies[extractionSystemPrompt] = `{"coreProblem":"x","tone":"friendly"}`
	_, err := newTestPipeline(gen).Extract(context.Background(), "job")
	assert.ErrorIs(t, err, appErr.ErrMalformedOutput)
}

func TestExtractNormalisesSlices(t *testing.T) {
	gen := newRecordingGenerator()
	gen.replies[extractionSystemPrompt] = `{"coreProblem":"x","tone":" TECHNICAL "}`
	out, err := newTestPipeline(gen).Extract(context.Background(), "job")
	require.NoError(t, err)
	assert.Equal(t, model.ToneTechnical, out.Tone)
	assert.NotNil(t, out.Tools)
	assert.NotNil(t, out.Priorities)
}

func TestMalformedStageAbortsRun(t *testing.T) {
	gen := newRecordingGenerator()
	gen.replies[analysisSystemPrompt] = "sorry, I cannot help"
	_, err := newTestPipeline(gen).Run(context.Background(), &Request{JobDescription: "job", CVText: "cv"})
	assert.ErrorIs(t, err, appErr.ErrMalformedOutput)
	assert.Len(t, gen.requests, 2)
}

func TestUpstreamErrorPropagates(t *testing.T) {
	gen := newRecordingGenerator()
	gen.err = appErr.ErrUnavailable
	_, err := newTestPipeline(gen).Run(context.Background(), &Request{JobDescription: "job", CVText: "cv"})
	assert.ErrorIs(t, err, appErr.ErrUnavailable)
	assert.True(t, strings.HasPrefix(err.Error(), "extraction:"))
}

func TestScoreBounds(t *testing.T) {
	gen := newRecordingGenerator()
	out, err := newTestPipeline(gen).Score(context.Background(), "job", "cv")
	require.NoError(t, err)
	assert.Equal(t, 82, out.Score)
	assert.Equal(t, []string{}, out.Gaps)

	gen.replies[scoreSystemPrompt] = `{"score":140,"strengths":[],"gaps":[]}`
	_, err = newTestPipeline(gen).Score(context.Background(), "job", "cv")
	assert.ErrorIs(t, err, appErr.ErrMalformedOutput)
}

func TestComposeIncludesStyleReference(t *testing.T) {
	gen := newRecordingGenerator()
	_, err := newTestPipeline(gen).Compose(context.Background(), &ComposeInput{
		JobDescription: "job",
		CVText:         strings.Repeat("a", 800),
		Outline:        &model.ProposalOutline{Hook: "h"},
		StyleReference: "winning text",
	})
	require.NoError(t, err)
	prompt := gen.userPrompt(compositionSystemPrompt)
	assert.Contains(t, prompt, "winning text")
	assert.NotContains(t, prompt, strings.Repeat("a", 501))
}

func TestEmptyResponseIsMalformed(t *testing.T) {
	gen := newRecordingGenerator()
	gen.replies[compositionSystemPrompt] = "   "
	_, err := newTestPipeline(gen).Compose(context.Background(), &ComposeInput{Outline: &model.ProposalOutline{}})
	assert.ErrorIs(t, err, appErr.ErrMalformedOutput)
}

func TestContextRoundTrip(t *testing.T) {
	extraction := &model.JobExtraction{CoreProblem: "p", Tone: model.ToneFormal, Tools: []string{"Go"}}
	analysis := &model.TechnicalAnalysis{Feasibility: "f", PotentialRisks: "r", SolutionPlan: "s"}
	raw, err := EncodeContext(extraction, analysis)
	require.NoError(t, err)
	assert.Contains(t, raw, `"jobExtraction"`)
	assert.Contains(t, raw, `"technicalAnalysis"`)

	parsed, ok := ParseContext(raw)
	require.True(t, ok)
	assert.Equal(t, extraction, parsed.JobExtraction)
	assert.Equal(t, analysis, parsed.TechnicalAnalysis)

	_, ok = ParseContext("not json")
	assert.False(t, ok)
	_, ok = ParseContext(`{"jobExtraction":{}}`)
	assert.False(t, ok)
	_, ok = ParseContext("")
	assert.False(t, ok)
}

func TestDecodeObject(t *testing.T) {
	var out struct {
		A int `json:"a"`
	}
	require.NoError(t, decodeObject("t", "Here you go: {\"a\": 3} thanks", &out))
	assert.Equal(t, 3, out.A)
	assert.ErrorIs(t, decodeObject("t", "[1,2]", &out), appErr.ErrMalformedOutput)
	assert.ErrorIs(t, decodeObject("t", `{"a":"x"}`, &out), appErr.ErrMalformedOutput)
}

func TestClip(t *testing.T) {
	assert.Equal(t, "héllo", clip("héllo", 0))
	assert.Equal(t, "hé", clip("héllo", 2))
	assert.Equal(t, "ab", clip("ab", 5))
}

type fakeProfiles struct {
	ids      []string
	profiles map[string]*model.Profile
	err      error
	lastUser string
}

func (f *fakeProfiles) NearestByUser(ctx context.Context, userID string, vec []float32, k int) ([]string, error) {
	f.lastUser = userID
	return f.ids, f.err
}

func (f *fakeProfiles) GetByID(ctx context.Context, id string) (*model.Profile, error) {
	p, ok := f.profiles[id]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	return p, nil
}

type fixedEmbedder struct {
	err      error
	taskType string
}

func (f *fixedEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	f.taskType = taskType
	return []float32{1, 0}, f.err
}

func (f *fixedEmbedder) ModelName() string { return "e" }

func TestRetrieveFindsProfile(t *testing.T) {
	emb := &fixedEmbedder{}
	profiles := &fakeProfiles{ids: []string{"p1"}, profiles: map[string]*model.Profile{"p1": {ID: "p1", UserID: "u1", CVText: "cv"}}}
	res, err := NewRetriever(emb, profiles).Retrieve(context.Background(), "u1", "job")
	require.NoError(t, err)
	assert.Equal(t, "cv", res.Profile.CVText)
	assert.Equal(t, []float32{1, 0}, res.JobEmbedding)
	assert.Equal(t, ai.TaskRetrievalQuery, emb.taskType)
	assert.Equal(t, "u1", profiles.lastUser)
}

func TestRetrieveNoProfile(t *testing.T) {
	_, err := NewRetriever(&fixedEmbedder{}, &fakeProfiles{}).Retrieve(context.Background(), "nobody", "job")
	assert.ErrorIs(t, err, appErr.ErrProfileNotFound)
	assert.True(t, appErr.IsNotFound(err))

	_, err = NewRetriever(&fixedEmbedder{}, &fakeProfiles{ids: []string{"gone"}}).Retrieve(context.Background(), "u", "job")
	assert.ErrorIs(t, err, appErr.ErrProfileNotFound)
}

func TestRetrieveEmbedFailure(t *testing.T) {
	_, err := NewRetriever(&fixedEmbedder{err: errors.New("down")}, &fakeProfiles{}).Retrieve(context.Background(), "u", "job")
	require.Error(t, err)
	assert.False(t, appErr.IsNotFound(err))
}
