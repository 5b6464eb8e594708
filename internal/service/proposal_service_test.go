package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/proposal/internal/ai"
	"github.com/xxxsen/proposal/internal/config"
	"github.com/xxxsen/proposal/internal/filestore"
	"github.com/xxxsen/proposal/internal/model"
	"github.com/xxxsen/proposal/internal/pipeline"
	appErr "github.com/xxxsen/proposal/internal/pkg/errors"
)

type memProfiles struct {
	mu     sync.Mutex
	byUser map[string]*model.Profile
}

func newMemProfiles() *memProfiles {
	return &memProfiles{byUser: map[string]*model.Profile{}}
}

func (m *memProfiles) Upsert(ctx context.Context, p *model.Profile) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.byUser[p.UserID]; ok {
		cur.CVText = p.CVText
		cur.Embedding = p.Embedding
		cur.EmbedModel = p.EmbedModel
		cur.SourceFile = p.SourceFile
		cur.Mtime = p.Mtime
		return cur.ID, nil
	}
	cp := *p
	m.byUser[p.UserID] = &cp
	return cp.ID, nil
}

func (m *memProfiles) GetByUser(ctx context.Context, userID string) (*model.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byUser[userID]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memProfiles) GetByID(ctx context.Context, id string) (*model.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.byUser {
		if p.ID == id {
			cp := *p
			return &cp, nil
		}
	}
	return nil, appErr.ErrNotFound
}

func (m *memProfiles) NearestByUser(ctx context.Context, userID string, vec []float32, k int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.byUser[userID]; ok {
		return []string{p.ID}, nil
	}
	return nil, nil
}

func (m *memProfiles) ListStale(ctx context.Context, embedModel string, limit int) ([]model.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Profile
	for _, p := range m.byUser {
		if p.EmbedModel != embedModel && len(out) < limit {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *memProfiles) UpdateEmbedding(ctx context.Context, id string, vec []float32, embedModel string, mtime int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.byUser {
		if p.ID == id {
			p.Embedding = vec
			p.EmbedModel = embedModel
			p.Mtime = mtime
			return nil
		}
	}
	return appErr.ErrNotFound
}

type memLibrary struct {
	mu    sync.Mutex
	items []model.SuccessfulProposal
}

func (m *memLibrary) Create(ctx context.Context, item *model.SuccessfulProposal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, *item)
	return nil
}

func (m *memLibrary) ListByUser(ctx context.Context, userID string, limit, offset int) ([]model.SuccessfulProposal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.SuccessfulProposal
	for _, item := range m.items {
		if item.UserID == userID {
			out = append(out, item)
		}
	}
	if offset >= len(out) {
		return []model.SuccessfulProposal{}, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memLibrary) NearestByUser(ctx context.Context, userID string, vec []float32, k int) ([]model.SuccessfulProposalMatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.SuccessfulProposalMatch
	for _, item := range m.items {
		if item.UserID == userID && len(out) < k {
			out = append(out, model.SuccessfulProposalMatch{SuccessfulProposal: item})
		}
	}
	return out, nil
}

type fakeEmbedder struct {
	mu    sync.Mutex
	model string
	calls int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return []float32{float32(len(text)), 1}, nil
}

func (f *fakeEmbedder) ModelName() string { return f.model }

// scriptedGenerator answers each stage by matching a phrase of its system
// prompt.
type scriptedGenerator struct {
	mu      sync.Mutex
	prompts []string
	err     error
}

func (g *scriptedGenerator) Chat(ctx context.Context, req *ai.ChatRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	system := req.Messages[0].Content
	user := req.Messages[len(req.Messages)-1].Content
	g.prompts = append(g.prompts, user)
	if g.err != nil {
		return "", g.err
	}
	switch {
	case strings.Contains(system, "analyzing freelance job postings"):
		return `{"coreProblem":"slow reports","projectGoal":"faster reports","tools":["Go"],"keyRequirements":[],
"tone":"technical","personalizationHooks":[],"priorities":["speed"]}`, nil
	case strings.Contains(system, "technical analysis"):
		return `{"feasibility":"yes","potentialRisks":"data size","solutionPlan":"batch jobs"}`, nil
	case strings.Contains(system, "strategic proposal consultant"):
		return `{"hook":"Reports take hours","restatedProblem":"slow","valueProposition":"Go expert",
"experiencePoints":[],"planPresentation":"batch","callToAction":"Can we talk?","rationale":"r"}`, nil
	case strings.Contains(system, "writing a proposal from an outline"):
		return "Reports taking hours is fixable.\n\n**Best**, Ann", nil
	case strings.Contains(system, "how well the candidate matches"):
		return `{"score":75,"strengths":["Go"],"gaps":["BI tools"]}`, nil
	}
	return "", errors.New("unexpected prompt")
}

func (g *scriptedGenerator) ModelName() string { return "scripted" }

func (g *scriptedGenerator) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

type testEnv struct {
	profiles  *memProfiles
	library   *memLibrary
	embedder  *fakeEmbedder
	gen       *scriptedGenerator
	profile   *ProfileService
	libSvc    *LibraryService
	proposals *ProposalService
}

func newTestEnv(t *testing.T, files filestore.Store) *testEnv {
	t.Helper()
	env := &testEnv{
		profiles: newMemProfiles(),
		library:  &memLibrary{},
		embedder: &fakeEmbedder{model: "embed-v1"},
		gen:      &scriptedGenerator{},
	}
	env.profile = NewProfileService(env.profiles, env.embedder, files)
	env.libSvc = NewLibraryService(env.library, env.embedder)
	p := pipeline.New(env.gen, pipeline.Config{CreativeTemperature: 0.7, ExperienceChars: 500})
	env.proposals = NewProposalService(pipeline.NewRetriever(env.embedder, env.profiles), p, env.libSvc)
	return env
}

const (
	testCV  = "Ann Smith. Go engineer, 8 years building reporting backends."
	testJob = "Need a Go dev to speed up our reports!!"
)

func TestGenerateProposalEndToEnd(t *testing.T) {
	env := newTestEnv(t, nil)
	require.GreaterOrEqual(t, len(testCV), 50)
	require.GreaterOrEqual(t, len(testJob), 30)

	_, err := env.profile.UploadCV(context.Background(), "u1", testCV)
	require.NoError(t, err)

	res, err := env.proposals.GenerateProposal(context.Background(), &GenerateRequest{UserID: "u1", JobDescription: testJob})
	require.NoError(t, err)
	assert.Equal(t, "Reports taking hours is fixable.\n\n**Best**, Ann", res.Proposal)
	assert.Contains(t, res.ProposalHTML, "<strong>Best</strong>")

	ctxVal, ok := pipeline.ParseContext(res.Context)
	require.True(t, ok)
	assert.Equal(t, model.ToneTechnical, ctxVal.JobExtraction.Tone)
	assert.Equal(t, "batch jobs", ctxVal.TechnicalAnalysis.SolutionPlan)
	assert.Equal(t, 4, env.gen.count())
}

func TestGenerateWithoutProfileMakesNoModelCalls(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.proposals.GenerateProposal(context.Background(), &GenerateRequest{UserID: "nobody", JobDescription: testJob})
	assert.ErrorIs(t, err, appErr.ErrProfileNotFound)
	assert.Equal(t, 0, env.gen.count())

	_, err = env.proposals.CalculateMatchScore(context.Background(), "nobody", testJob)
	assert.ErrorIs(t, err, appErr.ErrProfileNotFound)
	assert.Equal(t, 0, env.gen.count())
}

func TestRegenerateUsesRevisePrompt(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.profile.UploadCV(context.Background(), "u1", testCV)
	require.NoError(t, err)
	first, err := env.proposals.GenerateProposal(context.Background(), &GenerateRequest{UserID: "u1", JobDescription: testJob})
	require.NoError(t, err)

	_, err = env.proposals.GenerateProposal(context.Background(), &GenerateRequest{
		UserID:           "u1",
		JobDescription:   testJob,
		UserFeedback:     "mention dashboards",
		PreviousProposal: first.Proposal,
		PreviousContext:  first.Context,
	})
	require.NoError(t, err)
	assert.Equal(t, 8, env.gen.count())
	revise := env.gen.prompts[6]
	assert.Contains(t, revise, "Revise the proposal strategy")
	assert.Contains(t, revise, "mention dashboards")
}

func TestMatchScore(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.profile.UploadCV(context.Background(), "u1", testCV)
	require.NoError(t, err)
	score, err := env.proposals.CalculateMatchScore(context.Background(), "u1", testJob)
	require.NoError(t, err)
	assert.Equal(t, 75, score.Score)
	assert.Equal(t, []string{"BI tools"}, score.Gaps)
}

func TestEvaluateSharesRetrieval(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.profile.UploadCV(context.Background(), "u1", testCV)
	require.NoError(t, err)
	before := env.embedder.calls

	res, err := env.proposals.Evaluate(context.Background(), &GenerateRequest{UserID: "u1", JobDescription: testJob})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Proposal)
	assert.Equal(t, 75, res.MatchScore.Score)
	assert.Equal(t, 1, env.embedder.calls-before)
	assert.Equal(t, 5, env.gen.count())
}

func TestProposalAndScoreRunConcurrently(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.profile.UploadCV(context.Background(), "u1", testCV)
	require.NoError(t, err)

	wantProposal, err := env.proposals.GenerateProposal(context.Background(), &GenerateRequest{UserID: "u1", JobDescription: testJob})
	require.NoError(t, err)
	wantScore, err := env.proposals.CalculateMatchScore(context.Background(), "u1", testJob)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		var (
			wg       sync.WaitGroup
			proposal *GenerateResult
			score    *model.MatchScore
			errP     error
			errS     error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			proposal, errP = env.proposals.GenerateProposal(context.Background(), &GenerateRequest{UserID: "u1", JobDescription: testJob})
		}()
		go func() {
			defer wg.Done()
			score, errS = env.proposals.CalculateMatchScore(context.Background(), "u1", testJob)
		}()
		wg.Wait()
		require.NoError(t, errP)
		require.NoError(t, errS)
		assert.Equal(t, wantProposal.Proposal, proposal.Proposal)
		assert.Equal(t, wantProposal.Context, proposal.Context)
		assert.Equal(t, wantScore, score)
	}
}

func TestEvaluateFailsWhenBranchFails(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.profile.UploadCV(context.Background(), "u1", testCV)
	require.NoError(t, err)
	env.gen.err = appErr.ErrUpstream
	_, err = env.proposals.Evaluate(context.Background(), &GenerateRequest{UserID: "u1", JobDescription: testJob})
	assert.ErrorIs(t, err, appErr.ErrUpstream)
}

func TestGenerateUsesStyleReference(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.profile.UploadCV(context.Background(), "u1", testCV)
	require.NoError(t, err)
	_, err = env.libSvc.Save(context.Background(), "u1", "old reporting job", "my winning words", "")
	require.NoError(t, err)

	_, err = env.proposals.GenerateProposal(context.Background(), &GenerateRequest{UserID: "u1", JobDescription: testJob})
	require.NoError(t, err)
	assert.Contains(t, env.gen.prompts[3], "my winning words")
}

func TestUploadCVKeepsProfileID(t *testing.T) {
	env := newTestEnv(t, nil)
	first, err := env.profile.UploadCV(context.Background(), "u1", testCV)
	require.NoError(t, err)
	second, err := env.profile.UploadCV(context.Background(), "u1", testCV+" Updated.")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	p, err := env.profile.GetProfile(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(p.CVText, "Updated."))
	assert.Equal(t, "embed-v1", p.EmbedModel)
}

func TestTimestampsAreMillis(t *testing.T) {
	env := newTestEnv(t, nil)
	fixed := time.UnixMilli(1_700_000_000_123)
	env.profile.now = func() time.Time { return fixed }
	env.libSvc.now = func() time.Time { return fixed }

	_, err := env.profile.UploadCV(context.Background(), "u1", testCV)
	require.NoError(t, err)
	p, err := env.profile.GetProfile(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1_700_000_000_123), p.Ctime)
	assert.Equal(t, int64(1_700_000_000_123), p.Mtime)

	item, err := env.libSvc.Save(context.Background(), "u1", "job", "text", "")
	require.NoError(t, err)
	assert.Equal(t, int64(1_700_000_000_123), item.Ctime)
}

func TestUploadCVFileStoresOriginal(t *testing.T) {
	dir := t.TempDir()
	files, err := filestore.New(config.FileStoreConfig{Type: "local", Data: map[string]interface{}{"dir": dir}})
	require.NoError(t, err)
	env := newTestEnv(t, files)

	_, err = env.profile.UploadCVFile(context.Background(), "u1", "cv.txt", []byte(testCV+"\n"))
	require.NoError(t, err)
	p, err := env.profile.GetProfile(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, testCV, p.CVText)
	require.True(t, strings.HasPrefix(p.SourceFile, "u1/"))

	rc, err := files.Open(context.Background(), p.SourceFile)
	require.NoError(t, err)
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, testCV+"\n", string(raw))
}

func TestUploadCVFileRejectsUnsupported(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.profile.UploadCVFile(context.Background(), "u1", "cv.png", []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'})
	assert.ErrorIs(t, err, appErr.ErrUnsupportedFile)
}

func TestReembedStale(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.profile.UploadCV(context.Background(), "u1", testCV)
	require.NoError(t, err)
	_, err = env.profile.UploadCV(context.Background(), "u2", testCV)
	require.NoError(t, err)

	env.embedder.model = "embed-v2"
	n, err := env.profile.ReembedStale(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	p, err := env.profile.GetProfile(context.Background(), "u2")
	require.NoError(t, err)
	assert.Equal(t, "embed-v2", p.EmbedModel)

	n, err = env.profile.ReembedStale(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestLibraryList(t *testing.T) {
	env := newTestEnv(t, nil)
	for i := 0; i < 3; i++ {
		_, err := env.libSvc.Save(context.Background(), "u1", "job", "text", "")
		require.NoError(t, err)
	}
	items, err := env.libSvc.List(context.Background(), "u1", 2, 0)
	require.NoError(t, err)
	assert.Len(t, items, 2)
	matches, err := env.libSvc.Similar(context.Background(), "u1", "job", 0)
	require.NoError(t, err)
	assert.Len(t, matches, 3)
}
