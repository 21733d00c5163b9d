package backup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tumblrbackup/internal/downloader"
	"tumblrbackup/pkg/auth"
	"tumblrbackup/pkg/config"
	apperrors "tumblrbackup/pkg/errors"
	"tumblrbackup/pkg/logger"
	"tumblrbackup/pkg/metrics"
	"tumblrbackup/pkg/store"
	"tumblrbackup/pkg/tumblr"
)

const goodToken = "good-token"

type fakeDownloader struct {
	mu          sync.Mutex
	calls       int
	concurrency int
	summary     downloader.Summary
	err         error
}

func (f *fakeDownloader) DownloadPending(ctx context.Context, concurrency int) (downloader.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.concurrency = concurrency
	return f.summary, f.err
}

type fakePrompter struct {
	tokens *auth.TokenPair
	err    error
	calls  int
}

func (f *fakePrompter) PromptTokens(ctx context.Context) (*auth.TokenPair, error) {
	f.calls++
	return f.tokens, f.err
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Tumblr.ConsumerKey = "ck"
	cfg.Tumblr.ConsumerSecret = "cs"
	cfg.Pagination.PageDelay = 0
	cfg.Download.Concurrency = 3
	return cfg
}

func userInfo(blogs ...string) *tumblr.UserInfo {
	user := &tumblr.User{Name: "someone"}
	for _, b := range blogs {
		user.Blogs = append(user.Blogs, tumblr.Blog{Name: b})
	}
	return &tumblr.UserInfo{User: user}
}

// factoryFor accepts only goodToken; other tokens get a client whose
// identity check fails with a 401
func factoryFor(remote *fakeRemote, created *[]tumblr.Credentials) ClientFactory {
	return func(creds tumblr.Credentials) (RemoteClient, error) {
		if created != nil {
			*created = append(*created, creds)
		}
		if creds.AccessToken != goodToken {
			return &fakeRemote{infoErr: &apperrors.Error{
				Type: apperrors.ErrorTypeAuth, Message: "401 not authorized", Code: 401,
			}}, nil
		}
		return remote, nil
	}
}

type harness struct {
	cfg        *config.Config
	remote     *fakeRemote
	tokens     *auth.MockStore
	prompter   *fakePrompter
	downloader *fakeDownloader
	store      *store.Store
	log        *logger.TestLogger
	created    []tumblr.Credentials
}

func newHarness(t *testing.T, stored *auth.TokenPair) *harness {
	t.Helper()
	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "archive.db"),
		store.Options{Logger: logger.NewNopLogger()})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	return &harness{
		cfg:        testConfig(),
		remote:     &fakeRemote{info: userInfo("x"), pages: map[string][]int{}},
		tokens:     auth.NewMockStore(stored),
		downloader: &fakeDownloader{},
		store:      s,
		log:        logger.NewTestLogger(),
	}
}

func (h *harness) orchestrator(t *testing.T, m *metrics.Metrics) *Orchestrator {
	t.Helper()
	deps := Dependencies{
		Config:     h.cfg,
		Tokens:     auth.NewManagerWithStores(h.tokens),
		NewClient:  factoryFor(h.remote, &h.created),
		Store:      h.store,
		Downloader: h.downloader,
		Logger:     h.log,
		Metrics:    m,
	}
	if h.prompter != nil {
		deps.Prompter = h.prompter
	}
	o, err := NewOrchestrator(deps)
	require.NoError(t, err)
	return o
}

func goodPair() *auth.TokenPair {
	return &auth.TokenPair{AccessToken: goodToken, AccessTokenSecret: "secret"}
}

func TestRunPersistsAllPagesOfBlog(t *testing.T) {
	h := newHarness(t, goodPair())
	h.remote.pages["x"] = []int{20, 5}
	h.remote.idBase = map[string]int64{"x": 1000}
	h.downloader.summary = downloader.Summary{Attempted: 2, Succeeded: 1}

	o := h.orchestrator(t, nil)
	assert.Equal(t, StateUnauthenticated, o.State())

	report, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateDone, o.State())
	assert.Equal(t, StateDone, report.State)
	assert.Equal(t, "someone", report.User)
	assert.Equal(t, 25, report.TotalPosts)
	assert.Equal(t, 25, report.NewPosts)
	assert.Empty(t, report.FailedBlogs)
	assert.Equal(t, h.downloader.summary, report.Media)
	assert.Len(t, h.remote.Calls(), 2)

	st, err := h.store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(25), st.Posts)

	assert.Equal(t, 1, h.downloader.calls)
	assert.Equal(t, 3, h.downloader.concurrency)
}

func TestRunSecondPassStoresNothingNew(t *testing.T) {
	h := newHarness(t, goodPair())
	h.remote.pages["x"] = []int{20, 5}

	_, err := h.orchestrator(t, nil).Run(context.Background())
	require.NoError(t, err)

	report, err := h.orchestrator(t, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 25, report.TotalPosts)
	assert.Equal(t, 0, report.NewPosts)
}

func TestRunWalksBlogsInOrder(t *testing.T) {
	h := newHarness(t, goodPair())
	h.remote.info = userInfo("a", "b")
	h.remote.pages["a"] = []int{3}
	h.remote.pages["b"] = []int{4}
	h.remote.idBase = map[string]int64{"a": 100, "b": 200}

	report, err := h.orchestrator(t, nil).Run(context.Background())
	require.NoError(t, err)

	calls := h.remote.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "a", calls[0].Blog)
	assert.Equal(t, "b", calls[1].Blog)

	require.Len(t, report.Blogs, 2)
	assert.Equal(t, BlogResult{Blog: "a", Total: 3, New: 3, Pages: 1}, report.Blogs[0])
	assert.Equal(t, BlogResult{Blog: "b", Total: 4, New: 4, Pages: 1}, report.Blogs[1])
	assert.Equal(t, 7, report.TotalPosts)
}

func TestRunRemoteErrorAbortsOnlyThatBlog(t *testing.T) {
	h := newHarness(t, goodPair())
	h.remote.info = userInfo("broken", "fine")
	h.remote.failAt = map[string]error{"broken": apperrors.NewRemoteAPIError("500 server error", 500, nil)}
	h.remote.pages["fine"] = []int{2}

	report, err := h.orchestrator(t, nil).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateDone, report.State)
	require.Contains(t, report.FailedBlogs, "broken")
	assert.True(t, apperrors.IsRemoteAPI(report.FailedBlogs["broken"]))
	assert.Equal(t, 2, report.TotalPosts)
	assert.Equal(t, 1, h.downloader.calls)
	assert.True(t, h.log.HasError())
}

func TestRunAuthErrorMidRunFails(t *testing.T) {
	h := newHarness(t, goodPair())
	h.remote.info = userInfo("x", "y")
	h.remote.failAt = map[string]error{"x": &apperrors.Error{Type: apperrors.ErrorTypeAuth, Message: "401", Code: 401}}
	h.remote.pages["y"] = []int{1}

	o := h.orchestrator(t, nil)
	report, err := o.Run(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsAuth(err))
	assert.Equal(t, StateFailed, o.State())
	assert.Equal(t, StateFailed, report.State)
	assert.Len(t, h.remote.Calls(), 1, "no further blogs after an auth error")
	assert.Equal(t, 0, h.downloader.calls)
}

func TestRunFallsBackToPromptedTokens(t *testing.T) {
	h := newHarness(t, &auth.TokenPair{AccessToken: "stale", AccessTokenSecret: "stale"})
	h.prompter = &fakePrompter{tokens: goodPair()}
	h.remote.pages["x"] = []int{1}

	report, err := h.orchestrator(t, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateDone, report.State)
	assert.Equal(t, 1, h.prompter.calls)
	assert.Equal(t, 1, h.tokens.Saves())

	saved, err := h.tokens.Load()
	require.NoError(t, err)
	assert.Equal(t, goodToken, saved.AccessToken)

	require.Len(t, h.created, 2)
	assert.Equal(t, "stale", h.created[0].AccessToken)
	assert.Equal(t, goodToken, h.created[1].AccessToken)
}

func TestRunPromptsWhenNoTokensStored(t *testing.T) {
	h := newHarness(t, nil)
	h.prompter = &fakePrompter{tokens: goodPair()}

	_, err := h.orchestrator(t, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, h.prompter.calls)
	assert.Len(t, h.created, 1)
}

func TestRunAuthenticationFailures(t *testing.T) {
	tests := []struct {
		name     string
		stored   *auth.TokenPair
		prompter *fakePrompter
		mutate   func(cfg *config.Config)
	}{
		{
			name:   "missing consumer credentials",
			stored: goodPair(),
			mutate: func(cfg *config.Config) {
				cfg.Tumblr.ConsumerSecret = ""
			},
		},
		{
			name:   "no tokens and no prompter",
			stored: nil,
		},
		{
			name:     "prompted tokens rejected",
			stored:   nil,
			prompter: &fakePrompter{tokens: &auth.TokenPair{AccessToken: "wrong", AccessTokenSecret: "wrong"}},
		},
		{
			name:     "prompter gives up",
			stored:   &auth.TokenPair{AccessToken: "stale", AccessTokenSecret: "stale"},
			prompter: &fakePrompter{err: errors.New("no input")},
		},
		{
			name:     "prompter returns half a pair",
			stored:   nil,
			prompter: &fakePrompter{tokens: &auth.TokenPair{AccessToken: goodToken}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.stored)
			h.prompter = tt.prompter
			if tt.mutate != nil {
				tt.mutate(h.cfg)
			}

			o := h.orchestrator(t, nil)
			report, err := o.Run(context.Background())
			require.Error(t, err)
			assert.True(t, apperrors.IsAuth(err), "got %v", err)
			assert.Equal(t, StateFailed, o.State())
			assert.Equal(t, StateFailed, report.State)
			assert.Empty(t, h.remote.Calls())
			assert.Equal(t, 0, h.downloader.calls)
			if tt.prompter != nil {
				assert.LessOrEqual(t, tt.prompter.calls, 1)
			}
		})
	}
}

func TestRunWritesMetricsTextfile(t *testing.T) {
	h := newHarness(t, goodPair())
	h.remote.pages["x"] = []int{2}
	h.cfg.Metrics.Textfile = filepath.Join(t.TempDir(), "textfile", "tumblr_backup.prom")

	_, err := h.orchestrator(t, metrics.New()).Run(context.Background())
	require.NoError(t, err)

	data, err := os.ReadFile(h.cfg.Metrics.Textfile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "tumblr_backup_posts_stored_total")
	assert.Contains(t, string(data), "tumblr_backup_last_success_timestamp_seconds")
}

func TestNewOrchestratorRequiresDependencies(t *testing.T) {
	_, err := NewOrchestrator(Dependencies{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config")
	assert.Contains(t, err.Error(), "downloader")
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "backing_up_posts", StateBackingUpPosts.String())
	assert.Equal(t, "failed", StateFailed.String())
	assert.Equal(t, "state(42)", State(42).String())
}
