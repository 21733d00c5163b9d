package backup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"tumblrbackup/internal/downloader"
	"tumblrbackup/pkg/auth"
	"tumblrbackup/pkg/config"
	apperrors "tumblrbackup/pkg/errors"
	"tumblrbackup/pkg/logger"
	"tumblrbackup/pkg/metrics"
	"tumblrbackup/pkg/retry"
	"tumblrbackup/pkg/tumblr"
)

// State is a step of a backup run
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticated
	StateEnumeratingBlogs
	StateBackingUpPosts
	StateDownloadingMedia
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	case StateEnumeratingBlogs:
		return "enumerating_blogs"
	case StateBackingUpPosts:
		return "backing_up_posts"
	case StateDownloadingMedia:
		return "downloading_media"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// RemoteClient is what a run needs from the platform
type RemoteClient interface {
	PostLister
	Info(ctx context.Context) (*tumblr.UserInfo, error)
}

// ClientFactory builds a remote client for one credential quadruple
type ClientFactory func(creds tumblr.Credentials) (RemoteClient, error)

// TokenSource loads and persists the user's token pair
type TokenSource interface {
	Load() (*auth.TokenPair, error)
	Save(tokens *auth.TokenPair) error
}

// TokenPrompter supplies a token pair when none is stored or the stored
// one is rejected
type TokenPrompter interface {
	PromptTokens(ctx context.Context) (*auth.TokenPair, error)
}

// PostStore is the write side of the archive used during pagination
type PostStore interface {
	UpsertPost(ctx context.Context, post *tumblr.Post) (bool, error)
}

// MediaDownloader drains the pending media set
type MediaDownloader interface {
	DownloadPending(ctx context.Context, concurrency int) (downloader.Summary, error)
}

// Dependencies wires an Orchestrator; Prompter, Logger and Metrics may be nil
type Dependencies struct {
	Config     *config.Config
	Tokens     TokenSource
	Prompter   TokenPrompter
	NewClient  ClientFactory
	Store      PostStore
	Downloader MediaDownloader
	Logger     logger.Logger
	Metrics    *metrics.Metrics
}

// Report summarises one run
type Report struct {
	User        string
	Blogs       []BlogResult
	FailedBlogs map[string]error
	TotalPosts  int
	NewPosts    int
	Media       downloader.Summary
	State       State
	Duration    time.Duration
}

// Orchestrator drives a backup run: authenticate, enumerate blogs, walk
// each blog sequentially, then download pending media once
type Orchestrator struct {
	cfg        *config.Config
	tokens     TokenSource
	prompter   TokenPrompter
	newClient  ClientFactory
	store      PostStore
	downloader MediaDownloader
	logger     logger.Logger
	metrics    *metrics.Metrics

	mu    sync.Mutex
	state State
}

// NewOrchestrator validates deps and returns an orchestrator in the
// unauthenticated state
func NewOrchestrator(deps Dependencies) (*Orchestrator, error) {
	var missing []string
	if deps.Config == nil {
		missing = append(missing, "config")
	}
	if deps.Tokens == nil {
		missing = append(missing, "token source")
	}
	if deps.NewClient == nil {
		missing = append(missing, "client factory")
	}
	if deps.Store == nil {
		missing = append(missing, "store")
	}
	if deps.Downloader == nil {
		missing = append(missing, "downloader")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("orchestrator is missing %s", strings.Join(missing, ", "))
	}

	log := deps.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	return &Orchestrator{
		cfg:        deps.Config,
		tokens:     deps.Tokens,
		prompter:   deps.Prompter,
		newClient:  deps.NewClient,
		store:      deps.Store,
		downloader: deps.Downloader,
		logger:     log,
		metrics:    deps.Metrics,
		state:      StateUnauthenticated,
	}, nil
}

// State returns the current step
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	prev := o.state
	o.state = s
	o.mu.Unlock()

	o.logger.DebugWithFields("backup state changed", map[string]interface{}{
		"from": prev.String(),
		"to":   s.String(),
	})
}

// Run performs one full backup. The returned error is non-nil only when
// the run could not authenticate, hit an auth error mid-run, or was
// cancelled; per-blog and per-media failures are reported in the Report.
func (o *Orchestrator) Run(ctx context.Context) (report *Report, err error) {
	start := time.Now()
	report = &Report{FailedBlogs: make(map[string]error)}

	defer func() {
		if err != nil {
			o.setState(StateFailed)
		}
		report.State = o.State()
		report.Duration = time.Since(start)
		o.finish(report)
	}()

	client, info, err := o.authenticate(ctx)
	if err != nil {
		return report, err
	}
	report.User = info.User.Name
	o.setState(StateAuthenticated)

	o.setState(StateEnumeratingBlogs)
	blogs := info.BlogNames()
	o.logger.InfoWithFields("Found blogs", map[string]interface{}{
		"count": len(blogs),
		"blogs": strings.Join(blogs, ", "),
	})

	o.setState(StateBackingUpPosts)
	paginator := NewPaginator(client, o.cfg.Pagination.PageSize, o.cfg.Pagination.PageDelay, o.logger)
	for _, blog := range blogs {
		result, err := paginator.FetchAllPosts(ctx, blog, o.storePost(blog))
		report.Blogs = append(report.Blogs, result)
		report.TotalPosts += result.Total
		report.NewPosts += result.New

		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		if apperrors.IsAuth(err) {
			o.logger.WithError(err).ErrorWithFields("Authentication rejected during backup", map[string]interface{}{
				"blog": blog,
			})
			return report, err
		}
		report.FailedBlogs[blog] = err
		o.logger.WithError(err).ErrorWithFields("Blog backup aborted", map[string]interface{}{
			"blog":         blog,
			"posts_stored": result.Total,
		})
	}

	o.logger.InfoWithFields("All blogs backed up", map[string]interface{}{
		"total_posts":  report.TotalPosts,
		"new_posts":    report.NewPosts,
		"failed_blogs": len(report.FailedBlogs),
	})

	o.setState(StateDownloadingMedia)
	summary, err := o.downloader.DownloadPending(ctx, o.cfg.Download.Concurrency)
	report.Media = summary
	if err != nil {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		o.logger.WithError(err).Error("Media download phase failed")
	}

	o.setState(StateDone)
	o.logger.Info("Backup complete")
	return report, nil
}

func (o *Orchestrator) storePost(blog string) PostHandler {
	return func(ctx context.Context, post *tumblr.Post) (bool, error) {
		inserted, err := o.store.UpsertPost(ctx, post)
		if err != nil {
			return false, err
		}
		o.metrics.PostSeen(blog, inserted)
		return inserted, nil
	}
}

// authenticate tries the persisted pair first, then asks the prompter once
func (o *Orchestrator) authenticate(ctx context.Context) (RemoteClient, *tumblr.UserInfo, error) {
	tc := o.cfg.Tumblr
	if tc.ConsumerKey == "" || tc.ConsumerSecret == "" {
		return nil, nil, apperrors.NewAuthError(
			"TUMBLR_CONSUMER_KEY and TUMBLR_CONSUMER_SECRET must be set", nil)
	}

	tokens, err := o.tokens.Load()
	switch {
	case err == nil:
		client, info, err := o.trial(ctx, tokens)
		if err == nil {
			o.logger.Info("Authenticated with stored tokens")
			return client, info, nil
		}
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		o.logger.WithError(err).Warn("Stored tokens were rejected")
	case errors.Is(err, auth.ErrTokensNotFound):
		o.logger.Info("No stored tokens found")
	default:
		o.logger.WithError(err).Warn("Failed to load stored tokens")
	}

	if o.prompter == nil {
		return nil, nil, apperrors.NewAuthError("no valid tokens; run `tumblr-backup auth login` first", nil)
	}

	tokens, err = o.prompter.PromptTokens(ctx)
	if err != nil {
		return nil, nil, apperrors.NewAuthError("failed to obtain tokens", err)
	}
	if !tokens.Valid() {
		return nil, nil, apperrors.NewAuthError("token and secret are both required", auth.ErrInvalidTokens)
	}
	if err := o.tokens.Save(tokens); err != nil {
		o.logger.WithError(err).Warn("Failed to persist tokens")
	}

	client, info, err := o.trial(ctx, tokens)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		return nil, nil, apperrors.NewAuthError("supplied tokens were rejected", err)
	}
	o.logger.Info("Authenticated with supplied tokens")
	return client, info, nil
}

// trial builds a client for tokens and checks them with an identity call
func (o *Orchestrator) trial(ctx context.Context, tokens *auth.TokenPair) (RemoteClient, *tumblr.UserInfo, error) {
	client, err := o.newClient(tumblr.Credentials{
		ConsumerKey:       o.cfg.Tumblr.ConsumerKey,
		ConsumerSecret:    o.cfg.Tumblr.ConsumerSecret,
		AccessToken:       tokens.AccessToken,
		AccessTokenSecret: tokens.AccessTokenSecret,
	})
	if err != nil {
		return nil, nil, err
	}
	info, err := client.Info(ctx)
	if err != nil {
		return nil, nil, err
	}
	if info == nil || info.User == nil {
		return nil, nil, apperrors.NewAuthError("account info response has no user", nil)
	}
	return client, info, nil
}

func (o *Orchestrator) finish(report *Report) {
	o.metrics.RunFinished(report.Duration, report.State == StateDone)

	if path := o.cfg.Metrics.Textfile; path != "" {
		if err := o.metrics.WriteTextfile(path); err != nil {
			o.logger.WithError(err).WarnWithFields("Failed to write metrics textfile", map[string]interface{}{
				"path": path,
			})
		}
	}
}

// TumblrClientFactory builds real API clients from cfg
func TumblrClientFactory(cfg *config.Config, log logger.Logger, m *metrics.Metrics) ClientFactory {
	return func(creds tumblr.Credentials) (RemoteClient, error) {
		return tumblr.NewClient(creds, tumblr.Options{
			BaseURL: cfg.Tumblr.APIBaseURL,
			Timeout: cfg.Tumblr.RequestTimeout,
			Retry:   retry.NewPolicy(cfg.Retry.MaxAttempts, cfg.Retry.BaseDelay, cfg.Retry.MaxDelay, log),
			Logger:  log,
			Metrics: m,
		})
	}
}
