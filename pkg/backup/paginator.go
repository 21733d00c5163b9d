package backup

import (
	"context"
	"fmt"
	"time"

	"tumblrbackup/pkg/logger"
	"tumblrbackup/pkg/retry"
	"tumblrbackup/pkg/tumblr"
)

const (
	DefaultPageSize  = 20
	DefaultPageDelay = 500 * time.Millisecond
)

// PostLister is the listing half of the remote client
type PostLister interface {
	Posts(ctx context.Context, blog string, limit, offset int) (*tumblr.PostsPage, error)
}

// PostHandler persists one post and reports whether it was new
type PostHandler func(ctx context.Context, post *tumblr.Post) (inserted bool, err error)

// BlogResult counts the posts one blog walk saw and stored
type BlogResult struct {
	Blog  string
	Total int
	New   int
	Pages int
}

// Paginator walks a blog's post listing one fixed-size page at a time
type Paginator struct {
	client   PostLister
	pageSize int
	delay    time.Duration
	logger   logger.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewPaginator creates a paginator; non-positive pageSize takes the default
func NewPaginator(client PostLister, pageSize int, delay time.Duration, log logger.Logger) *Paginator {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if delay < 0 {
		delay = 0
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &Paginator{
		client:   client,
		pageSize: pageSize,
		delay:    delay,
		logger:   log,
		sleep:    retry.Wait,
	}
}

// FetchAllPosts hands every post of blog to onPost in listing order. It
// stops after an empty page or one shorter than the page size. Offsets
// advance by the page size requested, not the count received. Errors from
// the client or from onPost end the walk and are returned with the counts
// reached so far.
func (p *Paginator) FetchAllPosts(ctx context.Context, blog string, onPost PostHandler) (BlogResult, error) {
	result := BlogResult{Blog: blog}
	offset := 0

	p.logger.InfoWithFields("Starting blog backup", map[string]interface{}{
		"blog": blog,
	})

	for {
		page, err := p.client.Posts(ctx, blog, p.pageSize, offset)
		if err != nil {
			return result, fmt.Errorf("failed to list posts of %s at offset %d: %w", blog, offset, err)
		}
		result.Pages++

		if page == nil || len(page.Posts) == 0 {
			break
		}

		stored := 0
		for _, post := range page.Posts {
			inserted, err := onPost(ctx, post)
			if err != nil {
				return result, fmt.Errorf("failed to store post %d of %s: %w", post.ID, blog, err)
			}
			result.Total++
			if inserted {
				result.New++
				stored++
			}
		}
		logger.LogPage(p.logger, blog, offset, len(page.Posts), stored)

		if len(page.Posts) < p.pageSize {
			break
		}

		offset += p.pageSize
		if err := p.sleep(ctx, p.delay); err != nil {
			return result, err
		}
	}

	logger.LogBlogSummary(p.logger, blog, result.Total, result.New)
	return result, nil
}
