// Package retry re-runs remote API calls that fail transiently.
//
// Only errors classified as rate_limit, server_error or network by
// pkg/errors are retried; authentication and other remote API failures
// return immediately.
//
//	page, err := retry.DoWithResult(ctx, policy, func(ctx context.Context) (*tumblr.PostsPage, error) {
//		return client.fetchPosts(ctx, blog, limit, offset)
//	})
package retry
