package tumblr

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "tumblrbackup/pkg/errors"
	"tumblrbackup/pkg/logger"
	"tumblrbackup/pkg/retry"
)

var testCreds = Credentials{
	ConsumerKey:       "ck",
	ConsumerSecret:    "cs",
	AccessToken:       "at",
	AccessTokenSecret: "ats",
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	log := logger.NewTestLogger()
	client, err := NewClient(testCreds, Options{
		BaseURL:    server.URL + "/v2",
		HTTPClient: server.Client(),
		Logger:     log,
		Retry: &retry.Policy{
			MaxAttempts: 3,
			Backoff:     &retry.ConstantBackoff{Delay: time.Millisecond},
			Logger:      log,
		},
	})
	require.NoError(t, err)
	return client
}

func TestNewClientRequiresCredentials(t *testing.T) {
	_, err := NewClient(Credentials{ConsumerKey: "ck"}, Options{})
	require.Error(t, err)
	assert.True(t, apperrors.IsAuth(err))
	assert.Contains(t, err.Error(), "consumer secret")
}

func TestInfo(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/user/info", r.URL.Path)
		auth := r.Header.Get("Authorization")
		assert.True(t, strings.HasPrefix(auth, "OAuth "))
		assert.Contains(t, auth, `oauth_token="at"`)
		assert.Contains(t, auth, `oauth_consumer_key="ck"`)
		fmt.Fprint(w, `{"meta":{"status":200,"msg":"OK"},"response":{"user":{"name":"me","blogs":[{"name":"x"},{"name":"y"}]}}}`)
	})

	info, err := client.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, info.BlogNames())
}

func TestInfoWithoutUserIsAuthError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"meta":{"status":200,"msg":"OK"},"response":{}}`)
	})

	_, err := client.Info(context.Background())
	assert.True(t, apperrors.IsAuth(err))
}

func TestPostsQueryAndDecode(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/blog/x.tumblr.com/posts", r.URL.Path)
		assert.Equal(t, "20", r.URL.Query().Get("limit"))
		assert.Equal(t, "40", r.URL.Query().Get("offset"))
		fmt.Fprint(w, `{"meta":{"status":200,"msg":"OK"},"response":{"total_posts":41,"posts":[{"id":1,"type":"text","tags":["a"]}]}}`)
	})

	page, err := client.Posts(context.Background(), "x", 20, 40)
	require.NoError(t, err)
	require.Len(t, page.Posts, 1)
	assert.Equal(t, int64(1), page.Posts[0].ID)
	assert.Equal(t, int64(41), page.TotalPosts)
	assert.NotEmpty(t, page.Posts[0].Raw)
}

func TestBlogIdentifier(t *testing.T) {
	assert.Equal(t, "x.tumblr.com", BlogIdentifier("x"))
	assert.Equal(t, "blog.example.com", BlogIdentifier("blog.example.com"))
}

func TestStatusClassification(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		wantAuth     bool
		wantRemote   bool
		wantAttempts int32
	}{
		{"unauthorized", http.StatusUnauthorized, true, false, 1},
		{"forbidden", http.StatusForbidden, true, false, 1},
		{"not found", http.StatusNotFound, false, true, 1},
		{"rate limited", http.StatusTooManyRequests, false, true, 3},
		{"server error", http.StatusBadGateway, false, true, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.WriteHeader(tt.status)
				fmt.Fprintf(w, `{"meta":{"status":%d,"msg":"Nope"},"response":[]}`, tt.status)
			})

			_, err := client.Posts(context.Background(), "x", 20, 0)
			require.Error(t, err)
			assert.Equal(t, tt.wantAuth, apperrors.IsAuth(err))
			assert.Equal(t, tt.wantRemote, apperrors.IsRemoteAPI(err))
			assert.Equal(t, tt.wantAttempts, atomic.LoadInt32(&calls))
			assert.Contains(t, err.Error(), "Nope")
		})
	}
}

func TestTransientErrorThenSuccess(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"meta":{"status":200,"msg":"OK"},"response":{"posts":[]}}`)
	})

	page, err := client.Posts(context.Background(), "x", 20, 0)
	require.NoError(t, err)
	assert.Empty(t, page.Posts)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestMalformedResponse(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"meta":{"status":200},"response":{"posts":[{"id":"not-a-number"}]}}`)
	})

	_, err := client.Posts(context.Background(), "x", 20, 0)
	require.Error(t, err)
	assert.True(t, apperrors.IsRemoteAPI(err))
	kind, _ := apperrors.TypeOf(err)
	assert.Equal(t, apperrors.ErrorTypeRemoteAPI, kind)
}

func TestNetworkErrorIsRetriedThenRemote(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	client, err := NewClient(testCreds, Options{
		BaseURL: url,
		Logger:  logger.NewTestLogger(),
		Retry:   &retry.Policy{MaxAttempts: 2, Backoff: &retry.ConstantBackoff{Delay: time.Millisecond}},
	})
	require.NoError(t, err)

	_, err = client.Info(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsRemoteAPI(err))
	assert.False(t, apperrors.IsAuth(err))
}
