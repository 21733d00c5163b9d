package media

import (
	"bufio"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"

	apperrors "tumblrbackup/pkg/errors"
	"tumblrbackup/pkg/logger"
	"tumblrbackup/pkg/metrics"
	"tumblrbackup/pkg/ratelimit"
)

const (
	DefaultChunkSize = 8192
	DefaultTimeout   = 30 * time.Second

	// filetype needs at most this many leading bytes to match
	sniffLen = 262
)

// Options configures a Fetcher; zero values take defaults
type Options struct {
	HTTPClient *http.Client
	Timeout    time.Duration
	ChunkSize  int
	Limiter    ratelimit.Limiter
	Logger     logger.Logger
	Metrics    *metrics.Metrics
}

// Fetcher downloads single assets into <root>/<post id>/<name>
type Fetcher struct {
	root       string
	httpClient *http.Client
	chunkSize  int
	limiter    ratelimit.Limiter
	logger     logger.Logger
	metrics    *metrics.Metrics
}

// NewFetcher creates a fetcher writing under root
func NewFetcher(root string, opts Options) *Fetcher {
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	chunk := opts.ChunkSize
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}
	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	return &Fetcher{
		root:       root,
		httpClient: client,
		chunkSize:  chunk,
		limiter:    opts.Limiter,
		logger:     log,
		metrics:    opts.Metrics,
	}
}

// Root returns the media root directory
func (f *Fetcher) Root() string {
	return f.root
}

// Fetch streams rawURL to disk and returns the local path. Every failure is
// a download error.
func (f *Fetcher) Fetch(ctx context.Context, postID int64, rawURL string) (string, error) {
	localPath, n, err := f.fetch(ctx, postID, rawURL)
	if err != nil {
		f.metrics.MediaFailed()
		return "", err
	}
	f.metrics.MediaDownloaded(n)
	return localPath, nil
}

func (f *Fetcher) fetch(ctx context.Context, postID int64, rawURL string) (string, int64, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", 0, apperrors.NewDownloadError("invalid media url "+rawURL, 0, err)
	}

	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return "", 0, apperrors.NewDownloadError("rate limiter wait interrupted", 0, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", 0, apperrors.NewDownloadError("failed to build request for "+rawURL, 0, err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", 0, apperrors.NewDownloadError("failed to download "+rawURL, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", 0, apperrors.NewDownloadError(
			fmt.Sprintf("media origin returned %d for %s", resp.StatusCode, rawURL), resp.StatusCode, nil)
	}

	body := bufio.NewReaderSize(resp.Body, max(f.chunkSize, sniffLen))

	name := FileName(u)
	if name == "" {
		// Peek errors are fine here: a short body just sniffs as unknown
		head, _ := body.Peek(sniffLen)
		name = HashName(rawURL) + guessExtension(resp.Header.Get("Content-Type"), head)
	}

	dir := filepath.Join(f.root, strconv.FormatInt(postID, 10))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", 0, apperrors.NewDownloadError("failed to create media directory", 0, err)
	}

	localPath := filepath.Join(dir, name)
	n, err := f.save(body, localPath)
	if err != nil {
		return "", n, err
	}

	f.logger.DebugWithFields("media saved", map[string]interface{}{
		"url":   rawURL,
		"path":  localPath,
		"bytes": n,
	})
	return localPath, n, nil
}

// save writes through a temp file in the destination directory and renames
// it into place, so a partial download never appears under the final name
func (f *Fetcher) save(r io.Reader, localPath string) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(localPath), filepath.Base(localPath)+".*.tmp")
	if err != nil {
		return 0, apperrors.NewDownloadError("failed to create temporary file", 0, err)
	}
	tmpName := tmp.Name()

	n, err := io.CopyBuffer(tmp, r, make([]byte, f.chunkSize))
	closeErr := tmp.Close()

	if err != nil {
		os.Remove(tmpName)
		return n, apperrors.NewDownloadError("failed to write media data", 0, err)
	}
	if closeErr != nil {
		os.Remove(tmpName)
		return n, apperrors.NewDownloadError("failed to close media file", 0, closeErr)
	}
	if err := os.Rename(tmpName, localPath); err != nil {
		os.Remove(tmpName)
		return n, apperrors.NewDownloadError("failed to move media file into place", 0, err)
	}
	return n, nil
}

// FileName is the last element of the URL path, or "" when the path has
// none or ends in a slash
func FileName(u *url.URL) string {
	if strings.HasSuffix(u.Path, "/") {
		return ""
	}
	base := path.Base(u.Path)
	switch base {
	case ".", "/", "..":
		return ""
	}
	return base
}

// HashName is the hex MD5 of the URL, used when the URL carries no file name
func HashName(rawURL string) string {
	sum := md5.Sum([]byte(rawURL))
	return hex.EncodeToString(sum[:])
}

// guessExtension resolves an extension from the content type, falling back
// to sniffing the leading bytes. Returns "" when neither helps.
func guessExtension(contentType string, head []byte) string {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		var known []string
		filetype.Types.Range(func(_, v interface{}) bool {
			if t, ok := v.(types.Type); ok && t.MIME.Value == mediaType && t.Extension != "" {
				known = append(known, t.Extension)
			}
			return true
		})
		if len(known) > 0 {
			sort.Strings(known)
			return "." + known[0]
		}
		if exts, err := mime.ExtensionsByType(mediaType); err == nil && len(exts) > 0 {
			return exts[0]
		}
	}
	if len(head) > 0 {
		if kind, err := filetype.Match(head); err == nil && kind != filetype.Unknown {
			return "." + kind.Extension
		}
	}
	return ""
}
