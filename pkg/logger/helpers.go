package logger

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// LogPage records one page fetched from a blog's post listing
func LogPage(l Logger, blog string, offset, received, stored int) {
	l.DebugWithFields("fetched posts page", map[string]interface{}{
		"blog":     blog,
		"offset":   offset,
		"received": received,
		"new":      stored,
	})
}

// LogBlogSummary records the per-blog outcome of a backup run
func LogBlogSummary(l Logger, blog string, total, newPosts int) {
	l.InfoWithFields("blog backed up", map[string]interface{}{
		"blog":  blog,
		"total": total,
		"new":   newPosts,
	})
}

// LogDownload records a single media download outcome
func LogDownload(l Logger, mediaID int64, url, localPath string, err error) {
	fields := map[string]interface{}{
		"media_id": mediaID,
		"url":      url,
	}
	if err != nil {
		l.WithError(err).WarnWithFields("media download failed", fields)
		return
	}
	fields["path"] = localPath
	l.DebugWithFields("media downloaded", fields)
}

// LogProgress records download progress
func LogProgress(l Logger, done, total int) {
	percentage := 0.0
	if total > 0 {
		percentage = float64(done) / float64(total) * 100
	}
	l.InfoWithFields("download progress", map[string]interface{}{
		"done":       done,
		"total":      total,
		"percentage": fmt.Sprintf("%.1f%%", percentage),
	})
}

// LogRateLimit records a throttled remote call
func LogRateLimit(l Logger, endpoint string, attempt int) {
	l.WarnWithFields("rate limited, backing off", map[string]interface{}{
		"endpoint": endpoint,
		"attempt":  attempt,
	})
}

// NewNopLogger creates a logger that discards everything
func NewNopLogger() Logger {
	return &nopLogger{}
}

type nopLogger struct{}

func (n *nopLogger) Debug(msg string)                                          {}
func (n *nopLogger) Info(msg string)                                           {}
func (n *nopLogger) Warn(msg string)                                           {}
func (n *nopLogger) Error(msg string)                                          {}
func (n *nopLogger) Fatal(msg string)                                          {}
func (n *nopLogger) WithField(key string, value interface{}) Logger            { return n }
func (n *nopLogger) WithFields(fields map[string]interface{}) Logger           { return n }
func (n *nopLogger) WithError(err error) Logger                                { return n }
func (n *nopLogger) WithContext(ctx context.Context) Logger                    { return n }
func (n *nopLogger) DebugWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) InfoWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) WarnWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) ErrorWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) FatalWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) GetZerolog() *zerolog.Logger                               { return nil }
