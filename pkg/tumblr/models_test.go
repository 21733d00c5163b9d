package tumblr

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const photoPostJSON = `{
  "id": 7012345678901234567,
  "blog_name": "x",
  "type": "photo",
  "state": "published",
  "format": "html",
  "timestamp": 1700000000,
  "date": "2023-11-14 22:13:20 GMT",
  "tags": ["cats", "sun"],
  "short_url": "https://tmblr.co/abc",
  "summary": "sunny cat",
  "reblog_key": "rk",
  "post_url": "https://x.tumblr.com/post/1",
  "slug": "sunny-cat",
  "note_count": 42,
  "caption": "<p>cat</p>",
  "photos": [
    {"original_size": {"url": "http://a/1.jpg", "width": 100, "height": 200}},
    {"original_size": {"url": "http://a/2.jpg", "width": 300, "height": 400}},
    {"original_size": {}}
  ],
  "extra_field": {"kept": true}
}`

func TestPostDecodePreservesRaw(t *testing.T) {
	var p Post
	require.NoError(t, json.Unmarshal([]byte(photoPostJSON), &p))

	assert.Equal(t, int64(7012345678901234567), p.ID)
	assert.Equal(t, PostTypePhoto, p.Type)
	assert.Equal(t, []string{"cats", "sun"}, p.Tags)
	assert.Equal(t, int64(42), p.NoteCount)
	assert.JSONEq(t, photoPostJSON, string(p.Raw))

	out, err := json.Marshal(&p)
	require.NoError(t, err)
	assert.Contains(t, string(out), "extra_field")
}

func TestMediaRefsPhoto(t *testing.T) {
	var p Post
	require.NoError(t, json.Unmarshal([]byte(photoPostJSON), &p))

	refs, err := p.MediaRefs()
	require.NoError(t, err)
	require.Len(t, refs, 2, "photos without an original-size url are skipped")

	assert.Equal(t, "http://a/1.jpg", refs[0].URL)
	assert.Equal(t, MediaTypeImage, refs[0].MediaType)
	require.NotNil(t, refs[0].Width)
	assert.Equal(t, int64(100), *refs[0].Width)
	assert.Equal(t, int64(400), *refs[1].Height)
}

func TestMediaRefsByType(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    []MediaRef
	}{
		{
			name:    "video",
			payload: `{"id":1,"type":"video","video_url":"http://v/clip.mp4"}`,
			want:    []MediaRef{{URL: "http://v/clip.mp4", MediaType: MediaTypeVideo}},
		},
		{
			name:    "video without url",
			payload: `{"id":1,"type":"video","player":[]}`,
		},
		{
			name:    "audio",
			payload: `{"id":2,"type":"audio","audio_url":"http://au/song.mp3"}`,
			want:    []MediaRef{{URL: "http://au/song.mp3", MediaType: MediaTypeAudio}},
		},
		{
			name:    "text has no media",
			payload: `{"id":3,"type":"text","body":"<img src=\"http://a/inline.jpg\">"}`,
		},
		{
			name:    "unknown type",
			payload: `{"id":4,"type":"blocks","content":[]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p Post
			require.NoError(t, json.Unmarshal([]byte(tt.payload), &p))
			refs, err := p.MediaRefs()
			require.NoError(t, err)
			assert.Equal(t, tt.want, refs)
		})
	}
}

func TestContentVariants(t *testing.T) {
	tests := []struct {
		payload string
		check   func(t *testing.T, c Content)
	}{
		{`{"type":"text","title":"T","body":"B"}`, func(t *testing.T, c Content) {
			assert.Equal(t, &TextContent{Title: "T", Body: "B"}, c)
		}},
		{`{"type":"quote","text":"q","source":"s"}`, func(t *testing.T, c Content) {
			assert.Equal(t, &QuoteContent{Text: "q", Source: "s"}, c)
		}},
		{`{"type":"link","url":"http://l","title":"L"}`, func(t *testing.T, c Content) {
			assert.Equal(t, "http://l", c.(*LinkContent).URL)
		}},
		{`{"type":"chat","dialogue":[{"name":"a","phrase":"hi"}]}`, func(t *testing.T, c Content) {
			assert.Equal(t, "hi", c.(*ChatContent).Dialogue[0].Phrase)
		}},
		{`{"type":"answer","question":"?"}`, func(t *testing.T, c Content) {
			unknown, ok := c.(UnknownContent)
			require.True(t, ok)
			assert.Equal(t, PostType("answer"), unknown.Kind())
			assert.Contains(t, string(unknown.Raw), "question")
		}},
	}

	for _, tt := range tests {
		var p Post
		require.NoError(t, json.Unmarshal([]byte(tt.payload), &p))
		c, err := p.Content()
		require.NoError(t, err)
		tt.check(t, c)
	}
}

func TestContentTypeMismatchIsError(t *testing.T) {
	var p Post
	require.NoError(t, json.Unmarshal([]byte(`{"id":9,"type":"photo","photos":"nope"}`), &p))

	_, err := p.Content()
	assert.Error(t, err)

	refs, err := p.MediaRefs()
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestMediaRefsIgnoresFieldsOutsideExtraction(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    []MediaRef
	}{
		{
			name:    "numeric caption on a photo",
			payload: `{"id":1,"type":"photo","photos":[{"caption":5,"original_size":{"url":"http://a/1.jpg","width":10,"height":"tall"}}]}`,
			want:    []MediaRef{{URL: "http://a/1.jpg", MediaType: MediaTypeImage, Width: int64Ptr(10)}},
		},
		{
			name:    "malformed photo entries are skipped",
			payload: `{"id":2,"type":"photo","photos":["x",{"original_size":"big"},{"original_size":{"url":7}},{"original_size":{"url":"http://a/2.jpg"}}]}`,
			want:    []MediaRef{{URL: "http://a/2.jpg", MediaType: MediaTypeImage}},
		},
		{
			name:    "chat with object dialogue",
			payload: `{"id":3,"type":"chat","dialogue":{"unexpected":true}}`,
		},
		{
			name:    "non-string video url",
			payload: `{"id":4,"type":"video","video_url":false,"caption":[]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p Post
			require.NoError(t, json.Unmarshal([]byte(tt.payload), &p))
			refs, err := p.MediaRefs()
			require.NoError(t, err)
			assert.Equal(t, tt.want, refs)
		})
	}
}

func int64Ptr(v int64) *int64 { return &v }

func TestBlogNames(t *testing.T) {
	info := &UserInfo{User: &User{Blogs: []Blog{{Name: "a"}, {Name: "b"}}}}
	assert.Equal(t, []string{"a", "b"}, info.BlogNames())
	assert.Nil(t, (&UserInfo{}).BlogNames())
}
