package tumblr

import (
	"encoding/json"
	"fmt"
)

// PostType is the platform's post type discriminator
type PostType string

const (
	PostTypeText  PostType = "text"
	PostTypePhoto PostType = "photo"
	PostTypeQuote PostType = "quote"
	PostTypeLink  PostType = "link"
	PostTypeChat  PostType = "chat"
	PostTypeVideo PostType = "video"
	PostTypeAudio PostType = "audio"
)

// Meta is the status block of every API envelope
type Meta struct {
	Status int    `json:"status"`
	Msg    string `json:"msg"`
}

type envelope struct {
	Meta     Meta            `json:"meta"`
	Response json.RawMessage `json:"response"`
}

// UserInfo is the response of /user/info
type UserInfo struct {
	User *User `json:"user"`
}

type User struct {
	Name  string `json:"name"`
	Likes int64  `json:"likes"`
	Blogs []Blog `json:"blogs"`
}

type Blog struct {
	Name    string `json:"name"`
	Title   string `json:"title"`
	URL     string `json:"url"`
	Posts   int64  `json:"posts"`
	Primary bool   `json:"primary"`
}

// BlogNames lists the account's blogs in the order the platform returned them
func (u *UserInfo) BlogNames() []string {
	if u == nil || u.User == nil {
		return nil
	}
	names := make([]string, 0, len(u.User.Blogs))
	for _, b := range u.User.Blogs {
		names = append(names, b.Name)
	}
	return names
}

// PostsPage is one page of /blog/{id}/posts
type PostsPage struct {
	Posts      []*Post `json:"posts"`
	TotalPosts int64   `json:"total_posts"`
}

// Post carries the indexed attributes of a post plus its payload exactly as
// received. Raw is what gets archived; the typed fields are for indexing.
type Post struct {
	ID        int64    `json:"id"`
	BlogName  string   `json:"blog_name"`
	Type      PostType `json:"type"`
	State     string   `json:"state"`
	Format    string   `json:"format"`
	Timestamp int64    `json:"timestamp"`
	Date      string   `json:"date"`
	Tags      []string `json:"tags"`
	ShortURL  string   `json:"short_url"`
	Summary   string   `json:"summary"`
	ReblogKey string   `json:"reblog_key"`
	PostURL   string   `json:"post_url"`
	Slug      string   `json:"slug"`
	NoteCount int64    `json:"note_count"`

	Raw json.RawMessage `json:"-"`
}

func (p *Post) UnmarshalJSON(data []byte) error {
	type plain Post
	var decoded plain
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*p = Post(decoded)
	p.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON emits the original payload when present
func (p *Post) MarshalJSON() ([]byte, error) {
	if len(p.Raw) > 0 {
		return p.Raw, nil
	}
	type plain Post
	return json.Marshal((*plain)(p))
}

// Content is the type-specific body of a post
type Content interface {
	Kind() PostType
}

type TextContent struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type Photo struct {
	Caption      string    `json:"caption"`
	OriginalSize PhotoSize `json:"original_size"`
}

type PhotoSize struct {
	URL    string `json:"url"`
	Width  *int64 `json:"width"`
	Height *int64 `json:"height"`
}

type PhotoContent struct {
	Caption string  `json:"caption"`
	Photos  []Photo `json:"photos"`
}

type QuoteContent struct {
	Text   string `json:"text"`
	Source string `json:"source"`
}

type LinkContent struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
}

type ChatLine struct {
	Name   string `json:"name"`
	Label  string `json:"label"`
	Phrase string `json:"phrase"`
}

type ChatContent struct {
	Title    string     `json:"title"`
	Body     string     `json:"body"`
	Dialogue []ChatLine `json:"dialogue"`
}

type VideoContent struct {
	Caption  string `json:"caption"`
	VideoURL string `json:"video_url"`
}

type AudioContent struct {
	Caption  string `json:"caption"`
	AudioURL string `json:"audio_url"`
}

// UnknownContent keeps the payload of a type this package does not model
type UnknownContent struct {
	Type PostType
	Raw  json.RawMessage
}

func (TextContent) Kind() PostType      { return PostTypeText }
func (PhotoContent) Kind() PostType     { return PostTypePhoto }
func (QuoteContent) Kind() PostType     { return PostTypeQuote }
func (LinkContent) Kind() PostType      { return PostTypeLink }
func (ChatContent) Kind() PostType      { return PostTypeChat }
func (VideoContent) Kind() PostType     { return PostTypeVideo }
func (AudioContent) Kind() PostType     { return PostTypeAudio }
func (c UnknownContent) Kind() PostType { return c.Type }

// Content decodes the type-specific body from the raw payload
func (p *Post) Content() (Content, error) {
	var target Content
	switch p.Type {
	case PostTypeText:
		target = &TextContent{}
	case PostTypePhoto:
		target = &PhotoContent{}
	case PostTypeQuote:
		target = &QuoteContent{}
	case PostTypeLink:
		target = &LinkContent{}
	case PostTypeChat:
		target = &ChatContent{}
	case PostTypeVideo:
		target = &VideoContent{}
	case PostTypeAudio:
		target = &AudioContent{}
	default:
		return UnknownContent{Type: p.Type, Raw: p.Raw}, nil
	}

	if len(p.Raw) == 0 {
		return target, nil
	}
	if err := json.Unmarshal(p.Raw, target); err != nil {
		return nil, fmt.Errorf("failed to decode %s post %d: %w", p.Type, p.ID, err)
	}
	return target, nil
}

// MediaRef is one downloadable asset referenced by a post
type MediaRef struct {
	URL       string
	MediaType string
	Width     *int64
	Height    *int64
}

const (
	MediaTypeImage = "image"
	MediaTypeVideo = "video"
	MediaTypeAudio = "audio"
)

// MediaRefs applies the extraction rule: every photo's original size for
// photo posts, the video or audio URL for those types, nothing otherwise.
// Only those fields are read, so an odd caption or dialogue never blocks
// archiving; a field of the wrong shape yields no media for that entry.
// The result depends only on the payload.
func (p *Post) MediaRefs() ([]MediaRef, error) {
	if len(p.Raw) == 0 {
		return nil, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(p.Raw, &fields); err != nil {
		return nil, fmt.Errorf("failed to decode %s post %d: %w", p.Type, p.ID, err)
	}

	var refs []MediaRef
	switch p.Type {
	case PostTypePhoto:
		var photos []json.RawMessage
		if json.Unmarshal(fields["photos"], &photos) != nil {
			return nil, nil
		}
		for _, raw := range photos {
			var photo map[string]json.RawMessage
			if json.Unmarshal(raw, &photo) != nil {
				continue
			}
			var size map[string]json.RawMessage
			if json.Unmarshal(photo["original_size"], &size) != nil {
				continue
			}
			u := stringField(size["url"])
			if u == "" {
				continue
			}
			refs = append(refs, MediaRef{
				URL:       u,
				MediaType: MediaTypeImage,
				Width:     intField(size["width"]),
				Height:    intField(size["height"]),
			})
		}
	case PostTypeVideo:
		if u := stringField(fields["video_url"]); u != "" {
			refs = append(refs, MediaRef{URL: u, MediaType: MediaTypeVideo})
		}
	case PostTypeAudio:
		if u := stringField(fields["audio_url"]); u != "" {
			refs = append(refs, MediaRef{URL: u, MediaType: MediaTypeAudio})
		}
	}
	return refs, nil
}

// stringField returns raw as a string, or "" when it is absent or not one
func stringField(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

// intField returns raw as an integer, or nil when it is absent, null or
// not an integral number
func intField(raw json.RawMessage) *int64 {
	var n *int64
	if len(raw) == 0 || json.Unmarshal(raw, &n) != nil {
		return nil
	}
	return n
}
