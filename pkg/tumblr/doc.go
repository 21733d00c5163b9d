// Package tumblr is a minimal client for the two v2 API endpoints a backup
// needs: /user/info (account identity and blog list) and
// /blog/{blog-identifier}/posts (paginated post listing).
//
// Every request is signed with OAuth 1.0a via pkg/oauth. Responses use the
// {"meta": ..., "response": ...} envelope; a post's payload is preserved
// verbatim in Post.Raw so the archive can reconstruct it later.
package tumblr
