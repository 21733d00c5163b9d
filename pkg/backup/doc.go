// Package backup drives a backup run.
//
// A Paginator walks one blog's post listing in fixed-size pages and hands
// each post to a PostHandler. The Orchestrator authenticates, enumerates
// the account's blogs, walks them one at a time and finally drains the
// pending media set through the downloader:
//
//	unauthenticated -> authenticated -> enumerating_blogs ->
//	    backing_up_posts -> downloading_media -> done
//
// Any state can move to failed on an authentication error. Errors that
// abort a single blog are recorded in the Report and the run carries on
// with the next blog.
package backup
