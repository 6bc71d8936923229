// Package content is the flat-file content repository for the studio.
//
// One record per (type, slug), stored as a YAML frontmatter header plus
// a free-text body in <root>/<type>/<slug>.mdx. The directory tree is
// the single source of truth: there is no separate index, and listings
// are rebuilt by directory scan.
//
// The core pieces are:
//   - [Store]: validated, sanitized CRUD + listing + search over records
//   - validators ([ValidSlug], [ValidType], [ValidStatus]): checks that
//     run before any path is joined, which is what keeps traversal out
//     of the root
//   - sanitizers ([SanitizeBody], [SanitizeError]): strip executable
//     markup on write and scrub paths from errors before they reach
//     logs or callers
//
// Writes go through a per-slug lock and a temp-file -> fsync -> rename
// sequence so a record is never observable half-written.
package content
