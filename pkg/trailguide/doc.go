// Package trailguide is the core library of the trail-guide content server:
// a revisioned store for trail content (stations, pages, modals) with
// automatic asset-usage tracking and atomic release bundle generation.
//
// Every write to a revisioned content type appends an immutable revision
// rather than mutating in place; revisions of an object form a gapless
// numeric sequence and deletion is itself a revision. On each write the
// object's serialized content is scanned for embedded asset references
// (plus declared direct-reference fields), maintaining a reverse index from
// assets to the objects whose current revision uses them. A release snapshots
// all enabled content plus exactly the assets it uses into a single zip
// archive, published atomically so a failed build leaves neither a release
// row nor a partial bundle.
//
// Persistence is behind the Store and BlobStore interfaces; implementations
// live under repo/ (sqlite, postgres) and storage/ (fs, memory, s3). The
// HTTP surface is in the api subpackage.
package trailguide
