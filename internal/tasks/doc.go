// Package tasks resolves shared assets and reconciles them against the destination playlist
// with real-time progress reporting.
//
// # Core Operations
//
//  1. [Resolver.Resolve] : asset reference to candidate set
//     - Track: the track itself
//     - Album: every album track, in album order
//     - Playlist: every track of the source playlist, read page by page with [Pager.Scan]
//
//  2. [Engine.Reconcile] : candidate set to missing set
//     - Reads the destination length and derives floor(n/pageSize)+1 pages
//     - Intersects each page with the candidates inside a bounded [errgroup]
//     - Unions the per-page intersections and subtracts them from the candidates
//
//  3. [Mutator.Append] : missing set to the playlist
//     - Sequential batches in set order, at most 100 uris each
//     - A failed batch returns [PartialAppendError] naming unconfirmed tracks
//
// [Pipeline] runs all three. Reconcile and append for one destination hold a
// [PlaylistLocks] entry so two shares of the same track cannot both see it missing.
//
// # Progress Reporting
//
// Operations accept an optional channel of [ProgressUpdate]. Updates use select with
// default so a slow reader never blocks a scan.
package tasks
