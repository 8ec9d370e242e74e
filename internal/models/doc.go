// Package models defines the values that flow through a share: the parsed [AssetReference],
// the immutable [TrackSet] used for candidates and missing tracks, and the request-scoped [Destination].
//
// Nothing here persists across requests except [ShareRecord], which is an audit entry
// written after a share has been handled.
package models
