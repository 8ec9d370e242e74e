package tasks

import (
	"fmt"

	"github.com/desertthunder/playlistbot/internal/models"
)

// ProgressUpdate represents a progress event during a share.
//
// Used to send real-time updates to the CLI or server layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data
}

// Operation phase enumeration
type Phase int

const (
	ResolveAsset Phase = iota
	ScanSource
	FetchLength
	ScanPages
	AppendTracks
)

func (p Phase) String() string {
	switch p {
	case ResolveAsset:
		return "resolve_asset"
	case ScanSource:
		return "scan_source"
	case FetchLength:
		return "fetch_length"
	case ScanPages:
		return "scan_pages"
	case AppendTracks:
		return "append_tracks"
	default:
		return ""
	}
}

// sendProgress sends a progress update through the channel without blocking.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
		// Channel full, skip this update
	}
}

func resolveUpdate(ref models.AssetReference) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ResolveAsset,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Resolving %s %s...", ref.Kind, ref.ID),
		Data:    ref,
	}
}

func resolvedUpdate(ref models.AssetReference, name string, candidates models.TrackSet) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ResolveAsset,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Resolved %s %q (%d tracks)", ref.Kind, name, candidates.Len()),
		Data:    candidates,
	}
}

func lengthUpdate(playlistID string, length, pages int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchLength,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Playlist %s has %d tracks across %d pages", playlistID, length, pages),
	}
}

func pageUpdate(phase Phase, done, total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   phase,
		Step:    done,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Scanned page", done, total),
	}
}

func appendUpdate(batch, total, size int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   AppendTracks,
		Step:    batch,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Appended %d tracks", batch, total, size),
	}
}
