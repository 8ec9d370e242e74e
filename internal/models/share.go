package models

import (
	"fmt"
	"time"
)

// Destination is the playlist a share is reconciled against.
//
// It is built once from configuration and passed by value into every request.
type Destination struct {
	PlaylistID string
	Name       string
}

// Outcome summarizes how a share was handled.
type Outcome string

const (
	OutcomeAdded          Outcome = "added"
	OutcomeAlreadyPresent Outcome = "already_present"
	OutcomeUnsupported    Outcome = "unsupported"
	OutcomePartial        Outcome = "partial"
	OutcomeFailed         Outcome = "failed"
)

// ShareRecord is an audit entry for one handled chat share.
type ShareRecord struct {
	ID          string
	Sequence    int
	RequestID   string
	Channel     string
	Author      string
	Kind        ShareKind
	AssetID     string
	DisplayName string
	PlaylistID  string
	Candidates  int
	Added       int
	Outcome     Outcome
	Error       string
	CreatedAt   time.Time
}

// Validate checks the fields required to persist the record.
func (r *ShareRecord) Validate() error {
	switch {
	case r.Channel == "":
		return fmt.Errorf("share record: channel is required")
	case r.Kind == "":
		return fmt.Errorf("share record: kind is required")
	case r.Outcome == "":
		return fmt.Errorf("share record: outcome is required")
	}
	return nil
}
