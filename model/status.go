package model

import "fmt"

// TargetStatus is the state of one (item, format) download target.
type TargetStatus string

const (
	// TargetPending means the target has been planned but not started
	TargetPending TargetStatus = "PENDING"

	// TargetResolving means a download URL is being requested
	TargetResolving TargetStatus = "RESOLVING"

	// TargetDownloading means the file transfer is in progress
	TargetDownloading TargetStatus = "DOWNLOADING"

	// TargetComplete means the final artifact is on disk
	TargetComplete TargetStatus = "COMPLETE"

	// TargetSkipped means the final artifact already existed
	TargetSkipped TargetStatus = "SKIPPED"

	// TargetFailed means resolving or downloading failed for good
	TargetFailed TargetStatus = "FAILED"
)

func (s TargetStatus) String() string {
	return string(s)
}

// ParseTargetStatus is the inverse of String.
func ParseTargetStatus(s string) (TargetStatus, error) {
	switch st := TargetStatus(s); st {
	case TargetPending, TargetResolving, TargetDownloading, TargetComplete, TargetSkipped, TargetFailed:
		return st, nil
	}
	return "", fmt.Errorf("unknown target status %q", s)
}

// IsFinished reports whether no more work happens for the target in this run.
func (s TargetStatus) IsFinished() bool {
	return s == TargetComplete || s == TargetSkipped || s == TargetFailed
}

// CanTransition reports whether from -> to is a legal step.
func CanTransition(from, to TargetStatus) bool {
	switch from {
	case TargetPending:
		return to == TargetResolving || to == TargetSkipped
	case TargetResolving:
		return to == TargetDownloading || to == TargetFailed
	case TargetDownloading:
		return to == TargetComplete || to == TargetFailed
	}
	return false
}
