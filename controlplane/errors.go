package controlplane

import "errors"

var (
	// ErrProviderUnavailable indicates the provider could not reach its source.
	ErrProviderUnavailable = errors.New("settle: presets provider unavailable")
	// ErrPresetsNotFound indicates the source has no presets for the requested profile.
	ErrPresetsNotFound = errors.New("settle: presets profile not found")
	// ErrPresetsFetchFailed indicates a source failure other than a missing profile.
	ErrPresetsFetchFailed = errors.New("settle: presets fetch failed")
)
