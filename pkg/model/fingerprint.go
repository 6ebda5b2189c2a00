package model

import "fmt"

// Fingerprint is the observable identity of one filesystem entry.
//
// Identity is (Kind, Path, Content). Size and ModTime are carried along for
// display and are deliberately left out of Equal.
type Fingerprint struct {
	Kind    FileKind  `json:"kind"`
	Path    string    `json:"path"`
	Content HashValue `json:"content,omitempty"`
	Size    int64     `json:"size,omitempty"`
	ModTime int64     `json:"mod_time,omitempty"`
}

// Equal reports whether f and other describe the same entry state.
func (f Fingerprint) Equal(other Fingerprint) bool {
	return f.Kind == other.Kind && f.Path == other.Path && f.Content == other.Content
}

// IsMissing returns true if the entry did not exist when observed.
func (f Fingerprint) IsMissing() bool {
	return f.Kind == KindMissing
}

// ShortContent returns the first 12 characters of the content hash for display.
func (f Fingerprint) ShortContent() string {
	s := string(f.Content)
	if len(s) > 12 {
		return s[:12]
	}
	return s
}

func (f Fingerprint) String() string {
	if f.Content == "" {
		return fmt.Sprintf("%s(%s)", f.Kind, f.Path)
	}
	return fmt.Sprintf("%s(%s@%s)", f.Kind, f.Path, f.ShortContent())
}
