package model

import "time"

// OriginalVersion is the version name of the uploaded bytes as received.
const OriginalVersion = "original"

// Version describes one stored variant of a file (the original upload or a derived one).
type Version struct {
	Path      string         `json:"path" validate:"required"`
	Size      int64          `json:"size" validate:"gte=0"`
	Type      string         `json:"type"`
	Extension string         `json:"extension"`
	Meta      map[string]any `json:"meta,omitempty"`
}

// FileRecord is the metadata document kept for every uploaded file.
// IsComplete becomes true only after the last chunk was written and the
// integrity check (when enabled) passed.
type FileRecord struct {
	ID         string             `json:"id" validate:"required"`
	Collection string             `json:"collection" validate:"required"`
	Name       string             `json:"name" validate:"required"`
	Extension  string             `json:"extension"`
	Type       string             `json:"type"`
	Path       string             `json:"path" validate:"required"`
	Size       int64              `json:"size" validate:"gte=0"`
	Checksum   string             `json:"checksum,omitempty"`
	IsComplete bool               `json:"is_complete"`
	UserID     string             `json:"user_id,omitempty"`
	Meta       map[string]any     `json:"meta,omitempty"`
	Versions   map[string]Version `json:"versions,omitempty" validate:"dive"`
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// Version returns the named version, falling back to the record itself for
// the original version of a record that has no versions yet.
func (f *FileRecord) Version(name string) (Version, bool) {
	if v, ok := f.Versions[name]; ok {
		return v, true
	}
	if name == OriginalVersion && f.IsComplete {
		return Version{Path: f.Path, Size: f.Size, Type: f.Type, Extension: f.Extension}, true
	}
	return Version{}, false
}

// FileDescriptor is what a client declares about a file when an upload starts.
type FileDescriptor struct {
	Name     string         `json:"name"`
	Type     string         `json:"type"`
	Size     int64          `json:"size"`
	Checksum string         `json:"checksum,omitempty"`
	Meta     map[string]any `json:"meta,omitempty"`
}
