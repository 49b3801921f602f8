package model

import "time"

// Track represents an uploaded audio track.
// A track starts as a draft (Exposed=false) and only becomes visible to
// search and read endpoints after it is finalized.
type Track struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Tags       []string  `json:"tags"`
	Length     *float64  `json:"length"`               // Duration in seconds, set by the audio upload
	CoverPath  *string   `json:"cover_path"`           // Object name in the cover bucket
	AudioPath  *string   `json:"audio_path,omitempty"` // Object name in the audio bucket, never listed
	UploadedAt time.Time `json:"uploaded_at"`
	UploaderID string    `json:"uploader_id"`
	FTS        string    `json:"-"`
	Exposed    bool      `json:"-"`
}

// TrackSummary is the row shape returned by search.
type TrackSummary struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Tags       []string  `json:"tags"`
	UploadedAt time.Time `json:"uploaded_at"`
	Length     *float64  `json:"length"`
	CoverPath  *string   `json:"cover_path"`
}

// TrackDetail is a single exposed track joined with its uploader's username.
type TrackDetail struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Tags       []string  `json:"tags"`
	UploadedAt time.Time `json:"uploaded_at"`
	CoverPath  *string   `json:"cover_path"`
	UploaderID string    `json:"uploader_id"`
	Length     *float64  `json:"length"`
	Username   string    `json:"username,omitempty"`
}

// UploadedFile is a fully buffered multipart file.
type UploadedFile struct {
	Name        string
	ContentType string
	Data        []byte
}
