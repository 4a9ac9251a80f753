package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Standard is a jazz composition tracked locally for community voting.
// Rows are seeded out-of-band; this service only reads them.
type Standard struct {
	ID    string `json:"id" gorm:"type:uuid;primaryKey"`
	Title string `json:"title" gorm:"not null"`
	Slug  string `json:"slug" gorm:"uniqueIndex;not null"`
}

func (s *Standard) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// Recording is one performance of a standard. Rows referenced only by a
// MusicBrainz recording id are materialized lazily on the first vote.
type Recording struct {
	ID                     string  `json:"id" gorm:"type:uuid;primaryKey"`
	ISRC                   *string `json:"isrc"`
	StandardID             *string `json:"standard_id" gorm:"type:uuid;index"`
	MusicBrainzRecordingID *string `json:"musicbrainz_recording_id" gorm:"column:musicbrainz_recording_id;index"`
	ArtistName             *string `json:"artist_name"`
	TrackTitle             *string `json:"track_title"`
	AlbumName              *string `json:"album_name"`
	ReleaseYear            *int    `json:"release_year"`
	ArtworkURL             *string `json:"artwork_url"`
}

func (r *Recording) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// Service is a third-party streaming platform. Deep links are built as
// base_url + track_id, no API call involved.
type Service struct {
	ID      uint    `json:"id" gorm:"primaryKey"`
	Name    *string `json:"name"`
	BaseURL *string `json:"base_url"`
}

// ServiceTrackID maps a recording to a service's track identifier.
type ServiceTrackID struct {
	ID          string  `json:"id" gorm:"type:uuid;primaryKey"`
	RecordingID *string `json:"recording_id" gorm:"type:uuid;index"`
	ServiceID   *uint   `json:"service_id"`
	TrackID     *string `json:"track_id"`
	Service     Service `json:"-" gorm:"foreignKey:ServiceID"`
}

func (s *ServiceTrackID) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// Vote records one user's endorsement of a recording. The composite unique
// index makes repeat votes no-ops at the store level.
type Vote struct {
	ID          uint      `json:"-" gorm:"primaryKey"`
	UserID      string    `json:"user_id" gorm:"uniqueIndex:idx_votes_user_recording;not null"`
	RecordingID string    `json:"recording_id" gorm:"type:uuid;uniqueIndex:idx_votes_user_recording;not null"`
	CreatedAt   time.Time `json:"created_at"`
}

// All lists every model in AutoMigrate order.
func All() []any {
	return []any{&Standard{}, &Recording{}, &Service{}, &ServiceTrackID{}, &Vote{}}
}
