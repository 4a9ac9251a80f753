// Package store is the only component that touches the relational schema
// (standards, recordings, services, service_track_ids, votes). Reads degrade
// to empty results on any store error; callers treat failures as "no data".
package store

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"headhunter/logging"
	"headhunter/models"
)

const recordingsLimit = 50

type Store struct {
	db  *gorm.DB
	log zerolog.Logger
}

// New opens the store on the given dialector and migrates the schema.
func New(dial gorm.Dialector) (*Store, error) {
	db, err := gorm.Open(dial, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(models.All()...); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &Store{db: db, log: logging.WithComponent("store")}, nil
}

// Open connects to Postgres using a connection URL.
func Open(databaseURL string) (*Store, error) {
	return New(postgres.Open(databaseURL))
}

// ServiceLink is a resolved deep link into a streaming service.
type ServiceLink struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// RecordingRow is a recording joined with its service links and vote count.
type RecordingRow struct {
	ID          string        `json:"id"`
	ISRC        *string       `json:"isrc"`
	ArtistName  *string       `json:"artist_name"`
	TrackTitle  *string       `json:"track_title"`
	AlbumName   *string       `json:"album_name"`
	ReleaseYear *int          `json:"release_year"`
	ArtworkURL  *string       `json:"artwork_url"`
	Links       []ServiceLink `json:"links"`
	VotesCount  int64         `json:"votes_count"`
}

// StandardBySlug returns the standard with the given slug, or nil when no
// row matches or the store is unavailable.
func (s *Store) StandardBySlug(slug string) *models.Standard {
	if slug == "" {
		return nil
	}
	var std models.Standard
	err := s.db.Where("slug = ?", slug).First(&std).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.log.Warn().Err(err).Str("slug", slug).Msg("standard lookup failed")
		}
		return nil
	}
	return &std
}

// SearchStandards returns standards whose title contains q, case-insensitive.
func (s *Store) SearchStandards(q string, limit int) []models.Standard {
	if q == "" {
		return nil
	}
	var out []models.Standard
	err := s.db.
		Where("LOWER(title) LIKE ?", "%"+strings.ToLower(q)+"%").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		s.log.Warn().Err(err).Msg("standard search failed")
		return nil
	}
	return out
}

// RecordingsForStandard returns up to 50 recordings of a standard with their
// service links and vote counts, sorted by votes desc then oldest year first.
func (s *Store) RecordingsForStandard(standardID string) []RecordingRow {
	var recs []models.Recording
	err := s.db.
		Where("standard_id = ?", standardID).
		Limit(recordingsLimit).
		Find(&recs).Error
	if err != nil {
		s.log.Warn().Err(err).Str("standard_id", standardID).Msg("recordings fetch failed")
		return []RecordingRow{}
	}
	if len(recs) == 0 {
		return []RecordingRow{}
	}

	ids := make([]string, len(recs))
	for i, r := range recs {
		ids[i] = r.ID
	}

	linksByRecording := map[string][]ServiceLink{}
	var stis []models.ServiceTrackID
	if err := s.db.Preload("Service").Where("recording_id IN ?", ids).Find(&stis).Error; err == nil {
		for _, sti := range stis {
			if sti.RecordingID == nil || sti.TrackID == nil || sti.Service.BaseURL == nil {
				continue
			}
			name := ""
			if sti.Service.Name != nil {
				name = *sti.Service.Name
			}
			linksByRecording[*sti.RecordingID] = append(linksByRecording[*sti.RecordingID], ServiceLink{
				Name: name,
				URL:  *sti.Service.BaseURL + *sti.TrackID,
			})
		}
	}

	counts := s.voteCounts(ids)

	rows := make([]RecordingRow, 0, len(recs))
	for _, r := range recs {
		links := linksByRecording[r.ID]
		if links == nil {
			links = []ServiceLink{}
		}
		rows = append(rows, RecordingRow{
			ID:          r.ID,
			ISRC:        r.ISRC,
			ArtistName:  r.ArtistName,
			TrackTitle:  r.TrackTitle,
			AlbumName:   r.AlbumName,
			ReleaseYear: r.ReleaseYear,
			ArtworkURL:  r.ArtworkURL,
			Links:       links,
			VotesCount:  counts[r.ID],
		})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].VotesCount != rows[j].VotesCount {
			return rows[i].VotesCount > rows[j].VotesCount
		}
		return yearOr(rows[i].ReleaseYear, 9999) < yearOr(rows[j].ReleaseYear, 9999)
	})
	return rows
}

// RecordingByMBID returns the locally materialized recording for a
// MusicBrainz recording id, or nil.
func (s *Store) RecordingByMBID(mbid string) (*models.Recording, error) {
	var rec models.Recording
	err := s.db.Where("musicbrainz_recording_id = ?", mbid).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// RecordingFields carries the external metadata supplied with a vote for a
// recording not yet known locally.
type RecordingFields struct {
	MBRecordingID string
	ArtistName    *string
	TrackTitle    *string
	AlbumName     *string
	ReleaseYear   *int
	ISRC          *string
}

// ResolveRecording returns the local id for an external recording id,
// inserting a new row populated from fields on first reference.
func (s *Store) ResolveRecording(fields RecordingFields) (string, error) {
	existing, err := s.RecordingByMBID(fields.MBRecordingID)
	if err != nil {
		return "", fmt.Errorf("recording lookup: %w", err)
	}
	if existing != nil {
		return existing.ID, nil
	}
	rec := models.Recording{
		MusicBrainzRecordingID: &fields.MBRecordingID,
		ArtistName:             fields.ArtistName,
		TrackTitle:             fields.TrackTitle,
		AlbumName:              fields.AlbumName,
		ReleaseYear:            fields.ReleaseYear,
		ISRC:                   fields.ISRC,
	}
	if err := s.db.Create(&rec).Error; err != nil {
		return "", fmt.Errorf("recording insert: %w", err)
	}
	return rec.ID, nil
}

// CreateVote inserts a (user, recording) vote. Repeat votes hit the unique
// index and are dropped without error.
func (s *Store) CreateVote(userID, recordingID string) error {
	vote := models.Vote{UserID: userID, RecordingID: recordingID}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "recording_id"}},
		DoNothing: true,
	}).Create(&vote).Error
	if err != nil {
		return fmt.Errorf("vote insert: %w", err)
	}
	return nil
}

// VoteCountsByMBID maps MusicBrainz recording ids to local vote counts.
// Used to overlay counts onto search results not yet materialized locally.
func (s *Store) VoteCountsByMBID(mbids []string) map[string]int64 {
	out := map[string]int64{}
	if len(mbids) == 0 {
		return out
	}
	var rows []struct {
		MBID string `gorm:"column:mb_id"`
		N    int64  `gorm:"column:n"`
	}
	err := s.db.Model(&models.Vote{}).
		Select("recordings.musicbrainz_recording_id AS mb_id, COUNT(*) AS n").
		Joins("JOIN recordings ON recordings.id = votes.recording_id").
		Where("recordings.musicbrainz_recording_id IN ?", mbids).
		Group("recordings.musicbrainz_recording_id").
		Scan(&rows).Error
	if err != nil {
		s.log.Warn().Err(err).Msg("vote count overlay failed")
		return out
	}
	for _, r := range rows {
		out[r.MBID] = r.N
	}
	return out
}

// CreateStandard inserts a standard. Seeding happens out-of-band in
// production; tests use this directly.
func (s *Store) CreateStandard(std *models.Standard) error {
	return s.db.Create(std).Error
}

// CreateService inserts a streaming service row.
func (s *Store) CreateService(svc *models.Service) error {
	return s.db.Create(svc).Error
}

// CreateServiceLink inserts a per-recording service track mapping.
func (s *Store) CreateServiceLink(sti *models.ServiceTrackID) error {
	return s.db.Create(sti).Error
}

// CreateRecording inserts a recording row directly (seed path).
func (s *Store) CreateRecording(rec *models.Recording) error {
	return s.db.Create(rec).Error
}

// Ping reports whether the underlying database is reachable.
func (s *Store) Ping() error {
	db, err := s.db.DB()
	if err != nil {
		return err
	}
	return db.Ping()
}

func (s *Store) voteCounts(recordingIDs []string) map[string]int64 {
	out := map[string]int64{}
	var rows []struct {
		RecordingID string `gorm:"column:recording_id"`
		N           int64  `gorm:"column:n"`
	}
	err := s.db.Model(&models.Vote{}).
		Select("recording_id, COUNT(*) AS n").
		Where("recording_id IN ?", recordingIDs).
		Group("recording_id").
		Scan(&rows).Error
	if err != nil {
		s.log.Warn().Err(err).Msg("vote counts failed")
		return out
	}
	for _, r := range rows {
		out[r.RecordingID] = r.N
	}
	return out
}

func yearOr(y *int, def int) int {
	if y == nil {
		return def
	}
	return *y
}
