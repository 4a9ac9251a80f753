// Package musicbrainz is a thin typed client for the MusicBrainz web
// service. Every operation converts upstream failures (non-2xx, bad JSON,
// transport errors) into empty results; callers never see an error.
package musicbrainz

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"headhunter/logging"
	"headhunter/metrics"
)

const (
	// DefaultBaseURL is the public MusicBrainz API root.
	DefaultBaseURL = "https://musicbrainz.org/ws/2"

	coverArtTemplate = "https://coverartarchive.org/release/%s/front-250"

	searchLimit         = 6
	workRecordingsLimit = 50
)

type Client struct {
	base      string
	userAgent string
	http      *http.Client
	log       zerolog.Logger
}

// New builds a client. appURL identifies this deployment in the User-Agent
// header, which MusicBrainz requires of all consumers.
func New(baseURL, appURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		base:      strings.TrimRight(baseURL, "/"),
		userAgent: fmt.Sprintf("HeadHunter/0.1 (%s)", appURL),
		http: &http.Client{
			Timeout:   30 * time.Second,
			Transport: newCachingTransport(nil, cacheTTL),
		},
		log: logging.WithComponent("musicbrainz"),
	}
}

// --- wire shapes (upstream JSON, decoded narrowly) ---

type mbArtistCredit struct {
	Name string `json:"name"`
}

type mbTrack struct {
	ID           string           `json:"id"`
	Title        string           `json:"title"`
	Length       *int             `json:"length"`
	ArtistCredit []mbArtistCredit `json:"artist-credit"`
	ISRCs        []string         `json:"isrcs"`
}

type mbRelease struct {
	ID           string           `json:"id"`
	Title        string           `json:"title"`
	Date         string           `json:"date"`
	Country      string           `json:"country"`
	Status       string           `json:"status"`
	Packaging    string           `json:"packaging"`
	Barcode      string           `json:"barcode"`
	ArtistCredit []mbArtistCredit `json:"artist-credit"`
	TrackList    []mbTrack        `json:"track-list"`
	ReleaseGroup struct {
		PrimaryType string `json:"primary-type"`
	} `json:"release-group"`
	LabelInfo []struct {
		Label struct {
			Name string `json:"name"`
		} `json:"label"`
	} `json:"label-info"`
	Media []struct {
		Format     string `json:"format"`
		TrackCount int    `json:"track-count"`
	} `json:"media"`
}

type mbRecording struct {
	ID           string           `json:"id"`
	Title        string           `json:"title"`
	Length       *int             `json:"length"`
	ISRCs        []string         `json:"isrcs"`
	Releases     []mbRelease      `json:"releases"`
	ArtistCredit []mbArtistCredit `json:"artist-credit"`
	Relations    []struct {
		Attributes []string `json:"attributes"`
	} `json:"relations"`
}

type mbArtist struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Disambiguation string `json:"disambiguation"`
	Country        string `json:"country"`
	LifeSpan       struct {
		Begin string `json:"begin"`
		End   string `json:"end"`
	} `json:"life-span"`
	Recordings []mbRecording `json:"recordings"`
	Releases   []mbRelease   `json:"releases"`
}

type mbWork struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// --- normalized records ---

type WorkResult struct {
	ID    string
	Title string
}

type RecordingResult struct {
	ID         string
	Title      string
	Artist     *string
	Year       *int
	ArtworkURL *string
}

type ArtistResult struct {
	ID             string
	Name           string
	Disambiguation *string
}

type ReleaseResult struct {
	ID         string
	Title      string
	Year       *int
	ArtworkURL *string
}

// WorkRecording is one recording of a work, flattened for the recordings
// table on a work page.
type WorkRecording struct {
	MBRecordingID string   `json:"mb_recording_id"`
	ArtistName    *string  `json:"artist_name"`
	TrackTitle    *string  `json:"track_title"`
	AlbumName     *string  `json:"album_name"`
	ReleaseYear   *int     `json:"release_year"`
	ISRC          *string  `json:"isrc"`
	ArtworkURL    *string  `json:"artwork_url"`
	Country       *string  `json:"country"`
	Instruments   []string `json:"instruments"`
	LengthMS      *int     `json:"length_ms"`
}

type ArtistRecording struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	ReleaseTitle *string `json:"release_title"`
	ReleaseDate  *string `json:"release_date"`
	LengthMS     *int    `json:"length_ms"`
}

type ArtistRelease struct {
	ID      string  `json:"id"`
	Title   string  `json:"title"`
	Date    *string `json:"date"`
	Country *string `json:"country"`
}

type ArtistDetail struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	Disambiguation *string           `json:"disambiguation"`
	Country        *string           `json:"country"`
	BeginDate      *string           `json:"begin_date"`
	EndDate        *string           `json:"end_date"`
	TopRecordings  []ArtistRecording `json:"top_recordings"`
	TopReleases    []ArtistRelease   `json:"top_releases"`
}

type ReleaseTrack struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	LengthMS     *int    `json:"length_ms"`
	ArtistCredit *string `json:"artist_credit"`
	ISRC         *string `json:"isrc"`
}

type ReleaseMedia struct {
	Format *string `json:"format,omitempty"`
	Tracks *int    `json:"tracks,omitempty"`
}

type ReleaseDetail struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Date         *string        `json:"date"`
	Country      *string        `json:"country"`
	ArtistCredit *string        `json:"artist_credit"`
	Tracks       []ReleaseTrack `json:"tracks"`
	CoverArt     string         `json:"cover_art"`
	Genre        *string        `json:"genre"`
	Label        *string        `json:"label"`
	Barcode      *string        `json:"barcode"`
	Status       *string        `json:"status"`
	Packaging    *string        `json:"packaging"`
	Media        []ReleaseMedia `json:"media"`
}

// --- search ---

// SearchWorks runs a work search, limit 6. Empty on any failure.
func (c *Client) SearchWorks(ctx context.Context, query string) []WorkResult {
	var payload struct {
		Works []mbWork `json:"works"`
	}
	if !c.search(ctx, "work", query, &payload) {
		return nil
	}
	out := make([]WorkResult, 0, len(payload.Works))
	for _, w := range payload.Works {
		if w.ID == "" || w.Title == "" {
			continue
		}
		out = append(out, WorkResult{ID: w.ID, Title: w.Title})
	}
	return out
}

// SearchRecordings runs a recording search, limit 6. The first release of a
// recording determines its displayed year and cover art.
func (c *Client) SearchRecordings(ctx context.Context, query string) []RecordingResult {
	var payload struct {
		Recordings []mbRecording `json:"recordings"`
	}
	if !c.search(ctx, "recording", query, &payload) {
		return nil
	}
	out := make([]RecordingResult, 0, len(payload.Recordings))
	for _, r := range payload.Recordings {
		if r.ID == "" || r.Title == "" {
			continue
		}
		res := RecordingResult{ID: r.ID, Title: r.Title, Artist: JoinArtistCredit(r.ArtistCredit)}
		if len(r.Releases) > 0 {
			res.Year = Year(r.Releases[0].Date)
			if r.Releases[0].ID != "" {
				res.ArtworkURL = ptr(CoverArtURL(r.Releases[0].ID))
			}
		}
		out = append(out, res)
	}
	return out
}

// SearchArtists runs an artist search, limit 6.
func (c *Client) SearchArtists(ctx context.Context, query string) []ArtistResult {
	var payload struct {
		Artists []mbArtist `json:"artists"`
	}
	if !c.search(ctx, "artist", query, &payload) {
		return nil
	}
	out := make([]ArtistResult, 0, len(payload.Artists))
	for _, a := range payload.Artists {
		if a.ID == "" || a.Name == "" {
			continue
		}
		out = append(out, ArtistResult{ID: a.ID, Name: a.Name, Disambiguation: optional(a.Disambiguation)})
	}
	return out
}

// SearchReleases runs a release search, limit 6.
func (c *Client) SearchReleases(ctx context.Context, query string) []ReleaseResult {
	var payload struct {
		Releases []mbRelease `json:"releases"`
	}
	if !c.search(ctx, "release", query, &payload) {
		return nil
	}
	out := make([]ReleaseResult, 0, len(payload.Releases))
	for _, r := range payload.Releases {
		if r.ID == "" || r.Title == "" {
			continue
		}
		out = append(out, ReleaseResult{
			ID:         r.ID,
			Title:      r.Title,
			Year:       Year(r.Date),
			ArtworkURL: ptr(CoverArtURL(r.ID)),
		})
	}
	return out
}

// --- lookups ---

// LookupArtist fetches one artist with its recordings and releases. The
// first artist in the response is canonical; nil when missing or on error.
func (c *Client) LookupArtist(ctx context.Context, mbid string) *ArtistDetail {
	if mbid == "" {
		return nil
	}
	q := url.Values{}
	q.Set("mbid", mbid)
	q.Set("inc", "recordings+releases+tags")

	var payload struct {
		Artists []mbArtist `json:"artists"`
	}
	if err := c.get(ctx, "/artist", q, &payload); err != nil {
		metrics.UpstreamRequests.WithLabelValues("artist-lookup", "error").Inc()
		c.log.Warn().Err(err).Str("mbid", mbid).Msg("artist lookup failed")
		return nil
	}
	metrics.UpstreamRequests.WithLabelValues("artist-lookup", "ok").Inc()

	if len(payload.Artists) == 0 {
		return nil
	}
	artist := payload.Artists[0]
	if artist.ID == "" || artist.Name == "" {
		return nil
	}

	detail := &ArtistDetail{
		ID:             artist.ID,
		Name:           artist.Name,
		Disambiguation: optional(artist.Disambiguation),
		Country:        optional(artist.Country),
		BeginDate:      optional(artist.LifeSpan.Begin),
		EndDate:        optional(artist.LifeSpan.End),
		TopRecordings:  []ArtistRecording{},
		TopReleases:    []ArtistRelease{},
	}
	for _, rec := range truncate(artist.Recordings, 10) {
		if rec.ID == "" || rec.Title == "" {
			continue
		}
		entry := ArtistRecording{ID: rec.ID, Title: rec.Title, LengthMS: rec.Length}
		if len(rec.Releases) > 0 {
			entry.ReleaseTitle = optional(rec.Releases[0].Title)
			entry.ReleaseDate = optional(rec.Releases[0].Date)
		}
		detail.TopRecordings = append(detail.TopRecordings, entry)
	}
	for _, rel := range truncate(artist.Releases, 10) {
		if rel.ID == "" || rel.Title == "" {
			continue
		}
		detail.TopReleases = append(detail.TopReleases, ArtistRelease{
			ID:      rel.ID,
			Title:   rel.Title,
			Date:    optional(rel.Date),
			Country: optional(rel.Country),
		})
	}
	return detail
}

// LookupRelease fetches one release with its track list and label info.
func (c *Client) LookupRelease(ctx context.Context, mbid string) *ReleaseDetail {
	if mbid == "" {
		return nil
	}
	q := url.Values{}
	q.Set("mbid", mbid)
	q.Set("inc", "recordings+artists+isrcs+labels+release-groups")

	var payload struct {
		Releases []mbRelease `json:"releases"`
	}
	if err := c.get(ctx, "/release", q, &payload); err != nil {
		metrics.UpstreamRequests.WithLabelValues("release-lookup", "error").Inc()
		c.log.Warn().Err(err).Str("mbid", mbid).Msg("release lookup failed")
		return nil
	}
	metrics.UpstreamRequests.WithLabelValues("release-lookup", "ok").Inc()

	if len(payload.Releases) == 0 {
		return nil
	}
	release := payload.Releases[0]
	if release.ID == "" || release.Title == "" {
		return nil
	}

	detail := &ReleaseDetail{
		ID:           release.ID,
		Title:        release.Title,
		Date:         optional(release.Date),
		Country:      optional(release.Country),
		ArtistCredit: JoinArtistCredit(release.ArtistCredit),
		Tracks:       []ReleaseTrack{},
		CoverArt:     CoverArtURL(release.ID),
		Genre:        optional(release.ReleaseGroup.PrimaryType),
		Barcode:      optional(release.Barcode),
		Status:       optional(release.Status),
		Packaging:    optional(release.Packaging),
		Media:        []ReleaseMedia{},
	}
	if len(release.LabelInfo) > 0 {
		detail.Label = optional(release.LabelInfo[0].Label.Name)
	}
	for _, track := range release.TrackList {
		if track.ID == "" || track.Title == "" {
			continue
		}
		detail.Tracks = append(detail.Tracks, ReleaseTrack{
			ID:           track.ID,
			Title:        track.Title,
			LengthMS:     track.Length,
			ArtistCredit: JoinArtistCredit(track.ArtistCredit),
			ISRC:         firstString(track.ISRCs),
		})
	}
	for _, m := range release.Media {
		media := ReleaseMedia{Format: optional(m.Format)}
		if m.TrackCount > 0 {
			media.Tracks = ptr(m.TrackCount)
		}
		detail.Media = append(detail.Media, media)
	}
	return detail
}

// RecordingsByWork searches recordings linked to a work, limit 50, with
// artists, releases, ISRCs, relations and tags included.
func (c *Client) RecordingsByWork(ctx context.Context, workMBID string) []WorkRecording {
	if workMBID == "" {
		return nil
	}
	q := url.Values{}
	q.Set("query", "work:"+workMBID)
	q.Set("inc", "artists+releases+isrcs+artist-rels+work-rels+tags")
	q.Set("limit", strconv.Itoa(workRecordingsLimit))

	var payload struct {
		Recordings []mbRecording `json:"recordings"`
	}
	if err := c.get(ctx, "/recording", q, &payload); err != nil {
		metrics.UpstreamRequests.WithLabelValues("work-recordings", "error").Inc()
		c.log.Warn().Err(err).Str("work", workMBID).Msg("work recordings failed")
		return nil
	}
	metrics.UpstreamRequests.WithLabelValues("work-recordings", "ok").Inc()
	c.log.Debug().Int("count", len(payload.Recordings)).Str("work", workMBID).Msg("work recordings fetched")

	out := make([]WorkRecording, 0, len(payload.Recordings))
	for _, r := range payload.Recordings {
		rec := WorkRecording{
			MBRecordingID: r.ID,
			ArtistName:    JoinArtistCredit(r.ArtistCredit),
			TrackTitle:    optional(r.Title),
			ISRC:          firstString(r.ISRCs),
			LengthMS:      r.Length,
			Instruments:   []string{},
		}
		if len(r.Releases) > 0 {
			first := r.Releases[0]
			rec.AlbumName = optional(first.Title)
			rec.ReleaseYear = Year(first.Date)
			rec.Country = optional(first.Country)
			if first.ID != "" {
				rec.ArtworkURL = ptr(CoverArtURL(first.ID))
			}
		}
		for _, rel := range r.Relations {
			rec.Instruments = append(rec.Instruments, rel.Attributes...)
		}
		out = append(out, rec)
	}
	return out
}

// --- plumbing ---

func (c *Client) search(ctx context.Context, entity, query string, out any) bool {
	q := url.Values{}
	q.Set("query", query)
	q.Set("limit", strconv.Itoa(searchLimit))
	if err := c.get(ctx, "/"+entity, q, out); err != nil {
		metrics.UpstreamRequests.WithLabelValues(entity+"-search", "error").Inc()
		c.log.Warn().Err(err).Str("entity", entity).Msg("search failed")
		return false
	}
	metrics.UpstreamRequests.WithLabelValues(entity+"-search", "ok").Inc()
	return true
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	q.Set("fmt", "json")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return fmt.Errorf("musicbrainz status %d", res.StatusCode)
	}
	return json.NewDecoder(res.Body).Decode(out)
}

var yearRE = regexp.MustCompile(`^(\d{4})`)

// Year extracts the leading 4-digit run of an ISO-ish date string.
// Absent or non-parsing dates yield nil.
func Year(date string) *int {
	m := yearRE.FindStringSubmatch(date)
	if m == nil {
		return nil
	}
	y, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}
	return &y
}

// JoinArtistCredit joins credited artist names with ", ".
// Empty or missing credit lists yield nil, not an empty string.
func JoinArtistCredit(credits []mbArtistCredit) *string {
	names := make([]string, 0, len(credits))
	for _, ac := range credits {
		if ac.Name != "" {
			names = append(names, ac.Name)
		}
	}
	if len(names) == 0 {
		return nil
	}
	joined := strings.Join(names, ", ")
	return &joined
}

// CoverArtURL synthesizes the Cover Art Archive front-image URL for a
// release. The image is not verified to exist.
func CoverArtURL(releaseID string) string {
	return fmt.Sprintf(coverArtTemplate, releaseID)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func firstString(list []string) *string {
	if len(list) == 0 {
		return nil
	}
	return &list[0]
}

func truncate[T any](list []T, n int) []T {
	if len(list) > n {
		return list[:n]
	}
	return list
}

func ptr[T any](v T) *T {
	return &v
}
