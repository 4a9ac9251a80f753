package handlers

import (
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"headhunter/logging"
	"headhunter/metrics"
	"headhunter/musicbrainz"
	"headhunter/search"
	"headhunter/store"
)

// Server bundles the handler dependencies. Everything is constructed
// explicitly; there is no package-level state.
type Server struct {
	store     *store.Store
	mb        *musicbrainz.Client
	agg       *search.Aggregator
	jwtSecret []byte
	log       zerolog.Logger
}

func New(st *store.Store, mb *musicbrainz.Client, agg *search.Aggregator, jwtSecret string) *Server {
	return &Server{
		store:     st,
		mb:        mb,
		agg:       agg,
		jwtSecret: []byte(jwtSecret),
		log:       logging.WithComponent("http"),
	}
}

// SetupRouter wires all routes onto a fresh gin engine.
func SetupRouter(s *Server) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.log))

	api := r.Group("/api")
	api.GET("/search", s.Search)
	api.GET("/artist/:mbid", s.Artist)
	api.GET("/release/:mbid", s.Release)
	api.GET("/work/:mbid/recordings", s.WorkRecordings)
	api.GET("/recordings", s.Recordings)
	api.POST("/vote", s.Vote)

	r.GET("/healthz", s.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func requestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequests.WithLabelValues(route, c.Request.Method, strconv.Itoa(status)).Inc()
		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Msg("request")
	}
}

// Health reports liveness and database reachability.
func (s *Server) Health(c *gin.Context) {
	if err := s.store.Ping(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Search handles GET /api/search.
func (s *Server) Search(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		c.JSON(http.StatusOK, gin.H{"results": []search.Result{}})
		return
	}

	opts := search.Options{
		Artist:     strings.TrimSpace(c.Query("artist")),
		Instrument: strings.TrimSpace(c.Query("instrument")),
		YearFrom:   parseIntParam(c.Query("year_from")),
		YearTo:     parseIntParam(c.Query("year_to")),
		JazzOnly:   c.DefaultQuery("jazz", "1") != "0",
		Sort:       strings.ToLower(c.Query("sort")),
	}
	results := s.agg.Search(c.Request.Context(), q, opts)
	c.JSON(http.StatusOK, gin.H{"results": results})
}

// Artist handles GET /api/artist/:mbid.
func (s *Server) Artist(c *gin.Context) {
	detail := s.mb.LookupArtist(c.Request.Context(), c.Param("mbid"))
	if detail == nil {
		c.JSON(http.StatusOK, gin.H{"artist": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"artist": detail})
}

// Release handles GET /api/release/:mbid.
func (s *Server) Release(c *gin.Context) {
	detail := s.mb.LookupRelease(c.Request.Context(), c.Param("mbid"))
	if detail == nil {
		c.JSON(http.StatusOK, gin.H{"release": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"release": detail})
}

// workRecordingRow is a WorkRecording overlaid with its local vote count.
type workRecordingRow struct {
	musicbrainz.WorkRecording
	VotesCount int64 `json:"votes_count"`
}

// WorkRecordings handles GET /api/work/:mbid/recordings: fetch, filter,
// overlay vote counts, sort.
func (s *Server) WorkRecordings(c *gin.Context) {
	mbid := c.Param("mbid")
	recs := s.mb.RecordingsByWork(c.Request.Context(), mbid)
	if len(recs) == 0 {
		c.JSON(http.StatusOK, gin.H{"recordings": []workRecordingRow{}})
		return
	}

	mbids := make([]string, len(recs))
	for i, r := range recs {
		mbids[i] = r.MBRecordingID
	}
	counts := s.store.VoteCountsByMBID(mbids)

	filtered := filterWorkRecordings(recs, c)

	rows := make([]workRecordingRow, 0, len(filtered))
	for _, r := range filtered {
		rows = append(rows, workRecordingRow{WorkRecording: r, VotesCount: counts[r.MBRecordingID]})
	}

	sortWorkRecordings(rows, strings.ToLower(c.DefaultQuery("sort", "votes_desc")))
	c.JSON(http.StatusOK, gin.H{"recordings": rows})
}

// Recordings handles GET /api/recordings?slug=. Unknown slugs return an
// empty list with HTTP 200, indistinguishable from a standard with no
// recordings.
func (s *Server) Recordings(c *gin.Context) {
	slug := strings.TrimSpace(c.Query("slug"))
	if slug == "" {
		c.JSON(http.StatusOK, gin.H{"recordings": []store.RecordingRow{}})
		return
	}
	std := s.store.StandardBySlug(slug)
	if std == nil {
		c.JSON(http.StatusOK, gin.H{"recordings": []store.RecordingRow{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"recordings": s.store.RecordingsForStandard(std.ID)})
}

// filterWorkRecordings applies the query-string facets. Missing years fill
// as 0 under a from-check and 9999 under a to-check; missing lengths fill
// as 0 for both length bounds.
func filterWorkRecordings(recs []musicbrainz.WorkRecording, c *gin.Context) []musicbrainz.WorkRecording {
	fArtist := strings.ToLower(strings.TrimSpace(c.Query("artist")))
	fInstrument := strings.ToLower(strings.TrimSpace(c.Query("instrument")))
	fCountry := strings.ToLower(strings.TrimSpace(c.Query("country")))
	fYearFrom := parseIntParam(c.Query("year_from"))
	fYearTo := parseIntParam(c.Query("year_to"))
	fLenFrom := parseFloatParam(c.Query("length_from"))
	fLenTo := parseFloatParam(c.Query("length_to"))

	out := recs
	if fArtist != "" {
		out = keep(out, func(r musicbrainz.WorkRecording) bool {
			return strings.Contains(strings.ToLower(strOr(r.ArtistName)), fArtist)
		})
	}
	if fYearFrom != nil {
		out = keep(out, func(r musicbrainz.WorkRecording) bool {
			return intOr(r.ReleaseYear, 0) >= *fYearFrom
		})
	}
	if fYearTo != nil {
		out = keep(out, func(r musicbrainz.WorkRecording) bool {
			return intOr(r.ReleaseYear, 9999) <= *fYearTo
		})
	}
	if fInstrument != "" {
		out = keep(out, func(r musicbrainz.WorkRecording) bool {
			for _, inst := range r.Instruments {
				if strings.Contains(strings.ToLower(inst), fInstrument) {
					return true
				}
			}
			return false
		})
	}
	if fCountry != "" {
		out = keep(out, func(r musicbrainz.WorkRecording) bool {
			return strings.Contains(strings.ToLower(strOr(r.Country)), fCountry)
		})
	}
	if fLenFrom != nil {
		fromMS := int(math.Round(*fLenFrom * 1000))
		out = keep(out, func(r musicbrainz.WorkRecording) bool {
			return intOr(r.LengthMS, 0) >= fromMS
		})
	}
	if fLenTo != nil {
		toMS := int(math.Round(*fLenTo * 1000))
		out = keep(out, func(r musicbrainz.WorkRecording) bool {
			return intOr(r.LengthMS, 0) <= toMS
		})
	}
	return out
}

// sortWorkRecordings orders rows by the requested key; unknown keys fall
// back to votes_desc. Missing-value fills mirror the filter defaults:
// year_asc treats missing years as 9999, year_desc as -1, length_asc as
// the integer ceiling, length_desc as -1.
func sortWorkRecordings(rows []workRecordingRow, key string) {
	var less func(a, b workRecordingRow) bool
	switch key {
	case "year_asc":
		less = func(a, b workRecordingRow) bool {
			return intOr(a.ReleaseYear, 9999) < intOr(b.ReleaseYear, 9999)
		}
	case "year_desc":
		less = func(a, b workRecordingRow) bool {
			return intOr(a.ReleaseYear, -1) > intOr(b.ReleaseYear, -1)
		}
	case "length_asc":
		less = func(a, b workRecordingRow) bool {
			return intOr(a.LengthMS, math.MaxInt) < intOr(b.LengthMS, math.MaxInt)
		}
	case "length_desc":
		less = func(a, b workRecordingRow) bool {
			return intOr(a.LengthMS, -1) > intOr(b.LengthMS, -1)
		}
	case "artist_asc":
		less = func(a, b workRecordingRow) bool {
			return strOr(a.ArtistName) < strOr(b.ArtistName)
		}
	case "track_asc":
		less = func(a, b workRecordingRow) bool {
			return strOr(a.TrackTitle) < strOr(b.TrackTitle)
		}
	default: // votes_desc
		less = func(a, b workRecordingRow) bool {
			return a.VotesCount > b.VotesCount
		}
	}
	sort.SliceStable(rows, func(i, j int) bool { return less(rows[i], rows[j]) })
}

// parseIntParam returns nil for absent or non-parsing values, so a bad
// year bound behaves like no bound at all.
func parseIntParam(raw string) *int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil
	}
	return &n
}

func parseFloatParam(raw string) *float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	return &f
}

func keep(recs []musicbrainz.WorkRecording, pred func(musicbrainz.WorkRecording) bool) []musicbrainz.WorkRecording {
	out := recs[:0:0]
	for _, r := range recs {
		if pred(r) {
			out = append(out, r)
		}
	}
	return out
}

func strOr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func intOr(n *int, def int) int {
	if n == nil {
		return def
	}
	return *n
}
