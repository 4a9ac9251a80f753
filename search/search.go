// Package search fans a free-text query out across four MusicBrainz entity
// kinds plus the local standards table and merges the results into one list.
package search

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"headhunter/logging"
	"headhunter/musicbrainz"
	"headhunter/store"
)

const localLimit = 5

// jazzClause restricts work/recording/release queries to the jazz-only view.
const jazzClause = ` AND (tag:jazz OR genre:jazz OR tag:jazz-standard OR tag:jazz-composition)`

// artistJazzClause is the narrower variant used for artist queries.
const artistJazzClause = ` AND (tag:jazz OR genre:jazz)`

// Result is one entry of the merged list, tagged with its entity kind.
type Result struct {
	Type       string  `json:"type"`
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Subtitle   *string `json:"subtitle,omitempty"`
	Year       *int    `json:"year,omitempty"`
	ArtworkURL *string `json:"artwork_url,omitempty"`
	Slug       string  `json:"slug,omitempty"`
}

// Options are the optional facets and ordering of a search.
type Options struct {
	Artist     string
	Instrument string
	YearFrom   *int // nil when absent or non-parsing
	YearTo     *int
	JazzOnly   bool
	Sort       string // "", "title", "year", "artist"
}

type Aggregator struct {
	mb    *musicbrainz.Client
	store *store.Store
	log   zerolog.Logger
}

func New(mb *musicbrainz.Client, st *store.Store) *Aggregator {
	return &Aggregator{mb: mb, store: st, log: logging.WithComponent("search")}
}

// Search merges work, recording, artist and release matches from MusicBrainz
// with a local standards title search. Sources run concurrently and fail
// independently; flatten order is fixed (work, recording, artist, release,
// local). An empty query short-circuits without any network call.
func (a *Aggregator) Search(ctx context.Context, q string, opts Options) []Result {
	q = strings.TrimSpace(q)
	if q == "" {
		return []Result{}
	}

	queries := buildQueries(q, opts)

	var (
		works      []musicbrainz.WorkResult
		recordings []musicbrainz.RecordingResult
		artists    []musicbrainz.ArtistResult
		releases   []musicbrainz.ReleaseResult
		locals     []Result
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		works = a.mb.SearchWorks(gctx, queries.work)
		return nil
	})
	g.Go(func() error {
		recordings = a.mb.SearchRecordings(gctx, queries.recording)
		return nil
	})
	g.Go(func() error {
		artists = a.mb.SearchArtists(gctx, queries.artist)
		return nil
	})
	g.Go(func() error {
		releases = a.mb.SearchReleases(gctx, queries.release)
		return nil
	})
	g.Go(func() error {
		for _, std := range a.store.SearchStandards(q, localLimit) {
			if std.ID == "" || std.Title == "" || std.Slug == "" {
				continue
			}
			locals = append(locals, Result{
				Type:  "local-standard",
				ID:    std.ID,
				Title: std.Title,
				Slug:  std.Slug,
			})
		}
		return nil
	})
	_ = g.Wait() // sources never return errors; they degrade to empty

	results := make([]Result, 0, len(works)+len(recordings)+len(artists)+len(releases)+len(locals))
	for _, w := range works {
		results = append(results, Result{Type: "work", ID: w.ID, Title: w.Title})
	}
	for _, r := range recordings {
		results = append(results, Result{
			Type:       "recording",
			ID:         r.ID,
			Title:      r.Title,
			Subtitle:   r.Artist,
			Year:       r.Year,
			ArtworkURL: r.ArtworkURL,
		})
	}
	for _, art := range artists {
		results = append(results, Result{Type: "artist", ID: art.ID, Title: art.Name, Subtitle: art.Disambiguation})
	}
	album := "Album"
	for _, rel := range releases {
		results = append(results, Result{
			Type:       "release",
			ID:         rel.ID,
			Title:      rel.Title,
			Subtitle:   &album,
			Year:       rel.Year,
			ArtworkURL: rel.ArtworkURL,
		})
	}
	results = append(results, locals...)

	sortResults(results, opts.Sort)
	return results
}

type kindQueries struct {
	work      string
	recording string
	artist    string
	release   string
}

func buildQueries(q string, opts Options) kindQueries {
	recParts := []string{`recording:"` + q + `"`}
	relParts := []string{`release:"` + q + `"`}
	if opts.Artist != "" {
		clause := `artist:"` + opts.Artist + `"`
		recParts = append(recParts, clause)
		relParts = append(relParts, clause)
	}
	if opts.YearFrom != nil || opts.YearTo != nil {
		from, to := "0000", "9999"
		if opts.YearFrom != nil {
			from = fmt.Sprintf("%d", *opts.YearFrom)
		}
		if opts.YearTo != nil {
			to = fmt.Sprintf("%d", *opts.YearTo)
		}
		clause := fmt.Sprintf("date:[%s TO %s]", from, to)
		recParts = append(recParts, clause)
		relParts = append(relParts, clause)
	}
	if opts.Instrument != "" {
		recParts = append(recParts, "tag:"+opts.Instrument)
	}

	out := kindQueries{
		work:      q,
		recording: strings.Join(recParts, " AND "),
		artist:    `artist:"` + q + `"`,
		release:   strings.Join(relParts, " AND "),
	}
	if opts.JazzOnly {
		out.work += jazzClause
		out.recording += jazzClause
		out.release += jazzClause
		out.artist += artistJazzClause
	}
	return out
}

// sortResults re-ranks in place when a sort key is requested; the default
// order is source-arrival order ("relevance"). Missing years sort as 9999,
// the same rule the work-recordings path uses.
func sortResults(results []Result, key string) {
	switch key {
	case "title":
		sort.SliceStable(results, func(i, j int) bool {
			return strings.ToLower(results[i].Title) < strings.ToLower(results[j].Title)
		})
	case "year":
		sort.SliceStable(results, func(i, j int) bool {
			return yearOr(results[i].Year, 9999) < yearOr(results[j].Year, 9999)
		})
	case "artist":
		sort.SliceStable(results, func(i, j int) bool {
			return strings.ToLower(subtitleOr(results[i].Subtitle)) < strings.ToLower(subtitleOr(results[j].Subtitle))
		})
	}
}

func yearOr(y *int, def int) int {
	if y == nil {
		return def
	}
	return *y
}

func subtitleOr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
