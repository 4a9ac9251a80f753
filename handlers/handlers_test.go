package handlers_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"headhunter/handlers"
	"headhunter/models"
	"headhunter/musicbrainz"
	"headhunter/search"
	"headhunter/store"
)

const testSecret = "test-secret"

func newTestServer(t *testing.T, upstream http.Handler) (*gin.Engine, *store.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	if upstream == nil {
		upstream = http.NotFoundHandler()
	}
	srv := httptest.NewServer(upstream)
	t.Cleanup(srv.Close)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	st, err := store.New(sqlite.Open(dsn))
	require.NoError(t, err)

	mb := musicbrainz.New(srv.URL, "http://localhost:8080")
	agg := search.New(mb, st)
	router := handlers.SetupRouter(handlers.New(st, mb, agg, testSecret))
	return router, st
}

func doJSON(t *testing.T, router *gin.Engine, method, target string, body string, header http.Header) (*httptest.ResponseRecorder, map[string]json.RawMessage) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var payload map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	return w, payload
}

func TestRecordingsEmptyAndUnknownSlug(t *testing.T) {
	router, _ := newTestServer(t, nil)

	for _, target := range []string{"/api/recordings", "/api/recordings?slug=no_such_standard"} {
		w, payload := doJSON(t, router, http.MethodGet, target, "", nil)
		assert.Equal(t, http.StatusOK, w.Code, target)
		assert.JSONEq(t, "[]", string(payload["recordings"]), target)
	}
}

func TestRecordingsForStandard(t *testing.T) {
	router, st := newTestServer(t, nil)

	std := models.Standard{Title: "Take Five", Slug: "take_five"}
	require.NoError(t, st.CreateStandard(&std))
	title := "Take Five"
	require.NoError(t, st.CreateRecording(&models.Recording{StandardID: &std.ID, TrackTitle: &title}))

	w, payload := doJSON(t, router, http.MethodGet, "/api/recordings?slug=take_five", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var rows []store.RecordingRow
	require.NoError(t, json.Unmarshal(payload["recordings"], &rows))
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].TrackTitle)
	assert.Equal(t, "Take Five", *rows[0].TrackTitle)
	assert.Equal(t, int64(0), rows[0].VotesCount)
}

func TestSearchEmptyQuery(t *testing.T) {
	router, _ := newTestServer(t, nil)
	w, payload := doJSON(t, router, http.MethodGet, "/api/search?q=", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", string(payload["results"]))
}

func TestSearchReturnsWorkEntry(t *testing.T) {
	router, _ := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/work") {
			w.Write([]byte(`{"works":[{"id":"w1","title":"Take Five"}]}`))
			return
		}
		w.Write([]byte(`{}`))
	}))

	w, payload := doJSON(t, router, http.MethodGet, "/api/search?q=Take+Five", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var results []search.Result
	require.NoError(t, json.Unmarshal(payload["results"], &results))
	require.NotEmpty(t, results)
	assert.Equal(t, "work", results[0].Type)
	assert.Contains(t, results[0].Title, "Take Five")
}

func TestSearchUpstreamFailureNever5xx(t *testing.T) {
	router, _ := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	w, payload := doJSON(t, router, http.MethodGet, "/api/search?q=anything", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", string(payload["results"]))
}

func TestArtistAndReleaseNullOnFailure(t *testing.T) {
	router, _ := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	w, payload := doJSON(t, router, http.MethodGet, "/api/artist/some-mbid", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "null", string(payload["artist"]))

	w, payload = doJSON(t, router, http.MethodGet, "/api/release/some-mbid", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "null", string(payload["release"]))
}

func workRecordingsStub() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"recordings":[
			{"id":"mb-1955","title":"Take Five (early)","artist-credit":[{"name":"Old Quartet"}],
			 "releases":[{"id":"rel-a","title":"Early","date":"1955-01-01"}],"length":200000},
			{"id":"mb-1965","title":"Take Five (live)","artist-credit":[{"name":"Live Quartet"}],
			 "releases":[{"id":"rel-b","title":"Live","date":"1965-06-01"}],"length":400000},
			{"id":"mb-undated","title":"Take Five (bootleg)","artist-credit":[{"name":"Bootleg Band"}]}
		]}`))
	})
}

type workRow struct {
	MBRecordingID string `json:"mb_recording_id"`
	ReleaseYear   *int   `json:"release_year"`
	VotesCount    int64  `json:"votes_count"`
}

func fetchWorkRows(t *testing.T, router *gin.Engine, target string) []workRow {
	t.Helper()
	w, payload := doJSON(t, router, http.MethodGet, target, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var rows []workRow
	require.NoError(t, json.Unmarshal(payload["recordings"], &rows))
	return rows
}

func TestWorkRecordingsYearBoundaries(t *testing.T) {
	router, _ := newTestServer(t, workRecordingsStub())

	// missing years fill as 0 under the from-check: excluded alongside 1955
	rows := fetchWorkRows(t, router, "/api/work/work-1/recordings?year_from=1960")
	require.Len(t, rows, 1)
	assert.Equal(t, "mb-1965", rows[0].MBRecordingID)

	// missing years fill as 9999 under the to-check: excluded
	rows = fetchWorkRows(t, router, "/api/work/work-1/recordings?year_to=1970")
	require.Len(t, rows, 2)
	assert.Equal(t, "mb-1955", rows[0].MBRecordingID)
	assert.Equal(t, "mb-1965", rows[1].MBRecordingID)

	// non-parsing bounds behave as absent
	rows = fetchWorkRows(t, router, "/api/work/work-1/recordings?year_from=abc")
	assert.Len(t, rows, 3)
}

func TestWorkRecordingsSort(t *testing.T) {
	router, _ := newTestServer(t, workRecordingsStub())

	rows := fetchWorkRows(t, router, "/api/work/work-1/recordings?sort=year_asc")
	require.Len(t, rows, 3)
	assert.Equal(t, "mb-1955", rows[0].MBRecordingID)
	assert.Equal(t, "mb-1965", rows[1].MBRecordingID)
	assert.Equal(t, "mb-undated", rows[2].MBRecordingID, "missing years sort as maximal under year_asc")

	rows = fetchWorkRows(t, router, "/api/work/work-1/recordings?sort=year_desc")
	require.Len(t, rows, 3)
	assert.Equal(t, "mb-1965", rows[0].MBRecordingID)
	assert.Equal(t, "mb-undated", rows[2].MBRecordingID, "missing years sort last under year_desc")

	rows = fetchWorkRows(t, router, "/api/work/work-1/recordings?sort=length_asc")
	require.Len(t, rows, 3)
	assert.Equal(t, "mb-undated", rows[2].MBRecordingID, "missing lengths sort as maximal under length_asc")
}

func TestWorkRecordingsVoteOverlay(t *testing.T) {
	router, st := newTestServer(t, workRecordingsStub())

	id, err := st.ResolveRecording(store.RecordingFields{MBRecordingID: "mb-undated"})
	require.NoError(t, err)
	require.NoError(t, st.CreateVote("user-1", id))

	rows := fetchWorkRows(t, router, "/api/work/work-1/recordings")
	require.Len(t, rows, 3)
	assert.Equal(t, "mb-undated", rows[0].MBRecordingID, "votes_desc is the default sort")
	assert.Equal(t, int64(1), rows[0].VotesCount)
	assert.Equal(t, int64(0), rows[1].VotesCount)
}

func TestWorkRecordingsUpstreamFailure(t *testing.T) {
	router, _ := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json at all"))
	}))

	w, payload := doJSON(t, router, http.MethodGet, "/api/work/work-1/recordings", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", string(payload["recordings"]))
}

func TestHealthz(t *testing.T) {
	router, _ := newTestServer(t, nil)
	w, _ := doJSON(t, router, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
