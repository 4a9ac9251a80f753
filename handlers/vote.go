package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"headhunter/store"
)

// voteRequest names either a known local recording or an external
// MusicBrainz recording with enough metadata to materialize it.
type voteRequest struct {
	RecordingID   string  `json:"recordingId"`
	MBRecordingID string  `json:"mbRecordingId"`
	ArtistName    *string `json:"artistName"`
	TrackTitle    *string `json:"trackTitle"`
	AlbumName     *string `json:"albumName"`
	ReleaseYear   *int    `json:"releaseYear"`
	ISRC          *string `json:"isrc"`
}

// Vote handles POST /api/vote. No anonymous votes: the caller must present
// a bearer token issued by the auth provider. A vote is never partially
// recorded; any store failure reports "db" with nothing written.
func (s *Server) Vote(c *gin.Context) {
	userID := s.authenticatedUser(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"ok": false, "reason": "auth"})
		return
	}

	var req voteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "reason": "db"})
		return
	}

	recordingID := req.RecordingID
	if recordingID == "" && req.MBRecordingID != "" {
		id, err := s.store.ResolveRecording(store.RecordingFields{
			MBRecordingID: req.MBRecordingID,
			ArtistName:    req.ArtistName,
			TrackTitle:    req.TrackTitle,
			AlbumName:     req.AlbumName,
			ReleaseYear:   req.ReleaseYear,
			ISRC:          req.ISRC,
		})
		if err != nil {
			s.log.Warn().Err(err).Str("mbid", req.MBRecordingID).Msg("recording resolve failed")
			c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "reason": "db"})
			return
		}
		recordingID = id
	}

	if recordingID == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "reason": "db"})
		return
	}

	if err := s.store.CreateVote(userID, recordingID); err != nil {
		s.log.Warn().Err(err).Msg("vote insert failed")
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "reason": "db"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// authenticatedUser verifies the Authorization bearer token (an HS256 JWT
// signed with the auth provider's shared secret) and returns its subject,
// or "" when absent or invalid.
func (s *Server) authenticatedUser(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	tokenStr := strings.TrimSpace(parts[1])
	if tokenStr == "" || len(s.jwtSecret) == 0 {
		return ""
	}

	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		return s.jwtSecret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return ""
	}
	subject, err := token.Claims.GetSubject()
	if err != nil {
		return ""
	}
	return subject
}
