package rest

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	caches "voyager.com/tiltengine/caching"
	"voyager.com/tiltengine/logging"
	"voyager.com/tiltengine/personality"
)

var restLogger = log.With().Str("logger_name", "personality::rest").Logger()

//
// APP error definition
//
type appError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type engineStatus struct {
	GameID   uint64   `json:"gameId"`
	Players  []string `json:"players"`
	Degraded bool     `json:"degraded"`
}

type server struct {
	manager *personality.Manager
	archive *caches.ViewCache
}

// NewRouter builds the read-only debug/analytics API. archive may be nil.
func NewRouter(manager *personality.Manager, archive *caches.ViewCache) *gin.Engine {
	s := &server{manager: manager, archive: archive}
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/games", s.games)
	r.GET("/games/:gameId", s.game)
	r.GET("/games/:gameId/personalities", s.personalities)
	r.GET("/games/:gameId/personalities/:player", s.personality)
	r.GET("/games/:gameId/personalities/:player/snapshots", s.snapshots)
	return r
}

func RunRestServer(manager *personality.Manager, archive *caches.ViewCache, port int) error {
	r := NewRouter(manager, archive)
	restLogger.Info().Msgf("Listening on port %d", port)
	return r.Run(fmt.Sprintf(":%d", port))
}

func writeError(c *gin.Context, code int, message string) {
	c.IndentedJSON(code, appError{
		Code:    code,
		Message: message,
	})
}

func parseGameID(c *gin.Context) (uint64, bool) {
	gameIDStr := c.Param("gameId")
	gameID, err := strconv.ParseUint(gameIDStr, 10, 64)
	if err != nil || gameID == 0 {
		writeError(c, http.StatusBadRequest, fmt.Sprintf("Invalid game id %s", gameIDStr))
		return 0, false
	}
	return gameID, true
}

func (s *server) games(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"games": s.manager.GameIDs()})
}

func (s *server) game(c *gin.Context) {
	gameID, ok := parseGameID(c)
	if !ok {
		return
	}
	engine, ok := s.manager.GetEngine(gameID)
	if !ok {
		writeError(c, http.StatusNotFound, fmt.Sprintf("Game %d is not active", gameID))
		return
	}
	c.JSON(http.StatusOK, engineStatus{
		GameID:   gameID,
		Players:  engine.Players(),
		Degraded: engine.Degraded(),
	})
}

func (s *server) personalities(c *gin.Context) {
	gameID, ok := parseGameID(c)
	if !ok {
		return
	}
	var views []personality.PersonalityView
	if engine, ok := s.manager.GetEngine(gameID); ok {
		views = engine.Views()
	} else if s.archive != nil {
		views = s.archive.GameViews(gameID)
	}
	if views == nil {
		writeError(c, http.StatusNotFound, fmt.Sprintf("No personalities for game %d", gameID))
		return
	}
	c.JSON(http.StatusOK, views)
}

func (s *server) personality(c *gin.Context) {
	gameID, ok := parseGameID(c)
	if !ok {
		return
	}
	player := c.Param("player")
	view, ok := s.manager.View(gameID, player)
	if !ok {
		writeError(c, http.StatusNotFound, fmt.Sprintf("No personality for player %s in game %d", player, gameID))
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *server) snapshots(c *gin.Context) {
	gameID, ok := parseGameID(c)
	if !ok {
		return
	}
	player := c.Param("player")
	snapshots, err := s.manager.Store().ListSnapshots(c.Request.Context(), gameID, player)
	if err != nil {
		restLogger.Error().Err(err).Uint64(logging.GameIDKey, gameID).Msg("Unable to list snapshots")
		writeError(c, http.StatusServiceUnavailable, err.Error())
		return
	}
	if snapshots == nil {
		snapshots = []personality.Snapshot{}
	}
	c.JSON(http.StatusOK, snapshots)
}
