package caches

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"

	"voyager.com/tiltengine/personality"
)

const DefaultViewCacheSize = 10000

// ViewCache keeps the final personality views of ended games.
type ViewCache struct {
	views *lru.Cache
	games *lru.Cache
	// serializes updates of the per-game player lists
	gamesLock sync.Mutex
}

func NewViewCache(size int) (*ViewCache, error) {
	if size <= 0 {
		size = DefaultViewCacheSize
	}
	views, err := lru.New(size)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to initialize view cache")
	}
	games, err := lru.New(size)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to initialize game player cache")
	}
	return &ViewCache{
		views: views,
		games: games,
	}, nil
}

func viewKey(gameID uint64, playerName string) string {
	return fmt.Sprintf("%d:%s", gameID, playerName)
}

func (c *ViewCache) Add(view personality.PersonalityView) {
	c.views.Add(viewKey(view.GameID, view.PlayerName), view.Clone())

	c.gamesLock.Lock()
	defer c.gamesLock.Unlock()
	var players []string
	if v, ok := c.games.Get(view.GameID); ok {
		players = v.([]string)
	}
	for _, p := range players {
		if p == view.PlayerName {
			return
		}
	}
	updated := make([]string, len(players), len(players)+1)
	copy(updated, players)
	c.games.Add(view.GameID, append(updated, view.PlayerName))
}

func (c *ViewCache) Get(gameID uint64, playerName string) (personality.PersonalityView, bool) {
	v, exists := c.views.Get(viewKey(gameID, playerName))
	if !exists {
		return personality.PersonalityView{}, false
	}
	return v.(personality.PersonalityView).Clone(), true
}

// GameViews returns the archived views of one game that are still cached.
func (c *ViewCache) GameViews(gameID uint64) []personality.PersonalityView {
	v, exists := c.games.Get(gameID)
	if !exists {
		return nil
	}
	var views []personality.PersonalityView
	for _, playerName := range v.([]string) {
		if view, ok := c.Get(gameID, playerName); ok {
			views = append(views, view)
		}
	}
	return views
}

func (c *ViewCache) Len() int {
	return c.views.Len()
}
