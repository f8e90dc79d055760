package webserver

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/stake-plus/bottlebot/src/bottles"
	"github.com/stake-plus/bottlebot/src/registry"
	"github.com/stake-plus/bottlebot/src/shared/models"
)

type guildView struct {
	ID              string `json:"id"`
	State           string `json:"state"`
	XP              int64  `json:"xp"`
	BottleChannelID string `json:"bottleChannelId,omitempty"`
	Invite          string `json:"invite,omitempty"`
	Public          bool   `json:"public"`
}

func newGuildView(g *models.Guild) guildView {
	v := guildView{ID: g.ID, State: string(g.State()), XP: g.XP, Public: g.IsPublic()}
	if g.BottleChannelID != nil {
		v.BottleChannelID = *g.BottleChannelID
	}
	if g.Invite != nil {
		v.Invite = *g.Invite
	}
	return v
}

type bottleView struct {
	ID          uint64     `json:"id"`
	Origin      string     `json:"origin"`
	Status      string     `json:"status"`
	PairedID    *uint64    `json:"pairedId,omitempty"`
	DeliveredAt *time.Time `json:"deliveredAt,omitempty"`
	LastError   string     `json:"lastError,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// newBottleView leaves out the bottle content.
func newBottleView(b *models.Bottle) bottleView {
	v := bottleView{
		ID:          b.ID,
		Origin:      b.OriginKey,
		Status:      string(b.Status),
		PairedID:    b.PairedID,
		DeliveredAt: b.DeliveredAt,
		CreatedAt:   b.CreatedAt,
	}
	if b.LastError != nil {
		v.LastError = *b.LastError
	}
	return v
}

type publicHandlers struct {
	store  *bottles.Store
	guilds *registry.Guilds
}

func (h *publicHandlers) guild(c *gin.Context) {
	g, err := h.guilds.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, registry.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"err": "guild not found"})
		return
	}
	if err != nil {
		internalError(c, "load guild", err)
		return
	}
	c.JSON(http.StatusOK, newGuildView(g))
}

func (h *publicHandlers) leaderboard(c *gin.Context) {
	limit, err := queryLimit(c, 25, 100)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}
	list, err := h.guilds.Leaderboard(c.Request.Context(), limit)
	if err != nil {
		internalError(c, "leaderboard", err)
		return
	}
	out := make([]guildView, 0, len(list))
	for i := range list {
		out = append(out, newGuildView(&list[i]))
	}
	c.JSON(http.StatusOK, out)
}

func (h *publicHandlers) stats(c *gin.Context) {
	counts, err := h.store.CountByStatus(c.Request.Context())
	if err != nil {
		internalError(c, "count bottles", err)
		return
	}
	out := gin.H{}
	for _, st := range []models.BottleStatus{
		models.BottlePending, models.BottleMatched, models.BottleDelivered, models.BottleExpired,
	} {
		out[string(st)] = counts[st]
	}
	c.JSON(http.StatusOK, out)
}

func queryLimit(c *gin.Context, def, max int) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errors.New("limit must be a positive integer")
	}
	if n > max {
		n = max
	}
	return n, nil
}

func internalError(c *gin.Context, what string, err error) {
	zap.L().Error("webserver: "+what, zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"err": "internal error"})
}
