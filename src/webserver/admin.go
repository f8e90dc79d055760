package webserver

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/stake-plus/bottlebot/src/bottles"
	"github.com/stake-plus/bottlebot/src/registry"
	"github.com/stake-plus/bottlebot/src/shared/models"
)

// AdminMiddleware lets through only users flagged as bot admins.
func AdminMiddleware(users *registry.Users) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString(userKey)
		ok, err := users.IsAdmin(c.Request.Context(), userID)
		if err != nil {
			internalError(c, "admin check", err)
			c.Abort()
			return
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"err": "admin access required"})
			return
		}
		c.Next()
	}
}

type adminHandlers struct {
	store    *bottles.Store
	users    *registry.Users
	operator Operator
	sweeper  Sweeper
}

func (h *adminHandlers) listBottles(c *gin.Context) {
	status := models.BottleStatus(c.DefaultQuery("status", string(models.BottleMatched)))
	switch status {
	case models.BottlePending, models.BottleMatched, models.BottleDelivered, models.BottleExpired:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"err": "unknown status"})
		return
	}
	limit, err := queryLimit(c, 50, 500)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}
	list, err := h.store.ListByStatus(c.Request.Context(), status, limit)
	if err != nil {
		internalError(c, "list bottles", err)
		return
	}
	out := make([]bottleView, 0, len(list))
	for i := range list {
		out = append(out, newBottleView(&list[i]))
	}
	c.JSON(http.StatusOK, out)
}

func (h *adminHandlers) redeliver(c *gin.Context) {
	id, ok := bottleID(c)
	if !ok {
		return
	}
	err := h.operator.Redeliver(c.Request.Context(), id)
	switch {
	case errors.Is(err, bottles.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"err": "bottle not found"})
	case errors.Is(err, bottles.ErrNotMatched):
		c.JSON(http.StatusConflict, gin.H{"err": "bottle is not awaiting delivery"})
	case err != nil:
		// The failure is already recorded on the bottle.
		c.JSON(http.StatusBadGateway, gin.H{"err": bottles.FailureText(err)})
	default:
		zap.L().Info("webserver: bottle redelivered", zap.Uint64("bottle_id", id), zap.String("by", c.GetString(userKey)))
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func (h *adminHandlers) expire(c *gin.Context) {
	id, ok := bottleID(c)
	if !ok {
		return
	}
	changed, err := h.operator.Expire(c.Request.Context(), id)
	if err != nil {
		internalError(c, "expire bottle", err)
		return
	}
	if !changed {
		c.JSON(http.StatusConflict, gin.H{"err": "bottle is not pending"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *adminHandlers) sweep(c *gin.Context) {
	n, err := h.sweeper.RunOnce(c.Request.Context())
	if err != nil {
		internalError(c, "sweep", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"expired": n})
}

func (h *adminHandlers) removeUser(c *gin.Context) {
	n, err := h.users.Remove(c.Request.Context(), c.Param("id"))
	if err != nil {
		internalError(c, "remove user", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "expired": n})
}

func bottleID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"err": "invalid bottle id"})
		return 0, false
	}
	return id, true
}
