package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"exec-guard/internal/activity"
)

type ActivityHandler struct {
	Log *activity.LogStore
}

// List pages the activity log, or with ?since=<seq> returns everything newer
// than seq so a dashboard can catch up after reconnecting.
func (h *ActivityHandler) List(c *gin.Context) {
	if raw := c.Query("since"); raw != "" {
		seq, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || seq < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid since"})
			return
		}
		events := h.Log.Since(seq)
		c.JSON(http.StatusOK, gin.H{"events": events, "total": len(events)})
		return
	}

	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid offset"})
		return
	}
	limit, err := queryInt(c, "limit", 100)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
		return
	}
	events, total := h.Log.List(offset, limit)
	c.JSON(http.StatusOK, gin.H{"events": events, "total": total})
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, strconv.ErrSyntax
	}
	return n, nil
}
