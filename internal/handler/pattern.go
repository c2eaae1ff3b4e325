package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"exec-guard/internal/approval"
)

type PatternHandler struct {
	Approvals Approvals
}

func (h *PatternHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"patterns": h.Approvals.GetRestrictedPatterns()})
}

type patternBody struct {
	Pattern string `json:"pattern"`
}

func (h *PatternHandler) Add(c *gin.Context) {
	var body patternBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if err := h.Approvals.AddRestrictedPattern(body.Pattern); err != nil {
		if errors.Is(err, approval.ErrEmptyPattern) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Pattern is required"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to add pattern"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"patterns": h.Approvals.GetRestrictedPatterns()})
}

func (h *PatternHandler) Remove(c *gin.Context) {
	pattern := c.Query("pattern")
	if pattern == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Pattern is required"})
		return
	}
	if !h.Approvals.RemoveRestrictedPattern(pattern) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Pattern not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"patterns": h.Approvals.GetRestrictedPatterns()})
}
