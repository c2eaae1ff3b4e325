package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"exec-guard/internal/approval"
	"exec-guard/internal/middleware"
	"exec-guard/internal/model"
	"exec-guard/internal/store"
)

const maxHistoryLimit = 1000

type ApprovalHandler struct {
	Approvals Approvals
	History   ApprovalHistory
}

func (h *ApprovalHandler) Pending(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"approvals": h.Approvals.GetPendingApprovals()})
}

func (h *ApprovalHandler) List(c *gin.Context) {
	f := store.ApprovalFilter{
		Decision:   model.Decision(c.Query("decision")),
		SessionKey: c.Query("sessionKey"),
		Limit:      100,
	}
	if f.Decision != "" && !f.Decision.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid decision"})
		return
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		if n > maxHistoryLimit {
			n = maxHistoryLimit
		}
		f.Limit = n
	}
	c.JSON(http.StatusOK, gin.H{"approvals": h.History.ListApprovals(f)})
}

type decisionBody struct {
	Decision model.Decision `json:"decision"`
}

func (h *ApprovalHandler) Decide(c *gin.Context) {
	var body decisionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	id := c.Param("id")
	resolved, err := h.Approvals.HandleDecision(c.Request.Context(), id, body.Decision)
	if errors.Is(err, approval.ErrInvalidDecision) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid decision"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to apply decision"})
		return
	}
	if !resolved {
		c.JSON(http.StatusNotFound, gin.H{"error": "Approval not pending"})
		return
	}

	op, _ := middleware.OperatorFromContext(c)
	c.JSON(http.StatusOK, gin.H{"id": id, "decision": body.Decision, "operator": op})
}
