package handler

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
)

type AccessHandler struct {
	Access AccessControl
}

func (h *AccessHandler) Get(c *gin.Context) {
	s, err := h.Access.State()
	if err != nil {
		log.Printf("handler: read access control: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Access control unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"networkAccess": s.NetworkEnabled(), "filesystemAccess": s.FilesystemEnabled()})
}

type accessBody struct {
	NetworkAccess *bool `json:"networkAccess"`
}

func (h *AccessHandler) Update(c *gin.Context) {
	var body accessBody
	if err := c.ShouldBindJSON(&body); err != nil || body.NetworkAccess == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	s, err := h.Access.SetNetworkAccess(*body.NetworkAccess)
	if err != nil {
		log.Printf("handler: update access control: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update access control"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"networkAccess": s.NetworkEnabled(), "filesystemAccess": s.FilesystemEnabled()})
}
