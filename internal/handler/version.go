package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Version is set at build time by the command package.
var Version = "dev"

type VersionHandler struct{}

func (h *VersionHandler) Get(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"version": Version})
}
