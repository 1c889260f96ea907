package catalog

import (
	"github.com/gin-gonic/gin"

	"github.com/NWB-044/movietime-gather/pkg/response"
)

// Handler serves the media tree to the admin UI.
type Handler struct {
	svc *Service
}

// NewHandler creates a catalog handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Tree handles GET /catalog (admin only).
func (h *Handler) Tree(c *gin.Context) {
	tree, err := h.svc.Tree()
	if err != nil {
		response.Internal(c, "failed to read media catalog")
		return
	}
	if tree == nil {
		tree = []Entry{}
	}
	response.OK(c, gin.H{"files": tree})
}
