package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type catalogTypeView struct {
	Code      string `json:"code"`
	CostMinor int64  `json:"cost_minor"`
	Provider  string `json:"provider"`
}

func (s *Server) listCatalogTypes(c *gin.Context) {
	if err := s.catalog.RefreshIfStale(c.Request.Context()); err != nil {
		AbortWithError(c, err)
		return
	}
	costs, err := s.catalog.ListActive(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	views := make([]catalogTypeView, 0, len(costs))
	for _, cost := range costs {
		views = append(views, catalogTypeView{
			Code:      cost.Code,
			CostMinor: cost.CostMinor,
			Provider:  string(cost.Provider),
		})
	}
	c.JSON(http.StatusOK, gin.H{"types": views})
}
