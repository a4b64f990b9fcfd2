package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	ppdomain "github.com/smallbiznis/pledgesync/internal/paymentprovider/domain"
)

func (s *Server) ListProcessors(c *gin.Context) {
	provider := strings.TrimSpace(c.DefaultQuery("provider", ppdomain.ProviderGoCardless))
	items, err := s.providerSvc.List(c.Request.Context(), provider)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if items == nil {
		items = []ppdomain.ProviderConfig{}
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) CreateProcessor(c *gin.Context) {
	var req ppdomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	item, err := s.providerSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": item})
}

func (s *Server) ActivateProcessor(c *gin.Context) {
	s.setProcessorActive(c, true)
}

func (s *Server) DeactivateProcessor(c *gin.Context) {
	s.setProcessorActive(c, false)
}

func (s *Server) setProcessorActive(c *gin.Context, active bool) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	item, err := s.providerSvc.SetActive(c.Request.Context(), id, active)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}
