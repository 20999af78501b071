package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	organizationdomain "github.com/smallbiznis/scambio/internal/organization/domain"
)

type createOrganizationRequest struct {
	Name        string `json:"name"`
	VATNumber   string `json:"vat_number"`
	FiscalCode  string `json:"fiscal_code"`
	TaxRegime   string `json:"tax_regime"`
	PECAddress  string `json:"pec_address"`
	RoutingCode string `json:"routing_code"`
	Street      string `json:"street"`
	PostalCode  string `json:"postal_code"`
	City        string `json:"city"`
	Province    string `json:"province"`
	CountryCode string `json:"country_code"`
}

func (s *Server) CreateOrganization(c *gin.Context) {
	var req createOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.organizationSvc.Create(c.Request.Context(), organizationdomain.CreateOrganizationRequest{
		Name:        strings.TrimSpace(req.Name),
		VATNumber:   strings.TrimSpace(req.VATNumber),
		FiscalCode:  strings.TrimSpace(req.FiscalCode),
		TaxRegime:   strings.TrimSpace(req.TaxRegime),
		PECAddress:  strings.TrimSpace(req.PECAddress),
		RoutingCode: strings.TrimSpace(req.RoutingCode),
		Street:      strings.TrimSpace(req.Street),
		PostalCode:  strings.TrimSpace(req.PostalCode),
		City:        strings.TrimSpace(req.City),
		Province:    strings.TrimSpace(req.Province),
		CountryCode: strings.TrimSpace(req.CountryCode),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) ListOrganizations(c *gin.Context) {
	items, err := s.organizationSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) GetOrganizationByID(c *gin.Context) {
	resp, err := s.organizationSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
