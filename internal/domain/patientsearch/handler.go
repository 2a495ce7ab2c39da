package patientsearch

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/ehr/rebook/pkg/pagination"
)

// PagedDirectory is a directory that can report total match counts.
type PagedDirectory interface {
	Search(ctx context.Context, term, companyID string, limit, offset int) ([]Record, int, error)
}

type Handler struct {
	dir            PagedDirectory
	defaultCompany string
}

func NewHandler(dir PagedDirectory, defaultCompany string) *Handler {
	return &Handler{dir: dir, defaultCompany: defaultCompany}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/patients/search", h.Search)
}

// Search handles GET /patients/search?q=&company_id=.
func (h *Handler) Search(c echo.Context) error {
	term := strings.TrimSpace(c.QueryParam("q"))
	if term == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "q is required")
	}
	company := c.QueryParam("company_id")
	if company == "" {
		company = h.defaultCompany
	}
	if company == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "company_id is required")
	}

	pg := pagination.FromContext(c)
	records, total, err := h.dir.Search(c.Request().Context(), term, company, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	patients := make([]Patient, 0, len(records))
	for _, r := range records {
		patients = append(patients, Normalize(r))
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(patients, total, pg.Limit, pg.Offset))
}
