package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"voicegate/internal/auth"
	"voicegate/internal/cdr"
	"voicegate/internal/reporting"
	"voicegate/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Auth    *auth.Manager
	Reports *reporting.Service
}

// --- Auth ---

type loginRequest struct {
	UserID   string `json:"user_id"`
	TenantID string `json:"tenant_id"`
	Role     string `json:"role"`
}

// Login issues a JWT token pair.
//
// NOTE: This is a skeleton-only endpoint. Real systems must validate credentials.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" || req.TenantID == "" || req.Role == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id, tenant_id, role required"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.UserID, req.TenantID, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- Calls ---

// ActiveCalls lists the tenant's live sessions with running durations.
func (h Handlers) ActiveCalls(c *gin.Context) {
	tenantID, err := auth.TenantID(c.Request.Context())
	if err != nil || tenantID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "tenant_id required"})
		return
	}
	calls, err := h.Reports.ActiveCalls(c.Request.Context(), tenantID)
	if err != nil {
		logger.FromGin(c).Error("active calls query failed", "tenant_id", tenantID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data": calls,
		"meta": gin.H{
			"total":        len(calls),
			"active_count": len(calls),
		},
	})
}

// Statistics returns the dashboard counters.
func (h Handlers) Statistics(c *gin.Context) {
	tenantID, err := auth.TenantID(c.Request.Context())
	if err != nil || tenantID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "tenant_id required"})
		return
	}
	stats, err := h.Reports.Statistics(c.Request.Context(), tenantID)
	if err != nil {
		logger.FromGin(c).Error("statistics query failed", "tenant_id", tenantID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// --- CDRs ---

// ListCdrs returns one filtered, sorted, paginated page of CDR records.
// Invalid query parameters answer 422 with a per-field error map.
func (h Handlers) ListCdrs(c *gin.Context) {
	tenantID, err := auth.TenantID(c.Request.Context())
	if err != nil || tenantID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "tenant_id required"})
		return
	}

	f, fieldErrs := parseCdrFilter(c)
	if len(fieldErrs) > 0 {
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{
			"message": "Validation failed",
			"errors":  fieldErrs,
		})
		return
	}

	rows, page, err := h.Reports.ListCdrs(c.Request.Context(), tenantID, f)
	if errors.Is(err, cdr.ErrInvalidFilter) {
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{
			"message": "Validation failed",
			"errors":  gin.H{"filter": err.Error()},
		})
		return
	}
	if err != nil {
		logger.FromGin(c).Error("cdr listing failed", "tenant_id", tenantID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":            rows,
		"meta":            page,
		"filters_applied": appliedFilters(c),
	})
}

// GetCdr returns one record by row id, tenant-scoped.
func (h Handlers) GetCdr(c *gin.Context) {
	tenantID, err := auth.TenantID(c.Request.Context())
	if err != nil || tenantID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "tenant_id required"})
		return
	}
	rec, err := h.Reports.GetCdr(c.Request.Context(), tenantID, c.Param("id"))
	if errors.Is(err, cdr.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	if err != nil {
		logger.FromGin(c).Error("cdr lookup failed", "tenant_id", tenantID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rec})
}

// ExportCdrs is a placeholder until streaming CSV export lands.
func (h Handlers) ExportCdrs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "Export is not available yet",
		"status":  "not_implemented",
	})
}

const dateLayout = "2006-01-02"

func parseCdrFilter(c *gin.Context) (cdr.Filter, map[string]string) {
	f := cdr.Filter{
		From:           c.Query("from"),
		To:             c.Query("to"),
		Disposition:    cdr.Disposition(c.Query("disposition")),
		Token:          c.Query("token"),
		StartTimeOfDay: c.Query("start_time"),
		EndTimeOfDay:   c.Query("end_time"),
		SortBy:         c.Query("sort_by"),
		SortOrder:      c.Query("sort_order"),
	}

	errs := map[string]string{}

	if v := c.Query("start_date"); v != "" {
		t, err := time.ParseInLocation(dateLayout, v, time.UTC)
		if err != nil {
			errs["start_date"] = "must be a date (YYYY-MM-DD)"
		} else {
			f.StartDate = &t
		}
	}
	if v := c.Query("end_date"); v != "" {
		t, err := time.ParseInLocation(dateLayout, v, time.UTC)
		if err != nil {
			errs["end_date"] = "must be a date (YYYY-MM-DD)"
		} else {
			f.EndDate = &t
		}
	}
	if v := c.Query("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			errs["page"] = "must be a positive integer"
		} else {
			f.Page = n
		}
	}
	if v := c.Query("per_page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			errs["per_page"] = "must be a positive integer"
		} else {
			f.PerPage = n
		}
	}

	if len(errs) == 0 {
		errs = nil
	}
	return f, errs
}

// appliedFilters echoes the caller's non-empty filter inputs back in the
// response so saved dashboard views can display what they queried.
func appliedFilters(c *gin.Context) map[string]string {
	out := map[string]string{}
	for _, k := range []string{"from", "to", "disposition", "token", "start_date", "end_date", "start_time", "end_time"} {
		if v := c.Query(k); v != "" {
			out[k] = v
		}
	}
	return out
}
