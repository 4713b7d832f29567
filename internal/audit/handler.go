package audit

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/crm-console/internal/apperr"
)

const maxListLimit = 500

// ListHandler は GET /api/admin/audit を処理します。?limit= で件数を指定できます。
func ListHandler(repo Repository, debug bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 100
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				apperr.Respond(c, apperr.Validation("limit は正の整数で指定してください"), debug)
				return
			}
			limit = min(n, maxListLimit)
		}

		events, err := repo.ListRecent(c.Request.Context(), limit)
		if err != nil {
			apperr.Respond(c, apperr.Internal(err), debug)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"events":  events,
		})
	}
}
