package reach

import (
	"github.com/gin-gonic/gin"

	"github.com/gloads/portal/pkg/response"
)

// EstimateResponse is returned by GET /reach.
type EstimateResponse struct {
	Budget int64 `json:"budget"`
	Min    int64 `json:"min"`
	Max    int64 `json:"max"`
}

// Handle handles GET /reach?budget=N.
func Handle(c *gin.Context) {
	budget, err := ParseBudget(c.Query("budget"))
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	r, _ := Estimate(budget)
	response.OK(c, EstimateResponse{Budget: budget, Min: r.Min, Max: r.Max})
}
