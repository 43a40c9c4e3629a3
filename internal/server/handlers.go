package server

import (
	"net/http"
	"strconv"
	"time"

	energydomain "github.com/gaiaguardians/walking/internal/energy/domain"
	stepdomain "github.com/gaiaguardians/walking/internal/steps/domain"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type submitStepsRequest struct {
	StepCount  int        `json:"step_count"`
	RecordedAt *time.Time `json:"recorded_at,omitempty"`
}

type spendEnergyRequest struct {
	Amount int64  `json:"amount"`
	Source string `json:"source"`
}

type stepHistoryResponse struct {
	GuardianID string                          `json:"guardian_id"`
	From       string                          `json:"from"`
	To         string                          `json:"to"`
	Days       []stepdomain.DailyStepAggregate `json:"days"`
}

func (s *Server) submitSteps(c *gin.Context) {
	guardianID, err := stepdomain.ParseGuardianID(c.Param("guardianId"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req submitStepsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	submit := stepdomain.SubmitRequest{
		GuardianID: guardianID,
		StepCount:  req.StepCount,
	}
	if req.RecordedAt != nil {
		submit.RecordedAt = req.RecordedAt.UTC()
	}

	result, err := s.stepSvc.SubmitSteps(c.Request.Context(), submit)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !result.Accepted {
		c.JSON(http.StatusUnprocessableEntity, result)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) getCurrentStepCount(c *gin.Context) {
	guardianID, err := stepdomain.ParseGuardianID(c.Param("guardianId"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	current, err := s.stepSvc.GetCurrentStepCount(c.Request.Context(), guardianID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, current)
}

func (s *Server) getStepHistory(c *gin.Context) {
	guardianID, err := stepdomain.ParseGuardianID(c.Param("guardianId"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	from, err := time.Parse("2006-01-02", c.Query("from"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	to, err := time.Parse("2006-01-02", c.Query("to"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	days, err := s.stepSvc.GetStepHistory(c.Request.Context(), guardianID, from, to)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, stepHistoryResponse{
		GuardianID: guardianID.String(),
		From:       stepdomain.DateOf(from),
		To:         stepdomain.DateOf(to),
		Days:       days,
	})
}

func (s *Server) getEnergyBalance(c *gin.Context) {
	guardianID, err := stepdomain.ParseGuardianID(c.Param("guardianId"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	balance, err := s.energySvc.GetBalance(c.Request.Context(), guardianID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, balance)
}

func (s *Server) spendEnergy(c *gin.Context) {
	guardianID, err := stepdomain.ParseGuardianID(c.Param("guardianId"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req spendEnergyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	amount, err := energydomain.NewEnergy(req.Amount)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	result, err := s.energySvc.Spend(c.Request.Context(), guardianID, amount, req.Source)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// submitRateLimit applies the optional endpoint token bucket in front of
// the submit route. The domain trailing-hour rule is enforced by the
// validator from the step store regardless.
func (s *Server) submitRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		bucket := s.limiter.SubmitBucket
		if bucket == nil {
			c.Next()
			return
		}

		key := "walking:submit:" + c.Param("guardianId")
		res, err := bucket.Allow(c.Request.Context(), key, s.cfg.RateLimit.SubmitRate, s.cfg.RateLimit.SubmitBurst)
		if err != nil {
			// Limiter trouble never blocks submissions.
			s.log.Warn("submit rate limiter unavailable", zap.Error(err))
			c.Next()
			return
		}
		if !res.Allowed {
			if s.obsMetrics != nil {
				s.obsMetrics.RecordRateLimitDenied(c.Request.Context(), "submit_steps", "token_bucket")
			}
			c.Header("Retry-After", strconv.FormatInt(int64(res.RetryAfter.Seconds())+1, 10))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, errorResponse{Error: errorPayload{
				Type:    "rate_limited",
				Message: "too many requests",
			}})
			return
		}
		c.Next()
	}
}
