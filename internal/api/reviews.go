package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/trigg3rX/labelmarket-backend/internal/consensus"
	pkgErrors "github.com/trigg3rX/labelmarket-backend/pkg/errors"
)

type reviewResponse struct {
	consensus.Summary
	Transitions []consensus.Transition `json:"transitions"`
	Warning     string                 `json:"warning,omitempty"`
}

func reviewBody(round *consensus.Round) reviewResponse {
	return reviewResponse{
		Summary:     round.Summary(),
		Transitions: round.Transitions(),
	}
}

func (s *Server) startReview(c *gin.Context) {
	taskID, ok := taskIDParam(c, "id")
	if !ok {
		return
	}
	round, err := s.market.StartReview(c.Request.Context(), taskID)
	if err != nil {
		s.respondError(c, "StartReview", err)
		return
	}
	c.JSON(http.StatusCreated, reviewBody(round))
}

func (s *Server) round(c *gin.Context) (*consensus.Round, bool) {
	round, err := s.market.Review(c.Param("id"))
	if err != nil {
		s.respondError(c, "Review", err)
		return nil, false
	}
	return round, true
}

func (s *Server) getReview(c *gin.Context) {
	round, ok := s.round(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, reviewBody(round))
}

func (s *Server) closeReview(c *gin.Context) {
	if _, ok := s.round(c); !ok {
		return
	}
	s.market.CloseReview(c.Param("id"))
	c.Status(http.StatusNoContent)
}

func (s *Server) acceptSubmission(c *gin.Context) {
	s.toggle(c, (*consensus.Round).ToggleAccept)
}

func (s *Server) rejectSubmission(c *gin.Context) {
	s.toggle(c, (*consensus.Round).ToggleReject)
}

func (s *Server) toggle(c *gin.Context, apply func(*consensus.Round, uint64) error) {
	round, ok := s.round(c)
	if !ok {
		return
	}
	subID, ok := taskIDParam(c, "sid")
	if !ok {
		return
	}
	if err := apply(round, subID); err != nil {
		s.respondError(c, "ToggleDecision", err)
		return
	}
	c.JSON(http.StatusOK, reviewBody(round))
}

func (s *Server) finalizeReview(c *gin.Context) {
	round, err := s.market.FinalizeReview(c.Request.Context(), c.Param("id"))
	s.respondRound(c, "FinalizeReview", round, err)
}

func (s *Server) retryReview(c *gin.Context) {
	round, err := s.market.RetryReview(c.Request.Context(), c.Param("id"))
	s.respondRound(c, "RetryReview", round, err)
}

// respondRound reports a partial failure as a successful response carrying a warning:
// the finalize transaction did land.
func (s *Server) respondRound(c *gin.Context, op string, round *consensus.Round, err error) {
	if err != nil && pkgErrors.Classify(err) != pkgErrors.CategoryPartial {
		s.respondError(c, op, err)
		return
	}
	body := reviewBody(round)
	if err != nil {
		s.logger.Warnf("[%s] %v", op, err)
		body.Warning = pkgErrors.UserMessage(err)
	}
	c.JSON(http.StatusOK, body)
}
