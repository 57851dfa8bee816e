package api

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/trigg3rX/labelmarket-backend/internal/marketplace"
	"github.com/trigg3rX/labelmarket-backend/internal/txbuilder"
	"github.com/trigg3rX/labelmarket-backend/pkg/ledger"
	"github.com/trigg3rX/labelmarket-backend/pkg/types"
)

type profileRequest struct {
	DisplayName string         `json:"display_name"`
	Bio         string         `json:"bio"`
	AvatarURL   string         `json:"avatar_url"`
	UserType    types.UserType `json:"user_type"`
}

func (r profileRequest) input() txbuilder.ProfileInput {
	return txbuilder.ProfileInput{
		DisplayName: r.DisplayName,
		Bio:         r.Bio,
		AvatarURL:   r.AvatarURL,
		UserType:    r.UserType,
	}
}

type userTypeRequest struct {
	UserType types.UserType `json:"user_type"`
}

type stakeRequest struct {
	Amount       uint64 `json:"amount"`
	LockDuration string `json:"lock_duration"`
}

func (s *Server) respondEffects(c *gin.Context, status int, effects *ledger.Effects) {
	c.JSON(status, gin.H{"effects": effects})
}

func (s *Server) createProfile(c *gin.Context) {
	var req profileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid profile payload")
		return
	}
	effects, err := s.market.CreateProfile(c.Request.Context(), req.input())
	if err != nil {
		s.respondError(c, "CreateProfile", err)
		return
	}
	s.respondEffects(c, http.StatusCreated, effects)
}

func (s *Server) updateProfile(c *gin.Context) {
	var req profileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid profile payload")
		return
	}
	effects, err := s.market.UpdateProfile(c.Request.Context(), req.input())
	if err != nil {
		s.respondError(c, "UpdateProfile", err)
		return
	}
	s.respondEffects(c, http.StatusOK, effects)
}

func (s *Server) updateUserType(c *gin.Context) {
	var req userTypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid user type payload")
		return
	}
	effects, err := s.market.UpdateUserType(c.Request.Context(), req.UserType)
	if err != nil {
		s.respondError(c, "UpdateUserType", err)
		return
	}
	s.respondEffects(c, http.StatusOK, effects)
}

// formFile reads an uploaded multipart file fully into memory.
func formFile(c *gin.Context, field string) ([]byte, string, string, error) {
	header, err := c.FormFile(field)
	if err != nil {
		return nil, "", "", fmt.Errorf("missing %s file: %w", field, err)
	}
	f, err := header.Open()
	if err != nil {
		return nil, "", "", err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, "", "", err
	}
	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return data, header.Filename, contentType, nil
}

// parseDeadline accepts RFC3339 or unix milliseconds.
func parseDeadline(raw string) (time.Time, error) {
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.UnixMilli(ms), nil
	}
	return time.Parse(time.RFC3339, raw)
}

// createTask takes a multipart form: title, description, instructions, bounty,
// required_labelers, deadline and the dataset file.
func (s *Server) createTask(c *gin.Context) {
	bounty, err := strconv.ParseUint(c.PostForm("bounty"), 10, 64)
	if err != nil {
		badRequest(c, "Invalid bounty")
		return
	}
	required, err := strconv.ParseUint(c.PostForm("required_labelers"), 10, 64)
	if err != nil {
		badRequest(c, "Invalid required_labelers")
		return
	}
	deadline, err := parseDeadline(c.PostForm("deadline"))
	if err != nil {
		badRequest(c, "Invalid deadline, expected RFC3339 or unix milliseconds")
		return
	}
	data, filename, contentType, err := formFile(c, "dataset")
	if err != nil {
		badRequest(c, "A dataset file is required")
		return
	}

	effects, err := s.market.CreateTask(c.Request.Context(), marketplace.CreateTaskInput{
		Title:              c.PostForm("title"),
		Description:        c.PostForm("description"),
		Instructions:       c.PostForm("instructions"),
		Dataset:            data,
		DatasetFilename:    filename,
		DatasetContentType: contentType,
		Bounty:             bounty,
		RequiredLabelers:   required,
		Deadline:           deadline,
	})
	if err != nil {
		s.respondError(c, "CreateTask", err)
		return
	}
	s.respondEffects(c, http.StatusCreated, effects)
}

func (s *Server) submitLabels(c *gin.Context) {
	taskID, ok := taskIDParam(c, "id")
	if !ok {
		return
	}
	data, filename, contentType, err := formFile(c, "result")
	if err != nil {
		badRequest(c, "A result file is required")
		return
	}
	effects, err := s.market.SubmitLabels(c.Request.Context(), taskID, marketplace.SubmitLabelsInput{
		Result:            data,
		ResultFilename:    filename,
		ResultContentType: contentType,
	})
	if err != nil {
		s.respondError(c, "SubmitLabels", err)
		return
	}
	s.respondEffects(c, http.StatusCreated, effects)
}

func (s *Server) cancelTask(c *gin.Context) {
	taskID, ok := taskIDParam(c, "id")
	if !ok {
		return
	}
	effects, err := s.market.CancelTask(c.Request.Context(), taskID)
	if err != nil {
		s.respondError(c, "CancelTask", err)
		return
	}
	s.respondEffects(c, http.StatusOK, effects)
}

func (s *Server) stake(c *gin.Context) {
	var req stakeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid stake payload")
		return
	}
	lock, err := time.ParseDuration(req.LockDuration)
	if err != nil {
		badRequest(c, "Invalid lock_duration")
		return
	}
	effects, err := s.market.Stake(c.Request.Context(), req.Amount, lock)
	if err != nil {
		s.respondError(c, "Stake", err)
		return
	}
	s.respondEffects(c, http.StatusCreated, effects)
}

func (s *Server) unstake(c *gin.Context) {
	effects, err := s.market.Unstake(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, "Unstake", err)
		return
	}
	s.respondEffects(c, http.StatusOK, effects)
}
