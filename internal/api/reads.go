package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/trigg3rX/labelmarket-backend/pkg/env"
)

func (s *Server) health(c *gin.Context) {
	resp := gin.H{
		"status":    "ok",
		"service":   "labelmarket",
		"read_only": s.market.Address() == "",
		"timestamp": time.Now().Unix(),
		"uptime":    time.Since(s.startedAt).String(),
	}
	if s.live != nil {
		resp["live"] = s.live.Stats()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) getWallet(c *gin.Context) {
	addr := s.market.Address()
	c.JSON(http.StatusOK, gin.H{"address": addr, "read_only": addr == ""})
}

func taskIDParam(c *gin.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil {
		badRequest(c, "Invalid "+name+" format")
		return 0, false
	}
	return id, true
}

func addressParam(c *gin.Context) (string, bool) {
	addr := c.Param("address")
	if !env.IsValidObjectID(addr) {
		badRequest(c, "Invalid address format")
		return "", false
	}
	return addr, true
}

// getTasks lists every task; ?status=open keeps only tasks still taking submissions.
func (s *Server) getTasks(c *gin.Context) {
	load := s.market.Tasks
	if c.Query("status") == "open" {
		load = s.market.OpenTasks
	}
	listing, err := load(c.Request.Context())
	if err != nil {
		s.respondError(c, "GetTasks", err)
		return
	}
	c.JSON(http.StatusOK, listing)
}

func (s *Server) getTask(c *gin.Context) {
	taskID, ok := taskIDParam(c, "id")
	if !ok {
		return
	}
	task, err := s.market.Task(c.Request.Context(), taskID)
	if err != nil {
		s.respondError(c, "GetTask", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"task":                task,
		"payout_per_labeler":  task.PayoutPerLabeler(),
		"slots":               task.Slots(),
		"accepts_submissions": task.AcceptsSubmissions(time.Now()),
	})
}

func (s *Server) getTaskSubmissions(c *gin.Context) {
	taskID, ok := taskIDParam(c, "id")
	if !ok {
		return
	}
	listing, err := s.market.SubmissionsByTask(c.Request.Context(), taskID)
	if err != nil {
		s.respondError(c, "GetTaskSubmissions", err)
		return
	}
	c.JSON(http.StatusOK, listing)
}

func (s *Server) getRequesterTasks(c *gin.Context) {
	addr, ok := addressParam(c)
	if !ok {
		return
	}
	listing, err := s.market.TasksByRequester(c.Request.Context(), addr)
	if err != nil {
		s.respondError(c, "GetRequesterTasks", err)
		return
	}
	c.JSON(http.StatusOK, listing)
}

func (s *Server) getLabelerSubmissions(c *gin.Context) {
	addr, ok := addressParam(c)
	if !ok {
		return
	}
	listing, err := s.market.SubmissionsByLabeler(c.Request.Context(), addr)
	if err != nil {
		s.respondError(c, "GetLabelerSubmissions", err)
		return
	}
	c.JSON(http.StatusOK, listing)
}

func (s *Server) getProfile(c *gin.Context) {
	addr, ok := addressParam(c)
	if !ok {
		return
	}
	lookup, err := s.market.Profile(c.Request.Context(), addr)
	if err != nil {
		s.respondError(c, "GetProfile", err)
		return
	}
	c.JSON(http.StatusOK, lookup)
}

func (s *Server) getReputation(c *gin.Context) {
	addr, ok := addressParam(c)
	if !ok {
		return
	}
	record, err := s.market.Reputation(c.Request.Context(), addr)
	if err != nil {
		s.respondError(c, "GetReputation", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"reputation": record,
		"ui_score":   record.UIScore(),
	})
}

func (s *Server) getStakes(c *gin.Context) {
	addr, ok := addressParam(c)
	if !ok {
		return
	}
	listing, err := s.market.Stakes(c.Request.Context(), addr)
	if err != nil {
		s.respondError(c, "GetStakes", err)
		return
	}

	now := time.Now()
	stakes := make([]gin.H, 0, len(listing.Items))
	for _, st := range listing.Items {
		stakes = append(stakes, gin.H{"stake": st, "locked": st.IsLocked(now)})
	}
	c.JSON(http.StatusOK, gin.H{
		"items":    stakes,
		"source":   listing.Source,
		"complete": listing.Complete,
		"skipped":  listing.Skipped,
	})
}
