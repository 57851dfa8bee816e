package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/trigg3rX/labelmarket-backend/internal/consensus"
	"github.com/trigg3rX/labelmarket-backend/internal/live"
	"github.com/trigg3rX/labelmarket-backend/internal/marketplace"
	"github.com/trigg3rX/labelmarket-backend/internal/registry"
	"github.com/trigg3rX/labelmarket-backend/internal/txbuilder"
	"github.com/trigg3rX/labelmarket-backend/pkg/ledger"
	"github.com/trigg3rX/labelmarket-backend/pkg/logging"
	"github.com/trigg3rX/labelmarket-backend/pkg/types"
)

// Marketplace is what the API needs from marketplace.Service.
type Marketplace interface {
	Address() string

	Tasks(ctx context.Context) (*registry.Listing[*types.Task], error)
	OpenTasks(ctx context.Context) (*registry.Listing[*types.Task], error)
	Task(ctx context.Context, taskID uint64) (*types.Task, error)
	TasksByRequester(ctx context.Context, requester string) (*registry.Listing[*types.Task], error)
	SubmissionsByTask(ctx context.Context, taskID uint64) (*registry.Listing[*types.Submission], error)
	SubmissionsByLabeler(ctx context.Context, labeler string) (*registry.Listing[*types.Submission], error)
	Profile(ctx context.Context, addr string) (*registry.ProfileLookup, error)
	Reputation(ctx context.Context, addr string) (*types.ReputationRecord, error)
	Stakes(ctx context.Context, owner string) (*registry.Listing[*types.Stake], error)

	CreateProfile(ctx context.Context, in txbuilder.ProfileInput) (*ledger.Effects, error)
	UpdateProfile(ctx context.Context, in txbuilder.ProfileInput) (*ledger.Effects, error)
	UpdateUserType(ctx context.Context, userType types.UserType) (*ledger.Effects, error)
	CreateTask(ctx context.Context, in marketplace.CreateTaskInput) (*ledger.Effects, error)
	SubmitLabels(ctx context.Context, taskID uint64, in marketplace.SubmitLabelsInput) (*ledger.Effects, error)
	CancelTask(ctx context.Context, taskID uint64) (*ledger.Effects, error)
	Stake(ctx context.Context, amount uint64, lockDuration time.Duration) (*ledger.Effects, error)
	Unstake(ctx context.Context, stakeID string) (*ledger.Effects, error)

	StartReview(ctx context.Context, taskID uint64) (*consensus.Round, error)
	Review(roundID string) (*consensus.Round, error)
	CloseReview(roundID string)
	FinalizeReview(ctx context.Context, roundID string) (*consensus.Round, error)
	RetryReview(ctx context.Context, roundID string) (*consensus.Round, error)
}

type Config struct {
	Port           string
	AllowedOrigins []string
	// MaxUploadBytes bounds multipart bodies held in memory.
	MaxUploadBytes int64
	// Live, when set, is served at /api/live.
	Live *live.Hub
}

type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	market     Marketplace
	live       *live.Hub
	logger     logging.Logger
	startedAt  time.Time
}

func NewServer(cfg Config, market Marketplace, logger logging.Logger) *Server {
	router := gin.New()
	if cfg.MaxUploadBytes > 0 {
		router.MaxMultipartMemory = cfg.MaxUploadBytes
	}

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	corsHandler := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Accept", "Content-Length", "Accept-Encoding", "Origin", "X-Requested-With"},
	})

	s := &Server{
		router:    router,
		market:    market,
		live:      cfg.Live,
		logger:    logger,
		startedAt: time.Now(),
	}
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           corsHandler.Handler(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(RecoveryMiddleware(s.logger))
	s.router.Use(MetricsMiddleware())
	s.router.Use(LoggingMiddleware(s.logger))

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.router.Group("/api")
	api.GET("/health", s.health)
	api.GET("/wallet", s.getWallet)
	if s.live != nil {
		api.GET("/live", gin.WrapH(s.live))
	}

	api.GET("/tasks", s.getTasks)
	api.POST("/tasks", s.createTask)
	api.GET("/tasks/:id", s.getTask)
	api.POST("/tasks/:id/cancel", s.cancelTask)
	api.GET("/tasks/:id/submissions", s.getTaskSubmissions)
	api.POST("/tasks/:id/submissions", s.submitLabels)
	api.POST("/tasks/:id/reviews", s.startReview)

	api.GET("/requesters/:address/tasks", s.getRequesterTasks)
	api.GET("/labelers/:address/submissions", s.getLabelerSubmissions)

	api.POST("/profiles", s.createProfile)
	api.PUT("/profiles", s.updateProfile)
	api.PUT("/profiles/user-type", s.updateUserType)
	api.GET("/profiles/:address", s.getProfile)
	api.GET("/profiles/:address/reputation", s.getReputation)

	api.GET("/stakes/:address", s.getStakes)
	api.POST("/stakes", s.stake)
	api.DELETE("/stakes/:id", s.unstake)

	reviews := api.Group("/reviews/:id")
	reviews.GET("", s.getReview)
	reviews.DELETE("", s.closeReview)
	reviews.POST("/accept/:sid", s.acceptSubmission)
	reviews.POST("/reject/:sid", s.rejectSubmission)
	reviews.POST("/finalize", s.finalizeReview)
	reviews.POST("/retry", s.retryReview)
}

// Handler is the CORS-wrapped router.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start blocks until the server stops. A graceful Shutdown is not an error.
func (s *Server) Start() error {
	s.logger.Infof("Starting API server on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start API server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server")
	return s.httpServer.Shutdown(ctx)
}
