package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ham-and/social-graph-2802/internal/authbridge"
	"github.com/ham-and/social-graph-2802/internal/graph"
	"github.com/ham-and/social-graph-2802/internal/profileurl"
	"github.com/ham-and/social-graph-2802/internal/soundcloud"
)

const (
	healthRoutePath           = "/healthz"
	analyzeRoutePath          = "/api/analyze"
	moreFollowingsRoutePath   = "/api/followings/more"
	suggestionsRoutePath      = "/api/suggestions"
	suggestionStatusRoutePath = "/api/suggestions/:task"
	likesRoutePath            = "/api/likes"
	authLoginRoutePath        = "/auth/login"
	authCallbackRoutePath     = "/auth/callback"

	taskRouteParameter = "task"
	sortQueryParameter = "sort"

	healthStatusKey = "status"
	healthStatusOK  = "ok"

	responseFieldError = "error"

	errorMessageMissingExplorer    = "explorer is required"
	errorMessageInvalidRequestBody = "request body is not valid JSON"
	errorMessageNoAnalysis         = "no analysis loaded"
	errorMessageNoAggregatedLikes  = "no aggregated tracks"
	errorMessageTaskNotFound       = "suggestion task not found"
	errorMessageAnalysisSuperseded = "analysis superseded by a newer request"
	errorMessageStateGeneration    = "login state generation failed"

	logMessageAnalyzeFailure      = "analysis failed"
	logMessageMoreFailure         = "followings page load failed"
	logMessageLikesFailure        = "liked-track aggregation failed"
	logMessageSuggestionRunFailed = "suggestion run failed"
	logMessageStateFailure        = "oauth state generation failed"

	logFieldTask       = "task"
	logFieldProfileURL = "profile_url"

	ginModeRelease = "release"
)

// ErrMissingExplorer indicates a router was configured without an explorer.
var ErrMissingExplorer = errors.New(errorMessageMissingExplorer)

// ExplorerService is the analysis surface the router drives. graph.Explorer
// implements it.
type ExplorerService interface {
	Analyze(ctx context.Context, rawProfileURL string) (*graph.Analysis, error)
	LoadMoreFollowings(ctx context.Context, analysis *graph.Analysis) (*graph.Analysis, error)
	SuggestFollows(ctx context.Context, analysis *graph.Analysis, progress graph.ProgressFunc) (graph.SuggestionResult, error)
	CollectLikedTracks(ctx context.Context, analysis *graph.Analysis, selectedIDs []int64, policy graph.SortPolicy) ([]graph.LikedTrack, error)
}

// RouterConfig configures the HTTP routing for graph exploration requests.
type RouterConfig struct {
	Explorer  ExplorerService
	Session   *graph.Session
	Exchanger *authbridge.Exchanger
	Logger    *zap.Logger
}

// NewRouter constructs a Gin engine serving the analysis API, the health
// endpoint, and — when an exchanger is configured — the OAuth login flow.
func NewRouter(configuration RouterConfig) (*gin.Engine, error) {
	if configuration.Explorer == nil {
		return nil, ErrMissingExplorer
	}
	session := configuration.Session
	if session == nil {
		session = graph.NewSession()
	}
	logger := configuration.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	gin.SetMode(ginModeRelease)
	engine := gin.New()
	engine.Use(gin.Recovery())

	handler := explorationHandler{
		explorer:  configuration.Explorer,
		session:   session,
		exchanger: configuration.Exchanger,
		tracker:   newSuggestionTaskTracker(),
		logger:    logger,
	}

	engine.GET(healthRoutePath, handler.healthStatus)
	engine.POST(analyzeRoutePath, handler.analyzeProfile)
	engine.POST(moreFollowingsRoutePath, handler.loadMoreFollowings)
	engine.POST(suggestionsRoutePath, handler.startSuggestionRun)
	engine.GET(suggestionStatusRoutePath, handler.suggestionRunStatus)
	engine.POST(likesRoutePath, handler.aggregateLikedTracks)
	engine.GET(likesRoutePath, handler.resortLikedTracks)
	if configuration.Exchanger != nil {
		engine.GET(authLoginRoutePath, handler.beginLogin)
		engine.Any(authCallbackRoutePath, configuration.Exchanger.HandleCallback)
	}

	return engine, nil
}

type explorationHandler struct {
	explorer  ExplorerService
	session   *graph.Session
	exchanger *authbridge.Exchanger
	tracker   *suggestionTaskTracker
	logger    *zap.Logger
}

type analyzeRequest struct {
	ProfileURL string `json:"profile_url"`
}

type analysisResponse struct {
	Subject            graph.Account   `json:"subject"`
	Mutual             []graph.Account `json:"mutual"`
	NonMutual          []graph.Account `json:"non_mutual"`
	FollowersCount     int             `json:"followers_count"`
	FollowingsLoaded   int             `json:"followings_loaded"`
	TotalFollowings    int             `json:"total_followings"`
	FollowingsComplete bool            `json:"followings_complete"`
}

type suggestionTaskResponse struct {
	Task        string                  `json:"task"`
	Status      suggestionTaskStatus    `json:"status"`
	Completed   int                     `json:"completed"`
	Total       int                     `json:"total"`
	Error       string                  `json:"error,omitempty"`
	Suggestions *graph.SuggestionResult `json:"result,omitempty"`
}

type likesRequest struct {
	UserIDs []int64 `json:"user_ids"`
	Sort    string  `json:"sort"`
}

type likesResponse struct {
	Tracks []graph.LikedTrack `json:"tracks"`
	Sort   graph.SortPolicy   `json:"sort"`
}

func newAnalysisResponse(analysis *graph.Analysis) analysisResponse {
	return analysisResponse{
		Subject:            analysis.Snapshot.Subject,
		Mutual:             analysis.Split.Mutual,
		NonMutual:          analysis.Split.NonMutual,
		FollowersCount:     len(analysis.Snapshot.Followers),
		FollowingsLoaded:   len(analysis.Snapshot.Followings),
		TotalFollowings:    analysis.Snapshot.TotalFollowings,
		FollowingsComplete: analysis.Snapshot.FollowingsComplete(),
	}
}

func (handler explorationHandler) healthStatus(ginContext *gin.Context) {
	ginContext.JSON(http.StatusOK, map[string]string{healthStatusKey: healthStatusOK})
}

func (handler explorationHandler) analyzeProfile(ginContext *gin.Context) {
	var request analyzeRequest
	if err := ginContext.ShouldBindJSON(&request); err != nil {
		ginContext.JSON(http.StatusBadRequest, gin.H{responseFieldError: errorMessageInvalidRequestBody})
		return
	}

	token := handler.session.Begin()
	analysis, err := handler.explorer.Analyze(ginContext.Request.Context(), request.ProfileURL)
	if err != nil {
		handler.logger.Warn(logMessageAnalyzeFailure, zap.String(logFieldProfileURL, request.ProfileURL), zap.Error(err))
		ginContext.JSON(analysisFailureStatus(err), gin.H{responseFieldError: err.Error()})
		return
	}
	if !handler.session.CommitAnalysis(token, analysis) {
		ginContext.JSON(http.StatusConflict, gin.H{responseFieldError: errorMessageAnalysisSuperseded})
		return
	}
	ginContext.JSON(http.StatusOK, newAnalysisResponse(analysis))
}

func (handler explorationHandler) loadMoreFollowings(ginContext *gin.Context) {
	analysis := handler.session.Analysis()
	if analysis == nil {
		ginContext.JSON(http.StatusConflict, gin.H{responseFieldError: errorMessageNoAnalysis})
		return
	}

	token := handler.session.Begin()
	extended, err := handler.explorer.LoadMoreFollowings(ginContext.Request.Context(), analysis)
	if err != nil {
		handler.logger.Warn(logMessageMoreFailure, zap.Error(err))
		ginContext.JSON(analysisFailureStatus(err), gin.H{responseFieldError: err.Error()})
		return
	}
	if !handler.session.CommitAnalysis(token, extended) {
		ginContext.JSON(http.StatusConflict, gin.H{responseFieldError: errorMessageAnalysisSuperseded})
		return
	}
	ginContext.JSON(http.StatusOK, newAnalysisResponse(extended))
}

func (handler explorationHandler) startSuggestionRun(ginContext *gin.Context) {
	analysis := handler.session.Analysis()
	if analysis == nil {
		ginContext.JSON(http.StatusConflict, gin.H{responseFieldError: errorMessageNoAnalysis})
		return
	}

	runToken := handler.session.BeginSuggestions()
	task := handler.tracker.CreateTask()

	go handler.runSuggestions(task.Identifier, runToken, analysis)

	ginContext.JSON(http.StatusAccepted, suggestionTaskResponse{
		Task:   task.Identifier,
		Status: task.Status,
	})
}

// runSuggestions executes one suggestion run in the background. The incoming
// request context would be cancelled when the response is written, so the run
// deliberately uses a detached context; supersession is handled by the
// session token check on commit.
func (handler explorationHandler) runSuggestions(taskIdentifier string, runToken graph.RunToken, analysis *graph.Analysis) {
	result, err := handler.explorer.SuggestFollows(context.Background(), analysis, func(progress graph.SuggestionProgress) {
		handler.tracker.RecordProgress(taskIdentifier, progress)
	})
	if err != nil {
		handler.logger.Warn(logMessageSuggestionRunFailed, zap.String(logFieldTask, taskIdentifier), zap.Error(err))
		handler.tracker.CompleteTask(taskIdentifier, nil, err, false)
		return
	}
	committed := handler.session.CommitSuggestions(runToken, result)
	handler.tracker.CompleteTask(taskIdentifier, &result, nil, committed)
}

func (handler explorationHandler) suggestionRunStatus(ginContext *gin.Context) {
	taskIdentifier := ginContext.Param(taskRouteParameter)
	snapshot, exists := handler.tracker.TaskSnapshot(taskIdentifier)
	if !exists {
		ginContext.JSON(http.StatusNotFound, gin.H{responseFieldError: errorMessageTaskNotFound})
		return
	}
	ginContext.JSON(http.StatusOK, suggestionTaskResponse{
		Task:        snapshot.Identifier,
		Status:      snapshot.Status,
		Completed:   snapshot.Completed,
		Total:       snapshot.Total,
		Error:       snapshot.Failure,
		Suggestions: snapshot.Result,
	})
}

func (handler explorationHandler) aggregateLikedTracks(ginContext *gin.Context) {
	analysis := handler.session.Analysis()
	if analysis == nil {
		ginContext.JSON(http.StatusConflict, gin.H{responseFieldError: errorMessageNoAnalysis})
		return
	}

	var request likesRequest
	if err := ginContext.ShouldBindJSON(&request); err != nil {
		ginContext.JSON(http.StatusBadRequest, gin.H{responseFieldError: errorMessageInvalidRequestBody})
		return
	}
	policy, err := graph.ParseSortPolicy(request.Sort)
	if err != nil {
		ginContext.JSON(http.StatusBadRequest, gin.H{responseFieldError: err.Error()})
		return
	}

	runToken := handler.session.BeginLikes()
	tracks, err := handler.explorer.CollectLikedTracks(ginContext.Request.Context(), analysis, request.UserIDs, policy)
	if err != nil {
		handler.logger.Warn(logMessageLikesFailure, zap.Error(err))
		ginContext.JSON(analysisFailureStatus(err), gin.H{responseFieldError: err.Error()})
		return
	}
	if !handler.session.CommitLikedTracks(runToken, tracks, policy) {
		ginContext.JSON(http.StatusConflict, gin.H{responseFieldError: errorMessageAnalysisSuperseded})
		return
	}
	ginContext.JSON(http.StatusOK, likesResponse{Tracks: tracks, Sort: policy})
}

func (handler explorationHandler) resortLikedTracks(ginContext *gin.Context) {
	policy, err := graph.ParseSortPolicy(ginContext.Query(sortQueryParameter))
	if err != nil {
		ginContext.JSON(http.StatusBadRequest, gin.H{responseFieldError: err.Error()})
		return
	}
	tracks, exists := handler.session.Resort(policy)
	if !exists {
		ginContext.JSON(http.StatusNotFound, gin.H{responseFieldError: errorMessageNoAggregatedLikes})
		return
	}
	ginContext.JSON(http.StatusOK, likesResponse{Tracks: tracks, Sort: policy})
}

func (handler explorationHandler) beginLogin(ginContext *gin.Context) {
	state, err := authbridge.NewState()
	if err != nil {
		handler.logger.Error(logMessageStateFailure, zap.Error(err))
		ginContext.JSON(http.StatusInternalServerError, gin.H{responseFieldError: errorMessageStateGeneration})
		return
	}
	ginContext.Redirect(http.StatusFound, handler.exchanger.AuthorizeRedirectURL(state))
}

// analysisFailureStatus maps a primary-fetch failure to an HTTP status:
// input-validation errors are the caller's fault, upstream failures are
// reported as bad-gateway conditions.
func analysisFailureStatus(err error) int {
	switch {
	case errors.Is(err, profileurl.ErrEmptyProfileURL),
		errors.Is(err, profileurl.ErrSchemeRelativeProfileURL),
		errors.Is(err, graph.ErrUnknownSortPolicy):
		return http.StatusBadRequest
	case errors.Is(err, graph.ErrMissingAnalysis):
		return http.StatusConflict
	default:
		var statusErr *soundcloud.StatusError
		if errors.As(err, &statusErr) {
			return http.StatusBadGateway
		}
		return http.StatusInternalServerError
	}
}
