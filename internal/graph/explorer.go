package graph

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/ham-and/social-graph-2802/internal/pacing"
	"github.com/ham-and/social-graph-2802/internal/profileurl"
	"github.com/ham-and/social-graph-2802/internal/soundcloud"
)

const (
	// DefaultMutualCap bounds how many mutual follows feed the fan-out stages.
	DefaultMutualCap = 50
	// SuggestionBatchSize is the number of concurrent lookups per batch.
	SuggestionBatchSize = 5
	// LikesPageLimit bounds the liked-track page fetched per mutual follow.
	LikesPageLimit = 5

	relationshipPageLimit = soundcloud.MaxPageLimit

	errMessageMissingClient   = "relationship client is required"
	errMessageMissingAnalysis = "analysis has not been performed"

	logMessagePartialFollowings = "followings only partially loaded; derived results are approximate"
	logFieldSubjectID           = "subject_id"
	logFieldUserID              = "user_id"
	logFieldUsername            = "username"
	logFieldLoadedFollowings    = "loaded_followings"
	logFieldTotalFollowings     = "total_followings"
)

var (
	errMissingClient = errors.New(errMessageMissingClient)

	// ErrMissingAnalysis indicates a derived operation was requested before Analyze.
	ErrMissingAnalysis = errors.New(errMessageMissingAnalysis)
)

// RelationshipClient abstracts the upstream operations consumed by the
// explorer so tests can substitute a stub.
type RelationshipClient interface {
	Resolve(ctx context.Context, profileURL string) (Account, error)
	User(ctx context.Context, userID int64) (Account, error)
	Followers(ctx context.Context, userID int64, limit int) ([]Account, error)
	Followings(ctx context.Context, userID int64, limit int, offset int) ([]Account, error)
	LikedTracks(ctx context.Context, userID int64, limit int) ([]Track, error)
}

// Config customizes an Explorer instance.
type Config struct {
	Client     RelationshipClient
	Pacer      pacing.Pacer
	Logger     *zap.Logger
	MutualCap  int
	BatchSize  int
	LikesLimit int
}

// Explorer drives the analysis pipeline: resolve, fetch relationships,
// classify mutuality, and run the derived fan-out stages.
type Explorer struct {
	client     RelationshipClient
	pacer      pacing.Pacer
	logger     *zap.Logger
	mutualCap  int
	batchSize  int
	likesLimit int
}

// Analysis holds everything derived for one subject profile. Analyses are
// replaced wholesale on every top-level action; they are never patched.
type Analysis struct {
	Snapshot RelationshipSnapshot
	Split    MutualitySplit
}

// NewExplorer constructs an Explorer from configuration values.
func NewExplorer(configuration Config) (*Explorer, error) {
	if configuration.Client == nil {
		return nil, errMissingClient
	}

	pacer := configuration.Pacer
	if pacer == nil {
		pacer = pacing.Nop()
	}
	logger := configuration.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	mutualCap := configuration.MutualCap
	if mutualCap <= 0 {
		mutualCap = DefaultMutualCap
	}
	batchSize := configuration.BatchSize
	if batchSize <= 0 {
		batchSize = SuggestionBatchSize
	}
	likesLimit := configuration.LikesLimit
	if likesLimit <= 0 {
		likesLimit = LikesPageLimit
	}

	explorer := &Explorer{
		client:     configuration.Client,
		pacer:      pacer,
		logger:     logger,
		mutualCap:  mutualCap,
		batchSize:  batchSize,
		likesLimit: likesLimit,
	}
	return explorer, nil
}

// Analyze resolves the profile URL, fetches the subject's first follower and
// following pages, and classifies mutuality. Any failure here is primary: the
// whole analysis aborts and the error is returned to the caller.
func (explorer *Explorer) Analyze(ctx context.Context, rawProfileURL string) (*Analysis, error) {
	normalizedProfileURL, err := profileurl.Normalize(rawProfileURL)
	if err != nil {
		return nil, err
	}

	resolvedAccount, err := explorer.client.Resolve(ctx, normalizedProfileURL)
	if err != nil {
		return nil, err
	}
	subject, err := explorer.client.User(ctx, resolvedAccount.ID)
	if err != nil {
		return nil, err
	}
	followers, err := explorer.client.Followers(ctx, subject.ID, relationshipPageLimit)
	if err != nil {
		return nil, err
	}
	followings, err := explorer.client.Followings(ctx, subject.ID, relationshipPageLimit, 0)
	if err != nil {
		return nil, err
	}

	totalFollowings := subject.FollowingsCount
	if totalFollowings < len(followings) {
		totalFollowings = len(followings)
	}

	analysis := &Analysis{
		Snapshot: RelationshipSnapshot{
			Subject:          subject,
			Followers:        followers,
			Followings:       followings,
			FollowingsOffset: len(followings),
			TotalFollowings:  totalFollowings,
		},
		Split: SplitByMutuality(followers, followings),
	}
	explorer.logger.Info("analysis complete",
		zap.Int64(logFieldSubjectID, subject.ID),
		zap.String(logFieldUsername, subject.Username),
		zap.Int("followers", len(followers)),
		zap.Int("followings", len(followings)),
		zap.Int("mutual", len(analysis.Split.Mutual)),
	)
	return analysis, nil
}

// LoadMoreFollowings fetches the next followings page and returns a fresh
// analysis with the split recomputed against the grown followings set. When
// pagination is exhausted the input analysis is returned unchanged; the
// requested window never extends past the reported followings total.
func (explorer *Explorer) LoadMoreFollowings(ctx context.Context, analysis *Analysis) (*Analysis, error) {
	if analysis == nil {
		return nil, ErrMissingAnalysis
	}

	snapshot := analysis.Snapshot
	remainingFollowings := snapshot.TotalFollowings - len(snapshot.Followings)
	if remainingFollowings <= 0 {
		return analysis, nil
	}
	pageLimit := relationshipPageLimit
	if remainingFollowings < pageLimit {
		pageLimit = remainingFollowings
	}

	additionalFollowings, err := explorer.client.Followings(ctx, snapshot.Subject.ID, pageLimit, len(snapshot.Followings))
	if err != nil {
		return nil, err
	}

	grownFollowings := make([]Account, 0, len(snapshot.Followings)+len(additionalFollowings))
	grownFollowings = append(grownFollowings, snapshot.Followings...)
	grownFollowings = append(grownFollowings, additionalFollowings...)
	if len(grownFollowings) > snapshot.TotalFollowings {
		grownFollowings = grownFollowings[:snapshot.TotalFollowings]
	}

	updatedAnalysis := &Analysis{
		Snapshot: RelationshipSnapshot{
			Subject:          snapshot.Subject,
			Followers:        snapshot.Followers,
			Followings:       grownFollowings,
			FollowingsOffset: len(grownFollowings),
			TotalFollowings:  snapshot.TotalFollowings,
		},
		Split: SplitByMutuality(snapshot.Followers, grownFollowings),
	}
	explorer.logger.Info("followings page loaded",
		zap.Int64(logFieldSubjectID, snapshot.Subject.ID),
		zap.Int(logFieldLoadedFollowings, len(grownFollowings)),
		zap.Int(logFieldTotalFollowings, snapshot.TotalFollowings),
	)
	return updatedAnalysis, nil
}

func (explorer *Explorer) warnIfPartialFollowings(analysis *Analysis) {
	if analysis.Snapshot.FollowingsComplete() {
		return
	}
	explorer.logger.Warn(logMessagePartialFollowings,
		zap.Int64(logFieldSubjectID, analysis.Snapshot.Subject.ID),
		zap.Int(logFieldLoadedFollowings, len(analysis.Snapshot.Followings)),
		zap.Int(logFieldTotalFollowings, analysis.Snapshot.TotalFollowings),
	)
}

func capAccounts(accounts []Account, limit int) ([]Account, bool) {
	if len(accounts) <= limit {
		return accounts, false
	}
	return accounts[:limit], true
}

func accountIDSet(accounts []Account) map[int64]struct{} {
	identifierSet := make(map[int64]struct{}, len(accounts))
	for _, account := range accounts {
		identifierSet[account.ID] = struct{}{}
	}
	return identifierSet
}
