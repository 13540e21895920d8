package graph

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	logMessageSkippingMutualFollow = "skipping mutual follow after fetch failure"
	logMessageSuggestionRunDone    = "suggestion run complete"
)

// SuggestionProgress reports fan-out progress after each processed account.
type SuggestionProgress struct {
	Processed int `json:"processed"`
	Total     int `json:"total"`
}

// ProgressFunc receives progress updates during a suggestion run. It may be
// invoked from concurrent goroutines within a batch; invocations are
// serialized by the explorer.
type ProgressFunc func(SuggestionProgress)

// SuggestionResult is the ranked outcome of one suggestion run. TotalMutuals
// and Processed make the source-list truncation visible to the caller.
type SuggestionResult struct {
	Suggestions  []SuggestedAccount `json:"suggestions"`
	TotalMutuals int                `json:"total_mutuals"`
	Processed    int                `json:"processed"`
	Truncated    bool               `json:"truncated"`
}

// SuggestFollows fans out over the subject's mutual follows and aggregates
// their own mutual connections into a ranked second-degree suggestion list.
// The source list is capped, processed in fixed-size batches whose requests
// run concurrently, and batches are strictly sequenced with a pacer delay in
// between. A failed account is logged and contributes no suggestions; it
// never aborts the batch or the run.
func (explorer *Explorer) SuggestFollows(ctx context.Context, analysis *Analysis, progress ProgressFunc) (SuggestionResult, error) {
	if analysis == nil {
		return SuggestionResult{}, ErrMissingAnalysis
	}
	explorer.warnIfPartialFollowings(analysis)

	sourceMutuals, truncated := capAccounts(analysis.Split.Mutual, explorer.mutualCap)
	result := SuggestionResult{
		TotalMutuals: len(analysis.Split.Mutual),
		Processed:    len(sourceMutuals),
		Truncated:    truncated,
	}
	if len(sourceMutuals) == 0 {
		return result, nil
	}

	subjectID := analysis.Snapshot.Subject.ID
	followedIDs := accountIDSet(analysis.Snapshot.Followings)
	accumulator := newSuggestionAccumulator()

	var (
		progressMutex  sync.Mutex
		processedCount int
	)
	reportAccountProcessed := func() {
		progressMutex.Lock()
		defer progressMutex.Unlock()
		processedCount++
		if progress != nil {
			progress(SuggestionProgress{Processed: processedCount, Total: len(sourceMutuals)})
		}
	}

	for batchStart := 0; batchStart < len(sourceMutuals); batchStart += explorer.batchSize {
		batchEnd := batchStart + explorer.batchSize
		if batchEnd > len(sourceMutuals) {
			batchEnd = len(sourceMutuals)
		}

		var group errgroup.Group
		for _, mutualFollow := range sourceMutuals[batchStart:batchEnd] {
			mutualFollow := mutualFollow
			group.Go(func() error {
				explorer.collectSecondDegree(ctx, mutualFollow, subjectID, followedIDs, accumulator)
				reportAccountProcessed()
				return nil
			})
		}
		_ = group.Wait()

		if ctx.Err() != nil {
			return SuggestionResult{}, ctx.Err()
		}
		if batchEnd < len(sourceMutuals) {
			if waitErr := explorer.pacer.Wait(ctx); waitErr != nil {
				return SuggestionResult{}, waitErr
			}
		}
	}

	result.Suggestions = accumulator.ranked()
	explorer.logger.Info(logMessageSuggestionRunDone,
		zap.Int64(logFieldSubjectID, subjectID),
		zap.Int("processed", result.Processed),
		zap.Int("suggestions", len(result.Suggestions)),
	)
	return result, nil
}

// collectSecondDegree fetches one mutual follow's relationships, classifies
// their own mutuals, and upserts every candidate that is neither the subject
// nor already followed. Fetch failures are logged and swallowed.
func (explorer *Explorer) collectSecondDegree(ctx context.Context, mutualFollow Account, subjectID int64, followedIDs map[int64]struct{}, accumulator *suggestionAccumulator) {
	theirFollowers, err := explorer.client.Followers(ctx, mutualFollow.ID, relationshipPageLimit)
	if err != nil {
		explorer.logger.Warn(logMessageSkippingMutualFollow,
			zap.Int64(logFieldUserID, mutualFollow.ID),
			zap.String(logFieldUsername, mutualFollow.Username),
			zap.Error(err),
		)
		return
	}
	theirFollowings, err := explorer.client.Followings(ctx, mutualFollow.ID, relationshipPageLimit, 0)
	if err != nil {
		explorer.logger.Warn(logMessageSkippingMutualFollow,
			zap.Int64(logFieldUserID, mutualFollow.ID),
			zap.String(logFieldUsername, mutualFollow.Username),
			zap.Error(err),
		)
		return
	}

	theirSplit := SplitByMutuality(theirFollowers, theirFollowings)
	for _, candidate := range theirSplit.Mutual {
		if candidate.ID == subjectID {
			continue
		}
		if _, alreadyFollowed := followedIDs[candidate.ID]; alreadyFollowed {
			continue
		}
		accumulator.upsert(candidate, mutualFollow)
	}
}

// suggestionAccumulator collects suggestion candidates keyed by account id.
// The upsert is mutex guarded because requests within a batch complete
// concurrently; discovery order is preserved for stable ranking ties.
type suggestionAccumulator struct {
	mutex          sync.Mutex
	entriesByID    map[int64]*SuggestedAccount
	discoveryOrder []int64
}

func newSuggestionAccumulator() *suggestionAccumulator {
	return &suggestionAccumulator{entriesByID: make(map[int64]*SuggestedAccount)}
}

func (accumulator *suggestionAccumulator) upsert(candidate Account, provenance Account) {
	accumulator.mutex.Lock()
	defer accumulator.mutex.Unlock()

	if existing, exists := accumulator.entriesByID[candidate.ID]; exists {
		existing.MutualCount++
		existing.MutualConnections = append(existing.MutualConnections, provenance)
		return
	}
	accumulator.entriesByID[candidate.ID] = &SuggestedAccount{
		Account:           candidate,
		MutualCount:       1,
		MutualConnections: []Account{provenance},
	}
	accumulator.discoveryOrder = append(accumulator.discoveryOrder, candidate.ID)
}

// ranked materializes the accumulation sorted by descending mutual count,
// with discovery order breaking ties.
func (accumulator *suggestionAccumulator) ranked() []SuggestedAccount {
	accumulator.mutex.Lock()
	defer accumulator.mutex.Unlock()

	rankedSuggestions := make([]SuggestedAccount, 0, len(accumulator.discoveryOrder))
	for _, accountID := range accumulator.discoveryOrder {
		rankedSuggestions = append(rankedSuggestions, *accumulator.entriesByID[accountID])
	}
	sort.SliceStable(rankedSuggestions, func(firstIndex, secondIndex int) bool {
		return rankedSuggestions[firstIndex].MutualCount > rankedSuggestions[secondIndex].MutualCount
	})
	return rankedSuggestions
}
