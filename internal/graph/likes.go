package graph

import (
	"context"
	"sort"

	"go.uber.org/zap"
)

const (
	logMessageSkippingLikedTracks = "skipping liked tracks after fetch failure"
	logMessageLikesRunDone        = "liked-track aggregation complete"
)

// CollectLikedTracks aggregates the liked tracks of the selected mutual
// follows into a deduplicated, attributed list sorted by the given policy.
// Accounts are processed strictly sequentially in input order with a pacer
// delay between them; a failed account is logged and skipped.
//
// selectedIDs filters the mutual list when non-empty; otherwise the capped
// default list is used.
func (explorer *Explorer) CollectLikedTracks(ctx context.Context, analysis *Analysis, selectedIDs []int64, policy SortPolicy) ([]LikedTrack, error) {
	if analysis == nil {
		return nil, ErrMissingAnalysis
	}
	explorer.warnIfPartialFollowings(analysis)

	selection := explorer.selectLikesSources(analysis.Split.Mutual, selectedIDs)
	aggregatedTracks := make([]LikedTrack, 0, len(selection)*explorer.likesLimit)
	trackIndexByID := make(map[int64]int)

	for accountIndex, account := range selection {
		tracks, err := explorer.client.LikedTracks(ctx, account.ID, explorer.likesLimit)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			explorer.logger.Warn(logMessageSkippingLikedTracks,
				zap.Int64(logFieldUserID, account.ID),
				zap.String(logFieldUsername, account.Username),
				zap.Error(err),
			)
		} else {
			for _, track := range tracks {
				if existingIndex, exists := trackIndexByID[track.ID]; exists {
					aggregatedTracks[existingIndex].LikedBy = append(aggregatedTracks[existingIndex].LikedBy, account)
					continue
				}
				trackIndexByID[track.ID] = len(aggregatedTracks)
				aggregatedTracks = append(aggregatedTracks, LikedTrack{Track: track, LikedBy: []Account{account}})
			}
		}

		if accountIndex < len(selection)-1 {
			if waitErr := explorer.pacer.Wait(ctx); waitErr != nil {
				return nil, waitErr
			}
		}
	}

	explorer.logger.Info(logMessageLikesRunDone,
		zap.Int64(logFieldSubjectID, analysis.Snapshot.Subject.ID),
		zap.Int("accounts", len(selection)),
		zap.Int("tracks", len(aggregatedTracks)),
	)
	return SortLikedTracks(aggregatedTracks, policy), nil
}

func (explorer *Explorer) selectLikesSources(mutualFollows []Account, selectedIDs []int64) []Account {
	if len(selectedIDs) == 0 {
		capped, _ := capAccounts(mutualFollows, explorer.mutualCap)
		return capped
	}
	selectedIDSet := make(map[int64]struct{}, len(selectedIDs))
	for _, accountID := range selectedIDs {
		selectedIDSet[accountID] = struct{}{}
	}
	selection := make([]Account, 0, len(selectedIDs))
	for _, mutualFollow := range mutualFollows {
		if _, selected := selectedIDSet[mutualFollow.ID]; selected {
			selection = append(selection, mutualFollow)
		}
	}
	return selection
}

// SortLikedTracks returns a copy of tracks ordered by the policy. Sorting is
// stable so ties keep their discovery order, and re-applying a policy never
// requires a refetch.
func SortLikedTracks(tracks []LikedTrack, policy SortPolicy) []LikedTrack {
	sortedTracks := make([]LikedTrack, len(tracks))
	copy(sortedTracks, tracks)

	switch policy {
	case SortNewest:
		sort.SliceStable(sortedTracks, func(firstIndex, secondIndex int) bool {
			return sortedTracks[firstIndex].CreatedAt.Time.After(sortedTracks[secondIndex].CreatedAt.Time)
		})
	case SortOldest:
		sort.SliceStable(sortedTracks, func(firstIndex, secondIndex int) bool {
			return sortedTracks[firstIndex].CreatedAt.Time.Before(sortedTracks[secondIndex].CreatedAt.Time)
		})
	default:
		sort.SliceStable(sortedTracks, func(firstIndex, secondIndex int) bool {
			return len(sortedTracks[firstIndex].LikedBy) > len(sortedTracks[secondIndex].LikedBy)
		})
	}
	return sortedTracks
}
