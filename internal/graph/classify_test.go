package graph_test

import (
	"testing"

	"github.com/ham-and/social-graph-2802/internal/graph"
)

func TestSplitByMutuality(t *testing.T) {
	testCases := []struct {
		name              string
		followerIDs       []int64
		followingIDs      []int64
		expectedMutual    []int64
		expectedNonMutual []int64
	}{
		{
			name:              "partitions followers by followings membership",
			followerIDs:       []int64{10, 11, 12, 13},
			followingIDs:      []int64{11, 13, 14},
			expectedMutual:    []int64{11, 13},
			expectedNonMutual: []int64{10, 12},
		},
		{
			name:              "no followings yields all non mutual",
			followerIDs:       []int64{10, 11},
			followingIDs:      nil,
			expectedMutual:    []int64{},
			expectedNonMutual: []int64{10, 11},
		},
		{
			name:              "no followers yields empty partition",
			followerIDs:       nil,
			followingIDs:      []int64{11},
			expectedMutual:    []int64{},
			expectedNonMutual: []int64{},
		},
		{
			name:              "identical sets are fully mutual",
			followerIDs:       []int64{10, 11, 12},
			followingIDs:      []int64{12, 10, 11},
			expectedMutual:    []int64{10, 11, 12},
			expectedNonMutual: []int64{},
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			followers := make([]graph.Account, 0, len(testCase.followerIDs))
			for _, accountID := range testCase.followerIDs {
				followers = append(followers, testAccount(accountID))
			}
			followings := make([]graph.Account, 0, len(testCase.followingIDs))
			for _, accountID := range testCase.followingIDs {
				followings = append(followings, testAccount(accountID))
			}

			split := graph.SplitByMutuality(followers, followings)

			assertAccountIDs(t, "Mutual", split.Mutual, testCase.expectedMutual)
			assertAccountIDs(t, "NonMutual", split.NonMutual, testCase.expectedNonMutual)

			if len(split.Mutual)+len(split.NonMutual) != len(followers) {
				t.Fatalf("partition is not total: %d + %d != %d", len(split.Mutual), len(split.NonMutual), len(followers))
			}
			mutualIDSet := map[int64]struct{}{}
			for _, account := range split.Mutual {
				mutualIDSet[account.ID] = struct{}{}
			}
			for _, account := range split.NonMutual {
				if _, overlaps := mutualIDSet[account.ID]; overlaps {
					t.Fatalf("account %d appears in both partitions", account.ID)
				}
			}
		})
	}
}
