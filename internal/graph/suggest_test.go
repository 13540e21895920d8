package graph_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ham-and/social-graph-2802/internal/graph"
)

// buildSuggestionFixture wires a subject whose mutual follows are the given
// accounts. Every mutual follow is both a follower and a following of the
// subject.
func buildSuggestionFixture(mutualFollows []graph.Account) *graph.Analysis {
	subject := testAccount(testSubjectID)
	subject.FollowingsCount = len(mutualFollows)
	return &graph.Analysis{
		Snapshot: graph.RelationshipSnapshot{
			Subject:          subject,
			Followers:        mutualFollows,
			Followings:       mutualFollows,
			FollowingsOffset: len(mutualFollows),
			TotalFollowings:  len(mutualFollows),
		},
		Split: graph.SplitByMutuality(mutualFollows, mutualFollows),
	}
}

// giveMutuals makes every account in connections a mutual of owner in the
// stub data.
func giveMutuals(stub *stubRelationshipClient, owner graph.Account, connections []graph.Account) {
	stub.followersByID[owner.ID] = connections
	stub.followingsByID[owner.ID] = connections
}

func suggestionIDs(suggestions []graph.SuggestedAccount) []int64 {
	identifiers := make([]int64, 0, len(suggestions))
	for _, suggestion := range suggestions {
		identifiers = append(identifiers, suggestion.ID)
	}
	return identifiers
}

func TestSuggestFollowsExcludesSubjectAndFollowed(t *testing.T) {
	stub := newStubRelationshipClient()
	mutualFollow := testAccount(11)
	alreadyFollowed := testAccount(20)
	candidate := testAccount(30)

	analysis := buildSuggestionFixture([]graph.Account{mutualFollow})
	analysis.Snapshot.Followings = append(analysis.Snapshot.Followings, alreadyFollowed)
	giveMutuals(stub, mutualFollow, []graph.Account{testAccount(testSubjectID), alreadyFollowed, candidate})

	explorer := newTestExplorer(t, stub)
	result, err := explorer.SuggestFollows(context.Background(), analysis, nil)
	if err != nil {
		t.Fatalf("suggest follows: %v", err)
	}

	if len(result.Suggestions) != 1 {
		t.Fatalf("suggestions = %v, want only candidate %d", suggestionIDs(result.Suggestions), candidate.ID)
	}
	suggestion := result.Suggestions[0]
	if suggestion.ID != candidate.ID {
		t.Fatalf("suggested id = %d, want %d", suggestion.ID, candidate.ID)
	}
	if suggestion.MutualCount != 1 || len(suggestion.MutualConnections) != 1 {
		t.Fatalf("mutual count = %d with %d connections, want 1 and 1", suggestion.MutualCount, len(suggestion.MutualConnections))
	}
	if suggestion.MutualConnections[0].ID != mutualFollow.ID {
		t.Fatalf("provenance id = %d, want %d", suggestion.MutualConnections[0].ID, mutualFollow.ID)
	}
}

func TestSuggestFollowsRanksByMutualCount(t *testing.T) {
	stub := newStubRelationshipClient()
	mutualFollows := []graph.Account{testAccount(11), testAccount(12), testAccount(13), testAccount(14)}
	analysis := buildSuggestionFixture(mutualFollows)

	rareCandidate := testAccount(40)
	popularCandidate := testAccount(41)
	giveMutuals(stub, mutualFollows[0], []graph.Account{rareCandidate})
	giveMutuals(stub, mutualFollows[1], []graph.Account{popularCandidate})
	giveMutuals(stub, mutualFollows[2], []graph.Account{popularCandidate})
	giveMutuals(stub, mutualFollows[3], []graph.Account{popularCandidate})

	explorer := newTestExplorer(t, stub)
	result, err := explorer.SuggestFollows(context.Background(), analysis, nil)
	if err != nil {
		t.Fatalf("suggest follows: %v", err)
	}

	if len(result.Suggestions) != 2 {
		t.Fatalf("suggestions = %v, want 2 entries", suggestionIDs(result.Suggestions))
	}
	if result.Suggestions[0].ID != popularCandidate.ID || result.Suggestions[0].MutualCount != 3 {
		t.Fatalf("top suggestion = %d (count %d), want %d (count 3)",
			result.Suggestions[0].ID, result.Suggestions[0].MutualCount, popularCandidate.ID)
	}
	if result.Suggestions[1].ID != rareCandidate.ID || result.Suggestions[1].MutualCount != 1 {
		t.Fatalf("second suggestion = %d (count %d), want %d (count 1)",
			result.Suggestions[1].ID, result.Suggestions[1].MutualCount, rareCandidate.ID)
	}
}

func TestSuggestFollowsToleratesPerAccountFailures(t *testing.T) {
	stub := newStubRelationshipClient()
	mutualFollows := make([]graph.Account, 0, 5)
	for accountID := int64(11); accountID <= 15; accountID++ {
		mutualFollows = append(mutualFollows, testAccount(accountID))
	}
	analysis := buildSuggestionFixture(mutualFollows)

	for index, mutualFollow := range mutualFollows {
		giveMutuals(stub, mutualFollow, []graph.Account{testAccount(int64(101 + index))})
	}
	stub.relationshipErrorsByID[13] = errors.New("upstream 500")

	var (
		progressMutex sync.Mutex
		progressSeen  []graph.SuggestionProgress
	)
	explorer := newTestExplorer(t, stub)
	result, err := explorer.SuggestFollows(context.Background(), analysis, func(update graph.SuggestionProgress) {
		progressMutex.Lock()
		progressSeen = append(progressSeen, update)
		progressMutex.Unlock()
	})
	if err != nil {
		t.Fatalf("suggest follows: %v", err)
	}

	suggestedIDSet := map[int64]struct{}{}
	for _, suggestion := range result.Suggestions {
		suggestedIDSet[suggestion.ID] = struct{}{}
	}
	for _, expectedID := range []int64{101, 102, 104, 105} {
		if _, exists := suggestedIDSet[expectedID]; !exists {
			t.Fatalf("expected suggestion %d in %v", expectedID, suggestionIDs(result.Suggestions))
		}
	}
	if _, exists := suggestedIDSet[103]; exists {
		t.Fatal("failed account 13 must contribute no suggestions")
	}

	if len(progressSeen) != 5 {
		t.Fatalf("progress updates = %d, want 5 (failures still count)", len(progressSeen))
	}
	finalProgress := progressSeen[len(progressSeen)-1]
	if finalProgress.Processed != 5 || finalProgress.Total != 5 {
		t.Fatalf("final progress = %+v, want 5/5", finalProgress)
	}
}

func TestSuggestFollowsTruncatesSourceListVisibly(t *testing.T) {
	stub := newStubRelationshipClient()
	mutualFollows := make([]graph.Account, 0, 80)
	for accountID := int64(100); accountID < 180; accountID++ {
		mutualFollows = append(mutualFollows, testAccount(accountID))
	}
	analysis := buildSuggestionFixture(mutualFollows)

	explorer := newTestExplorer(t, stub)
	var lastProgress graph.SuggestionProgress
	var progressMutex sync.Mutex
	result, err := explorer.SuggestFollows(context.Background(), analysis, func(update graph.SuggestionProgress) {
		progressMutex.Lock()
		lastProgress = update
		progressMutex.Unlock()
	})
	if err != nil {
		t.Fatalf("suggest follows: %v", err)
	}

	if result.Processed != graph.DefaultMutualCap {
		t.Fatalf("processed = %d, want %d", result.Processed, graph.DefaultMutualCap)
	}
	if result.TotalMutuals != 80 {
		t.Fatalf("total mutuals = %d, want 80", result.TotalMutuals)
	}
	if !result.Truncated {
		t.Fatal("expected truncation to be reported")
	}
	if lastProgress.Processed != graph.DefaultMutualCap || lastProgress.Total != graph.DefaultMutualCap {
		t.Fatalf("final progress = %+v, want %d/%d", lastProgress, graph.DefaultMutualCap, graph.DefaultMutualCap)
	}
}

func TestSuggestFollowsBoundsBatchConcurrency(t *testing.T) {
	stub := newStubRelationshipClient()
	mutualFollows := make([]graph.Account, 0, 12)
	for accountID := int64(11); accountID < 23; accountID++ {
		mutualFollows = append(mutualFollows, testAccount(accountID))
	}
	analysis := buildSuggestionFixture(mutualFollows)

	explorer := newTestExplorer(t, stub)
	if _, err := explorer.SuggestFollows(context.Background(), analysis, nil); err != nil {
		t.Fatalf("suggest follows: %v", err)
	}

	if observed := stub.observedMaxConcurrency(); observed > graph.SuggestionBatchSize {
		t.Fatalf("observed %d concurrent fetches, batch size is %d", observed, graph.SuggestionBatchSize)
	}
}

func TestSuggestFollowsRequiresAnalysis(t *testing.T) {
	explorer := newTestExplorer(t, newStubRelationshipClient())
	if _, err := explorer.SuggestFollows(context.Background(), nil, nil); !errors.Is(err, graph.ErrMissingAnalysis) {
		t.Fatalf("expected ErrMissingAnalysis, got %v", err)
	}
}
