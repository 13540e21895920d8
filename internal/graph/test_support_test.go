package graph_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/ham-and/social-graph-2802/internal/graph"
)

const (
	testSubjectID         = int64(1)
	testSubjectProfileURL = "https://soundcloud.com/subject"
)

type followingsRequest struct {
	userID int64
	limit  int
	offset int
}

// stubRelationshipClient serves canned relationship data and records the
// requests it receives.
type stubRelationshipClient struct {
	mutex sync.Mutex

	accountsByProfileURL map[string]graph.Account
	usersByID            map[int64]graph.Account
	followersByID        map[int64][]graph.Account
	followingsByID       map[int64][]graph.Account
	followingPagesByID   map[int64][][]graph.Account
	likedTracksByID      map[int64][]graph.Track

	relationshipErrorsByID map[int64]error
	likesErrorsByID        map[int64]error

	followingsRequests []followingsRequest
	resolveCalls       int

	concurrentFetches    int
	maxConcurrentFetches int
}

func newStubRelationshipClient() *stubRelationshipClient {
	return &stubRelationshipClient{
		accountsByProfileURL:   map[string]graph.Account{},
		usersByID:              map[int64]graph.Account{},
		followersByID:          map[int64][]graph.Account{},
		followingsByID:         map[int64][]graph.Account{},
		followingPagesByID:     map[int64][][]graph.Account{},
		likedTracksByID:        map[int64][]graph.Track{},
		relationshipErrorsByID: map[int64]error{},
		likesErrorsByID:        map[int64]error{},
	}
}

func (stub *stubRelationshipClient) beginFetch() {
	stub.mutex.Lock()
	stub.concurrentFetches++
	if stub.concurrentFetches > stub.maxConcurrentFetches {
		stub.maxConcurrentFetches = stub.concurrentFetches
	}
	stub.mutex.Unlock()
}

func (stub *stubRelationshipClient) endFetch() {
	stub.mutex.Lock()
	stub.concurrentFetches--
	stub.mutex.Unlock()
}

func (stub *stubRelationshipClient) Resolve(_ context.Context, profileURL string) (graph.Account, error) {
	stub.mutex.Lock()
	stub.resolveCalls++
	account, exists := stub.accountsByProfileURL[profileURL]
	stub.mutex.Unlock()
	if !exists {
		return graph.Account{}, fmt.Errorf("no stub account for %s", profileURL)
	}
	return account, nil
}

func (stub *stubRelationshipClient) User(_ context.Context, userID int64) (graph.Account, error) {
	stub.mutex.Lock()
	account, exists := stub.usersByID[userID]
	stub.mutex.Unlock()
	if !exists {
		return graph.Account{}, fmt.Errorf("no stub user %d", userID)
	}
	return account, nil
}

func (stub *stubRelationshipClient) Followers(_ context.Context, userID int64, _ int) ([]graph.Account, error) {
	stub.beginFetch()
	defer stub.endFetch()

	stub.mutex.Lock()
	fetchErr := stub.relationshipErrorsByID[userID]
	followers := stub.followersByID[userID]
	stub.mutex.Unlock()
	if fetchErr != nil {
		return nil, fetchErr
	}
	return followers, nil
}

func (stub *stubRelationshipClient) Followings(_ context.Context, userID int64, limit int, offset int) ([]graph.Account, error) {
	stub.beginFetch()
	defer stub.endFetch()

	stub.mutex.Lock()
	stub.followingsRequests = append(stub.followingsRequests, followingsRequest{userID: userID, limit: limit, offset: offset})
	fetchErr := stub.relationshipErrorsByID[userID]
	pages := stub.followingPagesByID[userID]
	flat := stub.followingsByID[userID]
	stub.mutex.Unlock()

	if fetchErr != nil {
		return nil, fetchErr
	}
	if len(pages) > 0 {
		for _, page := range pages {
			if offset == 0 {
				return page, nil
			}
			offset -= len(page)
		}
		return nil, nil
	}
	return flat, nil
}

func (stub *stubRelationshipClient) LikedTracks(_ context.Context, userID int64, _ int) ([]graph.Track, error) {
	stub.mutex.Lock()
	fetchErr := stub.likesErrorsByID[userID]
	tracks := stub.likedTracksByID[userID]
	stub.mutex.Unlock()
	if fetchErr != nil {
		return nil, fetchErr
	}
	return tracks, nil
}

func (stub *stubRelationshipClient) recordedFollowingsRequests() []followingsRequest {
	stub.mutex.Lock()
	defer stub.mutex.Unlock()
	cloned := make([]followingsRequest, len(stub.followingsRequests))
	copy(cloned, stub.followingsRequests)
	return cloned
}

func (stub *stubRelationshipClient) observedMaxConcurrency() int {
	stub.mutex.Lock()
	defer stub.mutex.Unlock()
	return stub.maxConcurrentFetches
}

func newTestExplorer(t *testing.T, stub *stubRelationshipClient) *graph.Explorer {
	t.Helper()
	explorer, err := graph.NewExplorer(graph.Config{Client: stub})
	if err != nil {
		t.Fatalf("create explorer: %v", err)
	}
	return explorer
}

func testAccount(accountID int64) graph.Account {
	return graph.Account{
		ID:           accountID,
		Username:     fmt.Sprintf("user-%d", accountID),
		PermalinkURL: fmt.Sprintf("https://soundcloud.com/user-%d", accountID),
	}
}

func accountIDs(accounts []graph.Account) []int64 {
	identifiers := make([]int64, 0, len(accounts))
	for _, account := range accounts {
		identifiers = append(identifiers, account.ID)
	}
	return identifiers
}

func assertAccountIDs(t *testing.T, label string, accounts []graph.Account, expectedIDs []int64) {
	t.Helper()
	actualIDs := accountIDs(accounts)
	if len(actualIDs) != len(expectedIDs) {
		t.Fatalf("%s length mismatch: got %v, want %v", label, actualIDs, expectedIDs)
	}
	for index := range expectedIDs {
		if actualIDs[index] != expectedIDs[index] {
			t.Fatalf("%s[%d] = %d, want %d", label, index, actualIDs[index], expectedIDs[index])
		}
	}
}
