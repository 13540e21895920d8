package graph

import "sync"

// Session is the single in-memory view model shared by the orchestrating
// surface. Every top-level analysis action replaces its contents wholesale.
// Generation counters guard against a stale in-flight run committing results
// over a newer one: superseded runs are discarded on arrival rather than
// cancelled mid-flight.
type Session struct {
	mutex sync.Mutex

	generation    uint64
	suggestionRun uint64
	likesRun      uint64

	analysis    *Analysis
	suggestions *SuggestionResult
	likedTracks []LikedTrack
	sortPolicy  SortPolicy
}

// RunToken identifies one invocation of an analysis stage. A token commits
// only while it still matches the session's current generation and sequence.
type RunToken struct {
	generation uint64
	sequence   uint64
}

// NewSession constructs an empty session with the default sort policy.
func NewSession() *Session {
	return &Session{sortPolicy: SortPopular}
}

// Begin starts a fresh top-level analysis, superseding every in-flight run.
func (session *Session) Begin() RunToken {
	session.mutex.Lock()
	defer session.mutex.Unlock()

	session.generation++
	return RunToken{generation: session.generation}
}

// BeginSuggestions starts a suggestion run tied to the current analysis.
func (session *Session) BeginSuggestions() RunToken {
	session.mutex.Lock()
	defer session.mutex.Unlock()

	session.suggestionRun++
	return RunToken{generation: session.generation, sequence: session.suggestionRun}
}

// BeginLikes starts a liked-track aggregation tied to the current analysis.
func (session *Session) BeginLikes() RunToken {
	session.mutex.Lock()
	defer session.mutex.Unlock()

	session.likesRun++
	return RunToken{generation: session.generation, sequence: session.likesRun}
}

// CommitAnalysis installs a fresh analysis and clears all derived state.
// Returns false when the token was superseded by a newer Begin call.
func (session *Session) CommitAnalysis(token RunToken, analysis *Analysis) bool {
	session.mutex.Lock()
	defer session.mutex.Unlock()

	if token.generation != session.generation {
		return false
	}
	session.analysis = analysis
	session.suggestions = nil
	session.likedTracks = nil
	return true
}

// CommitSuggestions installs a suggestion result unless a newer analysis or
// suggestion run has superseded the token.
func (session *Session) CommitSuggestions(token RunToken, result SuggestionResult) bool {
	session.mutex.Lock()
	defer session.mutex.Unlock()

	if token.generation != session.generation || token.sequence != session.suggestionRun {
		return false
	}
	session.suggestions = &result
	return true
}

// CommitLikedTracks installs an aggregated track list together with the sort
// policy it was produced under.
func (session *Session) CommitLikedTracks(token RunToken, tracks []LikedTrack, policy SortPolicy) bool {
	session.mutex.Lock()
	defer session.mutex.Unlock()

	if token.generation != session.generation || token.sequence != session.likesRun {
		return false
	}
	session.likedTracks = tracks
	session.sortPolicy = policy
	return true
}

// Analysis returns the current analysis, or nil before the first commit.
func (session *Session) Analysis() *Analysis {
	session.mutex.Lock()
	defer session.mutex.Unlock()
	return session.analysis
}

// Suggestions returns the latest committed suggestion result.
func (session *Session) Suggestions() (SuggestionResult, bool) {
	session.mutex.Lock()
	defer session.mutex.Unlock()

	if session.suggestions == nil {
		return SuggestionResult{}, false
	}
	return *session.suggestions, true
}

// LikedTracks returns the latest aggregation and its sort policy.
func (session *Session) LikedTracks() ([]LikedTrack, SortPolicy, bool) {
	session.mutex.Lock()
	defer session.mutex.Unlock()

	if session.likedTracks == nil {
		return nil, session.sortPolicy, false
	}
	return session.likedTracks, session.sortPolicy, true
}

// Resort reorders the aggregated track list in memory without refetching.
func (session *Session) Resort(policy SortPolicy) ([]LikedTrack, bool) {
	session.mutex.Lock()
	defer session.mutex.Unlock()

	if session.likedTracks == nil {
		return nil, false
	}
	session.likedTracks = SortLikedTracks(session.likedTracks, policy)
	session.sortPolicy = policy
	return session.likedTracks, true
}
