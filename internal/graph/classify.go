package graph

// SplitByMutuality partitions followers by membership in the followings id
// set. The classifier is recomputed wholesale whenever the followings grow;
// it must never be patched incrementally because the partition depends on the
// full followings set.
func SplitByMutuality(followers []Account, followings []Account) MutualitySplit {
	followingIDs := make(map[int64]struct{}, len(followings))
	for _, followedAccount := range followings {
		followingIDs[followedAccount.ID] = struct{}{}
	}

	split := MutualitySplit{
		Mutual:    make([]Account, 0, len(followers)),
		NonMutual: make([]Account, 0, len(followers)),
	}
	for _, followerAccount := range followers {
		if _, followedBack := followingIDs[followerAccount.ID]; followedBack {
			split.Mutual = append(split.Mutual, followerAccount)
		} else {
			split.NonMutual = append(split.NonMutual, followerAccount)
		}
	}
	return split
}
