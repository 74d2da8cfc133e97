package monitor

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"polyscope/accounts"
)

// historyCache is the session-local LRU-by-TTL cache in front of the
// account-history fetcher (spec §4.11): within one monitor session, a
// wallet seen twice inside the TTL window is not re-fetched. Capacity
// is generous since a wallet entry is tiny and the cache only needs to
// survive one session, not be tuned for memory pressure.
const historyCacheSize = 10_000

func newHistoryCache(ttl time.Duration) *lru.LRU[string, accounts.Lookup] {
	return lru.NewLRU[string, accounts.Lookup](historyCacheSize, nil, ttl)
}
