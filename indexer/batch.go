package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"polyscope/model"
)

// MaxBatchAliases is the number of wallets folded into one aliased
// account query before the indexer's query-complexity budget forces a
// split (spec §4.6, §5 rate control).
const MaxBatchAliases = 50

// FetchAccountsBatch resolves up to MaxBatchAliases wallets' Account
// records in a single aliased GraphQL request. The returned map omits
// any wallet the indexer has no record for. Callers with more wallets
// than MaxBatchAliases must chunk themselves; this method does not
// split internally so a caller controls its own inter-chunk pacing.
func (c *Client) FetchAccountsBatch(ctx context.Context, wallets []string) (map[string]*model.WireAccount, error) {
	if len(wallets) == 0 {
		return map[string]*model.WireAccount{}, nil
	}
	if len(wallets) > MaxBatchAliases {
		return nil, fmt.Errorf("fetch accounts batch: %d wallets exceeds max %d per request", len(wallets), MaxBatchAliases)
	}

	var b strings.Builder
	b.WriteString("query AccountsBatch(")
	vars := make(map[string]any, len(wallets))
	for i, w := range wallets {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "$id%d: String!", i)
		vars[fmt.Sprintf("id%d", i)] = w
	}
	b.WriteString(") {\n")
	for i := range wallets {
		fmt.Fprintf(&b, "  w%d: account(id: $id%d) { id creationTimestamp lastSeenTimestamp collateralVolume numTrades profit scaledProfit }\n", i, i)
	}
	b.WriteString("}")

	var raw map[string]json.RawMessage
	if err := c.Query(ctx, b.String(), vars, &raw); err != nil {
		return nil, err
	}

	out := make(map[string]*model.WireAccount, len(wallets))
	for i, w := range wallets {
		alias := fmt.Sprintf("w%d", i)
		data, ok := raw[alias]
		if !ok || string(data) == "null" {
			continue
		}
		var wa model.WireAccount
		if err := json.Unmarshal(data, &wa); err != nil {
			return nil, fmt.Errorf("decode batched account %s: %w", w, err)
		}
		out[w] = &wa
	}
	return out, nil
}
