package indexer

import (
	"context"

	"polyscope/model"
)

// FetchAllFills pages through a token's fills strictly older than
// beforeTS, newest-first, stopping when a page comes back smaller than
// PageSize or the caller-supplied cap is reached (spec §4.2
// termination rule; cap <= 0 means unbounded).
func (c *Client) FetchAllFills(ctx context.Context, token string, beforeTS int64, cap int) ([]model.WireFill, error) {
	var all []model.WireFill
	cursor := beforeTS

	for {
		page, err := c.FetchFillsPage(ctx, token, cursor)
		if err != nil {
			return all, err
		}
		all = append(all, page...)

		if len(page) < PageSize {
			break
		}
		if cap > 0 && len(all) >= cap {
			break
		}

		last := page[len(page)-1]
		ts, err := model.ParseUnixSeconds(last.Timestamp)
		if err != nil {
			return all, newMalformedResponseError(err)
		}
		cursor = ts
	}

	if cap > 0 && len(all) > cap {
		all = all[:cap]
	}
	return all, nil
}
