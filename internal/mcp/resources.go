package mcp

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
)

var resLatestRecovery = mcp.NewResource(
	"vitalsync://latest_recovery",
	"Latest Recovery",
	mcp.WithResourceDescription("Most recent recovery snapshot: composite score, state band, HRV/RHR vs baseline, and last night's sleep figures"),
	mcp.WithMIMEType("application/json"),
)

func (h *handlers) latestRecovery(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uid := UserIDFromContext(ctx)

	row, err := h.ds.LatestRecoverySnapshot(ctx, uid)
	if err != nil {
		return nil, err
	}

	var data []byte
	if row == nil {
		data = []byte(`{"error":"no recovery snapshots synced yet"}`)
	} else {
		data, err = json.Marshal(row)
		if err != nil {
			return nil, err
		}
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
