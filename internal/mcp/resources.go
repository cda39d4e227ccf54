package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hurttlocker/convoscope/internal/knowledge"
	"github.com/hurttlocker/convoscope/internal/store"
)

const recentRunLimit = 5

func registerStatsResource(s *server.MCPServer, st store.Store, reg *knowledge.Registry) {
	resource := mcp.NewResource(
		"convoscope://stats",
		"Convoscope Statistics",
		mcp.WithResourceDescription("Store counts, recent pipeline runs and the loaded knowledge base size."),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(resource, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		stats, err := st.Stats(ctx)
		if err != nil {
			return nil, fmt.Errorf("getting stats: %w", err)
		}
		runs, err := st.ListRuns(ctx, recentRunLimit)
		if err != nil {
			return nil, fmt.Errorf("listing runs: %w", err)
		}

		base := reg.Load()
		payload := map[string]any{
			"store":       stats,
			"recent_runs": runs,
			"knowledge_base": map[string]any{
				"faqs":       base.Len(),
				"templates":  len(base.Templates()),
				"generation": reg.Generation(),
			},
		}
		data, _ := json.MarshalIndent(payload, "", "  ")
		return []mcp.ResourceContents{
			mcp.TextResourceContents{URI: req.Params.URI, MIMEType: "application/json", Text: string(data)},
		}, nil
	})
}

func registerFAQResource(s *server.MCPServer, reg *knowledge.Registry) {
	resource := mcp.NewResource(
		"convoscope://faqs",
		"FAQ Entries",
		mcp.WithResourceDescription("The FAQ entries of the knowledge base currently served by the matcher."),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(resource, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		faqs := reg.Load().FAQs()
		if faqs == nil {
			faqs = []knowledge.FAQEntry{}
		}
		payload := map[string]any{
			"faqs":       faqs,
			"count":      len(faqs),
			"generation": reg.Generation(),
		}
		data, _ := json.MarshalIndent(payload, "", "  ")
		return []mcp.ResourceContents{
			mcp.TextResourceContents{URI: req.Params.URI, MIMEType: "application/json", Text: string(data)},
		}, nil
	})
}
