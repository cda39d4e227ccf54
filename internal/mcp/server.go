// Package mcp provides a Model Context Protocol server for convoscope.
//
// It exposes FAQ matching, intent classification and lookups of processed
// conversations as MCP tools, and store statistics and the loaded FAQ
// entries as MCP resources. The server is served over stdio by the serve
// command.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hurttlocker/convoscope/internal/assemble"
	"github.com/hurttlocker/convoscope/internal/dialog"
	"github.com/hurttlocker/convoscope/internal/extract"
	"github.com/hurttlocker/convoscope/internal/intent"
	"github.com/hurttlocker/convoscope/internal/knowledge"
	"github.com/hurttlocker/convoscope/internal/lexicon"
	"github.com/hurttlocker/convoscope/internal/logging"
	"github.com/hurttlocker/convoscope/internal/store"
)

const (
	module = "mcp"

	defaultIntentLimit = 20
	maxIntentLimit     = 200
	maxTopN            = 20
)

// ServerConfig holds configuration for the MCP server.
type ServerConfig struct {
	Store    store.Store
	Registry *knowledge.Registry
	Lexicon  lexicon.Bundle
	Match    knowledge.MatchOptions
	Assemble assemble.Config
	// Strategy is the classify tool's default strategy.
	Strategy      string
	IntentOptions []intent.Option
	Logger        logging.Logger
	Version       string // version string for MCP server info
}

// dbMu serializes tool calls that touch the database. mcp-go dispatches
// handlers concurrently and SQLite has a single writer.
var dbMu sync.Mutex

// NewServer creates a configured MCP server with all convoscope tools and
// resources.
func NewServer(cfg ServerConfig) (*server.MCPServer, error) {
	ver := cfg.Version
	if ver == "" {
		ver = "dev"
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}
	if cfg.Registry == nil {
		cfg.Registry = knowledge.NewRegistry(nil)
	}
	if cfg.Assemble == (assemble.Config{}) {
		cfg.Assemble = assemble.DefaultConfig()
	}
	if cfg.Strategy == "" {
		cfg.Strategy = intent.StrategyCascade
	}

	cls, err := newClassifyService(cfg)
	if err != nil {
		return nil, err
	}

	s := server.NewMCPServer(
		"convoscope",
		ver,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(true, false),
	)

	matcher := knowledge.NewMatcher(cfg.Registry, cfg.Match)

	registerMatchTool(s, matcher, cfg.Logger)
	registerClassifyTool(s, cls, cfg.Logger)
	if cfg.Store != nil {
		registerConversationTool(s, cfg.Store, cfg.Logger)
		registerIntentsTool(s, cfg.Store, cfg.Logger)
		registerStatsResource(s, cfg.Store, cfg.Registry)
	}
	registerFAQResource(s, cfg.Registry)

	return s, nil
}

// ServeStdio runs s on stdin/stdout until the client disconnects.
func ServeStdio(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

// --- Tools ---

func registerMatchTool(s *server.MCPServer, matcher *knowledge.Matcher, log logging.Logger) {
	tool := mcp.NewTool("convoscope_match",
		mcp.WithDescription("Match a customer question against the loaded FAQ knowledge base. Returns ranked FAQ entries, related reply templates and a formatted answer."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("The customer question"),
		),
		mcp.WithNumber("top_n",
			mcp.Description(fmt.Sprintf("Maximum number of matches (default: %d, max: %d)", matcher.Options().TopN, maxTopN)),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil || strings.TrimSpace(query) == "" {
			return mcp.NewToolResultError("query is required"), nil
		}

		res := matcher.Match(query)
		if n, err := req.RequireFloat("top_n"); err == nil && n > 0 {
			limit := min(int(n), maxTopN)
			if limit < len(res.Matches) {
				res.Matches = res.Matches[:limit]
			}
		}
		if res.Status == knowledge.StatusNoKnowledgeBase {
			log.Warn(module, "match without knowledge base", map[string]any{"error": knowledge.ErrNoKnowledgeBase.Error()})
		}

		payload := map[string]any{
			"status":     res.Status,
			"query":      res.Query,
			"keywords":   res.Keywords,
			"matches":    res.Matches,
			"answer":     knowledge.FormatAnswer(res),
			"generation": res.Generation,
		}
		data, _ := json.MarshalIndent(payload, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerClassifyTool(s *server.MCPServer, cls *classifyService, log logging.Logger) {
	tool := mcp.NewTool("convoscope_classify",
		mcp.WithDescription("Classify the scenario and intent of a conversation. Each non-empty line is one message; prefix a line with a role such as '用户:' or '客服:' to fix its sender."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("Conversation transcript, one message per line"),
		),
		mcp.WithString("strategy",
			mcp.Description(fmt.Sprintf("Classification strategy (default: %s)", cls.defaultStrategy)),
			mcp.Enum(intent.Strategies...),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil || strings.TrimSpace(text) == "" {
			return mcp.NewToolResultError("text is required"), nil
		}
		strategy := cls.defaultStrategy
		if v, err := req.RequireString("strategy"); err == nil && v != "" {
			strategy = v
		}

		res, conv, err := cls.classify(text, strategy)
		if err != nil {
			log.Error(module, "classify tool failed", map[string]any{"strategy": strategy, "error": err})
			return mcp.NewToolResultError(fmt.Sprintf("classify error: %v", err)), nil
		}

		payload := map[string]any{
			"result":          res,
			"structured_info": conv.StructuredInfo,
			"messages":        len(conv.Messages),
		}
		data, _ := json.MarshalIndent(payload, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerConversationTool(s *server.MCPServer, st store.Store, log logging.Logger) {
	tool := mcp.NewTool("convoscope_conversation",
		mcp.WithDescription("Fetch a processed conversation by id from the most recent run that contains it, with messages, entities and quality verdict."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Conversation id"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		id, err := req.RequireString("id")
		if err != nil || strings.TrimSpace(id) == "" {
			return mcp.NewToolResultError("id is required"), nil
		}

		conv, err := st.GetConversation(ctx, strings.TrimSpace(id))
		if err != nil {
			log.Error(module, "conversation lookup failed", map[string]any{"conversation_id": id, "error": err})
			return mcp.NewToolResultError(fmt.Sprintf("lookup error: %v", err)), nil
		}
		if conv == nil {
			return mcp.NewToolResultError(fmt.Sprintf("conversation %s not found", id)), nil
		}

		data, _ := json.MarshalIndent(conv, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerIntentsTool(s *server.MCPServer, st store.Store, log logging.Logger) {
	tool := mcp.NewTool("convoscope_intents",
		mcp.WithDescription("List stored intent classification results, optionally filtered by scenario."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("scenario",
			mcp.Description("Scenario to filter by (e.g. 回收业务). Empty = all."),
		),
		mcp.WithNumber("limit",
			mcp.Description(fmt.Sprintf("Maximum number of results (default: %d, max: %d)", defaultIntentLimit, maxIntentLimit)),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		q := store.IntentQuery{Limit: defaultIntentLimit}
		if v, err := req.RequireString("scenario"); err == nil {
			q.Scenario = strings.TrimSpace(v)
		}
		if v, err := req.RequireFloat("limit"); err == nil && v > 0 {
			q.Limit = min(int(v), maxIntentLimit)
		}

		results, err := st.ListIntentResults(ctx, q)
		if err != nil {
			log.Error(module, "listing intents failed", map[string]any{"scenario": q.Scenario, "error": err})
			return mcp.NewToolResultError(fmt.Sprintf("intents error: %v", err)), nil
		}
		if results == nil {
			results = []intent.Result{}
		}

		payload := map[string]any{
			"results": results,
			"count":   len(results),
		}
		data, _ := json.MarshalIndent(payload, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

// classifyService turns free text into a conversation and classifies it.
type classifyService struct {
	assembler       *assemble.Assembler
	extractor       *extract.Extractor
	classifiers     map[string]intent.Classifier
	defaultStrategy string
}

func newClassifyService(cfg ServerConfig) (*classifyService, error) {
	x, err := extract.New(cfg.Lexicon.EntityPatterns)
	if err != nil {
		return nil, fmt.Errorf("building entity extractor: %w", err)
	}
	svc := &classifyService{
		assembler:       assemble.New(cfg.Lexicon, cfg.Assemble),
		extractor:       x,
		classifiers:     map[string]intent.Classifier{},
		defaultStrategy: cfg.Strategy,
	}
	for _, name := range intent.Strategies {
		c, err := intent.New(name, cfg.Lexicon, cfg.IntentOptions...)
		if err != nil {
			return nil, fmt.Errorf("building %s classifier: %w", name, err)
		}
		svc.classifiers[name] = c
	}
	if _, ok := svc.classifiers[cfg.Strategy]; !ok {
		return nil, fmt.Errorf("%w: %s", intent.ErrUnknownStrategy, cfg.Strategy)
	}
	return svc, nil
}

func (c *classifyService) classify(text, strategy string) (intent.Result, *dialog.Conversation, error) {
	cl, ok := c.classifiers[strategy]
	if !ok {
		return intent.Result{}, nil, fmt.Errorf("%w: %s", intent.ErrUnknownStrategy, strategy)
	}
	conv, _ := c.assembler.Assemble("mcp", transcriptRecords(text))
	if conv == nil {
		return intent.Result{}, nil, dialog.ErrEmptyConversation
	}
	c.extractor.Annotate(conv)
	return cl.Classify(conv), conv, nil
}

// transcriptRecords splits text into one record per non-empty line. A
// leading "role:" prefix sets the sender when the role is recognised.
func transcriptRecords(text string) []dialog.RawRecord {
	var out []dialog.RawRecord
	for line := range strings.Lines(text) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		rec := dialog.RawRecord{ConversationID: "mcp", SequenceNo: fmt.Sprint(len(out) + 1)}
		if i := strings.IndexAny(line, ":："); i > 0 {
			if _, ok := dialog.ParseRole(line[:i]); ok {
				rec.SenderRole = line[:i]
				_, size := utf8.DecodeRuneInString(line[i:])
				line = strings.TrimSpace(line[i+size:])
			}
		}
		content := line
		rec.Content = &content
		out = append(out, rec)
	}
	return out
}
