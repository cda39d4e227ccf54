package intent

import (
	"errors"
	"math"
	"slices"
	"testing"

	"github.com/hurttlocker/convoscope/internal/dialog"
	"github.com/hurttlocker/convoscope/internal/lexicon"
)

type turn struct {
	role dialog.Role
	text string
}

func conversation(id string, info map[dialog.EntityType][]string, turns ...turn) *dialog.Conversation {
	conv := &dialog.Conversation{ID: id, StructuredInfo: info}
	for i, t := range turns {
		conv.Messages = append(conv.Messages, dialog.Message{
			SequenceNo:   i + 1,
			Role:         t.role,
			Content:      t.text,
			CleanContent: t.text,
		})
	}
	return conv
}

func user(text string) turn  { return turn{dialog.RoleUser, text} }
func agent(text string) turn { return turn{dialog.RoleAgent, text} }

func mustNew(t *testing.T, strategy string, lex lexicon.Bundle) Classifier {
	t.Helper()
	c, err := New(strategy, lex)
	if err != nil {
		t.Fatalf("New(%q): %v", strategy, err)
	}
	return c
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestNewStrategies(t *testing.T) {
	lex := lexicon.Default()
	for _, name := range Strategies {
		if got := mustNew(t, name, lex).Name(); got != name {
			t.Fatalf("New(%q).Name() = %q", name, got)
		}
	}
	if got := mustNew(t, "", lex).Name(); got != StrategyCascade {
		t.Fatalf("default strategy = %q, want cascade", got)
	}
	if _, err := New("llm", lex); !errors.Is(err, ErrUnknownStrategy) {
		t.Fatalf("expected ErrUnknownStrategy, got %v", err)
	}
}

func TestNoUserMessages(t *testing.T) {
	convs := []*dialog.Conversation{
		{ID: "empty"},
		conversation("agent-only", nil, agent("您好，欢迎咨询回收宝客服")),
		{ID: "synthetic", Messages: []dialog.Message{
			{SequenceNo: 1, Role: dialog.RoleUser, CleanContent: "取消订单", Synthetic: true},
		}},
	}
	for _, name := range Strategies {
		c := mustNew(t, name, lexicon.Default())
		for _, conv := range convs {
			res := c.Classify(conv)
			if res.Intent != lexicon.UnknownIntent || res.Scenario != lexicon.OtherScenario || res.Confidence != 0 {
				t.Fatalf("%s/%s: got %s/%s %.2f", name, conv.ID, res.Scenario, res.Intent, res.Confidence)
			}
		}
	}
}

func TestCascadeOrderCancelOverride(t *testing.T) {
	conv := conversation("c1",
		map[dialog.EntityType][]string{dialog.EntityOrderID: {"12345678901234567890"}},
		user("订单12345678901234567890能取消吗"),
	)
	res := mustNew(t, StrategyCascade, lexicon.Default()).Classify(conv)
	if res.Intent != "order_cancel" || res.Scenario != "order_management" {
		t.Fatalf("got %s/%s", res.Scenario, res.Intent)
	}
	if res.Confidence < 0.85 {
		t.Fatalf("confidence = %.2f, want >= 0.85", res.Confidence)
	}
	if res.Evidence.Rule != "order_cancel_request" {
		t.Fatalf("rule = %q", res.Evidence.Rule)
	}
	if res.Evidence.ScenarioScores["order_management"] < 3 {
		t.Fatalf("order id bonus missing: %+v", res.Evidence.ScenarioScores)
	}
}

func TestCascade(t *testing.T) {
	tracking := map[dialog.EntityType][]string{dialog.EntityTrackingNumber: {"SF1234567890"}}
	tests := []struct {
		name       string
		conv       *dialog.Conversation
		scenario   string
		intent     string
		confidence float64
	}{
		{
			name:       "price inquiry",
			conv:       conversation("p", nil, user("我想回收手机，多少钱")),
			scenario:   "recycle_pricing",
			intent:     "price_inquiry",
			confidence: 0.8,
		},
		{
			name:       "complaint",
			conv:       conversation("c", nil, user("我要投诉，态度太差了")),
			scenario:   "after_sales",
			intent:     "complaint",
			confidence: 0.8,
		},
		{
			name:       "delivery confirmation",
			conv:       conversation("d", tracking, user("快递SF1234567890到了吗")),
			scenario:   "shipping",
			intent:     "delivery_confirm",
			confidence: 0.85,
		},
		{
			name:       "greeting only",
			conv:       conversation("g", nil, user("你好")),
			scenario:   lexicon.OtherScenario,
			intent:     "greeting",
			confidence: 0.3,
		},
		{
			name:       "nothing matches",
			conv:       conversation("n", nil, user("今天天气不错")),
			scenario:   lexicon.OtherScenario,
			intent:     lexicon.FallbackIntent,
			confidence: 0.3,
		},
	}
	c := mustNew(t, StrategyCascade, lexicon.Default())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := c.Classify(tt.conv)
			if res.Scenario != tt.scenario || res.Intent != tt.intent {
				t.Fatalf("got %s/%s, want %s/%s", res.Scenario, res.Intent, tt.scenario, tt.intent)
			}
			if !approx(res.Confidence, tt.confidence) {
				t.Fatalf("confidence = %.3f, want %.3f", res.Confidence, tt.confidence)
			}
		})
	}
}

func TestKeyword(t *testing.T) {
	c := mustNew(t, StrategyKeyword, lexicon.Default())

	res := c.Classify(conversation("k1", nil, user("我想回收手机，多少钱，价格能高点吗")))
	if res.Intent != "price_inquiry" || res.Scenario != "recycle_pricing" {
		t.Fatalf("got %s/%s", res.Scenario, res.Intent)
	}
	// price_inquiry scores 2 and refund_query 1 (钱).
	if want := 0.3 + 0.5*2.0/3.0; !approx(res.Confidence, want) {
		t.Fatalf("confidence = %.4f, want %.4f", res.Confidence, want)
	}

	res = c.Classify(conversation("k2", nil, user("今天天气不错"), user("出去走走")))
	if res.Intent != lexicon.FallbackIntent || res.Scenario != lexicon.OtherScenario || res.Confidence != 0.3 {
		t.Fatalf("fallback = %+v", res)
	}

	res = c.Classify(conversation("k3",
		map[dialog.EntityType][]string{dialog.EntityOrderID: {"12345678901234567890"}},
		user("订单12345678901234567890"),
	))
	if res.Intent != "order_query" {
		t.Fatalf("entity bonus should favour order_query, got %s", res.Intent)
	}
}

func TestContextualAgentQuestion(t *testing.T) {
	conv := conversation("q", nil,
		agent("请问是要查询物流吗？"),
		user("是的"),
	)
	res := mustNew(t, StrategyContextual, lexicon.Default()).Classify(conv)
	if res.Intent != "shipping_query" || res.Scenario != "shipping" || !approx(res.Confidence, 0.8) {
		t.Fatalf("got %s/%s %.2f", res.Scenario, res.Intent, res.Confidence)
	}
	if len(res.Topics) != 1 || res.Topics[0].Source != SourceContext || res.Topics[0].MessageSeq != 2 {
		t.Fatalf("topics = %+v", res.Topics)
	}
	if len(res.Evidence.Keywords) != 1 || res.Evidence.Keywords[0] != "请问是要查询物流" {
		t.Fatalf("evidence keywords = %q", res.Evidence.Keywords)
	}
}

func TestContextualTransition(t *testing.T) {
	conv := conversation("t", nil,
		agent("您好，请问有什么能帮到您"),
		user("我想问下手机回收多少钱"),
		agent("这款大约3000元"),
		user("另外退款什么时候到账"),
	)
	res := mustNew(t, StrategyContextual, lexicon.Default()).Classify(conv)
	if res.Intent != "refund_query" || !approx(res.Confidence, 0.8) {
		t.Fatalf("got %s %.2f", res.Intent, res.Confidence)
	}
	if len(res.Topics) != 2 {
		t.Fatalf("topics = %+v", res.Topics)
	}
	second := res.Topics[1]
	if second.Intent != "price_inquiry" || !approx(second.Confidence, 0.7) {
		t.Fatalf("early topic = %+v", second)
	}
	if !slices.Contains(res.Evidence.Keywords, "退款") || !slices.Contains(res.Evidence.Keywords, "到账") {
		t.Fatalf("evidence keywords = %q, want the refund keywords", res.Evidence.Keywords)
	}
	if !slices.Contains(second.Keywords, "多少钱") {
		t.Fatalf("early topic keywords = %q", second.Keywords)
	}
}

func TestContextualLateMessageWithoutTransition(t *testing.T) {
	conv := conversation("late", nil,
		agent("您好"),
		user("在吗"),
		agent("在的"),
		user("嗯"),
		user("退款到账了吗"),
	)
	res := mustNew(t, StrategyContextual, lexicon.Default()).Classify(conv)
	if res.Intent != lexicon.FallbackIntent || res.Confidence != 0.3 || len(res.Topics) != 0 {
		t.Fatalf("late keyword hit without transition should not count: %+v", res)
	}
}

func TestContextualOverrideWinsTies(t *testing.T) {
	lex := lexicon.Default()
	lex.Overrides = []lexicon.Override{
		{Name: "phone_callback", Entity: dialog.EntityPhone, Intent: "feedback", Confidence: 0.9},
	}
	conv := conversation("tie",
		map[dialog.EntityType][]string{dialog.EntityPhone: {"13800138000"}},
		user("我要投诉"),
	)
	res := mustNew(t, StrategyContextual, lex).Classify(conv)
	if res.Intent != "feedback" || res.Evidence.Rule != "phone_callback" {
		t.Fatalf("override should win the tie: %+v", res)
	}
	if len(res.Topics) != 2 {
		t.Fatalf("topics = %+v", res.Topics)
	}
}

func TestContextualCancelWithOrderID(t *testing.T) {
	conv := conversation("c1",
		map[dialog.EntityType][]string{dialog.EntityOrderID: {"12345678901234567890"}},
		user("订单12345678901234567890能取消吗"),
	)
	res := mustNew(t, StrategyContextual, lexicon.Default()).Classify(conv)
	if res.Intent != "order_cancel" || !approx(res.Confidence, 0.9) {
		t.Fatalf("got %s %.2f", res.Intent, res.Confidence)
	}
	if len(res.Evidence.Keywords) != 1 || res.Evidence.Keywords[0] != "取消" {
		t.Fatalf("evidence keywords = %q, want [取消]", res.Evidence.Keywords)
	}
}

func TestConfidenceAlwaysInRange(t *testing.T) {
	order := map[dialog.EntityType][]string{dialog.EntityOrderID: {"12345678901234567890"}}
	convs := []*dialog.Conversation{
		conversation("a", nil, user("回收回收回收多少钱价格估价报价")),
		conversation("b", order, user("查一下订单进度"), user("另外我要取消")),
		conversation("c", nil, agent("请问是要退款吗"), user("对，退款退款")),
		conversation("d", nil, user("？？？")),
	}
	for _, name := range Strategies {
		c := mustNew(t, name, lexicon.Default())
		for _, conv := range convs {
			res := c.Classify(conv)
			if res.Confidence < 0 || res.Confidence > 1 {
				t.Fatalf("%s/%s confidence %.3f out of range", name, conv.ID, res.Confidence)
			}
			if res.Intent == "" || res.Scenario == "" {
				t.Fatalf("%s/%s: empty labels %+v", name, conv.ID, res)
			}
		}
	}
}

func TestSummarizeAndCompare(t *testing.T) {
	results := []Result{
		{Scenario: "order_management", Intent: "order_cancel", Confidence: 0.9, Evidence: Evidence{Rule: "order_cancel_request"}},
		{Scenario: "order_management", Intent: "order_query", Confidence: 0.7},
		{Scenario: lexicon.OtherScenario, Intent: lexicon.FallbackIntent, Confidence: 0.3},
		{Scenario: "recycle_pricing", Intent: "price_inquiry", Confidence: 0.8, Topics: []Topic{{Intent: "price_inquiry"}, {Intent: "refund_query"}}},
	}
	r := Summarize(StrategyCascade, results)
	if r.Total != 4 || r.Buckets[BucketHigh] != 1 || r.Buckets[BucketMedium] != 2 || r.Buckets[BucketLow] != 1 {
		t.Fatalf("buckets = %+v", r.Buckets)
	}
	if !approx(r.OtherQueryRatio, 0.25) || !approx(r.MeanConfidence, 0.675) {
		t.Fatalf("ratios = %.3f %.3f", r.OtherQueryRatio, r.MeanConfidence)
	}
	if r.Scenarios[0].Name != "order_management" || r.Scenarios[0].Count != 2 {
		t.Fatalf("scenario distribution = %+v", r.Scenarios)
	}
	if r.MultiTopic != 1 || r.RuleHits["order_cancel_request"] != 1 {
		t.Fatalf("multi=%d rules=%v", r.MultiTopic, r.RuleHits)
	}

	empty := Summarize(StrategyKeyword, nil)
	cmp := Compare(empty, r)
	if len(cmp.Strategies) != 2 || cmp.Strategies[1] != StrategyCascade {
		t.Fatalf("strategies = %v", cmp.Strategies)
	}
	for _, row := range cmp.Rows {
		if len(row.Values) != 2 {
			t.Fatalf("row %s has %d values", row.Metric, len(row.Values))
		}
		if row.Metric == "other_query_ratio" && (row.Values[0] != 0 || !approx(row.Values[1], 0.25)) {
			t.Fatalf("other_query_ratio row = %v", row.Values)
		}
	}
}
