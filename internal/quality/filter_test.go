package quality

import (
	"math"
	"testing"

	"github.com/hurttlocker/convoscope/internal/dialog"
	"github.com/hurttlocker/convoscope/internal/lexicon"
)

func msg(seq int, role dialog.Role, text string) dialog.Message {
	return dialog.Message{SequenceNo: seq, Role: role, Content: text, CleanContent: text}
}

func goodConversation() *dialog.Conversation {
	return &dialog.Conversation{
		ID: "good",
		Messages: []dialog.Message{
			msg(1, dialog.RoleAgent, "您好，很高兴为您服务，请问有什么可以帮您"),
			msg(2, dialog.RoleUser, "我想回收一台苹果手机，大概多少钱"),
			msg(3, dialog.RoleAgent, "请问手机的型号和内存是多少呢，我帮您估价"),
			msg(4, dialog.RoleUser, "iPhone 13 128GB，成色还不错"),
			msg(5, dialog.RoleAgent, "这款手机回收价格大约在3000元左右，需要检测后确定"),
			msg(6, dialog.RoleUser, "好的，那快递怎么寄过去"),
			msg(7, dialog.RoleAgent, "您可以预约顺丰上门取件，运费由我们承担，感谢您的咨询"),
		},
	}
}

func newFilter() *Filter {
	return New(DefaultConfig(), lexicon.Default().Domain)
}

func TestEvaluateAcceptsGoodConversation(t *testing.T) {
	v := newFilter().Evaluate(goodConversation())
	if !v.Accepted {
		t.Fatalf("expected acceptance, got %+v", v)
	}
	if v.Score < 0.9 || v.Score > 1 {
		t.Fatalf("score = %.3f, want within [0.9, 1]", v.Score)
	}
	for _, name := range []string{ScoreLength, ScoreParticipation, ScoreRichness, ScoreRelevance, ScoreStructure} {
		s, ok := v.SubScores[name]
		if !ok || s < 0 || s > 1 {
			t.Fatalf("sub-score %s = %v (present=%v)", name, s, ok)
		}
	}
}

func TestRejectionReasons(t *testing.T) {
	tests := []struct {
		name   string
		conv   *dialog.Conversation
		reason string
	}{
		{
			name: "agent greeting only",
			conv: &dialog.Conversation{Messages: []dialog.Message{
				msg(1, dialog.RoleAgent, "您好，欢迎咨询回收宝客服"),
			}},
			reason: ReasonTooFewUserMessages,
		},
		{
			name: "short user messages",
			conv: &dialog.Conversation{Messages: []dialog.Message{
				msg(1, dialog.RoleUser, "好的"),
				msg(2, dialog.RoleUser, "嗯嗯嗯"),
			}},
			reason: ReasonNoSubstantialContent,
		},
		{
			name: "punctuation only",
			conv: &dialog.Conversation{Messages: []dialog.Message{
				msg(1, dialog.RoleUser, "？？？？？？？？"),
				msg(2, dialog.RoleUser, "！！！！！！！！"),
			}},
			reason: ReasonNoSubstantialContent,
		},
		{
			name: "off topic",
			conv: &dialog.Conversation{Messages: []dialog.Message{
				msg(1, dialog.RoleUser, "今天天气真不错啊"),
				msg(2, dialog.RoleUser, "是的是的呢朋友们"),
			}},
			reason: ReasonNoBusinessContext,
		},
		{
			name: "low score",
			conv: &dialog.Conversation{Messages: []dialog.Message{
				msg(1, dialog.RoleUser, "订单怎么取消啊"),
				msg(2, dialog.RoleUser, "在吗在吗在吗"),
			}},
			reason: ReasonLowQualityScore,
		},
	}
	f := newFilter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := f.Evaluate(tt.conv)
			if v.Accepted || v.Reason != tt.reason {
				t.Fatalf("verdict = %+v, want reason %s", v, tt.reason)
			}
		})
	}
}

func TestSyntheticMessagesIgnored(t *testing.T) {
	conv := &dialog.Conversation{Messages: []dialog.Message{
		{SequenceNo: 0, Role: dialog.RoleAgent, CleanContent: "您好，欢迎咨询回收宝客服。", Synthetic: true},
		msg(1, dialog.RoleUser, "今天天气真不错啊"),
		msg(2, dialog.RoleUser, "是的是的呢朋友们"),
	}}
	if v := newFilter().Evaluate(conv); v.Reason != ReasonNoBusinessContext {
		t.Fatalf("synthetic greeting should not supply business context: %+v", v)
	}
}

func TestBusinessContextFromMetadata(t *testing.T) {
	conv := &dialog.Conversation{
		Metadata: dialog.Metadata{BusinessGroup: "手机回收"},
		Messages: []dialog.Message{
			msg(1, dialog.RoleUser, "今天天气真不错啊"),
			msg(2, dialog.RoleUser, "是的是的呢朋友们"),
		},
	}
	if v := newFilter().Evaluate(conv); v.Reason == ReasonNoBusinessContext {
		t.Fatalf("metadata keyword should count as business context: %+v", v)
	}
}

func TestThresholdMonotonic(t *testing.T) {
	convs := []*dialog.Conversation{
		goodConversation(),
		{Messages: []dialog.Message{
			msg(1, dialog.RoleUser, "订单怎么取消啊"),
			msg(2, dialog.RoleAgent, "您好，请提供订单号"),
			msg(3, dialog.RoleUser, "好的订单号稍后发给你"),
		}},
		{Messages: []dialog.Message{
			msg(1, dialog.RoleUser, "订单怎么取消啊"),
			msg(2, dialog.RoleUser, "在吗在吗在吗"),
		}},
	}

	accepted := func(threshold float64) map[int]bool {
		cfg := DefaultConfig()
		cfg.Threshold = threshold
		f := New(cfg, lexicon.Default().Domain)
		out := map[int]bool{}
		for i, c := range convs {
			if f.Evaluate(c).Accepted {
				out[i] = true
			}
		}
		return out
	}

	prev := accepted(0)
	for _, th := range []float64{0.2, 0.4, 0.6, 0.8, 0.95, 1} {
		cur := accepted(th)
		for i := range cur {
			if !prev[i] {
				t.Fatalf("threshold %.2f admitted conversation %d rejected at a lower threshold", th, i)
			}
		}
		prev = cur
	}
}

func TestApplyRecordsVerdict(t *testing.T) {
	conv := goodConversation()
	v := newFilter().Apply(conv)
	if conv.Quality == nil || conv.Quality.Accepted != v.Accepted || conv.QualityScore != v.Score {
		t.Fatalf("verdict not recorded: %+v", conv.Quality)
	}
	if !conv.Accepted() {
		t.Fatal("conversation should be accepted")
	}
}

func TestSubScoreBands(t *testing.T) {
	f := newFilter()
	mk := func(n int, text string) []*dialog.Message {
		out := make([]*dialog.Message, n)
		for i := range out {
			m := msg(i+1, dialog.RoleUser, text)
			out[i] = &m
		}
		return out
	}

	if got := f.SubScores(mk(3, "短"), 3)[ScoreLength]; got != 0.3 {
		t.Fatalf("short length score = %v", got)
	}
	if got := f.SubScores(mk(25, "短"), 25)[ScoreLength]; got != 0.7 {
		t.Fatalf("long length score = %v", got)
	}
	if got := f.SubScores(mk(5, "一二三四五六七八九十"), 5)[ScoreRichness]; got != 0.5 {
		t.Fatalf("medium richness = %v", got)
	}
	if got := f.SubScores(mk(5, "订单订单"), 1)[ScoreParticipation]; math.Abs(got-0.4) > 1e-9 {
		t.Fatalf("participation = %v", got)
	}
	if got := f.SubScores(mk(10, "回收订单退款"), 10)[ScoreRelevance]; got != 1 {
		t.Fatalf("relevance should saturate, got %v", got)
	}
}
