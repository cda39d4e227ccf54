package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hurttlocker/convoscope/internal/analyze"
	"github.com/hurttlocker/convoscope/internal/dialog"
	"github.com/hurttlocker/convoscope/internal/lexicon"
	"github.com/hurttlocker/convoscope/internal/quality"
	"github.com/hurttlocker/convoscope/internal/store"
)

func str(s string) *string { return &s }

func rec(id string, seq int, role, content string) dialog.RawRecord {
	return dialog.RawRecord{ConversationID: id, SequenceNo: fmt.Sprint(seq), SenderRole: role, Content: str(content), BusinessGroup: "回收"}
}

// recycling is a conversation the default filter accepts.
func recycling(id string) []dialog.RawRecord {
	return []dialog.RawRecord{
		rec(id, 1, "2", "您好，很高兴为您服务，请问有什么可以帮您"),
		rec(id, 2, "1", "我想回收一台苹果手机，大概多少钱"),
		rec(id, 3, "2", "请问手机的型号和内存是多少呢，我帮您估价"),
		rec(id, 4, "1", "iPhone 13 128GB，成色还不错"),
		rec(id, 5, "2", "这款手机回收价格大约在3000元左右，需要检测后确定"),
		rec(id, 6, "1", "好的，那快递怎么寄过去"),
		rec(id, 7, "2", "您可以预约顺丰上门取件，运费由我们承担，感谢您的咨询"),
	}
}

// greetingOnly has a single short user message and is rejected.
func greetingOnly(id string) []dialog.RawRecord {
	return []dialog.RawRecord{
		rec(id, 1, "2", "您好，请问有什么可以帮您"),
		rec(id, 2, "1", "在吗"),
	}
}

func sampleRecords() []dialog.RawRecord {
	var out []dialog.RawRecord
	for i := range 6 {
		id := fmt.Sprintf("conv-%02d", i)
		if i%3 == 2 {
			out = append(out, greetingOnly(id)...)
		} else {
			out = append(out, recycling(id)...)
		}
	}
	out = append(out, dialog.RawRecord{ConversationID: "  ", Content: str("orphan")})
	return out
}

func newRunner(t *testing.T, workers int, opts ...Option) *Runner {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Workers = workers
	r, err := NewRunner(lexicon.Default(), cfg, opts...)
	require.NoError(t, err)
	return r
}

func TestRunAcceptsAndClassifies(t *testing.T) {
	out, err := newRunner(t, 2).Run(context.Background(), sampleRecords())
	require.NoError(t, err)

	assert.Equal(t, 6, out.Stats.Conversations)
	assert.Equal(t, 4, out.Stats.Accepted)
	assert.Equal(t, 2, out.Stats.Rejected)
	assert.Equal(t, 1, out.Stats.Diagnostics.Malformed)
	assert.InDelta(t, 4.0/6.0, out.Stats.AcceptanceRate(), 1e-9)

	require.Len(t, out.Items, 6)
	for _, it := range out.Items {
		if it.Conversation.Accepted() {
			require.NotNil(t, it.Intent, it.Conversation.ID)
			assert.Equal(t, it.Conversation.ID, it.Intent.ConversationID)
			assert.NotEmpty(t, it.Intent.Scenario)
		} else {
			assert.Nil(t, it.Intent, "rejected conversation %s should not be classified", it.Conversation.ID)
		}
	}
	assert.Len(t, out.Results(), 4)
	assert.Equal(t, out.Stats.Accepted, out.Report.Total)
}

func TestRunRecordsRejectionReasons(t *testing.T) {
	out, err := newRunner(t, 1).Run(context.Background(), sampleRecords())
	require.NoError(t, err)

	total := 0
	for reason, n := range out.Stats.Rejections {
		assert.NotEmpty(t, reason)
		total += n
	}
	assert.Equal(t, out.Stats.Rejected, total)
	assert.Equal(t, 2, out.Stats.Rejections[quality.ReasonTooFewUserMessages])
}

func TestRunDeterministicAcrossWorkerCounts(t *testing.T) {
	records := sampleRecords()
	base, err := newRunner(t, 1).Run(context.Background(), records)
	require.NoError(t, err)

	for _, workers := range []int{2, 8} {
		out, err := newRunner(t, workers).Run(context.Background(), records)
		require.NoError(t, err)
		require.Len(t, out.Items, len(base.Items))
		for i := range base.Items {
			assert.Equal(t, base.Items[i].Conversation.ID, out.Items[i].Conversation.ID)
			assert.Equal(t, base.Items[i].Conversation.QualityScore, out.Items[i].Conversation.QualityScore)
			assert.Equal(t, base.Items[i].Intent, out.Items[i].Intent)
		}
		assert.Equal(t, base.Stats.Scenarios, out.Stats.Scenarios)
		assert.Equal(t, base.Stats.Intents, out.Stats.Intents)
	}
}

func TestRunAnalyzerFailureLeavesAnalysisEmpty(t *testing.T) {
	var calls atomic.Int32
	an := analyze.Func(func(ctx context.Context, text string) (analyze.Analysis, error) {
		calls.Add(1)
		assert.Contains(t, text, "用户: ")
		if strings.Contains(text, "屏幕有划痕") {
			return analyze.Analysis{}, errors.New("upstream unavailable")
		}
		return analyze.Analysis{Label: analyze.LabelNeutral, CoreDemand: "回收估价"}, nil
	})

	records := append(recycling("conv-00"), rec("conv-00", 8, "1", "另外屏幕有划痕会影响价格吗"))
	records = append(records, recycling("conv-01")...)
	out, err := newRunner(t, 2, WithAnalyzer(an)).Run(context.Background(), records)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 2, out.Stats.Analyzed)
	assert.Equal(t, 1, out.Stats.AnalyzeFailures)

	require.Len(t, out.Items, 2)
	assert.Nil(t, out.Items[0].Analysis)
	assert.Contains(t, out.Items[0].AnalyzeError, "upstream unavailable")
	require.NotNil(t, out.Items[1].Analysis)
	assert.Equal(t, "回收估价", out.Items[1].Analysis.CoreDemand)
}

func TestRunPersistsToStore(t *testing.T) {
	st, err := store.NewStore(store.StoreConfig{DBPath: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	out, err := newRunner(t, 3, WithStore(st), WithSource("sample.csv")).Run(context.Background(), sampleRecords())
	require.NoError(t, err)
	require.NotEmpty(t, out.RunID)

	ctx := context.Background()
	run, err := st.GetRun(ctx, out.RunID)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, "sample.csv", run.Source)
	assert.NotNil(t, run.FinishedAt)
	assert.Contains(t, run.StatsJSON, `"accepted":4`)

	convs, err := st.ListConversations(ctx, store.ListOpts{RunID: out.RunID})
	require.NoError(t, err)
	assert.Len(t, convs, 6)

	results, err := st.ListIntentResults(ctx, store.IntentQuery{RunID: out.RunID})
	require.NoError(t, err)
	assert.Len(t, results, 4)
}

func TestRunHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newRunner(t, 2).Run(ctx, sampleRecords())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTranscriptSkipsSyntheticMessages(t *testing.T) {
	conv := &dialog.Conversation{Messages: []dialog.Message{
		{Role: dialog.RoleAgent, CleanContent: "您好", Synthetic: true},
		{Role: dialog.RoleUser, CleanContent: "多少钱"},
		{Role: dialog.RoleAgent, CleanContent: "三千"},
	}}
	assert.Equal(t, "用户: 多少钱\n客服: 三千\n", Transcript(conv))
}
