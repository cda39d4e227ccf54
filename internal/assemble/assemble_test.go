package assemble

import (
	"errors"
	"testing"
	"time"

	"github.com/hurttlocker/convoscope/internal/dialog"
	"github.com/hurttlocker/convoscope/internal/lexicon"
)

func str(s string) *string { return &s }

func rec(id, seq, role, content, ts string) dialog.RawRecord {
	return dialog.RawRecord{ConversationID: id, SequenceNo: seq, SenderRole: role, Content: str(content), Timestamp: ts}
}

func plain() Config {
	cfg := DefaultConfig()
	cfg.SynthesizeGreeting = false
	cfg.SynthesizeClosing = false
	return cfg
}

func TestAssembleOrdersBySequence(t *testing.T) {
	a := New(lexicon.Default(), plain())
	conv, diag := a.Assemble("c1", []dialog.RawRecord{
		rec("c1", "3", "1", "第三条", ""),
		rec("c1", "1", "1", "第一条", ""),
		rec("c1", "2", "2", "第二条", ""),
	})
	if conv == nil {
		t.Fatal("expected conversation")
	}
	if diag.Ordering != OrderBySequence {
		t.Fatalf("ordering = %s", diag.Ordering)
	}
	if diag.DuplicateSequence != 0 {
		t.Fatalf("duplicates = %d, want 0", diag.DuplicateSequence)
	}
	want := []string{"第一条", "第二条", "第三条"}
	if len(conv.Messages) != len(want) {
		t.Fatalf("messages = %d, want %d", len(conv.Messages), len(want))
	}
	for i, w := range want {
		if conv.Messages[i].Content != w {
			t.Fatalf("message %d = %q, want %q", i, conv.Messages[i].Content, w)
		}
	}
}

func TestAssembleDuplicateSequenceKeepsEveryRow(t *testing.T) {
	a := New(lexicon.Default(), plain())
	conv, diag := a.Assemble("c1", []dialog.RawRecord{
		rec("c1", "1", "1", "我想查一下订单", "2024-03-01 10:00:01"),
		rec("c1", "2", "2", "请提供订单号", "2024-03-01 10:00:03"),
		rec("c1", "2", "1", "订单号123456789012345678", "2024-03-01 10:00:05"),
	})
	if conv == nil {
		t.Fatal("expected conversation")
	}
	if diag.DuplicateSequence != 1 {
		t.Fatalf("duplicates = %d, want 1", diag.DuplicateSequence)
	}
	if diag.Ordering != OrderByTimestamp {
		t.Fatalf("ordering = %s, want timestamp", diag.Ordering)
	}
	want := []string{"我想查一下订单", "请提供订单号", "订单号123456789012345678"}
	if len(conv.Messages) != len(want) {
		t.Fatalf("messages = %d, want %d", len(conv.Messages), len(want))
	}
	for i, w := range want {
		m := conv.Messages[i]
		if m.Content != w || m.SequenceNo != i+1 {
			t.Fatalf("message %d = (%d, %q), want (%d, %q)", i, m.SequenceNo, m.Content, i+1, w)
		}
	}
	if conv.Messages[2].Role != dialog.RoleUser {
		t.Fatalf("role = %s, want user", conv.Messages[2].Role)
	}
}

func TestAssembleDuplicateSequenceWithoutTimestamps(t *testing.T) {
	a := New(lexicon.Default(), plain())
	conv, diag := a.Assemble("c1", []dialog.RawRecord{
		rec("c1", "2", "1", "甲", ""),
		rec("c1", "1", "2", "乙", ""),
		rec("c1", "1", "1", "丙", ""),
	})
	if diag.DuplicateSequence != 1 || diag.Ordering != OrderByArrival {
		t.Fatalf("diagnostics = %+v", diag)
	}
	want := []string{"甲", "乙", "丙"}
	if len(conv.Messages) != len(want) {
		t.Fatalf("messages = %d, want %d", len(conv.Messages), len(want))
	}
	for i, w := range want {
		if conv.Messages[i].Content != w || conv.Messages[i].SequenceNo != i+1 {
			t.Fatalf("message %d = %+v, want %q", i, conv.Messages[i], w)
		}
	}
}

func TestAssembleFallsBackToTimestamp(t *testing.T) {
	a := New(lexicon.Default(), plain())
	conv, diag := a.Assemble("c1", []dialog.RawRecord{
		rec("c1", "", "1", "晚", "2024-03-01 10:00:05"),
		rec("c1", "x", "1", "早", "2024-03-01 10:00:01"),
	})
	if diag.Ordering != OrderByTimestamp {
		t.Fatalf("ordering = %s", diag.Ordering)
	}
	if conv.Messages[0].Content != "早" || conv.Messages[0].SequenceNo != 1 || conv.Messages[1].SequenceNo != 2 {
		t.Fatalf("unexpected order: %+v", conv.Messages)
	}
	if !conv.Metadata.StartTime.Equal(time.Date(2024, 3, 1, 10, 0, 1, 0, time.UTC)) {
		t.Fatalf("start time = %v", conv.Metadata.StartTime)
	}
}

func TestAssembleFallsBackToArrival(t *testing.T) {
	a := New(lexicon.Default(), plain())
	conv, diag := a.Assemble("c1", []dialog.RawRecord{
		rec("c1", "", "1", "甲", "yesterday-ish"),
		rec("c1", "", "2", "乙", "2024-03-01 10:00:01"),
	})
	if diag.Ordering != OrderByArrival {
		t.Fatalf("ordering = %s", diag.Ordering)
	}
	if diag.UnparseableTimestamps != 1 || len(diag.Issues) != 1 || !errors.Is(diag.Issues[0].Err, dialog.ErrUnparseableTimestamp) {
		t.Fatalf("diagnostics = %+v", diag)
	}
	if conv.Messages[0].Content != "甲" || conv.Messages[1].SequenceNo != 2 {
		t.Fatalf("unexpected order: %+v", conv.Messages)
	}
}

func TestAssembleEmpty(t *testing.T) {
	a := New(lexicon.Default(), DefaultConfig())
	conv, diag := a.Assemble("c1", []dialog.RawRecord{
		{ConversationID: "c1", SequenceNo: "1"},
		rec("c1", "2", "1", "   ", ""),
	})
	if conv != nil {
		t.Fatalf("expected nil conversation, got %+v", conv)
	}
	if diag.EmptyContent != 2 || diag.EmptyConversations != 1 {
		t.Fatalf("diagnostics = %+v", diag)
	}
}

func TestRoleCascade(t *testing.T) {
	a := New(lexicon.Default(), plain())
	conv, _ := a.Assemble("c1", []dialog.RawRecord{
		rec("c1", "1", "", "在吗", ""),
		rec("c1", "2", "", "您好，很高兴为您服务", ""),
		rec("c1", "3", "", "我的订单号多少钱", ""),
		rec("c1", "4", "", "嗯嗯", ""),
		rec("c1", "5", "客服", "好的", ""),
		rec("c1", "6", "3", "系统消息", ""),
		rec("c1", "7", "", "嗯", ""),
	})

	want := []struct {
		role dialog.Role
		src  dialog.RoleSource
	}{
		{dialog.RoleUser, dialog.RoleFromFirst},
		{dialog.RoleAgent, dialog.RoleFromKeyword},
		{dialog.RoleUser, dialog.RoleFromKeyword},
		{dialog.RoleAgent, dialog.RoleFromAlternate},
		{dialog.RoleAgent, dialog.RoleFromExplicit},
		{dialog.RoleSystem, dialog.RoleFromExplicit},
		{"", dialog.RoleFromRatio},
	}
	for i, w := range want {
		m := conv.Messages[i]
		if m.RoleSource != w.src {
			t.Fatalf("message %d role source = %s, want %s", i+1, m.RoleSource, w.src)
		}
		if w.role != "" && m.Role != w.role {
			t.Fatalf("message %d role = %s, want %s", i+1, m.Role, w.role)
		}
		if m.Role != dialog.RoleUser && m.Role != dialog.RoleAgent && m.Role != dialog.RoleSystem {
			t.Fatalf("message %d has no role", i+1)
		}
	}
}

func TestRatioFallbackDeterministic(t *testing.T) {
	records := []dialog.RawRecord{
		rec("c9", "1", "1", "一", ""),
		rec("c9", "2", "3", "系统", ""),
		rec("c9", "3", "", "嗯", ""),
		rec("c9", "4", "3", "系统", ""),
		rec("c9", "5", "", "哦", ""),
	}
	a := New(lexicon.Default(), plain())
	first, d1 := a.Assemble("c9", records)
	second, d2 := a.Assemble("c9", records)
	if d1.RatioRoles != 2 || d2.RatioRoles != 2 {
		t.Fatalf("ratio roles = %d / %d, want 2", d1.RatioRoles, d2.RatioRoles)
	}
	for i := range first.Messages {
		if first.Messages[i].Role != second.Messages[i].Role {
			t.Fatalf("message %d role differs across runs", i)
		}
	}
}

func TestRatioFallbackUsesOwnConversation(t *testing.T) {
	target := []dialog.RawRecord{
		rec("c9", "1", "1", "一", ""),
		rec("c9", "2", "3", "系统", ""),
		rec("c9", "3", "", "嗯", ""),
		rec("c9", "4", "3", "系统", ""),
		rec("c9", "5", "", "哦", ""),
	}
	var batch []dialog.RawRecord
	for i := 1; i <= 6; i++ {
		batch = append(batch, rec("agents", string(rune('0'+i)), "2", "好的", ""))
	}
	batch = append(batch, target...)

	a := New(lexicon.Default(), plain())
	alone, _ := a.Assemble("c9", target)
	convs, _ := a.AssembleAll(batch)
	if len(convs) != 2 || convs[1].ID != "c9" {
		t.Fatalf("conversations = %+v", convs)
	}
	for i, m := range convs[1].Messages {
		if m.Role != alone.Messages[i].Role {
			t.Fatalf("message %d role = %s in batch, %s alone", i, m.Role, alone.Messages[i].Role)
		}
		if m.RoleSource == dialog.RoleFromRatio && m.Role != dialog.RoleUser {
			t.Fatalf("message %d: only user roles were observed in c9, got %s", i, m.Role)
		}
	}
}

func TestUserFallbackMode(t *testing.T) {
	cfg := plain()
	cfg.Fallback = FallbackUser
	a := New(lexicon.Default(), cfg)
	conv, _ := a.Assemble("c1", []dialog.RawRecord{
		rec("c1", "1", "2", "好的", ""),
		rec("c1", "2", "3", "系统", ""),
		rec("c1", "3", "", "嗯", ""),
	})
	if conv.Messages[2].Role != dialog.RoleUser {
		t.Fatalf("fallback role = %s, want user", conv.Messages[2].Role)
	}
}

func TestSynthesizeGreetingAndClosing(t *testing.T) {
	a := New(lexicon.Default(), DefaultConfig())
	conv, diag := a.Assemble("c1", []dialog.RawRecord{
		rec("c1", "5", "1", "我想查一下订单", "2024-03-01 10:00:00"),
		rec("c1", "6", "2", "好的，请提供订单号", "2024-03-01 10:00:10"),
	})
	if diag.SyntheticMessages != 2 || len(conv.Messages) != 4 {
		t.Fatalf("messages = %d, synthetic = %d", len(conv.Messages), diag.SyntheticMessages)
	}

	g := conv.Messages[0]
	if !g.Synthetic || g.Role != dialog.RoleAgent || g.SequenceNo != 4 {
		t.Fatalf("greeting = %+v", g)
	}
	if !g.Timestamp.Equal(time.Date(2024, 3, 1, 9, 59, 59, 0, time.UTC)) {
		t.Fatalf("greeting timestamp = %v", g.Timestamp)
	}

	c := conv.Messages[3]
	if !c.Synthetic || c.SequenceNo != 7 || !c.Timestamp.Equal(time.Date(2024, 3, 1, 10, 0, 11, 0, time.UTC)) {
		t.Fatalf("closing = %+v", c)
	}

	// Real messages untouched.
	if conv.Messages[1].Content != "我想查一下订单" || conv.Messages[1].Synthetic {
		t.Fatalf("real message changed: %+v", conv.Messages[1])
	}
}

func TestNoSynthesisWhenPresent(t *testing.T) {
	a := New(lexicon.Default(), DefaultConfig())
	conv, diag := a.Assemble("c1", []dialog.RawRecord{
		rec("c1", "1", "2", "您好，欢迎咨询", ""),
		rec("c1", "2", "1", "订单怎么取消", ""),
		rec("c1", "3", "2", "已为您处理，祝您生活愉快", ""),
	})
	if diag.SyntheticMessages != 0 || len(conv.Messages) != 3 {
		t.Fatalf("unexpected synthesis: %+v", conv.Messages)
	}
	if !conv.Messages[0].Timestamp.IsZero() {
		t.Fatal("timestamps should stay zero when unknown")
	}
}

func TestSequenceStrictlyIncreasing(t *testing.T) {
	a := New(lexicon.Default(), DefaultConfig())
	conv, _ := a.Assemble("c1", []dialog.RawRecord{
		rec("c1", "10", "1", "a", ""),
		rec("c1", "2", "2", "b", ""),
		rec("c1", "7", "1", "c", ""),
	})
	for i := 1; i < len(conv.Messages); i++ {
		if conv.Messages[i].SequenceNo <= conv.Messages[i-1].SequenceNo {
			t.Fatalf("sequence not increasing at %d: %+v", i, conv.Messages)
		}
	}
}

func TestAssembleAllGroupsAndCountsMalformed(t *testing.T) {
	a := New(lexicon.Default(), plain())
	records := []dialog.RawRecord{
		rec("b", "1", "1", "b1", ""),
		rec("a", "1", "1", "a1", ""),
		{ConversationID: " ", Content: str("orphan"), SourceLine: 9},
		rec("b", "2", "2", "b2", ""),
	}
	convs, diag := a.AssembleAll(records)
	if len(convs) != 2 || convs[0].ID != "b" || convs[1].ID != "a" {
		t.Fatalf("conversations = %+v", convs)
	}
	if diag.Malformed != 1 || diag.Records != 4 || diag.Conversations != 2 {
		t.Fatalf("diagnostics = %+v", diag)
	}
	if len(diag.Issues) != 1 || diag.Issues[0].Line != 9 || !errors.Is(diag.Issues[0].Err, dialog.ErrMalformedRecord) {
		t.Fatalf("issues = %+v", diag.Issues)
	}
}

func TestMetadataFirstNonEmpty(t *testing.T) {
	a := New(lexicon.Default(), plain())
	r1 := rec("c1", "1", "1", "你好", "")
	r2 := rec("c1", "2", "2", "您好", "")
	r2.BusinessGroup = "回收业务"
	r2.AgentName = "小宝"
	conv, _ := a.Assemble("c1", []dialog.RawRecord{r1, r2})
	if conv.Metadata.BusinessGroup != "回收业务" || conv.Metadata.AgentName != "小宝" {
		t.Fatalf("metadata = %+v", conv.Metadata)
	}
}
