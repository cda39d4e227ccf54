package knowledge

import (
	"fmt"
	"strings"
)

const (
	answerNoKnowledgeBase = "抱歉，我无法找到相关的回答。请提供更多信息或联系人工客服。"
	answerNoMatch         = "抱歉，我没有找到与您问题匹配的答案。请尝试用不同的方式描述您的问题，或联系人工客服获取帮助。"
	answerDisclaimer      = "(注：以上回答可能不完全符合您的问题，如有疑问，请联系人工客服)"
	answerFollowUps       = "您可能还想了解："

	rephraseBelow   = 0.5
	disclaimerBelow = 0.75
)

// FormatAnswer renders the customer-facing reply for res: the best
// answer, a disclaimer when confidence is low and the other matches as
// follow-up questions.
func FormatAnswer(res MatchResult) string {
	switch {
	case res.Status == StatusNoKnowledgeBase:
		return answerNoKnowledgeBase
	case len(res.Matches) == 0:
		return answerNoMatch
	}

	best := res.Matches[0]
	answer := best.Entry.Answer.Standard
	question := best.Entry.Question.Standard
	if best.Score < rephraseBelow && containsAny(question, "如何", "怎么", "申请") {
		topic := strings.NewReplacer("如何", "", "？", "", "?", "").Replace(question)
		answer = fmt.Sprintf("如果您想%s，%s", topic, answer)
	}

	var b strings.Builder
	b.WriteString(answer)
	if best.Score < disclaimerBelow {
		b.WriteString("\n\n")
		b.WriteString(answerDisclaimer)
	}
	if len(res.Matches) > 1 {
		b.WriteString("\n\n")
		b.WriteString(answerFollowUps)
		b.WriteString("\n")
		for i, m := range res.Matches[1:] {
			fmt.Fprintf(&b, "%d. %s\n", i+1, m.Entry.Question.Standard)
		}
	}
	return b.String()
}

func containsAny(text string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}
