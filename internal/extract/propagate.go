package extract

import "github.com/hurttlocker/convoscope/internal/dialog"

// Propagate fills entity gaps across a conversation and rebuilds its
// structured info.
//
// For every entity type found in some message's own entities, each message
// without an entity of that type receives an inherited copy of the first
// value seen. Messages that already carry the type are left alone, so
// running Propagate again is a no-op. StructuredInfo is the union of own
// values per type, in first-seen order.
func Propagate(conv *dialog.Conversation) {
	first := map[dialog.EntityType]dialog.Entity{}
	var types []dialog.EntityType
	info := map[dialog.EntityType][]string{}
	seen := map[dialog.Entity]bool{}

	for i := range conv.Messages {
		for _, e := range conv.Messages[i].Entities {
			if e.Inherited {
				continue
			}
			if _, ok := first[e.Type]; !ok {
				first[e.Type] = e
				types = append(types, e.Type)
			}
			key := dialog.Entity{Type: e.Type, Value: e.Value}
			if !seen[key] {
				seen[key] = true
				info[e.Type] = append(info[e.Type], e.Value)
			}
		}
	}

	for i := range conv.Messages {
		m := &conv.Messages[i]
		for _, t := range types {
			if m.HasEntity(t) {
				continue
			}
			src := first[t]
			m.Entities = append(m.Entities, dialog.Entity{
				Type:       t,
				Value:      src.Value,
				MessageSeq: src.MessageSeq,
				Inherited:  true,
			})
		}
	}

	if len(info) == 0 {
		conv.StructuredInfo = nil
		return
	}
	conv.StructuredInfo = info
}
