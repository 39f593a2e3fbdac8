package reconcile

import (
	"reflect"

	"chatstream/pkg/models"
)

// Merge folds an authoritative snapshot into the local list.
//
// Remote messages keep remote order and remote content. A local message that
// the snapshot does not contain yet stays as an overlay, placed right after
// the last confirmed message that preceded it locally (or first, if none
// did). Messages are matched by Key only. A message is never placed before
// the message it replies to. The returned flag reports whether the result
// differs from local.
func Merge(local, remote []models.Message) ([]models.Message, bool) {
	localByKey := make(map[string]models.Message, len(local))
	for _, m := range local {
		localByKey[m.Key()] = m
	}

	confirmed := make(map[string]struct{}, len(remote))
	base := make([]models.Message, 0, len(remote))
	for _, r := range remote {
		k := r.Key()
		if _, dup := confirmed[k]; dup {
			continue
		}
		confirmed[k] = struct{}{}
		if l, ok := localByKey[k]; ok && r.TS == 0 {
			r.TS = l.TS
		}
		if r.Status == "" {
			r.Status = models.StatusCommitted
		}
		base = append(base, r)
	}

	// overlay grouped by anchor key; "" means ahead of every confirmed message
	overlay := make(map[string][]models.Message)
	anchor := ""
	for _, m := range local {
		k := m.Key()
		if _, ok := confirmed[k]; ok {
			anchor = k
			continue
		}
		if !m.IsLocal() {
			// stored earlier but gone from the store now
			continue
		}
		overlay[anchor] = append(overlay[anchor], m)
	}

	merged := make([]models.Message, 0, len(base)+len(local))
	merged = append(merged, overlay[""]...)
	for _, r := range base {
		merged = append(merged, r)
		merged = append(merged, overlay[r.Key()]...)
	}
	merged = orderReplies(merged)

	return merged, !sameList(local, merged)
}

// orderReplies moves any message that precedes the message it replies to
// directly behind that message. Relative order is otherwise kept.
func orderReplies(msgs []models.Message) []models.Message {
	present := make(map[string]struct{}, len(msgs))
	for _, m := range msgs {
		present[m.Key()] = struct{}{}
	}

	out := make([]models.Message, 0, len(msgs))
	emitted := make(map[string]struct{}, len(msgs))
	waiting := make(map[string][]models.Message)

	var emit func(m models.Message)
	emit = func(m models.Message) {
		k := m.Key()
		if _, ok := emitted[k]; ok {
			return
		}
		out = append(out, m)
		emitted[k] = struct{}{}
		held := waiting[k]
		delete(waiting, k)
		for _, w := range held {
			emit(w)
		}
	}

	for _, m := range msgs {
		if m.ReplyTo != "" && m.ReplyTo != m.Key() {
			_, known := present[m.ReplyTo]
			_, done := emitted[m.ReplyTo]
			if known && !done {
				waiting[m.ReplyTo] = append(waiting[m.ReplyTo], m)
				continue
			}
		}
		emit(m)
	}
	// reply cycles cannot be ordered; keep what is left in input order
	for _, m := range msgs {
		if _, ok := emitted[m.Key()]; !ok {
			emit(m)
		}
	}
	return out
}

func sameList(a, b []models.Message) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !reflect.DeepEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}
