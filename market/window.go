package market

import "time"

// Window 是尚未落库的成交滑动窗口：按成交 ID 去重，按时间从新到旧排列。
// 交易所只返回最近一页（与已知成交部分重叠，无游标），Merge 负责拼接。
type Window struct {
	entries []Trade // newest first
	seen    map[int64]struct{}
}

func NewWindow() *Window {
	return &Window{seen: make(map[int64]struct{})}
}

func (w *Window) Len() int { return len(w.entries) }

// Newest 返回窗口内最新的成交。
func (w *Window) Newest() (Trade, bool) {
	if len(w.entries) == 0 {
		return Trade{}, false
	}
	return w.entries[0], true
}

// Entries 返回窗口内容的只读副本（从新到旧）。
func (w *Window) Entries() []Trade {
	out := make([]Trade, len(w.entries))
	copy(out, w.entries)
	return out
}

// Merge 将最新一页成交并入窗口。页与窗口均为从新到旧。
// 以窗口最新成交的 ID 为锚点：页内锚点之前的条目是新成交，前插即可。
// 锚点不在页内说明两次轮询之间漏掉了成交（gap）：整页前插，由调用方
// 记录告警。返回新增条数与是否发生 gap。重复 ID 一律丢弃，窗口内
// 不会出现重复成交，对同一页反复 Merge 是幂等的。
func (w *Window) Merge(page []Trade) (added int, gap bool) {
	if len(w.entries) == 0 {
		return w.prepend(page), false
	}

	anchor := w.entries[0].ID
	cut := -1
	for i, t := range page {
		if t.ID == anchor {
			cut = i
			break
		}
	}
	if cut < 0 {
		return w.prepend(page), true
	}
	return w.prepend(page[:cut]), false
}

// prepend 将 fresh（从新到旧，均比现有窗口新）插到窗口头部，跳过重复 ID。
func (w *Window) prepend(fresh []Trade) int {
	kept := make([]Trade, 0, len(fresh))
	for _, t := range fresh {
		if _, dup := w.seen[t.ID]; dup {
			continue
		}
		w.seen[t.ID] = struct{}{}
		kept = append(kept, t)
	}
	if len(kept) == 0 {
		return 0
	}
	w.entries = append(kept, w.entries...)
	return len(kept)
}

// CutInterval 取出落在 (start, start+d] 内的成交并收缩窗口：
// 只保留比区间终点更新的条目，区间内及更旧的条目全部移除。
// 返回的切片仍为从新到旧。
func (w *Window) CutInterval(start time.Time, d time.Duration) []Trade {
	end := start.Add(d)

	lo := 0
	for lo < len(w.entries) && w.entries[lo].Timestamp.After(end) {
		lo++
	}
	hi := lo
	for hi < len(w.entries) && w.entries[hi].Timestamp.After(start) {
		hi++
	}

	out := make([]Trade, hi-lo)
	copy(out, w.entries[lo:hi])

	dropped := w.entries[lo:]
	w.entries = w.entries[:lo]
	for _, t := range dropped {
		delete(w.seen, t.ID)
	}
	return out
}
