// Package aggregate 合并各源条目并生成卡片、滚动条和来源标签。
package aggregate

import (
	"sort"
	"time"

	"github.com/iabetor/nius/internal/feed"
	"github.com/iabetor/nius/internal/text"
)

// Entry 清洗、标注后的条目。
type Entry struct {
	feed.RawEntry
	Summary string
	// EffectiveTime 为零值表示条目既无发布时间也无更新时间。
	EffectiveTime time.Time
}

// Dated 条目是否有可用于排序的时间。
func (e Entry) Dated() bool { return !e.EffectiveTime.IsZero() }

// Batch 一个源的解析结果，按注册顺序传给 Merge。
type Batch struct {
	Source  feed.Source
	Entries []feed.RawEntry
}

// MergeOptions Merge 的只读参数。
type MergeOptions struct {
	Normalizer text.Normalizer
	Annotator  *text.Annotator
}

// EffectiveTime 发布时间优先，其次更新时间，都没有时返回零值。
func EffectiveTime(e feed.RawEntry) time.Time {
	if e.PublishedAt != nil && !e.PublishedAt.IsZero() {
		return *e.PublishedAt
	}
	if e.UpdatedAt != nil && !e.UpdatedAt.IsZero() {
		return *e.UpdatedAt
	}
	return time.Time{}
}

// Merge 展开所有批次，丢弃摘要无效的条目，按时间倒序稳定排序。
// 无时间的条目排在所有有时间的条目之后，彼此保持展开顺序。
func Merge(batches []Batch, opts MergeOptions) []Entry {
	var out []Entry
	for _, b := range batches {
		for _, raw := range b.Entries {
			summary, ok := opts.Normalizer.Normalize(raw.RawSummary)
			if !ok {
				continue
			}
			if opts.Annotator != nil {
				summary = opts.Annotator.Annotate(summary)
			}
			if raw.Source == "" {
				raw.Source = b.Source.Label
			}
			out = append(out, Entry{
				RawEntry:      raw,
				Summary:       summary,
				EffectiveTime: EffectiveTime(raw),
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Dated() != b.Dated() {
			return a.Dated()
		}
		return a.EffectiveTime.After(b.EffectiveTime)
	})
	return out
}
