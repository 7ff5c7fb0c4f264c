package aggregate

import "strings"

// DefaultTickerSeparator 滚动条各条之间的分隔符。
const DefaultTickerSeparator = "  •  "

// Result 一次运行的最终输出。
type Result struct {
	Cards        []Card   `json:"cards"`
	TickerText   string   `json:"ticker_text"`
	SourceLabels []string `json:"source_labels"`
}

// BuildOptions Build 的参数。
type BuildOptions struct {
	Limit           int
	Policy          SizePolicy
	TickerSeparator string
}

// Build 对合并后的条目截取一次，再生成卡片、滚动条和来源标签。
func Build(entries []Entry, opts BuildOptions) Result {
	capped := Capped(entries, opts.Limit)
	sep := opts.TickerSeparator
	if sep == "" {
		sep = DefaultTickerSeparator
	}
	return Result{
		Cards:        Assemble(capped, 0, opts.Policy),
		TickerText:   Ticker(capped, sep),
		SourceLabels: SourceLabels(capped),
	}
}

// Ticker 以 "{source} : {title}" 拼接各条目。循环滚动所需的重复由渲染层处理。
func Ticker(entries []Entry, sep string) string {
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		parts = append(parts, e.Source+" : "+e.Title)
	}
	return strings.Join(parts, sep)
}

// SourceLabels 按首次出现顺序返回去重后的来源标签。
func SourceLabels(entries []Entry) []string {
	seen := make(map[string]struct{})
	labels := make([]string, 0)
	for _, e := range entries {
		if _, ok := seen[e.Source]; ok {
			continue
		}
		seen[e.Source] = struct{}{}
		labels = append(labels, e.Source)
	}
	return labels
}
