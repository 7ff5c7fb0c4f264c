// Package text 清洗条目摘要并标注关键词。
package text

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Ellipsis 截断后追加的标记。
const Ellipsis = "..."

var (
	tagRe = regexp.MustCompile(`<[^>]*>`)

	// &lt; &gt; 保持编码，避免解码后重新出现标记。&amp; 必须最后处理。
	entityReplacer = strings.NewReplacer(
		"&nbsp;", " ",
		"&#160;", " ",
		"&quot;", "\"",
		"&#34;", "\"",
		"&#39;", "'",
		"&apos;", "'",
	)
)

// DefaultPlaceholders 讨论类订阅源常见的无意义摘要。
var DefaultPlaceholders = []string{"comments"}

// Normalizer 摘要清洗器。
type Normalizer struct {
	// Limit 最大字符数（按 rune 计），<=0 不截断。
	Limit int
	// Placeholders 清洗后若完全等于其中之一（忽略大小写）则丢弃。
	Placeholders []string
}

// Normalize 使用默认占位词清洗 raw。ok 为 false 表示该条目应被丢弃。
func Normalize(raw string, limit int) (string, bool) {
	n := Normalizer{Limit: limit, Placeholders: DefaultPlaceholders}
	return n.Normalize(raw)
}

// Normalize 去标签、合并空白、过滤占位摘要并按单词边界截断。
func (n Normalizer) Normalize(raw string) (string, bool) {
	s := tagRe.ReplaceAllString(raw, "")
	s = entityReplacer.Replace(s)
	s = strings.ReplaceAll(s, "&amp;", "&")
	// Fields 按 unicode.IsSpace 切分，NBSP、细空格等也会合并为单个空格
	s = strings.Join(strings.Fields(s), " ")

	if s == "" || n.isPlaceholder(s) {
		return "", false
	}
	return truncate(s, n.Limit), true
}

func (n Normalizer) isPlaceholder(s string) bool {
	for _, p := range n.Placeholders {
		if strings.EqualFold(s, strings.TrimSpace(p)) {
			return true
		}
	}
	return false
}

// truncate 截到 limit 个字符后回退到最后一个空格，不在单词中间断开。
// 截取范围内没有空格时保留整段。
func truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	cut := string([]rune(s)[:limit])
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ") + Ellipsis
}
