package text

import (
	"regexp"
	"strings"
)

const (
	DefaultEmphasisOpen  = "<b>"
	DefaultEmphasisClose = "</b>"
)

// Annotator 按配置顺序把关键词包裹在强调标记中。
//
// 每个关键词都在前一个关键词处理后的文本上替换：排在前面的短关键词会拆开
// 包含它的长关键词，排在后面的短关键词会在已包裹的长关键词内部再次命中。
// 顺序即优先级，这里不做修正。
type Annotator struct {
	open, close string
	patterns    []*regexp.Regexp
}

// NewAnnotator 编译关键词，空关键词被忽略。open/close 为空时使用 <b></b>。
func NewAnnotator(keywords []string, open, close string) *Annotator {
	if open == "" && close == "" {
		open, close = DefaultEmphasisOpen, DefaultEmphasisClose
	}
	a := &Annotator{open: open, close: close}
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		a.patterns = append(a.patterns, regexp.MustCompile(`(?i)`+regexp.QuoteMeta(kw)))
	}
	return a
}

// Annotate 使用默认标记标注 s。
func Annotate(s string, keywords []string) string {
	return NewAnnotator(keywords, "", "").Annotate(s)
}

// Annotate 不区分大小写地包裹每处匹配，保留原文大小写。
func (a *Annotator) Annotate(s string) string {
	for _, re := range a.patterns {
		s = re.ReplaceAllStringFunc(s, func(m string) string {
			return a.open + m + a.close
		})
	}
	return s
}
