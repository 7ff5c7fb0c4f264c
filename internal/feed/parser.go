package feed

import (
	"bytes"
	"strings"

	"github.com/mmcdole/gofeed"
)

// Parser 把订阅源内容转换为 RawEntry 序列。零值可直接使用。
type Parser struct {
	// MaxItems 每个源最多保留的条目数，<=0 表示不限制。
	MaxItems int
}

// Parse 使用零值 Parser 解析。
func Parse(src Source, data []byte) ([]RawEntry, error) {
	var p Parser
	return p.Parse(src, data)
}

// Parse 解析 RSS/Atom/JSON Feed 内容。
// gofeed.Parser 内部有状态，每次调用新建一个以便多个源并发解析。
func (p *Parser) Parse(src Source, data []byte) ([]RawEntry, error) {
	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(data))
	if err != nil {
		return nil, &ParseError{Source: src, Err: err}
	}

	items := parsed.Items
	if p.MaxItems > 0 && len(items) > p.MaxItems {
		items = items[:p.MaxItems]
	}

	entries := make([]RawEntry, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		entries = append(entries, RawEntry{
			Title:       strings.TrimSpace(item.Title),
			Link:        itemLink(item),
			RawSummary:  itemSummary(item),
			PublishedAt: item.PublishedParsed,
			UpdatedAt:   item.UpdatedParsed,
			Source:      src.Label,
		})
	}
	return entries, nil
}

// itemSummary 优先 summary/description（gofeed 统一放在 Description），其次正文。
func itemSummary(item *gofeed.Item) string {
	if strings.TrimSpace(item.Description) != "" {
		return item.Description
	}
	return item.Content
}

func itemLink(item *gofeed.Item) string {
	if item.Link != "" {
		return strings.TrimSpace(item.Link)
	}
	for _, l := range item.Links {
		if l != "" {
			return strings.TrimSpace(l)
		}
	}
	return ""
}
