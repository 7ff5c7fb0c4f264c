// Package feed 负责订阅源的抓取与解析，把 RSS/Atom 内容转换为 RawEntry。
package feed

import (
	"fmt"
	"time"
)

// Source 一个订阅源：标签 + 地址，运行期间只读。
type Source struct {
	Label string `json:"label" yaml:"label"`
	URL   string `json:"url" yaml:"url"`
}

// RawEntry 解析器输出的单条条目，创建后不再修改。
type RawEntry struct {
	Title       string
	Link        string
	RawSummary  string
	PublishedAt *time.Time
	UpdatedAt   *time.Time
	Source      string
}

// FetchError 单个源抓取失败（网络错误、超时、非 2xx 状态）。
type FetchError struct {
	Source Source
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("抓取 %s (%s) 失败: %v", e.Source.Label, e.Source.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError 单个源内容无法解析。
type ParseError struct {
	Source Source
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("解析 %s 失败: %v", e.Source.Label, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
