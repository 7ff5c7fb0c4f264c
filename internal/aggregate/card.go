package aggregate

import (
	"fmt"
	"time"
)

// SizeTag 卡片布局提示，只与位置有关。
type SizeTag string

const (
	SizeNone    SizeTag = ""
	SizeWide    SizeTag = "wide"
	SizeRegular SizeTag = "regular"
)

// SizePolicy 按位置给出布局提示，必须是纯函数。
type SizePolicy func(index int) SizeTag

// NoSizePolicy 不给出布局提示。
func NoSizePolicy(int) SizeTag { return SizeNone }

// PositionsPolicy 指定位置为 wide，其余为 regular。
func PositionsPolicy(positions ...int) SizePolicy {
	wide := make(map[int]struct{}, len(positions))
	for _, p := range positions {
		wide[p] = struct{}{}
	}
	return func(i int) SizeTag {
		if _, ok := wide[i]; ok {
			return SizeWide
		}
		return SizeRegular
	}
}

// EveryNthPolicy 每 n 张卡片中的第一张为 wide（位置 0, n, 2n, ...）。
func EveryNthPolicy(n int) SizePolicy {
	if n <= 0 {
		return NoSizePolicy
	}
	return func(i int) SizeTag {
		if i%n == 0 {
			return SizeWide
		}
		return SizeRegular
	}
}

// PolicyByName 根据配置构造布局策略。
func PolicyByName(name string, positions []int, every int) (SizePolicy, error) {
	switch name {
	case "", "positions":
		return PositionsPolicy(positions...), nil
	case "every":
		if every <= 0 {
			return nil, fmt.Errorf("every 策略需要正整数间隔，得到 %d", every)
		}
		return EveryNthPolicy(every), nil
	case "none":
		return NoSizePolicy, nil
	default:
		return nil, fmt.Errorf("未知布局策略: %s", name)
	}
}

// Card 交给渲染层的只读卡片。
type Card struct {
	Title     string     `json:"title"`
	Link      string     `json:"link"`
	Summary   string     `json:"summary"`
	Source    string     `json:"source"`
	Size      SizeTag    `json:"size,omitempty"`
	Published *time.Time `json:"published,omitempty"`
}

// Capped 返回前 limit 条，limit<=0 表示不截取。
func Capped(entries []Entry, limit int) []Entry {
	if limit > 0 && len(entries) > limit {
		return entries[:limit]
	}
	return entries
}

// Assemble 取前 limit 条条目按顺序映射为卡片。
func Assemble(entries []Entry, limit int, policy SizePolicy) []Card {
	if policy == nil {
		policy = NoSizePolicy
	}
	entries = Capped(entries, limit)
	cards := make([]Card, 0, len(entries))
	for i, e := range entries {
		c := Card{
			Title:   e.Title,
			Link:    e.Link,
			Summary: e.Summary,
			Source:  e.Source,
			Size:    policy(i),
		}
		if e.Dated() {
			t := e.EffectiveTime
			c.Published = &t
		}
		cards = append(cards, c)
	}
	return cards
}
