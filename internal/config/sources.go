package config

import (
	"fmt"

	"github.com/iabetor/nius/internal/feed"
	"gopkg.in/yaml.v3"
)

// Sources 按文档顺序排列的订阅源注册表。
//
// 支持两种写法：
//
//	sources:
//	  TechCrunch: https://techcrunch.com/feed/
//	  Verge: https://rsshub.app/theverge/index
//
//	sources:
//	  - label: TechCrunch
//	    url: https://techcrunch.com/feed/
type Sources []feed.Source

// UnmarshalYAML 直接遍历节点以保留映射写法的键顺序。
func (s *Sources) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.MappingNode:
		out := make(Sources, 0, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			k, v := node.Content[i], node.Content[i+1]
			if v.Kind != yaml.ScalarNode {
				return fmt.Errorf("第 %d 行: 订阅源 %q 的地址必须是字符串", v.Line, k.Value)
			}
			out = append(out, feed.Source{Label: k.Value, URL: v.Value})
		}
		*s = out
		return nil
	case yaml.SequenceNode:
		var list []feed.Source
		if err := node.Decode(&list); err != nil {
			return err
		}
		*s = list
		return nil
	default:
		return fmt.Errorf("第 %d 行: sources 必须是映射或列表", node.Line)
	}
}

// Labels 按顺序返回所有标签。
func (s Sources) Labels() []string {
	labels := make([]string, len(s))
	for i, src := range s {
		labels[i] = src.Label
	}
	return labels
}
