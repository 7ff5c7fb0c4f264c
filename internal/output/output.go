// Package output 把聚合结果写成 JSON，供渲染层读取。
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/iabetor/nius/internal/aggregate"
)

// Stdout 作为路径时表示写到标准输出。
const Stdout = "-"

// Encode 把结果以缩进 JSON 写入 w。摘要中的强调标记原样保留，不转义为 \u003c。
func Encode(w io.Writer, res aggregate.Result) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

// Write 写入 path。先写同目录下的临时文件再 rename，读者不会看到写了一半的文件。
func Write(path string, res aggregate.Result) error {
	if path == Stdout {
		return Encode(os.Stdout, res)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("创建输出目录失败: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".nius-*.json")
	if err != nil {
		return fmt.Errorf("创建临时文件失败: %w", err)
	}
	if err := Encode(tmp, res); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("写入结果失败: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("替换输出文件失败: %w", err)
	}
	return nil
}

// Read 读取之前写入的结果。
func Read(path string) (aggregate.Result, error) {
	var res aggregate.Result
	data, err := os.ReadFile(path)
	if err != nil {
		return res, err
	}
	if err := json.Unmarshal(data, &res); err != nil {
		return res, fmt.Errorf("解析 %s 失败: %w", path, err)
	}
	return res, nil
}
