package journal

import (
	"fmt"
	"io"
	"time"
)

// Format 以表格形式输出运行记录，失败的源逐条列在运行下方。
func Format(w io.Writer, runs []Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "暂无运行记录。")
		return
	}
	fmt.Fprintf(w, "最近 %d 次运行:\n", len(runs))
	fmt.Fprintln(w, "  开始时间             | 耗时     | 卡片 | 成功/总数 | ID")
	fmt.Fprintln(w, "  ---------------------+----------+------+-----------+------------------------------------")
	for _, r := range runs {
		fmt.Fprintf(w, "  %-21s| %-9s| %-5d| %-10s| %s\n",
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.Duration.Round(time.Millisecond),
			r.Cards,
			fmt.Sprintf("%d/%d", len(r.Sources)-r.Failed(), len(r.Sources)),
			r.ID)
		for _, s := range r.Sources {
			if s.Error != "" {
				fmt.Fprintf(w, "      ✗ %s: %s\n", s.Label, s.Error)
			}
		}
	}
}
