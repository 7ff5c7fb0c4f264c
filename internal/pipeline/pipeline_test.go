package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/iabetor/nius/internal/config"
	"github.com/iabetor/nius/internal/feed"
	"github.com/iabetor/nius/internal/journal"
)

var baseTime = time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)

// rssFeed 生成 n 条条目，第 i 条发布时间为 base + offset + i 分钟。
func rssFeed(prefix string, n int, offset time.Duration) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><rss version="2.0"><channel><title>t</title>`)
	for i := 0; i < n; i++ {
		pub := baseTime.Add(offset + time.Duration(i)*time.Minute)
		fmt.Fprintf(&b, `<item><title>%s %d</title><link>https://example.com/%s/%d</link>`+
			`<description>&lt;p&gt;About AI story %d&lt;/p&gt;</description><pubDate>%s</pubDate></item>`,
			prefix, i, prefix, i, i, pub.Format(time.RFC1123Z))
	}
	b.WriteString(`</channel></rss>`)
	return b.String()
}

func newConfig(t *testing.T, sources map[string]string, order []string, extra string) *config.Config {
	t.Helper()
	var b strings.Builder
	b.WriteString("sources:\n")
	for _, label := range order {
		fmt.Fprintf(&b, "  %s: %q\n", label, sources[label])
	}
	b.WriteString("keywords: [AI]\n")
	b.WriteString(extra)
	cfg, err := config.Parse([]byte(b.String()))
	if err != nil {
		t.Fatalf("config.Parse failed: %v", err)
	}
	return cfg
}

// stubFetcher 按标签返回固定内容。
type stubFetcher struct {
	bodies map[string]string
	errs   map[string]error
	block  chan struct{}
}

func (f *stubFetcher) Fetch(ctx context.Context, src feed.Source) ([]byte, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, &feed.FetchError{Source: src, Err: ctx.Err()}
		}
	}
	if err, ok := f.errs[src.Label]; ok {
		return nil, err
	}
	return []byte(f.bodies[src.Label]), nil
}

type memRecorder struct {
	mu   sync.Mutex
	runs []journal.Run
	err  error
}

func (r *memRecorder) Record(_ context.Context, run journal.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, run)
	return r.err
}

func TestRun_FailedSourceIsIsolated(t *testing.T) {
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer broken.Close()
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, rssFeed("b", 3, 0))
	}))
	defer healthy.Close()

	cfg := newConfig(t, map[string]string{"A": broken.URL, "B": healthy.URL}, []string{"A", "B"}, "")
	p, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	out, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(out.Result.Cards) != 3 {
		t.Fatalf("期望 3 张卡片，得到 %d", len(out.Result.Cards))
	}
	for _, c := range out.Result.Cards {
		if c.Source != "B" {
			t.Errorf("卡片来源应为 B，得到 %q", c.Source)
		}
	}
	if !reflect.DeepEqual(out.Result.SourceLabels, []string{"B"}) {
		t.Errorf("SourceLabels: %v", out.Result.SourceLabels)
	}

	if len(out.Sources) != 2 {
		t.Fatalf("期望 2 条源报告，得到 %d", len(out.Sources))
	}
	var fe *feed.FetchError
	if !errors.As(out.Sources[0].Err, &fe) {
		t.Errorf("A 应为 FetchError，得到 %v", out.Sources[0].Err)
	}
	if !out.Sources[1].OK() || out.Sources[1].Entries != 3 {
		t.Errorf("B 报告: %+v", out.Sources[1])
	}
	if failed := out.Failed(); len(failed) != 1 || failed[0].Source.Label != "A" {
		t.Errorf("Failed: %+v", failed)
	}
	if p.State() != StateIdle {
		t.Errorf("运行结束后应回到 Idle，得到 %s", p.State())
	}
}

func TestRun_ParseErrorIsIsolated(t *testing.T) {
	f := &stubFetcher{bodies: map[string]string{
		"Bad":  "<html>not a feed",
		"Good": rssFeed("g", 2, 0),
	}}
	cfg := newConfig(t, map[string]string{"Bad": "https://bad.example/rss", "Good": "https://good.example/rss"}, []string{"Bad", "Good"}, "")
	p, err := New(cfg, WithFetcher(f))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	out, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	var pe *feed.ParseError
	if !errors.As(out.Sources[0].Err, &pe) {
		t.Errorf("Bad 应为 ParseError，得到 %v", out.Sources[0].Err)
	}
	if len(out.Result.Cards) != 2 {
		t.Errorf("期望 2 张卡片，得到 %d", len(out.Result.Cards))
	}
}

func TestRun_MergesNewestFirstAcrossSources(t *testing.T) {
	f := &stubFetcher{bodies: map[string]string{
		"Old": rssFeed("old", 2, 0),
		"New": rssFeed("new", 2, time.Hour),
	}}
	cfg := newConfig(t, map[string]string{"Old": "https://old.example/rss", "New": "https://new.example/rss"}, []string{"Old", "New"}, "")
	p, err := New(cfg, WithFetcher(f))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	out, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	var titles []string
	for _, c := range out.Result.Cards {
		titles = append(titles, c.Title)
	}
	want := []string{"new 1", "new 0", "old 1", "old 0"}
	if !reflect.DeepEqual(titles, want) {
		t.Errorf("titles: got %v, want %v", titles, want)
	}
	if !reflect.DeepEqual(out.Result.SourceLabels, []string{"New", "Old"}) {
		t.Errorf("SourceLabels: %v", out.Result.SourceLabels)
	}
	if got := out.Result.Cards[0].Summary; got != "About <b>AI</b> story 1" {
		t.Errorf("Summary: %q", got)
	}
	if !strings.HasPrefix(out.Result.TickerText, "New : new 1  •  New : new 0") {
		t.Errorf("TickerText: %q", out.Result.TickerText)
	}
}

func TestRun_CapsCards(t *testing.T) {
	f := &stubFetcher{bodies: map[string]string{"Many": rssFeed("m", 20, 0)}}
	cfg := newConfig(t, map[string]string{"Many": "https://many.example/rss"}, []string{"Many"}, "")
	p, err := New(cfg, WithFetcher(f))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	out, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(out.Result.Cards) != 12 {
		t.Fatalf("期望 12 张卡片，得到 %d", len(out.Result.Cards))
	}
	if out.Result.Cards[0].Title != "m 19" || out.Result.Cards[11].Title != "m 8" {
		t.Errorf("应保留最新的 12 条: first=%q last=%q", out.Result.Cards[0].Title, out.Result.Cards[11].Title)
	}
	if n := strings.Count(out.Result.TickerText, " : "); n != 12 {
		t.Errorf("滚动条应包含 12 条，得到 %d", n)
	}
	if out.Sources[0].Entries != 20 {
		t.Errorf("源报告应记录解析出的 20 条，得到 %d", out.Sources[0].Entries)
	}
}

func TestRun_MaxItemsPerSource(t *testing.T) {
	f := &stubFetcher{bodies: map[string]string{"Many": rssFeed("m", 20, 0)}}
	cfg := newConfig(t, map[string]string{"Many": "https://many.example/rss"}, []string{"Many"},
		"fetch:\n  max_items_per_source: 5\n")
	p, err := New(cfg, WithFetcher(f))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	out, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(out.Result.Cards) != 5 {
		t.Errorf("期望 5 张卡片，得到 %d", len(out.Result.Cards))
	}
}

func TestRun_Idempotent(t *testing.T) {
	f := &stubFetcher{bodies: map[string]string{
		"A": rssFeed("a", 4, 0),
		"B": rssFeed("b", 4, 30*time.Second),
	}}
	cfg := newConfig(t, map[string]string{"A": "https://a.example/rss", "B": "https://b.example/rss"}, []string{"A", "B"}, "")
	p, err := New(cfg, WithFetcher(f))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	first, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("first Run failed: %v", err)
	}
	second, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	if !reflect.DeepEqual(first.Result, second.Result) {
		t.Errorf("相同输入的两次运行结果应一致:\n%+v\n%+v", first.Result, second.Result)
	}
	if first.RunID == second.RunID {
		t.Error("每次运行应有不同的 RunID")
	}
}

func TestRun_AllSourcesFail(t *testing.T) {
	f := &stubFetcher{errs: map[string]error{
		"A": errors.New("dial tcp: refused"),
		"B": errors.New("dial tcp: refused"),
	}}
	cfg := newConfig(t, map[string]string{"A": "https://a.example/rss", "B": "https://b.example/rss"}, []string{"A", "B"}, "")
	p, err := New(cfg, WithFetcher(f))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	out, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("全部失败时不应返回错误: %v", err)
	}
	if len(out.Result.Cards) != 0 || out.Result.TickerText != "" || len(out.Result.SourceLabels) != 0 {
		t.Errorf("结果应为空: %+v", out.Result)
	}
	var fe *feed.FetchError
	if !errors.As(out.Sources[0].Err, &fe) {
		t.Errorf("非 FetchError 的抓取错误应被包装，得到 %T", out.Sources[0].Err)
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := &config.Config{}
	f := &stubFetcher{}
	_, err := New(cfg, WithFetcher(f))
	var ce *config.ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("期望 ConfigError，得到 %v", err)
	}

	if _, err := New(nil); !errors.As(err, &ce) {
		t.Fatalf("nil 配置应返回 ConfigError，得到 %v", err)
	}
}

func TestNew_ProgrammaticConfig(t *testing.T) {
	long := strings.Repeat("word ", 100)
	var body strings.Builder
	body.WriteString(`<?xml version="1.0"?><rss version="2.0"><channel><title>t</title>`)
	for i := 0; i < 20; i++ {
		fmt.Fprintf(&body, `<item><title>p %d</title><link>https://p.example/%d</link><description>%s</description><pubDate>%s</pubDate></item>`,
			i, i, long, baseTime.Add(time.Duration(i)*time.Minute).Format(time.RFC1123Z))
	}
	body.WriteString(`</channel></rss>`)

	cfg := &config.Config{Sources: config.Sources{{Label: "A", URL: "https://a.example/feed"}}}
	p, err := New(cfg, WithFetcher(&stubFetcher{bodies: map[string]string{"A": body.String()}}))
	if err != nil {
		t.Fatalf("代码构造的配置应可直接使用: %v", err)
	}
	if cfg.Cards.Layout != "" || cfg.Summary.Limit != 0 {
		t.Errorf("New 不应修改传入的配置: %+v", cfg)
	}

	out, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(out.Result.Cards) != 12 {
		t.Errorf("应使用默认上限 12，得到 %d", len(out.Result.Cards))
	}
	summary := strings.TrimSuffix(out.Result.Cards[0].Summary, "...")
	if n := len([]rune(summary)); n > 180 || summary == out.Result.Cards[0].Summary {
		t.Errorf("应使用默认摘要长度 180 截断，得到 %d 字符", n)
	}
	if out.Result.Cards[0].Size != "wide" || out.Result.Cards[1].Size != "regular" {
		t.Errorf("应使用默认 positions 布局: %q %q", out.Result.Cards[0].Size, out.Result.Cards[1].Size)
	}
}

func TestRun_RecordsJournal(t *testing.T) {
	f := &stubFetcher{
		bodies: map[string]string{"A": rssFeed("a", 2, 0)},
		errs:   map[string]error{"B": &feed.FetchError{Source: feed.Source{Label: "B"}, Err: errors.New("HTTP 503")}},
	}
	cfg := newConfig(t, map[string]string{"A": "https://a.example/rss", "B": "https://b.example/rss"}, []string{"A", "B"}, "")
	rec := &memRecorder{}
	p, err := New(cfg, WithFetcher(f), WithRecorder(rec))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	out, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(rec.runs) != 1 {
		t.Fatalf("期望 1 条运行记录，得到 %d", len(rec.runs))
	}
	run := rec.runs[0]
	if run.ID != out.RunID || run.Cards != 2 {
		t.Errorf("运行记录: %+v", run)
	}
	if len(run.Sources) != 2 || run.Sources[0].Entries != 2 || run.Sources[1].Error == "" {
		t.Errorf("源记录: %+v", run.Sources)
	}
	if run.Failed() != 1 {
		t.Errorf("Failed: %d", run.Failed())
	}
}

func TestRun_RecorderErrorIsNotFatal(t *testing.T) {
	f := &stubFetcher{bodies: map[string]string{"A": rssFeed("a", 1, 0)}}
	cfg := newConfig(t, map[string]string{"A": "https://a.example/rss"}, []string{"A"}, "")
	p, err := New(cfg, WithFetcher(f), WithRecorder(&memRecorder{err: errors.New("disk full")}))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, err := p.Run(context.Background()); err != nil {
		t.Fatalf("记录失败不应影响运行: %v", err)
	}
}

func TestRun_RejectsOverlappingRun(t *testing.T) {
	f := &stubFetcher{
		bodies: map[string]string{"A": rssFeed("a", 1, 0)},
		block:  make(chan struct{}),
	}
	cfg := newConfig(t, map[string]string{"A": "https://a.example/rss"}, []string{"A"}, "")
	p, err := New(cfg, WithFetcher(f))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	entered := make(chan struct{})
	p.state.SetOnChange(func(from, to State) {
		if to == StateFetching {
			close(entered)
		}
	})

	done := make(chan error, 1)
	go func() {
		_, err := p.Run(context.Background())
		done <- err
	}()
	<-entered

	if _, err := p.Run(context.Background()); !errors.Is(err, ErrBusy) {
		t.Errorf("重叠运行应返回 ErrBusy，得到 %v", err)
	}

	close(f.block)
	if err := <-done; err != nil {
		t.Fatalf("第一次运行失败: %v", err)
	}
}

func TestRun_ContextCancelled(t *testing.T) {
	f := &stubFetcher{
		bodies: map[string]string{"A": rssFeed("a", 1, 0)},
		block:  make(chan struct{}),
	}
	cfg := newConfig(t, map[string]string{"A": "https://a.example/rss"}, []string{"A"}, "")
	rec := &memRecorder{}
	p, err := New(cfg, WithFetcher(f), WithRecorder(rec))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := p.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("期望 DeadlineExceeded，得到 %v", err)
	}
	if len(rec.runs) != 0 {
		t.Errorf("取消的运行不应写入记录")
	}
	if p.State() != StateIdle {
		t.Errorf("取消后应回到 Idle，得到 %s", p.State())
	}
}
