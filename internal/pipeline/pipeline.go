package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/iabetor/nius/internal/aggregate"
	"github.com/iabetor/nius/internal/config"
	"github.com/iabetor/nius/internal/feed"
	"github.com/iabetor/nius/internal/journal"
	"github.com/iabetor/nius/internal/logger"
	"github.com/iabetor/nius/internal/text"
)

// ErrBusy 上一次运行尚未结束。
var ErrBusy = errors.New("上一次运行尚未结束")

// Recorder 保存每次运行的摘要。
type Recorder interface {
	Record(ctx context.Context, run journal.Run) error
}

// Pipeline 把抓取、解析、合并和卡片生成串联起来。配置在 New 时读取，之后只读。
type Pipeline struct {
	sources config.Sources
	fetcher feed.Fetcher
	parser  feed.Parser

	mergeOpts aggregate.MergeOptions
	buildOpts aggregate.BuildOptions

	recorder Recorder
	state    *StateMachine
}

// Option 配置 Pipeline。
type Option func(*Pipeline)

// WithFetcher 替换默认的 HTTP 抓取器。
func WithFetcher(f feed.Fetcher) Option {
	return func(p *Pipeline) {
		if f != nil {
			p.fetcher = f
		}
	}
}

// WithRecorder 每次运行结束后写入运行记录。
func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) { p.recorder = r }
}

// New 补齐默认值、校验配置并创建流水线，配置无效时在任何抓取之前返回 *config.ConfigError。
// 传入的配置本身不会被修改。
func New(in *config.Config, opts ...Option) (*Pipeline, error) {
	if in == nil {
		return nil, &config.ConfigError{Field: "config", Reason: "配置为空"}
	}
	c := *in
	c.Sources = append(config.Sources(nil), in.Sources...)
	cfg := &c
	config.SetDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	policy, err := aggregate.PolicyByName(cfg.Cards.Layout, cfg.Cards.WidePositions, cfg.Cards.WideEvery)
	if err != nil {
		return nil, &config.ConfigError{Field: "cards.layout", Reason: err.Error()}
	}

	p := &Pipeline{
		sources: cfg.Sources,
		fetcher: feed.NewHTTPFetcher(
			feed.WithTimeout(cfg.Fetch.Timeout()),
			feed.WithUserAgent(cfg.Fetch.UserAgent),
			feed.WithMaxBodyBytes(cfg.Fetch.MaxBodyBytes),
		),
		parser: feed.Parser{MaxItems: cfg.Fetch.MaxItemsPerSource},
		mergeOpts: aggregate.MergeOptions{
			Normalizer: text.Normalizer{
				Limit:        cfg.Summary.Limit,
				Placeholders: cfg.Summary.Placeholders,
			},
			Annotator: text.NewAnnotator(cfg.Keywords, cfg.Summary.EmphasisOpen, cfg.Summary.EmphasisClose),
		},
		buildOpts: aggregate.BuildOptions{
			Limit:           cfg.Cards.Cap,
			Policy:          policy,
			TickerSeparator: cfg.Ticker.Separator,
		},
		state: NewStateMachine(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// State 返回当前运行阶段。
func (p *Pipeline) State() State {
	return p.state.Current()
}

// SourceReport 单个源在本次运行中的结果。Err 为 *feed.FetchError 或 *feed.ParseError。
type SourceReport struct {
	Source  feed.Source
	Entries int
	Err     error
}

// OK 该源是否成功。
func (r SourceReport) OK() bool { return r.Err == nil }

// Outcome 一次运行的完整结果。Result 交给渲染层，Sources 只用于日志和运行记录。
type Outcome struct {
	RunID     string
	StartedAt time.Time
	Duration  time.Duration
	Result    aggregate.Result
	Sources   []SourceReport
}

// Failed 返回失败的源。
func (o *Outcome) Failed() []SourceReport {
	var out []SourceReport
	for _, r := range o.Sources {
		if !r.OK() {
			out = append(out, r)
		}
	}
	return out
}

// JournalRun 转换为运行记录。
func (o *Outcome) JournalRun() journal.Run {
	run := journal.Run{
		ID:        o.RunID,
		StartedAt: o.StartedAt,
		Duration:  o.Duration,
		Cards:     len(o.Result.Cards),
		Sources:   make([]journal.SourceRun, 0, len(o.Sources)),
	}
	for _, r := range o.Sources {
		sr := journal.SourceRun{Label: r.Source.Label, URL: r.Source.URL, Entries: r.Entries}
		if r.Err != nil {
			sr.Error = r.Err.Error()
		}
		run.Sources = append(run.Sources, sr)
	}
	return run
}

// Run 并发抓取所有源，等待全部结束后合并并生成结果。
// 单个源失败只会让它贡献零条目；只有 ctx 被取消或已有运行在进行时才返回错误。
func (p *Pipeline) Run(ctx context.Context) (*Outcome, error) {
	if !p.state.Transition(StateFetching) {
		return nil, ErrBusy
	}
	defer p.state.Transition(StateIdle)

	out := &Outcome{RunID: uuid.NewString(), StartedAt: time.Now()}
	logger.Infof("[pipeline] 开始运行 %s，共 %d 个订阅源: %s", out.RunID, len(p.sources), strings.Join(p.sources.Labels(), ", "))

	batches, reports := p.collect(ctx)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.state.Transition(StateMerging)
	entries := aggregate.Merge(batches, p.mergeOpts)
	out.Result = aggregate.Build(entries, p.buildOpts)
	out.Sources = reports
	out.Duration = time.Since(out.StartedAt)

	failed := len(out.Failed())
	if failed == len(reports) {
		logger.Warnf("[pipeline] 所有订阅源均失败，输出为空")
	}
	logger.Infof("[pipeline] 运行 %s 完成: %d 条有效条目，%d 张卡片，失败源 %d/%d，耗时 %v",
		out.RunID, len(entries), len(out.Result.Cards), failed, len(reports), out.Duration.Round(time.Millisecond))

	if p.recorder != nil {
		if err := p.recorder.Record(ctx, out.JournalRun()); err != nil {
			logger.Warnf("[pipeline] 写入运行记录失败: %v", err)
		}
	}
	return out, nil
}

// collect 每个源一个 goroutine，各自写入自己的槽位，WaitGroup 作为合并前的屏障。
func (p *Pipeline) collect(ctx context.Context) ([]aggregate.Batch, []SourceReport) {
	batches := make([]aggregate.Batch, len(p.sources))
	reports := make([]SourceReport, len(p.sources))

	var wg sync.WaitGroup
	for i, src := range p.sources {
		wg.Add(1)
		go func(i int, src feed.Source) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					batches[i] = aggregate.Batch{Source: src}
					reports[i] = SourceReport{Source: src, Err: &feed.ParseError{Source: src, Err: fmt.Errorf("panic: %v", r)}}
					logger.Errorf("[pipeline] 处理 %s 时 panic: %v", src.Label, r)
				}
			}()

			entries, err := p.fetchSource(ctx, src)
			batches[i] = aggregate.Batch{Source: src, Entries: entries}
			reports[i] = SourceReport{Source: src, Entries: len(entries), Err: err}
			if err != nil {
				logger.Warnf("[pipeline] %v", err)
				return
			}
			logger.Debugf("[pipeline] %s 解析出 %d 条", src.Label, len(entries))
		}(i, src)
	}
	wg.Wait()
	return batches, reports
}

func (p *Pipeline) fetchSource(ctx context.Context, src feed.Source) ([]feed.RawEntry, error) {
	data, err := p.fetcher.Fetch(ctx, src)
	if err != nil {
		var fe *feed.FetchError
		if !errors.As(err, &fe) {
			err = &feed.FetchError{Source: src, Err: err}
		}
		return nil, err
	}
	return p.parser.Parse(src, data)
}
