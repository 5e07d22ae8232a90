// Package compiler turns filter documents into WebKit content-blocker rules.
//
// Compile parses documents in parallel chunks, deduplicates the filters in
// one FilterSet, optimizes them and emits ordered rules under the target
// format's rule ceiling. Bad lines never fail a compile: they are skipped and
// reported as diagnostics. Only caller misuse (unknown target format, nil
// document, negative rule limit) returns an error.
package compiler

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bnema/contentblock-compiler/internal/converter"
	"github.com/bnema/contentblock-compiler/internal/filterset"
	"github.com/bnema/contentblock-compiler/internal/metrics"
	"github.com/bnema/contentblock-compiler/internal/models"
	"github.com/bnema/contentblock-compiler/internal/optimizer"
	"github.com/bnema/contentblock-compiler/internal/parser"
)

var (
	ErrUnknownFormat         = errors.New("unknown target format")
	ErrNilDocument           = errors.New("nil filter document")
	ErrUnknownDocumentFormat = errors.New("unknown document format")
	ErrInvalidRuleLimit      = errors.New("invalid rule limit")
)

const defaultChunkSize = 2048

// Result is the outcome of one compile run
type Result struct {
	Rules       []models.WebKitRule
	Diagnostics []models.Diagnostic // sorted by document, then line
	Dropped     int                 // rules removed by the rule ceiling

	ParseStats    parser.Stats
	Unique        int // filters left after deduplication and badfilter
	Cancelled     int // filters removed by a badfilter
	OptimizeStats optimizer.Stats
	ConvertStats  converter.Stats
}

// Option configures a compile run
type Option func(*options)

type options struct {
	ruleLimit int
	workers   int
	chunkSize int
	recorder  *metrics.Recorder
}

// WithRuleLimit lowers the rule ceiling of the target format. Zero keeps the
// format ceiling; a negative limit fails the compile.
func WithRuleLimit(n int) Option {
	return func(o *options) {
		o.ruleLimit = n
	}
}

// WithWorkers bounds the number of chunks parsed concurrently
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithChunkSize sets how many lines one parse task handles
func WithChunkSize(n int) Option {
	return func(o *options) {
		o.chunkSize = n
	}
}

// WithMetrics records the run on r
func WithMetrics(r *metrics.Recorder) Option {
	return func(o *options) {
		o.recorder = r
	}
}

// Compile compiles docs into rules for the target format
func Compile(ctx context.Context, docs []*models.FilterDocument, format models.TargetFormat, opts ...Option) (*Result, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.workers <= 0 {
		o.workers = runtime.NumCPU()
	}
	if o.chunkSize <= 0 {
		o.chunkSize = defaultChunkSize
	}

	if _, err := models.ParseTargetFormat(string(format)); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	if o.ruleLimit < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRuleLimit, o.ruleLimit)
	}
	formats := make([]models.DocumentFormat, len(docs))
	for i, doc := range docs {
		if doc == nil {
			return nil, fmt.Errorf("%w: document %d", ErrNilDocument, i)
		}
		f, err := models.ParseDocumentFormat(string(doc.Format))
		if err != nil {
			return nil, fmt.Errorf("%w: document %d (%s): %q", ErrUnknownDocumentFormat, i, doc.Name, doc.Format)
		}
		formats[i] = f
	}

	logger := logutil.GetLogger(ctx).With(zap.String("target_format", string(format)))
	start := time.Now()

	set := filterset.New()
	res := &Result{ParseStats: parser.Stats{SkipReasons: make(map[string]int)}}
	parsed, err := parseDocuments(ctx, docs, formats, set, res, o)
	if err != nil {
		return nil, err
	}
	logger.Debug("documents parsed",
		zap.Int("documents", len(docs)),
		zap.Int("lines", res.ParseStats.Total),
		zap.Int("filters", parsed),
		zap.Int("malformed", res.ParseStats.Malformed),
		zap.Int("unsupported", res.ParseStats.Unsupported))

	opt := optimizer.New()
	filters := opt.Optimize(set)
	res.Unique = set.Len()
	res.Cancelled = set.Cancelled()
	res.OptimizeStats = opt.Stats()
	logger.Debug("filters optimized",
		zap.Int("unique", res.Unique),
		zap.Int("badfilter_cancelled", res.Cancelled),
		zap.Int("merged", res.OptimizeStats.Merged),
		zap.Int("subsumed", res.OptimizeStats.Subsumed),
		zap.Int("output", len(filters)))

	conv := converter.New(format, o.ruleLimit)
	res.Rules = conv.Convert(filters)
	res.Dropped = conv.Dropped()
	res.ConvertStats = conv.Stats()
	res.Diagnostics = append(res.Diagnostics, conv.Diagnostics()...)
	sortDiagnostics(res.Diagnostics)

	if res.Dropped > 0 {
		logger.Warn("rule limit exceeded, rules dropped",
			zap.Int("dropped", res.Dropped),
			zap.Int("limit", conv.Limit()))
	}
	logger.Debug("rules emitted",
		zap.Int("rules", len(res.Rules)),
		zap.Int("diagnostics", len(res.Diagnostics)),
		zap.Duration("elapsed", time.Since(start)))

	record(o.recorder, res, parsed, len(filters), time.Since(start))
	return res, nil
}

// parseDocuments parses every document in chunks of lines, one parser per
// chunk, and adds the filters to set. It returns the number of filters parsed.
func parseDocuments(ctx context.Context, docs []*models.FilterDocument, formats []models.DocumentFormat,
	set *filterset.FilterSet, res *Result, o *options) (int, error) {
	var (
		mu     sync.Mutex
		parsed int
	)

	eg, ectx := errgroup.WithContext(ctx)
	eg.SetLimit(o.workers)
	for di, doc := range docs {
		for begin := 0; begin < len(doc.Lines); begin += o.chunkSize {
			if ectx.Err() != nil {
				break
			}
			end := min(begin+o.chunkSize, len(doc.Lines))
			lines := doc.Lines[begin:end]
			base := begin
			eg.Go(func() error {
				if err := ectx.Err(); err != nil {
					return err
				}
				raws := make([]models.RawLine, len(lines))
				for i, text := range lines {
					raws[i] = models.RawLine{Text: text, Source: models.Source{Document: di, Line: base + i + 1}}
				}
				p := parser.New()
				filters := p.ParseLines(raws, formats[di])
				for _, f := range filters {
					if _, err := set.Add(f); err != nil {
						return fmt.Errorf("add filter, document:%d, line:%d, err:%w", di, f.Source().Line, err)
					}
				}
				n := len(filters)

				mu.Lock()
				defer mu.Unlock()
				res.ParseStats.Merge(p.Stats())
				res.Diagnostics = append(res.Diagnostics, p.Diagnostics()...)
				parsed += n
				return nil
			})
		}
	}
	if err := eg.Wait(); err != nil {
		return 0, fmt.Errorf("parse documents failed, err:%w", err)
	}
	// a cancel after the last chunk started still aborts the run
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("parse documents failed, err:%w", err)
	}
	return parsed, nil
}

// sortDiagnostics orders diagnostics by document and line; summary
// diagnostics with no line go last
func sortDiagnostics(diags []models.Diagnostic) {
	slices.SortStableFunc(diags, func(a, b models.Diagnostic) int {
		if r := cmp.Compare(lineless(a), lineless(b)); r != 0 {
			return r
		}
		if r := cmp.Compare(a.Document, b.Document); r != 0 {
			return r
		}
		return cmp.Compare(a.Line, b.Line)
	})
}

func lineless(d models.Diagnostic) int {
	if d.Line == 0 {
		return 1
	}
	return 0
}

func record(r *metrics.Recorder, res *Result, parsed, optimized int, elapsed time.Duration) {
	if r == nil {
		return
	}
	s := res.ParseStats
	r.AddLines("network", s.Network)
	r.AddLines("exception", s.Exception)
	r.AddLines("cosmetic", s.Cosmetic)
	r.AddLines("comment", s.Comments)
	r.AddLines("blank", s.Blank)
	r.AddLines("malformed", s.Malformed)
	r.AddLines("unsupported", s.Unsupported)
	r.AddFilters("parsed", parsed)
	r.AddFilters("unique", res.Unique)
	r.AddFilters("optimized", optimized)
	r.ObserveDiagnostics(res.Diagnostics)
	r.ObserveRules(res.Rules, res.Dropped)
	r.ObserveDuration(elapsed)
}
