// Package planner builds technician weeks: it loads the candidate pool,
// picks the focus region and runs the day builder Monday through Friday.
package planner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"fieldsched/internal/config"
	"fieldsched/internal/model"
	"fieldsched/internal/opt"
	"fieldsched/internal/store"
)

var (
	// ErrInvalidRequest wraps every request validation failure.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrTechnicianInactive is returned for a technician that cannot be scheduled.
	ErrTechnicianInactive = errors.New("technician inactive")
)

// Recorder receives build telemetry.
type Recorder interface {
	BuildFinished(strategy string, d time.Duration, jobs int, err error)
	Warning(reason string)
	Annealed(m opt.Metrics)
	Committed(err error)
}

type nopRecorder struct{}

func (nopRecorder) BuildFinished(string, time.Duration, int, error) {}
func (nopRecorder) Warning(string)                                  {}
func (nopRecorder) Annealed(opt.Metrics)                            {}
func (nopRecorder) Committed(error)                                 {}

// Planner builds and commits technician weeks.
type Planner struct {
	src  store.Providers
	sink store.CommitSink
	cfg  config.Scheduler
	log  *zap.Logger
	rec  Recorder
}

// Option customizes a Planner.
type Option func(*Planner)

// WithRecorder sets the telemetry sink.
func WithRecorder(r Recorder) Option {
	return func(p *Planner) {
		if r != nil {
			p.rec = r
		}
	}
}

// New returns a Planner reading from src and committing to sink. sink may be
// nil for a read-only planner.
func New(src store.Providers, sink store.CommitSink, cfg config.Scheduler, log *zap.Logger, opts ...Option) *Planner {
	if log == nil {
		log = zap.NewNop()
	}
	p := &Planner{src: src, sink: sink, cfg: cfg, log: log, rec: nopRecorder{}}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Request is one technician-week build.
type Request struct {
	TechnicianID     int64
	WeekStart        time.Time
	SOW              string
	Regions          []string
	Strategy         opt.Strategy
	Seed             int64
	IncludeAdjacent  bool
	AllowFiller      bool
	AssignedClusters []string
	// Pinned maps a YYYY-MM-DD date to the work orders fixed on it.
	Pinned map[string][]int64
	// Progress, when set, is called after each day is built.
	Progress func(model.ProgressEvent)
}

// RequestFromDTO converts an API body into a Request.
func RequestFromDTO(b model.BuildRequest) (Request, error) {
	ws, err := model.ParseDate(b.WeekStart)
	if err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	strat, err := opt.ParseStrategy(b.Strategy)
	if err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	allow := true
	if b.AllowFiller != nil {
		allow = *b.AllowFiller
	}
	return Request{
		TechnicianID:     b.TechnicianID,
		WeekStart:        ws,
		SOW:              b.SOW,
		Regions:          b.Regions,
		Strategy:         strat,
		Seed:             b.Seed,
		IncludeAdjacent:  b.IncludeAdjacent,
		AllowFiller:      allow,
		AssignedClusters: b.AssignedClusters,
		Pinned:           b.Pinned,
	}, nil
}

func (r *Request) validate() error {
	if r.TechnicianID <= 0 {
		return fmt.Errorf("%w: technician id is required", ErrInvalidRequest)
	}
	if r.WeekStart.IsZero() {
		return fmt.Errorf("%w: week start is required", ErrInvalidRequest)
	}
	r.WeekStart = model.Day(r.WeekStart)
	if r.WeekStart.Weekday() != time.Monday {
		return fmt.Errorf("%w: week start %s is a %s, not a Monday", ErrInvalidRequest, r.WeekStart.Format(model.DateLayout), r.WeekStart.Weekday())
	}
	if r.Strategy == "" {
		r.Strategy = opt.Greedy
	}
	if _, err := opt.ParseStrategy(string(r.Strategy)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	for key := range r.Pinned {
		if _, err := model.ParseDate(key); err != nil {
			return fmt.Errorf("%w: pinned date %q: %v", ErrInvalidRequest, key, err)
		}
	}
	return nil
}

// BuildWeek builds one technician week without committing it. The context is
// checked between days; a cancelled build returns ctx.Err().
func (p *Planner) BuildWeek(ctx context.Context, req Request) (ws model.WeekSchedule, err error) {
	started := time.Now()
	defer func() {
		p.rec.BuildFinished(string(req.Strategy), time.Since(started), ws.JobsScheduled, err)
	}()
	if err := req.validate(); err != nil {
		return model.WeekSchedule{}, err
	}
	in, err := p.load(ctx, req)
	if err != nil {
		return model.WeekSchedule{}, err
	}
	w := p.newWeek(req, in)
	if err := w.run(ctx); err != nil {
		return model.WeekSchedule{}, err
	}
	out := w.finish()
	for _, wr := range out.Warnings {
		p.rec.Warning(wr.Reason)
		p.log.Info("schedule warning",
			zap.Int64("technician_id", out.TechnicianID),
			zap.String("reason", wr.Reason),
			zap.String("date", wr.Date),
			zap.Int64("work_order", wr.WorkOrder),
			zap.String("note", wr.Note))
	}
	p.log.Info("week built",
		zap.String("build_id", out.BuildID),
		zap.Int64("technician_id", out.TechnicianID),
		zap.String("week_start", out.WeekStart.Format(model.DateLayout)),
		zap.String("strategy", out.Strategy),
		zap.String("region", out.RegionFocus),
		zap.Int("jobs", out.JobsScheduled),
		zap.Int("remaining", out.JobsRemaining),
		zap.Float64("hours", out.TotalHours),
		zap.Duration("took", time.Since(started)))
	return out, nil
}

// ScoreRegions returns the technician's regions for the week, best first.
func (p *Planner) ScoreRegions(ctx context.Context, technicianID int64, weekStart time.Time) ([]model.Region, error) {
	req := Request{TechnicianID: technicianID, WeekStart: weekStart}
	if err := req.validate(); err != nil {
		return nil, err
	}
	in, err := p.load(ctx, req)
	if err != nil {
		return nil, err
	}
	return in.regions, nil
}

// Commit persists a built week through the configured sink.
func (p *Planner) Commit(ctx context.Context, week model.WeekSchedule) (string, error) {
	if p.sink == nil {
		return "", errors.New("planner: no commit sink configured")
	}
	id, err := p.sink.CommitWeek(ctx, week)
	p.rec.Committed(err)
	if err != nil {
		p.log.Warn("commit rejected", zap.Int64("technician_id", week.TechnicianID), zap.String("build_id", week.BuildID), zap.Error(err))
		return "", err
	}
	p.log.Info("week committed",
		zap.Int64("technician_id", week.TechnicianID),
		zap.String("build_id", week.BuildID),
		zap.String("commit_id", id),
		zap.Int("jobs", len(week.NewJobs())),
		zap.Int("bumped", len(week.Bumped)))
	return id, nil
}
