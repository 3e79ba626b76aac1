// Package scheduler polls sources on their cron cadence and runs the
// acquire, diff, compose, commit and dispatch pipeline.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"concursobot/internal/acquire"
	"concursobot/internal/batch"
	"concursobot/internal/compose"
	"concursobot/internal/config"
	"concursobot/internal/diff"
	"concursobot/internal/dispatch"
	"concursobot/internal/model"
	"concursobot/internal/storage"
)

// ErrUnknownSource is returned for a source id that is not registered.
var ErrUnknownSource = errors.New("unknown source")

// ErrNoUpdate is returned by Broadcast for a source without a recorded update.
var ErrNoUpdate = errors.New("no update recorded")

// StoreError reports a failed snapshot commit. The poll result is discarded
// and nothing is delivered.
type StoreError struct {
	SourceID string
	Err      error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store snapshot %s: %v", e.SourceID, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Deliverer sends batches to recipients.
type Deliverer interface {
	Deliver(ctx context.Context, batches []string, recipients []int64) dispatch.Report
}

// Source is a registered source.
type Source struct {
	ID            string
	Name          string
	URL           string
	Shape         model.Shape
	Cron          string
	Timeout       time.Duration
	TrackRemovals bool
	ShortCount    int
	FieldLabels   map[string]string
	Acquirer      acquire.Acquirer
}

// FromConfig builds the sources declared in the sources file.
func FromConfig(cfg *config.Sources, f *acquire.Fetcher) []Source {
	out := make([]Source, 0, len(cfg.Sources))
	for _, src := range cfg.Sources {
		out = append(out, Source{
			ID:            src.ID,
			Name:          src.Name,
			URL:           src.URL,
			Shape:         src.Shape(),
			Cron:          src.CronSpec(),
			Timeout:       src.Timeout.Duration,
			TrackRemovals: src.TrackRemovals,
			ShortCount:    src.ShortCount,
			FieldLabels:   src.FieldLabels,
			Acquirer:      src.Acquirer(f, cfg.Location()),
		})
	}
	return out
}

// State is the position of a source in its poll cycle.
type State string

// Poll states.
const (
	StateIdle      State = "idle"
	StateAcquiring State = "acquiring"
)

// Status is the observable state of a source.
type Status struct {
	SourceID string
	State    State
	// Last is the classification of the last finished poll.
	Last    model.Classification
	LastRun time.Time
	LastErr error
}

// Result is the outcome of one poll.
type Result struct {
	SourceID       string
	Classification model.Classification
	Delta          model.Delta
	// Batches holds the packed delta messages when the poll found an update.
	Batches []string
	// Report is set when the batches were delivered.
	Report *dispatch.Report
	Err    error
}

type runner struct {
	src Source
	// mu is held for the whole poll.
	mu sync.Mutex

	statusMu sync.Mutex
	status   Status
}

// Scheduler owns the per-source runners and their cron entries.
type Scheduler struct {
	store     storage.Storage
	deliverer Deliverer
	log       *slog.Logger
	loc       *time.Location
	limit     int
	now       func() time.Time
	// deliveryTimeout bounds one delivery run; unserved recipients are
	// reported failed.
	deliveryTimeout time.Duration

	runners []*runner
	byID    map[string]*runner

	parser cron.Parser
	c      *cron.Cron
}

// New creates a Scheduler for sources. Cron entries run in loc.
func New(store storage.Storage, deliverer Deliverer, sources []Source, loc *time.Location, log *slog.Logger) (*Scheduler, error) {
	if loc == nil {
		loc = time.UTC
	}
	s := &Scheduler{
		store:     store,
		deliverer: deliverer,
		log:       log,
		loc:       loc,
		limit:     batch.DefaultLimit,
		now:       time.Now,

		deliveryTimeout: config.DefaultDeliveryTimeout,
		byID:      make(map[string]*runner, len(sources)),
		parser:    cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
	for _, src := range sources {
		if _, dup := s.byID[src.ID]; dup {
			return nil, fmt.Errorf("duplicate source %q", src.ID)
		}
		if _, err := s.parser.Parse(src.Cron); err != nil {
			return nil, fmt.Errorf("source %q: parse cron %q: %w", src.ID, src.Cron, err)
		}
		r := &runner{src: src, status: Status{SourceID: src.ID, State: StateIdle}}
		s.runners = append(s.runners, r)
		s.byID[src.ID] = r
	}
	return s, nil
}

// SetClock overrides the time source (useful for testing).
func (s *Scheduler) SetClock(now func() time.Time) {
	s.now = now
}

// SetLimit overrides the batch size limit.
func (s *Scheduler) SetLimit(limit int) {
	s.limit = limit
}

// SetDeliveryTimeout overrides how long one delivery run may take.
func (s *Scheduler) SetDeliveryTimeout(d time.Duration) {
	if d > 0 {
		s.deliveryTimeout = d
	}
}

// Sources returns the registered sources in registration order.
func (s *Scheduler) Sources() []Source {
	out := make([]Source, len(s.runners))
	for i, r := range s.runners {
		out[i] = r.src
	}
	return out
}

// Source returns a registered source.
func (s *Scheduler) Source(id string) (Source, bool) {
	r, ok := s.byID[id]
	if !ok {
		return Source{}, false
	}
	return r.src, true
}

// Bootstrap seeds an empty snapshot for every source that has none.
func (s *Scheduler) Bootstrap(ctx context.Context) error {
	for _, r := range s.runners {
		created, err := s.store.EnsureSnapshot(ctx, r.src.ID, r.src.Shape)
		if err != nil {
			return fmt.Errorf("bootstrap %s: %w", r.src.ID, err)
		}
		if created {
			s.log.Info("seeded empty snapshot", "source", r.src.ID)
		}
	}
	return nil
}

// Run bootstraps the store and polls every source on its cadence, blocking
// until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.Bootstrap(ctx); err != nil {
		return err
	}

	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(s.loc))
	for _, r := range s.runners {
		if _, err := s.c.AddFunc(r.src.Cron, func() { s.trigger(ctx, r) }); err != nil {
			return fmt.Errorf("schedule %s: %w", r.src.ID, err)
		}
		s.log.Info("scheduled source", "source", r.src.ID, "cron", r.src.Cron)
	}
	s.c.Start()

	<-ctx.Done()
	<-s.c.Stop().Done()
	return nil
}

// trigger runs a cron-initiated poll. A poll still running for the same
// source makes the trigger a no-op.
func (s *Scheduler) trigger(ctx context.Context, r *runner) {
	if !r.mu.TryLock() {
		s.log.Warn("poll still running, trigger dropped", "source", r.src.ID)
		return
	}
	defer r.mu.Unlock()
	s.run(ctx, r, true)
}

// Force polls a source and commits the result without delivering it. It waits
// for a running poll of the same source to finish.
func (s *Scheduler) Force(ctx context.Context, id string) Result {
	return s.locked(ctx, id, false)
}

// RunNow polls a source like a cron trigger would, delivering any update. It
// waits for a running poll of the same source to finish.
func (s *Scheduler) RunNow(ctx context.Context, id string) Result {
	return s.locked(ctx, id, true)
}

// ForceAll polls every source concurrently. Results follow registration order.
func (s *Scheduler) ForceAll(ctx context.Context, deliver bool) []Result {
	results := make([]Result, len(s.runners))
	var g errgroup.Group
	for i, r := range s.runners {
		g.Go(func() error {
			r.mu.Lock()
			defer r.mu.Unlock()
			results[i] = s.run(ctx, r, deliver)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (s *Scheduler) locked(ctx context.Context, id string, deliver bool) Result {
	r, ok := s.byID[id]
	if !ok {
		return Result{SourceID: id, Classification: model.Error, Err: fmt.Errorf("%w: %s", ErrUnknownSource, id)}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return s.run(ctx, r, deliver)
}

// run executes one poll; r.mu must be held.
func (s *Scheduler) run(ctx context.Context, r *runner, deliver bool) Result {
	r.setState(StateAcquiring)
	res := s.poll(ctx, r)
	r.finish(res, s.now())

	if deliver && res.Err == nil && res.Classification == model.Updated {
		s.deliver(ctx, &res)
	}
	return res
}

func (s *Scheduler) poll(ctx context.Context, r *runner) Result {
	src := r.src
	res := Result{SourceID: src.ID, Classification: model.Error}

	stored, err := s.store.LoadSnapshot(ctx, src.ID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		res.Err = &StoreError{SourceID: src.ID, Err: err}
		s.log.Error("load snapshot", "source", src.ID, "error", err)
		return res
	}

	timeout := src.Timeout
	if timeout <= 0 {
		timeout = config.DefaultTimeout
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	s.log.Debug("acquiring", "source", src.ID)
	acq, err := src.Acquirer.Acquire(actx)
	if err != nil {
		res.Err = err
		s.log.Error("acquisition failed", "source", src.ID, "error", err)
		return res
	}

	now := s.now()
	url := acq.URL
	if url == "" {
		url = src.URL
	}
	cls, delta := diff.Run(acq, stored, diff.Options{
		TrackRemovals: src.TrackRemovals,
		Now:           now.In(s.loc),
		SourceURL:     url,
		FieldLabels:   src.FieldLabels,
	})

	next := &model.Snapshot{
		SourceID:   src.ID,
		Title:      title(src, acq),
		URL:        url,
		AcquiredAt: now,
		Records:    acq.Records,
	}
	if stored != nil {
		next.Fields = diff.MergeFields(stored.Fields, acq.Fields)
		next.LastUpdate = stored.LastUpdate
	} else {
		next.Fields = diff.MergeFields(nil, acq.Fields)
	}

	var batches []string
	if cls == model.Updated {
		next.LastUpdate = &model.LastUpdate{At: now, Delta: delta}
		batches = s.pack(src.ID, compose.Delta(s.localize(next), delta))
	}

	if err := s.store.SaveSnapshot(ctx, next); err != nil {
		res.Err = &StoreError{SourceID: src.ID, Err: err}
		s.log.Error("commit snapshot", "source", src.ID, "error", err)
		return res
	}

	res.Classification = cls
	res.Delta = delta
	res.Batches = batches
	s.log.Info("poll finished", "source", src.ID, "result", cls.String(),
		"added", delta.Added.Count(), "removed", delta.Removed.Count())
	return res
}

func (s *Scheduler) pack(sourceID string, blocks []string) []string {
	batches := batch.Pack(blocks, s.limit)
	for _, i := range batch.Oversized(batches, s.limit) {
		s.log.Warn("oversized message block", "source", sourceID, "batch", i, "limit", s.limit)
	}
	return batches
}

func (s *Scheduler) deliver(ctx context.Context, res *Result) {
	recipients, err := s.store.ListSubscribers(ctx)
	if err != nil {
		res.Err = fmt.Errorf("list subscribers: %w", err)
		s.log.Error("list subscribers", "source", res.SourceID, "error", err)
		return
	}

	dctx, cancel := context.WithTimeout(ctx, s.deliveryTimeout)
	defer cancel()
	rep := s.deliverer.Deliver(dctx, res.Batches, recipients)
	if errors.Is(dctx.Err(), context.DeadlineExceeded) {
		s.log.Warn("delivery timed out", "source", res.SourceID,
			"timeout", s.deliveryTimeout, "sent", rep.Sent, "failed", rep.Failed)
	}
	res.Report = &rep
}

// Broadcast sends the last recorded update of a source to every subscriber,
// composed the same way it was when detected. It waits for a running poll of
// the same source to finish.
func (s *Scheduler) Broadcast(ctx context.Context, id string) Result {
	r, ok := s.byID[id]
	if !ok {
		return Result{SourceID: id, Classification: model.Error, Err: fmt.Errorf("%w: %s", ErrUnknownSource, id)}
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	res := Result{SourceID: id, Classification: model.Error}
	snap, err := s.store.LoadSnapshot(ctx, id)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		res.Err = fmt.Errorf("%w: %s", ErrNoUpdate, id)
		return res
	case err != nil:
		res.Err = &StoreError{SourceID: id, Err: err}
		return res
	case snap.LastUpdate == nil:
		res.Err = fmt.Errorf("%w: %s", ErrNoUpdate, id)
		return res
	}

	res.Classification = model.Updated
	res.Delta = snap.LastUpdate.Delta
	res.Batches = s.pack(id, compose.Delta(s.localize(snap), snap.LastUpdate.Delta))
	s.log.Info("broadcasting last update", "source", id, "at", snap.LastUpdate.At)
	s.deliver(ctx, &res)
	return res
}

// View renders the stored snapshot of a source in the given mode and packs it
// into batches. A zero count uses the source's short count.
func (s *Scheduler) View(ctx context.Context, id string, mode compose.Mode, count int) ([]string, error) {
	r, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, id)
	}
	snap, err := s.store.LoadSnapshot(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		snap = &model.Snapshot{SourceID: id, Records: model.RecordSet{Shape: r.src.Shape}}
	} else if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	if snap.Title == "" {
		snap.Title = r.src.Name
	}
	if snap.URL == "" {
		snap.URL = r.src.URL
	}
	if count <= 0 {
		count = r.src.ShortCount
	}
	blocks := compose.Compose(s.localize(snap), model.Delta{}, compose.Request{
		Mode:   mode,
		Count:  count,
		Labels: r.src.FieldLabels,
	})
	return batch.Pack(blocks, s.limit), nil
}

// Status returns the state of every source in registration order.
func (s *Scheduler) Status() []Status {
	out := make([]Status, len(s.runners))
	for i, r := range s.runners {
		r.statusMu.Lock()
		out[i] = r.status
		r.statusMu.Unlock()
	}
	return out
}

// localize returns a copy of snap with its timestamps in the schedule zone.
func (s *Scheduler) localize(snap *model.Snapshot) *model.Snapshot {
	cp := *snap
	if !cp.AcquiredAt.IsZero() {
		cp.AcquiredAt = cp.AcquiredAt.In(s.loc)
	}
	if cp.LastUpdate != nil {
		lu := *cp.LastUpdate
		lu.At = lu.At.In(s.loc)
		cp.LastUpdate = &lu
	}
	return &cp
}

func (r *runner) setState(st State) {
	r.statusMu.Lock()
	defer r.statusMu.Unlock()
	r.status.State = st
}

func (r *runner) finish(res Result, at time.Time) {
	r.statusMu.Lock()
	defer r.statusMu.Unlock()
	r.status.State = StateIdle
	r.status.Last = res.Classification
	r.status.LastRun = at
	r.status.LastErr = res.Err
}

func title(src Source, acq *model.Acquisition) string {
	if src.Name != "" && src.Name != src.ID {
		return src.Name
	}
	if acq.Title != "" {
		return acq.Title
	}
	return src.ID
}
