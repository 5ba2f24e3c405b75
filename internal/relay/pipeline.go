package relay

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/devblac/bridge-relay/internal/chain"
	"github.com/devblac/bridge-relay/internal/logging"
	"github.com/devblac/bridge-relay/internal/metrics"
	"github.com/devblac/bridge-relay/internal/sink"
	"github.com/devblac/bridge-relay/internal/storage"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// State is the pipeline's position in its relay cycle.
type State string

const (
	StateWait   State = "WAIT"
	StateEnrich State = "ENRICH"
	StateRelay  State = "RELAY"
	StateYield  State = "YIELD"
)

// Builder turns an event into a destination transaction, reading the current
// cycle's enrichment if the pipeline has one.
type Builder func(ctx context.Context, ev chain.Event, enr Enrichment) (*chain.TxRequest, error)

// Destination is where a pipeline submits and how its failures are treated.
type Destination struct {
	Name   string
	Chain  Submitter
	Policy RetryPolicy
}

// Config describes one relay pipeline.
type Config struct {
	Name        string
	Source      EventSource
	SourceName  string
	Binding     *chain.Binding
	Event       string
	Filter      chain.Filter
	Where       []Predicate
	Enricher    Enricher
	Destination Destination
	Build       Builder
	StartBlock  uint64
	MaxBatch    int
	// EnrichLimit drops the queue head after that many consecutive enrichment
	// failures. Zero retries forever.
	EnrichLimit int
	Authority   common.Address
	Key         *ecdsa.PrivateKey
}

// WatermarkStore persists pipeline resume points.
type WatermarkStore interface {
	GetWatermark(ctx context.Context, pipeline string) (uint64, bool, error)
	UpsertWatermark(ctx context.Context, pipeline string, block uint64) error
}

// Journal records resolved batches.
type Journal interface {
	InsertOutcomes(ctx context.Context, outs []storage.Outcome) error
}

// Deps are the collaborators shared across pipelines. Every field is optional.
type Deps struct {
	Log        *slog.Logger
	Metrics    *metrics.Metrics
	Watermarks WatermarkStore
	Journal    Journal
	Sinks      []sink.Sender
}

// Snapshot is a point-in-time view of a pipeline for status reporting.
type Snapshot struct {
	Name        string `json:"name"`
	Source      string `json:"source,omitempty"`
	Destination string `json:"destination,omitempty"`
	State       State  `json:"state"`
	Watermark   uint64 `json:"watermark"`
	Queued      int    `json:"queued"`
	Failures    int    `json:"tracked_failures"`
	InFlight    string `json:"in_flight_batch,omitempty"`
}

type batch struct {
	id     string
	events []chain.Event
	done   chan batchResult
}

type batchResult struct {
	outcomes []Outcome
	err      error
}

// Pipeline is the relay state machine for one source event and destination.
// Update and Settle serialize on an internal lock; Snapshot may be called concurrently.
type Pipeline struct {
	cfg        Config
	deps       Deps
	log        *slog.Logger
	queue      *Queue
	poller     *Poller
	dispatcher *Dispatcher
	failures   *FailureTracker

	run            sync.Mutex
	state          State
	enrichment     Enrichment
	enrichFailures int
	inflight       *batch

	snapMu sync.RWMutex
	snap   Snapshot
}

// New builds a pipeline in WAIT. The stored watermark wins over cfg.StartBlock.
func New(ctx context.Context, cfg Config, deps Deps) (*Pipeline, error) {
	switch {
	case cfg.Name == "":
		return nil, errors.New("pipeline name is required")
	case cfg.Source == nil || cfg.Binding == nil || cfg.Event == "":
		return nil, fmt.Errorf("pipeline %s: source, binding and event are required", cfg.Name)
	case cfg.Destination.Chain == nil:
		return nil, fmt.Errorf("pipeline %s: destination is required", cfg.Name)
	case cfg.Build == nil:
		return nil, fmt.Errorf("pipeline %s: builder is required", cfg.Name)
	}
	if deps.Log == nil {
		deps.Log = slog.Default()
	}

	start := cfg.StartBlock
	if deps.Watermarks != nil {
		stored, ok, err := deps.Watermarks.GetWatermark(ctx, cfg.Name)
		if err != nil {
			return nil, fmt.Errorf("pipeline %s: %w", cfg.Name, err)
		}
		if ok {
			start = stored
		}
	}

	p := &Pipeline{
		cfg:        cfg,
		deps:       deps,
		log:        logging.Dedupe(deps.Log).With("pipeline", cfg.Name),
		queue:      &Queue{},
		poller:     NewPoller(cfg.Source, cfg.Binding, cfg.Event, cfg.Filter, cfg.Where, start),
		dispatcher: NewDispatcher(cfg.Destination.Chain, cfg.Authority, cfg.Key),
		failures:   NewFailureTracker(),
		state:      StateWait,
	}
	p.publish()
	return p, nil
}

// Name returns the pipeline name.
func (p *Pipeline) Name() string { return p.cfg.Name }

// Update advances the pipeline by one step. It never blocks on an in-flight batch.
func (p *Pipeline) Update(ctx context.Context) {
	p.run.Lock()
	defer p.run.Unlock()

	switch p.state {
	case StateWait:
		p.wait(ctx)
	case StateEnrich:
		p.enrich(ctx)
	case StateRelay:
		p.relay(ctx)
	case StateYield:
		p.yield(ctx)
	}
	p.publish()
}

// Settle waits for an in-flight batch and applies its outcomes.
// It returns ctx.Err() if the batch does not resolve in time.
func (p *Pipeline) Settle(ctx context.Context) error {
	p.run.Lock()
	defer p.run.Unlock()
	defer p.publish()

	if p.inflight == nil {
		return nil
	}
	select {
	case res := <-p.inflight.done:
		p.finish(ctx, res)
		return nil
	case <-ctx.Done():
		p.logWarn("batch still in flight at shutdown", "batch", p.inflight.id, "events", len(p.inflight.events))
		return ctx.Err()
	}
}

// Snapshot returns the state as of the last step.
func (p *Pipeline) Snapshot() Snapshot {
	p.snapMu.RLock()
	defer p.snapMu.RUnlock()
	return p.snap
}

func (p *Pipeline) wait(ctx context.Context) {
	res, err := p.poller.Poll(ctx, p.queue)
	if err != nil {
		p.deps.Metrics.PollError(p.cfg.Name)
		p.logError("query events failed", "event", p.cfg.Event, "from", p.poller.Watermark(), "err", err)
		return
	}
	p.deps.Metrics.EventsQueued(p.cfg.Name, res.Queued)
	p.persistWatermark(ctx)

	if p.queue.Len() == 0 {
		p.logInfo("no new events", "watermark", p.poller.Watermark())
		return
	}
	if res.Queued > 0 {
		p.logInfo("queued events", "count", res.Queued, "queued", p.queue.Len(), "watermark", p.poller.Watermark())
	}
	if p.cfg.Enricher != nil {
		p.changeState(StateEnrich)
		return
	}
	p.changeState(StateRelay)
}

func (p *Pipeline) enrich(ctx context.Context) {
	events := p.queue.Peek(p.cfg.MaxBatch)
	if len(events) == 0 {
		p.changeState(StateWait)
		return
	}
	enr, err := p.cfg.Enricher.Enrich(ctx, events)
	if err != nil {
		p.enrichFailures++
		head := events[0]
		p.deps.Metrics.PollError(p.cfg.Name)
		p.logError("enrichment failed", "events", len(events), "head", head.TxHash.Hex(), "head_block", head.BlockNumber, "failures", p.enrichFailures, "err", err)
		if p.cfg.EnrichLimit > 0 && p.enrichFailures >= p.cfg.EnrichLimit {
			p.dropHead(ctx, err)
		}
		return
	}
	p.enrichFailures = 0
	p.enrichment = enr
	p.changeState(StateRelay)
}

// dropHead discards the front event after repeated enrichment failures so the
// events behind it can make progress.
func (p *Pipeline) dropHead(ctx context.Context, cause error) {
	head := p.queue.DequeueBatch(1)[0]
	p.enrichFailures = 0
	o := Outcome{Event: head, Kind: OutcomeDropped, Err: fmt.Errorf("enrichment failed %d times: %w", p.cfg.EnrichLimit, cause)}
	p.failures.Classify(o, p.cfg.Destination.Policy)

	p.deps.Metrics.EventDropped(p.cfg.Name, "enrich")
	p.logWarn("event skipped", "tx", head.TxHash.Hex(), "reason", o.Err.Error())
	p.journal(ctx, []storage.Outcome{{
		BatchID:  uuid.NewString(),
		Pipeline: p.cfg.Name,
		EventTx:  head.TxHash.Hex(),
		Block:    head.BlockNumber,
		Status:   "dropped",
		Error:    o.Err.Error(),
	}})
	p.persistWatermark(ctx)
	if p.queue.Len() == 0 {
		p.changeState(StateWait)
	}
}

func (p *Pipeline) relay(ctx context.Context) {
	if p.queue.Len() == 0 {
		p.changeState(StateWait)
		return
	}

	events := p.queue.DequeueBatch(p.cfg.MaxBatch)
	enr := p.enrichment
	p.enrichment = nil
	build := func(ctx context.Context, ev chain.Event) (*chain.TxRequest, error) {
		return p.cfg.Build(ctx, ev, enr)
	}

	b := &batch{id: uuid.NewString(), events: events, done: make(chan batchResult, 1)}
	dctx := context.WithoutCancel(ctx)
	go func() {
		var res batchResult
		func() {
			defer recoverBatch(&res.err)
			res.outcomes, res.err = p.dispatcher.Dispatch(dctx, events, build)
		}()
		b.done <- res
	}()

	p.inflight = b
	p.logInfo("dispatched batch", "batch", b.id, "events", len(events), "destination", p.cfg.Destination.Name)
	p.changeState(StateYield)
}

func (p *Pipeline) yield(ctx context.Context) {
	select {
	case res := <-p.inflight.done:
		p.finish(ctx, res)
	default:
		p.logInfo("batch in flight", "batch", p.inflight.id)
	}
}

func (p *Pipeline) finish(ctx context.Context, res batchResult) {
	b := p.inflight
	p.inflight = nil
	p.resolve(ctx, b, res)
	p.persistWatermark(ctx)
	p.changeState(StateWait)
}

// resolve applies a settled batch: classify each outcome, requeue retries and
// journal the result.
func (p *Pipeline) resolve(ctx context.Context, b *batch, res batchResult) {
	name := p.cfg.Name
	if res.err != nil {
		p.deps.Metrics.BatchFailed(name)
		p.logError("batch failed, events abandoned", "batch", b.id, "events", len(b.events), "err", res.err)
		recs := make([]storage.Outcome, 0, len(b.events))
		for _, ev := range b.events {
			recs = append(recs, storage.Outcome{
				BatchID: b.id, Pipeline: name, EventTx: ev.TxHash.Hex(), Block: ev.BlockNumber,
				Status: "abandoned", Error: res.err.Error(),
			})
		}
		p.journal(ctx, recs)
		return
	}

	var (
		retries                     []chain.Event
		submitted, failed, dropped int
		recs                        = make([]storage.Outcome, 0, len(res.outcomes))
	)
	for _, o := range res.outcomes {
		decision, attempts := p.failures.Classify(o, p.cfg.Destination.Policy)
		rec := storage.Outcome{
			BatchID:  b.id,
			Pipeline: name,
			EventTx:  o.Event.TxHash.Hex(),
			Block:    o.Event.BlockNumber,
			Attempts: attempts,
		}
		if o.Submission.TxHash != (common.Hash{}) {
			nonce := o.Submission.Nonce
			rec.Nonce = &nonce
		}
		if o.Err != nil {
			rec.Error = o.Err.Error()
		}

		switch decision {
		case DecisionSuccess:
			submitted++
			rec.Status = "submitted"
			rec.ResultTx = o.Submission.TxHash.Hex()
			p.deps.Metrics.TxSubmitted(name)
			p.logInfo("relayed event", "tx", o.Event.TxHash.Hex(), "result", rec.ResultTx, "nonce", o.Submission.Nonce)
		case DecisionRetry:
			failed++
			rec.Status = "retry"
			retries = append(retries, o.Event)
			p.deps.Metrics.TxFailed(name)
			p.deps.Metrics.EventRetried(name)
			p.logWarn("submission failed, requeued", "tx", o.Event.TxHash.Hex(), "attempt", attempts, "limit", p.cfg.Destination.Policy.Limit, "err", o.Err)
		case DecisionDrop:
			dropped++
			rec.Status = "dropped"
			if o.Kind == OutcomeDropped {
				p.deps.Metrics.EventDropped(name, "build")
				p.logWarn("event skipped", "tx", o.Event.TxHash.Hex(), "reason", dropReason(o.Err))
				break
			}
			failed++
			reason := "custody"
			if p.cfg.Destination.Policy.Limit > 0 {
				reason = "exhausted"
			}
			p.deps.Metrics.TxFailed(name)
			p.deps.Metrics.EventDropped(name, reason)
			p.logError("submission failed, event dropped", "tx", o.Event.TxHash.Hex(), "reason", reason, "attempts", attempts, "err", o.Err)
			p.notify(ctx, o, reason, attempts)
		}
		recs = append(recs, rec)
	}

	switch p.cfg.Destination.Policy.Requeue {
	case RequeueFront:
		p.queue.RequeueFront(retries...)
	default:
		p.queue.RequeueBack(retries...)
	}
	p.logInfo("batch settled", "batch", b.id, "submitted", submitted, "failed", failed, "dropped", dropped, "queued", p.queue.Len())
	p.journal(ctx, recs)
}

func (p *Pipeline) notify(ctx context.Context, o Outcome, reason string, attempts int) {
	if len(p.deps.Sinks) == 0 {
		return
	}
	n := sink.Notice{
		Pipeline:    p.cfg.Name,
		Destination: p.cfg.Destination.Name,
		Reason:      reason,
		TxHash:      o.Event.TxHash.Hex(),
		Block:       o.Event.BlockNumber,
		Attempts:    attempts,
		Args:        o.Event.ReturnValues,
	}
	if o.Err != nil {
		n.Error = o.Err.Error()
	}
	nctx := context.WithoutCancel(ctx)
	for _, s := range p.deps.Sinks {
		go func(s sink.Sender) {
			if err := s.Send(nctx, n); err != nil {
				p.log.Warn("drop notice failed", "tx", n.TxHash, "err", err)
			}
		}(s)
	}
}

func (p *Pipeline) journal(ctx context.Context, recs []storage.Outcome) {
	if p.deps.Journal == nil {
		return
	}
	if err := p.deps.Journal.InsertOutcomes(ctx, recs); err != nil {
		p.logWarn("journal outcomes failed", "err", err)
	}
}

// persistWatermark stores the block a restart should poll from: the oldest queued
// event when anything is queued, otherwise the watermark.
func (p *Pipeline) persistWatermark(ctx context.Context) {
	if p.deps.Watermarks == nil {
		return
	}
	resume := p.poller.Watermark()
	if lo, _, ok := p.queue.BlockRange(); ok {
		resume = lo
	}
	if err := p.deps.Watermarks.UpsertWatermark(ctx, p.cfg.Name, resume); err != nil {
		p.logWarn("persist watermark failed", "block", resume, "err", err)
	}
}

func (p *Pipeline) changeState(s State) {
	if p.state == s {
		return
	}
	p.log.Debug("state change", "from", string(p.state), "to", string(s))
	p.state = s
}

func (p *Pipeline) publish() {
	snap := Snapshot{
		Name:        p.cfg.Name,
		Source:      p.cfg.SourceName,
		Destination: p.cfg.Destination.Name,
		State:       p.state,
		Watermark:   p.poller.Watermark(),
		Queued:      p.queue.Len(),
		Failures:    p.failures.Len(),
	}
	if p.inflight != nil {
		snap.InFlight = p.inflight.id
	}
	p.snapMu.Lock()
	p.snap = snap
	p.snapMu.Unlock()
	p.deps.Metrics.Observe(p.cfg.Name, string(snap.State), snap.Watermark, snap.Queued)
}

func (p *Pipeline) logInfo(msg string, args ...any) {
	p.log.Info(msg, append([]any{"state", string(p.state)}, args...)...)
}

func (p *Pipeline) logWarn(msg string, args ...any) {
	p.log.Warn(msg, append([]any{"state", string(p.state)}, args...)...)
}

func (p *Pipeline) logError(msg string, args ...any) {
	p.log.Error(msg, append([]any{"state", string(p.state)}, args...)...)
}

func dropReason(err error) string {
	if err == nil {
		return "nothing to relay"
	}
	return err.Error()
}
