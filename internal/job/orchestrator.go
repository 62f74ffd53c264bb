package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/maauso/genjob/internal/catalog"
	"github.com/maauso/genjob/internal/classify"
	"github.com/maauso/genjob/internal/fallback"
	"github.com/maauso/genjob/internal/materialize"
	"github.com/maauso/genjob/internal/provider"
)

// Defaults for the orchestrator.
const (
	DefaultTimeout = 60 * time.Minute

	// maxPollErrors is how many consecutive transient poll errors a job
	// tolerates before it fails.
	maxPollErrors = 5
)

// Static errors for request validation.
var (
	ErrPromptRequired = errors.New("job: prompt is required")
	ErrInvalidKind    = errors.New("job: invalid kind")
	ErrShuttingDown   = errors.New("job: orchestrator is shutting down")
)

// Request is one generation request.
type Request struct {
	Kind      provider.Kind
	Prompt    string
	Reference *provider.ReferenceAsset
	Options   provider.Options
	// Models overrides the catalog's candidate list when set.
	Models []string
}

// Materializer turns a result reference into a durable asset.
type Materializer interface {
	Materialize(ctx context.Context, key, ref string) materialize.Asset
}

// AdapterFactory builds the adapter for a resolved configuration.
type AdapterFactory func(cfg provider.Config, caps provider.Capabilities) (provider.Adapter, error)

// Orchestrator owns the lifecycle of every job: submission through the
// fallback chain, one poll loop per job, timeout, cancellation and delivery.
type Orchestrator struct {
	catalog      *catalog.Catalog
	newAdapter   AdapterFactory
	chain        *fallback.Chain
	materializer Materializer
	backoff      Backoff
	timeout      time.Duration
	registry     *Registry
	logger       *slog.Logger

	// base is the parent of every poll loop; Shutdown cancels it.
	base   context.Context
	stop   context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithCatalog sets the capabilities catalog.
func WithCatalog(c *catalog.Catalog) Option {
	return func(o *Orchestrator) {
		if c != nil {
			o.catalog = c
		}
	}
}

// WithAdapterFactory replaces provider.New, e.g. to inject a custom HTTP client.
func WithAdapterFactory(f AdapterFactory) Option {
	return func(o *Orchestrator) {
		if f != nil {
			o.newAdapter = f
		}
	}
}

// WithMaterializer sets the asset materializer.
func WithMaterializer(m Materializer) Option {
	return func(o *Orchestrator) {
		if m != nil {
			o.materializer = m
		}
	}
}

// WithBackoff sets the polling policy.
func WithBackoff(b Backoff) Option {
	return func(o *Orchestrator) {
		o.backoff = b
	}
}

// WithTimeout sets the wall-clock budget of a job, measured from submission.
func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithRegistry sets the job registry.
func WithRegistry(r *Registry) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.registry = r
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// NewOrchestrator creates an Orchestrator. The backoff policy is validated
// once here and shared by every job.
func NewOrchestrator(opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		catalog: catalog.Default(),
		newAdapter: func(cfg provider.Config, caps provider.Capabilities) (provider.Adapter, error) {
			return provider.New(cfg, caps)
		},
		backoff:  DefaultBackoff(),
		timeout:  DefaultTimeout,
		registry: NewRegistry(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if err := o.backoff.Validate(); err != nil {
		return nil, err
	}
	if o.materializer == nil {
		o.materializer = materialize.New(materialize.WithLogger(o.logger))
	}
	o.chain = fallback.New(o.logger)
	o.base, o.stop = context.WithCancel(context.Background())
	return o, nil
}

// Registry returns the job registry.
func (o *Orchestrator) Registry() *Registry {
	return o.registry
}

// Submit resolves an adapter for cfg, runs the fallback chain and starts
// polling the winning task. It returns as soon as the chain resolves.
//
// Invalid requests are rejected with a BadRequest error and no job. Once a
// request is accepted a job always exists: if no candidate accepts it, the
// returned job is already FAILED and the error is its classified failure.
func (o *Orchestrator) Submit(ctx context.Context, cfg provider.Config, req Request) (*Job, error) {
	if err := validateRequest(req); err != nil {
		return nil, classify.New(classify.KindBadRequest, err.Error())
	}

	o.mu.Lock()
	closed := o.closed
	o.mu.Unlock()
	if closed {
		return nil, classify.New(classify.KindUnreachable, ErrShuttingDown.Error())
	}

	job := New(req.Kind)
	o.registry.Add(job)

	logger := o.logger.With(
		slog.String("job_id", job.ID),
		slog.String("provider", cfg.Provider),
		slog.String("kind", string(req.Kind)),
	)
	logger.Info("job accepted")

	adapter, models, err := o.resolve(cfg, req)
	if err != nil {
		return o.reject(logger, job, classify.FromError(err))
	}

	candidates := make([]fallback.Candidate, 0, len(models))
	for _, m := range models {
		candidates = append(candidates, fallback.Candidate{Adapter: adapter, Model: m})
	}

	res, err := o.chain.Execute(ctx, candidates, provider.Payload{
		Kind:      req.Kind,
		Prompt:    req.Prompt,
		Reference: req.Reference,
		Options:   req.Options,
	})
	if err != nil {
		var exhausted *fallback.ExhaustedError
		if errors.As(err, &exhausted) {
			return o.reject(logger, job, exhausted.Classified())
		}
		return o.reject(logger, job, classify.FromError(err))
	}

	// A job cancelled while the chain was running stays cancelled.
	if err := job.Submit(res); err != nil {
		return job.Clone(), job.Err()
	}
	o.registry.IndexTask(adapter.Name(), res.Submission.TaskID, job.ID)
	if err := job.Start(); err != nil {
		return job.Clone(), job.Err()
	}

	logger.Info("job running",
		slog.String("task_id", res.Submission.TaskID),
		slog.String("model", res.Winner.Model),
		slog.Int("attempts", len(res.Attempts)),
		slog.Bool("degraded", res.Degraded),
	)

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		_ = job.Cancel("orchestrator shutting down")
		return job.Clone(), job.Err()
	}
	o.wg.Add(1)
	o.mu.Unlock()

	loopCtx, cancel := context.WithCancel(o.base)
	o.registry.SetCancel(job.ID, cancel)

	go func() {
		defer o.wg.Done()
		defer o.registry.StopPolling(job.ID)
		o.run(loopCtx, logger, job, adapter, res.Submission.Status)
	}()

	return job.Clone(), nil
}

func validateRequest(req Request) error {
	if !req.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidKind, req.Kind)
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return ErrPromptRequired
	}
	return nil
}

// resolve builds the adapter and the ordered model list for a request.
func (o *Orchestrator) resolve(cfg provider.Config, req Request) (provider.Adapter, []string, error) {
	caps, err := o.catalog.Capabilities(cfg.Provider)
	if err != nil {
		return nil, nil, classify.New(classify.KindBadRequest, err.Error())
	}
	if !caps.Supports(req.Kind) {
		return nil, nil, classify.New(classify.KindBadRequest,
			fmt.Sprintf("%s: %s", provider.ErrKindNotSupported, req.Kind))
	}

	models, err := catalog.Models(caps, cfg.PreferredModel, req.Kind, req.Models)
	if err != nil {
		return nil, nil, classify.New(classify.KindBadRequest, err.Error())
	}

	adapter, err := o.newAdapter(cfg, caps)
	if err != nil {
		return nil, nil, err
	}
	return adapter, models, nil
}

func (o *Orchestrator) reject(logger *slog.Logger, job *Job, failure *classify.Error) (*Job, error) {
	status := StatusFailed
	if failure.Kind == classify.KindCancelled {
		status = StatusCancelled
	}
	if err := job.finishWith(status, failure); err != nil {
		return job.Clone(), job.Err()
	}
	logger.Error("job submission failed",
		slog.String("code", failure.Code()),
		slog.String("error", failure.Error()),
	)
	return job.Clone(), failure
}

// run is the poll loop of one job. It owns the job until a terminal state is
// reached or ctx is cancelled.
func (o *Orchestrator) run(ctx context.Context, logger *slog.Logger, job *Job, adapter provider.Adapter, initial provider.JobStatus) {
	// Synchronous providers report a terminal status on submit.
	if initial.State.IsTerminal() {
		o.finish(ctx, logger, job, initial)
		return
	}

	job.mu.RLock()
	taskID := job.TaskID
	deadline := job.SubmittedAt.Add(o.timeout)
	job.mu.RUnlock()

	delay := o.backoff.First()
	pollErrors := 0

	for {
		wait := min(delay, max(time.Until(deadline), 0))
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if job.IsTerminal() {
			return
		}
		if !time.Now().Before(deadline) {
			o.expire(logger, job)
			return
		}

		job.CountPoll()
		logger.Debug("polling task", slog.String("task_id", taskID), slog.Duration("delay", delay))
		status, err := adapter.Poll(ctx, taskID)

		// A response that arrives after cancellation or after the budget is
		// discarded.
		if job.IsTerminal() || ctx.Err() != nil {
			logger.Debug("discarding poll response for finished job")
			return
		}
		if !time.Now().Before(deadline) {
			o.expire(logger, job)
			return
		}

		if err != nil {
			failure := classify.FromError(err)
			pollErrors++
			if failure.Kind.IsTransient() && pollErrors < maxPollErrors {
				logger.Warn("poll failed, will retry",
					slog.Int("consecutive_errors", pollErrors),
					slog.String("error", err.Error()),
				)
				delay = o.backoff.Next(delay)
				job.RecordPoll(delay, 0)
				continue
			}
			o.fail(logger, job, failure)
			return
		}
		pollErrors = 0

		if status.State.IsTerminal() {
			o.finish(ctx, logger, job, status)
			return
		}

		delay = o.backoff.Next(delay)
		job.RecordPoll(delay, status.Progress)
	}
}

// finish applies a terminal provider status.
func (o *Orchestrator) finish(ctx context.Context, logger *slog.Logger, job *Job, status provider.JobStatus) {
	switch status.State {
	case provider.StateSucceeded:
		asset := o.materializer.Materialize(ctx, job.ID, status.ResultRef)
		if err := job.Succeed(status.ResultRef, asset); err != nil {
			logger.Warn("discarding result for finished job", slog.String("status", string(job.GetStatus())))
			return
		}
		logger.Info("job succeeded",
			slog.Bool("materialized", asset.Materialized),
			slog.String("strategy", string(asset.Strategy)),
		)
	case provider.StateCancelled:
		if err := job.Cancel("cancelled by provider"); err == nil {
			logger.Info("job cancelled by provider")
		}
	default:
		o.fail(logger, job, classify.Classify(status.RawFailure))
	}
}

func (o *Orchestrator) fail(logger *slog.Logger, job *Job, failure *classify.Error) {
	if err := job.Fail(failure); err != nil {
		return
	}
	logger.Error("job failed",
		slog.String("code", failure.Code()),
		slog.String("error", failure.Error()),
	)
}

func (o *Orchestrator) expire(logger *slog.Logger, job *Job) {
	if err := job.Timeout(o.timeout); err != nil {
		return
	}
	logger.Warn("job timed out", slog.Duration("budget", o.timeout))
}

// Get returns a snapshot of a job.
func (o *Orchestrator) Get(jobID string) (*Job, error) {
	return o.registry.FindByID(jobID)
}

// Await blocks until the job is terminal or ctx is done. The returned error
// is the job's classified failure, or ctx.Err().
func (o *Orchestrator) Await(ctx context.Context, jobID string) (*Job, error) {
	job, err := o.registry.live(jobID)
	if err != nil {
		return nil, err
	}

	select {
	case <-job.Done():
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	job.markRetrieved()
	return job.Clone(), job.Err()
}

// Cancel stops a job. It is a no-op for a job that is already terminal.
func (o *Orchestrator) Cancel(jobID string) error {
	job, err := o.registry.live(jobID)
	if err != nil {
		return err
	}
	if err := job.Cancel("cancelled by caller"); err != nil {
		return nil
	}
	o.registry.StopPolling(jobID)
	o.logger.Info("job cancelled", slog.String("job_id", jobID))
	return nil
}

// CancelTask cancels the job that owns a provider task handle.
func (o *Orchestrator) CancelTask(providerName, taskID string) error {
	jobID, err := o.registry.JobForTask(providerName, taskID)
	if err != nil {
		return err
	}
	return o.Cancel(jobID)
}

// Quota returns the account balance reported by the configured provider.
// Providers without a quota endpoint return provider.ErrQuotaNotSupported.
func (o *Orchestrator) Quota(ctx context.Context, cfg provider.Config) (provider.Quota, error) {
	caps, err := o.catalog.Capabilities(cfg.Provider)
	if err != nil {
		return provider.Quota{}, classify.New(classify.KindBadRequest, err.Error())
	}
	adapter, err := o.newAdapter(cfg, caps)
	if err != nil {
		return provider.Quota{}, classify.FromError(err)
	}

	q, err := adapter.Quota(ctx)
	if err != nil {
		if errors.Is(err, provider.ErrQuotaNotSupported) {
			return provider.Quota{}, err
		}
		return provider.Quota{}, classify.FromError(err)
	}
	return q, nil
}

// Shutdown cancels every running job and waits for the poll loops to exit.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()

	for _, snapshot := range o.registry.List() {
		if snapshot.Status.IsTerminal() {
			continue
		}
		if job, err := o.registry.live(snapshot.ID); err == nil {
			_ = job.Cancel("orchestrator shutting down")
		}
	}
	o.stop()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
