package scenario

import (
	"context"
	"errors"
	"fmt"
	"time"

	"regcheck/internal/compare"
	"regcheck/internal/descriptor"
	"regcheck/internal/probe"
	"regcheck/internal/registry"
	"regcheck/pkg/logging"

	"github.com/google/uuid"
)

const (
	defaultSettleTimeout = 10 * time.Second
	defaultPollInterval  = 200 * time.Millisecond
	cleanupTimeout       = 10 * time.Second
)

// Runner drives one scenario at a time against a registry.
type Runner struct {
	Registry registry.Registry
	Prober   *probe.Prober
	// Publisher is required for scenarios using the mqtt transport.
	Publisher Publisher

	// NewID generates entry identifiers.
	NewID func() string
	// PollInterval spaces reads while waiting for MQTT registrations.
	PollInterval time.Duration
}

// NewRunner creates a runner with a default prober and UUID identifiers.
func NewRunner(reg registry.Registry) *Runner {
	return &Runner{
		Registry:     reg,
		Prober:       probe.New(),
		NewID:        uuid.NewString,
		PollInterval: defaultPollInterval,
	}
}

// failure is an assertion that did not hold. It makes a scenario FAILED
// rather than ERROR.
type failure struct {
	msg string
}

func (f *failure) Error() string { return f.msg }

func failf(format string, args ...any) error {
	return &failure{msg: fmt.Sprintf(format, args...)}
}

// classify maps a step error to an outcome. Registry and configuration
// problems are errors; everything about the data is a failure.
func classify(err error) Outcome {
	var f *failure
	var nc *compare.NotComparableError
	switch {
	case errors.As(err, &f), errors.As(err, &nc), registry.IsNotFound(err):
		return OutcomeFailed
	default:
		return OutcomeError
	}
}

// Run executes sc and returns its result. It never returns early without
// a result; an error is carried in Result.Error.
func (r *Runner) Run(ctx context.Context, sc Scenario, opts Options) Result {
	return r.run(ctx, sc, opts, nil)
}

type execution struct {
	r      *Runner
	sc     Scenario
	opts   Options
	res    *Result
	onStep func(StepResult)

	submitted *descriptor.Service
	// stored is the create response, nil for mqtt registrations.
	stored *descriptor.Service
	// owned is set once an entry under res.ID may exist because of this run.
	owned bool
}

func (r *Runner) run(ctx context.Context, sc Scenario, opts Options, onStep func(StepResult)) (res Result) {
	res = Result{
		Scenario:  sc,
		State:     StateIdle,
		Outcome:   OutcomePassed,
		StartTime: time.Now(),
	}
	defer func() {
		res.EndTime = time.Now()
		res.Duration = res.EndTime.Sub(res.StartTime)
	}()

	if sc.Variant == "" {
		sc.Variant = VariantCreate
		res.Scenario.Variant = VariantCreate
	}
	if sc.Transport == "" {
		sc.Transport = TransportHTTP
	}

	if sc.RequireEnabled && !opts.Enabled {
		res.State = StateSkipped
		res.Outcome = OutcomeSkipped
		res.Diagnostics = append(res.Diagnostics, "scenario requires an enabled run (set integration_test)")
		logging.Info("Scenario", "%s: skipped, not enabled", sc.Name)
		return res
	}

	if opts.ProbeTimeout == 0 {
		opts.ProbeTimeout = probe.DefaultTimeoutSeconds
	}
	if opts.PerPage <= 0 {
		opts.PerPage = registry.MaxPerPage
	}
	if opts.SettleTimeout <= 0 {
		opts.SettleTimeout = defaultSettleTimeout
	}

	if sc.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, sc.Timeout)
		defer cancel()
	}

	e := &execution{r: r, sc: sc, opts: opts, res: &res, onStep: onStep}
	defer e.cleanup(ctx)

	logging.Info("Scenario", "%s: starting (%s variant, %s transport)", sc.Name, sc.Variant, sc.Transport)

	// Inputs are resolved before anything touches the network.
	if !e.step("load", StateIdle, e.load) {
		return res
	}
	if !e.step("probe", StateProbing, func() error { return e.probe(ctx) }) {
		return res
	}

	if sc.Variant == VariantExisting {
		e.runExisting(ctx)
	} else {
		e.runCreate(ctx)
	}

	if res.Outcome == OutcomePassed {
		logging.Info("Scenario", "%s: passed", sc.Name)
	} else {
		logging.Warn("Scenario", "%s: %s in %s: %s", sc.Name, res.Outcome, lastStep(res), res.Error)
	}
	return res
}

func (e *execution) runCreate(ctx context.Context) {
	var baseline int
	steps := []struct {
		name string
		next State
		fn   func() error
	}{
		{"baseline", StateProbing, func() error {
			total, err := e.total(ctx)
			baseline = total
			e.res.BaselineTotal = &baseline
			return err
		}},
		{"create", StateSubmitted, func() error { return e.create(ctx) }},
		{"count-after-create", StateSubmitted, func() error { return e.expectTotal(ctx, baseline+1) }},
		{"read", StateVerified, func() error { return e.verify(ctx) }},
		{"delete", StateCleaned, func() error { return e.remove(ctx) }},
		{"read-after-delete", StateCleaned, func() error { return e.expectGone(ctx) }},
		{"count-after-delete", StateDone, func() error {
			e.owned = false
			total, err := e.total(ctx)
			if err != nil {
				return err
			}
			if total != baseline {
				return failf("list total is %d after delete, expected the baseline %d", total, baseline)
			}
			return nil
		}},
	}

	for _, s := range steps {
		if !e.step(s.name, s.next, s.fn) {
			return
		}
	}
}

func (e *execution) runExisting(ctx context.Context) {
	var found *descriptor.Service
	if !e.step("locate", StateSubmitted, func() error {
		svc, total, err := e.locate(ctx, e.submitted.NameValue())
		if err != nil {
			return err
		}
		if e.sc.ExpectedTotal != nil && total != *e.sc.ExpectedTotal {
			return failf("list total is %d, expected %d", total, *e.sc.ExpectedTotal)
		}
		found = svc
		e.res.ID = svc.ID
		return nil
	}) {
		return
	}

	if !e.step("compare", StateVerified, func() error {
		return e.compare(e.submitted, found, compare.ModeTemplate)
	}) {
		return
	}
	e.res.State = StateDone
}

// step runs fn and moves to next on success. On error the scenario moves to
// Failed and step reports false.
func (e *execution) step(name string, next State, fn func() error) bool {
	start := time.Now()
	err := fn()

	sr := StepResult{Step: name, State: next, Outcome: OutcomePassed, Duration: time.Since(start)}
	if err != nil {
		sr.State = StateFailed
		sr.Outcome = classify(err)
		sr.Error = err.Error()
	}
	e.res.Steps = append(e.res.Steps, sr)
	if e.onStep != nil {
		e.onStep(sr)
	}

	if err != nil {
		e.res.State = StateFailed
		e.res.Outcome = sr.Outcome
		e.res.Error = fmt.Sprintf("%s: %v", name, err)
		e.res.Diagnostics = append(e.res.Diagnostics, e.res.Error)
		return false
	}
	e.res.State = next
	logging.Debug("Scenario", "%s: %s ok, now %s", e.sc.Name, name, next)
	return true
}

func (e *execution) load() error {
	if e.sc.Variant != VariantCreate && e.sc.Variant != VariantExisting {
		return &descriptor.ConfigurationError{
			Option: "variant",
			Value:  string(e.sc.Variant),
			Err:    fmt.Errorf("must be %q or %q", VariantCreate, VariantExisting),
		}
	}

	switch {
	case e.sc.Template != "":
		svc, err := descriptor.LoadFile(e.sc.Template)
		if err != nil {
			return err
		}
		e.submitted = svc
	case e.sc.Descriptor != nil:
		svc, err := descriptor.Normalize(e.sc.Descriptor)
		if err != nil {
			return &descriptor.ConfigurationError{Option: "descriptor", Value: e.sc.Name, Err: err}
		}
		e.submitted = svc
	default:
		return &descriptor.ConfigurationError{
			Option: "template",
			Err:    errors.New("scenario has neither a template file nor an inline descriptor"),
		}
	}

	if e.submitted.Name == nil {
		return &descriptor.ConfigurationError{
			Option: "template",
			Value:  e.sc.Template,
			Err:    errors.New("descriptor has no name"),
		}
	}
	if e.sc.Transport != TransportHTTP && e.sc.Transport != TransportMQTT {
		return &descriptor.ConfigurationError{
			Option: "transport",
			Value:  string(e.sc.Transport),
			Err:    fmt.Errorf("must be %q or %q", TransportHTTP, TransportMQTT),
		}
	}
	if e.sc.Variant == VariantCreate && e.sc.Transport == TransportMQTT && e.r.Publisher == nil {
		return &descriptor.ConfigurationError{
			Option: "mqtt_broker",
			Err:    errors.New("mqtt transport requested but no broker is configured"),
		}
	}
	// Entries are created under a generated id; a template's own id is dropped.
	e.submitted.ID = ""
	return nil
}

// probe never fails the scenario. A registry that does not come up is
// recorded and the run proceeds.
func (e *execution) probe(ctx context.Context) error {
	if e.opts.ProbeURL == "" {
		return nil
	}
	prober := e.r.Prober
	if prober == nil {
		prober = probe.New()
	}
	report := prober.Probe(ctx, e.opts.ProbeURL, e.opts.ProbeTimeout)
	e.res.Probe = &report
	if !report.Available {
		e.res.Diagnostics = append(e.res.Diagnostics, fmt.Sprintf(
			"warning: %s not available after %d attempt(s), continuing", e.opts.ProbeURL, report.Attempts))
	}
	return nil
}

func (e *execution) total(ctx context.Context) (int, error) {
	idx, err := e.r.Registry.List(ctx, 1, e.opts.PerPage)
	if err != nil {
		return 0, err
	}
	return idx.Total, nil
}

func (e *execution) expectTotal(ctx context.Context, want int) error {
	total, err := e.total(ctx)
	if err != nil {
		return err
	}
	if total != want {
		return failf("list total is %d after create, expected %d", total, want)
	}
	if e.sc.ExpectedTotal != nil && total != *e.sc.ExpectedTotal {
		return failf("list total is %d, expected %d", total, *e.sc.ExpectedTotal)
	}
	return nil
}

func (e *execution) create(ctx context.Context) error {
	id := e.r.NewID()
	e.res.ID = id

	if e.sc.Transport == TransportMQTT {
		msg := e.submitted.Clone()
		msg.ID = id
		if err := e.r.Publisher.Register(ctx, msg); err != nil {
			return err
		}
		e.owned = true
		_, err := e.waitFor(ctx, id, true)
		return err
	}

	stored, err := e.r.Registry.Create(ctx, id, e.submitted.Clone())
	if err != nil {
		return err
	}
	e.owned = true
	if stored.ID != id {
		return failf("create response id %q does not echo the submitted id %q", stored.ID, id)
	}
	e.stored = stored
	return nil
}

func (e *execution) verify(ctx context.Context) error {
	got, err := e.r.Registry.Read(ctx, e.res.ID)
	if err != nil {
		return err
	}
	if got.ID != e.res.ID {
		return failf("read-back id %q does not equal the submitted id %q", got.ID, e.res.ID)
	}

	mode := compare.ModeRoundTrip
	if e.sc.Template != "" {
		mode = compare.ModeTemplate
	}
	if err := e.compare(e.submitted, got, mode); err != nil {
		return err
	}
	// The entry read back must be the one the create call answered with.
	if e.stored != nil {
		if err := e.compare(e.stored, got, compare.ModeRoundTrip); err != nil {
			return fmt.Errorf("read-back differs from the create response: %w", err)
		}
	}
	return nil
}

func (e *execution) compare(expected, actual *descriptor.Service, mode compare.Mode) error {
	cmpRes, err := compare.Compare(expected, actual, mode)
	if err != nil {
		return err
	}
	mm := cmpRes.Mismatches()
	if len(mm) == 0 {
		return nil
	}
	e.res.Mismatches = append(e.res.Mismatches, mm...)
	for _, m := range mm {
		e.res.Diagnostics = append(e.res.Diagnostics, m.String())
	}
	return failf("%d field(s) differ (%s comparison)", len(mm), mode)
}

func (e *execution) remove(ctx context.Context) error {
	if e.sc.Transport == TransportMQTT {
		msg := e.submitted.Clone()
		msg.ID = e.res.ID
		return e.r.Publisher.Deregister(ctx, msg)
	}
	return e.r.Registry.Delete(ctx, e.res.ID)
}

func (e *execution) expectGone(ctx context.Context) error {
	if e.sc.Transport == TransportMQTT {
		_, err := e.waitFor(ctx, e.res.ID, false)
		return err
	}

	_, err := e.r.Registry.Read(ctx, e.res.ID)
	switch {
	case err == nil:
		return failf("entry %s is still readable after delete", e.res.ID)
	case registry.IsNotFound(err):
		return nil
	default:
		return err
	}
}

// waitFor polls read until the entry is visible (or gone) or the settle
// timeout passes.
func (e *execution) waitFor(ctx context.Context, id string, visible bool) (*descriptor.Service, error) {
	interval := e.r.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	deadline := time.Now().Add(e.opts.SettleTimeout)

	for {
		svc, err := e.r.Registry.Read(ctx, id)
		switch {
		case err == nil && visible:
			return svc, nil
		case registry.IsNotFound(err) && !visible:
			return nil, nil
		case err != nil && !registry.IsNotFound(err):
			return nil, err
		}

		if time.Now().After(deadline) {
			if visible {
				return nil, failf("entry %s not readable within %v of publishing", id, e.opts.SettleTimeout)
			}
			return nil, failf("entry %s still readable %v after the will message", id, e.opts.SettleTimeout)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}
}

// locate pages through the listing until an entry named name turns up.
func (e *execution) locate(ctx context.Context, name string) (*descriptor.Service, int, error) {
	var found *descriptor.Service
	total, seen, err := registry.Walk(ctx, e.r.Registry, e.opts.PerPage, func(idx *descriptor.Index) bool {
		found, _ = idx.FindByName(name)
		return found == nil
	})
	if err != nil {
		return nil, 0, err
	}
	if found == nil {
		return nil, total, failf("no registry entry named %q among %d listed", name, seen)
	}
	return found, total, nil
}

// cleanup deletes an entry this run created when the run did not get to
// delete it itself.
func (e *execution) cleanup(ctx context.Context) {
	if !e.owned || e.res.Outcome == OutcomePassed {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	start := time.Now()
	err := e.remove(ctx)
	if registry.IsNotFound(err) {
		err = nil
	}

	sr := StepResult{Step: "cleanup", State: e.res.State, Outcome: OutcomePassed, Duration: time.Since(start)}
	if err != nil {
		sr.Outcome = classify(err)
		sr.Error = err.Error()
		e.res.Diagnostics = append(e.res.Diagnostics, fmt.Sprintf("cleanup: could not delete %s: %v", e.res.ID, err))
		logging.Error("Scenario", err, "%s: cleanup of %s failed", e.sc.Name, e.res.ID)
	} else {
		e.res.Diagnostics = append(e.res.Diagnostics, fmt.Sprintf("cleanup: deleted %s", e.res.ID))
	}
	e.res.Steps = append(e.res.Steps, sr)
	if e.onStep != nil {
		e.onStep(sr)
	}
}

func lastStep(res Result) string {
	for i := len(res.Steps) - 1; i >= 0; i-- {
		if res.Steps[i].Outcome != OutcomePassed {
			return res.Steps[i].Step
		}
	}
	return "run"
}
