package scenario

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"regcheck/internal/compare"
	"regcheck/internal/descriptor"
	"regcheck/internal/registry"
	"regcheck/internal/registry/registrytest"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var str = descriptor.Str

func itService() *descriptor.Service {
	return &descriptor.Service{
		Name: str("_it._tcp"),
		APIs: map[string]string{"Test API": "http://test:666"},
		Docs: []descriptor.Doc{{
			APIs:        []string{"Test API"},
			Description: str("it's a test!"),
			Type:        str("application/json"),
			URL:         str("http://test:666/docu"),
		}},
	}
}

func intPtr(i int) *int { return &i }

func newTestRunner(t *testing.T, srv *registrytest.Server) (*Runner, *registry.Client) {
	t.Helper()
	client, err := registry.NewClient(srv.URL)
	require.NoError(t, err)

	r := NewRunner(client)
	r.Prober.Interval = time.Millisecond
	r.PollInterval = time.Millisecond
	return r, client
}

func writeTemplate(t *testing.T, svc *descriptor.Service) string {
	t.Helper()
	data, err := json.Marshal(svc)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "template.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func stepNames(res Result) []string {
	names := make([]string, len(res.Steps))
	for i, s := range res.Steps {
		names[i] = s.Step
	}
	return names
}

func totalRequests(srv *registrytest.Server) int {
	n := 0
	for _, op := range []string{"ping", "list", "read", "create", "delete"} {
		n += srv.Requests(op)
	}
	return n
}

func TestCanonicalCreateScenario(t *testing.T) {
	srv := registrytest.NewServer()
	defer srv.Close()
	r, _ := newTestRunner(t, srv)

	sc := Scenario{Name: "registration", Descriptor: itService(), ExpectedTotal: intPtr(1), RequireEnabled: true}
	res := r.Run(context.Background(), sc, Options{Enabled: true})

	require.Equal(t, OutcomePassed, res.Outcome, res.Error)
	assert.Equal(t, StateDone, res.State)
	assert.Empty(t, res.Mismatches)
	_, err := uuid.Parse(res.ID)
	assert.NoError(t, err, "id should be a fresh uuid")
	require.NotNil(t, res.BaselineTotal)
	assert.Equal(t, 0, *res.BaselineTotal)

	assert.Equal(t, []string{
		"load", "probe", "baseline", "create", "count-after-create",
		"read", "delete", "read-after-delete", "count-after-delete",
	}, stepNames(res))

	states := map[string]State{}
	for _, s := range res.Steps {
		states[s.Step] = s.State
	}
	assert.Equal(t, StateSubmitted, states["create"])
	assert.Equal(t, StateVerified, states["read"])
	assert.Equal(t, StateCleaned, states["delete"])
	assert.Equal(t, StateDone, states["count-after-delete"])

	assert.Equal(t, 0, srv.Len())
	assert.Equal(t, 3, srv.Requests("list"))
	assert.Equal(t, 1, srv.Requests("create"))
	assert.Equal(t, 1, srv.Requests("delete"))
}

func TestEachRunUsesAFreshID(t *testing.T) {
	srv := registrytest.NewServer()
	defer srv.Close()
	r, _ := newTestRunner(t, srv)

	sc := Scenario{Name: "registration", Descriptor: itService()}
	first := r.Run(context.Background(), sc, Options{})
	second := r.Run(context.Background(), sc, Options{})

	require.Equal(t, OutcomePassed, first.Outcome, first.Error)
	require.Equal(t, OutcomePassed, second.Outcome, second.Error)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestSubmittedDescriptorIsNotMutated(t *testing.T) {
	srv := registrytest.NewServer()
	defer srv.Close()
	r, _ := newTestRunner(t, srv)

	svc := itService()
	svc.ID = "template-id"
	res := r.Run(context.Background(), Scenario{Name: "x", Descriptor: svc}, Options{})

	require.Equal(t, OutcomePassed, res.Outcome, res.Error)
	assert.Equal(t, "template-id", svc.ID)
	assert.NotEqual(t, "template-id", res.ID)
}

func TestDisabledScenarioIsSkipped(t *testing.T) {
	srv := registrytest.NewServer()
	defer srv.Close()
	r, _ := newTestRunner(t, srv)

	res := r.Run(context.Background(), Scenario{Name: "gated", Descriptor: itService(), RequireEnabled: true}, Options{})

	assert.Equal(t, OutcomeSkipped, res.Outcome)
	assert.Equal(t, StateSkipped, res.State)
	assert.Empty(t, res.Steps)
	assert.Equal(t, 0, totalRequests(srv))
}

func TestConfigurationErrorsHappenBeforeAnyNetworkCall(t *testing.T) {
	tests := []struct {
		name     string
		sc       Scenario
		contains string
	}{
		{
			name:     "missing template",
			sc:       Scenario{Name: "t", Template: filepath.Join(t.TempDir(), "nope.json")},
			contains: "filename",
		},
		{
			name:     "no descriptor",
			sc:       Scenario{Name: "t"},
			contains: "neither a template file nor an inline descriptor",
		},
		{
			name:     "unnamed descriptor",
			sc:       Scenario{Name: "t", Descriptor: &descriptor.Service{}},
			contains: "descriptor has no name",
		},
		{
			name:     "unknown variant",
			sc:       Scenario{Name: "t", Descriptor: itService(), Variant: "update"},
			contains: "variant",
		},
		{
			name:     "mqtt without publisher",
			sc:       Scenario{Name: "t", Descriptor: itService(), Transport: TransportMQTT},
			contains: "mqtt_broker",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := registrytest.NewServer()
			defer srv.Close()
			r, _ := newTestRunner(t, srv)

			res := r.Run(context.Background(), tt.sc, Options{ProbeURL: srv.URL + "/health"})

			assert.Equal(t, OutcomeError, res.Outcome)
			assert.Equal(t, StateFailed, res.State)
			assert.Equal(t, []string{"load"}, stepNames(res))
			assert.Contains(t, res.Error, tt.contains)
			assert.Equal(t, 0, totalRequests(srv))
		})
	}
}

func TestCreateMustEchoID(t *testing.T) {
	srv := registrytest.NewServer()
	defer srv.Close()
	srv.DropIDs = true
	r, _ := newTestRunner(t, srv)

	res := r.Run(context.Background(), Scenario{Name: "x", Descriptor: itService()}, Options{})

	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Contains(t, res.Error, "does not echo the submitted id")
	assert.Equal(t, "cleanup", res.Steps[len(res.Steps)-1].Step)
	assert.Contains(t, res.Diagnostics, "cleanup: deleted "+res.ID)
	assert.Equal(t, 0, srv.Len(), "failed run must not leave its entry behind")
}

func TestInlineNumericMetaMatchesReadBack(t *testing.T) {
	srv := registrytest.NewServer()
	defer srv.Close()
	r, _ := newTestRunner(t, srv)

	svc := itService()
	svc.Meta = map[string]any{"version": 2, "limits": map[string]any{"rps": int64(10)}}

	res := r.Run(context.Background(), Scenario{Name: "meta", Descriptor: svc}, Options{})

	assert.Equal(t, OutcomePassed, res.Outcome, res.Error)
	assert.Empty(t, res.Mismatches)
	assert.Equal(t, 2, svc.Meta["version"], "caller's descriptor must not change")
}

// staleCreate answers create calls with a descriptor other than the one it
// stores.
type staleCreate struct {
	registry.Registry
}

func (s staleCreate) Create(ctx context.Context, id string, svc *descriptor.Service) (*descriptor.Service, error) {
	stored, err := s.Registry.Create(ctx, id, svc)
	if err != nil {
		return nil, err
	}
	stored.Description = str("answered, not stored")
	return stored, nil
}

func TestReadBackMustMatchCreateResponse(t *testing.T) {
	srv := registrytest.NewServer()
	defer srv.Close()
	r, client := newTestRunner(t, srv)
	r.Registry = staleCreate{Registry: client}

	res := r.Run(context.Background(), Scenario{Name: "x", Descriptor: itService()}, Options{})

	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Contains(t, res.Error, "read-back differs from the create response")
	require.Len(t, res.Mismatches, 1)
	assert.Equal(t, "description", res.Mismatches[0].Field)
	assert.Equal(t, compare.PresenceMismatch, res.Mismatches[0].Kind)
	assert.Equal(t, 0, srv.Len())
}

func TestRoundTripReportsEnrichment(t *testing.T) {
	srv := registrytest.NewServer()
	defer srv.Close()
	srv.EnrichAPIs = map[string]string{"Extra": "http://extra"}
	r, _ := newTestRunner(t, srv)

	res := r.Run(context.Background(), Scenario{Name: "x", Descriptor: itService()}, Options{})

	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Contains(t, res.Error, "read:")
	require.Len(t, res.Mismatches, 1)
	assert.Equal(t, "apis", res.Mismatches[0].Field)
	assert.Equal(t, compare.ValueMismatch, res.Mismatches[0].Kind)
	assert.Equal(t, 0, srv.Len())
}

func TestTemplateFileToleratesEnrichment(t *testing.T) {
	srv := registrytest.NewServer()
	defer srv.Close()
	srv.EnrichAPIs = map[string]string{"Extra": "http://extra"}
	r, _ := newTestRunner(t, srv)

	res := r.Run(context.Background(), Scenario{Name: "x", Template: writeTemplate(t, itService())}, Options{})

	assert.Equal(t, OutcomePassed, res.Outcome, res.Error)
}

func TestEntryStillReadableAfterDelete(t *testing.T) {
	srv := registrytest.NewServer()
	defer srv.Close()
	srv.IgnoreDeletes = true
	r, _ := newTestRunner(t, srv)

	res := r.Run(context.Background(), Scenario{Name: "x", Descriptor: itService()}, Options{})

	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Contains(t, res.Error, "read-after-delete")
	assert.Contains(t, res.Error, "still readable")
}

func TestRegistryFailuresAreErrors(t *testing.T) {
	tests := []struct {
		op   string
		step string
	}{
		{op: "list", step: "baseline"},
		{op: "create", step: "create"},
		{op: "read", step: "read"},
		{op: "delete", step: "delete"},
	}

	for _, tt := range tests {
		t.Run(tt.op, func(t *testing.T) {
			srv := registrytest.NewServer()
			defer srv.Close()
			srv.FailNext(tt.op, http.StatusInternalServerError)
			r, _ := newTestRunner(t, srv)

			res := r.Run(context.Background(), Scenario{Name: "x", Descriptor: itService()}, Options{})

			assert.Equal(t, OutcomeError, res.Outcome)
			assert.Equal(t, StateFailed, res.State)
			assert.Contains(t, res.Error, tt.step+":")
			assert.Contains(t, res.Error, "500")
			assert.Equal(t, 0, srv.Len())
		})
	}
}

func TestUnreachableRegistryIsAnError(t *testing.T) {
	r := NewRunner(mustClient(t, "http://127.0.0.1:1"))

	res := r.Run(context.Background(), Scenario{Name: "x", Descriptor: itService()}, Options{})

	assert.Equal(t, OutcomeError, res.Outcome)
	assert.Contains(t, res.Error, "transport error")
}

func mustClient(t *testing.T, base string) *registry.Client {
	t.Helper()
	c, err := registry.NewClient(base, registry.WithTimeout(time.Second))
	require.NoError(t, err)
	return c
}

func TestBaselineIsRelative(t *testing.T) {
	srv := registrytest.NewServer()
	defer srv.Close()
	srv.Seed(descriptor.Service{ID: "other", Name: str("_other._tcp")})
	r, _ := newTestRunner(t, srv)

	res := r.Run(context.Background(), Scenario{Name: "x", Descriptor: itService()}, Options{})
	require.Equal(t, OutcomePassed, res.Outcome, res.Error)
	assert.Equal(t, 1, *res.BaselineTotal)

	res = r.Run(context.Background(), Scenario{Name: "x", Descriptor: itService(), ExpectedTotal: intPtr(1)}, Options{})
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Contains(t, res.Error, "list total is 2, expected 1")
	assert.Equal(t, 1, srv.Len())
}

func TestMiscountedTotalFails(t *testing.T) {
	srv := registrytest.NewServer()
	defer srv.Close()
	r, client := newTestRunner(t, srv)

	// A second entry appears between the baseline and the count.
	r.NewID = func() string {
		_, err := client.Create(context.Background(), "intruder", itService())
		require.NoError(t, err)
		return uuid.NewString()
	}

	res := r.Run(context.Background(), Scenario{Name: "x", Descriptor: itService()}, Options{})
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Contains(t, res.Error, "list total is 2 after create, expected 1")
}

func TestProbeTimeoutIsOnlyAWarning(t *testing.T) {
	srv := registrytest.NewServer()
	defer srv.Close()
	srv.FailNext("ping", http.StatusServiceUnavailable)
	srv.FailNext("ping", http.StatusServiceUnavailable)
	r, _ := newTestRunner(t, srv)

	res := r.Run(context.Background(), Scenario{Name: "x", Descriptor: itService()},
		Options{ProbeURL: srv.URL + "/health", ProbeTimeout: 2})

	require.Equal(t, OutcomePassed, res.Outcome, res.Error)
	require.NotNil(t, res.Probe)
	assert.False(t, res.Probe.Available)
	assert.Equal(t, 2, res.Probe.Attempts)
	assert.Contains(t, res.Diagnostics[0], "not available after 2 attempt(s), continuing")
}

func TestProbeWaitsForRegistry(t *testing.T) {
	srv := registrytest.NewServer()
	defer srv.Close()
	srv.FailNext("ping", http.StatusServiceUnavailable)
	r, _ := newTestRunner(t, srv)

	res := r.Run(context.Background(), Scenario{Name: "x", Descriptor: itService()},
		Options{ProbeURL: srv.URL + "/health", ProbeTimeout: 10})

	require.Equal(t, OutcomePassed, res.Outcome, res.Error)
	assert.True(t, res.Probe.Available)
	assert.Equal(t, 2, res.Probe.Attempts)
	assert.Empty(t, res.Diagnostics)
}

func TestExistingVariant(t *testing.T) {
	stored := *itService()
	stored.ID = "pre-registered"
	stored.APIs = map[string]string{"Test API": "http://elsewhere:1", "Admin": "http://admin"}

	t.Run("found by name", func(t *testing.T) {
		srv := registrytest.NewServer()
		defer srv.Close()
		srv.Seed(stored)
		r, _ := newTestRunner(t, srv)

		res := r.Run(context.Background(), Scenario{
			Name:          "existing",
			Variant:       VariantExisting,
			Template:      writeTemplate(t, itService()),
			ExpectedTotal: intPtr(1),
		}, Options{})

		require.Equal(t, OutcomePassed, res.Outcome, res.Error)
		assert.Equal(t, StateDone, res.State)
		assert.Equal(t, "pre-registered", res.ID)
		assert.Equal(t, []string{"load", "probe", "locate", "compare"}, stepNames(res))
		assert.Equal(t, 0, srv.Requests("delete"))
		assert.Equal(t, 1, srv.Len())
	})

	t.Run("found on a later page", func(t *testing.T) {
		srv := registrytest.NewServer()
		defer srv.Close()
		for _, id := range []string{"a", "b", "c", "d"} {
			srv.Seed(descriptor.Service{ID: id, Name: str("_" + id + "._tcp")})
		}
		srv.Seed(stored)
		r, _ := newTestRunner(t, srv)

		res := r.Run(context.Background(), Scenario{Name: "existing", Variant: VariantExisting, Descriptor: itService()},
			Options{PerPage: 2})

		require.Equal(t, OutcomePassed, res.Outcome, res.Error)
		assert.Equal(t, 3, srv.Requests("list"))
	})

	t.Run("not found", func(t *testing.T) {
		srv := registrytest.NewServer()
		defer srv.Close()
		srv.Seed(descriptor.Service{ID: "a", Name: str("_a._tcp")})
		r, _ := newTestRunner(t, srv)

		res := r.Run(context.Background(), Scenario{Name: "existing", Variant: VariantExisting, Descriptor: itService()}, Options{})

		assert.Equal(t, OutcomeFailed, res.Outcome)
		assert.Contains(t, res.Error, `no registry entry named "_it._tcp" among 1 listed`)
	})

	t.Run("mismatching docs", func(t *testing.T) {
		srv := registrytest.NewServer()
		defer srv.Close()
		changed := *stored.Clone()
		changed.Docs[0].Type = str("text/html")
		srv.Seed(changed)
		r, _ := newTestRunner(t, srv)

		res := r.Run(context.Background(), Scenario{Name: "existing", Variant: VariantExisting, Descriptor: itService()}, Options{})

		assert.Equal(t, OutcomeFailed, res.Outcome)
		require.Len(t, res.Mismatches, 1)
		assert.Equal(t, "docs[0]", res.Mismatches[0].Field)
		assert.Equal(t, 1, srv.Len())
	})
}

// restPublisher stands in for an MQTT registrar by going through the API.
type restPublisher struct {
	client       *registry.Client
	registered   []string
	deregistered []string
}

func (p *restPublisher) Register(ctx context.Context, svc *descriptor.Service) error {
	p.registered = append(p.registered, svc.ID)
	_, err := p.client.Create(ctx, svc.ID, svc)
	return err
}

func (p *restPublisher) Deregister(ctx context.Context, svc *descriptor.Service) error {
	p.deregistered = append(p.deregistered, svc.ID)
	return p.client.Delete(ctx, svc.ID)
}

func TestMQTTTransport(t *testing.T) {
	srv := registrytest.NewServer()
	defer srv.Close()
	r, client := newTestRunner(t, srv)
	pub := &restPublisher{client: client}
	r.Publisher = pub

	res := r.Run(context.Background(), Scenario{Name: "mqtt", Descriptor: itService(), Transport: TransportMQTT}, Options{})

	require.Equal(t, OutcomePassed, res.Outcome, res.Error)
	assert.Equal(t, []string{res.ID}, pub.registered)
	assert.Equal(t, []string{res.ID}, pub.deregistered)
	assert.Equal(t, 0, srv.Len())
}

// silentPublisher accepts messages that never reach the registry.
type silentPublisher struct{}

func (silentPublisher) Register(context.Context, *descriptor.Service) error   { return nil }
func (silentPublisher) Deregister(context.Context, *descriptor.Service) error { return nil }

func TestMQTTRegistrationNeverVisible(t *testing.T) {
	srv := registrytest.NewServer()
	defer srv.Close()
	r, _ := newTestRunner(t, srv)
	r.Publisher = silentPublisher{}

	res := r.Run(context.Background(), Scenario{Name: "mqtt", Descriptor: itService(), Transport: TransportMQTT},
		Options{SettleTimeout: 20 * time.Millisecond})

	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Contains(t, res.Error, "not readable within")
	assert.GreaterOrEqual(t, srv.Requests("read"), 2)
}

func TestScenarioTimeout(t *testing.T) {
	srv := registrytest.NewServer()
	defer srv.Close()
	r, _ := newTestRunner(t, srv)
	r.Publisher = silentPublisher{}

	res := r.Run(context.Background(), Scenario{
		Name:       "mqtt",
		Descriptor: itService(),
		Transport:  TransportMQTT,
		Timeout:    30 * time.Millisecond,
	}, Options{SettleTimeout: time.Hour})

	assert.Equal(t, OutcomeError, res.Outcome)
	assert.Contains(t, res.Error, "context deadline exceeded")
}

func TestDefaultsAreApplied(t *testing.T) {
	srv := registrytest.NewServer()
	defer srv.Close()
	r, _ := newTestRunner(t, srv)

	res := r.Run(context.Background(), Scenario{Name: "x", Descriptor: itService()}, Options{})
	assert.Equal(t, VariantCreate, res.Scenario.Variant)
	assert.Nil(t, res.Probe)
}
