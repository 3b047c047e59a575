package controller

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ajitpratap0/recordflow/pkg/component"
	"github.com/ajitpratap0/recordflow/pkg/errors"
)

var (
	sizeProp = component.NewPropertyDescriptor("cache.size").
			DefaultValue("10").
			AddValidator(component.PositiveInteger).
			Build()
	depProp = component.NewPropertyDescriptor("dependency").
		IdentifiesControllerService(true).
		Build()
)

type fakeService struct {
	inits    *atomic.Int32
	fail     bool
	size     int
	dep      component.ControllerService
	shutdown atomic.Bool
}

func (s *fakeService) PropertyDescriptors() []*component.PropertyDescriptor {
	return []*component.PropertyDescriptor{sizeProp, depProp}
}

func (s *fakeService) Initialize(ctx component.InitializationContext) error {
	s.inits.Add(1)
	time.Sleep(5 * time.Millisecond)
	if s.fail {
		return errors.New(errors.ErrorTypeInitialization, "connect failed")
	}
	size, err := ctx.GetPropertyValue("cache.size").AsInt()
	if err != nil {
		return err
	}
	s.size = size
	if pv := ctx.GetPropertyValue("dependency"); pv.IsSet() {
		s.dep, _ = ctx.GetControllerService(pv.AsString())
	}
	return nil
}

func (s *fakeService) Shutdown(context.Context) error {
	s.shutdown.Store(true)
	return nil
}

type panicService struct{}

func (panicService) PropertyDescriptors() []*component.PropertyDescriptor { return nil }
func (panicService) Initialize(component.InitializationContext) error  { panic("boom") }

type descriptorPanicService struct{ panicService }

func (descriptorPanicService) PropertyDescriptors() []*component.PropertyDescriptor {
	panic("no descriptors")
}

// gatedService blocks in Initialize until gate is closed.
type gatedService struct {
	started  chan struct{}
	gate     chan struct{}
	shutdown atomic.Bool
}

func (s *gatedService) PropertyDescriptors() []*component.PropertyDescriptor { return nil }

func (s *gatedService) Initialize(component.InitializationContext) error {
	close(s.started)
	<-s.gate
	return nil
}

func (s *gatedService) Shutdown(context.Context) error {
	s.shutdown.Store(true)
	return nil
}

func testCatalog(t *testing.T, inits *atomic.Int32) *Catalog {
	t.Helper()
	c := NewCatalog()
	require.NoError(t, c.Register("test.ok", func() component.ControllerService {
		return &fakeService{inits: inits}
	}))
	require.NoError(t, c.Register("test.fail", func() component.ControllerService {
		return &fakeService{inits: inits, fail: true}
	}))
	require.NoError(t, c.Register("test.panic", func() component.ControllerService {
		return panicService{}
	}))
	require.NoError(t, c.Register("test.factory_panic", func() component.ControllerService {
		panic("factory exploded")
	}))
	require.NoError(t, c.Register("test.descriptor_panic", func() component.ControllerService {
		return descriptorPanicService{}
	}))
	return c
}

func newTestRegistry(t *testing.T, configs []ServiceConfiguration) (*Registry, *atomic.Int32, *observer.ObservedLogs) {
	inits := &atomic.Int32{}
	core, logs := observer.New(zapcore.DebugLevel)
	r := NewRegistry(configs, WithCatalog(testCatalog(t, inits)), WithLogger(zap.New(core)))
	return r, inits, logs
}

func TestMissingServiceIsAbsent(t *testing.T) {
	r, _, _ := newTestRegistry(t, nil)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc, ok := r.GetControllerService("missing")
			assert.False(t, ok)
			assert.Nil(t, svc)
		}()
	}
	wg.Wait()
	assert.Equal(t, StateUnresolved, r.State("missing"))
}

func TestConcurrentResolutionInitializesOnce(t *testing.T) {
	r, inits, _ := newTestRegistry(t, []ServiceConfiguration{
		{Identifier: "cache", Class: "test.ok", Configuration: map[string]string{"cache.size": "64"}},
	})

	const n = 16
	results := make([]component.ControllerService, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			svc, ok := r.GetControllerService("cache")
			assert.True(t, ok)
			results[i] = svc
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), inits.Load())
	for _, svc := range results {
		assert.Same(t, results[0], svc)
	}
	assert.Equal(t, 64, results[0].(*fakeService).size)
	assert.Equal(t, StateInitialized, r.State("cache"))
	assert.Equal(t, []string{"cache"}, r.Initialized())
}

func TestFailedServiceIsNotRetried(t *testing.T) {
	r, inits, logs := newTestRegistry(t, []ServiceConfiguration{
		{Identifier: "db", Class: "test.fail"},
	})

	_, ok := r.GetControllerService("db")
	assert.False(t, ok)
	_, ok = r.GetControllerService("db")
	assert.False(t, ok)

	assert.Equal(t, int32(1), inits.Load())
	assert.Equal(t, StateFailed, r.State("db"))

	failures := logs.FilterMessage("failed to initialize controller service").All()
	require.Len(t, failures, 1)
	assert.Equal(t, "db", failures[0].ContextMap()["identifier"])
}

func TestFailureIsIsolatedPerEntry(t *testing.T) {
	r, _, _ := newTestRegistry(t, []ServiceConfiguration{
		{Identifier: "cache", Class: "test.ok", Configuration: map[string]string{"cache.size": "-1"}},
		{Identifier: "broken", Class: "no.such.class"},
		{Identifier: "crash", Class: "test.panic"},
		{Identifier: "cache", Class: "test.ok", Configuration: map[string]string{"cache.size": "8"}},
	})

	_, ok := r.GetControllerService("broken")
	assert.False(t, ok)
	_, ok = r.GetControllerService("crash")
	assert.False(t, ok)

	svc, ok := r.GetControllerService("cache")
	require.True(t, ok)
	assert.Equal(t, 8, svc.(*fakeService).size)
	assert.Equal(t, []string{"cache", "broken", "crash"}, r.Identifiers())
	assert.ElementsMatch(t, []string{"broken", "crash"}, r.ResolveAll())
}

func TestUnknownPropertyFailsEntry(t *testing.T) {
	r, _, _ := newTestRegistry(t, []ServiceConfiguration{
		{Identifier: "cache", Class: "test.ok", Configuration: map[string]string{"unknown": "x"}},
	})
	_, ok := r.GetControllerService("cache")
	assert.False(t, ok)
	assert.Equal(t, StateFailed, r.State("cache"))
}

func TestDependencyResolution(t *testing.T) {
	r, _, _ := newTestRegistry(t, []ServiceConfiguration{
		{Identifier: "front", Class: "test.ok", Configuration: map[string]string{"dependency": "back"}},
		{Identifier: "back", Class: "test.ok"},
	})

	front, ok := r.GetControllerService("front")
	require.True(t, ok)
	back, ok := r.GetControllerService("back")
	require.True(t, ok)
	assert.Same(t, back, front.(*fakeService).dep)
}

func TestCircularDependencyResolvesAbsent(t *testing.T) {
	r, inits, logs := newTestRegistry(t, []ServiceConfiguration{
		{Identifier: "a", Class: "test.ok", Configuration: map[string]string{"dependency": "b"}},
		{Identifier: "b", Class: "test.ok", Configuration: map[string]string{"dependency": "a"}},
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		a, ok := r.GetControllerService("a")
		require.True(t, ok)
		b := a.(*fakeService).dep
		require.NotNil(t, b)
		assert.Nil(t, b.(*fakeService).dep)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("circular dependency deadlocked")
	}
	assert.Equal(t, int32(2), inits.Load())
	assert.Equal(t, 1, logs.FilterMessage("circular controller service dependency").Len())
}

func TestConcurrentCircularDependencyDoesNotDeadlock(t *testing.T) {
	for i := 0; i < 20; i++ {
		r, inits, _ := newTestRegistry(t, []ServiceConfiguration{
			{Identifier: "a", Class: "test.ok", Configuration: map[string]string{"dependency": "b"}},
			{Identifier: "b", Class: "test.ok", Configuration: map[string]string{"dependency": "a"}},
		})

		var a, b component.ControllerService
		var okA, okB bool
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			a, okA = r.GetControllerService("a")
		}()
		go func() {
			defer wg.Done()
			b, okB = r.GetControllerService("b")
		}()

		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("concurrent circular dependency deadlocked")
		}

		require.True(t, okA)
		require.True(t, okB)
		assert.Equal(t, int32(2), inits.Load())
		// Exactly one side of the cycle sees its dependency as absent.
		depA, depB := a.(*fakeService).dep, b.(*fakeService).dep
		assert.True(t, (depA == nil) != (depB == nil))
		assert.Empty(t, r.waits)
	}
}

func TestPanicDuringResolutionFailsEntry(t *testing.T) {
	tests := []struct {
		name  string
		class string
	}{
		{name: "factory", class: "test.factory_panic"},
		{name: "property descriptors", class: "test.descriptor_panic"},
		{name: "initialize", class: "test.panic"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _, logs := newTestRegistry(t, []ServiceConfiguration{
				{Identifier: "svc", Class: tt.class},
			})

			var svc component.ControllerService
			var ok bool
			assert.NotPanics(t, func() { svc, ok = r.GetControllerService("svc") })
			assert.False(t, ok)
			assert.Nil(t, svc)
			assert.Equal(t, StateFailed, r.State("svc"))

			assert.NotPanics(t, func() { _, ok = r.GetControllerService("svc") })
			assert.False(t, ok)
			assert.Equal(t, 1, logs.FilterMessage("failed to initialize controller service").Len())
		})
	}
}

func TestCloseDuringInitializationDiscardsService(t *testing.T) {
	gated := &gatedService{started: make(chan struct{}), gate: make(chan struct{})}
	c := NewCatalog()
	require.NoError(t, c.Register("test.gated", func() component.ControllerService { return gated }))
	r := NewRegistry([]ServiceConfiguration{{Identifier: "slow", Class: "test.gated"}},
		WithCatalog(c), WithLogger(zap.NewNop()))

	type result struct {
		svc component.ControllerService
		ok  bool
	}
	res := make(chan result, 1)
	go func() {
		svc, ok := r.GetControllerService("slow")
		res <- result{svc, ok}
	}()

	<-gated.started
	require.NoError(t, r.Close(context.Background()))
	close(gated.gate)

	select {
	case got := <-res:
		assert.False(t, got.ok)
		assert.Nil(t, got.svc)
	case <-time.After(5 * time.Second):
		t.Fatal("lookup did not return after close")
	}
	assert.True(t, gated.shutdown.Load())
	assert.Empty(t, r.Initialized())
	assert.Equal(t, StateFailed, r.State("slow"))
}

func TestAddConfigurations(t *testing.T) {
	r, _, _ := newTestRegistry(t, []ServiceConfiguration{
		{Identifier: "cache", Class: "test.ok"},
	})
	first, ok := r.GetControllerService("cache")
	require.True(t, ok)

	_, ok = r.GetControllerService("late")
	assert.False(t, ok)

	r.AddConfigurations(
		ServiceConfiguration{Identifier: "late", Class: "test.ok"},
		ServiceConfiguration{Identifier: "cache", Class: "test.ok", Configuration: map[string]string{"cache.size": "99"}},
	)

	late, ok := r.GetControllerService("late")
	require.True(t, ok)
	assert.NotNil(t, late)

	again, ok := r.GetControllerService("cache")
	require.True(t, ok)
	assert.Same(t, first, again)
	assert.Equal(t, 10, again.(*fakeService).size)
	assert.Len(t, r.Configurations(), 3)
}

func TestCloseShutsDownServices(t *testing.T) {
	r, _, _ := newTestRegistry(t, []ServiceConfiguration{
		{Identifier: "cache", Class: "test.ok"},
	})
	svc, ok := r.GetControllerService("cache")
	require.True(t, ok)

	require.NoError(t, r.Close(context.Background()))
	assert.True(t, svc.(*fakeService).shutdown.Load())

	_, ok = r.GetControllerService("cache")
	assert.False(t, ok)
	assert.NoError(t, r.Close(context.Background()))
}

func TestInitializationErrorIsWrapped(t *testing.T) {
	inits := &atomic.Int32{}
	r := NewRegistry(nil, WithCatalog(testCatalog(t, inits)), WithLogger(zap.NewNop()))
	_, err := r.instantiate(ServiceConfiguration{Identifier: "db", Class: "test.fail"}, []string{"db"})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeResolution))
	assert.True(t, errors.HasType(err, errors.ErrorTypeInitialization))

	_, err = r.instantiate(ServiceConfiguration{Identifier: "crash", Class: "test.panic"}, []string{"crash"})
	assert.True(t, errors.IsType(err, errors.ErrorTypeInitialization))

	_, err = r.instantiate(ServiceConfiguration{Identifier: "x", Class: "nope"}, []string{"x"})
	assert.True(t, errors.HasType(err, errors.ErrorTypeNotFound))
	assert.False(t, stderrors.Is(err, context.Canceled))
}

func TestCatalog(t *testing.T) {
	c := NewCatalog()
	factory := func() component.ControllerService { return panicService{} }
	require.NoError(t, c.Register("b", factory))
	require.NoError(t, c.Register("a", factory))

	err := c.Register("a", factory)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
	assert.Equal(t, []string{"a", "b"}, c.List())
	assert.True(t, c.Has("a"))
	assert.False(t, c.Has("c"))

	_, err = c.Create("c")
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "UNRESOLVED", StateUnresolved.String())
	assert.Equal(t, "RESOLVING", StateResolving.String())
	assert.Equal(t, "INITIALIZED", StateInitialized.String())
	assert.Equal(t, "FAILED", StateFailed.String())
}
