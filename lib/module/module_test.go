package module

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modryn/chathost/lib/bridge"
	"github.com/modryn/chathost/lib/transport"
)

type fakeModule struct {
	name     string
	help     string
	err      error
	panics   bool
	register func(b *bridge.Bridge)
	called   *[]string
}

func (m *fakeModule) Name() string { return m.name }
func (m *fakeModule) Help() string { return m.help }

func (m *fakeModule) Register(b *bridge.Bridge) error {
	if m.called != nil {
		*m.called = append(*m.called, m.name)
	}
	if m.panics {
		panic("register exploded")
	}
	if m.register != nil {
		m.register(b)
	}
	return m.err
}

func newRegistryBridge(t *testing.T) *bridge.Bridge {
	t.Helper()
	b := bridge.New(transport.NewMemoryClient(), nil)
	t.Cleanup(b.Close)
	return b
}

func TestRegistryRegistersInSortedOrder(t *testing.T) {
	registry := NewRegistry(nil)
	var called []string
	for _, name := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, registry.Add(&fakeModule{name: name, called: &called}))
	}

	report := registry.RegisterAll(newRegistryBridge(t))

	assert.Equal(t, []string{"alpha", "mid", "zeta"}, called)
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, report.Loaded())
	assert.Empty(t, report.Failed())
}

func TestRegistryRejectsDuplicateNames(t *testing.T) {
	registry := NewRegistry(nil)
	require.NoError(t, registry.Add(&fakeModule{name: "dup"}))
	assert.Error(t, registry.Add(&fakeModule{name: "dup"}))
}

func TestRegistryCapturesFailures(t *testing.T) {
	registry := NewRegistry(nil)
	var called []string
	require.NoError(t, registry.Add(&fakeModule{name: "a-panics", panics: true, called: &called}))
	require.NoError(t, registry.Add(&fakeModule{name: "b-errors", err: errors.New("nope"), called: &called}))
	require.NoError(t, registry.Add(&fakeModule{name: "c-works", called: &called}))

	report := registry.RegisterAll(newRegistryBridge(t))

	assert.Equal(t, []string{"a-panics", "b-errors", "c-works"}, called,
		"one failing module must not stop the rest")
	assert.Equal(t, []string{"c-works"}, report.Loaded())

	failed := report.Failed()
	require.Len(t, failed, 2)
	assert.Equal(t, OutcomeInvokeFailed, failed[0].Outcome)
	assert.Contains(t, failed[0].Err.Error(), "register exploded")
	assert.Equal(t, OutcomeInvokeFailed, failed[1].Outcome)
}

func TestRegistryHelpTexts(t *testing.T) {
	registry := NewRegistry(nil)
	require.NoError(t, registry.Add(&fakeModule{name: "b", help: "b does things"}))
	require.NoError(t, registry.Add(&fakeModule{name: "a", help: "a does things"}))
	require.NoError(t, registry.Add(&fakeModule{name: "quiet"}))

	assert.Equal(t, []string{"a does things", "b does things"}, registry.HelpTexts())
}

func TestReportAccounting(t *testing.T) {
	report := &Report{}
	report.add(Record{File: "one.lua", Outcome: OutcomeSuccess})
	report.add(Record{File: "two.lua", Outcome: OutcomeMissingEntryPoint})

	other := &Report{}
	other.add(Record{File: "three.lua", Outcome: OutcomeInvokeFailed})
	report.Merge(other)
	report.Merge(nil)

	assert.Equal(t, []string{"one.lua"}, report.Loaded())
	require.Len(t, report.Failed(), 2)
	assert.Equal(t, "two.lua", report.Failed()[0].File)
	assert.Equal(t, "three.lua", report.Failed()[1].File)
}

func TestOutcomeStrings(t *testing.T) {
	assert.Equal(t, "success", OutcomeSuccess.String())
	assert.Equal(t, "load failed", OutcomeLoadFailed.String())
	assert.Equal(t, "missing entry point", OutcomeMissingEntryPoint.String())
	assert.Equal(t, "entry point failed", OutcomeInvokeFailed.String())
}
