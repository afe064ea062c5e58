package reader

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/alecycle/internal/ir"
)

type collector struct {
	mu    sync.Mutex
	notes []Notification
}

func (c *collector) Notify(n Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notes = append(c.notes, n)
}

func (c *collector) all() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Notification(nil), c.notes...)
}

func TestMemory_LockUnknownReader(t *testing.T) {
	m := NewMemory()
	_, err := m.Lock("missing", "test")
	require.Error(t, err)
	assert.True(t, ir.IsResource(err))
}

func TestMemory_LockIsCountedPerOwner(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Define("dock"))

	h1, err := m.Lock("dock", "a")
	require.NoError(t, err)
	h2, err := m.Lock("dock", "a")
	require.NoError(t, err)
	h3, err := m.Lock("dock", "b")
	require.NoError(t, err)
	assert.Equal(t, 3, m.LockCount("dock"))

	err = m.Undefine("dock")
	require.Error(t, err)
	assert.True(t, ir.IsInUse(err))

	h1.Unlock()
	h1.Unlock() // idempotent
	h2.Unlock()
	h3.Unlock()
	assert.Equal(t, 0, m.LockCount("dock"))
	assert.NoError(t, m.Undefine("dock"))
}

func TestMemory_EmitOnlyToEnabledOperations(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Define("dock"))
	h, err := m.Lock("dock", "test")
	require.NoError(t, err)
	defer h.Unlock()

	op := &Operation{ID: "inv", Kind: OperationTags}
	c := &collector{}
	require.NoError(t, h.Define(op, c, "test"))

	m.Emit("dock", ir.Tag{EPC: "01"})
	assert.Empty(t, c.all(), "defined but disabled operation receives nothing")

	require.NoError(t, h.Enable(op))
	require.NoError(t, h.Enable(op)) // same reference, counted once
	m.Emit("dock", ir.Tag{EPC: "02"})
	require.Len(t, c.all(), 1)
	assert.Equal(t, "02", c.all()[0].Tag.EPC)
	assert.Equal(t, "dock", c.all()[0].Reader)

	require.NoError(t, h.Disable(op))
	require.NoError(t, h.Disable(op))
	m.Emit("dock", ir.Tag{EPC: "03"})
	assert.Len(t, c.all(), 1)

	enables, disables := m.Toggles("dock")
	assert.Equal(t, 1, enables)
	assert.Equal(t, 1, disables)

	require.NoError(t, h.Undefine(op, "test"))
	assert.Equal(t, 0, m.Operations("dock"))
}

func TestMemory_UndefineRequiresOwner(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Define("dock"))
	h, err := m.Lock("dock", "a")
	require.NoError(t, err)
	defer h.Unlock()

	op := &Operation{ID: "inv", Kind: OperationTags}
	require.NoError(t, h.Define(op, &collector{}, "a"))

	err = h.Undefine(op, "b")
	require.Error(t, err)
	assert.True(t, ir.IsInUse(err))
	assert.NoError(t, h.Undefine(op, "a"))
}

func TestMemory_CompositeForwardsUnderOwnName(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Define("left"))
	require.NoError(t, m.Define("right"))
	require.NoError(t, m.DefineComposite("gate", []string{"left", "right"}))
	assert.Equal(t, 1, m.LockCount("left"), "composite holds its components")

	h, err := m.Lock("gate", "test")
	require.NoError(t, err)
	op := &Operation{ID: "inv", Kind: OperationTags}
	c := &collector{}
	require.NoError(t, h.Define(op, c, "test"))
	require.NoError(t, h.Enable(op))

	m.Emit("left", ir.Tag{EPC: "01"})
	m.Emit("right", ir.Tag{EPC: "02"})

	notes := c.all()
	require.Len(t, notes, 2)
	assert.Equal(t, "gate", notes[0].Reader)
	assert.Equal(t, "gate", notes[1].Reader)

	require.NoError(t, h.Undefine(op, "test"))
	h.Unlock()
	require.NoError(t, m.Undefine("gate"))
	assert.Equal(t, 0, m.LockCount("left"))
	assert.Equal(t, 0, m.LockCount("right"))
}

func TestMemory_CompositeRollsBackOnMissingComponent(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Define("left"))

	err := m.DefineComposite("gate", []string{"left", "missing"})
	require.Error(t, err)
	assert.True(t, ir.IsResource(err))
	assert.Equal(t, 0, m.LockCount("left"), "no residual lock on the component that resolved")
	assert.NotContains(t, m.Names(), "gate")
}

func TestMemory_EmitPortCreatesEventsPerOperation(t *testing.T) {
	m := NewMemory()
	m.ResultDelay = 10 * time.Millisecond
	require.NoError(t, m.Define("io"))
	h, err := m.Lock("io", "test")
	require.NoError(t, err)
	defer h.Unlock()

	in1 := &Operation{ID: "in1", Kind: OperationPort, Pins: []ir.Pin{{Type: ir.PinInput, ID: 1}}, Results: 1}
	c := &collector{}
	require.NoError(t, h.Define(in1, c, "test"))
	require.NoError(t, h.Enable(in1))

	m.EmitPort("io", ir.PortObservation{Pin: ir.Pin{Type: ir.PinInput, ID: 2}, State: 1})
	assert.Empty(t, c.all(), "pin not observed by the operation")

	m.EmitPort("io", ir.PortObservation{Pin: ir.Pin{Type: ir.PinInput, ID: 1}, State: 1})
	notes := c.all()
	require.Len(t, notes, 1)
	require.NotNil(t, notes[0].Event)
	assert.Equal(t, "urn:havis:ale:event:port:io.in.1.1", notes[0].Event.URI)

	assert.Eventually(t, notes[0].Event.Completed, time.Second, 5*time.Millisecond)
}
