package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	events []any
}

func (f *fakeSender) SendEvent(event any) {
	f.events = append(f.events, event)
}

func TestRegisterAndLookup(t *testing.T) {
	r := New()
	sender := &fakeSender{}

	r.Register(ComponentStatusHub, sender)

	got, err := r.Lookup(ComponentStatusHub)
	require.NoError(t, err)
	assert.Same(t, sender, got)
}

func TestLookupMissingReturnsError(t *testing.T) {
	r := New()
	_, err := r.Lookup(ComponentUploadEngine)
	require.Error(t, err)
}

func TestMustLookupPanicsWhenMissing(t *testing.T) {
	r := New()
	assert.Panics(t, func() {
		r.MustLookup(ComponentCollector)
	})
}

func TestSendEventNoopWithoutStatusHub(t *testing.T) {
	r := New()
	assert.NotPanics(t, func() {
		r.SendEvent("anything")
	})
}

func TestSendEventForwardsToStatusHub(t *testing.T) {
	r := New()
	sender := &fakeSender{}
	r.Register(ComponentStatusHub, sender)

	r.SendEvent("hello")

	require.Len(t, sender.events, 1)
	assert.Equal(t, "hello", sender.events[0])
}

func TestComponentTypeString(t *testing.T) {
	assert.Equal(t, "upload_engine", ComponentUploadEngine.String())
	assert.Equal(t, "unknown", ComponentType(999).String())
}
