package event

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type cloneEvent struct {
	n int
}

func (c cloneEvent) Clone() interface{} { return cloneEvent{n: c.n} }

func TestMultiDeliversInRegistrationOrder(t *testing.T) {
	m := NewMulti()
	var order []int

	m.Register(listenerFunc(func(evt interface{}) { order = append(order, 1) }))
	m.Register(listenerFunc(func(evt interface{}) { order = append(order, 2) }))
	m.Register(listenerFunc(func(evt interface{}) { order = append(order, 3) }))

	m.Notify("hello")
	require.Equal(t, []int{1, 2, 3}, order)
}

func TestMultiDeregister(t *testing.T) {
	m := NewMulti()
	var got []string
	h1 := m.Register(listenerFunc(func(evt interface{}) { got = append(got, "one") }))
	m.Register(listenerFunc(func(evt interface{}) { got = append(got, "two") }))

	m.Deregister(h1)
	m.Notify("x")
	require.Equal(t, []string{"two"}, got)
	require.Equal(t, 1, m.Len())
}

func TestMultiClonesCloneableEvents(t *testing.T) {
	m := NewMulti()
	var seen []int
	m.Register(listenerFunc(func(evt interface{}) {
		ce := evt.(cloneEvent)
		ce.n++ // mutate local copy; must not affect the next listener's copy
		seen = append(seen, ce.n)
	}))
	m.Register(listenerFunc(func(evt interface{}) {
		ce := evt.(cloneEvent)
		seen = append(seen, ce.n)
	}))

	m.Notify(cloneEvent{n: 10})
	require.Equal(t, []int{11, 10}, seen)
}

func TestSinglePassThrough(t *testing.T) {
	s := NewSingle()
	var got interface{}
	s.SetListener(listenerFunc(func(evt interface{}) { got = evt }))
	s.Notify(42)
	require.Equal(t, 42, got)

	s.SetListener(nil)
	require.NotPanics(t, func() { s.Notify(43) })
	require.Equal(t, 42, got)
}

type listenerFunc func(evt interface{})

func (f listenerFunc) Notify(evt interface{}) { f(evt) }
