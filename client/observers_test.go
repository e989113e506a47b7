package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestObserversDispatchInRegistrationOrder(t *testing.T) {
	o := newObservers()

	var order []int
	o.On("x", func(Event) { order = append(order, 1) })
	o.On("x", func(Event) { order = append(order, 2) })
	o.On("y", func(Event) { order = append(order, 99) })

	o.dispatch(Event{Type: "x"})
	assert.Equal(t, []int{1, 2}, order)
}

func TestObserversOff(t *testing.T) {
	o := newObservers()

	var calls int
	id := o.On("x", func(Event) { calls++ })
	o.dispatch(Event{Type: "x"})
	o.Off("x", id)
	o.dispatch(Event{Type: "x"})
	assert.Equal(t, 1, calls)

	// Removing again is a no-op.
	o.Off("x", id)
	o.Off("x", 12345)
}

func TestObserversOffDuringDispatch(t *testing.T) {
	o := newObservers()

	var first, second int
	var firstID int
	firstID = o.On("x", func(Event) {
		first++
		o.Off("x", firstID)
	})
	o.On("x", func(Event) { second++ })

	o.dispatch(Event{Type: "x"})
	o.dispatch(Event{Type: "x"})

	assert.Equal(t, 1, first, "handler that removed itself runs once")
	assert.Equal(t, 2, second)
}

func TestObserversOnDuringDispatch(t *testing.T) {
	o := newObservers()

	var added int
	o.On("x", func(Event) {
		o.On("x", func(Event) { added++ })
	})

	o.dispatch(Event{Type: "x"})
	assert.Zero(t, added, "handlers added mid-dispatch see the next event")

	o.dispatch(Event{Type: "x"})
	assert.Equal(t, 1, added)
}
