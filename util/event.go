package util

import (
	"sync"
)

// Event is a one-shot latch. Notify releases every current and future Wait.
type Event struct {
	once sync.Once
	c    chan struct{}
}

func NewEvent() *Event {
	return &Event{
		c: make(chan struct{}),
	}
}

func (e *Event) Notify() {
	e.once.Do(func() {
		close(e.c)
	})
}

func (e *Event) Wait() {
	<-e.c
}

func (e *Event) HasBeenNotified() bool {
	select {
	case <-e.c:
		return true
	default:
		return false
	}
}
