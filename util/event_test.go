package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEventNotifyReleasesWait(t *testing.T) {
	e := NewEvent()
	assert.False(t, e.HasBeenNotified())

	done := make(chan struct{})
	go func() {
		e.Wait()
		close(done)
	}()

	e.Notify()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after Notify")
	}
	assert.True(t, e.HasBeenNotified())

	// Notify is idempotent and Wait returns immediately afterwards.
	e.Notify()
	e.Wait()
}
