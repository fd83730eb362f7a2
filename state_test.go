package serialcomm

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConnState_Transitions(t *testing.T) {
	var s connState
	assert.Equal(t, StateDisconnected, s.load())

	assert.False(t, s.transition(StateConnected, StateDisconnecting))
	assert.True(t, s.transition(StateDisconnected, StateConnecting))
	assert.False(t, s.transition(StateDisconnected, StateConnecting))
	assert.True(t, s.transition(StateConnecting, StateConnected))
	assert.Equal(t, StateConnected, s.load())
}

func TestConnState_OnlyOneWinner(t *testing.T) {
	var (
		s    connState
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.transition(StateDisconnected, StateConnecting) {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "disconnected", StateDisconnected.String())
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "connected", StateConnected.String())
	assert.Equal(t, "disconnecting", StateDisconnecting.String())
	assert.Equal(t, "State(9)", State(9).String())
}
