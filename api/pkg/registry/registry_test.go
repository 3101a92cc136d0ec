package registry

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeHandle struct {
	id      string
	mu      sync.Mutex
	sent    [][]byte
	sendErr error
}

func (f *fakeHandle) ID() string { return f.id }

func (f *fakeHandle) Send(message []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, message)
	return nil
}

func TestRegistryConnectDisconnectCount(t *testing.T) {
	reg := New()
	a := &fakeHandle{id: "robot-a/1"}
	b := &fakeHandle{id: "robot-b/1"}

	reg.Connect(a)
	reg.Connect(b)
	require.Equal(t, 2, reg.Count())

	reg.Disconnect(a)
	require.Equal(t, 1, reg.Count())

	// Disconnecting an already-absent handle is a no-op.
	reg.Disconnect(a)
	require.Equal(t, 1, reg.Count())
}

func TestRegistryBroadcastSwallowsSendErrors(t *testing.T) {
	reg := New()
	ok := &fakeHandle{id: "ok"}
	broken := &fakeHandle{id: "broken", sendErr: errors.New("write: broken pipe")}

	reg.Connect(ok)
	reg.Connect(broken)

	require.NotPanics(t, func() {
		reg.Broadcast([]byte("hello"))
	})

	require.Len(t, ok.sent, 1)
	require.Equal(t, "hello", string(ok.sent[0]))
}
