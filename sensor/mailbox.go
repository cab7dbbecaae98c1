package sensor

import (
	"sync"

	"github.com/WitIOT/tao/remote"
)

// mailbox is the in-process command channel coupling the sensor
// server goroutine to the measurement worker goroutine, the same
// pattern package camera uses for its server/worker split (spec
// §4.5.2, generalized here since a sensor's worker blocks on upstream
// camera frames rather than a hardware device).
type mailbox struct {
	mu     sync.Mutex
	cond   *sync.Cond
	cmd    remote.Command
	args   [remote.MaxCommandArgs]byte
	hasCmd bool
	done   bool
	err    error
}

func newMailbox() *mailbox {
	m := &mailbox{}
	m.cond = sync.NewCond(&m.mu)
	return m
}

func (m *mailbox) push(cmd remote.Command, args [remote.MaxCommandArgs]byte) {
	m.mu.Lock()
	m.cmd, m.args, m.hasCmd = cmd, args, true
	m.cond.Broadcast()
	m.mu.Unlock()
}

func (m *mailbox) popBlocking() (remote.Command, [remote.MaxCommandArgs]byte) {
	m.mu.Lock()
	for !m.hasCmd {
		m.cond.Wait()
	}
	cmd, args := m.cmd, m.args
	m.hasCmd = false
	m.mu.Unlock()
	return cmd, args
}

func (m *mailbox) tryPop() (remote.Command, [remote.MaxCommandArgs]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.hasCmd {
		return remote.CommandNone, [remote.MaxCommandArgs]byte{}, false
	}
	cmd, args := m.cmd, m.args
	m.hasCmd = false
	return cmd, args, true
}

func (m *mailbox) complete(err error) {
	m.mu.Lock()
	m.err, m.done = err, true
	m.cond.Broadcast()
	m.mu.Unlock()
}

func (m *mailbox) waitDone() error {
	m.mu.Lock()
	for !m.done {
		m.cond.Wait()
	}
	err := m.err
	m.done = false
	m.mu.Unlock()
	return err
}
