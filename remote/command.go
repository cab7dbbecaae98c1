package remote

import (
	"context"

	"github.com/WitIOT/tao/clock"
	"github.com/WitIOT/tao/ipc"
	"github.com/WitIOT/tao/shm"
)

// Object is a process's handle to an attached remote object: the mapped
// segment plus a typed view of its header and ring.
type Object struct {
	Segment *shm.Segment
	header  *Header
}

// Header returns the object's shared header.
func (o *Object) Header() *Header { return o.header }

// SubmitSimple runs the client side of the command protocol (spec §4.3)
// for an argument-less command: wait for the server to be idle, publish
// the command, and return the command number a matching WaitCommand call
// should watch for.
func (o *Object) SubmitSimple(ctx context.Context, deadline clock.Deadline, cmd Command) (int64, ipc.Status) {
	return o.submit(ctx, deadline, cmd, nil)
}

// BeginComplex runs steps 1-2 of the client protocol for a command that
// carries arguments: it waits for the server to be idle and returns a
// buffer the caller writes the argument payload into, keeping the header
// mutex held. The caller MUST follow with FinishComplex.
func (o *Object) BeginComplex(ctx context.Context, deadline clock.Deadline) ([]byte, ipc.Status) {
	status := o.header.Mutex.LockUntil(ctx, deadline)
	if status != ipc.OK {
		return nil, status
	}
	for o.header.Command != int32(CommandNone) || !acceptsCommand(State(o.header.State.Load())) {
		status = o.header.Cond.WaitUntil(ctx, &o.header.Mutex, deadline)
		if status != ipc.OK {
			o.header.Mutex.Unlock()
			return nil, status
		}
	}
	return o.header.CommandArgs[:], ipc.OK
}

// FinishComplex completes a BeginComplex call: it publishes cmd and
// returns the command number to wait on, releasing the mutex BeginComplex
// acquired.
func (o *Object) FinishComplex(cmd Command) int64 {
	num := o.header.Ncmds.Load() + 1
	o.header.Command = int32(cmd)
	o.header.Cond.Broadcast()
	o.header.Mutex.Unlock()
	return num
}

func (o *Object) submit(ctx context.Context, deadline clock.Deadline, cmd Command, args []byte) (int64, ipc.Status) {
	status := o.header.Mutex.LockUntil(ctx, deadline)
	if status != ipc.OK {
		return 0, status
	}
	for o.header.Command != int32(CommandNone) || !acceptsCommand(State(o.header.State.Load())) {
		status = o.header.Cond.WaitUntil(ctx, &o.header.Mutex, deadline)
		if status != ipc.OK {
			o.header.Mutex.Unlock()
			return 0, status
		}
	}
	if len(args) > 0 {
		copy(o.header.CommandArgs[:], args)
	}
	num := o.header.Ncmds.Load() + 1
	o.header.Command = int32(cmd)
	o.header.Cond.Broadcast()
	o.header.Mutex.Unlock()
	return num, ipc.OK
}

// WaitCommand blocks until the server has completed command number num
// (i.e. Ncmds has reached at least num), or ctx/deadline cuts it short.
func (o *Object) WaitCommand(ctx context.Context, num int64, deadline clock.Deadline) ipc.Status {
	status := o.header.Mutex.LockUntil(ctx, deadline)
	if status != ipc.OK {
		return status
	}
	for o.header.Ncmds.Load() < num {
		status = o.header.Cond.WaitUntil(ctx, &o.header.Mutex, deadline)
		if status != ipc.OK {
			o.header.Mutex.Unlock()
			return status
		}
	}
	o.header.Mutex.Unlock()
	return ipc.OK
}

// State returns the server's currently published state.
func (o *Object) State() State { return State(o.header.State.Load()) }

// WaitForCommand runs the server side of the event loop's command wait
// (spec §4.3 steps 1-3): block until a command is posted or the object is
// killed, copy out its arguments, and announce the executing state. A
// server calls CompleteCommand once it has finished acting on it.
func (o *Object) WaitForCommand(ctx context.Context, deadline clock.Deadline) (num int64, cmd Command, args [MaxCommandArgs]byte, status ipc.Status) {
	status = o.header.Mutex.LockUntil(ctx, deadline)
	if status != ipc.OK {
		return
	}
	for o.header.Command == int32(CommandNone) && State(o.header.State.Load()) != StateQuitting {
		status = o.header.Cond.WaitUntil(ctx, &o.header.Mutex, deadline)
		if status != ipc.OK {
			o.header.Mutex.Unlock()
			return
		}
	}
	cmd = Command(o.header.Command)
	args = o.header.CommandArgs
	num = o.header.Ncmds.Load() + 1
	if cmd != CommandNone {
		o.header.State.Store(int32(ExecutingState(cmd)))
	}
	o.header.Mutex.Unlock()
	return num, cmd, args, ipc.OK
}

// CompleteCommand runs step 4 of the server event loop: clear the pending
// command, publish the state the server settles into, and advance Ncmds so
// a waiting client's WaitCommand unblocks.
func (o *Object) CompleteCommand(num int64, next State) {
	_ = o.header.Mutex.Lock(context.Background())
	o.header.Command = int32(CommandNone)
	o.header.State.Store(int32(next))
	o.header.Ncmds.Store(num)
	o.header.Cond.Broadcast()
	o.header.Mutex.Unlock()
}

// MarkUnreachable publishes the terminal Unreachable state and wakes every
// waiter, once a server's event loop has actually exited (spec §4.3: kill
// only requests the exit; Unreachable is published by the loop itself).
func (o *Object) MarkUnreachable() {
	_ = o.header.Mutex.Lock(context.Background())
	o.header.State.Store(int32(StateUnreachable))
	o.header.Cond.Broadcast()
	o.header.Mutex.Unlock()
}

// SetState publishes a new state without touching the command protocol,
// for server-driven transitions that are not a reaction to a client
// command (e.g. working -> waiting once an acquisition drains).
func (o *Object) SetState(s State) {
	_ = o.header.Mutex.Lock(context.Background())
	o.header.State.Store(int32(s))
	o.header.Cond.Broadcast()
	o.header.Mutex.Unlock()
}

// WaitState blocks until the published state is want, or ctx/deadline cuts
// it short.
func (o *Object) WaitState(ctx context.Context, want State, deadline clock.Deadline) ipc.Status {
	status := o.header.Mutex.LockUntil(ctx, deadline)
	if status != ipc.OK {
		return status
	}
	for State(o.header.State.Load()) != want {
		status = o.header.Cond.WaitUntil(ctx, &o.header.Mutex, deadline)
		if status != ipc.OK {
			o.header.Mutex.Unlock()
			return status
		}
	}
	o.header.Mutex.Unlock()
	return ipc.OK
}
