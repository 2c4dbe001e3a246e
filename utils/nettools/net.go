// package nettools inspects idle sockets without reading from them.
package nettools

import (
	"net"
	"sync"
	"syscall"
)

type Mode int

const (
	ModePoll Mode = iota
	ModeNone
)

var (
	supported  = map[Mode]func(fds []int) []bool{}
	picked     func(fds []int) []bool
	pickedMode Mode
)

func init() {
	for _, mode := range []Mode{ModePoll} {
		if supported[mode] != nil {
			picked, pickedMode = supported[mode], mode
			break
		}
	}
	if picked == nil {
		picked, pickedMode = func(fds []int) []bool { return make([]bool, len(fds)) }, ModeNone
	}
}

// Picked returns the probing mode available on this platform.
func Picked() Mode { return pickedMode }

// Stale reports, for each idle connection, whether the peer has closed it or
// sent something nobody asked for. Either way the connection must not carry
// another request. Connections without a reachable file descriptor are
// reported as usable.
func Stale(cc []net.Conn) []bool {
	out := make([]bool, len(cc))
	controlFDSet(cc, func(fds []int) {
		copy(out, picked(fds))
	})
	return out
}

func IsStale(c net.Conn) bool {
	return Stale([]net.Conn{c})[0]
}

// controlFDSet pins the descriptor of every connection and hands them to
// control in one batch. fds[i] is -1 when connections[i] exposes none.
func controlFDSet(connections []net.Conn, control func(fds []int)) {
	if len(connections) == 0 {
		return
	}
	fds := make([]int, len(connections))
	var (
		hold    sync.RWMutex
		pending sync.WaitGroup
	)
	hold.Lock()
	defer hold.Unlock()
	for i, c := range connections {
		fds[i] = -1
		rc := rawConn(c)
		if rc == nil {
			continue
		}
		pending.Add(1)
		i := i
		go func() {
			// Control only fails without running the callback
			err := rc.Control(func(fd uintptr) {
				fds[i] = int(fd)
				pending.Done()
				hold.RLock()
				hold.RUnlock()
			})
			if err != nil {
				pending.Done()
			}
		}()
	}
	pending.Wait()
	control(fds)
}

// rawConn unwraps *tls.Conn and similar wrappers down to the socket.
func rawConn(c net.Conn) syscall.RawConn {
	for {
		u, ok := c.(interface{ NetConn() net.Conn })
		if !ok {
			break
		}
		c = u.NetConn()
	}
	sc, ok := c.(syscall.Conn)
	if !ok {
		return nil
	}
	rc, err := sc.SyscallConn()
	if err != nil {
		return nil
	}
	return rc
}
