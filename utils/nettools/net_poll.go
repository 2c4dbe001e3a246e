//go:build darwin || linux

package nettools

import (
	"golang.org/x/sys/unix"
)

var _ = func() error { // make sure this executes before func init()
	supported[ModePoll] = pollStale
	return nil
}()

const staleEvents = unix.POLLIN | unix.POLLHUP | unix.POLLERR | unix.POLLNVAL

// pollStale polls without blocking. an idle connection that is readable has
// either been closed by the peer or received unsolicited data.
func pollStale(fds []int) []bool {
	out := make([]bool, len(fds))
	s := make([]unix.PollFd, 0, len(fds))
	idx := make([]int, 0, len(fds))
	for i, fd := range fds {
		if fd == -1 {
			continue
		}
		s = append(s, unix.PollFd{Fd: int32(fd), Events: unix.POLLIN | unix.POLLHUP})
		idx = append(idx, i)
	}
	if len(s) == 0 {
		return out
	}
	for {
		n, err := unix.Poll(s, 0)
		if err == unix.EINTR {
			continue
		}
		if err != nil || n == 0 {
			return out
		}
		break
	}
	for i := range s {
		if s[i].Revents&staleEvents != 0 {
			out[idx[i]] = true
		}
	}
	return out
}
