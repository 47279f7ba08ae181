//go:build !windows

package pipe

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"
)

func sleepMS(ms int) { time.Sleep(time.Duration(ms) * time.Millisecond) }

// pipeHandle carries no persistent OS resource on POSIX: a FIFO is
// identified entirely by its filesystem path, and each operation opens
// and closes its own file descriptor.
type pipeHandle struct{}

// Create creates a fresh FIFO at path, readable/writable only by the
// owning user. Fails if an object already exists at path.
func Create(path string) (*Pipe, error) {
	if _, err := os.Lstat(filepath.Dir(path)); err != nil {
		return nil, &Error{Context: "create", Err: err}
	}
	if err := unix.Mkfifo(path, 0o600); err != nil {
		return nil, &Error{Context: "create", Code: int(errnoOf(err)), Err: err}
	}
	p := &Pipe{path: path}
	p.destroy = func() error { return removePath(p.path) }
	return p, nil
}

// Write opens path for writing, polling at writePollInterval while no
// reader is present, and writes content in a single call once opened.
func Write(path string, content []byte, timeoutMS int) error {
	var fd int
	for {
		f, err := unix.Open(path, unix.O_WRONLY|unix.O_NONBLOCK, 0)
		if err == nil {
			fd = f
			break
		}
		if timeoutMS > writePollInterval {
			timeoutMS -= writePollInterval
			sleepMS(writePollInterval)
			continue
		}
		return ErrTimeout
	}
	defer unix.Close(fd)

	if _, err := unix.Write(fd, content); err != nil {
		return &Error{Context: "write", Code: int(errnoOf(err)), Err: err}
	}
	return nil
}

// ReadBlocking waits for a writer to connect to this pipe's own path
// and reads one complete message, polling at readPollInterval and
// observing ctx for cooperative cancellation.
func (p *Pipe) ReadBlocking(ctx context.Context, timeoutMS int) ([]byte, error) {
	fd, err := unix.Open(p.path, unix.O_RDONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, &Error{Context: "open", Code: int(errnoOf(err)), Err: err}
	}
	defer unix.Close(fd)

	pollFDs := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	for {
		n, err := unix.Poll(pollFDs, readPollInterval)
		if err != nil && err != unix.EINTR {
			return nil, &Error{Context: "poll", Code: int(errnoOf(err)), Err: err}
		}
		if n > 0 && pollFDs[0].Revents&unix.POLLIN != 0 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		if timeoutMS > readPollInterval {
			timeoutMS -= readPollInterval
		} else {
			return nil, ErrTimeout
		}
	}

	var content []byte
	buf := make([]byte, bufferSize)
	for {
		n, err := unix.Read(fd, buf)
		if n > 0 {
			content = append(content, buf[:n]...)
		}
		if n <= 0 {
			if err != nil && err != unix.EAGAIN {
				return nil, &Error{Context: "read", Code: int(errnoOf(err)), Err: err}
			}
			break
		}
		if n < bufferSize {
			// Short read: the writer's single write() call is complete.
			break
		}
	}
	return content, nil
}

// Destroy removes the FIFO's filesystem entry. Idempotent.
func (p *Pipe) Destroy() error {
	if p.path == "" {
		return nil
	}
	err := p.destroy()
	p.path = ""
	return err
}

func removePath(path string) error {
	if _, err := os.Lstat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return &Error{Context: "destroy", Err: err}
	}
	if err := os.Remove(path); err != nil {
		return &Error{Context: "destroy", Err: err}
	}
	return nil
}

func errnoOf(err error) unix.Errno {
	if errno, ok := err.(unix.Errno); ok {
		return errno
	}
	return 0
}
