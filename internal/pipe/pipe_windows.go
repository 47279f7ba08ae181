//go:build windows

package pipe

import (
	"context"
	"syscall"
	"time"

	"golang.org/x/sys/windows"
)

// pipeHandle is the persistent server-side handle a Windows named pipe
// needs for its lifetime, unlike the POSIX FIFO which is identified
// purely by path.
type pipeHandle = windows.Handle

func sleepMS(ms int) { time.Sleep(time.Duration(ms) * time.Millisecond) }

// Create creates an inbound, byte-type, overlapped named pipe limited
// to a single instance.
func Create(path string) (*Pipe, error) {
	pathPtr, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return nil, &Error{Context: "create", Err: err}
	}
	h, err := windows.CreateNamedPipe(
		pathPtr,
		windows.PIPE_ACCESS_INBOUND|windows.FILE_FLAG_OVERLAPPED|windows.FILE_FLAG_FIRST_PIPE_INSTANCE,
		windows.PIPE_TYPE_BYTE|windows.PIPE_WAIT,
		1,
		0,
		0,
		0,
		nil,
	)
	if err != nil {
		return nil, &Error{Context: "create", Err: err}
	}
	p := &Pipe{path: path, handle: h}
	p.destroy = func() error { return windows.CloseHandle(h) }
	return p, nil
}

// Write waits (polling at writePollInterval) for the pipe to become
// available, then writes content with overlapped I/O.
func Write(path string, content []byte, timeoutMS int) error {
	pathPtr, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return &Error{Context: "write", Err: err}
	}
	for {
		if err := windows.WaitNamedPipe(pathPtr, 1); err != nil {
			if timeoutMS > writePollInterval {
				timeoutMS -= writePollInterval
				sleepMS(writePollInterval - 1)
				continue
			}
			return ErrTimeout
		}
		break
	}

	h, err := windows.CreateFile(pathPtr, windows.GENERIC_WRITE, 0, nil,
		windows.OPEN_EXISTING, windows.FILE_FLAG_OVERLAPPED, 0)
	if err != nil {
		return &Error{Context: "write", Err: err}
	}
	defer windows.CloseHandle(h)

	event, err := windows.CreateEvent(nil, 1, 1, nil)
	if err != nil {
		return &Error{Context: "write", Err: err}
	}
	defer windows.CloseHandle(event)

	overlapped := &windows.Overlapped{HEvent: event}
	var written uint32
	err = windows.WriteFile(h, content, &written, overlapped)
	if err != nil && err != windows.ERROR_IO_PENDING {
		return &Error{Context: "write", Err: err}
	}
	if err == windows.ERROR_IO_PENDING {
		if err := waitOverlapped(h, overlapped, &timeoutMS); err != nil {
			return err
		}
	}
	return nil
}

// ReadBlocking waits for a client to connect and reads one complete
// message, disconnecting and reconnecting the server end afterward so
// the next client can write.
func (p *Pipe) ReadBlocking(ctx context.Context, timeoutMS int) ([]byte, error) {
	event, err := windows.CreateEvent(nil, 1, 1, nil)
	if err != nil {
		return nil, &Error{Context: "read", Err: err}
	}
	defer windows.CloseHandle(event)

	overlapped := &windows.Overlapped{HEvent: event}
	if err := connectAndWait(p.handle, overlapped, &timeoutMS); err != nil {
		return nil, err
	}

	var content []byte
	buf := make([]byte, bufferSize)
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		overlapped = &windows.Overlapped{HEvent: event}
		var readBytes uint32
		err := windows.ReadFile(p.handle, buf, &readBytes, overlapped)
		if err != nil && err != windows.ERROR_IO_PENDING {
			if err == windows.ERROR_BROKEN_PIPE {
				if err := connectAndWait(p.handle, overlapped, &timeoutMS); err != nil {
					return nil, err
				}
				continue
			}
			return nil, &Error{Context: "read", Err: err}
		}
		if err == windows.ERROR_IO_PENDING {
			if err := waitOverlapped(p.handle, overlapped, &timeoutMS); err != nil {
				return nil, err
			}
			readBytes = overlapped.InternalHigh
		}

		content = append(content, buf[:readBytes]...)
		if readBytes < bufferSize {
			break
		}
	}

	windows.DisconnectNamedPipe(p.handle)
	return content, nil
}

// Destroy closes the pipe's server handle. Idempotent.
func (p *Pipe) Destroy() error {
	if p.path == "" {
		return nil
	}
	err := p.destroy()
	p.path = ""
	return err
}

func connectAndWait(h windows.Handle, overlapped *windows.Overlapped, timeoutMS *int) error {
	err := windows.ConnectNamedPipe(h, overlapped)
	if err == nil || err == windows.ERROR_PIPE_CONNECTED {
		return nil
	}
	if err == windows.ERROR_IO_PENDING {
		return waitOverlapped(h, overlapped, timeoutMS)
	}
	return &Error{Context: "connect", Err: err}
}

func waitOverlapped(h windows.Handle, overlapped *windows.Overlapped, timeoutMS *int) error {
	const pendingWaitInterval = 10
	var transferred uint32
	for {
		err := windows.GetOverlappedResult(h, overlapped, &transferred, false)
		if err == nil {
			return nil
		}
		if err != syscall.Errno(windows.ERROR_IO_INCOMPLETE) {
			return &Error{Context: "overlapped", Err: err}
		}
		if *timeoutMS > pendingWaitInterval {
			*timeoutMS -= pendingWaitInterval
		} else {
			return ErrTimeout
		}
		sleepMS(pendingWaitInterval)
	}
}
