// Copyright 2026 The rqbit-fuse Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package apperr defines the closed error taxonomy shared by every layer of
// rqbit-fuse, from the HTTP client up through the filesystem adapter, and
// its mapping onto POSIX errno values at the kernel boundary.
package apperr

import (
	"fmt"
	"syscall"
)

// Kind is a closed sum of the error categories rqbit-fuse distinguishes.
// New values are never introduced by callers; they only construct an Error
// around one of the Kinds below.
type Kind int

const (
	NotFound Kind = iota
	PermissionDenied
	TimedOut
	NetworkError
	ApiError
	IoError
	InvalidArgument
	ValidationError
	NotReady
	ParseError
	IsDirectory
	NotDirectory
	BadHandle
	DataUnavailable
	TooManyOpenFiles
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "NotFound"
	case PermissionDenied:
		return "PermissionDenied"
	case TimedOut:
		return "TimedOut"
	case NetworkError:
		return "NetworkError"
	case ApiError:
		return "ApiError"
	case IoError:
		return "IoError"
	case InvalidArgument:
		return "InvalidArgument"
	case ValidationError:
		return "ValidationError"
	case NotReady:
		return "NotReady"
	case ParseError:
		return "ParseError"
	case IsDirectory:
		return "IsDirectory"
	case NotDirectory:
		return "NotDirectory"
	case BadHandle:
		return "BadHandle"
	case DataUnavailable:
		return "DataUnavailable"
	case TooManyOpenFiles:
		return "TooManyOpenFiles"
	default:
		return "Unknown"
	}
}

// Error is the single error type that crosses every internal boundary in
// rqbit-fuse. It carries a Kind, a human-readable message, and — for
// ApiError — the HTTP status that produced it.
type Error struct {
	Kind       Kind
	Message    string
	HTTPStatus int
	Cause      error
}

func (e *Error) Error() string {
	if e.Kind == ApiError {
		return fmt.Sprintf("%s (http %d): %s", e.Kind, e.HTTPStatus, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New builds an Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error of the given kind around an existing error.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// NewAPIError builds an Error for an HTTP response whose status code maps
// onto the ApiError kind.
func NewAPIError(status int, format string, args ...interface{}) *Error {
	return &Error{Kind: ApiError, HTTPStatus: status, Message: fmt.Sprintf(format, args...)}
}

// Of extracts the *Error underlying err, if any; otherwise it wraps err as
// an opaque IoError so every caller can rely on a consistent errno mapping.
func Of(err error) *Error {
	if err == nil {
		return nil
	}
	if ae, ok := err.(*Error); ok {
		return ae
	}
	return &Error{Kind: IoError, Message: err.Error(), Cause: err}
}

// Transient reports whether the error kind is one the HTTP client should
// retry with backoff, per §7's propagation policy.
func (e *Error) Transient() bool {
	switch e.Kind {
	case TimedOut, NetworkError, NotReady:
		return true
	case ApiError:
		switch e.HTTPStatus {
		case 408, 429, 502, 503, 504:
			return true
		}
	}
	return false
}

// Errno maps a Kind (and, for ApiError, an HTTP status) onto the POSIX
// errno the filesystem adapter returns to the kernel. This is the sole
// place in rqbit-fuse where the taxonomy touches syscall.Errno; every other
// layer only ever reasons about Kind.
func (e *Error) Errno() syscall.Errno {
	switch e.Kind {
	case NotFound:
		return syscall.ENOENT
	case PermissionDenied:
		return syscall.EACCES
	case TimedOut:
		return syscall.ETIMEDOUT
	case NetworkError:
		return syscall.ENETUNREACH
	case NotReady:
		return syscall.EAGAIN
	case InvalidArgument, ValidationError, ParseError:
		return syscall.EINVAL
	case IoError:
		return syscall.EIO
	case IsDirectory:
		return syscall.EISDIR
	case NotDirectory:
		return syscall.ENOTDIR
	case BadHandle:
		return syscall.EBADF
	case TooManyOpenFiles:
		return syscall.EMFILE
	// DataUnavailable fails fast with EIO rather than EAGAIN: the piece gate
	// is meant to short-circuit a blocked read on a paused torrent, not
	// invite the kernel to spin retrying it. See the piece-availability open
	// question resolved in favor of EIO.
	case DataUnavailable:
		return syscall.EIO
	case ApiError:
		return apiStatusErrno(e.HTTPStatus)
	default:
		return syscall.EIO
	}
}

func apiStatusErrno(status int) syscall.Errno {
	switch status {
	case 401, 403:
		return syscall.EACCES
	case 400, 416:
		return syscall.EINVAL
	case 408, 423, 429, 503, 504:
		return syscall.EAGAIN
	case 409:
		return syscall.EEXIST
	case 413:
		return syscall.EFBIG
	default:
		if status >= 500 {
			return syscall.EIO
		}
		return syscall.EIO
	}
}
