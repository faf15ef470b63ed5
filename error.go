package uvc

import (
	"github.com/kevmo314/go-uvchost/pkg/descriptors"
	"github.com/kevmo314/go-uvchost/pkg/uvcerr"
)

// Every error returned by a Device or Node wraps one of these.
var (
	ErrInvalidArgument   = uvcerr.ErrInvalidArgument
	ErrBusy              = uvcerr.ErrBusy
	ErrNoDevice          = uvcerr.ErrNoDevice
	ErrRange             = uvcerr.ErrRange
	ErrIO                = uvcerr.ErrIO
	ErrNotSupported      = uvcerr.ErrNotSupported
	ErrNotFound          = uvcerr.ErrNotFound
	ErrInvalidDescriptor = descriptors.ErrInvalidDescriptor
)
