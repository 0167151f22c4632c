package storage

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
)

var (
	ErrNotFound      = errors.New("image not found")
	ErrQuotaExceeded = errors.New("storage quota exceeded")
	ErrUnavailable   = errors.New("storage unavailable")
	ErrInvalidID     = errors.New("invalid identifier")
)

// QuotaError reports a store rejected before anything was written.
type QuotaError struct {
	Used     int64
	Incoming int64
	Max      int64
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("storage quota exceeded: %s used + %s incoming > %s",
		humanize.IBytes(uint64(max(e.Used, 0))),
		humanize.IBytes(uint64(max(e.Incoming, 0))),
		humanize.IBytes(uint64(max(e.Max, 0))),
	)
}

func (e *QuotaError) Is(target error) bool {
	return target == ErrQuotaExceeded
}

type OpError struct {
	Op        string
	OwnerID   string
	ContentID string
	Err       error
}

func (e *OpError) Error() string {
	if e.ContentID == "" {
		return fmt.Sprintf("storage %s %s: %v", e.Op, e.OwnerID, e.Err)
	}
	return fmt.Sprintf("storage %s %s/%s: %v", e.Op, e.OwnerID, e.ContentID, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}
