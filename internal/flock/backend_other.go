//go:build !unix

package flock

import "os"

type FlockBackend struct{}

func (FlockBackend) Name() string                 { return "flock" }
func (FlockBackend) TryLock(*os.File, Mode) error { return ErrUnsupported }
func (FlockBackend) Unlock(*os.File) error        { return ErrUnsupported }

type RecordBackend struct{}

func (RecordBackend) Name() string                 { return "fcntl" }
func (RecordBackend) TryLock(*os.File, Mode) error { return ErrUnsupported }
func (RecordBackend) Unlock(*os.File) error        { return ErrUnsupported }
