package hellocache

import "errors"

var (
	ErrHelloNotFound  = errors.New("hello not found")
	ErrBucketNotFound = errors.New("bucket not found")
	ErrNilDB          = errors.New("database connection is nil")
	ErrNilHello       = errors.New("hello is nil")
)
