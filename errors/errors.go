package errors

import "fmt"

var (
	ErrWorkerPanic          = fmt.Errorf("worker panic")
	ErrNotFound             = fmt.Errorf("not found")
	ErrValidation           = fmt.Errorf("invalid connection parameters")
	ErrStore                = fmt.Errorf("store failure")
	ErrIndex                = fmt.Errorf("index failure")
	ErrAlreadyExists        = fmt.Errorf("already exists")
	ErrAccountAlreadyLinked = fmt.Errorf("account already linked to an identity")
	ErrIndexQueueFull       = fmt.Errorf("index queue is full")
)
