package services

import "context"

type Name string

// Service is a component the node starts before it is used.
type Service interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Name() Name
}
