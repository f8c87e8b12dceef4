package storage

import (
	"context"

	"github.com/slok/cartpool/internal/model"
)

// TaskRepository is the interface for checkout task persistence.
type TaskRepository interface {
	CreateTask(ctx context.Context, t model.Task) error
	GetTask(ctx context.Context, id string) (*model.Task, error)
	ListTasks(ctx context.Context) ([]model.Task, error)
}

// AddressRepository is the interface for shipping and billing address persistence.
type AddressRepository interface {
	CreateAddress(ctx context.Context, a model.Address) error
	GetAddress(ctx context.Context, id string) (*model.Address, error)
}

// ProxyRepository is the interface for outbound proxy persistence.
type ProxyRepository interface {
	CreateProxy(ctx context.Context, p model.Proxy) error
	ListProxies(ctx context.Context, filter model.ProxyFilter) ([]model.Proxy, error)
	// MarkProxyUsed sets the used flag of a proxy, it's the only write
	// the orchestrator does on the persistence layer.
	MarkProxyUsed(ctx context.Context, id string) error
}

// Repository groups all the repositories.
type Repository interface {
	TaskRepository
	AddressRepository
	ProxyRepository
}
