package mock

import "context"

// CacheMock implements interfaces.Cache.
type CacheMock[T any] struct {
	WriteValueFunc    func(ctx context.Context, key string, item T, ttlMs int) error
	ReadValueFunc     func(ctx context.Context, key string) (T, error)
	ListAllValuesFunc func(ctx context.Context) ([]T, error)
	DeleteValueFunc   func(ctx context.Context, key string) error
}

func (m *CacheMock[T]) WriteValue(ctx context.Context, key string, item T, ttlMs int) error {
	if m.WriteValueFunc == nil {
		return nil
	}
	return m.WriteValueFunc(ctx, key, item, ttlMs)
}

func (m *CacheMock[T]) ReadValue(ctx context.Context, key string) (T, error) {
	if m.ReadValueFunc == nil {
		var zero T
		return zero, nil
	}
	return m.ReadValueFunc(ctx, key)
}

func (m *CacheMock[T]) ListAllValues(ctx context.Context) ([]T, error) {
	if m.ListAllValuesFunc == nil {
		return nil, nil
	}
	return m.ListAllValuesFunc(ctx)
}

func (m *CacheMock[T]) DeleteValue(ctx context.Context, key string) error {
	if m.DeleteValueFunc == nil {
		return nil
	}
	return m.DeleteValueFunc(ctx, key)
}
