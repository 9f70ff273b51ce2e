package dataservice

import (
	"context"
	"sync"

	"github.com/codefionn/wellspace/internal/entity"
)

// Fake is an in-memory Service. Gate lets tests hold a Datasets call until
// they release it.
type Fake struct {
	mu       sync.Mutex
	entities map[string][]entity.Ref // by normalized scope path
	datasets map[string][]Dataset    // by entity id
	gates    map[string]chan struct{}
	calls    map[string]int
}

var _ Service = (*Fake)(nil)

// NewFake creates an empty fake service.
func NewFake() *Fake {
	return &Fake{
		entities: make(map[string][]entity.Ref),
		datasets: make(map[string][]Dataset),
		gates:    make(map[string]chan struct{}),
		calls:    make(map[string]int),
	}
}

// AddEntities registers refs under scope.
func (f *Fake) AddEntities(scope string, refs ...entity.Ref) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := entity.NormalizePath(scope)
	f.entities[key] = append(f.entities[key], refs...)
}

// SetDatasets sets the datasets returned for the entity id.
func (f *Fake) SetDatasets(id string, ds ...Dataset) {
	f.mu.Lock()
	f.datasets[id] = ds
	f.mu.Unlock()
}

// Gate makes Datasets for id block until the returned release is called.
func (f *Fake) Gate(id string) (release func()) {
	ch := make(chan struct{})
	f.mu.Lock()
	f.gates[id] = ch
	f.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

// Calls reports how many times Datasets was called for id.
func (f *Fake) Calls(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

func (f *Fake) Entities(_ context.Context, scope entity.Scope) ([]entity.Ref, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	refs := f.entities[scope.Key()]
	return append([]entity.Ref(nil), refs...), nil
}

func (f *Fake) Datasets(ctx context.Context, ref entity.Ref) ([]Dataset, error) {
	f.mu.Lock()
	f.calls[ref.ID]++
	gate := f.gates[ref.ID]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	ds, ok := f.datasets[ref.ID]
	if !ok {
		return nil, ErrEntityNotFound
	}
	return append([]Dataset(nil), ds...), nil
}
