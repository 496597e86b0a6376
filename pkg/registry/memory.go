package registry

import (
	"sync"

	"go-micro.dev/v5/registry"
)

// MemoryRegistry 进程内注册中心，用于本地运行与测试
// 注册/注销事件会推送给所有活跃的Watcher
type MemoryRegistry struct {
	services map[string]*registry.Service
	watchers map[int]*memoryWatcher
	nextID   int
	mu       sync.RWMutex
}

// NewMemoryRegistry 创建进程内注册中心
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		services: make(map[string]*registry.Service),
		watchers: make(map[int]*memoryWatcher),
	}
}

// Init 初始化
func (r *MemoryRegistry) Init(opts ...registry.Option) error {
	return nil
}

// Options 获取选项
func (r *MemoryRegistry) Options() registry.Options {
	return registry.Options{}
}

// Register 注册服务并广播create事件
func (r *MemoryRegistry) Register(s *registry.Service, opts ...registry.RegisterOption) error {
	if s == nil {
		return nil
	}

	r.mu.Lock()
	r.services[s.Name] = s
	r.mu.Unlock()

	r.notify(&registry.Result{Action: "create", Service: s})
	return nil
}

// Deregister 注销服务并广播delete事件
func (r *MemoryRegistry) Deregister(s *registry.Service, opts ...registry.DeregisterOption) error {
	if s == nil {
		return nil
	}

	r.mu.Lock()
	delete(r.services, s.Name)
	r.mu.Unlock()

	r.notify(&registry.Result{Action: "delete", Service: s})
	return nil
}

// GetService 获取服务
func (r *MemoryRegistry) GetService(name string, opts ...registry.GetOption) ([]*registry.Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if s, ok := r.services[name]; ok {
		return []*registry.Service{s}, nil
	}
	return nil, registry.ErrNotFound
}

// ListServices 列出所有服务
func (r *MemoryRegistry) ListServices(opts ...registry.ListOption) ([]*registry.Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	services := make([]*registry.Service, 0, len(r.services))
	for _, s := range r.services {
		services = append(services, s)
	}
	return services, nil
}

// Watch 监听服务变化
func (r *MemoryRegistry) Watch(opts ...registry.WatchOption) (registry.Watcher, error) {
	w := &memoryWatcher{
		events: make(chan *registry.Result, 16),
		exit:   make(chan struct{}),
	}

	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.watchers[id] = w
	r.mu.Unlock()

	w.cleanup = func() {
		r.mu.Lock()
		delete(r.watchers, id)
		r.mu.Unlock()
	}
	return w, nil
}

// String 返回注册中心名称
func (r *MemoryRegistry) String() string {
	return "memory"
}

// notify 向所有Watcher广播事件，缓冲满的Watcher丢弃事件
func (r *MemoryRegistry) notify(result *registry.Result) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, w := range r.watchers {
		select {
		case w.events <- result:
		default:
		}
	}
}

// memoryWatcher 进程内事件监听器
type memoryWatcher struct {
	events  chan *registry.Result
	exit    chan struct{}
	cleanup func()
	once    sync.Once
}

func (w *memoryWatcher) Next() (*registry.Result, error) {
	select {
	case result := <-w.events:
		return result, nil
	case <-w.exit:
		return nil, registry.ErrWatcherStopped
	}
}

func (w *memoryWatcher) Stop() {
	w.once.Do(func() {
		close(w.exit)
		if w.cleanup != nil {
			w.cleanup()
		}
	})
}
