package bot

import (
	"maps"
	"reflect"
	"sync"
)

// dataStore 按类型保存用户数据，每种类型一个值
type dataStore struct {
	mu     sync.RWMutex
	values map[reflect.Type]any
}

func (s *dataStore) set(t reflect.Type, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.values == nil {
		s.values = make(map[reflect.Type]any)
	}
	s.values[t] = v
}

// snapshot 浅拷贝，值本身不复制
func (s *dataStore) snapshot() map[reflect.Type]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.values)
}

// AddData 注册类型为 T 的用户数据，同一类型后注册的覆盖先注册的。
// 运行中调用只影响之后开始分发的事件。
func AddData[T any](b *Bot, v T) *Bot {
	b.data.set(reflect.TypeFor[T](), v)
	return b
}
