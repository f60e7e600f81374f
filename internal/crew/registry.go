package crew

import (
	"sort"
)

// Registry 保存所有可运行的 crew 定义，进程启动后只读。
type Registry struct {
	definitions map[string]*Definition
}

// NewRegistry 构造注册表并校验每个定义。
func NewRegistry(definitions ...Definition) (*Registry, error) {
	set := make(map[string]*Definition, len(definitions))
	for i := range definitions {
		def := definitions[i]
		if err := def.Validate(); err != nil {
			return nil, err
		}
		// 同名定义后者覆盖前者，外部定义文件因此可以替换内置 crew。
		set[def.Name] = &def
	}
	return &Registry{definitions: set}, nil
}

// Lookup 返回指定名称的 crew 定义，未注册的名称一律拒绝。
func (r *Registry) Lookup(name string) (*Definition, error) {
	if r == nil {
		return nil, ErrCrewNotFound
	}
	def, ok := r.definitions[name]
	if !ok {
		return nil, ErrCrewNotFound
	}
	return def, nil
}

// Names 返回已注册的 crew 名称，按字典序排列。
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.definitions))
	for name := range r.definitions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
