// Package script evaluates script source taken from contributed or replaced
// markup.
package script

import (
	"fmt"
	"sync"

	"github.com/dop251/goja"
)

// Evaluator runs one script.
type Evaluator interface {
	Evaluate(source string) error
}

// EvaluatorFunc adapts a function to Evaluator.
type EvaluatorFunc func(source string) error

// Evaluate implements Evaluator.
func (f EvaluatorFunc) Evaluate(source string) error {
	return f(source)
}

// VM is an Evaluator backed by a goja runtime. Scripts share one global
// scope, the way scripts on a page do.
type VM struct {
	mu sync.Mutex
	rt *goja.Runtime
}

// NewVM creates a VM with an empty global scope.
func NewVM() *VM {
	return &VM{rt: goja.New()}
}

// Evaluate runs source in the shared global scope.
func (vm *VM) Evaluate(source string) error {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if _, err := vm.rt.RunString(source); err != nil {
		return fmt.Errorf("script: %w", err)
	}
	return nil
}

// Set exposes a Go value to scripts as a global.
func (vm *VM) Set(name string, value any) error {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.rt.Set(name, value)
}

// Get returns the exported Go value of a global, or nil if it is undefined.
func (vm *VM) Get(name string) any {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	v := vm.rt.Get(name)
	if v == nil || goja.IsUndefined(v) {
		return nil
	}
	return v.Export()
}
