package exec

import (
	"context"
	"fmt"
	"sync"

	"pseudoflow/internal/config"
	"pseudoflow/internal/parser"
	"pseudoflow/internal/validator"
)

// queueDepth bounds how many tasks may wait for a worker before Submit
// blocks.
const queueDepth = 128

type poolTask struct {
	spec taskSpec
	out  chan poolOutcome // buffered 1, worker never blocks on send
}

type poolOutcome struct {
	result *TaskResult
	err    error
}

// runnerFactory builds one task runner per worker, so each worker owns its
// own parser and validator and tasks never share parser state, matching
// the isolation a per-process worker would have. Tests inject their own
// factory.
type runnerFactory func() func(taskSpec) poolOutcome

func defaultRunnerFactory() func(taskSpec) poolOutcome {
	psr := parser.New()
	val := validator.New(config.DefaultConfig().Validator)
	return func(spec taskSpec) poolOutcome {
		return runTask(psr, val, spec)
	}
}

// workerPool runs parse/validate tasks on a fixed set of goroutines.
type workerPool struct {
	tasks     chan *poolTask
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func newWorkerPool(workers int, factory runnerFactory) *workerPool {
	p := &workerPool{
		tasks: make(chan *poolTask, queueDepth),
		done:  make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker(factory())
	}
	return p
}

func (p *workerPool) worker(run func(taskSpec) poolOutcome) {
	defer p.wg.Done()
	for {
		select {
		case <-p.done:
			return
		case t := <-p.tasks:
			t.out <- run(t.spec)
		}
	}
}

// submit enqueues a task; false means the pool is shut down.
func (p *workerPool) submit(t *poolTask) bool {
	select {
	case <-p.done:
		return false
	default:
	}
	select {
	case p.tasks <- t:
		return true
	case <-p.done:
		return false
	}
}

// shutdown stops the workers. Queued tasks are abandoned; in-flight tasks
// finish their current work and deliver into their buffered channel.
// Idempotent.
func (p *workerPool) shutdown() {
	p.closeOnce.Do(func() { close(p.done) })
}

func runTask(psr *parser.Parser, val *validator.Validator, spec taskSpec) (out poolOutcome) {
	defer func() {
		if r := recover(); r != nil {
			out = poolOutcome{err: fmt.Errorf("worker panic: %v", r)}
		}
	}()

	switch spec.kind {
	case KindParse:
		return poolOutcome{result: &TaskResult{
			Kind:  KindParse,
			Parse: psr.Parse(spec.payload),
		}}
	case KindValidate:
		return poolOutcome{result: &TaskResult{
			Kind:       KindValidate,
			Validation: val.ValidateSyntax(context.Background(), spec.payload),
		}}
	}
	return poolOutcome{err: fmt.Errorf("unknown task kind %q", spec.kind)}
}
