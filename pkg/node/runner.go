package node

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	"github.com/golang/glog"
)

type namedRunnable struct {
	Runnable
	name string
}

func (r *namedRunnable) Name() string {
	return r.name
}

// NamedRun wraps a Runnable with a name used in logs.
func NamedRun(name string, runnable Runnable) Runnable {
	return &namedRunnable{Runnable: runnable, name: name}
}

// RunFunc is the func form of Runnable.
type RunFunc func(context.Context) error

// Run implements Runnable.
func (f RunFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// Runner starts Runnables and collects their errors. The daemon runs its
// bus worker, bridges and monitor under one Runner.
type Runner struct {
	Context context.Context

	cancel  context.CancelFunc
	count   int
	errCh   chan error
	forceCh chan struct{}
	exited  sync.WaitGroup

	forceOnce sync.Once
}

// NewRunner creates a Runner on a background context.
func NewRunner() *Runner {
	return NewRunnerWith(context.Background())
}

// NewRunnerWith creates a Runner on ctx.
func NewRunnerWith(ctx context.Context) *Runner {
	ctx, cancel := context.WithCancel(ctx)
	return &Runner{
		Context: ctx,
		cancel:  cancel,
		errCh:   make(chan error, 1),
		forceCh: make(chan struct{}),
	}
}

// HandleSignals stops all Runnables on SIGINT or SIGTERM. A second signal
// makes Wait return immediately.
func (r *Runner) HandleSignals() *Runner {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		glog.Info("stop requested")
		r.cancel()
		<-sigCh
		glog.Error("stop requested again, force exit")
		r.force()
	}()
	return r
}

func (r *Runner) force() {
	r.forceOnce.Do(func() { close(r.forceCh) })
}

// Stop cancels the shared context.
func (r *Runner) Stop() {
	r.cancel()
}

// Go starts Runnables on the shared context.
func (r *Runner) Go(runnables ...Runnable) *Runner {
	for _, runnable := range runnables {
		name := strconv.Itoa(r.count)
		if named, ok := runnable.(Named); ok {
			name = named.Name()
		}
		r.count++
		r.exited.Add(1)
		go func(runnable Runnable, name string) {
			glog.V(4).Infof("Runner[%s] started", name)
			err := runnable.Run(r.Context)
			glog.V(4).Infof("Runner[%s] stopped: %v", name, err)
			select {
			case r.errCh <- err:
			case <-r.forceCh:
			}
			r.exited.Done()
		}(runnable, name)
	}
	return r
}

// Wait waits for all Runnables. The first Runnable to stop cancels the
// others. context.Canceled results are not reported.
func (r *Runner) Wait() error {
	var errs AggregatedError
	for i := 0; i < r.count; i++ {
		select {
		case <-r.forceCh:
			return errors.New("forced exit")
		case err := <-r.errCh:
			r.cancel()
			if err != context.Canceled {
				errs.Add(err)
			}
		}
	}
	return errs.Aggregate()
}

// RunWithContextCloser runs fn, which does not accept a context, and
// closes closer when ctx is done so fn can return. closer is closed once
// in every case.
func RunWithContextCloser(ctx context.Context, closer io.Closer, fn func() error) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- fn()
	}()
	select {
	case <-ctx.Done():
		closer.Close()
		<-errCh
		return ctx.Err()
	case err := <-errCh:
		closer.Close()
		return err
	}
}
