package volink

import (
	"go.uber.org/zap"
)

const eventLoopBacklog = 64

// eventLoop runs every posted task on a single goroutine, one at a time and
// in arrival order. All link engine state is confined to this goroutine, so
// the engine never needs a lock. OS notification callbacks post here instead
// of touching the engine directly.
type eventLoop struct {
	logger *zap.SugaredLogger

	tasks chan func()
	quit  chan bool
	done  chan bool
}

func newEventLoop(logger *zap.SugaredLogger) *eventLoop {
	return &eventLoop{
		logger: logger.Named("loop"),
		tasks:  make(chan func(), eventLoopBacklog),
		quit:   make(chan bool),
		done:   make(chan bool),
	}
}

func (el *eventLoop) start() {
	go el.run()
}

func (el *eventLoop) run() {
	el.logger.Debug("Event loop starting")

	for {
		select {
		case task := <-el.tasks:
			task()
		case <-el.quit:
			el.logger.Debug("Event loop stopping")
			close(el.done)
			return
		}
	}
}

// post queues a task behind everything already queued. Tasks posted after
// stop are dropped
func (el *eventLoop) post(task func()) {
	select {
	case el.tasks <- task:
	case <-el.quit:
	}
}

// sync posts a barrier task and waits for it to run, so every task posted
// before it is known to have finished. Returns immediately if the loop is
// already stopped
func (el *eventLoop) sync() {
	barrier := make(chan bool)

	el.post(func() {
		close(barrier)
	})

	select {
	case <-barrier:
	case <-el.done:
	}
}

// stop terminates the loop goroutine and waits for it to exit. Tasks still
// sitting in the queue may be dropped, so callers that care should sync
// first. Must only be called once
func (el *eventLoop) stop() {
	close(el.quit)
	<-el.done
}
