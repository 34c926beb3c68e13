package main

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
)

var (
	interruptChannel      = make(chan os.Signal, 1)
	addHandlerChannel     = make(chan func())
	interruptHandlersDone = make(chan struct{})
	startListener         sync.Once
)

// mainInterruptHandler runs the registered handlers in reverse order on the first
// interrupt and closes interruptHandlersDone when they are finished.
func mainInterruptHandler() {
	var handlers []func()
	for {
		select {
		case <-interruptChannel:
			for i := len(handlers) - 1; i >= 0; i-- {
				handlers[i]()
			}
			close(interruptHandlersDone)
			return
		case handler := <-addHandlerChannel:
			handlers = append(handlers, handler)
		}
	}
}

func addInterruptHandler(handler func()) {
	startListener.Do(func() {
		signal.Notify(interruptChannel, os.Interrupt, syscall.SIGTERM)
		go mainInterruptHandler()
	})
	addHandlerChannel <- handler
}
