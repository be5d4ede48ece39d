/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package eventloop runs closures one at a time on a dedicated goroutine.
// Session state is only touched from inside the loop; goroutines that finish
// asynchronous work hand their results back with Post.
package eventloop

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	applog "sprayeditor/internal/log"
)

// DefaultQueue is the queue length used by New when size <= 0.
const DefaultQueue = 256

// Loop is a single consumer work queue. The zero value is not usable; call New.
type Loop struct {
	q      chan func()
	closed chan struct{}
	done   chan struct{}
	once   sync.Once
	mu     sync.RWMutex
	log    *slog.Logger
}

// New starts a loop with a bounded queue of size entries.
func New(size int) *Loop {
	if size <= 0 {
		size = DefaultQueue
	}
	l := &Loop{
		q:      make(chan func(), size),
		closed: make(chan struct{}),
		done:   make(chan struct{}),
		log:    applog.WithComponent("eventloop"),
	}
	go l.run()
	return l
}

// Post enqueues fn. It reports false if the loop is closed or the queue is full;
// callers drop the work in that case.
func (l *Loop) Post(fn func()) bool {
	if fn == nil {
		return false
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	select {
	case <-l.closed:
		return false
	default:
	}
	select {
	case l.q <- fn:
		return true
	default:
		l.log.Warn("event queue full, dropping work")
		return false
	}
}

// Do runs fn on the loop and waits for it. It must not be called from a task
// already running on the loop. It returns an error if the loop is closed.
func (l *Loop) Do(fn func()) error {
	wait := make(chan struct{})
	l.mu.RLock()
	select {
	case <-l.closed:
		l.mu.RUnlock()
		return fmt.Errorf("event loop closed")
	default:
	}
	// Do blocks for queue space instead of dropping.
	l.q <- func() {
		defer close(wait)
		fn()
	}
	l.mu.RUnlock()
	select {
	case <-wait:
		return nil
	case <-l.done:
		select {
		case <-wait:
			return nil
		default:
		}
		return fmt.Errorf("event loop closed before work ran")
	}
}

// Close stops accepting work, drains what is already queued and waits for the
// loop goroutine to exit. Safe to call more than once.
func (l *Loop) Close() {
	l.once.Do(func() {
		l.mu.Lock()
		close(l.closed)
		close(l.q)
		l.mu.Unlock()
	})
	<-l.done
}

// Done is closed once the loop goroutine has exited.
func (l *Loop) Done() <-chan struct{} { return l.done }

func (l *Loop) run() {
	defer close(l.done)
	for fn := range l.q {
		l.exec(fn)
	}
}

func (l *Loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("panic in loop task", slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
		}
	}()
	fn()
}
