/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package history keeps the bounded, linear undo/redo ledger for one drawing surface.
package history

import (
	"sync"
	"time"
)

// DefaultCapacity is used when a ledger is created with a non-positive capacity.
const DefaultCapacity = 50

// Snapshot is a full serialized surface state. The blob is opaque to the ledger.
type Snapshot struct {
	Blob []byte
	TS   time.Time
}

// Ledger is a bounded stack of snapshots with a cursor.
// Pushing after an undo drops the redo branch; overflowing capacity evicts the oldest entry.
// It is safe for concurrent use.
type Ledger struct {
	mu       sync.Mutex
	entries  []Snapshot
	cursor   int
	capacity int
	bytes    int
}

// New returns an empty ledger bounded to capacity entries.
func New(capacity int) *Ledger {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ledger{cursor: -1, capacity: capacity}
}

// Reset clears all entries.
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
	l.cursor = -1
	l.bytes = 0
}

// Push records s as the newest entry.
func (l *Ledger) Push(s Snapshot) {
	if s.TS.IsZero() {
		s.TS = time.Now()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cursor < len(l.entries)-1 {
		for _, dropped := range l.entries[l.cursor+1:] {
			l.bytes -= len(dropped.Blob)
		}
		clear(l.entries[l.cursor+1:])
		l.entries = l.entries[:l.cursor+1]
	}
	l.entries = append(l.entries, s)
	l.bytes += len(s.Blob)
	l.cursor++
	if len(l.entries) > l.capacity {
		// the cursor keeps pointing at the same logical entry
		l.bytes -= len(l.entries[0].Blob)
		l.entries = append([]Snapshot(nil), l.entries[1:]...)
		l.cursor--
	}
}

// PushBlob is Push with the current time.
func (l *Ledger) PushBlob(blob []byte) { l.Push(Snapshot{Blob: blob, TS: time.Now()}) }

// Undo moves the cursor back and returns the entry it now points at.
// It returns false when there is nothing to undo.
func (l *Ledger) Undo() (Snapshot, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cursor <= 0 {
		return Snapshot{}, false
	}
	l.cursor--
	return l.entries[l.cursor], true
}

// Redo moves the cursor forward and returns the entry it now points at.
func (l *Ledger) Redo() (Snapshot, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cursor >= len(l.entries)-1 {
		return Snapshot{}, false
	}
	l.cursor++
	return l.entries[l.cursor], true
}

// Current returns the entry under the cursor.
func (l *Ledger) Current() (Snapshot, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cursor < 0 {
		return Snapshot{}, false
	}
	return l.entries[l.cursor], true
}

func (l *Ledger) CanUndo() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cursor > 0
}

func (l *Ledger) CanRedo() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cursor < len(l.entries)-1
}

func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *Ledger) Cursor() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cursor
}

func (l *Ledger) Capacity() int { return l.capacity }

// Stats returns current sizes for diagnostics.
func (l *Ledger) Stats() (totalBytes int, entries int, cursor int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.bytes, len(l.entries), l.cursor
}
