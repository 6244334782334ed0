// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package hashtable implements the fixed-size bucket array that indexes
// Files by handle for every policy that does not need a single global
// ordering (everything except TO, TO-agg, SW, TWINS and WFQ, which instead
// use the package timeline).
//
// Grounded on req_hashtable.c/hash.c: a fixed AGIOS_HASH_ENTRIES=64-bucket
// array, one mutex per bucket, and an ordered (by file id) linked list of
// Files per bucket so a scheduling pass that walks a bucket sees a stable
// iteration order. The bucket-selection hash itself is reimplemented with
// the xxhash library already pulled in transitively by this module's metrics
// stack rather than porting the original's hand-rolled bit-shift mix: both
// satisfy the only invariant that matters here (deterministic, well spread
// over 64 buckets), and reaching for a vetted hash function is the
// idiomatic Go choice over hand-porting C bit tricks.
package hashtable

import (
	"container/list"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/esalvarez/agios/internal/agios/model"
)

// Entries is the fixed bucket count (AGIOS_HASH_ENTRIES).
const Entries = 64

// Position returns the bucket index for a file handle.
func Position(fileID string) int {
	return int(xxhash.Sum64String(fileID) % Entries)
}

type bucket struct {
	mu    sync.Mutex
	files list.List // ordered by FileID, holds *model.File
	count int64     // number of requests currently indexed in this bucket
}

// Table is the 64-bucket hashtable. The zero value is not usable; use New.
type Table struct {
	buckets [Entries]bucket
}

// New returns an initialized, empty Table.
func New() *Table {
	t := &Table{}
	for i := range t.buckets {
		t.buckets[i].files.Init()
	}
	return t
}

// Lock acquires bucket i's mutex and returns its ordered file list. Callers
// must call Unlock(i) when done.
func (t *Table) Lock(i int) *list.List {
	t.buckets[i].mu.Lock()
	return &t.buckets[i].files
}

// TryLock attempts to acquire bucket i's mutex without blocking. It returns
// the bucket's file list and true on success, or (nil, false) if the lock is
// currently held.
func (t *Table) TryLock(i int) (*list.List, bool) {
	if t.buckets[i].mu.TryLock() {
		return &t.buckets[i].files, true
	}
	return nil, false
}

// Unlock releases bucket i's mutex.
func (t *Table) Unlock(i int) { t.buckets[i].mu.Unlock() }

// Files returns bucket i's file list without acquiring its lock. Only safe
// when the caller already holds bucket i's lock, e.g. while iterating every
// bucket during a migration that locked them all up front.
func (t *Table) Files(i int) *list.List { return &t.buckets[i].files }

// Count returns the number of requests indexed in bucket i. Caller must hold
// the bucket's lock.
func (t *Table) Count(i int) int64 { return t.buckets[i].count }

// AddCount adjusts bucket i's request counter. Caller must hold the lock.
func (t *Table) AddCount(i int, delta int64) { t.buckets[i].count += delta }

// FindFile looks for a File with the given id in bucket i's ordered list.
// Caller must hold the bucket's lock.
func FindFile(files *list.List, fileID string) *model.File {
	for e := files.Front(); e != nil; e = e.Next() {
		f := e.Value.(*model.File)
		if f.FileID == fileID {
			return f
		}
		if f.FileID > fileID {
			break // list is ordered by FileID, no point scanning further
		}
	}
	return nil
}

// InsertFile inserts f into files keeping FileID order, and records its
// position in f.Elem. Caller must hold the bucket's lock.
func InsertFile(files *list.List, f *model.File) {
	for e := files.Front(); e != nil; e = e.Next() {
		if e.Value.(*model.File).FileID > f.FileID {
			f.Elem = files.InsertBefore(f, e)
			return
		}
	}
	f.Elem = files.PushBack(f)
}

// RemoveFile drops f from its bucket's file list. Caller must hold the
// bucket's lock.
func RemoveFile(files *list.List, f *model.File) {
	if f.Elem != nil {
		files.Remove(f.Elem)
		f.Elem = nil
	}
}

// FindOrCreateFile returns the File for fileID in bucket i, creating and
// inserting a new one if it did not exist. Caller must hold the bucket's
// lock. The second return value reports whether a new File was created.
func (t *Table) FindOrCreateFile(i int, fileID string) (*model.File, bool) {
	files := &t.buckets[i].files
	if f := FindFile(files, fileID); f != nil {
		return f, false
	}
	f := model.NewFile(fileID)
	InsertFile(files, f)
	return f, true
}
