// Copyright 2016 Aleksandr Demakin. All rights reserved.

// Package sync implements synchronization primitives, which can be placed
// into a memory region shared among several processes.
//
// Mutex and Cond are plain structs without any references. A process, which owns
// the shared memory, casts a properly aligned location to *Mutex or *Cond and calls Init.
// It must also call Destroy, when no other process uses the object anymore.
// All other processes only lock/unlock the mutex and wait/signal the condvar.
//
// A mutex can be robust: if the process, which holds it, dies,
// the next Lock succeeds, but returns ErrInconsistent. Every following Lock
// returns ErrInconsistent too, until MarkConsistent is called.
package sync
