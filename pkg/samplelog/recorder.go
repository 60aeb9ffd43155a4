// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package samplelog persists decoded probe samples off the control loop.
//
// The Recorder never blocks its caller: rows go into a bounded queue and a
// worker goroutine writes them to every sink in batches. A sink that fails
// once is reported and disabled for the rest of the run.
package samplelog

import (
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Thermoquad/vibmon/pkg/vibproto"
)

// Row is one sample with its wall-clock capture time
type Row struct {
	Captured time.Time
	Sample   vibproto.SensorSample
}

// Sink is a durable destination for sample rows.
// WriteBatch is only called from the recorder goroutine and must not retain rows.
type Sink interface {
	Name() string
	WriteBatch(rows []Row) error
	Close() error
}

// Recorder defaults
const (
	DefaultQueueSize     = 1024
	DefaultBatchSize     = 100
	DefaultFlushInterval = time.Second
)

// Options tunes the recorder queue
type Options struct {
	QueueSize     int
	BatchSize     int
	FlushInterval time.Duration
}

type sinkState struct {
	sink   Sink
	failed bool
}

// Recorder queues rows and writes them to its sinks in the background
type Recorder struct {
	opts  Options
	sinks []*sinkState
	queue chan Row
	done  chan struct{}

	mu     sync.RWMutex
	closed bool

	dropped  atomic.Uint64
	written  atomic.Uint64
	failures atomic.Uint64
}

// NewRecorder starts a recorder writing to sinks
func NewRecorder(opts Options, sinks ...Sink) *Recorder {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = DefaultFlushInterval
	}

	r := &Recorder{
		opts:  opts,
		queue: make(chan Row, opts.QueueSize),
		done:  make(chan struct{}),
	}
	for _, s := range sinks {
		r.sinks = append(r.sinks, &sinkState{sink: s})
	}
	go r.run()
	return r
}

// Record queues a sample. When the queue is full the row is dropped and counted.
func (r *Recorder) Record(sample vibproto.SensorSample, captured time.Time) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.dropped.Add(1)
		return
	}

	select {
	case r.queue <- Row{Captured: captured, Sample: sample}:
	default:
		r.dropped.Add(1)
	}
}

// Dropped returns the number of rows lost to a full queue
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

// Written returns the number of rows handed to the sinks
func (r *Recorder) Written() uint64 {
	return r.written.Load()
}

// Failures returns the number of sinks disabled after a write error
func (r *Recorder) Failures() uint64 {
	return r.failures.Load()
}

// Close flushes queued rows, closes every sink and waits for the worker
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	<-r.done

	var errs []error
	for _, s := range r.sinks {
		if err := s.sink.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Recorder) run() {
	defer close(r.done)

	ticker := time.NewTicker(r.opts.FlushInterval)
	defer ticker.Stop()

	batch := make([]Row, 0, r.opts.BatchSize)
	for {
		select {
		case row, ok := <-r.queue:
			if !ok {
				r.flush(batch)
				return
			}
			batch = append(batch, row)
			if len(batch) >= r.opts.BatchSize {
				r.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				r.flush(batch)
				batch = batch[:0]
			}
		}
	}
}

func (r *Recorder) flush(batch []Row) {
	if len(batch) == 0 {
		return
	}
	for _, s := range r.sinks {
		if s.failed {
			continue
		}
		if err := s.sink.WriteBatch(batch); err != nil {
			s.failed = true
			r.failures.Add(1)
			log.Printf("[vibmon] Error writing to %s log, disabling it: %v", s.sink.Name(), err)
		}
	}
	r.written.Add(uint64(len(batch)))
}
