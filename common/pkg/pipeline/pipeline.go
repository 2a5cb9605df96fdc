// Copyright 2022 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package pipeline defines the contracts between pipeline tasks and the
// host runtime that schedules them. Tasks never talk to the scheduler
// directly: they receive a TaskContext, do their work, and record outputs
// and UI links through it.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/go-logr/logr"
)

const (
	// StatusSuccess marks a terminal watcher event for an operation that
	// finished without error.
	StatusSuccess = "success"
	// StatusFailure marks a terminal watcher event for an operation that
	// finished with an error. Event.Message carries the cause.
	StatusFailure = "failure"
)

// Task is one schedulable unit of work. Execute is invoked exactly once per
// run attempt; retry policy belongs to the host.
type Task interface {
	Execute(ctx context.Context, tc *TaskContext) error
}

// Sensor is re-invoked by the host poller until it reports true or the
// host-side deadline expires. A false return is "not ready yet", not an
// error.
type Sensor interface {
	Poke(ctx context.Context, tc *TaskContext) (bool, error)
}

// Deferrable splits a long-running task into a start phase and a resume
// phase so the host can free the execution slot in between. Start kicks off
// the remote operation and returns a handle; an external watcher observes
// the handle and delivers exactly one terminal Event to Resume.
type Deferrable interface {
	Start(ctx context.Context, tc *TaskContext) (*PendingOperation, error)
	Resume(ctx context.Context, tc *TaskContext, ev Event) error
}

// PendingOperation is the handle a Deferrable task hands back between Start
// and Resume.
type PendingOperation struct {
	// Project owning the remote operation.
	Project string
	// OperationName is the opaque operation reference returned by the
	// remote API.
	OperationName string
	// PollInterval is the suggested watcher poll cadence.
	PollInterval time.Duration
}

// Event is the terminal outcome a watcher delivers for a pending operation.
type Event struct {
	Status        string
	OperationName string
	Message       string
}

// Outputs records values a task exposes to downstream tasks.
type Outputs interface {
	Record(key string, value interface{})
}

// Link is a UI reference recorded for an executed task.
type Link struct {
	Name string
	URL  string
}

// LinkRecorder persists UI link metadata. Recording is best effort and must
// never fail a task; implementations tolerate duplicate persists.
type LinkRecorder interface {
	Persist(l Link)
}

// TaskContext carries the host-supplied identity and recording surfaces for
// one task execution.
type TaskContext struct {
	// TaskID identifies the task definition within its pipeline.
	TaskID string
	// RunID identifies the pipeline run this execution belongs to.
	RunID string

	Log     logr.Logger
	Outputs Outputs
	Links   LinkRecorder
}

// NewTaskContext returns a TaskContext backed by in-memory output and link
// recorders.
func NewTaskContext(taskID, runID string, log logr.Logger) *TaskContext {
	return &TaskContext{
		TaskID:  taskID,
		RunID:   runID,
		Log:     log,
		Outputs: &MemoryOutputs{},
		Links:   &MemoryLinks{},
	}
}

// MemoryOutputs is a map-backed Outputs implementation. The host reads the
// recorded values back after the task returns.
type MemoryOutputs struct {
	mu     sync.Mutex
	values map[string]interface{}
}

func (m *MemoryOutputs) Record(key string, value interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.values == nil {
		m.values = map[string]interface{}{}
	}
	m.values[key] = value
}

// Value returns the recorded value for key, if any.
func (m *MemoryOutputs) Value(key string) (interface{}, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok
}

// Values returns a copy of everything recorded so far.
func (m *MemoryOutputs) Values() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]interface{}, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out
}

// MemoryLinks is a slice-backed LinkRecorder implementation.
type MemoryLinks struct {
	mu    sync.Mutex
	links []Link
}

func (m *MemoryLinks) Persist(l Link) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links = append(m.links, l)
}

// Links returns a copy of the persisted links in recording order.
func (m *MemoryLinks) Links() []Link {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Link, len(m.links))
	copy(out, m.links)
	return out
}
