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

package worker

import (
	"github.com/go-logr/logr"
	tlog "go.temporal.io/sdk/log"
)

// temporalSink adapts the Temporal activity logger to logr, so tasks and
// sensors log into the activity's own log stream with the workflow and
// activity identifiers the SDK attaches there.
type temporalSink struct {
	logger tlog.Logger
	name   string
	values []interface{}
}

var _ logr.LogSink = (*temporalSink)(nil)

func newTemporalLogger(logger tlog.Logger) logr.Logger {
	return logr.New(&temporalSink{logger: logger})
}

func (s *temporalSink) Init(logr.RuntimeInfo) {}

// Enabled always answers true; level filtering is up to the Temporal
// logger, which receives verbose lines as Debug.
func (s *temporalSink) Enabled(int) bool { return true }

func (s *temporalSink) Info(level int, msg string, keysAndValues ...interface{}) {
	if level > 0 {
		s.logger.Debug(s.message(msg), s.with(keysAndValues)...)
		return
	}
	s.logger.Info(s.message(msg), s.with(keysAndValues)...)
}

func (s *temporalSink) Error(err error, msg string, keysAndValues ...interface{}) {
	kvs := s.with(keysAndValues)
	if err != nil {
		kvs = append(kvs, "error", err)
	}
	s.logger.Error(s.message(msg), kvs...)
}

func (s *temporalSink) WithValues(keysAndValues ...interface{}) logr.LogSink {
	next := *s
	next.values = append(append([]interface{}{}, s.values...), keysAndValues...)
	return &next
}

func (s *temporalSink) WithName(name string) logr.LogSink {
	next := *s
	if next.name != "" {
		next.name += "/"
	}
	next.name += name
	return &next
}

func (s *temporalSink) message(msg string) string {
	if s.name == "" {
		return msg
	}
	return s.name + ": " + msg
}

func (s *temporalSink) with(keysAndValues []interface{}) []interface{} {
	if len(s.values) == 0 {
		return keysAndValues
	}
	return append(append([]interface{}{}, s.values...), keysAndValues...)
}
