// Copyright Fjord GPU Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with
// the License. You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on
// an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the License for the
// specific language governing permissions and limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

// Package compiler runs the full back end pipeline over one program.  A
// compile is single threaded and shares no mutable state with concurrent
// compiles; cancellation is cooperative through a shared stop flag checked
// between passes and inside the longer running ones.
package compiler

import (
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/fjordgpu/go-fjord/pkg/encode"
	"github.com/fjordgpu/go-fjord/pkg/ir"
	"github.com/fjordgpu/go-fjord/pkg/lower"
	"github.com/fjordgpu/go-fjord/pkg/regalloc"
	"github.com/fjordgpu/go-fjord/pkg/sched"
	"github.com/fjordgpu/go-fjord/pkg/target"
)

// Compile lowers, allocates, schedules and encodes a program for a target.
// On success the program carries its native byte stream and metadata
// record; on failure the program state is unspecified.
func Compile(p *ir.Program, tgt *target.Descriptor, stop *atomic.Bool) (err error) {
	start := time.Now()
	// Invariant violations panic in debug builds and surface as internal
	// errors otherwise.
	defer func() {
		if r := recover(); r != nil {
			if ir.Debug {
				panic(r)
			}
			//
			err = ir.Internalf("%v", r)
		}
	}()
	//
	type pass struct {
		name string
		run  func() error
	}
	//
	passes := []pass{
		{"lower", func() error { return lower.Run(p, tgt, stop) }},
		{"regalloc", func() error { return regalloc.Allocate(p, tgt, stop) }},
		{"sched", func() error { return sched.Schedule(p, tgt, stop) }},
		{"encode", func() error { return encode.Encode(p, tgt) }},
	}
	//
	for _, pass := range passes {
		if stop != nil && stop.Load() {
			return ir.ErrCancelled
		}
		//
		if err := pass.run(); err != nil {
			return err
		}
	}
	//
	log.Debugf("compiled %s shader for %s in %v (%d bytes, %d work registers)",
		p.Stage, tgt.Name, time.Since(start), len(p.Binary), p.Meta.WorkRegisterCount)
	//
	return nil
}
