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
package ir

import (
	"errors"
	"fmt"
)

// Debug enables paranoid invariant checking: internal invariant violations
// panic instead of surfacing as Internal errors.  Set from the CLI.
var Debug = false

// ErrCancelled is returned by a compile which observed its stop flag.
var ErrCancelled = errors.New("compile cancelled")

// InputErrorKind discriminates malformed front-end input.
type InputErrorKind uint8

const (
	// UnknownOpcode marks an opcode outside the known range.
	UnknownOpcode InputErrorKind = iota
	// ReservedBits marks a non-zero reserved field.
	ReservedBits
	// BadVersion marks an unsupported container version.
	BadVersion
	// Truncated marks input shorter than its length prefixes promise.
	Truncated
	// UnsupportedStage marks a stage this back end cannot compile.
	UnsupportedStage
	// UnknownLocation marks a variable location outside the declared range.
	UnknownLocation
)

// InputError reports malformed or unsupported front-end input.  Recoverable
// at the call site.
type InputError struct {
	Kind   InputErrorKind
	Offset uint64
	Detail string
}

func (e *InputError) Error() string {
	kinds := []string{
		"unknown opcode", "reserved bits set", "bad version",
		"truncated input", "unsupported stage", "unknown location",
	}
	//
	return fmt.Sprintf("input: %s at offset %d (%s)", kinds[e.Kind], e.Offset, e.Detail)
}

// LowerError reports an opcode with no rewrite entry for the requested
// target.  Fatal; the front end is expected to have excluded such cases.
type LowerError struct {
	Op     Opcode
	Stage  Stage
	Target string
}

func (e *LowerError) Error() string {
	return fmt.Sprintf("lower: unsupported %v in %v shader on %s", e.Op, e.Stage, e.Target)
}

// RAErrorKind discriminates register allocation failures.
type RAErrorKind uint8

const (
	// OutOfRegisters means colouring failed within the spill budget.
	OutOfRegisters RAErrorKind = iota
	// InvalidPreColor means a pinned register conflicts with itself.
	InvalidPreColor
)

// RAError reports a register allocation failure.
type RAError struct {
	Kind   RAErrorKind
	Detail string
}

func (e *RAError) Error() string {
	if e.Kind == OutOfRegisters {
		return fmt.Sprintf("regalloc: out of registers (%s)", e.Detail)
	}
	//
	return fmt.Sprintf("regalloc: invalid pre-colouring (%s)", e.Detail)
}

// EncodeError reports a field which cannot be represented in the selected
// encoding template.  Always an upstream bug, and fatal.
type EncodeError struct {
	Op    Opcode
	Field string
	Value uint64
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode: %v field %s value %#x out of range", e.Op, e.Field, e.Value)
}

// CFGError reports a malformed control-flow graph, e.g. a use without any
// reaching definition.
type CFGError struct {
	Block   uint32
	Virtual uint32
	Detail  string
}

func (e *CFGError) Error() string {
	return fmt.Sprintf("cfg: block %d register v%d: %s", e.Block, e.Virtual, e.Detail)
}

// InternalError wraps a broken compiler invariant.  Panics in debug builds,
// propagates in release ones.
type InternalError struct {
	Detail string
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("internal: %s", e.Detail)
}

// Internalf constructs (or, under Debug, raises) an internal invariant
// violation.
func Internalf(format string, args ...any) error {
	err := &InternalError{Detail: fmt.Sprintf(format, args...)}
	//
	if Debug {
		panic(err)
	}
	//
	return err
}
