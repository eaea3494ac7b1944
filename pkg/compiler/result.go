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
package compiler

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"

	"github.com/fjordgpu/go-fjord/pkg/ir"
)

// resultVersion guards cached results across format changes.
const resultVersion uint32 = 1

// MarshalResult flattens a compiled program's byte stream and metadata into
// the blob stored by the shader cache.
func MarshalResult(p *ir.Program) []byte {
	var buf bytes.Buffer
	//
	w := func(v any) {
		// Writing to a bytes.Buffer cannot fail.
		_ = binary.Write(&buf, binary.LittleEndian, v)
	}
	//
	w(resultVersion)
	w(p.Meta.FirstTag)
	w(p.Meta.WorkRegisterCount)
	w(p.Meta.UniformCutoff)
	w(p.Meta.BlendPatchOffset)
	w(p.Meta.WritesPointSize)
	w(p.Meta.CanDiscard)
	w(p.Meta.StreamBufferMask)
	w(uint32(len(p.Binary)))
	buf.Write(p.Binary)
	//
	return buf.Bytes()
}

// UnmarshalResult reverses MarshalResult.
func UnmarshalResult(data []byte) (ir.Metadata, []byte, error) {
	var (
		meta    ir.Metadata
		version uint32
		length  uint32
		buf     = bytes.NewReader(data)
	)
	//
	r := func(v any) error {
		return binary.Read(buf, binary.LittleEndian, v)
	}
	//
	if err := r(&version); err != nil {
		return meta, nil, errors.Wrap(err, "truncated cache entry")
	}
	//
	if version != resultVersion {
		return meta, nil, errors.Errorf("cache entry version %d, want %d", version, resultVersion)
	}
	//
	for _, field := range []any{
		&meta.FirstTag, &meta.WorkRegisterCount, &meta.UniformCutoff,
		&meta.BlendPatchOffset, &meta.WritesPointSize, &meta.CanDiscard,
		&meta.StreamBufferMask, &length,
	} {
		if err := r(field); err != nil {
			return meta, nil, errors.Wrap(err, "truncated cache entry")
		}
	}
	//
	bin := make([]byte, length)
	//
	if _, err := io.ReadFull(buf, bin); err != nil {
		return meta, nil, errors.Wrap(err, "truncated cache entry")
	}
	//
	return meta, bin, nil
}
