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
package lower

import (
	"github.com/fjordgpu/go-fjord/pkg/ir"
	"github.com/fjordgpu/go-fjord/pkg/target"
)

// DepthTarget is the render target index reserved for the depth output.
const DepthTarget uint8 = 0xff

// TileFormat is the packed framebuffer format description carried in the
// shader key: bits per channel in bits 0-6, float flag in bit 7, signed
// flag in bit 8, channel count minus one in bits 9-11.
type TileFormat uint16

// ChannelBits returns the per-channel width in bits.
func (f TileFormat) ChannelBits() uint8 {
	return uint8(f & 0x7f)
}

// Float reports whether channels hold floating point data.
func (f TileFormat) Float() bool {
	return f&0x80 != 0
}

// Signed reports whether integer channels are signed.
func (f TileFormat) Signed() bool {
	return f&0x100 != 0
}

// Channels returns the channel count.
func (f TileFormat) Channels() uint8 {
	return uint8((f>>9)&7) + 1
}

// MakeTileFormat packs a format description.
func MakeTileFormat(chanBits uint8, channels uint8, float, signed bool) TileFormat {
	f := TileFormat(chanBits & 0x7f)
	//
	if float {
		f |= 0x80
	}
	//
	if signed {
		f |= 0x100
	}
	//
	f |= TileFormat(channels-1) << 9
	//
	return f
}

// UnpackedType maps a tile format to the register lane type raw pack and
// unpack sequences operate over.
func UnpackedType(f TileFormat) ir.Type {
	switch {
	case f.Float() && f.ChannelBits() == 32:
		return ir.TypeF32
	case f.Float():
		return ir.TypeF16
	case f.ChannelBits() == 32 && f.Signed():
		return ir.TypeI32
	case f.ChannelBits() == 32:
		return ir.TypeU32
	case f.ChannelBits() == 8 && f.Signed():
		return ir.TypeI8
	case f.ChannelBits() == 8:
		return ir.TypeU8
	case f.Signed():
		return ir.TypeI16
	default:
		return ir.TypeU16
	}
}

// ConversionImm packs a tile format and its unpacked lane type into the
// immediate payload carried by pack and unpack instructions.
func ConversionImm(f TileFormat, t ir.Type) uint64 {
	return uint64(f) | uint64(t)<<32
}

// lowerFramebuffer legalises tile loads and stores whose format the target
// cannot access typed, by bracketing the raw intrinsic with pack/unpack
// conversions.  The fragment depth output is clamped here when the key
// enables depth clipping.
func lowerFramebuffer(p *ir.Program, tgt *target.Descriptor) error {
	if p.Stage != ir.StageFragment {
		return nil
	}
	//
	var err error
	//
	for _, block := range p.Blocks {
		block.Each(func(id ir.InstrID, insn *ir.Instruction) bool {
			switch insn.Op {
			case ir.OpStoreTile:
				err = lowerTileStore(p, block, id, tgt)
			case ir.OpLoadTile:
				err = lowerTileLoad(p, block, id, tgt)
			}
			//
			return err == nil
		})
		//
		if err != nil {
			return err
		}
	}
	//
	return nil
}

func lowerTileStore(p *ir.Program, block *ir.Block, id ir.InstrID, tgt *target.Descriptor) error {
	insn := p.Instr(id)
	// Depth writes are scalar and format free; clamp when the key says so.
	if insn.Mem.Target == DepthTarget {
		if p.Key.DepthClip {
			clamped := p.NewVirtual(1, ir.PrecFull)
			mov := ir.NewInstr(ir.OpMov, ir.Virt(clamped), insn.Srcs[0])
			mov.DstMod.Saturate = true
			//
			block.InsertBefore(id, mov)
			insn = p.Instr(id)
			insn.Srcs[0] = ir.Virt(clamped)
		}
		//
		return nil
	}
	//
	format := TileFormat(p.Key.TileFormats[insn.Mem.Target&7])
	//
	if !tgt.Quirks.Has(target.NoTypedBlendStores) && !tgt.Quirks.Has(target.NoBlendPacks) {
		return nil
	}
	// Insert the pack conversion in front of the raw store.
	var (
		unpacked = UnpackedType(format)
		packed   = p.NewVirtual(1, ir.PrecFull)
	)
	//
	pack := ir.NewInstr(ir.OpPack, ir.Virt(packed), insn.Srcs[0])
	pack.ImmKind = ir.ImmRaw
	pack.Imm = ConversionImm(format, unpacked)
	//
	block.InsertBefore(id, pack)
	insn = p.Instr(id)
	//
	insn.Srcs[0] = ir.Virt(packed)
	insn.Mem.Elem = ir.TypeB32
	//
	return nil
}

func lowerTileLoad(p *ir.Program, block *ir.Block, id ir.InstrID, tgt *target.Descriptor) error {
	insn := p.Instr(id)
	//
	if tgt.Quirks.Has(target.MissingLoads) {
		return unsupported(ir.OpLoadTile, p.Stage, tgt)
	}
	//
	if !tgt.Quirks.Has(target.NoTypedBlendLoads) {
		return nil
	}
	//
	var (
		format   = TileFormat(p.Key.TileFormats[insn.Mem.Target&7])
		unpacked = UnpackedType(format)
		raw      = p.NewVirtual(insn.Mem.Lanes, ir.PrecFull)
		dst      = insn.Dst
		mask     = insn.DstMod.WriteMask
	)
	// The raw load lands untyped; the unpack behind it restores the typed
	// value.
	insn.Dst = ir.Virt(raw)
	insn.Mem.Elem = ir.TypeB32
	//
	unpack := ir.NewInstr(ir.OpUnpack, dst, ir.Virt(raw))
	unpack.ImmKind = ir.ImmRaw
	unpack.Imm = ConversionImm(format, unpacked)
	unpack.DstMod.WriteMask = mask
	//
	block.InsertAfter(id, unpack)
	//
	return nil
}
