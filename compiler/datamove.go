package compiler

import (
	"github.com/hicann/fftsplus/core"
	"github.com/hicann/fftsplus/model"
)

// Data-movement contexts keep their addresses inside the struct, so every
// address goes through Level1.

func (d *Dispatcher) lowerSDMA(c *model.SDMA, env *Env, lw *Lowered) error {
	if err := appendLevel1(env.Table, c.ID, offSdmaSrc, c.Src); err != nil {
		return err
	}
	if err := appendLevel1(env.Table, c.ID, offSdmaDst, c.Dst); err != nil {
		return err
	}
	lw.Raw.PutU32(offSqeHeader, c.SqeHeader)
	lw.Raw.PutU32(offSdmaLen, c.Length)
	return nil
}

func (d *Dispatcher) lowerData(c *model.Data, env *Env, lw *Lowered) error {
	if c.Op < model.DataFlush || c.Op > model.DataPrefetch {
		return core.ParamInvalidf("unknown cache maintenance op %d", c.Op)
	}
	if err := appendLevel1(env.Table, c.ID, offDataAddr, c.Addr); err != nil {
		return err
	}
	raw := &lw.Raw
	raw.PutU8(offDataOp, uint8(c.Op))
	raw.PutU32(offDataLen, c.Length)
	raw.PutU16(offDataNonTail, c.NonTailCount)
	raw.PutU16(offDataTail, c.TailCount)
	raw.PutU32(offDataStride, c.Stride)
	return nil
}

func (d *Dispatcher) lowerWriteValue(c *model.WriteValue, env *Env, lw *Lowered) error {
	if len(c.Values) == 0 || len(c.Values) > MaxWriteValues {
		return core.ParamInvalidf("write value carries %d values, want 1..%d", len(c.Values), MaxWriteValues)
	}
	if err := appendLevel1(env.Table, c.ID, offWriteAddr, c.Addr); err != nil {
		return err
	}
	raw := &lw.Raw
	raw.PutU8(offAWSize, c.AWSize)
	raw.PutU8(offSnoop, c.Snoop)
	for i, v := range c.Values {
		raw.PutU32(offWriteValues+4*i, v)
	}
	return nil
}

// lowerCachePersist tags tensors rather than table slots.
func (d *Dispatcher) lowerCachePersist(c *model.CachePersist, lw *Lowered) error {
	raw := &lw.Raw
	raw.PutU16(offPersistID, c.PersistentID)
	raw.PutU8(offPersistEnable, 1)
	raw.PutU64(offPersistSize, c.Size)
	for _, name := range c.Tensors {
		if name == "" {
			return core.ParamInvalidf("cache persist %d tags an unnamed tensor", c.ID)
		}
		lw.PersistTags = append(lw.PersistTags, PersistTag{Tensor: name, ID: c.PersistentID})
	}
	return nil
}
