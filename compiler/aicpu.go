package compiler

import (
	"encoding/binary"

	"github.com/hicann/fftsplus/core"
	"github.com/hicann/fftsplus/model"
)

// lowerAicpu allocates the context's blob before touching the table, so a blob
// overflow leaves the table as it was.
func (d *Dispatcher) lowerAicpu(c *model.Aicpu, env *Env, lw *Lowered) error {
	if c.Blocking && !d.opts.Capabilities.AicpuBlocking {
		return core.Unsupportedf("blocking aicpu context %d on a device without blocking support", c.ID)
	}

	var (
		blob     []byte
		embedded []model.Embedded
		entry    EntryRecord
		err      error
	)
	switch c.Type {
	case model.AicpuFramework:
		blob = frameworkBlob(c)
		embedded = []model.Embedded{{BlobOffset: blobWorkspace, Addr: c.Workspace}}
		if c.KernelName != "" {
			if entry, err = d.resolve(EngineAIC, c.KernelName); err != nil {
				return err
			}
		}
	case model.AicpuCustom:
		if c.KernelName == "" {
			return core.ParamInvalidf("custom aicpu context %d has no kernel name", c.ID)
		}
		if entry, err = d.resolve(EngineAIC, c.KernelName); err != nil {
			return err
		}
		for _, e := range c.Embedded {
			if int(e.BlobOffset)+core.SlotSize > len(c.Payload) {
				return core.ParamInvalidf("embedded address at payload offset %d outside the %d-byte payload", e.BlobOffset, len(c.Payload))
			}
		}
		blob = c.Payload
		embedded = c.Embedded
	default:
		return core.ParamInvalidf("unknown aicpu type %d", c.Type)
	}

	blobOffset, err := env.Table.AppendBinaryBlob(blob)
	if err != nil {
		return err
	}

	first := nextIndex(env.Table)
	for _, list := range [][]model.Address{c.Inputs, c.Outputs} {
		for _, a := range list {
			if _, err := env.Table.AppendAddr(tableAddr(env.Table, a)); err != nil {
				return err
			}
		}
	}
	count := nextIndex(env.Table) - first

	for _, e := range embedded {
		if _, err := env.Table.AppendAicpuEmbeddedAddress(tableAddr(env.Table, e.Addr), blobOffset+e.BlobOffset); err != nil {
			return err
		}
	}

	raw := &lw.Raw
	if c.Blocking {
		setFlag(raw, flagBlocking)
	}
	raw.PutU32(offArgsOffset, first*core.SlotSize)
	raw.PutU16(offArgsCount, uint16(count))
	raw.PutU8(offAicpuType, uint8(c.Type))
	raw.PutU32(offBlobOffset, blobOffset)
	raw.PutU32(offBlobSize, uint32(len(blob)))
	raw.PutU64(offKernelEntry, entry.Entry)
	raw.PutU64(offSessionID, c.SessionID)
	raw.PutU64(offAicpuKernel, c.KernelID)
	if entry.Entry != 0 {
		lw.Entries = []EntryRecord{entry}
	}
	return nil
}

// frameworkBlob lays out the framework adapter payload: session id, kernel id,
// workspace address (patched on refresh), ext-info length, then ext-info.
func frameworkBlob(c *model.Aicpu) []byte {
	blob := make([]byte, model.FrameworkBlobHeader+len(c.ExtInfo))
	binary.LittleEndian.PutUint64(blob[blobSessionID:], c.SessionID)
	binary.LittleEndian.PutUint64(blob[blobKernelID:], c.KernelID)
	binary.LittleEndian.PutUint32(blob[blobExtInfoSize:], uint32(len(c.ExtInfo)))
	copy(blob[model.FrameworkBlobHeader:], c.ExtInfo)
	return blob
}
