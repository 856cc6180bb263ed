package smartcard

// MigrateData is the smartcard portion of a migration handoff:
// SPICE_MIGRATE_DATA_SMARTCARD from smartcard_channel_send_migrate_data,
// minus the magic/version pair, which marshalMigrateEnvelope and
// unmarshalMigrateEnvelope in channel_sender.go add and check.
type MigrateData struct {
	ReaderAdded bool
	ReadSize    uint32
	Partial     []byte
}

// Marshal captures a Bridge's in-flight partial read for migration,
// implementing the dev->priv->buf_used / reader_added half of
// smartcard_channel_send_migrate_data.
func (b *Bridge) Marshal() MigrateData {
	b.mu.Lock()
	defer b.mu.Unlock()
	partial := make([]byte, b.bufUsed)
	copy(partial, b.buf[:b.bufUsed])
	return MigrateData{
		ReaderAdded: b.readerAdded,
		ReadSize:    uint32(b.bufUsed),
		Partial:     partial,
	}
}

// Restore re-establishes a Bridge's partial-read state from migration
// data, implementing smartcard_device_restore_partial_read /
// smartcard_char_device_handle_migrate_data: reader_added is restored
// first, then read_size bytes are copied into buf (growing it if the
// announced length requires more than the default size), buf_used is set
// to read_size, and buf_pos follows it.
func (b *Bridge) Restore(data MigrateData) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.readerAdded = data.ReaderAdded
	needed := data.ReadSize
	if len(data.Partial) >= HeaderSize {
		if announced := ParseHeader(data.Partial).Length + HeaderSize; announced > needed {
			needed = announced
		}
	}
	if uint32(len(b.buf)) < needed {
		b.growLocked(needed)
	}
	copy(b.buf, data.Partial)
	b.bufUsed = int(data.ReadSize)
}
