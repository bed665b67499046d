package meshsync

import (
	"encoding/json"
	"fmt"

	"github.com/DobryySoul/meshsync/internal/wire"
	"github.com/DobryySoul/meshsync/model"
)

// encodeRecord maps a record onto its packet kind and JSON payload.
func encodeRecord(rec model.Record) (wire.Kind, []byte, error) {
	if rec == nil {
		return "", nil, fmt.Errorf("%w: nil record", ErrUnsupportedRecord)
	}
	kind := wire.Kind(rec.RecordKind())
	if !kind.IsRecord() {
		return "", nil, fmt.Errorf("%w: %T has kind %q", ErrUnsupportedRecord, rec, kind)
	}
	if rec.RecordID() == "" {
		return "", nil, fmt.Errorf("%w: empty record id", ErrUnsupportedRecord)
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return "", nil, fmt.Errorf("meshsync: encode %s: %w", kind, err)
	}
	return kind, payload, nil
}

// decodeRecord parses a packet payload. Records without an id are rejected
// as malformed.
func decodeRecord[R model.Record](payload []byte) (R, error) {
	var rec R
	if len(payload) == 0 {
		return rec, fmt.Errorf("%w: empty payload", wire.ErrMalformed)
	}
	if err := json.Unmarshal(payload, &rec); err != nil {
		return rec, fmt.Errorf("%w: %w", wire.ErrMalformed, err)
	}
	if rec.RecordID() == "" {
		return rec, fmt.Errorf("%w: record without id", wire.ErrMalformed)
	}
	return rec, nil
}
