package store

import "encoding/json"

// snapshotAlias lets MarshalJSON/UnmarshalJSON invoke the default struct
// codec on Snapshot's modeled fields without recursing into themselves.
type snapshotAlias Snapshot

var knownSnapshotFields = map[string]bool{
	"id": true, "timestamp": true, "sequence_number": true,
	"previous_snapshot_id": true, "tool": true, "description": true,
	"affected_files": true, "diff": true, "reverse_diff": true,
	"base_file_hashes": true, "result_file_hashes": true, "context": true,
	"metadata": true, "diff_path": true, "reverse_diff_path": true,
	"sequence_range": true, "consolidated_from": true, "consolidation_metadata": true,
}

// MarshalJSON writes every modeled field plus any entries carried in Extra
// that this version of the struct doesn't model, so a round trip through an
// older binary never drops fields a newer one wrote.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(snapshotAlias(s))
	if err != nil {
		return nil, err
	}
	if len(s.Extra) == 0 {
		return base, nil
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range s.Extra {
		if _, exists := merged[k]; exists {
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		merged[k] = raw
	}
	return json.Marshal(merged)
}

// UnmarshalJSON populates the modeled fields and stashes every unrecognized
// top-level key into Extra.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var alias snapshotAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	*s = Snapshot(alias)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var extra map[string]interface{}
	for k, v := range raw {
		if knownSnapshotFields[k] {
			continue
		}
		var val interface{}
		if err := json.Unmarshal(v, &val); err != nil {
			continue
		}
		if extra == nil {
			extra = make(map[string]interface{})
		}
		extra[k] = val
	}
	s.Extra = extra
	return nil
}
