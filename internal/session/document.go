package session

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// migration upgrades a raw document by one schema version.
type migration func(data []byte) ([]byte, error)

// migrations[v] upgrades a version v document to v+1.
var migrations = []migration{
	migrateLegacyKeys,
	migrateCompletionFlag,
}

// Decode parses a stored document, upgrading it to SchemaVersion first.
// It reports whether any migration ran.
func Decode(data []byte) (*Session, bool, error) {
	if !gjson.ValidBytes(data) {
		return nil, false, fmt.Errorf("invalid session document")
	}

	version := int(gjson.GetBytes(data, "schema_version").Int())
	if version > SchemaVersion {
		return nil, false, fmt.Errorf("session document version %d is newer than supported %d", version, SchemaVersion)
	}

	migrated := false
	for v := version; v < SchemaVersion; v++ {
		var err error
		data, err = migrations[v](data)
		if err != nil {
			return nil, false, fmt.Errorf("migrating session document to v%d: %w", v+1, err)
		}
		data, err = sjson.SetBytes(data, "schema_version", v+1)
		if err != nil {
			return nil, false, err
		}
		migrated = true
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, false, fmt.Errorf("decoding session document: %w", err)
	}
	if s.Status == "" {
		s.Status = StatusActive
	}
	return &s, migrated, nil
}

// Encode serializes s at the current schema version.
func Encode(s *Session) ([]byte, error) {
	s.SchemaVersion = SchemaVersion
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding session document: %w", err)
	}
	return data, nil
}

// migrateLegacyKeys renames the keys of unversioned documents and
// converts their epoch-second timestamps.
func migrateLegacyKeys(data []byte) ([]byte, error) {
	var err error

	if chars := gjson.GetBytes(data, "characters"); chars.Exists() {
		if !gjson.GetBytes(data, "participants").Exists() {
			if data, err = sjson.SetRawBytes(data, "participants", []byte(chars.Raw)); err != nil {
				return nil, err
			}
		}
		if data, err = sjson.DeleteBytes(data, "characters"); err != nil {
			return nil, err
		}
	}

	for _, key := range []string{"created_at", "updated_at", "paused_at"} {
		if data, err = convertEpoch(data, key); err != nil {
			return nil, err
		}
	}

	msgs := gjson.GetBytes(data, "messages").Array()
	for i, msg := range msgs {
		prefix := fmt.Sprintf("messages.%d.", i)
		if data, err = renameKey(data, msg, prefix, "type", "kind"); err != nil {
			return nil, err
		}
		if data, err = renameKey(data, msg, prefix, "character", "speaker"); err != nil {
			return nil, err
		}
		if data, err = convertEpoch(data, prefix+"timestamp"); err != nil {
			return nil, err
		}
		if !msg.Get("id").Exists() {
			if data, err = sjson.SetBytes(data, prefix+"id", uuid.NewString()); err != nil {
				return nil, err
			}
		}
	}

	if !gjson.GetBytes(data, "status").Exists() {
		if data, err = sjson.SetBytes(data, "status", StatusActive); err != nil {
			return nil, err
		}
	}
	return data, nil
}

// migrateCompletionFlag derives is_completed from status when missing.
func migrateCompletionFlag(data []byte) ([]byte, error) {
	if gjson.GetBytes(data, "is_completed").Exists() {
		return data, nil
	}
	completed := gjson.GetBytes(data, "status").String() == string(StatusCompleted)
	return sjson.SetBytes(data, "is_completed", completed)
}

func renameKey(data []byte, msg gjson.Result, prefix, from, to string) ([]byte, error) {
	old := msg.Get(from)
	if !old.Exists() {
		return data, nil
	}
	var err error
	if !msg.Get(to).Exists() {
		if data, err = sjson.SetRawBytes(data, prefix+to, []byte(old.Raw)); err != nil {
			return nil, err
		}
	}
	return sjson.DeleteBytes(data, prefix+from)
}

// convertEpoch rewrites a numeric epoch-seconds value at path as RFC 3339.
// A null value is removed.
func convertEpoch(data []byte, path string) ([]byte, error) {
	v := gjson.GetBytes(data, path)
	switch v.Type {
	case gjson.Number:
		sec, frac := math.Modf(v.Float())
		ts := time.Unix(int64(sec), int64(frac*1e9)).UTC()
		return sjson.SetBytes(data, path, ts.Format(time.RFC3339Nano))
	case gjson.Null:
		if v.Exists() {
			return sjson.DeleteBytes(data, path)
		}
	}
	return data, nil
}
