package redis

import (
	"fmt"
	"strconv"
	"time"

	"github.com/goodtune/promptlog/internal/storage"
)

const defaultKeyPrefix = "promptlog"

// keySpace builds the versioned key names, e.g. "promptlog:v1:session".
type keySpace struct {
	prefix string
}

func newKeySpace(prefix string) keySpace {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return keySpace{prefix: prefix + ":" + storage.SchemaVersion}
}

func (k keySpace) key(name string) string {
	return k.prefix + ":" + name
}

func (k keySpace) activities() string { return k.key(storage.KeyActivities) }
func (k keySpace) settings() string   { return k.key(storage.KeySettings) }
func (k keySpace) session() string    { return k.key(storage.KeySession) }

// sessionFields converts a Session to Redis hash arguments.
func sessionFields(session storage.Session) []interface{} {
	return []interface{}{
		"start", session.Start.Format(time.RFC3339Nano),
		"lastNotification", session.LastNotification.Format(time.RFC3339Nano),
		"intervalMs", strconv.FormatInt(session.IntervalMS, 10),
	}
}

// parseSession converts a Redis hash to Session
func parseSession(data map[string]string) (*storage.Session, error) {
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	start, err := time.Parse(time.RFC3339Nano, data["start"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse start: %w", err)
	}

	lastNotification, err := time.Parse(time.RFC3339Nano, data["lastNotification"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse lastNotification: %w", err)
	}

	var intervalMS int64
	if raw := data["intervalMs"]; raw != "" {
		intervalMS, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse intervalMs: %w", err)
		}
	}

	return &storage.Session{
		Start:            start,
		LastNotification: lastNotification,
		IntervalMS:       intervalMS,
	}, nil
}
