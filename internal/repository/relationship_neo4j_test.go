package repository

import (
	"testing"
	"time"

	"chatgraph/internal/models"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
)

func record(kv map[string]any) *neo4j.Record {
	rec := &neo4j.Record{}
	for k, v := range kv {
		rec.Keys = append(rec.Keys, k)
		rec.Values = append(rec.Values, v)
	}
	return rec
}

func TestStatusFromRecord(t *testing.T) {
	tests := []struct {
		name string
		rec  *neo4j.Record
		want models.RequestStatus
	}{
		{"friends win over pending flags", record(map[string]any{"friend": true, "sent": true, "received": true}), models.RequestStatusFriend},
		{"sent", record(map[string]any{"friend": false, "sent": true, "received": false}), models.RequestStatusSent},
		{"received", record(map[string]any{"friend": false, "sent": false, "received": true}), models.RequestStatusReceived},
		{"nothing", record(map[string]any{"friend": false, "sent": false, "received": false}), models.RequestStatusNone},
		{"null columns", record(map[string]any{"friend": nil, "sent": nil}), models.RequestStatusNone},
		{"missing columns", record(nil), models.RequestStatusNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFromRecord(tt.rec))
		})
	}
}

func TestRoomFromRecord(t *testing.T) {
	created := time.Date(2024, 3, 1, 12, 30, 0, 0, time.FixedZone("CET", 3600))

	room := roomFromRecord(record(map[string]any{
		"id":        "room-1",
		"name":      "Hikers",
		"isGroup":   true,
		"createdAt": created,
	}))

	assert.Equal(t, "room-1", room.ID)
	assert.Equal(t, "Hikers", room.Name)
	assert.True(t, room.IsGroup)
	assert.True(t, created.Equal(room.CreatedAt))
	assert.Equal(t, time.UTC, room.CreatedAt.Location())

	partial := roomFromRecord(record(map[string]any{"id": "room-2"}))
	assert.Equal(t, "room-2", partial.ID)
	assert.Empty(t, partial.Name)
	assert.False(t, partial.IsGroup)
	assert.True(t, partial.CreatedAt.IsZero())
}

func TestRecordAccessors(t *testing.T) {
	rec := record(map[string]any{
		"name":  "amy",
		"count": int64(7),
		"flag":  true,
		"when":  time.Unix(0, 0),
		"wrong": 3.5,
	})

	assert.Equal(t, "amy", recString(rec, "name"))
	assert.Equal(t, 7, recInt(rec, "count"))
	assert.True(t, recBool(rec, "flag"))
	assert.Equal(t, time.Unix(0, 0).UTC(), recTime(rec, "when"))

	// Mismatched or absent values fall back to zero values.
	assert.Empty(t, recString(rec, "wrong"))
	assert.Zero(t, recInt(rec, "name"))
	assert.False(t, recBool(rec, "absent"))
	assert.True(t, recTime(rec, "count").IsZero())
}

func TestStringsOrEmpty(t *testing.T) {
	assert.Equal(t, []string{}, stringsOrEmpty(nil))
	assert.NotNil(t, stringsOrEmpty(nil))
	assert.Equal(t, []string{"a", "b"}, stringsOrEmpty([]string{"a", "b"}))
}
