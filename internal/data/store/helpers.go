package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"go.mau.fi/whatsmeow/types"
)

// Helper functions for null-safe SQL operations

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func fromNullMillis(n sql.NullInt64) time.Time {
	if !n.Valid {
		return time.Time{}
	}
	return fromMillis(n.Int64)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func jsonMarshalStrings(v []string) sql.NullString {
	if len(v) == 0 {
		return sql.NullString{}
	}
	b, _ := json.Marshal(v)
	return sql.NullString{String: string(b), Valid: true}
}

func jsonUnmarshalStrings(ns sql.NullString) []string {
	var result []string
	if ns.Valid && ns.String != "" {
		json.Unmarshal([]byte(ns.String), &result)
	}
	return result
}

func parseNullJID(ns sql.NullString) types.JID {
	if !ns.Valid || ns.String == "" {
		return types.JID{}
	}
	jid, _ := types.ParseJID(ns.String)
	return jid
}
