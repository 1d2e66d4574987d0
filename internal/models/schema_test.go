package models

import (
	"reflect"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tableDDL(t *testing.T, schema, table string) string {
	t.Helper()
	head := "create table if not exists public." + table + " ("
	start := strings.Index(schema, head)
	require.NotEqual(t, -1, start, "no table for %s", table)
	end := strings.Index(schema[start:], ");")
	require.NotEqual(t, -1, end)
	return schema[start : start+end]
}

func jsonColumns(v any) []string {
	var cols []string
	typ := reflect.TypeOf(v)
	for i := 0; i < typ.NumField(); i++ {
		name := strings.Split(typ.Field(i).Tag.Get("json"), ",")[0]
		if name != "" && name != "-" {
			cols = append(cols, name)
		}
	}
	return cols
}

func TestSupabaseSchemaCoversCollections(t *testing.T) {
	schema := SupabaseSchema(true)
	byTable := map[string]any{
		HivesCollection:     Hive{},
		BuzzCollection:      Buzz{},
		AttendeesCollection: HiveAttendee{},
		ProfilesCollection:  Profile{},
	}
	require.Len(t, byTable, len(Collections))

	for _, col := range Collections {
		t.Run(col, func(t *testing.T) {
			ddl := tableDDL(t, schema, col)
			for _, field := range jsonColumns(byTable[col]) {
				assert.Contains(t, ddl, "\n    "+field+" ", "column %s", field)
			}
			assert.Contains(t, schema, "alter table public."+col+" enable row level security;")
			assert.Contains(t, schema, " on public."+col+" for select")
		})
	}
}

func TestSupabaseSchemaRSVPIndex(t *testing.T) {
	const unique = "create unique index if not exists hive_attendees_hive_user_unique_idx"
	assert.Contains(t, SupabaseSchema(true), unique)
	assert.NotContains(t, SupabaseSchema(false), unique)
	assert.True(t, strings.HasPrefix(SupabaseSchema(true), SupabaseSchema(false)))
}
