package models

import (
	_ "embed"
)

var (
	//go:embed schema/supabase.sql
	supabaseSchema string

	//go:embed schema/supabase_rsvp_unique.sql
	supabaseRSVPUnique string
)

// SupabaseSchema returns the SQL that creates every collection as a table
// with its row level security policies. uniqueRSVP adds the (hive_id,
// user_id) unique index that upsert-mode RSVPs rely on; append mode must
// not have it.
func SupabaseSchema(uniqueRSVP bool) string {
	if !uniqueRSVP {
		return supabaseSchema
	}
	return supabaseSchema + "\n" + supabaseRSVPUnique
}
