package catalog

import "github.com/ghcatalog/engine/format"

// StaticQueries holds the four scalar aggregates precomputed during the
// friend-flag pass (spec.md §4.5 step 7), persisted in staticQueries.dat
// so a reload need not recompute them (spec.md §8 property 8).
type StaticQueries struct {
	UserCount         int32
	OrganizationCount int32
	BotCount          int32
	Q2                float64 // average collaborators per repo
	Q3                float64 // repos with at least one bot commit, stored as a double per spec.md §6
	Q4                float64 // average commits per account
}

// staticQueriesFormat describes the exact 36-byte layout of spec.md §6:
// three int32 kind counts, three 64-bit doubles.
func staticQueriesFormat() (*format.Format[StaticQueries], error) {
	return format.NewFormat[StaticQueries](0,
		format.Int32Field("bot_count", func(s *StaticQueries) int32 { return s.BotCount }, func(s *StaticQueries, v int32) { s.BotCount = v }),
		format.Int32Field("organization_count", func(s *StaticQueries) int32 { return s.OrganizationCount }, func(s *StaticQueries, v int32) { s.OrganizationCount = v }),
		format.Int32Field("user_count", func(s *StaticQueries) int32 { return s.UserCount }, func(s *StaticQueries, v int32) { s.UserCount = v }),
		format.DoubleField("q2", func(s *StaticQueries) float64 { return s.Q2 }, func(s *StaticQueries, v float64) { s.Q2 = v }),
		format.DoubleField("q3", func(s *StaticQueries) float64 { return s.Q3 }, func(s *StaticQueries, v float64) { s.Q3 = v }),
		format.DoubleField("q4", func(s *StaticQueries) float64 { return s.Q4 }, func(s *StaticQueries, v float64) { s.Q4 = v }),
	)
}

const staticQueriesSize = 4*3 + 8*3 // 36 bytes, per spec.md §6
