package format_test

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/ghcatalog/engine/format"
)

type person struct {
	ID         int32
	FollowLen  int32
	Follow     []int32
	NameLen    int32
	Name       string
	BioLen     int32
	Bio        string
	Joined     format.DateTime
	Kind       personKind
}

type personKind uint8

const (
	kindA personKind = iota
	kindB
)

func personFormat(t *testing.T, sep byte) *format.Format[person] {
	t.Helper()
	f, err := format.NewFormat[person](sep,
		format.Int32Field("id", func(p *person) int32 { return p.ID }, func(p *person, v int32) { p.ID = v }),
		format.LengthField[person]("follow_len", func(p *person) int { return len(p.Follow) }),
		format.Int32ListField("follow", 1, func(p *person) []int32 { return p.Follow }, func(p *person, v []int32) { p.Follow = v }),
		format.LengthField[person]("name_len", func(p *person) int { return len(p.Name) }),
		format.StringField("name", 3, func(p *person) string { return p.Name }, func(p *person, v string) { p.Name = v }),
		format.LengthField[person]("bio_len", func(p *person) int { return len(p.Bio) }),
		format.StringNullField("bio", 5, func(p *person) string { return p.Bio }, func(p *person, v string) { p.Bio = v }),
		format.DateTimeField("joined", func(p *person) format.DateTime { return p.Joined }, func(p *person, v format.DateTime) { p.Joined = v }),
		format.EnumField("kind", []string{"A", "B"}, func(p *person) personKind { return p.Kind }, func(p *person, v personKind) { p.Kind = v }),
	)
	require.NoError(t, err)
	return f
}

func TestFormatBinaryRoundTrip(t *testing.T) {
	// Property 1 (binary half): read_binary(write_binary(r)) == r.
	mock := clock.NewMock()
	mock.Set(time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC))
	old := format.Clock
	format.Clock = mock
	defer func() { format.Clock = old }()

	fmtr := personFormat(t, ';')
	rec := person{
		ID:     42,
		Follow: []int32{3, 9, 27},
		Name:   "ada",
		Bio:    "",
		Joined: format.DateTime{Year: 2019, Month: 3, Day: 4, Hour: 1, Minute: 2, Second: 3},
		Kind:   kindB,
	}
	buf := fmtr.WriteBinary(rec)
	got, n := fmtr.ReadBinary(buf)
	require.Equal(t, len(buf), n)
	require.Equal(t, rec, got)
}

func TestFormatTextRoundTrip(t *testing.T) {
	// Property 1 (text half): print_text(parse(t)) == t.
	mock := clock.NewMock()
	mock.Set(time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC))
	old := format.Clock
	format.Clock = mock
	defer func() { format.Clock = old }()

	fmtr := personFormat(t, ';')
	line := "42;3;[3, 9, 27];3;ada;0;;2019-03-04 01:02:03;B"
	rec, ok := fmtr.Parse(line)
	require.True(t, ok)
	require.Equal(t, line, fmtr.Print(rec))
}

func TestFormatValidateRejectsMalformedRows(t *testing.T) {
	fmtr := personFormat(t, ';')
	require.False(t, fmtr.Validate("not;enough;fields"))
	require.False(t, fmtr.Validate("42;3;[3, 9, 27];3;;0;;2019-03-04 01:02:03;B"), "name must be non-empty")
	require.False(t, fmtr.Validate("42;3;[3, 9, 27];3;ada;0;;2019-03-04 01:02:03;Z"), "unknown kind")
}
