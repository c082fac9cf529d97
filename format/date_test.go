package format_test

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/ghcatalog/engine/format"
)

func withMockClock(t *testing.T, now time.Time) {
	t.Helper()
	mock := clock.NewMock()
	mock.Set(now)
	old := format.Clock
	format.Clock = mock
	t.Cleanup(func() { format.Clock = old })
}

func TestDatePackUnpackRoundTrip(t *testing.T) {
	withMockClock(t, time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC))
	d := format.DateTime{Year: 2021, Month: 6, Day: 15, Hour: 13, Minute: 45, Second: 9}
	packed, err := format.Pack(d)
	require.NoError(t, err)
	require.Equal(t, d, format.Unpack(packed))
}

func TestDatePackOrderingMatchesChronologicalOrder(t *testing.T) {
	// Property 2: compare(d1,d2) == sign(pack(d1) - pack(d2)).
	withMockClock(t, time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC))
	earlier := format.DateTime{Year: 2019, Month: 1, Day: 1, Hour: 0, Minute: 0, Second: 0}
	later := format.DateTime{Year: 2019, Month: 1, Day: 1, Hour: 0, Minute: 0, Second: 1}

	pe, err := format.Pack(earlier)
	require.NoError(t, err)
	pl, err := format.Pack(later)
	require.NoError(t, err)

	require.Less(t, pe, pl)
	require.Equal(t, -1, format.Compare(earlier, later))
	require.Equal(t, 1, format.Compare(later, earlier))
	require.Equal(t, 0, format.Compare(earlier, earlier))
}

func TestDateValidityRejectsFutureAndCalendarErrors(t *testing.T) {
	withMockClock(t, time.Date(2022, 6, 1, 0, 0, 0, 0, time.UTC))

	require.True(t, format.DateTime{Year: 2022, Month: 5, Day: 1, Hour: 0, Minute: 0, Second: 0}.Valid())
	require.False(t, format.DateTime{Year: 2022, Month: 7, Day: 1, Hour: 0, Minute: 0, Second: 0}.Valid(), "future date")
	require.False(t, format.DateTime{Year: 2021, Month: 2, Day: 29, Hour: 0, Minute: 0, Second: 0}.Valid(), "not a leap year")
	require.True(t, format.DateTime{Year: 2020, Month: 2, Day: 29, Hour: 0, Minute: 0, Second: 0}.Valid(), "leap year")
	require.False(t, format.DateTime{Year: 2004, Month: 1, Day: 1, Hour: 0, Minute: 0, Second: 0}.Valid(), "before 2005")
}

func TestParseDateTimeRoundTripsThroughString(t *testing.T) {
	withMockClock(t, time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC))
	d, err := format.ParseDateTime("2021-06-15 13:45:09")
	require.NoError(t, err)
	require.Equal(t, "2021-06-15 13:45:09", d.String())
}
