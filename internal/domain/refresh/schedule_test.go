package refresh

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/target/refresh-orchestrator/internal/errors"
)

func at(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		panic(err)
	}
	return t
}

func TestParseSchedule_Invalid(t *testing.T) {
	for _, expr := range []string{"", "not a cron", "61 * * * *", "* * * *", "@every 5m"} {
		t.Run(expr, func(t *testing.T) {
			_, err := ParseSchedule(expr)
			require.Error(t, err)
			assert.True(t, apperrors.IsValidation(err))
		})
	}
}

func TestParseSchedule_Descriptors(t *testing.T) {
	s, err := ParseSchedule("@hourly")
	require.NoError(t, err)
	assert.Equal(t, at("2026-10-18T13:00:00Z"), s.Next(at("2026-10-18T12:30:00Z")))
}

func TestSchedule_PrevInclusive(t *testing.T) {
	s := MustParseSchedule("0 12 * * *")

	assert.Equal(t, at("2026-10-18T12:00:00Z"), s.Prev(at("2026-10-18T12:00:00Z")))
	assert.Equal(t, at("2026-10-18T12:00:00Z"), s.Prev(at("2026-10-18T12:00:00.2Z")))
	assert.Equal(t, at("2026-10-17T12:00:00Z"), s.Prev(at("2026-10-18T11:59:59.8Z")))
}

func TestSchedule_PrevSparse(t *testing.T) {
	s := MustParseSchedule("0 0 1 1 *")
	assert.Equal(t, at("2026-01-01T00:00:00Z"), s.Prev(at("2026-10-18T12:00:00Z")))

	leap := MustParseSchedule("0 0 29 2 *")
	assert.Equal(t, at("2024-02-29T00:00:00Z"), leap.Prev(at("2026-10-18T12:00:00Z")))
}

func TestSchedule_EvaluatedInUTC(t *testing.T) {
	s := MustParseSchedule("30 9 * * *")
	local := time.FixedZone("UTC-5", -5*3600)
	now := time.Date(2026, 10, 18, 4, 30, 10, 0, local)

	check := s.CheckDue(now)
	assert.True(t, check.Due)
	assert.Equal(t, at("2026-10-18T09:30:00Z"), check.FireAt)
}

func TestCheckDue_JitterAroundMinuteBoundary(t *testing.T) {
	s := MustParseSchedule("0 12 * * *")

	early := s.CheckDue(at("2026-10-18T11:59:59.8Z"))
	assert.False(t, early.Due, "fire instant belongs to the next minute window")
	assert.Equal(t, at("2026-10-18T12:00:00Z"), early.Next)

	late := s.CheckDue(at("2026-10-18T12:00:00.2Z"))
	assert.True(t, late.Due)
	assert.Equal(t, at("2026-10-18T12:00:00Z"), late.FireAt)
	assert.Equal(t, "2026-10-18T12:00Z", late.FireKey())

	endOfMinute := s.CheckDue(at("2026-10-18T12:00:59.999Z"))
	assert.True(t, endOfMinute.Due)

	after := s.CheckDue(at("2026-10-18T12:01:00Z"))
	assert.False(t, after.Due)
	assert.Empty(t, after.FireKey())
}

func TestCheckDue_EveryMinute(t *testing.T) {
	s := MustParseSchedule("* * * * *")
	check := s.CheckDue(at("2026-10-18T12:07:31Z"))
	assert.True(t, check.Due)
	assert.Equal(t, at("2026-10-18T12:07:00Z"), check.FireAt)
}

// Every fire instant must be seen by exactly one pass when passes run once per minute
// at an arbitrary offset inside the minute.
func TestCheckDue_NoFireMissedAcrossConsecutiveMinutes(t *testing.T) {
	exprs := []string{"* * * * *", "*/5 * * * *", "7,8,59 * * * *", "0 */2 * * *", "15 10 * * 1-5", "@daily"}
	offsets := []time.Duration{0, 200 * time.Millisecond, 29 * time.Second, 59*time.Second + 800*time.Millisecond}
	start := at("2026-10-19T00:00:00Z") // a Monday
	end := start.Add(26 * time.Hour)

	for _, expr := range exprs {
		s := MustParseSchedule(expr)

		fires := map[time.Time]bool{}
		for f := s.Next(start.Add(-time.Second)); f.Before(end); f = s.Next(f) {
			fires[f] = false
		}
		require.NotEmpty(t, fires, expr)

		for minute := start; minute.Before(end); minute = minute.Add(time.Minute) {
			for _, offset := range offsets {
				check := s.CheckDue(minute.Add(offset))
				_, scheduled := fires[minute]
				assert.Equal(t, scheduled, check.Due, "%s at %s", expr, minute.Add(offset))
				if check.Due {
					assert.Equal(t, minute, check.FireAt)
					fires[minute] = true
				}
			}
		}

		for f, seen := range fires {
			assert.True(t, seen, "%s: fire at %s never detected", expr, f)
		}
	}
}

func TestIsDue_InvalidSchedule(t *testing.T) {
	_, err := IsDue("bogus", time.Now())
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}

func TestMinuteWindow(t *testing.T) {
	start, end := MinuteWindow(at("2026-10-18T12:34:56.789Z"))
	assert.Equal(t, at("2026-10-18T12:34:00Z"), start)
	assert.Equal(t, at("2026-10-18T12:35:00Z"), end)
}
