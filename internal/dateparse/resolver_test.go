package dateparse_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jonesrussell/nmls-crawler/internal/dateparse"
	"github.com/jonesrussell/nmls-crawler/internal/logger"
)

var moscow = time.FixedZone("MSK", 3*60*60)

func fixedClock(t time.Time) dateparse.Clock {
	return func() time.Time { return t }
}

func newResolver(now time.Time) *dateparse.Resolver {
	return dateparse.New(dateparse.RussianMonths(),
		dateparse.WithClock(fixedClock(now)),
		dateparse.WithLocation(moscow),
	)
}

func TestResolve(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, time.March, 1, 8, 15, 42, 0, moscow)
	r := newResolver(now)

	tests := []struct {
		name string
		text string
		want time.Time
	}{
		{"today", "Сегодня, 14:30", time.Date(2026, 3, 1, 14, 30, 0, 0, moscow)},
		{"yesterday crosses month", "Вчера, 09:05", time.Date(2026, 2, 28, 9, 5, 0, 0, moscow)},
		{"lower case", "сегодня,23:59", time.Date(2026, 3, 1, 23, 59, 0, 0, moscow)},
		{"day month year", "15 мая 2023", time.Date(2023, 5, 15, 0, 0, 0, 0, moscow)},
		{"day month", "15 мая", time.Date(2026, 5, 15, 0, 0, 0, 0, moscow)},
		{"nominative month", "3 Январь 2024", time.Date(2024, 1, 3, 0, 0, 0, 0, moscow)},
		{"embedded", "Размещено 7 октября 2025 г.", time.Date(2025, 10, 7, 0, 0, 0, 0, moscow)},
		{"numeric with time", "01.01.2024 10:00", time.Date(2024, 1, 1, 10, 0, 0, 0, moscow)},
		{"numeric date", "01.01.2024", time.Date(2024, 1, 1, 0, 0, 0, 0, moscow)},
		{"surrounding space", "  01.01.2024  ", time.Date(2024, 1, 1, 0, 0, 0, 0, moscow)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := r.Resolve(tt.text)
			require.NotNil(t, got)
			assert.True(t, tt.want.Equal(*got), "got %s want %s", got, tt.want)
		})
	}
}

func TestResolve_Null(t *testing.T) {
	t.Parallel()

	r := newResolver(time.Date(2026, 3, 1, 0, 0, 0, 0, moscow))

	for _, text := range []string{"", "   ", "garbage", "31 июня 2024", "15 смарта 2024", "Сегодня, 25:00", "32.01.2024"} {
		assert.Nil(t, r.Resolve(text), text)
	}
}

func TestResolve_InvalidTimeFallsThrough(t *testing.T) {
	t.Parallel()

	r := newResolver(time.Date(2026, 3, 1, 0, 0, 0, 0, moscow))

	// The relative-day attempt rejects 24:10, the named-month attempt then
	// still sees "5 мая".
	got := r.Resolve("Сегодня, 24:10 / 5 мая")
	require.NotNil(t, got)
	assert.Equal(t, time.Date(2026, 5, 5, 0, 0, 0, 0, moscow), *got)
}

func TestResolve_LogsUnrecognized(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.WarnLevel)
	r := dateparse.New(dateparse.RussianMonths(),
		dateparse.WithLogger(logger.NewFromZap(zap.New(core))),
	)

	assert.Nil(t, r.Resolve("когда-нибудь"))
	require.Equal(t, 1, logs.FilterMessage("Unrecognized date").Len())
	assert.Equal(t, "когда-нибудь", logs.FilterMessage("Unrecognized date").All()[0].ContextMap()["text"])
}

func TestResolve_UsesClockAtCallTime(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 12, 31, 23, 0, 0, 0, moscow)
	clock := func() time.Time { return now }
	r := dateparse.New(dateparse.RussianMonths(), dateparse.WithClock(clock), dateparse.WithLocation(moscow))

	first := r.Resolve("Сегодня, 10:00")
	now = now.Add(2 * time.Hour)
	second := r.Resolve("Сегодня, 10:00")

	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.Equal(t, 2025, first.Year())
	assert.Equal(t, 2026, second.Year())
}
