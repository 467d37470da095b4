package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventcal/internal/dateutil"
)

func TestParseRecurrence(t *testing.T) {
	t.Parallel()

	cases := []struct {
		tag  string
		want Recurrence
	}{
		{"", None()},
		{"none", None()},
		{"0", None()},
		{" Weekly ", Weekly()},
		{"DAILY", Daily()},
		{"monthly", Monthly()},
		{"1", EveryNDays(1)},
		{"14", EveryNDays(14)},
		{"fortnightly", Unknown("fortnightly")},
	}
	for _, tc := range cases {
		got, err := ParseRecurrence(tc.tag)
		require.NoError(t, err, tc.tag)
		assert.Equal(t, tc.want, got, tc.tag)
	}

	_, err := ParseRecurrence("-3")
	assert.ErrorIs(t, err, ErrInvalidInterval)
}

func TestRecurrenceLabels(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Daily", EveryNDays(1).Label())
	assert.Equal(t, "Weekly", EveryNDays(7).Label())
	assert.Equal(t, "Every 14 days", EveryNDays(14).Label())
	assert.Equal(t, "Monthly", Monthly().Label())
	assert.Empty(t, None().Label())
	assert.Empty(t, Unknown("x").Label())

	assert.Equal(t, 7, Weekly().StepDays())
	assert.Equal(t, 3, EveryNDays(3).StepDays())
	assert.Zero(t, Monthly().StepDays())
	assert.False(t, Unknown("x").Repeats())
}

func TestRecurrenceJSON(t *testing.T) {
	t.Parallel()

	b, err := json.Marshal(EveryNDays(14))
	require.NoError(t, err)
	assert.Equal(t, `"14"`, string(b))

	var r Recurrence
	require.NoError(t, json.Unmarshal([]byte(`7`), &r))
	assert.Equal(t, EveryNDays(7), r)
	require.NoError(t, json.Unmarshal([]byte(`"weekly"`), &r))
	assert.Equal(t, Weekly(), r)
}

func TestEventValidate(t *testing.T) {
	t.Parallel()

	zero := 0
	ok := Event{ID: "1", BaseDate: dateutil.MustParse("2025-06-09")}
	require.NoError(t, ok.Validate())

	noID := ok
	noID.ID = ""
	assert.Error(t, noID.Validate())

	noDate := ok
	noDate.BaseDate = dateutil.Date{}
	assert.Error(t, noDate.Validate())

	badLimit := ok
	badLimit.RegistrationLimit = &zero
	assert.Error(t, badLimit.Validate())

	badInterval := ok
	badInterval.Recurrence = Recurrence{Kind: RecurEveryNDays}
	assert.ErrorIs(t, badInterval.Validate(), ErrInvalidInterval)
}

func TestInstanceKey(t *testing.T) {
	t.Parallel()

	in := Instance{Event: Event{ID: "42"}, InstanceDate: dateutil.MustParse("2025-06-03")}
	assert.Equal(t, "42-2025-06-03", in.Key())
}

func TestAvailabilityNormalize(t *testing.T) {
	t.Parallel()

	limit := 10
	a := Availability{Registered: 4}.Normalize(&limit)
	assert.Equal(t, Availability{Registered: 4, Capacity: 10, Available: 6}, a)

	a = Availability{Registered: 12, Capacity: 10}.Normalize(&limit)
	assert.Zero(t, a.Available)
	assert.True(t, a.IsFull)

	a = Availability{Registered: 5, Capacity: 5}.Normalize(nil)
	assert.True(t, a.IsFull)
}
