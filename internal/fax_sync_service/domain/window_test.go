package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRealtimeWindow_LagsAndIsMinuteAligned(t *testing.T) {
	now := time.Date(2024, 3, 10, 14, 37, 42, 0, time.UTC)
	w := RealtimeWindow(now, nil, time.Hour)

	assert.Equal(t, time.Date(2024, 3, 10, 14, 27, 0, 0, time.UTC), w.Start)
	assert.Equal(t, time.Date(2024, 3, 10, 14, 32, 0, 0, time.UTC), w.End)
	assert.True(t, w.Start.Before(w.End))
	assert.NoError(t, w.Validate())
}

func TestRealtimeWindow_ConsecutivePassesDoNotDoubleCount(t *testing.T) {
	first := RealtimeWindow(time.Date(2024, 3, 10, 14, 35, 0, 0, time.UTC), nil, time.Hour)
	second := RealtimeWindow(time.Date(2024, 3, 10, 14, 40, 0, 0, time.UTC), nil, time.Hour)

	require.Equal(t, first.End, second.Start)
	boundary := first.End
	assert.True(t, first.Contains(boundary))
	assert.False(t, second.Contains(boundary), "a timestamp equal to the previous end belongs to the previous pass only")
	assert.False(t, first.Contains(first.Start))
}

func TestRealtimeWindow_CatchesUpFromWatermark(t *testing.T) {
	now := time.Date(2024, 3, 10, 14, 40, 0, 0, time.UTC)

	delayed := time.Date(2024, 3, 10, 14, 5, 0, 0, time.UTC)
	w := RealtimeWindow(now, &delayed, time.Hour)
	assert.Equal(t, delayed, w.Start)
	assert.Equal(t, time.Date(2024, 3, 10, 14, 35, 0, 0, time.UTC), w.End)

	tooOld := time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC)
	w = RealtimeWindow(now, &tooOld, time.Hour)
	assert.Equal(t, time.Date(2024, 3, 10, 14, 30, 0, 0, time.UTC), w.Start)

	ahead := time.Date(2024, 3, 10, 14, 35, 0, 0, time.UTC)
	w = RealtimeWindow(now, &ahead, time.Hour)
	assert.Equal(t, time.Date(2024, 3, 10, 14, 30, 0, 0, time.UTC), w.Start)
}

func TestOneDayWindow(t *testing.T) {
	now := time.Date(2024, 3, 10, 14, 37, 0, 0, time.UTC)
	w := OneDayWindow(now)
	assert.Equal(t, now.Add(-24*time.Hour), w.Start)
	assert.Equal(t, now, w.End)
	assert.Equal(t, SyncModeOneDay, w.Mode)
}

func TestRangeWindow_Validation(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(48 * time.Hour)

	w, err := RangeWindow(start, end)
	require.NoError(t, err)
	assert.Equal(t, SyncModeRange, w.Mode)

	_, err = RangeWindow(end, start)
	assert.True(t, errors.Is(err, ErrInvalidWindow))

	_, err = RangeWindow(start, start)
	assert.True(t, errors.Is(err, ErrInvalidWindow))

	_, err = RangeWindow(time.Time{}, end)
	assert.True(t, errors.Is(err, ErrInvalidWindow))
}

func TestProviderConfig_CheckComplete(t *testing.T) {
	sr := &SrFaxConfig{ID: 3, Password: "pw"}
	err := sr.CheckComplete()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfigIncomplete))
	assert.Contains(t, err.Error(), "accountNumber")

	sr.AccountNumber = "12345"
	assert.NoError(t, sr.CheckComplete())

	uf := &UniteFaxConfig{ID: 1, Username: "u", Password: "p"}
	assert.True(t, errors.Is(uf.CheckComplete(), ErrConfigIncomplete))

	rc := &RingCentralConfig{ID: 9, ClientID: "c", ClientSecret: "s", RefreshToken: "r"}
	assert.NoError(t, rc.CheckComplete())
	assert.False(t, rc.UsableForOutbound(), "outbound also needs an access token")
}

func TestRawFaxRecord_ProviderScopedID(t *testing.T) {
	assert.Equal(t, "SRFAX_20240310143000-1234", RawFaxRecord{Provider: ProviderSRFax, NativeID: "20240310143000-1234"}.ProviderScopedID())
	assert.Equal(t, "RINGCENTRAL_998877", RawFaxRecord{Provider: ProviderRingCentral, NativeID: "998877"}.ProviderScopedID())
	assert.Equal(t, "UNITE_4_5550001", RawFaxRecord{Provider: ProviderUniteFax, NativeID: "4_5550001"}.ProviderScopedID())
}

func TestPartner_LocationRequiresTimezone(t *testing.T) {
	_, err := (&Partner{ID: 4}).Location()
	assert.True(t, errors.Is(err, ErrConfigIncomplete))

	_, err = (&Partner{ID: 4, Timezone: "Not/AZone"}).Location()
	assert.True(t, errors.Is(err, ErrConfigIncomplete))

	loc, err := (&Partner{ID: 4, Timezone: "America/Toronto"}).Location()
	require.NoError(t, err)
	assert.Equal(t, "America/Toronto", loc.String())
}
