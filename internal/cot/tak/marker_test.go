package tak

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/cotflow/internal/cot"
	"github.com/drblury/cotflow/internal/fixtures"
)

func TestDecodeMarker_Example(t *testing.T) {
	fx, err := fixtures.Examples().Get("marker-2525")
	require.NoError(t, err)

	marker, err := DecodeMarker(fx.Text)
	require.NoError(t, err)

	assert.Equal(t, "2.0", marker.Version)
	assert.Equal(t, "a-h-G-U-C-I", marker.Type)
	assert.True(t, marker.Detail.Status.Readiness)
	assert.Equal(t, "H.1", marker.Detail.Contact.Callsign)
	assert.Equal(t, "???", marker.Detail.PrecisionLocation.AltSrc)
	assert.Nil(t, marker.Detail.PrecisionLocation.GeoPointSrc)

	require.NotNil(t, marker.Detail.Link)
	assert.Equal(t, "ANDROID-4f2e9c1d7a3b5e60", marker.Detail.Link.UID)
	assert.Equal(t, "p-p", marker.Detail.Link.Relation)
	assert.Equal(t, time.Date(2023, 8, 24, 18, 59, 21, 361000000, time.UTC), marker.Detail.Link.ProductionTime.Time)

	require.NotNil(t, marker.Detail.Color)
	assert.Equal(t, int32(-65536), marker.Detail.Color.ARGB)

	require.NotNil(t, marker.Detail.UserIcon)
	assert.Equal(t, "COT_MAPPING_2525B/a-h/a-h-G-U-C-I", marker.Detail.UserIcon.IconSetPath)
}

func TestDecodeMarker_MalformedProductionTime(t *testing.T) {
	fx, err := fixtures.Examples().Get("marker-2525")
	require.NoError(t, err)

	text := strings.Replace(fx.Text, "production_time='2023-08-24T18:59:21.361Z'", "production_time='last week'", 1)
	_, err = DecodeMarker(text)

	var malformed *cot.MalformedTimestampError
	require.True(t, errors.As(err, &malformed))
	assert.Equal(t, "production_time", malformed.Attribute)
}

func TestNewMarker(t *testing.T) {
	now := time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC)
	marker := NewMarker(now)

	assert.Equal(t, DefaultMarkerType, marker.Type)
	assert.Equal(t, cot.Version, marker.Version)
	_, err := uuid.Parse(marker.UID)
	assert.NoError(t, err)
	assert.Equal(t, now, marker.Time)
	assert.Equal(t, now.Add(24*time.Hour), marker.Stale)
	assert.Equal(t, cot.NorthPole(), marker.Point)
	assert.Equal(t, DefaultMarkerDetail(), marker.Detail)

	other := NewMarker(now)
	assert.NotEqual(t, marker.UID, other.UID)
}

func TestNewMarker_EncodesAndClassifies(t *testing.T) {
	marker := NewMarker(time.Now())
	marker.Detail.UserIcon = &UserIcon{IconSetPath: "COT_MAPPING_SPOTMAP/b-m-p-s-m/-65536"}

	out, err := cot.Encode(marker)
	require.NoError(t, err)
	assert.Contains(t, out, `<status readiness="true"></status>`)
	assert.Contains(t, out, `<contact callsign="???"></contact>`)
	assert.NotContains(t, out, "<link")

	got, err := cot.Detect(out)
	require.NoError(t, err)
	assert.Equal(t, cot.CategoryMarker, got.Category)
	assert.Equal(t, marker.UID, got.Message.UID)

	back, err := DecodeMarker(out)
	require.NoError(t, err)
	assert.Equal(t, marker, back)
}
