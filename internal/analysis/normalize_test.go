package analysis

import (
	"errors"
	"testing"
	"time"

	"github.com/revlift/revlift/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectSchema(t *testing.T) {
	schema, err := DetectSchema([]string{"user_id", "timestamp", "is_activation", "value"})
	require.NoError(t, err)
	assert.Equal(t, 0, schema.UserID)
	assert.Equal(t, 1, schema.Timestamp)
	assert.Equal(t, 2, schema.Activation)
	assert.Equal(t, 3, schema.Value)
	assert.Equal(t, "is_activation", schema.ActivationColumn)
}

func TestDetectSchemaAliasesAndCase(t *testing.T) {
	schema, err := DetectSchema([]string{"Value", " USER_ID ", "event_timestamp", "user_first_touch_timestamp"})
	require.NoError(t, err)
	assert.Equal(t, 1, schema.UserID)
	assert.Equal(t, 2, schema.Timestamp)
	assert.Equal(t, 3, schema.Activation)
	assert.Equal(t, 0, schema.Value)
	assert.Equal(t, "user_first_touch_timestamp", schema.ActivationColumn)
}

func TestDetectSchemaMissingColumn(t *testing.T) {
	_, err := DetectSchema([]string{"user_id", "timestamp", "value"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingRequiredColumn)

	var mce *MissingColumnError
	require.ErrorAs(t, err, &mce)
	assert.Equal(t, "is_activation", mce.Column)
}

func TestNormalizeTimestampFormats(t *testing.T) {
	rows := []models.RawRow{
		{UserID: "u1", Timestamp: "1700000000", Activation: "true", Value: "1", Line: 1},
		{UserID: "u1", Timestamp: "1700000000.5", Activation: "false", Value: "2", Line: 2},
		{UserID: "u1", Timestamp: "2023-11-14T22:13:20Z", Activation: "false", Value: "3", Line: 3},
		{UserID: "u1", Timestamp: "2023-11-14 22:13:20", Activation: "false", Value: "4", Line: 4},
		{UserID: "u1", Timestamp: "2023-11-14", Activation: "false", Value: "5", Line: 5},
	}

	events, conv, err := Normalize(rows, "is_activation")
	require.NoError(t, err)
	assert.Equal(t, models.ConventionFlag, conv)
	require.Len(t, events, 5)

	epoch := time.Unix(1700000000, 0).UTC()
	assert.Equal(t, epoch, events[0].Timestamp)
	assert.Equal(t, epoch.Add(500*time.Millisecond), events[1].Timestamp)
	assert.Equal(t, epoch, events[2].Timestamp)
	assert.Equal(t, epoch, events[3].Timestamp)
	assert.Equal(t, time.Date(2023, 11, 14, 0, 0, 0, 0, time.UTC), events[4].Timestamp)
}

func TestNormalizeEmptyValueIsZero(t *testing.T) {
	rows := []models.RawRow{
		{UserID: "u1", Timestamp: "1700000000", Activation: "1", Value: "", Line: 1},
		{UserID: "u1", Timestamp: "1700000001", Activation: "0", Value: "  ", Line: 2},
		{UserID: "u1", Timestamp: "1700000002", Activation: "0", Value: "-4.5", Line: 3},
	}

	events, _, err := Normalize(rows, "is_activation")
	require.NoError(t, err)
	assert.Zero(t, events[0].Value)
	assert.Zero(t, events[1].Value)
	assert.Equal(t, -4.5, events[2].Value) // refunds are legitimate
}

func TestNormalizeMalformedTimestampFailsFast(t *testing.T) {
	rows := []models.RawRow{
		{UserID: "u1", Timestamp: "1700000000", Activation: "1", Value: "1", Line: 1},
		{UserID: "u2", Timestamp: "not-a-time", Activation: "1", Value: "1", Line: 2},
		{UserID: "u3", Timestamp: "1700000002", Activation: "1", Value: "1", Line: 3},
	}

	_, _, err := Normalize(rows, "is_activation")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedTimestamp)

	var mte *MalformedTimestampError
	require.ErrorAs(t, err, &mte)
	assert.Equal(t, 2, mte.Line)
	assert.Equal(t, "not-a-time", mte.Value)
}

func TestNormalizeMalformedValue(t *testing.T) {
	rows := []models.RawRow{
		{UserID: "u1", Timestamp: "1700000000", Activation: "1", Value: "abc", Line: 1},
	}

	_, _, err := Normalize(rows, "is_activation")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedValue)

	var mve *MalformedValueError
	require.ErrorAs(t, err, &mve)
	assert.Equal(t, 1, mve.Line)
}

func TestNormalizeEmptyDataset(t *testing.T) {
	_, _, err := Normalize(nil, "is_activation")
	assert.True(t, errors.Is(err, ErrEmptyDataset))
}

func TestDetectConventionFlag(t *testing.T) {
	rows := []models.RawRow{
		{UserID: "u1", Timestamp: "1700000000", Activation: "true", Value: "1", Line: 1},
		{UserID: "u1", Timestamp: "1700000001", Activation: "", Value: "1", Line: 2},
		{UserID: "u1", Timestamp: "1700000002", Activation: "0", Value: "1", Line: 3},
	}

	_, conv, err := Normalize(rows, "is_activation")
	require.NoError(t, err)
	assert.Equal(t, models.ConventionFlag, conv)
}

func TestDetectConventionAnchorTime(t *testing.T) {
	rows := []models.RawRow{
		{UserID: "u1", Timestamp: "1700000000", Activation: "1700000000", Value: "1", Line: 1},
		{UserID: "u1", Timestamp: "1700003600", Activation: "1700000000", Value: "2", Line: 2},
	}

	events, conv, err := Normalize(rows, "first_touchpoint")
	require.NoError(t, err)
	assert.Equal(t, models.ConventionAnchorTime, conv)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), events[1].AnchorTime)
}

func TestNormalizeIdempotent(t *testing.T) {
	rows := []models.RawRow{
		{UserID: "u1", Timestamp: "1700000000", Activation: "1", Value: "5", Line: 1},
		{UserID: "u2", Timestamp: "2023-11-14 22:13:20", Activation: "0", Value: "", Line: 2},
	}

	first, conv1, err := Normalize(rows, "is_activation")
	require.NoError(t, err)
	second, conv2, err := Normalize(rows, "is_activation")
	require.NoError(t, err)

	assert.Equal(t, conv1, conv2)
	assert.Equal(t, first, second)
}
