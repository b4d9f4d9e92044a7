package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArticle_DecodeServerPayload(t *testing.T) {
	raw := `{
		"id": "A1",
		"planetID": "P1",
		"created": 700000000.5,
		"title": "Hello",
		"content": "World",
		"link": "/A1/",
		"attachments": ["cat.png", "notes.txt"]
	}`

	var a Article
	require.NoError(t, json.Unmarshal([]byte(raw), &a))

	assert.Equal(t, "A1", a.ID)
	assert.Equal(t, "P1", a.PlanetID)
	assert.Equal(t, []string{"cat.png", "notes.txt"}, a.Attachments)
	want := time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC).Add(700000000*time.Second + 500*time.Millisecond)
	assert.True(t, want.Equal(a.Created.Time), "got %v want %v", a.Created.Time, want)
}

func TestTimestamp_RFC3339AndNull(t *testing.T) {
	var v struct {
		A Timestamp `json:"a"`
		B Timestamp `json:"b"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"2024-05-01T10:00:00Z","b":null}`), &v))
	assert.Equal(t, 2024, v.A.Year())
	assert.True(t, v.B.IsZero())

	out, err := json.Marshal(v.A)
	require.NoError(t, err)
	assert.Equal(t, `"2024-05-01T10:00:00Z"`, string(out))

	out, err = json.Marshal(v.B)
	require.NoError(t, err)
	assert.Equal(t, `null`, string(out))
}

func TestTimestamp_Invalid(t *testing.T) {
	var ts Timestamp
	require.Error(t, json.Unmarshal([]byte(`"yesterday"`), &ts))
	require.Error(t, json.Unmarshal([]byte(`{}`), &ts))
}

func TestArticle_DisplayTitle(t *testing.T) {
	assert.Equal(t, "Hello", Article{Title: "  Hello "}.DisplayTitle())
	assert.Equal(t, "first line", Article{Content: "first line\nsecond"}.DisplayTitle())
}

func TestKeys(t *testing.T) {
	assert.Equal(t, ResourceKey("http://x/a.png"), DownloadKey("http://x/a.png"))
	assert.Equal(t, ResourceKey("A1"), UploadKey("A1"))
	assert.Equal(t, ResourceKey("creation"), CreationKey)
}
