package manifest

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord_SerializeDeserialize(t *testing.T) {
	now := time.Now().Truncate(time.Millisecond) // JSON marshal truncates precision

	r := &Record{
		ID:          "0c9e3f6a-run",
		Date:        "2025-02-01",
		Host:        "web01",
		User:        "deploy",
		ArchiveName: "2025-02-01-deploy-arkhive.enc.arbk",
		Compression: "gzip",
		Encrypted:   true,
		SizeBytes:   104857600,
		Files:       241,
		DumpFiles: []DumpFile{
			{Name: "2025-02-01-mysql.sql", Size: 2048, SHA256: "deadbeef"},
		},
		Warnings:  []string{"skipping /srv/data/secret: permission denied"},
		Version:   "1.0.0",
		CreatedAt: now,
	}

	data, err := r.Serialize()
	require.NoError(t, err)
	assert.NotEmpty(t, data)

	r2, err := Deserialize(data)
	require.NoError(t, err)

	assert.Equal(t, r.ID, r2.ID)
	assert.Equal(t, r.Date, r2.Date)
	assert.Equal(t, r.User, r2.User)
	assert.Equal(t, r.ArchiveName, r2.ArchiveName)
	assert.Equal(t, r.Compression, r2.Compression)
	assert.Equal(t, r.Encrypted, r2.Encrypted)
	assert.Equal(t, r.SizeBytes, r2.SizeBytes)
	assert.Equal(t, r.Files, r2.Files)
	assert.Equal(t, r.DumpFiles, r2.DumpFiles)
	assert.Equal(t, r.Warnings, r2.Warnings)

	// Compare times safely due to JSON float differences
	assert.True(t, r.CreatedAt.Equal(r2.CreatedAt), "times should match")
}

func TestDeserialize_Invalid(t *testing.T) {
	_, err := Deserialize([]byte(`{invalid json`))
	assert.Error(t, err)
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "2025-02-01-deploy-arkhive.json", FileName("2025-02-01", "deploy"))
}

func TestCalculateChecksum(t *testing.T) {
	sum, err := CalculateChecksum(strings.NewReader("hello"))
	require.NoError(t, err)
	// Well-known SHA-256 of "hello".
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", sum)
}
