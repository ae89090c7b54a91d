package compress

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	algo, err := Parse("gzip")
	require.NoError(t, err)
	assert.Equal(t, Gzip, algo)

	algo, err = Parse("")
	require.NoError(t, err)
	assert.Equal(t, None, algo)

	algo, err = Parse("ZSTD")
	require.NoError(t, err)
	assert.Equal(t, Zstd, algo)

	_, err = Parse("brotli")
	require.Error(t, err)
}

func TestWriterRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte("-- arkhive dump line\n"), 500)

	for _, algo := range []Algorithm{None, Gzip, Lz4, Zstd} {
		t.Run(string(algo), func(t *testing.T) {
			var buf bytes.Buffer

			w, err := NewWriter(&buf, algo)
			require.NoError(t, err)
			_, err = w.Write(payload)
			require.NoError(t, err)
			require.NoError(t, w.Close())

			if algo != None {
				assert.Less(t, buf.Len(), len(payload))
			}

			r, err := NewReader(&buf, algo)
			require.NoError(t, err)
			got, err := io.ReadAll(r)
			require.NoError(t, err)
			require.NoError(t, r.Close())

			assert.Equal(t, payload, got)
		})
	}
}

func TestExt(t *testing.T) {
	assert.Equal(t, ".gz", Gzip.Ext())
	assert.Equal(t, ".zst", Zstd.Ext())
	assert.Equal(t, ".lz4", Lz4.Ext())
	assert.Equal(t, "", None.Ext())
}
