package artifact

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryMirror struct {
	data map[string][]byte
	err  error
}

func (m *memoryMirror) Save(_ context.Context, name string, data []byte) error {
	if m.err != nil {
		return m.err
	}
	if m.data == nil {
		m.data = make(map[string][]byte)
	}
	m.data[name] = data
	return nil
}

func TestDecode(t *testing.T) {
	data, err := Decode("PHNtYXJ0TGljZW5zZT4K\nPC9zbWFydExpY2Vuc2U+")
	require.NoError(t, err)
	assert.Equal(t, "<smartLicense>\n</smartLicense>", string(data))

	_, err = Decode("")
	require.Error(t, err)

	_, err = Decode("not base64!")
	require.Error(t, err)
}

func TestWriterWrite(t *testing.T) {
	dir := t.TempDir()
	mirror := &memoryMirror{}
	w := Writer{Mirror: mirror}

	path := filepath.Join(dir, "out", "lic.txt")
	require.NoError(t, w.Write(context.Background(), path, []byte("license text")))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "license text", string(got))
	assert.Equal(t, "license text", string(mirror.data["lic.txt"]))
}

func TestWriterMirrorFailureIsNotFatal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ACK.txt")
	w := Writer{Mirror: &memoryMirror{err: errors.New("bucket unavailable")}}

	require.NoError(t, w.Write(context.Background(), path, []byte("ack")))
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ack", string(got))
}

func TestParseEndpoint(t *testing.T) {
	host, secure, err := parseEndpoint("http://minio.local:9000")
	require.NoError(t, err)
	assert.Equal(t, "minio.local:9000", host)
	assert.False(t, secure)

	host, secure, err = parseEndpoint("s3.example.com")
	require.NoError(t, err)
	assert.Equal(t, "s3.example.com", host)
	assert.True(t, secure)

	_, _, err = parseEndpoint("https://")
	require.Error(t, err)
}

func TestNewS3Store(t *testing.T) {
	_, err := NewS3Store(BlobConfig{Endpoint: "s3.example.com"}, "FDO1")
	require.Error(t, err)

	dir := t.TempDir()
	accessKey := filepath.Join(dir, "access")
	secretKey := filepath.Join(dir, "secret")
	require.NoError(t, os.WriteFile(accessKey, []byte("AKIA\n"), 0o600))
	require.NoError(t, os.WriteFile(secretKey, []byte("secret\n"), 0o600))

	store, err := NewS3Store(BlobConfig{
		Endpoint:      "http://127.0.0.1:9000",
		Bucket:        "licenses",
		AccessKeyFile: accessKey,
		SecretKeyFile: secretKey,
	}, "FDO1")
	require.NoError(t, err)
	assert.Equal(t, "smartlicensing/FDO1/lic.txt", store.key("lic.txt"))
}
