package export

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitabwire/opsdesk/internal/config"
)

func TestFileSink_save(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "exports")
	sink := NewFileSink(dir)

	loc, err := sink.Save(context.Background(), "statement_2026-10-01_2026-10-15.csv", []byte("date,amount\n"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "statement_2026-10-01_2026-10-15.csv"), loc)

	data, err := os.ReadFile(loc)
	require.NoError(t, err)
	assert.Equal(t, "date,amount\n", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file left behind")
}

func TestFileSink_overwrites(t *testing.T) {
	sink := NewFileSink(t.TempDir())
	_, err := sink.Save(context.Background(), "a.csv", []byte("old"))
	require.NoError(t, err)
	loc, err := sink.Save(context.Background(), "a.csv", []byte("new"))
	require.NoError(t, err)

	data, err := os.ReadFile(loc)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}

func TestFileSink_stripsDirectories(t *testing.T) {
	dir := t.TempDir()
	loc, err := NewFileSink(dir).Save(context.Background(), "../../etc/evil.csv", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "evil.csv"), loc)
}

func TestFileSink_canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewFileSink(t.TempDir()).Save(ctx, "a.csv", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewFileSink_defaultDir(t *testing.T) {
	assert.Equal(t, ".", NewFileSink("").Dir)
	assert.Equal(t, "file", NewFileSink("").Name())
}

// mockPutter records PutObject calls.
type mockPutter struct {
	PutObjectFunc func(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	calls         []*s3.PutObjectInput
	bodies        [][]byte
}

func (m *mockPutter) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, _ := io.ReadAll(params.Body)
	m.calls = append(m.calls, params)
	m.bodies = append(m.bodies, body)
	if m.PutObjectFunc != nil {
		return m.PutObjectFunc(ctx, params, optFns...)
	}
	return &s3.PutObjectOutput{ETag: aws.String(`"etag"`)}, nil
}

func TestS3Sink_save(t *testing.T) {
	m := &mockPutter{}
	sink := NewS3Sink(m, "partner-exports", "/statements/")

	loc, err := sink.Save(context.Background(), "statement_2026-10-01_2026-10-15.csv", []byte("date,amount\n2026-10-01,40\n"))
	require.NoError(t, err)
	assert.Equal(t, "s3://partner-exports/statements/statement_2026-10-01_2026-10-15.csv", loc)

	require.Len(t, m.calls, 1)
	in := m.calls[0]
	assert.Equal(t, "partner-exports", aws.ToString(in.Bucket))
	assert.Equal(t, "statements/statement_2026-10-01_2026-10-15.csv", aws.ToString(in.Key))
	assert.Equal(t, "text/csv", aws.ToString(in.ContentType))
	assert.Equal(t, int64(26), aws.ToInt64(in.ContentLength))
	assert.Equal(t, "date,amount\n2026-10-01,40\n", string(m.bodies[0]))
}

func TestS3Sink_noPrefix(t *testing.T) {
	sink := NewS3Sink(&mockPutter{}, "b", "")
	assert.Equal(t, "x.csv", sink.Key("dir/x.csv"))
	assert.Equal(t, "s3", sink.Name())
}

func TestS3Sink_putError(t *testing.T) {
	m := &mockPutter{PutObjectFunc: func(context.Context, *s3.PutObjectInput, ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
		return nil, errors.New("AccessDenied")
	}}
	_, err := NewS3Sink(m, "b", "p").Save(context.Background(), "a.csv", []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3://b/p/a.csv")
	assert.Contains(t, err.Error(), "AccessDenied")
}

func TestContentType(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	assert.Equal(t, "image/png", ContentType("me.png", png))
	assert.Equal(t, "text/csv", ContentType("statement.csv", []byte("")))
	assert.Equal(t, "text/csv", ContentType("STATEMENT.CSV", []byte("a,b\n1,2\n")))
	assert.Equal(t, "application/pdf", ContentType("statement.pdf", []byte("%PDF-1.7\n")))
}

func TestOpen(t *testing.T) {
	sink, err := Open(context.Background(), config.ExportConfig{Driver: "file", Dir: "out"})
	require.NoError(t, err)
	assert.IsType(t, &FileSink{}, sink)

	_, err = Open(context.Background(), config.ExportConfig{Driver: "ftp"})
	assert.Error(t, err)

	_, err = Open(context.Background(), config.ExportConfig{Driver: "s3"})
	assert.ErrorContains(t, err, "bucket is required")
}

func TestNewS3SinkFromConfig(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(t.TempDir(), "none"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(t.TempDir(), "none"))

	sink, err := NewS3SinkFromConfig(context.Background(), config.S3Config{Bucket: "b", Prefix: "p", Region: "eu-west-1"})
	require.NoError(t, err)
	assert.Equal(t, "p/a.csv", sink.Key("a.csv"))
}
