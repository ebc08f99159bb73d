package attachment

import (
	"bytes"
	"context"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckUpload(t *testing.T) {
	assert.NoError(t, CheckUpload(0, 1024))
	assert.NoError(t, CheckUpload(4, MaxFileSize))
	assert.ErrorIs(t, CheckUpload(5, 10), ErrTooMany)
	assert.ErrorIs(t, CheckUpload(0, MaxFileSize+1), ErrTooLarge)
	assert.Error(t, CheckUpload(0, -1))
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"report.pdf":            "report.pdf",
		"../../etc/passwd":      "passwd",
		`C:\Users\me\notes.txt`: "notes.txt",
		"résumé final.docx":     "r_sum__final.docx",
		"...":                   "file",
		"":                      "file",
	}
	for input, want := range cases {
		assert.Equal(t, want, SanitizeFilename(input), "input %q", input)
	}
}

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "answers/ans_1/att_1-report.pdf", ObjectKey("ans_1", "att_1", "report.pdf"))
}

func TestMinioStoreRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping minio integration test in short mode")
	}
	endpoint := strings.TrimSpace(os.Getenv("TEST_MINIO_ENDPOINT"))
	if endpoint == "" {
		t.Skip("TEST_MINIO_ENDPOINT is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	blobs, err := NewMinioStore(ctx, MinioConfig{
		Endpoint:  endpoint,
		AccessKey: os.Getenv("TEST_MINIO_ACCESS_KEY"),
		SecretKey: os.Getenv("TEST_MINIO_SECRET_KEY"),
		Bucket:    "answerdesk-test",
	})
	require.NoError(t, err)

	content := []byte("attachment body")
	ref, err := blobs.Store(ctx, ObjectKey("ans_t", "att_t", "body.txt"), Blob{
		Filename:    "body.txt",
		ContentType: "text/plain",
		Size:        int64(len(content)),
		Body:        bytes.NewReader(content),
	})
	require.NoError(t, err)

	obj, err := blobs.Retrieve(ctx, ref)
	require.NoError(t, err)
	defer obj.Body.Close()
	got, err := io.ReadAll(obj.Body)
	require.NoError(t, err)
	assert.Equal(t, content, got)
	assert.Equal(t, "text/plain", obj.ContentType)

	_, err = blobs.Retrieve(ctx, "answers/missing/none")
	assert.ErrorIs(t, err, ErrNotFound)
}
