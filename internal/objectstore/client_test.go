package objectstore

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetforge/compiler-worker/internal/config"
)

// fakeS3 serves just enough of the ListObjectsV2 XML response shape for
// Client.List to exercise its pagination and field-mapping logic against a
// real HTTP round-trip, without needing network access to AWS.
func fakeS3(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?>
<ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">
	<Name>compiler-deps-develop</Name>
	<IsTruncated>false</IsTruncated>
	<Contents>
		<Key>platforms/android.tar.bz2</Key>
		<LastModified>2026-01-01T00:00:00.000Z</LastModified>
		<ETag>"abc123"</ETag>
		<Size>1024</Size>
	</Contents>
</ListBucketResult>`)
	}))
}

func TestListMapsObjectsIntoManifest(t *testing.T) {
	srv := fakeS3(t)
	defer srv.Close()

	c, err := New(t.Context(), config.ObjectStoreConfig{
		Bucket:          "compiler-deps-develop",
		Region:          "auto",
		Endpoint:        srv.URL,
		AccessKeyID:     "test",
		SecretAccessKey: "test",
	})
	require.NoError(t, err)

	manifest, err := c.List(t.Context())
	require.NoError(t, err)
	require.Contains(t, manifest, "platforms/android.tar.bz2")
	entry := manifest["platforms/android.tar.bz2"]
	assert.Equal(t, int64(1024), entry.Size)
	assert.Equal(t, `"abc123"`, entry.ETag)
}
