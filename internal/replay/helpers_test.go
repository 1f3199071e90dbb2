package replay_test

import (
	"bytes"
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/webarchive/internal/cdxj"
	"github.com/jonesrussell/north-cloud/webarchive/internal/domain"
	"github.com/jonesrussell/north-cloud/webarchive/internal/storage"
	"github.com/jonesrussell/north-cloud/webarchive/internal/wacz"
)

var (
	captureTime = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	stagingSeq  atomic.Int64
)

func newMemResolver() (*storage.Resolver, *storage.Memory) {
	mem := storage.NewMemory()
	return storage.NewResolver(storage.WithBackend(storage.SchemeMemory, mem)), mem
}

func page(method, url, body string) *domain.Transaction {
	return &domain.Transaction{
		Method:          method,
		URL:             url,
		StatusCode:      200,
		Reason:          "OK",
		ResponseHeaders: domain.Header{{Name: "Content-Type", Value: "text/html"}, {Name: "X-Archived", Value: "yes"}},
		ResponseBody:    []byte(body),
		CapturedAt:      captureTime,
	}
}

// stage writes txs to a finalized records file and returns its manifest.
func stage(t *testing.T, resolver *storage.Resolver, txs ...*domain.Transaction) *wacz.Manifest {
	t.Helper()
	ctx := context.Background()

	w, err := wacz.OpenWriter(ctx, resolver, fmt.Sprintf("mem://staging/%d/", stagingSeq.Add(1)), wacz.Options{
		Collection: "replay",
		Compress:   true,
		Hostname:   "host",
	})
	require.NoError(t, err)
	for _, tx := range txs {
		_, err = w.Write(ctx, tx)
		require.NoError(t, err)
	}
	m, err := w.Finalize(ctx)
	require.NoError(t, err)
	return m
}

// buildContainer packs txs to dest and returns the container URI.
func buildContainer(t *testing.T, resolver *storage.Resolver, dest string, txs ...*domain.Transaction) string {
	t.Helper()

	m := stage(t, resolver, txs...)
	p := wacz.NewPackager(resolver, wacz.PackOptions{Collection: "replay", Start: captureTime})
	conf, err := p.Pack(context.Background(), m.RecordsURIs(), m.IndexURIs(), dest)
	require.NoError(t, err)
	return conf.URI
}

// buildTruncatedContainer packs txs with the records file cut in the
// middle of the response record captured for cutURL.
func buildTruncatedContainer(t *testing.T, resolver *storage.Resolver, mem *storage.Memory, key, cutURL string, txs ...*domain.Transaction) string {
	t.Helper()
	ctx := context.Background()

	m := stage(t, resolver, txs...)
	records, err := resolver.ReadFile(ctx, m.RecordsURIs()[0])
	require.NoError(t, err)
	index, err := resolver.ReadFile(ctx, m.IndexURIs()[0])
	require.NoError(t, err)

	entries, _, err := cdxj.Read(bytes.NewReader(index))
	require.NoError(t, err)
	cut := -1
	for _, e := range entries {
		if e.URL == cutURL {
			cut = int(e.Locator.Offset + e.Locator.Length/2)
		}
	}
	require.Positive(t, cut, "no entry for %s", cutURL)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, member := range []struct {
		name string
		data []byte
	}{
		{wacz.ManifestPath, []byte(`{"wacz_version":"1.1.1","resources":[]}`)},
		{m.Resources[0].Path, records[:cut]},
		{wacz.DefaultIndexPath, index},
	} {
		w, createErr := zw.CreateHeader(&zip.FileHeader{Name: member.name, Method: zip.Store})
		require.NoError(t, createErr)
		_, err = w.Write(member.data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	loc := storage.Location{Scheme: storage.SchemeMemory, Bucket: "c", Key: key}
	mem.Put(loc, buf.Bytes(), captureTime)
	return loc.String()
}
