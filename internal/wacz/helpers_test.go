package wacz_test

import (
	"bytes"
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/webarchive/internal/domain"
	"github.com/jonesrussell/north-cloud/webarchive/internal/storage"
	"github.com/jonesrussell/north-cloud/webarchive/internal/wacz"
)

var stagingSeq atomic.Int64

var sessionStart = time.Date(2025, 3, 7, 10, 0, 0, 0, time.UTC)

func newMemResolver() (*storage.Resolver, *storage.Memory) {
	mem := storage.NewMemory()
	return storage.NewResolver(storage.WithBackend(storage.SchemeMemory, mem)), mem
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func sequentialIDs() func() string {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("<urn:uuid:00000000-0000-0000-0000-%012d>", n.Add(1))
	}
}

func testOptions() wacz.Options {
	return wacz.Options{
		Collection:  "test",
		Compress:    true,
		Hostname:    "host",
		Clock:       fixedClock(sessionStart),
		NewRecordID: sequentialIDs(),
	}
}

func getTransaction(url, body string, capturedAt time.Time) *domain.Transaction {
	return &domain.Transaction{
		Method:          "GET",
		URL:             url,
		RequestHeaders:  domain.Header{{Name: "User-Agent", Value: "test"}},
		StatusCode:      200,
		ResponseHeaders: domain.Header{{Name: "Content-Type", Value: "text/html"}},
		ResponseBody:    []byte(body),
		CapturedAt:      capturedAt,
	}
}

// writeContainer captures txs and packs them to destination.
func writeContainer(t *testing.T, resolver *storage.Resolver, destination string, txs ...*domain.Transaction) *wacz.Confirmation {
	t.Helper()
	ctx := context.Background()

	w, err := wacz.OpenWriter(ctx, resolver, fmt.Sprintf("mem://staging/%d/", stagingSeq.Add(1)), testOptions())
	require.NoError(t, err)
	for _, tx := range txs {
		_, err = w.Write(ctx, tx)
		require.NoError(t, err)
	}
	m, err := w.Finalize(ctx)
	require.NoError(t, err)

	p := wacz.NewPackager(resolver, wacz.PackOptions{
		Collection: "test",
		Start:      sessionStart,
		Clock:      fixedClock(sessionStart),
	})
	conf, err := p.Pack(ctx, m.RecordsURIs(), m.IndexURIs(), destination)
	require.NoError(t, err)
	return conf
}

// zipMember is a member for hand-built containers.
type zipMember struct {
	name    string
	data    []byte
	deflate bool
}

func putZip(t *testing.T, mem *storage.Memory, bucket, key string, members ...zipMember) {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, m := range members {
		method := zip.Store
		if m.deflate {
			method = zip.Deflate
		}
		w, err := zw.CreateHeader(&zip.FileHeader{Name: m.name, Method: method})
		require.NoError(t, err)
		_, err = w.Write(m.data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	mem.Put(storage.Location{Scheme: storage.SchemeMemory, Bucket: bucket, Key: key}, buf.Bytes(), sessionStart)
}

// stage captures txs and returns the staged records and index bytes.
func stage(t *testing.T, txs ...*domain.Transaction) (name string, records, index []byte) {
	t.Helper()
	ctx := context.Background()
	resolver, _ := newMemResolver()

	w, err := wacz.OpenWriter(ctx, resolver, "mem://staging/", testOptions())
	require.NoError(t, err)
	for _, tx := range txs {
		_, err = w.Write(ctx, tx)
		require.NoError(t, err)
	}
	m, err := w.Finalize(ctx)
	require.NoError(t, err)

	records, err = resolver.ReadFile(ctx, m.RecordsURIs()[0])
	require.NoError(t, err)
	index, err = resolver.ReadFile(ctx, m.IndexURIs()[0])
	require.NoError(t, err)
	return w.RecordsName(), records, index
}

const minimalManifest = `{"profile":"data-package","wacz_version":"1.1.1","software":"test","created":"2025-03-07T10:00:00Z","resources":[]}`
