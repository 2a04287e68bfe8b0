package stats

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConcurrentCounters(t *testing.T) {
	run := New()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				run.AddMetadataCall()
				run.AddResolved()
				run.AddImage(10)
			}
		}()
	}
	wg.Wait()

	run.AddSampled(5)
	run.AddNotFound()
	run.AddResolveFailed()

	snap := run.Snapshot()
	assert.Equal(t, int64(800), snap.MetadataCalls)
	assert.Equal(t, int64(800), run.MetadataCalls())
	assert.Equal(t, int64(800), snap.ImagesDownloaded)
	assert.Equal(t, int64(8000), snap.BytesWritten)
	assert.Equal(t, int64(5), snap.PointsSampled)
	assert.Equal(t, int64(802), snap.Looked())
	assert.GreaterOrEqual(t, snap.Elapsed.Nanoseconds(), int64(0))
}

func TestFinished(t *testing.T) {
	run := New()
	run.AddDownloadSucceeded()
	run.AddDownloadSucceeded()
	run.AddDownloadSkipped()
	run.AddDownloadFailed()
	run.AddDownloadCancelled()
	run.AddImageExisting()

	snap := run.Snapshot()
	assert.Equal(t, int64(5), snap.Finished())
	assert.Equal(t, int64(1), snap.ImagesExisting)
}
