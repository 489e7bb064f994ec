package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/objstream/objstream/pkg/types"
)

func TestRecordReadCounts(t *testing.T) {
	c := NewCollector("test")
	c.RecordRead(100, time.Millisecond)
	c.RecordRead(50, time.Millisecond)

	if got := testutil.ToFloat64(c.readsTotal); got != 2 {
		t.Errorf("reads_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.readBytes); got != 150 {
		t.Errorf("read_bytes_total = %v, want 150", got)
	}
}

func TestRecordFetchCounts(t *testing.T) {
	c := NewCollector("test")
	c.RecordFetch(types.Range{Start: 0, End: 2048}, time.Millisecond)
	c.RecordFetchBytes(2048)

	if got := testutil.ToFloat64(c.fetchesTotal); got != 1 {
		t.Errorf("fetches_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.fetchBytes); got != 2048 {
		t.Errorf("fetch_bytes_total = %v, want 2048", got)
	}
}

func TestRecordFooterOutcomes(t *testing.T) {
	c := NewCollector("test")
	c.RecordFooter(true)
	c.RecordFooter(true)
	c.RecordFooter(false)

	if got := testutil.ToFloat64(c.footerTotal.WithLabelValues("hit")); got != 2 {
		t.Errorf("footer hits = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.footerTotal.WithLabelValues("miss")); got != 1 {
		t.Errorf("footer misses = %v, want 1", got)
	}
}

func TestRecordInPlaceSkip(t *testing.T) {
	c := NewCollector("test")
	c.RecordInPlaceSkip(4096)

	if got := testutil.ToFloat64(c.inPlaceSkips); got != 1 {
		t.Errorf("in_place_skips_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.inPlaceSkipBytes); got != 4096 {
		t.Errorf("in_place_skip_bytes_total = %v, want 4096", got)
	}
}

func TestInterceptorCountsByKind(t *testing.T) {
	c := NewCollector("test")
	in := c.Interceptor()

	in.OnRequest(types.RequestEvent{Kind: types.KindRead})
	in.OnRequest(types.RequestEvent{Kind: types.KindStat})
	in.OnMessage(types.RequestEvent{Kind: types.KindRead, WireBytes: 1024})
	in.OnMessage(types.RequestEvent{Kind: types.KindRead, WireBytes: 512})

	if got := testutil.ToFloat64(c.requestsTotal.WithLabelValues("read")); got != 1 {
		t.Errorf("read requests = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.requestsTotal.WithLabelValues("stat")); got != 1 {
		t.Errorf("stat requests = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.messagesTotal.WithLabelValues("read")); got != 2 {
		t.Errorf("read messages = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.wireBytes.WithLabelValues("read")); got != 1536 {
		t.Errorf("wire bytes = %v, want 1536", got)
	}
}

func TestRetryAndChecksumCounters(t *testing.T) {
	c := NewCollector("test")
	c.RecordRetry(1)
	c.RecordRetry(2)
	c.RecordChecksumFailure()

	if got := testutil.ToFloat64(c.retriesTotal); got != 2 {
		t.Errorf("retries_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.checksumFailures); got != 1 {
		t.Errorf("checksum_failures_total = %v, want 1", got)
	}
}
