package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog/log"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	RegisterMetrics()
	RegisterMetrics()

	RecordHTTPRequest(0, "GET", "/health", 200, 12*time.Millisecond)
	RecordApply(0, "done", 3*time.Millisecond)
	SetBranches(0, 3)

	log.Debug().Msg("observability/metrics: registration idempotent and recording paths executed")
}

func TestRecordSlabsCountsPerRank(t *testing.T) {
	before := testutil.ToFloat64(slabsTotal.WithLabelValues("42", SlabFetched))
	RecordSlabs(42, SlabFetched, 2)
	RecordSlabs(42, SlabFetched, 0)
	after := testutil.ToFloat64(slabsTotal.WithLabelValues("42", SlabFetched))
	if after-before != 2 {
		t.Fatalf("expected 2 fetched slabs recorded, got %v", after-before)
	}
}
