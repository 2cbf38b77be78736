package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestDropped(t *testing.T) {
	before := testutil.ToFloat64(DiscoveryDropped.WithLabelValues("discover", DropDistance))

	Dropped("discover", DropDistance, 3)
	Dropped("discover", DropDistance, 0)

	after := testutil.ToFloat64(DiscoveryDropped.WithLabelValues("discover", DropDistance))
	assert.Equal(t, 3.0, after-before)
}

func TestObserveRequest(t *testing.T) {
	before := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/v1/meals", "200"))
	ObserveRequest("GET", "/v1/meals", 200, 15*time.Millisecond)
	after := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/v1/meals", "200"))
	assert.Equal(t, 1.0, after-before)
}

func TestObservePipeline(t *testing.T) {
	ObservePipeline("recommend", time.Now(), 12)
	assert.Equal(t, 1, testutil.CollectAndCount(DiscoveryCandidates))
}
