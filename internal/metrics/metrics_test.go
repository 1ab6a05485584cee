// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRegisterIsIdempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		Register()
		Register()
	})
}

func TestCountersRecord(t *testing.T) {
	before := testutil.ToFloat64(SourceFetchesTotal.WithLabelValues("openalex", "success"))
	SourceFetchesTotal.WithLabelValues("openalex", "success").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(SourceFetchesTotal.WithLabelValues("openalex", "success")))
}
