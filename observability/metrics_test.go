package observability_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/relaykit/kernel/observability"
)

func TestMetricsRecordToolExec(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := observability.NewMetrics(reg)

	m.RecordToolExec("text_uppercase", 0.01)
	m.RecordAgentError(observability.ErrorKindTool)
	m.RecordMemoryOp(observability.MemoryOpWrite)
	m.SetMeshQueueDepth("topic-a", 3)
	m.SetMeshDLQSize("topic-a", 1)

	metricFamilies, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, metricFamilies)
}

func TestMetricsFoldsLabelsPastCap(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := observability.NewMetrics(reg)

	for i := 0; i < 25; i++ {
		m.RecordToolExec("tool-"+string(rune('a'+i)), 0.001)
	}

	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == "tool_exec_total" {
			require.Len(t, mf.GetMetric(), 21)
		}
	}
}
