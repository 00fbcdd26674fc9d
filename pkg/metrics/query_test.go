package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/common/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScalarOfReturnsFirstSampleValue(t *testing.T) {
	v := model.Vector{
		&model.Sample{Metric: model.Metric{"agent_id": "a"}, Value: 42, Timestamp: model.TimeFromUnixNano(time.Now().UnixNano())},
	}
	assert.Equal(t, float64(42), scalarOf(v))
}

func TestScalarOfReturnsZeroForEmptyVector(t *testing.T) {
	assert.Equal(t, float64(0), scalarOf(model.Vector{}))
}

func TestScalarOfReturnsZeroForNonVectorValue(t *testing.T) {
	assert.Equal(t, float64(0), scalarOf(&model.Scalar{Value: 7}))
}

func TestNewQueryServiceRejectsInvalidAddress(t *testing.T) {
	_, err := NewQueryService("://not-a-url")
	assert.Error(t, err)
}

func TestNewQueryServiceAcceptsWellFormedAddress(t *testing.T) {
	q, err := NewQueryService("http://localhost:9090")
	require.NoError(t, err)
	assert.NotNil(t, q)
}
