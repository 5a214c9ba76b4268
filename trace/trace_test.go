package trace

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/meshcore-sim/mc-ns/event"
	"github.com/meshcore-sim/mc-ns/simtime"
)

func TestHashPayloadIsDeterministic(t *testing.T) {
	a := HashPayload([]byte("hello"))
	b := HashPayload([]byte("hello"))
	assert.Equal(t, a, b)
}

func TestHashPayloadDiffersForDifferentPayloads(t *testing.T) {
	assert.NotEqual(t, HashPayload([]byte("hello")), HashPayload([]byte("world")))
}

func TestBatchRecordAndFlush(t *testing.T) {
	b := NewBatch(simtime.NodeId(1))
	b.Record(10, event.KindTxEnd, []byte("a"))
	b.Record(5, event.KindReceiveAir, []byte("b"))

	records := b.Flush()
	require.Len(t, records, 2)
	assert.Equal(t, simtime.SimTime(10), records[0].Time)
	assert.Equal(t, simtime.NodeId(1), records[0].Source)

	// Flush clears the batch.
	assert.Empty(t, b.Flush())
}

func TestRecordLessOrdersByTimeThenSourceThenKind(t *testing.T) {
	earlier := Record{Time: 1, Source: 2, Kind: event.KindTxEnd}
	later := Record{Time: 2, Source: 1, Kind: event.KindTxEnd}
	assert.True(t, earlier.Less(later))
	assert.False(t, later.Less(earlier))

	sameTimeLowerSource := Record{Time: 1, Source: 1, Kind: event.KindTxEnd}
	assert.True(t, sameTimeLowerSource.Less(earlier))
}

func TestSinkAppendKeepsGlobalTimeOrder(t *testing.T) {
	s := NewSink()

	batchA := NewBatch(simtime.NodeId(1))
	batchA.Record(5, event.KindTxEnd, []byte("x"))
	s.Append(batchA.Flush())

	batchB := NewBatch(simtime.NodeId(2))
	batchB.Record(1, event.KindReceiveAir, []byte("y"))
	s.Append(batchB.Flush())

	records := s.Records()
	require.Len(t, records, 2)
	assert.Equal(t, simtime.SimTime(1), records[0].Time)
	assert.Equal(t, simtime.SimTime(5), records[1].Time)
}

// TestSameRunProducesIdenticalTrace exercises the determinism property a
// trace is meant to provide: two sinks fed the same sequence of batches
// in the same order produce byte-for-byte identical records.
func TestSameRunProducesIdenticalTrace(t *testing.T) {
	build := func() []Record {
		s := NewSink()
		b1 := NewBatch(simtime.NodeId(1))
		b1.Record(1, event.KindTxEnd, []byte("payload-1"))
		b2 := NewBatch(simtime.NodeId(2))
		b2.Record(2, event.KindReceiveAir, []byte("payload-2"))
		s.Append(b1.Flush())
		s.Append(b2.Flush())
		return s.Records()
	}

	assert.Equal(t, build(), build())
}

func TestWriteYAMLRendersKindNamesAndPreservesOrder(t *testing.T) {
	records := []Record{
		{Time: 1, Source: 1, Kind: event.KindTxEnd, PayloadHash: 42},
		{Time: 2, Source: 2, Kind: event.KindReceiveAir, PayloadHash: 7},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteYAML(&buf, records))

	var decoded []yamlRecord
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "TxEnd", decoded[0].Kind)
	assert.Equal(t, "ReceiveAir", decoded[1].Kind)
	assert.Equal(t, uint64(42), decoded[0].PayloadHash)
}
