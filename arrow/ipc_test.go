package arrow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VanDung-dev/HieraChain-Relay/hierachain-relay/data"
)

func TestIPCRoundTrip(t *testing.T) {
	converter := data.NewConverter()
	entries := []data.Resolution{
		{CorrelationID: "c1", Requester: "alice#1", Replies: 2, WinnerLength: 7, Outcome: "complete", LatencyMs: 3, ResolvedAt: 1},
	}

	record := converter.ResolutionsToArrowBatch(entries)
	defer record.Release()

	w := NewIPCWriter()
	buf, err := w.SerializeToIPC(record)
	require.NoError(t, err)
	require.NotEmpty(t, buf)

	back, err := w.DeserializeFromIPC(buf)
	require.NoError(t, err)
	defer back.Release()

	got, err := converter.ArrowBatchToResolutions(back)
	require.NoError(t, err)
	assert.Equal(t, entries, got)
}

func TestIPCEmptyBatch(t *testing.T) {
	record := data.NewConverter().ResolutionsToArrowBatch(nil)
	defer record.Release()

	w := NewIPCWriter()
	buf, err := w.SerializeToIPC(record)
	require.NoError(t, err)

	back, err := w.DeserializeFromIPC(buf)
	require.NoError(t, err)
	defer back.Release()

	assert.Equal(t, int64(0), back.NumRows())
	assert.True(t, back.Schema().Equal(data.ResolutionSchema()))
}

func TestDeserializeGarbage(t *testing.T) {
	_, err := NewIPCWriter().DeserializeFromIPC([]byte("not arrow"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNoRecords))
}
