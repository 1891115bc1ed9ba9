package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lightningnetwork/trampoline-electrum/comms"
)

func TestMessageRoundTrip(t *testing.T) {
	tests := []Message{
		&TrampolineStatusInit{
			Updates: nil,
			Status: TrampolineOn{
				MinMsat:         1000,
				MaxMsat:         500_000,
				FeeBaseMsat:     1,
				CltvExpiryDelta: 144,
			},
		},
		&TrampolineStatusUpdate{
			Removed: nil,
			Changed: nil,
			Status: &TrampolineOn{
				MinMsat: 1,
				MaxMsat: comms.MilliSatoshi(800_000),
			},
		},
		&TrampolineUndesired{},
		&SwapOutRequest{ChainFeeBudget: 42},
		&SwapOutResponse{Feerates: []Feerate{{Blocks: 6, Fee: 253}}},
	}

	for _, msg := range tests {
		var buf bytes.Buffer
		_, err := WriteMessage(&buf, msg)
		require.NoError(t, err)

		decoded, err := ReadMessage(&buf)
		require.NoError(t, err)
		require.Equal(t, msg.MsgType(), decoded.MsgType())
	}
}

func TestReadMessageUnknownType(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0xff, 0xff})

	_, err := ReadMessage(&buf)
	require.Error(t, err)

	var unknown *UnknownMessage
	require.ErrorAs(t, err, &unknown)
}

func TestSwapOutResponseAllBelowMinFee(t *testing.T) {
	const minFee = 253

	require.True(t, (&SwapOutResponse{}).AllBelowMinFee(minFee))

	r := &SwapOutResponse{Feerates: []Feerate{{Blocks: 6, Fee: 100}}}
	require.True(t, r.AllBelowMinFee(minFee))

	r = &SwapOutResponse{Feerates: []Feerate{
		{Blocks: 6, Fee: 100},
		{Blocks: 2, Fee: 300},
	}}
	require.False(t, r.AllBelowMinFee(minFee))
}
