package wire

import (
	"encoding/binary"
	"io"
)

// Feerate is a single satoshi-per-vbyte confirmation target a swap-out
// provider is willing to serve at a given blocks-to-confirm horizon.
type Feerate struct {
	Blocks uint32
	Fee    uint32 // sat/vbyte
}

// SwapOutRequest solicits swap-out feerate offers from a hosted channel
// counterparty.
type SwapOutRequest struct {
	ChainFeeBudget uint64
}

func (m *SwapOutRequest) Encode(w io.Writer) error {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], m.ChainFeeBudget)
	_, err := w.Write(b[:])
	return err
}

func (m *SwapOutRequest) Decode(r io.Reader) error {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return err
	}
	m.ChainFeeBudget = binary.BigEndian.Uint64(b[:])
	return nil
}

func (m *SwapOutRequest) MsgType() MessageType     { return MsgSwapOutRequest }
func (m *SwapOutRequest) MaxPayloadLength() uint32 { return MaxMessagePayload }

// SwapOutResponse carries a provider's feerate offers, one per confirmation
// target it is willing to serve.
type SwapOutResponse struct {
	Feerates []Feerate
}

func (m *SwapOutResponse) Encode(w io.Writer) error {
	var lb [4]byte
	binary.BigEndian.PutUint32(lb[:], uint32(len(m.Feerates)))
	if _, err := w.Write(lb[:]); err != nil {
		return err
	}
	for _, fr := range m.Feerates {
		var b [8]byte
		binary.BigEndian.PutUint32(b[0:4], fr.Blocks)
		binary.BigEndian.PutUint32(b[4:8], fr.Fee)
		if _, err := w.Write(b[:]); err != nil {
			return err
		}
	}
	return nil
}

func (m *SwapOutResponse) Decode(r io.Reader) error {
	var lb [4]byte
	if _, err := io.ReadFull(r, lb[:]); err != nil {
		return err
	}
	n := binary.BigEndian.Uint32(lb[:])
	m.Feerates = make([]Feerate, 0, n)
	for i := uint32(0); i < n; i++ {
		var b [8]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return err
		}
		m.Feerates = append(m.Feerates, Feerate{
			Blocks: binary.BigEndian.Uint32(b[0:4]),
			Fee:    binary.BigEndian.Uint32(b[4:8]),
		})
	}
	return nil
}

func (m *SwapOutResponse) MsgType() MessageType     { return MsgSwapOutResponse }
func (m *SwapOutResponse) MaxPayloadLength() uint32 { return MaxMessagePayload }

// AllBelowMinFee reports whether every feerate offer falls below minFee,
// making the whole response unusable.
func (m *SwapOutResponse) AllBelowMinFee(minFee uint32) bool {
	if len(m.Feerates) == 0 {
		return true
	}
	for _, fr := range m.Feerates {
		if fr.Fee >= minFee {
			return false
		}
	}
	return true
}
