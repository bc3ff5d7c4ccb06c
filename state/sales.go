package state

import (
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"launchpad/native/launchpad"
	"launchpad/native/sale"
)

var (
	salePrefix       = []byte("sale:")
	participantInfix = []byte(":participant:")
	saleIndexKey     = []byte("sale-index")
	launchParamsKey  = ethcrypto.Keccak256([]byte("launchpad:params"))
)

func saleKey(addr [20]byte) []byte {
	buf := make([]byte, len(salePrefix)+len(addr))
	copy(buf, salePrefix)
	copy(buf[len(salePrefix):], addr[:])
	return ethcrypto.Keccak256(buf)
}

func participantKey(saleAddr, participant [20]byte) []byte {
	buf := make([]byte, 0, len(salePrefix)+len(participantInfix)+40)
	buf = append(buf, salePrefix...)
	buf = append(buf, saleAddr[:]...)
	buf = append(buf, participantInfix...)
	buf = append(buf, participant[:]...)
	return ethcrypto.Keccak256(buf)
}

// SalePut persists a sale record under its address.
func (m *Manager) SalePut(s *sale.Sale) error {
	if s == nil {
		return fmt.Errorf("sale must not be nil")
	}
	encoded, err := rlp.EncodeToBytes(s.Clone())
	if err != nil {
		return err
	}
	return m.trie.Update(saleKey(s.Address), encoded)
}

// SaleGet loads the sale record stored at the address.
func (m *Manager) SaleGet(addr [20]byte) (*sale.Sale, bool, error) {
	data, err := m.trie.Get(saleKey(addr))
	if err != nil {
		return nil, false, err
	}
	if len(data) == 0 {
		return nil, false, nil
	}
	record := new(sale.Sale)
	if err := rlp.DecodeBytes(data, record); err != nil {
		return nil, false, err
	}
	return record, true, nil
}

// SaleParticipantPut persists a participant's ledger entry for the sale.
func (m *Manager) SaleParticipantPut(saleAddr, participant [20]byte, p *sale.Participant) error {
	if p == nil {
		return fmt.Errorf("participant must not be nil")
	}
	encoded, err := rlp.EncodeToBytes(p.Clone())
	if err != nil {
		return err
	}
	return m.trie.Update(participantKey(saleAddr, participant), encoded)
}

// SaleParticipantGet loads a participant's ledger entry for the sale.
func (m *Manager) SaleParticipantGet(saleAddr, participant [20]byte) (*sale.Participant, bool, error) {
	data, err := m.trie.Get(participantKey(saleAddr, participant))
	if err != nil {
		return nil, false, err
	}
	if len(data) == 0 {
		return nil, false, nil
	}
	record := new(sale.Participant)
	if err := rlp.DecodeBytes(data, record); err != nil {
		return nil, false, err
	}
	return record, true, nil
}

// SaleIndexAppend records the sale address in the deterministic deployment
// index.
func (m *Manager) SaleIndexAppend(addr [20]byte) error {
	return m.KVAppend(saleIndexKey, addr[:])
}

// SaleList returns all deployed sale addresses in creation order.
func (m *Manager) SaleList() ([][20]byte, error) {
	var raw [][]byte
	if err := m.KVGetList(saleIndexKey, &raw); err != nil {
		return nil, err
	}
	out := make([][20]byte, 0, len(raw))
	for _, entry := range raw {
		if len(entry) != 20 {
			return nil, fmt.Errorf("sale index: malformed address entry of %d bytes", len(entry))
		}
		var addr [20]byte
		copy(addr[:], entry)
		out = append(out, addr)
	}
	return out, nil
}

// LaunchParamsPut persists the factory parameters.
func (m *Manager) LaunchParamsPut(p *launchpad.Params) error {
	if p == nil {
		return fmt.Errorf("launch params must not be nil")
	}
	encoded, err := rlp.EncodeToBytes(p.Clone())
	if err != nil {
		return err
	}
	return m.trie.Update(launchParamsKey, encoded)
}

// LaunchParamsGet loads the factory parameters.
func (m *Manager) LaunchParamsGet() (*launchpad.Params, bool, error) {
	data, err := m.trie.Get(launchParamsKey)
	if err != nil {
		return nil, false, err
	}
	if len(data) == 0 {
		return nil, false, nil
	}
	params := new(launchpad.Params)
	if err := rlp.DecodeBytes(data, params); err != nil {
		return nil, false, err
	}
	return params, true, nil
}
