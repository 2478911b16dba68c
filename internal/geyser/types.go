// Package geyser holds hand-authored wire types and a thin client for a
// Yellowstone-style Geyser CDC gRPC endpoint. There is no .proto file to
// codegen from in this tree, so the messages are written in the
// protoc-gen-go legacy struct-tag style: Reset/String/ProtoMessage plus
// `protobuf:"..."` tags are enough for google.golang.org/protobuf's
// protoadapt bridge to marshal them without a compiled descriptor.
package geyser

import (
	"github.com/golang/protobuf/proto" //nolint:staticcheck // legacy struct-tag bridge, see package doc
)

// SlotStatus mirrors the commitment levels a slot update can report.
type SlotStatus int32

const (
	SlotStatusProcessed SlotStatus = 0
	SlotStatusConfirmed SlotStatus = 1
	SlotStatusFinalized SlotStatus = 2
)

// CommitmentLevel is the read tier a subscription requests; the pipeline
// always subscribes at processed for the lowest-latency signal.
type CommitmentLevel int32

const (
	CommitmentProcessed CommitmentLevel = 0
	CommitmentConfirmed CommitmentLevel = 1
	CommitmentFinalized CommitmentLevel = 2
)

// SubscribeRequestFilterTransactions narrows the transaction stream to
// successful vote transactions touching a given set of accounts.
type SubscribeRequestFilterTransactions struct {
	Vote           *bool    `protobuf:"varint,1,opt,name=vote,proto3,oneof" json:"vote,omitempty"`
	Failed         *bool    `protobuf:"varint,2,opt,name=failed,proto3,oneof" json:"failed,omitempty"`
	AccountInclude []string `protobuf:"bytes,3,rep,name=account_include,json=accountInclude,proto3" json:"account_include,omitempty"`
}

func (m *SubscribeRequestFilterTransactions) Reset()         { *m = SubscribeRequestFilterTransactions{} }
func (m *SubscribeRequestFilterTransactions) String() string { return proto.CompactTextString(m) }
func (*SubscribeRequestFilterTransactions) ProtoMessage()    {}

// SubscribeRequestFilterSlots requests commitment-graded slot updates.
type SubscribeRequestFilterSlots struct {
	FilterByCommitment *bool `protobuf:"varint,1,opt,name=filter_by_commitment,json=filterByCommitment,proto3,oneof" json:"filter_by_commitment,omitempty"`
	InterslotUpdates   *bool `protobuf:"varint,2,opt,name=interslot_updates,json=interslotUpdates,proto3,oneof" json:"interslot_updates,omitempty"`
}

func (m *SubscribeRequestFilterSlots) Reset()         { *m = SubscribeRequestFilterSlots{} }
func (m *SubscribeRequestFilterSlots) String() string { return proto.CompactTextString(m) }
func (*SubscribeRequestFilterSlots) ProtoMessage()    {}

// SubscribeRequestFilterAccounts requests account-state update streaming
// for the given accounts.
type SubscribeRequestFilterAccounts struct {
	Account []string `protobuf:"bytes,1,rep,name=account,proto3" json:"account,omitempty"`
}

func (m *SubscribeRequestFilterAccounts) Reset()         { *m = SubscribeRequestFilterAccounts{} }
func (m *SubscribeRequestFilterAccounts) String() string { return proto.CompactTextString(m) }
func (*SubscribeRequestFilterAccounts) ProtoMessage()    {}

// SubscribeRequest combines the three named filters a worker sends once
// at the start of its stream. Filter names are opaque strings the server
// echoes back on each update so the client can tell which filter matched.
type SubscribeRequest struct {
	Transactions map[string]*SubscribeRequestFilterTransactions `protobuf:"bytes,1,rep,name=transactions,proto3" json:"transactions,omitempty" protobuf_key:"bytes,1,opt,name=key,proto3" protobuf_val:"bytes,2,opt,name=value,proto3"`
	Slots        map[string]*SubscribeRequestFilterSlots        `protobuf:"bytes,2,rep,name=slots,proto3" json:"slots,omitempty" protobuf_key:"bytes,1,opt,name=key,proto3" protobuf_val:"bytes,2,opt,name=value,proto3"`
	Accounts     map[string]*SubscribeRequestFilterAccounts     `protobuf:"bytes,3,rep,name=accounts,proto3" json:"accounts,omitempty" protobuf_key:"bytes,1,opt,name=key,proto3" protobuf_val:"bytes,2,opt,name=value,proto3"`
	Commitment   *CommitmentLevel                               `protobuf:"varint,6,opt,name=commitment,proto3,enum=geyser.CommitmentLevel,oneof" json:"commitment,omitempty"`
}

func (m *SubscribeRequest) Reset()         { *m = SubscribeRequest{} }
func (m *SubscribeRequest) String() string { return proto.CompactTextString(m) }
func (*SubscribeRequest) ProtoMessage()    {}

// CompiledInstruction is one instruction of a streamed transaction,
// already framed by the server: the program is an index into the
// transaction's account keys and Data is the raw instruction payload.
type CompiledInstruction struct {
	ProgramIdIndex uint32 `protobuf:"varint,1,opt,name=program_id_index,json=programIdIndex,proto3" json:"program_id_index,omitempty"`
	Accounts       []byte `protobuf:"bytes,2,opt,name=accounts,proto3" json:"accounts,omitempty"`
	Data           []byte `protobuf:"bytes,3,opt,name=data,proto3" json:"data,omitempty"`
}

func (m *CompiledInstruction) Reset()         { *m = CompiledInstruction{} }
func (m *CompiledInstruction) String() string { return proto.CompactTextString(m) }
func (*CompiledInstruction) ProtoMessage()    {}

// SubscribeUpdateTransactionInfo is the payload of a transaction update.
// Account keys and compiled instructions arrive separately so consumers
// can pick out vote-program instructions without a full-transaction
// deserialisation pass.
type SubscribeUpdateTransactionInfo struct {
	Signature    []byte                 `protobuf:"bytes,1,opt,name=signature,proto3" json:"signature,omitempty"`
	IsVote       bool                   `protobuf:"varint,2,opt,name=is_vote,json=isVote,proto3" json:"is_vote,omitempty"`
	AccountKeys  [][]byte               `protobuf:"bytes,3,rep,name=account_keys,json=accountKeys,proto3" json:"account_keys,omitempty"`
	Instructions []*CompiledInstruction `protobuf:"bytes,4,rep,name=instructions,proto3" json:"instructions,omitempty"`
}

func (m *SubscribeUpdateTransactionInfo) Reset()         { *m = SubscribeUpdateTransactionInfo{} }
func (m *SubscribeUpdateTransactionInfo) String() string { return proto.CompactTextString(m) }
func (*SubscribeUpdateTransactionInfo) ProtoMessage()    {}

// SubscribeUpdateTransaction is the transaction-update variant.
type SubscribeUpdateTransaction struct {
	Transaction *SubscribeUpdateTransactionInfo `protobuf:"bytes,1,opt,name=transaction,proto3" json:"transaction,omitempty"`
	Slot        uint64                          `protobuf:"varint,2,opt,name=slot,proto3" json:"slot,omitempty"`
}

func (m *SubscribeUpdateTransaction) Reset()         { *m = SubscribeUpdateTransaction{} }
func (m *SubscribeUpdateTransaction) String() string { return proto.CompactTextString(m) }
func (*SubscribeUpdateTransaction) ProtoMessage()    {}

// SubscribeUpdateSlot is the slot-update variant.
type SubscribeUpdateSlot struct {
	Slot   uint64     `protobuf:"varint,1,opt,name=slot,proto3" json:"slot,omitempty"`
	Status SlotStatus `protobuf:"varint,2,opt,name=status,proto3,enum=geyser.SlotStatus" json:"status,omitempty"`
}

func (m *SubscribeUpdateSlot) Reset()         { *m = SubscribeUpdateSlot{} }
func (m *SubscribeUpdateSlot) String() string { return proto.CompactTextString(m) }
func (*SubscribeUpdateSlot) ProtoMessage()    {}

// SubscribeUpdateAccount is the account-update variant; observed only,
// never a latency source (its slot is the slot of mutation, not landing).
type SubscribeUpdateAccount struct {
	Account []byte `protobuf:"bytes,1,opt,name=account,proto3" json:"account,omitempty"`
	Slot    uint64 `protobuf:"varint,2,opt,name=slot,proto3" json:"slot,omitempty"`
}

func (m *SubscribeUpdateAccount) Reset()         { *m = SubscribeUpdateAccount{} }
func (m *SubscribeUpdateAccount) String() string { return proto.CompactTextString(m) }
func (*SubscribeUpdateAccount) ProtoMessage()    {}

// SubscribeUpdatePing is a keepalive the server sends on an otherwise
// idle stream; it carries no data.
type SubscribeUpdatePing struct{}

func (m *SubscribeUpdatePing) Reset()         { *m = SubscribeUpdatePing{} }
func (m *SubscribeUpdatePing) String() string { return proto.CompactTextString(m) }
func (*SubscribeUpdatePing) ProtoMessage()    {}

// isSubscribeUpdate_UpdateOneof matches the protoc-gen-go oneof wrapper
// pattern: each variant implements the marker method so a type switch on
// UpdateOneof is the one-of dispatch.
type isSubscribeUpdate_UpdateOneof interface {
	isSubscribeUpdate_UpdateOneof()
}

type SubscribeUpdate_Transaction struct {
	Transaction *SubscribeUpdateTransaction `protobuf:"bytes,1,opt,name=transaction,proto3,oneof"`
}

type SubscribeUpdate_Slot struct {
	Slot *SubscribeUpdateSlot `protobuf:"bytes,2,opt,name=slot,proto3,oneof"`
}

type SubscribeUpdate_Account struct {
	Account *SubscribeUpdateAccount `protobuf:"bytes,3,opt,name=account,proto3,oneof"`
}

type SubscribeUpdate_Ping struct {
	Ping *SubscribeUpdatePing `protobuf:"bytes,4,opt,name=ping,proto3,oneof"`
}

func (*SubscribeUpdate_Transaction) isSubscribeUpdate_UpdateOneof() {}
func (*SubscribeUpdate_Slot) isSubscribeUpdate_UpdateOneof()        {}
func (*SubscribeUpdate_Account) isSubscribeUpdate_UpdateOneof()     {}
func (*SubscribeUpdate_Ping) isSubscribeUpdate_UpdateOneof()        {}

// SubscribeUpdate is the server-streamed envelope; UpdateOneof carries
// exactly one of the four variants above per message.
type SubscribeUpdate struct {
	Filters     []string                      `protobuf:"bytes,1,rep,name=filters,proto3" json:"filters,omitempty"`
	UpdateOneof isSubscribeUpdate_UpdateOneof `protobuf_oneof:"update_oneof"`
}

func (m *SubscribeUpdate) Reset()         { *m = SubscribeUpdate{} }
func (m *SubscribeUpdate) String() string { return proto.CompactTextString(m) }
func (*SubscribeUpdate) ProtoMessage()    {}

// XXX_OneofWrappers is for the internal use of the proto package: it is
// how the legacy-message bridge learns which wrapper types belong to the
// update_oneof field, since there is no compiled descriptor to consult.
func (*SubscribeUpdate) XXX_OneofWrappers() []interface{} {
	return []interface{}{
		(*SubscribeUpdate_Transaction)(nil),
		(*SubscribeUpdate_Slot)(nil),
		(*SubscribeUpdate_Account)(nil),
		(*SubscribeUpdate_Ping)(nil),
	}
}

func (m *SubscribeUpdate) GetTransaction() *SubscribeUpdateTransaction {
	if v, ok := m.UpdateOneof.(*SubscribeUpdate_Transaction); ok {
		return v.Transaction
	}
	return nil
}

func (m *SubscribeUpdate) GetSlot() *SubscribeUpdateSlot {
	if v, ok := m.UpdateOneof.(*SubscribeUpdate_Slot); ok {
		return v.Slot
	}
	return nil
}

func (m *SubscribeUpdate) GetAccount() *SubscribeUpdateAccount {
	if v, ok := m.UpdateOneof.(*SubscribeUpdate_Account); ok {
		return v.Account
	}
	return nil
}

func (m *SubscribeUpdate) GetPing() *SubscribeUpdatePing {
	if v, ok := m.UpdateOneof.(*SubscribeUpdate_Ping); ok {
		return v.Ping
	}
	return nil
}
