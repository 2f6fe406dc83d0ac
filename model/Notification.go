package model

import (
	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
)

type NotificationType int

const (
	NotificationTypeBlockConnected NotificationType = iota
	NotificationTypeBlockDisconnected
	NotificationTypeUpdatedBlockTip
	NotificationTypeTxAccepted
	NotificationTypeTxRemoved
	NotificationTypeMisbehaving
)

var notificationTypeNames = map[NotificationType]string{
	NotificationTypeBlockConnected:    "BlockConnected",
	NotificationTypeBlockDisconnected: "BlockDisconnected",
	NotificationTypeUpdatedBlockTip:   "UpdatedBlockTip",
	NotificationTypeTxAccepted:        "TxAccepted",
	NotificationTypeTxRemoved:         "TxRemoved",
	NotificationTypeMisbehaving:       "Misbehaving",
}

func (t NotificationType) String() string {
	if name, ok := notificationTypeNames[t]; ok {
		return name
	}

	return "Unknown"
}

// Notification is a typed event emitted by the chain state and the mempool.
// Only the fields relevant to Type are set.
type Notification struct {
	Type   NotificationType
	Hash   *chainhash.Hash
	Height int32

	Block *Block
	Tx    *bt.Tx

	// InitialDownload is set on tip updates while the node is still catching up.
	InitialDownload bool

	PeerID string
	Score  int
	Reason string
}

// Subscriber receives notifications synchronously, in the order they were emitted.
// Implementations must not call back into the emitter.
type Subscriber interface {
	Notify(n *Notification)
}

// SubscriberFunc adapts a function to the Subscriber interface.
type SubscriberFunc func(n *Notification)

func (f SubscriberFunc) Notify(n *Notification) {
	f(n)
}
