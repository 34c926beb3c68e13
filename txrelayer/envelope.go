package txrelayer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Psychedelic/terabethia-relayer/queue"
)

type Kind string

const (
	KindSubmit   Kind = "submit"
	KindResubmit Kind = "resubmit"
	KindCheck    Kind = "check"
)

// Nonce is carried on the wire as a decimal string. Bare JSON numbers are accepted too.
type Nonce uint64

func (n Nonce) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(strconv.FormatUint(uint64(n), 10))), nil
}

func (n *Nonce) UnmarshalJSON(data []byte) error {
	text := string(bytes.Trim(data, `"`))
	v, err := strconv.ParseUint(text, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid nonce %s", data)
	}
	*n = Nonce(v)
	return nil
}

// Envelope is the body of every queue entry. Submit and resubmit go to the outbound
// queue, check goes to the check queue.
type Envelope struct {
	Kind   Kind   `json:"kind"`
	Key    string `json:"key"`
	Hash   string `json:"hash"`
	Nonce  *Nonce `json:"nonce,omitempty"`
	TxHash string `json:"txHash,omitempty"`
}

func NewSubmit(key, hash string) Envelope {
	return Envelope{Kind: KindSubmit, Key: key, Hash: hash}
}

func NewResubmit(key, hash string, nonce uint64) Envelope {
	n := Nonce(nonce)
	return Envelope{Kind: KindResubmit, Key: key, Hash: hash, Nonce: &n}
}

func NewCheck(txHash, key, hash string, nonce uint64) Envelope {
	n := Nonce(nonce)
	return Envelope{Kind: KindCheck, Key: key, Hash: hash, Nonce: &n, TxHash: txHash}
}

func (e Envelope) Validate() error {
	if e.Key == "" {
		return errors.New("envelope has no key")
	}
	if e.Hash == "" {
		return errors.New("envelope has no hash")
	}

	switch e.Kind {
	case KindSubmit:
		if e.TxHash != "" {
			return errors.New("submit envelope carries a tx hash")
		}
	case KindResubmit:
		if e.Nonce == nil {
			return errors.New("resubmit envelope has no nonce")
		}
	case KindCheck:
		if e.TxHash == "" {
			return errors.New("check envelope has no tx hash")
		}
		if e.Nonce == nil {
			return errors.New("check envelope has no nonce")
		}
	default:
		return fmt.Errorf("unknown envelope kind %q", e.Kind)
	}
	return nil
}

// DecodeEnvelope parses and validates a queue body. Producers outside the relay may
// omit kind, it is then inferred from the fields present.
func DecodeEnvelope(body []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(body, &e); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}

	if e.Kind == "" {
		switch {
		case e.TxHash != "":
			e.Kind = KindCheck
		case e.Nonce != nil:
			e.Kind = KindResubmit
		default:
			e.Kind = KindSubmit
		}
	}

	if err := e.Validate(); err != nil {
		return Envelope{}, err
	}
	return e, nil
}

// DedupID identifies the envelope for queue deduplication. A resubmit is tied to the
// rejected transaction so a redelivered check cannot enqueue it twice.
func (e Envelope) DedupID(rejectedTxHash string) string {
	switch e.Kind {
	case KindCheck:
		return e.TxHash
	case KindResubmit:
		if rejectedTxHash != "" {
			return e.Key + ":" + rejectedTxHash
		}
		return e.Key + ":" + strconv.FormatUint(uint64(*e.Nonce), 10)
	default:
		return e.Key
	}
}

func (e Envelope) Message(groupID, dedupID string, delay time.Duration) (queue.Message, error) {
	if err := e.Validate(); err != nil {
		return queue.Message{}, err
	}
	body, err := json.Marshal(e)
	if err != nil {
		return queue.Message{}, err
	}

	return queue.Message{
		Body:    body,
		GroupID: groupID,
		DedupID: dedupID,
		Delay:   delay,
	}, nil
}
