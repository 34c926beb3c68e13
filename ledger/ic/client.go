package ic

import (
	"context"
	"fmt"
	"net/url"

	"github.com/aviate-labs/agent-go"
	"github.com/aviate-labs/agent-go/principal"
	"github.com/pkg/errors"

	"github.com/Psychedelic/terabethia-relayer/config"
	"github.com/Psychedelic/terabethia-relayer/ledger"
)

/*
Candid interface of the message canister:

	type OutgoingMessage = record { msg_key : text; msg_hash : text };
	type Result = variant { Ok : bool; Err : text };
	service : {
		get_messages : () -> (vec OutgoingMessage) query;
		remove_messages : (vec record { text; text }) -> (Result);
	}

Both methods are guarded: the caller principal must be authorized on the canister.
*/

// Agent is the part of agent.Agent the client uses.
type Agent interface {
	Query(canisterID principal.Principal, methodName string, args []any, values []any) error
	Call(canisterID principal.Principal, methodName string, args []any, values []any) error
}

type outgoingMessage struct {
	Key  string `ic:"msg_key"`
	Hash string `ic:"msg_hash"`
}

type messageRef struct {
	Key  string `ic:"0"`
	Hash string `ic:"1"`
}

type removeResult struct {
	Ok  *bool   `ic:"Ok,variant"`
	Err *string `ic:"Err,variant"`
}

// anonymous is the principal of unsigned calls.
var anonymous = principal.Principal{Raw: []byte{0x04}}

type Client struct {
	agent    Agent
	canister principal.Principal
	identity *KMSIdentity
}

var _ ledger.Source = (*Client)(nil)

// New connects to the canister through the gateway in cfg. A nil identity calls anonymously.
func New(cfg config.SourceConfig, id *KMSIdentity) (*Client, error) {
	canister, err := principal.Decode(cfg.CanisterId)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid canister id %q", cfg.CanisterId)
	}
	host, err := url.Parse(cfg.GatewayUrl)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid gateway url %q", cfg.GatewayUrl)
	}

	agentCfg := agent.Config{
		ClientConfig:  &agent.ClientConfig{Host: host},
		FetchRootKey:  cfg.FetchRootKey,
		IngressExpiry: cfg.IngressExpiry,
		PollTimeout:   cfg.Timeout,
	}
	if id != nil {
		agentCfg.Identity = id
	}
	a, err := agent.New(agentCfg)
	if err != nil {
		return nil, errors.Wrap(err, "create canister agent")
	}

	return NewWithAgent(a, canister, id), nil
}

func NewWithAgent(a Agent, canister principal.Principal, id *KMSIdentity) *Client {
	return &Client{agent: a, canister: canister, identity: id}
}

func (c *Client) CanisterId() string {
	return c.canister.String()
}

// Caller returns the principal the canister sees.
func (c *Client) Caller() string {
	if c.identity == nil {
		return anonymous.String()
	}
	return c.identity.Sender().String()
}

func (c *Client) ListOutgoing(ctx context.Context) ([]ledger.OutgoingMessage, error) {
	var raw []outgoingMessage
	err := c.do(ctx, "get_messages", func() error {
		return c.agent.Query(c.canister, "get_messages", []any{}, []any{&raw})
	})
	if err != nil {
		return nil, err
	}

	msgs := make([]ledger.OutgoingMessage, 0, len(raw))
	for _, m := range raw {
		msgs = append(msgs, ledger.OutgoingMessage{Key: m.Key, Hash: m.Hash})
	}
	return msgs, nil
}

func (c *Client) Remove(ctx context.Context, msgs []ledger.OutgoingMessage) error {
	if len(msgs) == 0 {
		return nil
	}

	refs := make([]messageRef, 0, len(msgs))
	for _, msg := range msgs {
		refs = append(refs, messageRef{Key: msg.Key, Hash: msg.Hash})
	}

	var result removeResult
	err := c.do(ctx, "remove_messages", func() error {
		return c.agent.Call(c.canister, "remove_messages", []any{refs}, []any{&result})
	})
	if err != nil {
		return err
	}
	if result.Err != nil {
		return fmt.Errorf("remove_messages: %s", *result.Err)
	}
	if result.Ok == nil || !*result.Ok {
		return errors.New("remove_messages: canister did not confirm removal")
	}

	return nil
}

// do runs a canister call that takes no context, returning early when ctx is done.
func (c *Client) do(ctx context.Context, method string, call func() error) error {
	done := make(chan error, 1)
	go func() { done <- call() }()

	select {
	case <-ctx.Done():
		return errors.Wrapf(ctx.Err(), "call %s", method)
	case err := <-done:
		if err == nil {
			return nil
		}
		if c.identity != nil {
			if signErr := c.identity.takeSignError(); signErr != nil {
				err = fmt.Errorf("%w (signing: %v)", err, signErr)
			}
		}
		return errors.Wrapf(err, "call %s", method)
	}
}
