package txrelayer

import (
	"context"

	"github.com/Psychedelic/terabethia-relayer/codec"
)

// Replay puts a message on the outbound queue by hand and claims it, e.g. after the
// poller claimed a message it failed to enqueue. With a nonce the message is resubmitted
// with exactly that nonce.
func Replay(ctx context.Context, deps Deps, key, hash string, nonce *uint64) error {
	if _, _, err := codec.SplitUint256(hash); err != nil {
		return err
	}

	var err error
	if nonce == nil {
		err = deps.EnqueueSubmit(ctx, key, hash)
	} else {
		err = deps.EnqueueResubmit(ctx, key, hash, *nonce, "")
	}
	if err != nil {
		return err
	}

	return deps.Store.Claim(ctx, key)
}
