package azservicebus

import (
	"context"
	"errors"
	"fmt"

	asb "github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"

	berr "github.com/next-trace/scg-shared-kernel/contract/errors"
)

// NewWithConnectionString connects with a namespace connection string. The
// returned client can open receivers; the cleanup closes senders and client.
func NewWithConnectionString(conn string) (*Adapter, *asb.Client, func(), error) {
	if conn == "" {
		return nil, nil, nil, fmt.Errorf("azure service bus connection string required: %w", berr.ErrPublishFailed)
	}

	client, err := asb.NewClientFromConnectionString(conn, nil)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("azure service bus client: %w", errors.Join(berr.ErrPublishFailed, err))
	}

	senders := NewSenders(func(entity string) (Sender, error) {
		snd, err := client.NewSender(entity, nil)
		if err != nil {
			return nil, err
		}

		return snd, nil
	})

	cleanup := func() {
		ctx := context.Background()
		_ = senders.Close(ctx)
		_ = client.Close(ctx)
	}

	return New(senders), client, cleanup, nil
}
