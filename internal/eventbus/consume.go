package eventbus

import "context"

// Consume forwards typed payloads from sub to handler until ctx is done or
// the subscription closes.
func Consume[T any](ctx context.Context, sub *TypedSubscription[T], handler func(TypedEnvelope[T])) {
	if sub == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-sub.C():
			if !ok {
				return
			}
			handler(env)
		}
	}
}
