// Package eventbus is a small typed fan-in helper used to merge the Wi-Fi
// and native transports' raw event channels into the single stream the
// Registry consumes.
package eventbus

import "context"

// Merge fan-ins any number of receive channels into one. The returned
// channel closes once ctx is done or every input channel is closed.
func Merge[T any](ctx context.Context, chans ...<-chan T) <-chan T {
	out := make(chan T)

	go func() {
		defer close(out)

		if len(chans) == 0 {
			<-ctx.Done()
			return
		}

		remaining := len(chans)
		done := make(chan struct{}, len(chans))

		for _, c := range chans {
			c := c
			go func() {
				defer func() { done <- struct{}{} }()
				for {
					select {
					case v, ok := <-c:
						if !ok {
							return
						}
						select {
						case out <- v:
						case <-ctx.Done():
							return
						}
					case <-ctx.Done():
						return
					}
				}
			}()
		}

		for remaining > 0 {
			select {
			case <-done:
				remaining--
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}
