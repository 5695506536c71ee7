package events

import (
	"fmt"
	"io"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
)

// PrinterFunc returns a handler printing streamed deltas to w, prefixed by
// the model name on the first delta of each stream.
func PrinterFunc(w io.Writer) func(msg *message.Message) error {
	return func(msg *message.Message) error {
		defer msg.Ack()

		e, err := NewEventFromJson(msg.Payload)
		if err != nil {
			return err
		}

		switch p_ := e.(type) {
		case *EventPartialCompletionStart:
			_, err = fmt.Fprintf(w, "\n[%s %s]: ", p_.Metadata().Phase, p_.Metadata().Model)
		case *EventPartialCompletion:
			_, err = fmt.Fprintf(w, "%s", p_.Delta)
		case *EventFinal:
			if !strings.HasSuffix(p_.Text, "\n") {
				_, err = fmt.Fprintf(w, "\n")
			}
		case *EventInterrupt:
			_, err = fmt.Fprintf(w, "\n[interrupted]\n")
		case *EventError:
			_, err = fmt.Fprintf(w, "\n[error: %s]\n", p_.ErrorString)
		}
		return err
	}
}
