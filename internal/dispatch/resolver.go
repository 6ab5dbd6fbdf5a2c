package dispatch

import (
	"fmt"
	"strings"

	"github.com/wavehub/instance-server-go/internal/model"
)

// TargetResolver turns a queue row into the concrete destination address the
// transport should deliver to.
type TargetResolver interface {
	Resolve(msg model.OutgoingMessage) (string, error)
}

// AddressResolver is the default resolver: the row already carries the
// destination, so resolution is normalization plus validation.
type AddressResolver struct{}

func (AddressResolver) Resolve(msg model.OutgoingMessage) (string, error) {
	target := strings.TrimSpace(msg.TargetAddress)
	if target == "" {
		return "", fmt.Errorf("empty target address")
	}
	if strings.ContainsAny(target, " \t") {
		return "", fmt.Errorf("invalid target address %q", target)
	}
	return target, nil
}
