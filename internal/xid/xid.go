package xid

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// New returns a prefixed, time ordered identifier such as
// "sale_01890a5d7c3b7d4e8f1a2b3c4d5e6f70".
func New(prefix string) string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return fmt.Sprintf("%s_%s", prefix, strings.ReplaceAll(id.String(), "-", ""))
}
