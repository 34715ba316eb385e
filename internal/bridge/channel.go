package bridge

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	defaultReplyChannelPrefixConstant = "shellbridge.reply"
	replyChannelTemplateConstant      = "%s.%d.%d.%s"
	replyChannelCounterOriginConstant = 1000
)

// ReplyChannelGenerator produces reply channel identifiers that never repeat within a process
// and cannot be guessed by unrelated processes.
type ReplyChannelGenerator struct {
	prefix  string
	counter atomic.Uint64
	clock   func() time.Time
}

// NewReplyChannelGenerator constructs a generator using prefix, or the default prefix when blank.
func NewReplyChannelGenerator(prefix string) *ReplyChannelGenerator {
	trimmedPrefix := strings.TrimSpace(prefix)
	if len(trimmedPrefix) == 0 {
		trimmedPrefix = defaultReplyChannelPrefixConstant
	}
	generator := &ReplyChannelGenerator{prefix: trimmedPrefix, clock: time.Now}
	generator.counter.Store(replyChannelCounterOriginConstant)
	return generator
}

// Next returns a fresh identifier composed of the prefix, a millisecond timestamp,
// a monotonically increasing counter, and a random UUID.
func (generator *ReplyChannelGenerator) Next() string {
	sequence := generator.counter.Add(1)
	return fmt.Sprintf(replyChannelTemplateConstant, generator.prefix, generator.clock().UnixMilli(), sequence, uuid.NewString())
}
