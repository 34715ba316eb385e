package progress

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

const (
	lineTemplateConstant   = "%s\n"
	lineBreakConstant      = "\n"
	carriageReturnConstant = "\r"
)

// Consumer receives progress lines.
type Consumer interface {
	Push(line string)
}

// ConsumerFunc adapts a function into a Consumer.
type ConsumerFunc func(line string)

// Push implements Consumer.
func (consumerFunc ConsumerFunc) Push(line string) {
	consumerFunc(line)
}

// Stream delivers lines to at most one attached consumer.
type Stream struct {
	mutex      sync.Mutex
	consumer   Consumer
	generation uint64
}

// NewStream constructs a stream with no consumer attached.
func NewStream() *Stream {
	return &Stream{}
}

// Attach replaces the current consumer and returns a function that detaches it.
// Detaching after another consumer has attached is a no-op.
func (stream *Stream) Attach(consumer Consumer) func() {
	stream.mutex.Lock()
	defer stream.mutex.Unlock()
	stream.generation++
	attachedGeneration := stream.generation
	stream.consumer = consumer
	return func() {
		stream.mutex.Lock()
		defer stream.mutex.Unlock()
		if stream.generation != attachedGeneration {
			return
		}
		stream.consumer = nil
	}
}

// Push forwards line to the attached consumer. Lines pushed while detached are dropped.
func (stream *Stream) Push(line string) {
	stream.mutex.Lock()
	consumer := stream.consumer
	stream.mutex.Unlock()
	if consumer == nil {
		return
	}
	consumer.Push(line)
}

// WriterConsumer writes each line to an io.Writer.
type WriterConsumer struct {
	mutex  sync.Mutex
	writer io.Writer
}

// NewWriterConsumer constructs a consumer writing to writer.
func NewWriterConsumer(writer io.Writer) *WriterConsumer {
	return &WriterConsumer{writer: writer}
}

// Push implements Consumer.
func (consumer *WriterConsumer) Push(line string) {
	if consumer == nil || consumer.writer == nil {
		return
	}
	consumer.mutex.Lock()
	defer consumer.mutex.Unlock()
	_, _ = fmt.Fprintf(consumer.writer, lineTemplateConstant, line)
}

// TailLines splits raw output into non-blank lines and keeps only the last limit of them.
// A non-positive limit keeps every line.
func TailLines(rawOutput string, limit int) []string {
	normalizedOutput := strings.ReplaceAll(rawOutput, carriageReturnConstant, "")
	nonBlankLines := make([]string, 0)
	for _, line := range strings.Split(normalizedOutput, lineBreakConstant) {
		if len(strings.TrimSpace(line)) == 0 {
			continue
		}
		nonBlankLines = append(nonBlankLines, line)
	}
	if limit <= 0 || len(nonBlankLines) <= limit {
		return nonBlankLines
	}
	return nonBlankLines[len(nonBlankLines)-limit:]
}
