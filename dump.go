package sharedsnap

// dump.go implements the human-readable state dump attached to error
// messages and used for operator debugging. Never used for control flow.

import (
	"fmt"
	"sort"
	"strings"
)

// Dump renders the session's shared snapshot state: session id, role, the
// ring buffer's tag values, and the local cache contents.
func (s *Session) Dump() string {
	var b strings.Builder

	fmt.Fprintf(&b, "session: %d, role = %s", s.sessionID, s.proc.Role())

	if s.desc == nil {
		b.WriteString(", detached\n")
		return b.String()
	}
	fmt.Fprintf(&b, ", writer pid = %d, freshness tag = %d\n",
		s.desc.writer.PID(), s.desc.syncTag)

	for i := range s.desc.dumps {
		entry := &s.desc.dumps[i]
		if entry.segment == nil {
			continue
		}
		fmt.Fprintf(&b, "ring[%d] tag: %d (handle %d)\n", i, entry.tag, entry.handle)
	}

	if len(s.dumpCache) > 0 {
		b.WriteString("local cache contains:\n")
		tags := make([]SyncTag, 0, len(s.dumpCache))
		for tag := range s.dumpCache {
			tags = append(tags, tag)
		}
		sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
		for _, tag := range tags {
			fmt.Fprintf(&b, "  tag: %d\n", tag)
		}
	}

	return b.String()
}
