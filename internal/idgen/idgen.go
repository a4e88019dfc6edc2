// Package idgen issues time-sortable resource ids and compact row ids.
package idgen

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
)

// Generator hands out ULIDs for posts and comments and snowflake ids for like rows.
type Generator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	node    *snowflake.Node
}

// New creates a Generator bound to a snowflake node id (0-1023).
func New(nodeID int64) (*Generator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", nodeID, err)
	}
	return &Generator{
		entropy: ulid.Monotonic(rand.Reader, 0),
		node:    node,
	}, nil
}

// ULID returns a ULID stamped with t. Ids issued within the same millisecond
// increase monotonically, so lexical order follows issue order.
func (g *Generator) ULID(t time.Time) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), g.entropy).String()
}

// RowID returns a snowflake id.
func (g *Generator) RowID() int64 {
	return g.node.Generate().Int64()
}
