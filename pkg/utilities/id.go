package utilities

import (
	"os"
	"strconv"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/segmentio/ksuid"
)

var (
	nodeOnce sync.Once
	node     *snowflake.Node
)

// NewKSUID generates a new globally unique KSUID string.
func NewKSUID() string {
	return ksuid.New().String()
}

// NewSnowflakeID generates a snowflake ID string from the process-wide node.
// The node id is read once from SNOWFLAKE_NODE (default 1). If the node
// cannot be initialized it falls back to a KSUID string.
func NewSnowflakeID() string {
	nodeOnce.Do(func() {
		node = newNode(nodeIDFromEnv())
	})
	if node == nil {
		return NewKSUID()
	}
	return node.Generate().String()
}

// NewSnowflakeIDWithNode generates a snowflake ID string using the provided node ID.
// If the node cannot be initialized, it falls back to a KSUID string.
func NewSnowflakeIDWithNode(nodeID int64) string {
	n := newNode(nodeID)
	if n == nil {
		return NewKSUID()
	}
	return n.Generate().String()
}

func nodeIDFromEnv() int64 {
	nodeEnv := os.Getenv("SNOWFLAKE_NODE")
	if nodeEnv == "" {
		return 1
	}
	nodeID, err := strconv.ParseInt(nodeEnv, 10, 64)
	if err != nil {
		return 1
	}
	return nodeID
}

func newNode(nodeID int64) *snowflake.Node {
	n, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil
	}
	return n
}
