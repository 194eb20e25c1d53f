package utilities

import (
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/segmentio/ksuid"
)

// NewKSUID generates a new globally unique KSUID string. Used for request
// correlation ids in the HTTP logging middleware.
func NewKSUID() string {
	return ksuid.New().String()
}

var (
	nodeOnce sync.Once
	node     *snowflake.Node
)

// NewSnowflakeID generates a snowflake ID using a node ID from the
// SNOWFLAKE_NODE environment variable (default 1). The node is initialized
// once per process so audit writers never contend on setup.
func NewSnowflakeID() int64 {
	nodeOnce.Do(func() {
		nodeID := int64(1)
		if v := os.Getenv("SNOWFLAKE_NODE"); v != "" {
			if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
				nodeID = parsed
			}
		}
		if n, err := snowflake.NewNode(nodeID); err == nil {
			node = n
		}
	})
	if node == nil {
		// node id outside [0,1023]; timestamp fallback still yields usable ids
		return time.Now().UnixNano()
	}
	return node.Generate().Int64()
}
