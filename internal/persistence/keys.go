package persistence

// Key layout. Everything is scoped by run id or flow name so backends
// can shard or index by prefix.
//
//	flow/<name>               latest flow definition
//	flowver/<name>/<version>  immutable versioned definition
//	run/<id>                  run record
//	node/<runID>/<nodeID>     node execution record
//	lease/<runID>             ownership lease
//	cancel/<runID>            cancellation request marker

const (
	flowPrefix    = "flow/"
	flowVerPrefix = "flowver/"
	runPrefix     = "run/"
	nodePrefix    = "node/"
	leasePrefix   = "lease/"
	cancelPrefix  = "cancel/"
)

func FlowKey(name string) string { return flowPrefix + name }

func FlowVersionKey(name, version string) string { return flowVerPrefix + name + "/" + version }

func RunKey(id string) string { return runPrefix + id }

func NodeKey(runID, nodeID string) string { return nodePrefix + runID + "/" + nodeID }

func NodeKeyPrefix(runID string) string { return nodePrefix + runID + "/" }

func LeaseKey(runID string) string { return leasePrefix + runID }

func CancelKey(runID string) string { return cancelPrefix + runID }
