package types

// Replication sync states reported for a shard peer
const (
	SyncStateSync  = "sync"
	SyncStateAsync = "async"
)

// ShardStatus is a snapshot of the replication topology of a data-tier
// shard
type ShardStatus struct {
	Primary *ShardPeer `json:"primary"`
	Sync    *ShardPeer `json:"sync,omitempty"`
	Async   *ShardPeer `json:"async,omitempty"`
	// Frozen is set while the shard is held in single-writer mode
	Frozen bool `json:"frozen,omitempty"`
}

// ShardPeer is one member of a shard
type ShardPeer struct {
	ZoneID string           `json:"zoneId"`
	Server string           `json:"server,omitempty"`
	IP     string           `json:"ip,omitempty"`
	Online bool             `json:"online"`
	Repl   *ReplicationInfo `json:"repl,omitempty"`
}

// ReplicationInfo describes the replication stream a peer feeds
type ReplicationInfo struct {
	SyncState    string `json:"sync_state,omitempty"`
	State        string `json:"state,omitempty"`
	ClientAddr   string `json:"client_addr,omitempty"`
	SentLocation string `json:"sent_location,omitempty"`
}

// PrimarySyncState returns the replication state of the primary's
// downstream, or "" when there is none
func (s *ShardStatus) PrimarySyncState() string {
	if s == nil || s.Primary == nil || s.Primary.Repl == nil {
		return ""
	}
	return s.Primary.Repl.SyncState
}

// ZkMember is one entry of the coordination ensemble membership list
type ZkMember struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	Num  int    `json:"num"`
	Last bool   `json:"last,omitempty"`
}

// ZkMode is the role a coordination member reports
type ZkMode string

const (
	ZkModeLeader     ZkMode = "leader"
	ZkModeFollower   ZkMode = "follower"
	ZkModeStandalone ZkMode = "standalone"
)

// ZkStat is the parsed status of one coordination member
type ZkStat struct {
	Host  string
	Mode  ZkMode
	Epoch int64
	Zxid  int64
}
