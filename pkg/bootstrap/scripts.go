package bootstrap

import (
	"bufio"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/cuemby/fleetadm/pkg/errs"
	"github.com/cuemby/fleetadm/pkg/types"
)

const (
	zkPort       = 2181
	postgresPort = 5432
)

func zkStatScript(zone string) string {
	return fmt.Sprintf("/usr/sbin/zlogin %s 'echo stat | nc 127.0.0.1 %d'", zone, zkPort)
}

func configSyncScript(zone string) string {
	return fmt.Sprintf("/usr/sbin/zlogin %s /opt/smartdc/config-agent/build/node/bin/node /opt/smartdc/config-agent/agent.js -s", zone)
}

func shardStatusScript(zone string) string {
	return fmt.Sprintf("/usr/sbin/zlogin %s 'source ~/.bashrc; manatee-adm pg-status -j'", zone)
}

func onwmOffScript(zone string) string {
	return fmt.Sprintf("/usr/sbin/zlogin %s 'source ~/.bashrc; manatee-adm set-onwm -m off'", zone)
}

func sitterScript(zone, action string) string {
	return fmt.Sprintf("/usr/sbin/svcadm -z %s %s manatee-sitter", zone, action)
}

func morayRestartScript(zone string) string {
	return fmt.Sprintf("/usr/sbin/svcadm -z %s restart '*moray-*'", zone)
}

// ParseZkStat parses the output of the four-letter "stat" command
func ParseZkStat(host, out string) (types.ZkStat, error) {
	stat := types.ZkStat{Host: host}
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		key, val, ok := strings.Cut(sc.Text(), ":")
		if !ok {
			continue
		}
		val = strings.TrimSpace(val)
		switch strings.TrimSpace(key) {
		case "Mode":
			stat.Mode = types.ZkMode(val)
		case "Zxid":
			zxid, err := strconv.ParseInt(strings.TrimPrefix(val, "0x"), 16, 64)
			if err != nil {
				return stat, fmt.Errorf("bad zxid %q from %s: %w", val, host, err)
			}
			stat.Zxid = zxid
			stat.Epoch = zxid >> 32
		}
	}
	if stat.Mode == "" {
		return stat, fmt.Errorf("no mode in stat output from %s", host)
	}
	return stat, nil
}

// ParseShardStatus parses the JSON shard status printed by the data node
func ParseShardStatus(out string) (*types.ShardStatus, error) {
	var st types.ShardStatus
	if err := json.Unmarshal([]byte(out), &st); err != nil {
		return nil, fmt.Errorf("parse shard status: %w", err)
	}
	if st.Primary == nil {
		return nil, fmt.Errorf("shard status has no primary")
	}
	return &st, nil
}

// Members builds the ensemble membership list from member id to host,
// ordered by id. Num must match each node's myid.
func Members(hosts map[int]string) []types.ZkMember {
	ids := make([]int, 0, len(hosts))
	for id := range hosts {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]types.ZkMember, len(ids))
	for i, id := range ids {
		out[i] = types.ZkMember{Host: hosts[id], Port: zkPort, Num: id, Last: i == len(ids)-1}
	}
	return out
}

// zkID returns the member id an instance was created with. The seed node
// predates ZK_ID and is member 1.
func zkID(inst *types.Instance) (int, error) {
	v, ok := inst.Metadata["ZK_ID"]
	if !ok {
		return 1, nil
	}
	switch id := v.(type) {
	case int:
		return id, nil
	case float64:
		if id == math.Trunc(id) {
			return int(id), nil
		}
	case json.Number:
		if n, err := id.Int64(); err == nil {
			return int(n), nil
		}
	case string:
		if n, err := strconv.Atoi(id); err == nil {
			return n, nil
		}
	}
	return 0, errs.Updatef("%s has an invalid ZK_ID %v", inst.Alias, v)
}
