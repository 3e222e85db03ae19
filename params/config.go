// Package params separates protocol parameters, which the engine treats
// as compile-time/constructor-time constants, from ambient node settings,
// which may reasonably be sourced from the environment.
package params

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Protocol is the PFHS engine's tunable surface: the per-view timeout and
// the number of views a run should drive before returning. Neither field
// is ever read from the environment — both are always passed explicitly
// by the caller (cluster.SetupCluster, consensus.NewEndpoint,
// Endpoint.StartConsensus), so a protocol parameter can never silently
// drift between validators that happen to have different environments.
type Protocol struct {
	Timeout time.Duration
	MaxView uint64
}

func DefaultProtocol() Protocol {
	return Protocol{
		Timeout: 4000 * time.Millisecond,
		MaxView: 1000,
	}
}

// Node holds operational, ambient settings: where to write logs, where to
// keep on-disk state, whether this process runs a single local validator
// or joins a real cluster. These are deployment concerns, not protocol
// parameters, so loading them from the environment is appropriate.
type Node struct {
	LogPath    string
	DataDir    string
	SingleNode bool

	// ListenAddr is this process's libp2p listen multiaddr, e.g.
	// "/ip4/0.0.0.0/tcp/4001". Empty lets libp2p pick an ephemeral port,
	// fine for SingleNode but not for joining a real cluster.
	ListenAddr string

	// PeerAddrs lists the other validators' dial multiaddrs (each with an
	// embedded /p2p/<id>), in the same order as ValidatorSeedsHex minus
	// this validator's own entry. cmd/node connects to each at startup.
	PeerAddrs []string

	// ValidatorIndex is this process's 0-based position in the validator
	// set, i.e. its Identity.Index and the value PrimaryForView compares
	// against.
	ValidatorIndex int

	// ValidatorSeedsHex holds one hex-encoded 32-byte BLS key-material seed
	// per validator, ordered by index, known to every validator ahead of
	// time the same way the teacher's cfg.Consensus.Validators list is
	// known ahead of time. Devnet-only: a real deployment would exchange
	// public keys out of band instead of sharing seeds.
	ValidatorSeedsHex []string
}

func DefaultNode() Node {
	return Node{
		LogPath:    "",
		DataDir:    "./data",
		SingleNode: true,
	}
}

// LoadNodeFromEnv loads ambient node settings from a .env file (if present)
// and the process environment. Priority: ENV > .env file > defaults. It
// never touches Protocol — there is no environment-variable path to a
// consensus timeout or view count.
func LoadNodeFromEnv(envPath string) Node {
	cfg := DefaultNode()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("NODE_LOG_PATH"); v != "" {
		cfg.LogPath = v
	}
	if v := os.Getenv("NODE_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("SINGLE_NODE"); v != "" {
		cfg.SingleNode = v == "true"
	}
	if v := os.Getenv("NODE_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("NODE_PEER_ADDRS"); v != "" {
		cfg.PeerAddrs = splitNonEmpty(v)
	}
	if v := os.Getenv("NODE_VALIDATOR_INDEX"); v != "" {
		if idx, err := strconv.Atoi(v); err == nil {
			cfg.ValidatorIndex = idx
		}
	}
	if v := os.Getenv("NODE_VALIDATOR_SEEDS_HEX"); v != "" {
		cfg.ValidatorSeedsHex = splitNonEmpty(v)
	}
	return cfg
}

func splitNonEmpty(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
