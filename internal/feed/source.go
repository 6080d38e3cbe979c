// Package feed fetches raw oracle observations for custodies.
package feed

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/redis/go-redis/v9"
)

// Source returns the latest raw observation bytes for one feed.
type Source interface {
	Fetch(ctx context.Context) ([]byte, error)
}

// Static always returns the same observation.
type Static []byte

func (s Static) Fetch(context.Context) ([]byte, error) {
	return append([]byte(nil), s...), nil
}

// FileSource reads the observation from a file on each fetch.
type FileSource struct {
	Path string
}

func (s FileSource) Fetch(context.Context) ([]byte, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("read observation %s: %w", s.Path, err)
	}
	return data, nil
}

// Deps are the connections a spec may need. Nil fields make the
// corresponding schemes unavailable.
type Deps struct {
	Redis redis.UniversalClient
	Chain ContractCaller
}

// ParseSpec builds a Source from a textual spec:
//
//	none              no observation
//	hex:0x...         static bytes
//	file:path         file contents
//	redis:key         value stored under key
//	chain:0xaddress   observation() of an oracle contract
func ParseSpec(spec string, deps Deps) (Source, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" || spec == "none" {
		return Static(nil), nil
	}
	scheme, rest, ok := strings.Cut(spec, ":")
	if !ok {
		return nil, fmt.Errorf("feed spec %q: missing scheme", spec)
	}
	switch scheme {
	case "hex":
		raw, err := hexutil.Decode(rest)
		if err != nil {
			return nil, fmt.Errorf("feed spec %q: %w", spec, err)
		}
		return Static(raw), nil
	case "file":
		if rest == "" {
			return nil, fmt.Errorf("feed spec %q: empty path", spec)
		}
		return FileSource{Path: rest}, nil
	case "redis":
		if deps.Redis == nil {
			return nil, fmt.Errorf("feed spec %q: redis is not configured", spec)
		}
		return NewRedisSource(deps.Redis, rest)
	case "chain":
		if deps.Chain == nil {
			return nil, fmt.Errorf("feed spec %q: rpc is not configured", spec)
		}
		if !common.IsHexAddress(rest) {
			return nil, fmt.Errorf("feed spec %q: invalid address", spec)
		}
		return NewChainSource(deps.Chain, common.HexToAddress(rest))
	default:
		return nil, fmt.Errorf("feed spec %q: unknown scheme %s", spec, scheme)
	}
}
