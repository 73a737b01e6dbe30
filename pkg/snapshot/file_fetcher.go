package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rzbill/gate/pkg/log"
	"github.com/rzbill/gate/pkg/types"
)

// FileFetcher loads snapshots from a local YAML or JSON document. It is
// the development and bootstrap source: the same validation path applies,
// only the transport differs.
type FileFetcher struct {
	fetchHealth

	path   string
	logger log.Logger
	clock  func() time.Time
}

// NewFileFetcher creates a fetcher that reads snapshots from path.
func NewFileFetcher(path string, logger log.Logger) *FileFetcher {
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	return &FileFetcher{
		path:   path,
		logger: logger.WithComponent("snapshot-file-fetcher"),
		clock:  time.Now,
	}
}

// Fetch reads and validates the snapshot document.
func (f *FileFetcher) Fetch(ctx context.Context) (*types.Snapshot, error) {
	f.recordAttempt(f.clock())

	if err := ctx.Err(); err != nil {
		return nil, f.fail(types.NewFetchError("context cancelled", err))
	}

	body, err := os.ReadFile(f.path)
	if err != nil {
		return nil, f.fail(types.NewFetchError("reading snapshot file", err))
	}

	var snap *types.Snapshot
	switch filepath.Ext(f.path) {
	case ".yaml", ".yml":
		var s types.Snapshot
		if err := yaml.Unmarshal(body, &s); err != nil {
			return nil, f.fail(types.NewFetchError("malformed snapshot document", err))
		}
		if err := s.Validate(); err != nil {
			if types.IsPoisonedPayload(err) {
				return nil, f.fail(err)
			}
			return nil, f.fail(types.NewFetchError("structural validation failed", err))
		}
		snap = &s
	default:
		// JSON files carry the same envelope as the HTTP endpoint so a
		// captured control-plane response can be replayed directly.
		snap, err = decodeSnapshot(body)
		if err != nil {
			return nil, f.fail(err)
		}
	}

	f.recordSuccess(f.clock())
	return snap, nil
}

// Stats returns fetch health counters.
func (f *FileFetcher) Stats() FetchStats {
	return f.stats()
}

func (f *FileFetcher) fail(err error) error {
	f.recordFailure()
	if types.IsPoisonedPayload(err) {
		f.logger.Error("rejected poisoned snapshot document", log.Err(err))
	} else {
		f.logger.Warn("snapshot load failed", log.Err(err))
	}
	return err
}
