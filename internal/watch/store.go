package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Key prefixes in the durable namespace. The rule blob and its timer
// binding are separate records sharing the unique id.
const (
	configKeyPrefix  = "cfg:"
	triggerKeyPrefix = "trg:"
)

// KV is the durable key/value namespace configurations live in.
type KV interface {
	Put(ctx context.Context, key, value string) error
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) (map[string]string, error)
}

// configStore reads and writes Configuration records over the KV
// namespace, joining the trigger binding back into the struct on reads.
type configStore struct {
	kv KV
}

func (s *configStore) get(ctx context.Context, uniqueID string) (Configuration, bool, error) {
	raw, ok, err := s.kv.Get(ctx, configKeyPrefix+uniqueID)
	if err != nil || !ok {
		return Configuration{}, false, err
	}
	var cfg Configuration
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return Configuration{}, false, fmt.Errorf("corrupt configuration record %q: %w", uniqueID, err)
	}
	trig, _, err := s.kv.Get(ctx, triggerKeyPrefix+uniqueID)
	if err != nil {
		return Configuration{}, false, err
	}
	cfg.AssociatedTriggerID = trig
	return cfg, true, nil
}

func (s *configStore) put(ctx context.Context, cfg Configuration) error {
	blob, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := s.kv.Put(ctx, configKeyPrefix+cfg.UniqueID, string(blob)); err != nil {
		return err
	}
	return s.kv.Put(ctx, triggerKeyPrefix+cfg.UniqueID, cfg.AssociatedTriggerID)
}

// putTrigger rewrites only the timer binding of an existing rule.
func (s *configStore) putTrigger(ctx context.Context, uniqueID, triggerID string) error {
	return s.kv.Put(ctx, triggerKeyPrefix+uniqueID, triggerID)
}

func (s *configStore) delete(ctx context.Context, uniqueID string) error {
	if err := s.kv.Delete(ctx, configKeyPrefix+uniqueID); err != nil {
		return err
	}
	return s.kv.Delete(ctx, triggerKeyPrefix+uniqueID)
}

func (s *configStore) listAll(ctx context.Context) ([]Configuration, error) {
	blobs, err := s.kv.List(ctx, configKeyPrefix)
	if err != nil {
		return nil, err
	}
	triggers, err := s.kv.List(ctx, triggerKeyPrefix)
	if err != nil {
		return nil, err
	}

	out := make([]Configuration, 0, len(blobs))
	for key, raw := range blobs {
		uid := strings.TrimPrefix(key, configKeyPrefix)
		var cfg Configuration
		if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
			// A corrupt record must not hide the healthy ones; surface
			// it as an incomplete configuration instead.
			out = append(out, Configuration{UniqueID: uid})
			continue
		}
		cfg.AssociatedTriggerID = triggers[triggerKeyPrefix+uid]
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UniqueID < out[j].UniqueID })
	return out, nil
}
