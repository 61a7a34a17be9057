package discord

import (
	"github.com/keshon/nuget-tracker/datastore"
	"github.com/rs/zerolog"
)

// hashCache remembers, per guild, the digest of every command last pushed
// to Discord so unchanged definitions are not registered again.
type hashCache struct {
	ds *datastore.DataStore
}

func openHashCache(path string, log zerolog.Logger) (*hashCache, error) {
	cfg := datastore.DefaultConfig(path)
	cfg.Logger = log
	ds, err := datastore.NewWithConfig(cfg)
	if err != nil {
		return nil, err
	}
	return &hashCache{ds: ds}, nil
}

func (c *hashCache) load(guildID string) map[string]string {
	hashes := make(map[string]string)
	if _, err := c.ds.Load(guildID, &hashes); err != nil || hashes == nil {
		return make(map[string]string)
	}
	return hashes
}

func (c *hashCache) save(guildID string, hashes map[string]string) error {
	if len(hashes) == 0 {
		c.ds.Delete(guildID)
		return nil
	}
	return c.ds.Put(guildID, hashes)
}

func (c *hashCache) Close() error {
	return c.ds.Close()
}
