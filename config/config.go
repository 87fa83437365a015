// Package config holds the system wide tunables that the original
// kernel hard-codes as C #define constants: table sizes, the number
// of blocks the transaction log admits at once, and where the disk
// image lives. Values are loaded from an optional TOML file via
// github.com/BurntSushi/toml; callers that never load a file get the
// xv6-faithful defaults below.
package config

import "github.com/BurntSushi/toml"

/// Config collects the tunables consulted by vfs, xv6fs, fdtable, and
/// ksys. Field names match the teacher's ALLCAPS #define names
/// loosely, translated to Go's exported-struct-field convention.
type Config struct {
	NINODE      int `toml:"ninode"`       // size of the in-memory inode table
	NDENTRY     int `toml:"ndentry"`      // size of the dentry pool
	NFILE       int `toml:"nfile"`        // size of the open-file table
	NOFILE      int `toml:"nofile"`       // per-process fd table size
	MaxOpBlocks int `toml:"maxopblocks"`  // blocks a single transaction may touch
	LogSize     int `toml:"logsize"`      // blocks reserved for the transaction log
	DiskPath    string `toml:"diskpath"`  // path to the backing disk image
}

/// Default returns the xv6-faithful tunables used when no TOML file
/// is supplied.
func Default() *Config {
	return &Config{
		NINODE:      50,
		NDENTRY:     100,
		NFILE:       100,
		NOFILE:      16,
		MaxOpBlocks: 10,
		LogSize:     30, // MaxOpBlocks * 3, xv6's own sizing rule
		DiskPath:    "fs.img",
	}
}

/// Load reads a TOML configuration file, filling in any field the
/// file omits from Default.
func Load(path string) (*Config, error) {
	c := Default()
	if _, err := toml.DecodeFile(path, c); err != nil {
		return nil, err
	}
	return c, nil
}
