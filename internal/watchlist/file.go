package watchlist

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mev-protocol/oev-seeker/internal/store"
)

type fileFormat struct {
	Borrowers []string `json:"borrowers"`
	LastBlock uint64   `json:"lastBlock"`
}

// Save writes the watch list to path, replacing it atomically
func Save(path string, wl store.WatchList) error {
	f := fileFormat{Borrowers: make([]string, len(wl.Accounts)), LastBlock: wl.LastBlock}
	for i, a := range wl.Accounts {
		f.Borrowers[i] = a.Hex()
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("save watch list: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("save watch list: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save watch list: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

// Load reads a watch list written by Save. Invalid addresses are an error.
func Load(path string) (store.WatchList, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return store.WatchList{}, err
	}
	var f fileFormat
	if err := json.Unmarshal(data, &f); err != nil {
		return store.WatchList{}, fmt.Errorf("parse %s: %w", path, err)
	}
	wl := store.WatchList{Accounts: make([]common.Address, 0, len(f.Borrowers)), LastBlock: f.LastBlock}
	for _, s := range f.Borrowers {
		if !common.IsHexAddress(s) {
			return store.WatchList{}, fmt.Errorf("parse %s: invalid borrower %q", path, s)
		}
		wl.Accounts = append(wl.Accounts, common.HexToAddress(s))
	}
	return wl, nil
}
