/*
Copyright 2025 Paradrop Labs
*/

package update

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/leilei1881/Paradrop/pkg/chute"
)

// generateStructPlans lays out the chute's host directories and the
// volume bindings the container will receive.
func generateStructPlans(u *Update) error {
	if u.New == nil {
		return nil
	}

	dataDir := filepath.Join(u.agent.Settings.DataDir, u.Name)
	systemDir := filepath.Join(u.agent.Settings.SystemDir, u.Name)

	u.New.SetCache(chute.CacheInternalDataDir, u.agent.Settings.InternalDataDir)
	u.New.SetCache(chute.CacheInternalSystemDir, u.agent.Settings.InternalSystemDir)
	u.New.SetCache(chute.CacheVolumes, map[string]string{
		dataDir:   u.agent.Settings.InternalDataDir,
		systemDir: u.agent.Settings.InternalSystemDir,
	})

	abort := func(u *Update) error { return nil }
	if u.Type == TypeCreate {
		// Only a fresh create owns the directories; an update must not
		// delete user data on abort.
		abort = func(u *Update) error {
			os.RemoveAll(dataDir)
			os.RemoveAll(systemDir)
			return nil
		}
	}

	u.Plans.Add(PlanStruct, "create chute directories", func(u *Update) error {
		for _, dir := range []string{dataDir, systemDir} {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return errors.Wrapf(err, "create %s", dir)
			}
		}
		return nil
	}, abort)

	return nil
}
