/*
Copyright 2025 Paradrop Labs
*/

package container

import (
	"fmt"
	"sort"

	"github.com/leilei1881/Paradrop/pkg/chute"
)

// Environment variables every chute container receives.
const (
	EnvChuteName    = "PARADROP_CHUTE_NAME"
	EnvChuteVersion = "PARADROP_CHUTE_VERSION"
	EnvRouterID     = "PARADROP_ROUTER_ID"
	EnvDataDir      = "PARADROP_DATA_DIR"
	EnvSystemDir    = "PARADROP_SYSTEM_DIR"
)

// PrepareEnvironment renders the container environment: the chute's own
// variables plus the agent-provided ones. Agent variables win on conflict.
func PrepareEnvironment(ch *chute.Chute, routerID string) []string {
	env := make(map[string]string, len(ch.Environment)+5)
	for k, v := range ch.Environment {
		env[k] = v
	}

	env[EnvChuteName] = ch.Name
	env[EnvRouterID] = routerID
	if dir, ok := ch.GetCache(chute.CacheInternalDataDir).(string); ok {
		env[EnvDataDir] = dir
	}
	if dir, ok := ch.GetCache(chute.CacheInternalSystemDir).(string); ok {
		env[EnvSystemDir] = dir
	}
	if ch.Version != "" {
		env[EnvChuteVersion] = ch.Version
	}

	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, fmt.Sprintf("%s=%s", k, env[k]))
	}
	return out
}
