/*
Copyright 2025 Paradrop Labs
*/

package container

import (
	"context"
	"os/exec"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/leilei1881/Paradrop/pkg/chute"
)

// ConnectInterfaces bridges each host-side chute interface to its
// in-container counterpart by spawning the external veth glue tool once
// per interface. Only wifi interfaces need the glue; wan/lan traffic rides
// the engine's own bridge.
func ConnectInterfaces(ctx context.Context, glueTool string, ch *chute.Chute, log *zap.Logger) error {
	for _, iface := range ch.Interfaces() {
		if iface.NetType != chute.NetTypeWifi {
			continue
		}
		args := []string{iface.ExternalIntf, "-i", iface.InternalIntf,
			ch.Name, iface.IpaddrWithPrefix}
		log.Info("connecting chute interface",
			zap.String("tool", glueTool), zap.Strings("args", args))

		cmd := exec.CommandContext(ctx, glueTool, args...)
		out, err := cmd.CombinedOutput()
		for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
			if line != "" {
				log.Info("glue", zap.String("line", line))
			}
		}
		if err != nil {
			return errors.Wrapf(err, "%s %s", glueTool, iface.ExternalIntf)
		}
	}
	return nil
}
