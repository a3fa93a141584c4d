/*
Copyright 2025 Paradrop Labs
*/

package update

import (
	"context"
	"fmt"
	"strconv"

	"github.com/pkg/errors"

	"github.com/leilei1881/Paradrop/pkg/chute"
	"github.com/leilei1881/Paradrop/pkg/container"
	"github.com/leilei1881/Paradrop/pkg/uci"
)

// generateRuntimePlans contributes the wireless and DHCP section
// synthesis, the container lifecycle steps, and the post-start interface
// glue.
func generateRuntimePlans(u *Update) error {
	if u.New != nil && len(u.New.Net) > 0 {
		u.Plans.Add(PlanRuntimeConfig, "synthesize wireless config",
			synthesizeWirelessConfig, nil)
	}

	switch u.Type {
	case TypeCreate:
		u.Plans.Add(PlanContainer, "prepare image", prepareImage, removeNewImage)
		u.Plans.Add(PlanContainer, "create container", createNewContainer, removeNewContainer)
		u.Plans.Add(PlanContainer, "start container", startNewContainer, nil)
		u.Plans.Add(PlanGlue, "connect interfaces", connectInterfaces, nil)

	case TypeUpdate:
		u.Plans.Add(PlanContainer, "remove old container", removeOldContainer, startOldContainer)
		u.Plans.Add(PlanContainer, "prepare image", prepareImage, removeNewImage)
		u.Plans.Add(PlanContainer, "create container", createNewContainer, removeNewContainer)
		u.Plans.Add(PlanContainer, "start container", startNewContainer, nil)
		u.Plans.Add(PlanGlue, "connect interfaces", connectInterfaces, nil)

	case TypeDelete:
		// Container teardown precedes network teardown.
		u.Plans.Add(PlanStruct, "remove container", removeOldContainer, nil)
		u.Plans.Add(PlanStruct, "remove image", removeOldImage, nil)

	case TypeStart:
		u.Plans.Add(PlanContainer, "start container", func(u *Update) error {
			state, err := u.agent.Engine.Inspect(context.Background(), u.Name)
			if err == nil && state.Running {
				return errors.Errorf("chute %s is already running", u.Name)
			}
			return u.agent.Engine.StartContainer(context.Background(), u.Name)
		}, nil)
		u.Plans.Add(PlanGlue, "connect interfaces", func(u *Update) error {
			return container.ConnectInterfaces(context.Background(),
				u.agent.Settings.GlueTool, u.Old, u.log)
		}, nil)

	case TypeStop:
		u.Plans.Add(PlanContainer, "stop container", func(u *Update) error {
			return u.agent.Engine.StopContainer(context.Background(), u.Name)
		}, nil)

	case TypeRestart:
		u.Plans.Add(PlanContainer, "restart container", func(u *Update) error {
			if err := u.agent.Engine.StopContainer(context.Background(), u.Name); err != nil {
				return err
			}
			return u.agent.Engine.StartContainer(context.Background(), u.Name)
		}, nil)
		u.Plans.Add(PlanGlue, "connect interfaces", func(u *Update) error {
			return container.ConnectInterfaces(context.Background(),
				u.agent.Settings.GlueTool, u.Old, u.log)
		}, nil)
	}
	return nil
}

// synthesizeWirelessConfig fills the wireless and DHCP section caches for
// the chute's wifi interfaces: a wifi-device per assigned radio, a
// wifi-iface AP bound to the chute bridge, and a dnsmasq pool when the
// interface requests DHCP.
func synthesizeWirelessConfig(u *Update) error {
	var sections []*uci.Section
	radios := make(map[string]bool)

	for _, iface := range u.New.Interfaces() {
		if iface.NetType != chute.NetTypeWifi {
			continue
		}

		if !radios[iface.Device] {
			radios[iface.Device] = true
			radio, err := uci.NewSection("wifi-device", iface.Device)
			if err != nil {
				return err
			}
			radio.Set("type", "auto")
			radio.Set("ifname", iface.Device)
			radio.Set("channel", "6")
			sections = append(sections, radio)
		}

		ap, err := uci.NewSection("wifi-iface", iface.ExternalIntf)
		if err != nil {
			return err
		}
		ap.Set("device", iface.Device)
		ap.Set("mode", "ap")
		ap.Set("ssid", iface.SSID)
		ap.Set("network", iface.ExternalIntf)
		ap.Set("ifname", iface.ExternalIntf)
		if iface.Encryption != "" {
			ap.Set("encryption", iface.Encryption)
			ap.Set("key", iface.Key)
		}
		sections = append(sections, ap)

		if iface.DHCP != nil {
			dnsmasq, err := uci.NewSection("dnsmasq", iface.ExternalIntf)
			if err != nil {
				return err
			}
			dnsmasq.Append("interface", iface.ExternalIntf)
			sections = append(sections, dnsmasq)

			pool, err := uci.NewSection("dhcp", iface.ExternalIntf)
			if err != nil {
				return err
			}
			pool.Set("interface", iface.ExternalIntf)
			pool.Set("start", strconv.Itoa(iface.DHCP.Start))
			pool.Set("limit", strconv.Itoa(iface.DHCP.Limit))
			if iface.DHCP.Leasetime != "" {
				pool.Set("leasetime", iface.DHCP.Leasetime)
			}
			for _, opt := range iface.DHCP.Options {
				pool.Append("dhcp_option", opt)
			}
			sections = append(sections, pool)
		}
	}

	u.New.SetCache(chute.CacheOSWirelessConfig, sections)
	return nil
}

// prepareImage pulls the chute's external image, falling back to a local
// build when a build context is available; chutes without an external
// image are always built locally.
func prepareImage(u *Update) error {
	ctx := context.Background()
	engine := u.agent.Engine

	if u.New.ExternalImage != "" {
		auth := container.Auth{
			Username: u.agent.Settings.RegistryUsername,
			Password: u.agent.Settings.RegistryPassword,
		}
		u.Progress("Pulling image: " + u.New.ExternalImage)
		err := engine.PullImage(ctx, u.New.ExternalImage, auth, u.Progress)
		if err == nil {
			return nil
		}
		u.Progress("Pull failed, attempting a local build.")
	}

	buildCtx, err := container.BuildContext(u.chuteSourceDir())
	if err != nil {
		return errors.Wrap(err, "no image source available")
	}
	u.Progress("Building image for " + u.New.String())
	return engine.BuildImage(ctx, u.New.ImageName(), buildCtx, u.Progress)
}

func (u *Update) chuteSourceDir() string {
	return u.agent.Settings.DataDir + "/" + u.Name
}

func createNewContainer(u *Update) error {
	ctx := context.Background()
	env := container.PrepareEnvironment(u.New, u.agent.Settings.RouterID)

	u.New.SetCache(chute.CacheVirtNetworkConfig, env)

	id, err := u.agent.Engine.CreateContainer(ctx, u.New, env)
	if err != nil {
		return err
	}
	u.Progress(fmt.Sprintf("Created chute container with Id: %s", id))
	return nil
}

func startNewContainer(u *Update) error {
	return u.agent.Engine.StartContainer(context.Background(), u.New.Name)
}

func connectInterfaces(u *Update) error {
	return container.ConnectInterfaces(context.Background(),
		u.agent.Settings.GlueTool, u.New, u.log)
}

func removeNewContainer(u *Update) error {
	return u.agent.Engine.RemoveContainer(context.Background(), u.New.Name, true)
}

func removeNewImage(u *Update) error {
	return u.agent.Engine.RemoveImage(context.Background(), u.New.ImageName())
}

func removeOldContainer(u *Update) error {
	if err := u.agent.Engine.StopContainer(context.Background(), u.Old.Name); err != nil &&
		!errors.Is(err, container.ErrChuteNotFound) {
		u.Progress(err.Error())
	}
	return u.agent.Engine.RemoveContainer(context.Background(), u.Old.Name, true)
}

func removeOldImage(u *Update) error {
	if err := u.agent.Engine.RemoveImage(context.Background(), u.Old.ImageName()); err != nil {
		u.Progress(err.Error())
	}
	return nil
}

func startOldContainer(u *Update) error {
	ctx := context.Background()
	env := container.PrepareEnvironment(u.Old, u.agent.Settings.RouterID)
	id, err := u.agent.Engine.CreateContainer(ctx, u.Old, env)
	if err != nil {
		return err
	}
	return u.agent.Engine.StartContainer(ctx, id)
}
