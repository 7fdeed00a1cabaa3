package plugin

import (
	"encoding/json"

	"github.com/roach88/deckd/internal/device"
	"github.com/roach88/deckd/internal/profile"
)

// Info is the registration info passed to a plugin with -info.
type Info struct {
	Application      ApplicationInfo `json:"application"`
	Plugin           PluginInfo      `json:"plugin"`
	DevicePixelRatio int             `json:"devicePixelRatio"`
	Devices          []DeviceInfo    `json:"devices"`
}

// ApplicationInfo describes the host application.
type ApplicationInfo struct {
	Font            string `json:"font"`
	Language        string `json:"language"`
	Platform        string `json:"platform"`
	PlatformVersion string `json:"platformVersion"`
	Version         string `json:"version"`
}

// PluginInfo identifies the plugin being launched.
type PluginInfo struct {
	UUID    string `json:"uuid"`
	Version string `json:"version"`
}

// DeviceInfo describes one connected device.
type DeviceInfo struct {
	ID   string     `json:"id"`
	Name string     `json:"name"`
	Size DeviceSize `json:"size"`
	Type int        `json:"type"`
}

// DeviceSize is a device's key grid.
type DeviceSize struct {
	Columns int `json:"columns"`
	Rows    int `json:"rows"`
}

// MakeInfo builds the -info payload for a plugin.
func MakeInfo(pluginUUID, version, goos string, devices []device.Info) Info {
	info := Info{
		Application: ApplicationInfo{
			Language: "en",
			Platform: Platform(goos),
			Version:  profile.Version,
		},
		Plugin:           PluginInfo{UUID: pluginUUID, Version: version},
		DevicePixelRatio: 1,
		Devices:          make([]DeviceInfo, 0, len(devices)),
	}
	for _, d := range devices {
		info.Devices = append(info.Devices, DeviceInfo{
			ID:   d.ID,
			Name: d.Name,
			Size: DeviceSize{Columns: d.Layout.Columns, Rows: d.Layout.Rows},
			Type: d.Type,
		})
	}
	return info
}

// JSON returns the compact JSON form passed on the command line.
func (i Info) JSON() (string, error) {
	data, err := json.Marshal(i)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
