// Package data loads the server's operator-editable data files.
package data

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// StatusInfo is the server list entry advertised to status pings. Operators
// edit it as YAML; the wire form is the JSON document inside StatusResponse.
type StatusInfo struct {
	Version struct {
		Name     string `yaml:"name" json:"name"`
		Protocol int32  `yaml:"protocol" json:"protocol"`
	} `yaml:"version" json:"version"`
	Players struct {
		Max    int `yaml:"max" json:"max"`
		Online int `yaml:"online" json:"online"`
	} `yaml:"players" json:"players"`
	Description struct {
		Text string `yaml:"text" json:"text"`
	} `yaml:"description" json:"description"`
}

// LoadStatusInfo reads the status file. A missing file is not an error;
// callers get defaults so the server still answers pings.
func LoadStatusInfo(path string, protocol int32, name string) (*StatusInfo, error) {
	info := defaultStatusInfo(protocol, name)
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return info, nil
		}
		return nil, fmt.Errorf("read status file: %w", err)
	}
	if err := yaml.Unmarshal(raw, info); err != nil {
		return nil, fmt.Errorf("parse status file: %w", err)
	}
	return info, nil
}

func defaultStatusInfo(protocol int32, name string) *StatusInfo {
	info := &StatusInfo{}
	info.Version.Name = name
	info.Version.Protocol = protocol
	info.Players.Max = 100
	info.Description.Text = name
	return info
}

// JSON renders the wire form carried by StatusResponse, with the live
// player count substituted in.
func (i *StatusInfo) JSON(online int) (string, error) {
	out := *i
	out.Players.Online = online
	raw, err := json.Marshal(&out)
	if err != nil {
		return "", fmt.Errorf("encode status: %w", err)
	}
	return string(raw), nil
}
