package plugin

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/roach88/deckd/internal/profile"
)

// ManifestFile is the manifest file name inside a plugin directory.
const ManifestFile = "manifest.json"

// DefaultImage is the state image placeholder replaced by the action icon.
const DefaultImage = "actionDefaultImage"

// ErrNoActions is returned for a manifest without actions.
var ErrNoActions = errors.New("manifest declares no actions")

// OS is one supported platform entry.
type OS struct {
	Platform       string `json:"Platform"`
	MinimumVersion string `json:"MinimumVersion,omitempty"`
}

// Manifest is the parsed manifest.json of a plugin.
type Manifest struct {
	Name                  string           `json:"Name"`
	Version               string           `json:"Version"`
	Author                string           `json:"Author"`
	Category              string           `json:"Category"`
	CategoryIcon          string           `json:"CategoryIcon"`
	Icon                  string           `json:"Icon"`
	PropertyInspectorPath string           `json:"PropertyInspectorPath"`
	CodePath              string           `json:"CodePath"`
	CodePathWin           string           `json:"CodePathWin"`
	CodePathMac           string           `json:"CodePathMac"`
	CodePathLin           string           `json:"CodePathLin"`
	OS                    []OS             `json:"OS"`
	Actions               []ManifestAction `json:"Actions"`
}

// ManifestAction is an action as declared in a manifest.
type ManifestAction struct {
	Name                    string          `json:"Name"`
	UUID                    string          `json:"UUID"`
	Tooltip                 string          `json:"Tooltip"`
	Icon                    string          `json:"Icon"`
	DisableAutomaticStates  bool            `json:"DisableAutomaticStates"`
	VisibleInActionList     *bool           `json:"VisibleInActionList"`
	SupportedInMultiActions *bool           `json:"SupportedInMultiActions"`
	PropertyInspectorPath   string          `json:"PropertyInspectorPath"`
	Controllers             []string        `json:"Controllers"`
	States                  []ManifestState `json:"States"`
}

// ManifestState is one state of a manifest action.
type ManifestState struct {
	Image          string `json:"Image"`
	Name           string `json:"Name"`
	Title          string `json:"Title"`
	ShowTitle      *bool  `json:"ShowTitle"`
	TitleColor     string `json:"TitleColor"`
	TitleAlignment string `json:"TitleAlignment"`
	FontFamily     string `json:"FontFamily"`
	FontStyle      string `json:"FontStyle"`
	FontSize       string `json:"FontSize"`
	FontUnderline  bool   `json:"FontUnderline"`
}

// Plugin is a loaded plugin directory.
type Plugin struct {
	UUID     string
	Dir      string
	Manifest Manifest
	Actions  []profile.Action
}

// ParseManifest decodes manifest JSON.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if len(m.Actions) == 0 {
		return nil, ErrNoActions
	}
	return &m, nil
}

// LoadManifest reads dir/manifest.json. The plugin UUID is the directory
// name. Icon and property inspector paths are made absolute, and states
// using actionDefaultImage take the action icon.
func LoadManifest(dir string) (*Plugin, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("load manifest: %w", err)
	}
	path := filepath.Join(dir, ManifestFile)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest of plugin at %s: %w", dir, err)
	}
	m, err := ParseManifest(data)
	if err != nil {
		return nil, fmt.Errorf("plugin at %s: %w", dir, err)
	}

	p := &Plugin{
		UUID:     filepath.Base(dir),
		Dir:      dir,
		Manifest: *m,
		Actions:  make([]profile.Action, 0, len(m.Actions)),
	}
	for _, ma := range m.Actions {
		action, err := p.action(ma)
		if err != nil {
			return nil, fmt.Errorf("plugin %s: %w", p.UUID, err)
		}
		p.Actions = append(p.Actions, action)
	}
	return p, nil
}

func (p *Plugin) action(ma ManifestAction) (profile.Action, error) {
	a := profile.Action{
		Name:                    ma.Name,
		UUID:                    ma.UUID,
		Plugin:                  p.UUID,
		Tooltip:                 ma.Tooltip,
		Icon:                    p.resolve(ma.Icon),
		DisableAutomaticStates:  ma.DisableAutomaticStates,
		VisibleInActionList:     boolOr(ma.VisibleInActionList, true),
		SupportedInMultiActions: boolOr(ma.SupportedInMultiActions, true),
	}
	if a.UUID == "" {
		return profile.Action{}, fmt.Errorf("action %q has no UUID", ma.Name)
	}

	switch {
	case ma.PropertyInspectorPath != "":
		a.PropertyInspector = p.resolve(ma.PropertyInspectorPath)
	case p.Manifest.PropertyInspectorPath != "":
		a.PropertyInspector = p.resolve(p.Manifest.PropertyInspectorPath)
	}

	for _, c := range ma.Controllers {
		ctrl, err := profile.ParseController(c)
		if err != nil {
			return profile.Action{}, fmt.Errorf("action %s: %w", ma.UUID, err)
		}
		a.Controllers = append(a.Controllers, ctrl)
	}

	for _, ms := range ma.States {
		st := profile.ActionState{
			Image:     ms.Image,
			Name:      ms.Name,
			Text:      ms.Title,
			Show:      boolOr(ms.ShowTitle, true),
			Color:     ms.TitleColor,
			Alignment: ms.TitleAlignment,
			Family:    ms.FontFamily,
			Style:     ms.FontStyle,
			Size:      ms.FontSize,
			Underline: ms.FontUnderline,
		}
		if st.Image == DefaultImage || st.Image == "" {
			st.Image = a.Icon
		} else {
			st.Image = p.resolve(st.Image)
		}
		a.States = append(a.States, st)
	}
	return a, nil
}

func (p *Plugin) resolve(rel string) string {
	if rel == "" || filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(p.Dir, rel)
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}
