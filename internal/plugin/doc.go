// Package plugin loads plugin manifests from the plugins directory, groups
// their actions into a catalog and starts plugin processes.
//
// A plugin is a directory named after its UUID containing manifest.json.
// Manifests use the Stream Deck SDK's PascalCase keys.
package plugin
