// Package config implements the configuration layer for the Device Services
// Container.
//
// Configuration is assembled from baked-in defaults, an optional TOML file
// (./dsc.toml, /etc/dsc/dsc.toml, or the path in DSC_CONFIG) and DSC_*
// environment overrides, then validated before use.
package config
