package rapp

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"

	"github.com/meridian-robotics/rappd/internal/shared/types"
	"github.com/meridian-robotics/rappd/internal/shared/utils"
)

// LaunchSpec describes how to launch an application process.
type LaunchSpec struct {
	Command    string            `yaml:"command" json:"command"`
	Args       []string          `yaml:"args" json:"args,omitempty"`
	WorkingDir string            `yaml:"working_dir" json:"working_dir,omitempty"`
	Env        map[string]string `yaml:"env" json:"env,omitempty"`
}

// Descriptor is an installed application as declared by its .rapp.yaml
// file: identity, platform compatibility, launch recipe, the ordered
// capability requirements, and the interface endpoints it exposes.
type Descriptor struct {
	Name                 string                 `yaml:"name" json:"name"`
	DisplayName          string                 `yaml:"display_name" json:"display_name"`
	Description          string                 `yaml:"description" json:"description,omitempty"`
	Compatibility        string                 `yaml:"compatibility" json:"compatibility"`
	Launch               LaunchSpec             `yaml:"launch" json:"launch"`
	RequiredCapabilities []string               `yaml:"required_capabilities" json:"required_capabilities,omitempty"`
	Interface            types.Endpoints        `yaml:"interface" json:"interface"`
	PublicParameters     map[string]interface{} `yaml:"public_parameters" json:"public_parameters,omitempty"`
}

// ParseDescriptor parses and validates a descriptor document. Unknown
// fields are rejected so a misspelled connection kind fails the load
// instead of silently dropping endpoints.
func ParseDescriptor(data []byte) (*Descriptor, error) {
	var d Descriptor
	if err := yaml.UnmarshalWithOptions(data, &d, yaml.Strict()); err != nil {
		return nil, fmt.Errorf("failed to parse descriptor: %w", err)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// LoadDescriptor reads and parses a descriptor file.
func LoadDescriptor(path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read descriptor: %w", err)
	}
	d, err := ParseDescriptor(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

// Validate checks required fields and fills display defaults.
func (d *Descriptor) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("descriptor missing required field: name")
	}
	if err := utils.ValidateRappName(d.Name); err != nil {
		return fmt.Errorf("descriptor rejected: %w", err)
	}
	if d.Launch.Command == "" {
		return fmt.Errorf("descriptor %s missing required field: launch.command", d.Name)
	}
	for _, names := range [][]string{
		d.Interface.Subscribers, d.Interface.Publishers, d.Interface.Services,
		d.Interface.ActionClients, d.Interface.ActionServers,
	} {
		for _, name := range names {
			if err := utils.ValidateGraphName(name, "interface name"); err != nil {
				return fmt.Errorf("descriptor %s rejected: %w", d.Name, err)
			}
		}
	}
	if d.DisplayName == "" {
		d.DisplayName = d.Name
	}
	return nil
}

// Info returns the wire snapshot of this descriptor with the given
// run status.
func (d *Descriptor) Info(status string) types.RappInfo {
	return types.RappInfo{
		Name:          d.Name,
		DisplayName:   d.DisplayName,
		Description:   d.Description,
		Compatibility: d.Compatibility,
		Status:        status,
	}
}
