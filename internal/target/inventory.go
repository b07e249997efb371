package target

import (
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/benjamin-robertson/bolt/internal/config"
	"github.com/benjamin-robertson/bolt/internal/errors"
	"github.com/kevinburke/ssh_config"
	"gopkg.in/yaml.v3"
)

// Inventory materializes Target objects from identifiers and exposes name
// listings for telemetry counts.
type Inventory interface {
	GetTargets(names []string) ([]Target, error)
	NodeNames() []string
	GroupNames() []string
}

// inventoryFile is the on-disk inventory.yaml structure.
type inventoryFile struct {
	Nodes  []inventoryNode  `yaml:"nodes"`
	Groups []inventoryGroup `yaml:"groups"`
}

type inventoryGroup struct {
	Name  string          `yaml:"name"`
	Nodes []inventoryNode `yaml:"nodes"`
}

// inventoryNode allows either a bare string or a mapping with config.
type inventoryNode struct {
	Name   string
	Config nodeConfig
}

type nodeConfig struct {
	Host string `yaml:"host"`
	User string `yaml:"user"`
	Port int    `yaml:"port"`
}

func (n *inventoryNode) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		return value.Decode(&n.Name)
	}
	aux := struct {
		Name   string     `yaml:"name"`
		Config nodeConfig `yaml:"config"`
	}{}
	if err := value.Decode(&aux); err != nil {
		return err
	}
	n.Name = aux.Name
	n.Config = aux.Config
	return nil
}

// FileInventory is a yaml-file inventory with group expansion. Identifiers
// not present in the file still resolve: connection details fall back to the
// user's ssh_config and the transport defaults from bolt.yaml.
type FileInventory struct {
	nodes     map[string]Target
	groups    map[string][]string // group name -> node names, in file order
	order     []string            // node names in file order
	transport config.TransportConfig
}

// LoadInventory reads an inventory file. A missing path yields an empty
// inventory; unknown identifiers are then parsed as ad-hoc target specs.
func LoadInventory(path string, transport config.TransportConfig) (*FileInventory, error) {
	inv := &FileInventory{
		nodes:     map[string]Target{},
		groups:    map[string][]string{},
		transport: transport,
	}
	if path == "" {
		return inv, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return inv, nil
		}
		return nil, errors.WrapWithCode(err, errors.ErrFile,
			"Could not read inventory file: "+path,
			"Check the path and file permissions")
	}

	var file inventoryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrFile,
			"Invalid inventory file: "+path,
			"Check the YAML structure of the inventory")
	}

	for _, node := range file.Nodes {
		inv.addNode(node)
	}
	for _, group := range file.Groups {
		names := make([]string, 0, len(group.Nodes))
		for _, node := range group.Nodes {
			inv.addNode(node)
			names = append(names, node.Name)
		}
		inv.groups[group.Name] = names
	}
	return inv, nil
}

func (inv *FileInventory) addNode(node inventoryNode) {
	if _, seen := inv.nodes[node.Name]; seen {
		return
	}
	t := Target{
		Name:      node.Name,
		Host:      node.Config.Host,
		User:      node.Config.User,
		Port:      node.Config.Port,
		Transport: "ssh",
	}
	if t.Host == "" {
		t.Host = node.Name
	}
	inv.nodes[node.Name] = t
	inv.order = append(inv.order, node.Name)
}

// GetTargets materializes targets for the given identifiers. Group names
// expand to their members; unknown names become ad-hoc targets.
func (inv *FileInventory) GetTargets(names []string) ([]Target, error) {
	var targets []Target
	seen := map[string]bool{}

	var add func(name string) error
	add = func(name string) error {
		if members, ok := inv.groups[name]; ok {
			for _, member := range members {
				if err := add(member); err != nil {
					return err
				}
			}
			return nil
		}
		if seen[name] {
			return nil
		}
		seen[name] = true

		t, ok := inv.nodes[name]
		if !ok {
			parsed, err := ParseSpec(name)
			if err != nil {
				return err
			}
			t = parsed
		}
		targets = append(targets, inv.applyDefaults(t))
		return nil
	}

	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if err := add(name); err != nil {
			return nil, err
		}
	}
	return targets, nil
}

// applyDefaults fills missing connection fields from ssh_config and the
// transport defaults, in that order.
func (inv *FileInventory) applyDefaults(t Target) Target {
	if t.User == "" {
		t.User = ssh_config.Get(t.Host, "User")
	}
	if t.Port == 0 {
		if port, err := strconv.Atoi(ssh_config.Get(t.Host, "Port")); err == nil && port != 22 {
			t.Port = port
		}
	}
	if host := ssh_config.Get(t.Host, "HostName"); host != "" && host != t.Host {
		t.Host = host
	}
	if t.User == "" {
		t.User = inv.transport.User
	}
	if t.Port == 0 {
		t.Port = inv.transport.Port
	}
	if t.Port == 0 {
		t.Port = 22
	}
	return t
}

// NodeNames returns all node identifiers known to the inventory.
func (inv *FileInventory) NodeNames() []string {
	names := make([]string, len(inv.order))
	copy(names, inv.order)
	return names
}

// GroupNames returns all group names known to the inventory, sorted.
func (inv *FileInventory) GroupNames() []string {
	names := make([]string, 0, len(inv.groups))
	for name := range inv.groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
