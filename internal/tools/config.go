package tools

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// KnowledgeBase selects a retrieval knowledge base and optional data sources.
type KnowledgeBase struct {
	KnowledgeBaseID string   `json:"knowledgeBaseId" yaml:"knowledgeBaseId"`
	DataSourceIDs   []string `json:"dataSourceIds,omitempty" yaml:"dataSourceIds,omitempty"`
}

// Configuration is the per-checklist tool configuration forwarded to the agent.
type Configuration struct {
	KnowledgeBase   []KnowledgeBase `json:"knowledgeBase,omitempty" yaml:"knowledgeBase,omitempty"`
	CodeInterpreter bool            `json:"codeInterpreter,omitempty" yaml:"codeInterpreter,omitempty"`
	MCPConfig       json.RawMessage `json:"mcpConfig,omitempty" yaml:"-"`
}

// Empty reports whether no tool is enabled.
func (c *Configuration) Empty() bool {
	return c == nil || (len(c.KnowledgeBase) == 0 && !c.CodeInterpreter && len(c.MCPConfig) == 0)
}

// Registry holds MCP servers attached to every review by default.
type Registry struct {
	Servers []MCPServer `yaml:"servers"`
}

// LoadRegistry reads a YAML registry file. An empty path yields an empty registry.
func LoadRegistry(path string) (*Registry, error) {
	if path == "" {
		return &Registry{}, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mcp registry: %w", err)
	}
	var reg Registry
	if err := yaml.Unmarshal(b, &reg); err != nil {
		return nil, fmt.Errorf("parse mcp registry %s: %w", path, err)
	}
	seen := make(map[string]struct{}, len(reg.Servers))
	for _, s := range reg.Servers {
		if s.Name == "" {
			return nil, fmt.Errorf("%w: registry entries must be named", ErrInvalidServer)
		}
		if _, dup := seen[s.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate registry entry %q", ErrInvalidServer, s.Name)
		}
		seen[s.Name] = struct{}{}
	}
	return &reg, nil
}

// With returns the registry defaults overlaid with request-level servers.
func (r *Registry) With(servers []MCPServer) []MCPServer {
	if r == nil {
		return servers
	}
	return Merge(r.Servers, servers)
}
