package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalidServer is returned when an MCP server entry is neither a remote
// endpoint nor a local process, or claims to be both.
var ErrInvalidServer = errors.New("invalid mcp server")

// ServerKind tags which variant of MCPServer is populated.
type ServerKind string

const (
	KindRemote ServerKind = "remote"
	KindLocal  ServerKind = "local"
)

// RemoteEndpoint is an MCP server reached over streamable HTTP.
type RemoteEndpoint struct {
	URL     string
	Headers map[string]string
}

// LocalProcess is an MCP server spawned as a child process over stdio.
type LocalProcess struct {
	Command string
	Args    []string
	Env     map[string]string
}

// MCPServer is a resolved MCP server entry. Exactly one of Remote or Local is
// set, matching Kind.
type MCPServer struct {
	Name   string
	Kind   ServerKind
	Remote *RemoteEndpoint
	Local  *LocalProcess
}

// wire is the loose shape accepted from queue payloads and config files.
type wire struct {
	Name    string            `json:"name,omitempty" yaml:"name,omitempty"`
	URL     string            `json:"url,omitempty" yaml:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Command string            `json:"command,omitempty" yaml:"command,omitempty"`
	Args    []string          `json:"args,omitempty" yaml:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	// Package is shorthand for `uvx <package>`.
	Package string `json:"package,omitempty" yaml:"package,omitempty"`
}

func (w wire) resolve() (MCPServer, error) {
	command, args := strings.TrimSpace(w.Command), w.Args
	if command == "" && strings.TrimSpace(w.Package) != "" {
		command, args = "uvx", []string{strings.TrimSpace(w.Package)}
	}
	rawURL := strings.TrimSpace(w.URL)

	switch {
	case rawURL != "" && command != "":
		return MCPServer{}, fmt.Errorf("%w %q: url and command are mutually exclusive", ErrInvalidServer, w.Name)
	case rawURL != "":
		u, err := url.Parse(rawURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return MCPServer{}, fmt.Errorf("%w %q: url must be absolute http(s): %s", ErrInvalidServer, w.Name, rawURL)
		}
		return MCPServer{
			Name:   w.Name,
			Kind:   KindRemote,
			Remote: &RemoteEndpoint{URL: u.String(), Headers: w.Headers},
		}, nil
	case command != "":
		return MCPServer{
			Name:  w.Name,
			Kind:  KindLocal,
			Local: &LocalProcess{Command: command, Args: args, Env: w.Env},
		}, nil
	default:
		return MCPServer{}, fmt.Errorf("%w %q: one of url, command or package is required", ErrInvalidServer, w.Name)
	}
}

func (s MCPServer) toWire() wire {
	w := wire{Name: s.Name}
	switch s.Kind {
	case KindRemote:
		if s.Remote != nil {
			w.URL, w.Headers = s.Remote.URL, s.Remote.Headers
		}
	case KindLocal:
		if s.Local != nil {
			w.Command, w.Args, w.Env = s.Local.Command, s.Local.Args, s.Local.Env
		}
	}
	return w
}

func (s *MCPServer) UnmarshalJSON(b []byte) error {
	var w wire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	r, err := w.resolve()
	if err != nil {
		return err
	}
	*s = r
	return nil
}

func (s MCPServer) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.toWire())
}

func (s *MCPServer) UnmarshalYAML(value *yaml.Node) error {
	var w wire
	if err := value.Decode(&w); err != nil {
		return err
	}
	r, err := w.resolve()
	if err != nil {
		return err
	}
	*s = r
	return nil
}

func (s MCPServer) MarshalYAML() (any, error) {
	return s.toWire(), nil
}

// Merge returns base overlaid with overrides; entries are matched by Name and
// unnamed overrides are appended.
func Merge(base, overrides []MCPServer) []MCPServer {
	out := make([]MCPServer, 0, len(base)+len(overrides))
	idx := make(map[string]int, len(base))
	for _, s := range base {
		if s.Name != "" {
			idx[s.Name] = len(out)
		}
		out = append(out, s)
	}
	for _, s := range overrides {
		if i, ok := idx[s.Name]; ok && s.Name != "" {
			out[i] = s
			continue
		}
		out = append(out, s)
	}
	return out
}
