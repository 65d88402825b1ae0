package yamlfile

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/hamed0406/vmwatchdog/internal/domain"
	wderr "github.com/hamed0406/vmwatchdog/internal/errors"
	"github.com/hamed0406/vmwatchdog/internal/repo"
)

const vmsKey = "vms"

var _ repo.MachineStore = (*Store)(nil)

// Store reads and rewrites a YAML config file of the form
//
//	vms:
//	  - name: db1
//	    url: https://gateway/db1
//	    ip: 1.2.3.4
//
// The parsed document is kept so Save only touches the ip fields and leaves
// comments, ordering and unrelated keys alone.
type Store struct {
	path string
	log  *zap.Logger

	mu sync.Mutex
	// doc is nil until a successful Load, or when the file did not exist.
	doc *yaml.Node
	// broken is set when the file exists but could not be used; Save refuses
	// to overwrite it.
	broken bool
}

func New(path string, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{path: path, log: log}
}

func (s *Store) Path() string { return s.path }

// Load fails soft: a missing or malformed file yields an empty list and a
// warning, never an error.
func (s *Store) Load(ctx context.Context) ([]domain.Machine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc, s.broken = nil, false

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.log.Info("config_not_found", zap.String("path", s.path))
		} else {
			s.broken = true
			s.log.Warn("config_read_error", zap.String("path", s.path), zap.Error(err))
		}
		return []domain.Machine{}, nil
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		s.broken = true
		s.log.Warn("config_parse_error", zap.String("path", s.path), zap.Error(err))
		return []domain.Machine{}, nil
	}
	if doc.Kind == 0 {
		// empty file, nothing worth preserving
		s.log.Warn("config_missing_vms", zap.String("path", s.path))
		return []domain.Machine{}, nil
	}

	root := rootMapping(&doc)
	if root == nil {
		s.broken = true
		s.log.Warn("config_not_a_mapping", zap.String("path", s.path))
		return []domain.Machine{}, nil
	}
	s.doc = &doc

	seq := mappingValue(root, vmsKey)
	if seq == nil {
		s.log.Warn("config_missing_vms", zap.String("path", s.path))
		return []domain.Machine{}, nil
	}
	if seq.Kind != yaml.SequenceNode {
		s.broken = true
		s.doc = nil
		s.log.Warn("config_vms_not_a_list", zap.String("path", s.path))
		return []domain.Machine{}, nil
	}

	out := make([]domain.Machine, 0, len(seq.Content))
	for i, item := range seq.Content {
		var m domain.Machine
		if err := item.Decode(&m); err != nil {
			s.log.Warn("config_vm_invalid", zap.Int("index", i), zap.Error(err))
			continue
		}
		m.Name = strings.TrimSpace(m.Name)
		m.URL = strings.TrimSpace(m.URL)
		m.IP = strings.TrimSpace(m.IP)
		if m.Name == "" || m.URL == "" {
			s.log.Warn("config_vm_incomplete", zap.Int("index", i), zap.String("name", m.Name))
			continue
		}
		out = append(out, m)
	}

	out, dropped := repo.Dedupe(out)
	for _, name := range dropped {
		s.log.Warn("config_duplicate_vm", zap.String("name", name))
	}
	return out, nil
}

// Save writes every machine's ip back to the file, atomically.
func (s *Store) Save(ctx context.Context, machines []domain.Machine) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.broken {
		return wderr.NewPersistenceError("refusing to overwrite unreadable config", nil).WithContext("path", s.path)
	}
	if s.doc == nil {
		s.doc = newDocument()
	}
	root := rootMapping(s.doc)
	seq := mappingValue(root, vmsKey)
	if seq == nil {
		seq = &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		root.Content = append(root.Content, scalar(vmsKey), seq)
	}

	for _, m := range machines {
		item := findByName(seq, m.Name)
		if item == nil {
			item = &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
			setMappingValue(item, "name", m.Name)
			setMappingValue(item, "url", m.URL)
			seq.Content = append(seq.Content, item)
		}
		if m.IP != "" {
			setMappingValue(item, "ip", m.IP)
		}
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(s.doc); err != nil {
		return wderr.NewPersistenceError("encode config", err).WithContext("path", s.path)
	}
	if err := enc.Close(); err != nil {
		return wderr.NewPersistenceError("encode config", err).WithContext("path", s.path)
	}
	if err := writeAtomic(s.path, buf.Bytes()); err != nil {
		return wderr.NewPersistenceError("write config", err).WithContext("path", s.path)
	}
	return nil
}

func newDocument() *yaml.Node {
	return &yaml.Node{
		Kind:    yaml.DocumentNode,
		Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}},
	}
}

func rootMapping(doc *yaml.Node) *yaml.Node {
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil
	}
	if root := doc.Content[0]; root.Kind == yaml.MappingNode {
		return root
	}
	return nil
}

func mappingValue(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

func setMappingValue(m *yaml.Node, key, value string) {
	if v := mappingValue(m, key); v != nil {
		v.Kind, v.Tag, v.Value = yaml.ScalarNode, "!!str", value
		v.Content = nil
		return
	}
	m.Content = append(m.Content, scalar(key), scalar(value))
}

func findByName(seq *yaml.Node, name string) *yaml.Node {
	for _, item := range seq.Content {
		if item.Kind != yaml.MappingNode {
			continue
		}
		if v := mappingValue(item, "name"); v != nil && strings.TrimSpace(v.Value) == name {
			return item
		}
	}
	return nil
}

func scalar(v string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v}
}

// writeAtomic writes to a temporary file in the same directory, syncs it, and
// renames it over path so readers never see a partial file.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	mode := os.FileMode(0o644)
	if fi, err := os.Stat(path); err == nil {
		mode = fi.Mode().Perm()
	}

	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temporary file: %w", err)
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write temporary file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("sync temporary file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close temporary file: %w", err)
	}
	if err := os.Chmod(tmp, mode); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("chmod temporary file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename into place: %w", err)
	}
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		d.Close()
	}
	return nil
}
