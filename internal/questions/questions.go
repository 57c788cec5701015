// Package questions loads domain-keyed question banks from a directory of JSON
// or YAML files.
package questions

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/spigell/interview-scorer/internal/apperr"
	"github.com/spigell/interview-scorer/internal/normalize"
)

// Question is one immutable bank entry.
type Question struct {
	ID          string `json:"id" mapstructure:"id"`
	Text        string `json:"text" mapstructure:"text"`
	IdealAnswer string `json:"ideal_answer" mapstructure:"ideal_answer"`
}

var extensions = []string{".json", ".yaml", ".yml"}

// Bank reads question sets from Dir. A file named <domain>.<ext> holds the
// questions of one domain.
type Bank struct {
	Dir string
}

// NewBank returns a bank rooted at dir.
func NewBank(dir string) *Bank {
	return &Bank{Dir: dir}
}

// LoadQuestions returns the ordered questions of domain.
func (b *Bank) LoadQuestions(domain string) ([]Question, error) {
	domain, err := cleanDomain(domain)
	if err != nil {
		return nil, err
	}

	for _, ext := range extensions {
		path := filepath.Join(b.Dir, domain+ext)
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading question file %q: %w", path, err)
		}

		raw, err := decode(ext, data)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", apperr.ErrInvalidFormat, path, err)
		}
		qs, err := parse(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", apperr.ErrInvalidFormat, path, err)
		}
		return qs, nil
	}

	return nil, apperr.NotFound("no questions for domain %q", domain)
}

// Domains lists the domains that have a question file, sorted.
func (b *Bank) Domains() ([]string, error) {
	entries, err := os.ReadDir(b.Dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, apperr.NotFound("question directory %q does not exist", b.Dir)
	}
	if err != nil {
		return nil, fmt.Errorf("listing question directory %q: %w", b.Dir, err)
	}

	seen := make(map[string]struct{})
	var domains []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if !supported(ext) {
			continue
		}
		name := strings.ToLower(strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())))
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		domains = append(domains, name)
	}
	sort.Strings(domains)

	return domains, nil
}

func cleanDomain(domain string) (string, error) {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return "", apperr.InvalidInput("domain is required")
	}
	if strings.ContainsAny(domain, `/\`) || strings.Contains(domain, "..") {
		return "", apperr.InvalidInput("domain %q is not a valid name", domain)
	}
	return domain, nil
}

func supported(ext string) bool {
	for _, e := range extensions {
		if e == ext {
			return true
		}
	}
	return false
}

func decode(ext string, data []byte) (any, error) {
	var raw any
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
	default:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
	}
	return raw, nil
}

// parse accepts either a bare list or an object with a "questions" list.
func parse(raw any) ([]Question, error) {
	var items []any
	switch v := raw.(type) {
	case []any:
		items = v
	case map[string]any:
		list, ok := v["questions"].([]any)
		if !ok {
			return nil, errors.New(`payload is neither a list nor {"questions": [...]}`)
		}
		items = list
	default:
		return nil, errors.New(`payload is neither a list nor {"questions": [...]}`)
	}

	out := make([]Question, 0, len(items))
	for i, item := range items {
		q, err := parseItem(item)
		if err != nil {
			return nil, fmt.Errorf("question %d: %w", i+1, err)
		}
		if q.ID == "" {
			q.ID = fmt.Sprintf("q%d", i+1)
		}
		out = append(out, q)
	}
	return out, nil
}

func parseItem(item any) (Question, error) {
	var q Question
	switch v := item.(type) {
	case string:
		q.Text = strings.TrimSpace(v)
	case map[string]any:
		if _, err := normalize.QuestionSchema.Decode(v, &q); err != nil {
			return q, err
		}
		q.ID = strings.TrimSpace(q.ID)
	default:
		return q, fmt.Errorf("unexpected entry type %T", item)
	}

	if strings.TrimSpace(q.Text) == "" {
		return q, errors.New("question text is empty")
	}
	return q, nil
}
