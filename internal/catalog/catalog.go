// Package catalog holds the static content of the interviewer: job roles,
// interview tips, and the question bank used when generation fails.
package catalog

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pavelanni/interviewer/internal/model"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// TipSection is a titled group of tips.
type TipSection struct {
	Title string   `yaml:"title"`
	Items []string `yaml:"items"`
}

// Catalog is the loaded content.
type Catalog struct {
	Roles             []model.Role     `yaml:"roles"`
	Tips              []TipSection     `yaml:"tips"`
	CommonQuestions   []string         `yaml:"common_questions"`
	FallbackQuestions []model.Question `yaml:"fallback_questions"`
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := parse(defaultCatalog)
	if err != nil {
		panic("catalog: built-in catalog is invalid: " + err.Error())
	}
	return c
}

// Load reads a catalog file. Sections missing from the file are taken from
// the built-in catalog. An empty path returns Default().
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	c, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	def := Default()
	if len(c.Roles) == 0 {
		c.Roles = def.Roles
	}
	if len(c.Tips) == 0 {
		c.Tips = def.Tips
	}
	if len(c.CommonQuestions) == 0 {
		c.CommonQuestions = def.CommonQuestions
	}
	if len(c.FallbackQuestions) == 0 {
		c.FallbackQuestions = def.FallbackQuestions
	}
	return c, nil
}

func parse(data []byte) (*Catalog, error) {
	var c Catalog
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	for i, q := range c.FallbackQuestions {
		if strings.TrimSpace(q.Text) == "" {
			return nil, fmt.Errorf("fallback question %d has no text", i+1)
		}
		c.FallbackQuestions[i].Difficulty = model.NormalizeDifficulty(string(q.Difficulty))
	}
	for i, r := range c.Roles {
		if strings.TrimSpace(string(r)) == "" {
			return nil, fmt.Errorf("role %d is empty", i+1)
		}
	}
	return &c, nil
}

// HasRole reports whether role is listed, ignoring case.
func (c *Catalog) HasRole(role model.Role) bool {
	for _, r := range c.Roles {
		if strings.EqualFold(string(r), strings.TrimSpace(string(role))) {
			return true
		}
	}
	return false
}

// Fallback returns exactly count questions for role from the fallback bank,
// cycling through the bank when count exceeds its size.
func (c *Catalog) Fallback(role model.Role, count int) []model.Question {
	if count <= 0 || len(c.FallbackQuestions) == 0 {
		return nil
	}
	qs := make([]model.Question, count)
	for i := range qs {
		q := c.FallbackQuestions[i%len(c.FallbackQuestions)]
		q.Text = strings.ReplaceAll(q.Text, "{role}", string(role))
		qs[i] = q
	}
	return qs
}
