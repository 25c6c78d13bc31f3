package item

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Record format: a YAML front-matter header block between "---" fences,
// followed by the opaque payload body. The header keys are the only
// contractually stable surface of the format.

const frontMatterFence = "---"

// recordHeader is the on-disk header block.
type recordHeader struct {
	ID        string            `yaml:"id"`
	Kind      string            `yaml:"kind"`
	Domain    string            `yaml:"domain"`
	State     string            `yaml:"state"`
	Priority  int               `yaml:"priority"`
	Created   time.Time         `yaml:"created"`
	Expires   *time.Time        `yaml:"expires,omitempty"`
	Origin    string            `yaml:"origin"`
	Fields    map[string]string `yaml:"fields,omitempty"`
	Decisions []Decision        `yaml:"decisions,omitempty"`
}

// Filename returns the vault file name for the item.
func (i *Item) Filename() string {
	return i.ID + ".md"
}

// Encode renders the item as a record document.
func Encode(i *Item) ([]byte, error) {
	if err := i.Validate(); err != nil {
		return nil, err
	}

	hdr := recordHeader{
		ID:        i.ID,
		Kind:      string(i.Kind),
		Domain:    string(i.Domain),
		State:     string(i.State),
		Priority:  i.Priority,
		Created:   i.CreatedAt.UTC(),
		Origin:    i.Origin,
		Fields:    i.Fields,
		Decisions: i.Decisions,
	}
	if !i.ExpiresAt.IsZero() {
		exp := i.ExpiresAt.UTC()
		hdr.Expires = &exp
	}

	var buf bytes.Buffer
	buf.WriteString(frontMatterFence + "\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&hdr); err != nil {
		return nil, fmt.Errorf("encoding record header: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encoding record header: %w", err)
	}
	buf.WriteString(frontMatterFence + "\n")
	if i.Body != "" {
		buf.WriteString("\n")
		buf.WriteString(i.Body)
		if !strings.HasSuffix(i.Body, "\n") {
			buf.WriteString("\n")
		}
	}
	return buf.Bytes(), nil
}

// Decode parses a record document back into an item.
func Decode(data []byte) (*Item, error) {
	text := string(data)
	if !strings.HasPrefix(text, frontMatterFence+"\n") {
		return nil, fmt.Errorf("record missing header block")
	}
	rest := text[len(frontMatterFence)+1:]
	end := strings.Index(rest, "\n"+frontMatterFence)
	if end < 0 {
		return nil, fmt.Errorf("record header block not terminated")
	}
	headerText := rest[:end+1]
	body := rest[end+1+len(frontMatterFence):]
	body = strings.TrimPrefix(body, "\n")
	body = strings.TrimPrefix(body, "\n")

	var hdr recordHeader
	if err := yaml.Unmarshal([]byte(headerText), &hdr); err != nil {
		return nil, fmt.Errorf("decoding record header: %w", err)
	}

	it := &Item{
		ID:        hdr.ID,
		Kind:      Kind(hdr.Kind),
		Domain:    Domain(hdr.Domain),
		State:     State(hdr.State),
		Priority:  hdr.Priority,
		CreatedAt: hdr.Created,
		Origin:    hdr.Origin,
		Fields:    hdr.Fields,
		Decisions: hdr.Decisions,
		Body:      strings.TrimSuffix(body, "\n"),
	}
	if hdr.Expires != nil {
		it.ExpiresAt = *hdr.Expires
	}
	if err := it.Validate(); err != nil {
		return nil, err
	}
	return it, nil
}
