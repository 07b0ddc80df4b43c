package descriptor

import (
	"time"
)

// Service is a registry entry as submitted to and returned by the registry.
//
// Optional scalars are pointers so that an absent value (JSON null or missing)
// can be told apart from an empty string. Absent maps and slices are nil.
type Service struct {
	// ID is assigned at creation and is empty before the entry exists.
	ID          string            `json:"id,omitempty"`
	Name        *string           `json:"name"`
	Description *string           `json:"description"`
	Meta        map[string]any    `json:"meta"`
	APIs        map[string]string `json:"apis"`
	Docs        []Doc             `json:"docs"`

	// Registry-managed fields. They never take part in comparisons.
	TTL     uint       `json:"ttl,omitempty"`
	Created *time.Time `json:"created,omitempty"`
	Updated *time.Time `json:"updated,omitempty"`
	Expires *time.Time `json:"expires,omitempty"`
}

// Doc is an external resource documenting the service and/or its APIs,
// e.g. an OpenAPI document or a wiki page.
type Doc struct {
	Description *string  `json:"description"`
	Type        *string  `json:"type"`
	URL         *string  `json:"url"`
	APIs        []string `json:"apis"`
}

// Index is one page of the registry listing.
type Index struct {
	Total    int       `json:"total"`
	Services []Service `json:"services"`
	Page     int       `json:"page,omitempty"`
	PerPage  int       `json:"per_page,omitempty"`
}

// Str returns a pointer to s.
func Str(s string) *string {
	return &s
}

// Deref returns the pointed-to string or "" for nil.
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// NameValue returns the service name or "" when it is absent.
func (s *Service) NameValue() string {
	if s == nil {
		return ""
	}
	return Deref(s.Name)
}

// FindByName returns the first listed service whose name equals name.
func (idx *Index) FindByName(name string) (*Service, bool) {
	if idx == nil {
		return nil, false
	}
	for i := range idx.Services {
		if idx.Services[i].Name != nil && *idx.Services[i].Name == name {
			return &idx.Services[i], true
		}
	}
	return nil, false
}

// Clone returns a deep copy of the service. Meta values are copied through
// nested map[string]any and []any; other values are shared.
func (s *Service) Clone() *Service {
	if s == nil {
		return nil
	}
	out := *s
	out.Name = cloneStr(s.Name)
	out.Description = cloneStr(s.Description)
	if s.Meta != nil {
		out.Meta = make(map[string]any, len(s.Meta))
		for k, v := range s.Meta {
			out.Meta[k] = cloneValue(v)
		}
	}
	if s.APIs != nil {
		out.APIs = make(map[string]string, len(s.APIs))
		for k, v := range s.APIs {
			out.APIs[k] = v
		}
	}
	if s.Docs != nil {
		out.Docs = make([]Doc, len(s.Docs))
		for i, d := range s.Docs {
			out.Docs[i] = d.Clone()
		}
	}
	return &out
}

// Clone returns a deep copy of the doc entry.
func (d Doc) Clone() Doc {
	out := Doc{
		Description: cloneStr(d.Description),
		Type:        cloneStr(d.Type),
		URL:         cloneStr(d.URL),
	}
	if d.APIs != nil {
		out.APIs = append([]string{}, d.APIs...)
	}
	return out
}

// cloneValue copies the maps and slices a decoded meta value can hold.
func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = cloneValue(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

func cloneStr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
