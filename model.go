package bsda

import "fmt"

// Entity is anything the resolver can select by name or id.
type Entity interface {
	EntityId() string
	EntityName() string
}

// User is the owner of the access token.
type User struct {
	Id    string `json:"Id"`
	Name  string `json:"Name"`
	Email string `json:"Email"`
}

func (u User) String() string { return u.Name }

// Project is a top level BaseSpace container grouping samples.
type Project struct {
	Id   string `json:"Id"`
	Name string `json:"Name"`
	Href string `json:"Href"`
}

func (p Project) EntityId() string   { return p.Id }
func (p Project) EntityName() string { return p.Name }
func (p Project) String() string     { return fmt.Sprintf("%s (%s)", p.Name, p.Id) }

// Sample is a named unit within a project. The project fields are filled in
// by the inventory client, BaseSpace does not return them.
type Sample struct {
	Id          string `json:"Id"`
	Name        string `json:"Name"`
	SampleId    string `json:"SampleId"`
	Href        string `json:"Href"`
	ProjectId   string `json:"-"`
	ProjectName string `json:"-"`
}

func (s Sample) EntityId() string   { return s.Id }
func (s Sample) EntityName() string { return s.Name }
func (s Sample) String() string     { return fmt.Sprintf("%s (%s)", s.Name, s.Id) }

// FileEntry is a downloadable object belonging to a sample.
type FileEntry struct {
	Id          string `json:"Id"`
	Name        string `json:"Name"`
	Path        string `json:"Path"`
	Size        int64  `json:"Size"`
	Href        string `json:"Href"`
	SampleId    string `json:"-"`
	SampleName  string `json:"-"`
	ProjectId   string `json:"-"`
	ProjectName string `json:"-"`
}

func (f FileEntry) EntityId() string   { return f.Id }
func (f FileEntry) EntityName() string { return f.Name }
func (f FileEntry) String() string {
	return fmt.Sprintf("%s - id: '%s', size: %d", f.Name, f.Id, f.Size)
}
