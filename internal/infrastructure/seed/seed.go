// Package seed loads the users created at startup before any caller exists.
package seed

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/99minutos/approval-system/internal/core/domain"
	"github.com/99minutos/approval-system/internal/core/ports"
)

// File is the on-disk shape of a bootstrap file:
//
//	users:
//	  - identity: "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
//	    display_name: Dave
//	    contact: dave@example.com
//	    role: admin
type File struct {
	Users []User `yaml:"users"`
}

type User struct {
	Identity    string `yaml:"identity"`
	DisplayName string `yaml:"display_name"`
	Contact     string `yaml:"contact"`
	Role        string `yaml:"role"`
	// Active defaults to true when omitted.
	Active *bool `yaml:"active"`
}

// LoadFile reads and decodes the bootstrap file at path.
func LoadFile(path string) ([]ports.BootstrapUser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("seed: open %s: %w", path, err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode parses a bootstrap document. Unknown keys are rejected so typos
// do not silently drop an admin.
func Decode(r io.Reader) ([]ports.BootstrapUser, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var file File
	if err := dec.Decode(&file); err != nil && err != io.EOF {
		return nil, fmt.Errorf("seed: decode: %w", err)
	}

	users := make([]ports.BootstrapUser, 0, len(file.Users))
	for i, u := range file.Users {
		role, err := domain.ParseRole(u.Role)
		if err != nil {
			return nil, fmt.Errorf("seed: users[%d]: %w", i, err)
		}
		active := true
		if u.Active != nil {
			active = *u.Active
		}
		users = append(users, ports.BootstrapUser{
			Identity:    u.Identity,
			DisplayName: u.DisplayName,
			Contact:     u.Contact,
			Role:        role,
			Active:      active,
		})
	}
	return users, nil
}
