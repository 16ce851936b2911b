// ABOUTME: Name to email lookup built from the Users worksheet
// ABOUTME: Resolves consultant names case-insensitively and lists admin recipients
package notify

import (
	"strings"

	"github.com/harperreed/leadsheet/models"
)

// Directory resolves consultant names to users.
type Directory struct {
	byName map[string]*models.User
	admins []string
}

// NewDirectory builds a directory. When two rows share a name the first wins.
func NewDirectory(users []models.User) *Directory {
	d := &Directory{byName: make(map[string]*models.User)}
	seenAdmin := make(map[string]bool)

	for i := range users {
		name := normalizeName(users[i].Name)
		if name != "" {
			if _, exists := d.byName[name]; !exists {
				d.byName[name] = &users[i]
			}
		}
		email := normalizeEmail(users[i].Email)
		if users[i].IsAdmin() && email != "" && !seenAdmin[email] {
			seenAdmin[email] = true
			d.admins = append(d.admins, strings.TrimSpace(users[i].Email))
		}
	}

	return d
}

// EmailFor returns the email of the user called name.
func (d *Directory) EmailFor(name string) (string, bool) {
	u, ok := d.byName[normalizeName(name)]
	if !ok || strings.TrimSpace(u.Email) == "" {
		return "", false
	}
	return strings.TrimSpace(u.Email), true
}

// AdminEmails returns admin emails in sheet order without duplicates.
func (d *Directory) AdminEmails() []string {
	return append([]string(nil), d.admins...)
}

// normalizeName lowercases and collapses inner whitespace.
func normalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
