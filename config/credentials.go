package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Credentials for one site. Loaded once per run and never logged in
// cleartext.
type Credentials struct {
	SiteID   string `yaml:"site_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// String masks the secret so accidental %v logging stays harmless.
func (c Credentials) String() string {
	return fmt.Sprintf("credentials{site=%s user=%s}", c.SiteID, c.Username)
}

// CredentialStore resolves credentials per site from a local secret file.
type CredentialStore struct {
	bySite map[string]Credentials
}

type credentialsFile struct {
	Credentials []Credentials `yaml:"credentials"`
}

// LoadCredentials reads the secret file. A site listed twice or an entry
// missing its site id, username or password is a fatal config error.
func LoadCredentials(path string) (*CredentialStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading credentials %s: %w", path, err)
	}
	var f credentialsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("config: parsing credentials %s: %w", path, err)
	}
	store := &CredentialStore{bySite: map[string]Credentials{}}
	for _, c := range f.Credentials {
		if c.SiteID == "" || c.Username == "" || c.Password == "" {
			return nil, fmt.Errorf("config: credentials entry for site %q is incomplete", c.SiteID)
		}
		if _, dup := store.bySite[c.SiteID]; dup {
			return nil, fmt.Errorf("config: duplicate credentials for site %q", c.SiteID)
		}
		store.bySite[c.SiteID] = c
	}
	return store, nil
}

// For returns the credentials for a site id.
func (s *CredentialStore) For(siteID string) (Credentials, error) {
	c, ok := s.bySite[siteID]
	if !ok {
		return Credentials{}, fmt.Errorf("config: no credentials for site %q", siteID)
	}
	return c, nil
}
