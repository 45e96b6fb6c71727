// Package vault holds account credentials in memguard enclaves so they are
// encrypted while at rest in process memory. Plaintext only exists for the
// duration of a Get.
package vault

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/awnumar/memguard"

	"github.com/JakeFAU/netgraph-crawler/internal/crawler"
)

// ErrNoCredential is returned when nothing is stored for an account.
var ErrNoCredential = errors.New("no credential stored")

// Credential is a username plus secret (a password, or a token for GitHub).
type Credential struct {
	Username string
	Secret   string
}

type key struct {
	platform crawler.Platform
	account  string
}

type entry struct {
	username *memguard.Enclave
	secret   *memguard.Enclave
}

// Vault is a concurrency-safe credential store.
type Vault struct {
	mu      sync.RWMutex
	entries map[key]entry
}

// New returns an empty Vault.
func New() *Vault {
	return &Vault{entries: make(map[key]entry)}
}

// Put seals cred under (platform, account), replacing any previous value.
func (v *Vault) Put(platform crawler.Platform, account string, cred Credential) error {
	account = normalize(account)
	if account == "" {
		return errors.New("account is required")
	}
	if cred.Secret == "" {
		return errors.New("secret is required")
	}
	e := entry{
		username: seal(cred.Username),
		secret:   seal(cred.Secret),
	}
	v.mu.Lock()
	v.entries[key{platform, account}] = e
	v.mu.Unlock()
	return nil
}

// Get opens the credential for (platform, account).
func (v *Vault) Get(platform crawler.Platform, account string) (Credential, error) {
	v.mu.RLock()
	e, ok := v.entries[key{platform, normalize(account)}]
	v.mu.RUnlock()
	if !ok {
		return Credential{}, fmt.Errorf("%s/%s: %w", platform, account, ErrNoCredential)
	}
	username, err := unseal(e.username)
	if err != nil {
		return Credential{}, fmt.Errorf("open username: %w", err)
	}
	secret, err := unseal(e.secret)
	if err != nil {
		return Credential{}, fmt.Errorf("open secret: %w", err)
	}
	return Credential{Username: username, Secret: secret}, nil
}

// Has reports whether a credential is stored.
func (v *Vault) Has(platform crawler.Platform, account string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := v.entries[key{platform, normalize(account)}]
	return ok
}

// Delete forgets a credential.
func (v *Vault) Delete(platform crawler.Platform, account string) {
	v.mu.Lock()
	delete(v.entries, key{platform, normalize(account)})
	v.mu.Unlock()
}

// Accounts lists the stored account names for platform.
func (v *Vault) Accounts(platform crawler.Platform) []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	var out []string
	for k := range v.entries {
		if k.platform == platform {
			out = append(out, k.account)
		}
	}
	sort.Strings(out)
	return out
}

// Purge drops every entry and wipes memguard's memory. Call it on shutdown.
func (v *Vault) Purge() {
	v.mu.Lock()
	v.entries = make(map[key]entry)
	v.mu.Unlock()
	memguard.Purge()
}

func seal(s string) *memguard.Enclave {
	if s == "" {
		return nil
	}
	// NewEnclave wipes its input, so hand it a copy.
	return memguard.NewEnclave([]byte(s))
}

func unseal(e *memguard.Enclave) (string, error) {
	if e == nil {
		return "", nil
	}
	buf, err := e.Open()
	if err != nil {
		return "", err
	}
	defer buf.Destroy()
	return strings.Clone(buf.String()), nil
}

func normalize(account string) string {
	return strings.ToLower(strings.TrimSpace(account))
}
